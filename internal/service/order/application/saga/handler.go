package saga

import (
	"context"
	"sync"

	"inventory-core/internal/pkg/idempotency"
	"inventory-core/internal/pkg/logger"
	"inventory-core/internal/service/order/domain"
	"inventory-core/internal/service/order/domain/port"

	"go.opentelemetry.io/otel/trace"
)

// Line 是请求中的一行：买哪个 variant、买多少。
type Line struct {
	VariantID string
	Quantity  int
}

// OrderContext 在 Saga 流程中传递上下文数据。
type OrderContext struct {
	Ctx     context.Context
	OrderID string
	UserID  string
	Lines   []Line
	Tracer  trace.Tracer

	// 由各步骤依次填充
	Catalog map[string]*port.CatalogItem // variantID -> 目录快照
	Order   *domain.Order

	// 依赖出站端口 (Interfaces)
	InventoryService port.InventoryService
	Guard            idempotency.Guard
	Dispatcher       port.EventDispatcher

	compensations []func(ctx context.Context)
	compLock      sync.Mutex
}

// AddCompensation 把补偿压栈，后注册的先执行。
func (c *OrderContext) AddCompensation(comp func(ctx context.Context)) {
	c.compLock.Lock()
	defer c.compLock.Unlock()
	c.compensations = append([]func(context.Context){comp}, c.compensations...)
}

// TriggerCompensation 倒序执行并清空补偿栈，重复调用不会重复补偿。
func (c *OrderContext) TriggerCompensation(ctx context.Context) {
	c.compLock.Lock()
	defer c.compLock.Unlock()
	logger.Ctx(ctx).Info().Str("order_id", c.OrderID).Int("count", len(c.compensations)).Msg("Executing compensation functions")
	for _, comp := range c.compensations {
		comp(ctx)
	}
	c.compensations = nil
}

type Handler interface {
	SetNext(handler Handler) Handler
	Handle(orderCtx *OrderContext) error
}

type NextHandler struct {
	next Handler
}

func (h *NextHandler) SetNext(handler Handler) Handler {
	h.next = handler
	return handler
}

func (h *NextHandler) executeNext(orderCtx *OrderContext) error {
	if h.next != nil {
		return h.next.Handle(orderCtx)
	}
	return nil
}

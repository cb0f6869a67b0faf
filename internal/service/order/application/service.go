// internal/service/order/application/service.go
package application

import (
	"context"
	"time"

	"inventory-core/internal/pkg/database"
	"inventory-core/internal/pkg/events"
	"inventory-core/internal/pkg/idempotency"
	"inventory-core/internal/pkg/logger"
	"inventory-core/internal/pkg/retry"
	"inventory-core/internal/pkg/tracing"
	"inventory-core/internal/service/order/application/saga"
	"inventory-core/internal/service/order/domain"
	"inventory-core/internal/service/order/domain/port"

	"github.com/google/uuid"
	"github.com/pkg/errors"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

// OrderApplicationService 只关注业务流程编排。
type OrderApplicationService struct {
	orderRepo         domain.OrderRepository
	transactor        database.Transactor
	inventoryService  port.InventoryService
	guard             idempotency.Guard
	dispatcher        port.EventDispatcher
	versionRetry      retry.Policy
	processingTimeout time.Duration
	tracer            trace.Tracer
}

func NewOrderApplicationService(orderRepo domain.OrderRepository, transactor database.Transactor, inventoryService port.InventoryService, guard idempotency.Guard, dispatcher port.EventDispatcher, versionRetry retry.Policy, processingTimeout time.Duration, tracer trace.Tracer) *OrderApplicationService {
	return &OrderApplicationService{
		orderRepo: orderRepo, transactor: transactor,
		inventoryService: inventoryService, guard: guard, dispatcher: dispatcher,
		versionRetry: versionRetry.WithRetryable(func(err error) bool {
			return errors.Is(err, domain.ErrVersionConflict)
		}),
		processingTimeout: processingTimeout, tracer: tracer,
	}
}

// PlaceOrder 执行下单 Saga。任何一步失败都会倒序归还已经占用的库存；
// 库存不足返回 port.ErrInsufficientStock，持久化失败返回 domain.ErrSystem。
func (s *OrderApplicationService) PlaceOrder(ctx context.Context, req *PlaceOrderRequest) (*domain.Order, error) {
	ctx, span := s.tracer.Start(ctx, "app.PlaceOrder", trace.WithAttributes(attribute.String("user.id", req.UserID)))
	defer span.End()

	processingCtx := ctx
	if s.processingTimeout > 0 {
		var cancel context.CancelFunc
		processingCtx, cancel = context.WithTimeout(ctx, s.processingTimeout)
		defer cancel()
	}

	orderContext := &saga.OrderContext{
		Ctx:              processingCtx,
		OrderID:          uuid.New().String(),
		UserID:           req.UserID,
		Lines:            req.sagaLines(),
		Tracer:           s.tracer,
		InventoryService: s.inventoryService,
		Guard:            s.guard,
		Dispatcher:       s.dispatcher,
	}
	span.SetAttributes(attribute.String("order.id", orderContext.OrderID))

	if err := s.buildChain().Handle(orderContext); err != nil {
		logger.Ctx(ctx).Warn().Err(err).Str("order_id", orderContext.OrderID).Msg("Order processing chain failed, SAGA compensation triggered")
		span.RecordError(err)
		span.SetStatus(codes.Error, "Order processing failed in chain")

		// 补偿不受请求超时和取消的影响
		orderContext.TriggerCompensation(tracing.Detach(ctx))
		ordersPlacedTotal.WithLabelValues(placementResult(err)).Inc()
		return nil, err
	}

	ordersPlacedTotal.WithLabelValues("ok").Inc()
	logger.Ctx(ctx).Info().
		Str("order_id", orderContext.OrderID).
		Str("total", orderContext.Order.TotalAmount.String()).
		Msg("Order placed, status is now PENDING_PAYMENT")
	return orderContext.Order, nil
}

// CancelOrder 按状态机取消订单。提交之后才派发 OrderCancelled，归还库存是异步的。
func (s *OrderApplicationService) CancelOrder(ctx context.Context, orderID, reason string) (*domain.Order, error) {
	ctx, span := s.tracer.Start(ctx, "app.CancelOrder", trace.WithAttributes(attribute.String("order.id", orderID)))
	defer span.End()

	order, err := s.mutate(ctx, orderID, func(o *domain.Order) (bool, error) {
		if err := o.Cancel(reason); err != nil {
			return false, err
		}
		return true, nil
	})
	if err != nil {
		span.RecordError(err)
		return nil, err
	}
	orderTransitionsTotal.WithLabelValues("cancel", string(domain.StateCancelled)).Inc()
	return order, nil
}

// UpdateOrderStatus 是管理端入口：不受迁移图约束，但终态订单只记审计。
// 进入 CANCELLED / REFUNDED 时同样在提交后派发 OrderCancelled。
func (s *OrderApplicationService) UpdateOrderStatus(ctx context.Context, orderID string, state domain.State, note string) (*domain.Order, error) {
	ctx, span := s.tracer.Start(ctx, "app.UpdateOrderStatus", trace.WithAttributes(
		attribute.String("order.id", orderID),
		attribute.String("order.target_state", string(state)),
	))
	defer span.End()

	order, err := s.mutate(ctx, orderID, func(o *domain.Order) (bool, error) {
		changed, err := o.ForceState(state, note)
		if err != nil {
			return false, err
		}
		if !changed {
			logger.Ctx(ctx).Info().Str("order_id", o.ID).Str("state", string(o.State)).Msg("Status unchanged, audit entry appended")
		}
		return changed && state.ReleasesStock(), nil
	})
	if err != nil {
		span.RecordError(err)
		return nil, err
	}
	orderTransitionsTotal.WithLabelValues("admin", string(order.State)).Inc()
	return order, nil
}

func (s *OrderApplicationService) GetOrder(ctx context.Context, orderID string) (*domain.Order, error) {
	ctx, span := s.tracer.Start(ctx, "app.GetOrder", trace.WithAttributes(attribute.String("order.id", orderID)))
	defer span.End()
	return s.orderRepo.FindByID(ctx, orderID)
}

// mutate 读取-修改-按版本保存；版本冲突时重新读取并重新判断。
// change 返回 true 表示这次修改需要归还库存。
func (s *OrderApplicationService) mutate(ctx context.Context, orderID string, change func(o *domain.Order) (bool, error)) (*domain.Order, error) {
	var out *domain.Order
	err := s.versionRetry.DoNotify(ctx, func(ctx context.Context) error {
		return s.transactor.WithinTransaction(ctx, func(txCtx context.Context) error {
			o, err := s.orderRepo.FindByID(txCtx, orderID)
			if err != nil {
				return err
			}
			release, err := change(o)
			if err != nil {
				return err
			}
			if err := s.orderRepo.Update(txCtx, o); err != nil {
				return err
			}
			if release {
				database.AfterCommit(txCtx, func(ctx context.Context) {
					s.publishCancelled(ctx, o)
				})
			}
			out = o
			return nil
		})
	}, func(err error, attempt int, wait time.Duration) {
		logger.Ctx(ctx).Info().Err(err).Str("order_id", orderID).Int("attempt", attempt).Dur("wait", wait).Msg("Order changed concurrently, retrying")
	})
	return out, err
}

func (s *OrderApplicationService) publishCancelled(ctx context.Context, o *domain.Order) {
	lines := make([]events.Line, 0, len(o.Items))
	for _, it := range o.Items {
		lines = append(lines, events.Line{ProductID: it.ProductID, VariantID: it.VariantID, Quantity: it.Quantity})
	}
	ev := events.OrderCancelled{
		OrderID:    o.ID,
		Reason:     o.History[len(o.History)-1].Note,
		Lines:      lines,
		OccurredAt: time.Now(),
	}
	if err := s.dispatcher.Dispatch(ctx, ev); err != nil {
		logger.Ctx(ctx).Warn().Err(err).Str("order_id", o.ID).Msg("OrderCancelled not dispatched, handed to recovery")
	}
}

func (s *OrderApplicationService) buildChain() saga.Handler {
	orderProcessingChain := new(saga.ConsolidateHandler)
	orderProcessingChain.
		SetNext(new(saga.AvailabilityHandler)).
		SetNext(new(saga.InventoryHandler)).
		SetNext(new(saga.PricingHandler)).
		SetNext(saga.NewCreateOrderHandler(s.orderRepo, s.transactor))

	return orderProcessingChain
}

func isInsufficient(err error) bool { return errors.Is(err, port.ErrInsufficientStock) }

func isSystem(err error) bool { return errors.Is(err, domain.ErrSystem) }

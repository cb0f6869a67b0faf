package saga

import (
	"context"
	"fmt"
	"time"

	"inventory-core/internal/pkg/database"
	"inventory-core/internal/pkg/events"
	"inventory-core/internal/pkg/logger"
	"inventory-core/internal/service/order/domain"
	"inventory-core/internal/service/order/domain/port"

	"go.opentelemetry.io/otel/codes"
)

// CreateOrderHandler 负责在一个单元工作内持久化订单；提交之后才发布库存变化事件。
type CreateOrderHandler struct {
	NextHandler
	repo       domain.OrderRepository
	transactor database.Transactor
}

func NewCreateOrderHandler(repo domain.OrderRepository, transactor database.Transactor) *CreateOrderHandler {
	return &CreateOrderHandler{repo: repo, transactor: transactor}
}

func (h *CreateOrderHandler) Handle(orderCtx *OrderContext) error {
	ctx, span := orderCtx.Tracer.Start(orderCtx.Ctx, "saga.CreateOrder")
	defer span.End()

	order := orderCtx.Order
	err := h.transactor.WithinTransaction(ctx, func(txCtx context.Context) error {
		if err := h.repo.Create(txCtx, order); err != nil {
			return err
		}
		database.AfterCommit(txCtx, func(ctx context.Context) {
			publishReservations(ctx, orderCtx.Dispatcher, order)
		})
		return nil
	})
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "order persistence failed")
		return fmt.Errorf("%w: persist order %s: %v", domain.ErrSystem, order.ID, err)
	}

	span.AddEvent("Pending payment order saved to DB.")
	return h.executeNext(orderCtx)
}

// publishReservations 每行一个 StockChanged，驱动聚合同步。派发失败已由 dispatcher 转入恢复台账。
func publishReservations(ctx context.Context, dispatcher port.EventDispatcher, order *domain.Order) {
	now := time.Now()
	for _, it := range order.Items {
		ev := events.StockChanged{
			ProductID:  it.ProductID,
			VariantID:  it.VariantID,
			Delta:      -it.Quantity,
			Reason:     events.ReasonOrderPlaced,
			OccurredAt: now,
		}
		if err := dispatcher.Dispatch(ctx, ev); err != nil {
			logger.Ctx(ctx).Warn().Err(err).Str("order_id", order.ID).Str("variant_id", it.VariantID).Msg("StockChanged not dispatched")
		}
	}
}

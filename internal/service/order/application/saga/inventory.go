package saga

import (
	"context"
	"errors"
	"fmt"
	"time"

	"inventory-core/internal/pkg/events"
	"inventory-core/internal/pkg/idempotency"
	"inventory-core/internal/pkg/logger"
	"inventory-core/internal/service/order/domain"
	"inventory-core/internal/service/order/domain/port"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

// InventoryHandler 负责库存预占步骤：逐行原子扣减，每成功一行就压入对应的补偿。
type InventoryHandler struct {
	NextHandler
}

func (h *InventoryHandler) Handle(orderCtx *OrderContext) error {
	ctx, span := orderCtx.Tracer.Start(orderCtx.Ctx, "saga.InventoryReserve")
	defer span.End()

	// 栈底：所有归还完成之后，为每个涉及的 product 触发一次重算
	touched := make(map[string]string)
	orderCtx.AddCompensation(func(compCtx context.Context) {
		resyncTouchedProducts(compCtx, orderCtx, touched)
	})

	for _, l := range orderCtx.Lines {
		line := l
		span.AddEvent("reserve", trace.WithAttributes(
			attribute.String("variant.id", line.VariantID),
			attribute.Int("quantity", line.Quantity),
		))

		if err := orderCtx.InventoryService.ReserveStock(ctx, line.VariantID, line.Quantity); err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, "Inventory reservation failed")
			return asSystemError(err)
		}

		touched[orderCtx.Catalog[line.VariantID].ProductID] = line.VariantID
		orderCtx.AddCompensation(func(compCtx context.Context) {
			releaseReservation(compCtx, orderCtx, line)
		})
	}

	span.AddEvent("All items reserved successfully")
	return h.executeNext(orderCtx)
}

// asSystemError 库存端口的业务错误原样返回，存储故障、超时等一律归为 ErrSystem。
func asSystemError(err error) error {
	switch {
	case errors.Is(err, port.ErrInsufficientStock),
		errors.Is(err, port.ErrVariantNotFound),
		errors.Is(err, port.ErrProductInactive),
		errors.Is(err, domain.ErrSystem):
		return err
	default:
		return fmt.Errorf("%w: %w", domain.ErrSystem, err)
	}
}

// releaseReservation 归还一行预占。先抢 compensate:{orderID}:{variantID}，
// 保证同一笔预占最多归还一次；归还失败时放掉 key 以便重试。
func releaseReservation(ctx context.Context, orderCtx *OrderContext, line Line) {
	ctx, span := orderCtx.Tracer.Start(ctx, "saga.compensation.ReleaseStock")
	defer span.End()
	span.SetAttributes(attribute.String("variant.id", line.VariantID), attribute.Int("quantity", line.Quantity))

	key := idempotency.CompensateKey(orderCtx.OrderID, line.VariantID)
	won, err := orderCtx.Guard.Acquire(ctx, key)
	if err != nil {
		span.RecordError(err)
		logger.Ctx(ctx).Error().Err(err).Str("key", key).Msg("🚨 CRITICAL: cannot claim compensation key, stock stays reserved")
		return
	}
	if !won {
		logger.Ctx(ctx).Info().Str("key", key).Msg("Reservation already released, skipping")
		return
	}

	if err := orderCtx.InventoryService.ReleaseStock(ctx, line.VariantID, line.Quantity); err != nil {
		span.RecordError(err)
		logger.Ctx(ctx).Error().Err(err).
			Str("order_id", orderCtx.OrderID).
			Str("variant_id", line.VariantID).
			Int("quantity", line.Quantity).
			Msg("🚨 CRITICAL: failed to release reserved stock")
		if rerr := orderCtx.Guard.Release(ctx, key); rerr != nil {
			logger.Ctx(ctx).Error().Err(rerr).Str("key", key).Msg("Failed to release compensation key")
		}
	}
}

func resyncTouchedProducts(ctx context.Context, orderCtx *OrderContext, touched map[string]string) {
	for productID, variantID := range touched {
		ev := events.StockChanged{
			ProductID:  productID,
			VariantID:  variantID,
			Delta:      0,
			Reason:     events.ReasonCompensation,
			OccurredAt: time.Now(),
		}
		if err := orderCtx.Dispatcher.Dispatch(ctx, ev); err != nil {
			logger.Ctx(ctx).Warn().Err(err).Str("product_id", productID).Msg("Resync after compensation not dispatched")
		}
	}
}

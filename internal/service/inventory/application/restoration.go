package application

import (
	"context"
	"fmt"
	"time"

	"inventory-core/internal/pkg/eventbus"
	"inventory-core/internal/pkg/events"
	"inventory-core/internal/pkg/idempotency"
	"inventory-core/internal/pkg/logger"
	"inventory-core/internal/service/inventory/domain"
	"inventory-core/internal/service/inventory/domain/port"
)

// RestorationHandler 订阅 OrderCancelled，把订单占用的库存还回去。
// 每一行用 restore:{orderID}:{variantID} 去重，取消后再退款也只会归还一次。
type RestorationHandler struct {
	stock      *StockService
	guard      idempotency.Guard
	recovery   domain.RecoveryRepository
	dispatcher port.EventDispatcher
}

func NewRestorationHandler(stock *StockService, guard idempotency.Guard, recovery domain.RecoveryRepository, dispatcher port.EventDispatcher) *RestorationHandler {
	return &RestorationHandler{stock: stock, guard: guard, recovery: recovery, dispatcher: dispatcher}
}

func (h *RestorationHandler) HandleOrderCancelled(ctx context.Context, ev eventbus.Event) error {
	cancelled, ok := ev.(events.OrderCancelled)
	if !ok {
		return fmt.Errorf("restoration handler: unexpected event %T", ev)
	}

	for _, line := range cancelled.Lines {
		restored, err := RestoreLine(ctx, h.stock, h.guard, cancelled.OrderID, line.VariantID, line.Quantity)
		if err != nil {
			logger.Ctx(ctx).Error().Err(err).
				Str("order_id", cancelled.OrderID).
				Str("variant_id", line.VariantID).
				Msg("Stock restoration failed, writing recovery record")
			rec := &domain.RecoveryRecord{
				Kind:        domain.KindStockRestore,
				ProductID:   line.ProductID,
				VariantID:   line.VariantID,
				OrderID:     cancelled.OrderID,
				Quantity:    line.Quantity,
				Reason:      domain.ReasonRecoveryExhausted,
				ErrorDetail: err.Error(),
			}
			if cerr := h.recovery.Create(ctx, rec); cerr != nil {
				logger.Ctx(ctx).Error().Err(cerr).Str("order_id", cancelled.OrderID).Msg("🚨 CRITICAL: failed to persist restore record")
			} else {
				recoveryRecordsCreatedTotal.WithLabelValues(string(rec.Kind), rec.Reason).Inc()
			}
			continue
		}
		if !restored {
			continue
		}

		_ = h.dispatcher.Dispatch(ctx, events.StockChanged{
			ProductID:  line.ProductID,
			VariantID:  line.VariantID,
			Delta:      line.Quantity,
			Reason:     events.ReasonRestored,
			OccurredAt: time.Now(),
		})
	}
	return nil
}

// RestoreLine 抢到幂等 key 后归还库存；false 表示之前已经归还过。
// 归还失败时释放 key，让后续重试（清扫任务）还能再来。
func RestoreLine(ctx context.Context, stock *StockService, guard idempotency.Guard, orderID, variantID string, qty int) (bool, error) {
	key := idempotency.RestoreKey(orderID, variantID)
	won, err := guard.Acquire(ctx, key)
	if err != nil {
		return false, err
	}
	if !won {
		logger.Ctx(ctx).Info().Str("key", key).Msg("Stock already restored, skipping")
		return false, nil
	}

	if _, err := stock.AddStockAtomic(ctx, variantID, qty); err != nil {
		if rerr := guard.Release(ctx, key); rerr != nil {
			logger.Ctx(ctx).Error().Err(rerr).Str("key", key).Msg("Failed to release restore key")
		}
		return false, err
	}
	return true, nil
}

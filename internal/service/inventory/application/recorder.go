package application

import (
	"context"

	"inventory-core/internal/pkg/eventbus"
	"inventory-core/internal/pkg/events"
	"inventory-core/internal/pkg/logger"
	"inventory-core/internal/service/inventory/domain"

	"github.com/pkg/errors"
)

// RecoveryRecorder 把 dispatcher 拒绝的事件落到恢复台账，保证背压时不丢工作。
type RecoveryRecorder struct {
	recovery domain.RecoveryRepository
}

func NewRecoveryRecorder(recovery domain.RecoveryRepository) *RecoveryRecorder {
	return &RecoveryRecorder{recovery: recovery}
}

// RecordRejected 符合 eventbus.RejectHandler 签名。
func (r *RecoveryRecorder) RecordRejected(ctx context.Context, ev eventbus.Event, cause error) {
	reason := domain.ReasonDispatchRejected
	if errors.Is(cause, eventbus.ErrStopped) {
		reason = domain.ReasonDispatcherStopped
	}

	var records []*domain.RecoveryRecord
	switch e := ev.(type) {
	case events.StockChanged:
		records = append(records, &domain.RecoveryRecord{
			Kind:        domain.KindAggregateSync,
			ProductID:   e.ProductID,
			VariantID:   e.VariantID,
			Reason:      reason,
			ErrorDetail: cause.Error(),
		})
	case events.OrderCancelled:
		for _, line := range e.Lines {
			records = append(records, &domain.RecoveryRecord{
				Kind:        domain.KindStockRestore,
				ProductID:   line.ProductID,
				VariantID:   line.VariantID,
				OrderID:     e.OrderID,
				Quantity:    line.Quantity,
				Reason:      reason,
				ErrorDetail: cause.Error(),
			})
		}
	default:
		logger.Ctx(ctx).Warn().Str("event", ev.EventName()).Msg("Rejected event has no recovery mapping, dropped")
		return
	}

	for _, rec := range records {
		if err := r.recovery.Create(ctx, rec); err != nil {
			logger.Ctx(ctx).Error().Err(err).
				Str("event", ev.EventName()).
				Str("product_id", rec.ProductID).
				Str("variant_id", rec.VariantID).
				Msg("🚨 CRITICAL: failed to persist recovery record for rejected event")
			continue
		}
		recoveryRecordsCreatedTotal.WithLabelValues(string(rec.Kind), rec.Reason).Inc()
	}
}

// internal/service/inventory/application/stock_service.go
package application

import (
	"context"
	"time"

	"inventory-core/internal/pkg/database"
	"inventory-core/internal/pkg/events"
	"inventory-core/internal/pkg/logger"
	"inventory-core/internal/service/inventory/domain"
	"inventory-core/internal/service/inventory/domain/port"

	"github.com/pkg/errors"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

// StockService 是唯一允许修改 variant 库存的地方。
// ReduceStockAtomic / AddStockAtomic 不发布事件，由调用方在提交之后发布。
type StockService struct {
	variants   domain.VariantRepository
	dispatcher port.EventDispatcher
	tracer     trace.Tracer
}

func NewStockService(variants domain.VariantRepository, dispatcher port.EventDispatcher, tracer trace.Tracer) *StockService {
	return &StockService{variants: variants, dispatcher: dispatcher, tracer: tracer}
}

// ReduceStockAtomic 在库存足够时扣减 qty，返回扣减后的 variant。
// 未开启库存跟踪的 variant 直接成功且不做修改。
func (s *StockService) ReduceStockAtomic(ctx context.Context, variantID string, qty int) (*domain.Variant, error) {
	return s.mutate(ctx, "reduce", variantID, qty, s.variants.DecrementIfAvailable)
}

// AddStockAtomic 无条件增加库存，用于补偿、退货入库和人工补货。
func (s *StockService) AddStockAtomic(ctx context.Context, variantID string, qty int) (*domain.Variant, error) {
	return s.mutate(ctx, "add", variantID, qty, s.variants.Increment)
}

func (s *StockService) mutate(ctx context.Context, op, variantID string, qty int,
	fn func(ctx context.Context, id string, qty int) (*domain.Variant, error)) (*domain.Variant, error) {

	ctx, span := s.tracer.Start(ctx, "StockService."+op, trace.WithAttributes(
		attribute.String("variant.id", variantID),
		attribute.Int("quantity", qty),
	))
	defer span.End()

	if qty <= 0 {
		stockMutationsTotal.WithLabelValues(op, "invalid").Inc()
		return nil, domain.ErrInvalidQuantity
	}

	v, err := fn(ctx, variantID, qty)
	if err != nil {
		result := "error"
		switch {
		case errors.Is(err, domain.ErrInsufficientStock):
			result = "insufficient"
		case errors.Is(err, domain.ErrVariantNotFound):
			result = "not_found"
		default:
			span.RecordError(err)
			span.SetStatus(codes.Error, err.Error())
		}
		stockMutationsTotal.WithLabelValues(op, result).Inc()
		return nil, err
	}

	stockMutationsTotal.WithLabelValues(op, "ok").Inc()
	span.SetAttributes(attribute.Int("variant.quantity", v.Quantity), attribute.Int64("variant.version", v.Version))
	return v, nil
}

// AdjustStock 是人工调整库存的入口：delta 为正补货、为负扣减，提交后发布 StockChanged。
func (s *StockService) AdjustStock(ctx context.Context, variantID string, delta int) (*domain.Variant, error) {
	var (
		v   *domain.Variant
		err error
	)
	switch {
	case delta > 0:
		v, err = s.AddStockAtomic(ctx, variantID, delta)
	case delta < 0:
		v, err = s.ReduceStockAtomic(ctx, variantID, -delta)
	default:
		return nil, domain.ErrInvalidQuantity
	}
	if err != nil {
		return nil, err
	}

	ev := events.StockChanged{
		ProductID:  v.ProductID,
		VariantID:  v.ID,
		Delta:      delta,
		Reason:     events.ReasonManual,
		OccurredAt: time.Now(),
	}
	database.AfterCommit(ctx, func(ctx context.Context) {
		if err := s.dispatcher.Dispatch(ctx, ev); err != nil {
			logger.Ctx(ctx).Warn().Err(err).Str("variant_id", v.ID).Msg("StockChanged not dispatched, handed to recovery")
		}
	})
	return v, nil
}

// internal/service/inventory/application/synchronizer.go
package application

import (
	"context"
	"fmt"
	"time"

	"inventory-core/internal/pkg/eventbus"
	"inventory-core/internal/pkg/events"
	"inventory-core/internal/pkg/logger"
	"inventory-core/internal/pkg/retry"
	"inventory-core/internal/service/inventory/domain"

	"github.com/pkg/errors"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

// AggregateSynchronizer 订阅 StockChanged，把 product 的汇总字段重新算一遍。
// 它永远不会把失败传回给下单流程：重试用尽后写入恢复台账，交给清扫任务。
type AggregateSynchronizer struct {
	variants domain.VariantRepository
	products domain.ProductRepository
	recovery domain.RecoveryRepository
	policy   retry.Policy
	tracer   trace.Tracer
}

func NewAggregateSynchronizer(
	variants domain.VariantRepository,
	products domain.ProductRepository,
	recovery domain.RecoveryRepository,
	policy retry.Policy,
	tracer trace.Tracer,
) *AggregateSynchronizer {
	return &AggregateSynchronizer{
		variants: variants,
		products: products,
		recovery: recovery,
		policy:   policy.WithRetryable(func(err error) bool { return errors.Is(err, domain.ErrVersionConflict) }),
		tracer:   tracer,
	}
}

// HandleStockChanged 是 dispatcher 的订阅函数，总是返回 nil。
func (s *AggregateSynchronizer) HandleStockChanged(ctx context.Context, ev eventbus.Event) error {
	changed, ok := ev.(events.StockChanged)
	if !ok {
		return fmt.Errorf("aggregate synchronizer: unexpected event %T", ev)
	}

	err := s.SyncProduct(ctx, changed.ProductID)
	if err == nil {
		return nil
	}
	if errors.Is(err, domain.ErrProductNotFound) {
		logger.Ctx(ctx).Error().Str("product_id", changed.ProductID).Msg("Stock changed for unknown product, nothing to sync")
		return nil
	}

	logger.Ctx(ctx).Warn().Err(err).
		Str("product_id", changed.ProductID).
		Str("variant_id", changed.VariantID).
		Msg("Aggregate sync exhausted retries, writing recovery record")

	rec := &domain.RecoveryRecord{
		Kind:        domain.KindAggregateSync,
		ProductID:   changed.ProductID,
		VariantID:   changed.VariantID,
		Reason:      domain.ReasonRecoveryExhausted,
		ErrorDetail: err.Error(),
	}
	if cerr := s.recovery.Create(ctx, rec); cerr != nil {
		logger.Ctx(ctx).Error().Err(cerr).Str("product_id", changed.ProductID).Msg("Failed to write recovery record")
		return nil
	}
	recoveryRecordsCreatedTotal.WithLabelValues(string(rec.Kind), rec.Reason).Inc()
	return nil
}

// SyncProduct 在版本冲突时按重试策略重算，其它错误直接返回。
func (s *AggregateSynchronizer) SyncProduct(ctx context.Context, productID string) error {
	ctx, span := s.tracer.Start(ctx, "AggregateSynchronizer.SyncProduct",
		trace.WithAttributes(attribute.String("product.id", productID)))
	defer span.End()

	err := s.policy.DoNotify(ctx, func(ctx context.Context) error {
		return s.recompute(ctx, productID)
	}, func(err error, attempt int, _ time.Duration) {
		span.AddEvent("version conflict, retrying", trace.WithAttributes(attribute.Int("attempt", attempt)))
	})

	if err != nil {
		aggregateSyncsTotal.WithLabelValues("failed").Inc()
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return err
	}
	aggregateSyncsTotal.WithLabelValues("ok").Inc()
	return nil
}

// recompute 读 product 和它的全部 variant，按读到的版本号条件写入。
func (s *AggregateSynchronizer) recompute(ctx context.Context, productID string) error {
	product, err := s.products.FindByID(ctx, productID)
	if err != nil {
		return err
	}
	variants, err := s.variants.FindByProductID(ctx, productID)
	if err != nil {
		return err
	}

	agg := domain.ComputeAggregates(variants)
	if product.Matches(agg) {
		return nil
	}
	_, err = s.products.UpdateAggregates(ctx, productID, product.Version, agg)
	return err
}

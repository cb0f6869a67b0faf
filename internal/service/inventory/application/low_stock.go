package application

import (
	"context"
	"fmt"

	"inventory-core/internal/pkg/eventbus"
	"inventory-core/internal/pkg/events"
	"inventory-core/internal/pkg/logger"
	"inventory-core/internal/service/inventory/domain"
)

// LowStockMonitor 在每次库存变化后评估告警规则，命中时打 warn 日志并计数。
type LowStockMonitor struct {
	variants domain.VariantRepository
	rule     domain.LowStockRule
}

func NewLowStockMonitor(variants domain.VariantRepository, rule domain.LowStockRule) *LowStockMonitor {
	return &LowStockMonitor{variants: variants, rule: rule}
}

func (m *LowStockMonitor) HandleStockChanged(ctx context.Context, ev eventbus.Event) error {
	changed, ok := ev.(events.StockChanged)
	if !ok {
		return fmt.Errorf("low stock monitor: unexpected event %T", ev)
	}
	// 只关心库存减少
	if changed.Delta >= 0 {
		return nil
	}

	v, err := m.variants.FindByID(ctx, changed.VariantID)
	if err != nil {
		return err
	}
	hit, err := m.rule.Evaluate(v)
	if err != nil {
		return err
	}
	if hit {
		lowStockAlertsTotal.WithLabelValues(v.ProductID).Inc()
		logger.Ctx(ctx).Warn().
			Str("product_id", v.ProductID).
			Str("variant_id", v.ID).
			Str("sku", v.SKU).
			Int("quantity", v.Quantity).
			Int("threshold", v.LowStockThreshold).
			Msg("Low stock")
	}
	return nil
}

package saga

import (
	"fmt"

	"inventory-core/internal/service/order/domain"

	"go.opentelemetry.io/otel/attribute"
)

// ConsolidateHandler 把同一个 variant 的多行合并成一行，数量相加，顺序按首次出现。
type ConsolidateHandler struct {
	NextHandler
}

func (h *ConsolidateHandler) Handle(orderCtx *OrderContext) error {
	_, span := orderCtx.Tracer.Start(orderCtx.Ctx, "saga.Consolidate")
	defer span.End()

	if len(orderCtx.Lines) == 0 {
		return fmt.Errorf("%w: no items", domain.ErrInvalidOrder)
	}

	index := make(map[string]int, len(orderCtx.Lines))
	merged := make([]Line, 0, len(orderCtx.Lines))
	for _, l := range orderCtx.Lines {
		if l.VariantID == "" || l.Quantity <= 0 {
			return fmt.Errorf("%w: bad line %q x %d", domain.ErrInvalidOrder, l.VariantID, l.Quantity)
		}
		if i, ok := index[l.VariantID]; ok {
			merged[i].Quantity += l.Quantity
			continue
		}
		index[l.VariantID] = len(merged)
		merged = append(merged, l)
	}

	span.SetAttributes(attribute.Int("lines.requested", len(orderCtx.Lines)), attribute.Int("lines.merged", len(merged)))
	orderCtx.Lines = merged
	return h.executeNext(orderCtx)
}

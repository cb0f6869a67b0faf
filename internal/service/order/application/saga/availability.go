package saga

import (
	"fmt"

	"inventory-core/internal/service/order/domain/port"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
)

// AvailabilityHandler 读取每个 variant 的目录信息，拒绝下架商品和不存在的 variant。
// 这里不判断库存，库存是否足够只由原子扣减决定。
type AvailabilityHandler struct {
	NextHandler
}

func (h *AvailabilityHandler) Handle(orderCtx *OrderContext) error {
	ctx, span := orderCtx.Tracer.Start(orderCtx.Ctx, "saga.Availability")
	defer span.End()

	orderCtx.Catalog = make(map[string]*port.CatalogItem, len(orderCtx.Lines))
	for _, l := range orderCtx.Lines {
		item, err := orderCtx.InventoryService.LookupVariant(ctx, l.VariantID)
		if err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, "variant lookup failed")
			return asSystemError(err)
		}
		if !item.ProductActive {
			span.SetAttributes(attribute.String("product.inactive", item.ProductID))
			return fmt.Errorf("%w: %s", port.ErrProductInactive, item.ProductID)
		}
		orderCtx.Catalog[l.VariantID] = item
	}
	return h.executeNext(orderCtx)
}

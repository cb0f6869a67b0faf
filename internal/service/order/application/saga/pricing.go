package saga

import (
	"inventory-core/internal/service/order/domain"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
)

// PricingHandler 用 variant 记录上的价格生成订单行快照，并算出订单总额。
// 客户端传来的价格一律不信任。
type PricingHandler struct {
	NextHandler
}

func (h *PricingHandler) Handle(orderCtx *OrderContext) error {
	_, span := orderCtx.Tracer.Start(orderCtx.Ctx, "saga.Pricing")
	defer span.End()

	items := make([]domain.OrderItem, 0, len(orderCtx.Lines))
	for _, l := range orderCtx.Lines {
		c := orderCtx.Catalog[l.VariantID]
		items = append(items, domain.OrderItem{
			ProductID: c.ProductID,
			VariantID: c.VariantID,
			SKU:       c.SKU,
			UnitPrice: c.Price,
			Quantity:  l.Quantity,
		})
	}

	order, err := domain.NewOrder(orderCtx.OrderID, orderCtx.UserID, items)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "order snapshot failed")
		return err
	}
	orderCtx.Order = order

	span.SetAttributes(attribute.String("order.total", order.TotalAmount.String()))
	return h.executeNext(orderCtx)
}

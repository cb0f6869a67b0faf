// internal/service/order/application/dto.go
package application

import "inventory-core/internal/service/order/application/saga"

// PlaceOrderLine 是下单请求中的一行。价格不在请求里，由服务端从 variant 记录读取。
type PlaceOrderLine struct {
	VariantID string `json:"variantId"`
	Quantity  int    `json:"quantity"`
}

// PlaceOrderRequest 是下单用例的输入数据，HTTP 和 Kafka 两个入口共用。
type PlaceOrderRequest struct {
	UserID string           `json:"userId"`
	Items  []PlaceOrderLine `json:"items"`
}

func (req *PlaceOrderRequest) sagaLines() []saga.Line {
	lines := make([]saga.Line, 0, len(req.Items))
	for _, it := range req.Items {
		lines = append(lines, saga.Line{VariantID: it.VariantID, Quantity: it.Quantity})
	}
	return lines
}

// internal/pkg/events/events.go
package events

import "time"

const (
	NameStockChanged   = "inventory.stock_changed"
	NameOrderCancelled = "order.cancelled"
)

// StockChanged 表示某个 variant 的库存已经（持久化地）发生了变化。
// 它只存在于 dispatcher 的队列里，不落库。
type StockChanged struct {
	ProductID  string    `json:"productId"`
	VariantID  string    `json:"variantId"`
	Delta      int       `json:"delta"` // 有符号变化量；0 表示仅触发一次重算
	Reason     string    `json:"reason,omitempty"`
	OccurredAt time.Time `json:"occurredAt"`
}

func (StockChanged) EventName() string { return NameStockChanged }

// Line 是取消订单时需要归还的一行库存。
type Line struct {
	ProductID string `json:"productId"`
	VariantID string `json:"variantId"`
	Quantity  int    `json:"quantity"`
}

// OrderCancelled 在订单进入 CANCELLED / REFUNDED 且已提交之后发布，
// 订阅者据此异步归还库存。
type OrderCancelled struct {
	OrderID    string    `json:"orderId"`
	Reason     string    `json:"reason,omitempty"`
	Lines      []Line    `json:"lines"`
	OccurredAt time.Time `json:"occurredAt"`
}

func (OrderCancelled) EventName() string { return NameOrderCancelled }

// Reasons carried on StockChanged.
const (
	ReasonOrderPlaced  = "order_placed"
	ReasonCompensation = "compensation"
	ReasonRestored     = "restored"
	ReasonManual       = "manual_adjustment"
)

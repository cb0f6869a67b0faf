// internal/service/inventory/domain/variant.go
package domain

import (
	"time"

	"github.com/shopspring/decimal"
)

// Attribute 是 variant 上的一个规格，例如 color=red。
type Attribute struct {
	Name  string `json:"name"`
	Value string `json:"value"`
}

// Variant 是可售卖的最小单位，也是库存记账的单位（Stock Ledger 的一行）。
// Quantity 只能通过 StockService 修改；TrackStock 为 false 时不扣减库存。
type Variant struct {
	ID                string
	ProductID         string
	SKU               string
	Price             decimal.Decimal
	Quantity          int
	TrackStock        bool
	LowStockThreshold int
	Attributes        []Attribute
	Version           int64 // 每次库存变更 +1
	CreatedAt         time.Time
	UpdatedAt         time.Time
}

// CanFulfil 在不修改任何状态的前提下判断库存是否足够。
func (v *Variant) CanFulfil(qty int) bool {
	return !v.TrackStock || v.Quantity >= qty
}

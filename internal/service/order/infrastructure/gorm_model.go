package infrastructure

import (
	"time"

	"github.com/shopspring/decimal"
	"gorm.io/gorm"
)

// OrderModel 对应数据库中的 orders 表
type OrderModel struct {
	ID           string          `gorm:"primaryKey;size:64"`
	UserID       string          `gorm:"index;size:64;not null"`
	State        string          `gorm:"size:32;not null"`
	TotalAmount  decimal.Decimal `gorm:"type:decimal(12,2);not null"`
	CancelReason string          `gorm:"size:255"`
	Version      int64           `gorm:"not null;default:0"`
	CreatedAt    time.Time
	UpdatedAt    time.Time

	Items   []OrderItemModel   `gorm:"foreignKey:OrderID"`
	History []StatusChangeModel `gorm:"foreignKey:OrderID"`
}

func (OrderModel) TableName() string {
	return "orders"
}

// OrderItemModel 对应 order_item 表，下单后不再修改
type OrderItemModel struct {
	ID        uint            `gorm:"primaryKey"`
	OrderID   string          `gorm:"index;size:64;not null"`
	Line      int             `gorm:"not null"`
	ProductID string          `gorm:"size:64;not null"`
	VariantID string          `gorm:"size:64;not null"`
	SKU       string          `gorm:"size:64"`
	UnitPrice decimal.Decimal `gorm:"type:decimal(12,2);not null"`
	Quantity  int             `gorm:"not null"`
}

func (OrderItemModel) TableName() string {
	return "order_item"
}

// StatusChangeModel 对应 order_status_history 表，只追加
type StatusChangeModel struct {
	ID        uint   `gorm:"primaryKey"`
	OrderID   string `gorm:"uniqueIndex:idx_order_seq;size:64;not null"`
	Seq       int    `gorm:"uniqueIndex:idx_order_seq;not null"`
	FromState string `gorm:"size:32"`
	ToState   string `gorm:"size:32;not null"`
	Note      string `gorm:"size:255"`
	At        time.Time
}

func (StatusChangeModel) TableName() string {
	return "order_status_history"
}

// AutoMigrate 创建订单相关的表
func AutoMigrate(db *gorm.DB) error {
	return db.AutoMigrate(&OrderModel{}, &OrderItemModel{}, &StatusChangeModel{})
}

package infrastructure

import (
	"time"

	"inventory-core/internal/service/inventory/domain"

	"github.com/shopspring/decimal"
	"gorm.io/gorm"
)

// VariantModel 对应数据库中的 product_variant 表
type VariantModel struct {
	ID                string          `gorm:"primaryKey;size:64"`
	ProductID         string          `gorm:"index;size:64;not null"`
	SKU               string          `gorm:"uniqueIndex;size:64;not null"`
	Price             decimal.Decimal `gorm:"type:decimal(12,2);not null"`
	Quantity          int             `gorm:"not null;default:0"`
	TrackStock        bool            `gorm:"not null"`
	LowStockThreshold int             `gorm:"not null;default:0"`
	Attributes        string          `gorm:"type:text"` // JSON 数组
	Version           int64           `gorm:"not null;default:0"`
	CreatedAt         time.Time
	UpdatedAt         time.Time
}

func (VariantModel) TableName() string {
	return "product_variant"
}

// ProductModel 对应数据库中的 product 表
type ProductModel struct {
	ID             string          `gorm:"primaryKey;size:64"`
	Slug           string          `gorm:"uniqueIndex;size:128"`
	Name           string          `gorm:"size:255"`
	BasePrice      decimal.Decimal `gorm:"type:decimal(12,2)"`
	Discount       decimal.Decimal `gorm:"type:decimal(5,2)"`
	CompareAtPrice decimal.Decimal `gorm:"type:decimal(12,2)"`
	TotalStock     int
	MinPrice       decimal.Decimal `gorm:"type:decimal(12,2)"`
	MaxPrice       decimal.Decimal `gorm:"type:decimal(12,2)"`
	Active         bool            `gorm:"not null"`
	Version        int64           `gorm:"not null;default:0"`
	CreatedAt      time.Time
	UpdatedAt      time.Time
}

func (ProductModel) TableName() string {
	return "product"
}

// RecoveryRecordModel 对应数据库中的 recovery_record 表
type RecoveryRecordModel struct {
	ID          uint64              `gorm:"primaryKey;autoIncrement"`
	Kind        domain.RecoveryKind `gorm:"size:32;not null"`
	ProductID   string              `gorm:"index;size:64"`
	VariantID   string              `gorm:"size:64"`
	OrderID     string              `gorm:"size:64"`
	Quantity    int
	Restored    bool   `gorm:"not null;default:false"`
	Reason      string `gorm:"size:64"`
	ErrorDetail string `gorm:"type:text"`
	Resolved    bool   `gorm:"index;not null;default:false"`
	Attempts    int    `gorm:"not null;default:0"`
	CreatedAt   time.Time
	UpdatedAt   time.Time
	ResolvedAt  *time.Time
}

func (RecoveryRecordModel) TableName() string {
	return "recovery_record"
}

// AutoMigrate 建表，只在开发环境或首次部署时使用。
func AutoMigrate(db *gorm.DB) error {
	return db.AutoMigrate(&ProductModel{}, &VariantModel{}, &RecoveryRecordModel{})
}

package port

import (
	"context"
	"errors"

	"github.com/shopspring/decimal"
)

var (
	ErrInsufficientStock = errors.New("insufficient stock")
	ErrVariantNotFound   = errors.New("variant not found")
	ErrProductInactive   = errors.New("product is not active")
)

// CatalogItem 是下单需要的 variant 与其所属 product 的只读视图。
type CatalogItem struct {
	ProductID     string
	VariantID     string
	SKU           string
	Price         decimal.Decimal
	ProductActive bool
}

// InventoryService 是库存服务的出站端口。
type InventoryService interface {
	// LookupVariant 读取 variant 及 product 的上架状态，找不到时返回 ErrVariantNotFound。
	LookupVariant(ctx context.Context, variantID string) (*CatalogItem, error)

	// ReserveStock 原子地扣减库存，不足时返回 ErrInsufficientStock，不会部分扣减。
	ReserveStock(ctx context.Context, variantID string, qty int) error

	// ReleaseStock 是 ReserveStock 的补偿操作。
	ReleaseStock(ctx context.Context, variantID string, qty int) error
}

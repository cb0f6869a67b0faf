package adapter

import (
	"context"
	"fmt"

	invapp "inventory-core/internal/service/inventory/application"
	invdomain "inventory-core/internal/service/inventory/domain"
	"inventory-core/internal/service/order/domain/port"

	"github.com/pkg/errors"
)

// InventoryLocalAdapter 实现了 port.InventoryService 接口，直接调用同进程的库存应用服务。
type InventoryLocalAdapter struct {
	stock *invapp.StockService
	query *invapp.QueryService
}

func NewInventoryLocalAdapter(stock *invapp.StockService, query *invapp.QueryService) *InventoryLocalAdapter {
	return &InventoryLocalAdapter{stock: stock, query: query}
}

func (a *InventoryLocalAdapter) LookupVariant(ctx context.Context, variantID string) (*port.CatalogItem, error) {
	v, p, err := a.query.GetVariantWithProduct(ctx, variantID)
	if err != nil {
		return nil, translate(err, variantID)
	}
	return &port.CatalogItem{
		ProductID:     p.ID,
		VariantID:     v.ID,
		SKU:           v.SKU,
		Price:         v.Price,
		ProductActive: p.Active,
	}, nil
}

func (a *InventoryLocalAdapter) ReserveStock(ctx context.Context, variantID string, qty int) error {
	_, err := a.stock.ReduceStockAtomic(ctx, variantID, qty)
	return translate(err, variantID)
}

func (a *InventoryLocalAdapter) ReleaseStock(ctx context.Context, variantID string, qty int) error {
	_, err := a.stock.AddStockAtomic(ctx, variantID, qty)
	return translate(err, variantID)
}

// translate 把库存领域的错误映射成订单端口的错误，其他错误原样包装。
func translate(err error, variantID string) error {
	switch {
	case err == nil:
		return nil
	case errors.Is(err, invdomain.ErrInsufficientStock):
		return fmt.Errorf("%w: %s", port.ErrInsufficientStock, variantID)
	case errors.Is(err, invdomain.ErrVariantNotFound), errors.Is(err, invdomain.ErrProductNotFound):
		return fmt.Errorf("%w: %s", port.ErrVariantNotFound, variantID)
	case errors.Is(err, invdomain.ErrProductInactive):
		return fmt.Errorf("%w: %s", port.ErrProductInactive, variantID)
	default:
		return errors.Wrapf(err, "inventory call for %s", variantID)
	}
}

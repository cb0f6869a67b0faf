package application

import (
	"context"

	"inventory-core/internal/service/inventory/domain"
)

// ProductView 是 product 加上它的全部 variant。
type ProductView struct {
	Product  *domain.Product
	Variants []*domain.Variant
}

// QueryService 只读查询，供 HTTP 接口和订单服务的可用性检查使用。
type QueryService struct {
	variants domain.VariantRepository
	products domain.ProductRepository
}

func NewQueryService(variants domain.VariantRepository, products domain.ProductRepository) *QueryService {
	return &QueryService{variants: variants, products: products}
}

func (q *QueryService) GetProduct(ctx context.Context, productID string) (*ProductView, error) {
	p, err := q.products.FindByID(ctx, productID)
	if err != nil {
		return nil, err
	}
	vs, err := q.variants.FindByProductID(ctx, productID)
	if err != nil {
		return nil, err
	}
	return &ProductView{Product: p, Variants: vs}, nil
}

func (q *QueryService) GetVariantWithProduct(ctx context.Context, variantID string) (*domain.Variant, *domain.Product, error) {
	v, err := q.variants.FindByID(ctx, variantID)
	if err != nil {
		return nil, nil, err
	}
	p, err := q.products.FindByID(ctx, v.ProductID)
	if err != nil {
		return nil, nil, err
	}
	return v, p, nil
}

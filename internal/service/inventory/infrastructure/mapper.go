package infrastructure

import (
	"encoding/json"

	"inventory-core/internal/service/inventory/domain"
)

// ToDomainVariant 将数据库模型转换为领域模型
func ToDomainVariant(m *VariantModel) *domain.Variant {
	if m == nil {
		return nil
	}
	var attrs []domain.Attribute
	if m.Attributes != "" {
		// 属性是目录侧维护的，格式不对时忽略即可，不影响库存
		_ = json.Unmarshal([]byte(m.Attributes), &attrs)
	}
	return &domain.Variant{
		ID:                m.ID,
		ProductID:         m.ProductID,
		SKU:               m.SKU,
		Price:             m.Price,
		Quantity:          m.Quantity,
		TrackStock:        m.TrackStock,
		LowStockThreshold: m.LowStockThreshold,
		Attributes:        attrs,
		Version:           m.Version,
		CreatedAt:         m.CreatedAt,
		UpdatedAt:         m.UpdatedAt,
	}
}

// FromDomainVariant 用于插入（测试数据、初始化脚本）
func FromDomainVariant(v *domain.Variant) *VariantModel {
	if v == nil {
		return nil
	}
	attrs := ""
	if len(v.Attributes) > 0 {
		b, _ := json.Marshal(v.Attributes)
		attrs = string(b)
	}
	return &VariantModel{
		ID:                v.ID,
		ProductID:         v.ProductID,
		SKU:               v.SKU,
		Price:             v.Price,
		Quantity:          v.Quantity,
		TrackStock:        v.TrackStock,
		LowStockThreshold: v.LowStockThreshold,
		Attributes:        attrs,
		Version:           v.Version,
	}
}

func ToDomainProduct(m *ProductModel) *domain.Product {
	if m == nil {
		return nil
	}
	return &domain.Product{
		ID:             m.ID,
		Slug:           m.Slug,
		Name:           m.Name,
		BasePrice:      m.BasePrice,
		Discount:       m.Discount,
		CompareAtPrice: m.CompareAtPrice,
		TotalStock:     m.TotalStock,
		MinPrice:       m.MinPrice,
		MaxPrice:       m.MaxPrice,
		Active:         m.Active,
		Version:        m.Version,
		CreatedAt:      m.CreatedAt,
		UpdatedAt:      m.UpdatedAt,
	}
}

func FromDomainProduct(p *domain.Product) *ProductModel {
	if p == nil {
		return nil
	}
	return &ProductModel{
		ID:             p.ID,
		Slug:           p.Slug,
		Name:           p.Name,
		BasePrice:      p.BasePrice,
		Discount:       p.Discount,
		CompareAtPrice: p.CompareAtPrice,
		TotalStock:     p.TotalStock,
		MinPrice:       p.MinPrice,
		MaxPrice:       p.MaxPrice,
		Active:         p.Active,
		Version:        p.Version,
	}
}

func ToDomainRecovery(m *RecoveryRecordModel) *domain.RecoveryRecord {
	if m == nil {
		return nil
	}
	return &domain.RecoveryRecord{
		ID:          m.ID,
		Kind:        m.Kind,
		ProductID:   m.ProductID,
		VariantID:   m.VariantID,
		OrderID:     m.OrderID,
		Quantity:    m.Quantity,
		Restored:    m.Restored,
		Reason:      m.Reason,
		ErrorDetail: m.ErrorDetail,
		Resolved:    m.Resolved,
		Attempts:    m.Attempts,
		CreatedAt:   m.CreatedAt,
		UpdatedAt:   m.UpdatedAt,
		ResolvedAt:  m.ResolvedAt,
	}
}

func FromDomainRecovery(r *domain.RecoveryRecord) *RecoveryRecordModel {
	if r == nil {
		return nil
	}
	return &RecoveryRecordModel{
		ID:          r.ID,
		Kind:        r.Kind,
		ProductID:   r.ProductID,
		VariantID:   r.VariantID,
		OrderID:     r.OrderID,
		Quantity:    r.Quantity,
		Restored:    r.Restored,
		Reason:      r.Reason,
		ErrorDetail: r.ErrorDetail,
		Resolved:    r.Resolved,
		Attempts:    r.Attempts,
		ResolvedAt:  r.ResolvedAt,
	}
}

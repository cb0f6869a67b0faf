package infrastructure

import (
	"inventory-core/internal/service/order/domain"
)

func FromDomainOrder(o *domain.Order) *OrderModel {
	m := &OrderModel{
		ID:           o.ID,
		UserID:       o.UserID,
		State:        string(o.State),
		TotalAmount:  o.TotalAmount,
		CancelReason: o.CancelReason,
		Version:      o.Version,
		CreatedAt:    o.CreatedAt,
		UpdatedAt:    o.UpdatedAt,
		Items:        make([]OrderItemModel, 0, len(o.Items)),
		History:      fromDomainHistory(o.ID, o.History, 0),
	}
	for i, it := range o.Items {
		m.Items = append(m.Items, OrderItemModel{
			OrderID:   o.ID,
			Line:      i,
			ProductID: it.ProductID,
			VariantID: it.VariantID,
			SKU:       it.SKU,
			UnitPrice: it.UnitPrice,
			Quantity:  it.Quantity,
		})
	}
	return m
}

// fromDomainHistory 转换 history[from:]，Seq 保持在整个历史中的下标。
func fromDomainHistory(orderID string, history []domain.StatusChange, from int) []StatusChangeModel {
	if from >= len(history) {
		return nil
	}
	out := make([]StatusChangeModel, 0, len(history)-from)
	for i := from; i < len(history); i++ {
		h := history[i]
		out = append(out, StatusChangeModel{
			OrderID:   orderID,
			Seq:       i,
			FromState: string(h.From),
			ToState:   string(h.To),
			Note:      h.Note,
			At:        h.At,
		})
	}
	return out
}

// ToDomainOrder 要求 Items 按 Line、History 按 Seq 排好序
func ToDomainOrder(m *OrderModel) *domain.Order {
	o := &domain.Order{
		ID:           m.ID,
		UserID:       m.UserID,
		State:        domain.State(m.State),
		TotalAmount:  m.TotalAmount,
		CancelReason: m.CancelReason,
		Version:      m.Version,
		CreatedAt:    m.CreatedAt,
		UpdatedAt:    m.UpdatedAt,
		Items:        make([]domain.OrderItem, 0, len(m.Items)),
		History:      make([]domain.StatusChange, 0, len(m.History)),
	}
	for _, it := range m.Items {
		o.Items = append(o.Items, domain.OrderItem{
			ProductID: it.ProductID,
			VariantID: it.VariantID,
			SKU:       it.SKU,
			UnitPrice: it.UnitPrice,
			Quantity:  it.Quantity,
		})
	}
	for _, h := range m.History {
		o.History = append(o.History, domain.StatusChange{
			From: domain.State(h.FromState),
			To:   domain.State(h.ToState),
			Note: h.Note,
			At:   h.At,
		})
	}
	return o
}

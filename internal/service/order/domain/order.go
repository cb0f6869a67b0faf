// internal/service/order/domain/order.go
package domain

import (
	"fmt"
	"time"

	"github.com/shopspring/decimal"
)

// OrderItem 是下单时刻的商品快照，单价取自 variant 记录而不是客户端。
type OrderItem struct {
	ProductID string
	VariantID string
	SKU       string
	UnitPrice decimal.Decimal
	Quantity  int
}

func (i OrderItem) Subtotal() decimal.Decimal {
	return i.UnitPrice.Mul(decimal.NewFromInt(int64(i.Quantity)))
}

// StatusChange 是一条状态历史。From == To 表示仅追加的审计记录。
type StatusChange struct {
	From State
	To   State
	Note string
	At   time.Time
}

// Order 是订单聚合的根实体
type Order struct {
	ID           string
	UserID       string
	State        State
	Items        []OrderItem
	TotalAmount  decimal.Decimal
	CancelReason string
	History      []StatusChange
	Version      int64
	CreatedAt    time.Time
	UpdatedAt    time.Time
}

// 工厂函数: NewOrder 创建一个处于 PENDING_PAYMENT 的订单（库存已经占好）。
func NewOrder(id, userID string, items []OrderItem) (*Order, error) {
	if id == "" || userID == "" || len(items) == 0 {
		return nil, fmt.Errorf("%w: id, user and items are required", ErrInvalidOrder)
	}

	total := decimal.Zero
	for _, it := range items {
		if it.Quantity <= 0 {
			return nil, fmt.Errorf("%w: quantity of %s must be positive", ErrInvalidOrder, it.VariantID)
		}
		total = total.Add(it.Subtotal())
	}

	now := time.Now()
	return &Order{
		ID:          id,
		UserID:      userID,
		State:       StatePendingPayment,
		Items:       items,
		TotalAmount: total,
		History:     []StatusChange{{To: StatePendingPayment, Note: "order placed", At: now}},
		CreatedAt:   now,
		UpdatedAt:   now,
	}, nil
}

// Cancel 按状态机取消订单；SHIPPED 及之后的订单不能取消。
func (o *Order) Cancel(reason string) error {
	if !o.State.CanTransitionTo(StateCancelled) {
		return fmt.Errorf("%w: cannot cancel order in %s", ErrInvalidStateTransition, o.State)
	}
	o.CancelReason = reason
	o.move(StateCancelled, reason)
	return nil
}

// ForceState 是管理端的状态修改，绕过迁移图，但终态订单只追加审计记录。
// 返回 true 表示状态确实发生了变化。
func (o *Order) ForceState(next State, note string) (bool, error) {
	if !next.Valid() {
		return false, fmt.Errorf("%w: %q", ErrUnknownState, next)
	}
	if o.State.IsTerminal() {
		o.audit(fmt.Sprintf("ignored change to %s on terminal order: %s", next, note))
		return false, nil
	}
	if o.State == next {
		o.audit(note)
		return false, nil
	}
	if next == StateCancelled && o.CancelReason == "" {
		o.CancelReason = note
	}
	o.move(next, note)
	return true, nil
}

func (o *Order) move(next State, note string) {
	now := time.Now()
	o.History = append(o.History, StatusChange{From: o.State, To: next, Note: note, At: now})
	o.State = next
	o.UpdatedAt = now
}

func (o *Order) audit(note string) {
	now := time.Now()
	o.History = append(o.History, StatusChange{From: o.State, To: o.State, Note: note, At: now})
	o.UpdatedAt = now
}

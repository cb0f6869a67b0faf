// internal/service/order/domain/state.go
package domain

// State 定义了订单的生命周期状态
type State string

const (
	StatePendingPayment State = "PENDING_PAYMENT" // 已占库存，等待支付
	StateProcessing     State = "PROCESSING"      // 已支付，仓库处理中
	StateShipped        State = "SHIPPED"         // 已发货
	StateDelivered      State = "DELIVERED"       // 已签收
	StateCancelled      State = "CANCELLED"       // 已取消
	StateRefunded       State = "REFUNDED"        // 已退款
)

// transitions 是受保护的状态迁移图；终态没有出边。
var transitions = map[State][]State{
	StatePendingPayment: {StateProcessing, StateCancelled, StateRefunded},
	StateProcessing:     {StateShipped, StateCancelled, StateRefunded},
	StateShipped:        {StateDelivered, StateRefunded},
}

// Valid 报告 s 是否是已知状态。
func (s State) Valid() bool {
	switch s {
	case StatePendingPayment, StateProcessing, StateShipped, StateDelivered, StateCancelled, StateRefunded:
		return true
	}
	return false
}

// IsTerminal 终态订单除了审计记录之外不可再修改。
func (s State) IsTerminal() bool {
	return s == StateDelivered || s == StateCancelled || s == StateRefunded
}

// ReleasesStock 进入这些状态时需要归还订单占用的库存。
func (s State) ReleasesStock() bool {
	return s == StateCancelled || s == StateRefunded
}

func (s State) CanTransitionTo(next State) bool {
	for _, t := range transitions[s] {
		if t == next {
			return true
		}
	}
	return false
}

// internal/service/order/domain/repository.go
package domain

import "context"

// OrderRepository 定义了订单聚合的持久化接口。
// 它位于领域层，但由基础设施层实现。
type OrderRepository interface {
	// Create 插入一个新订单及其明细和初始历史。
	Create(ctx context.Context, order *Order) error

	// FindByID 根据 ID 查找一个订单聚合，找不到时返回 ErrOrderNotFound。
	FindByID(ctx context.Context, id string) (*Order, error)

	// Update 以 order.Version 为条件保存状态、取消原因和新增的历史记录。
	// 成功后 order.Version 加一；版本不一致返回 ErrVersionConflict。
	Update(ctx context.Context, order *Order) error
}

package domain

import "context"

// VariantRepository 是库存账本。DecrementIfAvailable / Increment 必须是存储层的
// 单条原子操作，不能在应用层先读后写。
type VariantRepository interface {
	FindByID(ctx context.Context, id string) (*Variant, error)
	FindByProductID(ctx context.Context, productID string) ([]*Variant, error)
	// DecrementIfAvailable 仅在 quantity >= qty 时扣减；未跟踪库存的 variant 原样返回。
	DecrementIfAvailable(ctx context.Context, id string, qty int) (*Variant, error)
	Increment(ctx context.Context, id string, qty int) (*Variant, error)
}

type ProductRepository interface {
	FindByID(ctx context.Context, id string) (*Product, error)
	// UpdateAggregates 以 expectedVersion 为条件写入汇总字段，版本不符返回 ErrVersionConflict。
	UpdateAggregates(ctx context.Context, id string, expectedVersion int64, agg Aggregates) (*Product, error)
}

type RecoveryRepository interface {
	Create(ctx context.Context, rec *RecoveryRecord) error
	FindUnresolved(ctx context.Context, limit int) ([]*RecoveryRecord, error)
	MarkResolved(ctx context.Context, ids []uint64) error
	// MarkRestored 记录 STOCK_RESTORE 的归还步骤已经完成。
	MarkRestored(ctx context.Context, id uint64) error
	// MarkFailed 递增 attempts 并覆盖 error detail。
	MarkFailed(ctx context.Context, ids []uint64, detail string) error
}

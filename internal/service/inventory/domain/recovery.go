package domain

import "time"

// RecoveryKind 决定清扫任务如何重放一条记录。
type RecoveryKind string

const (
	// KindAggregateSync 只需要重算 product 的汇总字段。
	KindAggregateSync RecoveryKind = "AGGREGATE_SYNC"
	// KindStockRestore 需要先归还库存（幂等），再重算汇总。
	KindStockRestore RecoveryKind = "STOCK_RESTORE"
)

// 记录产生的原因。
const (
	ReasonRecoveryExhausted = "RECOVERY_EXHAUSTED"
	ReasonDispatchRejected  = "DISPATCH_REJECTED"
	ReasonDispatcherStopped = "DISPATCHER_STOPPED"
)

// RecoveryRecord 是持久化的待办：一次没能完成的一致性工作。
// 记录只会被标记为已解决，从不删除。
type RecoveryRecord struct {
	ID          uint64
	Kind        RecoveryKind
	ProductID   string
	VariantID   string
	OrderID     string // 仅 STOCK_RESTORE
	Quantity    int    // 仅 STOCK_RESTORE
	Restored    bool   // 库存已经归还，之后的清扫只需要重算
	Reason      string
	ErrorDetail string
	Resolved    bool
	Attempts    int
	CreatedAt   time.Time
	UpdatedAt   time.Time
	ResolvedAt  *time.Time
}

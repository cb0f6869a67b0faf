package port

import "context"

// SweepLocker 保证同一时刻只有一个清扫任务在跑（进程内或跨实例）。
// TryLock 返回 false 表示别人正在跑，本轮跳过。
type SweepLocker interface {
	TryLock(ctx context.Context) (unlock func(), ok bool, err error)
}

package adapter

import (
	"context"
	"errors"
	"sync"

	"inventory-core/internal/pkg/logger"
	"inventory-core/internal/zookeeper"

	"github.com/go-zookeeper/zk"
)

// LocalSweepLocker 进程内互斥。
type LocalSweepLocker struct {
	mu sync.Mutex
}

func NewLocalSweepLocker() *LocalSweepLocker { return &LocalSweepLocker{} }

func (l *LocalSweepLocker) TryLock(context.Context) (func(), bool, error) {
	if !l.mu.TryLock() {
		return nil, false, nil
	}
	return l.mu.Unlock, true, nil
}

// ZKSweepLocker 先拿进程内锁，再拿 ZooKeeper 上的锁，保证多实例部署时只有一个实例在清扫。
type ZKSweepLocker struct {
	local    LocalSweepLocker
	conn     *zk.Conn
	resource string
}

func NewZKSweepLocker(conn *zk.Conn, resource string) *ZKSweepLocker {
	return &ZKSweepLocker{conn: conn, resource: resource}
}

func (l *ZKSweepLocker) TryLock(ctx context.Context) (func(), bool, error) {
	unlockLocal, ok, _ := l.local.TryLock(ctx)
	if !ok {
		return nil, false, nil
	}

	lock, err := zookeeper.NewDistributedLock(l.conn, l.resource)
	if err != nil {
		unlockLocal()
		return nil, false, err
	}
	if err := lock.TryLock(); err != nil {
		unlockLocal()
		if errors.Is(err, zookeeper.ErrLockHeld) {
			return nil, false, nil
		}
		return nil, false, err
	}

	return func() {
		if err := lock.Unlock(); err != nil {
			logger.Ctx(ctx).Warn().Err(err).Str("resource", l.resource).Msg("Failed to release sweep lock")
		}
		unlockLocal()
	}, true, nil
}

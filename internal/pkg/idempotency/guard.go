// internal/pkg/idempotency/guard.go
package idempotency

import (
	"context"
	"fmt"
	"sync"
	"time"
)

// Guard 记录某个副作用是否已经执行过。Acquire 返回 true 表示调用方赢得了这个 key，
// 应该去执行副作用；false 表示别人已经做过（或正在做）。
type Guard interface {
	Acquire(ctx context.Context, key string) (bool, error)
	// Release 放弃一次 Acquire，用于副作用执行失败、需要允许重试的场景。
	Release(ctx context.Context, key string) error
}

// CompensateKey 下单失败时归还某个 variant 库存的 key。
func CompensateKey(orderID, variantID string) string {
	return fmt.Sprintf("compensate:%s:%s", orderID, variantID)
}

// RestoreKey 订单取消/退款后归还某个 variant 库存的 key。
func RestoreKey(orderID, variantID string) string {
	return fmt.Sprintf("restore:%s:%s", orderID, variantID)
}

// memorySweepEvery 每这么多次 Acquire 清理一次过期 key。
const memorySweepEvery = 256

// MemoryGuard 进程内实现，单实例部署和测试用。
type MemoryGuard struct {
	ttl time.Duration
	now func() time.Time

	mu       sync.Mutex
	keys     map[string]time.Time
	acquires int
}

// NewMemoryGuard ttl <= 0 表示永不过期。
func NewMemoryGuard(ttl time.Duration) *MemoryGuard {
	return &MemoryGuard{ttl: ttl, now: time.Now, keys: make(map[string]time.Time)}
}

func (g *MemoryGuard) Acquire(_ context.Context, key string) (bool, error) {
	g.mu.Lock()
	defer g.mu.Unlock()

	now := g.now()
	g.acquires++
	if g.ttl > 0 && g.acquires%memorySweepEvery == 0 {
		g.sweep(now)
	}
	if exp, ok := g.keys[key]; ok && (exp.IsZero() || now.Before(exp)) {
		return false, nil
	}
	var exp time.Time
	if g.ttl > 0 {
		exp = now.Add(g.ttl)
	}
	g.keys[key] = exp
	return true, nil
}

func (g *MemoryGuard) sweep(now time.Time) {
	for k, exp := range g.keys {
		if !exp.IsZero() && !now.Before(exp) {
			delete(g.keys, k)
		}
	}
}

func (g *MemoryGuard) Release(_ context.Context, key string) error {
	g.mu.Lock()
	delete(g.keys, key)
	g.mu.Unlock()
	return nil
}

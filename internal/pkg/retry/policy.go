// internal/pkg/retry/policy.go
package retry

import (
	"context"
	"time"

	"github.com/cenkalti/backoff/v4"
)

// Policy 描述一次有界的指数退避重试。
type Policy struct {
	MaxAttempts     int           `yaml:"maxAttempts"`
	InitialInterval time.Duration `yaml:"initialInterval"`
	MaxInterval     time.Duration `yaml:"maxInterval"`
	Multiplier      float64       `yaml:"multiplier"`

	// Retryable 决定某个错误是否值得重试；为 nil 时所有错误都重试。
	Retryable func(error) bool `yaml:"-"`
}

// DefaultPolicy 3 次尝试，50ms 起步翻倍。
func DefaultPolicy() Policy {
	return Policy{
		MaxAttempts:     3,
		InitialInterval: 50 * time.Millisecond,
		MaxInterval:     time.Second,
		Multiplier:      2,
	}
}

// WithRetryable 返回一个只在 fn 为真时重试的副本。
func (p Policy) WithRetryable(fn func(error) bool) Policy {
	p.Retryable = fn
	return p
}

func (p Policy) backOff(ctx context.Context) backoff.BackOff {
	eb := backoff.NewExponentialBackOff()
	eb.InitialInterval = p.InitialInterval
	if eb.InitialInterval <= 0 {
		eb.InitialInterval = DefaultPolicy().InitialInterval
	}
	if p.MaxInterval > 0 {
		eb.MaxInterval = p.MaxInterval
	}
	if p.Multiplier > 1 {
		eb.Multiplier = p.Multiplier
	}
	// 总时长只由尝试次数约束
	eb.MaxElapsedTime = 0
	eb.Reset()

	attempts := p.MaxAttempts
	if attempts < 1 {
		attempts = 1
	}
	return backoff.WithContext(backoff.WithMaxRetries(eb, uint64(attempts-1)), ctx)
}

// Do 执行 op，直到成功、遇到不可重试的错误、次数用尽或 ctx 结束。
// 返回的是最后一次的原始错误（不是 backoff 的包装）。
func (p Policy) Do(ctx context.Context, op func(ctx context.Context) error) error {
	return p.DoNotify(ctx, op, nil)
}

// DoNotify 同 Do，每次失败且即将重试前调用 notify。
func (p Policy) DoNotify(ctx context.Context, op func(ctx context.Context) error, notify func(err error, attempt int, wait time.Duration)) error {
	attempt := 0
	operation := func() error {
		attempt++
		err := op(ctx)
		if err == nil {
			return nil
		}
		if p.Retryable != nil && !p.Retryable(err) {
			return backoff.Permanent(err)
		}
		return err
	}

	var n backoff.Notify
	if notify != nil {
		n = func(err error, wait time.Duration) { notify(err, attempt, wait) }
	}
	return backoff.RetryNotify(operation, p.backOff(ctx), n)
}

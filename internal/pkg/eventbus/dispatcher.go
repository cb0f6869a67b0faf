// internal/pkg/eventbus/dispatcher.go
package eventbus

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"inventory-core/internal/pkg/logger"
	"inventory-core/internal/pkg/tracing"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

var (
	// ErrDispatchRejected 表示 worker 池和队列都已满，事件被拒绝（背压）。
	ErrDispatchRejected = errors.New("eventbus: dispatch rejected, worker pool saturated")
	// ErrStopped 表示 dispatcher 已经关闭，不再接收事件。
	ErrStopped = errors.New("eventbus: dispatcher stopped")
)

// Event 是可以被投递的事件。
type Event interface {
	EventName() string
}

// Handler 处理一个事件。返回的错误只会被记录，不会重新投递，
// 需要重试的订阅者自己负责（例如聚合同步会落到恢复台账）。
type Handler func(ctx context.Context, ev Event) error

// RejectHandler 在事件被拒绝（或关停时未处理完）时调用，
// 调用方借此把工作转存到可恢复的地方，而不是直接丢弃。
type RejectHandler func(ctx context.Context, ev Event, cause error)

// Config 对应一个有界线程池：核心 worker 常驻，队列满了才扩容到 MaxWorkers，
// 扩出来的 worker 空闲 KeepAlive 后退出。
type Config struct {
	MinWorkers int           `yaml:"minWorkers"`
	MaxWorkers int           `yaml:"maxWorkers"`
	QueueSize  int           `yaml:"queueSize"`
	KeepAlive  time.Duration `yaml:"keepAlive"`
}

// DefaultConfig returns the pool sizing used in production.
func DefaultConfig() Config {
	return Config{MinWorkers: 10, MaxWorkers: 50, QueueSize: 100, KeepAlive: 60 * time.Second}
}

func (c Config) normalized() Config {
	d := DefaultConfig()
	if c.MinWorkers <= 0 {
		c.MinWorkers = d.MinWorkers
	}
	if c.MaxWorkers < c.MinWorkers {
		c.MaxWorkers = c.MinWorkers
	}
	if c.QueueSize <= 0 {
		c.QueueSize = d.QueueSize
	}
	if c.KeepAlive <= 0 {
		c.KeepAlive = d.KeepAlive
	}
	return c
}

type subscription struct {
	name    string
	handler Handler
}

type job struct {
	ctx context.Context
	ev  Event
}

// Dispatcher 是进程内唯一的异步边界。
type Dispatcher struct {
	cfg    Config
	tracer trace.Tracer

	mu       sync.RWMutex
	handlers map[string][]subscription
	onReject RejectHandler

	queue   chan job
	workers atomic.Int32
	pending atomic.Int64
	stopped atomic.Bool

	ctx       context.Context
	cancel    context.CancelFunc
	wg        sync.WaitGroup
	startOnce sync.Once
}

// NewDispatcher 创建 dispatcher；调用 Start 之前投递的事件会先进入队列。
func NewDispatcher(cfg Config, tracer trace.Tracer) *Dispatcher {
	cfg = cfg.normalized()
	ctx, cancel := context.WithCancel(context.Background())
	return &Dispatcher{
		cfg:      cfg,
		tracer:   tracer,
		handlers: make(map[string][]subscription),
		queue:    make(chan job, cfg.QueueSize),
		ctx:      ctx,
		cancel:   cancel,
	}
}

// Subscribe 注册一个事件处理器。name 只用于日志和指标。
func (d *Dispatcher) Subscribe(eventName, name string, h Handler) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.handlers[eventName] = append(d.handlers[eventName], subscription{name: name, handler: h})
}

// OnReject 设置拒绝回调。
func (d *Dispatcher) OnReject(h RejectHandler) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.onReject = h
}

// Start 启动核心 worker。
func (d *Dispatcher) Start(ctx context.Context) error {
	d.startOnce.Do(func() {
		for i := 0; i < d.cfg.MinWorkers; i++ {
			d.workers.Add(1)
			d.wg.Add(1)
			go d.worker(nil, true)
		}
		workersGauge.Set(float64(d.workers.Load()))
		logger.Ctx(ctx).Info().
			Int("min_workers", d.cfg.MinWorkers).
			Int("max_workers", d.cfg.MaxWorkers).
			Int("queue_size", d.cfg.QueueSize).
			Msg("✅ Event dispatcher started.")
	})
	return nil
}

// Dispatch 非阻塞地投递事件。调用方必须保证引起该事件的变更已经提交。
// 队列满且 worker 已达上限时返回 ErrDispatchRejected，并同步调用拒绝回调。
func (d *Dispatcher) Dispatch(ctx context.Context, ev Event) error {
	j := job{ctx: tracing.Detach(ctx), ev: ev}
	if d.stopped.Load() {
		d.reject(j, ErrStopped)
		return ErrStopped
	}

	d.pending.Add(1)
	select {
	case d.queue <- j:
		dispatchedTotal.WithLabelValues(ev.EventName()).Inc()
		queueDepthGauge.Set(float64(len(d.queue)))
		return nil
	default:
	}

	// 队列已满：尝试扩容一个 worker 直接承接这个任务
	if d.tryGrow(j) {
		dispatchedTotal.WithLabelValues(ev.EventName()).Inc()
		return nil
	}

	d.pending.Add(-1)
	d.reject(j, ErrDispatchRejected)
	return ErrDispatchRejected
}

func (d *Dispatcher) tryGrow(j job) bool {
	for {
		n := d.workers.Load()
		if int(n) >= d.cfg.MaxWorkers {
			return false
		}
		if d.workers.CompareAndSwap(n, n+1) {
			workersGauge.Set(float64(n + 1))
			d.wg.Add(1)
			go d.worker(&j, false)
			return true
		}
	}
}

func (d *Dispatcher) reject(j job, cause error) {
	rejectedTotal.WithLabelValues(j.ev.EventName()).Inc()
	logger.Ctx(j.ctx).Warn().
		Err(cause).
		Str("event", j.ev.EventName()).
		Int("queue_depth", len(d.queue)).
		Int32("workers", d.workers.Load()).
		Msg("Event dispatch rejected")

	d.mu.RLock()
	onReject := d.onReject
	d.mu.RUnlock()
	if onReject != nil {
		onReject(j.ctx, j.ev, cause)
	}
}

func (d *Dispatcher) worker(first *job, core bool) {
	defer d.wg.Done()
	defer func() { workersGauge.Set(float64(d.workers.Add(-1))) }()

	if first != nil {
		d.process(*first)
	}
	for {
		if core {
			select {
			case <-d.ctx.Done():
				return
			case j := <-d.queue:
				d.process(j)
			}
			continue
		}
		select {
		case <-d.ctx.Done():
			return
		case j := <-d.queue:
			d.process(j)
		case <-time.After(d.cfg.KeepAlive):
			return
		}
	}
}

func (d *Dispatcher) process(j job) {
	defer d.pending.Add(-1)
	queueDepthGauge.Set(float64(len(d.queue)))

	d.mu.RLock()
	subs := d.handlers[j.ev.EventName()]
	d.mu.RUnlock()

	for _, sub := range subs {
		d.invoke(j, sub)
	}
}

func (d *Dispatcher) invoke(j job, sub subscription) {
	ctx, span := d.tracer.Start(j.ctx, "eventbus."+j.ev.EventName(),
		trace.WithSpanKind(trace.SpanKindConsumer),
		trace.WithAttributes(attribute.String("eventbus.subscriber", sub.name)))
	defer span.End()

	defer func() {
		if r := recover(); r != nil {
			err := fmt.Errorf("panic in subscriber %s: %v", sub.name, r)
			handlerErrorsTotal.WithLabelValues(j.ev.EventName(), sub.name).Inc()
			span.RecordError(err)
			span.SetStatus(codes.Error, "subscriber panicked")
			logger.Ctx(ctx).Error().Err(err).Str("event", j.ev.EventName()).Msg("Subscriber panicked")
		}
	}()

	if err := sub.handler(ctx, j.ev); err != nil {
		handlerErrorsTotal.WithLabelValues(j.ev.EventName(), sub.name).Inc()
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		logger.Ctx(ctx).Error().Err(err).
			Str("event", j.ev.EventName()).
			Str("subscriber", sub.name).
			Msg("Subscriber failed")
	}
}

// Pending 返回已接收但尚未处理完的事件数。
func (d *Dispatcher) Pending() int64 { return d.pending.Load() }

// WorkerCount 返回当前 worker 数量。
func (d *Dispatcher) WorkerCount() int { return int(d.workers.Load()) }

// Drain 阻塞直到所有已接收的事件处理完毕，或 ctx 结束。
// 处理器内部再次投递的事件也会被等待。
func (d *Dispatcher) Drain(ctx context.Context) bool {
	for {
		if d.pending.Load() == 0 {
			return true
		}
		select {
		case <-ctx.Done():
			return false
		case <-time.After(10 * time.Millisecond):
		}
	}
}

// Stop 关闭入口、在 ctx 期限内排空队列，然后停止所有 worker。
// 期限内没处理完的事件交给拒绝回调，保证可恢复。
func (d *Dispatcher) Stop(ctx context.Context) {
	d.stopped.Store(true)
	if !d.Drain(ctx) {
		logger.Ctx(ctx).Warn().Int64("pending", d.pending.Load()).Msg("Event dispatcher drain timed out")
	}
	d.cancel()
	d.wg.Wait()

	for {
		select {
		case j := <-d.queue:
			d.pending.Add(-1)
			d.reject(j, ErrStopped)
		default:
			logger.Ctx(ctx).Info().Msg("✅ Event dispatcher stopped.")
			return
		}
	}
}

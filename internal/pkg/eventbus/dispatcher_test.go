package eventbus

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel/trace/noop"
)

type testEvent struct{ id int }

func (testEvent) EventName() string { return "test.event" }

func newTestDispatcher(min, max, queue int) *Dispatcher {
	return NewDispatcher(Config{MinWorkers: min, MaxWorkers: max, QueueSize: queue, KeepAlive: time.Minute},
		noop.NewTracerProvider().Tracer("test"))
}

func drain(t *testing.T, d *Dispatcher) {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	require.True(t, d.Drain(ctx), "dispatcher did not drain")
}

func TestDispatcher_DeliversToAllSubscribers(t *testing.T) {
	d := newTestDispatcher(2, 4, 10)
	var a, b atomic.Int32
	d.Subscribe("test.event", "a", func(ctx context.Context, ev Event) error { a.Add(1); return nil })
	d.Subscribe("test.event", "b", func(ctx context.Context, ev Event) error { b.Add(1); return nil })
	require.NoError(t, d.Start(context.Background()))
	defer d.Stop(context.Background())

	for i := 0; i < 5; i++ {
		require.NoError(t, d.Dispatch(context.Background(), testEvent{id: i}))
	}
	drain(t, d)

	assert.Equal(t, int32(5), a.Load())
	assert.Equal(t, int32(5), b.Load())
}

func TestDispatcher_GrowsThenRejectsWhenSaturated(t *testing.T) {
	d := newTestDispatcher(1, 2, 1)

	release := make(chan struct{})
	started := make(chan int, 10)
	d.Subscribe("test.event", "blocking", func(ctx context.Context, ev Event) error {
		started <- ev.(testEvent).id
		<-release
		return nil
	})

	var rejected []Event
	var mu sync.Mutex
	d.OnReject(func(ctx context.Context, ev Event, cause error) {
		mu.Lock()
		rejected = append(rejected, ev)
		mu.Unlock()
		assert.ErrorIs(t, cause, ErrDispatchRejected)
	})
	require.NoError(t, d.Start(context.Background()))

	// 1: 核心 worker 拿走并阻塞
	require.NoError(t, d.Dispatch(context.Background(), testEvent{id: 1}))
	<-started
	// 2: 进入队列
	require.NoError(t, d.Dispatch(context.Background(), testEvent{id: 2}))
	// 3: 队列满，扩容一个 worker 直接处理
	require.NoError(t, d.Dispatch(context.Background(), testEvent{id: 3}))
	assert.Equal(t, 2, d.WorkerCount())
	assert.Equal(t, 3, <-started)
	// 4: 队列满且 worker 已达上限
	err := d.Dispatch(context.Background(), testEvent{id: 4})
	assert.ErrorIs(t, err, ErrDispatchRejected)

	close(release)
	drain(t, d)
	d.Stop(context.Background())

	mu.Lock()
	defer mu.Unlock()
	require.Len(t, rejected, 1)
	assert.Equal(t, testEvent{id: 4}, rejected[0])
}

func TestDispatcher_SubscriberPanicDoesNotKillWorker(t *testing.T) {
	d := newTestDispatcher(1, 1, 10)
	var handled atomic.Int32
	d.Subscribe("test.event", "flaky", func(ctx context.Context, ev Event) error {
		if ev.(testEvent).id == 0 {
			panic("boom")
		}
		handled.Add(1)
		return nil
	})
	require.NoError(t, d.Start(context.Background()))
	defer d.Stop(context.Background())

	require.NoError(t, d.Dispatch(context.Background(), testEvent{id: 0}))
	require.NoError(t, d.Dispatch(context.Background(), testEvent{id: 1}))
	drain(t, d)

	assert.Equal(t, int32(1), handled.Load())
	assert.Equal(t, 1, d.WorkerCount())
}

func TestDispatcher_StopHandsLeftoversToRejectHandler(t *testing.T) {
	d := newTestDispatcher(1, 1, 10)
	var rejected atomic.Int32
	d.OnReject(func(ctx context.Context, ev Event, cause error) {
		assert.ErrorIs(t, cause, ErrStopped)
		rejected.Add(1)
	})

	// 没有 Start，事件只会停留在队列里
	for i := 0; i < 3; i++ {
		require.NoError(t, d.Dispatch(context.Background(), testEvent{id: i}))
	}

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	d.Stop(ctx)

	assert.Equal(t, int32(3), rejected.Load())
	assert.Equal(t, int64(0), d.Pending())

	err := d.Dispatch(context.Background(), testEvent{id: 9})
	assert.ErrorIs(t, err, ErrStopped)
	assert.Equal(t, int32(4), rejected.Load())
}

func TestDispatcher_DrainWaitsForNestedDispatch(t *testing.T) {
	d := newTestDispatcher(2, 2, 10)
	var second atomic.Bool
	d.Subscribe("test.event", "chain", func(ctx context.Context, ev Event) error {
		if ev.(testEvent).id == 1 {
			time.Sleep(20 * time.Millisecond)
			return d.Dispatch(ctx, testEvent{id: 2})
		}
		second.Store(true)
		return nil
	})
	require.NoError(t, d.Start(context.Background()))
	defer d.Stop(context.Background())

	require.NoError(t, d.Dispatch(context.Background(), testEvent{id: 1}))
	drain(t, d)
	assert.True(t, second.Load())
}

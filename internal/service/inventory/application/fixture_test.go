package application

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"inventory-core/internal/pkg/eventbus"
	"inventory-core/internal/pkg/idempotency"
	"inventory-core/internal/pkg/retry"
	"inventory-core/internal/service/inventory/domain"
	"inventory-core/internal/service/inventory/infrastructure"
	"inventory-core/internal/service/inventory/infrastructure/adapter"

	"github.com/shopspring/decimal"
	"go.opentelemetry.io/otel/trace/noop"
)

var testTracer = noop.NewTracerProvider().Tracer("test")

func fastPolicy() retry.Policy {
	return retry.Policy{MaxAttempts: 3, InitialInterval: time.Millisecond, MaxInterval: 2 * time.Millisecond, Multiplier: 2}
}

type recordingDispatcher struct {
	mu     sync.Mutex
	events []eventbus.Event
	err    error
}

func (d *recordingDispatcher) Dispatch(_ context.Context, ev eventbus.Event) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.events = append(d.events, ev)
	return d.err
}

func (d *recordingDispatcher) Events() []eventbus.Event {
	d.mu.Lock()
	defer d.mu.Unlock()
	return append([]eventbus.Event(nil), d.events...)
}

// flakyProducts 在 UpdateAggregates 上注入版本冲突。
type flakyProducts struct {
	domain.ProductRepository
	always    atomic.Bool
	conflicts atomic.Int32
	finds     atomic.Int32
	updates   atomic.Int32
}

func (f *flakyProducts) FindByID(ctx context.Context, id string) (*domain.Product, error) {
	f.finds.Add(1)
	return f.ProductRepository.FindByID(ctx, id)
}

func (f *flakyProducts) UpdateAggregates(ctx context.Context, id string, v int64, agg domain.Aggregates) (*domain.Product, error) {
	f.updates.Add(1)
	if f.always.Load() {
		return nil, domain.ErrVersionConflict
	}
	if f.conflicts.Load() > 0 {
		f.conflicts.Add(-1)
		return nil, domain.ErrVersionConflict
	}
	return f.ProductRepository.UpdateAggregates(ctx, id, v, agg)
}

type fixture struct {
	variants   *infrastructure.MemoryVariantRepository
	products   *flakyProducts
	recovery   *infrastructure.MemoryRecoveryRepository
	guard      *idempotency.MemoryGuard
	dispatcher *recordingDispatcher

	stock     *StockService
	sync      *AggregateSynchronizer
	scheduler *RecoveryScheduler
	recorder  *RecoveryRecorder
	restore   *RestorationHandler
}

func price(v int64) decimal.Decimal { return decimal.NewFromInt(v) }

// newFixture: product p1 有三个 variant（两个跟踪库存），p2 有一个。
func newFixture(t *testing.T) *fixture {
	t.Helper()
	f := &fixture{
		variants:   infrastructure.NewMemoryVariantRepository(),
		products:   &flakyProducts{ProductRepository: infrastructure.NewMemoryProductRepository()},
		recovery:   infrastructure.NewMemoryRecoveryRepository(),
		guard:      idempotency.NewMemoryGuard(0),
		dispatcher: &recordingDispatcher{},
	}
	f.products.ProductRepository.(*infrastructure.MemoryProductRepository).Seed(
		&domain.Product{ID: "p1", Slug: "tee", Name: "Tee", BasePrice: price(20), Active: true},
		&domain.Product{ID: "p2", Slug: "mug", Name: "Mug", BasePrice: price(8), Active: true},
	)
	f.variants.Seed(
		&domain.Variant{ID: "v1", ProductID: "p1", SKU: "TEE-S", Price: price(10), Quantity: 10, TrackStock: true, LowStockThreshold: 2},
		&domain.Variant{ID: "v2", ProductID: "p1", SKU: "TEE-M", Price: price(30), Quantity: 5, TrackStock: true},
		&domain.Variant{ID: "v3", ProductID: "p1", SKU: "TEE-DIGITAL", Price: price(1), Quantity: 0, TrackStock: false},
		&domain.Variant{ID: "v4", ProductID: "p2", SKU: "MUG", Price: price(8), Quantity: 3, TrackStock: true},
	)

	f.stock = NewStockService(f.variants, f.dispatcher, testTracer)
	f.sync = NewAggregateSynchronizer(f.variants, f.products, f.recovery, fastPolicy(), testTracer)
	f.scheduler = NewRecoveryScheduler(f.recovery, f.sync, f.stock, f.guard, adapter.NewLocalSweepLocker(),
		SchedulerConfig{Interval: time.Hour, BatchSize: 100, Concurrency: 2}, testTracer)
	f.recorder = NewRecoveryRecorder(f.recovery)
	f.restore = NewRestorationHandler(f.stock, f.guard, f.recovery, f.dispatcher)
	return f
}

func (f *fixture) product(t *testing.T, id string) *domain.Product {
	t.Helper()
	p, err := f.products.ProductRepository.FindByID(context.Background(), id)
	if err != nil {
		t.Fatalf("load product %s: %v", id, err)
	}
	return p
}

func (f *fixture) quantity(t *testing.T, id string) int {
	t.Helper()
	v, err := f.variants.FindByID(context.Background(), id)
	if err != nil {
		t.Fatalf("load variant %s: %v", id, err)
	}
	return v.Quantity
}

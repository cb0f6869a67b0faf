package application

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"inventory-core/internal/pkg/database"
	"inventory-core/internal/pkg/eventbus"
	"inventory-core/internal/pkg/events"
	"inventory-core/internal/pkg/idempotency"
	"inventory-core/internal/pkg/retry"
	invapp "inventory-core/internal/service/inventory/application"
	invdomain "inventory-core/internal/service/inventory/domain"
	invinfra "inventory-core/internal/service/inventory/infrastructure"
	invadapter "inventory-core/internal/service/inventory/infrastructure/adapter"
	"inventory-core/internal/service/order/domain"
	"inventory-core/internal/service/order/infrastructure"
	"inventory-core/internal/service/order/infrastructure/adapter"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel/trace/noop"
)

var testTracer = noop.NewTracerProvider().Tracer("test")

func fastPolicy() retry.Policy {
	return retry.Policy{MaxAttempts: 3, InitialInterval: time.Millisecond, MaxInterval: 2 * time.Millisecond, Multiplier: 2}
}

// failingOrders 让前 N 次 Create 失败，模拟数据库故障。
type failingOrders struct {
	*infrastructure.MemoryOrderRepository
	failCreates atomic.Int32
}

func (r *failingOrders) Create(ctx context.Context, o *domain.Order) error {
	if r.failCreates.Load() > 0 {
		r.failCreates.Add(-1)
		return errors.New("connection reset by peer")
	}
	return r.MemoryOrderRepository.Create(ctx, o)
}

type orderFixture struct {
	svc        *OrderApplicationService
	orders     *failingOrders
	variants   *invinfra.MemoryVariantRepository
	products   *invinfra.MemoryProductRepository
	recovery   *invinfra.MemoryRecoveryRepository
	guard      *idempotency.MemoryGuard
	dispatcher *eventbus.Dispatcher
	scheduler  *invapp.RecoveryScheduler
}

func money(s string) decimal.Decimal { return decimal.RequireFromString(s) }

// newOrderFixture 用真实的库存服务、dispatcher 和聚合同步器组装订单服务，存储全部在内存里。
//
//	p1 (上架): v1 qty 100 @12.50, v2 qty 3 @20
//	p2 (下架): v9 qty 10
//	p3 (上架): v5 qty 100 @5
//	p4 (上架): v6 qty 3 @7
func newOrderFixture(t *testing.T) *orderFixture {
	t.Helper()
	f := &orderFixture{
		orders:   &failingOrders{MemoryOrderRepository: infrastructure.NewMemoryOrderRepository()},
		variants: invinfra.NewMemoryVariantRepository(),
		products: invinfra.NewMemoryProductRepository(),
		recovery: invinfra.NewMemoryRecoveryRepository(),
		guard:    idempotency.NewMemoryGuard(0),
	}
	f.products.Seed(
		&invdomain.Product{ID: "p1", Slug: "tee", Name: "Tee", BasePrice: money("20"), Active: true,
			TotalStock: 103, MinPrice: money("12.50"), MaxPrice: money("20")},
		&invdomain.Product{ID: "p2", Slug: "retired", Name: "Retired", BasePrice: money("9"), Active: false, TotalStock: 10},
		&invdomain.Product{ID: "p3", Slug: "pen", Name: "Pen", BasePrice: money("5"), Active: true,
			TotalStock: 100, MinPrice: money("5"), MaxPrice: money("5")},
		&invdomain.Product{ID: "p4", Slug: "cap", Name: "Cap", BasePrice: money("7"), Active: true,
			TotalStock: 3, MinPrice: money("7"), MaxPrice: money("7")},
	)
	f.variants.Seed(
		&invdomain.Variant{ID: "v1", ProductID: "p1", SKU: "TEE-S", Price: money("12.50"), Quantity: 100, TrackStock: true},
		&invdomain.Variant{ID: "v2", ProductID: "p1", SKU: "TEE-M", Price: money("20"), Quantity: 3, TrackStock: true},
		&invdomain.Variant{ID: "v9", ProductID: "p2", SKU: "OLD", Price: money("9"), Quantity: 10, TrackStock: true},
		&invdomain.Variant{ID: "v5", ProductID: "p3", SKU: "PEN", Price: money("5"), Quantity: 100, TrackStock: true},
		&invdomain.Variant{ID: "v6", ProductID: "p4", SKU: "CAP", Price: money("7"), Quantity: 3, TrackStock: true},
	)

	f.dispatcher = eventbus.NewDispatcher(eventbus.DefaultConfig(), testTracer)
	stock := invapp.NewStockService(f.variants, f.dispatcher, testTracer)
	query := invapp.NewQueryService(f.variants, f.products)
	synchronizer := invapp.NewAggregateSynchronizer(f.variants, f.products, f.recovery, fastPolicy(), testTracer)
	restore := invapp.NewRestorationHandler(stock, f.guard, f.recovery, f.dispatcher)
	recorder := invapp.NewRecoveryRecorder(f.recovery)

	f.dispatcher.Subscribe(events.NameStockChanged, "aggregate-sync", synchronizer.HandleStockChanged)
	f.dispatcher.Subscribe(events.NameOrderCancelled, "stock-restore", restore.HandleOrderCancelled)
	f.dispatcher.OnReject(recorder.RecordRejected)
	require.NoError(t, f.dispatcher.Start(context.Background()))
	t.Cleanup(func() { f.dispatcher.Stop(context.Background()) })

	f.scheduler = invapp.NewRecoveryScheduler(f.recovery, synchronizer, stock, f.guard, invadapter.NewLocalSweepLocker(),
		invapp.SchedulerConfig{Interval: time.Hour, BatchSize: 100, Concurrency: 2}, testTracer)

	f.svc = NewOrderApplicationService(
		f.orders,
		database.NewMemoryTransactor(),
		adapter.NewInventoryLocalAdapter(stock, query),
		f.guard,
		f.dispatcher,
		fastPolicy(),
		5*time.Second,
		testTracer,
	)
	return f
}

// settle 等待 dispatcher 清空，然后跑一轮恢复清扫，等价于"在有界时间内收敛"。
func (f *orderFixture) settle(t *testing.T) {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	require.True(t, f.dispatcher.Drain(ctx), "dispatcher did not drain")
	_, err := f.scheduler.RetryFailedAggregateSyncs(ctx)
	require.NoError(t, err)
}

func (f *orderFixture) quantity(t *testing.T, variantID string) int {
	t.Helper()
	v, err := f.variants.FindByID(context.Background(), variantID)
	require.NoError(t, err)
	return v.Quantity
}

func (f *orderFixture) totalStock(t *testing.T, productID string) int {
	t.Helper()
	p, err := f.products.FindByID(context.Background(), productID)
	require.NoError(t, err)
	return p.TotalStock
}

func buy(userID string, lines ...PlaceOrderLine) *PlaceOrderRequest {
	return &PlaceOrderRequest{UserID: userID, Items: lines}
}

func line(variantID string, qty int) PlaceOrderLine {
	return PlaceOrderLine{VariantID: variantID, Quantity: qty}
}

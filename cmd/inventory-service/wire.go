package main

import (
	"context"

	"inventory-core/internal/pkg/bootstrap"
	"inventory-core/internal/pkg/database"
	"inventory-core/internal/pkg/eventbus"
	"inventory-core/internal/pkg/events"
	"inventory-core/internal/pkg/idempotency"
	"inventory-core/internal/pkg/logger"
	"inventory-core/internal/pkg/mq"
	"inventory-core/internal/pkg/redis"
	"inventory-core/internal/zookeeper"
	invapp "inventory-core/internal/service/inventory/application"
	invdomain "inventory-core/internal/service/inventory/domain"
	invport "inventory-core/internal/service/inventory/domain/port"
	invinfra "inventory-core/internal/service/inventory/infrastructure"
	invadapter "inventory-core/internal/service/inventory/infrastructure/adapter"
	"inventory-core/internal/service/inventory/infrastructure/rule"
	invhttp "inventory-core/internal/service/inventory/interfaces"
	orderapp "inventory-core/internal/service/order/application"
	orderdomain "inventory-core/internal/service/order/domain"
	orderinfra "inventory-core/internal/service/order/infrastructure"
	orderadapter "inventory-core/internal/service/order/infrastructure/adapter"
	orderhttp "inventory-core/internal/service/order/interfaces"

	"github.com/pkg/errors"
	"go.opentelemetry.io/otel/trace"
	"gorm.io/gorm"
)

// assembled 是组装好的服务：路由、后台组件和关停时要释放的资源。
type assembled struct {
	inventoryHandler *invhttp.InventoryHandler
	orderHandler     *orderhttp.OrderHandler
	components       []bootstrap.Component
	closers          []func(ctx context.Context) error
}

func (a *assembled) registerHandlers(appCtx bootstrap.AppCtx) {
	a.inventoryHandler.RegisterRoutes(appCtx.Mux)
	a.orderHandler.RegisterRoutes(appCtx.Mux)
}

type stores struct {
	variants   invdomain.VariantRepository
	products   invdomain.ProductRepository
	recovery   invdomain.RecoveryRepository
	orders     orderdomain.OrderRepository
	transactor database.Transactor
}

// wire 按配置选择后端：配置了 MySQL / Redis / ZooKeeper / Kafka 就用它们，否则退回进程内实现。
func wire(cfg *bootstrap.Config, tracer trace.Tracer) (*assembled, error) {
	log := logger.L()
	a := &assembled{}

	st, err := openStores(cfg, a)
	if err != nil {
		return nil, err
	}

	guard, err := openGuard(cfg, a)
	if err != nil {
		return nil, err
	}

	locker, err := openSweepLocker(cfg, a)
	if err != nil {
		return nil, err
	}

	// 1. 事件派发：所有异步副作用都从这里走
	dispatcher := eventbus.NewDispatcher(cfg.Dispatcher, tracer)

	// 2. 库存
	stock := invapp.NewStockService(st.variants, dispatcher, tracer)
	query := invapp.NewQueryService(st.variants, st.products)
	synchronizer := invapp.NewAggregateSynchronizer(st.variants, st.products, st.recovery, cfg.Sync, tracer)
	restoration := invapp.NewRestorationHandler(stock, guard, st.recovery, dispatcher)
	recorder := invapp.NewRecoveryRecorder(st.recovery)
	scheduler := invapp.NewRecoveryScheduler(st.recovery, synchronizer, stock, guard, locker, invapp.SchedulerConfig{
		Interval:    cfg.Recovery.Interval,
		BatchSize:   cfg.Recovery.BatchSize,
		Concurrency: cfg.Recovery.Concurrency,
	}, tracer)

	dispatcher.Subscribe(events.NameStockChanged, "aggregate-sync", synchronizer.HandleStockChanged)
	dispatcher.Subscribe(events.NameOrderCancelled, "stock-restore", restoration.HandleOrderCancelled)
	dispatcher.OnReject(recorder.RecordRejected)

	if cfg.LowStock.Enabled {
		lowStockRule, err := rule.NewCELLowStockRule(cfg.LowStock.Expression)
		if err != nil {
			return nil, errors.Wrap(err, "compile low stock rule")
		}
		dispatcher.Subscribe(events.NameStockChanged, "low-stock", invapp.NewLowStockMonitor(st.variants, lowStockRule).HandleStockChanged)
	}

	// 3. 订单
	orderSvc := orderapp.NewOrderApplicationService(
		st.orders,
		st.transactor,
		orderadapter.NewInventoryLocalAdapter(stock, query),
		guard,
		dispatcher,
		cfg.Order.VersionRetry,
		cfg.Order.ProcessingTimeout,
		tracer,
	)

	a.inventoryHandler = invhttp.NewInventoryHandler(stock, query)
	a.orderHandler = orderhttp.NewOrderHandler(orderSvc)
	a.components = append(a.components, dispatcher, scheduler)

	// 4. Kafka：下单请求入口、DLT、对外事件（可选）
	if kc := cfg.Infra.Kafka; len(kc.Brokers) > 0 {
		publisher := orderadapter.NewEventKafkaAdapter(mq.NewKafkaWriter(kc.Brokers, kc.EventsTopic))
		dispatcher.Subscribe(events.NameStockChanged, "kafka-publisher", publisher.Publish)
		dispatcher.Subscribe(events.NameOrderCancelled, "kafka-publisher", publisher.Publish)

		failureHandler := mq.NewFailureHandler(kc.Brokers)
		placement := orderhttp.NewOrderPlacementConsumer(
			mq.NewKafkaReader(kc.Brokers, kc.PlacementTopic, kc.PlacementGroup), orderSvc, failureHandler)
		dlt := orderhttp.NewDltConsumerAdapter(
			mq.NewKafkaReader(kc.Brokers, kc.PlacementTopic+mq.DLTSuffix, kc.PlacementGroup+"-dlt"))

		a.components = append(a.components, placement, dlt)
		a.closers = append(a.closers,
			func(context.Context) error { return publisher.Close() },
			func(context.Context) error { return failureHandler.Close() },
		)
	} else {
		log.Warn().Msg("KAFKA_BROKERS not set, queue intake and event publishing disabled")
	}

	return a, nil
}

func openStores(cfg *bootstrap.Config, a *assembled) (*stores, error) {
	var (
		db  *gorm.DB
		err error
	)
	switch {
	case cfg.Infra.MySQL.DSN != "":
		db, err = database.OpenMySQL(cfg.Infra.MySQL.DSN, cfg.Infra.MySQL.Pool)
	case cfg.Infra.SQLite.Path != "":
		logger.L().Info().Str("path", cfg.Infra.SQLite.Path).Msg("MYSQL_DSN not set, using SQLite storage")
		db, err = database.OpenSQLite(cfg.Infra.SQLite.Path)
	default:
		logger.L().Warn().Msg("MYSQL_DSN not set, using in-memory storage")
		return &stores{
			variants:   invinfra.NewMemoryVariantRepository(),
			products:   invinfra.NewMemoryProductRepository(),
			recovery:   invinfra.NewMemoryRecoveryRepository(),
			orders:     orderinfra.NewMemoryOrderRepository(),
			transactor: database.NewMemoryTransactor(),
		}, nil
	}
	if err != nil {
		return nil, err
	}
	if err := migrate(db); err != nil {
		return nil, err
	}
	a.closers = append(a.closers, func(context.Context) error {
		sqlDB, err := db.DB()
		if err != nil {
			return err
		}
		return sqlDB.Close()
	})
	return &stores{
		variants:   invinfra.NewGormVariantRepository(db),
		products:   invinfra.NewGormProductRepository(db),
		recovery:   invinfra.NewGormRecoveryRepository(db),
		orders:     orderinfra.NewGormOrderRepository(db),
		transactor: database.NewGormTransactor(db),
	}, nil
}

func migrate(db *gorm.DB) error {
	if err := invinfra.AutoMigrate(db); err != nil {
		return errors.Wrap(err, "migrate inventory tables")
	}
	if err := orderinfra.AutoMigrate(db); err != nil {
		return errors.Wrap(err, "migrate order tables")
	}
	return nil
}

func openGuard(cfg *bootstrap.Config, a *assembled) (idempotency.Guard, error) {
	if cfg.Infra.Redis.Addrs == "" {
		logger.L().Warn().Msg("REDIS_ADDRS not set, idempotency keys are process-local")
		return idempotency.NewMemoryGuard(cfg.Idempotency.TTL), nil
	}
	client, err := redis.NewClient(cfg.Infra.Redis.Addrs)
	if err != nil {
		return nil, err
	}
	a.closers = append(a.closers, func(context.Context) error { return client.Close() })
	return idempotency.NewRedisGuard(client, cfg.Idempotency.Prefix, cfg.Idempotency.TTL)
}

func openSweepLocker(cfg *bootstrap.Config, a *assembled) (invport.SweepLocker, error) {
	if cfg.Infra.ZooKeeper.Servers == "" {
		return invadapter.NewLocalSweepLocker(), nil
	}
	conn, err := zookeeper.Connect(cfg.Infra.ZooKeeper.Servers, cfg.Infra.ZooKeeper.SessionTimeout)
	if err != nil {
		return nil, err
	}
	a.closers = append(a.closers, func(context.Context) error { conn.Close(); return nil })
	return invadapter.NewZKSweepLocker(conn, cfg.Recovery.LockResource), nil
}

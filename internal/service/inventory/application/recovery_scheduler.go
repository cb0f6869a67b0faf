// internal/service/inventory/application/recovery_scheduler.go
package application

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"inventory-core/internal/pkg/idempotency"
	"inventory-core/internal/pkg/logger"
	"inventory-core/internal/service/inventory/domain"
	"inventory-core/internal/service/inventory/domain/port"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
	"golang.org/x/sync/errgroup"
)

// SchedulerConfig 清扫任务参数。
type SchedulerConfig struct {
	Interval    time.Duration
	BatchSize   int
	Concurrency int
}

// SweepResult 是一次清扫的统计。
type SweepResult struct {
	Skipped  bool // 上一轮还没结束（或其它实例持有锁）
	Scanned  int
	Products int
	Resolved int
	Failed   int
}

// RecoveryScheduler 定时扫描未解决的恢复记录，按 product 分组，每组只重算一次。
type RecoveryScheduler struct {
	recovery domain.RecoveryRepository
	sync     *AggregateSynchronizer
	stock    *StockService
	guard    idempotency.Guard
	locker   port.SweepLocker
	cfg      SchedulerConfig
	tracer   trace.Tracer

	cancel context.CancelFunc
	wg     sync.WaitGroup
}

func NewRecoveryScheduler(
	recovery domain.RecoveryRepository,
	synchronizer *AggregateSynchronizer,
	stock *StockService,
	guard idempotency.Guard,
	locker port.SweepLocker,
	cfg SchedulerConfig,
	tracer trace.Tracer,
) *RecoveryScheduler {
	if cfg.Interval <= 0 {
		cfg.Interval = time.Minute
	}
	if cfg.BatchSize <= 0 {
		cfg.BatchSize = 500
	}
	if cfg.Concurrency <= 0 {
		cfg.Concurrency = 1
	}
	return &RecoveryScheduler{
		recovery: recovery,
		sync:     synchronizer,
		stock:    stock,
		guard:    guard,
		locker:   locker,
		cfg:      cfg,
		tracer:   tracer,
	}
}

// Start 启动定时轮询。ticker 只有一个 goroutine 消费，加上 locker，清扫不会重叠。
func (s *RecoveryScheduler) Start(ctx context.Context) error {
	ctx, s.cancel = context.WithCancel(ctx)
	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		logger.Ctx(ctx).Info().Dur("interval", s.cfg.Interval).Msg("✅ Recovery scheduler started")

		ticker := time.NewTicker(s.cfg.Interval)
		defer ticker.Stop()
		for {
			select {
			case <-ticker.C:
				if _, err := s.RetryFailedAggregateSyncs(ctx); err != nil {
					logger.Ctx(ctx).Error().Err(err).Msg("Recovery sweep failed")
				}
			case <-ctx.Done():
				logger.Ctx(ctx).Info().Msg("🛑 Recovery scheduler shutting down")
				return
			}
		}
	}()
	return nil
}

func (s *RecoveryScheduler) Stop(ctx context.Context) {
	if s.cancel != nil {
		s.cancel()
	}
	s.wg.Wait()
	logger.Ctx(ctx).Info().Msg("✅ Recovery scheduler stopped")
}

// RetryFailedAggregateSyncs 执行一次清扫。记录只会被标记为已解决或递增 attempts，不会被删除。
func (s *RecoveryScheduler) RetryFailedAggregateSyncs(ctx context.Context) (SweepResult, error) {
	var result SweepResult

	unlock, ok, err := s.locker.TryLock(ctx)
	if err != nil {
		return result, fmt.Errorf("acquire sweep lock: %w", err)
	}
	if !ok {
		result.Skipped = true
		logger.Ctx(ctx).Debug().Msg("Recovery sweep already running, skipped")
		return result, nil
	}
	defer unlock()

	ctx, span := s.tracer.Start(ctx, "RecoveryScheduler.Sweep")
	defer span.End()
	start := time.Now()
	defer func() { sweepDuration.Observe(time.Since(start).Seconds()) }()

	records, err := s.recovery.FindUnresolved(ctx, s.cfg.BatchSize)
	if err != nil {
		span.RecordError(err)
		return result, fmt.Errorf("load unresolved recovery records: %w", err)
	}
	result.Scanned = len(records)
	if len(records) == 0 {
		return result, nil
	}

	// 按 product 分组，保持首次出现的顺序
	groups := make(map[string][]*domain.RecoveryRecord)
	var order []string
	for _, rec := range records {
		if _, seen := groups[rec.ProductID]; !seen {
			order = append(order, rec.ProductID)
		}
		groups[rec.ProductID] = append(groups[rec.ProductID], rec)
	}
	result.Products = len(order)

	var mu sync.Mutex
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(s.cfg.Concurrency)
	for _, productID := range order {
		recs := groups[productID]
		g.Go(func() error {
			resolved := s.sweepProduct(gctx, productID, recs)
			mu.Lock()
			if resolved {
				result.Resolved += len(recs)
			} else {
				result.Failed += len(recs)
			}
			mu.Unlock()
			return nil
		})
	}
	_ = g.Wait()

	span.SetAttributes(
		attribute.Int("sweep.scanned", result.Scanned),
		attribute.Int("sweep.resolved", result.Resolved),
		attribute.Int("sweep.failed", result.Failed),
	)
	logger.Ctx(ctx).Info().
		Int("scanned", result.Scanned).
		Int("products", result.Products).
		Int("resolved", result.Resolved).
		Int("failed", result.Failed).
		Msg("Recovery sweep finished")
	return result, nil
}

// sweepProduct 先重放库存归还，再对 product 做一次重算；全部成功才把这一组标记为已解决。
func (s *RecoveryScheduler) sweepProduct(ctx context.Context, productID string, recs []*domain.RecoveryRecord) bool {
	ids := make([]uint64, 0, len(recs))
	for _, rec := range recs {
		ids = append(ids, rec.ID)
	}

	var failures []string
	for _, rec := range recs {
		if rec.Kind != domain.KindStockRestore || rec.Restored {
			continue
		}
		if _, err := RestoreLine(ctx, s.stock, s.guard, rec.OrderID, rec.VariantID, rec.Quantity); err != nil {
			failures = append(failures, fmt.Sprintf("restore %s/%s: %v", rec.OrderID, rec.VariantID, err))
			continue
		}
		// 幂等 key 会过期，归还完成要记在记录上
		if err := s.recovery.MarkRestored(ctx, rec.ID); err != nil {
			logger.Ctx(ctx).Error().Err(err).Uint64("record_id", rec.ID).Msg("Failed to mark stock restore done")
		}
	}

	if len(failures) == 0 {
		if err := s.sync.SyncProduct(ctx, productID); err != nil {
			failures = append(failures, "recompute: "+err.Error())
		}
	}

	if len(failures) > 0 {
		detail := strings.Join(failures, "; ")
		if err := s.recovery.MarkFailed(ctx, ids, detail); err != nil {
			logger.Ctx(ctx).Error().Err(err).Str("product_id", productID).Msg("Failed to update recovery records")
		}
		logger.Ctx(ctx).Warn().Str("product_id", productID).Str("detail", detail).Msg("Recovery still failing")
		return false
	}

	if err := s.recovery.MarkResolved(ctx, ids); err != nil {
		logger.Ctx(ctx).Error().Err(err).Str("product_id", productID).Msg("Failed to resolve recovery records")
		return false
	}
	recoveryRecordsResolvedTotal.Add(float64(len(ids)))
	return true
}

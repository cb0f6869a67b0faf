package infrastructure

import (
	"context"
	"errors"
	"path/filepath"
	"sync"
	"sync/atomic"
	"testing"

	"inventory-core/internal/pkg/database"
	"inventory-core/internal/service/inventory/domain"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"
)

func openTestDB(t *testing.T) *gorm.DB {
	t.Helper()
	db, err := database.OpenSQLite(filepath.Join(t.TempDir(), "inventory.db"))
	require.NoError(t, err)
	require.NoError(t, AutoMigrate(db))
	t.Cleanup(func() {
		if sqlDB, err := db.DB(); err == nil {
			_ = sqlDB.Close()
		}
	})
	return db
}

func seedGorm(t *testing.T, db *gorm.DB, products []*domain.Product, variants ...*domain.Variant) {
	t.Helper()
	for _, p := range products {
		require.NoError(t, db.Create(FromDomainProduct(p)).Error)
	}
	for _, v := range variants {
		require.NoError(t, db.Create(FromDomainVariant(v)).Error)
	}
}

// 库存 3，4 个买家同时各买 1 件：恰好 3 个成功，库存停在 0。
func TestGormVariantRepository_ConcurrentDecrementNeverOversells(t *testing.T) {
	db := openTestDB(t)
	seedGorm(t, db, nil, &domain.Variant{ID: "v1", ProductID: "p1", SKU: "S1", Price: decimal.NewFromInt(7), Quantity: 3, TrackStock: true})
	repo := NewGormVariantRepository(db)

	var ok, short atomic.Int32
	var wg sync.WaitGroup
	for i := 0; i < 4; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := repo.DecrementIfAvailable(context.Background(), "v1", 1)
			switch {
			case err == nil:
				ok.Add(1)
			case errors.Is(err, domain.ErrInsufficientStock):
				short.Add(1)
			}
		}()
	}
	wg.Wait()

	v, err := repo.FindByID(context.Background(), "v1")
	require.NoError(t, err)
	assert.Equal(t, int32(3), ok.Load())
	assert.Equal(t, int32(1), short.Load())
	assert.Equal(t, 0, v.Quantity)
	assert.Equal(t, int64(3), v.Version)
}

func TestGormVariantRepository_DecrementEdges(t *testing.T) {
	db := openTestDB(t)
	seedGorm(t, db, nil,
		&domain.Variant{ID: "v1", ProductID: "p1", SKU: "S1", Price: decimal.NewFromInt(7), Quantity: 2, TrackStock: true},
		&domain.Variant{ID: "digital", ProductID: "p1", SKU: "D1", Price: decimal.NewFromInt(1), Quantity: 0, TrackStock: false},
	)
	repo := NewGormVariantRepository(db)
	ctx := context.Background()

	t.Run("untracked variant persists as untracked and is a no-op", func(t *testing.T) {
		v, err := repo.DecrementIfAvailable(ctx, "digital", 100)
		require.NoError(t, err)
		assert.False(t, v.TrackStock)
		assert.Equal(t, 0, v.Quantity)
		assert.Equal(t, int64(0), v.Version)
	})

	t.Run("insufficient leaves the row untouched", func(t *testing.T) {
		_, err := repo.DecrementIfAvailable(ctx, "v1", 3)
		assert.ErrorIs(t, err, domain.ErrInsufficientStock)
		v, err := repo.FindByID(ctx, "v1")
		require.NoError(t, err)
		assert.Equal(t, 2, v.Quantity)
		assert.Equal(t, int64(0), v.Version)
	})

	t.Run("missing variant", func(t *testing.T) {
		_, err := repo.DecrementIfAvailable(ctx, "nope", 1)
		assert.ErrorIs(t, err, domain.ErrVariantNotFound)
		_, err = repo.Increment(ctx, "nope", 1)
		assert.ErrorIs(t, err, domain.ErrVariantNotFound)
	})

	t.Run("increment bumps version", func(t *testing.T) {
		v, err := repo.Increment(ctx, "v1", 5)
		require.NoError(t, err)
		assert.Equal(t, 7, v.Quantity)
		assert.Equal(t, int64(1), v.Version)
	})
}

func TestGormProductRepository_UpdateAggregatesIsVersioned(t *testing.T) {
	db := openTestDB(t)
	seedGorm(t, db, []*domain.Product{
		{ID: "p1", Slug: "tee", Name: "Tee", BasePrice: decimal.NewFromInt(20), Active: true},
		{ID: "p2", Slug: "retired", Name: "Retired", BasePrice: decimal.NewFromInt(5), Active: false},
	})
	repo := NewGormProductRepository(db)
	ctx := context.Background()

	agg := domain.Aggregates{TotalStock: 15, MinPrice: decimal.NewFromInt(10), MaxPrice: decimal.NewFromInt(30)}
	p, err := repo.UpdateAggregates(ctx, "p1", 0, agg)
	require.NoError(t, err)
	assert.Equal(t, int64(1), p.Version)

	_, err = repo.UpdateAggregates(ctx, "p1", 0, domain.Aggregates{TotalStock: 99})
	assert.ErrorIs(t, err, domain.ErrVersionConflict)

	got, err := repo.FindByID(ctx, "p1")
	require.NoError(t, err)
	assert.Equal(t, 15, got.TotalStock)
	assert.True(t, got.MinPrice.Equal(decimal.NewFromInt(10)))
	assert.True(t, got.MaxPrice.Equal(decimal.NewFromInt(30)))
	assert.Equal(t, int64(1), got.Version)

	retired, err := repo.FindByID(ctx, "p2")
	require.NoError(t, err)
	assert.False(t, retired.Active)

	_, err = repo.UpdateAggregates(ctx, "missing", 0, agg)
	assert.ErrorIs(t, err, domain.ErrProductNotFound)
}

func TestGormRecoveryRepository_Lifecycle(t *testing.T) {
	repo := NewGormRecoveryRepository(openTestDB(t))
	ctx := context.Background()

	syncRec := &domain.RecoveryRecord{Kind: domain.KindAggregateSync, ProductID: "p1", Reason: domain.ReasonRecoveryExhausted}
	restore := &domain.RecoveryRecord{Kind: domain.KindStockRestore, ProductID: "p1", VariantID: "v1", OrderID: "o-1", Quantity: 2, Reason: domain.ReasonDispatchRejected}
	require.NoError(t, repo.Create(ctx, syncRec))
	require.NoError(t, repo.Create(ctx, restore))
	require.NotZero(t, syncRec.ID)

	require.NoError(t, repo.MarkFailed(ctx, []uint64{syncRec.ID, restore.ID}, "recompute: conflict"))
	require.NoError(t, repo.MarkRestored(ctx, restore.ID))

	open, err := repo.FindUnresolved(ctx, 10)
	require.NoError(t, err)
	require.Len(t, open, 2)
	assert.Equal(t, 1, open[0].Attempts)
	assert.Equal(t, "recompute: conflict", open[0].ErrorDetail)
	assert.False(t, open[0].Restored)
	assert.True(t, open[1].Restored)
	assert.Equal(t, 2, open[1].Quantity)

	require.NoError(t, repo.MarkResolved(ctx, []uint64{syncRec.ID}))
	open, err = repo.FindUnresolved(ctx, 10)
	require.NoError(t, err)
	require.Len(t, open, 1)
	assert.Equal(t, restore.ID, open[0].ID)
}

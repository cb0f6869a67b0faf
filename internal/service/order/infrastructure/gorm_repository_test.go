package infrastructure

import (
	"context"
	"errors"
	"path/filepath"
	"testing"

	"inventory-core/internal/pkg/database"
	"inventory-core/internal/service/order/domain"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"
)

func openTestDB(t *testing.T) *gorm.DB {
	t.Helper()
	db, err := database.OpenSQLite(filepath.Join(t.TempDir(), "orders.db"))
	require.NoError(t, err)
	require.NoError(t, AutoMigrate(db))
	t.Cleanup(func() {
		if sqlDB, err := db.DB(); err == nil {
			_ = sqlDB.Close()
		}
	})
	return db
}

func newPersistedOrder(t *testing.T, repo *GormOrderRepository, id string) *domain.Order {
	t.Helper()
	o, err := domain.NewOrder(id, "u-1", []domain.OrderItem{
		{ProductID: "p1", VariantID: "v1", SKU: "A", UnitPrice: decimal.RequireFromString("12.50"), Quantity: 2},
		{ProductID: "p1", VariantID: "v2", SKU: "B", UnitPrice: decimal.NewFromInt(20), Quantity: 1},
	})
	require.NoError(t, err)
	require.NoError(t, repo.Create(context.Background(), o))
	return o
}

func TestGormOrderRepository_CreateAndFind(t *testing.T) {
	repo := NewGormOrderRepository(openTestDB(t))
	newPersistedOrder(t, repo, "o-1")

	got, err := repo.FindByID(context.Background(), "o-1")
	require.NoError(t, err)
	assert.Equal(t, domain.StatePendingPayment, got.State)
	assert.True(t, got.TotalAmount.Equal(decimal.NewFromInt(45)))
	require.Len(t, got.Items, 2)
	assert.Equal(t, "v1", got.Items[0].VariantID)
	assert.True(t, got.Items[0].UnitPrice.Equal(decimal.RequireFromString("12.5")))
	require.Len(t, got.History, 1)
	assert.Equal(t, int64(0), got.Version)

	_, err = repo.FindByID(context.Background(), "missing")
	assert.ErrorIs(t, err, domain.ErrOrderNotFound)
}

func TestGormOrderRepository_OptimisticUpdate(t *testing.T) {
	repo := NewGormOrderRepository(openTestDB(t))
	ctx := context.Background()
	newPersistedOrder(t, repo, "o-1")

	a, err := repo.FindByID(ctx, "o-1")
	require.NoError(t, err)
	b, err := repo.FindByID(ctx, "o-1")
	require.NoError(t, err)

	require.NoError(t, a.Cancel("changed my mind"))
	require.NoError(t, repo.Update(ctx, a))
	assert.Equal(t, int64(1), a.Version)

	_, err = b.ForceState(domain.StateProcessing, "stale")
	require.NoError(t, err)
	assert.ErrorIs(t, repo.Update(ctx, b), domain.ErrVersionConflict)

	got, err := repo.FindByID(ctx, "o-1")
	require.NoError(t, err)
	assert.Equal(t, domain.StateCancelled, got.State)
	assert.Equal(t, "changed my mind", got.CancelReason)
	require.Len(t, got.History, 2)
	assert.Equal(t, domain.StatePendingPayment, got.History[1].From)
	assert.Equal(t, domain.StateCancelled, got.History[1].To)

	// 终态订单只追加审计，历史按顺序增长
	_, err = got.ForceState(domain.StateRefunded, "late refund")
	require.NoError(t, err)
	require.NoError(t, repo.Update(ctx, got))
	again, err := repo.FindByID(ctx, "o-1")
	require.NoError(t, err)
	require.Len(t, again.History, 3)
	assert.Equal(t, domain.StateCancelled, again.State)
	assert.Equal(t, int64(2), again.Version)

	ghost, err := domain.NewOrder("ghost", "u-1", []domain.OrderItem{{ProductID: "p1", VariantID: "v1", UnitPrice: decimal.NewFromInt(1), Quantity: 1}})
	require.NoError(t, err)
	assert.ErrorIs(t, repo.Update(ctx, ghost), domain.ErrOrderNotFound)
}

func TestGormOrderRepository_UpdateRollsBackWithTransaction(t *testing.T) {
	db := openTestDB(t)
	repo := NewGormOrderRepository(db)
	tr := database.NewGormTransactor(db)
	ctx := context.Background()
	newPersistedOrder(t, repo, "o-1")
	boom := errors.New("boom")

	err := tr.WithinTransaction(ctx, func(txCtx context.Context) error {
		o, err := repo.FindByID(txCtx, "o-1")
		if err != nil {
			return err
		}
		if err := o.Cancel("rolled back"); err != nil {
			return err
		}
		if err := repo.Update(txCtx, o); err != nil {
			return err
		}
		return boom
	})
	require.ErrorIs(t, err, boom)

	got, err := repo.FindByID(ctx, "o-1")
	require.NoError(t, err)
	assert.Equal(t, domain.StatePendingPayment, got.State)
	assert.Len(t, got.History, 1)
	assert.Equal(t, int64(0), got.Version)
}

package database

import (
	"context"
	"errors"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"
)

func TestAfterCommit_RunsImmediatelyOutsideTransaction(t *testing.T) {
	ran := false
	AfterCommit(context.Background(), func(ctx context.Context) { ran = true })
	assert.True(t, ran)
}

func TestMemoryTransactor_HooksRunOnlyAfterSuccess(t *testing.T) {
	tr := NewMemoryTransactor()

	var order []string
	err := tr.WithinTransaction(context.Background(), func(ctx context.Context) error {
		assert.True(t, InTransaction(ctx))
		AfterCommit(ctx, func(ctx context.Context) { order = append(order, "hook1") })
		AfterCommit(ctx, func(ctx context.Context) { order = append(order, "hook2") })
		order = append(order, "body")
		return nil
	})

	require.NoError(t, err)
	assert.Equal(t, []string{"body", "hook1", "hook2"}, order)
}

func TestMemoryTransactor_HooksDiscardedOnError(t *testing.T) {
	tr := NewMemoryTransactor()
	boom := errors.New("boom")

	ran := false
	err := tr.WithinTransaction(context.Background(), func(ctx context.Context) error {
		AfterCommit(ctx, func(ctx context.Context) { ran = true })
		return boom
	})

	assert.ErrorIs(t, err, boom)
	assert.False(t, ran)
}

func TestMemoryTransactor_NestedJoinsOuter(t *testing.T) {
	tr := NewMemoryTransactor()

	ran := false
	err := tr.WithinTransaction(context.Background(), func(ctx context.Context) error {
		innerErr := tr.WithinTransaction(ctx, func(ctx context.Context) error {
			AfterCommit(ctx, func(ctx context.Context) { ran = true })
			return nil
		})
		require.NoError(t, innerErr)
		assert.False(t, ran, "inner commit must not fire outer hooks")
		return nil
	})

	require.NoError(t, err)
	assert.True(t, ran)
}

type ledgerRow struct {
	ID   uint `gorm:"primaryKey"`
	Note string
}

func openTestDB(t *testing.T) *gorm.DB {
	t.Helper()
	db, err := OpenSQLite(filepath.Join(t.TempDir(), "tx.db"))
	require.NoError(t, err)
	require.NoError(t, db.AutoMigrate(&ledgerRow{}))
	t.Cleanup(func() {
		if sqlDB, err := db.DB(); err == nil {
			_ = sqlDB.Close()
		}
	})
	return db
}

func countRows(t *testing.T, db *gorm.DB) int64 {
	t.Helper()
	var n int64
	require.NoError(t, db.Model(&ledgerRow{}).Count(&n).Error)
	return n
}

func TestGormTransactor_CommitRunsHooksAfterWrite(t *testing.T) {
	db := openTestDB(t)
	tr := NewGormTransactor(db)

	var seen int64 = -1
	err := tr.WithinTransaction(context.Background(), func(ctx context.Context) error {
		if err := Conn(ctx, db).Create(&ledgerRow{Note: "a"}).Error; err != nil {
			return err
		}
		AfterCommit(ctx, func(context.Context) { seen = countRows(t, db) })
		return nil
	})

	require.NoError(t, err)
	assert.Equal(t, int64(1), seen, "hook sees committed row")
}

func TestGormTransactor_RollbackDiscardsWritesAndHooks(t *testing.T) {
	db := openTestDB(t)
	tr := NewGormTransactor(db)
	boom := errors.New("boom")

	ran := false
	err := tr.WithinTransaction(context.Background(), func(ctx context.Context) error {
		require.NoError(t, Conn(ctx, db).Create(&ledgerRow{Note: "a"}).Error)
		AfterCommit(ctx, func(context.Context) { ran = true })
		return boom
	})

	assert.ErrorIs(t, err, boom)
	assert.False(t, ran)
	assert.Equal(t, int64(0), countRows(t, db))
}

func TestGormTransactor_NestedJoinsOuterRollback(t *testing.T) {
	db := openTestDB(t)
	tr := NewGormTransactor(db)
	boom := errors.New("boom")

	err := tr.WithinTransaction(context.Background(), func(ctx context.Context) error {
		require.NoError(t, tr.WithinTransaction(ctx, func(ctx context.Context) error {
			return Conn(ctx, db).Create(&ledgerRow{Note: "inner"}).Error
		}))
		return boom
	})

	assert.ErrorIs(t, err, boom)
	assert.Equal(t, int64(0), countRows(t, db))
}

package application

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"

	"inventory-core/internal/pkg/database"
	"inventory-core/internal/pkg/events"
	"inventory-core/internal/service/inventory/domain"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestStockService_ReduceStockAtomic(t *testing.T) {
	tests := []struct {
		name      string
		variantID string
		qty       int
		wantErr   error
		wantQty   int
	}{
		{name: "enough stock", variantID: "v1", qty: 4, wantQty: 6},
		{name: "exact stock", variantID: "v1", qty: 10, wantQty: 0},
		{name: "insufficient leaves stock untouched", variantID: "v1", qty: 11, wantErr: domain.ErrInsufficientStock, wantQty: 10},
		{name: "zero quantity", variantID: "v1", qty: 0, wantErr: domain.ErrInvalidQuantity, wantQty: 10},
		{name: "negative quantity", variantID: "v1", qty: -1, wantErr: domain.ErrInvalidQuantity, wantQty: 10},
		{name: "untracked is a no-op success", variantID: "v3", qty: 99, wantQty: 0},
		{name: "unknown variant", variantID: "nope", qty: 1, wantErr: domain.ErrVariantNotFound},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newFixture(t)
			v, err := f.stock.ReduceStockAtomic(context.Background(), tt.variantID, tt.qty)

			if tt.wantErr != nil {
				assert.ErrorIs(t, err, tt.wantErr)
				assert.Nil(t, v)
			} else {
				require.NoError(t, err)
				assert.Equal(t, tt.wantQty, v.Quantity)
			}
			if tt.variantID != "nope" {
				assert.Equal(t, tt.wantQty, f.quantity(t, tt.variantID))
			}
			assert.Empty(t, f.dispatcher.Events(), "mutator never publishes")
		})
	}
}

func TestStockService_AddStockAtomic(t *testing.T) {
	f := newFixture(t)

	v, err := f.stock.AddStockAtomic(context.Background(), "v2", 3)
	require.NoError(t, err)
	assert.Equal(t, 8, v.Quantity)

	_, err = f.stock.AddStockAtomic(context.Background(), "nope", 3)
	assert.ErrorIs(t, err, domain.ErrVariantNotFound)

	_, err = f.stock.AddStockAtomic(context.Background(), "v2", 0)
	assert.ErrorIs(t, err, domain.ErrInvalidQuantity)
}

// 100 个并发买家抢 10 件库存：恰好 10 个成功，库存归零且不为负。
func TestStockService_ConcurrentBuyersNeverOversell(t *testing.T) {
	f := newFixture(t)

	var succeeded, rejected atomic.Int32
	var wg sync.WaitGroup
	for i := 0; i < 100; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := f.stock.ReduceStockAtomic(context.Background(), "v1", 1)
			if err == nil {
				succeeded.Add(1)
				return
			}
			if assert.ErrorIs(t, err, domain.ErrInsufficientStock) {
				rejected.Add(1)
			}
		}()
	}
	wg.Wait()

	assert.Equal(t, int32(10), succeeded.Load())
	assert.Equal(t, int32(90), rejected.Load())
	assert.Equal(t, 0, f.quantity(t, "v1"))
}

func TestStockService_AdjustStockPublishesAfterCommit(t *testing.T) {
	f := newFixture(t)
	tx := database.NewMemoryTransactor()

	err := tx.WithinTransaction(context.Background(), func(ctx context.Context) error {
		_, err := f.stock.AdjustStock(ctx, "v1", -3)
		require.NoError(t, err)
		assert.Empty(t, f.dispatcher.Events(), "nothing published before commit")
		return nil
	})
	require.NoError(t, err)

	evs := f.dispatcher.Events()
	require.Len(t, evs, 1)
	changed := evs[0].(events.StockChanged)
	assert.Equal(t, "p1", changed.ProductID)
	assert.Equal(t, -3, changed.Delta)
	assert.Equal(t, events.ReasonManual, changed.Reason)
	assert.Equal(t, 7, f.quantity(t, "v1"))

	_, err = f.stock.AdjustStock(context.Background(), "v1", 0)
	assert.ErrorIs(t, err, domain.ErrInvalidQuantity)
}

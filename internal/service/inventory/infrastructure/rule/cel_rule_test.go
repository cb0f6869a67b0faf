package rule

import (
	"testing"

	"inventory-core/internal/service/inventory/domain"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCELLowStockRule_Default(t *testing.T) {
	r, err := NewCELLowStockRule("")
	require.NoError(t, err)
	assert.Equal(t, DefaultLowStockExpression, r.Expression())

	tests := []struct {
		name    string
		variant domain.Variant
		want    bool
	}{
		{"below threshold", domain.Variant{TrackStock: true, Quantity: 2, LowStockThreshold: 5}, true},
		{"at threshold", domain.Variant{TrackStock: true, Quantity: 5, LowStockThreshold: 5}, true},
		{"above threshold", domain.Variant{TrackStock: true, Quantity: 6, LowStockThreshold: 5}, false},
		{"untracked", domain.Variant{TrackStock: false, Quantity: 0, LowStockThreshold: 5}, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := r.Evaluate(&tt.variant)
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestCELLowStockRule_CustomExpression(t *testing.T) {
	r, err := NewCELLowStockRule(`track_stock && quantity < 3 && price >= 100.0 && sku.startsWith("VIP-")`)
	require.NoError(t, err)

	hit, err := r.Evaluate(&domain.Variant{SKU: "VIP-1", TrackStock: true, Quantity: 1, Price: decimal.NewFromInt(150)})
	require.NoError(t, err)
	assert.True(t, hit)

	miss, err := r.Evaluate(&domain.Variant{SKU: "STD-1", TrackStock: true, Quantity: 1, Price: decimal.NewFromInt(150)})
	require.NoError(t, err)
	assert.False(t, miss)
}

func TestCELLowStockRule_RejectsBadExpressions(t *testing.T) {
	_, err := NewCELLowStockRule("quantity <=")
	assert.Error(t, err)

	_, err = NewCELLowStockRule("quantity + 1")
	assert.Error(t, err, "non-bool expression")

	_, err = NewCELLowStockRule("unknown_var > 1")
	assert.Error(t, err)
}

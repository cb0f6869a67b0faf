package interfaces

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"inventory-core/internal/pkg/eventbus"
	"inventory-core/internal/service/inventory/application"
	"inventory-core/internal/service/inventory/domain"
	"inventory-core/internal/service/inventory/infrastructure"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel/trace/noop"
)

type discardDispatcher struct{ n int }

func (d *discardDispatcher) Dispatch(context.Context, eventbus.Event) error { d.n++; return nil }

func newTestMux(t *testing.T) (*http.ServeMux, *discardDispatcher) {
	t.Helper()
	variants := infrastructure.NewMemoryVariantRepository()
	products := infrastructure.NewMemoryProductRepository()
	products.Seed(&domain.Product{ID: "p1", Name: "Tee", BasePrice: decimal.NewFromInt(20), Active: true})
	variants.Seed(&domain.Variant{ID: "v1", ProductID: "p1", SKU: "TEE-S", Price: decimal.NewFromInt(20), Quantity: 5, TrackStock: true})

	d := &discardDispatcher{}
	tracer := noop.NewTracerProvider().Tracer("test")
	h := NewInventoryHandler(
		application.NewStockService(variants, d, tracer),
		application.NewQueryService(variants, products),
	)
	mux := http.NewServeMux()
	h.RegisterRoutes(mux)
	return mux, d
}

func TestInventoryHandler_Adjust(t *testing.T) {
	tests := []struct {
		name       string
		path       string
		body       string
		wantStatus int
		wantQty    int
	}{
		{"reduce", "/variants/v1/reduce", `{"quantity":2}`, http.StatusOK, 3},
		{"add", "/variants/v1/add", `{"quantity":2}`, http.StatusOK, 7},
		{"insufficient", "/variants/v1/reduce", `{"quantity":6}`, http.StatusConflict, 0},
		{"unknown variant", "/variants/nope/add", `{"quantity":1}`, http.StatusNotFound, 0},
		{"bad quantity", "/variants/v1/add", `{"quantity":0}`, http.StatusBadRequest, 0},
		{"bad body", "/variants/v1/add", `{`, http.StatusBadRequest, 0},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			mux, d := newTestMux(t)
			rec := httptest.NewRecorder()
			mux.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, tt.path, strings.NewReader(tt.body)))

			require.Equal(t, tt.wantStatus, rec.Code, rec.Body.String())
			if tt.wantStatus != http.StatusOK {
				assert.Equal(t, 0, d.n)
				return
			}
			var resp variantResponse
			require.NoError(t, json.NewDecoder(rec.Body).Decode(&resp))
			assert.Equal(t, tt.wantQty, resp.Quantity)
			assert.Equal(t, 1, d.n)
		})
	}
}

func TestInventoryHandler_GetProduct(t *testing.T) {
	mux, _ := newTestMux(t)

	rec := httptest.NewRecorder()
	mux.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/products/p1", nil))
	require.Equal(t, http.StatusOK, rec.Code)

	var resp productResponse
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&resp))
	assert.Equal(t, "p1", resp.ID)
	require.Len(t, resp.Variants, 1)
	assert.Equal(t, 5, resp.Variants[0].Quantity)

	rec = httptest.NewRecorder()
	mux.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/products/missing", nil))
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

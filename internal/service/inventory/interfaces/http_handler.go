package interfaces

import (
	"encoding/json"
	"net/http"

	"inventory-core/internal/service/inventory/application"
	"inventory-core/internal/service/inventory/domain"

	"github.com/pkg/errors"
	"github.com/shopspring/decimal"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/propagation"
)

// InventoryHandler 封装了库存相关的 HTTP 处理器（运维和排查用）
type InventoryHandler struct {
	stock *application.StockService
	query *application.QueryService
}

func NewInventoryHandler(stock *application.StockService, query *application.QueryService) *InventoryHandler {
	return &InventoryHandler{stock: stock, query: query}
}

// RegisterRoutes 在 ServeMux 上注册所有路由
func (h *InventoryHandler) RegisterRoutes(mux *http.ServeMux) {
	mux.HandleFunc("POST /variants/{id}/reduce", h.handleReduce)
	mux.HandleFunc("POST /variants/{id}/add", h.handleAdd)
	mux.HandleFunc("GET /products/{id}", h.handleGetProduct)
}

type adjustRequest struct {
	Quantity int `json:"quantity"`
}

type variantResponse struct {
	ID         string          `json:"id"`
	ProductID  string          `json:"productId"`
	SKU        string          `json:"sku"`
	Price      decimal.Decimal `json:"price"`
	Quantity   int             `json:"quantity"`
	TrackStock bool            `json:"trackStock"`
	Version    int64           `json:"version"`
}

type productResponse struct {
	ID             string            `json:"id"`
	Slug           string            `json:"slug"`
	Name           string            `json:"name"`
	Active         bool              `json:"active"`
	SellingPrice   decimal.Decimal   `json:"sellingPrice"`
	CompareAtPrice decimal.Decimal   `json:"compareAtPrice"`
	TotalStock     int               `json:"totalStock"`
	MinPrice       decimal.Decimal   `json:"minPrice"`
	MaxPrice       decimal.Decimal   `json:"maxPrice"`
	Version        int64             `json:"version"`
	Variants       []variantResponse `json:"variants"`
}

func toVariantResponse(v *domain.Variant) variantResponse {
	return variantResponse{
		ID:         v.ID,
		ProductID:  v.ProductID,
		SKU:        v.SKU,
		Price:      v.Price,
		Quantity:   v.Quantity,
		TrackStock: v.TrackStock,
		Version:    v.Version,
	}
}

func (h *InventoryHandler) handleReduce(w http.ResponseWriter, r *http.Request) {
	h.adjust(w, r, -1)
}

func (h *InventoryHandler) handleAdd(w http.ResponseWriter, r *http.Request) {
	h.adjust(w, r, 1)
}

func (h *InventoryHandler) adjust(w http.ResponseWriter, r *http.Request, sign int) {
	ctx := otel.GetTextMapPropagator().Extract(r.Context(), propagation.HeaderCarrier(r.Header))

	var req adjustRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "Invalid request body", http.StatusBadRequest)
		return
	}
	if req.Quantity <= 0 {
		http.Error(w, domain.ErrInvalidQuantity.Error(), http.StatusBadRequest)
		return
	}

	v, err := h.stock.AdjustStock(ctx, r.PathValue("id"), sign*req.Quantity)
	if err != nil {
		http.Error(w, err.Error(), statusFor(err))
		return
	}
	writeJSON(w, http.StatusOK, toVariantResponse(v))
}

func (h *InventoryHandler) handleGetProduct(w http.ResponseWriter, r *http.Request) {
	ctx := otel.GetTextMapPropagator().Extract(r.Context(), propagation.HeaderCarrier(r.Header))

	view, err := h.query.GetProduct(ctx, r.PathValue("id"))
	if err != nil {
		http.Error(w, err.Error(), statusFor(err))
		return
	}

	p := view.Product
	resp := productResponse{
		ID:             p.ID,
		Slug:           p.Slug,
		Name:           p.Name,
		Active:         p.Active,
		SellingPrice:   p.SellingPrice(),
		CompareAtPrice: p.CompareAtPrice,
		TotalStock:     p.TotalStock,
		MinPrice:       p.MinPrice,
		MaxPrice:       p.MaxPrice,
		Version:        p.Version,
		Variants:       make([]variantResponse, 0, len(view.Variants)),
	}
	for _, v := range view.Variants {
		resp.Variants = append(resp.Variants, toVariantResponse(v))
	}
	writeJSON(w, http.StatusOK, resp)
}

// statusFor 根据错误类型返回不同的 HTTP 状态码
func statusFor(err error) int {
	switch {
	case errors.Is(err, domain.ErrVariantNotFound), errors.Is(err, domain.ErrProductNotFound):
		return http.StatusNotFound
	case errors.Is(err, domain.ErrInvalidQuantity):
		return http.StatusBadRequest
	case errors.Is(err, domain.ErrInsufficientStock):
		return http.StatusConflict
	default:
		return http.StatusInternalServerError
	}
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

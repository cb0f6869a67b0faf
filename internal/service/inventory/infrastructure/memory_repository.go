package infrastructure

import (
	"context"
	"sort"
	"sync"
	"time"

	"inventory-core/internal/service/inventory/domain"
)

// MemoryVariantRepository 进程内库存账本。互斥锁让"检查 + 扣减"成为一个原子步骤，
// 语义与 SQL 的条件 UPDATE 一致。
type MemoryVariantRepository struct {
	mu       sync.Mutex
	variants map[string]*domain.Variant
}

func NewMemoryVariantRepository() *MemoryVariantRepository {
	return &MemoryVariantRepository{variants: make(map[string]*domain.Variant)}
}

// Seed 写入或覆盖一批 variant。
func (r *MemoryVariantRepository) Seed(variants ...*domain.Variant) {
	r.mu.Lock()
	defer r.mu.Unlock()
	now := time.Now()
	for _, v := range variants {
		c := *v
		if c.CreatedAt.IsZero() {
			c.CreatedAt = now
		}
		c.UpdatedAt = now
		r.variants[c.ID] = &c
	}
}

func (r *MemoryVariantRepository) FindByID(_ context.Context, id string) (*domain.Variant, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	v, ok := r.variants[id]
	if !ok {
		return nil, domain.ErrVariantNotFound
	}
	c := *v
	return &c, nil
}

func (r *MemoryVariantRepository) FindByProductID(_ context.Context, productID string) ([]*domain.Variant, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []*domain.Variant
	for _, v := range r.variants {
		if v.ProductID == productID {
			c := *v
			out = append(out, &c)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (r *MemoryVariantRepository) DecrementIfAvailable(_ context.Context, id string, qty int) (*domain.Variant, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	v, ok := r.variants[id]
	if !ok {
		return nil, domain.ErrVariantNotFound
	}
	if v.TrackStock {
		if v.Quantity < qty {
			return nil, domain.ErrInsufficientStock
		}
		v.Quantity -= qty
		v.Version++
		v.UpdatedAt = time.Now()
	}
	c := *v
	return &c, nil
}

func (r *MemoryVariantRepository) Increment(_ context.Context, id string, qty int) (*domain.Variant, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	v, ok := r.variants[id]
	if !ok {
		return nil, domain.ErrVariantNotFound
	}
	v.Quantity += qty
	v.Version++
	v.UpdatedAt = time.Now()
	c := *v
	return &c, nil
}

// MemoryProductRepository 进程内 product 表，汇总字段按版本号做条件更新。
type MemoryProductRepository struct {
	mu       sync.Mutex
	products map[string]*domain.Product
}

func NewMemoryProductRepository() *MemoryProductRepository {
	return &MemoryProductRepository{products: make(map[string]*domain.Product)}
}

func (r *MemoryProductRepository) Seed(products ...*domain.Product) {
	r.mu.Lock()
	defer r.mu.Unlock()
	now := time.Now()
	for _, p := range products {
		c := *p
		if c.CreatedAt.IsZero() {
			c.CreatedAt = now
		}
		c.UpdatedAt = now
		r.products[c.ID] = &c
	}
}

func (r *MemoryProductRepository) FindByID(_ context.Context, id string) (*domain.Product, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	p, ok := r.products[id]
	if !ok {
		return nil, domain.ErrProductNotFound
	}
	c := *p
	return &c, nil
}

func (r *MemoryProductRepository) UpdateAggregates(_ context.Context, id string, expectedVersion int64, agg domain.Aggregates) (*domain.Product, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	p, ok := r.products[id]
	if !ok {
		return nil, domain.ErrProductNotFound
	}
	if p.Version != expectedVersion {
		return nil, domain.ErrVersionConflict
	}
	p.Apply(agg)
	p.Version++
	p.UpdatedAt = time.Now()
	c := *p
	return &c, nil
}

// MemoryRecoveryRepository 进程内恢复台账。
type MemoryRecoveryRepository struct {
	mu      sync.Mutex
	nextID  uint64
	records map[uint64]*domain.RecoveryRecord
}

func NewMemoryRecoveryRepository() *MemoryRecoveryRepository {
	return &MemoryRecoveryRepository{records: make(map[uint64]*domain.RecoveryRecord)}
}

func (r *MemoryRecoveryRepository) Create(_ context.Context, rec *domain.RecoveryRecord) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.nextID++
	now := time.Now()
	rec.ID = r.nextID
	rec.CreatedAt = now
	rec.UpdatedAt = now
	c := *rec
	r.records[c.ID] = &c
	return nil
}

func (r *MemoryRecoveryRepository) FindUnresolved(_ context.Context, limit int) ([]*domain.RecoveryRecord, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []*domain.RecoveryRecord
	for _, rec := range r.records {
		if !rec.Resolved {
			c := *rec
			out = append(out, &c)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (r *MemoryRecoveryRepository) MarkResolved(_ context.Context, ids []uint64) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	now := time.Now()
	for _, id := range ids {
		if rec, ok := r.records[id]; ok && !rec.Resolved {
			rec.Resolved = true
			rec.ResolvedAt = &now
			rec.UpdatedAt = now
		}
	}
	return nil
}

func (r *MemoryRecoveryRepository) MarkRestored(_ context.Context, id uint64) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if rec, ok := r.records[id]; ok {
		rec.Restored = true
		rec.UpdatedAt = time.Now()
	}
	return nil
}

func (r *MemoryRecoveryRepository) MarkFailed(_ context.Context, ids []uint64, detail string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	now := time.Now()
	for _, id := range ids {
		if rec, ok := r.records[id]; ok {
			rec.Attempts++
			rec.ErrorDetail = detail
			rec.UpdatedAt = now
		}
	}
	return nil
}

// All 返回全部记录（含已解决），测试和排查用。
func (r *MemoryRecoveryRepository) All() []*domain.RecoveryRecord {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]*domain.RecoveryRecord, 0, len(r.records))
	for _, rec := range r.records {
		c := *rec
		out = append(out, &c)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

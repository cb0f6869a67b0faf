package infrastructure

import (
	"context"
	"time"

	"inventory-core/internal/pkg/database"
	"inventory-core/internal/service/inventory/domain"

	"github.com/pkg/errors"
	"gorm.io/gorm"
)

// GormVariantRepository 是 VariantRepository 的 GORM 实现
type GormVariantRepository struct {
	db *gorm.DB
}

func NewGormVariantRepository(db *gorm.DB) *GormVariantRepository {
	return &GormVariantRepository{db: db}
}

func (r *GormVariantRepository) FindByID(ctx context.Context, id string) (*domain.Variant, error) {
	var model VariantModel
	err := database.Conn(ctx, r.db).Where("id = ?", id).First(&model).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, domain.ErrVariantNotFound
		}
		return nil, errors.Wrapf(err, "find variant %s", id)
	}
	return ToDomainVariant(&model), nil
}

func (r *GormVariantRepository) FindByProductID(ctx context.Context, productID string) ([]*domain.Variant, error) {
	var models []VariantModel
	if err := database.Conn(ctx, r.db).Where("product_id = ?", productID).Order("id").Find(&models).Error; err != nil {
		return nil, errors.Wrapf(err, "find variants of product %s", productID)
	}
	out := make([]*domain.Variant, 0, len(models))
	for i := range models {
		out = append(out, ToDomainVariant(&models[i]))
	}
	return out, nil
}

// DecrementIfAvailable 把"检查库存是否足够"和"扣减"合成一条带条件的 UPDATE，
// 由数据库保证原子性；随后在同一个事务里读回扣减后的值。
func (r *GormVariantRepository) DecrementIfAvailable(ctx context.Context, id string, qty int) (*domain.Variant, error) {
	var out *domain.Variant
	err := database.Conn(ctx, r.db).Transaction(func(tx *gorm.DB) error {
		res := tx.Model(&VariantModel{}).
			Where("id = ? AND track_stock = ? AND quantity >= ?", id, true, qty).
			Updates(map[string]interface{}{
				"quantity": gorm.Expr("quantity - ?", qty),
				"version":  gorm.Expr("version + 1"),
			})
		if res.Error != nil {
			return errors.Wrapf(res.Error, "decrement variant %s", id)
		}

		var model VariantModel
		if err := tx.Where("id = ?", id).First(&model).Error; err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return domain.ErrVariantNotFound
			}
			return errors.Wrapf(err, "reload variant %s", id)
		}

		if res.RowsAffected == 0 && model.TrackStock {
			return domain.ErrInsufficientStock
		}
		out = ToDomainVariant(&model)
		return nil
	})
	return out, err
}

func (r *GormVariantRepository) Increment(ctx context.Context, id string, qty int) (*domain.Variant, error) {
	var out *domain.Variant
	err := database.Conn(ctx, r.db).Transaction(func(tx *gorm.DB) error {
		res := tx.Model(&VariantModel{}).
			Where("id = ?", id).
			Updates(map[string]interface{}{
				"quantity": gorm.Expr("quantity + ?", qty),
				"version":  gorm.Expr("version + 1"),
			})
		if res.Error != nil {
			return errors.Wrapf(res.Error, "increment variant %s", id)
		}
		if res.RowsAffected == 0 {
			return domain.ErrVariantNotFound
		}

		var model VariantModel
		if err := tx.Where("id = ?", id).First(&model).Error; err != nil {
			return errors.Wrapf(err, "reload variant %s", id)
		}
		out = ToDomainVariant(&model)
		return nil
	})
	return out, err
}

// GormProductRepository 是 ProductRepository 的 GORM 实现
type GormProductRepository struct {
	db *gorm.DB
}

func NewGormProductRepository(db *gorm.DB) *GormProductRepository {
	return &GormProductRepository{db: db}
}

func (r *GormProductRepository) FindByID(ctx context.Context, id string) (*domain.Product, error) {
	var model ProductModel
	err := database.Conn(ctx, r.db).Where("id = ?", id).First(&model).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, domain.ErrProductNotFound
		}
		return nil, errors.Wrapf(err, "find product %s", id)
	}
	return ToDomainProduct(&model), nil
}

func (r *GormProductRepository) UpdateAggregates(ctx context.Context, id string, expectedVersion int64, agg domain.Aggregates) (*domain.Product, error) {
	var out *domain.Product
	err := database.Conn(ctx, r.db).Transaction(func(tx *gorm.DB) error {
		var model ProductModel
		if err := tx.Where("id = ?", id).First(&model).Error; err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return domain.ErrProductNotFound
			}
			return errors.Wrapf(err, "load product %s", id)
		}
		if model.Version != expectedVersion {
			return domain.ErrVersionConflict
		}

		p := ToDomainProduct(&model)
		p.Apply(agg)

		res := tx.Model(&ProductModel{}).
			Where("id = ? AND version = ?", id, expectedVersion).
			Updates(map[string]interface{}{
				"total_stock":      p.TotalStock,
				"min_price":        p.MinPrice,
				"max_price":        p.MaxPrice,
				"compare_at_price": p.CompareAtPrice,
				"version":          gorm.Expr("version + 1"),
			})
		if res.Error != nil {
			return errors.Wrapf(res.Error, "update aggregates of product %s", id)
		}
		if res.RowsAffected == 0 {
			return domain.ErrVersionConflict
		}
		p.Version = expectedVersion + 1
		out = p
		return nil
	})
	return out, err
}

// GormRecoveryRepository 是 RecoveryRepository 的 GORM 实现
type GormRecoveryRepository struct {
	db *gorm.DB
}

func NewGormRecoveryRepository(db *gorm.DB) *GormRecoveryRepository {
	return &GormRecoveryRepository{db: db}
}

func (r *GormRecoveryRepository) Create(ctx context.Context, rec *domain.RecoveryRecord) error {
	model := FromDomainRecovery(rec)
	if err := database.Conn(ctx, r.db).Create(model).Error; err != nil {
		return errors.Wrap(err, "create recovery record")
	}
	rec.ID = model.ID
	rec.CreatedAt = model.CreatedAt
	rec.UpdatedAt = model.UpdatedAt
	return nil
}

func (r *GormRecoveryRepository) FindUnresolved(ctx context.Context, limit int) ([]*domain.RecoveryRecord, error) {
	var models []RecoveryRecordModel
	q := database.Conn(ctx, r.db).Where("resolved = ?", false).Order("id")
	if limit > 0 {
		q = q.Limit(limit)
	}
	if err := q.Find(&models).Error; err != nil {
		return nil, errors.Wrap(err, "find unresolved recovery records")
	}
	out := make([]*domain.RecoveryRecord, 0, len(models))
	for i := range models {
		out = append(out, ToDomainRecovery(&models[i]))
	}
	return out, nil
}

func (r *GormRecoveryRepository) MarkResolved(ctx context.Context, ids []uint64) error {
	if len(ids) == 0 {
		return nil
	}
	now := time.Now()
	err := database.Conn(ctx, r.db).Model(&RecoveryRecordModel{}).
		Where("id IN ? AND resolved = ?", ids, false).
		Updates(map[string]interface{}{"resolved": true, "resolved_at": &now}).Error
	return errors.Wrap(err, "mark recovery records resolved")
}

func (r *GormRecoveryRepository) MarkRestored(ctx context.Context, id uint64) error {
	err := database.Conn(ctx, r.db).Model(&RecoveryRecordModel{}).
		Where("id = ?", id).
		Update("restored", true).Error
	return errors.Wrapf(err, "mark recovery record %d restored", id)
}

func (r *GormRecoveryRepository) MarkFailed(ctx context.Context, ids []uint64, detail string) error {
	if len(ids) == 0 {
		return nil
	}
	err := database.Conn(ctx, r.db).Model(&RecoveryRecordModel{}).
		Where("id IN ?", ids).
		Updates(map[string]interface{}{
			"attempts":     gorm.Expr("attempts + 1"),
			"error_detail": detail,
		}).Error
	return errors.Wrap(err, "mark recovery records failed")
}

package infrastructure

import (
	"context"

	"inventory-core/internal/pkg/database"
	"inventory-core/internal/service/order/domain"

	"github.com/pkg/errors"
	"gorm.io/gorm"
)

// GormOrderRepository 是 OrderRepository 的 GORM 实现
type GormOrderRepository struct {
	db *gorm.DB
}

func NewGormOrderRepository(db *gorm.DB) *GormOrderRepository {
	return &GormOrderRepository{db: db}
}

// Create 连同明细和初始历史一起插入
func (r *GormOrderRepository) Create(ctx context.Context, order *domain.Order) error {
	if err := database.Conn(ctx, r.db).Create(FromDomainOrder(order)).Error; err != nil {
		return errors.Wrapf(err, "create order %s", order.ID)
	}
	return nil
}

func (r *GormOrderRepository) FindByID(ctx context.Context, id string) (*domain.Order, error) {
	var model OrderModel
	err := database.Conn(ctx, r.db).
		Preload("Items", func(db *gorm.DB) *gorm.DB { return db.Order("line") }).
		Preload("History", func(db *gorm.DB) *gorm.DB { return db.Order("seq") }).
		Where("id = ?", id).
		First(&model).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, domain.ErrOrderNotFound
		}
		return nil, errors.Wrapf(err, "find order %s", id)
	}
	return ToDomainOrder(&model), nil
}

// Update 用 version 做乐观锁；历史只插入数据库里还没有的那部分。
func (r *GormOrderRepository) Update(ctx context.Context, order *domain.Order) error {
	err := database.Conn(ctx, r.db).Transaction(func(tx *gorm.DB) error {
		res := tx.Model(&OrderModel{}).
			Where("id = ? AND version = ?", order.ID, order.Version).
			Updates(map[string]interface{}{
				"state":         string(order.State),
				"cancel_reason": order.CancelReason,
				"updated_at":    order.UpdatedAt,
				"version":       gorm.Expr("version + 1"),
			})
		if res.Error != nil {
			return errors.Wrapf(res.Error, "update order %s", order.ID)
		}
		if res.RowsAffected == 0 {
			var count int64
			if err := tx.Model(&OrderModel{}).Where("id = ?", order.ID).Count(&count).Error; err != nil {
				return errors.Wrapf(err, "check order %s", order.ID)
			}
			if count == 0 {
				return domain.ErrOrderNotFound
			}
			return domain.ErrVersionConflict
		}

		var persisted int64
		if err := tx.Model(&StatusChangeModel{}).Where("order_id = ?", order.ID).Count(&persisted).Error; err != nil {
			return errors.Wrapf(err, "count history of order %s", order.ID)
		}
		if rows := fromDomainHistory(order.ID, order.History, int(persisted)); len(rows) > 0 {
			if err := tx.Create(&rows).Error; err != nil {
				return errors.Wrapf(err, "append history of order %s", order.ID)
			}
		}
		return nil
	})
	if err != nil {
		return err
	}
	order.Version++
	return nil
}

// internal/service/order/infrastructure/gorm_repository.go
package infrastructure

import (
	"context"

	"github.com/pkg/errors"
	"gorm.io/driver/mysql"
	"gorm.io/gorm"

	"orderflow/internal/service/order/domain"
)

// GormOrderRepository 是 OrderRepository 的 MySQL 实现。
// 默认部署使用内存实现；配置 storage: mysql 时切换到这里，
// 仓储接口不变，应用层无需感知。
type GormOrderRepository struct {
	db *gorm.DB
}

// NewGormOrderRepository 按 DSN 建立连接并迁移表结构。
func NewGormOrderRepository(dsn string) (*GormOrderRepository, error) {
	db, err := gorm.Open(mysql.Open(dsn), &gorm.Config{})
	if err != nil {
		return nil, errors.Wrap(err, "failed to connect to mysql")
	}
	if err := db.AutoMigrate(&OrderModel{}, &OrderItemModel{}); err != nil {
		return nil, errors.Wrap(err, "failed to migrate order tables")
	}
	return &GormOrderRepository{db: db}, nil
}

func (r *GormOrderRepository) Save(ctx context.Context, order *domain.Order) error {
	model := toModel(order)
	// 行项目不可变：更新时先清掉旧行再整体写入，保持与聚合一致
	return r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Where("order_id = ?", order.ID).Delete(&OrderItemModel{}).Error; err != nil {
			return err
		}
		return tx.Save(model).Error
	})
}

func (r *GormOrderRepository) FindByID(ctx context.Context, id string) (*domain.Order, error) {
	var model OrderModel
	err := r.db.WithContext(ctx).Preload("Items").Where("id = ?", id).First(&model).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, domain.ErrOrderNotFound
		}
		return nil, err
	}
	return toDomain(&model), nil
}

func (r *GormOrderRepository) List(ctx context.Context, filter domain.ListFilter) ([]*domain.Order, error) {
	query := r.db.WithContext(ctx).Preload("Items").Order("created_at asc")
	if filter.UserID != "" {
		query = query.Where("user_id = ?", filter.UserID)
	}
	if filter.Status != "" {
		query = query.Where("status = ?", string(filter.Status))
	}
	if filter.Limit > 0 {
		query = query.Limit(filter.Limit)
	}

	var models []OrderModel
	if err := query.Find(&models).Error; err != nil {
		return nil, err
	}
	out := make([]*domain.Order, 0, len(models))
	for i := range models {
		out = append(out, toDomain(&models[i]))
	}
	return out, nil
}

func (r *GormOrderRepository) Delete(ctx context.Context, id string) error {
	result := r.db.WithContext(ctx).Where("id = ?", id).Delete(&OrderModel{})
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		return domain.ErrOrderNotFound
	}
	return nil
}

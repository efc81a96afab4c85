package repository

import (
	"context"

	"gorm.io/gorm"

	"github.com/Leganyst/detailer-scheduling/internal/model"
)

type ServiceTypeRepository interface {
	GetByName(ctx context.Context, name string) (*model.ServiceType, error)
	Create(ctx context.Context, st *model.ServiceType) error
	List(ctx context.Context, onlyActive bool, limit, offset int) ([]model.ServiceType, int64, error)
}

type GormServiceTypeRepository struct {
	db *gorm.DB
}

func NewGormServiceTypeRepository(db *gorm.DB) *GormServiceTypeRepository {
	return &GormServiceTypeRepository{db: db}
}

// GetByName ищет только активные типы: снятая с продажи услуга не бронируется.
func (r *GormServiceTypeRepository) GetByName(ctx context.Context, name string) (*model.ServiceType, error) {
	var st model.ServiceType
	err := r.db.WithContext(ctx).
		Where("is_active = ?", true).
		First(&st, "LOWER(name) = LOWER(?)", name).Error
	if err != nil {
		return nil, err
	}
	return &st, nil
}

func (r *GormServiceTypeRepository) Create(ctx context.Context, st *model.ServiceType) error {
	return r.db.WithContext(ctx).Create(st).Error
}

func (r *GormServiceTypeRepository) List(ctx context.Context, onlyActive bool, limit, offset int) ([]model.ServiceType, int64, error) {
	query := func() *gorm.DB {
		q := r.db.WithContext(ctx).Model(&model.ServiceType{})
		if onlyActive {
			q = q.Where("is_active = ?", true)
		}
		return q
	}

	var total int64
	if err := query().Count(&total).Error; err != nil {
		return nil, 0, err
	}

	if limit <= 0 {
		limit = 50
	}
	if offset < 0 {
		offset = 0
	}

	var types []model.ServiceType
	if err := query().Order("name ASC").Limit(limit).Offset(offset).Find(&types).Error; err != nil {
		return nil, 0, err
	}
	return types, total, nil
}

package repository

import (
	"context"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/Leganyst/detailer-scheduling/internal/model"
)

type DetailerRepository interface {
	GetByID(ctx context.Context, id uuid.UUID) (*model.Detailer, error)
	Create(ctx context.Context, detailer *model.Detailer) error
	// Active+verified исполнители страны и города (без учёта регистра).
	ListEligibleByCity(ctx context.Context, country, city string, available *bool) ([]model.Detailer, error)
	// Active+verified исполнители страны, для сравнения нормализованных городов.
	ListEligibleByCountry(ctx context.Context, country string, available *bool) ([]model.Detailer, error)
	// Active+verified исполнители страны с заданными координатами.
	ListEligibleWithCoordinates(ctx context.Context, country string, available *bool) ([]model.Detailer, error)
}

type GormDetailerRepository struct {
	db *gorm.DB
}

func NewGormDetailerRepository(db *gorm.DB) *GormDetailerRepository {
	return &GormDetailerRepository{db: db}
}

func (r *GormDetailerRepository) GetByID(ctx context.Context, id uuid.UUID) (*model.Detailer, error) {
	var d model.Detailer
	if err := r.db.WithContext(ctx).First(&d, "id = ?", id).Error; err != nil {
		return nil, err
	}
	return &d, nil
}

func (r *GormDetailerRepository) Create(ctx context.Context, detailer *model.Detailer) error {
	return r.db.WithContext(ctx).Create(detailer).Error
}

func (r *GormDetailerRepository) ListEligibleByCity(
	ctx context.Context,
	country, city string,
	available *bool,
) ([]model.Detailer, error) {
	q := r.eligible(ctx, country, available).Where("LOWER(city) = LOWER(?)", city)
	return find(q)
}

func (r *GormDetailerRepository) ListEligibleByCountry(
	ctx context.Context,
	country string,
	available *bool,
) ([]model.Detailer, error) {
	return find(r.eligible(ctx, country, available))
}

func (r *GormDetailerRepository) ListEligibleWithCoordinates(
	ctx context.Context,
	country string,
	available *bool,
) ([]model.Detailer, error) {
	q := r.eligible(ctx, country, available).
		Where("latitude IS NOT NULL AND longitude IS NOT NULL")
	return find(q)
}

// eligible — общий фильтр всех уровней подбора.
func (r *GormDetailerRepository) eligible(ctx context.Context, country string, available *bool) *gorm.DB {
	q := r.db.WithContext(ctx).
		Model(&model.Detailer{}).
		Where("LOWER(country) = LOWER(?)", country).
		Where("is_active = ? AND is_verified = ?", true, true)
	if available != nil {
		q = q.Where("is_available = ?", *available)
	}
	return q
}

func find(q *gorm.DB) ([]model.Detailer, error) {
	var detailers []model.Detailer
	// порядок стабильный: первый подходящий исполнитель должен быть одним и тем же
	if err := q.Order("created_at ASC, id ASC").Find(&detailers).Error; err != nil {
		return nil, err
	}
	return detailers, nil
}

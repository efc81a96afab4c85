package repository

import (
	"context"
	"time"

	"github.com/google/uuid"
	"gorm.io/datatypes"
	"gorm.io/gorm"

	"github.com/Leganyst/detailer-scheduling/internal/model"
)

type AvailabilityRepository interface {
	// ListByDetailersAndDate возвращает все окна исполнителей на дату (в том числе is_available=false).
	ListByDetailersAndDate(ctx context.Context, detailerIDs []uuid.UUID, date time.Time) ([]model.Availability, error)
	Create(ctx context.Context, window *model.Availability) error
}

type GormAvailabilityRepository struct {
	db *gorm.DB
}

func NewGormAvailabilityRepository(db *gorm.DB) *GormAvailabilityRepository {
	return &GormAvailabilityRepository{db: db}
}

func (r *GormAvailabilityRepository) ListByDetailersAndDate(
	ctx context.Context,
	detailerIDs []uuid.UUID,
	date time.Time,
) ([]model.Availability, error) {
	if len(detailerIDs) == 0 {
		return []model.Availability{}, nil
	}
	var windows []model.Availability
	err := r.db.WithContext(ctx).
		Where("detailer_id IN ?", detailerIDs).
		Where("work_date = ?", datatypes.Date(date)).
		Order("start_time ASC").
		Find(&windows).Error
	if err != nil {
		return nil, err
	}
	return windows, nil
}

func (r *GormAvailabilityRepository) Create(ctx context.Context, window *model.Availability) error {
	return r.db.WithContext(ctx).Create(window).Error
}

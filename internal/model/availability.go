package model

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/datatypes"

	"github.com/Leganyst/detailer-scheduling/internal/calendar"
)

// Availability — явное окно работы исполнителя на конкретную дату.
// Перекрывает рабочие часы по умолчанию. Окон на дату может быть несколько.
type Availability struct {
	ID uuid.UUID `gorm:"type:uuid;primaryKey"`

	DetailerID uuid.UUID `gorm:"type:uuid;not null;index:idx_availability_detailer_date"`

	// Чистая дата без времени — datatypes.Date
	WorkDate  datatypes.Date `gorm:"not null;index:idx_availability_detailer_date"`
	StartTime datatypes.Time `gorm:"not null"`
	EndTime   datatypes.Time `gorm:"not null"`

	// false — исполнитель в этот день не работает.
	IsAvailable bool `gorm:"not null"`

	CreatedAt time.Time `gorm:"not null"`
	UpdatedAt time.Time `gorm:"not null"`

	Detailer *Detailer `gorm:"foreignKey:DetailerID;constraint:OnUpdate:CASCADE,OnDelete:CASCADE"`
}

func (Availability) TableName() string {
	return "availability_windows"
}

// Window — окно как интервал в день day.
func (a *Availability) Window(day time.Time) calendar.TimeRange {
	return calendar.TimeRange{
		Start: calendar.At(day, time.Duration(a.StartTime)),
		End:   calendar.At(day, time.Duration(a.EndTime)),
	}
}

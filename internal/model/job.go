package model

import (
	"slices"
	"time"

	"github.com/google/uuid"
	"gorm.io/datatypes"

	"github.com/Leganyst/detailer-scheduling/internal/calendar"
)

type JobStatus string

const (
	JobStatusPending    JobStatus = "pending"
	JobStatusAccepted   JobStatus = "accepted"
	JobStatusInProgress JobStatus = "in_progress"
	JobStatusCompleted  JobStatus = "completed"
	JobStatusCancelled  JobStatus = "cancelled"
)

// Роль исполнителя в заказе. Экспресс-заказ может получить второго.
type JobRole string

const (
	JobRolePrimary   JobRole = "primary"
	JobRoleSecondary JobRole = "secondary"
)

// LiveStatuses — статусы, которые занимают время в календаре.
var LiveStatuses = []JobStatus{JobStatusPending, JobStatusAccepted, JobStatusInProgress}

var jobTransitions = map[JobStatus][]JobStatus{
	JobStatusPending:    {JobStatusAccepted, JobStatusCancelled},
	JobStatusAccepted:   {JobStatusInProgress, JobStatusCancelled},
	JobStatusInProgress: {JobStatusCompleted, JobStatusCancelled},
}

func (s JobStatus) Valid() bool {
	switch s {
	case JobStatusPending, JobStatusAccepted, JobStatusInProgress, JobStatusCompleted, JobStatusCancelled:
		return true
	}
	return false
}

func (s JobStatus) IsLive() bool {
	return slices.Contains(LiveStatuses, s)
}

// CanTransitionTo — разрешён ли переход s -> next.
// completed и cancelled терминальные.
func (s JobStatus) CanTransitionTo(next JobStatus) bool {
	return slices.Contains(jobTransitions[s], next)
}

// jobs — назначение исполнителя на заказ. Никогда не удаляется,
// отмена — это смена статуса.
type Job struct {
	ID uuid.UUID `gorm:"type:uuid;primaryKey"`

	// Общий идентификатор брони для основного и второго исполнителя.
	BookingID uuid.UUID `gorm:"type:uuid;not null;index"`
	// Ключ идемпотентности от клиента.
	BookingReference *string `gorm:"type:varchar(64);uniqueIndex:ux_jobs_reference_role"`

	DetailerID uuid.UUID `gorm:"type:uuid;not null;index:idx_jobs_detailer_date"`
	Role       JobRole   `gorm:"type:varchar(16);not null;uniqueIndex:ux_jobs_reference_role"`

	AppointmentDate datatypes.Date `gorm:"not null;index:idx_jobs_detailer_date"`
	AppointmentTime datatypes.Time `gorm:"not null"`
	DurationMin     int            `gorm:"not null"`

	ServiceType string `gorm:"type:varchar(255)"`
	IsExpress   bool   `gorm:"not null"`

	Status JobStatus `gorm:"type:varchar(32);not null;index"`

	// Локация клиента.
	Country   string   `gorm:"type:varchar(100);not null"`
	City      string   `gorm:"type:varchar(100);not null"`
	Latitude  *float64 `gorm:"type:double precision"`
	Longitude *float64 `gorm:"type:double precision"`

	// Произвольные данные запроса (адрес, машина, комментарий).
	Metadata datatypes.JSONMap

	CancelledAt *time.Time

	CreatedAt time.Time `gorm:"not null"`
	UpdatedAt time.Time `gorm:"not null"`

	Detailer *Detailer `gorm:"foreignKey:DetailerID;constraint:OnUpdate:CASCADE,OnDelete:RESTRICT"`
}

// Interval — время, которое занимает заказ (без буфера на дорогу).
func (j *Job) Interval() calendar.TimeRange {
	start := calendar.At(time.Time(j.AppointmentDate), time.Duration(j.AppointmentTime))
	return calendar.TimeRange{Start: start, End: start.Add(time.Duration(j.DurationMin) * time.Minute)}
}

package model

import (
	"time"

	"github.com/google/uuid"
)

// service_types
type ServiceType struct {
	ID uuid.UUID `gorm:"type:uuid;primaryKey"`

	Name        string `gorm:"type:varchar(255);not null;uniqueIndex"`
	Description string `gorm:"type:text"`

	// Длительность в минутах, из неё считается слот.
	DurationMin int64   `gorm:"not null"`
	Price       float64 `gorm:"type:numeric(10,2);not null"`

	IsActive bool `gorm:"not null;index"`

	CreatedAt time.Time `gorm:"not null"`
	UpdatedAt time.Time `gorm:"not null"`
}

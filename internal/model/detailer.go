package model

import (
	"time"

	"github.com/google/uuid"
)

// Detailer — мобильный исполнитель, которого подбирают под заявку.
type Detailer struct {
	ID uuid.UUID `gorm:"type:uuid;primaryKey"`

	// Аккаунт во внешнем сервисе пользователей.
	UserID *uuid.UUID `gorm:"type:uuid;index"`

	DisplayName string `gorm:"type:varchar(255);not null"`

	// Домашняя локация. Координаты могут быть не заданы.
	Country   string   `gorm:"type:varchar(100);not null;index:idx_detailers_location"`
	City      string   `gorm:"type:varchar(100);not null;index:idx_detailers_location"`
	Latitude  *float64 `gorm:"type:double precision"`
	Longitude *float64 `gorm:"type:double precision"`

	// В подбор попадают только active && verified; available нужен для записи.
	IsActive    bool `gorm:"not null;index"`
	IsVerified  bool `gorm:"not null;index"`
	IsAvailable bool `gorm:"not null"`

	// Комиссия принадлежит биллингу, здесь просто хранится.
	CommissionRate float64 `gorm:"type:numeric(5,2);not null"`
	Rating         float64 `gorm:"type:numeric(3,2);not null"`

	CreatedAt time.Time `gorm:"not null"`
	UpdatedAt time.Time `gorm:"not null"`

	Availability []Availability `gorm:"foreignKey:DetailerID;constraint:OnUpdate:CASCADE,OnDelete:CASCADE"`
}

func (d *Detailer) HasCoordinates() bool {
	return d.Latitude != nil && d.Longitude != nil
}

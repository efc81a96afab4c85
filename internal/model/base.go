package model

import (
	"github.com/google/uuid"
	"gorm.io/gorm"
)

// newID выставляет UUID на стороне приложения, чтобы схема не зависела от gen_random_uuid().
func newID(id *uuid.UUID) {
	if *id == uuid.Nil {
		*id = uuid.New()
	}
}

func (d *Detailer) BeforeCreate(*gorm.DB) error     { newID(&d.ID); return nil }
func (a *Availability) BeforeCreate(*gorm.DB) error { newID(&a.ID); return nil }
func (s *ServiceType) BeforeCreate(*gorm.DB) error  { newID(&s.ID); return nil }
func (j *Job) BeforeCreate(*gorm.DB) error          { newID(&j.ID); return nil }
func (e *Event) BeforeCreate(*gorm.DB) error        { newID(&e.ID); return nil }

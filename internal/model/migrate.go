package model

import (
	"fmt"

	"gorm.io/gorm"
)

// Один живой заказ на исполнителя в одно и то же время начала.
// Проигравший гонку получает нарушение уникальности.
const liveSlotIndex = `CREATE UNIQUE INDEX IF NOT EXISTS ux_jobs_live_slot
	ON jobs (detailer_id, appointment_date, appointment_time)
	WHERE status IN ('pending', 'accepted', 'in_progress')`

// AutoMigrate выполняет миграцию всех сущностей ядра расписания.
func AutoMigrate(db *gorm.DB) error {
	if err := db.AutoMigrate(
		&Detailer{},
		&Availability{},
		&ServiceType{},
		&Job{},
		&Event{},
	); err != nil {
		return err
	}
	if err := db.Exec(liveSlotIndex).Error; err != nil {
		return fmt.Errorf("create live slot index: %w", err)
	}
	return nil
}

package model

import "gorm.io/gorm"

// AutoMigrate выполняет миграцию таблиц локальной очереди и журнала синхронизации.
func AutoMigrate(db *gorm.DB) error {
	return db.AutoMigrate(
		&QueuedBooking{},
		&SyncEvent{},
	)
}

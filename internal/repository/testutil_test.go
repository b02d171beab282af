package repository

import (
	"testing"
	"time"

	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"

	"github.com/Leganyst/travel-booking-core/internal/model"
)

func openTestDB(t *testing.T) *gorm.DB {
	t.Helper()

	db, err := gorm.Open(sqlite.Open("file::memory:"), &gorm.Config{
		Logger: gormlogger.Default.LogMode(gormlogger.Silent),
	})
	if err != nil {
		t.Fatalf("open sqlite: %v", err)
	}
	sqlDB, err := db.DB()
	if err != nil {
		t.Fatalf("sql DB: %v", err)
	}
	// in-memory база живёт в одном соединении
	sqlDB.SetMaxOpenConns(1)
	t.Cleanup(func() { sqlDB.Close() })

	if err := model.AutoMigrate(db); err != nil {
		t.Fatalf("auto migrate: %v", err)
	}
	return db
}

func queuedRecord(id, ref string) model.BookingRecord {
	created := time.Date(2025, 2, 10, 9, 0, 0, 0, time.UTC)
	return model.BookingRecord{
		ID:               id,
		LocalID:          id,
		BookingReference: ref,
		CustomerID:       "cust-1",
		Destination:      "Paris",
		TravelersCount:   1,
		DurationDays:     3,
		TravelDate:       created.AddDate(0, 1, 0),
		ReturnDate:       created.AddDate(0, 1, 3),
		TotalAmount:      1200,
		Status:           model.BookingStatusPending,
		PaymentStatus:    model.PaymentStatusPending,
		Origin:           model.OriginLocalPending,
		CreatedAt:        created,
		UpdatedAt:        created,
	}
}

package model

import (
	"time"

	"github.com/google/uuid"
)

// Тип события аудита синхронизации.
type SyncEventType string

const (
	SyncEventPass           SyncEventType = "reconcile_pass"
	SyncEventFetchFailed    SyncEventType = "fetch_failed"
	SyncEventBookingSynced  SyncEventType = "booking_synced"
	SyncEventPersistFailed  SyncEventType = "persist_failed"
	SyncEventBookingFlagged SyncEventType = "booking_flagged"
	SyncEventDuplicateLocal SyncEventType = "duplicate_local_removed"
)

// sync_events — журнал проходов сверки. Нужен для ручного разбора
// записей, которые долго висят в очереди.
type SyncEvent struct {
	ID uuid.UUID `gorm:"type:uuid;primaryKey" json:"id"`

	EventType SyncEventType `gorm:"type:varchar(64);not null;index" json:"eventType"`
	Scope     string        `gorm:"type:varchar(128);not null;index" json:"scope"`

	CreatedAt time.Time `gorm:"not null;index" json:"createdAt"`

	Reference string `gorm:"type:varchar(64);index" json:"reference,omitempty"`
	Details   string `gorm:"type:text" json:"details,omitempty"`
}

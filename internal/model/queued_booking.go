package model

import (
	"encoding/json"
	"fmt"
	"time"

	"gorm.io/datatypes"
)

// Неймспейс локальной очереди по умолчанию.
const DefaultQueueNamespace = "admin_bookings"

// queued_bookings — долговременное хранилище локальной очереди.
// Порядок вставки задаёт Seq.
type QueuedBooking struct {
	Seq uint64 `gorm:"primaryKey;autoIncrement"`

	Namespace string `gorm:"type:varchar(64);not null;index"`
	QueueID   string `gorm:"type:varchar(64);not null;uniqueIndex"`

	Reference  string `gorm:"type:varchar(64);not null;index"`
	CustomerID string `gorm:"type:varchar(64);index"`
	Origin     Origin `gorm:"type:varchar(32);not null;index"`

	// ID, назначенный бэкендом после успешной отправки.
	AssignedID string `gorm:"type:varchar(64)"`

	// Полная запись в JSON — форма, общая со всеми потребителями неймспейса.
	Payload datatypes.JSON `gorm:"not null"`

	CreatedAt time.Time `gorm:"not null"`
	UpdatedAt time.Time `gorm:"not null"`
}

// NewQueuedBooking упаковывает запись в строку очереди.
func NewQueuedBooking(namespace string, rec BookingRecord) (*QueuedBooking, error) {
	payload, err := json.Marshal(rec)
	if err != nil {
		return nil, fmt.Errorf("marshal booking %s: %w", rec.BookingReference, err)
	}
	assigned := ""
	if rec.Origin == OriginLocalSynced && rec.ID != rec.QueueID() {
		assigned = rec.ID
	}
	return &QueuedBooking{
		Namespace:  namespace,
		QueueID:    rec.QueueID(),
		Reference:  rec.BookingReference,
		CustomerID: rec.CustomerID,
		Origin:     rec.Origin,
		AssignedID: assigned,
		Payload:    datatypes.JSON(payload),
		CreatedAt:  rec.CreatedAt,
		UpdatedAt:  rec.UpdatedAt,
	}, nil
}

// Record распаковывает строку очереди. Служебные колонки главнее payload:
// их меняет только само ядро.
func (q *QueuedBooking) Record() (BookingRecord, error) {
	if err := ValidateJSON(q.Payload); err != nil {
		return BookingRecord{}, fmt.Errorf("queued booking %s: %w", q.QueueID, err)
	}
	var rec BookingRecord
	if err := json.Unmarshal(q.Payload, &rec); err != nil {
		return BookingRecord{}, fmt.Errorf("queued booking %s: %w", q.QueueID, err)
	}
	rec.LocalID = q.QueueID
	rec.Origin = q.Origin
	if q.AssignedID != "" {
		rec.ID = q.AssignedID
	} else {
		rec.ID = q.QueueID
	}
	return rec, nil
}

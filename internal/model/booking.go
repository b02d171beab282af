package model

import (
	"sort"
	"strings"
	"time"

	"github.com/google/uuid"
)

// Статус бронирования.
type BookingStatus string

const (
	BookingStatusPending   BookingStatus = "pending"
	BookingStatusConfirmed BookingStatus = "confirmed"
	BookingStatusCancelled BookingStatus = "cancelled"
	BookingStatusCompleted BookingStatus = "completed"
)

func (s BookingStatus) IsValid() bool {
	switch s {
	case BookingStatusPending, BookingStatusConfirmed, BookingStatusCancelled, BookingStatusCompleted:
		return true
	default:
		return false
	}
}

// IsTerminal — из отменённого и завершённого бронирования переходов нет.
func (s BookingStatus) IsTerminal() bool {
	return s == BookingStatusCancelled || s == BookingStatusCompleted
}

// IsConverted — бронирование считается состоявшимся (для конверсии).
func (s BookingStatus) IsConverted() bool {
	return s == BookingStatusConfirmed || s == BookingStatusCompleted
}

func AllBookingStatuses() []BookingStatus {
	return []BookingStatus{
		BookingStatusPending,
		BookingStatusConfirmed,
		BookingStatusCancelled,
		BookingStatusCompleted,
	}
}

// Статус оплаты.
type PaymentStatus string

const (
	PaymentStatusPending  PaymentStatus = "pending"
	PaymentStatusPartial  PaymentStatus = "partial"
	PaymentStatusPaid     PaymentStatus = "paid"
	PaymentStatusFailed   PaymentStatus = "failed"
	PaymentStatusRefunded PaymentStatus = "refunded"
)

func (s PaymentStatus) IsValid() bool {
	switch s {
	case PaymentStatusPending, PaymentStatusPartial, PaymentStatusPaid, PaymentStatusFailed, PaymentStatusRefunded:
		return true
	default:
		return false
	}
}

func AllPaymentStatuses() []PaymentStatus {
	return []PaymentStatus{
		PaymentStatusPending,
		PaymentStatusPartial,
		PaymentStatusPaid,
		PaymentStatusFailed,
		PaymentStatusRefunded,
	}
}

// Origin — происхождение записи. Пользователю не показывается,
// но без него невозможна сверка локальной очереди с бэкендом.
type Origin string

const (
	OriginRemote       Origin = "remote"
	OriginLocalPending Origin = "local-pending"
	OriginLocalSynced  Origin = "local-synced"
)

func (o Origin) IsValid() bool {
	switch o {
	case OriginRemote, OriginLocalPending, OriginLocalSynced:
		return true
	default:
		return false
	}
}

// Префикс временных идентификаторов для записей, ещё не подтверждённых бэкендом.
const LocalIDPrefix = "tmp-"

// NewLocalID генерирует временный идентификатор для записи локальной очереди.
func NewLocalID() string {
	return LocalIDPrefix + uuid.NewString()
}

// BookingRecord — каноническая форма бронирования, общая для бэкенда и локальной очереди.
type BookingRecord struct {
	ID string `json:"id"`
	// Временный id записи в локальной очереди; сохраняется после того, как бэкенд назначил ID.
	LocalID string `json:"localId,omitempty"`

	// Человекочитаемый код, естественный ключ для дедупликации. Не меняется после создания.
	BookingReference string `json:"bookingReference"`

	CustomerID    string `json:"customerId"`
	CustomerName  string `json:"customerName"`
	CustomerEmail string `json:"customerEmail"`
	CustomerPhone string `json:"customerPhone"`

	PackageTitle string `json:"packageTitle"`
	Destination  string `json:"destination"`
	Country      string `json:"country"`
	// Канал привлечения (сайт, агентство, телефон и т.п.).
	Source string `json:"source,omitempty"`

	TravelersCount int       `json:"travelersCount"`
	TravelDate     time.Time `json:"travelDate"`
	ReturnDate     time.Time `json:"returnDate"`
	DurationDays   int       `json:"durationDays"`

	TotalAmount float64 `json:"totalAmount"`
	PaidAmount  float64 `json:"paidAmount"`
	Currency    string  `json:"currency"`

	Status        BookingStatus `json:"status"`
	PaymentStatus PaymentStatus `json:"paymentStatus"`
	Origin        Origin        `json:"origin"`

	CreatedAt time.Time `json:"createdAt"`
	UpdatedAt time.Time `json:"updatedAt"`

	Services []string `json:"services,omitempty"`
	Notes    string   `json:"notes,omitempty"`
}

// IsLocal — запись живёт в локальной очереди (ожидает отправки или подтверждения).
func (r *BookingRecord) IsLocal() bool {
	return r.Origin == OriginLocalPending || r.Origin == OriginLocalSynced
}

// QueueID — ключ записи в локальной очереди.
func (r *BookingRecord) QueueID() string {
	if r.LocalID != "" {
		return r.LocalID
	}
	return r.ID
}

// OutstandingAmount — неоплаченный остаток.
func (r *BookingRecord) OutstandingAmount() float64 {
	if r.PaidAmount >= r.TotalAmount {
		return 0
	}
	return r.TotalAmount - r.PaidAmount
}

// Clone возвращает глубокую копию записи.
func (r BookingRecord) Clone() BookingRecord {
	if r.Services != nil {
		r.Services = append([]string(nil), r.Services...)
	}
	return r
}

// NormalizeServices приводит services к множеству: без пустых значений и дублей, отсортировано.
func (r *BookingRecord) NormalizeServices() {
	if len(r.Services) == 0 {
		r.Services = nil
		return
	}
	seen := make(map[string]struct{}, len(r.Services))
	out := make([]string, 0, len(r.Services))
	for _, s := range r.Services {
		s = strings.ToLower(strings.TrimSpace(s))
		if s == "" {
			continue
		}
		if _, ok := seen[s]; ok {
			continue
		}
		seen[s] = struct{}{}
		out = append(out, s)
	}
	sort.Strings(out)
	r.Services = out
}

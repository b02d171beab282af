package lifecycle

import (
	"errors"
	"fmt"
	"time"

	"github.com/Leganyst/travel-booking-core/internal/model"
)

var (
	ErrInvalidTransition = errors.New("invalid transition")
	// completed допустим только после даты поездки.
	ErrTravelNotStarted = errors.New("travel date is not in the past")
)

// InvalidTransitionError называет текущее и запрошенное состояние.
type InvalidTransitionError struct {
	Kind      string // "status" | "payment"
	Reference string
	From      string
	To        string
	Reason    error
}

func (e *InvalidTransitionError) Error() string {
	msg := fmt.Sprintf("booking %q: invalid %s transition %s -> %s", e.Reference, e.Kind, e.From, e.To)
	if e.Reason != nil {
		msg += ": " + e.Reason.Error()
	}
	return msg
}

func (e *InvalidTransitionError) Is(target error) bool {
	return target == ErrInvalidTransition
}

func (e *InvalidTransitionError) Unwrap() error { return e.Reason }

// Допустимые переходы статуса бронирования.
var bookingTransitions = map[model.BookingStatus][]model.BookingStatus{
	model.BookingStatusPending:   {model.BookingStatusConfirmed, model.BookingStatusCancelled},
	model.BookingStatusConfirmed: {model.BookingStatusCompleted, model.BookingStatusCancelled},
}

// Допустимые переходы статуса оплаты.
var paymentTransitions = map[model.PaymentStatus][]model.PaymentStatus{
	model.PaymentStatusPending: {model.PaymentStatusPartial, model.PaymentStatusFailed},
	model.PaymentStatusPartial: {model.PaymentStatusPaid, model.PaymentStatusRefunded},
	model.PaymentStatusPaid:    {model.PaymentStatusRefunded},
}

func CanTransition(from, to model.BookingStatus) bool {
	for _, s := range bookingTransitions[from] {
		if s == to {
			return true
		}
	}
	return false
}

func CanTransitionPayment(from, to model.PaymentStatus) bool {
	for _, s := range paymentTransitions[from] {
		if s == to {
			return true
		}
	}
	return false
}

// AllowedTransitions — куда можно перевести бронирование из from (для меню в UI).
func AllowedTransitions(from model.BookingStatus) []model.BookingStatus {
	return append([]model.BookingStatus(nil), bookingTransitions[from]...)
}

func AllowedPaymentTransitions(from model.PaymentStatus) []model.PaymentStatus {
	return append([]model.PaymentStatus(nil), paymentTransitions[from]...)
}

// Transition возвращает копию записи в новом статусе. Исходная запись не меняется,
// origin не трогаем: синхронизация остаётся делом сверки.
func Transition(rec model.BookingRecord, to model.BookingStatus, now time.Time) (model.BookingRecord, error) {
	if !CanTransition(rec.Status, to) {
		return rec, &InvalidTransitionError{
			Kind:      "status",
			Reference: rec.BookingReference,
			From:      string(rec.Status),
			To:        string(to),
		}
	}
	if to == model.BookingStatusCompleted && (rec.TravelDate.IsZero() || !rec.TravelDate.Before(now)) {
		return rec, &InvalidTransitionError{
			Kind:      "status",
			Reference: rec.BookingReference,
			From:      string(rec.Status),
			To:        string(to),
			Reason:    ErrTravelNotStarted,
		}
	}

	out := rec.Clone()
	out.Status = to
	out.UpdatedAt = now
	return out, nil
}

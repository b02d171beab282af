package lifecycle

import (
	"errors"
	"fmt"
	"time"

	"github.com/Leganyst/travel-booking-core/internal/model"
)

var ErrPaymentAmount = errors.New("paid amount does not match payment status")

// TransitionPayment переводит оплату в новый статус и выставляет оплаченную сумму.
//   - paid: сумма принудительно равна TotalAmount;
//   - partial: 0 < paidAmount < TotalAmount;
//   - failed: paidAmount должен быть 0;
//   - refunded: сумма не меняется (возврат — отдельная операция у платёжки).
//
// Результат всегда удовлетворяет 0 <= PaidAmount <= TotalAmount.
func TransitionPayment(
	rec model.BookingRecord,
	to model.PaymentStatus,
	paidAmount float64,
	now time.Time,
) (model.BookingRecord, error) {
	if !CanTransitionPayment(rec.PaymentStatus, to) {
		return rec, &InvalidTransitionError{
			Kind:      "payment",
			Reference: rec.BookingReference,
			From:      string(rec.PaymentStatus),
			To:        string(to),
		}
	}

	out := rec.Clone()
	switch to {
	case model.PaymentStatusPaid:
		out.PaidAmount = out.TotalAmount
	case model.PaymentStatusPartial:
		if paidAmount <= 0 || paidAmount >= out.TotalAmount {
			return rec, &InvalidTransitionError{
				Kind:      "payment",
				Reference: rec.BookingReference,
				From:      string(rec.PaymentStatus),
				To:        string(to),
				Reason:    fmt.Errorf("%w: partial amount %.2f of %.2f", ErrPaymentAmount, paidAmount, out.TotalAmount),
			}
		}
		out.PaidAmount = paidAmount
	case model.PaymentStatusFailed:
		out.PaidAmount = 0
	}
	out.PaymentStatus = to
	out.UpdatedAt = now

	if err := out.Validate(); err != nil {
		return rec, err
	}
	return out, nil
}

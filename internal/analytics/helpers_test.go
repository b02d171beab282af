package analytics

import (
	"fmt"
	"time"

	"github.com/Leganyst/travel-booking-core/internal/model"
)

// Четверг.
var testAt = time.Date(2025, 4, 10, 12, 0, 0, 0, time.UTC)

func rec(n int, customer string, created time.Time, status model.BookingStatus, amount float64) model.BookingRecord {
	return model.BookingRecord{
		ID:               fmt.Sprintf("srv-%d", n),
		BookingReference: fmt.Sprintf("BK-%03d", n),
		CustomerID:       customer,
		CustomerName:     "Customer " + customer,
		Destination:      "Lisbon",
		Country:          "Portugal",
		TotalAmount:      amount,
		Status:           status,
		PaymentStatus:    model.PaymentStatusPending,
		Origin:           model.OriginRemote,
		CreatedAt:        created,
		UpdatedAt:        created,
	}
}

func paid(r model.BookingRecord) model.BookingRecord {
	r.PaymentStatus = model.PaymentStatusPaid
	r.PaidAmount = r.TotalAmount
	return r
}

// series создаёт n оплаченных бронирований, созданных в момент at.
func series(from, n int, at time.Time) []model.BookingRecord {
	out := make([]model.BookingRecord, 0, n)
	for i := 0; i < n; i++ {
		out = append(out, paid(rec(from+i, "c1", at, model.BookingStatusConfirmed, 1000)))
	}
	return out
}

package analytics

import (
	"math"

	"github.com/Leganyst/travel-booking-core/internal/model"
)

// Summary — сводные показатели по набору бронирований.
type Summary struct {
	TotalBookings  int `json:"totalBookings"`
	ConfirmedCount int `json:"confirmedCount"`
	CancelledCount int `json:"cancelledCount"`
	PendingCount   int `json:"pendingCount"`

	// Выручка — сумма totalAmount по неотменённым бронированиям.
	TotalRevenue   float64 `json:"totalRevenue"`
	AverageRevenue float64 `json:"averageRevenue"`
	// Фактически полученные деньги (без возвратов).
	PaidRevenue float64 `json:"paidRevenue"`
	// Процент confirmed+completed от всех бронирований.
	ConversionRate float64 `json:"conversionRate"`
}

func Summarize(records []model.BookingRecord) Summary {
	var s Summary
	billable := 0
	for _, rec := range records {
		s.TotalBookings++
		switch {
		case rec.Status.IsConverted():
			s.ConfirmedCount++
		case rec.Status == model.BookingStatusCancelled:
			s.CancelledCount++
		case rec.Status == model.BookingStatusPending:
			s.PendingCount++
		}
		if rec.Status != model.BookingStatusCancelled {
			s.TotalRevenue += rec.TotalAmount
			billable++
		}
		if rec.PaymentStatus != model.PaymentStatusRefunded {
			s.PaidRevenue += rec.PaidAmount
		}
	}

	s.TotalRevenue = round2(s.TotalRevenue)
	s.PaidRevenue = round2(s.PaidRevenue)
	if billable > 0 {
		s.AverageRevenue = round2(s.TotalRevenue / float64(billable))
	}
	s.ConversionRate = percent(s.ConfirmedCount, s.TotalBookings)
	return s
}

// revenue считает выручку так же, как Summarize.
func revenue(rec model.BookingRecord) float64 {
	if rec.Status == model.BookingStatusCancelled {
		return 0
	}
	return rec.TotalAmount
}

func percent(part, total int) float64 {
	if total == 0 {
		return 0
	}
	return round2(float64(part) * 100 / float64(total))
}

func round2(v float64) float64 {
	return math.Round(v*100) / 100
}

package model

import (
	"errors"
	"fmt"
	"strings"
)

// ErrIntegrity — запись нарушает инварианты модели и не может участвовать в расчётах.
var ErrIntegrity = errors.New("booking data integrity violation")

// IntegrityError перечисляет все нарушенные инварианты одной записи.
type IntegrityError struct {
	Reference  string
	Violations []string
}

func (e *IntegrityError) Error() string {
	return fmt.Sprintf("booking %q: %s", e.Reference, strings.Join(e.Violations, "; "))
}

func (e *IntegrityError) Unwrap() error { return ErrIntegrity }

// Validate проверяет инварианты записи. nil — запись корректна.
func (r *BookingRecord) Validate() error {
	var v []string

	if strings.TrimSpace(r.BookingReference) == "" {
		v = append(v, "booking reference is empty")
	}
	if r.TravelersCount < 1 {
		v = append(v, fmt.Sprintf("travelers count %d < 1", r.TravelersCount))
	}
	if r.DurationDays < 1 {
		v = append(v, fmt.Sprintf("duration days %d < 1", r.DurationDays))
	}
	if r.TotalAmount < 0 {
		v = append(v, fmt.Sprintf("total amount %.2f is negative", r.TotalAmount))
	}
	if r.PaidAmount < 0 {
		v = append(v, fmt.Sprintf("paid amount %.2f is negative", r.PaidAmount))
	}
	if r.PaidAmount > r.TotalAmount {
		v = append(v, fmt.Sprintf("paid amount %.2f exceeds total amount %.2f", r.PaidAmount, r.TotalAmount))
	}
	if !r.Status.IsValid() {
		v = append(v, fmt.Sprintf("unknown status %q", r.Status))
	}
	if !r.PaymentStatus.IsValid() {
		v = append(v, fmt.Sprintf("unknown payment status %q", r.PaymentStatus))
	}
	if !r.Origin.IsValid() {
		v = append(v, fmt.Sprintf("unknown origin %q", r.Origin))
	}
	if !r.ReturnDate.IsZero() && !r.TravelDate.IsZero() && r.ReturnDate.Before(r.TravelDate) {
		v = append(v, "return date is before travel date")
	}

	if len(v) == 0 {
		return nil
	}
	return &IntegrityError{Reference: r.BookingReference, Violations: v}
}

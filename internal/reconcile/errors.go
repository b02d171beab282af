package reconcile

import (
	"errors"
	"fmt"
)

var (
	ErrRemoteFetch     = errors.New("remote fetch failed")
	ErrPersist         = errors.New("persist booking failed")
	ErrRemoteUpdate    = errors.New("backend did not accept booking update")
	ErrDataIntegrity   = errors.New("booking data integrity error")
	ErrBookingNotFound = errors.New("booking not found in scope")
)

// RemoteFetchError — бэкенд недоступен или вернул мусор. Проход не прерывается,
// ошибка уходит только в статус синхронизации.
type RemoteFetchError struct {
	Scope string
	Err   error
}

func (e *RemoteFetchError) Error() string {
	return fmt.Sprintf("fetch remote bookings for %s: %v", e.Scope, e.Err)
}

func (e *RemoteFetchError) Is(target error) bool { return target == ErrRemoteFetch }

func (e *RemoteFetchError) Unwrap() error { return e.Err }

// PersistError — бэкенд не принял запись. Запись остаётся в очереди.
type PersistError struct {
	Reference string
	QueueID   string
	Err       error
}

func (e *PersistError) Error() string {
	return fmt.Sprintf("persist booking %q: %v", e.Reference, e.Err)
}

func (e *PersistError) Is(target error) bool { return target == ErrPersist }

func (e *PersistError) Unwrap() error { return e.Err }

// UpdateError — бэкенд не принял изменение уже созданной записи.
// Изменение не применено ни к снимку, ни к очереди, повторять его должен вызывающий.
type UpdateError struct {
	Reference string
	Err       error
}

func (e *UpdateError) Error() string {
	return fmt.Sprintf("update booking %q on backend: %v", e.Reference, e.Err)
}

func (e *UpdateError) Is(target error) bool { return target == ErrRemoteUpdate }

func (e *UpdateError) Unwrap() error { return e.Err }

// DataIntegrityError — запись нарушает инварианты и исключена из сводного представления.
type DataIntegrityError struct {
	Reference string
	Origin    string
	Err       error
}

func (e *DataIntegrityError) Error() string {
	return fmt.Sprintf("flagged %s booking %q: %v", e.Origin, e.Reference, e.Err)
}

func (e *DataIntegrityError) Is(target error) bool { return target == ErrDataIntegrity }

func (e *DataIntegrityError) Unwrap() error { return e.Err }

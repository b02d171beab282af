package reconcile

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/Leganyst/travel-booking-core/internal/events"
	"github.com/Leganyst/travel-booking-core/internal/lifecycle"
	"github.com/Leganyst/travel-booking-core/internal/model"
)

// UpdateStatus меняет статус бронирования по правилам lifecycle.
// local-pending запись меняется только в очереди, остальные сначала пишутся на бэкенд.
// Если бэкенд изменение не принял, возвращается *UpdateError, запись не меняется.
func (r *Reconciler) UpdateStatus(
	ctx context.Context,
	scope Scope,
	reference string,
	to model.BookingStatus,
) (model.BookingRecord, error) {
	return r.mutate(ctx, scope, reference, events.TypeBookingStatusChanged,
		func(rec model.BookingRecord, now time.Time) (model.BookingRecord, error) {
			return lifecycle.Transition(rec, to, now)
		})
}

// UpdatePayment меняет статус оплаты и оплаченную сумму.
func (r *Reconciler) UpdatePayment(
	ctx context.Context,
	scope Scope,
	reference string,
	to model.PaymentStatus,
	paidAmount float64,
) (model.BookingRecord, error) {
	return r.mutate(ctx, scope, reference, events.TypeBookingPaymentChanged,
		func(rec model.BookingRecord, now time.Time) (model.BookingRecord, error) {
			return lifecycle.TransitionPayment(rec, to, paidAmount, now)
		})
}

type mutation func(rec model.BookingRecord, now time.Time) (model.BookingRecord, error)

func (r *Reconciler) mutate(
	ctx context.Context,
	scope Scope,
	reference string,
	evType events.Type,
	apply mutation,
) (model.BookingRecord, error) {
	current, err := r.lookup(ctx, scope, reference)
	if err != nil {
		return model.BookingRecord{}, err
	}

	key := lockKey(current)
	if err := r.locks.lock(ctx, key); err != nil {
		return model.BookingRecord{}, err
	}
	defer r.locks.unlock(key)

	// Пока ждали блокировку, проход мог отправить запись или удалить её из очереди.
	if current.IsLocal() {
		fresh, ok := r.findQueued(ctx, current.QueueID())
		if !ok {
			return model.BookingRecord{}, fmt.Errorf("%s: %w", reference, ErrBookingNotFound)
		}
		current = fresh
	}

	updated, err := apply(current, r.now())
	if err != nil {
		return model.BookingRecord{}, err
	}

	switch updated.Origin {
	case model.OriginLocalPending:
		if err := r.queue.Update(ctx, updated); err != nil {
			return model.BookingRecord{}, err
		}
	default:
		if err := r.writeThrough(ctx, updated); err != nil {
			return model.BookingRecord{}, err
		}
		if updated.Origin == model.OriginLocalSynced {
			if err := r.queue.Update(ctx, updated); err != nil {
				// бэкенд уже принял изменение, следующий проход подтянет его версию
				r.log.Warn("update synced queue copy", "reference", reference, "error", err)
			}
		}
	}

	r.replaceInSnapshots(updated)
	r.publish(ctx, events.New(evType, scope.Key(), updated, r.now()))
	r.log.Info("booking updated",
		"reference", reference,
		"origin", updated.Origin,
		"status", updated.Status,
		"payment_status", updated.PaymentStatus,
	)
	return updated, nil
}

func (r *Reconciler) writeThrough(ctx context.Context, rec model.BookingRecord) error {
	pctx, cancel := context.WithTimeout(ctx, r.cfg.PersistTimeout)
	defer cancel()
	if err := r.remote.UpdateBooking(pctx, rec); err != nil {
		r.log.Warn("write booking update failed", "reference", rec.BookingReference, "error", err)
		return &UpdateError{Reference: rec.BookingReference, Err: err}
	}
	return nil
}

// lookup ищет запись в последнем снимке области; без снимка сначала выполняется проход.
func (r *Reconciler) lookup(ctx context.Context, scope Scope, reference string) (model.BookingRecord, error) {
	snap := r.Last(scope)
	if snap == nil {
		var err error
		if snap, err = r.Reconcile(ctx, scope); err != nil {
			return model.BookingRecord{}, err
		}
	}
	if rec, ok := snap.Get(reference); ok {
		return rec, nil
	}
	// Запись могли поставить в очередь уже после прохода.
	for _, rec := range r.queue.ListQueued(ctx) {
		if rec.BookingReference == reference && scope.Matches(rec) {
			return rec, nil
		}
	}
	return model.BookingRecord{}, fmt.Errorf("%s: %w", reference, ErrBookingNotFound)
}

func (r *Reconciler) findQueued(ctx context.Context, queueID string) (model.BookingRecord, bool) {
	for _, rec := range r.queue.ListQueued(ctx) {
		if rec.QueueID() == queueID {
			return rec, true
		}
	}
	return model.BookingRecord{}, false
}

// replaceInSnapshots обновляет запись во всех последних снимках, где она есть.
func (r *Reconciler) replaceInSnapshots(rec model.BookingRecord) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for key, snap := range r.last {
		if _, ok := snap.index[rec.BookingReference]; ok {
			r.last[key] = snap.withRecord(rec)
		}
	}
}

// Локальные записи блокируются по id очереди, как при отправке; удалённые по reference.
func lockKey(rec model.BookingRecord) string {
	if rec.IsLocal() {
		return rec.QueueID()
	}
	return "ref:" + rec.BookingReference
}

func newEventID() uuid.UUID { return uuid.New() }

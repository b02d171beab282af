package reconcile

import (
	"context"
	"errors"
	"testing"

	"github.com/Leganyst/travel-booking-core/internal/events"
	"github.com/Leganyst/travel-booking-core/internal/lifecycle"
	"github.com/Leganyst/travel-booking-core/internal/model"
)

func TestUpdateStatus_LocalPendingStaysInQueue(t *testing.T) {
	ctx := context.Background()
	q := newTestQueue(t)
	remote := &fakeRemote{persistErr: errors.New("down")}
	pub := &fakePublisher{}
	r := newTestReconciler(remote, q, WithPublisher(pub))

	if _, err := q.Enqueue(ctx, booking("BK-001", "c1")); err != nil {
		t.Fatalf("enqueue: %v", err)
	}
	if _, err := r.Reconcile(ctx, CustomerScope("c1")); err != nil {
		t.Fatalf("reconcile: %v", err)
	}
	persistedBefore := len(remote.persistedRefs())

	updated, err := r.UpdateStatus(ctx, CustomerScope("c1"), "BK-001", model.BookingStatusCancelled)
	if err != nil {
		t.Fatalf("update status: %v", err)
	}
	if updated.Status != model.BookingStatusCancelled || updated.Origin != model.OriginLocalPending {
		t.Fatalf("unexpected record: status=%s origin=%s", updated.Status, updated.Origin)
	}
	if n := len(remote.persistedRefs()); n != persistedBefore || len(remote.updatedRefs()) != 0 {
		t.Fatalf("local-pending change must not call the backend")
	}

	queued := q.ListQueued(ctx)
	if len(queued) != 1 || queued[0].Status != model.BookingStatusCancelled {
		t.Fatalf("queue copy not updated: %+v", queued)
	}
	if rec, _ := r.Last(CustomerScope("c1")).Get("BK-001"); rec.Status != model.BookingStatusCancelled {
		t.Fatalf("snapshot not updated, status=%s", rec.Status)
	}
	types := pub.types()
	if types[len(types)-1] != events.TypeBookingStatusChanged {
		t.Fatalf("expected status_changed event, got %v", types)
	}
}

func TestUpdateStatus_RemoteWritesThrough(t *testing.T) {
	ctx := context.Background()
	remote := &fakeRemote{bookings: []model.BookingRecord{remoteBooking("srv-9", "BK-002", "c1")}}
	r := newTestReconciler(remote, newTestQueue(t))

	updated, err := r.UpdateStatus(ctx, AdminScope(), "BK-002", model.BookingStatusConfirmed)
	if err != nil {
		t.Fatalf("update status: %v", err)
	}
	if updated.Origin != model.OriginRemote || updated.Status != model.BookingStatusConfirmed {
		t.Fatalf("unexpected record: %+v", updated)
	}
	if refs := remote.updatedRefs(); len(refs) != 1 || refs[0] != "BK-002" {
		t.Fatalf("expected write-through of BK-002, got %v", refs)
	}
	if refs := remote.persistedRefs(); len(refs) != 0 {
		t.Fatalf("an update must not go through the create route, got %v", refs)
	}

	// бэкенд вернул новую версию, следующий проход её не откатывает
	snap, err := r.Reconcile(ctx, AdminScope())
	if err != nil {
		t.Fatalf("reconcile: %v", err)
	}
	if rec, _ := snap.Get("BK-002"); rec.Status != model.BookingStatusConfirmed {
		t.Fatalf("status reverted after reconcile: %s", rec.Status)
	}
}

func TestUpdateStatus_SequentialChangesAllReachBackend(t *testing.T) {
	ctx := context.Background()
	remote := &fakeRemote{bookings: []model.BookingRecord{remoteBooking("srv-9", "BK-010", "c1")}}
	r := newTestReconciler(remote, newTestQueue(t))

	if _, err := r.UpdateStatus(ctx, AdminScope(), "BK-010", model.BookingStatusConfirmed); err != nil {
		t.Fatalf("confirm: %v", err)
	}
	if _, err := r.UpdatePayment(ctx, AdminScope(), "BK-010", model.PaymentStatusPartial, 500); err != nil {
		t.Fatalf("pay: %v", err)
	}
	if _, err := r.UpdateStatus(ctx, AdminScope(), "BK-010", model.BookingStatusCancelled); err != nil {
		t.Fatalf("cancel: %v", err)
	}

	if refs := remote.updatedRefs(); len(refs) != 3 {
		t.Fatalf("every change must be written, got %v", refs)
	}
	snap, err := r.Reconcile(ctx, AdminScope())
	if err != nil {
		t.Fatalf("reconcile: %v", err)
	}
	rec, _ := snap.Get("BK-010")
	if rec.Status != model.BookingStatusCancelled || rec.PaymentStatus != model.PaymentStatusPartial {
		t.Fatalf("backend lost a change: status=%s payment=%s", rec.Status, rec.PaymentStatus)
	}
}

func TestUpdateStatus_WriteThroughFailureLeavesRecord(t *testing.T) {
	ctx := context.Background()
	remote := &fakeRemote{bookings: []model.BookingRecord{remoteBooking("srv-9", "BK-002", "c1")}}
	r := newTestReconciler(remote, newTestQueue(t))

	if _, err := r.Reconcile(ctx, AdminScope()); err != nil {
		t.Fatalf("reconcile: %v", err)
	}
	remote.set(func(f *fakeRemote) { f.updateErr = errors.New("503 service unavailable") })

	_, err := r.UpdateStatus(ctx, AdminScope(), "BK-002", model.BookingStatusConfirmed)
	var uerr *UpdateError
	if !errors.As(err, &uerr) || !errors.Is(err, ErrRemoteUpdate) {
		t.Fatalf("expected UpdateError, got %v", err)
	}
	if uerr.Reference != "BK-002" {
		t.Fatalf("unexpected reference %q", uerr.Reference)
	}
	if rec, _ := r.Last(AdminScope()).Get("BK-002"); rec.Status != model.BookingStatusPending {
		t.Fatalf("failed write-through must not change the snapshot, status=%s", rec.Status)
	}
}

func TestUpdateStatus_LocalSyncedUpdatesBoth(t *testing.T) {
	ctx := context.Background()
	q := newTestQueue(t)
	remote := &fakeRemote{}
	r := newTestReconciler(remote, q)

	if _, err := q.Enqueue(ctx, booking("BK-003", "c1")); err != nil {
		t.Fatalf("enqueue: %v", err)
	}
	if _, err := r.Reconcile(ctx, AdminScope()); err != nil {
		t.Fatalf("reconcile: %v", err)
	}

	updated, err := r.UpdateStatus(ctx, AdminScope(), "BK-003", model.BookingStatusConfirmed)
	if err != nil {
		t.Fatalf("update status: %v", err)
	}
	if updated.Origin != model.OriginLocalSynced {
		t.Fatalf("origin must stay local-synced, got %s", updated.Origin)
	}
	if refs := remote.persistedRefs(); len(refs) != 1 {
		t.Fatalf("expected a single create from the flush, got %v", refs)
	}
	if refs := remote.updatedRefs(); len(refs) != 1 || refs[0] != "BK-003" {
		t.Fatalf("expected write-through of BK-003, got %v", refs)
	}
	queued := q.ListQueued(ctx)
	if len(queued) != 1 || queued[0].Status != model.BookingStatusConfirmed {
		t.Fatalf("queue copy not updated: %+v", queued)
	}
}

func TestUpdateStatus_InvalidTransition(t *testing.T) {
	ctx := context.Background()
	cancelled := remoteBooking("srv-1", "BK-004", "c1")
	cancelled.Status = model.BookingStatusCancelled
	remote := &fakeRemote{bookings: []model.BookingRecord{cancelled}}
	r := newTestReconciler(remote, newTestQueue(t))

	_, err := r.UpdateStatus(ctx, AdminScope(), "BK-004", model.BookingStatusConfirmed)
	if !errors.Is(err, lifecycle.ErrInvalidTransition) {
		t.Fatalf("expected invalid transition, got %v", err)
	}
	if refs := remote.updatedRefs(); len(refs) != 0 {
		t.Fatalf("rejected transition must not reach the backend, got %v", refs)
	}
}

func TestUpdateStatus_UnknownReference(t *testing.T) {
	r := newTestReconciler(&fakeRemote{}, newTestQueue(t))

	_, err := r.UpdateStatus(context.Background(), AdminScope(), "BK-404", model.BookingStatusConfirmed)
	if !errors.Is(err, ErrBookingNotFound) {
		t.Fatalf("expected ErrBookingNotFound, got %v", err)
	}
}

func TestUpdateStatus_OtherCustomerIsNotVisible(t *testing.T) {
	remote := &fakeRemote{bookings: []model.BookingRecord{remoteBooking("srv-1", "BK-005", "c1")}}
	r := newTestReconciler(remote, newTestQueue(t))

	_, err := r.UpdateStatus(context.Background(), CustomerScope("c2"), "BK-005", model.BookingStatusCancelled)
	if !errors.Is(err, ErrBookingNotFound) {
		t.Fatalf("expected ErrBookingNotFound, got %v", err)
	}
}

func TestUpdatePayment_PartialThenPaid(t *testing.T) {
	ctx := context.Background()
	q := newTestQueue(t)
	remote := &fakeRemote{persistErr: errors.New("down")}
	pub := &fakePublisher{}
	r := newTestReconciler(remote, q, WithPublisher(pub))

	if _, err := q.Enqueue(ctx, booking("BK-006", "c1")); err != nil {
		t.Fatalf("enqueue: %v", err)
	}

	rec, err := r.UpdatePayment(ctx, AdminScope(), "BK-006", model.PaymentStatusPartial, 500)
	if err != nil {
		t.Fatalf("partial payment: %v", err)
	}
	if rec.PaidAmount != 500 || rec.OutstandingAmount() != 1300 {
		t.Fatalf("unexpected amounts: paid=%v outstanding=%v", rec.PaidAmount, rec.OutstandingAmount())
	}

	rec, err = r.UpdatePayment(ctx, AdminScope(), "BK-006", model.PaymentStatusPaid, 0)
	if err != nil {
		t.Fatalf("full payment: %v", err)
	}
	if rec.PaidAmount != rec.TotalAmount {
		t.Fatalf("paid must equal total, got %v of %v", rec.PaidAmount, rec.TotalAmount)
	}

	queued := q.ListQueued(ctx)
	if len(queued) != 1 || queued[0].PaymentStatus != model.PaymentStatusPaid {
		t.Fatalf("queue copy not updated: %+v", queued)
	}
	types := pub.types()
	if types[len(types)-1] != events.TypeBookingPaymentChanged {
		t.Fatalf("expected payment_changed event, got %v", types)
	}
}

func TestUpdatePayment_RejectsOutOfRangePartial(t *testing.T) {
	ctx := context.Background()
	q := newTestQueue(t)
	r := newTestReconciler(&fakeRemote{persistErr: errors.New("down")}, q)

	if _, err := q.Enqueue(ctx, booking("BK-007", "c1")); err != nil {
		t.Fatalf("enqueue: %v", err)
	}

	_, err := r.UpdatePayment(ctx, AdminScope(), "BK-007", model.PaymentStatusPartial, 5000)
	if !errors.Is(err, lifecycle.ErrPaymentAmount) {
		t.Fatalf("expected ErrPaymentAmount, got %v", err)
	}
	if queued := q.ListQueued(ctx); queued[0].PaidAmount != 0 {
		t.Fatalf("rejected payment must not touch the queue")
	}
}

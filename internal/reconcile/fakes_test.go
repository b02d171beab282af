package reconcile

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"

	"github.com/Leganyst/travel-booking-core/internal/events"
	"github.com/Leganyst/travel-booking-core/internal/model"
	"github.com/Leganyst/travel-booking-core/internal/queue"
	"github.com/Leganyst/travel-booking-core/internal/repository"
)

var testNow = time.Date(2025, 4, 10, 12, 0, 0, 0, time.UTC)

func testClock() time.Time { return testNow }

// fakeRemote — бэкенд в памяти. fetchGate/persistGate позволяют задержать вызовы.
type fakeRemote struct {
	mu          sync.Mutex
	bookings    []model.BookingRecord
	fetchErr    error
	persistErr  error
	updateErr   error
	fetchGate   chan struct{}
	persistGate chan struct{}

	fetches   int
	persisted []model.BookingRecord
	updates   []model.BookingRecord
	nextID    int
}

func (f *fakeRemote) FetchBookings(ctx context.Context, scope Scope) ([]model.BookingRecord, error) {
	f.mu.Lock()
	f.fetches++
	gate := f.fetchGate
	f.mu.Unlock()

	if gate != nil {
		select {
		case <-gate:
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}

	f.mu.Lock()
	defer f.mu.Unlock()
	if f.fetchErr != nil {
		return nil, f.fetchErr
	}
	var out []model.BookingRecord
	for _, rec := range f.bookings {
		if scope.Matches(rec) {
			out = append(out, rec.Clone())
		}
	}
	return out, nil
}

func (f *fakeRemote) PersistBooking(ctx context.Context, rec model.BookingRecord) (string, error) {
	f.mu.Lock()
	gate := f.persistGate
	f.mu.Unlock()

	if gate != nil {
		select {
		case <-gate:
		case <-ctx.Done():
			return "", ctx.Err()
		}
	}

	f.mu.Lock()
	defer f.mu.Unlock()
	f.persisted = append(f.persisted, rec.Clone())
	if f.persistErr != nil {
		return "", f.persistErr
	}
	f.nextID++
	return fmt.Sprintf("srv-%d", f.nextID), nil
}

func (f *fakeRemote) UpdateBooking(_ context.Context, rec model.BookingRecord) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.updateErr != nil {
		return f.updateErr
	}
	f.updates = append(f.updates, rec.Clone())
	for i := range f.bookings {
		if f.bookings[i].BookingReference == rec.BookingReference {
			f.bookings[i] = rec.Clone()
			f.bookings[i].Origin = model.OriginRemote
			f.bookings[i].LocalID = ""
		}
	}
	return nil
}

func (f *fakeRemote) set(fn func(f *fakeRemote)) {
	f.mu.Lock()
	defer f.mu.Unlock()
	fn(f)
}

func (f *fakeRemote) fetchCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.fetches
}

func (f *fakeRemote) persistedRefs() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	refs := make([]string, 0, len(f.persisted))
	for _, rec := range f.persisted {
		refs = append(refs, rec.BookingReference)
	}
	return refs
}

func (f *fakeRemote) updatedRefs() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	refs := make([]string, 0, len(f.updates))
	for _, rec := range f.updates {
		refs = append(refs, rec.BookingReference)
	}
	return refs
}

type fakePublisher struct {
	mu     sync.Mutex
	events []events.Event
}

func (p *fakePublisher) Publish(_ context.Context, evs ...events.Event) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.events = append(p.events, evs...)
	return nil
}

func (p *fakePublisher) types() []events.Type {
	p.mu.Lock()
	defer p.mu.Unlock()
	out := make([]events.Type, 0, len(p.events))
	for _, ev := range p.events {
		out = append(out, ev.Type)
	}
	return out
}

func openTestDB(t *testing.T) *gorm.DB {
	t.Helper()

	db, err := gorm.Open(sqlite.Open("file::memory:"), &gorm.Config{
		Logger: gormlogger.Default.LogMode(gormlogger.Silent),
	})
	if err != nil {
		t.Fatalf("open sqlite: %v", err)
	}
	sqlDB, err := db.DB()
	if err != nil {
		t.Fatalf("sql DB: %v", err)
	}
	sqlDB.SetMaxOpenConns(1)
	t.Cleanup(func() { sqlDB.Close() })

	if err := model.AutoMigrate(db); err != nil {
		t.Fatalf("auto migrate: %v", err)
	}
	return db
}

func newTestQueue(t *testing.T) *queue.Store {
	t.Helper()
	repo := repository.NewGormQueueRepository(openTestDB(t), model.DefaultQueueNamespace)
	return queue.NewStore(repo, nil, queue.WithClock(testClock))
}

func booking(ref, customer string) model.BookingRecord {
	return model.BookingRecord{
		BookingReference: ref,
		CustomerID:       customer,
		CustomerName:     "Customer " + customer,
		Destination:      "Lisbon",
		Country:          "Portugal",
		TravelersCount:   2,
		DurationDays:     4,
		TravelDate:       testNow.AddDate(0, 1, 0),
		ReturnDate:       testNow.AddDate(0, 1, 4),
		TotalAmount:      1800,
		Status:           model.BookingStatusPending,
		PaymentStatus:    model.PaymentStatusPending,
		CreatedAt:        testNow.AddDate(0, 0, -1),
		UpdatedAt:        testNow.AddDate(0, 0, -1),
	}
}

func remoteBooking(id, ref, customer string) model.BookingRecord {
	rec := booking(ref, customer)
	rec.ID = id
	rec.Origin = model.OriginRemote
	return rec
}

func waitFor(t *testing.T, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(3 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatalf("condition not met in time")
}

package queue

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/Leganyst/travel-booking-core/internal/model"
	"github.com/Leganyst/travel-booking-core/internal/repository"
)

var (
	ErrNotLocalPending = errors.New("only local-pending bookings can be enqueued")
	ErrNotQueued       = errors.New("booking is not in the local queue")
)

// Store — локальная очередь бронирований, которые бэкенд ещё не подтвердил.
// Ошибки чтения не пробрасываются наверх: очередь деградирует до пустой,
// чтобы не ломать интерфейс. Ошибки записи логируются и возвращаются.
type Store struct {
	repo repository.QueueRepository
	log  *slog.Logger
	now  func() time.Time
}

type Option func(*Store)

func WithClock(now func() time.Time) Option {
	return func(s *Store) { s.now = now }
}

func NewStore(repo repository.QueueRepository, logger *slog.Logger, opts ...Option) *Store {
	if logger == nil {
		logger = slog.Default()
	}
	s := &Store{
		repo: repo,
		log:  logger.With("component", "queue"),
		now:  func() time.Time { return time.Now().UTC() },
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Enqueue кладёт запись в очередь. Бэкенд здесь не вызывается.
// Пустые статусы заменяются на pending; запись с нарушенными инвариантами не принимается.
func (s *Store) Enqueue(ctx context.Context, rec model.BookingRecord) (model.BookingRecord, error) {
	if rec.Origin == "" {
		rec.Origin = model.OriginLocalPending
	}
	if rec.Origin != model.OriginLocalPending {
		return model.BookingRecord{}, ErrNotLocalPending
	}

	rec = rec.Clone()
	if rec.ID == "" {
		rec.ID = model.NewLocalID()
	}
	rec.LocalID = rec.ID
	now := s.now()
	if rec.CreatedAt.IsZero() {
		rec.CreatedAt = now
	}
	if rec.UpdatedAt.IsZero() {
		rec.UpdatedAt = rec.CreatedAt
	}
	if rec.Status == "" {
		rec.Status = model.BookingStatusPending
	}
	if rec.PaymentStatus == "" {
		rec.PaymentStatus = model.PaymentStatusPending
	}
	rec.NormalizeServices()
	if err := rec.Validate(); err != nil {
		return model.BookingRecord{}, err
	}

	if err := s.repo.Insert(ctx, rec); err != nil {
		s.log.Error("enqueue booking", "reference", rec.BookingReference, "error", err)
		return model.BookingRecord{}, fmt.Errorf("enqueue booking %s: %w", rec.BookingReference, err)
	}
	s.log.Info("booking queued", "reference", rec.BookingReference, "id", rec.ID)
	return rec, nil
}

// ListPending возвращает записи local-pending в порядке вставки. Никогда не падает.
func (s *Store) ListPending(ctx context.Context) []model.BookingRecord {
	all := s.ListQueued(ctx)
	pending := all[:0]
	for _, rec := range all {
		if rec.Origin == model.OriginLocalPending {
			pending = append(pending, rec)
		}
	}
	return pending
}

// ListQueued возвращает всё содержимое очереди: и неотправленные записи,
// и отправленные, но ещё не вернувшиеся с бэкенда.
func (s *Store) ListQueued(ctx context.Context) []model.BookingRecord {
	records, corrupt, err := s.repo.List(ctx)
	if err != nil {
		s.log.Error("read queue", "error", err)
		return []model.BookingRecord{}
	}
	for _, cerr := range corrupt {
		s.log.Warn("skip corrupt queue entry", "error", cerr)
	}
	if records == nil {
		records = []model.BookingRecord{}
	}
	return records
}

// PendingCount — число записей, ожидающих отправки.
func (s *Store) PendingCount(ctx context.Context) int {
	return len(s.ListPending(ctx))
}

// MarkSynced фиксирует успешную отправку: запись остаётся в очереди как local-synced
// до тех пор, пока бэкенд не вернёт её по reference.
func (s *Store) MarkSynced(ctx context.Context, id, assignedID string) error {
	if assignedID == "" {
		assignedID = id
	}
	if err := s.repo.MarkSynced(ctx, id, assignedID, s.now()); err != nil {
		s.log.Error("mark queued booking synced", "id", id, "error", err)
		return fmt.Errorf("mark synced %s: %w", id, err)
	}
	return nil
}

// Remove удаляет запись из очереди. Повторное удаление не ошибка.
func (s *Store) Remove(ctx context.Context, id string) error {
	if err := s.repo.Delete(ctx, id); err != nil {
		s.log.Error("remove queued booking", "id", id, "error", err)
		return fmt.Errorf("remove %s: %w", id, err)
	}
	return nil
}

// Update сохраняет изменения записи, уже лежащей в очереди. Origin не меняется.
func (s *Store) Update(ctx context.Context, rec model.BookingRecord) error {
	if !rec.IsLocal() {
		return fmt.Errorf("update %s: %w", rec.BookingReference, ErrNotQueued)
	}
	rec = rec.Clone()
	rec.NormalizeServices()
	if err := s.repo.Update(ctx, rec); err != nil {
		s.log.Error("update queued booking", "id", rec.QueueID(), "error", err)
		return fmt.Errorf("update %s: %w", rec.QueueID(), err)
	}
	return nil
}

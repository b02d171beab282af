package reconcile

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"golang.org/x/sync/errgroup"
	"golang.org/x/sync/singleflight"

	"github.com/Leganyst/travel-booking-core/internal/events"
	"github.com/Leganyst/travel-booking-core/internal/metrics"
	"github.com/Leganyst/travel-booking-core/internal/model"
	"github.com/Leganyst/travel-booking-core/internal/repository"
	"github.com/Leganyst/travel-booking-core/internal/syncstatus"
)

// RemoteSource — бэкенд бронирований, источник истины.
type RemoteSource interface {
	FetchBookings(ctx context.Context, scope Scope) ([]model.BookingRecord, error)
	// PersistBooking создаёт запись и возвращает ID, назначенный бэкендом.
	PersistBooking(ctx context.Context, rec model.BookingRecord) (string, error)
	// UpdateBooking записывает изменение записи, которую бэкенд уже принял.
	UpdateBooking(ctx context.Context, rec model.BookingRecord) error
}

// LocalQueue — локальная очередь (см. internal/queue).
type LocalQueue interface {
	ListQueued(ctx context.Context) []model.BookingRecord
	MarkSynced(ctx context.Context, id, assignedID string) error
	Remove(ctx context.Context, id string) error
	Update(ctx context.Context, rec model.BookingRecord) error
}

// Observer получает итог каждого прохода (индикатор синхронизации).
type Observer interface {
	Observe(scope string, obs syncstatus.Observation)
}

type Config struct {
	// Ограничение на весь проход; проход живёт дольше вызывающего.
	PassTimeout time.Duration
	// Ограничение на одну отправку записи.
	PersistTimeout time.Duration
	// Сколько записей отправляем параллельно.
	FlushConcurrency int
}

func DefaultConfig() Config {
	return Config{
		PassTimeout:      60 * time.Second,
		PersistTimeout:   5 * time.Second,
		FlushConcurrency: 4,
	}
}

type Reconciler struct {
	remote RemoteSource
	queue  LocalQueue
	cfg    Config
	log    *slog.Logger
	now    func() time.Time

	observer  Observer
	publisher events.Publisher
	metrics   *metrics.Metrics
	audit     repository.SyncEventRepository

	flights singleflight.Group
	locks   *keyedLocks
	passSeq atomic.Uint64

	mu   sync.RWMutex
	last map[string]*Snapshot
	// Снимки проходов с номером не выше floor[scope] устарели и не сохраняются.
	floor map[string]uint64
}

type Option func(*Reconciler)

func WithClock(now func() time.Time) Option {
	return func(r *Reconciler) { r.now = now }
}

func WithObserver(o Observer) Option {
	return func(r *Reconciler) { r.observer = o }
}

func WithPublisher(p events.Publisher) Option {
	return func(r *Reconciler) { r.publisher = p }
}

func WithMetrics(m *metrics.Metrics) Option {
	return func(r *Reconciler) { r.metrics = m }
}

func WithAudit(repo repository.SyncEventRepository) Option {
	return func(r *Reconciler) { r.audit = repo }
}

func New(remote RemoteSource, queue LocalQueue, cfg Config, logger *slog.Logger, opts ...Option) *Reconciler {
	def := DefaultConfig()
	if cfg.PassTimeout <= 0 {
		cfg.PassTimeout = def.PassTimeout
	}
	if cfg.PersistTimeout <= 0 {
		cfg.PersistTimeout = def.PersistTimeout
	}
	if cfg.FlushConcurrency <= 0 {
		cfg.FlushConcurrency = def.FlushConcurrency
	}
	if logger == nil {
		logger = slog.Default()
	}

	r := &Reconciler{
		remote:    remote,
		queue:     queue,
		cfg:       cfg,
		log:       logger.With("component", "reconciler"),
		now:       func() time.Time { return time.Now().UTC() },
		publisher: events.NopPublisher{},
		locks:     newKeyedLocks(),
		last:      make(map[string]*Snapshot),
		floor:     make(map[string]uint64),
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Reconcile выполняет проход сверки для области видимости.
// Параллельные вызовы для одной области сливаются в один проход. Если ctx
// отменён, вызывающий перестаёт ждать, а сам проход доводится до конца, и
// очередь не остаётся в промежуточном состоянии.
// Ошибка возвращается только при отмене ctx: сбои бэкенда отражены в снимке.
func (r *Reconciler) Reconcile(ctx context.Context, scope Scope) (*Snapshot, error) {
	ch := r.flights.DoChan(scope.Key(), func() (any, error) {
		passCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), r.cfg.PassTimeout)
		defer cancel()
		return r.pass(passCtx, scope), nil
	})

	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	case res := <-ch:
		return res.Val.(*Snapshot), nil
	}
}

// Last — последний снимок области без нового прохода (nil, если проходов не было).
func (r *Reconciler) Last(scope Scope) *Snapshot {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.last[scope.Key()]
}

// Trigger сбрасывает последние снимки областей и запускает для них фоновые
// проходы. Следующий Last вернёт nil, пока новый проход не завершится, а
// проходы, начатые до вызова, свой снимок уже не сохранят.
func (r *Reconciler) Trigger(scopes ...Scope) {
	for _, scope := range scopes {
		key := scope.Key()
		r.mu.Lock()
		r.floor[key] = r.passSeq.Load()
		delete(r.last, key)
		r.mu.Unlock()
		r.flights.Forget(key)

		go func(scope Scope) {
			if _, err := r.Reconcile(context.Background(), scope); err != nil {
				r.log.Warn("triggered reconcile", "scope", scope.Key(), "error", err)
			}
		}(scope)
	}
}

func (r *Reconciler) pass(ctx context.Context, scope Scope) *Snapshot {
	seq := r.passSeq.Add(1)
	started := r.now()
	log := r.log.With("scope", scope.Key())

	// 1. Удалённые записи. Сбой — пустой набор и ошибка в статусе.
	var fetchErr *RemoteFetchError
	remote, err := r.remote.FetchBookings(ctx, scope)
	if err != nil {
		fetchErr = &RemoteFetchError{Scope: scope.Key(), Err: err}
		remote = nil
		log.Warn("remote fetch failed, using local queue only", "error", err)
	}

	// 2. Локальная очередь той же области.
	var local []model.BookingRecord
	for _, rec := range r.queue.ListQueued(ctx) {
		if scope.Matches(rec) {
			local = append(local, rec)
		}
	}

	// 3-5. Слияние по reference.
	merged := Merge(remote, local)
	for _, rec := range merged.Redundant {
		if err := r.queue.Remove(ctx, rec.QueueID()); err != nil {
			log.Error("remove redundant local booking", "reference", rec.BookingReference, "error", err)
			continue
		}
		r.record(ctx, scope, model.SyncEventDuplicateLocal, rec.BookingReference, "backend already knows this booking")
	}
	for _, f := range merged.Flagged {
		log.Warn("booking flagged", "reference", f.Reference, "origin", f.Origin, "error", f.Err)
		r.record(ctx, scope, model.SyncEventBookingFlagged, f.Reference, f.Err.Error())
	}
	r.metrics.Flagged(len(merged.Flagged))

	// 7. Отправка того, что бэкенд ещё не видел.
	records, synced, persistErrs := r.flush(ctx, scope, merged.Records, merged.RemoteRefs)

	snap := newSnapshot(scope, started, records)
	snap.seq = seq
	snap.FetchError = fetchErr
	snap.Flagged = merged.Flagged
	snap.PersistErrors = persistErrs
	snap.Synced = synced
	snap.RemoteRefs = merged.RemoteRefs

	r.mu.Lock()
	if prev := r.last[scope.Key()]; seq > r.floor[scope.Key()] && (prev == nil || prev.seq < seq) {
		r.last[scope.Key()] = snap
	}
	r.mu.Unlock()

	if r.observer != nil {
		obs := syncstatus.Observation{
			At:           started,
			RemoteRefs:   merged.RemoteRefs,
			PendingCount: snap.PendingCount(),
		}
		if fetchErr != nil {
			obs.FetchErr = fetchErr
		}
		r.observer.Observe(scope.Key(), obs)
	}
	r.metrics.ObservePass(fetchErr != nil, r.now().Sub(started))
	r.metrics.QueueDepth(scope.Key(), snap.PendingCount())

	if fetchErr != nil {
		r.record(ctx, scope, model.SyncEventFetchFailed, "", fetchErr.Error())
	}
	r.record(ctx, scope, model.SyncEventPass, "", fmt.Sprintf(
		"records=%d synced=%d persist_errors=%d flagged=%d",
		snap.Len(), len(synced), len(persistErrs), len(merged.Flagged),
	))

	log.Info("reconcile pass done",
		"records", snap.Len(),
		"pending", snap.PendingCount(),
		"synced", len(synced),
		"persist_errors", len(persistErrs),
		"flagged", len(merged.Flagged),
		"degraded", fetchErr != nil,
	)
	return snap
}

type flushResult struct {
	queueID    string
	reference  string
	assignedID string
	err        error
}

// flush отправляет local-pending записи на бэкенд. Запись, которую уже отправляет
// другой проход или меняет пользователь, пропускается, её подберёт следующий проход.
// Reference, которые бэкенд уже вернул (пусть и битыми), повторно не создаются.
func (r *Reconciler) flush(
	ctx context.Context,
	scope Scope,
	records []model.BookingRecord,
	remoteRefs []string,
) ([]model.BookingRecord, []string, []*PersistError) {
	known := make(map[string]struct{}, len(remoteRefs))
	for _, ref := range remoteRefs {
		known[ref] = struct{}{}
	}

	var candidates []string
	for _, rec := range records {
		if rec.Origin != model.OriginLocalPending {
			continue
		}
		if _, ok := known[rec.BookingReference]; ok {
			continue
		}
		if r.locks.tryLock(rec.QueueID()) {
			candidates = append(candidates, rec.QueueID())
		}
	}
	if len(candidates) == 0 {
		return records, nil, nil
	}

	// Под блокировкой перечитываем очередь: пока шло слияние, запись могли изменить.
	fresh := make(map[string]model.BookingRecord)
	for _, rec := range r.queue.ListQueued(ctx) {
		fresh[rec.QueueID()] = rec
	}

	results := make([]flushResult, len(candidates))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(r.cfg.FlushConcurrency)
	for i, id := range candidates {
		i, id := i, id
		g.Go(func() error {
			defer r.locks.unlock(id)
			rec, ok := fresh[id]
			if !ok || rec.Origin != model.OriginLocalPending {
				results[i] = flushResult{queueID: id}
				return nil
			}
			results[i] = r.persistOne(gctx, rec)
			return nil
		})
	}
	_ = g.Wait()

	byQueueID := make(map[string]int, len(records))
	for i, rec := range records {
		byQueueID[rec.QueueID()] = i
	}

	var (
		synced []string
		errs   []*PersistError
		out    = cloneAll(records)
		now    = r.now()
		evs    []events.Event
	)
	for _, res := range results {
		idx, ok := byQueueID[res.queueID]
		if !ok || res.reference == "" {
			continue
		}
		if res.err != nil {
			errs = append(errs, &PersistError{Reference: res.reference, QueueID: res.queueID, Err: res.err})
			continue
		}
		out[idx] = fresh[res.queueID].Clone()
		out[idx].Origin = model.OriginLocalSynced
		out[idx].ID = res.assignedID
		out[idx].LocalID = res.queueID
		synced = append(synced, res.reference)
		evs = append(evs, events.New(events.TypeBookingSynced, scope.Key(), out[idx], now))
	}

	r.metrics.Flushed(len(synced))
	r.metrics.PersistFailed(len(errs))
	r.publish(ctx, evs...)
	return out, synced, errs
}

func (r *Reconciler) persistOne(ctx context.Context, rec model.BookingRecord) flushResult {
	res := flushResult{queueID: rec.QueueID(), reference: rec.BookingReference}

	pctx, cancel := context.WithTimeout(ctx, r.cfg.PersistTimeout)
	assignedID, err := r.remote.PersistBooking(pctx, rec)
	cancel()
	if err != nil {
		res.err = err
		r.log.Warn("persist queued booking failed, keeping it queued",
			"reference", rec.BookingReference, "error", err)
		r.record(ctx, Scope{CustomerID: rec.CustomerID}, model.SyncEventPersistFailed, rec.BookingReference, err.Error())
		return res
	}
	if assignedID == "" {
		assignedID = rec.QueueID()
	}
	res.assignedID = assignedID

	// Запись идемпотентна по id: если она опоздала, повтор просто перезапишет то же самое.
	if err := r.queue.MarkSynced(ctx, rec.QueueID(), assignedID); err != nil {
		// бэкенд запись принял; при следующей отправке сработает ключ идемпотентности
		r.log.Error("mark synced", "reference", rec.BookingReference, "error", err)
	}
	r.record(ctx, Scope{CustomerID: rec.CustomerID}, model.SyncEventBookingSynced, rec.BookingReference, "assigned id "+assignedID)
	return res
}

func (r *Reconciler) publish(ctx context.Context, evs ...events.Event) {
	if len(evs) == 0 || r.publisher == nil {
		return
	}
	if err := r.publisher.Publish(ctx, evs...); err != nil {
		r.log.Warn("publish events", "count", len(evs), "error", err)
	}
}

func (r *Reconciler) record(ctx context.Context, scope Scope, t model.SyncEventType, ref, details string) {
	if r.audit == nil {
		return
	}
	ev := &model.SyncEvent{
		ID:        newEventID(),
		EventType: t,
		Scope:     scope.Key(),
		CreatedAt: r.now(),
		Reference: ref,
		Details:   details,
	}
	if err := r.audit.Create(ctx, ev); err != nil {
		r.log.Warn("write sync event", "type", t, "error", err)
	}
}

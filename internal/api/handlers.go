package api

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/Leganyst/travel-booking-core/internal/analytics"
	"github.com/Leganyst/travel-booking-core/internal/model"
	"github.com/Leganyst/travel-booking-core/internal/paging"
	"github.com/Leganyst/travel-booking-core/internal/reconcile"
	"github.com/Leganyst/travel-booking-core/internal/syncstatus"
)

// Reconciler — то, что HTTP-слою нужно от сверки.
type Reconciler interface {
	Reconcile(ctx context.Context, scope reconcile.Scope) (*reconcile.Snapshot, error)
	Last(scope reconcile.Scope) *reconcile.Snapshot
	UpdateStatus(ctx context.Context, scope reconcile.Scope, reference string, to model.BookingStatus) (model.BookingRecord, error)
	UpdatePayment(ctx context.Context, scope reconcile.Scope, reference string, to model.PaymentStatus, paidAmount float64) (model.BookingRecord, error)
	Trigger(scopes ...reconcile.Scope)
}

type Queue interface {
	Enqueue(ctx context.Context, rec model.BookingRecord) (model.BookingRecord, error)
}

type StatusSource interface {
	Status(scope string) syncstatus.Status
}

// SyncEventLog — журнал сверки для ручного разбора.
type SyncEventLog interface {
	ListByScope(ctx context.Context, scope string, limit, offset int) ([]model.SyncEvent, int64, error)
}

type Handlers struct {
	reconciler Reconciler
	queue      Queue
	status     StatusSource
	syncEvents SyncEventLog
	analytics  AnalyticsOptions
	log        *slog.Logger
	now        func() time.Time
}

func NewHandlers(
	reconciler Reconciler,
	queue Queue,
	status StatusSource,
	syncEvents SyncEventLog,
	opts AnalyticsOptions,
	logger *slog.Logger,
) *Handlers {
	if logger == nil {
		logger = slog.Default()
	}
	if opts.Cutoffs == (analytics.Cutoffs{}) {
		opts.Cutoffs = analytics.DefaultCutoffs()
	}
	return &Handlers{
		reconciler: reconciler,
		queue:      queue,
		status:     status,
		syncEvents: syncEvents,
		analytics:  opts,
		log:        logger.With("component", "api"),
		now:        func() time.Time { return time.Now().UTC() },
	}
}

func scopeFrom(r *http.Request) reconcile.Scope {
	return reconcile.Scope{CustomerID: r.URL.Query().Get("customer_id")}
}

// snapshot берёт последний снимок области; refresh=true или отсутствие снимка — новый проход.
func (h *Handlers) snapshot(r *http.Request) (*reconcile.Snapshot, error) {
	scope := scopeFrom(r)
	if r.URL.Query().Get("refresh") != "true" {
		if snap := h.reconciler.Last(scope); snap != nil {
			return snap, nil
		}
	}
	return h.reconciler.Reconcile(r.Context(), scope)
}

type bookingsResponse struct {
	paging.Page[model.BookingRecord]
	Degraded     bool      `json:"degraded"`
	PendingCount int       `json:"pendingCount"`
	SyncError    string    `json:"syncError,omitempty"`
	TakenAt      time.Time `json:"takenAt"`
}

// GET /api/v1/bookings?customer_id=&order=travel|created&page=&page_size=&refresh=
func (h *Handlers) ListBookings(w http.ResponseWriter, r *http.Request) {
	snap, err := h.snapshot(r)
	if err != nil {
		h.writeError(w, r, err)
		return
	}

	var records []model.BookingRecord
	switch order := r.URL.Query().Get("order"); order {
	case "", "created":
		records = snap.ByCreatedDesc()
	case "travel":
		records = snap.ByTravelDate()
	default:
		badRequest(w, "unknown order "+strconv.Quote(order))
		return
	}

	resp := bookingsResponse{
		Page:         paging.Paginate(records, intParam(r, "page"), intParam(r, "page_size")),
		Degraded:     snap.Degraded(),
		PendingCount: snap.PendingCount(),
		TakenAt:      snap.TakenAt,
	}
	if snap.FetchError != nil {
		resp.SyncError = snap.FetchError.Error()
	}
	writeJSON(w, http.StatusOK, resp)
}

// POST /api/v1/bookings — ручное создание бронирования администратором.
// Запись сразу попадает в локальную очередь, после чего для клиента и
// админки запускается сверка: она сольёт запись и отправит её на бэкенд.
// id и localId из тела игнорируются, идентификатор очереди выдаёт ядро.
func (h *Handlers) CreateBooking(w http.ResponseWriter, r *http.Request) {
	var rec model.BookingRecord
	if err := json.NewDecoder(r.Body).Decode(&rec); err != nil {
		badRequest(w, "invalid request body")
		return
	}
	if rec.CustomerID == "" {
		badRequest(w, "customerId is required")
		return
	}
	rec.ID = ""
	rec.LocalID = ""
	rec.Origin = model.OriginLocalPending

	queued, err := h.queue.Enqueue(r.Context(), rec)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	h.reconciler.Trigger(reconcile.CustomerScope(queued.CustomerID), reconcile.AdminScope())
	writeJSON(w, http.StatusCreated, queued)
}

// POST /api/v1/bookings/{reference}/status
func (h *Handlers) UpdateStatus(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Status model.BookingStatus `json:"status"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || !req.Status.IsValid() {
		badRequest(w, "status must be one of pending, confirmed, cancelled, completed")
		return
	}

	rec, err := h.reconciler.UpdateStatus(r.Context(), scopeFrom(r), chi.URLParam(r, "reference"), req.Status)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, rec)
}

// POST /api/v1/bookings/{reference}/payment
func (h *Handlers) UpdatePayment(w http.ResponseWriter, r *http.Request) {
	var req struct {
		PaymentStatus model.PaymentStatus `json:"paymentStatus"`
		PaidAmount    float64             `json:"paidAmount"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || !req.PaymentStatus.IsValid() {
		badRequest(w, "paymentStatus must be one of pending, partial, paid, failed, refunded")
		return
	}

	rec, err := h.reconciler.UpdatePayment(
		r.Context(), scopeFrom(r), chi.URLParam(r, "reference"), req.PaymentStatus, req.PaidAmount,
	)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, rec)
}

type reconcileResponse struct {
	Scope         string    `json:"scope"`
	TakenAt       time.Time `json:"takenAt"`
	Records       int       `json:"records"`
	PendingCount  int       `json:"pendingCount"`
	Synced        []string  `json:"synced"`
	PersistErrors []string  `json:"persistErrors,omitempty"`
	Flagged       []string  `json:"flagged,omitempty"`
	FetchError    string    `json:"fetchError,omitempty"`
}

// POST /api/v1/reconcile?customer_id=
func (h *Handlers) Reconcile(w http.ResponseWriter, r *http.Request) {
	snap, err := h.reconciler.Reconcile(r.Context(), scopeFrom(r))
	if err != nil {
		h.writeError(w, r, err)
		return
	}

	resp := reconcileResponse{
		Scope:        snap.Scope.Key(),
		TakenAt:      snap.TakenAt,
		Records:      snap.Len(),
		PendingCount: snap.PendingCount(),
		Synced:       append([]string{}, snap.Synced...),
	}
	for _, e := range snap.PersistErrors {
		resp.PersistErrors = append(resp.PersistErrors, e.Error())
	}
	for _, e := range snap.Flagged {
		resp.Flagged = append(resp.Flagged, e.Error())
	}
	if snap.FetchError != nil {
		resp.FetchError = snap.FetchError.Error()
	}
	writeJSON(w, http.StatusOK, resp)
}

// GET /api/v1/sync-status?customer_id=
func (h *Handlers) SyncStatus(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, h.status.Status(scopeFrom(r).Key()))
}

// GET /api/v1/sync-events?customer_id=&page=&page_size=
func (h *Handlers) SyncEvents(w http.ResponseWriter, r *http.Request) {
	page, pageSize := intParam(r, "page"), intParam(r, "page_size")
	offset, limit := paging.Offset(page, pageSize)

	items, total, err := h.syncEvents.ListByScope(r.Context(), scopeFrom(r).Key(), limit, offset)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	if items == nil {
		items = []model.SyncEvent{}
	}
	writeJSON(w, http.StatusOK, paging.Page[model.SyncEvent]{
		Items:    items,
		Page:     offset/limit + 1,
		PageSize: limit,
		HasNext:  int64(offset+len(items)) < total,
		HasPrev:  offset > 0,
		Total:    int(total),
	})
}

func intParam(r *http.Request, name string) int {
	v, err := strconv.Atoi(r.URL.Query().Get(name))
	if err != nil {
		return 0
	}
	return v
}

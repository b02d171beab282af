package api

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"

	"github.com/Leganyst/travel-booking-core/internal/model"
	"github.com/Leganyst/travel-booking-core/internal/queue"
	"github.com/Leganyst/travel-booking-core/internal/reconcile"
	"github.com/Leganyst/travel-booking-core/internal/repository"
	"github.com/Leganyst/travel-booking-core/internal/syncstatus"
)

var testNow = time.Date(2025, 4, 10, 12, 0, 0, 0, time.UTC)

type stubRemote struct {
	mu         sync.Mutex
	bookings   []model.BookingRecord
	fetchErr   error
	persistErr error
	updateErr  error
	persisted  int
}

func (s *stubRemote) FetchBookings(_ context.Context, scope reconcile.Scope) ([]model.BookingRecord, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.fetchErr != nil {
		return nil, s.fetchErr
	}
	var out []model.BookingRecord
	for _, rec := range s.bookings {
		if scope.Matches(rec) {
			out = append(out, rec.Clone())
		}
	}
	return out, nil
}

func (s *stubRemote) PersistBooking(_ context.Context, rec model.BookingRecord) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.persistErr != nil {
		return "", s.persistErr
	}
	s.persisted++
	return "srv-" + rec.BookingReference, nil
}

func (s *stubRemote) UpdateBooking(_ context.Context, rec model.BookingRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.updateErr != nil {
		return s.updateErr
	}
	for i := range s.bookings {
		if s.bookings[i].BookingReference == rec.BookingReference {
			s.bookings[i] = rec.Clone()
			s.bookings[i].Origin = model.OriginRemote
		}
	}
	return nil
}

func (s *stubRemote) persistCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.persisted
}

type testEnv struct {
	remote   *stubRemote
	queue    *queue.Store
	reporter *syncstatus.Reporter
	handler  http.Handler
}

func newTestEnv(t *testing.T, remote *stubRemote) *testEnv {
	t.Helper()

	db, err := gorm.Open(sqlite.Open("file::memory:"), &gorm.Config{
		Logger: gormlogger.Default.LogMode(gormlogger.Silent),
	})
	require.NoError(t, err)
	sqlDB, err := db.DB()
	require.NoError(t, err)
	sqlDB.SetMaxOpenConns(1)
	t.Cleanup(func() { sqlDB.Close() })
	require.NoError(t, model.AutoMigrate(db))

	clock := func() time.Time { return testNow }
	store := queue.NewStore(repository.NewGormQueueRepository(db, model.DefaultQueueNamespace), nil, queue.WithClock(clock))
	reporter := syncstatus.NewReporter(time.Hour, clock)
	audit := repository.NewGormSyncEventRepository(db)
	rec := reconcile.New(remote, store, reconcile.Config{}, nil,
		reconcile.WithClock(clock),
		reconcile.WithObserver(reporter),
		reconcile.WithAudit(audit),
	)

	h := NewHandlers(rec, store, reporter, audit, AnalyticsOptions{}, nil)
	h.now = clock

	return &testEnv{
		remote:   remote,
		queue:    store,
		reporter: reporter,
		handler:  NewRouter(h, prometheus.NewRegistry(), nil, nil),
	}
}

func (e *testEnv) do(t *testing.T, method, path string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}
	req := httptest.NewRequest(method, path, &buf)
	rr := httptest.NewRecorder()
	e.handler.ServeHTTP(rr, req)
	return rr
}

func decode[T any](t *testing.T, rr *httptest.ResponseRecorder) T {
	t.Helper()
	var v T
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &v), rr.Body.String())
	return v
}

func remoteRecord(id, ref, customer string, status model.BookingStatus) model.BookingRecord {
	return model.BookingRecord{
		ID:               id,
		BookingReference: ref,
		CustomerID:       customer,
		Destination:      "Lisbon",
		Country:          "Portugal",
		TravelersCount:   2,
		DurationDays:     5,
		TravelDate:       testNow.AddDate(0, 1, 0),
		ReturnDate:       testNow.AddDate(0, 1, 5),
		TotalAmount:      1500,
		Status:           status,
		PaymentStatus:    model.PaymentStatusPending,
		Origin:           model.OriginRemote,
		CreatedAt:        testNow.AddDate(0, 0, -2),
		UpdatedAt:        testNow.AddDate(0, 0, -2),
	}
}

func newBookingBody(ref, customer string) map[string]any {
	return map[string]any{
		"bookingReference": ref,
		"customerId":       customer,
		"destination":      "Rome",
		"country":          "Italy",
		"travelersCount":   1,
		"durationDays":     3,
		"travelDate":       testNow.AddDate(0, 2, 0),
		"returnDate":       testNow.AddDate(0, 2, 3),
		"totalAmount":      900,
	}
}

func TestHealthAndMetrics(t *testing.T) {
	env := newTestEnv(t, &stubRemote{})

	require.Equal(t, http.StatusOK, env.do(t, http.MethodGet, "/health", nil).Code)
	require.Equal(t, http.StatusOK, env.do(t, http.MethodGet, "/metrics", nil).Code)
}

func TestCreateBooking(t *testing.T) {
	env := newTestEnv(t, &stubRemote{persistErr: errors.New("down")})

	rr := env.do(t, http.MethodPost, "/api/v1/bookings", newBookingBody("BK-100", "c1"))
	require.Equal(t, http.StatusCreated, rr.Code, rr.Body.String())
	created := decode[model.BookingRecord](t, rr)
	require.Equal(t, model.OriginLocalPending, created.Origin)
	require.NotEmpty(t, created.LocalID)
	require.Equal(t, 1, env.queue.PendingCount(context.Background()))
}

func TestCreateBooking_Validation(t *testing.T) {
	env := newTestEnv(t, &stubRemote{})

	body := newBookingBody("BK-101", "")
	require.Equal(t, http.StatusBadRequest, env.do(t, http.MethodPost, "/api/v1/bookings", body).Code)

	body = newBookingBody("BK-102", "c1")
	body["paidAmount"] = 5000
	require.Equal(t, http.StatusUnprocessableEntity, env.do(t, http.MethodPost, "/api/v1/bookings", body).Code)
}

func TestListBookings_MergesRemoteAndLocal(t *testing.T) {
	remote := &stubRemote{
		bookings:   []model.BookingRecord{remoteRecord("srv-1", "BK-001", "c1", model.BookingStatusConfirmed)},
		persistErr: errors.New("down"),
	}
	env := newTestEnv(t, remote)
	require.Equal(t, http.StatusCreated, env.do(t, http.MethodPost, "/api/v1/bookings", newBookingBody("BK-002", "c1")).Code)

	rr := env.do(t, http.MethodGet, "/api/v1/bookings?customer_id=c1&page_size=1", nil)
	require.Equal(t, http.StatusOK, rr.Code)

	var resp struct {
		Items        []model.BookingRecord `json:"items"`
		Total        int                   `json:"total"`
		HasNext      bool                  `json:"hasNext"`
		PendingCount int                   `json:"pendingCount"`
		Degraded     bool                  `json:"degraded"`
	}
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &resp))
	require.Equal(t, 2, resp.Total)
	require.Len(t, resp.Items, 1)
	require.True(t, resp.HasNext)
	require.Equal(t, 1, resp.PendingCount)
	require.False(t, resp.Degraded)

	rr = env.do(t, http.MethodGet, "/api/v1/bookings?order=price", nil)
	require.Equal(t, http.StatusBadRequest, rr.Code)
}

func TestListBookings_DegradedWhenBackendDown(t *testing.T) {
	env := newTestEnv(t, &stubRemote{fetchErr: errors.New("connection refused"), persistErr: errors.New("down")})
	env.do(t, http.MethodPost, "/api/v1/bookings", newBookingBody("BK-003", "c1"))

	rr := env.do(t, http.MethodGet, "/api/v1/bookings?refresh=true", nil)
	require.Equal(t, http.StatusOK, rr.Code)
	body := decode[map[string]any](t, rr)
	require.Equal(t, true, body["degraded"])
	require.NotEmpty(t, body["syncError"])

	status := decode[syncstatus.Status](t, env.do(t, http.MethodGet, "/api/v1/sync-status", nil))
	require.False(t, status.IsActive)
	require.Equal(t, 1, status.PendingCount)
	require.NotEmpty(t, status.Error)
}

func TestUpdateStatus_ErrorMapping(t *testing.T) {
	cancelled := remoteRecord("srv-2", "BK-CAN", "c1", model.BookingStatusCancelled)
	pending := remoteRecord("srv-3", "BK-PEN", "c1", model.BookingStatusPending)
	remote := &stubRemote{bookings: []model.BookingRecord{cancelled, pending}}
	env := newTestEnv(t, remote)

	cases := []struct {
		name string
		path string
		body any
		want int
	}{
		{"invalid transition", "/api/v1/bookings/BK-CAN/status", map[string]string{"status": "confirmed"}, http.StatusConflict},
		{"unknown reference", "/api/v1/bookings/BK-404/status", map[string]string{"status": "confirmed"}, http.StatusNotFound},
		{"unknown status", "/api/v1/bookings/BK-PEN/status", map[string]string{"status": "lost"}, http.StatusBadRequest},
		{"partial out of range", "/api/v1/bookings/BK-PEN/payment", map[string]any{"paymentStatus": "partial", "paidAmount": 99999}, http.StatusUnprocessableEntity},
		{"ok", "/api/v1/bookings/BK-PEN/status", map[string]string{"status": "confirmed"}, http.StatusOK},
	}
	for _, tc := range cases {
		rr := env.do(t, http.MethodPost, tc.path, tc.body)
		require.Equal(t, tc.want, rr.Code, "%s: %s", tc.name, rr.Body.String())
	}
}

func TestUpdateStatus_BackendRejectsWrite(t *testing.T) {
	remote := &stubRemote{bookings: []model.BookingRecord{remoteRecord("srv-3", "BK-PEN", "c1", model.BookingStatusPending)}}
	env := newTestEnv(t, remote)
	require.Equal(t, http.StatusOK, env.do(t, http.MethodPost, "/api/v1/reconcile", nil).Code)

	remote.mu.Lock()
	remote.updateErr = errors.New("503")
	remote.mu.Unlock()

	rr := env.do(t, http.MethodPost, "/api/v1/bookings/BK-PEN/status", map[string]string{"status": "confirmed"})
	require.Equal(t, http.StatusBadGateway, rr.Code)
	body := decode[map[string]any](t, rr)
	require.NotEmpty(t, body["error"])
	require.NotContains(t, body, "status", "nothing is queued, so the change must not look pending")

	list := decode[struct {
		Items []model.BookingRecord `json:"items"`
	}](t, env.do(t, http.MethodGet, "/api/v1/bookings", nil))
	require.Len(t, list.Items, 1)
	require.Equal(t, model.BookingStatusPending, list.Items[0].Status)
}

func TestReconcileEndpoint(t *testing.T) {
	env := newTestEnv(t, &stubRemote{})
	env.do(t, http.MethodPost, "/api/v1/bookings", newBookingBody("BK-200", "c7"))

	// создание уже запустило фоновую сверку, отправка могла пройти в ней
	require.Eventually(t, func() bool {
		rr := env.do(t, http.MethodPost, "/api/v1/reconcile?customer_id=c7", nil)
		resp := decode[reconcileResponse](t, rr)
		return rr.Code == http.StatusOK && resp.Scope == "customer:c7" && resp.Records == 1 && resp.PendingCount == 0
	}, 3*time.Second, 10*time.Millisecond)
	require.Equal(t, 1, env.remote.persistCount())
}

func TestCreateBooking_ListedWithoutRefresh(t *testing.T) {
	remote := &stubRemote{
		bookings:   []model.BookingRecord{remoteRecord("srv-1", "BK-001", "c1", model.BookingStatusConfirmed)},
		persistErr: errors.New("down"),
	}
	env := newTestEnv(t, remote)

	type listing struct {
		Total int `json:"total"`
	}
	require.Equal(t, 1, decode[listing](t, env.do(t, http.MethodGet, "/api/v1/bookings?customer_id=c1", nil)).Total)
	require.Equal(t, 1, decode[listing](t, env.do(t, http.MethodGet, "/api/v1/bookings", nil)).Total)

	require.Equal(t, http.StatusCreated, env.do(t, http.MethodPost, "/api/v1/bookings", newBookingBody("BK-002", "c1")).Code)

	require.Equal(t, 2, decode[listing](t, env.do(t, http.MethodGet, "/api/v1/bookings?customer_id=c1", nil)).Total)
	require.Equal(t, 2, decode[listing](t, env.do(t, http.MethodGet, "/api/v1/bookings", nil)).Total)
}

func TestCreateBooking_IgnoresClientIDs(t *testing.T) {
	env := newTestEnv(t, &stubRemote{persistErr: errors.New("down")})

	first := newBookingBody("BK-300", "c1")
	first["id"] = "tmp-taken"
	second := newBookingBody("BK-301", "c1")
	second["id"] = "tmp-taken"
	second["localId"] = "tmp-taken"

	rr := env.do(t, http.MethodPost, "/api/v1/bookings", first)
	require.Equal(t, http.StatusCreated, rr.Code, rr.Body.String())
	a := decode[model.BookingRecord](t, rr)
	rr = env.do(t, http.MethodPost, "/api/v1/bookings", second)
	require.Equal(t, http.StatusCreated, rr.Code, rr.Body.String())
	b := decode[model.BookingRecord](t, rr)

	require.NotEqual(t, "tmp-taken", a.LocalID)
	require.NotEqual(t, a.LocalID, b.LocalID)
	require.Len(t, env.queue.ListQueued(context.Background()), 2)
}

func TestSyncEvents(t *testing.T) {
	env := newTestEnv(t, &stubRemote{fetchErr: errors.New("connection refused")})

	for i := 0; i < 2; i++ {
		require.Equal(t, http.StatusOK, env.do(t, http.MethodPost, "/api/v1/reconcile?customer_id=c9", nil).Code)
	}

	// каждый проход с упавшей загрузкой пишет fetch_failed и reconcile_pass
	rr := env.do(t, http.MethodGet, "/api/v1/sync-events?customer_id=c9&page=2&page_size=3", nil)
	require.Equal(t, http.StatusOK, rr.Code)
	page := decode[struct {
		Items []struct {
			EventType string `json:"eventType"`
			Scope     string `json:"scope"`
		} `json:"items"`
		Page    int  `json:"page"`
		Total   int  `json:"total"`
		HasNext bool `json:"hasNext"`
		HasPrev bool `json:"hasPrev"`
	}](t, rr)
	require.Equal(t, 4, page.Total)
	require.Equal(t, 2, page.Page)
	require.Len(t, page.Items, 1)
	require.Equal(t, "customer:c9", page.Items[0].Scope)
	require.False(t, page.HasNext)
	require.True(t, page.HasPrev)

	rr = env.do(t, http.MethodGet, "/api/v1/sync-events?customer_id=nobody", nil)
	require.Equal(t, http.StatusOK, rr.Code)
	empty := decode[map[string]any](t, rr)
	require.Equal(t, 0.0, empty["total"])
	require.Equal(t, []any{}, empty["items"])
}

func TestAnalyticsEndpoints(t *testing.T) {
	remote := &stubRemote{bookings: []model.BookingRecord{
		remoteRecord("srv-1", "BK-001", "c1", model.BookingStatusConfirmed),
		remoteRecord("srv-2", "BK-002", "c2", model.BookingStatusCancelled),
	}}
	env := newTestEnv(t, remote)

	rr := env.do(t, http.MethodGet, "/api/v1/analytics/summary", nil)
	require.Equal(t, http.StatusOK, rr.Code)
	summary := decode[map[string]float64](t, rr)
	require.Equal(t, 2.0, summary["totalBookings"])
	require.Equal(t, 50.0, summary["conversionRate"])
	require.Equal(t, 1500.0, summary["totalRevenue"])

	for _, path := range []string{
		"/api/v1/analytics/trends?days=14",
		"/api/v1/analytics/trends?from=2025-04-01T00:00:00Z&to=2025-04-10T00:00:00Z",
		"/api/v1/analytics/growth?period=30d",
		"/api/v1/analytics/segments",
		"/api/v1/analytics/cohorts",
		"/api/v1/analytics/breakdown?by=country",
		"/api/v1/analytics/insights",
		"/api/v1/analytics/report",
	} {
		require.Equal(t, http.StatusOK, env.do(t, http.MethodGet, path, nil).Code, path)
	}

	for _, path := range []string{
		"/api/v1/analytics/trends?days=0",
		"/api/v1/analytics/trends?from=yesterday&to=today",
		"/api/v1/analytics/growth?period=1y",
		"/api/v1/analytics/breakdown?by=weather",
	} {
		require.Equal(t, http.StatusBadRequest, env.do(t, http.MethodGet, path, nil).Code, path)
	}
}

package api

import (
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/redis/go-redis/v9"

	"github.com/Leganyst/travel-booking-core/internal/api/middleware"
)

// NewRouter собирает HTTP-поверхность ядра. Если redisClient равен nil,
// тогда ручное создание бронирований идёт без идемпотентности по заголовку.
func NewRouter(h *Handlers, gatherer prometheus.Gatherer, redisClient redis.UniversalClient, logger *slog.Logger) http.Handler {
	r := chi.NewRouter()

	r.Use(chimiddleware.RequestID)
	r.Use(chimiddleware.RealIP)
	r.Use(chimiddleware.Recoverer)

	r.Get("/health", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		w.Write([]byte("OK"))
	})
	r.Handle("/metrics", promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{}))

	r.Route("/api/v1", func(r chi.Router) {
		r.Route("/bookings", func(r chi.Router) {
			r.Get("/", h.ListBookings)
			if redisClient != nil {
				r.With(middleware.Idempotency(redisClient, logger)).Post("/", h.CreateBooking)
			} else {
				r.Post("/", h.CreateBooking)
			}
			r.Post("/{reference}/status", h.UpdateStatus)
			r.Post("/{reference}/payment", h.UpdatePayment)
		})

		r.Post("/reconcile", h.Reconcile)
		r.Get("/sync-status", h.SyncStatus)
		r.Get("/sync-events", h.SyncEvents)

		r.Route("/analytics", func(r chi.Router) {
			r.Get("/summary", h.AnalyticsSummary)
			r.Get("/trends", h.AnalyticsTrends)
			r.Get("/growth", h.AnalyticsGrowth)
			r.Get("/segments", h.AnalyticsSegments)
			r.Get("/cohorts", h.AnalyticsCohorts)
			r.Get("/breakdown", h.AnalyticsBreakdown)
			r.Get("/insights", h.AnalyticsInsights)
			r.Get("/report", h.AnalyticsReport)
		})
	})

	return r
}

package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics — счётчики сверки. Регистрируются в переданном реестре,
// поэтому в тестах можно поднимать сколько угодно экземпляров.
// Все методы допускают nil-получатель.
type Metrics struct {
	passes        *prometheus.CounterVec
	passDuration  prometheus.Histogram
	flushed       prometheus.Counter
	persistErrors prometheus.Counter
	flagged       prometheus.Counter
	queueDepth    *prometheus.GaugeVec
}

func New(reg prometheus.Registerer) *Metrics {
	f := promauto.With(reg)
	return &Metrics{
		passes: f.NewCounterVec(prometheus.CounterOpts{
			Name: "booking_reconcile_passes_total",
			Help: "Reconciliation passes by result",
		}, []string{"result"}),
		passDuration: f.NewHistogram(prometheus.HistogramOpts{
			Name:    "booking_reconcile_pass_duration_seconds",
			Help:    "Duration of a reconciliation pass",
			Buckets: prometheus.DefBuckets,
		}),
		flushed: f.NewCounter(prometheus.CounterOpts{
			Name: "booking_queue_flushed_total",
			Help: "Queued bookings accepted by the backend",
		}),
		persistErrors: f.NewCounter(prometheus.CounterOpts{
			Name: "booking_queue_persist_errors_total",
			Help: "Failed attempts to persist queued bookings",
		}),
		flagged: f.NewCounter(prometheus.CounterOpts{
			Name: "booking_integrity_flagged_total",
			Help: "Bookings excluded from the merged view due to integrity errors",
		}),
		queueDepth: f.NewGaugeVec(prometheus.GaugeOpts{
			Name: "booking_queue_pending",
			Help: "Local-pending bookings per scope after the last pass",
		}, []string{"scope"}),
	}
}

func (m *Metrics) ObservePass(fetchFailed bool, d time.Duration) {
	if m == nil {
		return
	}
	result := "ok"
	if fetchFailed {
		result = "fetch_error"
	}
	m.passes.WithLabelValues(result).Inc()
	m.passDuration.Observe(d.Seconds())
}

func (m *Metrics) Flushed(n int) {
	if m == nil || n == 0 {
		return
	}
	m.flushed.Add(float64(n))
}

func (m *Metrics) PersistFailed(n int) {
	if m == nil || n == 0 {
		return
	}
	m.persistErrors.Add(float64(n))
}

func (m *Metrics) Flagged(n int) {
	if m == nil || n == 0 {
		return
	}
	m.flagged.Add(float64(n))
}

func (m *Metrics) QueueDepth(scope string, n int) {
	if m == nil {
		return
	}
	m.queueDepth.WithLabelValues(scope).Set(float64(n))
}

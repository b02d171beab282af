package api

import (
	"net/http"
	"strconv"
	"time"

	"github.com/Leganyst/travel-booking-core/internal/analytics"
	"github.com/Leganyst/travel-booking-core/internal/model"
)

// AnalyticsOptions — настройки аналитики из конфигурации.
type AnalyticsOptions struct {
	Location *time.Location
	Cutoffs  analytics.Cutoffs
	Rules    []analytics.Rule
	// Наибольшее окно для трендов.
	MaxWindow time.Duration
}

const (
	defaultTrendDays = 30
	defaultMaxWindow = 366 * 24 * time.Hour
)

func (o AnalyticsOptions) location() *time.Location {
	if o.Location == nil {
		return time.UTC
	}
	return o.Location
}

func (h *Handlers) AnalyticsSummary(w http.ResponseWriter, r *http.Request) {
	snap, err := h.snapshot(r)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, analytics.Summarize(snap.Records()))
}

// GET /analytics/trends?days=30 или ?from=RFC3339&to=RFC3339
func (h *Handlers) AnalyticsTrends(w http.ResponseWriter, r *http.Request) {
	win, ok := h.trendWindow(w, r)
	if !ok {
		return
	}
	snap, err := h.snapshot(r)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, analytics.Trends(snap.Records(), win, h.analytics.location()))
}

func (h *Handlers) trendWindow(w http.ResponseWriter, r *http.Request) (analytics.Window, bool) {
	q := r.URL.Query()
	loc := h.analytics.location()

	if from, to := q.Get("from"), q.Get("to"); from != "" || to != "" {
		start, err1 := time.Parse(time.RFC3339, from)
		end, err2 := time.Parse(time.RFC3339, to)
		if err1 != nil || err2 != nil {
			badRequest(w, "from and to must be RFC3339 timestamps")
			return analytics.Window{}, false
		}
		maxWindow := h.analytics.MaxWindow
		if maxWindow <= 0 {
			maxWindow = defaultMaxWindow
		}
		win, err := analytics.NormalizeWindow(start, end, loc, maxWindow)
		if err != nil {
			badRequest(w, err.Error())
			return analytics.Window{}, false
		}
		return win, true
	}

	days := defaultTrendDays
	if v := q.Get("days"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 1 || n > 366 {
			badRequest(w, "days must be between 1 and 366")
			return analytics.Window{}, false
		}
		days = n
	}
	return analytics.LastDays(h.now().In(loc), days), true
}

// GET /analytics/growth?period=week|7d|30d|90d
func (h *Handlers) AnalyticsGrowth(w http.ResponseWriter, r *http.Request) {
	snap, err := h.snapshot(r)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	records := snap.Records()
	now := h.now().In(h.analytics.location())

	switch period := r.URL.Query().Get("period"); period {
	case "", "week":
		writeJSON(w, http.StatusOK, analytics.WeekOverWeek(records, now))
	case "7d", "30d", "90d":
		days, _ := strconv.Atoi(period[:len(period)-1])
		writeJSON(w, http.StatusOK, analytics.PeriodOverPeriod(records, now, time.Duration(days)*24*time.Hour))
	default:
		badRequest(w, "period must be one of week, 7d, 30d, 90d")
	}
}

type segmentsResponse struct {
	Counts    []analytics.SegmentCount    `json:"counts"`
	Customers []analytics.CustomerSegment `json:"customers"`
}

func (h *Handlers) AnalyticsSegments(w http.ResponseWriter, r *http.Request) {
	snap, err := h.snapshot(r)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	segments := analytics.Segment(snap.Records(), h.analytics.Cutoffs, h.now())
	writeJSON(w, http.StatusOK, segmentsResponse{
		Counts:    analytics.SegmentCounts(segments),
		Customers: segments,
	})
}

// GET /analytics/cohorts: помесячные когорты по первому бронированию.
func (h *Handlers) AnalyticsCohorts(w http.ResponseWriter, r *http.Request) {
	snap, err := h.snapshot(r)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, analytics.Cohorts(snap.Records(), h.now(), h.analytics.location()))
}

// GET /analytics/breakdown?by=destination|country|source
func (h *Handlers) AnalyticsBreakdown(w http.ResponseWriter, r *http.Request) {
	var fn func([]model.BookingRecord) []analytics.Share
	switch by := r.URL.Query().Get("by"); by {
	case "", "destination":
		fn = analytics.ByDestination
	case "country":
		fn = analytics.ByCountry
	case "source":
		fn = analytics.BySource
	default:
		badRequest(w, "by must be one of destination, country, source")
		return
	}

	snap, err := h.snapshot(r)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, fn(snap.Records()))
}

func (h *Handlers) AnalyticsInsights(w http.ResponseWriter, r *http.Request) {
	snap, err := h.snapshot(r)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	facts := analytics.CollectFacts(snap.Records(), h.now())
	writeJSON(w, http.StatusOK, analytics.Insights(facts, h.rules()))
}

func (h *Handlers) AnalyticsReport(w http.ResponseWriter, r *http.Request) {
	snap, err := h.snapshot(r)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	cutoffs := h.analytics.Cutoffs
	writeJSON(w, http.StatusOK, analytics.Build(snap.Records(), h.now(), analytics.Options{
		Location: h.analytics.location(),
		Cutoffs:  &cutoffs,
		Rules:    h.rules(),
	}))
}

func (h *Handlers) rules() []analytics.Rule {
	if len(h.analytics.Rules) == 0 {
		return analytics.DefaultRules()
	}
	return h.analytics.Rules
}

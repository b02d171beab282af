package analytics

import (
	"time"

	"github.com/Leganyst/travel-booking-core/internal/model"
)

// Options — параметры полного отчёта. Нулевые значения заменяются умолчаниями.
type Options struct {
	Location  *time.Location
	TrendDays int
	Cutoffs   *Cutoffs
	Rules     []Rule
}

// Report — все аналитические срезы одного снимка.
type Report struct {
	GeneratedAt  time.Time      `json:"generatedAt"`
	Summary      Summary        `json:"summary"`
	Trends       TrendReport    `json:"trends"`
	WeekOverWeek GrowthReport   `json:"weekOverWeek"`
	Segments     []SegmentCount `json:"segments"`
	Cohorts      []Cohort       `json:"cohorts"`
	Destinations []Share        `json:"destinations"`
	Countries    []Share        `json:"countries"`
	Sources      []Share        `json:"sources"`
	Insights     []Insight      `json:"insights"`
}

const defaultTrendDays = 30

func Build(records []model.BookingRecord, at time.Time, opts Options) Report {
	loc := opts.Location
	if loc == nil {
		loc = time.UTC
	}
	days := opts.TrendDays
	if days <= 0 {
		days = defaultTrendDays
	}
	cutoffs := DefaultCutoffs()
	if opts.Cutoffs != nil {
		cutoffs = *opts.Cutoffs
	}
	rules := opts.Rules
	if rules == nil {
		rules = DefaultRules()
	}

	local := at.In(loc)
	return Report{
		GeneratedAt:  at,
		Summary:      Summarize(records),
		Trends:       Trends(records, LastDays(local, days), loc),
		WeekOverWeek: WeekOverWeek(records, local),
		Segments:     SegmentCounts(Segment(records, cutoffs, at)),
		Cohorts:      Cohorts(records, at, loc),
		Destinations: ByDestination(records),
		Countries:    ByCountry(records),
		Sources:      BySource(records),
		Insights:     Insights(CollectFacts(records, at), rules),
	}
}

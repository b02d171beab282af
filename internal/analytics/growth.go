package analytics

import (
	"time"

	"github.com/Leganyst/travel-booking-core/internal/model"
)

// Пороги классификации изменения числа бронирований, в процентах.
const (
	StrongGrowthThreshold    = 20.0
	ModerateGrowthThreshold  = 5.0
	ModerateDeclineThreshold = -5.0
	StrongDeclineThreshold   = -20.0
)

type GrowthClass string

const (
	GrowthStrong          GrowthClass = "strong_growth"
	GrowthModerate        GrowthClass = "moderate_growth"
	GrowthFlat            GrowthClass = "flat"
	GrowthModerateDecline GrowthClass = "moderate_decline"
	GrowthStrongDecline   GrowthClass = "strong_decline"
)

// GrowthReport — сравнение двух периодов.
type GrowthReport struct {
	Current  int `json:"current"`
	Previous int `json:"previous"`

	// Изменение числа бронирований в процентах к предыдущему периоду.
	ChangePercent float64     `json:"changePercent"`
	Class         GrowthClass `json:"class"`

	CurrentRevenue       float64 `json:"currentRevenue"`
	PreviousRevenue      float64 `json:"previousRevenue"`
	RevenueChangePercent float64 `json:"revenueChangePercent"`

	CurrentWindow  *Window `json:"currentWindow,omitempty"`
	PreviousWindow *Window `json:"previousWindow,omitempty"`
}

// ChangePercent — изменение в процентах. Рост с нуля считается как +100%.
func ChangePercent(current, previous float64) float64 {
	switch {
	case previous == 0 && current == 0:
		return 0
	case previous == 0:
		return 100
	default:
		return round2((current - previous) * 100 / previous)
	}
}

// Classify относит изменение к одному из классов по порогам выше.
func Classify(change float64) GrowthClass {
	switch {
	case change > StrongGrowthThreshold:
		return GrowthStrong
	case change > ModerateGrowthThreshold:
		return GrowthModerate
	case change >= ModerateDeclineThreshold:
		return GrowthFlat
	case change >= StrongDeclineThreshold:
		return GrowthModerateDecline
	default:
		return GrowthStrongDecline
	}
}

func Growth(current, previous []model.BookingRecord) GrowthReport {
	rep := GrowthReport{Current: len(current), Previous: len(previous)}
	for _, rec := range current {
		rep.CurrentRevenue += revenue(rec)
	}
	for _, rec := range previous {
		rep.PreviousRevenue += revenue(rec)
	}
	rep.CurrentRevenue = round2(rep.CurrentRevenue)
	rep.PreviousRevenue = round2(rep.PreviousRevenue)

	rep.ChangePercent = ChangePercent(float64(rep.Current), float64(rep.Previous))
	rep.RevenueChangePercent = ChangePercent(rep.CurrentRevenue, rep.PreviousRevenue)
	rep.Class = Classify(rep.ChangePercent)
	return rep
}

// PeriodOverPeriod сравнивает последний период длиной period, заканчивающийся в at,
// с таким же периодом перед ним.
func PeriodOverPeriod(records []model.BookingRecord, at time.Time, period time.Duration) GrowthReport {
	cur := Window{Start: at.Add(-period), End: at}
	return growthBetween(records, cur, cur.Previous())
}

// WeekOverWeek сравнивает текущую календарную неделю с предыдущей.
// Текущая неделя берётся до момента at, предыдущая — за тот же отрезок.
func WeekOverWeek(records []model.BookingRecord, at time.Time) GrowthReport {
	week := CalendarWeek(at)
	cur := Window{Start: week.Start, End: at}
	if !cur.End.After(cur.Start) {
		cur.End = week.End
	}
	prev := Window{Start: week.Start.AddDate(0, 0, -7), End: cur.End.AddDate(0, 0, -7)}
	return growthBetween(records, cur, prev)
}

// LastWeekOverWeek сравнивает две последние завершённые календарные недели.
func LastWeekOverWeek(records []model.BookingRecord, at time.Time) GrowthReport {
	week := CalendarWeek(at).Previous()
	return growthBetween(records, week, week.Previous())
}

func growthBetween(records []model.BookingRecord, cur, prev Window) GrowthReport {
	rep := Growth(cur.Filter(records), prev.Filter(records))
	rep.CurrentWindow = &cur
	rep.PreviousWindow = &prev
	return rep
}

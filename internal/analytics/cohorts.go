package analytics

import (
	"sort"
	"time"

	"github.com/jinzhu/now"

	"github.com/Leganyst/travel-booking-core/internal/model"
)

// Cohort — клиенты, впервые забронировавшие в одном календарном месяце.
type Cohort struct {
	Month     string    `json:"month"` // 2006-01
	Start     time.Time `json:"start"`
	Customers int       `json:"customers"`
	Revenue   float64   `json:"revenue"`
	// Active[k] — сколько клиентов когорты бронировали в k-м месяце после первого.
	// Active[0] всегда равен Customers.
	Active    []int     `json:"active"`
	Retention []float64 `json:"retention"`
}

type cohortCustomer struct {
	first   time.Time
	months  map[time.Time]struct{}
	revenue float64
}

// Cohorts строит помесячные когорты по первому неотменённому бронированию.
// Месяцы считаются в поясе loc, ряд каждой когорты доходит до месяца at.
func Cohorts(records []model.BookingRecord, at time.Time, loc *time.Location) []Cohort {
	if loc == nil {
		loc = time.UTC
	}

	customers := make(map[string]*cohortCustomer)
	for _, rec := range records {
		if rec.Status == model.BookingStatusCancelled || rec.CustomerID == "" {
			continue
		}
		month := monthStart(rec.CreatedAt, loc)
		cc, ok := customers[rec.CustomerID]
		if !ok {
			cc = &cohortCustomer{first: month, months: make(map[time.Time]struct{})}
			customers[rec.CustomerID] = cc
		}
		if month.Before(cc.first) {
			cc.first = month
		}
		cc.months[month] = struct{}{}
		cc.revenue += rec.TotalAmount
	}

	last := monthStart(at, loc)
	byMonth := make(map[time.Time]*Cohort)
	for _, cc := range customers {
		c, ok := byMonth[cc.first]
		if !ok {
			span := monthsBetween(cc.first, last) + 1
			if span < 1 {
				span = 1
			}
			c = &Cohort{
				Month:  cc.first.Format("2006-01"),
				Start:  cc.first,
				Active: make([]int, span),
			}
			byMonth[cc.first] = c
		}
		c.Customers++
		c.Revenue += cc.revenue
		for m := range cc.months {
			if k := monthsBetween(cc.first, m); k < len(c.Active) {
				c.Active[k]++
			}
		}
	}

	out := make([]Cohort, 0, len(byMonth))
	for _, c := range byMonth {
		c.Revenue = round2(c.Revenue)
		c.Retention = make([]float64, len(c.Active))
		for k, n := range c.Active {
			c.Retention[k] = percent(n, c.Customers)
		}
		out = append(out, *c)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Start.Before(out[j].Start) })
	return out
}

func monthStart(t time.Time, loc *time.Location) time.Time {
	return now.With(t.In(loc)).BeginningOfMonth()
}

func monthsBetween(from, to time.Time) int {
	return (to.Year()-from.Year())*12 + int(to.Month()-from.Month())
}

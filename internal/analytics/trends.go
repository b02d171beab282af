package analytics

import (
	"time"

	"github.com/Leganyst/travel-booking-core/internal/model"
)

// Bucket — количество бронирований и выручка в одной корзине.
type Bucket struct {
	Key     string  `json:"key"`
	Count   int     `json:"count"`
	Revenue float64 `json:"revenue"`
}

// TrendReport — распределение бронирований во времени (по createdAt).
type TrendReport struct {
	Window    Window   `json:"window"`
	Daily     []Bucket `json:"daily"`
	ByWeekday []Bucket `json:"byWeekday"`
	ByHour    []Bucket `json:"byHour"`
}

const dayLayout = "2006-01-02"

var weekdayOrder = []time.Weekday{
	time.Monday,
	time.Tuesday,
	time.Wednesday,
	time.Thursday,
	time.Friday,
	time.Saturday,
	time.Sunday,
}

// Trends раскладывает записи окна по дням, дням недели и часам в часовом поясе loc.
// Дневные корзины идут подряд по всему окну, пустые дни тоже присутствуют.
func Trends(records []model.BookingRecord, w Window, loc *time.Location) TrendReport {
	if loc == nil {
		loc = time.UTC
	}
	rep := TrendReport{Window: w}

	dayIdx := make(map[string]int)
	first := dateOnly(w.Start.In(loc))
	for d := first; d.Before(w.End); d = d.AddDate(0, 0, 1) {
		key := d.Format(dayLayout)
		dayIdx[key] = len(rep.Daily)
		rep.Daily = append(rep.Daily, Bucket{Key: key})
	}

	rep.ByWeekday = make([]Bucket, len(weekdayOrder))
	wdIdx := make(map[time.Weekday]int, len(weekdayOrder))
	for i, wd := range weekdayOrder {
		rep.ByWeekday[i] = Bucket{Key: wd.String()}
		wdIdx[wd] = i
	}

	rep.ByHour = make([]Bucket, 24)
	for h := range rep.ByHour {
		rep.ByHour[h] = Bucket{Key: time.Date(2000, 1, 1, h, 0, 0, 0, time.UTC).Format("15:00")}
	}

	for _, rec := range records {
		if !w.Contains(rec.CreatedAt) {
			continue
		}
		at := rec.CreatedAt.In(loc)
		amount := revenue(rec)

		if i, ok := dayIdx[at.Format(dayLayout)]; ok {
			rep.Daily[i].add(amount)
		}
		rep.ByWeekday[wdIdx[at.Weekday()]].add(amount)
		rep.ByHour[at.Hour()].add(amount)
	}

	roundBuckets(rep.Daily)
	roundBuckets(rep.ByWeekday)
	roundBuckets(rep.ByHour)
	return rep
}

func (b *Bucket) add(amount float64) {
	b.Count++
	b.Revenue += amount
}

func roundBuckets(bs []Bucket) {
	for i := range bs {
		bs[i].Revenue = round2(bs[i].Revenue)
	}
}

func dateOnly(t time.Time) time.Time {
	y, m, d := t.Date()
	return time.Date(y, m, d, 0, 0, 0, 0, t.Location())
}

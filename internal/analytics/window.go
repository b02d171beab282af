package analytics

import (
	"errors"
	"time"

	"github.com/jinzhu/now"

	"github.com/Leganyst/travel-booking-core/internal/model"
)

var ErrInvalidWindow = errors.New("invalid analytics window")

var weekConfig = &now.Config{WeekStartDay: time.Monday}

// Window — полуоткрытый интервал [Start, End).
type Window struct {
	Start time.Time `json:"start"`
	End   time.Time `json:"end"`
}

func NewWindow(start, end time.Time) (Window, error) {
	if start.IsZero() || end.IsZero() || !end.After(start) {
		return Window{}, ErrInvalidWindow
	}
	return Window{Start: start, End: end}, nil
}

// NormalizeWindow нормализует интервал:
//   - меняет местами границы, если они перепутаны;
//   - переводит в часовой пояс loc;
//   - при превышении maxDuration обрезает интервал до start+maxDuration.
//
// Если maxDuration <= 0, ограничение по длительности не применяется.
func NormalizeWindow(start, end time.Time, loc *time.Location, maxDuration time.Duration) (Window, error) {
	if start.IsZero() || end.IsZero() {
		return Window{}, ErrInvalidWindow
	}
	if end.Before(start) {
		start, end = end, start
	}
	if loc != nil {
		start = start.In(loc)
		end = end.In(loc)
	}
	if maxDuration > 0 && end.Sub(start) > maxDuration {
		end = start.Add(maxDuration)
	}
	if !end.After(start) {
		return Window{}, ErrInvalidWindow
	}
	return Window{Start: start, End: end}, nil
}

// LastDays — n полных календарных дней, включая текущий.
func LastDays(t time.Time, n int) Window {
	if n < 1 {
		n = 1
	}
	end := now.With(t).EndOfDay().Add(time.Nanosecond)
	return Window{Start: end.AddDate(0, 0, -n), End: end}
}

// CalendarWeek — неделя (с понедельника), в которую попадает t.
func CalendarWeek(t time.Time) Window {
	start := weekConfig.With(t).BeginningOfWeek()
	return Window{Start: start, End: start.AddDate(0, 0, 7)}
}

func (w Window) Contains(t time.Time) bool {
	return !t.Before(w.Start) && t.Before(w.End)
}

func (w Window) Duration() time.Duration { return w.End.Sub(w.Start) }

// Previous — окно той же длины непосредственно перед текущим.
func (w Window) Previous() Window {
	return Window{Start: w.Start.Add(-w.Duration()), End: w.Start}
}

// Filter оставляет записи, созданные внутри окна.
func (w Window) Filter(records []model.BookingRecord) []model.BookingRecord {
	var out []model.BookingRecord
	for _, rec := range records {
		if w.Contains(rec.CreatedAt) {
			out = append(out, rec)
		}
	}
	return out
}

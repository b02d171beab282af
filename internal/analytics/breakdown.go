package analytics

import (
	"math"
	"sort"
	"strings"

	"github.com/Leganyst/travel-booking-core/internal/model"
)

// Ключ группы для записей без значения.
const UnknownKey = "unknown"

// Share — доля группы (направление, страна, канал) в общем числе бронирований.
type Share struct {
	Key          string  `json:"key"`
	Bookings     int     `json:"bookings"`
	Revenue      float64 `json:"revenue"`
	SharePercent float64 `json:"sharePercent"`
}

func ByDestination(records []model.BookingRecord) []Share {
	return breakdown(records, func(r model.BookingRecord) string { return r.Destination })
}

func ByCountry(records []model.BookingRecord) []Share {
	return breakdown(records, func(r model.BookingRecord) string { return r.Country })
}

// BySource — разбивка по каналу привлечения.
func BySource(records []model.BookingRecord) []Share {
	return breakdown(records, func(r model.BookingRecord) string { return r.Source })
}

// breakdown группирует записи по ключу. Доли считаются по числу бронирований,
// округляются до сотых методом наибольшего остатка и в сумме дают ровно 100.
// Порядок: по убыванию числа бронирований, затем по ключу.
func breakdown(records []model.BookingRecord, key func(model.BookingRecord) string) []Share {
	idx := make(map[string]int)
	var out []Share
	for _, rec := range records {
		k := strings.TrimSpace(key(rec))
		if k == "" {
			k = UnknownKey
		}
		i, ok := idx[k]
		if !ok {
			i = len(out)
			idx[k] = i
			out = append(out, Share{Key: k})
		}
		out[i].Bookings++
		out[i].Revenue += revenue(rec)
	}
	if len(out) == 0 {
		return []Share{}
	}

	sort.Slice(out, func(i, j int) bool {
		if out[i].Bookings != out[j].Bookings {
			return out[i].Bookings > out[j].Bookings
		}
		return out[i].Key < out[j].Key
	})
	for i := range out {
		out[i].Revenue = round2(out[i].Revenue)
	}

	counts := make([]int, len(out))
	for i, s := range out {
		counts[i] = s.Bookings
	}
	for i, hundredths := range largestRemainder(counts, len(records), 10000) {
		out[i].SharePercent = float64(hundredths) / 100
	}
	return out
}

// largestRemainder распределяет units единиц пропорционально counts так,
// чтобы сумма была ровно units.
func largestRemainder(counts []int, total, units int) []int {
	out := make([]int, len(counts))
	if total == 0 {
		return out
	}
	type rem struct {
		i    int
		frac float64
	}
	rems := make([]rem, len(counts))
	assigned := 0
	for i, c := range counts {
		exact := float64(c) * float64(units) / float64(total)
		floor := math.Floor(exact)
		out[i] = int(floor)
		assigned += out[i]
		rems[i] = rem{i: i, frac: exact - floor}
	}
	sort.SliceStable(rems, func(a, b int) bool { return rems[a].frac > rems[b].frac })
	for k := 0; assigned < units && k < len(rems); k++ {
		out[rems[k].i]++
		assigned++
	}
	return out
}

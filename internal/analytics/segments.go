package analytics

import (
	"sort"
	"time"

	"github.com/Leganyst/travel-booking-core/internal/model"
)

type SegmentName string

const (
	SegmentVIP      SegmentName = "vip"
	SegmentLoyal    SegmentName = "loyal"
	SegmentValuable SegmentName = "valuable"
	SegmentRegular  SegmentName = "regular"
	SegmentNew      SegmentName = "new"
)

// Порядок важен: клиент попадает в первый подходящий сегмент.
var segmentOrder = []SegmentName{SegmentVIP, SegmentLoyal, SegmentValuable, SegmentRegular, SegmentNew}

// Cutoffs — пороги сегментации клиентов.
type Cutoffs struct {
	VIPMinSpend        float64
	VIPMinBookings     int
	LoyalMinBookings   int
	ValuableMinSpend   float64
	RegularMinBookings int
	// Клиент без бронирований дольше ChurnRiskDays дней в зоне риска оттока.
	// <= 0 отключает оценку.
	ChurnRiskDays int
}

func DefaultCutoffs() Cutoffs {
	return Cutoffs{
		VIPMinSpend:        10000,
		VIPMinBookings:     5,
		LoyalMinBookings:   3,
		ValuableMinSpend:   5000,
		RegularMinBookings: 2,
		ChurnRiskDays:      120,
	}
}

// Classify определяет сегмент по сумме трат и числу бронирований.
func (c Cutoffs) Classify(spend float64, bookings int) SegmentName {
	switch {
	case spend >= c.VIPMinSpend && bookings >= c.VIPMinBookings:
		return SegmentVIP
	case bookings >= c.LoyalMinBookings:
		return SegmentLoyal
	case spend >= c.ValuableMinSpend:
		return SegmentValuable
	case bookings >= c.RegularMinBookings:
		return SegmentRegular
	default:
		return SegmentNew
	}
}

// AtChurnRisk сообщает, что клиент слишком давно ничего не бронировал.
func (c Cutoffs) AtChurnRisk(daysSinceLast int) bool {
	return c.ChurnRiskDays > 0 && daysSinceLast > c.ChurnRiskDays
}

// CustomerSegment — агрегат по одному клиенту.
type CustomerSegment struct {
	CustomerID           string      `json:"customerId"`
	CustomerName         string      `json:"customerName"`
	Segment              SegmentName `json:"segment"`
	Bookings             int         `json:"bookings"`
	TotalSpend           float64     `json:"totalSpend"`
	LastBooking          time.Time   `json:"lastBooking"`
	DaysSinceLastBooking int         `json:"daysSinceLastBooking"`
	ChurnRisk            bool        `json:"churnRisk"`
}

// Segment группирует записи по клиентам. Отменённые бронирования не учитываются.
// Давность последнего бронирования считается от момента at.
// Результат отсортирован по убыванию трат, затем по customerId.
func Segment(records []model.BookingRecord, c Cutoffs, at time.Time) []CustomerSegment {
	byCustomer := make(map[string]*CustomerSegment)
	for _, rec := range records {
		if rec.Status == model.BookingStatusCancelled || rec.CustomerID == "" {
			continue
		}
		cs, ok := byCustomer[rec.CustomerID]
		if !ok {
			cs = &CustomerSegment{CustomerID: rec.CustomerID}
			byCustomer[rec.CustomerID] = cs
		}
		cs.Bookings++
		cs.TotalSpend += rec.TotalAmount
		if !rec.CreatedAt.Before(cs.LastBooking) {
			cs.LastBooking = rec.CreatedAt
			cs.CustomerName = rec.CustomerName
		}
	}

	out := make([]CustomerSegment, 0, len(byCustomer))
	for _, cs := range byCustomer {
		cs.TotalSpend = round2(cs.TotalSpend)
		cs.Segment = c.Classify(cs.TotalSpend, cs.Bookings)
		cs.DaysSinceLastBooking = daysBetween(cs.LastBooking, at)
		cs.ChurnRisk = c.AtChurnRisk(cs.DaysSinceLastBooking)
		out = append(out, *cs)
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].TotalSpend != out[j].TotalSpend {
			return out[i].TotalSpend > out[j].TotalSpend
		}
		return out[i].CustomerID < out[j].CustomerID
	})
	return out
}

// SegmentCount — размер сегмента.
type SegmentCount struct {
	Segment    SegmentName `json:"segment"`
	Customers  int         `json:"customers"`
	TotalSpend float64     `json:"totalSpend"`
	AtRisk     int         `json:"atRisk"`
}

// SegmentCounts сворачивает сегменты в счётчики; все пять сегментов присутствуют всегда.
func SegmentCounts(segments []CustomerSegment) []SegmentCount {
	idx := make(map[SegmentName]int, len(segmentOrder))
	out := make([]SegmentCount, len(segmentOrder))
	for i, name := range segmentOrder {
		out[i] = SegmentCount{Segment: name}
		idx[name] = i
	}
	for _, cs := range segments {
		i := idx[cs.Segment]
		out[i].Customers++
		out[i].TotalSpend += cs.TotalSpend
		if cs.ChurnRisk {
			out[i].AtRisk++
		}
	}
	for i := range out {
		out[i].TotalSpend = round2(out[i].TotalSpend)
	}
	return out
}

// Полные сутки от from до to; будущие даты дают 0.
func daysBetween(from, to time.Time) int {
	if !to.After(from) {
		return 0
	}
	return int(to.Sub(from) / (24 * time.Hour))
}

package reconcile

import (
	"sort"
	"time"

	"github.com/Leganyst/travel-booking-core/internal/model"
)

// Snapshot — неизменяемый результат одного прохода сверки.
// Вызывающий получает копии и должен запросить новый снимок, чтобы увидеть изменения.
type Snapshot struct {
	Scope   Scope
	TakenAt time.Time

	records []model.BookingRecord
	index   map[string]int
	seq     uint64

	FetchError    *RemoteFetchError
	PersistErrors []*PersistError
	Flagged       []*DataIntegrityError
	// reference записей, принятых бэкендом в этом проходе.
	Synced []string
	// reference, которые бэкенд вернул в этом проходе.
	RemoteRefs []string
}

func newSnapshot(scope Scope, at time.Time, records []model.BookingRecord) *Snapshot {
	s := &Snapshot{
		Scope:   scope,
		TakenAt: at,
		records: records,
		index:   make(map[string]int, len(records)),
	}
	for i, rec := range records {
		s.index[rec.BookingReference] = i
	}
	return s
}

func (s *Snapshot) Len() int { return len(s.records) }

// Records — записи в порядке reference.
func (s *Snapshot) Records() []model.BookingRecord {
	return cloneAll(s.records)
}

func (s *Snapshot) Get(reference string) (model.BookingRecord, bool) {
	i, ok := s.index[reference]
	if !ok {
		return model.BookingRecord{}, false
	}
	return s.records[i].Clone(), true
}

// ByTravelDate — ближайшие поездки первыми.
func (s *Snapshot) ByTravelDate() []model.BookingRecord {
	out := cloneAll(s.records)
	sort.SliceStable(out, func(i, j int) bool {
		if !out[i].TravelDate.Equal(out[j].TravelDate) {
			return out[i].TravelDate.Before(out[j].TravelDate)
		}
		return out[i].BookingReference < out[j].BookingReference
	})
	return out
}

// ByCreatedDesc — для списков и управления: новые первыми.
func (s *Snapshot) ByCreatedDesc() []model.BookingRecord {
	out := cloneAll(s.records)
	sort.SliceStable(out, func(i, j int) bool {
		if !out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].CreatedAt.After(out[j].CreatedAt)
		}
		return out[i].BookingReference < out[j].BookingReference
	})
	return out
}

// PendingCount — сколько записей ещё не отправлено на бэкенд.
func (s *Snapshot) PendingCount() int {
	n := 0
	for _, rec := range s.records {
		if rec.Origin == model.OriginLocalPending {
			n++
		}
	}
	return n
}

// Degraded — бэкенд не ответил, снимок собран только из локальной очереди.
func (s *Snapshot) Degraded() bool { return s.FetchError != nil }

// withRecord возвращает копию снимка с заменённой записью.
func (s *Snapshot) withRecord(rec model.BookingRecord) *Snapshot {
	records := cloneAll(s.records)
	if i, ok := s.index[rec.BookingReference]; ok {
		records[i] = rec.Clone()
	} else {
		records = append(records, rec.Clone())
		sort.Slice(records, func(i, j int) bool {
			return records[i].BookingReference < records[j].BookingReference
		})
	}
	next := newSnapshot(s.Scope, s.TakenAt, records)
	next.seq = s.seq
	next.FetchError = s.FetchError
	next.PersistErrors = s.PersistErrors
	next.Flagged = s.Flagged
	next.Synced = s.Synced
	next.RemoteRefs = s.RemoteRefs
	return next
}

func cloneAll(in []model.BookingRecord) []model.BookingRecord {
	out := make([]model.BookingRecord, len(in))
	for i := range in {
		out[i] = in[i].Clone()
	}
	return out
}

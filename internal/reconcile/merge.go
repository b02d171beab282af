package reconcile

import (
	"sort"

	"github.com/Leganyst/travel-booking-core/internal/model"
)

// MergeResult — результат слияния без побочных эффектов.
type MergeResult struct {
	// По одной записи на reference, отсортированы по reference.
	Records []model.BookingRecord
	// Локальные копии, которые бэкенд уже знает в корректном виде: их нужно убрать из очереди.
	Redundant []model.BookingRecord
	// Записи, исключённые из-за нарушения инвариантов.
	Flagged []*DataIntegrityError
	// Все reference, пришедшие с бэкенда (включая помеченные).
	RemoteRefs []string
}

// Merge сливает удалённые и локальные записи по booking reference.
//   - удалённая запись всегда побеждает локальную;
//   - внутри одного источника побеждает более свежий UpdatedAt,
//     при равенстве — та, что пришла позже;
//   - если удалённая версия помечена как битая, локальная копия остаётся
//     в очереди и в сводке, пока бэкенд не вернёт корректную.
func Merge(remote, local []model.BookingRecord) MergeResult {
	var res MergeResult

	remoteByRef := make(map[string]model.BookingRecord, len(remote))
	remoteOrder := make([]string, 0, len(remote))
	for _, rec := range remote {
		rec = rec.Clone()
		if rec.Origin == "" {
			rec.Origin = model.OriginRemote
		}
		prev, ok := remoteByRef[rec.BookingReference]
		if !ok {
			remoteOrder = append(remoteOrder, rec.BookingReference)
		}
		if !ok || !rec.UpdatedAt.Before(prev.UpdatedAt) {
			remoteByRef[rec.BookingReference] = rec
		}
	}

	merged := make(map[string]model.BookingRecord, len(remote)+len(local))
	for _, ref := range remoteOrder {
		rec := remoteByRef[ref]
		res.RemoteRefs = append(res.RemoteRefs, ref)
		if err := rec.Validate(); err != nil {
			res.Flagged = append(res.Flagged, &DataIntegrityError{Reference: ref, Origin: string(rec.Origin), Err: err})
			continue
		}
		merged[ref] = rec
	}

	localByRef := make(map[string]model.BookingRecord, len(local))
	localOrder := make([]string, 0, len(local))
	for _, rec := range local {
		rec = rec.Clone()
		if _, known := merged[rec.BookingReference]; known {
			res.Redundant = append(res.Redundant, rec)
			continue
		}
		prev, ok := localByRef[rec.BookingReference]
		if !ok {
			localOrder = append(localOrder, rec.BookingReference)
		}
		if !ok || !rec.UpdatedAt.Before(prev.UpdatedAt) {
			localByRef[rec.BookingReference] = rec
		}
	}

	for _, ref := range localOrder {
		rec := localByRef[ref]
		if err := rec.Validate(); err != nil {
			res.Flagged = append(res.Flagged, &DataIntegrityError{Reference: ref, Origin: string(rec.Origin), Err: err})
			continue
		}
		merged[ref] = rec
	}

	res.Records = make([]model.BookingRecord, 0, len(merged))
	for _, rec := range merged {
		res.Records = append(res.Records, rec)
	}
	sort.Slice(res.Records, func(i, j int) bool {
		return res.Records[i].BookingReference < res.Records[j].BookingReference
	})
	sort.Strings(res.RemoteRefs)
	return res
}

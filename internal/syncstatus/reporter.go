package syncstatus

import (
	"sync"
	"time"
)

// Окно свежести по умолчанию: дольше этого без успешной загрузки индикатор гаснет.
const DefaultFreshnessWindow = 5 * time.Minute

// Status — то, что показывают индикаторы синхронизации в интерфейсе.
type Status struct {
	Scope        string     `json:"scope"`
	IsActive     bool       `json:"isActive"`
	HasChanges   bool       `json:"hasChanges"`
	LastSync     *time.Time `json:"lastSync,omitempty"`
	LastAttempt  *time.Time `json:"lastAttempt,omitempty"`
	Error        string     `json:"error,omitempty"`
	PendingCount int        `json:"pendingCount"`
}

// Observation — итог одного прохода сверки.
type Observation struct {
	At           time.Time
	FetchErr     error
	RemoteRefs   []string
	PendingCount int
}

type scopeState struct {
	lastSync    time.Time
	lastAttempt time.Time
	err         error
	pending     int
	newRemote   bool
	seen        map[string]struct{}
}

// Reporter хранит состояние синхронизации по областям видимости.
type Reporter struct {
	freshness time.Duration
	now       func() time.Time

	mu        sync.RWMutex
	states    map[string]*scopeState
	listeners []func(Status)
}

func NewReporter(freshness time.Duration, now func() time.Time) *Reporter {
	if freshness <= 0 {
		freshness = DefaultFreshnessWindow
	}
	if now == nil {
		now = func() time.Time { return time.Now().UTC() }
	}
	return &Reporter{
		freshness: freshness,
		now:       now,
		states:    make(map[string]*scopeState),
	}
}

// Subscribe регистрирует слушателя изменений. Вызывается синхронно из Observe.
func (r *Reporter) Subscribe(fn func(Status)) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.listeners = append(r.listeners, fn)
}

func (r *Reporter) Observe(scope string, obs Observation) {
	r.mu.Lock()
	st, ok := r.states[scope]
	if !ok {
		st = &scopeState{seen: make(map[string]struct{})}
		r.states[scope] = st
	}

	st.lastAttempt = obs.At
	st.pending = obs.PendingCount
	if obs.FetchErr != nil {
		st.err = obs.FetchErr
		// ошибка загрузки не означает, что у бэкенда что-то поменялось
		st.newRemote = false
	} else {
		st.err = nil
		st.lastSync = obs.At
		st.newRemote = false
		for _, ref := range obs.RemoteRefs {
			if _, known := st.seen[ref]; !known {
				st.seen[ref] = struct{}{}
				st.newRemote = true
			}
		}
	}

	status := r.statusLocked(scope, st)
	listeners := append(([]func(Status))(nil), r.listeners...)
	r.mu.Unlock()

	for _, fn := range listeners {
		fn(status)
	}
}

func (r *Reporter) Status(scope string) Status {
	r.mu.RLock()
	defer r.mu.RUnlock()

	st, ok := r.states[scope]
	if !ok {
		return Status{Scope: scope}
	}
	return r.statusLocked(scope, st)
}

func (r *Reporter) statusLocked(scope string, st *scopeState) Status {
	out := Status{
		Scope:        scope,
		HasChanges:   st.pending > 0 || st.newRemote,
		PendingCount: st.pending,
	}
	if !st.lastAttempt.IsZero() {
		t := st.lastAttempt
		out.LastAttempt = &t
	}
	if !st.lastSync.IsZero() {
		t := st.lastSync
		out.LastSync = &t
		out.IsActive = st.err == nil && r.now().Sub(st.lastSync) <= r.freshness
	}
	if st.err != nil {
		out.Error = st.err.Error()
	}
	return out
}

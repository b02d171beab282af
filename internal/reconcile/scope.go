package reconcile

import "github.com/Leganyst/travel-booking-core/internal/model"

// Scope — область видимости: один клиент или вся админка (пустой CustomerID).
type Scope struct {
	CustomerID string
}

func AdminScope() Scope { return Scope{} }

func CustomerScope(customerID string) Scope { return Scope{CustomerID: customerID} }

func (s Scope) IsAdmin() bool { return s.CustomerID == "" }

func (s Scope) Key() string {
	if s.IsAdmin() {
		return "admin"
	}
	return "customer:" + s.CustomerID
}

func (s Scope) Matches(rec model.BookingRecord) bool {
	return s.IsAdmin() || rec.CustomerID == s.CustomerID
}

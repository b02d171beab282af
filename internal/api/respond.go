package api

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"

	"github.com/Leganyst/travel-booking-core/internal/lifecycle"
	"github.com/Leganyst/travel-booking-core/internal/model"
	"github.com/Leganyst/travel-booking-core/internal/queue"
	"github.com/Leganyst/travel-booking-core/internal/reconcile"
)

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.Header().Set("Cache-Control", "no-cache, no-store, must-revalidate")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

type errorBody struct {
	Error string `json:"error"`
}

// statusFor сопоставляет ошибки ядра с HTTP-кодами.
func statusFor(err error) int {
	// ErrPaymentAmount приходит внутри InvalidTransitionError, поэтому проверяется раньше.
	switch {
	case errors.Is(err, model.ErrIntegrity), errors.Is(err, lifecycle.ErrPaymentAmount):
		return http.StatusUnprocessableEntity
	case errors.Is(err, lifecycle.ErrInvalidTransition):
		return http.StatusConflict
	case errors.Is(err, reconcile.ErrRemoteUpdate):
		return http.StatusBadGateway
	case errors.Is(err, reconcile.ErrBookingNotFound):
		return http.StatusNotFound
	case errors.Is(err, queue.ErrNotLocalPending), errors.Is(err, queue.ErrNotQueued):
		return http.StatusBadRequest
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}

func (h *Handlers) writeError(w http.ResponseWriter, r *http.Request, err error) {
	status := statusFor(err)
	body := errorBody{Error: err.Error()}
	if status >= http.StatusInternalServerError {
		h.log.Error("request failed", "path", r.URL.Path, "error", err)
	}
	writeJSON(w, status, body)
}

func badRequest(w http.ResponseWriter, msg string) {
	writeJSON(w, http.StatusBadRequest, errorBody{Error: msg})
}

package httptransport

import (
	"encoding/json"
	"errors"
	"net/http"

	"duel-arena/internal/duel"
)

// MapDuelError returns the HTTP status and wire code for an error returned
// by the coordinator.
func MapDuelError(err error) (int, string) {
	code := duel.Code(err)
	switch {
	case errors.Is(err, duel.ErrNotFound):
		return http.StatusNotFound, code
	case errors.Is(err, duel.ErrValidation), errors.Is(err, duel.ErrInsufficientFunds):
		return http.StatusBadRequest, code
	case errors.Is(err, duel.ErrConflict), errors.Is(err, duel.ErrStateTransition):
		return http.StatusConflict, code
	case errors.Is(err, duel.ErrSettlementDeferred):
		return http.StatusServiceUnavailable, code
	default:
		return http.StatusInternalServerError, code
	}
}

func WriteHTTPError(w http.ResponseWriter, status int, code string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(map[string]any{"error": code})
}

func writeDuelError(w http.ResponseWriter, err error) {
	status, code := MapDuelError(err)
	WriteHTTPError(w, status, code)
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

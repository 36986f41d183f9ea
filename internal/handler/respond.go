package handler

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/komorebi-pos/engine/internal/engine"
)

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v) //nolint:errcheck
}

func writeError(w http.ResponseWriter, err error) {
	writeJSON(w, errStatus(err), map[string]string{"error": err.Error()})
}

// isPersistErr reports whether err is a storage failure rather than a
// validation rejection. Mutations that already applied in memory report
// these alongside the new state instead of failing the request.
func isPersistErr(err error) bool { return errStatus(err) == http.StatusBadGateway }

// errStatus maps engine errors onto HTTP statuses. Anything unmapped is a
// persistence failure.
func errStatus(err error) int {
	switch {
	case errors.Is(err, engine.ErrTableNotFound),
		errors.Is(err, engine.ErrTicketNotFound),
		errors.Is(err, engine.ErrRecordNotFound):
		return http.StatusNotFound
	case errors.Is(err, engine.ErrAlreadySeated),
		errors.Is(err, engine.ErrNotReadyToClean),
		errors.Is(err, engine.ErrAlreadyRefunded),
		errors.Is(err, engine.ErrEntryPaid):
		return http.StatusConflict
	case errors.Is(err, engine.ErrEmptyOrder),
		errors.Is(err, engine.ErrInvalidItem),
		errors.Is(err, engine.ErrInvalidQuantity),
		errors.Is(err, engine.ErrEmptyCheckout),
		errors.Is(err, engine.ErrUnknownEntry),
		errors.Is(err, engine.ErrExceedsQuantity),
		errors.Is(err, engine.ErrInvalidMethod):
		return http.StatusBadRequest
	default:
		return http.StatusBadGateway
	}
}

package api

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/example/wallet-engine/internal/security"
	"github.com/example/wallet-engine/internal/wallet"
)

func writeJSON(w http.ResponseWriter, r *http.Request, status int, v interface{}) {
	if cid := security.CorrelationIDFromContext(r.Context()); cid != "" {
		w.Header().Set(security.CorrelationIDHeader, cid)
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

// writeEngineError maps engine sentinels onto the HTTP surface. Anything
// unrecognized is reported as a generic internal error with no detail.
func writeEngineError(w http.ResponseWriter, r *http.Request, err error) {
	status, code := statusForError(err)
	security.WriteJSONError(w, r, status, code)
}

func statusForError(err error) (int, string) {
	switch {
	case errors.Is(err, wallet.ErrNotFound):
		return http.StatusNotFound, "not_found"
	case errors.Is(err, wallet.ErrAlreadyExists):
		return http.StatusConflict, "already_exists"
	case errors.Is(err, wallet.ErrDuplicateRequest):
		return http.StatusConflict, "duplicate_request"
	case errors.Is(err, wallet.ErrDuplicateReference):
		return http.StatusConflict, "duplicate_reference"
	case errors.Is(err, wallet.ErrInvalidAmount):
		return http.StatusUnprocessableEntity, "invalid_amount"
	case errors.Is(err, wallet.ErrInactiveAccount):
		return http.StatusUnprocessableEntity, "inactive_account"
	case errors.Is(err, wallet.ErrInsufficientFunds):
		return http.StatusUnprocessableEntity, "insufficient_funds"
	case errors.Is(err, wallet.ErrInvalidStatus):
		return http.StatusBadRequest, "validation_error"
	case errors.Is(err, wallet.ErrLockTimeout):
		return http.StatusServiceUnavailable, "lock_timeout"
	default:
		return http.StatusInternalServerError, "internal_error"
	}
}

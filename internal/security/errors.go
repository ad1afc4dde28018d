package security

import (
	"encoding/json"
	"net/http"
)

// ErrorResponse is the uniform error envelope. The error field holds a stable
// machine-readable code, never internal detail.
type ErrorResponse struct {
	Error         string `json:"error"`
	CorrelationID string `json:"correlation_id,omitempty"`
}

// WriteJSONError writes a JSON error response with the request's correlation
// ID attached.
func WriteJSONError(w http.ResponseWriter, r *http.Request, status int, code string) {
	cid := CorrelationIDFromContext(r.Context())
	if cid != "" {
		w.Header().Set(CorrelationIDHeader, cid)
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(ErrorResponse{
		Error:         code,
		CorrelationID: cid,
	})
}

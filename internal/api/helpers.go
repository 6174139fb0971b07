package api

import (
	"encoding/json"
	"net/http"

	"github.com/signalnoise/workbench/internal/apperr"
)

// errorEnvelope is the standard error body.
type errorEnvelope struct {
	Detail string `json:"detail"`
}

// respondJSON writes a JSON payload with the given HTTP status.
func respondJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	if data != nil {
		_ = json.NewEncoder(w).Encode(data)
	}
}

// respondDetail writes the error envelope with the given status.
func respondDetail(w http.ResponseWriter, status int, detail string) {
	respondJSON(w, status, errorEnvelope{Detail: detail})
}

// decodeJSON reads a request body into dst, rejecting unknown fields so
// payload typos surface as 400s instead of silently ignored options.
func decodeJSON(r *http.Request, dst interface{}) error {
	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()
	if err := dec.Decode(dst); err != nil {
		return apperr.Wrap(apperr.Validation, "invalid request body", err)
	}
	return nil
}

// emptyList keeps list responses as [] instead of null when there are no
// rows.
func emptyList[T any](items []T) []T {
	if items == nil {
		return []T{}
	}
	return items
}

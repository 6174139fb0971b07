package api

import (
	"context"
	"errors"
	"net/http"

	"github.com/signalnoise/workbench/internal/adapters"
	"github.com/signalnoise/workbench/internal/apperr"
)

// statusForKind maps the error taxonomy to HTTP statuses. Each kind has
// exactly one status.
func statusForKind(kind apperr.Kind) int {
	switch kind {
	case apperr.Validation:
		return http.StatusBadRequest
	case apperr.NotFound:
		return http.StatusNotFound
	case apperr.Conflict:
		return http.StatusConflict
	case apperr.Provider:
		return http.StatusBadGateway
	case apperr.ProviderTimeout:
		return http.StatusGatewayTimeout
	case apperr.Unavailable:
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}

// writeError maps err to its HTTP status and writes the detail envelope.
// Provider errors that escaped the adapters' retry loop land here and are
// translated to 502/504; handler deadline hits become 504.
func (s *APIServer) writeError(w http.ResponseWriter, r *http.Request, err error) {
	status, detail := classifyError(err)

	logEvent := s.logger.Warn()
	if status >= 500 {
		logEvent = s.logger.Error()
	}
	logEvent.Err(err).
		Str("method", r.Method).
		Str("path", r.URL.Path).
		Int("status", status).
		Str("request_id", GetRequestID(r.Context())).
		Msg("Request failed")

	respondDetail(w, status, detail)
}

func classifyError(err error) (int, string) {
	var pe *adapters.ProviderError
	if errors.As(err, &pe) {
		switch pe.Class {
		case adapters.ErrBadRequest:
			return http.StatusBadRequest, pe.Error()
		case adapters.ErrTimeout:
			return http.StatusGatewayTimeout, "provider call timed out"
		default:
			return http.StatusBadGateway, "provider call failed"
		}
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return http.StatusGatewayTimeout, "request deadline exceeded"
	}

	var ae *apperr.Error
	if errors.As(err, &ae) {
		return statusForKind(ae.Kind), apperr.Detail(err)
	}
	return http.StatusInternalServerError, apperr.Detail(err)
}

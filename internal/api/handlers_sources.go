package api

import (
	"net/http"

	"github.com/signalnoise/workbench/internal/apperr"
)

// handleListSources returns all configured feed sources.
func (s *APIServer) handleListSources(w http.ResponseWriter, r *http.Request) {
	sources, err := s.store.ListSources(r.Context())
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	respondJSON(w, http.StatusOK, map[string]interface{}{
		"sources": emptyList(sources),
	})
}

type ingestRequestPayload struct {
	SourceIDs []string `json:"source_ids"`
}

// handleEnqueueIngestion queues one ingestion job per source. Sources that
// already have a queued job are skipped, so the returned count only covers
// jobs this request actually created.
func (s *APIServer) handleEnqueueIngestion(w http.ResponseWriter, r *http.Request) {
	var payload ingestRequestPayload
	if err := decodeJSON(r, &payload); err != nil {
		s.writeError(w, r, err)
		return
	}
	if len(payload.SourceIDs) == 0 {
		s.writeError(w, r, apperr.New(apperr.Validation, "source_ids must not be empty"))
		return
	}

	queued, err := s.store.EnqueueIngestion(r.Context(), payload.SourceIDs)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	respondJSON(w, http.StatusAccepted, map[string]int{"queued_jobs": queued})
}

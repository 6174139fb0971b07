package api

import (
	"net/http"
	"strings"

	"github.com/signalnoise/workbench/internal/apperr"
	"github.com/signalnoise/workbench/internal/engine"
	"github.com/signalnoise/workbench/internal/models"
)

type checkHypothesisPayload struct {
	SegmentText          string  `json:"segment_text"`
	HypothesisText       string  `json:"hypothesis_text"`
	Description          *string `json:"description"`
	ReferenceURL         *string `json:"reference_url"`
	HypothesisID         *string `json:"hypothesis_id"`
	IncludeFullReference bool    `json:"include_full_reference"`
}

// handleCheckHypothesis runs one analysis and returns the verdict. Nothing
// is persisted; the caller commits via the evidence endpoint.
func (s *APIServer) handleCheckHypothesis(w http.ResponseWriter, r *http.Request) {
	var payload checkHypothesisPayload
	if err := decodeJSON(r, &payload); err != nil {
		s.writeError(w, r, err)
		return
	}

	outcome, err := s.engine.Analyze(r.Context(), engine.AnalyzeParams{
		SegmentText:          payload.SegmentText,
		HypothesisText:       payload.HypothesisText,
		Description:          payload.Description,
		ReferenceURL:         payload.ReferenceURL,
		HypothesisID:         payload.HypothesisID,
		IncludeFullReference: payload.IncludeFullReference,
	})
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	respondJSON(w, http.StatusOK, outcome)
}

type generatePOVPayload struct {
	SegmentID string `json:"segment_id"`
}

// handleGeneratePOV records a draft POV shell for a segment. Generation is
// not implemented yet; the response says so explicitly so clients do not
// poll for content.
func (s *APIServer) handleGeneratePOV(w http.ResponseWriter, r *http.Request) {
	var payload generatePOVPayload
	if err := decodeJSON(r, &payload); err != nil {
		s.writeError(w, r, err)
		return
	}
	if payload.SegmentID == "" {
		s.writeError(w, r, apperr.New(apperr.Validation, "segment_id is required"))
		return
	}

	pov, err := s.store.CreateDraftPOV(r.Context(), payload.SegmentID)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	respondJSON(w, http.StatusAccepted, map[string]interface{}{
		"pov_id": pov.ID,
		"status": "not_implemented",
	})
}

type transcriptionRequestPayload struct {
	DocumentID   string   `json:"document_id"`
	Provider     string   `json:"provider"`
	Model        *string  `json:"model"`
	StartSeconds *float64 `json:"start_seconds"`
	EndSeconds   *float64 `json:"end_seconds"`
}

// handleEnqueueTranscription queues a transcription job for a document's
// audio. Windows require both bounds with start before end; the OpenAI
// provider additionally rejects windows at transcription time.
func (s *APIServer) handleEnqueueTranscription(w http.ResponseWriter, r *http.Request) {
	var payload transcriptionRequestPayload
	if err := decodeJSON(r, &payload); err != nil {
		s.writeError(w, r, err)
		return
	}
	if payload.DocumentID == "" {
		s.writeError(w, r, apperr.New(apperr.Validation, "document_id is required"))
		return
	}
	provider, err := models.ParseTranscriptionProvider(strings.TrimSpace(payload.Provider))
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	if (payload.StartSeconds == nil) != (payload.EndSeconds == nil) {
		s.writeError(w, r, apperr.New(apperr.Validation, "start_seconds and end_seconds must both be set"))
		return
	}
	if payload.StartSeconds != nil {
		if *payload.StartSeconds < 0 || *payload.StartSeconds >= *payload.EndSeconds {
			s.writeError(w, r, apperr.New(apperr.Validation, "start_seconds must be >= 0 and less than end_seconds"))
			return
		}
	}

	job, err := s.store.EnqueueTranscription(r.Context(), payload.DocumentID,
		provider, payload.Model, payload.StartSeconds, payload.EndSeconds)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	respondJSON(w, http.StatusAccepted, job)
}

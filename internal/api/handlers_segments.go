package api

import (
	"net/http"
	"strings"

	"github.com/signalnoise/workbench/internal/apperr"
	"github.com/signalnoise/workbench/internal/models"
	"github.com/signalnoise/workbench/internal/storage"
)

// handleListSegments returns all segments with previews and linked
// hypothesis counts.
func (s *APIServer) handleListSegments(w http.ResponseWriter, r *http.Request) {
	segments, err := s.store.ListSegments(r.Context())
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	respondJSON(w, http.StatusOK, map[string]interface{}{
		"segments": emptyList(segments),
	})
}

type createSegmentPayload struct {
	DocumentID  string  `json:"document_id"`
	Text        string  `json:"text"`
	ContentHTML *string `json:"content_html"`
	StartOffset *int    `json:"start_offset"`
	EndOffset   *int    `json:"end_offset"`
	OffsetKind  string  `json:"offset_kind"`
}

// handleCreateSegment creates a manual segment from a UI text selection.
// Offsets are validated against the parent document before anything is
// written.
func (s *APIServer) handleCreateSegment(w http.ResponseWriter, r *http.Request) {
	var payload createSegmentPayload
	if err := decodeJSON(r, &payload); err != nil {
		s.writeError(w, r, err)
		return
	}
	if payload.DocumentID == "" {
		s.writeError(w, r, apperr.New(apperr.Validation, "document_id is required"))
		return
	}
	if strings.TrimSpace(payload.Text) == "" {
		s.writeError(w, r, apperr.New(apperr.Validation, "text must not be empty"))
		return
	}

	segment, err := s.store.CreateSegment(r.Context(), storage.CreateSegmentParams{
		DocumentID:  payload.DocumentID,
		Text:        payload.Text,
		ContentHTML: payload.ContentHTML,
		StartOffset: payload.StartOffset,
		EndOffset:   payload.EndOffset,
		OffsetKind:  models.OffsetKind(payload.OffsetKind),
	})
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	respondJSON(w, http.StatusCreated, segment)
}

// handleGetSegment returns one segment together with its parent document.
func (s *APIServer) handleGetSegment(w http.ResponseWriter, r *http.Request) {
	segment, err := s.store.GetSegment(r.Context(), r.PathValue("id"))
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	doc, err := s.store.GetDocument(r.Context(), segment.DocumentID)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	respondJSON(w, http.StatusOK, map[string]interface{}{
		"segment":  segment,
		"document": doc,
	})
}

// handleDeleteSegment removes a segment and its evidence.
func (s *APIServer) handleDeleteSegment(w http.ResponseWriter, r *http.Request) {
	if err := s.store.DeleteSegment(r.Context(), r.PathValue("id")); err != nil {
		s.writeError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// handleSegmentHypotheses returns the current link rows for a segment,
// with per-link freshness.
func (s *APIServer) handleSegmentHypotheses(w http.ResponseWriter, r *http.Request) {
	links, err := s.engine.ListHypothesesForSegment(r.Context(), r.PathValue("id"))
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	respondJSON(w, http.StatusOK, map[string]interface{}{
		"hypotheses": emptyList(links),
	})
}

// handleSuggest runs the suggester against a segment. No writes.
func (s *APIServer) handleSuggest(w http.ResponseWriter, r *http.Request) {
	suggestions, err := s.engine.Suggest(r.Context(), r.PathValue("id"))
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	respondJSON(w, http.StatusOK, map[string]interface{}{
		"suggestions": emptyList(suggestions),
	})
}

type commitEvidencePayload struct {
	Items []models.EvidenceItem `json:"items"`
}

// handleCommitEvidence applies a batch of evidence items against a segment
// in one transaction.
func (s *APIServer) handleCommitEvidence(w http.ResponseWriter, r *http.Request) {
	var payload commitEvidencePayload
	if err := decodeJSON(r, &payload); err != nil {
		s.writeError(w, r, err)
		return
	}

	links, err := s.engine.CommitEvidence(r.Context(), r.PathValue("id"), payload.Items)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	respondJSON(w, http.StatusOK, map[string]interface{}{
		"links": emptyList(links),
	})
}

package api

import (
	"net/http"
	"strings"

	"github.com/signalnoise/workbench/internal/apperr"
	"github.com/signalnoise/workbench/internal/models"
	"github.com/signalnoise/workbench/internal/storage"
)

// handleListHypotheses returns all hypotheses with evidence counts.
func (s *APIServer) handleListHypotheses(w http.ResponseWriter, r *http.Request) {
	hypotheses, err := s.store.ListHypotheses(r.Context())
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	respondJSON(w, http.StatusOK, map[string]interface{}{
		"hypotheses": emptyList(hypotheses),
	})
}

type createHypothesisPayload struct {
	HypothesisText string  `json:"hypothesis_text"`
	Description    *string `json:"description"`
	ReferenceURL   *string `json:"reference_url"`
	ReferenceType  *string `json:"reference_type"`
}

// handleCreateHypothesis creates a standing hypothesis.
func (s *APIServer) handleCreateHypothesis(w http.ResponseWriter, r *http.Request) {
	var payload createHypothesisPayload
	if err := decodeJSON(r, &payload); err != nil {
		s.writeError(w, r, err)
		return
	}
	if strings.TrimSpace(payload.HypothesisText) == "" {
		s.writeError(w, r, apperr.New(apperr.Validation, "hypothesis_text must not be empty"))
		return
	}
	refType, err := models.ParseReferenceType(payload.ReferenceType)
	if err != nil {
		s.writeError(w, r, err)
		return
	}

	hyp, err := s.store.CreateHypothesis(r.Context(), payload.HypothesisText,
		payload.Description, payload.ReferenceURL, refType)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	respondJSON(w, http.StatusCreated, hyp)
}

// handleGetHypothesis returns one hypothesis.
func (s *APIServer) handleGetHypothesis(w http.ResponseWriter, r *http.Request) {
	hyp, err := s.store.GetHypothesis(r.Context(), r.PathValue("id"))
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	respondJSON(w, http.StatusOK, hyp)
}

type updateHypothesisPayload struct {
	HypothesisText *string `json:"hypothesis_text"`
	Description    *string `json:"description"`
	ReferenceURL   *string `json:"reference_url"`
	ReferenceType  *string `json:"reference_type"`
}

// handleUpdateHypothesis applies a partial update. Any content change
// records a version snapshot of the pre-image.
func (s *APIServer) handleUpdateHypothesis(w http.ResponseWriter, r *http.Request) {
	var payload updateHypothesisPayload
	if err := decodeJSON(r, &payload); err != nil {
		s.writeError(w, r, err)
		return
	}
	if payload.HypothesisText != nil && strings.TrimSpace(*payload.HypothesisText) == "" {
		s.writeError(w, r, apperr.New(apperr.Validation, "hypothesis_text must not be empty"))
		return
	}

	patch := storage.HypothesisPatch{
		HypothesisText: payload.HypothesisText,
		RecordedBy:     "api",
	}
	if payload.Description != nil {
		if *payload.Description == "" {
			patch.ClearDescription = true
		} else {
			patch.Description = payload.Description
		}
	}
	if payload.ReferenceURL != nil {
		if *payload.ReferenceURL == "" {
			patch.ClearReferenceURL = true
		} else {
			patch.ReferenceURL = payload.ReferenceURL
		}
	}
	if payload.ReferenceType != nil {
		refType, err := models.ParseReferenceType(payload.ReferenceType)
		if err != nil {
			s.writeError(w, r, err)
			return
		}
		patch.ReferenceType = &refType
	}

	hyp, err := s.store.UpdateHypothesis(r.Context(), r.PathValue("id"), patch)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	respondJSON(w, http.StatusOK, hyp)
}

// handleDeleteHypothesis cascade-deletes a hypothesis and its evidence.
func (s *APIServer) handleDeleteHypothesis(w http.ResponseWriter, r *http.Request) {
	if err := s.store.DeleteHypothesis(r.Context(), r.PathValue("id")); err != nil {
		s.writeError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// handleHypothesisEvidence lists a hypothesis's evidence with freshness.
func (s *APIServer) handleHypothesisEvidence(w http.ResponseWriter, r *http.Request) {
	evidence, err := s.engine.ListEvidenceForHypothesis(r.Context(), r.PathValue("id"))
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	respondJSON(w, http.StatusOK, map[string]interface{}{
		"evidence": emptyList(evidence),
	})
}

// handleHypothesisReference returns the hypothesis's reference text,
// fetching and caching it when stale.
func (s *APIServer) handleHypothesisReference(w http.ResponseWriter, r *http.Request) {
	entry, cached, err := s.engine.ReferenceText(r.Context(), r.PathValue("id"))
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	respondJSON(w, http.StatusOK, map[string]interface{}{
		"hypothesis_id":   entry.HypothesisID,
		"full_text":       entry.FullText,
		"character_count": entry.CharacterCount,
		"fetched_at":      entry.FetchedAt,
		"cached":          cached,
	})
}

// handleHypothesisVersions returns the edit history, oldest first.
func (s *APIServer) handleHypothesisVersions(w http.ResponseWriter, r *http.Request) {
	if _, err := s.store.GetHypothesis(r.Context(), r.PathValue("id")); err != nil {
		s.writeError(w, r, err)
		return
	}
	versions, err := s.store.ListHypothesisVersions(r.Context(), r.PathValue("id"))
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	respondJSON(w, http.StatusOK, map[string]interface{}{
		"versions": emptyList(versions),
	})
}

package api

import (
	"net/http"
	"strings"

	"github.com/signalnoise/workbench/internal/apperr"
)

// handleListQuestions returns all questions with hypothesis counts.
func (s *APIServer) handleListQuestions(w http.ResponseWriter, r *http.Request) {
	questions, err := s.store.ListQuestions(r.Context())
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	respondJSON(w, http.StatusOK, map[string]interface{}{
		"questions": emptyList(questions),
	})
}

type createQuestionPayload struct {
	QuestionText string `json:"question_text"`
}

// handleCreateQuestion creates a question label.
func (s *APIServer) handleCreateQuestion(w http.ResponseWriter, r *http.Request) {
	var payload createQuestionPayload
	if err := decodeJSON(r, &payload); err != nil {
		s.writeError(w, r, err)
		return
	}
	if strings.TrimSpace(payload.QuestionText) == "" {
		s.writeError(w, r, apperr.New(apperr.Validation, "question_text must not be empty"))
		return
	}

	question, err := s.store.CreateQuestion(r.Context(), payload.QuestionText)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	respondJSON(w, http.StatusCreated, question)
}

// handleDeleteQuestion removes a question; linked hypotheses survive.
func (s *APIServer) handleDeleteQuestion(w http.ResponseWriter, r *http.Request) {
	if err := s.store.DeleteQuestion(r.Context(), r.PathValue("id")); err != nil {
		s.writeError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// handleQuestionHypotheses lists the hypotheses grouped under a question.
func (s *APIServer) handleQuestionHypotheses(w http.ResponseWriter, r *http.Request) {
	hypotheses, err := s.store.ListHypothesesForQuestion(r.Context(), r.PathValue("id"))
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	respondJSON(w, http.StatusOK, map[string]interface{}{
		"hypotheses": emptyList(hypotheses),
	})
}

type linkHypothesisPayload struct {
	HypothesisID string `json:"hypothesis_id"`
}

// handleLinkQuestionHypothesis attaches a hypothesis to a question. Linking
// the same pair twice is a 409.
func (s *APIServer) handleLinkQuestionHypothesis(w http.ResponseWriter, r *http.Request) {
	var payload linkHypothesisPayload
	if err := decodeJSON(r, &payload); err != nil {
		s.writeError(w, r, err)
		return
	}
	if payload.HypothesisID == "" {
		s.writeError(w, r, apperr.New(apperr.Validation, "hypothesis_id is required"))
		return
	}

	if err := s.store.LinkQuestionHypothesis(r.Context(), r.PathValue("id"), payload.HypothesisID); err != nil {
		s.writeError(w, r, err)
		return
	}
	respondJSON(w, http.StatusCreated, map[string]bool{"linked": true})
}

package storage

import (
	"context"

	"github.com/signalnoise/workbench/internal/apperr"
	"github.com/signalnoise/workbench/internal/models"
)

// ListQuestions returns all questions with their hypothesis counts.
func (s *Store) ListQuestions(ctx context.Context) ([]models.Question, error) {
	rows, err := s.db.Query(ctx, `
		SELECT q.id, q.question_text, q.created_at,
			(SELECT count(*) FROM question_hypotheses qh WHERE qh.question_id = q.id)
		FROM questions q
		ORDER BY q.created_at DESC`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []models.Question
	for rows.Next() {
		var q models.Question
		if err := rows.Scan(&q.ID, &q.QuestionText, &q.CreatedAt, &q.HypothesisCount); err != nil {
			return nil, err
		}
		out = append(out, q)
	}
	return out, rows.Err()
}

// CreateQuestion inserts a new question.
func (s *Store) CreateQuestion(ctx context.Context, text string) (*models.Question, error) {
	var q models.Question
	err := s.db.QueryRow(ctx, `
		INSERT INTO questions (question_text)
		VALUES ($1)
		RETURNING id, question_text, created_at`, text).
		Scan(&q.ID, &q.QuestionText, &q.CreatedAt)
	if err != nil {
		return nil, err
	}
	return &q, nil
}

// DeleteQuestion removes a question. Its hypothesis links cascade; the
// hypotheses themselves are untouched.
func (s *Store) DeleteQuestion(ctx context.Context, id string) error {
	tag, err := s.db.Exec(ctx, `DELETE FROM questions WHERE id = $1`, id)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return apperr.New(apperr.NotFound, "question not found")
	}
	return nil
}

// ListHypothesesForQuestion returns the hypotheses linked to a question.
func (s *Store) ListHypothesesForQuestion(ctx context.Context, questionID string) ([]models.Hypothesis, error) {
	var exists bool
	if err := s.db.QueryRow(ctx,
		`SELECT EXISTS (SELECT 1 FROM questions WHERE id = $1)`, questionID).Scan(&exists); err != nil {
		return nil, err
	}
	if !exists {
		return nil, apperr.New(apperr.NotFound, "question not found")
	}

	rows, err := s.db.Query(ctx, `
		SELECT h.id, h.hypothesis_text, h.description, h.reference_url,
			h.reference_type, h.created_at, h.updated_at,
			(SELECT count(*) FROM hypothesis_segment_links l WHERE l.hypothesis_id = h.id)
		FROM question_hypotheses qh
		JOIN hypotheses h ON h.id = qh.hypothesis_id
		WHERE qh.question_id = $1
		ORDER BY qh.created_at`, questionID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []models.Hypothesis
	for rows.Next() {
		var h models.Hypothesis
		if err := rows.Scan(&h.ID, &h.HypothesisText, &h.Description,
			&h.ReferenceURL, &h.ReferenceType, &h.CreatedAt, &h.UpdatedAt,
			&h.EvidenceCount); err != nil {
			return nil, err
		}
		out = append(out, h)
	}
	return out, rows.Err()
}

// LinkQuestionHypothesis attaches a hypothesis to a question. Linking the
// same pair twice is a conflict.
func (s *Store) LinkQuestionHypothesis(ctx context.Context, questionID, hypothesisID string) error {
	if _, err := s.GetHypothesis(ctx, hypothesisID); err != nil {
		return err
	}

	_, err := s.db.Exec(ctx, `
		INSERT INTO question_hypotheses (question_id, hypothesis_id)
		VALUES ($1, $2)`, questionID, hypothesisID)
	if err != nil {
		if isUniqueViolation(err) {
			return apperr.New(apperr.Conflict, "hypothesis already linked to question")
		}
		if isForeignKeyViolation(err) {
			return apperr.New(apperr.NotFound, "question not found")
		}
		return err
	}
	return nil
}

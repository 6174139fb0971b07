package storage

import (
	"context"

	"github.com/jackc/pgx/v4"

	"github.com/signalnoise/workbench/internal/apperr"
	"github.com/signalnoise/workbench/internal/models"
)

const hypothesisColumns = `
	id, hypothesis_text, description, reference_url, reference_type,
	created_at, updated_at`

func scanHypothesis(row interface{ Scan(...interface{}) error }) (*models.Hypothesis, error) {
	var h models.Hypothesis
	err := row.Scan(&h.ID, &h.HypothesisText, &h.Description,
		&h.ReferenceURL, &h.ReferenceType, &h.CreatedAt, &h.UpdatedAt)
	if err != nil {
		return nil, err
	}
	return &h, nil
}

// CreateHypothesis inserts a new hypothesis.
func (s *Store) CreateHypothesis(ctx context.Context, text string, description, referenceURL *string, refType models.ReferenceType) (*models.Hypothesis, error) {
	if refType == "" {
		refType = models.RefNone
	}
	row := s.db.QueryRow(ctx, `
		INSERT INTO hypotheses (hypothesis_text, description, reference_url, reference_type)
		VALUES ($1, $2, $3, $4)
		RETURNING `+hypothesisColumns,
		text, description, referenceURL, refType)
	return scanHypothesis(row)
}

// ListHypotheses returns all hypotheses with their evidence counts, most
// recently edited first.
func (s *Store) ListHypotheses(ctx context.Context) ([]models.Hypothesis, error) {
	rows, err := s.db.Query(ctx, `
		SELECT h.id, h.hypothesis_text, h.description, h.reference_url,
			h.reference_type, h.created_at, h.updated_at,
			(SELECT count(*) FROM hypothesis_segment_links l WHERE l.hypothesis_id = h.id)
		FROM hypotheses h
		ORDER BY h.updated_at DESC`)
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

// GetHypothesis returns one hypothesis by id.
func (s *Store) GetHypothesis(ctx context.Context, id string) (*models.Hypothesis, error) {
	row := s.db.QueryRow(ctx, `SELECT `+hypothesisColumns+` FROM hypotheses WHERE id = $1`, id)
	h, err := scanHypothesis(row)
	if err != nil {
		return nil, notFound(err, "hypothesis")
	}
	return h, nil
}

// HypothesisPatch carries the fields an update may change. Nil pointers
// mean "leave alone"; ClearDescription / ClearReferenceURL express explicit
// nulling, which a nil pointer cannot.
type HypothesisPatch struct {
	HypothesisText    *string
	Description       *string
	ClearDescription  bool
	ReferenceURL      *string
	ClearReferenceURL bool
	ReferenceType     *models.ReferenceType
	RecordedBy        string
}

// UpdateHypothesis applies a partial update. Whenever any of the four
// content fields actually changes, the pre-image is written to
// hypothesis_versions and updated_at is bumped, inside one transaction.
// A no-op patch leaves both the row and its history untouched.
func (s *Store) UpdateHypothesis(ctx context.Context, id string, patch HypothesisPatch) (*models.Hypothesis, error) {
	var updated *models.Hypothesis
	err := s.withTx(ctx, func(tx pgx.Tx) error {
		row := tx.QueryRow(ctx, `SELECT `+hypothesisColumns+` FROM hypotheses WHERE id = $1 FOR UPDATE`, id)
		current, err := scanHypothesis(row)
		if err != nil {
			return notFound(err, "hypothesis")
		}

		next := *current
		if patch.HypothesisText != nil {
			next.HypothesisText = *patch.HypothesisText
		}
		if patch.ClearDescription {
			next.Description = nil
		} else if patch.Description != nil {
			next.Description = patch.Description
		}
		if patch.ClearReferenceURL {
			next.ReferenceURL = nil
		} else if patch.ReferenceURL != nil {
			next.ReferenceURL = patch.ReferenceURL
		}
		if patch.ReferenceType != nil {
			next.ReferenceType = *patch.ReferenceType
		}

		if !hypothesisContentChanged(current, &next) {
			updated = current
			return nil
		}

		recordedBy := patch.RecordedBy
		if recordedBy == "" {
			recordedBy = "system"
		}
		if _, err := tx.Exec(ctx, `
			INSERT INTO hypothesis_versions (
				hypothesis_id, hypothesis_text, description, reference_url,
				reference_type, recorded_by
			)
			VALUES ($1, $2, $3, $4, $5, $6)`,
			current.ID, current.HypothesisText, current.Description,
			current.ReferenceURL, current.ReferenceType, recordedBy); err != nil {
			return err
		}

		row = tx.QueryRow(ctx, `
			UPDATE hypotheses SET
				hypothesis_text = $2,
				description     = $3,
				reference_url   = $4,
				reference_type  = $5,
				updated_at      = now()
			WHERE id = $1
			RETURNING `+hypothesisColumns,
			id, next.HypothesisText, next.Description, next.ReferenceURL, next.ReferenceType)
		updated, err = scanHypothesis(row)
		return err
	})
	if err != nil {
		return nil, err
	}
	return updated, nil
}

func hypothesisContentChanged(a, b *models.Hypothesis) bool {
	return a.HypothesisText != b.HypothesisText ||
		!strPtrEqual(a.Description, b.Description) ||
		!strPtrEqual(a.ReferenceURL, b.ReferenceURL) ||
		a.ReferenceType != b.ReferenceType
}

func strPtrEqual(a, b *string) bool {
	if a == nil || b == nil {
		return a == b
	}
	return *a == *b
}

// DeleteHypothesis removes a hypothesis; links, runs, versions, the
// reference-cache row, and question links all cascade.
func (s *Store) DeleteHypothesis(ctx context.Context, id string) error {
	tag, err := s.db.Exec(ctx, `DELETE FROM hypotheses WHERE id = $1`, id)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return apperr.New(apperr.NotFound, "hypothesis not found")
	}
	return nil
}

// ListHypothesisVersions returns a hypothesis's snapshots, oldest first.
func (s *Store) ListHypothesisVersions(ctx context.Context, hypothesisID string) ([]models.HypothesisVersion, error) {
	rows, err := s.db.Query(ctx, `
		SELECT id, hypothesis_id, hypothesis_text, description, reference_url,
			reference_type, recorded_at, recorded_by
		FROM hypothesis_versions
		WHERE hypothesis_id = $1
		ORDER BY recorded_at`, hypothesisID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []models.HypothesisVersion
	for rows.Next() {
		var v models.HypothesisVersion
		if err := rows.Scan(&v.ID, &v.HypothesisID, &v.HypothesisText,
			&v.Description, &v.ReferenceURL, &v.ReferenceType,
			&v.RecordedAt, &v.RecordedBy); err != nil {
			return nil, err
		}
		out = append(out, v)
	}
	return out, rows.Err()
}

package storage

import (
	"context"

	"github.com/signalnoise/workbench/internal/models"
)

// CreateDraftPOV records a draft point-of-view shell for a segment. Content
// generation is not wired up yet; the row marks intent so drafts can be
// listed and picked up later.
func (s *Store) CreateDraftPOV(ctx context.Context, segmentID string) (*models.AnalystPOV, error) {
	if _, err := s.GetSegment(ctx, segmentID); err != nil {
		return nil, err
	}

	var pov models.AnalystPOV
	err := s.db.QueryRow(ctx, `
		INSERT INTO analyst_povs (segment_id, status)
		VALUES ($1, 'draft')
		RETURNING id, segment_id, status, content, created_at, updated_at`, segmentID).
		Scan(&pov.ID, &pov.SegmentID, &pov.Status, &pov.Content,
			&pov.CreatedAt, &pov.UpdatedAt)
	if err != nil {
		return nil, err
	}
	return &pov, nil
}

// ListPOVs returns all point-of-view drafts, newest first.
func (s *Store) ListPOVs(ctx context.Context) ([]models.AnalystPOV, error) {
	rows, err := s.db.Query(ctx, `
		SELECT id, segment_id, status, content, created_at, updated_at
		FROM analyst_povs
		ORDER BY created_at DESC`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []models.AnalystPOV
	for rows.Next() {
		var pov models.AnalystPOV
		if err := rows.Scan(&pov.ID, &pov.SegmentID, &pov.Status, &pov.Content,
			&pov.CreatedAt, &pov.UpdatedAt); err != nil {
			return nil, err
		}
		out = append(out, pov)
	}
	return out, rows.Err()
}

package storage

import (
	"context"

	"github.com/signalnoise/workbench/internal/models"
)

// ListSources returns all sources, active first.
func (s *Store) ListSources(ctx context.Context) ([]models.Source, error) {
	rows, err := s.db.Query(ctx, `
		SELECT id, name, type, feed_url, is_active, poll_interval_minutes, created_at
		FROM sources
		ORDER BY is_active DESC, name`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []models.Source
	for rows.Next() {
		var src models.Source
		if err := rows.Scan(&src.ID, &src.Name, &src.Type, &src.FeedURL,
			&src.IsActive, &src.PollIntervalMin, &src.CreatedAt); err != nil {
			return nil, err
		}
		out = append(out, src)
	}
	return out, rows.Err()
}

// GetSource returns one source by id.
func (s *Store) GetSource(ctx context.Context, id string) (*models.Source, error) {
	var src models.Source
	err := s.db.QueryRow(ctx, `
		SELECT id, name, type, feed_url, is_active, poll_interval_minutes, created_at
		FROM sources
		WHERE id = $1`, id).
		Scan(&src.ID, &src.Name, &src.Type, &src.FeedURL,
			&src.IsActive, &src.PollIntervalMin, &src.CreatedAt)
	if err != nil {
		return nil, notFound(err, "source")
	}
	return &src, nil
}

// EnsureSource inserts a source if one with the same name does not exist and
// returns the stored row. Used by operator tooling to seed feeds.
func (s *Store) EnsureSource(ctx context.Context, name string, typ models.SourceType, feedURL *string) (*models.Source, error) {
	var src models.Source
	err := s.db.QueryRow(ctx, `
		INSERT INTO sources (name, type, feed_url)
		VALUES ($1, $2, $3)
		ON CONFLICT (name) DO UPDATE SET feed_url = EXCLUDED.feed_url
		RETURNING id, name, type, feed_url, is_active, poll_interval_minutes, created_at`,
		name, typ, feedURL).
		Scan(&src.ID, &src.Name, &src.Type, &src.FeedURL,
			&src.IsActive, &src.PollIntervalMin, &src.CreatedAt)
	if err != nil {
		return nil, err
	}
	return &src, nil
}

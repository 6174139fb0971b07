package storage

import (
	"context"
	"errors"
	"hash/fnv"

	"github.com/jackc/pgx/v4"

	"github.com/signalnoise/workbench/internal/models"
)

// GetReference returns the cached reference row for a hypothesis, or nil
// when none exists. TTL policy belongs to the caller; the store only hands
// back what it has.
func (s *Store) GetReference(ctx context.Context, hypothesisID string) (*models.ReferenceCacheEntry, error) {
	var entry models.ReferenceCacheEntry
	err := s.db.QueryRow(ctx, `
		SELECT hypothesis_id, full_text, character_count, fetched_at
		FROM hypothesis_reference_cache
		WHERE hypothesis_id = $1`, hypothesisID).
		Scan(&entry.HypothesisID, &entry.FullText, &entry.CharacterCount, &entry.FetchedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, err
	}
	return &entry, nil
}

// UpsertReference stores freshly crawled reference text, replacing any
// stale row.
func (s *Store) UpsertReference(ctx context.Context, hypothesisID, fullText string) (*models.ReferenceCacheEntry, error) {
	var entry models.ReferenceCacheEntry
	err := s.db.QueryRow(ctx, `
		INSERT INTO hypothesis_reference_cache (hypothesis_id, full_text, character_count)
		VALUES ($1, $2, $3)
		ON CONFLICT (hypothesis_id) DO UPDATE SET
			full_text       = EXCLUDED.full_text,
			character_count = EXCLUDED.character_count,
			fetched_at      = now(),
			updated_at      = now()
		RETURNING hypothesis_id, full_text, character_count, fetched_at`,
		hypothesisID, fullText, len(fullText)).
		Scan(&entry.HypothesisID, &entry.FullText, &entry.CharacterCount, &entry.FetchedAt)
	if err != nil {
		return nil, err
	}
	return &entry, nil
}

// WithReferenceLock runs fn while holding the per-hypothesis advisory lock,
// so concurrent deep analyses of the same hypothesis issue exactly one
// external fetch. The lock lives on a dedicated connection and is released
// when fn returns.
func (s *Store) WithReferenceLock(ctx context.Context, hypothesisID string, fn func(ctx context.Context) error) error {
	conn, err := s.db.Acquire(ctx)
	if err != nil {
		return err
	}
	defer conn.Release()

	key := advisoryKey(hypothesisID)
	if _, err := conn.Exec(ctx, `SELECT pg_advisory_lock($1)`, key); err != nil {
		return err
	}
	defer func() {
		_, _ = conn.Exec(context.Background(), `SELECT pg_advisory_unlock($1)`, key)
	}()

	return fn(ctx)
}

// advisoryKey folds a hypothesis id into the 64-bit advisory lock space.
func advisoryKey(hypothesisID string) int64 {
	h := fnv.New64a()
	_, _ = h.Write([]byte("refcache:" + hypothesisID))
	return int64(h.Sum64())
}

package storage

import (
	"context"
	"time"

	"github.com/jackc/pgx/v4"

	"github.com/signalnoise/workbench/internal/apperr"
	"github.com/signalnoise/workbench/internal/metrics"
	"github.com/signalnoise/workbench/internal/models"
)

// CommitEvidence applies a batch of evidence items against one segment in a
// single REPEATABLE READ transaction. Per item, in order:
//
//  1. resolve or create the hypothesis (content edits snapshot the
//     pre-image, exactly like UpdateHypothesis),
//  2. upsert the (hypothesis, segment) link with the item's verdict,
//  3. append a run row pointing at that link, snapshotting the hypothesis
//     fields as they stand after step 1.
//
// Any failure rolls back the whole batch. Serialization failures from
// concurrent commits on the same pair are retried with fresh reads.
func (s *Store) CommitEvidence(ctx context.Context, segmentID string, items []models.EvidenceItem) ([]models.Link, error) {
	if len(items) == 0 {
		return nil, apperr.New(apperr.Validation, "evidence items must not be empty")
	}

	// Bad vocabulary rejects the whole batch before any write happens.
	verdicts := make([]models.Verdict, len(items))
	authors := make([]models.AuthoredBy, len(items))
	for i, item := range items {
		verdict, err := models.ParseVerdict(item.Verdict)
		if err != nil {
			return nil, err
		}
		verdicts[i] = verdict
		author, err := models.ParseAuthoredBy(string(item.AuthoredBy))
		if err != nil {
			return nil, err
		}
		authors[i] = author
	}

	var links []models.Link
	err := s.withSerializableRetry(ctx, func(tx pgx.Tx) error {
		links = links[:0]

		// The segment must exist; a dangling id fails the whole commit.
		var exists bool
		if err := tx.QueryRow(ctx,
			`SELECT EXISTS (SELECT 1 FROM segments WHERE id = $1)`, segmentID).Scan(&exists); err != nil {
			return err
		}
		if !exists {
			return apperr.New(apperr.NotFound, "segment not found")
		}

		for i, item := range items {
			hyp, err := resolveHypothesis(ctx, tx, item)
			if err != nil {
				return err
			}
			verdict, authoredBy := verdicts[i], authors[i]

			var link models.Link
			err = tx.QueryRow(ctx, `
				INSERT INTO hypothesis_segment_links (
					hypothesis_id, segment_id, verdict, analysis_text, authored_by
				)
				VALUES ($1, $2, $3, $4, $5)
				ON CONFLICT (hypothesis_id, segment_id) DO UPDATE SET
					verdict       = EXCLUDED.verdict,
					analysis_text = EXCLUDED.analysis_text,
					authored_by   = EXCLUDED.authored_by,
					updated_at    = now()
				RETURNING id, hypothesis_id, segment_id, verdict, analysis_text,
					authored_by, created_at, updated_at`,
				hyp.ID, segmentID, verdict, item.AnalysisText, authoredBy).
				Scan(&link.ID, &link.HypothesisID, &link.SegmentID, &link.Verdict,
					&link.AnalysisText, &link.AuthoredBy, &link.CreatedAt, &link.UpdatedAt)
			if err != nil {
				return err
			}

			if _, err := tx.Exec(ctx, `
				INSERT INTO hypothesis_segment_link_runs (
					link_id, hypothesis_id, segment_id, verdict, analysis_text,
					authored_by, hypothesis_text_snapshot, description_snapshot,
					reference_url_snapshot, reference_type_snapshot,
					hypothesis_updated_at_snapshot
				)
				VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)`,
				link.ID, hyp.ID, segmentID, verdict, item.AnalysisText, authoredBy,
				hyp.HypothesisText, hyp.Description, hyp.ReferenceURL,
				hyp.ReferenceType, hyp.UpdatedAt); err != nil {
				return err
			}

			links = append(links, link)
		}
		return nil
	})
	if err != nil {
		metrics.EvidenceCommitsTotal.WithLabelValues("error").Inc()
		return nil, err
	}
	metrics.EvidenceCommitsTotal.WithLabelValues("ok").Inc()
	return links, nil
}

// resolveHypothesis returns the hypothesis an evidence item refers to,
// creating it when the item has no id and updating it (with a version
// snapshot) when the item's text or description differ from the stored row.
func resolveHypothesis(ctx context.Context, tx pgx.Tx, item models.EvidenceItem) (*models.Hypothesis, error) {
	if item.HypothesisID == nil {
		if item.HypothesisText == "" {
			return nil, apperr.New(apperr.Validation, "hypothesis_text is required when hypothesis_id is not set")
		}
		row := tx.QueryRow(ctx, `
			INSERT INTO hypotheses (hypothesis_text, description)
			VALUES ($1, $2)
			RETURNING `+hypothesisColumns,
			item.HypothesisText, item.Description)
		return scanHypothesis(row)
	}

	row := tx.QueryRow(ctx, `SELECT `+hypothesisColumns+` FROM hypotheses WHERE id = $1 FOR UPDATE`, *item.HypothesisID)
	current, err := scanHypothesis(row)
	if err != nil {
		return nil, notFound(err, "hypothesis")
	}

	next := *current
	if item.HypothesisText != "" {
		next.HypothesisText = item.HypothesisText
	}
	if item.Description != nil {
		next.Description = item.Description
	}
	if !hypothesisContentChanged(current, &next) {
		return current, nil
	}

	if _, err := tx.Exec(ctx, `
		INSERT INTO hypothesis_versions (
			hypothesis_id, hypothesis_text, description, reference_url,
			reference_type, recorded_by
		)
		VALUES ($1, $2, $3, $4, $5, 'evidence_commit')`,
		current.ID, current.HypothesisText, current.Description,
		current.ReferenceURL, current.ReferenceType); err != nil {
		return nil, err
	}

	row = tx.QueryRow(ctx, `
		UPDATE hypotheses SET
			hypothesis_text = $2,
			description     = $3,
			updated_at      = now()
		WHERE id = $1
		RETURNING `+hypothesisColumns,
		current.ID, next.HypothesisText, next.Description)
	return scanHypothesis(row)
}

// ListEvidenceForHypothesis returns the hypothesis's links enriched with
// segment and document previews plus freshness.
func (s *Store) ListEvidenceForHypothesis(ctx context.Context, hypothesisID string) ([]models.EvidenceRow, error) {
	if _, err := s.GetHypothesis(ctx, hypothesisID); err != nil {
		return nil, err
	}

	rows, err := s.db.Query(ctx, `
		SELECT l.id, l.hypothesis_id, l.segment_id, l.verdict, l.analysis_text,
			l.authored_by, l.created_at, l.updated_at,
			sg.text, d.id, d.title, h.updated_at
		FROM hypothesis_segment_links l
		JOIN segments sg ON sg.id = l.segment_id
		JOIN documents d ON d.id = sg.document_id
		JOIN hypotheses h ON h.id = l.hypothesis_id
		WHERE l.hypothesis_id = $1
		ORDER BY l.updated_at DESC`, hypothesisID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []models.EvidenceRow
	for rows.Next() {
		var row models.EvidenceRow
		if err := rows.Scan(&row.Link.ID, &row.Link.HypothesisID, &row.Link.SegmentID,
			&row.Link.Verdict, &row.Link.AnalysisText, &row.Link.AuthoredBy,
			&row.Link.CreatedAt, &row.Link.UpdatedAt,
			&row.SegmentText, &row.DocumentID, &row.DocumentTitle,
			&row.HypothesisUpdatedAt); err != nil {
			return nil, err
		}
		row.FreshnessStatus = models.Freshness(row.Link.UpdatedAt, row.HypothesisUpdatedAt)
		out = append(out, row)
	}
	return out, rows.Err()
}

// SegmentLinkRow is one current link for the segment workbench view.
type SegmentLinkRow struct {
	Link            models.Link `json:"link"`
	HypothesisText  string      `json:"hypothesis_text"`
	Description     *string     `json:"description"`
	FreshnessStatus string      `json:"freshness_status"`
}

// ListLinksForSegment returns the current link state for a segment.
func (s *Store) ListLinksForSegment(ctx context.Context, segmentID string) ([]SegmentLinkRow, error) {
	if _, err := s.GetSegment(ctx, segmentID); err != nil {
		return nil, err
	}

	rows, err := s.db.Query(ctx, `
		SELECT l.id, l.hypothesis_id, l.segment_id, l.verdict, l.analysis_text,
			l.authored_by, l.created_at, l.updated_at,
			h.hypothesis_text, h.description, h.updated_at
		FROM hypothesis_segment_links l
		JOIN hypotheses h ON h.id = l.hypothesis_id
		WHERE l.segment_id = $1
		ORDER BY l.updated_at DESC`, segmentID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []SegmentLinkRow
	for rows.Next() {
		var row SegmentLinkRow
		var hypUpdatedAt time.Time
		if err := rows.Scan(&row.Link.ID, &row.Link.HypothesisID, &row.Link.SegmentID,
			&row.Link.Verdict, &row.Link.AnalysisText, &row.Link.AuthoredBy,
			&row.Link.CreatedAt, &row.Link.UpdatedAt,
			&row.HypothesisText, &row.Description, &hypUpdatedAt); err != nil {
			return nil, err
		}
		row.FreshnessStatus = models.Freshness(row.Link.UpdatedAt, hypUpdatedAt)
		out = append(out, row)
	}
	return out, rows.Err()
}

// ListRunsForLink returns the append-only run history for one link,
// newest first.
func (s *Store) ListRunsForLink(ctx context.Context, linkID string) ([]models.Run, error) {
	rows, err := s.db.Query(ctx, `
		SELECT id, link_id, hypothesis_id, segment_id, verdict, analysis_text,
			authored_by, hypothesis_text_snapshot, description_snapshot,
			reference_url_snapshot, reference_type_snapshot,
			hypothesis_updated_at_snapshot, created_at
		FROM hypothesis_segment_link_runs
		WHERE link_id = $1
		ORDER BY created_at DESC`, linkID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []models.Run
	for rows.Next() {
		var run models.Run
		if err := rows.Scan(&run.ID, &run.LinkID, &run.HypothesisID, &run.SegmentID,
			&run.Verdict, &run.AnalysisText, &run.AuthoredBy,
			&run.HypothesisTextSnapshot, &run.DescriptionSnapshot,
			&run.ReferenceURLSnapshot, &run.ReferenceTypeSnapshot,
			&run.HypothesisUpdatedAtSnapshot, &run.CreatedAt); err != nil {
			return nil, err
		}
		out = append(out, run)
	}
	return out, rows.Err()
}

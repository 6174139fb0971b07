package storage

import (
	"context"
	"encoding/json"

	"github.com/signalnoise/workbench/internal/apperr"
	"github.com/signalnoise/workbench/internal/models"
)

const segmentColumns = `
	id, document_id, text, content_html, start_offset, end_offset,
	offset_kind, segment_status, version, labels, provenance,
	created_at, updated_at`

func scanSegment(row interface{ Scan(...interface{}) error }) (*models.Segment, error) {
	var seg models.Segment
	var provenance []byte
	err := row.Scan(&seg.ID, &seg.DocumentID, &seg.Text, &seg.ContentHTML,
		&seg.StartOffset, &seg.EndOffset, &seg.OffsetKind, &seg.SegmentStatus,
		&seg.Version, &seg.Labels, &provenance, &seg.CreatedAt, &seg.UpdatedAt)
	if err != nil {
		return nil, err
	}
	seg.Provenance = json.RawMessage(provenance)
	return &seg, nil
}

// CreateSegmentParams carries a new segment. Offsets are validated against
// the parent document before the insert.
type CreateSegmentParams struct {
	DocumentID  string
	Text        string
	ContentHTML *string
	StartOffset *int
	EndOffset   *int
	OffsetKind  models.OffsetKind
	Status      models.SegmentStatus
	Provenance  json.RawMessage
}

// CreateSegment validates the offsets against the parent document and
// inserts the segment.
func (s *Store) CreateSegment(ctx context.Context, params CreateSegmentParams) (*models.Segment, error) {
	doc, err := s.GetDocument(ctx, params.DocumentID)
	if err != nil {
		return nil, err
	}

	kind := params.OffsetKind
	if kind == "" {
		kind = models.OffsetText
	}
	content := ""
	if doc.ContentText != nil {
		content = *doc.ContentText
	}
	if err := models.ValidateOffsets(params.StartOffset, params.EndOffset, kind, content); err != nil {
		return nil, err
	}

	status := params.Status
	if status == "" {
		status = models.SegmentRaw
	}
	var provenance interface{}
	if len(params.Provenance) > 0 {
		provenance = []byte(params.Provenance)
	}

	row := s.db.QueryRow(ctx, `
		INSERT INTO segments (
			document_id, text, content_html, start_offset, end_offset,
			offset_kind, segment_status, provenance
		)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		RETURNING `+segmentColumns,
		params.DocumentID, params.Text, params.ContentHTML,
		params.StartOffset, params.EndOffset, kind, status, provenance)

	return scanSegment(row)
}

// GetSegment returns one segment by id.
func (s *Store) GetSegment(ctx context.Context, id string) (*models.Segment, error) {
	row := s.db.QueryRow(ctx, `SELECT `+segmentColumns+` FROM segments WHERE id = $1`, id)
	seg, err := scanSegment(row)
	if err != nil {
		return nil, notFound(err, "segment")
	}
	return seg, nil
}

// SegmentListRow is one entry of the global segment list, with a preview
// and the number of linked hypotheses.
type SegmentListRow struct {
	Segment         models.Segment `json:"segment"`
	DocumentTitle   string         `json:"document_title"`
	HypothesisCount int            `json:"hypothesis_count"`
}

// ListSegments returns all segments newest first.
func (s *Store) ListSegments(ctx context.Context) ([]SegmentListRow, error) {
	rows, err := s.db.Query(ctx, `
		SELECT sg.id, sg.document_id, sg.text, sg.content_html, sg.start_offset,
			sg.end_offset, sg.offset_kind, sg.segment_status, sg.version,
			sg.labels, sg.provenance, sg.created_at, sg.updated_at,
			d.title,
			(SELECT count(*) FROM hypothesis_segment_links l WHERE l.segment_id = sg.id)
		FROM segments sg
		JOIN documents d ON d.id = sg.document_id
		ORDER BY sg.created_at DESC`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []SegmentListRow
	for rows.Next() {
		var item SegmentListRow
		var provenance []byte
		if err := rows.Scan(&item.Segment.ID, &item.Segment.DocumentID,
			&item.Segment.Text, &item.Segment.ContentHTML,
			&item.Segment.StartOffset, &item.Segment.EndOffset,
			&item.Segment.OffsetKind, &item.Segment.SegmentStatus,
			&item.Segment.Version, &item.Segment.Labels, &provenance,
			&item.Segment.CreatedAt, &item.Segment.UpdatedAt,
			&item.DocumentTitle, &item.HypothesisCount); err != nil {
			return nil, err
		}
		item.Segment.Provenance = json.RawMessage(provenance)
		out = append(out, item)
	}
	return out, rows.Err()
}

// ListSegmentsForDocument returns a document's segments in document order.
func (s *Store) ListSegmentsForDocument(ctx context.Context, documentID string) ([]models.Segment, error) {
	rows, err := s.db.Query(ctx, `
		SELECT `+segmentColumns+`
		FROM segments
		WHERE document_id = $1
		ORDER BY start_offset NULLS LAST, created_at`, documentID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []models.Segment
	for rows.Next() {
		seg, err := scanSegment(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *seg)
	}
	return out, rows.Err()
}

// DeleteSegment removes a segment; links and runs cascade.
func (s *Store) DeleteSegment(ctx context.Context, id string) error {
	tag, err := s.db.Exec(ctx, `DELETE FROM segments WHERE id = $1`, id)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return apperr.New(apperr.NotFound, "segment not found")
	}
	return nil
}

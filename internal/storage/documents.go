package storage

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/signalnoise/workbench/internal/apperr"
	"github.com/signalnoise/workbench/internal/models"
)

const documentColumns = `
	id, source_id, external_id, title, author, published_at, original_url,
	original_media_type, content_text, content_html, assets,
	transcript_status, ingest_status, ingest_method, is_archived,
	created_at, updated_at`

// scanDocument reads one document row including the jsonb asset list.
func scanDocument(row interface{ Scan(...interface{}) error }) (*models.Document, error) {
	var doc models.Document
	var assetsRaw []byte
	err := row.Scan(&doc.ID, &doc.SourceID, &doc.ExternalID, &doc.Title,
		&doc.Author, &doc.PublishedAt, &doc.OriginalURL, &doc.OriginalMediaType,
		&doc.ContentText, &doc.ContentHTML, &assetsRaw,
		&doc.TranscriptStatus, &doc.IngestStatus, &doc.IngestMethod,
		&doc.IsArchived, &doc.CreatedAt, &doc.UpdatedAt)
	if err != nil {
		return nil, err
	}
	if len(assetsRaw) > 0 {
		if err := json.Unmarshal(assetsRaw, &doc.Assets); err != nil {
			return nil, fmt.Errorf("decode document assets: %w", err)
		}
	}
	return &doc, nil
}

// UpsertDocument inserts or refreshes a document keyed on
// (source_id, external_id). Existing transcript state is preserved: a feed
// re-poll never clobbers transcripts already produced.
func (s *Store) UpsertDocument(ctx context.Context, doc models.Document) (*models.Document, error) {
	assets := doc.Assets
	if assets == nil {
		assets = []models.Asset{}
	}
	assetsRaw, err := json.Marshal(assets)
	if err != nil {
		return nil, fmt.Errorf("encode document assets: %w", err)
	}

	transcriptStatus := doc.TranscriptStatus
	if transcriptStatus == "" {
		transcriptStatus = models.TranscriptNone
	}

	row := s.db.QueryRow(ctx, `
		INSERT INTO documents (
			source_id, external_id, title, author, published_at, original_url,
			original_media_type, content_text, content_html, assets,
			transcript_status, ingest_status, ingest_method
		)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, 'ok', $12)
		ON CONFLICT (source_id, external_id) DO UPDATE SET
			title               = EXCLUDED.title,
			author              = EXCLUDED.author,
			published_at        = EXCLUDED.published_at,
			original_url        = EXCLUDED.original_url,
			original_media_type = EXCLUDED.original_media_type,
			content_text        = COALESCE(documents.content_text, EXCLUDED.content_text),
			content_html        = COALESCE(EXCLUDED.content_html, documents.content_html),
			ingest_status       = 'ok',
			updated_at          = now()
		RETURNING `+documentColumns,
		doc.SourceID, doc.ExternalID, doc.Title, doc.Author, doc.PublishedAt,
		doc.OriginalURL, doc.OriginalMediaType, doc.ContentText, doc.ContentHTML,
		assetsRaw, transcriptStatus, doc.IngestMethod)

	return scanDocument(row)
}

// CreateDocument inserts a standalone document (direct URL ingestion).
func (s *Store) CreateDocument(ctx context.Context, doc models.Document) (*models.Document, error) {
	assets := doc.Assets
	if assets == nil {
		assets = []models.Asset{}
	}
	assetsRaw, err := json.Marshal(assets)
	if err != nil {
		return nil, fmt.Errorf("encode document assets: %w", err)
	}

	row := s.db.QueryRow(ctx, `
		INSERT INTO documents (
			source_id, external_id, title, author, published_at, original_url,
			original_media_type, content_text, content_html, assets,
			ingest_status, ingest_method
		)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, 'ok', $11)
		RETURNING `+documentColumns,
		doc.SourceID, doc.ExternalID, doc.Title, doc.Author, doc.PublishedAt,
		doc.OriginalURL, doc.OriginalMediaType, doc.ContentText, doc.ContentHTML,
		assetsRaw, doc.IngestMethod)

	return scanDocument(row)
}

// ListDocuments returns non-archived documents newest first, with per-doc
// segment counts for the workbench list view.
func (s *Store) ListDocuments(ctx context.Context) ([]models.Document, error) {
	rows, err := s.db.Query(ctx, `
		SELECT `+documentColumns+`,
			(SELECT count(*) FROM segments sg WHERE sg.document_id = d.id) AS segment_count
		FROM documents d
		WHERE NOT is_archived
		ORDER BY published_at DESC NULLS LAST, created_at DESC`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []models.Document
	for rows.Next() {
		var doc models.Document
		var assetsRaw []byte
		if err := rows.Scan(&doc.ID, &doc.SourceID, &doc.ExternalID, &doc.Title,
			&doc.Author, &doc.PublishedAt, &doc.OriginalURL, &doc.OriginalMediaType,
			&doc.ContentText, &doc.ContentHTML, &assetsRaw,
			&doc.TranscriptStatus, &doc.IngestStatus, &doc.IngestMethod,
			&doc.IsArchived, &doc.CreatedAt, &doc.UpdatedAt, &doc.SegmentCount); err != nil {
			return nil, err
		}
		if len(assetsRaw) > 0 {
			if err := json.Unmarshal(assetsRaw, &doc.Assets); err != nil {
				return nil, fmt.Errorf("decode document assets: %w", err)
			}
		}
		out = append(out, doc)
	}
	return out, rows.Err()
}

// GetDocument returns one document by id.
func (s *Store) GetDocument(ctx context.Context, id string) (*models.Document, error) {
	row := s.db.QueryRow(ctx, `SELECT `+documentColumns+` FROM documents WHERE id = $1`, id)
	doc, err := scanDocument(row)
	if err != nil {
		return nil, notFound(err, "document")
	}
	return doc, nil
}

// ArchiveDocument soft-deletes a document.
func (s *Store) ArchiveDocument(ctx context.Context, id string) error {
	tag, err := s.db.Exec(ctx, `
		UPDATE documents SET is_archived = TRUE, updated_at = now() WHERE id = $1`, id)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return apperr.New(apperr.NotFound, "document not found")
	}
	return nil
}

// DocumentMetadataPatch carries the fields a metadata update may change.
// Nil pointers mean "leave alone".
type DocumentMetadataPatch struct {
	Title       *string
	Author      *string
	PublishedAt *time.Time
	SourceID    *string
}

// UpdateDocumentMetadata applies a partial metadata update and bumps
// updated_at.
func (s *Store) UpdateDocumentMetadata(ctx context.Context, id string, patch DocumentMetadataPatch) (*models.Document, error) {
	row := s.db.QueryRow(ctx, `
		UPDATE documents SET
			title        = COALESCE($2, title),
			author       = COALESCE($3, author),
			published_at = COALESCE($4, published_at),
			source_id    = COALESCE($5, source_id),
			updated_at   = now()
		WHERE id = $1
		RETURNING `+documentColumns,
		id, patch.Title, patch.Author, patch.PublishedAt, patch.SourceID)
	doc, err := scanDocument(row)
	if err != nil {
		return nil, notFound(err, "document")
	}
	return doc, nil
}

// AppendTranscript appends a transcript asset to the document. Full-length
// transcripts (fullText non-nil) also replace content_text and mark the
// transcript complete; windowed ones only mark it partial. Prior transcript
// assets are never removed.
func (s *Store) AppendTranscript(ctx context.Context, id string, asset models.Asset, fullText *string) error {
	assetRaw, err := json.Marshal(asset)
	if err != nil {
		return fmt.Errorf("encode transcript asset: %w", err)
	}

	status := models.TranscriptPartial
	if fullText != nil {
		status = models.TranscriptComplete
	}

	tag, err := s.db.Exec(ctx, `
		UPDATE documents SET
			assets            = assets || $2::jsonb,
			content_text      = COALESCE($3, content_text),
			transcript_status = $4,
			updated_at        = now()
		WHERE id = $1`,
		id, assetRaw, fullText, status)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return apperr.New(apperr.NotFound, "document not found")
	}
	return nil
}

// SetTranscriptStatus moves a document's transcript status. The worker
// resets it to none when a job fails so the document can be re-enqueued.
func (s *Store) SetTranscriptStatus(ctx context.Context, id string, status models.TranscriptStatus) error {
	tag, err := s.db.Exec(ctx, `
		UPDATE documents SET transcript_status = $2, updated_at = now() WHERE id = $1`,
		id, status)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return apperr.New(apperr.NotFound, "document not found")
	}
	return nil
}

package storage

import (
	"context"
	"encoding/json"
	"errors"

	"github.com/jackc/pgx/v4"

	"github.com/signalnoise/workbench/internal/apperr"
	"github.com/signalnoise/workbench/internal/models"
)

// EnqueueIngestion queues an ingestion job per source id, all in one
// transaction: an unknown id rolls the whole batch back. A source that
// already has a queued job is skipped silently, so only genuinely new
// insertions are counted. The partial unique index on (source_id) WHERE
// status = 'queued' makes the skip race-free across API instances.
func (s *Store) EnqueueIngestion(ctx context.Context, sourceIDs []string) (int, error) {
	if len(sourceIDs) == 0 {
		return 0, apperr.New(apperr.Validation, "source_ids must not be empty")
	}

	queued := 0
	err := s.withTx(ctx, func(tx pgx.Tx) error {
		for _, sourceID := range sourceIDs {
			var exists bool
			if err := tx.QueryRow(ctx,
				`SELECT EXISTS (SELECT 1 FROM sources WHERE id = $1)`, sourceID).Scan(&exists); err != nil {
				return err
			}
			if !exists {
				return apperr.Newf(apperr.NotFound, "source %s not found", sourceID)
			}

			var id string
			err := tx.QueryRow(ctx, `
				INSERT INTO ingestion_requests (source_id, status)
				VALUES ($1, 'queued')
				ON CONFLICT (source_id) WHERE status = 'queued' DO NOTHING
				RETURNING id`, sourceID).Scan(&id)
			if err != nil {
				if errors.Is(err, pgx.ErrNoRows) {
					// Already queued; idempotent success.
					continue
				}
				return err
			}
			queued++
		}
		return nil
	})
	if err != nil {
		return 0, err
	}
	return queued, nil
}

// ClaimNextIngestion atomically moves the oldest queued ingestion job to
// in_progress and returns it, or nil when the queue is empty. SKIP LOCKED
// lets multiple workers share the queue without double-claiming.
func (s *Store) ClaimNextIngestion(ctx context.Context) (*models.IngestionJob, error) {
	var job models.IngestionJob
	err := s.db.QueryRow(ctx, `
		UPDATE ingestion_requests
		SET status = 'in_progress', updated_at = now()
		WHERE id = (
			SELECT id FROM ingestion_requests
			WHERE status = 'queued'
			ORDER BY created_at
			FOR UPDATE SKIP LOCKED
			LIMIT 1
		)
		RETURNING id, source_id, status, error_message, created_at, updated_at`).
		Scan(&job.ID, &job.SourceID, &job.Status, &job.ErrorMessage,
			&job.CreatedAt, &job.UpdatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, err
	}
	return &job, nil
}

// CompleteIngestion marks an ingestion job completed.
func (s *Store) CompleteIngestion(ctx context.Context, jobID string) error {
	_, err := s.db.Exec(ctx, `
		UPDATE ingestion_requests
		SET status = 'completed', error_message = NULL, updated_at = now()
		WHERE id = $1`, jobID)
	return err
}

// FailIngestion marks an ingestion job failed with a one-line error. Failed
// jobs stay terminal until an operator resets them to queued.
func (s *Store) FailIngestion(ctx context.Context, jobID, errorMessage string) error {
	_, err := s.db.Exec(ctx, `
		UPDATE ingestion_requests
		SET status = 'failed', error_message = $2, updated_at = now()
		WHERE id = $1`, jobID, truncateError(errorMessage))
	return err
}

// EnqueueTranscription queues a transcription job for a document. The job
// insert and the document's transcript_status flip commit together, so a
// pending document always has a matching job row.
func (s *Store) EnqueueTranscription(ctx context.Context, documentID string, provider models.TranscriptionProvider, model *string, startSeconds, endSeconds *float64) (*models.TranscriptionJob, error) {
	if _, err := s.GetDocument(ctx, documentID); err != nil {
		return nil, err
	}

	var job models.TranscriptionJob
	var metadata []byte
	err := s.withTx(ctx, func(tx pgx.Tx) error {
		err := tx.QueryRow(ctx, `
			INSERT INTO transcription_requests (document_id, provider, model, start_seconds, end_seconds, status)
			VALUES ($1, $2, $3, $4, $5, 'pending')
			RETURNING id, document_id, provider, model, start_seconds, end_seconds,
				status, result_text, error_message, metadata, created_at, updated_at`,
			documentID, provider, model, startSeconds, endSeconds).
			Scan(&job.ID, &job.DocumentID, &job.Provider, &job.Model,
				&job.StartSeconds, &job.EndSeconds, &job.Status, &job.ResultText,
				&job.ErrorMessage, &metadata, &job.CreatedAt, &job.UpdatedAt)
		if err != nil {
			return err
		}
		_, err = tx.Exec(ctx, `
			UPDATE documents SET transcript_status = $2, updated_at = now() WHERE id = $1`,
			documentID, models.TranscriptPending)
		return err
	})
	if err != nil {
		return nil, err
	}
	job.Metadata = json.RawMessage(metadata)
	return &job, nil
}

// ClaimNextTranscription atomically claims the oldest pending transcription
// job, or returns nil when the queue is empty.
func (s *Store) ClaimNextTranscription(ctx context.Context) (*models.TranscriptionJob, error) {
	var job models.TranscriptionJob
	var metadata []byte
	err := s.db.QueryRow(ctx, `
		UPDATE transcription_requests
		SET status = 'in_progress', updated_at = now()
		WHERE id = (
			SELECT id FROM transcription_requests
			WHERE status = 'pending'
			ORDER BY created_at
			FOR UPDATE SKIP LOCKED
			LIMIT 1
		)
		RETURNING id, document_id, provider, model, start_seconds, end_seconds,
			status, result_text, error_message, metadata, created_at, updated_at`).
		Scan(&job.ID, &job.DocumentID, &job.Provider, &job.Model,
			&job.StartSeconds, &job.EndSeconds, &job.Status, &job.ResultText,
			&job.ErrorMessage, &metadata, &job.CreatedAt, &job.UpdatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, err
	}
	job.Metadata = json.RawMessage(metadata)
	return &job, nil
}

// CompleteTranscription marks a transcription job completed with its result
// text and provider metadata.
func (s *Store) CompleteTranscription(ctx context.Context, jobID, resultText string, metadata map[string]interface{}) error {
	var metadataRaw interface{}
	if metadata != nil {
		raw, err := json.Marshal(metadata)
		if err != nil {
			return err
		}
		metadataRaw = raw
	}
	_, err := s.db.Exec(ctx, `
		UPDATE transcription_requests
		SET status = 'completed', result_text = $2, metadata = $3,
			error_message = NULL, updated_at = now()
		WHERE id = $1`, jobID, resultText, metadataRaw)
	return err
}

// FailTranscription marks a transcription job failed. The audio URL stays
// on the document so an operator can flip the job back to pending.
func (s *Store) FailTranscription(ctx context.Context, jobID, errorMessage string) error {
	_, err := s.db.Exec(ctx, `
		UPDATE transcription_requests
		SET status = 'failed', error_message = $2, updated_at = now()
		WHERE id = $1`, jobID, truncateError(errorMessage))
	return err
}

// truncateError bounds stored error messages to one summary line.
func truncateError(msg string) string {
	const maxLen = 500
	if len(msg) > maxLen {
		return msg[:maxLen]
	}
	return msg
}

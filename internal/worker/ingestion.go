package worker

import (
	"context"
	"time"

	"github.com/rs/zerolog"

	"github.com/signalnoise/workbench/internal/adapters"
	"github.com/signalnoise/workbench/internal/metrics"
	"github.com/signalnoise/workbench/internal/models"
)

// IngestionStore is the persistence surface the ingestion worker needs.
type IngestionStore interface {
	ClaimNextIngestion(ctx context.Context) (*models.IngestionJob, error)
	GetSource(ctx context.Context, id string) (*models.Source, error)
	UpsertDocument(ctx context.Context, doc models.Document) (*models.Document, error)
	CompleteIngestion(ctx context.Context, jobID string) error
	FailIngestion(ctx context.Context, jobID, errorMessage string) error
}

// IngestionWorker drains the ingestion queue: it claims a job, pulls the
// source's feed, and upserts every document record. Jobs are at-least-once;
// the (source_id, external_id) upsert makes replays harmless.
type IngestionWorker struct {
	store    IngestionStore
	ingestor adapters.Ingestor
	poller   *Poller
	logger   zerolog.Logger
}

// NewIngestionWorker wires the worker.
func NewIngestionWorker(store IngestionStore, ingestor adapters.Ingestor, pollInterval time.Duration, logger zerolog.Logger) *IngestionWorker {
	w := &IngestionWorker{
		store:    store,
		ingestor: ingestor,
		logger:   logger.With().Str("component", "ingestion_worker").Logger(),
	}
	w.poller = NewPoller("ingestion_worker", pollInterval, w.processOne, logger)
	return w
}

// Start launches the poll loop.
func (w *IngestionWorker) Start() { w.poller.Start() }

// Stop waits for the in-flight job and stops the loop.
func (w *IngestionWorker) Stop() { w.poller.Stop() }

// processOne claims and runs at most one job.
func (w *IngestionWorker) processOne(ctx context.Context) (bool, error) {
	job, err := w.store.ClaimNextIngestion(ctx)
	if err != nil {
		return false, err
	}
	if job == nil {
		return false, nil
	}
	metrics.JobsClaimedTotal.WithLabelValues("ingestion").Inc()

	start := time.Now()
	upserted, err := w.runJob(ctx, job)
	metrics.JobDuration.WithLabelValues("ingestion").Observe(time.Since(start).Seconds())

	if err != nil {
		w.logger.Error().Err(err).
			Str("job_id", job.ID).
			Str("source_id", job.SourceID).
			Msg("Ingestion job failed")
		metrics.JobsProcessedTotal.WithLabelValues("ingestion", "failed").Inc()
		if failErr := w.store.FailIngestion(ctx, job.ID, err.Error()); failErr != nil {
			w.logger.Error().Err(failErr).Str("job_id", job.ID).Msg("Failed to mark job failed")
		}
		return true, nil
	}

	if err := w.store.CompleteIngestion(ctx, job.ID); err != nil {
		w.logger.Error().Err(err).Str("job_id", job.ID).Msg("Failed to mark job completed")
		return true, nil
	}
	metrics.JobsProcessedTotal.WithLabelValues("ingestion", "completed").Inc()
	w.logger.Info().
		Str("job_id", job.ID).
		Str("source_id", job.SourceID).
		Int("documents", upserted).
		Dur("took", time.Since(start)).
		Msg("Ingestion job completed")
	return true, nil
}

// runJob pulls the feed and upserts its records.
func (w *IngestionWorker) runJob(ctx context.Context, job *models.IngestionJob) (int, error) {
	source, err := w.store.GetSource(ctx, job.SourceID)
	if err != nil {
		return 0, err
	}

	records, err := w.ingestor.Ingest(ctx, *source)
	if err != nil {
		return 0, err
	}

	upserted := 0
	for _, rec := range records {
		externalID := rec.ExternalID
		doc := models.Document{
			SourceID:          &source.ID,
			ExternalID:        &externalID,
			Title:             rec.Title,
			Author:            rec.Author,
			PublishedAt:       rec.PublishedAt,
			OriginalURL:       rec.OriginalURL,
			OriginalMediaType: rec.OriginalMediaType,
			ContentText:       rec.ContentText,
			ContentHTML:       rec.ContentHTML,
			Assets:            rec.Assets,
			IngestMethod:      strPtr("feed"),
		}
		if _, err := w.store.UpsertDocument(ctx, doc); err != nil {
			return upserted, err
		}
		upserted++
		metrics.DocumentsUpsertedTotal.WithLabelValues(string(source.Type)).Inc()
	}
	return upserted, nil
}

func strPtr(s string) *string { return &s }

package worker

import (
	"context"
	"encoding/json"
	"fmt"
	"math"
	"time"

	"github.com/rs/zerolog"

	"github.com/signalnoise/workbench/internal/adapters"
	"github.com/signalnoise/workbench/internal/apperr"
	"github.com/signalnoise/workbench/internal/metrics"
	"github.com/signalnoise/workbench/internal/models"
	"github.com/signalnoise/workbench/internal/storage"
)

// TranscriptionStore is the persistence surface the transcription worker
// needs.
type TranscriptionStore interface {
	ClaimNextTranscription(ctx context.Context) (*models.TranscriptionJob, error)
	GetDocument(ctx context.Context, id string) (*models.Document, error)
	AppendTranscript(ctx context.Context, id string, asset models.Asset, fullText *string) error
	CreateSegment(ctx context.Context, params storage.CreateSegmentParams) (*models.Segment, error)
	CompleteTranscription(ctx context.Context, jobID, resultText string, metadata map[string]interface{}) error
	FailTranscription(ctx context.Context, jobID, errorMessage string) error
	SetTranscriptStatus(ctx context.Context, id string, status models.TranscriptStatus) error
}

// segmentProvenance is stamped on segments the worker creates so they can
// be told apart from hand-selected ones.
type segmentProvenance struct {
	Source    string `json:"source"`
	RequestID string `json:"request_id"`
	Provider  string `json:"provider"`
}

// TranscriptionWorker drains the transcription queue: it claims a job,
// resolves the document's audio asset, runs the configured provider, and
// writes the transcript back as a document asset plus a raw segment.
type TranscriptionWorker struct {
	store        TranscriptionStore
	transcribers map[models.TranscriptionProvider]adapters.Transcriber
	poller       *Poller
	logger       zerolog.Logger
}

// NewTranscriptionWorker wires the worker with one Transcriber per provider.
func NewTranscriptionWorker(store TranscriptionStore, transcribers []adapters.Transcriber, pollInterval time.Duration, logger zerolog.Logger) *TranscriptionWorker {
	byProvider := make(map[models.TranscriptionProvider]adapters.Transcriber, len(transcribers))
	for _, t := range transcribers {
		byProvider[t.Provider()] = t
	}
	w := &TranscriptionWorker{
		store:        store,
		transcribers: byProvider,
		logger:       logger.With().Str("component", "transcription_worker").Logger(),
	}
	w.poller = NewPoller("transcription_worker", pollInterval, w.processOne, logger)
	return w
}

// Start launches the poll loop.
func (w *TranscriptionWorker) Start() { w.poller.Start() }

// Stop waits for the in-flight job and stops the loop.
func (w *TranscriptionWorker) Stop() { w.poller.Stop() }

// processOne claims and runs at most one job.
func (w *TranscriptionWorker) processOne(ctx context.Context) (bool, error) {
	job, err := w.store.ClaimNextTranscription(ctx)
	if err != nil {
		return false, err
	}
	if job == nil {
		return false, nil
	}
	metrics.JobsClaimedTotal.WithLabelValues("transcription").Inc()

	start := time.Now()
	err = w.runJob(ctx, job)
	metrics.JobDuration.WithLabelValues("transcription").Observe(time.Since(start).Seconds())

	if err != nil {
		w.logger.Error().Err(err).
			Str("job_id", job.ID).
			Str("document_id", job.DocumentID).
			Str("provider", string(job.Provider)).
			Msg("Transcription job failed")
		metrics.JobsProcessedTotal.WithLabelValues("transcription", "failed").Inc()
		if failErr := w.store.FailTranscription(ctx, job.ID, err.Error()); failErr != nil {
			w.logger.Error().Err(failErr).Str("job_id", job.ID).Msg("Failed to mark job failed")
		}
		// The document goes back to none so the job can be re-enqueued.
		if stErr := w.store.SetTranscriptStatus(ctx, job.DocumentID, models.TranscriptNone); stErr != nil {
			w.logger.Error().Err(stErr).Str("document_id", job.DocumentID).Msg("Failed to reset transcript status")
		}
		return true, nil
	}

	metrics.JobsProcessedTotal.WithLabelValues("transcription", "completed").Inc()
	w.logger.Info().
		Str("job_id", job.ID).
		Str("document_id", job.DocumentID).
		Str("provider", string(job.Provider)).
		Dur("took", time.Since(start)).
		Msg("Transcription job completed")
	return true, nil
}

// runJob transcribes and persists the result. Windowed jobs produce a
// partial transcript asset; full runs also replace the document's
// content_text.
func (w *TranscriptionWorker) runJob(ctx context.Context, job *models.TranscriptionJob) error {
	transcriber, ok := w.transcribers[job.Provider]
	if !ok {
		return apperr.Newf(apperr.Validation, "no transcriber configured for provider %q", job.Provider)
	}

	doc, err := w.store.GetDocument(ctx, job.DocumentID)
	if err != nil {
		return err
	}
	audioURL, err := resolveAudioURL(doc)
	if err != nil {
		return err
	}

	result, err := transcriber.Transcribe(ctx, adapters.TranscribeRequest{
		AudioURL:     audioURL,
		StartSeconds: job.StartSeconds,
		EndSeconds:   job.EndSeconds,
		Model:        job.Model,
	})
	if err != nil {
		metrics.TranscriptionCallsTotal.WithLabelValues(string(job.Provider), "error").Inc()
		return err
	}
	metrics.TranscriptionCallsTotal.WithLabelValues(string(job.Provider), "ok").Inc()

	windowed := job.StartSeconds != nil || job.EndSeconds != nil
	asset := models.Asset{
		Type:         "transcript",
		Text:         result.Text,
		Provider:     string(job.Provider),
		StartSeconds: job.StartSeconds,
		EndSeconds:   job.EndSeconds,
	}
	var fullText *string
	if !windowed {
		fullText = &result.Text
	}
	if err := w.store.AppendTranscript(ctx, job.DocumentID, asset, fullText); err != nil {
		return err
	}

	if err := w.createTranscriptSegment(ctx, job, result.Text); err != nil {
		return err
	}

	return w.store.CompleteTranscription(ctx, job.ID, result.Text, result.Metadata)
}

// createTranscriptSegment records the transcript as a raw segment so it can
// be analyzed immediately. Windowed jobs carry their bounds as second
// offsets.
func (w *TranscriptionWorker) createTranscriptSegment(ctx context.Context, job *models.TranscriptionJob, text string) error {
	provenance, err := json.Marshal(segmentProvenance{
		Source:    "transcription",
		RequestID: job.ID,
		Provider:  string(job.Provider),
	})
	if err != nil {
		return fmt.Errorf("encode segment provenance: %w", err)
	}

	params := storage.CreateSegmentParams{
		DocumentID: job.DocumentID,
		Text:       text,
		OffsetKind: models.OffsetText,
		Status:     models.SegmentRaw,
		Provenance: provenance,
	}
	if job.StartSeconds != nil && job.EndSeconds != nil {
		start := int(math.Round(*job.StartSeconds))
		end := int(math.Round(*job.EndSeconds))
		params.StartOffset = &start
		params.EndOffset = &end
		params.OffsetKind = models.OffsetSeconds
	}

	_, err = w.store.CreateSegment(ctx, params)
	return err
}

// resolveAudioURL finds the document's audio enclosure.
func resolveAudioURL(doc *models.Document) (string, error) {
	for _, asset := range doc.Assets {
		if asset.Type == "audio" && asset.URL != "" {
			return asset.URL, nil
		}
	}
	return "", apperr.New(apperr.Validation, "document has no audio asset")
}

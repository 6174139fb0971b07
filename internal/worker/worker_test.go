package worker

import (
	"context"
	"encoding/json"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/signalnoise/workbench/internal/adapters"
	"github.com/signalnoise/workbench/internal/models"
	"github.com/signalnoise/workbench/internal/storage"
)

func TestPollerDrainsQueueAndStops(t *testing.T) {
	var calls int32
	claim := func(ctx context.Context) (bool, error) {
		n := atomic.AddInt32(&calls, 1)
		return n <= 3, nil
	}

	p := NewPoller("test_worker", 10*time.Millisecond, claim, zerolog.Nop())
	p.Start()
	time.Sleep(100 * time.Millisecond)
	p.Stop()

	// Three claimed jobs drained back-to-back plus at least one empty poll.
	assert.GreaterOrEqual(t, atomic.LoadInt32(&calls), int32(4))
}

func TestPollerStopWithoutJobs(t *testing.T) {
	claim := func(ctx context.Context) (bool, error) { return false, nil }
	p := NewPoller("test_worker", time.Hour, claim, zerolog.Nop())
	p.Start()

	done := make(chan struct{})
	go func() {
		p.Stop()
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("poller did not stop")
	}
}

type fakeIngestionStore struct {
	jobs      []*models.IngestionJob
	source    *models.Source
	upserted  []models.Document
	completed []string
	failed    map[string]string
}

func (f *fakeIngestionStore) ClaimNextIngestion(_ context.Context) (*models.IngestionJob, error) {
	if len(f.jobs) == 0 {
		return nil, nil
	}
	job := f.jobs[0]
	f.jobs = f.jobs[1:]
	return job, nil
}

func (f *fakeIngestionStore) GetSource(_ context.Context, id string) (*models.Source, error) {
	return f.source, nil
}

func (f *fakeIngestionStore) UpsertDocument(_ context.Context, doc models.Document) (*models.Document, error) {
	f.upserted = append(f.upserted, doc)
	return &doc, nil
}

func (f *fakeIngestionStore) CompleteIngestion(_ context.Context, jobID string) error {
	f.completed = append(f.completed, jobID)
	return nil
}

func (f *fakeIngestionStore) FailIngestion(_ context.Context, jobID, errorMessage string) error {
	if f.failed == nil {
		f.failed = map[string]string{}
	}
	f.failed[jobID] = errorMessage
	return nil
}

type fakeIngestor struct {
	records []adapters.DocumentRecord
	err     error
}

func (f *fakeIngestor) Ingest(_ context.Context, _ models.Source) ([]adapters.DocumentRecord, error) {
	return f.records, f.err
}

func TestIngestionWorkerProcessesJob(t *testing.T) {
	feedURL := "https://example.com/feed.xml"
	store := &fakeIngestionStore{
		jobs:   []*models.IngestionJob{{ID: "job-1", SourceID: "src-1"}},
		source: &models.Source{ID: "src-1", Name: "Example", Type: models.SourceRSS, FeedURL: &feedURL},
	}
	ingestor := &fakeIngestor{records: []adapters.DocumentRecord{
		{ExternalID: "guid-1", Title: "First"},
		{ExternalID: "guid-2", Title: "Second"},
	}}

	w := NewIngestionWorker(store, ingestor, time.Second, zerolog.Nop())
	claimed, err := w.processOne(context.Background())
	require.NoError(t, err)
	assert.True(t, claimed)

	require.Len(t, store.upserted, 2)
	assert.Equal(t, "src-1", *store.upserted[0].SourceID)
	assert.Equal(t, "guid-1", *store.upserted[0].ExternalID)
	assert.Equal(t, "feed", *store.upserted[0].IngestMethod)
	assert.Equal(t, []string{"job-1"}, store.completed)
	assert.Empty(t, store.failed)
}

func TestIngestionWorkerEmptyQueue(t *testing.T) {
	w := NewIngestionWorker(&fakeIngestionStore{}, &fakeIngestor{}, time.Second, zerolog.Nop())
	claimed, err := w.processOne(context.Background())
	require.NoError(t, err)
	assert.False(t, claimed)
}

func TestIngestionWorkerFeedFailure(t *testing.T) {
	store := &fakeIngestionStore{
		jobs:   []*models.IngestionJob{{ID: "job-1", SourceID: "src-1"}},
		source: &models.Source{ID: "src-1", Type: models.SourceRSS},
	}
	ingestor := &fakeIngestor{err: errors.New("feed unreachable")}

	w := NewIngestionWorker(store, ingestor, time.Second, zerolog.Nop())
	claimed, err := w.processOne(context.Background())
	require.NoError(t, err)
	assert.True(t, claimed)

	assert.Empty(t, store.completed)
	assert.Contains(t, store.failed["job-1"], "feed unreachable")
}

type fakeTranscriptionStore struct {
	jobs     []*models.TranscriptionJob
	document *models.Document

	appendedAsset    models.Asset
	appendedFull     *string
	segment          *storage.CreateSegmentParams
	completed        map[string]string
	failed           map[string]string
	transcriptStatus map[string]models.TranscriptStatus
}

func (f *fakeTranscriptionStore) ClaimNextTranscription(_ context.Context) (*models.TranscriptionJob, error) {
	if len(f.jobs) == 0 {
		return nil, nil
	}
	job := f.jobs[0]
	f.jobs = f.jobs[1:]
	return job, nil
}

func (f *fakeTranscriptionStore) GetDocument(_ context.Context, _ string) (*models.Document, error) {
	return f.document, nil
}

func (f *fakeTranscriptionStore) AppendTranscript(_ context.Context, _ string, asset models.Asset, fullText *string) error {
	f.appendedAsset = asset
	f.appendedFull = fullText
	return nil
}

func (f *fakeTranscriptionStore) CreateSegment(_ context.Context, params storage.CreateSegmentParams) (*models.Segment, error) {
	f.segment = &params
	return &models.Segment{ID: "seg-1", DocumentID: params.DocumentID, Text: params.Text}, nil
}

func (f *fakeTranscriptionStore) CompleteTranscription(_ context.Context, jobID, resultText string, _ map[string]interface{}) error {
	if f.completed == nil {
		f.completed = map[string]string{}
	}
	f.completed[jobID] = resultText
	return nil
}

func (f *fakeTranscriptionStore) FailTranscription(_ context.Context, jobID, errorMessage string) error {
	if f.failed == nil {
		f.failed = map[string]string{}
	}
	f.failed[jobID] = errorMessage
	return nil
}

func (f *fakeTranscriptionStore) SetTranscriptStatus(_ context.Context, id string, status models.TranscriptStatus) error {
	if f.transcriptStatus == nil {
		f.transcriptStatus = map[string]models.TranscriptStatus{}
	}
	f.transcriptStatus[id] = status
	return nil
}

type fakeTranscriber struct {
	provider models.TranscriptionProvider
	request  adapters.TranscribeRequest
	text     string
	err      error
}

func (f *fakeTranscriber) Transcribe(_ context.Context, req adapters.TranscribeRequest) (*adapters.TranscribeResult, error) {
	f.request = req
	if f.err != nil {
		return nil, f.err
	}
	return &adapters.TranscribeResult{Text: f.text, Metadata: map[string]interface{}{"provider": string(f.provider)}}, nil
}

func (f *fakeTranscriber) Provider() models.TranscriptionProvider { return f.provider }

func audioDocument() *models.Document {
	return &models.Document{
		ID:     "doc-1",
		Title:  "Episode 1",
		Assets: []models.Asset{{Type: "audio", URL: "https://cdn.example.com/ep1.mp3"}},
	}
}

func TestTranscriptionWorkerFullRun(t *testing.T) {
	store := &fakeTranscriptionStore{
		jobs:     []*models.TranscriptionJob{{ID: "job-1", DocumentID: "doc-1", Provider: models.ProviderOpenAI}},
		document: audioDocument(),
	}
	tr := &fakeTranscriber{provider: models.ProviderOpenAI, text: "full transcript"}

	w := NewTranscriptionWorker(store, []adapters.Transcriber{tr}, time.Second, zerolog.Nop())
	claimed, err := w.processOne(context.Background())
	require.NoError(t, err)
	assert.True(t, claimed)

	assert.Equal(t, "https://cdn.example.com/ep1.mp3", tr.request.AudioURL)
	assert.Equal(t, "transcript", store.appendedAsset.Type)
	require.NotNil(t, store.appendedFull)
	assert.Equal(t, "full transcript", *store.appendedFull)

	require.NotNil(t, store.segment)
	assert.Equal(t, models.OffsetText, store.segment.OffsetKind)
	assert.Nil(t, store.segment.StartOffset)

	var prov segmentProvenance
	require.NoError(t, json.Unmarshal(store.segment.Provenance, &prov))
	assert.Equal(t, "transcription", prov.Source)
	assert.Equal(t, "job-1", prov.RequestID)
	assert.Equal(t, "openai", prov.Provider)

	assert.Equal(t, "full transcript", store.completed["job-1"])
}

func TestTranscriptionWorkerWindowedRun(t *testing.T) {
	start, end := 60.0, 120.0
	store := &fakeTranscriptionStore{
		jobs: []*models.TranscriptionJob{{
			ID: "job-1", DocumentID: "doc-1", Provider: models.ProviderAssembly,
			StartSeconds: &start, EndSeconds: &end,
		}},
		document: audioDocument(),
	}
	tr := &fakeTranscriber{provider: models.ProviderAssembly, text: "windowed transcript"}

	w := NewTranscriptionWorker(store, []adapters.Transcriber{tr}, time.Second, zerolog.Nop())
	_, err := w.processOne(context.Background())
	require.NoError(t, err)

	// Windowed transcripts never replace the document body.
	assert.Nil(t, store.appendedFull)
	assert.Equal(t, &start, store.appendedAsset.StartSeconds)

	require.NotNil(t, store.segment)
	assert.Equal(t, models.OffsetSeconds, store.segment.OffsetKind)
	assert.Equal(t, 60, *store.segment.StartOffset)
	assert.Equal(t, 120, *store.segment.EndOffset)
}

func TestTranscriptionWorkerRoundsFractionalWindow(t *testing.T) {
	start, end := 12.9, 45.2
	store := &fakeTranscriptionStore{
		jobs: []*models.TranscriptionJob{{
			ID: "job-1", DocumentID: "doc-1", Provider: models.ProviderAssembly,
			StartSeconds: &start, EndSeconds: &end,
		}},
		document: audioDocument(),
	}
	tr := &fakeTranscriber{provider: models.ProviderAssembly, text: "windowed transcript"}

	w := NewTranscriptionWorker(store, []adapters.Transcriber{tr}, time.Second, zerolog.Nop())
	_, err := w.processOne(context.Background())
	require.NoError(t, err)

	require.NotNil(t, store.segment)
	assert.Equal(t, 13, *store.segment.StartOffset)
	assert.Equal(t, 45, *store.segment.EndOffset)
}

func TestTranscriptionWorkerNoAudioAsset(t *testing.T) {
	store := &fakeTranscriptionStore{
		jobs:     []*models.TranscriptionJob{{ID: "job-1", DocumentID: "doc-1", Provider: models.ProviderOpenAI}},
		document: &models.Document{ID: "doc-1", Title: "No audio"},
	}
	tr := &fakeTranscriber{provider: models.ProviderOpenAI, text: "x"}

	w := NewTranscriptionWorker(store, []adapters.Transcriber{tr}, time.Second, zerolog.Nop())
	_, err := w.processOne(context.Background())
	require.NoError(t, err)
	assert.Contains(t, store.failed["job-1"], "no audio asset")
}

func TestTranscriptionWorkerUnknownProvider(t *testing.T) {
	store := &fakeTranscriptionStore{
		jobs:     []*models.TranscriptionJob{{ID: "job-1", DocumentID: "doc-1", Provider: models.ProviderAssembly}},
		document: audioDocument(),
	}

	w := NewTranscriptionWorker(store, nil, time.Second, zerolog.Nop())
	_, err := w.processOne(context.Background())
	require.NoError(t, err)
	assert.Contains(t, store.failed["job-1"], "no transcriber configured")
}

func TestTranscriptionWorkerProviderFailure(t *testing.T) {
	store := &fakeTranscriptionStore{
		jobs:     []*models.TranscriptionJob{{ID: "job-1", DocumentID: "doc-1", Provider: models.ProviderOpenAI}},
		document: audioDocument(),
	}
	tr := &fakeTranscriber{provider: models.ProviderOpenAI, err: errors.New("upstream 500")}

	w := NewTranscriptionWorker(store, []adapters.Transcriber{tr}, time.Second, zerolog.Nop())
	_, err := w.processOne(context.Background())
	require.NoError(t, err)
	assert.Contains(t, store.failed["job-1"], "upstream 500")
	assert.Empty(t, store.completed)
	// A failed job releases the document for re-enqueueing.
	assert.Equal(t, models.TranscriptNone, store.transcriptStatus["doc-1"])
}

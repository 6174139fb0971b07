package api

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/signalnoise/workbench/internal/adapters"
	"github.com/signalnoise/workbench/internal/apperr"
	"github.com/signalnoise/workbench/internal/config"
	"github.com/signalnoise/workbench/internal/engine"
	"github.com/signalnoise/workbench/internal/models"
	"github.com/signalnoise/workbench/internal/storage"
)

type fakeStore struct {
	sources       []models.Source
	documents     map[string]*models.Document
	segments      map[string]*models.Segment
	hypotheses    map[string]*models.Hypothesis
	questions     map[string]*models.Question
	queuedJobs      int
	enqueueErr      error
	linkErr         error
	createSeg       *storage.CreateSegmentParams
	createSegErr    error
	transcription   *models.TranscriptionJob
	sourcesDeadline *time.Time
}

func newFakeStore() *fakeStore {
	return &fakeStore{
		documents:  map[string]*models.Document{},
		segments:   map[string]*models.Segment{},
		hypotheses: map[string]*models.Hypothesis{},
		questions:  map[string]*models.Question{},
	}
}

func (f *fakeStore) Ping(context.Context) error { return nil }

func (f *fakeStore) ListSources(ctx context.Context) ([]models.Source, error) {
	if d, ok := ctx.Deadline(); ok {
		f.sourcesDeadline = &d
	}
	return f.sources, nil
}

func (f *fakeStore) EnqueueIngestion(_ context.Context, ids []string) (int, error) {
	if f.enqueueErr != nil {
		return 0, f.enqueueErr
	}
	return f.queuedJobs, nil
}

func (f *fakeStore) ListDocuments(context.Context) ([]models.Document, error) { return nil, nil }

func (f *fakeStore) GetDocument(_ context.Context, id string) (*models.Document, error) {
	doc, ok := f.documents[id]
	if !ok {
		return nil, apperr.New(apperr.NotFound, "document not found")
	}
	return doc, nil
}

func (f *fakeStore) CreateDocument(_ context.Context, doc models.Document) (*models.Document, error) {
	doc.ID = "doc-new"
	return &doc, nil
}

func (f *fakeStore) ArchiveDocument(_ context.Context, id string) error {
	if _, ok := f.documents[id]; !ok {
		return apperr.New(apperr.NotFound, "document not found")
	}
	return nil
}

func (f *fakeStore) UpdateDocumentMetadata(_ context.Context, id string, _ storage.DocumentMetadataPatch) (*models.Document, error) {
	return f.GetDocument(context.Background(), id)
}

func (f *fakeStore) ListSegmentsForDocument(context.Context, string) ([]models.Segment, error) {
	return nil, nil
}

func (f *fakeStore) ListSegments(context.Context) ([]storage.SegmentListRow, error) {
	return nil, nil
}

func (f *fakeStore) CreateSegment(_ context.Context, params storage.CreateSegmentParams) (*models.Segment, error) {
	if f.createSegErr != nil {
		return nil, f.createSegErr
	}
	f.createSeg = &params
	return &models.Segment{ID: "seg-new", DocumentID: params.DocumentID, Text: params.Text}, nil
}

func (f *fakeStore) GetSegment(_ context.Context, id string) (*models.Segment, error) {
	seg, ok := f.segments[id]
	if !ok {
		return nil, apperr.New(apperr.NotFound, "segment not found")
	}
	return seg, nil
}

func (f *fakeStore) DeleteSegment(_ context.Context, id string) error {
	if _, ok := f.segments[id]; !ok {
		return apperr.New(apperr.NotFound, "segment not found")
	}
	delete(f.segments, id)
	return nil
}

func (f *fakeStore) ListHypotheses(context.Context) ([]models.Hypothesis, error) { return nil, nil }

func (f *fakeStore) CreateHypothesis(_ context.Context, text string, description, referenceURL *string, refType models.ReferenceType) (*models.Hypothesis, error) {
	return &models.Hypothesis{ID: "h-new", HypothesisText: text, Description: description,
		ReferenceURL: referenceURL, ReferenceType: refType}, nil
}

func (f *fakeStore) GetHypothesis(_ context.Context, id string) (*models.Hypothesis, error) {
	h, ok := f.hypotheses[id]
	if !ok {
		return nil, apperr.New(apperr.NotFound, "hypothesis not found")
	}
	return h, nil
}

func (f *fakeStore) UpdateHypothesis(_ context.Context, id string, _ storage.HypothesisPatch) (*models.Hypothesis, error) {
	return f.GetHypothesis(context.Background(), id)
}

func (f *fakeStore) DeleteHypothesis(_ context.Context, id string) error {
	if _, ok := f.hypotheses[id]; !ok {
		return apperr.New(apperr.NotFound, "hypothesis not found")
	}
	delete(f.hypotheses, id)
	return nil
}

func (f *fakeStore) ListHypothesisVersions(context.Context, string) ([]models.HypothesisVersion, error) {
	return nil, nil
}

func (f *fakeStore) ListQuestions(context.Context) ([]models.Question, error) { return nil, nil }

func (f *fakeStore) CreateQuestion(_ context.Context, text string) (*models.Question, error) {
	return &models.Question{ID: "q-new", QuestionText: text}, nil
}

func (f *fakeStore) DeleteQuestion(_ context.Context, id string) error {
	if _, ok := f.questions[id]; !ok {
		return apperr.New(apperr.NotFound, "question not found")
	}
	return nil
}

func (f *fakeStore) ListHypothesesForQuestion(context.Context, string) ([]models.Hypothesis, error) {
	return nil, nil
}

func (f *fakeStore) LinkQuestionHypothesis(context.Context, string, string) error {
	return f.linkErr
}

func (f *fakeStore) EnqueueTranscription(_ context.Context, documentID string, provider models.TranscriptionProvider, model *string, start, end *float64) (*models.TranscriptionJob, error) {
	if _, ok := f.documents[documentID]; !ok {
		return nil, apperr.New(apperr.NotFound, "document not found")
	}
	f.transcription = &models.TranscriptionJob{
		ID: "job-new", DocumentID: documentID, Provider: provider,
		Model: model, StartSeconds: start, EndSeconds: end, Status: models.JobPending,
	}
	return f.transcription, nil
}

func (f *fakeStore) CreateDraftPOV(_ context.Context, segmentID string) (*models.AnalystPOV, error) {
	if _, ok := f.segments[segmentID]; !ok {
		return nil, apperr.New(apperr.NotFound, "segment not found")
	}
	return &models.AnalystPOV{ID: "pov-new", SegmentID: &segmentID, Status: "draft"}, nil
}

type fakeEngine struct {
	suggestions     []models.Suggestion
	suggestErr      error
	outcome         *engine.AnalyzeOutcome
	analyzeErr      error
	links           []models.Link
	commitErr       error
	reference       *models.ReferenceCacheEntry
	refCached       bool
	refErr          error
	analyzeDeadline *time.Time
}

func (f *fakeEngine) Suggest(context.Context, string) ([]models.Suggestion, error) {
	return f.suggestions, f.suggestErr
}

func (f *fakeEngine) Analyze(ctx context.Context, _ engine.AnalyzeParams) (*engine.AnalyzeOutcome, error) {
	if d, ok := ctx.Deadline(); ok {
		f.analyzeDeadline = &d
	}
	if f.analyzeErr != nil {
		return nil, f.analyzeErr
	}
	return f.outcome, nil
}

func (f *fakeEngine) CommitEvidence(context.Context, string, []models.EvidenceItem) ([]models.Link, error) {
	return f.links, f.commitErr
}

func (f *fakeEngine) ListEvidenceForHypothesis(context.Context, string) ([]models.EvidenceRow, error) {
	return nil, nil
}

func (f *fakeEngine) ListHypothesesForSegment(context.Context, string) ([]storage.SegmentLinkRow, error) {
	return nil, nil
}

func (f *fakeEngine) ReferenceText(context.Context, string) (*models.ReferenceCacheEntry, bool, error) {
	return f.reference, f.refCached, f.refErr
}

type fakeCrawler struct {
	text string
	err  error
}

func (f *fakeCrawler) FetchText(context.Context, string) (string, int, error) {
	if f.err != nil {
		return "", 0, f.err
	}
	return f.text, len(f.text), nil
}

func newTestServer(store *fakeStore, eng *fakeEngine) *APIServer {
	cfg := &config.Config{}
	cfg.API.Port = 8000
	cfg.API.RateLimit = 1000
	cfg.API.RequestTimeout = 15 * time.Second
	cfg.API.AnalyzeTimeout = time.Second
	return NewAPIServer(store, eng, &fakeCrawler{text: "crawled text"}, cfg, zerolog.Nop())
}

func doRequest(t *testing.T, s *APIServer, method, path string, body interface{}) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}
	req := httptest.NewRequest(method, path, &buf)
	rec := httptest.NewRecorder()
	s.Handler().ServeHTTP(rec, req)
	return rec
}

func decodeBody(t *testing.T, rec *httptest.ResponseRecorder) map[string]interface{} {
	t.Helper()
	var out map[string]interface{}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &out))
	return out
}

func TestHealth(t *testing.T) {
	s := newTestServer(newFakeStore(), &fakeEngine{})
	rec := doRequest(t, s, http.MethodGet, "/health", nil)
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "healthy", decodeBody(t, rec)["status"])
	assert.NotEmpty(t, rec.Header().Get("X-Request-ID"))
}

func TestListSources(t *testing.T) {
	store := newFakeStore()
	store.sources = []models.Source{{ID: "src-1", Name: "Example", Type: models.SourceRSS}}
	s := newTestServer(store, &fakeEngine{})

	rec := doRequest(t, s, http.MethodGet, "/sources", nil)
	assert.Equal(t, http.StatusOK, rec.Code)
	body := decodeBody(t, rec)
	assert.Len(t, body["sources"], 1)
}

func TestRequestContextCarriesDeadline(t *testing.T) {
	store := newFakeStore()
	eng := &fakeEngine{outcome: &engine.AnalyzeOutcome{
		Verdict:      models.VerdictConfirms,
		AnalysisText: "**CONFIRMS** supported",
		AnalysisMode: models.ModeSummary,
	}}
	s := newTestServer(store, eng)

	rec := doRequest(t, s, http.MethodGet, "/sources", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	require.NotNil(t, store.sourcesDeadline)
	// Config sets request_timeout to 15s.
	assert.Greater(t, time.Until(*store.sourcesDeadline), 5*time.Second)

	rec = doRequest(t, s, http.MethodPost, "/analysis:check_hypothesis", map[string]interface{}{
		"segment_text":    "s",
		"hypothesis_text": "h",
	})
	require.Equal(t, http.StatusOK, rec.Code)
	require.NotNil(t, eng.analyzeDeadline)
	// The analysis route uses analyze_timeout (1s here), not request_timeout.
	assert.Less(t, time.Until(*eng.analyzeDeadline), 5*time.Second)
}

func TestEnqueueIngestion(t *testing.T) {
	store := newFakeStore()
	store.queuedJobs = 2
	s := newTestServer(store, &fakeEngine{})

	rec := doRequest(t, s, http.MethodPost, "/ingest-requests",
		map[string]interface{}{"source_ids": []string{"src-1", "src-2"}})
	assert.Equal(t, http.StatusAccepted, rec.Code)
	assert.Equal(t, float64(2), decodeBody(t, rec)["queued_jobs"])
}

func TestEnqueueIngestionEmptyPayload(t *testing.T) {
	s := newTestServer(newFakeStore(), &fakeEngine{})
	rec := doRequest(t, s, http.MethodPost, "/ingest-requests",
		map[string]interface{}{"source_ids": []string{}})
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Contains(t, decodeBody(t, rec)["detail"], "source_ids")
}

func TestErrorEnvelopeShape(t *testing.T) {
	s := newTestServer(newFakeStore(), &fakeEngine{})
	rec := doRequest(t, s, http.MethodGet, "/segments/missing", nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)

	body := decodeBody(t, rec)
	assert.Equal(t, "segment not found", body["detail"])
	assert.Len(t, body, 1)
}

func TestCreateSegmentValidation(t *testing.T) {
	store := newFakeStore()
	store.createSegErr = apperr.New(apperr.Validation, "end_offset 50 exceeds document content length 10")
	s := newTestServer(store, &fakeEngine{})

	rec := doRequest(t, s, http.MethodPost, "/segments", map[string]interface{}{
		"document_id":  "doc-1",
		"text":         "excerpt",
		"start_offset": 0,
		"end_offset":   50,
	})
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Contains(t, decodeBody(t, rec)["detail"], "end_offset")
}

func TestCreateSegmentMissingText(t *testing.T) {
	s := newTestServer(newFakeStore(), &fakeEngine{})
	rec := doRequest(t, s, http.MethodPost, "/segments", map[string]interface{}{
		"document_id": "doc-1",
		"text":        "   ",
	})
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestSuggest(t *testing.T) {
	eng := &fakeEngine{suggestions: []models.Suggestion{
		{HypothesisText: "proposed", Source: models.SuggestionGenerated},
	}}
	s := newTestServer(newFakeStore(), eng)

	rec := doRequest(t, s, http.MethodPost, "/segments/seg-1/hypotheses:suggest", nil)
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Len(t, decodeBody(t, rec)["suggestions"], 1)
}

func TestCommitEvidence(t *testing.T) {
	eng := &fakeEngine{links: []models.Link{{ID: "link-1", HypothesisID: "h-1", SegmentID: "seg-1"}}}
	s := newTestServer(newFakeStore(), eng)

	rec := doRequest(t, s, http.MethodPost, "/segments/seg-1/evidence", map[string]interface{}{
		"items": []map[string]interface{}{
			{"hypothesis_text": "new hypothesis", "verdict": "confirms"},
		},
	})
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Len(t, decodeBody(t, rec)["links"], 1)
}

func TestCheckHypothesis(t *testing.T) {
	eng := &fakeEngine{outcome: &engine.AnalyzeOutcome{
		Verdict:      models.VerdictRefutes,
		AnalysisText: "**REFUTES** contradicted by the data",
		AnalysisMode: models.ModeSummary,
	}}
	s := newTestServer(newFakeStore(), eng)

	rec := doRequest(t, s, http.MethodPost, "/analysis:check_hypothesis", map[string]interface{}{
		"segment_text":    "the segment",
		"hypothesis_text": "the hypothesis",
	})
	assert.Equal(t, http.StatusOK, rec.Code)
	body := decodeBody(t, rec)
	assert.Equal(t, "refutes", body["verdict"])
	assert.Equal(t, "summary", body["analysis_mode"])
}

func TestCheckHypothesisProviderError(t *testing.T) {
	eng := &fakeEngine{analyzeErr: adapters.Transient("analyze", errors.New("upstream 500"))}
	s := newTestServer(newFakeStore(), eng)

	rec := doRequest(t, s, http.MethodPost, "/analysis:check_hypothesis", map[string]interface{}{
		"segment_text":    "s",
		"hypothesis_text": "h",
	})
	assert.Equal(t, http.StatusBadGateway, rec.Code)
	assert.Equal(t, "provider call failed", decodeBody(t, rec)["detail"])
}

func TestCheckHypothesisProviderTimeout(t *testing.T) {
	eng := &fakeEngine{analyzeErr: adapters.Timeout("analyze", context.DeadlineExceeded)}
	s := newTestServer(newFakeStore(), eng)

	rec := doRequest(t, s, http.MethodPost, "/analysis:check_hypothesis", map[string]interface{}{
		"segment_text":    "s",
		"hypothesis_text": "h",
	})
	assert.Equal(t, http.StatusGatewayTimeout, rec.Code)
}

func TestHypothesisReference(t *testing.T) {
	eng := &fakeEngine{
		reference: &models.ReferenceCacheEntry{
			HypothesisID:   "h-1",
			FullText:       "reference body",
			CharacterCount: 14,
			FetchedAt:      time.Now(),
		},
		refCached: true,
	}
	s := newTestServer(newFakeStore(), eng)

	rec := doRequest(t, s, http.MethodGet, "/hypotheses/h-1/reference", nil)
	assert.Equal(t, http.StatusOK, rec.Code)
	body := decodeBody(t, rec)
	assert.Equal(t, "reference body", body["full_text"])
	assert.Equal(t, true, body["cached"])
	assert.Equal(t, float64(14), body["character_count"])
}

func TestDeleteHypothesis(t *testing.T) {
	store := newFakeStore()
	store.hypotheses["h-1"] = &models.Hypothesis{ID: "h-1"}
	s := newTestServer(store, &fakeEngine{})

	rec := doRequest(t, s, http.MethodDelete, "/hypotheses/h-1", nil)
	assert.Equal(t, http.StatusNoContent, rec.Code)

	rec = doRequest(t, s, http.MethodDelete, "/hypotheses/h-1", nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestLinkQuestionHypothesisConflict(t *testing.T) {
	store := newFakeStore()
	store.linkErr = apperr.New(apperr.Conflict, "hypothesis already linked to question")
	s := newTestServer(store, &fakeEngine{})

	rec := doRequest(t, s, http.MethodPost, "/questions/q-1/hypotheses",
		map[string]string{"hypothesis_id": "h-1"})
	assert.Equal(t, http.StatusConflict, rec.Code)
}

func TestGeneratePOVStub(t *testing.T) {
	store := newFakeStore()
	store.segments["seg-1"] = &models.Segment{ID: "seg-1"}
	s := newTestServer(store, &fakeEngine{})

	rec := doRequest(t, s, http.MethodPost, "/analysis:generate_pov",
		map[string]string{"segment_id": "seg-1"})
	assert.Equal(t, http.StatusAccepted, rec.Code)
	assert.Equal(t, "not_implemented", decodeBody(t, rec)["status"])
}

func TestEnqueueTranscription(t *testing.T) {
	store := newFakeStore()
	store.documents["doc-1"] = &models.Document{ID: "doc-1"}
	s := newTestServer(store, &fakeEngine{})

	rec := doRequest(t, s, http.MethodPost, "/transcription-requests", map[string]interface{}{
		"document_id":   "doc-1",
		"provider":      "assembly",
		"start_seconds": 10.0,
		"end_seconds":   60.0,
	})
	assert.Equal(t, http.StatusAccepted, rec.Code)
	require.NotNil(t, store.transcription)
	assert.Equal(t, models.ProviderAssembly, store.transcription.Provider)
	assert.Equal(t, 10.0, *store.transcription.StartSeconds)
}

func TestEnqueueTranscriptionValidation(t *testing.T) {
	store := newFakeStore()
	store.documents["doc-1"] = &models.Document{ID: "doc-1"}
	s := newTestServer(store, &fakeEngine{})

	tests := []struct {
		name    string
		payload map[string]interface{}
	}{
		{"unknown provider", map[string]interface{}{"document_id": "doc-1", "provider": "whisperx"}},
		{"half window", map[string]interface{}{"document_id": "doc-1", "provider": "openai", "start_seconds": 5.0}},
		{"inverted window", map[string]interface{}{"document_id": "doc-1", "provider": "assembly", "start_seconds": 60.0, "end_seconds": 10.0}},
		{"missing document id", map[string]interface{}{"provider": "openai"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := doRequest(t, s, http.MethodPost, "/transcription-requests", tt.payload)
			assert.Equal(t, http.StatusBadRequest, rec.Code)
		})
	}
}

func TestIngestURL(t *testing.T) {
	s := newTestServer(newFakeStore(), &fakeEngine{})

	rec := doRequest(t, s, http.MethodPost, "/documents/ingest-url",
		map[string]string{"url": "https://example.com/essay"})
	assert.Equal(t, http.StatusCreated, rec.Code)
	body := decodeBody(t, rec)
	assert.Equal(t, "crawled text", body["content_text"])

	rec = doRequest(t, s, http.MethodPost, "/documents/ingest-url",
		map[string]string{"url": "not a url"})
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestUnknownFieldRejected(t *testing.T) {
	s := newTestServer(newFakeStore(), &fakeEngine{})
	rec := doRequest(t, s, http.MethodPost, "/questions",
		map[string]string{"question_text": "q?", "bogus": "field"})
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

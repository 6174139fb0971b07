package api

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/rs/zerolog"

	"github.com/signalnoise/workbench/internal/adapters"
	"github.com/signalnoise/workbench/internal/config"
	"github.com/signalnoise/workbench/internal/engine"
	"github.com/signalnoise/workbench/internal/models"
	"github.com/signalnoise/workbench/internal/storage"
)

// Store is the persistence surface the API needs.
type Store interface {
	Ping(ctx context.Context) error

	ListSources(ctx context.Context) ([]models.Source, error)
	EnqueueIngestion(ctx context.Context, sourceIDs []string) (int, error)

	ListDocuments(ctx context.Context) ([]models.Document, error)
	GetDocument(ctx context.Context, id string) (*models.Document, error)
	CreateDocument(ctx context.Context, doc models.Document) (*models.Document, error)
	ArchiveDocument(ctx context.Context, id string) error
	UpdateDocumentMetadata(ctx context.Context, id string, patch storage.DocumentMetadataPatch) (*models.Document, error)
	ListSegmentsForDocument(ctx context.Context, documentID string) ([]models.Segment, error)

	ListSegments(ctx context.Context) ([]storage.SegmentListRow, error)
	CreateSegment(ctx context.Context, params storage.CreateSegmentParams) (*models.Segment, error)
	GetSegment(ctx context.Context, id string) (*models.Segment, error)
	DeleteSegment(ctx context.Context, id string) error

	ListHypotheses(ctx context.Context) ([]models.Hypothesis, error)
	CreateHypothesis(ctx context.Context, text string, description, referenceURL *string, refType models.ReferenceType) (*models.Hypothesis, error)
	GetHypothesis(ctx context.Context, id string) (*models.Hypothesis, error)
	UpdateHypothesis(ctx context.Context, id string, patch storage.HypothesisPatch) (*models.Hypothesis, error)
	DeleteHypothesis(ctx context.Context, id string) error
	ListHypothesisVersions(ctx context.Context, hypothesisID string) ([]models.HypothesisVersion, error)

	ListQuestions(ctx context.Context) ([]models.Question, error)
	CreateQuestion(ctx context.Context, text string) (*models.Question, error)
	DeleteQuestion(ctx context.Context, id string) error
	ListHypothesesForQuestion(ctx context.Context, questionID string) ([]models.Hypothesis, error)
	LinkQuestionHypothesis(ctx context.Context, questionID, hypothesisID string) error

	EnqueueTranscription(ctx context.Context, documentID string, provider models.TranscriptionProvider, model *string, startSeconds, endSeconds *float64) (*models.TranscriptionJob, error)
	CreateDraftPOV(ctx context.Context, segmentID string) (*models.AnalystPOV, error)
}

// Engine is the analysis surface the API needs.
type Engine interface {
	Suggest(ctx context.Context, segmentID string) ([]models.Suggestion, error)
	Analyze(ctx context.Context, params engine.AnalyzeParams) (*engine.AnalyzeOutcome, error)
	CommitEvidence(ctx context.Context, segmentID string, items []models.EvidenceItem) ([]models.Link, error)
	ListEvidenceForHypothesis(ctx context.Context, hypothesisID string) ([]models.EvidenceRow, error)
	ListHypothesesForSegment(ctx context.Context, segmentID string) ([]storage.SegmentLinkRow, error)
	ReferenceText(ctx context.Context, hypothesisID string) (*models.ReferenceCacheEntry, bool, error)
}

// APIServer is the HTTP control plane for the workbench.
type APIServer struct {
	router    *http.ServeMux
	store     Store
	engine    Engine
	crawler   adapters.Crawler
	config    *config.Config
	logger    zerolog.Logger
	startTime time.Time

	httpServer *http.Server
}

// NewAPIServer creates and configures the server with all routes.
func NewAPIServer(store Store, eng Engine, crawler adapters.Crawler, cfg *config.Config, logger zerolog.Logger) *APIServer {
	s := &APIServer{
		router:    http.NewServeMux(),
		store:     store,
		engine:    eng,
		crawler:   crawler,
		config:    cfg,
		logger:    logger.With().Str("component", "api").Logger(),
		startTime: time.Now(),
	}
	s.setupRoutes()
	return s
}

// setupRoutes registers all REST endpoints. Every route carries the default
// request deadline; the LLM-backed analysis route gets the longer one.
func (s *APIServer) setupRoutes() {
	// Health
	s.handle("GET /health", s.handleHealth)

	// Sources and ingestion
	s.handle("GET /sources", s.handleListSources)
	s.handle("POST /ingest-requests", s.handleEnqueueIngestion)

	// Documents
	s.handle("GET /documents", s.handleListDocuments)
	s.handle("POST /documents/ingest-url", s.handleIngestURL)
	s.handle("PATCH /documents/{id}", s.handleUpdateDocument)
	s.handle("PATCH /documents/{id}/archive", s.handleArchiveDocument)
	s.handle("GET /documents/{id}/content", s.handleDocumentContent)
	s.handle("GET /documents/{id}/segments", s.handleDocumentSegments)

	// Segments
	s.handle("GET /segments", s.handleListSegments)
	s.handle("POST /segments", s.handleCreateSegment)
	s.handle("GET /segments/{id}", s.handleGetSegment)
	s.handle("DELETE /segments/{id}", s.handleDeleteSegment)
	s.handle("GET /segments/{id}/hypotheses", s.handleSegmentHypotheses)
	s.handle("POST /segments/{id}/hypotheses:suggest", s.handleSuggest)
	s.handle("POST /segments/{id}/evidence", s.handleCommitEvidence)

	// Hypotheses
	s.handle("GET /hypotheses", s.handleListHypotheses)
	s.handle("POST /hypotheses", s.handleCreateHypothesis)
	s.handle("GET /hypotheses/{id}", s.handleGetHypothesis)
	s.handle("PATCH /hypotheses/{id}", s.handleUpdateHypothesis)
	s.handle("DELETE /hypotheses/{id}", s.handleDeleteHypothesis)
	s.handle("GET /hypotheses/{id}/evidence", s.handleHypothesisEvidence)
	s.handle("GET /hypotheses/{id}/reference", s.handleHypothesisReference)
	s.handle("GET /hypotheses/{id}/versions", s.handleHypothesisVersions)

	// Questions
	s.handle("GET /questions", s.handleListQuestions)
	s.handle("POST /questions", s.handleCreateQuestion)
	s.handle("DELETE /questions/{id}", s.handleDeleteQuestion)
	s.handle("GET /questions/{id}/hypotheses", s.handleQuestionHypotheses)
	s.handle("POST /questions/{id}/hypotheses", s.handleLinkQuestionHypothesis)

	// Analysis
	s.router.HandleFunc("POST /analysis:check_hypothesis", s.withDeadline(s.analyzeTimeout(), s.handleCheckHypothesis))
	s.handle("POST /analysis:generate_pov", s.handleGeneratePOV)

	// Transcription
	s.handle("POST /transcription-requests", s.handleEnqueueTranscription)
}

// handle registers a route bounded by the default request deadline.
func (s *APIServer) handle(pattern string, h http.HandlerFunc) {
	s.router.HandleFunc(pattern, s.withDeadline(s.requestTimeout(), h))
}

// Handler returns the router wrapped in the middleware chain. Middleware is
// applied innermost-first, so requests pass through request ID, logging,
// recovery, CORS, rate limiting, and metrics in that order.
func (s *APIServer) Handler() http.Handler {
	var handler http.Handler = s.router

	handler = MetricsMiddleware(handler)
	handler = RateLimitMiddleware(s.config.API.RateLimit, handler)
	handler = CORSMiddleware(handler)
	handler = RecoveryMiddleware(s.logger, handler)
	handler = LoggerMiddleware(s.logger, handler)
	handler = RequestIDMiddleware(s.logger, handler)

	return handler
}

// Start runs the HTTP server until Stop is called.
func (s *APIServer) Start() error {
	addr := fmt.Sprintf(":%d", s.config.API.Port)
	s.httpServer = &http.Server{
		Addr:         addr,
		Handler:      s.Handler(),
		ReadTimeout:  15 * time.Second,
		WriteTimeout: s.analyzeTimeout() + 10*time.Second,
		IdleTimeout:  60 * time.Second,
	}

	s.logger.Info().Str("addr", addr).Msg("API server starting")
	if err := s.httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return err
	}
	return nil
}

// Stop drains in-flight requests and shuts the server down.
func (s *APIServer) Stop(ctx context.Context) error {
	if s.httpServer == nil {
		return nil
	}
	return s.httpServer.Shutdown(ctx)
}

// requestTimeout is the default handler deadline.
func (s *APIServer) requestTimeout() time.Duration {
	if s.config.API.RequestTimeout > 0 {
		return s.config.API.RequestTimeout
	}
	return 15 * time.Second
}

// analyzeTimeout is the longer deadline for LLM-backed analysis calls.
func (s *APIServer) analyzeTimeout() time.Duration {
	if s.config.API.AnalyzeTimeout > 0 {
		return s.config.API.AnalyzeTimeout
	}
	return 120 * time.Second
}

// withDeadline bounds a handler's context.
func (s *APIServer) withDeadline(d time.Duration, h http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx, cancel := context.WithTimeout(r.Context(), d)
		defer cancel()
		h(w, r.WithContext(ctx))
	}
}

// handleHealth reports liveness plus database reachability.
func (s *APIServer) handleHealth(w http.ResponseWriter, r *http.Request) {
	status := "healthy"
	code := http.StatusOK
	if err := s.store.Ping(r.Context()); err != nil {
		status = "degraded"
		code = http.StatusServiceUnavailable
	}
	respondJSON(w, code, map[string]interface{}{
		"status":         status,
		"uptime_seconds": int(time.Since(s.startTime).Seconds()),
	})
}

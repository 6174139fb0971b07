package adapters

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/signalnoise/workbench/internal/models"
)

// DocumentRecord is one artifact yielded by an Ingestor. The worker upserts
// it into the document table by (source_id, external_id).
type DocumentRecord struct {
	ExternalID        string
	Title             string
	Author            *string
	PublishedAt       *time.Time
	OriginalURL       *string
	OriginalMediaType *string
	ContentText       *string
	ContentHTML       *string
	Assets            []models.Asset
}

// Ingestor produces document records from a feed source. Implementations
// must be idempotent over (source_id, external_id).
type Ingestor interface {
	Ingest(ctx context.Context, source models.Source) ([]DocumentRecord, error)
}

// TranscribeRequest describes one transcription call. Start/End bound an
// optional window in seconds; both nil means transcribe the whole recording.
type TranscribeRequest struct {
	AudioURL     string
	StartSeconds *float64
	EndSeconds   *float64
	Model        *string
}

// TranscribeResult is the provider output.
type TranscribeResult struct {
	Text     string
	Metadata map[string]interface{}
}

// Transcriber converts an audio URL into text.
type Transcriber interface {
	Transcribe(ctx context.Context, req TranscribeRequest) (*TranscribeResult, error)
	Provider() models.TranscriptionProvider
}

// Suggester proposes hypotheses relevant to a segment, reusing stored ones
// when confident and generating new candidates otherwise.
type Suggester interface {
	SuggestHypotheses(ctx context.Context, segmentText string, existing []models.Hypothesis) ([]models.Suggestion, error)
}

// AnalyzeRequest carries one hypothesis check.
type AnalyzeRequest struct {
	SegmentText    string
	HypothesisText string
	Description    *string
	ReferenceText  *string
}

// AnalyzeResult is the verdict plus the full analysis text.
type AnalyzeResult struct {
	Verdict      models.Verdict
	AnalysisText string
}

// Analyzer evaluates a segment against a hypothesis.
type Analyzer interface {
	Analyze(ctx context.Context, req AnalyzeRequest) (*AnalyzeResult, error)
}

// Crawler fetches plain text from an external reference URL.
type Crawler interface {
	FetchText(ctx context.Context, url string) (fullText string, charCount int, err error)
}

// ErrorClass categorizes provider failures for retry decisions and HTTP
// mapping.
type ErrorClass int

const (
	ErrTransient ErrorClass = iota
	ErrRateLimited
	ErrBadRequest
	ErrTimeout
)

// ProviderError wraps a provider failure with its class. Transient and
// rate-limited errors are retried; bad requests are not.
type ProviderError struct {
	Class ErrorClass
	Op    string
	Err   error
}

func (e *ProviderError) Error() string {
	return fmt.Sprintf("%s: %v", e.Op, e.Err)
}

func (e *ProviderError) Unwrap() error { return e.Err }

// ShouldRetry implements the retryable-error contract used by Call.
func (e *ProviderError) ShouldRetry() bool {
	return e.Class == ErrTransient || e.Class == ErrRateLimited
}

// Transient marks err as a retryable provider failure.
func Transient(op string, err error) error {
	return &ProviderError{Class: ErrTransient, Op: op, Err: err}
}

// RateLimited marks err as a retryable rate-limit failure.
func RateLimited(op string, err error) error {
	return &ProviderError{Class: ErrRateLimited, Op: op, Err: err}
}

// BadRequest marks err as non-retryable.
func BadRequest(op string, err error) error {
	return &ProviderError{Class: ErrBadRequest, Op: op, Err: err}
}

// Timeout marks err as a deadline failure.
func Timeout(op string, err error) error {
	return &ProviderError{Class: ErrTimeout, Op: op, Err: err}
}

// ClassOf extracts the error class, defaulting to transient for unknown
// errors since network failures usually are.
func ClassOf(err error) ErrorClass {
	var pe *ProviderError
	if errors.As(err, &pe) {
		return pe.Class
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return ErrTimeout
	}
	return ErrTransient
}

// classifyStatus maps an HTTP status code from a provider to an error class.
func classifyStatus(status int) ErrorClass {
	switch {
	case status == 408 || status == 429:
		return ErrRateLimited
	case status >= 400 && status < 500:
		return ErrBadRequest
	default:
		return ErrTransient
	}
}

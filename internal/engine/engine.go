package engine

import (
	"context"
	"sort"
	"time"

	"github.com/rs/zerolog"

	"github.com/signalnoise/workbench/internal/adapters"
	"github.com/signalnoise/workbench/internal/apperr"
	"github.com/signalnoise/workbench/internal/metrics"
	"github.com/signalnoise/workbench/internal/models"
	"github.com/signalnoise/workbench/internal/storage"
)

// Reference cache TTLs. Papers and books change rarely; everything else is
// refetched weekly.
const (
	stableReferenceTTL  = 30 * 24 * time.Hour
	defaultReferenceTTL = 7 * 24 * time.Hour
)

// Store is the persistence surface the engine needs.
type Store interface {
	GetSegment(ctx context.Context, id string) (*models.Segment, error)
	ListHypotheses(ctx context.Context) ([]models.Hypothesis, error)
	GetHypothesis(ctx context.Context, id string) (*models.Hypothesis, error)
	CommitEvidence(ctx context.Context, segmentID string, items []models.EvidenceItem) ([]models.Link, error)
	ListEvidenceForHypothesis(ctx context.Context, hypothesisID string) ([]models.EvidenceRow, error)
	ListLinksForSegment(ctx context.Context, segmentID string) ([]storage.SegmentLinkRow, error)
	GetReference(ctx context.Context, hypothesisID string) (*models.ReferenceCacheEntry, error)
	UpsertReference(ctx context.Context, hypothesisID, fullText string) (*models.ReferenceCacheEntry, error)
	WithReferenceLock(ctx context.Context, hypothesisID string, fn func(ctx context.Context) error) error
}

// Engine stages suggestions, runs hypothesis checks, and commits evidence.
// Suggest and Analyze never write; CommitEvidence is the only mutation and
// runs as one transaction in the store.
type Engine struct {
	store     Store
	suggester adapters.Suggester
	analyzer  adapters.Analyzer
	crawler   adapters.Crawler
	logger    zerolog.Logger
}

// New wires the engine.
func New(store Store, suggester adapters.Suggester, analyzer adapters.Analyzer, crawler adapters.Crawler, logger zerolog.Logger) *Engine {
	return &Engine{
		store:     store,
		suggester: suggester,
		analyzer:  analyzer,
		crawler:   crawler,
		logger:    logger.With().Str("component", "engine").Logger(),
	}
}

// Suggest matches a segment against the stored hypothesis list and returns
// suggestions without writing anything. Existing hypotheses come first,
// ordered by evidence count descending, then generated candidates in the
// order the provider produced them.
func (e *Engine) Suggest(ctx context.Context, segmentID string) ([]models.Suggestion, error) {
	segment, err := e.store.GetSegment(ctx, segmentID)
	if err != nil {
		return nil, err
	}
	hypotheses, err := e.store.ListHypotheses(ctx)
	if err != nil {
		return nil, err
	}

	suggestions, err := e.suggester.SuggestHypotheses(ctx, segment.Text, hypotheses)
	if err != nil {
		return nil, err
	}

	counts := make(map[string]int, len(hypotheses))
	for _, h := range hypotheses {
		counts[h.ID] = h.EvidenceCount
	}
	for i := range suggestions {
		if suggestions[i].HypothesisID != nil {
			suggestions[i].EvidenceCount = counts[*suggestions[i].HypothesisID]
		}
	}

	sort.SliceStable(suggestions, func(i, j int) bool {
		a, b := suggestions[i], suggestions[j]
		if a.Source != b.Source {
			return a.Source == models.SuggestionExisting
		}
		if a.Source == models.SuggestionExisting {
			return a.EvidenceCount > b.EvidenceCount
		}
		return false
	})
	return suggestions, nil
}

// AnalyzeParams carries one hypothesis check.
type AnalyzeParams struct {
	SegmentText          string
	HypothesisText       string
	Description          *string
	ReferenceURL         *string
	HypothesisID         *string
	IncludeFullReference bool
}

// AnalyzeOutcome is the verdict with the mode the analysis actually ran in.
type AnalyzeOutcome struct {
	Verdict      models.Verdict      `json:"verdict"`
	AnalysisText string              `json:"analysis_text"`
	AnalysisMode models.AnalysisMode `json:"analysis_mode"`
}

// Analyze checks a segment against a hypothesis. When a full-reference run
// is requested and the hypothesis has a stored reference, the cached (or
// freshly fetched) reference text is passed to the analyzer. A failed
// reference fetch degrades the run to summary mode rather than failing it.
// No writes beyond the reference cache.
func (e *Engine) Analyze(ctx context.Context, params AnalyzeParams) (*AnalyzeOutcome, error) {
	if params.SegmentText == "" {
		return nil, apperr.New(apperr.Validation, "segment_text is required")
	}
	if params.HypothesisText == "" {
		return nil, apperr.New(apperr.Validation, "hypothesis_text is required")
	}

	mode := models.ModeSummary
	var referenceText *string
	if params.IncludeFullReference && params.ReferenceURL != nil && params.HypothesisID != nil {
		entry, _, err := e.ReferenceText(ctx, *params.HypothesisID)
		if err != nil {
			e.logger.Warn().Err(err).
				Str("hypothesis_id", *params.HypothesisID).
				Msg("Reference fetch failed, degrading to summary analysis")
		} else {
			referenceText = &entry.FullText
			mode = models.ModeFullReference
		}
	}

	result, err := e.analyzer.Analyze(ctx, adapters.AnalyzeRequest{
		SegmentText:    params.SegmentText,
		HypothesisText: params.HypothesisText,
		Description:    params.Description,
		ReferenceText:  referenceText,
	})
	if err != nil {
		return nil, err
	}
	return &AnalyzeOutcome{
		Verdict:      result.Verdict,
		AnalysisText: result.AnalysisText,
		AnalysisMode: mode,
	}, nil
}

// CommitEvidence applies a batch of evidence items against one segment.
func (e *Engine) CommitEvidence(ctx context.Context, segmentID string, items []models.EvidenceItem) ([]models.Link, error) {
	return e.store.CommitEvidence(ctx, segmentID, items)
}

// ListEvidenceForHypothesis returns a hypothesis's evidence rows with
// freshness computed against the hypothesis's last edit.
func (e *Engine) ListEvidenceForHypothesis(ctx context.Context, hypothesisID string) ([]models.EvidenceRow, error) {
	return e.store.ListEvidenceForHypothesis(ctx, hypothesisID)
}

// ListHypothesesForSegment returns the current link state for a segment.
func (e *Engine) ListHypothesesForSegment(ctx context.Context, segmentID string) ([]storage.SegmentLinkRow, error) {
	return e.store.ListLinksForSegment(ctx, segmentID)
}

// ReferenceText returns the hypothesis's reference text, fetching and
// caching it when the cached row is missing or older than the TTL for the
// hypothesis's reference type. Concurrent callers racing on the same
// hypothesis serialize on a per-hypothesis advisory lock so only one
// external fetch is issued; the losers read the freshly cached row. The
// returned bool reports whether the text came from cache.
func (e *Engine) ReferenceText(ctx context.Context, hypothesisID string) (*models.ReferenceCacheEntry, bool, error) {
	hyp, err := e.store.GetHypothesis(ctx, hypothesisID)
	if err != nil {
		return nil, false, err
	}
	if hyp.ReferenceURL == nil || *hyp.ReferenceURL == "" {
		return nil, false, apperr.New(apperr.Validation, "hypothesis has no reference_url")
	}
	ttl := referenceTTL(hyp.ReferenceType)

	entry, err := e.store.GetReference(ctx, hypothesisID)
	if err != nil {
		return nil, false, err
	}
	if entry != nil && time.Since(entry.FetchedAt) < ttl {
		metrics.ReferenceCacheHitsTotal.WithLabelValues().Inc()
		return entry, true, nil
	}
	metrics.ReferenceCacheMissesTotal.WithLabelValues().Inc()

	cached := false
	err = e.store.WithReferenceLock(ctx, hypothesisID, func(ctx context.Context) error {
		// Another caller may have fetched while we waited for the lock.
		entry, err = e.store.GetReference(ctx, hypothesisID)
		if err != nil {
			return err
		}
		if entry != nil && time.Since(entry.FetchedAt) < ttl {
			cached = true
			return nil
		}

		fullText, charCount, err := e.crawler.FetchText(ctx, *hyp.ReferenceURL)
		if err != nil {
			return err
		}
		e.logger.Info().
			Str("hypothesis_id", hypothesisID).
			Int("characters", charCount).
			Msg("Fetched reference text")

		entry, err = e.store.UpsertReference(ctx, hypothesisID, fullText)
		return err
	})
	if err != nil {
		return nil, false, err
	}
	return entry, cached, nil
}

// referenceTTL maps a reference type to its cache TTL.
func referenceTTL(t models.ReferenceType) time.Duration {
	switch t {
	case models.RefPaper, models.RefBook:
		return stableReferenceTTL
	default:
		return defaultReferenceTTL
	}
}

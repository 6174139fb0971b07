package adapters

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"github.com/signalnoise/workbench/internal/metrics"
	"github.com/signalnoise/workbench/internal/models"
)

const analyzeSystemPrompt = `You are a rigorous analyst verifying a hypothesis against a specific text segment. Your goal is to determine the relationship between the evidence and the hypothesis.

Output Guidelines:
- Start with one of these bolded verdicts: **CONFIRMS**, **REFUTES**, **NUANCES**, or **IRRELEVANT**.
- Follow with a concise explanation (2-3 sentences) citing specific parts of the segment.
- Maintain a neutral, objective tone.`

// referenceExcerptLimit bounds how much cached reference text is sent per
// analysis call.
const referenceExcerptLimit = 24000

// LLMAnalyzer implements Analyzer over the chat-completions client.
type LLMAnalyzer struct {
	client *LLMClient
	logger zerolog.Logger
}

// NewLLMAnalyzer creates an Analyzer backed by the given LLM client.
func NewLLMAnalyzer(client *LLMClient, logger zerolog.Logger) *LLMAnalyzer {
	return &LLMAnalyzer{
		client: client,
		logger: logger.With().Str("component", "analyzer").Logger(),
	}
}

// Analyze evaluates a segment against a hypothesis and parses the leading
// verdict marker out of the model's response.
func (a *LLMAnalyzer) Analyze(ctx context.Context, req AnalyzeRequest) (*AnalyzeResult, error) {
	var sb strings.Builder
	fmt.Fprintf(&sb, "HYPOTHESIS: %s\n", req.HypothesisText)
	if req.Description != nil && *req.Description != "" {
		fmt.Fprintf(&sb, "CONTEXT: %s\n", *req.Description)
	}
	if req.ReferenceText != nil && *req.ReferenceText != "" {
		ref := *req.ReferenceText
		if len(ref) > referenceExcerptLimit {
			ref = ref[:referenceExcerptLimit]
		}
		fmt.Fprintf(&sb, "\nREFERENCE DOCUMENT:\n%s\n", ref)
	}
	fmt.Fprintf(&sb, "\nEVIDENCE (Segment):\n%s\n\nAnalysis:", req.SegmentText)

	start := time.Now()
	var raw string
	err := Call(ctx, RetryConfig{Logger: &a.logger, OperationName: "check_hypothesis"}, func(ctx context.Context) error {
		var callErr error
		raw, callErr = a.client.Complete(ctx, analyzeSystemPrompt, sb.String())
		return callErr
	})
	metrics.LLMCallDuration.WithLabelValues("analyze").Observe(time.Since(start).Seconds())
	if err != nil {
		metrics.LLMCallsTotal.WithLabelValues("analyze", "error").Inc()
		return nil, err
	}
	metrics.LLMCallsTotal.WithLabelValues("analyze", "ok").Inc()

	verdict := parseVerdictMarker(raw)
	return &AnalyzeResult{Verdict: verdict, AnalysisText: raw}, nil
}

// parseVerdictMarker extracts the leading bolded verdict from an analysis.
// Unknown or missing markers fall back to nuances rather than failing the
// whole call: the analysis text is still worth showing.
func parseVerdictMarker(text string) models.Verdict {
	head := strings.ToUpper(strings.TrimSpace(text))
	switch {
	case strings.HasPrefix(head, "**CONFIRMS**"):
		return models.VerdictConfirms
	case strings.HasPrefix(head, "**REFUTES**"):
		return models.VerdictRefutes
	case strings.HasPrefix(head, "**NUANCES**"):
		return models.VerdictNuances
	case strings.HasPrefix(head, "**IRRELEVANT**"):
		return models.VerdictIrrelevant
	}
	return models.VerdictNuances
}

package adapters

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"github.com/signalnoise/workbench/internal/metrics"
	"github.com/signalnoise/workbench/internal/models"
)

const suggestSystemPrompt = `You are an expert analyst helping to test hypotheses against evidence. Your task is to identify which hypotheses are relevant to a given text segment.

You have a list of EXISTING HYPOTHESES. For each existing hypothesis, decide if the segment provides evidence for or against it. If the segment suggests important propositions NOT covered by existing hypotheses, propose NEW hypotheses.

For 'existing' hypotheses:
- Use the exact provided hypothesis_id.
- Return the current description unless the segment strongly suggests an update is needed (rare).

For 'generated' (new) hypotheses:
- Set hypothesis_id to null.
- Create a clear, testable hypothesis statement.
- Write a short description providing context.

Return a JSON object with a 'suggestions' key containing a list of objects with fields: hypothesis_id (string or null), hypothesis_text (string), description (string or null), source ('existing' or 'generated').`

// LLMSuggester implements Suggester over the chat-completions client.
type LLMSuggester struct {
	client *LLMClient
	logger zerolog.Logger
}

// NewLLMSuggester creates a Suggester backed by the given LLM client.
func NewLLMSuggester(client *LLMClient, logger zerolog.Logger) *LLMSuggester {
	return &LLMSuggester{
		client: client,
		logger: logger.With().Str("component", "suggester").Logger(),
	}
}

type suggestionPayload struct {
	Suggestions []struct {
		HypothesisID   *string `json:"hypothesis_id"`
		HypothesisText string  `json:"hypothesis_text"`
		Description    *string `json:"description"`
		Source         string  `json:"source"`
	} `json:"suggestions"`
}

// SuggestHypotheses matches a segment against the stored hypotheses and
// proposes new candidates. Transient provider failures are retried before
// surfacing.
func (s *LLMSuggester) SuggestHypotheses(ctx context.Context, segmentText string, existing []models.Hypothesis) ([]models.Suggestion, error) {
	type existingEntry struct {
		ID             string `json:"id"`
		HypothesisText string `json:"hypothesis_text"`
		Description    string `json:"description"`
	}
	entries := make([]existingEntry, 0, len(existing))
	knownIDs := make(map[string]bool, len(existing))
	for _, h := range existing {
		desc := ""
		if h.Description != nil {
			desc = *h.Description
		}
		entries = append(entries, existingEntry{ID: h.ID, HypothesisText: h.HypothesisText, Description: desc})
		knownIDs[h.ID] = true
	}
	existingJSON, err := json.Marshal(entries)
	if err != nil {
		return nil, fmt.Errorf("marshal existing hypotheses: %w", err)
	}

	userPrompt := fmt.Sprintf("SEGMENT TEXT:\n%s\n\nEXISTING HYPOTHESES:\n%s\n\nPlease analyze and return JSON.",
		segmentText, string(existingJSON))

	start := time.Now()
	var raw string
	err = Call(ctx, RetryConfig{Logger: &s.logger, OperationName: "suggest_hypotheses"}, func(ctx context.Context) error {
		var callErr error
		raw, callErr = s.client.Complete(ctx, suggestSystemPrompt, userPrompt)
		return callErr
	})
	metrics.LLMCallDuration.WithLabelValues("suggest").Observe(time.Since(start).Seconds())
	if err != nil {
		metrics.LLMCallsTotal.WithLabelValues("suggest", "error").Inc()
		return nil, err
	}
	metrics.LLMCallsTotal.WithLabelValues("suggest", "ok").Inc()

	var payload suggestionPayload
	if err := json.Unmarshal([]byte(stripCodeFence(raw)), &payload); err != nil {
		return nil, Transient("suggest parse response", err)
	}

	out := make([]models.Suggestion, 0, len(payload.Suggestions))
	for _, item := range payload.Suggestions {
		if strings.TrimSpace(item.HypothesisText) == "" {
			continue
		}
		source := models.SuggestionSource(item.Source)
		if source != models.SuggestionExisting && source != models.SuggestionGenerated {
			source = models.SuggestionGenerated
		}
		// An 'existing' suggestion must carry an id we actually hold.
		if source == models.SuggestionExisting && (item.HypothesisID == nil || !knownIDs[*item.HypothesisID]) {
			source = models.SuggestionGenerated
			item.HypothesisID = nil
		}
		if source == models.SuggestionGenerated {
			item.HypothesisID = nil
		}
		out = append(out, models.Suggestion{
			HypothesisID:   item.HypothesisID,
			HypothesisText: item.HypothesisText,
			Description:    item.Description,
			Source:         source,
		})
	}
	return out, nil
}

// stripCodeFence removes a leading/trailing markdown fence some models wrap
// around JSON output.
func stripCodeFence(s string) string {
	s = strings.TrimSpace(s)
	if !strings.HasPrefix(s, "```") {
		return s
	}
	s = strings.TrimPrefix(s, "```json")
	s = strings.TrimPrefix(s, "```")
	s = strings.TrimSuffix(strings.TrimSpace(s), "```")
	return strings.TrimSpace(s)
}

package adapters

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/signalnoise/workbench/internal/models"
)

// fakeChatServer returns an OpenAI-shaped chat-completions backend that
// answers every call with the given content.
func fakeChatServer(t *testing.T, content string, capture *string) *httptest.Server {
	t.Helper()
	return httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "/v1/chat/completions", r.URL.Path)

		var req struct {
			Messages []struct {
				Role    string `json:"role"`
				Content string `json:"content"`
			} `json:"messages"`
		}
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		if capture != nil && len(req.Messages) > 1 {
			*capture = req.Messages[1].Content
		}

		resp := map[string]interface{}{
			"choices": []map[string]interface{}{
				{"message": map[string]string{"role": "assistant", "content": content}},
			},
		}
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(resp)
	}))
}

func testLLMClient(baseURL string) *LLMClient {
	return NewLLMClient(LLMConfig{APIKey: "test-key", BaseURL: baseURL}, zerolog.Nop())
}

func TestLLMClientComplete(t *testing.T) {
	srv := fakeChatServer(t, "hello there", nil)
	defer srv.Close()

	got, err := testLLMClient(srv.URL).Complete(context.Background(), "system", "user")
	require.NoError(t, err)
	assert.Equal(t, "hello there", got)
}

func TestLLMClientMapsStatusCodes(t *testing.T) {
	tests := []struct {
		name   string
		status int
		class  ErrorClass
	}{
		{"server error is transient", http.StatusInternalServerError, ErrTransient},
		{"rate limit is retryable", http.StatusTooManyRequests, ErrRateLimited},
		{"bad request is terminal", http.StatusBadRequest, ErrBadRequest},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(tt.status)
			}))
			defer srv.Close()

			_, err := testLLMClient(srv.URL).Complete(context.Background(), "s", "u")
			require.Error(t, err)
			assert.Equal(t, tt.class, ClassOf(err))
		})
	}
}

func TestSuggesterParsesSuggestions(t *testing.T) {
	response := `{"suggestions": [
		{"hypothesis_id": "h-1", "hypothesis_text": "Aggregators win", "description": "platform economics", "source": "existing"},
		{"hypothesis_id": null, "hypothesis_text": "Bundling beats unbundling", "source": "generated"}
	]}`
	var prompt string
	srv := fakeChatServer(t, response, &prompt)
	defer srv.Close()

	suggester := NewLLMSuggester(testLLMClient(srv.URL), zerolog.Nop())
	existing := []models.Hypothesis{{ID: "h-1", HypothesisText: "Aggregators win"}}

	got, err := suggester.SuggestHypotheses(context.Background(), "some segment", existing)
	require.NoError(t, err)
	require.Len(t, got, 2)

	assert.Equal(t, models.SuggestionExisting, got[0].Source)
	require.NotNil(t, got[0].HypothesisID)
	assert.Equal(t, "h-1", *got[0].HypothesisID)

	assert.Equal(t, models.SuggestionGenerated, got[1].Source)
	assert.Nil(t, got[1].HypothesisID)

	// The stored hypotheses are sent to the model.
	assert.Contains(t, prompt, "Aggregators win")
	assert.Contains(t, prompt, "some segment")
}

func TestSuggesterNormalizesInvalidRows(t *testing.T) {
	// An unknown source and an 'existing' claim with an id we do not hold
	// both collapse to generated.
	response := `{"suggestions": [
		{"hypothesis_id": "unknown-id", "hypothesis_text": "Claim A", "source": "existing"},
		{"hypothesis_id": null, "hypothesis_text": "Claim B", "source": "weird"},
		{"hypothesis_id": null, "hypothesis_text": "", "source": "generated"}
	]}`
	srv := fakeChatServer(t, response, nil)
	defer srv.Close()

	suggester := NewLLMSuggester(testLLMClient(srv.URL), zerolog.Nop())
	got, err := suggester.SuggestHypotheses(context.Background(), "seg", nil)
	require.NoError(t, err)
	require.Len(t, got, 2) // empty-text row dropped

	assert.Equal(t, models.SuggestionGenerated, got[0].Source)
	assert.Nil(t, got[0].HypothesisID)
	assert.Equal(t, models.SuggestionGenerated, got[1].Source)
}

func TestSuggesterHandlesFencedJSON(t *testing.T) {
	response := "```json\n{\"suggestions\": [{\"hypothesis_id\": null, \"hypothesis_text\": \"X\", \"source\": \"generated\"}]}\n```"
	srv := fakeChatServer(t, response, nil)
	defer srv.Close()

	suggester := NewLLMSuggester(testLLMClient(srv.URL), zerolog.Nop())
	got, err := suggester.SuggestHypotheses(context.Background(), "seg", nil)
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, "X", got[0].HypothesisText)
}

func TestAnalyzerParsesVerdict(t *testing.T) {
	tests := []struct {
		response string
		want     models.Verdict
	}{
		{"**CONFIRMS** The segment directly supports the claim.", models.VerdictConfirms},
		{"**REFUTES** The segment contradicts the claim.", models.VerdictRefutes},
		{"**NUANCES** Partly supportive with caveats.", models.VerdictNuances},
		{"**IRRELEVANT** The segment is about something else.", models.VerdictIrrelevant},
		{"No marker at all, just prose.", models.VerdictNuances},
	}

	for _, tt := range tests {
		t.Run(string(tt.want), func(t *testing.T) {
			srv := fakeChatServer(t, tt.response, nil)
			defer srv.Close()

			analyzer := NewLLMAnalyzer(testLLMClient(srv.URL), zerolog.Nop())
			got, err := analyzer.Analyze(context.Background(), AnalyzeRequest{
				SegmentText:    "segment",
				HypothesisText: "hypothesis",
			})
			require.NoError(t, err)
			assert.Equal(t, tt.want, got.Verdict)
			assert.Equal(t, tt.response, got.AnalysisText)
		})
	}
}

func TestAnalyzerIncludesReferenceText(t *testing.T) {
	var prompt string
	srv := fakeChatServer(t, "**CONFIRMS** ok", &prompt)
	defer srv.Close()

	ref := "the full reference body"
	analyzer := NewLLMAnalyzer(testLLMClient(srv.URL), zerolog.Nop())
	_, err := analyzer.Analyze(context.Background(), AnalyzeRequest{
		SegmentText:    "segment",
		HypothesisText: "hypothesis",
		ReferenceText:  &ref,
	})
	require.NoError(t, err)
	assert.Contains(t, prompt, "REFERENCE DOCUMENT")
	assert.Contains(t, prompt, ref)
}

package adapters

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/rs/zerolog"
)

// LLMConfig holds chat-completion provider settings.
type LLMConfig struct {
	APIKey      string
	Model       string
	BaseURL     string // override for proxies and tests
	MaxTokens   int
	Temperature float64
	Timeout     time.Duration
}

func defaultLLMConfig() LLMConfig {
	return LLMConfig{
		Model:       "gpt-4o-mini",
		MaxTokens:   1024,
		Temperature: 0.2,
		Timeout:     90 * time.Second,
	}
}

// LLMClient is a lightweight chat-completions HTTP client.
type LLMClient struct {
	cfg    LLMConfig
	http   *http.Client
	logger zerolog.Logger
}

// NewLLMClient creates a new LLM client from the given config.
func NewLLMClient(cfg LLMConfig, logger zerolog.Logger) *LLMClient {
	d := defaultLLMConfig()
	if cfg.Model == "" {
		cfg.Model = d.Model
	}
	if cfg.MaxTokens == 0 {
		cfg.MaxTokens = d.MaxTokens
	}
	if cfg.Temperature == 0 {
		cfg.Temperature = d.Temperature
	}
	if cfg.Timeout == 0 {
		cfg.Timeout = d.Timeout
	}
	return &LLMClient{
		cfg: cfg,
		http: &http.Client{
			Timeout: cfg.Timeout,
		},
		logger: logger.With().Str("component", "llm").Logger(),
	}
}

// Complete sends a system + user prompt pair and returns the response text.
// Failures are classified as provider errors for the retry wrapper.
func (c *LLMClient) Complete(ctx context.Context, systemPrompt, userPrompt string) (string, error) {
	baseURL := c.cfg.BaseURL
	if baseURL == "" {
		baseURL = "https://api.openai.com"
	}
	url := strings.TrimRight(baseURL, "/") + "/v1/chat/completions"

	body := map[string]interface{}{
		"model": c.cfg.Model,
		"messages": []map[string]string{
			{"role": "system", "content": systemPrompt},
			{"role": "user", "content": userPrompt},
		},
		"max_tokens":  c.cfg.MaxTokens,
		"temperature": c.cfg.Temperature,
	}

	data, err := json.Marshal(body)
	if err != nil {
		return "", BadRequest("llm marshal request", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(data))
	if err != nil {
		return "", BadRequest("llm create request", err)
	}
	req.Header.Set("Content-Type", "application/json")
	if c.cfg.APIKey != "" {
		req.Header.Set("Authorization", "Bearer "+c.cfg.APIKey)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		if ctx.Err() != nil {
			return "", Timeout("llm request", err)
		}
		return "", Transient("llm request", err)
	}
	defer resp.Body.Close()

	respBody, _ := io.ReadAll(resp.Body)
	if resp.StatusCode != http.StatusOK {
		err := fmt.Errorf("llm returned %d: %s", resp.StatusCode, truncate(string(respBody), 300))
		return "", &ProviderError{Class: classifyStatus(resp.StatusCode), Op: "llm request", Err: err}
	}

	var result struct {
		Choices []struct {
			Message struct {
				Content string `json:"content"`
			} `json:"message"`
		} `json:"choices"`
	}
	if err := json.Unmarshal(respBody, &result); err != nil {
		return "", Transient("llm unmarshal response", err)
	}
	if len(result.Choices) == 0 {
		return "", Transient("llm response", fmt.Errorf("no choices returned"))
	}
	return strings.TrimSpace(result.Choices[0].Message.Content), nil
}

// truncate bounds provider error payloads so they fit in log lines and
// queue error columns.
func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}

package adapters

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"github.com/signalnoise/workbench/internal/models"
)

// OpenAITranscriberConfig holds settings for the upload-based provider.
type OpenAITranscriberConfig struct {
	APIKey  string
	Model   string
	BaseURL string // override for tests
	Timeout time.Duration
}

// OpenAITranscriber downloads the audio and uploads it to the speech-to-text
// endpoint. It only handles full recordings: windowed requests need
// server-side trimming the provider does not offer, so they are rejected as
// bad requests and routed to the assembly provider instead.
type OpenAITranscriber struct {
	cfg    OpenAITranscriberConfig
	http   *http.Client
	logger zerolog.Logger
}

// NewOpenAITranscriber creates the OpenAI transcription adapter.
func NewOpenAITranscriber(cfg OpenAITranscriberConfig, logger zerolog.Logger) *OpenAITranscriber {
	if cfg.Model == "" {
		cfg.Model = "whisper-1"
	}
	if cfg.Timeout == 0 {
		cfg.Timeout = 15 * time.Minute
	}
	return &OpenAITranscriber{
		cfg: cfg,
		http: &http.Client{
			Timeout: cfg.Timeout,
		},
		logger: logger.With().Str("component", "transcriber_openai").Logger(),
	}
}

// Provider identifies this adapter on transcript assets.
func (t *OpenAITranscriber) Provider() models.TranscriptionProvider {
	return models.ProviderOpenAI
}

// Transcribe downloads req.AudioURL and submits it for transcription.
func (t *OpenAITranscriber) Transcribe(ctx context.Context, req TranscribeRequest) (*TranscribeResult, error) {
	if req.StartSeconds != nil || req.EndSeconds != nil {
		return nil, BadRequest("openai transcribe",
			fmt.Errorf("windowed transcription is not supported by the openai provider; use assembly"))
	}

	audio, err := t.downloadAudio(ctx, req.AudioURL)
	if err != nil {
		return nil, err
	}

	model := t.cfg.Model
	if req.Model != nil && *req.Model != "" {
		model = *req.Model
	}

	var body bytes.Buffer
	mw := multipart.NewWriter(&body)
	if err := mw.WriteField("model", model); err != nil {
		return nil, Transient("openai transcribe build form", err)
	}
	fw, err := mw.CreateFormFile("file", "audio.mp3")
	if err != nil {
		return nil, Transient("openai transcribe build form", err)
	}
	if _, err := fw.Write(audio); err != nil {
		return nil, Transient("openai transcribe build form", err)
	}
	if err := mw.Close(); err != nil {
		return nil, Transient("openai transcribe build form", err)
	}

	baseURL := t.cfg.BaseURL
	if baseURL == "" {
		baseURL = "https://api.openai.com"
	}
	url := strings.TrimRight(baseURL, "/") + "/v1/audio/transcriptions"

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, url, &body)
	if err != nil {
		return nil, BadRequest("openai transcribe create request", err)
	}
	httpReq.Header.Set("Content-Type", mw.FormDataContentType())
	httpReq.Header.Set("Authorization", "Bearer "+t.cfg.APIKey)

	resp, err := t.http.Do(httpReq)
	if err != nil {
		if ctx.Err() != nil {
			return nil, Timeout("openai transcribe", err)
		}
		return nil, Transient("openai transcribe", err)
	}
	defer resp.Body.Close()

	respBody, _ := io.ReadAll(resp.Body)
	if resp.StatusCode != http.StatusOK {
		err := fmt.Errorf("openai returned %d: %s", resp.StatusCode, truncate(string(respBody), 300))
		return nil, &ProviderError{Class: classifyStatus(resp.StatusCode), Op: "openai transcribe", Err: err}
	}

	var result struct {
		Text string `json:"text"`
	}
	if err := json.Unmarshal(respBody, &result); err != nil {
		return nil, Transient("openai transcribe unmarshal", err)
	}

	return &TranscribeResult{
		Text: result.Text,
		Metadata: map[string]interface{}{
			"provider": string(models.ProviderOpenAI),
			"model":    model,
		},
	}, nil
}

// downloadAudio fetches the source recording into memory for upload.
func (t *OpenAITranscriber) downloadAudio(ctx context.Context, url string) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, BadRequest("download audio", err)
	}

	resp, err := t.http.Do(req)
	if err != nil {
		if ctx.Err() != nil {
			return nil, Timeout("download audio", err)
		}
		return nil, Transient("download audio", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		err := fmt.Errorf("audio url returned %d", resp.StatusCode)
		return nil, &ProviderError{Class: classifyStatus(resp.StatusCode), Op: "download audio", Err: err}
	}

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, Transient("download audio", err)
	}
	return data, nil
}

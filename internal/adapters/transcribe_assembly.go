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

	"github.com/signalnoise/workbench/internal/models"
)

// AssemblyTranscriberConfig holds settings for the submit-and-poll provider.
type AssemblyTranscriberConfig struct {
	APIKey       string
	BaseURL      string // override for tests
	PollInterval time.Duration
	Timeout      time.Duration
}

// AssemblyTranscriber submits the remote audio URL as a transcription job
// and polls until it finishes. Windows map directly onto the provider's
// audio_start_from / audio_end_at parameters, so no local trimming is
// needed.
type AssemblyTranscriber struct {
	cfg    AssemblyTranscriberConfig
	http   *http.Client
	logger zerolog.Logger
}

// NewAssemblyTranscriber creates the AssemblyAI transcription adapter.
func NewAssemblyTranscriber(cfg AssemblyTranscriberConfig, logger zerolog.Logger) *AssemblyTranscriber {
	if cfg.PollInterval == 0 {
		cfg.PollInterval = 3 * time.Second
	}
	if cfg.Timeout == 0 {
		cfg.Timeout = 15 * time.Minute
	}
	return &AssemblyTranscriber{
		cfg: cfg,
		http: &http.Client{
			Timeout: 60 * time.Second, // per HTTP call; the job deadline comes from ctx
		},
		logger: logger.With().Str("component", "transcriber_assembly").Logger(),
	}
}

// Provider identifies this adapter on transcript assets.
func (t *AssemblyTranscriber) Provider() models.TranscriptionProvider {
	return models.ProviderAssembly
}

type assemblyJob struct {
	ID     string  `json:"id"`
	Status string  `json:"status"`
	Text   *string `json:"text"`
	Error  *string `json:"error"`
}

// Transcribe submits the job and polls for its result until done or the
// context expires.
func (t *AssemblyTranscriber) Transcribe(ctx context.Context, req TranscribeRequest) (*TranscribeResult, error) {
	if t.cfg.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, t.cfg.Timeout)
		defer cancel()
	}

	payload := map[string]interface{}{
		"audio_url": req.AudioURL,
	}
	if req.StartSeconds != nil {
		payload["audio_start_from"] = int64(*req.StartSeconds * 1000)
	}
	if req.EndSeconds != nil {
		payload["audio_end_at"] = int64(*req.EndSeconds * 1000)
	}

	job, err := t.submit(ctx, payload)
	if err != nil {
		return nil, err
	}

	for job.Status != "completed" && job.Status != "error" {
		select {
		case <-ctx.Done():
			return nil, Timeout("assembly transcribe", ctx.Err())
		case <-time.After(t.cfg.PollInterval):
		}
		job, err = t.poll(ctx, job.ID)
		if err != nil {
			return nil, err
		}
	}

	if job.Status == "error" {
		msg := "unknown error"
		if job.Error != nil {
			msg = *job.Error
		}
		return nil, Transient("assembly transcribe", fmt.Errorf("job failed: %s", msg))
	}

	text := ""
	if job.Text != nil {
		text = *job.Text
	}
	return &TranscribeResult{
		Text: text,
		Metadata: map[string]interface{}{
			"provider":      string(models.ProviderAssembly),
			"transcript_id": job.ID,
		},
	}, nil
}

func (t *AssemblyTranscriber) baseURL() string {
	if t.cfg.BaseURL != "" {
		return strings.TrimRight(t.cfg.BaseURL, "/")
	}
	return "https://api.assemblyai.com"
}

func (t *AssemblyTranscriber) submit(ctx context.Context, payload map[string]interface{}) (*assemblyJob, error) {
	data, err := json.Marshal(payload)
	if err != nil {
		return nil, BadRequest("assembly submit", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, t.baseURL()+"/v2/transcript", bytes.NewReader(data))
	if err != nil {
		return nil, BadRequest("assembly submit", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", t.cfg.APIKey)

	return t.do(req, "assembly submit")
}

func (t *AssemblyTranscriber) poll(ctx context.Context, id string) (*assemblyJob, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, t.baseURL()+"/v2/transcript/"+id, nil)
	if err != nil {
		return nil, BadRequest("assembly poll", err)
	}
	req.Header.Set("Authorization", t.cfg.APIKey)

	return t.do(req, "assembly poll")
}

func (t *AssemblyTranscriber) do(req *http.Request, op string) (*assemblyJob, error) {
	resp, err := t.http.Do(req)
	if err != nil {
		if req.Context().Err() != nil {
			return nil, Timeout(op, err)
		}
		return nil, Transient(op, err)
	}
	defer resp.Body.Close()

	respBody, _ := io.ReadAll(resp.Body)
	if resp.StatusCode != http.StatusOK {
		err := fmt.Errorf("assembly returned %d: %s", resp.StatusCode, truncate(string(respBody), 300))
		return nil, &ProviderError{Class: classifyStatus(resp.StatusCode), Op: op, Err: err}
	}

	var job assemblyJob
	if err := json.Unmarshal(respBody, &job); err != nil {
		return nil, Transient(op, err)
	}
	return &job, nil
}

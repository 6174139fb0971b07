package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

func TestLoadConfigDefaults(t *testing.T) {
	path := writeConfig(t, `
database:
  url: postgres://localhost:5432/workbench
`)

	cfg, err := LoadConfig(path)
	require.NoError(t, err)

	assert.Equal(t, 8000, cfg.API.Port)
	assert.Equal(t, 15*time.Second, cfg.API.RequestTimeout)
	assert.Equal(t, 120*time.Second, cfg.API.AnalyzeTimeout)
	assert.Equal(t, 5*time.Second, cfg.Workers.PollInterval)
	assert.Equal(t, "gpt-4o-mini", cfg.LLM.Model)
	assert.Equal(t, "whisper-1", cfg.Transcription.OpenAIModel)
	assert.Equal(t, 1.0, cfg.Crawler.RatePerSecond)
	assert.Equal(t, "info", cfg.Logging.Level)
}

func TestLoadConfigExplicitValues(t *testing.T) {
	path := writeConfig(t, `
database:
  url: postgres://localhost:5432/workbench
  max_conns: 25
api:
  port: 9000
  analyze_timeout: 60s
workers:
  poll_interval: 2s
llm:
  model: gpt-4o
logging:
  level: debug
`)

	cfg, err := LoadConfig(path)
	require.NoError(t, err)

	assert.Equal(t, 25, cfg.Database.MaxConns)
	assert.Equal(t, 9000, cfg.API.Port)
	assert.Equal(t, 60*time.Second, cfg.API.AnalyzeTimeout)
	assert.Equal(t, 2*time.Second, cfg.Workers.PollInterval)
	assert.Equal(t, "gpt-4o", cfg.LLM.Model)
	assert.Equal(t, "debug", cfg.Logging.Level)
}

func TestLoadConfigEnvOverrides(t *testing.T) {
	path := writeConfig(t, `
database:
  url: postgres://localhost:5432/workbench
`)

	t.Setenv("DATABASE_URL", "postgres://db.internal:5432/prod")
	t.Setenv("OPENAI_API_KEY", "sk-test")
	t.Setenv("LOG_LEVEL", "warn")

	cfg, err := LoadConfig(path)
	require.NoError(t, err)

	assert.Equal(t, "postgres://db.internal:5432/prod", cfg.Database.URL)
	assert.Equal(t, "sk-test", cfg.LLM.APIKey)
	// The LLM key doubles as the transcription key unless set separately.
	assert.Equal(t, "sk-test", cfg.Transcription.OpenAIAPIKey)
	assert.Equal(t, "warn", cfg.Logging.Level)
}

func TestLoadConfigMissingDatabaseURL(t *testing.T) {
	path := writeConfig(t, `
api:
  port: 8000
`)

	t.Setenv("DATABASE_URL", "")
	_, err := LoadConfig(path)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "database url")
}

func TestLoadConfigRejectsBadPollInterval(t *testing.T) {
	path := writeConfig(t, `
database:
  url: postgres://localhost:5432/workbench
workers:
  poll_interval: 100ms
`)

	_, err := LoadConfig(path)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "poll interval")
}

func TestLoadConfigMissingFile(t *testing.T) {
	_, err := LoadConfig(filepath.Join(t.TempDir(), "nope.yaml"))
	require.Error(t, err)
}

package config

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"gopkg.in/yaml.v3"
)

// Config is the top-level configuration shared by the API and workers.
type Config struct {
	Database      Database      `yaml:"database"`
	API           API           `yaml:"api"`
	Workers       Workers       `yaml:"workers"`
	LLM           LLM           `yaml:"llm"`
	Transcription Transcription `yaml:"transcription"`
	Crawler       Crawler       `yaml:"crawler"`
	Logging       Logging       `yaml:"logging"`
}

// Database holds the Postgres connection settings.
type Database struct {
	URL             string        `yaml:"url"`
	MaxConns        int           `yaml:"max_conns"`
	ConnectTimeout  time.Duration `yaml:"connect_timeout"`
}

// API configuration for the HTTP control plane.
type API struct {
	Port            int           `yaml:"port"`
	MetricsPort     int           `yaml:"metrics_port"`
	RateLimit       int           `yaml:"rate_limit"` // requests/second, token bucket
	RequestTimeout  time.Duration `yaml:"request_timeout"`
	AnalyzeTimeout  time.Duration `yaml:"analyze_timeout"`
	ShutdownTimeout time.Duration `yaml:"shutdown_timeout"`
}

// Workers configuration for the poll loops.
type Workers struct {
	PollInterval    time.Duration `yaml:"poll_interval"`
	MetricsPort     int           `yaml:"metrics_port"`
	ShutdownTimeout time.Duration `yaml:"shutdown_timeout"`
}

// LLM holds chat-completion provider settings.
type LLM struct {
	APIKey      string        `yaml:"api_key"`
	Model       string        `yaml:"model"`
	BaseURL     string        `yaml:"base_url"` // override for proxies and tests
	MaxTokens   int           `yaml:"max_tokens"`
	Temperature float64       `yaml:"temperature"`
	Timeout     time.Duration `yaml:"timeout"`
}

// Transcription holds speech-to-text provider settings.
type Transcription struct {
	OpenAIAPIKey    string        `yaml:"openai_api_key"`
	OpenAIModel     string        `yaml:"openai_model"`
	OpenAIBaseURL   string        `yaml:"openai_base_url"`
	AssemblyAPIKey  string        `yaml:"assembly_api_key"`
	AssemblyBaseURL string        `yaml:"assembly_base_url"`
	PollInterval    time.Duration `yaml:"poll_interval"` // AssemblyAI job polling
	Timeout         time.Duration `yaml:"timeout"`       // per transcription job
}

// Crawler holds reference-fetcher settings.
type Crawler struct {
	Timeout        time.Duration `yaml:"timeout"`
	RatePerSecond  float64       `yaml:"rate_per_second"`
	MaxBodyBytes   int64         `yaml:"max_body_bytes"`
	UserAgent      string        `yaml:"user_agent"`
}

// Logging configuration.
type Logging struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
}

// LoadConfig loads configuration from file and environment variables.
func LoadConfig(configPath string) (*Config, error) {
	data, err := os.ReadFile(configPath)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	var config Config
	if err := yaml.Unmarshal(data, &config); err != nil {
		return nil, fmt.Errorf("failed to parse config file: %w", err)
	}

	setDefaults(&config)
	overrideWithEnv(&config)

	if err := validateConfig(&config); err != nil {
		return nil, fmt.Errorf("config validation failed: %w", err)
	}

	return &config, nil
}

// setDefaults sets default values for optional fields.
func setDefaults(config *Config) {
	// Database defaults
	if config.Database.MaxConns == 0 {
		config.Database.MaxConns = 10
	}
	if config.Database.ConnectTimeout == 0 {
		config.Database.ConnectTimeout = 5 * time.Second
	}

	// API defaults
	if config.API.Port == 0 {
		config.API.Port = 8000
	}
	if config.API.MetricsPort == 0 {
		config.API.MetricsPort = 2112
	}
	if config.API.RateLimit == 0 {
		config.API.RateLimit = 100
	}
	if config.API.RequestTimeout == 0 {
		config.API.RequestTimeout = 15 * time.Second
	}
	if config.API.AnalyzeTimeout == 0 {
		config.API.AnalyzeTimeout = 120 * time.Second
	}
	if config.API.ShutdownTimeout == 0 {
		config.API.ShutdownTimeout = 30 * time.Second
	}

	// Worker defaults
	if config.Workers.PollInterval == 0 {
		config.Workers.PollInterval = 5 * time.Second
	}
	if config.Workers.MetricsPort == 0 {
		config.Workers.MetricsPort = 2113
	}
	if config.Workers.ShutdownTimeout == 0 {
		config.Workers.ShutdownTimeout = 30 * time.Second
	}

	// LLM defaults
	if config.LLM.Model == "" {
		config.LLM.Model = "gpt-4o-mini"
	}
	if config.LLM.MaxTokens == 0 {
		config.LLM.MaxTokens = 1024
	}
	if config.LLM.Temperature == 0 {
		config.LLM.Temperature = 0.2
	}
	if config.LLM.Timeout == 0 {
		config.LLM.Timeout = 90 * time.Second
	}

	// Transcription defaults
	if config.Transcription.OpenAIModel == "" {
		config.Transcription.OpenAIModel = "whisper-1"
	}
	if config.Transcription.PollInterval == 0 {
		config.Transcription.PollInterval = 3 * time.Second
	}
	if config.Transcription.Timeout == 0 {
		config.Transcription.Timeout = 15 * time.Minute
	}

	// Crawler defaults
	if config.Crawler.Timeout == 0 {
		config.Crawler.Timeout = 30 * time.Second
	}
	if config.Crawler.RatePerSecond == 0 {
		config.Crawler.RatePerSecond = 1.0
	}
	if config.Crawler.MaxBodyBytes == 0 {
		config.Crawler.MaxBodyBytes = 20 << 20 // 20 MB
	}
	if config.Crawler.UserAgent == "" {
		config.Crawler.UserAgent = "signalnoise-workbench/1.0"
	}

	// Logging defaults
	if config.Logging.Level == "" {
		config.Logging.Level = "info"
	}
	if config.Logging.Format == "" {
		config.Logging.Format = "json"
	}
}

// overrideWithEnv overrides configuration with environment variables.
func overrideWithEnv(config *Config) {
	if dbURL := os.Getenv("DATABASE_URL"); dbURL != "" {
		config.Database.URL = dbURL
	}
	if key := os.Getenv("OPENAI_API_KEY"); key != "" {
		config.LLM.APIKey = key
		if config.Transcription.OpenAIAPIKey == "" {
			config.Transcription.OpenAIAPIKey = key
		}
	}
	if key := os.Getenv("ASSEMBLY_API_KEY"); key != "" {
		config.Transcription.AssemblyAPIKey = key
	}
	if port := os.Getenv("API_PORT"); port != "" {
		if v, err := strconv.Atoi(port); err == nil {
			config.API.Port = v
		}
	}
	if logLevel := os.Getenv("LOG_LEVEL"); logLevel != "" {
		config.Logging.Level = logLevel
	}
}

// validateConfig validates the configuration.
func validateConfig(config *Config) error {
	if config.Database.URL == "" {
		return fmt.Errorf("database url must not be empty (set database.url or DATABASE_URL)")
	}
	if config.API.Port <= 0 || config.API.Port > 65535 {
		return fmt.Errorf("api port must be in (0, 65535]")
	}
	if config.Workers.PollInterval < time.Second {
		return fmt.Errorf("worker poll interval must be at least 1s")
	}
	if config.Crawler.RatePerSecond <= 0 {
		return fmt.Errorf("crawler rate_per_second must be positive")
	}
	return nil
}

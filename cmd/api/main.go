package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/rs/zerolog"

	"github.com/signalnoise/workbench/internal/adapters"
	"github.com/signalnoise/workbench/internal/api"
	"github.com/signalnoise/workbench/internal/config"
	"github.com/signalnoise/workbench/internal/engine"
	"github.com/signalnoise/workbench/internal/metrics"
	"github.com/signalnoise/workbench/internal/storage"
)

func main() {
	defer func() {
		if r := recover(); r != nil {
			fmt.Fprintf(os.Stderr, "panic: %v\n", r)
			os.Exit(2)
		}
	}()

	_ = godotenv.Load() // silently ignore if .env doesn't exist

	configPath := flag.String("config", "configs/config.dev.yaml", "Path to configuration file")
	portOverride := flag.Int("port", 0, "Override API port (default from config)")
	flag.Parse()

	cfg, err := config.LoadConfig(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load config: %v\n", err)
		os.Exit(1)
	}
	if *portOverride > 0 {
		cfg.API.Port = *portOverride
	}

	logger := initLogger(cfg, "workbench-api")
	logger.Info().Str("config", *configPath).Int("port", cfg.API.Port).Msg("Starting API server")

	metrics.InitMetrics()
	metricsServer := metrics.NewServer(cfg.API.MetricsPort)
	if err := metricsServer.Start(); err != nil {
		logger.Warn().Err(err).Int("port", cfg.API.MetricsPort).Msg("Metrics server failed to start (non-fatal)")
	} else {
		logger.Info().Int("port", cfg.API.MetricsPort).Msg("Metrics server started")
	}

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	store, err := storage.New(ctx, storage.Config{
		DatabaseURL:    cfg.Database.URL,
		MaxConns:       cfg.Database.MaxConns,
		ConnectTimeout: cfg.Database.ConnectTimeout,
	}, logger)
	cancel()
	if err != nil {
		logger.Error().Err(err).Msg("Failed to connect to database")
		os.Exit(1)
	}
	defer store.Close()

	llmClient := adapters.NewLLMClient(adapters.LLMConfig{
		APIKey:      cfg.LLM.APIKey,
		Model:       cfg.LLM.Model,
		BaseURL:     cfg.LLM.BaseURL,
		MaxTokens:   cfg.LLM.MaxTokens,
		Temperature: cfg.LLM.Temperature,
		Timeout:     cfg.LLM.Timeout,
	}, logger)
	crawler := adapters.NewHTTPCrawler(adapters.CrawlerConfig{
		Timeout:       cfg.Crawler.Timeout,
		RatePerSecond: cfg.Crawler.RatePerSecond,
		MaxBodyBytes:  cfg.Crawler.MaxBodyBytes,
		UserAgent:     cfg.Crawler.UserAgent,
	}, logger)

	eng := engine.New(store,
		adapters.NewLLMSuggester(llmClient, logger),
		adapters.NewLLMAnalyzer(llmClient, logger),
		crawler, logger)

	server := api.NewAPIServer(store, eng, crawler, cfg, logger)

	errCh := make(chan error, 1)
	go func() {
		errCh <- server.Start()
	}()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)

	select {
	case sig := <-sigChan:
		logger.Info().Str("signal", sig.String()).Msg("Received shutdown signal")
	case err := <-errCh:
		if err != nil {
			logger.Error().Err(err).Msg("API server failed")
			os.Exit(1)
		}
		return
	}

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), cfg.API.ShutdownTimeout)
	defer shutdownCancel()

	if err := server.Stop(shutdownCtx); err != nil {
		logger.Error().Err(err).Msg("Error stopping API server")
	}
	if err := metricsServer.Stop(shutdownCtx); err != nil {
		logger.Error().Err(err).Msg("Error stopping metrics server")
	}
	logger.Info().Msg("Shutdown complete")
}

// initLogger builds the service logger from configuration.
func initLogger(cfg *config.Config, service string) zerolog.Logger {
	level, err := zerolog.ParseLevel(cfg.Logging.Level)
	if err != nil {
		level = zerolog.InfoLevel
	}
	logger := zerolog.New(os.Stdout).With().Timestamp().Str("service", service).Logger().Level(level)
	if cfg.Logging.Format == "console" {
		logger = logger.Output(zerolog.ConsoleWriter{Out: os.Stdout})
	}
	return logger
}

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
	"github.com/signalnoise/workbench/internal/config"
	"github.com/signalnoise/workbench/internal/metrics"
	"github.com/signalnoise/workbench/internal/storage"
	"github.com/signalnoise/workbench/internal/worker"
)

func main() {
	defer func() {
		if r := recover(); r != nil {
			fmt.Fprintf(os.Stderr, "panic: %v\n", r)
			os.Exit(2)
		}
	}()

	_ = godotenv.Load()

	configPath := flag.String("config", "configs/config.dev.yaml", "Path to configuration file")
	flag.Parse()

	cfg, err := config.LoadConfig(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load config: %v\n", err)
		os.Exit(1)
	}

	logger := initLogger(cfg, "workbench-transcription-worker")
	logger.Info().Str("config", *configPath).Msg("Starting transcription worker")

	metrics.InitMetrics()
	metricsServer := metrics.NewServer(cfg.Workers.MetricsPort + 1)
	if err := metricsServer.Start(); err != nil {
		logger.Warn().Err(err).Msg("Metrics server failed to start (non-fatal)")
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

	var transcribers []adapters.Transcriber
	if cfg.Transcription.OpenAIAPIKey != "" {
		transcribers = append(transcribers, adapters.NewOpenAITranscriber(adapters.OpenAITranscriberConfig{
			APIKey:  cfg.Transcription.OpenAIAPIKey,
			Model:   cfg.Transcription.OpenAIModel,
			BaseURL: cfg.Transcription.OpenAIBaseURL,
			Timeout: cfg.Transcription.Timeout,
		}, logger))
	}
	if cfg.Transcription.AssemblyAPIKey != "" {
		transcribers = append(transcribers, adapters.NewAssemblyTranscriber(adapters.AssemblyTranscriberConfig{
			APIKey:       cfg.Transcription.AssemblyAPIKey,
			BaseURL:      cfg.Transcription.AssemblyBaseURL,
			PollInterval: cfg.Transcription.PollInterval,
			Timeout:      cfg.Transcription.Timeout,
		}, logger))
	}
	if len(transcribers) == 0 {
		logger.Error().Msg("No transcription provider configured (set OPENAI_API_KEY or ASSEMBLY_API_KEY)")
		os.Exit(1)
	}

	w := worker.NewTranscriptionWorker(store, transcribers, cfg.Workers.PollInterval, logger)
	w.Start()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
	sig := <-sigChan
	logger.Info().Str("signal", sig.String()).Msg("Received shutdown signal")

	w.Stop()

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), cfg.Workers.ShutdownTimeout)
	defer shutdownCancel()
	if err := metricsServer.Stop(shutdownCtx); err != nil {
		logger.Error().Err(err).Msg("Error stopping metrics server")
	}
	logger.Info().Msg("Shutdown complete")
}

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

package adapters

import (
	"context"
	"errors"
	"fmt"
	"math"
	"math/rand"
	"time"

	"github.com/rs/zerolog"
)

// retryable is implemented by errors that know whether a retry is worthwhile.
type retryable interface {
	error
	ShouldRetry() bool
}

// shouldRetry checks whether an error is worth retrying. Unknown errors
// default to retryable since network failures are usually transient.
func shouldRetry(err error) bool {
	var re retryable
	if errors.As(err, &re) {
		return re.ShouldRetry()
	}
	return true
}

// RetryConfig holds parameters for Call.
type RetryConfig struct {
	// MaxAttempts is the total number of attempts including the first
	// (default 3).
	MaxAttempts int
	// InitialDelay is the delay before the first retry (default 250ms).
	InitialDelay time.Duration
	// Multiplier controls exponential growth (default 4.0, giving the
	// 250ms, 1s, 4s ladder).
	Multiplier float64
	// JitterFraction is the maximum fraction of the delay added as random
	// jitter (default 0.1).
	JitterFraction float64
	// Logger is an optional structured logger.
	Logger *zerolog.Logger
	// OperationName is used in log and error messages.
	OperationName string
}

func (c *RetryConfig) setDefaults() {
	if c.MaxAttempts == 0 {
		c.MaxAttempts = 3
	}
	if c.InitialDelay == 0 {
		c.InitialDelay = 250 * time.Millisecond
	}
	if c.Multiplier == 0 {
		c.Multiplier = 4.0
	}
	if c.JitterFraction == 0 {
		c.JitterFraction = 0.1
	}
	if c.OperationName == "" {
		c.OperationName = "operation"
	}
}

// Call executes fn up to MaxAttempts times with exponential backoff plus
// jitter. It respects context cancellation and never retries errors whose
// ShouldRetry reports false.
func Call(ctx context.Context, cfg RetryConfig, fn func(ctx context.Context) error) error {
	cfg.setDefaults()

	var lastErr error

	for attempt := 1; attempt <= cfg.MaxAttempts; attempt++ {
		if err := ctx.Err(); err != nil {
			return fmt.Errorf("%s: context cancelled after %d attempts: %w", cfg.OperationName, attempt-1, err)
		}

		lastErr = fn(ctx)
		if lastErr == nil {
			if attempt > 1 && cfg.Logger != nil {
				cfg.Logger.Info().
					Str("operation", cfg.OperationName).
					Int("attempt", attempt).
					Msg("Retry succeeded")
			}
			return nil
		}

		if !shouldRetry(lastErr) {
			if cfg.Logger != nil {
				cfg.Logger.Warn().
					Err(lastErr).
					Str("operation", cfg.OperationName).
					Int("attempt", attempt).
					Msg("Non-retryable error, aborting")
			}
			return lastErr
		}

		if attempt == cfg.MaxAttempts {
			break
		}

		delay := computeDelay(attempt, cfg)

		if cfg.Logger != nil {
			cfg.Logger.Warn().
				Err(lastErr).
				Str("operation", cfg.OperationName).
				Int("attempt", attempt).
				Int("max_attempts", cfg.MaxAttempts).
				Dur("next_delay", delay).
				Msg("Retrying after error")
		}

		select {
		case <-ctx.Done():
			return fmt.Errorf("%s: context cancelled during backoff: %w", cfg.OperationName, ctx.Err())
		case <-time.After(delay):
		}
	}

	return fmt.Errorf("%s: all %d attempts failed: %w", cfg.OperationName, cfg.MaxAttempts, lastErr)
}

// computeDelay returns the backoff delay for the given attempt number.
func computeDelay(attempt int, cfg RetryConfig) time.Duration {
	delay := float64(cfg.InitialDelay) * math.Pow(cfg.Multiplier, float64(attempt-1))

	jitter := delay * cfg.JitterFraction * (2*rand.Float64() - 1)
	delay += jitter

	if delay < 0 {
		delay = float64(cfg.InitialDelay)
	}

	return time.Duration(delay)
}

package adapters

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func fastRetry() RetryConfig {
	return RetryConfig{
		MaxAttempts:  3,
		InitialDelay: time.Millisecond,
		Multiplier:   2.0,
	}
}

func TestCallSucceedsFirstAttempt(t *testing.T) {
	calls := 0
	err := Call(context.Background(), fastRetry(), func(ctx context.Context) error {
		calls++
		return nil
	})
	require.NoError(t, err)
	assert.Equal(t, 1, calls)
}

func TestCallRetriesTransientErrors(t *testing.T) {
	calls := 0
	err := Call(context.Background(), fastRetry(), func(ctx context.Context) error {
		calls++
		if calls < 3 {
			return Transient("op", errors.New("connection reset"))
		}
		return nil
	})
	require.NoError(t, err)
	assert.Equal(t, 3, calls)
}

func TestCallExhaustsAttempts(t *testing.T) {
	calls := 0
	err := Call(context.Background(), fastRetry(), func(ctx context.Context) error {
		calls++
		return Transient("op", errors.New("still down"))
	})
	require.Error(t, err)
	assert.Equal(t, 3, calls)
	assert.Contains(t, err.Error(), "all 3 attempts failed")
}

func TestCallDoesNotRetryBadRequests(t *testing.T) {
	calls := 0
	err := Call(context.Background(), fastRetry(), func(ctx context.Context) error {
		calls++
		return BadRequest("op", errors.New("invalid payload"))
	})
	require.Error(t, err)
	assert.Equal(t, 1, calls)
}

func TestCallRetriesRateLimits(t *testing.T) {
	calls := 0
	err := Call(context.Background(), fastRetry(), func(ctx context.Context) error {
		calls++
		if calls == 1 {
			return RateLimited("op", errors.New("429"))
		}
		return nil
	})
	require.NoError(t, err)
	assert.Equal(t, 2, calls)
}

func TestCallStopsOnCancelledContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	calls := 0
	err := Call(ctx, fastRetry(), func(ctx context.Context) error {
		calls++
		return nil
	})
	require.Error(t, err)
	assert.Equal(t, 0, calls)
}

func TestClassifyStatus(t *testing.T) {
	assert.Equal(t, ErrRateLimited, classifyStatus(429))
	assert.Equal(t, ErrBadRequest, classifyStatus(400))
	assert.Equal(t, ErrBadRequest, classifyStatus(404))
	assert.Equal(t, ErrTransient, classifyStatus(500))
	assert.Equal(t, ErrTransient, classifyStatus(503))
}

func TestProviderErrorUnwraps(t *testing.T) {
	inner := errors.New("boom")
	err := Transient("op", inner)
	assert.True(t, errors.Is(err, inner))

	var pe *ProviderError
	require.True(t, errors.As(err, &pe))
	assert.Equal(t, ErrTransient, pe.Class)
}

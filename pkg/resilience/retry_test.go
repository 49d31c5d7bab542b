package resilience

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"go.uber.org/goleak"
)

func fastRetry(attempts int) RetryConfig {
	return RetryConfig{
		MaxAttempts:  attempts,
		InitialDelay: time.Millisecond,
		MaxDelay:     5 * time.Millisecond,
	}
}

func TestRetrySucceedsAfterFailures(t *testing.T) {
	calls := 0
	err := Retry(context.Background(), "load", fastRetry(5), func(context.Context) error {
		calls++
		if calls < 3 {
			return errBackend
		}
		return nil
	})
	assert.NoError(t, err)
	assert.Equal(t, 3, calls)
}

func TestRetryExhausted(t *testing.T) {
	calls := 0
	err := Retry(context.Background(), "load", fastRetry(3), func(context.Context) error {
		calls++
		return errBackend
	})
	assert.ErrorIs(t, err, errBackend)
	assert.EqualError(t, err, "all 3 attempts failed for load: backend unavailable")
	assert.Equal(t, 3, calls)
}

func TestRetryStopsOnNonRetryable(t *testing.T) {
	permanent := errors.New("malformed corpus")
	cfg := fastRetry(5)
	cfg.Retryable = func(err error) bool { return !errors.Is(err, permanent) }

	calls := 0
	err := Retry(context.Background(), "load", cfg, func(context.Context) error {
		calls++
		return permanent
	})
	assert.Same(t, permanent, err)
	assert.Equal(t, 1, calls)
}

func TestRetryDefaultDoesNotRetryCancellation(t *testing.T) {
	calls := 0
	err := Retry(context.Background(), "load", fastRetry(5), func(context.Context) error {
		calls++
		return context.Canceled
	})
	assert.ErrorIs(t, err, context.Canceled)
	assert.Equal(t, 1, calls)
}

func TestRetryAbortsDuringBackoff(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cfg := RetryConfig{MaxAttempts: 5, InitialDelay: time.Hour, MaxDelay: time.Hour}

	err := Retry(ctx, "load", cfg, func(context.Context) error {
		cancel()
		return errBackend
	})
	assert.ErrorIs(t, err, context.Canceled)
	assert.ErrorIs(t, err, errBackend)
}

func TestComputeDelayCapped(t *testing.T) {
	cfg := RetryConfig{InitialDelay: time.Second, MaxDelay: 5 * time.Second, Multiplier: 2}
	assert.Equal(t, time.Second, computeDelay(1, cfg))
	assert.Equal(t, 4*time.Second, computeDelay(3, cfg))
	assert.Equal(t, 5*time.Second, computeDelay(10, cfg))
}

func TestWithTimeout(t *testing.T) {
	defer goleak.VerifyNone(t)

	assert.NoError(t, WithTimeout(context.Background(), time.Second, "load", func(context.Context) error {
		return nil
	}))

	err := WithTimeout(context.Background(), 10*time.Millisecond, "load", func(ctx context.Context) error {
		<-ctx.Done()
		return ctx.Err()
	})
	assert.ErrorIs(t, err, context.DeadlineExceeded)
	assert.Contains(t, err.Error(), "load")

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	err = WithTimeout(ctx, time.Second, "load", func(ctx context.Context) error {
		<-ctx.Done()
		return ctx.Err()
	})
	assert.ErrorIs(t, err, context.Canceled)
}

func TestWithTimeoutDisabled(t *testing.T) {
	err := WithTimeout(context.Background(), 0, "load", func(ctx context.Context) error {
		_, hasDeadline := ctx.Deadline()
		assert.False(t, hasDeadline)
		return errBackend
	})
	assert.ErrorIs(t, err, errBackend)
}

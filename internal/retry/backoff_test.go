package retry

import (
	"context"
	"errors"
	"testing"
	"time"

	"waenhancer/internal/models"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func fastConfig(attempts int) BackoffConfig {
	return BackoffConfig{
		InitialDelay: time.Millisecond,
		MaxDelay:     5 * time.Millisecond,
		Multiplier:   2.0,
		MaxAttempts:  attempts,
	}
}

func TestDefaultBackoffConfig(t *testing.T) {
	c := DefaultBackoffConfig()
	assert.Equal(t, 100*time.Millisecond, c.InitialDelay)
	assert.Equal(t, 30*time.Second, c.MaxDelay)
	assert.Equal(t, 2.0, c.Multiplier)
	assert.Equal(t, 5, c.MaxAttempts)
	assert.True(t, c.Jitter)
}

func TestFromConfig(t *testing.T) {
	c := FromConfig(models.RetryConfig{InitialBackoffMs: 250, MaxBackoffMs: 2000, MaxAttempts: 7})
	assert.Equal(t, 250*time.Millisecond, c.InitialDelay)
	assert.Equal(t, 2*time.Second, c.MaxDelay)
	assert.Equal(t, 7, c.MaxAttempts)

	d := FromConfig(models.RetryConfig{})
	assert.Equal(t, DefaultBackoffConfig(), d)
}

func TestRetry_SuccessAfterFailures(t *testing.T) {
	attempts := 0
	var retried []int
	b := NewBackoff(fastConfig(5)).OnRetry(func(attempt int, _ time.Duration, _ error) {
		retried = append(retried, attempt)
	})

	err := b.Retry(context.Background(), func() error {
		attempts++
		if attempts < 3 {
			return errors.New("not yet")
		}
		return nil
	})

	require.NoError(t, err)
	assert.Equal(t, 3, attempts)
	assert.Equal(t, []int{1, 2}, retried)
}

func TestRetry_ReturnsLastError(t *testing.T) {
	attempts := 0
	err := NewBackoff(fastConfig(3)).Retry(context.Background(), func() error {
		attempts++
		return errors.New("always")
	})

	assert.EqualError(t, err, "always")
	assert.Equal(t, 3, attempts)
}

func TestRetryWithPredicate_StopsOnPermanentError(t *testing.T) {
	permanent := errors.New("permanent")
	attempts := 0
	err := NewBackoff(fastConfig(5)).RetryWithPredicate(context.Background(), func() error {
		attempts++
		return permanent
	}, func(err error) bool { return !errors.Is(err, permanent) })

	assert.ErrorIs(t, err, permanent)
	assert.Equal(t, 1, attempts)
}

func TestRetry_ContextCancelledDuringWait(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()

	b := NewBackoff(BackoffConfig{InitialDelay: time.Second, MaxDelay: time.Second, Multiplier: 1, MaxAttempts: 3})
	start := time.Now()
	err := b.Retry(ctx, func() error { return errors.New("fail") })

	assert.ErrorIs(t, err, context.DeadlineExceeded)
	assert.Less(t, time.Since(start), 500*time.Millisecond)
}

func TestGetNextDelay(t *testing.T) {
	b := NewBackoff(BackoffConfig{InitialDelay: 100 * time.Millisecond, MaxDelay: time.Second, Multiplier: 2, MaxAttempts: 10})
	assert.Equal(t, 100*time.Millisecond, b.GetNextDelay(1))
	assert.Equal(t, 200*time.Millisecond, b.GetNextDelay(2))
	assert.Equal(t, 400*time.Millisecond, b.GetNextDelay(3))
	assert.Equal(t, time.Second, b.GetNextDelay(10))
}

func TestGetNextDelay_JitterBounds(t *testing.T) {
	b := NewBackoff(BackoffConfig{InitialDelay: 100 * time.Millisecond, MaxDelay: time.Second, Multiplier: 2, MaxAttempts: 10, Jitter: true})
	for i := 0; i < 50; i++ {
		d := b.GetNextDelay(2)
		assert.GreaterOrEqual(t, d, 150*time.Millisecond)
		assert.LessOrEqual(t, d, 250*time.Millisecond)
	}
}

func TestNewBackoff_ClampsConfig(t *testing.T) {
	attempts := 0
	err := NewBackoff(BackoffConfig{}).Retry(context.Background(), func() error {
		attempts++
		return errors.New("x")
	})
	assert.Error(t, err)
	assert.Equal(t, 1, attempts)
}

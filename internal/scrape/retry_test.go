package scrape

import (
	"context"
	"errors"
	"testing"
	"time"

	"alrt/internal/types"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testPolicy() RetryPolicy {
	return RetryPolicy{Attempts: 3, Timeout: time.Second, Backoff: 5 * time.Second}
}

func TestRetrier_SuccessFirstAttempt(t *testing.T) {
	var slept []time.Duration
	r := NewRetrier(testPolicy(), WithSleepFunc(func(d time.Duration) { slept = append(slept, d) }))

	calls := 0
	err := r.Do(context.Background(), func(ctx context.Context) error {
		calls++
		return nil
	})

	require.NoError(t, err)
	assert.Equal(t, 1, calls)
	assert.Empty(t, slept)
}

func TestRetrier_RetriesTransientThenSucceeds(t *testing.T) {
	var slept []time.Duration
	r := NewRetrier(testPolicy(), WithSleepFunc(func(d time.Duration) { slept = append(slept, d) }))

	calls := 0
	err := r.Do(context.Background(), func(ctx context.Context) error {
		calls++
		if calls < 3 {
			return types.NewAppError(types.ErrCodeUpstreamUnavailable, "provider down", nil)
		}
		return nil
	})

	require.NoError(t, err)
	assert.Equal(t, 3, calls)
	assert.Equal(t, []time.Duration{5 * time.Second, 5 * time.Second}, slept)
}

func TestRetrier_ExhaustsAttempts(t *testing.T) {
	var slept []time.Duration
	r := NewRetrier(testPolicy(), WithSleepFunc(func(d time.Duration) { slept = append(slept, d) }))

	calls := 0
	err := r.Do(context.Background(), func(ctx context.Context) error {
		calls++
		return types.NewAppError(types.ErrCodeUpstreamRateLimited, "rate limited", nil)
	})

	require.Error(t, err)
	assert.Equal(t, 3, calls)
	// No sleep after the final attempt.
	assert.Len(t, slept, 2)

	var appErr *types.AppError
	require.ErrorAs(t, err, &appErr)
	assert.Equal(t, types.ErrCodeUpstreamRateLimited, appErr.Code)
}

func TestRetrier_NoDataIsNotRetried(t *testing.T) {
	r := NewRetrier(testPolicy(), WithSleepFunc(func(time.Duration) {
		t.Fatal("should not sleep for a definitive answer")
	}))

	calls := 0
	err := r.Do(context.Background(), func(ctx context.Context) error {
		calls++
		return types.NewAppError(types.ErrCodeUpstreamNoData, "profile private", nil)
	})

	require.Error(t, err)
	assert.Equal(t, 1, calls)

	var appErr *types.AppError
	require.ErrorAs(t, err, &appErr)
	assert.Equal(t, types.ErrCodeUpstreamNoData, appErr.Code)
}

func TestRetrier_PlainErrorsAreTransient(t *testing.T) {
	var slept []time.Duration
	r := NewRetrier(testPolicy(), WithSleepFunc(func(d time.Duration) { slept = append(slept, d) }))

	calls := 0
	err := r.Do(context.Background(), func(ctx context.Context) error {
		calls++
		return errors.New("connection reset")
	})

	require.Error(t, err)
	assert.Equal(t, 3, calls)

	// Exhausted plain errors are wrapped as a structured upstream failure.
	var appErr *types.AppError
	require.ErrorAs(t, err, &appErr)
	assert.Equal(t, types.ErrCodeUpstreamUnavailable, appErr.Code)
}

func TestRetrier_AttemptGetsBoundedContext(t *testing.T) {
	r := NewRetrier(RetryPolicy{Attempts: 1, Timeout: time.Second, Backoff: 0})

	err := r.Do(context.Background(), func(ctx context.Context) error {
		deadline, ok := ctx.Deadline()
		require.True(t, ok)
		assert.LessOrEqual(t, time.Until(deadline), time.Second)
		return nil
	})
	require.NoError(t, err)
}

func TestRetrier_StopsWhenParentCancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	r := NewRetrier(testPolicy(), WithSleepFunc(func(time.Duration) {}))

	calls := 0
	err := r.Do(ctx, func(context.Context) error {
		calls++
		cancel()
		return types.NewAppError(types.ErrCodeUpstreamUnavailable, "provider down", nil)
	})

	require.Error(t, err)
	assert.Equal(t, 1, calls)
}

package scrape

import (
	"context"
	"errors"
	"time"

	"alrt/internal/types"
)

// RetryPolicy configures the retry/timeout discipline wrapping every
// external fetch. Attempts is the total number of tries, each bounded by
// Timeout; a failed attempt sleeps Backoff before the next.
type RetryPolicy struct {
	Attempts int
	Timeout  time.Duration
	Backoff  time.Duration
}

// DefaultRetryPolicy returns the standard discipline: three attempts, two
// minutes per attempt, five seconds between attempts.
func DefaultRetryPolicy() RetryPolicy {
	return RetryPolicy{
		Attempts: 3,
		Timeout:  120 * time.Second,
		Backoff:  5 * time.Second,
	}
}

// Retrier applies a RetryPolicy to DataSource calls. It is the single place
// where timeouts and transient upstream failures are converted into a
// structured error instead of propagating; worker loops record the returned
// error on the account and keep running.
type Retrier struct {
	policy  RetryPolicy
	sleepFn func(time.Duration) // injected for tests; defaults to time.Sleep
}

// RetrierOption is a functional option for configuring a Retrier.
type RetrierOption func(*Retrier)

// WithSleepFunc overrides the sleep between attempts. Intended for tests.
func WithSleepFunc(fn func(time.Duration)) RetrierOption {
	return func(r *Retrier) {
		r.sleepFn = fn
	}
}

// NewRetrier creates a Retrier with the given policy.
func NewRetrier(policy RetryPolicy, opts ...RetrierOption) *Retrier {
	if policy.Attempts < 1 {
		policy.Attempts = 1
	}
	r := &Retrier{
		policy:  policy,
		sleepFn: time.Sleep,
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Do runs fn up to the configured number of attempts. Each attempt gets a
// context bounded by the policy timeout. A nil error short-circuits
// immediately. Non-retryable errors (definitive provider answers such as
// upstream_no_data) surface on the first occurrence. After exhausting
// attempts, the last error is returned wrapped as upstream_unavailable
// unless it already is an AppError.
func (r *Retrier) Do(ctx context.Context, fn func(ctx context.Context) error) error {
	var lastErr error

	for attempt := 0; attempt < r.policy.Attempts; attempt++ {
		attemptCtx, cancel := context.WithTimeout(ctx, r.policy.Timeout)
		err := fn(attemptCtx)
		cancel()

		if err == nil {
			return nil
		}
		lastErr = err

		if !isRetryable(err) {
			return err
		}

		// Don't sleep after the final attempt.
		if attempt == r.policy.Attempts-1 {
			break
		}

		select {
		case <-ctx.Done():
			return types.NewAppError(types.ErrCodeUpstreamUnavailable,
				"fetch cancelled during retry wait", ctx.Err())
		default:
		}
		r.sleepFn(r.policy.Backoff)
	}

	var appErr *types.AppError
	if errors.As(lastErr, &appErr) {
		return appErr
	}
	return types.NewAppError(types.ErrCodeUpstreamUnavailable,
		"fetch failed after retries", lastErr)
}

// isRetryable classifies an error. Context deadline overruns and plain
// transport errors are transient; an AppError is consulted for its code.
func isRetryable(err error) bool {
	var appErr *types.AppError
	if errors.As(err, &appErr) {
		return appErr.Code.Retryable()
	}
	// Timeouts and raw transport failures are transient by default.
	return true
}

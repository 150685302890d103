package shared

import (
	"context"
	"fmt"
	"math"
	"time"
)

// RetryPolicy configures exponential backoff for platform calls.
type RetryPolicy struct {
	// MaxAttempts is the total number of tries, including the first.
	MaxAttempts int
	// BaseDelay is the wait before the second attempt.
	BaseDelay time.Duration
	// Factor multiplies the delay after every failed attempt.
	Factor float64
	// Retryable decides whether an error may be retried. Defaults to [IsRetryable].
	Retryable func(error) bool
}

// DefaultRetryPolicy returns 3 attempts with a 500ms base delay doubling each time.
func DefaultRetryPolicy() RetryPolicy {
	return RetryPolicy{MaxAttempts: 3, BaseDelay: 500 * time.Millisecond, Factor: 2}
}

// Backoff returns the delay to wait after the given failed attempt (1-based).
func (p RetryPolicy) Backoff(attempt int) time.Duration {
	if attempt < 1 {
		attempt = 1
	}
	factor := p.Factor
	if factor < 1 {
		factor = 1
	}
	return time.Duration(float64(p.BaseDelay) * math.Pow(factor, float64(attempt-1)))
}

// Retry calls fn until it succeeds, fails with a non-retryable error, or MaxAttempts is reached.
// fn receives the 1-based attempt number. Retry returns the number of attempts made and the last error.
func Retry(ctx context.Context, p RetryPolicy, fn func(attempt int) error) (int, error) {
	retryable := p.Retryable
	if retryable == nil {
		retryable = IsRetryable
	}
	maxAttempts := max(p.MaxAttempts, 1)

	var err error
	for attempt := 1; attempt <= maxAttempts; attempt++ {
		if err = fn(attempt); err == nil {
			return attempt, nil
		}

		if !retryable(err) || attempt == maxAttempts {
			return attempt, err
		}

		timer := time.NewTimer(p.Backoff(attempt))
		select {
		case <-ctx.Done():
			timer.Stop()
			return attempt, fmt.Errorf("retry cancelled: %w", ctx.Err())
		case <-timer.C:
		}
	}
	return maxAttempts, err
}

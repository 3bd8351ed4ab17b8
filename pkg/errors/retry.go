package errors

import (
	"context"
	"math"
	"time"
)

// RetryPolicy bounds how often a failed task is re-attempted and how long to wait
// between attempts.
type RetryPolicy struct {
	MaxRetries int
	Delay      time.Duration
	Multiplier float64
	MaxDelay   time.Duration
}

// DefaultRetryPolicy returns one retry after five minutes.
func DefaultRetryPolicy() RetryPolicy {
	return RetryPolicy{
		MaxRetries: 1,
		Delay:      5 * time.Minute,
		Multiplier: 1.0,
		MaxDelay:   30 * time.Minute,
	}
}

// MaxAttempts is the total number of attempts the policy allows.
func (p RetryPolicy) MaxAttempts() int {
	if p.MaxRetries < 0 {
		return 1
	}
	return p.MaxRetries + 1
}

// ShouldRetry reports whether a task that failed on attempt (1-based) gets another try.
// Errors that are not recoverable are never retried.
func (p RetryPolicy) ShouldRetry(attempt int, err error) bool {
	if attempt >= p.MaxAttempts() {
		return false
	}
	return IsRecoverable(err)
}

// DelayFor calculates the wait before the attempt following attempt (1-based).
func (p RetryPolicy) DelayFor(attempt int) time.Duration {
	if p.Delay <= 0 {
		return 0
	}
	multiplier := p.Multiplier
	if multiplier < 1 {
		multiplier = 1
	}

	delay := float64(p.Delay) * math.Pow(multiplier, float64(attempt-1))

	// Cap at max delay
	if p.MaxDelay > 0 && delay > float64(p.MaxDelay) {
		delay = float64(p.MaxDelay)
	}

	return time.Duration(delay)
}

// Wait blocks for the delay following attempt or until ctx is done.
func (p RetryPolicy) Wait(ctx context.Context, attempt int) error {
	delay := p.DelayFor(attempt)
	if delay == 0 {
		return ctx.Err()
	}

	timer := time.NewTimer(delay)
	defer timer.Stop()

	select {
	case <-timer.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

package resilience

import (
	"context"
	"crypto/rand"
	"fmt"
	"math/big"
	"time"

	"cvmatcher/internal/errors"
)

// RetryPolicy bounds how often and how patiently an operation is retried.
type RetryPolicy struct {
	MaxRetries int           // attempts after the first one
	BaseDelay  time.Duration // doubled on every retry
	MaxDelay   time.Duration
	Retryable  func(error) bool // nil retries every error
}

// Retry runs fn until it succeeds, returns a non-retryable error, the
// retries are exhausted or ctx is done.
func Retry[T any](ctx context.Context, policy RetryPolicy, operation string, logger *errors.Logger, fn func() (T, error)) (T, error) {
	var (
		zero    T
		lastErr error
	)

	for attempt := 0; attempt <= policy.MaxRetries; attempt++ {
		if attempt > 0 {
			if logger != nil {
				logger.Warn("Retrying operation",
					"operation", operation,
					"attempt", attempt,
					"max_retries", policy.MaxRetries,
					"error", lastErr.Error())
			}

			timer := time.NewTimer(policy.backoff(attempt))
			select {
			case <-ctx.Done():
				timer.Stop()
				return zero, ctx.Err()
			case <-timer.C:
			}
		}

		result, err := fn()
		if err == nil {
			if attempt > 0 && logger != nil {
				logger.Info("Operation succeeded after retry",
					"operation", operation,
					"total_attempts", attempt+1)
			}
			return result, nil
		}
		lastErr = err

		if policy.Retryable != nil && !policy.Retryable(err) {
			break
		}
	}

	return zero, fmt.Errorf("operation '%s' failed: %w", operation, lastErr)
}

// backoff returns the exponential delay for attempt plus up to 10% jitter,
// capped at MaxDelay.
func (p RetryPolicy) backoff(attempt int) time.Duration {
	base := p.BaseDelay
	if base <= 0 {
		base = time.Second
	}
	delay := base << (attempt - 1)

	if jitterMax := int64(delay) / 10; jitterMax > 0 {
		if jitter, err := rand.Int(rand.Reader, big.NewInt(jitterMax)); err == nil {
			delay += time.Duration(jitter.Int64())
		}
	}

	maxDelay := p.MaxDelay
	if maxDelay <= 0 {
		maxDelay = 30 * time.Second
	}
	return min(delay, maxDelay)
}

// Poll calls fn up to attempts times with a fixed delay between calls and
// returns nil on the first success. It is meant for waiting on a dependency
// during startup.
func Poll(ctx context.Context, attempts int, delay time.Duration, fn func(attempt int) error) error {
	var lastErr error
	for attempt := 1; attempt <= attempts; attempt++ {
		if lastErr = fn(attempt); lastErr == nil {
			return nil
		}
		if attempt == attempts {
			break
		}
		timer := time.NewTimer(delay)
		select {
		case <-ctx.Done():
			timer.Stop()
			return ctx.Err()
		case <-timer.C:
		}
	}
	return fmt.Errorf("not available after %d attempts: %w", attempts, lastErr)
}

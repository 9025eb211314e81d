// Package resilience guards calls to external services with circuit
// breakers and bounded retries.
package resilience

import (
	stderrors "errors"

	"github.com/sony/gobreaker/v2"

	"cvmatcher/internal/config"
	"cvmatcher/internal/errors"
)

// ErrOpenState is returned while the breaker refuses calls.
var ErrOpenState = gobreaker.ErrOpenState

// ErrTooManyRequests is returned when a half-open breaker is saturated.
var ErrTooManyRequests = gobreaker.ErrTooManyRequests

// Breaker wraps calls returning T with the circuit breaker pattern.
// A nil Breaker passes calls straight through.
type Breaker[T any] struct {
	cb *gobreaker.CircuitBreaker[T]
}

// NewBreaker creates a breaker named after the dependency it protects, or
// nil when breaking is disabled. Only errors for which isFailure reports
// true count against the breaker; a nil isFailure counts every error.
func NewBreaker[T any](name string, cfg config.CircuitBreakerConfig, logger *errors.Logger, isFailure func(error) bool) *Breaker[T] {
	if !cfg.Enabled {
		return nil
	}

	settings := gobreaker.Settings{
		Name:        name,
		MaxRequests: cfg.MaxRequests,
		Interval:    cfg.Interval,
		Timeout:     cfg.Timeout,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			if counts.Requests == 0 {
				return false
			}
			failureRatio := float64(counts.TotalFailures) / float64(counts.Requests)
			return counts.Requests >= cfg.MinRequests &&
				failureRatio >= cfg.FailureThreshold
		},
		IsSuccessful: func(err error) bool {
			if err == nil {
				return true
			}
			return isFailure != nil && !isFailure(err)
		},
		OnStateChange: func(name string, from gobreaker.State, to gobreaker.State) {
			if logger == nil {
				return
			}
			logger.Info("Circuit breaker state changed",
				"name", name,
				"from", from.String(),
				"to", to.String(),
				"failure_threshold", cfg.FailureThreshold)
		},
	}

	return &Breaker[T]{cb: gobreaker.NewCircuitBreaker[T](settings)}
}

// Execute runs fn under breaker protection.
func (b *Breaker[T]) Execute(fn func() (T, error)) (T, error) {
	if b == nil || b.cb == nil {
		return fn()
	}
	return b.cb.Execute(fn)
}

// Stats returns breaker state for the stats endpoint.
func (b *Breaker[T]) Stats() map[string]any {
	if b == nil || b.cb == nil {
		return map[string]any{"enabled": false}
	}
	return map[string]any{
		"name":    b.cb.Name(),
		"state":   b.cb.State().String(),
		"counts":  b.cb.Counts(),
		"enabled": true,
	}
}

// IsHealthy reports whether the breaker is closed.
func (b *Breaker[T]) IsHealthy() bool {
	if b == nil || b.cb == nil {
		return true
	}
	return b.cb.State() == gobreaker.StateClosed
}

// IsOpen reports whether err was produced by a breaker refusing the call.
func IsOpen(err error) bool {
	return stderrors.Is(err, ErrOpenState) || stderrors.Is(err, ErrTooManyRequests)
}

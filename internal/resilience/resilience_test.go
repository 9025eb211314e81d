package resilience

import (
	"context"
	"fmt"
	"testing"
	"time"

	"cvmatcher/internal/config"
)

func TestBreakerDisabledPassesThrough(t *testing.T) {
	b := NewBreaker[int]("test", config.CircuitBreakerConfig{Enabled: false}, nil, nil)
	if b != nil {
		t.Fatal("expected nil breaker when disabled")
	}

	got, err := b.Execute(func() (int, error) { return 7, nil })
	if err != nil || got != 7 {
		t.Fatalf("Execute() = %d, %v", got, err)
	}
	if !b.IsHealthy() {
		t.Error("nil breaker should report healthy")
	}
	if b.Stats()["enabled"] != false {
		t.Errorf("Stats() = %v", b.Stats())
	}
}

func TestBreakerOpensAfterFailures(t *testing.T) {
	b := NewBreaker[string]("vector-store", config.CircuitBreakerConfig{
		Enabled:          true,
		MaxRequests:      1,
		Interval:         time.Minute,
		Timeout:          time.Minute,
		MinRequests:      3,
		FailureThreshold: 0.5,
	}, nil, nil)

	failing := func() (string, error) { return "", fmt.Errorf("connection refused") }
	for i := 0; i < 3; i++ {
		if _, err := b.Execute(failing); err == nil {
			t.Fatal("expected failure")
		}
	}

	if b.IsHealthy() {
		t.Fatal("breaker should be open after 3 failures")
	}

	called := false
	_, err := b.Execute(func() (string, error) { called = true; return "ok", nil })
	if called {
		t.Error("open breaker must not call through")
	}
	if !IsOpen(err) {
		t.Errorf("expected open-state error, got %v", err)
	}
	if !IsOpen(fmt.Errorf("upsert: %w", err)) {
		t.Error("IsOpen should see through wrapping")
	}
	if b.Stats()["state"] != "open" {
		t.Errorf("state = %v", b.Stats()["state"])
	}
}

func TestBreakerCountsOnlyClassifiedFailures(t *testing.T) {
	errDown := fmt.Errorf("connection refused")
	b := NewBreaker[string]("embedding", config.CircuitBreakerConfig{
		Enabled:          true,
		MaxRequests:      1,
		Interval:         time.Minute,
		Timeout:          time.Minute,
		MinRequests:      2,
		FailureThreshold: 0.5,
	}, nil, func(err error) bool { return err == errDown })

	rejected := func() (string, error) { return "", fmt.Errorf("bad input") }
	for i := 0; i < 5; i++ {
		if _, err := b.Execute(rejected); err == nil || IsOpen(err) {
			t.Fatalf("call %d: err = %v, want the rejection", i, err)
		}
	}
	if !b.IsHealthy() {
		t.Fatal("rejected requests must not open the breaker")
	}

	// Fresh breaker so earlier successes do not dilute the ratio.
	b = NewBreaker[string]("embedding", config.CircuitBreakerConfig{
		Enabled:          true,
		MaxRequests:      1,
		Interval:         time.Minute,
		Timeout:          time.Minute,
		MinRequests:      2,
		FailureThreshold: 0.5,
	}, nil, func(err error) bool { return err == errDown })
	for i := 0; i < 2; i++ {
		_, _ = b.Execute(func() (string, error) { return "", errDown })
	}
	if b.IsHealthy() {
		t.Error("classified failures should open the breaker")
	}
}

func TestRetrySucceedsAfterTransientErrors(t *testing.T) {
	calls := 0
	policy := RetryPolicy{MaxRetries: 3, BaseDelay: time.Millisecond, MaxDelay: 5 * time.Millisecond}

	got, err := Retry(context.Background(), policy, "embed", nil, func() (int, error) {
		calls++
		if calls < 3 {
			return 0, fmt.Errorf("temporary")
		}
		return 42, nil
	})
	if err != nil {
		t.Fatalf("Retry: %v", err)
	}
	if got != 42 || calls != 3 {
		t.Errorf("got %d after %d calls", got, calls)
	}
}

func TestRetryStopsOnPermanentError(t *testing.T) {
	calls := 0
	permanent := fmt.Errorf("invalid api key")
	policy := RetryPolicy{
		MaxRetries: 5,
		BaseDelay:  time.Millisecond,
		Retryable:  func(err error) bool { return err != permanent },
	}

	_, err := Retry(context.Background(), policy, "embed", nil, func() (int, error) {
		calls++
		return 0, permanent
	})
	if err == nil {
		t.Fatal("expected error")
	}
	if calls != 1 {
		t.Errorf("calls = %d, want 1", calls)
	}
}

func TestRetryHonoursContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	policy := RetryPolicy{MaxRetries: 3, BaseDelay: time.Hour}
	_, err := Retry(ctx, policy, "embed", nil, func() (int, error) {
		return 0, fmt.Errorf("down")
	})
	if err != context.Canceled {
		t.Errorf("err = %v, want context.Canceled", err)
	}
}

func TestBackoffIsCapped(t *testing.T) {
	p := RetryPolicy{BaseDelay: time.Second, MaxDelay: 3 * time.Second}
	if d := p.backoff(1); d < time.Second || d > 1100*time.Millisecond {
		t.Errorf("backoff(1) = %v", d)
	}
	if d := p.backoff(10); d != 3*time.Second {
		t.Errorf("backoff(10) = %v, want cap", d)
	}
}

func TestPoll(t *testing.T) {
	t.Run("succeeds on third attempt", func(t *testing.T) {
		var seen []int
		err := Poll(context.Background(), 10, time.Millisecond, func(attempt int) error {
			seen = append(seen, attempt)
			if attempt < 3 {
				return fmt.Errorf("not ready")
			}
			return nil
		})
		if err != nil {
			t.Fatalf("Poll: %v", err)
		}
		if len(seen) != 3 {
			t.Errorf("attempts = %v", seen)
		}
	})

	t.Run("gives up after all attempts", func(t *testing.T) {
		calls := 0
		err := Poll(context.Background(), 4, time.Millisecond, func(int) error {
			calls++
			return fmt.Errorf("not ready")
		})
		if err == nil {
			t.Fatal("expected error")
		}
		if calls != 4 {
			t.Errorf("calls = %d, want 4", calls)
		}
	})
}

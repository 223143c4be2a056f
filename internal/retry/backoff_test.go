package retry

import (
	"context"
	"errors"
	"testing"
	"time"
)

func TestDelayGrowsExponentially(t *testing.T) {
	config := RetryConfig{
		BaseDelay:  10 * time.Millisecond,
		MaxDelay:   time.Second,
		Multiplier: 2.0,
		Jitter:     false,
	}

	if got := Delay(config, 0); got != 10*time.Millisecond {
		t.Errorf("attempt 0: expected 10ms, got %v", got)
	}
	if got := Delay(config, 2); got != 40*time.Millisecond {
		t.Errorf("attempt 2: expected 40ms, got %v", got)
	}
}

func TestDelayCapsAtMax(t *testing.T) {
	config := RetryConfig{
		BaseDelay:  10 * time.Millisecond,
		MaxDelay:   50 * time.Millisecond,
		Multiplier: 10.0,
		Jitter:     false,
	}

	if got := Delay(config, 5); got != 50*time.Millisecond {
		t.Errorf("expected cap at 50ms, got %v", got)
	}
}

func TestDoStopsOnNonRetryable(t *testing.T) {
	config := RetryConfig{
		MaxRetries: 5,
		BaseDelay:  time.Millisecond,
		MaxDelay:   10 * time.Millisecond,
		Multiplier: 2.0,
	}

	calls := 0
	err := Do(context.Background(), config, func() error {
		calls++
		return errors.New("schema violation")
	})

	if err == nil {
		t.Fatal("expected error")
	}
	if calls != 1 {
		t.Errorf("expected 1 call for non-retryable error, got %d", calls)
	}
}

func TestDoRetriesRetryable(t *testing.T) {
	config := RetryConfig{
		MaxRetries: 3,
		BaseDelay:  time.Millisecond,
		MaxDelay:   5 * time.Millisecond,
		Multiplier: 2.0,
	}

	calls := 0
	err := Do(context.Background(), config, func() error {
		calls++
		if calls < 3 {
			return errors.New("connection refused")
		}
		return nil
	})

	if err != nil {
		t.Fatalf("expected success, got %v", err)
	}
	if calls != 3 {
		t.Errorf("expected 3 calls, got %d", calls)
	}
}

func TestDoHonorsContext(t *testing.T) {
	config := RetryConfig{
		MaxRetries: 10,
		BaseDelay:  50 * time.Millisecond,
		MaxDelay:   time.Second,
		Multiplier: 2.0,
	}

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	calls := 0
	err := Do(ctx, config, func() error {
		calls++
		return errors.New("timeout")
	})

	if err == nil {
		t.Fatal("expected error")
	}
	if calls != 1 {
		t.Errorf("expected 1 call with cancelled context, got %d", calls)
	}
}

func TestIsRetryableError(t *testing.T) {
	if IsRetryableError(nil) {
		t.Error("nil must not be retryable")
	}
	if !IsRetryableError(errors.New("HTTP 503 Service Unavailable")) {
		t.Error("503 should be retryable")
	}
	if IsRetryableError(errors.New("invalid api key")) {
		t.Error("auth failures should not be retryable")
	}
}

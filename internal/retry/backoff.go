package retry

import (
	"context"
	"math"
	"math/rand"
	"strings"
	"time"

	"github.com/YudoTLE/VelonY-sub000/internal/logging"
)

var log = logging.Component("retry")

// RetryConfig configures retry behavior with exponential backoff.
type RetryConfig struct {
	MaxRetries int           `json:"max_retries"`
	BaseDelay  time.Duration `json:"base_delay"`
	MaxDelay   time.Duration `json:"max_delay"`
	Multiplier float64       `json:"multiplier"`
	Jitter     bool          `json:"jitter"`
}

// DefaultRetryConfig returns a retry configuration with sensible defaults.
func DefaultRetryConfig() RetryConfig {
	return RetryConfig{
		MaxRetries: 3,
		BaseDelay:  1 * time.Second,
		MaxDelay:   30 * time.Second,
		Multiplier: 2.0,
		Jitter:     true,
	}
}

// StreamRetryConfig returns a retry configuration for opening model
// provider streams. Only stream opens are retried; a stream that already
// produced output is never replayed.
func StreamRetryConfig(maxRetries int) RetryConfig {
	if maxRetries < 0 {
		maxRetries = 0
	}
	return RetryConfig{
		MaxRetries: maxRetries,
		BaseDelay:  2 * time.Second,
		MaxDelay:   60 * time.Second,
		Multiplier: 2.5,
		Jitter:     true,
	}
}

// Do executes an operation, retrying retryable failures with exponential
// backoff until the attempts are exhausted or the context ends. The last
// error is returned.
func Do(ctx context.Context, config RetryConfig, op func() error) error {
	var lastErr error

	for attempt := 0; attempt <= config.MaxRetries; attempt++ {
		lastErr = op()
		if lastErr == nil {
			return nil
		}
		if attempt >= config.MaxRetries || !IsRetryableError(lastErr) {
			return lastErr
		}
		if err := Wait(ctx, config, attempt); err != nil {
			return lastErr
		}

		log.Warn().
			Err(lastErr).
			Int("attempt", attempt+1).
			Int("max_retries", config.MaxRetries).
			Msg("retrying after failure")
	}

	return lastErr
}

// Wait sleeps for the attempt's backoff delay, returning early if the
// context ends first.
func Wait(ctx context.Context, config RetryConfig, attempt int) error {
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-time.After(Delay(config, attempt)):
		return nil
	}
}

// Delay calculates the backoff delay for the given attempt.
func Delay(config RetryConfig, attempt int) time.Duration {
	delay := float64(config.BaseDelay) * math.Pow(config.Multiplier, float64(attempt))

	if delay > float64(config.MaxDelay) {
		delay = float64(config.MaxDelay)
	}

	if config.Jitter {
		jitterRange := delay * 0.1
		delay += (rand.Float64() - 0.5) * 2 * jitterRange
		if delay < 0 {
			delay = float64(config.BaseDelay)
		}
	}

	return time.Duration(delay)
}

// IsRetryableError determines if an error is worth retrying.
func IsRetryableError(err error) bool {
	if err == nil {
		return false
	}

	errStr := strings.ToLower(err.Error())

	retryable := []string{
		"connection refused",
		"connection reset",
		"timeout",
		"temporary failure",
		"service unavailable",
		"too many requests",
		"rate limit",
		"429",
		"502",
		"503",
		"504",
		"no such host",
		"network unreachable",
		"broken pipe",
	}

	for _, fragment := range retryable {
		if strings.Contains(errStr, fragment) {
			return true
		}
	}

	return false
}

// Package retry provides call-level exponential backoff for transient
// external failures. Job-level retry is the queue's responsibility; this
// package only smooths over short-lived network and rate-limit hiccups
// within a single attempt.
package retry

import (
	"context"
	"math"
	"math/rand"
	"strings"
	"time"

	"github.com/rs/zerolog"
)

// Config controls backoff behavior.
type Config struct {
	MaxRetries int           // retry attempts after the first call
	BaseDelay  time.Duration // delay before the first retry
	MaxDelay   time.Duration // ceiling on any single delay
	Multiplier float64       // backoff growth factor
	Jitter     bool          // randomize delays to avoid thundering herd
}

// DefaultConfig suits host API calls.
func DefaultConfig() Config {
	return Config{
		MaxRetries: 3,
		BaseDelay:  1 * time.Second,
		MaxDelay:   30 * time.Second,
		Multiplier: 2.0,
		Jitter:     true,
	}
}

// LLMConfig suits model calls, which are slower and rate-limited harder.
func LLMConfig() Config {
	return Config{
		MaxRetries: 2,
		BaseDelay:  2 * time.Second,
		MaxDelay:   60 * time.Second,
		Multiplier: 2.5,
		Jitter:     true,
	}
}

// Do runs op, retrying retryable errors with exponential backoff. It returns
// nil on the first success or the last error otherwise. Non-retryable
// errors are returned immediately; context cancellation stops the loop.
func Do(ctx context.Context, cfg Config, logger zerolog.Logger, op func() error) error {
	var lastErr error

	for attempt := 0; attempt <= cfg.MaxRetries; attempt++ {
		lastErr = op()
		if lastErr == nil {
			return nil
		}

		if !IsRetryable(lastErr) || attempt == cfg.MaxRetries {
			return lastErr
		}
		if ctx.Err() != nil {
			return ctx.Err()
		}

		delay := backoffDelay(cfg, attempt)
		logger.Warn().
			Err(lastErr).
			Int("attempt", attempt+1).
			Dur("delay", delay).
			Msg("transient failure, backing off")

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(delay):
		}
	}

	return lastErr
}

func backoffDelay(cfg Config, attempt int) time.Duration {
	delay := float64(cfg.BaseDelay) * math.Pow(cfg.Multiplier, float64(attempt))
	if delay > float64(cfg.MaxDelay) {
		delay = float64(cfg.MaxDelay)
	}

	if cfg.Jitter {
		jitterRange := delay * 0.1
		delay += (rand.Float64() - 0.5) * 2 * jitterRange
		if delay < 0 {
			delay = float64(cfg.BaseDelay)
		}
	}

	return time.Duration(delay)
}

// retryableFragments are error-text markers for failures worth retrying.
var retryableFragments = []string{
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
	"context deadline exceeded",
}

// IsRetryable reports whether err looks like a transient external failure.
func IsRetryable(err error) bool {
	if err == nil {
		return false
	}

	msg := strings.ToLower(err.Error())
	for _, fragment := range retryableFragments {
		if strings.Contains(msg, fragment) {
			return true
		}
	}
	return false
}

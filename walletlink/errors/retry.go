package errors

import (
	"context"
	"math"
	"slices"
	"time"
)

// RetryConfig controls how RetryWithConfig backs off between attempts.
// Errors outside RetryableCategories are still retried when IsRetryable says so.
type RetryConfig struct {
	MaxAttempts         int
	InitialDelay        time.Duration
	MaxDelay            time.Duration
	Multiplier          float64
	RetryableCategories []Category

	// OnRetry, when set, is called before sleeping for the next attempt.
	OnRetry func(attempt int, delay time.Duration, err error)
}

// DefaultRetryConfig retries RPC failures three times starting at one second.
func DefaultRetryConfig() *RetryConfig {
	return &RetryConfig{
		MaxAttempts:         3,
		InitialDelay:        time.Second,
		MaxDelay:            30 * time.Second,
		Multiplier:          2.0,
		RetryableCategories: []Category{CategoryRPC},
	}
}

// RetryFunc is one attempt of a retried operation
type RetryFunc func() error

// delay returns the pause after the given 1-based attempt.
func (c *RetryConfig) delay(attempt int) time.Duration {
	d := float64(c.InitialDelay) * math.Pow(c.Multiplier, float64(attempt-1))
	if c.MaxDelay > 0 && d > float64(c.MaxDelay) {
		return c.MaxDelay
	}
	return time.Duration(d)
}

func (c *RetryConfig) shouldRetry(err error) bool {
	var typed *TypedError
	if !As(err, &typed) {
		return IsRetryable(err)
	}
	return slices.Contains(c.RetryableCategories, typed.Category) || typed.IsRetryable()
}

// RetryWithConfig runs fn until it succeeds, returns a non retryable error,
// or MaxAttempts is reached. A nil config uses DefaultRetryConfig.
func RetryWithConfig(ctx context.Context, fn RetryFunc, config *RetryConfig) error {
	if config == nil {
		config = DefaultRetryConfig()
	}

	var lastErr error
	for attempt := 1; attempt <= config.MaxAttempts; attempt++ {
		if err := ctx.Err(); err != nil {
			return err
		}

		lastErr = fn()
		if lastErr == nil {
			return nil
		}
		if !config.shouldRetry(lastErr) {
			return lastErr
		}
		if attempt == config.MaxAttempts {
			break
		}

		wait := config.delay(attempt)
		if config.OnRetry != nil {
			config.OnRetry(attempt, wait, lastErr)
		}

		timer := time.NewTimer(wait)
		select {
		case <-ctx.Done():
			timer.Stop()
			return ctx.Err()
		case <-timer.C:
		}
	}

	return New(CategoryRPC, "retries_exhausted", "maximum retry attempts exceeded", lastErr).
		WithContext("attempts", config.MaxAttempts)
}

// ExponentialBackoff doubles baseDelay per attempt after the first, capped at maxDelay.
func ExponentialBackoff(attempt int, baseDelay time.Duration, maxDelay time.Duration) time.Duration {
	if attempt <= 0 {
		return baseDelay
	}
	cfg := RetryConfig{InitialDelay: baseDelay, MaxDelay: maxDelay, Multiplier: 2}
	return cfg.delay(attempt)
}

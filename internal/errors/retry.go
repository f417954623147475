package errors

import (
	"context"
	"time"

	"github.com/cenkalti/backoff/v4"
)

// RetryConfig configures retry behavior.
type RetryConfig struct {
	// MaxAttempts is the total number of attempts, including the first one.
	MaxAttempts int

	// InitialDelay is the delay before the first retry.
	InitialDelay time.Duration

	// MaxDelay caps the delay between retries.
	MaxDelay time.Duration

	// Multiplier is the factor by which delay increases after each retry.
	Multiplier float64

	// Jitter randomizes each delay by +/-50%.
	Jitter bool
}

// DefaultRetryConfig returns the provider retry policy: 1s base, x2, 30s cap, 5 attempts.
func DefaultRetryConfig() RetryConfig {
	return RetryConfig{
		MaxAttempts:  5,
		InitialDelay: 1 * time.Second,
		MaxDelay:     30 * time.Second,
		Multiplier:   2.0,
	}
}

// BackOff builds a context-bound exponential backoff from the config.
func (c RetryConfig) BackOff(ctx context.Context) backoff.BackOff {
	eb := backoff.NewExponentialBackOff()
	eb.InitialInterval = c.InitialDelay
	eb.MaxInterval = c.MaxDelay
	eb.Multiplier = c.Multiplier
	eb.MaxElapsedTime = 0
	eb.RandomizationFactor = 0
	if c.Jitter {
		eb.RandomizationFactor = 0.5
	}
	eb.Reset()

	retries := c.MaxAttempts - 1
	if retries < 0 {
		retries = 0
	}

	return backoff.WithContext(backoff.WithMaxRetries(eb, uint64(retries)), ctx)
}

// RetryWithResult runs fn until it succeeds, returns a non-retryable error,
// the attempt budget is spent, or ctx is done. Only errors flagged Retryable
// (see IsRetryable) are retried; the last error is returned unchanged.
func RetryWithResult[T any](ctx context.Context, cfg RetryConfig, fn func() (T, error), notify backoff.Notify) (T, error) {
	op := func() (T, error) {
		result, err := fn()
		if err != nil && !IsRetryable(err) {
			return result, backoff.Permanent(err)
		}
		return result, err
	}

	return backoff.RetryNotifyWithData(op, cfg.BackOff(ctx), notify)
}

// Retry is RetryWithResult for functions without a result.
func Retry(ctx context.Context, cfg RetryConfig, fn func() error, notify backoff.Notify) error {
	_, err := RetryWithResult(ctx, cfg, func() (struct{}, error) {
		return struct{}{}, fn()
	}, notify)
	return err
}

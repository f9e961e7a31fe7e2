// Copyright 2025 Keystone
// SPDX-License-Identifier: Apache-2.0

package llm

import (
	"context"
	"errors"
	"math/rand"
	"time"
)

// maxJitter bounds the random component added to each backoff sleep so
// concurrent requests retrying the same provider do not fire in lockstep.
const maxJitter = 250 * time.Millisecond

// RetryConfig configures retry behavior for one provider call.
type RetryConfig struct {
	// MaxAttempts is the total attempt budget; the initial try counts as
	// attempt 1. Values below 1 are treated as 1.
	MaxAttempts int

	// BaseDelay is the starting point for exponential backoff:
	// BaseDelay * 2^(attempt-1) before attempt N+1.
	BaseDelay time.Duration

	// Sleep is swappable for tests. Nil means a context-aware time.After wait.
	Sleep func(ctx context.Context, d time.Duration) error
}

// WithRetries executes call up to cfg.MaxAttempts times, backing off between
// attempts. A provider-supplied RetryAfter hint takes precedence over the
// exponential formula. Non-retryable errors stop immediately; the last error
// is returned once the budget is exhausted. The sleep is cancelled by ctx so
// a caller timeout never leaves a request parked in backoff.
func WithRetries(ctx context.Context, cfg RetryConfig, call func(ctx context.Context) (*ProviderResponse, error)) (*ProviderResponse, error) {
	attempts := cfg.MaxAttempts
	if attempts < 1 {
		attempts = 1
	}

	sleep := cfg.Sleep
	if sleep == nil {
		sleep = sleepWithContext
	}

	var lastErr error
	for attempt := 1; attempt <= attempts; attempt++ {
		resp, err := call(ctx)
		if err == nil {
			return resp, nil
		}
		lastErr = err

		if !isRetryableError(err) || attempt >= attempts {
			return nil, err
		}

		delay := backoffDelay(err, cfg.BaseDelay, attempt)
		if err := sleep(ctx, delay); err != nil {
			return nil, err
		}
	}

	return nil, lastErr
}

// backoffDelay computes the wait before the next attempt. The provider's
// RetryAfter hint wins when present; otherwise exponential backoff with
// bounded jitter.
func backoffDelay(err error, baseDelay time.Duration, attempt int) time.Duration {
	var provErr *ProviderError
	if errors.As(err, &provErr) && provErr.RetryAfter > 0 {
		return provErr.RetryAfter
	}

	delay := baseDelay << (attempt - 1)
	return delay + time.Duration(rand.Int63n(int64(maxJitter)))
}

// isRetryableError reports whether the error warrants another attempt
// against the same provider. Context cancellation is never retried locally:
// the caller is gone.
func isRetryableError(err error) bool {
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return false
	}
	var provErr *ProviderError
	if errors.As(err, &provErr) {
		return provErr.IsRetryable()
	}
	return false
}

func sleepWithContext(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}

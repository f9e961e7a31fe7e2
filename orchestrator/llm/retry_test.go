// Copyright 2025 Keystone
// SPDX-License-Identifier: Apache-2.0

package llm

import (
	"context"
	"testing"
	"time"
)

// recordingSleep captures requested delays without actually sleeping.
func recordingSleep(delays *[]time.Duration) func(ctx context.Context, d time.Duration) error {
	return func(ctx context.Context, d time.Duration) error {
		*delays = append(*delays, d)
		return nil
	}
}

func TestWithRetries_SuccessFirstAttempt(t *testing.T) {
	calls := 0
	resp, err := WithRetries(context.Background(), RetryConfig{MaxAttempts: 3, BaseDelay: time.Millisecond}, func(ctx context.Context) (*ProviderResponse, error) {
		calls++
		return &ProviderResponse{Content: "ok"}, nil
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if calls != 1 {
		t.Errorf("calls = %d, want 1", calls)
	}
	if resp.Content != "ok" {
		t.Errorf("content = %q, want %q", resp.Content, "ok")
	}
}

func TestWithRetries_NonRetryableStopsImmediately(t *testing.T) {
	calls := 0
	var delays []time.Duration
	_, err := WithRetries(context.Background(), RetryConfig{MaxAttempts: 3, BaseDelay: time.Millisecond, Sleep: recordingSleep(&delays)}, func(ctx context.Context) (*ProviderResponse, error) {
		calls++
		return nil, NewProviderError("openai", ErrorTypeAuth, "bad key")
	})
	if err == nil {
		t.Fatal("expected error")
	}
	if calls != 1 {
		t.Errorf("calls = %d, want 1", calls)
	}
	if len(delays) != 0 {
		t.Errorf("slept %d times, want 0", len(delays))
	}
}

func TestWithRetries_ExhaustsBudgetAndReturnsLastError(t *testing.T) {
	calls := 0
	var delays []time.Duration
	_, err := WithRetries(context.Background(), RetryConfig{MaxAttempts: 3, BaseDelay: 100 * time.Millisecond, Sleep: recordingSleep(&delays)}, func(ctx context.Context) (*ProviderResponse, error) {
		calls++
		return nil, NewProviderError("openai", ErrorTypeServer, "boom")
	})
	if err == nil {
		t.Fatal("expected error")
	}
	if calls != 3 {
		t.Errorf("calls = %d, want 3", calls)
	}
	// Two sleeps between three attempts.
	if len(delays) != 2 {
		t.Fatalf("slept %d times, want 2", len(delays))
	}
	// Exponential: base*1 then base*2, each plus jitter in [0, 250ms).
	if delays[0] < 100*time.Millisecond || delays[0] >= 100*time.Millisecond+maxJitter {
		t.Errorf("first delay %v outside [100ms, 350ms)", delays[0])
	}
	if delays[1] < 200*time.Millisecond || delays[1] >= 200*time.Millisecond+maxJitter {
		t.Errorf("second delay %v outside [200ms, 450ms)", delays[1])
	}
}

func TestWithRetries_HonorsRetryAfterHint(t *testing.T) {
	calls := 0
	var delays []time.Duration
	_, _ = WithRetries(context.Background(), RetryConfig{MaxAttempts: 2, BaseDelay: time.Millisecond, Sleep: recordingSleep(&delays)}, func(ctx context.Context) (*ProviderResponse, error) {
		calls++
		return nil, &ProviderError{
			Provider:   "anthropic",
			Type:       ErrorTypeRateLimit,
			Message:    "slow down",
			RetryAfter: 500 * time.Millisecond,
		}
	})
	if calls != 2 {
		t.Errorf("calls = %d, want 2", calls)
	}
	if len(delays) != 1 || delays[0] != 500*time.Millisecond {
		t.Errorf("delays = %v, want exactly [500ms]", delays)
	}
}

func TestWithRetries_ContextCancelledDuringSleep(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	calls := 0
	_, err := WithRetries(ctx, RetryConfig{
		MaxAttempts: 5,
		BaseDelay:   time.Millisecond,
		Sleep: func(ctx context.Context, d time.Duration) error {
			cancel()
			return ctx.Err()
		},
	}, func(ctx context.Context) (*ProviderResponse, error) {
		calls++
		return nil, NewProviderError("gemini", ErrorTypeServer, "boom")
	})
	if err != context.Canceled {
		t.Errorf("err = %v, want context.Canceled", err)
	}
	if calls != 1 {
		t.Errorf("calls = %d, want 1", calls)
	}
}

func TestWithRetries_ZeroAttemptsTreatedAsOne(t *testing.T) {
	calls := 0
	_, err := WithRetries(context.Background(), RetryConfig{MaxAttempts: 0, BaseDelay: time.Millisecond}, func(ctx context.Context) (*ProviderResponse, error) {
		calls++
		return nil, NewProviderError("openai", ErrorTypeServer, "boom")
	})
	if err == nil {
		t.Fatal("expected error")
	}
	if calls != 1 {
		t.Errorf("calls = %d, want 1", calls)
	}
}

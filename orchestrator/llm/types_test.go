// Copyright 2025 Keystone
// SPDX-License-Identifier: Apache-2.0

package llm

import (
	"errors"
	"testing"
)

func TestProviderError_IsRetryable(t *testing.T) {
	tests := []struct {
		name      string
		errType   ErrorType
		retryable bool
	}{
		{"rate limit", ErrorTypeRateLimit, true},
		{"timeout", ErrorTypeTimeout, true},
		{"server", ErrorTypeServer, true},
		{"unavailable", ErrorTypeUnavailable, true},
		{"auth", ErrorTypeAuth, false},
		{"invalid request", ErrorTypeInvalidRequest, false},
		{"unknown", ErrorTypeUnknown, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := NewProviderError("anthropic", tt.errType, "boom")
			if got := err.IsRetryable(); got != tt.retryable {
				t.Errorf("IsRetryable() for %s = %v, want %v", tt.errType, got, tt.retryable)
			}
		})
	}
}

func TestProviderError_Error(t *testing.T) {
	tests := []struct {
		name     string
		err      *ProviderError
		expected string
	}{
		{
			name:     "without status code",
			err:      &ProviderError{Provider: "openai", Type: ErrorTypeRateLimit, Message: "rate limit exceeded"},
			expected: "openai error (rate_limit): rate limit exceeded",
		},
		{
			name:     "with status code",
			err:      &ProviderError{Provider: "anthropic", Type: ErrorTypeAuth, Message: "invalid API key", StatusCode: 401},
			expected: "anthropic error (auth, status 401): invalid API key",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.err.Error(); got != tt.expected {
				t.Errorf("Error() = %q, want %q", got, tt.expected)
			}
		})
	}
}

func TestProviderError_Unwrap(t *testing.T) {
	cause := errors.New("connection refused")
	err := &ProviderError{Provider: "gemini", Type: ErrorTypeUnavailable, Message: "down", Cause: cause}

	if !errors.Is(err, cause) {
		t.Error("expected errors.Is to find the wrapped cause")
	}
}

func TestClassifyStatus(t *testing.T) {
	tests := []struct {
		status   int
		expected ErrorType
	}{
		{401, ErrorTypeAuth},
		{403, ErrorTypeAuth},
		{429, ErrorTypeRateLimit},
		{408, ErrorTypeTimeout},
		{400, ErrorTypeInvalidRequest},
		{404, ErrorTypeInvalidRequest},
		{422, ErrorTypeInvalidRequest},
		{503, ErrorTypeUnavailable},
		{500, ErrorTypeServer},
		{502, ErrorTypeServer},
		{418, ErrorTypeUnknown},
	}

	for _, tt := range tests {
		if got := ClassifyStatus(tt.status); got != tt.expected {
			t.Errorf("ClassifyStatus(%d) = %s, want %s", tt.status, got, tt.expected)
		}
	}
}

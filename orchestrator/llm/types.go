// Copyright 2025 Keystone
// SPDX-License-Identifier: Apache-2.0

// Package llm defines the unified provider abstraction for the AI core: the
// request/response types shared by every backend adapter, the normalized
// error taxonomy, bounded retry, and the per-provider circuit breaker.
package llm

import (
	"fmt"
	"time"
)

// ProviderType identifies the backend behind an adapter.
type ProviderType string

const (
	ProviderTypeAnthropic ProviderType = "anthropic"
	ProviderTypeOpenAI    ProviderType = "openai"
	ProviderTypeGemini    ProviderType = "gemini"
	ProviderTypeBedrock   ProviderType = "bedrock"

	// ProviderTypeLocal is the deterministic in-process fallback used when no
	// backend credentials are configured.
	ProviderTypeLocal ProviderType = "local"
)

// ResponseFormat constrains the shape of generated output.
type ResponseFormat string

const (
	ResponseFormatText ResponseFormat = "text"
	ResponseFormatJSON ResponseFormat = "json"
)

// ProviderRequest encapsulates one normalized completion call. Adapters map
// these fields onto their backend's wire format.
type ProviderRequest struct {
	// SystemPrompt sets model behavior. Optional.
	SystemPrompt string `json:"system_prompt,omitempty"`

	// UserPrompt is the fully interpolated (and already redacted) prompt.
	UserPrompt string `json:"user_prompt"`

	// Model is the backend model identifier to use.
	Model string `json:"model"`

	// Temperature controls randomness. 0.0 is valid (deterministic);
	// a negative value means "use the adapter default".
	Temperature float64 `json:"temperature"`

	// MaxTokens limits generation length. 0 means adapter default.
	MaxTokens int `json:"max_tokens,omitempty"`

	// Timeout bounds the outbound HTTP call for this attempt.
	Timeout time.Duration `json:"timeout,omitempty"`

	// ResponseFormat requests text or JSON output where the backend
	// supports it.
	ResponseFormat ResponseFormat `json:"response_format,omitempty"`
}

// ProviderResponse is the normalized result of a completion call.
type ProviderResponse struct {
	// Content is the generated text.
	Content string `json:"content"`

	// Model is the model that actually served the call (may differ from the
	// requested one).
	Model string `json:"model"`

	// Usage contains token counts for cost accounting.
	Usage UsageStats `json:"usage"`

	// Raw preserves backend-specific response data for debugging.
	Raw map[string]any `json:"raw,omitempty"`
}

// UsageStats tracks token usage for billing and monitoring.
type UsageStats struct {
	PromptTokens     int `json:"prompt_tokens"`
	CompletionTokens int `json:"completion_tokens"`
	TotalTokens      int `json:"total_tokens"`
}

// ErrorType classifies provider failures into the shared taxonomy. The
// orchestrator's retry and circuit decisions key off this value, never off
// backend-specific payloads.
type ErrorType string

const (
	ErrorTypeAuth           ErrorType = "auth"
	ErrorTypeRateLimit      ErrorType = "rate_limit"
	ErrorTypeTimeout        ErrorType = "timeout"
	ErrorTypeInvalidRequest ErrorType = "invalid_request"
	ErrorTypeServer         ErrorType = "server"
	ErrorTypeUnavailable    ErrorType = "unavailable"
	ErrorTypeUnknown        ErrorType = "unknown"
)

// ProviderError is the normalized error every adapter returns. Unmapped
// backend signals fall back to ErrorTypeUnknown but are still surfaced,
// never swallowed.
type ProviderError struct {
	// Provider is the name of the provider that returned the error.
	Provider string `json:"provider"`

	// Type is the taxonomy classification.
	Type ErrorType `json:"type"`

	// Message is a human-readable description.
	Message string `json:"message"`

	// StatusCode is the HTTP status, when applicable.
	StatusCode int `json:"status_code,omitempty"`

	// RetryAfter is the backend-supplied retry hint, when present.
	RetryAfter time.Duration `json:"retry_after,omitempty"`

	// Cause is the underlying error, if any.
	Cause error `json:"-"`
}

// Error implements the error interface.
func (e *ProviderError) Error() string {
	if e.StatusCode > 0 {
		return fmt.Sprintf("%s error (%s, status %d): %s", e.Provider, e.Type, e.StatusCode, e.Message)
	}
	return fmt.Sprintf("%s error (%s): %s", e.Provider, e.Type, e.Message)
}

// Unwrap returns the underlying error.
func (e *ProviderError) Unwrap() error {
	return e.Cause
}

// IsRetryable reports whether another attempt against the same provider can
// reasonably succeed. Exactly rate_limit, timeout, server, and unavailable
// qualify; auth and invalid_request never do, and unknown defaults to not
// retryable.
func (e *ProviderError) IsRetryable() bool {
	switch e.Type {
	case ErrorTypeRateLimit, ErrorTypeTimeout, ErrorTypeServer, ErrorTypeUnavailable:
		return true
	default:
		return false
	}
}

// NewProviderError creates a ProviderError without a status code.
func NewProviderError(provider string, errType ErrorType, message string) *ProviderError {
	return &ProviderError{
		Provider: provider,
		Type:     errType,
		Message:  message,
	}
}

// ClassifyStatus maps an HTTP status code to the shared taxonomy. Adapters
// use this as the baseline and refine it with backend error-type strings.
func ClassifyStatus(status int) ErrorType {
	switch {
	case status == 401 || status == 403:
		return ErrorTypeAuth
	case status == 429:
		return ErrorTypeRateLimit
	case status == 408:
		return ErrorTypeTimeout
	case status == 400 || status == 404 || status == 413 || status == 422:
		return ErrorTypeInvalidRequest
	case status == 503:
		return ErrorTypeUnavailable
	case status >= 500:
		return ErrorTypeServer
	default:
		return ErrorTypeUnknown
	}
}

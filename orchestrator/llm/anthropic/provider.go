// Copyright 2025 Keystone
// SPDX-License-Identifier: Apache-2.0

// Package anthropic provides the LLM provider adapter for Anthropic's Claude
// models over the Messages API. Backend-specific failures are mapped into
// the shared llm error taxonomy.
package anthropic

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"

	"keystone/aicore/orchestrator/llm"
)

const (
	// DefaultBaseURL is the default Anthropic API endpoint
	DefaultBaseURL = "https://api.anthropic.com"

	// DefaultAPIVersion is the Anthropic API version
	DefaultAPIVersion = "2023-06-01"

	// DefaultTimeout is the default HTTP timeout
	DefaultTimeout = 60 * time.Second

	// DefaultMaxTokens is the default max tokens for completions
	DefaultMaxTokens = 1024

	// DefaultTemperature is the default temperature for completions
	DefaultTemperature = 0.7

	// DefaultModel is used when neither the request nor config names one
	DefaultModel = "claude-3-5-sonnet-20241022"
)

// HTTPClient is an interface for HTTP client operations (enables testing)
type HTTPClient interface {
	Do(req *http.Request) (*http.Response, error)
}

// Provider implements llm.Provider for Anthropic Claude.
type Provider struct {
	apiKey     string
	baseURL    string
	apiVersion string
	model      string
	client     HTTPClient
}

// Config contains configuration for the Anthropic provider
type Config struct {
	APIKey     string        // API key; empty leaves the provider unconfigured
	BaseURL    string        // Optional: API base URL (default: https://api.anthropic.com)
	APIVersion string        // Optional: API version (default: 2023-06-01)
	Model      string        // Optional: default model
	Timeout    time.Duration // Optional: HTTP timeout (default: 60s)
}

// New creates a new Anthropic provider instance. An empty API key is valid:
// the provider reports IsConfigured() == false and is skipped by the
// orchestrator.
func New(cfg Config) *Provider {
	if cfg.BaseURL == "" {
		cfg.BaseURL = DefaultBaseURL
	}
	if cfg.APIVersion == "" {
		cfg.APIVersion = DefaultAPIVersion
	}
	if cfg.Model == "" {
		cfg.Model = DefaultModel
	}
	if cfg.Timeout == 0 {
		cfg.Timeout = DefaultTimeout
	}

	return &Provider{
		apiKey:     cfg.APIKey,
		baseURL:    cfg.BaseURL,
		apiVersion: cfg.APIVersion,
		model:      cfg.Model,
		client:     &http.Client{Timeout: cfg.Timeout},
	}
}

// Name returns the provider name
func (p *Provider) Name() string {
	return "anthropic"
}

// Type returns the provider type
func (p *Provider) Type() llm.ProviderType {
	return llm.ProviderTypeAnthropic
}

// IsConfigured reports whether an API key is present
func (p *Provider) IsConfigured() bool {
	return p.apiKey != ""
}

// DefaultModel returns the configured default model
func (p *Provider) DefaultModel() string {
	return p.model
}

// Complete generates a completion for the given request
func (p *Provider) Complete(ctx context.Context, req llm.ProviderRequest) (*llm.ProviderResponse, error) {
	model := req.Model
	if model == "" {
		model = p.model
	}

	maxTokens := req.MaxTokens
	if maxTokens <= 0 {
		maxTokens = DefaultMaxTokens
	}

	// Temperature: 0.0 is valid (deterministic), negative means unset
	temperature := req.Temperature
	if temperature < 0 {
		temperature = DefaultTemperature
	}

	userPrompt := req.UserPrompt
	if req.ResponseFormat == llm.ResponseFormatJSON {
		// The Messages API has no response_format knob; instruct instead.
		userPrompt += "\n\nRespond with valid JSON only, no prose."
	}

	apiReq := anthropicRequest{
		Model:       model,
		MaxTokens:   maxTokens,
		Temperature: &temperature,
		Messages: []anthropicMessage{
			{Role: "user", Content: userPrompt},
		},
	}
	if req.SystemPrompt != "" {
		apiReq.System = req.SystemPrompt
	}

	reqBody, err := json.Marshal(apiReq)
	if err != nil {
		return nil, &llm.ProviderError{
			Provider: p.Name(),
			Type:     llm.ErrorTypeInvalidRequest,
			Message:  fmt.Sprintf("failed to marshal request: %v", err),
			Cause:    err,
		}
	}

	if req.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, req.Timeout)
		defer cancel()
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, p.baseURL+"/v1/messages", bytes.NewBuffer(reqBody))
	if err != nil {
		return nil, &llm.ProviderError{
			Provider: p.Name(),
			Type:     llm.ErrorTypeInvalidRequest,
			Message:  fmt.Sprintf("failed to create request: %v", err),
			Cause:    err,
		}
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("x-api-key", p.apiKey)
	httpReq.Header.Set("anthropic-version", p.apiVersion)

	resp, err := p.client.Do(httpReq)
	if err != nil {
		return nil, p.transportError(err)
	}
	defer func() {
		_ = resp.Body.Close()
	}()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(resp.Body)
		return nil, p.parseAPIError(resp, body)
	}

	var apiResp anthropicResponse
	if err := json.NewDecoder(resp.Body).Decode(&apiResp); err != nil {
		return nil, &llm.ProviderError{
			Provider: p.Name(),
			Type:     llm.ErrorTypeUnknown,
			Message:  fmt.Sprintf("failed to decode response: %v", err),
			Cause:    err,
		}
	}

	var contentBuilder strings.Builder
	for _, block := range apiResp.Content {
		if block.Type == "text" {
			contentBuilder.WriteString(block.Text)
		}
	}

	return &llm.ProviderResponse{
		Content: contentBuilder.String(),
		Model:   apiResp.Model,
		Usage: llm.UsageStats{
			PromptTokens:     apiResp.Usage.InputTokens,
			CompletionTokens: apiResp.Usage.OutputTokens,
			TotalTokens:      apiResp.Usage.InputTokens + apiResp.Usage.OutputTokens,
		},
		Raw: map[string]any{
			"id":          apiResp.ID,
			"stop_reason": apiResp.StopReason,
		},
	}, nil
}

// transportError maps network-level failures into the taxonomy.
func (p *Provider) transportError(err error) *llm.ProviderError {
	errType := llm.ErrorTypeUnavailable
	if errors.Is(err, context.DeadlineExceeded) {
		errType = llm.ErrorTypeTimeout
	} else if errors.Is(err, context.Canceled) {
		errType = llm.ErrorTypeTimeout
	}
	return &llm.ProviderError{
		Provider: p.Name(),
		Type:     errType,
		Message:  err.Error(),
		Cause:    err,
	}
}

// parseAPIError maps an Anthropic error response into the taxonomy.
func (p *Provider) parseAPIError(resp *http.Response, body []byte) *llm.ProviderError {
	var errResp struct {
		Error struct {
			Type    string `json:"type"`
			Message string `json:"message"`
		} `json:"error"`
	}

	message := string(body)
	errType := llm.ClassifyStatus(resp.StatusCode)
	if err := json.Unmarshal(body, &errResp); err == nil && errResp.Error.Message != "" {
		message = errResp.Error.Message
		switch errResp.Error.Type {
		case "authentication_error", "permission_error":
			errType = llm.ErrorTypeAuth
		case "rate_limit_error":
			errType = llm.ErrorTypeRateLimit
		case "invalid_request_error":
			errType = llm.ErrorTypeInvalidRequest
		case "overloaded_error":
			errType = llm.ErrorTypeUnavailable
		case "api_error":
			errType = llm.ErrorTypeServer
		}
	}

	provErr := &llm.ProviderError{
		Provider:   p.Name(),
		Type:       errType,
		Message:    message,
		StatusCode: resp.StatusCode,
	}
	if retryAfter := resp.Header.Get("Retry-After"); retryAfter != "" {
		if secs, err := strconv.Atoi(retryAfter); err == nil && secs > 0 {
			provErr.RetryAfter = time.Duration(secs) * time.Second
		}
	}
	return provErr
}

// Internal API types

type anthropicRequest struct {
	Model       string             `json:"model"`
	Messages    []anthropicMessage `json:"messages"`
	MaxTokens   int                `json:"max_tokens"`
	System      string             `json:"system,omitempty"`
	Temperature *float64           `json:"temperature,omitempty"`
}

type anthropicMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type anthropicResponse struct {
	ID         string `json:"id"`
	Model      string `json:"model"`
	StopReason string `json:"stop_reason"`
	Content    []struct {
		Type string `json:"type"`
		Text string `json:"text"`
	} `json:"content"`
	Usage struct {
		InputTokens  int `json:"input_tokens"`
		OutputTokens int `json:"output_tokens"`
	} `json:"usage"`
}

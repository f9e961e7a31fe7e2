// Copyright 2025 Keystone
// SPDX-License-Identifier: Apache-2.0

// Package openai provides the LLM provider adapter for OpenAI's Chat
// Completions API.
package openai

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"time"

	"keystone/aicore/orchestrator/llm"
)

const (
	// DefaultBaseURL is the default OpenAI API endpoint
	DefaultBaseURL = "https://api.openai.com"

	// DefaultTimeout is the default HTTP timeout
	DefaultTimeout = 60 * time.Second

	// DefaultMaxTokens is the default max tokens for completions
	DefaultMaxTokens = 1024

	// DefaultTemperature is the default temperature for completions
	DefaultTemperature = 0.7

	// DefaultModel is used when neither the request nor config names one
	DefaultModel = "gpt-4o-mini"
)

// HTTPClient is an interface for HTTP client operations (enables testing)
type HTTPClient interface {
	Do(req *http.Request) (*http.Response, error)
}

// Provider implements llm.Provider for OpenAI.
type Provider struct {
	apiKey  string
	baseURL string
	model   string
	client  HTTPClient
}

// Config contains configuration for the OpenAI provider
type Config struct {
	APIKey  string        // API key; empty leaves the provider unconfigured
	BaseURL string        // Optional: API base URL
	Model   string        // Optional: default model
	Timeout time.Duration // Optional: HTTP timeout (default: 60s)
}

// New creates a new OpenAI provider instance.
func New(cfg Config) *Provider {
	if cfg.BaseURL == "" {
		cfg.BaseURL = DefaultBaseURL
	}
	if cfg.Model == "" {
		cfg.Model = DefaultModel
	}
	if cfg.Timeout == 0 {
		cfg.Timeout = DefaultTimeout
	}

	return &Provider{
		apiKey:  cfg.APIKey,
		baseURL: cfg.BaseURL,
		model:   cfg.Model,
		client:  &http.Client{Timeout: cfg.Timeout},
	}
}

// Name returns the provider name
func (p *Provider) Name() string {
	return "openai"
}

// Type returns the provider type
func (p *Provider) Type() llm.ProviderType {
	return llm.ProviderTypeOpenAI
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

	temperature := req.Temperature
	if temperature < 0 {
		temperature = DefaultTemperature
	}

	messages := make([]chatMessage, 0, 2)
	if req.SystemPrompt != "" {
		messages = append(messages, chatMessage{Role: "system", Content: req.SystemPrompt})
	}
	messages = append(messages, chatMessage{Role: "user", Content: req.UserPrompt})

	apiReq := chatRequest{
		Model:       model,
		Messages:    messages,
		MaxTokens:   maxTokens,
		Temperature: &temperature,
	}
	if req.ResponseFormat == llm.ResponseFormatJSON {
		apiReq.ResponseFormat = &responseFormat{Type: "json_object"}
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

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, p.baseURL+"/v1/chat/completions", bytes.NewBuffer(reqBody))
	if err != nil {
		return nil, &llm.ProviderError{
			Provider: p.Name(),
			Type:     llm.ErrorTypeInvalidRequest,
			Message:  fmt.Sprintf("failed to create request: %v", err),
			Cause:    err,
		}
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("Authorization", "Bearer "+p.apiKey)

	resp, err := p.client.Do(httpReq)
	if err != nil {
		errType := llm.ErrorTypeUnavailable
		if errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled) {
			errType = llm.ErrorTypeTimeout
		}
		return nil, &llm.ProviderError{
			Provider: p.Name(),
			Type:     errType,
			Message:  err.Error(),
			Cause:    err,
		}
	}
	defer func() {
		_ = resp.Body.Close()
	}()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(resp.Body)
		return nil, p.parseAPIError(resp, body)
	}

	var apiResp chatResponse
	if err := json.NewDecoder(resp.Body).Decode(&apiResp); err != nil {
		return nil, &llm.ProviderError{
			Provider: p.Name(),
			Type:     llm.ErrorTypeUnknown,
			Message:  fmt.Sprintf("failed to decode response: %v", err),
			Cause:    err,
		}
	}

	if len(apiResp.Choices) == 0 {
		return nil, &llm.ProviderError{
			Provider: p.Name(),
			Type:     llm.ErrorTypeUnknown,
			Message:  "response contained no choices",
		}
	}

	return &llm.ProviderResponse{
		Content: apiResp.Choices[0].Message.Content,
		Model:   apiResp.Model,
		Usage: llm.UsageStats{
			PromptTokens:     apiResp.Usage.PromptTokens,
			CompletionTokens: apiResp.Usage.CompletionTokens,
			TotalTokens:      apiResp.Usage.TotalTokens,
		},
		Raw: map[string]any{
			"id":            apiResp.ID,
			"finish_reason": apiResp.Choices[0].FinishReason,
		},
	}, nil
}

// parseAPIError maps an OpenAI error response into the taxonomy.
func (p *Provider) parseAPIError(resp *http.Response, body []byte) *llm.ProviderError {
	var errResp struct {
		Error struct {
			Type    string `json:"type"`
			Code    string `json:"code"`
			Message string `json:"message"`
		} `json:"error"`
	}

	message := string(body)
	errType := llm.ClassifyStatus(resp.StatusCode)
	if err := json.Unmarshal(body, &errResp); err == nil && errResp.Error.Message != "" {
		message = errResp.Error.Message
		switch errResp.Error.Type {
		case "invalid_request_error":
			errType = llm.ErrorTypeInvalidRequest
		case "authentication_error":
			errType = llm.ErrorTypeAuth
		case "rate_limit_error", "tokens":
			errType = llm.ErrorTypeRateLimit
		case "server_error":
			errType = llm.ErrorTypeServer
		}
		if errResp.Error.Code == "insufficient_quota" {
			errType = llm.ErrorTypeRateLimit
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

type chatRequest struct {
	Model          string          `json:"model"`
	Messages       []chatMessage   `json:"messages"`
	MaxTokens      int             `json:"max_tokens,omitempty"`
	Temperature    *float64        `json:"temperature,omitempty"`
	ResponseFormat *responseFormat `json:"response_format,omitempty"`
}

type responseFormat struct {
	Type string `json:"type"`
}

type chatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type chatResponse struct {
	ID      string `json:"id"`
	Model   string `json:"model"`
	Choices []struct {
		Message      chatMessage `json:"message"`
		FinishReason string      `json:"finish_reason"`
	} `json:"choices"`
	Usage struct {
		PromptTokens     int `json:"prompt_tokens"`
		CompletionTokens int `json:"completion_tokens"`
		TotalTokens      int `json:"total_tokens"`
	} `json:"usage"`
}

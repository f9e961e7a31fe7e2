// Copyright 2025 Keystone
// SPDX-License-Identifier: Apache-2.0

// Package gemini provides the LLM provider adapter for Google's Gemini
// models over the generateContent API.
package gemini

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"keystone/aicore/orchestrator/llm"
)

const (
	// DefaultBaseURL is the default Gemini API endpoint.
	DefaultBaseURL = "https://generativelanguage.googleapis.com"

	// DefaultAPIVersion is the Gemini API version.
	DefaultAPIVersion = "v1beta"

	// DefaultTimeout is the default HTTP timeout.
	DefaultTimeout = 60 * time.Second

	// DefaultMaxTokens is the default max output tokens for completions.
	DefaultMaxTokens = 1024

	// DefaultTemperature is the default temperature for completions.
	DefaultTemperature = 0.7

	// DefaultModel is used when neither the request nor config names one.
	DefaultModel = "gemini-2.0-flash"
)

// HTTPClient is an interface for HTTP client operations (enables testing).
type HTTPClient interface {
	Do(req *http.Request) (*http.Response, error)
}

// Provider implements llm.Provider for Google Gemini.
type Provider struct {
	apiKey     string
	baseURL    string
	apiVersion string
	model      string
	client     HTTPClient
}

// Config contains configuration for the Gemini provider.
type Config struct {
	APIKey     string        // API key; empty leaves the provider unconfigured
	BaseURL    string        // Optional: API base URL
	APIVersion string        // Optional: API version (default: v1beta)
	Model      string        // Optional: default model
	Timeout    time.Duration // Optional: HTTP timeout (default: 60s)
}

// New creates a new Gemini provider instance.
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

// Name returns the provider name.
func (p *Provider) Name() string {
	return "gemini"
}

// Type returns the provider type.
func (p *Provider) Type() llm.ProviderType {
	return llm.ProviderTypeGemini
}

// IsConfigured reports whether an API key is present.
func (p *Provider) IsConfigured() bool {
	return p.apiKey != ""
}

// DefaultModel returns the configured default model.
func (p *Provider) DefaultModel() string {
	return p.model
}

// Complete generates a completion for the given request.
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

	apiReq := generateRequest{
		Contents: []content{
			{Role: "user", Parts: []part{{Text: req.UserPrompt}}},
		},
		GenerationConfig: &generationConfig{
			Temperature:     &temperature,
			MaxOutputTokens: maxTokens,
		},
	}
	if req.SystemPrompt != "" {
		apiReq.SystemInstruction = &content{Parts: []part{{Text: req.SystemPrompt}}}
	}
	if req.ResponseFormat == llm.ResponseFormatJSON {
		apiReq.GenerationConfig.ResponseMIMEType = "application/json"
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

	url := fmt.Sprintf("%s/%s/models/%s:generateContent", p.baseURL, p.apiVersion, model)
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewBuffer(reqBody))
	if err != nil {
		return nil, &llm.ProviderError{
			Provider: p.Name(),
			Type:     llm.ErrorTypeInvalidRequest,
			Message:  fmt.Sprintf("failed to create request: %v", err),
			Cause:    err,
		}
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("x-goog-api-key", p.apiKey)

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
		return nil, p.parseAPIError(resp.StatusCode, body)
	}

	var apiResp generateResponse
	if err := json.NewDecoder(resp.Body).Decode(&apiResp); err != nil {
		return nil, &llm.ProviderError{
			Provider: p.Name(),
			Type:     llm.ErrorTypeUnknown,
			Message:  fmt.Sprintf("failed to decode response: %v", err),
			Cause:    err,
		}
	}

	if len(apiResp.Candidates) == 0 {
		return nil, &llm.ProviderError{
			Provider: p.Name(),
			Type:     llm.ErrorTypeUnknown,
			Message:  "response contained no candidates",
		}
	}

	var contentBuilder strings.Builder
	for _, pt := range apiResp.Candidates[0].Content.Parts {
		contentBuilder.WriteString(pt.Text)
	}

	return &llm.ProviderResponse{
		Content: contentBuilder.String(),
		Model:   model,
		Usage: llm.UsageStats{
			PromptTokens:     apiResp.UsageMetadata.PromptTokenCount,
			CompletionTokens: apiResp.UsageMetadata.CandidatesTokenCount,
			TotalTokens:      apiResp.UsageMetadata.TotalTokenCount,
		},
		Raw: map[string]any{
			"finish_reason": apiResp.Candidates[0].FinishReason,
		},
	}, nil
}

// retryInfoType is the google.rpc detail carrying the backoff hint on
// RESOURCE_EXHAUSTED responses.
const retryInfoType = "type.googleapis.com/google.rpc.RetryInfo"

// parseAPIError maps a Gemini error response into the taxonomy. Gemini
// carries its retry hint inside the error details rather than a Retry-After
// header; it is surfaced as RetryAfter so backoff honors it.
func (p *Provider) parseAPIError(statusCode int, body []byte) *llm.ProviderError {
	var errResp struct {
		Error struct {
			Code    int    `json:"code"`
			Status  string `json:"status"`
			Message string `json:"message"`
			Details []struct {
				Type       string `json:"@type"`
				RetryDelay string `json:"retryDelay"`
			} `json:"details"`
		} `json:"error"`
	}

	message := string(body)
	errType := llm.ClassifyStatus(statusCode)
	var retryAfter time.Duration
	if err := json.Unmarshal(body, &errResp); err == nil && errResp.Error.Message != "" {
		message = errResp.Error.Message
		switch errResp.Error.Status {
		case "UNAUTHENTICATED", "PERMISSION_DENIED":
			errType = llm.ErrorTypeAuth
		case "RESOURCE_EXHAUSTED":
			errType = llm.ErrorTypeRateLimit
		case "INVALID_ARGUMENT", "FAILED_PRECONDITION":
			errType = llm.ErrorTypeInvalidRequest
		case "UNAVAILABLE":
			errType = llm.ErrorTypeUnavailable
		case "DEADLINE_EXCEEDED":
			errType = llm.ErrorTypeTimeout
		case "INTERNAL":
			errType = llm.ErrorTypeServer
		}
		for _, detail := range errResp.Error.Details {
			if detail.Type != retryInfoType || detail.RetryDelay == "" {
				continue
			}
			// RetryDelay is a protobuf Duration string such as "30s" or
			// "0.5s", which time.ParseDuration accepts directly.
			if d, err := time.ParseDuration(detail.RetryDelay); err == nil && d > 0 {
				retryAfter = d
			}
		}
	}

	return &llm.ProviderError{
		Provider:   p.Name(),
		Type:       errType,
		Message:    message,
		StatusCode: statusCode,
		RetryAfter: retryAfter,
	}
}

// Internal API types

type generateRequest struct {
	Contents          []content         `json:"contents"`
	SystemInstruction *content          `json:"systemInstruction,omitempty"`
	GenerationConfig  *generationConfig `json:"generationConfig,omitempty"`
}

type content struct {
	Role  string `json:"role,omitempty"`
	Parts []part `json:"parts"`
}

type part struct {
	Text string `json:"text"`
}

type generationConfig struct {
	Temperature      *float64 `json:"temperature,omitempty"`
	MaxOutputTokens  int      `json:"maxOutputTokens,omitempty"`
	ResponseMIMEType string   `json:"responseMimeType,omitempty"`
}

type generateResponse struct {
	Candidates []struct {
		Content      content `json:"content"`
		FinishReason string  `json:"finishReason"`
	} `json:"candidates"`
	UsageMetadata struct {
		PromptTokenCount     int `json:"promptTokenCount"`
		CandidatesTokenCount int `json:"candidatesTokenCount"`
		TotalTokenCount      int `json:"totalTokenCount"`
	} `json:"usageMetadata"`
}

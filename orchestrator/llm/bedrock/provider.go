// Copyright 2025 Keystone
// SPDX-License-Identifier: Apache-2.0

// Package bedrock provides the LLM provider adapter for AWS Bedrock managed
// models through the Bedrock Runtime InvokeModel API. It speaks the
// Anthropic messages payload, which covers the Claude model family Keystone
// deploys on Bedrock.
package bedrock

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/bedrockruntime"
	"github.com/aws/smithy-go"

	"keystone/aicore/orchestrator/llm"
)

const (
	// DefaultMaxTokens is the default max tokens for completions.
	DefaultMaxTokens = 1024

	// DefaultTemperature is the default temperature for completions.
	DefaultTemperature = 0.7

	// DefaultModel is used when neither the request nor config names one.
	DefaultModel = "anthropic.claude-3-5-sonnet-20241022-v2:0"

	// anthropicVersion is the Bedrock-specific Anthropic payload version.
	anthropicVersion = "bedrock-2023-05-31"
)

// RuntimeClient is the subset of the Bedrock Runtime API the adapter uses
// (enables testing).
type RuntimeClient interface {
	InvokeModel(ctx context.Context, params *bedrockruntime.InvokeModelInput, optFns ...func(*bedrockruntime.Options)) (*bedrockruntime.InvokeModelOutput, error)
}

// Provider implements llm.Provider for AWS Bedrock.
type Provider struct {
	region string
	model  string
	client RuntimeClient
}

// Config contains configuration for the Bedrock provider.
type Config struct {
	Region string // AWS region; empty leaves the provider unconfigured
	Model  string // Optional: default model id
}

// New creates a new Bedrock provider. Credentials come from the standard AWS
// chain (env, shared config, IAM role); only the region is required here. An
// empty region leaves the provider unconfigured and skipped by the
// orchestrator.
func New(ctx context.Context, cfg Config) (*Provider, error) {
	if cfg.Model == "" {
		cfg.Model = DefaultModel
	}

	p := &Provider{
		region: cfg.Region,
		model:  cfg.Model,
	}

	if cfg.Region != "" {
		awsCfg, err := awsconfig.LoadDefaultConfig(ctx, awsconfig.WithRegion(cfg.Region))
		if err != nil {
			return nil, fmt.Errorf("failed to load AWS config: %w", err)
		}
		p.client = bedrockruntime.NewFromConfig(awsCfg)
	}

	return p, nil
}

// Name returns the provider name.
func (p *Provider) Name() string {
	return "bedrock"
}

// Type returns the provider type.
func (p *Provider) Type() llm.ProviderType {
	return llm.ProviderTypeBedrock
}

// IsConfigured reports whether a region (and thus a runtime client) is set.
func (p *Provider) IsConfigured() bool {
	return p.region != "" && p.client != nil
}

// DefaultModel returns the configured default model.
func (p *Provider) DefaultModel() string {
	return p.model
}

// Complete generates a completion for the given request.
func (p *Provider) Complete(ctx context.Context, req llm.ProviderRequest) (*llm.ProviderResponse, error) {
	if !p.IsConfigured() {
		return nil, llm.NewProviderError(p.Name(), llm.ErrorTypeAuth, "bedrock provider is not configured")
	}

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

	userPrompt := req.UserPrompt
	if req.ResponseFormat == llm.ResponseFormatJSON {
		userPrompt += "\n\nRespond with valid JSON only, no prose."
	}

	payload := invokePayload{
		AnthropicVersion: anthropicVersion,
		MaxTokens:        maxTokens,
		Temperature:      &temperature,
		Messages: []invokeMessage{
			{Role: "user", Content: userPrompt},
		},
	}
	if req.SystemPrompt != "" {
		payload.System = req.SystemPrompt
	}

	body, err := json.Marshal(payload)
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

	out, err := p.client.InvokeModel(ctx, &bedrockruntime.InvokeModelInput{
		ModelId:     aws.String(model),
		Body:        body,
		ContentType: aws.String("application/json"),
		Accept:      aws.String("application/json"),
	})
	if err != nil {
		return nil, p.mapInvokeError(err)
	}

	var apiResp invokeResponse
	if err := json.Unmarshal(out.Body, &apiResp); err != nil {
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
		Model:   model,
		Usage: llm.UsageStats{
			PromptTokens:     apiResp.Usage.InputTokens,
			CompletionTokens: apiResp.Usage.OutputTokens,
			TotalTokens:      apiResp.Usage.InputTokens + apiResp.Usage.OutputTokens,
		},
		Raw: map[string]any{
			"stop_reason": apiResp.StopReason,
		},
	}, nil
}

// mapInvokeError maps AWS SDK errors into the taxonomy using the smithy
// error code.
func (p *Provider) mapInvokeError(err error) *llm.ProviderError {
	errType := llm.ErrorTypeUnknown

	if errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled) {
		errType = llm.ErrorTypeTimeout
	}

	var apiErr smithy.APIError
	if errors.As(err, &apiErr) {
		switch apiErr.ErrorCode() {
		case "ThrottlingException", "TooManyRequestsException":
			errType = llm.ErrorTypeRateLimit
		case "AccessDeniedException", "UnrecognizedClientException", "ExpiredTokenException":
			errType = llm.ErrorTypeAuth
		case "ValidationException", "ResourceNotFoundException":
			errType = llm.ErrorTypeInvalidRequest
		case "ModelTimeoutException":
			errType = llm.ErrorTypeTimeout
		case "ServiceUnavailableException", "ModelNotReadyException":
			errType = llm.ErrorTypeUnavailable
		case "InternalServerException":
			errType = llm.ErrorTypeServer
		}
	}

	return &llm.ProviderError{
		Provider: p.Name(),
		Type:     errType,
		Message:  err.Error(),
		Cause:    err,
	}
}

// Internal payload types (Anthropic-on-Bedrock wire format)

type invokePayload struct {
	AnthropicVersion string          `json:"anthropic_version"`
	MaxTokens        int             `json:"max_tokens"`
	System           string          `json:"system,omitempty"`
	Temperature      *float64        `json:"temperature,omitempty"`
	Messages         []invokeMessage `json:"messages"`
}

type invokeMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type invokeResponse struct {
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

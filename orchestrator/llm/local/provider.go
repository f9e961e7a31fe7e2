// Copyright 2025 Keystone
// SPDX-License-Identifier: Apache-2.0

// Package local provides a deterministic in-process provider used when no
// backend credentials are configured. It never leaves the process, so the
// system is runnable with zero configuration: development environments and
// CI get stable, obviously-synthetic completions instead of hard failures.
package local

import (
	"context"
	"fmt"
	"strings"

	"keystone/aicore/orchestrator/llm"
)

// Provider implements llm.Provider with canned deterministic output.
type Provider struct{}

// New creates the local fallback provider.
func New() *Provider {
	return &Provider{}
}

// Name returns the provider name.
func (p *Provider) Name() string {
	return "local"
}

// Type returns the provider type.
func (p *Provider) Type() llm.ProviderType {
	return llm.ProviderTypeLocal
}

// IsConfigured always reports true; the local provider needs nothing.
func (p *Provider) IsConfigured() bool {
	return true
}

// DefaultModel returns the synthetic model name.
func (p *Provider) DefaultModel() string {
	return "local-deterministic-v1"
}

// Complete returns a deterministic response derived from the prompt. Token
// counts use the rough 4-characters-per-token heuristic so downstream cost
// accounting exercises the same paths as a real provider (priced at zero).
func (p *Provider) Complete(ctx context.Context, req llm.ProviderRequest) (*llm.ProviderResponse, error) {
	if err := ctx.Err(); err != nil {
		return nil, &llm.ProviderError{
			Provider: p.Name(),
			Type:     llm.ErrorTypeTimeout,
			Message:  err.Error(),
			Cause:    err,
		}
	}

	var content string
	if req.ResponseFormat == llm.ResponseFormatJSON {
		content = `{"generated":false,"reason":"no AI provider configured"}`
	} else {
		content = fmt.Sprintf(
			"[AI unavailable] No language model provider is configured. Request summary: %s",
			truncate(req.UserPrompt, 200),
		)
	}

	promptTokens := (len(req.SystemPrompt) + len(req.UserPrompt)) / 4
	completionTokens := len(content) / 4

	return &llm.ProviderResponse{
		Content: content,
		Model:   p.DefaultModel(),
		Usage: llm.UsageStats{
			PromptTokens:     promptTokens,
			CompletionTokens: completionTokens,
			TotalTokens:      promptTokens + completionTokens,
		},
	}, nil
}

func truncate(s string, n int) string {
	s = strings.TrimSpace(s)
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}

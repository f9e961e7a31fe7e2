// Copyright 2025 Keystone
// SPDX-License-Identifier: Apache-2.0

// Package orchestrator composes the AI core: it resolves the prompt for a
// feature, applies PII guardrails, walks the provider list in priority order
// with retry and circuit breaking, restores redacted values in the output,
// prices the usage, and routes review-gated content through the approval
// gate.
package orchestrator

import (
	"context"
	"fmt"
	"strings"

	"keystone/aicore/orchestrator/guardrail"
	"keystone/aicore/orchestrator/llm"
)

// CompletionRequest is one feature-initiated completion call. It is
// immutable for the duration of the request.
type CompletionRequest struct {
	// Feature identifies the calling business feature, e.g.
	// "listing_description". Drives prompt lookup and the approval policy.
	Feature string `json:"feature"`

	// OrgID is the organization the completion is billed and scoped to.
	OrgID string `json:"org_id"`

	// UserID is the requesting user, for attribution.
	UserID string `json:"user_id,omitempty"`

	// PromptName optionally pins a named template instead of the default.
	PromptName string `json:"prompt_name,omitempty"`

	// Variables are interpolated into the prompt template.
	Variables map[string]string `json:"variables,omitempty"`

	// EntityType and EntityID tie the output to a domain object (listing,
	// contract) for the approval gate.
	EntityType string `json:"entity_type,omitempty"`
	EntityID   string `json:"entity_id,omitempty"`

	// Overrides adjust generation for this call only.
	Overrides Overrides `json:"overrides,omitempty"`
}

// Overrides are per-request generation adjustments. Unset fields fall back
// to the prompt template, then to the global defaults.
type Overrides struct {
	// Provider pins the request to one provider instead of the failover
	// order.
	Provider string `json:"provider,omitempty"`

	Model       string             `json:"model,omitempty"`
	Temperature *float64           `json:"temperature,omitempty"`
	MaxTokens   *int               `json:"max_tokens,omitempty"`
	Format      llm.ResponseFormat `json:"format,omitempty"`

	// SkipRedaction bypasses the guardrail passes. Reserved for callers
	// whose input is already sanitized.
	SkipRedaction bool `json:"skip_redaction,omitempty"`

	// ForceApproval escalates the feature's approval policy to required.
	ForceApproval bool `json:"force_approval,omitempty"`
}

// CompletionMetadata describes how a completion was produced.
type CompletionMetadata struct {
	Provider          string  `json:"provider"`
	Model             string  `json:"model"`
	PromptVersion     int     `json:"prompt_version"`
	LatencyMS         int64   `json:"latency_ms"`
	CostUSD           float64 `json:"cost_usd"`
	GuardrailsApplied bool    `json:"guardrails_applied"`
	PIIRedacted       int     `json:"pii_redacted"`
}

// CompletionResponse is the result returned to the calling feature. Content
// is always populated; approval gates execution, not generation.
type CompletionResponse struct {
	RequestID        string             `json:"request_id"`
	Content          string             `json:"content"`
	Usage            llm.UsageStats     `json:"usage"`
	Metadata         CompletionMetadata `json:"metadata"`
	RequiresApproval bool               `json:"requires_approval"`
	PendingActionID  string             `json:"pending_action_id,omitempty"`
}

// AllProvidersExhaustedError is returned when every configured,
// circuit-closed provider failed (or none was viable). It wraps the last
// underlying error.
type AllProvidersExhaustedError struct {
	Attempted []string
	LastErr   error
}

func (e *AllProvidersExhaustedError) Error() string {
	if len(e.Attempted) == 0 {
		return "no AI provider is configured or healthy"
	}
	return fmt.Sprintf("all AI providers failed (tried %s)", strings.Join(e.Attempted, ", "))
}

func (e *AllProvidersExhaustedError) Unwrap() error {
	return e.LastErr
}

// BudgetExceededError is returned when an organization's hard monthly
// budget denies the request before any provider is called.
type BudgetExceededError struct {
	OrgID  string
	Reason string
}

func (e *BudgetExceededError) Error() string {
	return fmt.Sprintf("completion denied for org %s: %s", e.OrgID, e.Reason)
}

// OrgSettings are the per-organization switches the engine checks before
// doing any work.
type OrgSettings struct {
	OrgID             string
	AIEnabled         bool
	DisabledFeatures  []string
	RedactionStrategy guardrail.Strategy
	Allowlist         []string
}

// FeatureEnabled reports whether the feature is allowed for this
// organization.
func (s *OrgSettings) FeatureEnabled(feature string) bool {
	for _, disabled := range s.DisabledFeatures {
		if disabled == feature {
			return false
		}
	}
	return true
}

// SettingsSource provides per-organization settings.
type SettingsSource interface {
	Settings(ctx context.Context, orgID string) (*OrgSettings, error)
}

// StaticSettings is the default SettingsSource: every organization enabled,
// placeholder redaction, no allowlist.
type StaticSettings struct{}

func (StaticSettings) Settings(_ context.Context, orgID string) (*OrgSettings, error) {
	return &OrgSettings{
		OrgID:             orgID,
		AIEnabled:         true,
		RedactionStrategy: guardrail.StrategyPlaceholder,
	}, nil
}

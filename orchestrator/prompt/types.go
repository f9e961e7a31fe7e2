// Copyright 2025 Keystone
// SPDX-License-Identifier: Apache-2.0

// Package prompt stores, resolves, and interpolates versioned prompt
// templates. Templates are scoped to an organization and a feature; at most
// one version per (org, feature) is active at a time, and activation swaps
// the active version atomically.
package prompt

import (
	"fmt"
	"strings"
	"time"
)

// Template is one versioned prompt definition for a (org, feature) pair.
type Template struct {
	ID           string     `json:"id"`
	OrgID        string     `json:"org_id"`
	Feature      string     `json:"feature"`
	Name         string     `json:"name"`
	Version      int        `json:"version"`
	SystemPrompt string     `json:"system_prompt"`
	UserTemplate string     `json:"user_template"`
	Provider     string     `json:"provider,omitempty"`
	Model        string     `json:"model,omitempty"`
	Temperature  *float64   `json:"temperature,omitempty"`
	MaxTokens    *int       `json:"max_tokens,omitempty"`
	IsDefault    bool       `json:"is_default"`
	Active       bool       `json:"active"`
	CreatedAt    time.Time  `json:"created_at"`
	ActivatedAt  *time.Time `json:"activated_at,omitempty"`
}

// ConfigurationError reports a request that cannot proceed because the
// calling organization or its templates are not set up. It is never retried.
type ConfigurationError struct {
	Reason string
}

func (e *ConfigurationError) Error() string {
	return "configuration error: " + e.Reason
}

// TemplateError reports an interpolation failure. Unresolved variables fail
// the request instead of sending a malformed prompt to a provider.
type TemplateError struct {
	Feature string
	Missing []string
}

func (e *TemplateError) Error() string {
	return fmt.Sprintf("template error for feature %q: unresolved variables [%s]",
		e.Feature, strings.Join(e.Missing, ", "))
}

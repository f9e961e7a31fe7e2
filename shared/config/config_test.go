// Copyright 2025 Keystone
// SPDX-License-Identifier: Apache-2.0

package config

import (
	"testing"
	"time"
)

func TestLoad_Defaults(t *testing.T) {
	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load: %v", err)
	}

	if !cfg.AIEnabled {
		t.Error("AIEnabled should default to true")
	}
	if cfg.DefaultTemperature != 0.7 {
		t.Errorf("DefaultTemperature = %v, want 0.7", cfg.DefaultTemperature)
	}
	if cfg.DefaultMaxTokens != 1024 {
		t.Errorf("DefaultMaxTokens = %d, want 1024", cfg.DefaultMaxTokens)
	}
	if cfg.CallTimeout != time.Minute {
		t.Errorf("CallTimeout = %v, want 1m", cfg.CallTimeout)
	}
	if cfg.RetryCount != 2 || cfg.RetryBaseDelay != 250*time.Millisecond {
		t.Errorf("retry defaults = %d/%v", cfg.RetryCount, cfg.RetryBaseDelay)
	}
	if cfg.CircuitFailureThreshold != 5 || cfg.CircuitResetWindow != 30*time.Second {
		t.Errorf("circuit defaults = %d/%v", cfg.CircuitFailureThreshold, cfg.CircuitResetWindow)
	}
	if cfg.PendingActionTTL != 72*time.Hour {
		t.Errorf("PendingActionTTL = %v, want 72h", cfg.PendingActionTTL)
	}
	if cfg.PromptCacheTTL != 30*time.Second {
		t.Errorf("PromptCacheTTL = %v, want 30s", cfg.PromptCacheTTL)
	}
	if cfg.AnthropicModel != "claude-3-5-sonnet-20241022" {
		t.Errorf("AnthropicModel = %q", cfg.AnthropicModel)
	}
}

func TestLoad_FromEnvironment(t *testing.T) {
	t.Setenv("AI_ENABLED", "false")
	t.Setenv("AI_RETRY_COUNT", "4")
	t.Setenv("AI_CALL_TIMEOUT", "5s")
	t.Setenv("ANTHROPIC_API_KEY", "sk-test")
	t.Setenv("AI_DEFAULT_MONTHLY_BUDGET_USD", "125.50")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load: %v", err)
	}

	if cfg.AIEnabled {
		t.Error("AI_ENABLED=false not honored")
	}
	if cfg.RetryCount != 4 {
		t.Errorf("RetryCount = %d, want 4", cfg.RetryCount)
	}
	if cfg.CallTimeout != 5*time.Second {
		t.Errorf("CallTimeout = %v, want 5s", cfg.CallTimeout)
	}
	if cfg.AnthropicAPIKey != "sk-test" {
		t.Errorf("AnthropicAPIKey = %q", cfg.AnthropicAPIKey)
	}
	if cfg.DefaultMonthlyBudgetUSD != 125.50 {
		t.Errorf("DefaultMonthlyBudgetUSD = %v", cfg.DefaultMonthlyBudgetUSD)
	}
}

func TestValidate_RejectsBadValues(t *testing.T) {
	base := func() *Config {
		return &Config{
			AIEnabled:               true,
			DefaultTemperature:      0.7,
			DefaultMaxTokens:        1024,
			CallTimeout:             time.Minute,
			RetryCount:              2,
			RetryBaseDelay:          250 * time.Millisecond,
			CircuitFailureThreshold: 5,
			CircuitResetWindow:      30 * time.Second,
			PendingActionTTL:        72 * time.Hour,
			PromptCacheTTL:          30 * time.Second,
		}
	}

	tests := []struct {
		name   string
		mutate func(*Config)
	}{
		{"temperature above range", func(c *Config) { c.DefaultTemperature = 2.5 }},
		{"negative temperature", func(c *Config) { c.DefaultTemperature = -0.1 }},
		{"zero max tokens", func(c *Config) { c.DefaultMaxTokens = 0 }},
		{"negative retry count", func(c *Config) { c.RetryCount = -1 }},
		{"zero base delay", func(c *Config) { c.RetryBaseDelay = 0 }},
		{"zero circuit threshold", func(c *Config) { c.CircuitFailureThreshold = 0 }},
		{"zero reset window", func(c *Config) { c.CircuitResetWindow = 0 }},
		{"zero call timeout", func(c *Config) { c.CallTimeout = 0 }},
		{"zero pending TTL", func(c *Config) { c.PendingActionTTL = 0 }},
		{"zero cache TTL", func(c *Config) { c.PromptCacheTTL = 0 }},
		{"negative budget", func(c *Config) { c.DefaultMonthlyBudgetUSD = -1 }},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := base()
			tt.mutate(cfg)
			if err := cfg.Validate(); err == nil {
				t.Error("Validate accepted an invalid config")
			}
		})
	}

	if err := base().Validate(); err != nil {
		t.Errorf("Validate rejected a valid config: %v", err)
	}
}

func TestMaxAttempts(t *testing.T) {
	cfg := &Config{RetryCount: 2}
	if got := cfg.MaxAttempts(); got != 3 {
		t.Errorf("MaxAttempts = %d, want 3", got)
	}

	cfg.RetryCount = 0
	if got := cfg.MaxAttempts(); got != 1 {
		t.Errorf("MaxAttempts with zero retries = %d, want 1", got)
	}
}

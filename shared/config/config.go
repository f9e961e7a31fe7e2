// Copyright 2025 Keystone
// SPDX-License-Identifier: Apache-2.0

// Package config holds the single validated configuration struct for the AI
// core. It is parsed from the environment exactly once at startup and passed
// by reference into every component; nothing re-reads the environment per
// call. Every option has a usable default so the system runs with zero
// configuration (the deterministic local provider serves completions when no
// API credentials are present).
package config

import (
	"fmt"
	"time"

	"github.com/caarlos0/env/v11"
)

// Config is the process-wide configuration for the AI core.
type Config struct {
	// AIEnabled globally gates completion requests.
	AIEnabled bool `env:"AI_ENABLED" envDefault:"true"`

	// DatabaseURL is the PostgreSQL connection string for prompt templates,
	// pending actions, and usage records. Empty selects in-memory stores.
	DatabaseURL string `env:"DATABASE_URL"`

	// Provider credentials. A provider with no credential is treated as
	// unconfigured and skipped during failover.
	AnthropicAPIKey string `env:"ANTHROPIC_API_KEY"`
	OpenAIAPIKey    string `env:"OPENAI_API_KEY"`
	GeminiAPIKey    string `env:"GEMINI_API_KEY"`
	BedrockRegion   string `env:"BEDROCK_REGION"`

	// Default models per provider, overridable per prompt template or request.
	AnthropicModel string `env:"ANTHROPIC_MODEL" envDefault:"claude-3-5-sonnet-20241022"`
	OpenAIModel    string `env:"OPENAI_MODEL" envDefault:"gpt-4o-mini"`
	GeminiModel    string `env:"GEMINI_MODEL" envDefault:"gemini-2.0-flash"`
	BedrockModel   string `env:"BEDROCK_MODEL" envDefault:"anthropic.claude-3-5-sonnet-20241022-v2:0"`

	// Generation defaults (request override > prompt template > these).
	DefaultTemperature float64 `env:"AI_DEFAULT_TEMPERATURE" envDefault:"0.7"`
	DefaultMaxTokens   int     `env:"AI_DEFAULT_MAX_TOKENS" envDefault:"1024"`

	// CallTimeout bounds a single provider HTTP call.
	CallTimeout time.Duration `env:"AI_CALL_TIMEOUT" envDefault:"60s"`

	// RetryCount is the number of retries after the initial attempt.
	RetryCount int `env:"AI_RETRY_COUNT" envDefault:"2"`

	// RetryBaseDelay is the base for exponential backoff between retries.
	RetryBaseDelay time.Duration `env:"AI_RETRY_BASE_DELAY" envDefault:"250ms"`

	// CircuitFailureThreshold is the consecutive non-auth failures that open
	// a provider's circuit.
	CircuitFailureThreshold int `env:"AI_CIRCUIT_FAILURE_THRESHOLD" envDefault:"5"`

	// CircuitResetWindow is how long an open circuit waits before allowing a
	// half-open probe.
	CircuitResetWindow time.Duration `env:"AI_CIRCUIT_RESET_WINDOW" envDefault:"30s"`

	// PendingActionTTL is how long a queued approval stays pending before the
	// sweeper expires it.
	PendingActionTTL time.Duration `env:"AI_PENDING_ACTION_TTL" envDefault:"72h"`

	// PromptCacheTTL bounds staleness of the prompt template cache.
	PromptCacheTTL time.Duration `env:"AI_PROMPT_CACHE_TTL" envDefault:"30s"`

	// DefaultMonthlyBudgetUSD is the monthly cap applied to organizations
	// without an explicit budget row. 0 means unlimited.
	DefaultMonthlyBudgetUSD float64 `env:"AI_DEFAULT_MONTHLY_BUDGET_USD" envDefault:"0"`

	// PricingFile optionally points at a YAML file overriding the built-in
	// per-model pricing table.
	PricingFile string `env:"AI_PRICING_FILE"`
}

// Load parses and validates configuration from the environment.
func Load() (*Config, error) {
	cfg := &Config{}
	if err := env.Parse(cfg); err != nil {
		return nil, fmt.Errorf("failed to parse environment: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate rejects configurations that would misbehave at runtime rather
// than failing lazily inside a request.
func (c *Config) Validate() error {
	if c.DefaultTemperature < 0 || c.DefaultTemperature > 2 {
		return fmt.Errorf("AI_DEFAULT_TEMPERATURE must be in [0, 2], got %v", c.DefaultTemperature)
	}
	if c.DefaultMaxTokens <= 0 {
		return fmt.Errorf("AI_DEFAULT_MAX_TOKENS must be positive, got %d", c.DefaultMaxTokens)
	}
	if c.RetryCount < 0 {
		return fmt.Errorf("AI_RETRY_COUNT must not be negative, got %d", c.RetryCount)
	}
	if c.RetryBaseDelay <= 0 {
		return fmt.Errorf("AI_RETRY_BASE_DELAY must be positive, got %v", c.RetryBaseDelay)
	}
	if c.CircuitFailureThreshold <= 0 {
		return fmt.Errorf("AI_CIRCUIT_FAILURE_THRESHOLD must be positive, got %d", c.CircuitFailureThreshold)
	}
	if c.CircuitResetWindow <= 0 {
		return fmt.Errorf("AI_CIRCUIT_RESET_WINDOW must be positive, got %v", c.CircuitResetWindow)
	}
	if c.CallTimeout <= 0 {
		return fmt.Errorf("AI_CALL_TIMEOUT must be positive, got %v", c.CallTimeout)
	}
	if c.PendingActionTTL <= 0 {
		return fmt.Errorf("AI_PENDING_ACTION_TTL must be positive, got %v", c.PendingActionTTL)
	}
	if c.PromptCacheTTL <= 0 {
		return fmt.Errorf("AI_PROMPT_CACHE_TTL must be positive, got %v", c.PromptCacheTTL)
	}
	if c.DefaultMonthlyBudgetUSD < 0 {
		return fmt.Errorf("AI_DEFAULT_MONTHLY_BUDGET_USD must not be negative, got %v", c.DefaultMonthlyBudgetUSD)
	}
	return nil
}

// MaxAttempts is the total attempt budget per provider: the initial try plus
// the configured retries.
func (c *Config) MaxAttempts() int {
	return c.RetryCount + 1
}

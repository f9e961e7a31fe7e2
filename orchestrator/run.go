// Copyright 2025 Keystone
// SPDX-License-Identifier: Apache-2.0

package orchestrator

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"os"
	"time"

	_ "github.com/lib/pq"

	"keystone/aicore/orchestrator/approval"
	"keystone/aicore/orchestrator/cost"
	"keystone/aicore/orchestrator/guardrail"
	"keystone/aicore/orchestrator/llm"
	"keystone/aicore/orchestrator/llm/anthropic"
	"keystone/aicore/orchestrator/llm/bedrock"
	"keystone/aicore/orchestrator/llm/gemini"
	"keystone/aicore/orchestrator/llm/local"
	"keystone/aicore/orchestrator/llm/openai"
	"keystone/aicore/orchestrator/prompt"
	"keystone/aicore/shared/config"
	"keystone/aicore/shared/logger"
)

// Run wires the AI core from the environment and serves one completion
// request read as JSON from stdin, writing the response to stdout. It is the
// composition root: config, logger, stores, providers, engine.
func Run() error {
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("configuration: %w", err)
	}

	log := logger.New("aicore")
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	var db *sql.DB
	if cfg.DatabaseURL != "" {
		db, err = sql.Open("postgres", cfg.DatabaseURL)
		if err != nil {
			return fmt.Errorf("database: %w", err)
		}
		defer db.Close()
		if err := db.PingContext(ctx); err != nil {
			return fmt.Errorf("database ping: %w", err)
		}
	}

	engine, gate, err := buildEngine(ctx, cfg, log, db)
	if err != nil {
		return err
	}

	go gate.RunSweeper(ctx, time.Minute)

	var req CompletionRequest
	if err := json.NewDecoder(os.Stdin).Decode(&req); err != nil {
		return fmt.Errorf("failed to decode request: %w", err)
	}

	callCtx, callCancel := context.WithTimeout(ctx, 5*time.Minute)
	defer callCancel()

	resp, err := engine.Complete(callCtx, req)
	if err != nil {
		return err
	}

	encoder := json.NewEncoder(os.Stdout)
	encoder.SetIndent("", "  ")
	return encoder.Encode(resp)
}

// buildEngine assembles the engine's collaborators. A nil db selects the
// in-memory stores so the system runs with zero configuration.
func buildEngine(ctx context.Context, cfg *config.Config, log *logger.Logger, db *sql.DB) (*Engine, *approval.Gate, error) {
	var promptStore prompt.Store
	var actionRepo approval.Repository
	var usageRepo cost.Repository
	if db != nil {
		promptStore = prompt.NewPostgresStore(db)
		actionRepo = approval.NewPostgresRepository(db)
		usageRepo = cost.NewPostgresRepository(db)
	} else {
		promptStore = prompt.NewMemoryStore()
		actionRepo = approval.NewMemoryRepository()
		usageRepo = cost.NewMemoryRepository()
	}

	pricing := cost.DefaultPricing()
	if cfg.PricingFile != "" {
		if err := pricing.LoadPricingFile(cfg.PricingFile); err != nil {
			return nil, nil, err
		}
	}

	gate := approval.NewGate(actionRepo, cfg.PendingActionTTL, log)

	providers, err := buildProviders(ctx, cfg)
	if err != nil {
		return nil, nil, err
	}

	engine := NewEngine(EngineParams{
		Config:     cfg,
		Logger:     log,
		Providers:  providers,
		Prompts:    prompt.NewResolver(promptStore, cfg.PromptCacheTTL),
		Guardrails: guardrail.New(nil),
		Approvals:  gate,
		Accountant: cost.NewAccountant(usageRepo, pricing, cfg.DefaultMonthlyBudgetUSD),
		Settings:   StaticSettings{},
		Policies:   DefaultPolicyTable(),
	})
	return engine, gate, nil
}

// buildProviders returns the failover order: anthropic, openai, gemini,
// bedrock, and the local deterministic fallback last so a request always has
// a viable candidate.
func buildProviders(ctx context.Context, cfg *config.Config) ([]llm.Provider, error) {
	bedrockProvider, err := bedrock.New(ctx, bedrock.Config{
		Region: cfg.BedrockRegion,
		Model:  cfg.BedrockModel,
	})
	if err != nil {
		return nil, fmt.Errorf("bedrock: %w", err)
	}

	return []llm.Provider{
		anthropic.New(anthropic.Config{
			APIKey:  cfg.AnthropicAPIKey,
			Model:   cfg.AnthropicModel,
			Timeout: cfg.CallTimeout,
		}),
		openai.New(openai.Config{
			APIKey:  cfg.OpenAIAPIKey,
			Model:   cfg.OpenAIModel,
			Timeout: cfg.CallTimeout,
		}),
		gemini.New(gemini.Config{
			APIKey:  cfg.GeminiAPIKey,
			Model:   cfg.GeminiModel,
			Timeout: cfg.CallTimeout,
		}),
		bedrockProvider,
		local.New(),
	}, nil
}

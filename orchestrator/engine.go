// Copyright 2025 Keystone
// SPDX-License-Identifier: Apache-2.0

package orchestrator

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/google/uuid"

	"keystone/aicore/orchestrator/approval"
	"keystone/aicore/orchestrator/cost"
	"keystone/aicore/orchestrator/guardrail"
	"keystone/aicore/orchestrator/llm"
	"keystone/aicore/orchestrator/prompt"
	"keystone/aicore/shared/config"
	"keystone/aicore/shared/logger"
)

// EngineParams collects the engine's collaborators. Providers are tried in
// slice order; earlier entries have priority.
type EngineParams struct {
	Config     *config.Config
	Logger     *logger.Logger
	Providers  []llm.Provider
	Prompts    *prompt.Resolver
	Guardrails *guardrail.Engine
	Approvals  *approval.Gate
	Accountant *cost.Accountant
	Settings   SettingsSource
	Policies   PolicyTable
}

// Engine is the completion orchestrator. One instance serves the whole
// process; all per-request state lives on the stack of Complete.
type Engine struct {
	cfg        *config.Config
	log        *logger.Logger
	providers  []llm.Provider
	circuits   map[string]*llm.CircuitBreaker
	prompts    *prompt.Resolver
	guard      *guardrail.Engine
	approvals  *approval.Gate
	accountant *cost.Accountant
	settings   SettingsSource
	policies   PolicyTable

	// sleep is injected into retry backoff; swappable for tests.
	sleep func(ctx context.Context, d time.Duration) error
}

// NewEngine wires an engine and creates one circuit breaker per provider.
func NewEngine(p EngineParams) *Engine {
	settings := p.Settings
	if settings == nil {
		settings = StaticSettings{}
	}
	policies := p.Policies
	if policies == nil {
		policies = DefaultPolicyTable()
	}

	circuits := make(map[string]*llm.CircuitBreaker, len(p.Providers))
	for _, provider := range p.Providers {
		circuits[provider.Name()] = llm.NewCircuitBreaker(
			p.Config.CircuitFailureThreshold, p.Config.CircuitResetWindow)
	}

	return &Engine{
		cfg:        p.Config,
		log:        p.Logger,
		providers:  p.Providers,
		circuits:   circuits,
		prompts:    p.Prompts,
		guard:      p.Guardrails,
		approvals:  p.Approvals,
		accountant: p.Accountant,
		settings:   settings,
		policies:   policies,
	}
}

// Complete runs one completion request end to end. It fails only when the
// request is invalid, the budget denies it, or every viable provider has
// been tried and failed.
func (e *Engine) Complete(ctx context.Context, req CompletionRequest) (*CompletionResponse, error) {
	requestID := uuid.New().String()
	start := time.Now()

	resp, err := e.complete(ctx, requestID, start, req)
	if err != nil {
		promCompletionsTotal.WithLabelValues(req.Feature, "error").Inc()
		return nil, err
	}

	promCompletionsTotal.WithLabelValues(req.Feature, "success").Inc()
	promCompletionDuration.WithLabelValues(req.Feature).
		Observe(float64(resp.Metadata.LatencyMS))
	return resp, nil
}

func (e *Engine) complete(ctx context.Context, requestID string, start time.Time, req CompletionRequest) (*CompletionResponse, error) {
	if !e.cfg.AIEnabled {
		return nil, &prompt.ConfigurationError{Reason: "AI completions are disabled"}
	}
	if req.OrgID == "" {
		return nil, &prompt.ConfigurationError{Reason: "organization id is empty"}
	}

	settings, err := e.settings.Settings(ctx, req.OrgID)
	if err != nil {
		return nil, err
	}
	if !settings.AIEnabled {
		return nil, &prompt.ConfigurationError{
			Reason: "AI completions are disabled for organization " + req.OrgID,
		}
	}
	if !settings.FeatureEnabled(req.Feature) {
		return nil, &prompt.ConfigurationError{
			Reason: "feature " + req.Feature + " is disabled for organization " + req.OrgID,
		}
	}

	tmpl, err := e.prompts.Resolve(ctx, req.OrgID, req.Feature, req.PromptName)
	if err != nil {
		return nil, err
	}

	decision, err := e.accountant.CheckBudget(ctx, req.OrgID, 0)
	if err != nil {
		return nil, err
	}
	if !decision.Allowed {
		return nil, &BudgetExceededError{OrgID: req.OrgID, Reason: decision.Reason}
	}

	state := guardrail.NewState()
	userPrompt, err := e.buildPrompt(req, settings, tmpl, state)
	if err != nil {
		return nil, err
	}
	for _, match := range state.Matches() {
		promRedactionsTotal.WithLabelValues(string(match.Category)).Inc()
	}

	candidates, err := e.candidates(req.Overrides.Provider)
	if err != nil {
		return nil, err
	}

	var lastErr error
	var attempted []string
	for _, provider := range candidates {
		if !provider.IsConfigured() {
			continue
		}

		breaker := e.circuits[provider.Name()]
		if !breaker.Allow() {
			promCircuitState.WithLabelValues(provider.Name()).Set(1)
			continue
		}

		providerReq := llm.ProviderRequest{
			SystemPrompt:   tmpl.SystemPrompt,
			UserPrompt:     userPrompt,
			Model:          e.effectiveModel(req, tmpl, provider),
			Temperature:    e.effectiveTemperature(req, tmpl),
			MaxTokens:      e.effectiveMaxTokens(req, tmpl),
			Timeout:        e.cfg.CallTimeout,
			ResponseFormat: req.Overrides.Format,
		}

		attemptStart := time.Now()
		attempted = append(attempted, provider.Name())

		providerResp, err := llm.WithRetries(ctx, llm.RetryConfig{
			MaxAttempts: e.cfg.MaxAttempts(),
			BaseDelay:   e.cfg.RetryBaseDelay,
			Sleep:       e.sleep,
		}, func(ctx context.Context) (*llm.ProviderResponse, error) {
			return provider.Complete(ctx, providerReq)
		})
		attemptLatency := time.Since(attemptStart).Milliseconds()

		if err != nil {
			errType := classifyError(err)
			breaker.RecordFailure(errType)
			e.recordCircuitGauge(provider.Name(), breaker)
			promProviderCalls.WithLabelValues(provider.Name(), "error").Inc()

			if logErr := e.accountant.LogFailure(ctx, &cost.UsageLogEntry{
				RequestID: requestID,
				OrgID:     req.OrgID,
				UserID:    req.UserID,
				Feature:   req.Feature,
				Provider:  provider.Name(),
				Model:     providerReq.Model,
				LatencyMS: attemptLatency,
			}, string(errType)); logErr != nil {
				e.log.Warn(req.OrgID, requestID, "failed to log provider failure", map[string]interface{}{
					"error": logErr.Error(),
				})
			}

			e.log.Error(req.OrgID, requestID, "provider attempt failed", map[string]interface{}{
				"provider":   provider.Name(),
				"error_type": string(errType),
				"error":      err.Error(),
			})

			lastErr = err
			continue
		}

		breaker.RecordSuccess()
		e.recordCircuitGauge(provider.Name(), breaker)
		promProviderCalls.WithLabelValues(provider.Name(), "success").Inc()

		return e.finish(ctx, requestID, start, req, tmpl, settings, state, provider, providerResp, attemptLatency)
	}

	return nil, &AllProvidersExhaustedError{Attempted: attempted, LastErr: lastErr}
}

// buildPrompt applies the guardrail passes and interpolation: variables are
// redacted first, then the fully interpolated prompt, with the redaction
// state carried across both passes so restore covers everything.
func (e *Engine) buildPrompt(req CompletionRequest, settings *OrgSettings, tmpl *prompt.Template, state *guardrail.State) (string, error) {
	opts := guardrail.Options{
		Strategy:  settings.RedactionStrategy,
		Allowlist: settings.Allowlist,
	}

	variables := req.Variables
	if !req.Overrides.SkipRedaction {
		redacted := make(map[string]string, len(variables))
		for name, value := range variables {
			redacted[name] = e.guard.Redact(value, opts, state)
		}
		variables = redacted
	}

	userPrompt, err := prompt.Interpolate(tmpl, variables)
	if err != nil {
		return "", err
	}

	if !req.Overrides.SkipRedaction {
		userPrompt = e.guard.Redact(userPrompt, opts, state)
	}
	return userPrompt, nil
}

// finish handles the success path: restore PII, price usage, evaluate the
// approval policy, persist the usage row, and build the response.
func (e *Engine) finish(ctx context.Context, requestID string, start time.Time, req CompletionRequest, tmpl *prompt.Template, settings *OrgSettings, state *guardrail.State, provider llm.Provider, providerResp *llm.ProviderResponse, attemptLatency int64) (*CompletionResponse, error) {
	content := providerResp.Content
	if state.HasRedactions() {
		content = e.guard.Restore(content, state)
	}

	costUSD := e.accountant.CalculateCost(provider.Name(), providerResp.Model,
		providerResp.Usage.PromptTokens, providerResp.Usage.CompletionTokens)

	if err := e.accountant.LogUsage(ctx, &cost.UsageLogEntry{
		RequestID:        requestID,
		OrgID:            req.OrgID,
		UserID:           req.UserID,
		Feature:          req.Feature,
		Provider:         provider.Name(),
		Model:            providerResp.Model,
		PromptTokens:     providerResp.Usage.PromptTokens,
		CompletionTokens: providerResp.Usage.CompletionTokens,
		TotalTokens:      providerResp.Usage.TotalTokens,
		CostUSD:          costUSD,
		Success:          true,
		LatencyMS:        attemptLatency,
	}); err != nil {
		e.log.Warn(req.OrgID, requestID, "failed to log usage", map[string]interface{}{
			"error": err.Error(),
		})
	}

	resp := &CompletionResponse{
		RequestID: requestID,
		Content:   content,
		Usage:     providerResp.Usage,
		Metadata: CompletionMetadata{
			Provider:          provider.Name(),
			Model:             providerResp.Model,
			PromptVersion:     tmpl.Version,
			LatencyMS:         time.Since(start).Milliseconds(),
			CostUSD:           costUSD,
			GuardrailsApplied: !req.Overrides.SkipRedaction,
			PIIRedacted:       len(state.Matches()),
		},
	}

	if e.policies.For(req.Feature, req.Overrides.ForceApproval) == PolicyRequired {
		snapshot, err := json.Marshal(req)
		if err != nil {
			e.log.Warn(req.OrgID, requestID, "failed to snapshot request", map[string]interface{}{
				"error": err.Error(),
			})
			snapshot = nil
		}
		action, err := e.approvals.Queue(ctx, approval.QueueInput{
			OrgID:           req.OrgID,
			UserID:          req.UserID,
			Feature:         req.Feature,
			ActionType:      "completion",
			EntityType:      req.EntityType,
			EntityID:        req.EntityID,
			Content:         content,
			RequestSnapshot: snapshot,
		})
		if err != nil {
			return nil, err
		}
		promPendingQueued.Inc()
		resp.RequiresApproval = true
		resp.PendingActionID = action.ID
	}

	e.log.InfoWithDuration(req.OrgID, requestID, "completion served",
		float64(resp.Metadata.LatencyMS), map[string]interface{}{
			"feature":           req.Feature,
			"provider":          provider.Name(),
			"model":             providerResp.Model,
			"total_tokens":      providerResp.Usage.TotalTokens,
			"cost_usd":          costUSD,
			"pii_redacted":      resp.Metadata.PIIRedacted,
			"requires_approval": resp.RequiresApproval,
		})

	return resp, nil
}

// candidates returns the providers to try. A provider override narrows the
// list to that provider; an unknown override is a configuration error.
func (e *Engine) candidates(override string) ([]llm.Provider, error) {
	if override == "" {
		return e.providers, nil
	}
	for _, provider := range e.providers {
		if provider.Name() == override {
			return []llm.Provider{provider}, nil
		}
	}
	return nil, &prompt.ConfigurationError{Reason: "unknown provider " + override}
}

// effectiveModel resolves the model: request override, then template model
// (only when the template targets the serving provider; a model name is
// meaningless on another backend), then the provider default.
func (e *Engine) effectiveModel(req CompletionRequest, tmpl *prompt.Template, provider llm.Provider) string {
	if req.Overrides.Model != "" {
		return req.Overrides.Model
	}
	if tmpl.Model != "" && (tmpl.Provider == "" || tmpl.Provider == provider.Name()) {
		return tmpl.Model
	}
	return provider.DefaultModel()
}

func (e *Engine) effectiveTemperature(req CompletionRequest, tmpl *prompt.Template) float64 {
	if req.Overrides.Temperature != nil {
		return *req.Overrides.Temperature
	}
	if tmpl.Temperature != nil {
		return *tmpl.Temperature
	}
	return e.cfg.DefaultTemperature
}

func (e *Engine) effectiveMaxTokens(req CompletionRequest, tmpl *prompt.Template) int {
	if req.Overrides.MaxTokens != nil {
		return *req.Overrides.MaxTokens
	}
	if tmpl.MaxTokens != nil {
		return *tmpl.MaxTokens
	}
	return e.cfg.DefaultMaxTokens
}

func (e *Engine) recordCircuitGauge(name string, breaker *llm.CircuitBreaker) {
	if breaker.Snapshot().State == llm.CircuitOpen {
		promCircuitState.WithLabelValues(name).Set(1)
	} else {
		promCircuitState.WithLabelValues(name).Set(0)
	}
}

// CircuitSnapshots exposes breaker state per provider for health surfaces.
func (e *Engine) CircuitSnapshots() map[string]llm.CircuitSnapshot {
	out := make(map[string]llm.CircuitSnapshot, len(e.circuits))
	for name, breaker := range e.circuits {
		out[name] = breaker.Snapshot()
	}
	return out
}

// classifyError extracts the taxonomy type from a provider loop error.
func classifyError(err error) llm.ErrorType {
	var provErr *llm.ProviderError
	if errors.As(err, &provErr) {
		return provErr.Type
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return llm.ErrorTypeTimeout
	}
	return llm.ErrorTypeUnknown
}

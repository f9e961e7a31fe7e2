// Copyright 2025 Keystone
// SPDX-License-Identifier: Apache-2.0

package cost

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// Accountant prices usage, writes the usage log, and answers budget checks.
// Clock is injectable so month-boundary behavior is testable.
type Accountant struct {
	repo              Repository
	pricing           *PricingTable
	defaultMonthlyUSD float64
	now               func() time.Time
}

// NewAccountant creates an accountant. defaultMonthlyUSD applies to
// organizations without a stored budget; zero means unlimited.
func NewAccountant(repo Repository, pricing *PricingTable, defaultMonthlyUSD float64) *Accountant {
	if pricing == nil {
		pricing = DefaultPricing()
	}
	return &Accountant{
		repo:              repo,
		pricing:           pricing,
		defaultMonthlyUSD: defaultMonthlyUSD,
		now:               time.Now,
	}
}

// CalculateCost prices token usage for a (provider, model) pair. Unknown
// pairs price at zero.
func (a *Accountant) CalculateCost(provider, model string, promptTokens, completionTokens int) float64 {
	pricing := a.pricing.Lookup(provider, model)
	return float64(promptTokens)/1000*pricing.InputPer1K +
		float64(completionTokens)/1000*pricing.OutputPer1K
}

// LogUsage appends one entry to the usage log, assigning id, timestamp, and
// cost when the caller left them unset.
func (a *Accountant) LogUsage(ctx context.Context, entry *UsageLogEntry) error {
	if entry.OrgID == "" || entry.Provider == "" {
		return fmt.Errorf("%w: org and provider are required", ErrInvalidEntry)
	}

	if entry.ID == "" {
		entry.ID = uuid.New().String()
	}
	if entry.CreatedAt.IsZero() {
		entry.CreatedAt = a.now().UTC()
	}
	if entry.TotalTokens == 0 {
		entry.TotalTokens = entry.PromptTokens + entry.CompletionTokens
	}
	if entry.Success && entry.CostUSD == 0 {
		entry.CostUSD = a.CalculateCost(entry.Provider, entry.Model,
			entry.PromptTokens, entry.CompletionTokens)
	}

	if err := a.repo.SaveUsage(ctx, entry); err != nil {
		return fmt.Errorf("failed to log usage: %w", err)
	}
	return nil
}

// LogFailure records a failed attempt with its error type and zero cost.
func (a *Accountant) LogFailure(ctx context.Context, entry *UsageLogEntry, errorType string) error {
	entry.Success = false
	entry.ErrorType = errorType
	entry.CostUSD = 0
	return a.LogUsage(ctx, entry)
}

// CheckBudget decides whether a projected spend fits the organization's
// monthly budget. Only a hard limit denies; soft and unset limits always
// allow, with the spend figures reported for logging.
func (a *Accountant) CheckBudget(ctx context.Context, orgID string, projectedUSD float64) (*BudgetDecision, error) {
	budget, err := a.repo.GetBudget(ctx, orgID)
	if err != nil {
		return nil, fmt.Errorf("failed to load budget: %w", err)
	}
	if budget == nil {
		budget = &Budget{OrgID: orgID, MonthlyLimitUSD: a.defaultMonthlyUSD}
	}

	summary, err := a.repo.Summary(ctx, orgID, monthStart(a.now()))
	if err != nil {
		return nil, fmt.Errorf("failed to load monthly spend: %w", err)
	}

	decision := &BudgetDecision{
		Allowed:      true,
		SpentUSD:     summary.TotalCostUSD,
		ProjectedUSD: projectedUSD,
		LimitUSD:     budget.MonthlyLimitUSD,
	}

	if budget.MonthlyLimitUSD <= 0 {
		return decision, nil
	}
	if summary.TotalCostUSD+projectedUSD <= budget.MonthlyLimitUSD {
		return decision, nil
	}

	if budget.HardLimit {
		decision.Allowed = false
		decision.Reason = fmt.Sprintf("monthly budget of $%.2f exhausted ($%.2f spent)",
			budget.MonthlyLimitUSD, summary.TotalCostUSD)
	} else {
		decision.Reason = "monthly budget exceeded (soft limit)"
	}
	return decision, nil
}

// MonthlySummary aggregates the organization's usage for the current
// calendar month.
func (a *Accountant) MonthlySummary(ctx context.Context, orgID string) (*UsageSummary, error) {
	return a.repo.Summary(ctx, orgID, monthStart(a.now()))
}

// SetBudget stores an organization's budget.
func (a *Accountant) SetBudget(ctx context.Context, budget *Budget) error {
	return a.repo.SetBudget(ctx, budget)
}

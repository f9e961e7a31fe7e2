// Copyright 2025 Keystone
// SPDX-License-Identifier: Apache-2.0

// Package cost prices token usage, keeps the append-only usage log, and
// answers monthly budget checks.
package cost

import (
	"errors"
	"time"
)

var (
	// ErrInvalidEntry is returned when a usage log entry is missing required
	// attribution.
	ErrInvalidEntry = errors.New("invalid usage log entry")
)

// UsageLogEntry is one recorded completion attempt, successful or not.
// Failed attempts carry a zero cost but are still logged with their error
// type.
type UsageLogEntry struct {
	ID               string    `json:"id"`
	RequestID        string    `json:"request_id"`
	OrgID            string    `json:"org_id"`
	UserID           string    `json:"user_id,omitempty"`
	Feature          string    `json:"feature"`
	Provider         string    `json:"provider"`
	Model            string    `json:"model,omitempty"`
	PromptTokens     int       `json:"prompt_tokens"`
	CompletionTokens int       `json:"completion_tokens"`
	TotalTokens      int       `json:"total_tokens"`
	CostUSD          float64   `json:"cost_usd"`
	Success          bool      `json:"success"`
	ErrorType        string    `json:"error_type,omitempty"`
	LatencyMS        int64     `json:"latency_ms"`
	CreatedAt        time.Time `json:"created_at"`
}

// Budget is an organization's monthly spend configuration. Spend resets at
// each calendar month boundary. Only a hard limit denies requests; a soft
// limit is advisory and shows up in the decision for logging.
type Budget struct {
	OrgID           string    `json:"org_id"`
	MonthlyLimitUSD float64   `json:"monthly_limit_usd"`
	HardLimit       bool      `json:"hard_limit"`
	UpdatedAt       time.Time `json:"updated_at"`
}

// BudgetDecision is the outcome of a pre-call budget check.
type BudgetDecision struct {
	Allowed      bool    `json:"allowed"`
	Reason       string  `json:"reason,omitempty"`
	SpentUSD     float64 `json:"spent_usd"`
	ProjectedUSD float64 `json:"projected_usd"`
	LimitUSD     float64 `json:"limit_usd"`
}

// UsageSummary aggregates an organization's usage for one period.
type UsageSummary struct {
	OrgID        string    `json:"org_id"`
	PeriodStart  time.Time `json:"period_start"`
	Requests     int       `json:"requests"`
	Failures     int       `json:"failures"`
	TotalTokens  int       `json:"total_tokens"`
	TotalCostUSD float64   `json:"total_cost_usd"`
}

// monthStart returns the calendar month boundary containing t, in UTC.
func monthStart(t time.Time) time.Time {
	t = t.UTC()
	return time.Date(t.Year(), t.Month(), 1, 0, 0, 0, 0, time.UTC)
}

// Copyright 2025 Keystone
// SPDX-License-Identifier: Apache-2.0

package cost

import (
	"context"
	"time"
)

// Repository persists the usage log and budgets.
type Repository interface {
	// SaveUsage appends one usage log entry. Entries are never updated or
	// deleted.
	SaveUsage(ctx context.Context, entry *UsageLogEntry) error

	// Summary aggregates an organization's usage from periodStart onward.
	Summary(ctx context.Context, orgID string, periodStart time.Time) (*UsageSummary, error)

	// GetBudget returns the organization's budget, or (nil, nil) when none
	// is configured.
	GetBudget(ctx context.Context, orgID string) (*Budget, error)

	// SetBudget creates or replaces an organization's budget.
	SetBudget(ctx context.Context, budget *Budget) error
}

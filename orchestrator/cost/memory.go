// Copyright 2025 Keystone
// SPDX-License-Identifier: Apache-2.0

package cost

import (
	"context"
	"sync"
	"time"
)

// MemoryRepository is an in-memory Repository for tests and zero-database
// runs.
type MemoryRepository struct {
	mu      sync.RWMutex
	entries []*UsageLogEntry
	budgets map[string]*Budget
}

// NewMemoryRepository creates an empty in-memory repository.
func NewMemoryRepository() *MemoryRepository {
	return &MemoryRepository{budgets: make(map[string]*Budget)}
}

func (r *MemoryRepository) SaveUsage(_ context.Context, entry *UsageLogEntry) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	clone := *entry
	r.entries = append(r.entries, &clone)
	return nil
}

func (r *MemoryRepository) Summary(_ context.Context, orgID string, periodStart time.Time) (*UsageSummary, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	summary := &UsageSummary{OrgID: orgID, PeriodStart: periodStart}
	for _, entry := range r.entries {
		if entry.OrgID != orgID || entry.CreatedAt.Before(periodStart) {
			continue
		}
		summary.Requests++
		if !entry.Success {
			summary.Failures++
		}
		summary.TotalTokens += entry.TotalTokens
		summary.TotalCostUSD += entry.CostUSD
	}
	return summary, nil
}

func (r *MemoryRepository) GetBudget(_ context.Context, orgID string) (*Budget, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	budget, ok := r.budgets[orgID]
	if !ok {
		return nil, nil
	}
	clone := *budget
	return &clone, nil
}

func (r *MemoryRepository) SetBudget(_ context.Context, budget *Budget) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	clone := *budget
	r.budgets[budget.OrgID] = &clone
	return nil
}

// Entries returns a copy of the usage log, oldest first. Test helper.
func (r *MemoryRepository) Entries() []*UsageLogEntry {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]*UsageLogEntry, len(r.entries))
	for i, entry := range r.entries {
		clone := *entry
		out[i] = &clone
	}
	return out
}

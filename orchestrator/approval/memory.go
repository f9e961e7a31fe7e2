// Copyright 2025 Keystone
// SPDX-License-Identifier: Apache-2.0

package approval

import (
	"context"
	"sort"
	"sync"
	"time"
)

// MemoryRepository is an in-memory Repository for tests and zero-database
// runs.
type MemoryRepository struct {
	mu      sync.RWMutex
	actions map[string]*PendingAction
}

// NewMemoryRepository creates an empty in-memory repository.
func NewMemoryRepository() *MemoryRepository {
	return &MemoryRepository{actions: make(map[string]*PendingAction)}
}

func (r *MemoryRepository) Insert(_ context.Context, action *PendingAction) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	clone := *action
	r.actions[action.ID] = &clone
	return nil
}

func (r *MemoryRepository) Get(_ context.Context, id string) (*PendingAction, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	action, ok := r.actions[id]
	if !ok {
		return nil, ErrNotFound
	}
	clone := *action
	return &clone, nil
}

func (r *MemoryRepository) Update(_ context.Context, action *PendingAction) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.actions[action.ID]; !ok {
		return ErrNotFound
	}
	clone := *action
	r.actions[action.ID] = &clone
	return nil
}

func (r *MemoryRepository) List(_ context.Context, orgID string, opts ListOptions) ([]*PendingAction, string, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	ids := make([]string, 0, len(r.actions))
	for id, action := range r.actions {
		if action.OrgID != orgID {
			continue
		}
		if opts.Status != "" && action.Status != opts.Status {
			continue
		}
		if opts.Cursor != "" && id <= opts.Cursor {
			continue
		}
		ids = append(ids, id)
	}
	sort.Strings(ids)

	page := make([]*PendingAction, 0, opts.PageSize)
	for _, id := range ids {
		if len(page) == opts.PageSize {
			break
		}
		clone := *r.actions[id]
		page = append(page, &clone)
	}

	next := ""
	if len(page) == opts.PageSize && len(ids) > opts.PageSize {
		next = page[len(page)-1].ID
	}
	return page, next, nil
}

func (r *MemoryRepository) ExpirePending(_ context.Context, cutoff time.Time) (int, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	expired := 0
	for _, action := range r.actions {
		if action.Status == StatusPending && action.ExpiresAt.Before(cutoff) {
			action.Status = StatusExpired
			action.UpdatedAt = cutoff
			expired++
		}
	}
	return expired, nil
}

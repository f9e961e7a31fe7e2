// Copyright 2025 Keystone
// SPDX-License-Identifier: Apache-2.0

package prompt

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
)

// MemoryStore is an in-memory Store used in tests and zero-database runs.
type MemoryStore struct {
	mu        sync.RWMutex
	templates []*Template
}

// NewMemoryStore creates an empty in-memory store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{}
}

func (s *MemoryStore) Create(_ context.Context, t *Template) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if t.ID == "" {
		t.ID = uuid.New().String()
	}
	if t.CreatedAt.IsZero() {
		t.CreatedAt = time.Now().UTC()
	}

	maxVersion := 0
	for _, existing := range s.templates {
		if existing.OrgID == t.OrgID && existing.Feature == t.Feature && existing.Version > maxVersion {
			maxVersion = existing.Version
		}
	}
	t.Version = maxVersion + 1

	clone := *t
	s.templates = append(s.templates, &clone)
	return nil
}

func (s *MemoryStore) Activate(_ context.Context, orgID, feature string, version int) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	var target *Template
	for _, t := range s.templates {
		if t.OrgID == orgID && t.Feature == feature && t.Version == version {
			target = t
			break
		}
	}
	if target == nil {
		return fmt.Errorf("template version %d not found for %s/%s", version, orgID, feature)
	}

	for _, t := range s.templates {
		if t.OrgID == orgID && t.Feature == feature {
			t.Active = false
		}
	}
	target.Active = true
	now := time.Now().UTC()
	target.ActivatedAt = &now
	return nil
}

func (s *MemoryStore) ActiveByName(_ context.Context, orgID, feature, name string) (*Template, error) {
	return s.pick(orgID, feature, func(t *Template) bool {
		return t.Active && t.Name == name
	}), nil
}

func (s *MemoryStore) ActiveDefault(_ context.Context, orgID, feature string) (*Template, error) {
	return s.pick(orgID, feature, func(t *Template) bool {
		return t.Active && t.IsDefault
	}), nil
}

func (s *MemoryStore) Active(_ context.Context, orgID, feature string) (*Template, error) {
	return s.pick(orgID, feature, func(t *Template) bool {
		return t.Active
	}), nil
}

func (s *MemoryStore) Newest(_ context.Context, orgID, feature string) (*Template, error) {
	return s.pick(orgID, feature, func(t *Template) bool {
		return true
	}), nil
}

// pick returns the highest-version template matching the filter, or nil.
func (s *MemoryStore) pick(orgID, feature string, match func(*Template) bool) *Template {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var best *Template
	for _, t := range s.templates {
		if t.OrgID != orgID || t.Feature != feature || !match(t) {
			continue
		}
		if best == nil || t.Version > best.Version {
			best = t
		}
	}
	if best == nil {
		return nil
	}
	clone := *best
	return &clone
}

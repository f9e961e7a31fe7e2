// Copyright 2025 Keystone
// SPDX-License-Identifier: Apache-2.0

package prompt

import (
	"context"
	"fmt"
	"regexp"
	"sort"
	"time"
)

// variablePattern matches {{name}} placeholders in a user template.
var variablePattern = regexp.MustCompile(`\{\{\s*([a-zA-Z0-9_.]+)\s*\}\}`)

// Resolver looks up the template to use for a request and caches the result
// with a short TTL. Writes go through the resolver so the cache is
// invalidated on every create and activation.
type Resolver struct {
	store Store
	cache *templateCache
}

// NewResolver creates a resolver over a store with the given cache TTL.
func NewResolver(store Store, cacheTTL time.Duration) *Resolver {
	return &Resolver{
		store: store,
		cache: newTemplateCache(cacheTTL),
	}
}

// Resolve returns the template for (feature, org), optionally pinned to a
// named template. Precedence: named active, then active default, then any
// active, then the newest version. An empty org or a feature with no
// templates at all is a ConfigurationError.
func (r *Resolver) Resolve(ctx context.Context, orgID, feature, name string) (*Template, error) {
	if orgID == "" {
		return nil, &ConfigurationError{Reason: "organization id is empty"}
	}
	if feature == "" {
		return nil, &ConfigurationError{Reason: "feature is empty"}
	}

	key := cacheKey(orgID, feature, name)
	if cached, ok := r.cache.Get(key); ok {
		return cached, nil
	}

	lookups := []func(context.Context) (*Template, error){
		func(ctx context.Context) (*Template, error) {
			if name == "" {
				return nil, nil
			}
			return r.store.ActiveByName(ctx, orgID, feature, name)
		},
		func(ctx context.Context) (*Template, error) {
			return r.store.ActiveDefault(ctx, orgID, feature)
		},
		func(ctx context.Context) (*Template, error) {
			return r.store.Active(ctx, orgID, feature)
		},
		func(ctx context.Context) (*Template, error) {
			return r.store.Newest(ctx, orgID, feature)
		},
	}

	for _, lookup := range lookups {
		t, err := lookup(ctx)
		if err != nil {
			return nil, fmt.Errorf("template lookup failed: %w", err)
		}
		if t != nil {
			r.cache.Set(key, t)
			return t, nil
		}
	}

	return nil, &ConfigurationError{
		Reason: fmt.Sprintf("no prompt template exists for org %q feature %q", orgID, feature),
	}
}

// Create stores a new template version and invalidates cached resolutions
// for its (org, feature) pair.
func (r *Resolver) Create(ctx context.Context, t *Template) error {
	if err := r.store.Create(ctx, t); err != nil {
		return err
	}
	r.cache.InvalidatePair(t.OrgID, t.Feature)
	return nil
}

// Activate swaps the active version and invalidates cached resolutions.
func (r *Resolver) Activate(ctx context.Context, orgID, feature string, version int) error {
	if err := r.store.Activate(ctx, orgID, feature, version); err != nil {
		return err
	}
	r.cache.InvalidatePair(orgID, feature)
	return nil
}

// CacheStats exposes resolution cache counters.
func (r *Resolver) CacheStats() CacheStats {
	return r.cache.Stats()
}

// Interpolate substitutes {{name}} placeholders in the template's user
// prompt. Every placeholder must resolve; unresolved names fail with a
// TemplateError rather than sending a prompt with holes to a provider.
func Interpolate(t *Template, variables map[string]string) (string, error) {
	missing := make(map[string]bool)

	result := variablePattern.ReplaceAllStringFunc(t.UserTemplate, func(match string) string {
		name := variablePattern.FindStringSubmatch(match)[1]
		value, ok := variables[name]
		if !ok {
			missing[name] = true
			return match
		}
		return value
	})

	if len(missing) > 0 {
		names := make([]string, 0, len(missing))
		for name := range missing {
			names = append(names, name)
		}
		sort.Strings(names)
		return "", &TemplateError{Feature: t.Feature, Missing: names}
	}
	return result, nil
}

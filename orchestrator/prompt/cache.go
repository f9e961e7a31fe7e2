// Copyright 2025 Keystone
// SPDX-License-Identifier: Apache-2.0

package prompt

import (
	"strings"
	"sync"
	"time"
)

// cacheEntry wraps a cached value with its expiration.
type cacheEntry[T any] struct {
	Value     T
	ExpiresAt time.Time
}

func (e *cacheEntry[T]) IsExpired() bool {
	return time.Now().After(e.ExpiresAt)
}

// CacheStats tracks resolution cache performance.
type CacheStats struct {
	Hits      int64
	Misses    int64
	Evictions int64
}

// templateCache is a thread-safe TTL cache for resolved templates, keyed by
// (org, feature, name).
type templateCache struct {
	entries map[string]*cacheEntry[*Template]
	ttl     time.Duration
	mu      sync.RWMutex
	stats   CacheStats
}

func newTemplateCache(ttl time.Duration) *templateCache {
	if ttl <= 0 {
		ttl = 30 * time.Second
	}
	return &templateCache{
		entries: make(map[string]*cacheEntry[*Template]),
		ttl:     ttl,
	}
}

func cacheKey(orgID, feature, name string) string {
	return orgID + "|" + feature + "|" + name
}

func (c *templateCache) Get(key string) (*Template, bool) {
	c.mu.RLock()
	entry, exists := c.entries[key]
	c.mu.RUnlock()

	if !exists || entry.IsExpired() {
		c.mu.Lock()
		c.stats.Misses++
		c.mu.Unlock()
		return nil, false
	}

	c.mu.Lock()
	c.stats.Hits++
	c.mu.Unlock()
	return entry.Value, true
}

func (c *templateCache) Set(key string, t *Template) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.entries[key] = &cacheEntry[*Template]{
		Value:     t,
		ExpiresAt: time.Now().Add(c.ttl),
	}
}

// InvalidatePair drops every cached resolution for the (org, feature) pair,
// whatever name it was resolved under. Called on create and activate.
func (c *templateCache) InvalidatePair(orgID, feature string) {
	c.mu.Lock()
	defer c.mu.Unlock()

	prefix := orgID + "|" + feature + "|"
	for key := range c.entries {
		if strings.HasPrefix(key, prefix) {
			delete(c.entries, key)
			c.stats.Evictions++
		}
	}
}

// Cleanup removes expired entries and returns how many were evicted.
func (c *templateCache) Cleanup() int {
	c.mu.Lock()
	defer c.mu.Unlock()

	evicted := 0
	for key, entry := range c.entries {
		if entry.IsExpired() {
			delete(c.entries, key)
			evicted++
		}
	}
	c.stats.Evictions += int64(evicted)
	return evicted
}

func (c *templateCache) Stats() CacheStats {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.stats
}

// Copyright 2025 Keystone
// SPDX-License-Identifier: Apache-2.0

// Package guardrail detects and redacts personally identifiable information
// in prompts before they leave the process, and restores redacted tokens in
// provider output afterwards. Redaction state lives for exactly one request
// and is threaded through every guardrail pass so restoration covers all
// substitutions made along the way.
package guardrail

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
)

// Category classifies a detected PII value. The category name is embedded in
// placeholder tokens, e.g. [EMAIL_1].
type Category string

const (
	CategoryEmail      Category = "EMAIL"
	CategoryPhone      Category = "PHONE"
	CategorySSN        Category = "SSN"
	CategoryLicense    Category = "LICENSE"
	CategoryAccount    Category = "ACCOUNT"
	CategoryCreditCard Category = "CREDIT_CARD"
	CategoryAddress    Category = "ADDRESS"
	CategoryName       Category = "NAME"
)

// Strategy selects how detected values are replaced.
type Strategy string

const (
	// StrategyPlaceholder replaces values with [TYPE_n] tokens. Reversible
	// through the per-request state map.
	StrategyPlaceholder Strategy = "placeholder"

	// StrategyHash replaces values with a truncated SHA-256 digest. Stable
	// across occurrences, reversible only through the state map, never by
	// re-deriving from the digest.
	StrategyHash Strategy = "hash"

	// StrategyMask replaces values with a fixed mask. Not reversible.
	StrategyMask Strategy = "mask"
)

// maskLiteral is the replacement used by StrategyMask.
const maskLiteral = "*****"

// Match is a single detected PII value with its position in the scanned
// text.
type Match struct {
	Category Category `json:"category"`
	Value    string   `json:"value"`
	Start    int      `json:"start"`
	End      int      `json:"end"`
}

// State carries everything needed to reverse a redaction: the token →
// original-value map and the running per-category counters. One State exists
// per request, accumulates across multiple Redact passes, is never
// persisted, and must not be shared between requests.
type State struct {
	tokens   map[string]string
	counters map[Category]int
	matches  []Match
}

// NewState creates an empty redaction state for one request.
func NewState() *State {
	return &State{
		tokens:   make(map[string]string),
		counters: make(map[Category]int),
	}
}

// HasRedactions reports whether any pass replaced at least one value.
func (s *State) HasRedactions() bool {
	return len(s.tokens) > 0
}

// Matches returns every match recorded across all passes.
func (s *State) Matches() []Match {
	return s.matches
}

// Counts returns the number of redactions per category.
func (s *State) Counts() map[Category]int {
	out := make(map[Category]int, len(s.counters))
	for c, n := range s.counters {
		out[c] = n
	}
	return out
}

// nextToken mints the replacement token for a value under the given
// strategy and records the reverse mapping for restorable strategies.
func (s *State) nextToken(strategy Strategy, category Category, value string) string {
	switch strategy {
	case StrategyHash:
		sum := sha256.Sum256([]byte(value))
		token := fmt.Sprintf("[%s#%s]", category, hex.EncodeToString(sum[:])[:12])
		s.tokens[token] = value
		return token
	case StrategyMask:
		return maskLiteral
	default:
		s.counters[category]++
		token := fmt.Sprintf("[%s_%d]", category, s.counters[category])
		s.tokens[token] = value
		return token
	}
}

// Copyright 2025 Keystone
// SPDX-License-Identifier: Apache-2.0

package guardrail

import (
	"regexp"
	"sort"
	"strings"
)

// Options configures one Redact pass.
type Options struct {
	// Strategy selects the replacement form. Empty means placeholder.
	Strategy Strategy

	// Allowlist exempts matched values from redaction. Entries are exact
	// literals unless they compile via AllowPattern.
	Allowlist []string
}

// Engine performs PII detection, redaction, and restoration. It is
// stateless and safe for concurrent use; all per-request mutability lives in
// the State threaded through each call.
type Engine struct {
	allowLiterals map[string]bool
	allowPatterns []*regexp.Regexp
}

// New creates a guardrail engine with an organization-level allowlist.
// Entries that compile as regular expressions are treated as patterns;
// everything else is an exact literal. (Brokerage allowlists carry both:
// office email domains as patterns, branded names as literals.)
func New(allowlist []string) *Engine {
	e := &Engine{allowLiterals: make(map[string]bool)}
	for _, entry := range allowlist {
		if entry == "" {
			continue
		}
		if looksLikePattern(entry) {
			if re, err := regexp.Compile(entry); err == nil {
				e.allowPatterns = append(e.allowPatterns, re)
				continue
			}
		}
		e.allowLiterals[entry] = true
	}
	return e
}

// looksLikePattern reports whether an allowlist entry uses regex
// metacharacters. Plain literals skip compilation entirely so a literal
// containing a dot ("Smith & Co.") is not misread as a pattern.
func looksLikePattern(s string) bool {
	return strings.ContainsAny(s, "\\^$*+?()[]{}|")
}

// Detect scans text with every category pass, merges the results, and
// deduplicates overlaps: matches sorted by start ascending, ties broken by
// longer match first, and any match starting inside a previously accepted
// one is discarded.
func (e *Engine) Detect(text string) []Match {
	var matches []Match
	for _, p := range patterns {
		for _, loc := range p.regex.FindAllStringIndex(text, -1) {
			value := text[loc[0]:loc[1]]
			if p.validator != nil && !p.validator(value) {
				continue
			}
			matches = append(matches, Match{
				Category: p.category,
				Value:    value,
				Start:    loc[0],
				End:      loc[1],
			})
		}
	}
	return dedupeOverlaps(matches)
}

// dedupeOverlaps enforces the non-overlap invariant the right-to-left
// replacement depends on.
func dedupeOverlaps(matches []Match) []Match {
	if len(matches) < 2 {
		return matches
	}

	sort.Slice(matches, func(i, j int) bool {
		if matches[i].Start != matches[j].Start {
			return matches[i].Start < matches[j].Start
		}
		return matches[i].End > matches[j].End
	})

	deduped := matches[:1]
	for _, m := range matches[1:] {
		if m.Start < deduped[len(deduped)-1].End {
			continue
		}
		deduped = append(deduped, m)
	}
	return deduped
}

// Redact detects PII in text and replaces it per the options, accumulating
// into state. Replacement walks matches right-to-left (highest start first)
// so earlier offsets stay valid while the string is rewritten.
func (e *Engine) Redact(text string, opts Options, state *State) string {
	strategy := opts.Strategy
	if strategy == "" {
		strategy = StrategyPlaceholder
	}

	allow := e.withRequestAllowlist(opts.Allowlist)

	matches := e.Detect(text)
	kept := matches[:0]
	for _, m := range matches {
		if allow(m.Value) {
			continue
		}
		kept = append(kept, m)
	}

	// Mint tokens in document order so counters read naturally, then apply
	// replacements right-to-left so offsets stay valid.
	tokens := make([]string, len(kept))
	for i, m := range kept {
		tokens[i] = state.nextToken(strategy, m.Category, m.Value)
	}
	for i := len(kept) - 1; i >= 0; i-- {
		m := kept[i]
		text = text[:m.Start] + tokens[i] + text[m.End:]
	}
	state.matches = append(state.matches, kept...)

	return text
}

// Restore replaces redaction tokens in provider output with the original
// values from state. Longest tokens are restored first so a token that is a
// prefix of another ([EMAIL_1] vs [EMAIL_12]) never corrupts the longer one.
// Mask redactions are not in the map and stay masked.
func (e *Engine) Restore(text string, state *State) string {
	if state == nil || len(state.tokens) == 0 {
		return text
	}

	tokens := make([]string, 0, len(state.tokens))
	for token := range state.tokens {
		tokens = append(tokens, token)
	}
	sort.Slice(tokens, func(i, j int) bool {
		if len(tokens[i]) != len(tokens[j]) {
			return len(tokens[i]) > len(tokens[j])
		}
		return tokens[i] < tokens[j]
	})

	for _, token := range tokens {
		text = strings.ReplaceAll(text, token, state.tokens[token])
	}
	return text
}

// withRequestAllowlist merges the engine-level allowlist with per-call
// additions.
func (e *Engine) withRequestAllowlist(extra []string) func(string) bool {
	extraLiterals := make(map[string]bool, len(extra))
	var extraPatterns []*regexp.Regexp
	for _, entry := range extra {
		if entry == "" {
			continue
		}
		if looksLikePattern(entry) {
			if re, err := regexp.Compile(entry); err == nil {
				extraPatterns = append(extraPatterns, re)
				continue
			}
		}
		extraLiterals[entry] = true
	}

	return func(value string) bool {
		if e.allowLiterals[value] || extraLiterals[value] {
			return true
		}
		for _, re := range e.allowPatterns {
			if re.MatchString(value) {
				return true
			}
		}
		for _, re := range extraPatterns {
			if re.MatchString(value) {
				return true
			}
		}
		return false
	}
}

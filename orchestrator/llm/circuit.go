// Copyright 2025 Keystone
// SPDX-License-Identifier: Apache-2.0

package llm

import (
	"sync"
	"time"
)

// CircuitState represents the state of a provider's circuit breaker.
type CircuitState string

const (
	// CircuitClosed allows requests through.
	CircuitClosed CircuitState = "closed"
	// CircuitOpen skips the provider entirely.
	CircuitOpen CircuitState = "open"
	// CircuitHalfOpen allows a single probe request through.
	CircuitHalfOpen CircuitState = "half_open"
)

// CircuitBreaker is the per-provider availability gate. It lives for the
// whole process, is consulted before every attempt, and is advisory-skip
// only: it never produces an error itself, the orchestrator simply moves on
// to the next candidate when Allow returns false.
//
// All methods are safe for concurrent use; two requests racing to record a
// failure cannot lose an increment.
type CircuitBreaker struct {
	mu                  sync.Mutex
	state               CircuitState
	consecutiveFailures int
	openedAt            time.Time
	probeInFlight       bool

	threshold   int
	resetWindow time.Duration
	now         func() time.Time
}

// CircuitSnapshot is a read-only copy of breaker state for logging and
// metrics.
type CircuitSnapshot struct {
	State               CircuitState `json:"state"`
	ConsecutiveFailures int          `json:"consecutive_failures"`
	OpenedAt            time.Time    `json:"opened_at,omitempty"`
}

// NewCircuitBreaker creates a closed breaker that opens after threshold
// consecutive non-auth failures and probes again after resetWindow.
func NewCircuitBreaker(threshold int, resetWindow time.Duration) *CircuitBreaker {
	return &CircuitBreaker{
		state:       CircuitClosed,
		threshold:   threshold,
		resetWindow: resetWindow,
		now:         time.Now,
	}
}

// Allow reports whether a call may be attempted. An open circuit whose reset
// window has elapsed transitions to half-open and admits exactly one probe;
// further callers are refused until RecordSuccess or RecordFailure settles
// the probe.
func (cb *CircuitBreaker) Allow() bool {
	cb.mu.Lock()
	defer cb.mu.Unlock()

	switch cb.state {
	case CircuitClosed:
		return true
	case CircuitHalfOpen:
		if cb.probeInFlight {
			return false
		}
		cb.probeInFlight = true
		return true
	case CircuitOpen:
		if cb.now().Sub(cb.openedAt) >= cb.resetWindow {
			cb.state = CircuitHalfOpen
			cb.probeInFlight = true
			return true
		}
		return false
	}
	return false
}

// RecordSuccess closes the circuit and resets the failure counter. A
// half-open probe that succeeds lands here.
func (cb *CircuitBreaker) RecordSuccess() {
	cb.mu.Lock()
	defer cb.mu.Unlock()

	cb.consecutiveFailures = 0
	cb.state = CircuitClosed
	cb.probeInFlight = false
}

// RecordFailure records a failed call. Auth errors are observed but never
// counted: a bad API key is a configuration problem for one caller, and must
// not degrade the shared breaker for everyone. A failure during half-open
// re-opens the circuit with a refreshed openedAt.
func (cb *CircuitBreaker) RecordFailure(errType ErrorType) {
	cb.mu.Lock()
	defer cb.mu.Unlock()

	if errType == ErrorTypeAuth {
		// Not counted, but an auth-failed probe is still settled so the next
		// caller can probe.
		cb.probeInFlight = false
		return
	}

	if cb.state == CircuitHalfOpen {
		cb.state = CircuitOpen
		cb.openedAt = cb.now()
		cb.probeInFlight = false
		return
	}

	cb.consecutiveFailures++
	if cb.consecutiveFailures >= cb.threshold {
		cb.state = CircuitOpen
		cb.openedAt = cb.now()
	}
}

// Snapshot returns a copy of the current breaker state.
func (cb *CircuitBreaker) Snapshot() CircuitSnapshot {
	cb.mu.Lock()
	defer cb.mu.Unlock()

	return CircuitSnapshot{
		State:               cb.state,
		ConsecutiveFailures: cb.consecutiveFailures,
		OpenedAt:            cb.openedAt,
	}
}

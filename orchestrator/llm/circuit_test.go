// Copyright 2025 Keystone
// SPDX-License-Identifier: Apache-2.0

package llm

import (
	"sync"
	"testing"
	"time"
)

func TestCircuitBreaker_OpensAfterThreshold(t *testing.T) {
	cb := NewCircuitBreaker(3, 30*time.Second)

	for i := 0; i < 2; i++ {
		cb.RecordFailure(ErrorTypeServer)
	}
	if snap := cb.Snapshot(); snap.State != CircuitClosed {
		t.Fatalf("state after 2 failures = %s, want closed", snap.State)
	}

	cb.RecordFailure(ErrorTypeServer)
	snap := cb.Snapshot()
	if snap.State != CircuitOpen {
		t.Fatalf("state after 3 failures = %s, want open", snap.State)
	}
	if snap.ConsecutiveFailures != 3 {
		t.Errorf("consecutiveFailures = %d, want 3", snap.ConsecutiveFailures)
	}
	if cb.Allow() {
		t.Error("open circuit must not allow calls before the reset window")
	}
}

func TestCircuitBreaker_AuthFailuresNeverOpen(t *testing.T) {
	cb := NewCircuitBreaker(2, 30*time.Second)

	for i := 0; i < 10; i++ {
		cb.RecordFailure(ErrorTypeAuth)
	}

	snap := cb.Snapshot()
	if snap.State != CircuitClosed {
		t.Errorf("state = %s, want closed after auth-only failures", snap.State)
	}
	if snap.ConsecutiveFailures != 0 {
		t.Errorf("consecutiveFailures = %d, want 0", snap.ConsecutiveFailures)
	}
}

func TestCircuitBreaker_HalfOpenAfterResetWindow(t *testing.T) {
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	cb := NewCircuitBreaker(1, 30*time.Second)
	cb.now = func() time.Time { return now }

	cb.RecordFailure(ErrorTypeUnavailable)
	if cb.Allow() {
		t.Fatal("freshly opened circuit must not allow calls")
	}

	// Just before the window elapses: still open.
	now = now.Add(29 * time.Second)
	if cb.Allow() {
		t.Fatal("circuit allowed a call before resetWindow elapsed")
	}

	// Past the window: one probe allowed, state half_open.
	now = now.Add(2 * time.Second)
	if !cb.Allow() {
		t.Fatal("circuit must allow a probe after resetWindow")
	}
	if snap := cb.Snapshot(); snap.State != CircuitHalfOpen {
		t.Fatalf("state = %s, want half_open", snap.State)
	}

	// Probe success closes the circuit and resets the counter.
	cb.RecordSuccess()
	snap := cb.Snapshot()
	if snap.State != CircuitClosed {
		t.Errorf("state after probe success = %s, want closed", snap.State)
	}
	if snap.ConsecutiveFailures != 0 {
		t.Errorf("consecutiveFailures = %d, want 0", snap.ConsecutiveFailures)
	}
}

func TestCircuitBreaker_HalfOpenAdmitsSingleProbe(t *testing.T) {
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	cb := NewCircuitBreaker(1, 10*time.Second)
	cb.now = func() time.Time { return now }

	cb.RecordFailure(ErrorTypeServer)
	now = now.Add(11 * time.Second)

	admitted := 0
	for i := 0; i < 5; i++ {
		if cb.Allow() {
			admitted++
		}
	}
	if admitted != 1 {
		t.Fatalf("admitted %d calls while half_open, want 1", admitted)
	}

	// A settled probe frees the slot: failure re-opens, and after another
	// window exactly one caller gets through again.
	cb.RecordFailure(ErrorTypeServer)
	if cb.Allow() {
		t.Fatal("re-opened circuit must not allow calls")
	}
	now = now.Add(11 * time.Second)
	if !cb.Allow() {
		t.Fatal("expected a fresh probe after the reset window")
	}
	if cb.Allow() {
		t.Fatal("second caller admitted alongside the fresh probe")
	}

	// An auth-failed probe is not counted but still settles the slot.
	cb.RecordFailure(ErrorTypeAuth)
	if snap := cb.Snapshot(); snap.State != CircuitHalfOpen {
		t.Fatalf("state after auth probe failure = %s, want half_open", snap.State)
	}
	if !cb.Allow() {
		t.Fatal("auth-settled probe must free the slot for the next caller")
	}

	// A successful probe closes the circuit for everyone.
	cb.RecordSuccess()
	if !cb.Allow() || !cb.Allow() {
		t.Fatal("closed circuit must admit all callers")
	}
}

func TestCircuitBreaker_HalfOpenFailureReopens(t *testing.T) {
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	cb := NewCircuitBreaker(1, 10*time.Second)
	cb.now = func() time.Time { return now }

	cb.RecordFailure(ErrorTypeServer)
	openedAt := cb.Snapshot().OpenedAt

	now = now.Add(11 * time.Second)
	if !cb.Allow() {
		t.Fatal("expected half-open probe")
	}

	now = now.Add(time.Second)
	cb.RecordFailure(ErrorTypeServer)

	snap := cb.Snapshot()
	if snap.State != CircuitOpen {
		t.Fatalf("state = %s, want open after half-open failure", snap.State)
	}
	if !snap.OpenedAt.After(openedAt) {
		t.Error("openedAt was not refreshed on re-open")
	}
}

func TestCircuitBreaker_ConcurrentFailures(t *testing.T) {
	cb := NewCircuitBreaker(100, time.Minute)

	var wg sync.WaitGroup
	for i := 0; i < 100; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			cb.RecordFailure(ErrorTypeServer)
		}()
	}
	wg.Wait()

	snap := cb.Snapshot()
	if snap.ConsecutiveFailures != 100 {
		t.Errorf("consecutiveFailures = %d, want 100 (lost updates)", snap.ConsecutiveFailures)
	}
	if snap.State != CircuitOpen {
		t.Errorf("state = %s, want open", snap.State)
	}
}

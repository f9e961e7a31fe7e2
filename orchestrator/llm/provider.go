// Copyright 2025 Keystone
// SPDX-License-Identifier: Apache-2.0

package llm

import (
	"context"
)

// Provider is the unified interface for all LLM backends.
// Implementations must be safe for concurrent use.
//
// The orchestrator holds a fixed, priority-ordered slice of Provider
// instances and walks it during failover; there is no inheritance hierarchy
// and no dynamic registration.
type Provider interface {
	// Name returns the unique identifier for this provider instance.
	// This is used for circuit keying, routing, logging, and pricing lookups.
	Name() string

	// Type returns the provider type identifying the underlying backend.
	Type() ProviderType

	// IsConfigured reports whether the provider has the credentials it needs
	// to accept traffic. Unconfigured providers are skipped during failover
	// without counting as failures.
	IsConfigured() bool

	// DefaultModel returns the model used when neither the request nor the
	// prompt template names one.
	DefaultModel() string

	// Complete executes one completion call. The context carries caller
	// cancellation and deadline; adapters must propagate it into the
	// outbound HTTP request. Failures are returned as *ProviderError.
	Complete(ctx context.Context, req ProviderRequest) (*ProviderResponse, error)
}

// Copyright 2025 Keystone
// SPDX-License-Identifier: Apache-2.0

package orchestrator

import (
	"github.com/prometheus/client_golang/prometheus"
)

// Prometheus metrics
var (
	promCompletionsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "aicore_completions_total",
			Help: "Completion requests by final outcome",
		},
		[]string{"feature", "outcome"},
	)
	promCompletionDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "aicore_completion_duration_milliseconds",
			Help:    "End-to-end completion duration in milliseconds",
			Buckets: []float64{50, 100, 250, 500, 1000, 2500, 5000, 10000, 30000},
		},
		[]string{"feature"},
	)
	promProviderCalls = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "aicore_provider_calls_total",
			Help: "Provider attempts by provider and status",
		},
		[]string{"provider", "status"},
	)
	promCircuitState = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "aicore_circuit_open",
			Help: "1 when the provider's circuit is open, 0 otherwise",
		},
		[]string{"provider"},
	)
	promRedactionsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "aicore_pii_redactions_total",
			Help: "PII values redacted before leaving the process, by category",
		},
		[]string{"category"},
	)
	promPendingQueued = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "aicore_pending_actions_queued_total",
			Help: "Outputs queued for human approval",
		},
	)
)

func init() {
	prometheus.MustRegister(promCompletionsTotal)
	prometheus.MustRegister(promCompletionDuration)
	prometheus.MustRegister(promProviderCalls)
	prometheus.MustRegister(promCircuitState)
	prometheus.MustRegister(promRedactionsTotal)
	prometheus.MustRegister(promPendingQueued)
}

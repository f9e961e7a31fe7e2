// Copyright 2025 Keystone
// SPDX-License-Identifier: Apache-2.0

package orchestrator

// ApprovalPolicy controls whether a feature's output must be human-reviewed
// before execution.
type ApprovalPolicy string

const (
	// PolicyRequired queues every output for review; execution waits.
	PolicyRequired ApprovalPolicy = "required"

	// PolicyOptional lets the caller queue for review; nothing is enqueued
	// automatically.
	PolicyOptional ApprovalPolicy = "optional"

	// PolicyNone never involves the approval gate.
	PolicyNone ApprovalPolicy = "none"
)

// PolicyTable maps features to their approval policy. Features absent from
// the table default to none.
type PolicyTable map[string]ApprovalPolicy

// DefaultPolicyTable reflects brokerage compliance rules: anything that can
// reach a client or a regulator is reviewed, internal assistants are not.
func DefaultPolicyTable() PolicyTable {
	return PolicyTable{
		"listing_description": PolicyOptional,
		"compliance_check":    PolicyRequired,
		"risk_summary":        PolicyRequired,
		"client_email":        PolicyRequired,
		"chat_assistant":      PolicyNone,
		"market_analysis":     PolicyNone,
	}
}

// For evaluates the policy for a feature. force escalates to required
// regardless of the table.
func (t PolicyTable) For(feature string, force bool) ApprovalPolicy {
	if force {
		return PolicyRequired
	}
	if policy, ok := t[feature]; ok {
		return policy
	}
	return PolicyNone
}

// Copyright 2025 Keystone
// SPDX-License-Identifier: Apache-2.0

// Package approval holds generated outputs that require human review before
// they may be executed. Generation is never blocked on approval; the gate
// controls execution of the reviewed content only.
package approval

import (
	"encoding/json"
	"errors"
	"time"
)

// Status is the lifecycle state of a pending action.
type Status string

const (
	StatusPending    Status = "pending"
	StatusApproved   Status = "approved"
	StatusRejected   Status = "rejected"
	StatusExecuted   Status = "executed"
	StatusExpired    Status = "expired"
	StatusSuperseded Status = "superseded"
)

var (
	// ErrNotFound is returned when no pending action has the given id.
	ErrNotFound = errors.New("pending action not found")

	// ErrInvalidTransition is returned when a lifecycle operation is applied
	// to an action in the wrong state.
	ErrInvalidTransition = errors.New("invalid pending action transition")
)

// PendingAction is one generated output queued for review. Content is the
// full generated text; Preview is a truncated copy for list surfaces so
// reviewers can scan a queue without loading every body. RequestSnapshot
// preserves the originating request as opaque JSON for audit and regenerate.
type PendingAction struct {
	ID              string          `json:"id"`
	OrgID           string          `json:"org_id"`
	UserID          string          `json:"user_id"`
	Feature         string          `json:"feature"`
	ActionType      string          `json:"action_type"`
	EntityType      string          `json:"entity_type,omitempty"`
	EntityID        string          `json:"entity_id,omitempty"`
	Content         string          `json:"content"`
	Preview         string          `json:"preview,omitempty"`
	RequestSnapshot json.RawMessage `json:"request_snapshot,omitempty"`
	Status          Status          `json:"status"`
	ReviewerID      string          `json:"reviewer_id,omitempty"`
	ReviewComment   string          `json:"review_comment,omitempty"`
	SupersededBy    string          `json:"superseded_by,omitempty"`
	ExecutionResult string          `json:"execution_result,omitempty"`
	CreatedAt       time.Time       `json:"created_at"`
	UpdatedAt       time.Time       `json:"updated_at"`
	ExpiresAt       time.Time       `json:"expires_at"`
	ReviewedAt      *time.Time      `json:"reviewed_at,omitempty"`
	ExecutedAt      *time.Time      `json:"executed_at,omitempty"`
}

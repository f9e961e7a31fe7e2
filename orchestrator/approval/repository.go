// Copyright 2025 Keystone
// SPDX-License-Identifier: Apache-2.0

package approval

import (
	"context"
	"time"
)

// ListOptions selects a page of pending actions. Cursor is the last-seen id
// from the previous page; empty means start from the beginning.
type ListOptions struct {
	Status   Status
	Cursor   string
	PageSize int
}

const (
	// DefaultPageSize applies when ListOptions.PageSize is zero or negative.
	DefaultPageSize = 20

	// MaxPageSize caps ListOptions.PageSize.
	MaxPageSize = 100
)

// Repository persists pending actions.
type Repository interface {
	Insert(ctx context.Context, action *PendingAction) error

	// Get returns the action or ErrNotFound.
	Get(ctx context.Context, id string) (*PendingAction, error)

	Update(ctx context.Context, action *PendingAction) error

	// List returns a page of an organization's actions ordered by id, plus
	// the cursor for the next page (empty when exhausted).
	List(ctx context.Context, orgID string, opts ListOptions) ([]*PendingAction, string, error)

	// ExpirePending flips every pending action past its expiry at the cutoff
	// to expired and reports how many rows changed.
	ExpirePending(ctx context.Context, cutoff time.Time) (int, error)
}

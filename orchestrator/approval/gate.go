// Copyright 2025 Keystone
// SPDX-License-Identifier: Apache-2.0

package approval

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"

	"keystone/aicore/shared/logger"
)

// previewLength bounds the truncated content copy stored for list surfaces.
const previewLength = 200

// QueueInput carries everything needed to queue a generated output for
// review. RequestSnapshot is the originating request as JSON; the gate
// stores it opaquely.
type QueueInput struct {
	OrgID           string
	UserID          string
	Feature         string
	ActionType      string
	EntityType      string
	EntityID        string
	Content         string
	RequestSnapshot json.RawMessage
}

// ExecuteResult is the outcome of attempting to execute a reviewed action.
type ExecuteResult struct {
	OK      bool
	Content string
}

// Gate manages the pending-action lifecycle. Clock is injectable for expiry
// tests.
type Gate struct {
	repo Repository
	ttl  time.Duration
	log  *logger.Logger
	now  func() time.Time
}

// NewGate creates a gate whose queued actions expire after ttl.
func NewGate(repo Repository, ttl time.Duration, log *logger.Logger) *Gate {
	return &Gate{
		repo: repo,
		ttl:  ttl,
		log:  log,
		now:  time.Now,
	}
}

// Queue stores a new pending action. The caller still receives the generated
// content; only execution waits on review.
func (g *Gate) Queue(ctx context.Context, in QueueInput) (*PendingAction, error) {
	if in.OrgID == "" {
		return nil, fmt.Errorf("queue: organization id is required")
	}

	now := g.now().UTC()
	action := &PendingAction{
		ID:              uuid.New().String(),
		OrgID:           in.OrgID,
		UserID:          in.UserID,
		Feature:         in.Feature,
		ActionType:      in.ActionType,
		EntityType:      in.EntityType,
		EntityID:        in.EntityID,
		Content:         in.Content,
		Preview:         truncate(in.Content, previewLength),
		RequestSnapshot: in.RequestSnapshot,
		Status:          StatusPending,
		CreatedAt:       now,
		UpdatedAt:       now,
		ExpiresAt:       now.Add(g.ttl),
	}

	if err := g.repo.Insert(ctx, action); err != nil {
		return nil, fmt.Errorf("failed to queue pending action: %w", err)
	}

	if g.log != nil {
		g.log.Info(action.OrgID, "", "pending action queued", map[string]interface{}{
			"action_id": action.ID,
			"feature":   action.Feature,
		})
	}
	return action, nil
}

// Approve transitions a pending action to approved.
func (g *Gate) Approve(ctx context.Context, id, reviewerID, comment string) (*PendingAction, error) {
	return g.review(ctx, id, reviewerID, comment, StatusApproved)
}

// Reject transitions a pending action to rejected.
func (g *Gate) Reject(ctx context.Context, id, reviewerID, comment string) (*PendingAction, error) {
	return g.review(ctx, id, reviewerID, comment, StatusRejected)
}

func (g *Gate) review(ctx context.Context, id, reviewerID, comment string, to Status) (*PendingAction, error) {
	action, err := g.repo.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if action.Status != StatusPending {
		return nil, fmt.Errorf("%w: cannot move %s action %s to %s",
			ErrInvalidTransition, action.Status, id, to)
	}

	now := g.now().UTC()
	action.Status = to
	action.ReviewerID = reviewerID
	action.ReviewComment = comment
	action.ReviewedAt = &now
	action.UpdatedAt = now

	if err := g.repo.Update(ctx, action); err != nil {
		return nil, fmt.Errorf("failed to update pending action: %w", err)
	}
	return action, nil
}

// Regenerate supersedes an existing action and queues a fresh pending one
// with the new content and a reset expiry. The old row keeps a pointer to
// its replacement.
func (g *Gate) Regenerate(ctx context.Context, id, newContent string) (*PendingAction, error) {
	old, err := g.repo.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if old.Status == StatusExecuted {
		return nil, fmt.Errorf("%w: executed action %s cannot be regenerated",
			ErrInvalidTransition, id)
	}

	replacement, err := g.Queue(ctx, QueueInput{
		OrgID:           old.OrgID,
		UserID:          old.UserID,
		Feature:         old.Feature,
		ActionType:      old.ActionType,
		EntityType:      old.EntityType,
		EntityID:        old.EntityID,
		Content:         newContent,
		RequestSnapshot: old.RequestSnapshot,
	})
	if err != nil {
		return nil, err
	}

	now := g.now().UTC()
	old.Status = StatusSuperseded
	old.SupersededBy = replacement.ID
	old.UpdatedAt = now
	if err := g.repo.Update(ctx, old); err != nil {
		return nil, fmt.Errorf("failed to supersede action %s: %w", id, err)
	}

	return replacement, nil
}

// Execute releases an approved action's content and records what was
// released on the row itself, so the audit trail does not depend on the
// caller. Any other status is a no-op with OK=false; the caller decides how
// to surface that.
func (g *Gate) Execute(ctx context.Context, id string) (*ExecuteResult, error) {
	action, err := g.repo.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if action.Status != StatusApproved {
		return &ExecuteResult{OK: false}, nil
	}

	now := g.now().UTC()
	action.Status = StatusExecuted
	action.ExecutionResult = action.Content
	action.ExecutedAt = &now
	action.UpdatedAt = now
	if err := g.repo.Update(ctx, action); err != nil {
		return nil, fmt.Errorf("failed to mark action executed: %w", err)
	}

	return &ExecuteResult{OK: true, Content: action.Content}, nil
}

// Get returns one action by id.
func (g *Gate) Get(ctx context.Context, id string) (*PendingAction, error) {
	return g.repo.Get(ctx, id)
}

// List pages through an organization's actions.
func (g *Gate) List(ctx context.Context, orgID string, opts ListOptions) ([]*PendingAction, string, error) {
	if opts.PageSize <= 0 {
		opts.PageSize = DefaultPageSize
	}
	if opts.PageSize > MaxPageSize {
		opts.PageSize = MaxPageSize
	}
	return g.repo.List(ctx, orgID, opts)
}

// Sweep expires pending actions past their deadline and returns the count.
func (g *Gate) Sweep(ctx context.Context) (int, error) {
	expired, err := g.repo.ExpirePending(ctx, g.now().UTC())
	if err != nil {
		return 0, fmt.Errorf("sweep failed: %w", err)
	}
	if expired > 0 && g.log != nil {
		g.log.Info("", "", "expired pending actions", map[string]interface{}{
			"count": expired,
		})
	}
	return expired, nil
}

// truncate cuts s at a rune boundary so multi-byte content never yields an
// invalid preview.
func truncate(s string, limit int) string {
	if len(s) <= limit {
		return s
	}
	runes := []rune(s)
	if len(runes) <= limit {
		return s
	}
	return string(runes[:limit]) + "..."
}

// RunSweeper sweeps on the given interval until the context is canceled.
func (g *Gate) RunSweeper(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if _, err := g.Sweep(ctx); err != nil && g.log != nil {
				g.log.Error("", "", "pending action sweep failed", map[string]interface{}{
					"error": err.Error(),
				})
			}
		}
	}
}

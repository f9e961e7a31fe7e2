// Copyright 2025 Keystone
// SPDX-License-Identifier: Apache-2.0

package approval

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"testing"
	"time"
)

func newTestGate() *Gate {
	return NewGate(NewMemoryRepository(), 72*time.Hour, nil)
}

func queueOne(t *testing.T, g *Gate, content string) *PendingAction {
	t.Helper()
	action, err := g.Queue(context.Background(), QueueInput{
		OrgID:   "org-1",
		UserID:  "user-1",
		Feature: "listing_description",
		Content: content,
	})
	if err != nil {
		t.Fatalf("Queue: %v", err)
	}
	return action
}

func TestQueue_CreatesPendingWithExpiry(t *testing.T) {
	g := newTestGate()
	action := queueOne(t, g, "draft listing copy")

	if action.Status != StatusPending {
		t.Errorf("status = %s, want pending", action.Status)
	}
	if got := action.ExpiresAt.Sub(action.CreatedAt); got != 72*time.Hour {
		t.Errorf("expiry window = %v, want 72h", got)
	}
}

func TestQueue_StoresPreviewSnapshotAndType(t *testing.T) {
	g := newTestGate()

	long := strings.Repeat("listing copy ", 40)
	action, err := g.Queue(context.Background(), QueueInput{
		OrgID:           "org-1",
		UserID:          "user-1",
		Feature:         "listing_description",
		ActionType:      "completion",
		Content:         long,
		RequestSnapshot: []byte(`{"feature":"listing_description","org_id":"org-1"}`),
	})
	if err != nil {
		t.Fatalf("Queue: %v", err)
	}

	if action.ActionType != "completion" {
		t.Errorf("action_type = %q", action.ActionType)
	}
	if action.Content != long {
		t.Error("full content must be stored untruncated")
	}
	if len(action.Preview) >= len(long) || !strings.HasSuffix(action.Preview, "...") {
		t.Errorf("preview not truncated: %q", action.Preview)
	}
	if !strings.HasPrefix(long, strings.TrimSuffix(action.Preview, "...")) {
		t.Errorf("preview is not a prefix of the content: %q", action.Preview)
	}
	if string(action.RequestSnapshot) != `{"feature":"listing_description","org_id":"org-1"}` {
		t.Errorf("snapshot = %s", action.RequestSnapshot)
	}

	// Short content keeps its full text as the preview.
	short := queueOne(t, g, "short")
	if short.Preview != "short" {
		t.Errorf("short preview = %q", short.Preview)
	}

	// Regenerate carries the type and the originating snapshot forward.
	replacement, err := g.Regenerate(context.Background(), action.ID, "revised")
	if err != nil {
		t.Fatalf("Regenerate: %v", err)
	}
	if replacement.ActionType != "completion" {
		t.Errorf("replacement action_type = %q", replacement.ActionType)
	}
	if string(replacement.RequestSnapshot) != string(action.RequestSnapshot) {
		t.Errorf("replacement snapshot = %s", replacement.RequestSnapshot)
	}
}

func TestApproveRejectTransitions(t *testing.T) {
	ctx := context.Background()

	t.Run("approve pending", func(t *testing.T) {
		g := newTestGate()
		action := queueOne(t, g, "content")

		approved, err := g.Approve(ctx, action.ID, "reviewer-1", "looks good")
		if err != nil {
			t.Fatalf("Approve: %v", err)
		}
		if approved.Status != StatusApproved || approved.ReviewerID != "reviewer-1" {
			t.Errorf("unexpected action: %+v", approved)
		}
		if approved.ReviewedAt == nil {
			t.Error("ReviewedAt not set")
		}
	})

	t.Run("reject pending", func(t *testing.T) {
		g := newTestGate()
		action := queueOne(t, g, "content")

		rejected, err := g.Reject(ctx, action.ID, "reviewer-1", "tone is off")
		if err != nil {
			t.Fatalf("Reject: %v", err)
		}
		if rejected.Status != StatusRejected || rejected.ReviewComment != "tone is off" {
			t.Errorf("unexpected action: %+v", rejected)
		}
	})

	t.Run("approve twice fails", func(t *testing.T) {
		g := newTestGate()
		action := queueOne(t, g, "content")

		if _, err := g.Approve(ctx, action.ID, "reviewer-1", ""); err != nil {
			t.Fatalf("Approve: %v", err)
		}
		if _, err := g.Approve(ctx, action.ID, "reviewer-2", ""); !errors.Is(err, ErrInvalidTransition) {
			t.Errorf("got %v, want ErrInvalidTransition", err)
		}
	})

	t.Run("unknown id", func(t *testing.T) {
		g := newTestGate()
		if _, err := g.Approve(ctx, "no-such-id", "reviewer-1", ""); !errors.Is(err, ErrNotFound) {
			t.Errorf("got %v, want ErrNotFound", err)
		}
	})
}

func TestExecute_OnlyApprovedRuns(t *testing.T) {
	ctx := context.Background()
	g := newTestGate()
	action := queueOne(t, g, "publish me")

	// Pending is a no-op.
	res, err := g.Execute(ctx, action.ID)
	if err != nil {
		t.Fatalf("Execute: %v", err)
	}
	if res.OK {
		t.Fatal("pending action must not execute")
	}

	if _, err := g.Approve(ctx, action.ID, "reviewer-1", ""); err != nil {
		t.Fatalf("Approve: %v", err)
	}

	res, err = g.Execute(ctx, action.ID)
	if err != nil {
		t.Fatalf("Execute: %v", err)
	}
	if !res.OK || res.Content != "publish me" {
		t.Errorf("result = %+v", res)
	}

	stored, err := g.Get(ctx, action.ID)
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if stored.Status != StatusExecuted || stored.ExecutedAt == nil {
		t.Errorf("stored = %+v", stored)
	}
	if stored.ExecutionResult != "publish me" {
		t.Errorf("execution result not persisted: %q", stored.ExecutionResult)
	}

	// Executed actions do not run again.
	res, err = g.Execute(ctx, action.ID)
	if err != nil {
		t.Fatalf("Execute: %v", err)
	}
	if res.OK {
		t.Error("executed action must not execute twice")
	}
}

func TestRegenerate_SupersedesAndResetsExpiry(t *testing.T) {
	ctx := context.Background()
	g := newTestGate()
	old := queueOne(t, g, "first draft")

	// Advance the clock so the replacement's expiry is visibly fresher.
	base := time.Now().UTC()
	g.now = func() time.Time { return base.Add(24 * time.Hour) }

	replacement, err := g.Regenerate(ctx, old.ID, "second draft")
	if err != nil {
		t.Fatalf("Regenerate: %v", err)
	}

	if replacement.Status != StatusPending || replacement.Content != "second draft" {
		t.Errorf("replacement = %+v", replacement)
	}
	if !replacement.ExpiresAt.After(old.ExpiresAt) {
		t.Error("replacement expiry was not reset")
	}

	stored, err := g.Get(ctx, old.ID)
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if stored.Status != StatusSuperseded || stored.SupersededBy != replacement.ID {
		t.Errorf("old action = %+v", stored)
	}

	// An executed action is final.
	if _, err := g.Approve(ctx, replacement.ID, "reviewer-1", ""); err != nil {
		t.Fatalf("Approve: %v", err)
	}
	if _, err := g.Execute(ctx, replacement.ID); err != nil {
		t.Fatalf("Execute: %v", err)
	}
	if _, err := g.Regenerate(ctx, replacement.ID, "third draft"); !errors.Is(err, ErrInvalidTransition) {
		t.Errorf("got %v, want ErrInvalidTransition", err)
	}
}

func TestSweep_ExpiresOnlyOverduePending(t *testing.T) {
	ctx := context.Background()
	g := newTestGate()

	overdue := queueOne(t, g, "overdue")
	fresh := queueOne(t, g, "fresh")
	approved := queueOne(t, g, "approved")
	if _, err := g.Approve(ctx, approved.ID, "reviewer-1", ""); err != nil {
		t.Fatalf("Approve: %v", err)
	}

	g.now = func() time.Time { return overdue.ExpiresAt.Add(time.Minute) }
	// Refresh the fresh action's deadline past the advanced clock.
	stored, _ := g.Get(ctx, fresh.ID)
	stored.ExpiresAt = g.now().Add(time.Hour)
	if err := g.repo.Update(ctx, stored); err != nil {
		t.Fatalf("Update: %v", err)
	}

	expired, err := g.Sweep(ctx)
	if err != nil {
		t.Fatalf("Sweep: %v", err)
	}
	if expired != 1 {
		t.Errorf("expired = %d, want 1", expired)
	}

	for id, want := range map[string]Status{
		overdue.ID:  StatusExpired,
		fresh.ID:    StatusPending,
		approved.ID: StatusApproved,
	} {
		got, err := g.Get(ctx, id)
		if err != nil {
			t.Fatalf("Get: %v", err)
		}
		if got.Status != want {
			t.Errorf("action %s status = %s, want %s", id, got.Status, want)
		}
	}
}

func TestList_CursorPagination(t *testing.T) {
	ctx := context.Background()
	g := newTestGate()

	for i := 0; i < 25; i++ {
		queueOne(t, g, fmt.Sprintf("action %d", i))
	}

	seen := make(map[string]bool)
	cursor := ""
	pages := 0
	for {
		page, next, err := g.List(ctx, "org-1", ListOptions{Cursor: cursor, PageSize: 10})
		if err != nil {
			t.Fatalf("List: %v", err)
		}
		pages++
		for _, action := range page {
			if seen[action.ID] {
				t.Fatalf("action %s returned twice", action.ID)
			}
			seen[action.ID] = true
		}
		if next == "" {
			break
		}
		cursor = next
	}

	if len(seen) != 25 {
		t.Errorf("saw %d actions, want 25", len(seen))
	}
	if pages != 3 {
		t.Errorf("pages = %d, want 3", pages)
	}
}

func TestList_PageSizeBounds(t *testing.T) {
	ctx := context.Background()
	g := newTestGate()

	for i := 0; i < DefaultPageSize+5; i++ {
		queueOne(t, g, "x")
	}

	page, _, err := g.List(ctx, "org-1", ListOptions{})
	if err != nil {
		t.Fatalf("List: %v", err)
	}
	if len(page) != DefaultPageSize {
		t.Errorf("default page = %d, want %d", len(page), DefaultPageSize)
	}

	page, _, err = g.List(ctx, "org-1", ListOptions{PageSize: 10_000})
	if err != nil {
		t.Fatalf("List: %v", err)
	}
	if len(page) > MaxPageSize {
		t.Errorf("page = %d, exceeds max %d", len(page), MaxPageSize)
	}
}

func TestList_StatusFilter(t *testing.T) {
	ctx := context.Background()
	g := newTestGate()

	a := queueOne(t, g, "a")
	queueOne(t, g, "b")
	if _, err := g.Approve(ctx, a.ID, "reviewer-1", ""); err != nil {
		t.Fatalf("Approve: %v", err)
	}

	page, _, err := g.List(ctx, "org-1", ListOptions{Status: StatusPending})
	if err != nil {
		t.Fatalf("List: %v", err)
	}
	if len(page) != 1 || page[0].Status != StatusPending {
		t.Errorf("page = %+v", page)
	}
}

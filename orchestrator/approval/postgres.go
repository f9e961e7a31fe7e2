// Copyright 2025 Keystone
// SPDX-License-Identifier: Apache-2.0

package approval

import (
	"context"
	"database/sql"
	"fmt"
	"time"
)

// PostgresRepository is the production Repository backed by the
// pending_actions table.
type PostgresRepository struct {
	db *sql.DB
}

// NewPostgresRepository creates a repository on an existing database handle.
func NewPostgresRepository(db *sql.DB) *PostgresRepository {
	return &PostgresRepository{db: db}
}

const actionColumns = `
	id, org_id, user_id, feature, COALESCE(action_type, ''),
	COALESCE(entity_type, ''), COALESCE(entity_id, ''),
	content, COALESCE(preview, ''), request_snapshot,
	status, COALESCE(reviewer_id, ''), COALESCE(review_comment, ''),
	COALESCE(superseded_by, ''), COALESCE(execution_result, ''),
	created_at, updated_at, expires_at, reviewed_at, executed_at`

func (r *PostgresRepository) Insert(ctx context.Context, a *PendingAction) error {
	_, err := r.db.ExecContext(ctx, `
		INSERT INTO pending_actions
			(id, org_id, user_id, feature, action_type, entity_type, entity_id,
			 content, preview, request_snapshot,
			 status, created_at, updated_at, expires_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14)
	`,
		a.ID, a.OrgID, a.UserID, a.Feature, nullIfEmpty(a.ActionType),
		nullIfEmpty(a.EntityType), nullIfEmpty(a.EntityID),
		a.Content, nullIfEmpty(a.Preview), nullIfBlank(a.RequestSnapshot),
		string(a.Status), a.CreatedAt, a.UpdatedAt, a.ExpiresAt,
	)
	if err != nil {
		return fmt.Errorf("failed to insert pending action: %w", err)
	}
	return nil
}

func (r *PostgresRepository) Get(ctx context.Context, id string) (*PendingAction, error) {
	row := r.db.QueryRowContext(ctx, `
		SELECT `+actionColumns+`
		FROM pending_actions
		WHERE id = $1
	`, id)

	action, err := scanAction(row)
	if err == sql.ErrNoRows {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get pending action: %w", err)
	}
	return action, nil
}

func (r *PostgresRepository) Update(ctx context.Context, a *PendingAction) error {
	res, err := r.db.ExecContext(ctx, `
		UPDATE pending_actions
		SET status = $2, reviewer_id = $3, review_comment = $4,
		    superseded_by = $5, execution_result = $6,
		    updated_at = $7, reviewed_at = $8, executed_at = $9
		WHERE id = $1
	`,
		a.ID, string(a.Status),
		nullIfEmpty(a.ReviewerID), nullIfEmpty(a.ReviewComment),
		nullIfEmpty(a.SupersededBy), nullIfEmpty(a.ExecutionResult),
		a.UpdatedAt, a.ReviewedAt, a.ExecutedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to update pending action: %w", err)
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return ErrNotFound
	}
	return nil
}

func (r *PostgresRepository) List(ctx context.Context, orgID string, opts ListOptions) ([]*PendingAction, string, error) {
	query := `
		SELECT ` + actionColumns + `
		FROM pending_actions
		WHERE org_id = $1 AND id > $2
	`
	args := []interface{}{orgID, opts.Cursor}
	if opts.Status != "" {
		query += ` AND status = $3`
		args = append(args, string(opts.Status))
	}
	// Fetch one extra row to detect whether another page exists.
	query += fmt.Sprintf(` ORDER BY id ASC LIMIT %d`, opts.PageSize+1)

	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, "", fmt.Errorf("failed to list pending actions: %w", err)
	}
	defer rows.Close()

	var actions []*PendingAction
	for rows.Next() {
		action, err := scanAction(rows)
		if err != nil {
			return nil, "", fmt.Errorf("failed to scan pending action: %w", err)
		}
		actions = append(actions, action)
	}
	if err := rows.Err(); err != nil {
		return nil, "", fmt.Errorf("failed to iterate pending actions: %w", err)
	}

	next := ""
	if len(actions) > opts.PageSize {
		actions = actions[:opts.PageSize]
		next = actions[len(actions)-1].ID
	}
	return actions, next, nil
}

func (r *PostgresRepository) ExpirePending(ctx context.Context, cutoff time.Time) (int, error) {
	res, err := r.db.ExecContext(ctx, `
		UPDATE pending_actions
		SET status = $1, updated_at = $2
		WHERE status = $3 AND expires_at < $2
	`, string(StatusExpired), cutoff, string(StatusPending))
	if err != nil {
		return 0, fmt.Errorf("failed to expire pending actions: %w", err)
	}

	n, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("failed to count expired actions: %w", err)
	}
	return int(n), nil
}

// scanner covers both *sql.Row and *sql.Rows.
type scanner interface {
	Scan(dest ...interface{}) error
}

func scanAction(s scanner) (*PendingAction, error) {
	a := &PendingAction{}
	var status string
	var snapshot []byte
	var reviewedAt, executedAt sql.NullTime

	err := s.Scan(
		&a.ID, &a.OrgID, &a.UserID, &a.Feature, &a.ActionType,
		&a.EntityType, &a.EntityID,
		&a.Content, &a.Preview, &snapshot,
		&status, &a.ReviewerID, &a.ReviewComment,
		&a.SupersededBy, &a.ExecutionResult,
		&a.CreatedAt, &a.UpdatedAt, &a.ExpiresAt,
		&reviewedAt, &executedAt,
	)
	if err != nil {
		return nil, err
	}

	a.Status = Status(status)
	a.RequestSnapshot = snapshot
	if reviewedAt.Valid {
		v := reviewedAt.Time
		a.ReviewedAt = &v
	}
	if executedAt.Valid {
		v := executedAt.Time
		a.ExecutedAt = &v
	}
	return a, nil
}

func nullIfEmpty(s string) sql.NullString {
	return sql.NullString{String: s, Valid: s != ""}
}

// nullIfBlank maps an empty snapshot to SQL NULL; driver-level []byte handles
// the jsonb column otherwise.
func nullIfBlank(b []byte) interface{} {
	if len(b) == 0 {
		return nil
	}
	return b
}

// Copyright 2025 Keystone
// SPDX-License-Identifier: Apache-2.0

package prompt

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// PostgresStore is the production Store backed by the prompt_templates table.
type PostgresStore struct {
	db *sql.DB
}

// NewPostgresStore creates a store on an existing database handle.
func NewPostgresStore(db *sql.DB) *PostgresStore {
	return &PostgresStore{db: db}
}

const templateColumns = `
	id, org_id, feature, name, version, system_prompt, user_template,
	COALESCE(provider, ''), COALESCE(model, ''), temperature, max_tokens,
	is_default, active, created_at, activated_at`

// Create inserts a new template version inside a transaction. Concurrent
// writers for the same (org, feature) pair are serialized with an advisory
// transaction lock on the pair; row locks cannot do this because the first
// version of a pair has no rows to lock, and FOR UPDATE is rejected on
// aggregate queries. A unique index on (org_id, feature, version) backstops
// the invariant.
func (s *PostgresStore) Create(ctx context.Context, t *Template) error {
	if t.ID == "" {
		t.ID = uuid.New().String()
	}
	if t.CreatedAt.IsZero() {
		t.CreatedAt = time.Now().UTC()
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin create transaction: %w", err)
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx, `
		SELECT pg_advisory_xact_lock(hashtext($1 || '/' || $2))
	`, t.OrgID, t.Feature); err != nil {
		return fmt.Errorf("failed to lock template pair: %w", err)
	}

	err = tx.QueryRowContext(ctx, `
		SELECT COALESCE(MAX(version), 0) + 1
		FROM prompt_templates
		WHERE org_id = $1 AND feature = $2
	`, t.OrgID, t.Feature).Scan(&t.Version)
	if err != nil {
		return fmt.Errorf("failed to allocate template version: %w", err)
	}

	_, err = tx.ExecContext(ctx, `
		INSERT INTO prompt_templates
			(id, org_id, feature, name, version, system_prompt, user_template,
			 provider, model, temperature, max_tokens, is_default, active, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14)
	`,
		t.ID, t.OrgID, t.Feature, t.Name, t.Version, t.SystemPrompt, t.UserTemplate,
		nullString(t.Provider), nullString(t.Model),
		nullFloat(t.Temperature), nullInt(t.MaxTokens),
		t.IsDefault, t.Active, t.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to insert template: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit template create: %w", err)
	}
	return nil
}

// Activate swaps the active version in one transaction: deactivate every
// version for the pair, then activate the requested one.
func (s *PostgresStore) Activate(ctx context.Context, orgID, feature string, version int) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin activate transaction: %w", err)
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx, `
		UPDATE prompt_templates
		SET active = false
		WHERE org_id = $1 AND feature = $2 AND active = true
	`, orgID, feature); err != nil {
		return fmt.Errorf("failed to deactivate templates: %w", err)
	}

	res, err := tx.ExecContext(ctx, `
		UPDATE prompt_templates
		SET active = true, activated_at = NOW()
		WHERE org_id = $1 AND feature = $2 AND version = $3
	`, orgID, feature, version)
	if err != nil {
		return fmt.Errorf("failed to activate template version %d: %w", version, err)
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return fmt.Errorf("template version %d not found for %s/%s", version, orgID, feature)
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit template activation: %w", err)
	}
	return nil
}

func (s *PostgresStore) ActiveByName(ctx context.Context, orgID, feature, name string) (*Template, error) {
	return s.queryOne(ctx, `
		SELECT `+templateColumns+`
		FROM prompt_templates
		WHERE org_id = $1 AND feature = $2 AND name = $3 AND active = true
		ORDER BY version DESC
		LIMIT 1
	`, orgID, feature, name)
}

func (s *PostgresStore) ActiveDefault(ctx context.Context, orgID, feature string) (*Template, error) {
	return s.queryOne(ctx, `
		SELECT `+templateColumns+`
		FROM prompt_templates
		WHERE org_id = $1 AND feature = $2 AND is_default = true AND active = true
		ORDER BY version DESC
		LIMIT 1
	`, orgID, feature)
}

func (s *PostgresStore) Active(ctx context.Context, orgID, feature string) (*Template, error) {
	return s.queryOne(ctx, `
		SELECT `+templateColumns+`
		FROM prompt_templates
		WHERE org_id = $1 AND feature = $2 AND active = true
		ORDER BY version DESC
		LIMIT 1
	`, orgID, feature)
}

func (s *PostgresStore) Newest(ctx context.Context, orgID, feature string) (*Template, error) {
	return s.queryOne(ctx, `
		SELECT `+templateColumns+`
		FROM prompt_templates
		WHERE org_id = $1 AND feature = $2
		ORDER BY version DESC
		LIMIT 1
	`, orgID, feature)
}

func (s *PostgresStore) queryOne(ctx context.Context, query string, args ...interface{}) (*Template, error) {
	t := &Template{}
	var temperature sql.NullFloat64
	var maxTokens sql.NullInt64
	var activatedAt sql.NullTime

	err := s.db.QueryRowContext(ctx, query, args...).Scan(
		&t.ID, &t.OrgID, &t.Feature, &t.Name, &t.Version,
		&t.SystemPrompt, &t.UserTemplate, &t.Provider, &t.Model,
		&temperature, &maxTokens, &t.IsDefault, &t.Active,
		&t.CreatedAt, &activatedAt,
	)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to query template: %w", err)
	}

	if temperature.Valid {
		v := temperature.Float64
		t.Temperature = &v
	}
	if maxTokens.Valid {
		v := int(maxTokens.Int64)
		t.MaxTokens = &v
	}
	if activatedAt.Valid {
		v := activatedAt.Time
		t.ActivatedAt = &v
	}
	return t, nil
}

func nullString(s string) sql.NullString {
	return sql.NullString{String: s, Valid: s != ""}
}

func nullFloat(f *float64) sql.NullFloat64 {
	if f == nil {
		return sql.NullFloat64{}
	}
	return sql.NullFloat64{Float64: *f, Valid: true}
}

func nullInt(i *int) sql.NullInt64 {
	if i == nil {
		return sql.NullInt64{}
	}
	return sql.NullInt64{Int64: int64(*i), Valid: true}
}

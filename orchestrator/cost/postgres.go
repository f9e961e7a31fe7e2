// Copyright 2025 Keystone
// SPDX-License-Identifier: Apache-2.0

package cost

import (
	"context"
	"database/sql"
	"fmt"
	"time"
)

// PostgresRepository is the production Repository backed by the ai_usage_log
// and ai_budgets tables.
type PostgresRepository struct {
	db *sql.DB
}

// NewPostgresRepository creates a repository on an existing database handle.
func NewPostgresRepository(db *sql.DB) *PostgresRepository {
	return &PostgresRepository{db: db}
}

func (r *PostgresRepository) SaveUsage(ctx context.Context, e *UsageLogEntry) error {
	_, err := r.db.ExecContext(ctx, `
		INSERT INTO ai_usage_log
			(id, request_id, org_id, user_id, feature, provider, model,
			 prompt_tokens, completion_tokens, total_tokens, cost_usd,
			 success, error_type, latency_ms, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15)
	`,
		e.ID, e.RequestID, e.OrgID, nullIfEmpty(e.UserID), e.Feature,
		e.Provider, nullIfEmpty(e.Model),
		e.PromptTokens, e.CompletionTokens, e.TotalTokens, e.CostUSD,
		e.Success, nullIfEmpty(e.ErrorType), e.LatencyMS, e.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to save usage entry: %w", err)
	}
	return nil
}

func (r *PostgresRepository) Summary(ctx context.Context, orgID string, periodStart time.Time) (*UsageSummary, error) {
	summary := &UsageSummary{OrgID: orgID, PeriodStart: periodStart}

	err := r.db.QueryRowContext(ctx, `
		SELECT COUNT(*),
		       COUNT(*) FILTER (WHERE NOT success),
		       COALESCE(SUM(total_tokens), 0),
		       COALESCE(SUM(cost_usd), 0)
		FROM ai_usage_log
		WHERE org_id = $1 AND created_at >= $2
	`, orgID, periodStart).Scan(
		&summary.Requests, &summary.Failures,
		&summary.TotalTokens, &summary.TotalCostUSD,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to summarize usage: %w", err)
	}
	return summary, nil
}

func (r *PostgresRepository) GetBudget(ctx context.Context, orgID string) (*Budget, error) {
	budget := &Budget{}
	err := r.db.QueryRowContext(ctx, `
		SELECT org_id, monthly_limit_usd, hard_limit, updated_at
		FROM ai_budgets
		WHERE org_id = $1
	`, orgID).Scan(
		&budget.OrgID, &budget.MonthlyLimitUSD, &budget.HardLimit, &budget.UpdatedAt,
	)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get budget: %w", err)
	}
	return budget, nil
}

func (r *PostgresRepository) SetBudget(ctx context.Context, budget *Budget) error {
	if budget.UpdatedAt.IsZero() {
		budget.UpdatedAt = time.Now().UTC()
	}

	_, err := r.db.ExecContext(ctx, `
		INSERT INTO ai_budgets (org_id, monthly_limit_usd, hard_limit, updated_at)
		VALUES ($1, $2, $3, $4)
		ON CONFLICT (org_id)
		DO UPDATE SET monthly_limit_usd = $2, hard_limit = $3, updated_at = $4
	`, budget.OrgID, budget.MonthlyLimitUSD, budget.HardLimit, budget.UpdatedAt)
	if err != nil {
		return fmt.Errorf("failed to set budget: %w", err)
	}
	return nil
}

func nullIfEmpty(s string) sql.NullString {
	return sql.NullString{String: s, Valid: s != ""}
}

// Copyright 2025 Keystone
// SPDX-License-Identifier: Apache-2.0

package prompt

import (
	"context"
	"regexp"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
)

func TestPostgresStore_CreateAllocatesNextVersion(t *testing.T) {
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("sqlmock: %v", err)
	}
	defer db.Close()

	mock.ExpectBegin()
	mock.ExpectExec(regexp.QuoteMeta("pg_advisory_xact_lock")).
		WithArgs("org-1", "listing").
		WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectQuery(regexp.QuoteMeta("SELECT COALESCE(MAX(version), 0) + 1")).
		WithArgs("org-1", "listing").
		WillReturnRows(sqlmock.NewRows([]string{"version"}).AddRow(4))
	mock.ExpectExec(regexp.QuoteMeta("INSERT INTO prompt_templates")).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectCommit()

	store := NewPostgresStore(db)
	tmpl := &Template{OrgID: "org-1", Feature: "listing", Name: "standard"}
	if err := store.Create(context.Background(), tmpl); err != nil {
		t.Fatalf("Create: %v", err)
	}

	if tmpl.Version != 4 {
		t.Errorf("version = %d, want 4", tmpl.Version)
	}
	if tmpl.ID == "" {
		t.Error("expected generated id")
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Error(err)
	}
}

func TestPostgresStore_ActivateSwapsInOneTransaction(t *testing.T) {
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("sqlmock: %v", err)
	}
	defer db.Close()

	mock.ExpectBegin()
	mock.ExpectExec(regexp.QuoteMeta("SET active = false")).
		WithArgs("org-1", "listing").
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec(regexp.QuoteMeta("SET active = true")).
		WithArgs("org-1", "listing", 2).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectCommit()

	store := NewPostgresStore(db)
	if err := store.Activate(context.Background(), "org-1", "listing", 2); err != nil {
		t.Fatalf("Activate: %v", err)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Error(err)
	}
}

func TestPostgresStore_ActivateUnknownVersionRollsBack(t *testing.T) {
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("sqlmock: %v", err)
	}
	defer db.Close()

	mock.ExpectBegin()
	mock.ExpectExec(regexp.QuoteMeta("SET active = false")).
		WithArgs("org-1", "listing").
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec(regexp.QuoteMeta("SET active = true")).
		WithArgs("org-1", "listing", 9).
		WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectRollback()

	store := NewPostgresStore(db)
	if err := store.Activate(context.Background(), "org-1", "listing", 9); err == nil {
		t.Fatal("expected error for unknown version")
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Error(err)
	}
}

func TestPostgresStore_ActiveByNameMapsNullableColumns(t *testing.T) {
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("sqlmock: %v", err)
	}
	defer db.Close()

	created := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	rows := sqlmock.NewRows([]string{
		"id", "org_id", "feature", "name", "version", "system_prompt", "user_template",
		"provider", "model", "temperature", "max_tokens", "is_default", "active",
		"created_at", "activated_at",
	}).AddRow(
		"tpl-1", "org-1", "listing", "standard", 3, "You are a listing writer.", "Describe {{address}}",
		"anthropic", "claude-sonnet-4-5", nil, nil, true, true,
		created, nil,
	)

	mock.ExpectQuery(regexp.QuoteMeta("AND name = $3 AND active = true")).
		WithArgs("org-1", "listing", "standard").
		WillReturnRows(rows)

	store := NewPostgresStore(db)
	tmpl, err := store.ActiveByName(context.Background(), "org-1", "listing", "standard")
	if err != nil {
		t.Fatalf("ActiveByName: %v", err)
	}

	if tmpl.Version != 3 || tmpl.Model != "claude-sonnet-4-5" {
		t.Errorf("unexpected template: %+v", tmpl)
	}
	if tmpl.Temperature != nil || tmpl.MaxTokens != nil || tmpl.ActivatedAt != nil {
		t.Error("null columns must map to nil pointers")
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Error(err)
	}
}

func TestPostgresStore_NoRowsReturnsNil(t *testing.T) {
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("sqlmock: %v", err)
	}
	defer db.Close()

	mock.ExpectQuery("SELECT").
		WithArgs("org-1", "listing").
		WillReturnRows(sqlmock.NewRows([]string{"id"}))

	store := NewPostgresStore(db)
	tmpl, err := store.Active(context.Background(), "org-1", "listing")
	if err != nil {
		t.Fatalf("Active: %v", err)
	}
	if tmpl != nil {
		t.Errorf("got %+v, want nil for no rows", tmpl)
	}
}

// Copyright 2025 Tom Barlow
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"

	_ "modernc.org/sqlite"
)

// timeFormat is fixed width so that created_at sorts lexically.
const timeFormat = "2006-01-02T15:04:05.000000000Z07:00"

// SQLite is a Store backed by a SQLite file.
type SQLite struct {
	db        *sql.DB
	retention int
}

// OpenSQLite opens (creating if needed) the database at path.
func OpenSQLite(path string, retention int) (*SQLite, error) {
	if path == "" {
		return nil, fmt.Errorf("sqlite store requires a path")
	}
	if path != ":memory:" {
		if err := os.MkdirAll(filepath.Dir(path), 0o700); err != nil {
			return nil, fmt.Errorf("failed to create store directory: %w", err)
		}
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	// SQLite serializes writes.
	db.SetMaxOpenConns(1)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}

	s := &SQLite{db: db, retention: retention}
	if err := s.migrate(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to run migrations: %w", err)
	}
	return s, nil
}

func (s *SQLite) migrate(ctx context.Context) error {
	statements := []string{
		"PRAGMA busy_timeout=5000",
		"PRAGMA synchronous=NORMAL",
		`CREATE TABLE IF NOT EXISTS generations (
			id TEXT PRIMARY KEY,
			kind TEXT NOT NULL,
			intent TEXT NOT NULL,
			provider TEXT,
			model TEXT,
			status TEXT NOT NULL,
			attempts INTEGER NOT NULL DEFAULT 0,
			total_tokens INTEGER NOT NULL DEFAULT 0,
			forbidden_names TEXT,
			error TEXT,
			duration_ms INTEGER NOT NULL DEFAULT 0,
			created_at TEXT NOT NULL
		)`,
		`CREATE INDEX IF NOT EXISTS idx_generations_created_at ON generations(created_at)`,
	}
	for _, stmt := range statements {
		if _, err := s.db.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("%s: %w", stmt, err)
		}
	}
	return nil
}

// Save inserts or replaces rec and applies retention.
func (s *SQLite) Save(ctx context.Context, rec *Record) error {
	prepare(rec, time.Now())

	forbidden, err := json.Marshal(rec.ForbiddenNames)
	if err != nil {
		return fmt.Errorf("failed to marshal forbidden names: %w", err)
	}

	_, err = s.db.ExecContext(ctx, `
		INSERT OR REPLACE INTO generations
			(id, kind, intent, provider, model, status, attempts, total_tokens,
			 forbidden_names, error, duration_ms, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		rec.ID, string(rec.Kind), rec.Intent, rec.Provider, rec.Model, string(rec.Status),
		rec.Attempts, rec.TotalTokens, string(forbidden), rec.Error,
		rec.Duration.Milliseconds(), rec.CreatedAt.UTC().Format(timeFormat),
	)
	if err != nil {
		return fmt.Errorf("failed to save generation: %w", err)
	}

	if s.retention > 0 {
		_, err = s.db.ExecContext(ctx, `
			DELETE FROM generations WHERE id NOT IN (
				SELECT id FROM generations ORDER BY created_at DESC, id DESC LIMIT ?
			)`, s.retention)
		if err != nil {
			return fmt.Errorf("failed to apply retention: %w", err)
		}
	}
	return nil
}

const selectColumns = `SELECT id, kind, intent, provider, model, status, attempts, total_tokens,
	forbidden_names, error, duration_ms, created_at FROM generations`

// Get returns the record with id.
func (s *SQLite) Get(ctx context.Context, id string) (*Record, error) {
	rec, err := scanRecord(s.db.QueryRowContext(ctx, selectColumns+" WHERE id = ?", id))
	if err == sql.ErrNoRows {
		return nil, notFound(id)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get generation: %w", err)
	}
	return rec, nil
}

// List returns records newest first.
func (s *SQLite) List(ctx context.Context, limit int) ([]*Record, error) {
	if limit <= 0 {
		limit = -1
	}
	rows, err := s.db.QueryContext(ctx, selectColumns+" ORDER BY created_at DESC, id DESC LIMIT ?", limit)
	if err != nil {
		return nil, fmt.Errorf("failed to list generations: %w", err)
	}
	defer rows.Close()

	var out []*Record
	for rows.Next() {
		rec, err := scanRecord(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan generation: %w", err)
		}
		out = append(out, rec)
	}
	return out, rows.Err()
}

// Close closes the database.
func (s *SQLite) Close() error {
	return s.db.Close()
}

type scanner interface {
	Scan(dest ...any) error
}

func scanRecord(row scanner) (*Record, error) {
	var (
		rec                  Record
		kind, status         string
		provider, model      sql.NullString
		forbidden, errorText sql.NullString
		durationMS           int64
		createdAt            string
	)
	err := row.Scan(&rec.ID, &kind, &rec.Intent, &provider, &model, &status,
		&rec.Attempts, &rec.TotalTokens, &forbidden, &errorText, &durationMS, &createdAt)
	if err != nil {
		return nil, err
	}

	rec.Kind = Kind(kind)
	rec.Status = Status(status)
	rec.Provider = provider.String
	rec.Model = model.String
	rec.Error = errorText.String
	rec.Duration = time.Duration(durationMS) * time.Millisecond
	if forbidden.Valid && forbidden.String != "" && forbidden.String != "null" {
		if err := json.Unmarshal([]byte(forbidden.String), &rec.ForbiddenNames); err != nil {
			return nil, fmt.Errorf("invalid forbidden_names: %w", err)
		}
	}
	if rec.CreatedAt, err = time.Parse(timeFormat, createdAt); err != nil {
		return nil, fmt.Errorf("invalid created_at: %w", err)
	}
	return &rec, nil
}

var (
	_ Store = (*SQLite)(nil)
	_ Store = (*Memory)(nil)
)

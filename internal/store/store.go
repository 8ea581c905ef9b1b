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

// Package store persists a record of each generation request so operators
// can review recent activity. The constrained engine itself never touches
// the store; the HTTP layer records outcomes after the engine returns.
package store

import (
	"context"
	"encoding/json"
	"io"
	"time"

	"github.com/google/uuid"

	pkgerrors "github.com/tombee/rulegen/pkg/errors"
)

// Status is the outcome of a generation request.
type Status string

const (
	// StatusSucceeded means a document passed both validators.
	StatusSucceeded Status = "succeeded"

	// StatusExhausted means every attempt failed validation.
	StatusExhausted Status = "exhausted"

	// StatusFailed means the request failed for another reason (provider, input).
	StatusFailed Status = "failed"
)

// Kind identifies the endpoint that produced a record.
type Kind string

const (
	KindGenerate Kind = "generate"
	KindBatch    Kind = "batch"
	KindRefine   Kind = "refine"
)

// Record describes one generation request.
type Record struct {
	ID             string        `json:"id"`
	Kind           Kind          `json:"kind"`
	Intent         string        `json:"intent"`
	Provider       string        `json:"provider"`
	Model          string        `json:"model"`
	Status         Status        `json:"status"`
	Attempts       int           `json:"attempts"`
	TotalTokens    int           `json:"total_tokens"`
	ForbiddenNames []string      `json:"forbidden_names,omitempty"`
	Error          string        `json:"error,omitempty"`
	CreatedAt      time.Time     `json:"created_at"`
	Duration       time.Duration `json:"-"`
}

// MarshalJSON renders Duration as whole milliseconds.
func (r Record) MarshalJSON() ([]byte, error) {
	type plain Record
	return json.Marshal(struct {
		plain
		DurationMS int64 `json:"duration_ms"`
	}{plain(r), r.Duration.Milliseconds()})
}

// Store persists generation records.
type Store interface {
	// Save inserts or replaces a record. An empty ID is filled with a new UUID
	// and a zero CreatedAt with the current time.
	Save(ctx context.Context, rec *Record) error

	// Get returns a record by ID or a *errors.NotFoundError.
	Get(ctx context.Context, id string) (*Record, error)

	// List returns up to limit records, newest first. limit <= 0 returns all.
	List(ctx context.Context, limit int) ([]*Record, error)

	io.Closer
}

// Backend names accepted by Open.
const (
	BackendMemory = "memory"
	BackendSQLite = "sqlite"
)

// Config selects and configures a backend.
type Config struct {
	Backend string

	// Path is the SQLite database file.
	Path string

	// Retention caps the number of records kept. 0 keeps everything.
	Retention int
}

// Open creates the configured backend.
func Open(cfg Config) (Store, error) {
	switch cfg.Backend {
	case "", BackendMemory:
		return NewMemory(cfg.Retention), nil
	case BackendSQLite:
		return OpenSQLite(cfg.Path, cfg.Retention)
	default:
		return nil, &pkgerrors.ConfigError{Key: "store.backend", Reason: "unknown backend " + cfg.Backend}
	}
}

func prepare(rec *Record, now time.Time) {
	if rec.ID == "" {
		rec.ID = uuid.NewString()
	}
	if rec.CreatedAt.IsZero() {
		rec.CreatedAt = now
	}
}

func notFound(id string) error {
	return &pkgerrors.NotFoundError{Resource: "generation", ID: id}
}

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
	"sort"
	"sync"
	"time"
)

// Memory is an in-memory Store. Records are lost on restart.
type Memory struct {
	mu        sync.RWMutex
	records   map[string]*Record
	retention int
}

// NewMemory creates an in-memory store keeping at most retention records.
func NewMemory(retention int) *Memory {
	return &Memory{records: make(map[string]*Record), retention: retention}
}

// Save stores a copy of rec.
func (m *Memory) Save(_ context.Context, rec *Record) error {
	prepare(rec, time.Now())
	cp := *rec
	cp.ForbiddenNames = append([]string(nil), rec.ForbiddenNames...)

	m.mu.Lock()
	defer m.mu.Unlock()
	m.records[cp.ID] = &cp
	m.prune()
	return nil
}

// Get returns a copy of the record with id.
func (m *Memory) Get(_ context.Context, id string) (*Record, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	rec, ok := m.records[id]
	if !ok {
		return nil, notFound(id)
	}
	cp := *rec
	return &cp, nil
}

// List returns records newest first.
func (m *Memory) List(_ context.Context, limit int) ([]*Record, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	sorted := m.sorted()
	if limit > 0 && len(sorted) > limit {
		sorted = sorted[:limit]
	}
	out := make([]*Record, len(sorted))
	for i, rec := range sorted {
		cp := *rec
		out[i] = &cp
	}
	return out, nil
}

// Close is a no-op.
func (m *Memory) Close() error {
	return nil
}

func (m *Memory) sorted() []*Record {
	out := make([]*Record, 0, len(m.records))
	for _, rec := range m.records {
		out = append(out, rec)
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].ID > out[j].ID
		}
		return out[i].CreatedAt.After(out[j].CreatedAt)
	})
	return out
}

// prune drops the oldest records beyond retention. Callers hold mu.
func (m *Memory) prune() {
	if m.retention <= 0 || len(m.records) <= m.retention {
		return
	}
	for _, rec := range m.sorted()[m.retention:] {
		delete(m.records, rec.ID)
	}
}

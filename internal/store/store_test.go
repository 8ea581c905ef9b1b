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
	"encoding/json"
	"fmt"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	pkgerrors "github.com/tombee/rulegen/pkg/errors"
)

func backends(t *testing.T, retention int) map[string]Store {
	t.Helper()
	sq, err := OpenSQLite(filepath.Join(t.TempDir(), "nested", "rulegen.db"), retention)
	require.NoError(t, err)
	t.Cleanup(func() { sq.Close() })

	return map[string]Store{
		"memory": NewMemory(retention),
		"sqlite": sq,
	}
}

func TestStore_SaveGet(t *testing.T) {
	for name, s := range backends(t, 0) {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()
			rec := &Record{
				Kind:           KindGenerate,
				Intent:         "alert when the freezer warms up",
				Provider:       "anthropic",
				Model:          "claude-sonnet-4-5",
				Status:         StatusSucceeded,
				Attempts:       2,
				TotalTokens:    250,
				ForbiddenNames: []string{"send_slack_alert"},
				Duration:       1500 * time.Millisecond,
			}
			require.NoError(t, s.Save(ctx, rec))
			require.NotEmpty(t, rec.ID)
			require.False(t, rec.CreatedAt.IsZero())

			got, err := s.Get(ctx, rec.ID)
			require.NoError(t, err)
			assert.Equal(t, rec.Intent, got.Intent)
			assert.Equal(t, KindGenerate, got.Kind)
			assert.Equal(t, StatusSucceeded, got.Status)
			assert.Equal(t, 2, got.Attempts)
			assert.Equal(t, 250, got.TotalTokens)
			assert.Equal(t, []string{"send_slack_alert"}, got.ForbiddenNames)
			assert.Equal(t, 1500*time.Millisecond, got.Duration)
			assert.True(t, rec.CreatedAt.Equal(got.CreatedAt))
		})
	}
}

func TestStore_GetMissing(t *testing.T) {
	for name, s := range backends(t, 0) {
		t.Run(name, func(t *testing.T) {
			_, err := s.Get(context.Background(), "missing")
			var nf *pkgerrors.NotFoundError
			require.ErrorAs(t, err, &nf)
			assert.Equal(t, "generation", nf.Resource)
		})
	}
}

func TestStore_ListNewestFirstWithRetention(t *testing.T) {
	base := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	for name, s := range backends(t, 3) {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()
			for i := 0; i < 5; i++ {
				require.NoError(t, s.Save(ctx, &Record{
					ID:        fmt.Sprintf("gen-%d", i),
					Kind:      KindBatch,
					Intent:    fmt.Sprintf("intent %d", i),
					Status:    StatusFailed,
					CreatedAt: base.Add(time.Duration(i) * time.Second),
				}))
			}

			all, err := s.List(ctx, 0)
			require.NoError(t, err)
			require.Len(t, all, 3)
			assert.Equal(t, "gen-4", all[0].ID)
			assert.Equal(t, "gen-2", all[2].ID)

			limited, err := s.List(ctx, 1)
			require.NoError(t, err)
			require.Len(t, limited, 1)
			assert.Equal(t, "gen-4", limited[0].ID)

			_, err = s.Get(ctx, "gen-0")
			assert.Error(t, err)
		})
	}
}

func TestOpen(t *testing.T) {
	s, err := Open(Config{})
	require.NoError(t, err)
	assert.IsType(t, &Memory{}, s)

	_, err = Open(Config{Backend: "postgres"})
	var ce *pkgerrors.ConfigError
	require.ErrorAs(t, err, &ce)
	assert.Equal(t, "store.backend", ce.Key)

	_, err = Open(Config{Backend: BackendSQLite})
	assert.Error(t, err)
}

func TestRecord_MarshalJSON(t *testing.T) {
	data, err := json.Marshal(Record{ID: "x", Duration: 2 * time.Second})
	require.NoError(t, err)

	var m map[string]any
	require.NoError(t, json.Unmarshal(data, &m))
	assert.Equal(t, float64(2000), m["duration_ms"])
	assert.Equal(t, "x", m["id"])
	assert.NotContains(t, m, "forbidden_names")
}

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

package constrain

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestBuildAllowlist_CandidateKeys(t *testing.T) {
	catalog := map[string]any{
		"connectors": []any{
			map[string]any{"id": "slack", "functions": []any{
				map[string]any{"id": "send_message"},
				map[string]any{"name": "upload_file"},
			}},
			map[string]any{"connector_id": "github", "actions": []any{
				map[string]any{"function_id": "create_issue"},
			}},
			map[string]any{"name": "pagerduty"},
			// empty id falls through to the next candidate
			map[string]any{"id": "", "connector_id": "jira"},
		},
		"condition_types": []any{
			"pipeline.failed",
			map[string]any{"type": "metric.threshold"},
			map[string]any{"name": "schedule"},
		},
		"expert_agents": []any{
			map[string]any{"id": "triage_agent"},
			map[string]any{"name": "summarizer"},
		},
	}

	a := BuildAllowlist(catalog)

	assert.True(t, a.Active())
	assert.Equal(t, []string{"github", "jira", "pagerduty", "slack"}, a.ConnectorIDs())
	assert.Equal(t, []string{"create_issue", "send_message", "summarizer", "triage_agent", "upload_file"}, a.ActionTypes())
	assert.Equal(t, []string{"metric.threshold", "pipeline.failed", "schedule"}, a.TriggerSources())
}

func TestBuildAllowlist_FunctionsBeforeActions(t *testing.T) {
	catalog := map[string]any{
		"connectors": []any{
			map[string]any{
				"id":        "email",
				"functions": []any{map[string]any{"id": "send_email"}},
				"actions":   []any{map[string]any{"id": "ignored"}},
			},
			map[string]any{
				"id":        "sms",
				"functions": []any{},
				"actions":   []any{map[string]any{"id": "send_sms"}},
			},
		},
	}

	a := BuildAllowlist(catalog)

	assert.Equal(t, []string{"send_email", "send_sms"}, a.ActionTypes())
}

func TestBuildAllowlist_NumericIdentifiers(t *testing.T) {
	catalog := map[string]any{
		"connectors":      []any{map[string]any{"id": float64(42)}},
		"condition_types": []any{map[string]any{"id": 7}},
	}

	a := BuildAllowlist(catalog)

	assert.True(t, a.HasConnector("42"))
	assert.True(t, a.HasTriggerSource("7"))
}

func TestBuildAllowlist_Malformed(t *testing.T) {
	tests := []struct {
		name    string
		catalog map[string]any
	}{
		{name: "nil catalog", catalog: nil},
		{name: "empty catalog", catalog: map[string]any{}},
		{name: "wrong container types", catalog: map[string]any{
			"connectors":      "slack",
			"condition_types": map[string]any{"id": "x"},
			"expert_agents":   42,
		}},
		{name: "wrong entry types", catalog: map[string]any{
			"connectors":      []any{"slack", 3, nil},
			"condition_types": []any{nil, true, ""},
			"expert_agents":   []any{"agent"},
		}},
		{name: "unusable identifiers", catalog: map[string]any{
			"connectors":    []any{map[string]any{"id": true, "name": []any{"x"}}},
			"expert_agents": []any{map[string]any{"id": map[string]any{}}},
		}},
		{name: "camelCase keys are not read", catalog: map[string]any{
			"conditionTypes": []any{"pipeline.failed"},
			"expertAgents":   []any{map[string]any{"id": "a"}},
		}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			a := BuildAllowlist(tt.catalog)
			assert.False(t, a.Active())
			assert.Empty(t, a.ConnectorIDs())
			assert.Empty(t, a.ActionTypes())
			assert.Empty(t, a.TriggerSources())
		})
	}
}

func TestBuildAllowlist_TypedSlices(t *testing.T) {
	catalog := map[string]any{
		"connectors":      []map[string]any{{"id": "slack"}},
		"condition_types": []string{"cron"},
	}

	a := BuildAllowlist(catalog)

	assert.True(t, a.HasConnector("slack"))
	assert.True(t, a.HasTriggerSource("cron"))
}

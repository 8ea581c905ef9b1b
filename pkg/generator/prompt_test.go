package generator

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/tombee/rulegen/pkg/constrain"
)

func sampleCatalog() map[string]any {
	return map[string]any{
		"connectors": []any{
			map[string]any{"id": "slack", "functions": []any{map[string]any{"id": "post_message"}}},
		},
		"condition_types": []any{
			map[string]any{"type": "THRESHOLD", "category": "metrics", "description": "Numeric threshold", "example": map[string]any{"gt": 80}},
		},
		"action_types": []any{
			map[string]any{"type": "EXECUTE_STEP", "category": "core", "async": true, "description": "Run a step"},
		},
		"context_variables": map[string]any{
			"metrics":  map[string]any{"description": "Host metrics", "isReadOnly": true},
			"counters": map[string]any{"description": "Scratch counters", "type": "map"},
		},
		"trigger_types":       []any{map[string]any{"type": "ON_WORKFLOW_START"}},
		"resilience_patterns": []any{map[string]any{"type": "CIRCUIT_BREAKER", "applicableTo": []any{"http", "db"}}},
		"examples":            []any{map[string]any{"name": "CPU alert", "content": map[string]any{"rules": []any{}}}},
		"best_practices":      []any{"Always set timeouts", "Prefer idempotent actions"},
	}
}

func TestBuildSystemPrompt_Sections(t *testing.T) {
	prompt := BuildSystemPrompt(sampleCatalog())

	for _, want := range []string{
		"## AVAILABLE CONDITIONS",
		"### 1. THRESHOLD (metrics)",
		"### 1. EXECUTE_STEP - Async (waits for completion)",
		"### 1. $counters - Writable",
		"### 2. $metrics - Read-only",
		"### 1. ON_WORKFLOW_START",
		"Applicable to: http, db",
		"#### Example 1: CPU alert",
		"1. Always set timeouts",
		"2. Prefer idempotent actions",
		"## REQUIRED RESPONSE FORMAT",
	} {
		assert.Contains(t, prompt, want)
	}
}

func TestBuildSystemPrompt_EmptyCatalog(t *testing.T) {
	prompt := BuildSystemPrompt(map[string]any{})
	assert.Contains(t, prompt, "(none provided)")
	assert.Contains(t, prompt, "## REQUIRED RESPONSE FORMAT")
}

func TestBuildSystemPrompt_PreambleFirst(t *testing.T) {
	catalog := sampleCatalog()
	catalog[constrain.ContextKeyPreamble] = "CONSTRAINTS GO HERE"

	prompt := BuildSystemPrompt(catalog)
	assert.True(t, strings.HasPrefix(prompt, "CONSTRAINTS GO HERE"))
	assert.Less(t, strings.Index(prompt, "CONSTRAINTS GO HERE"), strings.Index(prompt, "AVAILABLE CONDITIONS"))
}

func TestGenerateUserPrompt_AttemptLine(t *testing.T) {
	plain := GenerateUserPrompt(map[string]any{}, "alert on high cpu")
	assert.Contains(t, plain, "User Intent: alert on high cpu")
	assert.NotContains(t, plain, "attempt")

	first := GenerateUserPrompt(map[string]any{
		constrain.ContextKeyAttempt:     1,
		constrain.ContextKeyMaxAttempts: 3,
	}, "x")
	assert.Contains(t, first, "This is attempt 1 of 3.")
	assert.NotContains(t, first, "previous output")

	retry := GenerateUserPrompt(map[string]any{
		constrain.ContextKeyAttempt:     2,
		constrain.ContextKeyMaxAttempts: 3,
	}, "x")
	assert.Contains(t, retry, "This is attempt 2 of 3.")
	assert.Contains(t, retry, "previous output referenced identifiers")
}

func TestBatchUserPrompt(t *testing.T) {
	prompt := BatchUserPrompt([]string{"first", "second"})
	assert.Contains(t, prompt, "these 2 user intents")
	assert.Contains(t, prompt, "1. first\n2. second\n")
}

func TestSuppressTerms(t *testing.T) {
	assert.Nil(t, suppressTerms(map[string]any{}))
	assert.Equal(t, []string{"a"}, suppressTerms(map[string]any{constrain.ContextKeySuppress: []string{"a"}}))
	assert.Equal(t, []string{"a", "b"}, suppressTerms(map[string]any{constrain.ContextKeySuppress: []any{"a", 1, "b"}}))
}

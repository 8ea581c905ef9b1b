package generator

import (
	"encoding/json"
	"fmt"
	"sort"
	"strings"

	"github.com/tombee/rulegen/pkg/constrain"
)

const systemIntro = `You are a workflow automation engine. You turn a user's intent into
production-ready workflow rules that run without modification.

Every rule you generate must:
- reference only the capabilities documented below
- be executable exactly as written
- handle failure of external systems with retries, timeouts or compensation
`

const responseFormat = `## REQUIRED RESPONSE FORMAT

Respond with a single JSON object of this shape:

{
  "workflow_name": "descriptive-kebab-case-name",
  "description": "What this workflow does",
  "version": "1.0.0",
  "rules": [
    {
      "name": "rule-name",
      "description": "What this rule does",
      "trigger": {"source": "<trigger source or connector id>", "filter": {}},
      "condition": "($metrics.cpu > 80) AND ($workflow_state.status == \"running\")",
      "actions": [
        {"type": "<action type>", "payload": {"connector": "<connector id>"}}
      ],
      "resilience": {
        "retry": {"max_attempts": 3, "backoff_factor": 2},
        "timeout_seconds": 300
      }
    }
  ],
  "metadata": {"tags": ["automation"]}
}

## CHECKLIST

- every condition, action, variable and trigger appears in the lists above
- action parameters match their documented examples
- at most 10 rules per workflow and 5 actions per rule
- compensation is present for state-modifying actions
- the response is the JSON object only, with no markdown and no explanation
`

// BuildSystemPrompt renders the capability context into system
// instructions. When the context carries a constraint preamble it comes
// first.
func BuildSystemPrompt(catalog map[string]any) string {
	var b strings.Builder

	if preamble, ok := catalog[constrain.ContextKeyPreamble].(string); ok && preamble != "" {
		b.WriteString(preamble)
		b.WriteString("\n\n---\n\n")
	}

	b.WriteString(systemIntro)

	section(&b, "AVAILABLE CONDITIONS",
		"Conditions evaluate to true or false. Combine them with AND and OR and reference $variables from the context variables section.",
		formatConditions(catalog))
	section(&b, "AVAILABLE ACTIONS",
		"Actions run in order unless wrapped in EXECUTE_PARALLEL. Use only the parameters shown.",
		formatActions(catalog))
	section(&b, "CONTEXT VARIABLES",
		"Reference variables as $name. Read-only variables may only appear in conditions.",
		formatVariables(catalog))
	section(&b, "TRIGGERS",
		"Rules fire on these events.",
		formatTriggers(catalog))
	section(&b, "RESILIENCE PATTERNS",
		"Apply these to every operation that touches an external system.",
		formatPatterns(catalog))
	section(&b, "EXAMPLES",
		"Follow the structure of these production workflows.",
		formatExamples(catalog))
	section(&b, "BEST PRACTICES",
		"",
		formatBestPractices(catalog))

	b.WriteString("\n---\n\n")
	b.WriteString(responseFormat)
	return b.String()
}

// GenerateUserPrompt is the user message for a single generation. It notes
// the attempt number when the context carries one.
func GenerateUserPrompt(catalog map[string]any, intent string) string {
	var b strings.Builder
	b.WriteString("Using the context and capabilities above, generate workflow rules for this user intent:\n\n")
	fmt.Fprintf(&b, "User Intent: %s\n\n", intent)
	if line := attemptLine(catalog); line != "" {
		b.WriteString(line)
		b.WriteString("\n\n")
	}
	b.WriteString("Return valid JSON only. No explanations, no markdown.")
	return b.String()
}

// BatchUserPrompt asks for one workflow per intent as a JSON array.
func BatchUserPrompt(intents []string) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Generate workflow rules for these %d user intents:\n\n", len(intents))
	for i, intent := range intents {
		fmt.Fprintf(&b, "%d. %s\n", i+1, intent)
	}
	b.WriteString("\nReturn a JSON array where each element is a complete workflow object, in the same order as the intents.\n")
	b.WriteString("Return ONLY the JSON array: [{workflow1}, {workflow2}, ...]")
	return b.String()
}

// ConditionPrompt asks the model to decide a condition.
func ConditionPrompt(condition string, vars map[string]any) string {
	return fmt.Sprintf(`You are evaluating a workflow condition with the given context.

Condition to evaluate:
%s

Available context:
%s

Evaluate this condition and respond with ONLY the word "true" or "false" (lowercase, no punctuation).`,
		condition, indentJSON(vars))
}

// RefinePrompt asks the model to improve rules using feedback.
func RefinePrompt(current map[string]any, feedback string) string {
	return fmt.Sprintf(`You are refining workflow rules based on user feedback.

Current rules:
%s

User feedback for improvement:
%s

Generate improved rules addressing the feedback. Return ONLY valid JSON.`,
		indentJSON(current), feedback)
}

func attemptLine(catalog map[string]any) string {
	attempt, ok := catalog[constrain.ContextKeyAttempt].(int)
	if !ok {
		return ""
	}
	maxAttempts, ok := catalog[constrain.ContextKeyMaxAttempts].(int)
	if !ok {
		maxAttempts = constrain.MaxAttempts
	}
	line := fmt.Sprintf("This is attempt %d of %d.", attempt, maxAttempts)
	if attempt > 1 {
		line += " The previous output referenced identifiers that are not in the catalog; use only the identifiers listed in the constraints."
	}
	return line
}

// suppressTerms returns the forbidden names passed for token suppression.
func suppressTerms(catalog map[string]any) []string {
	switch v := catalog[constrain.ContextKeySuppress].(type) {
	case []string:
		return v
	case []any:
		out := make([]string, 0, len(v))
		for _, item := range v {
			if s, ok := item.(string); ok && s != "" {
				out = append(out, s)
			}
		}
		return out
	default:
		return nil
	}
}

func section(b *strings.Builder, title, guidance, body string) {
	fmt.Fprintf(b, "\n---\n\n## %s\n", title)
	if body == "" {
		b.WriteString("\n(none provided)\n")
	} else {
		b.WriteString(body)
	}
	if guidance != "" {
		fmt.Fprintf(b, "\n%s\n", guidance)
	}
}

func formatConditions(catalog map[string]any) string {
	var b strings.Builder
	for i, c := range entries(catalog["condition_types"]) {
		fmt.Fprintf(&b, "\n### %d. %s (%s)\n", i+1, str(c, "type", "UNKNOWN"), str(c, "category", "N/A"))
		fmt.Fprintf(&b, "Description: %s\n", str(c, "description", "No description"))
		writeExample(&b, "Example usage", c["example"])
	}
	return b.String()
}

func formatActions(catalog map[string]any) string {
	var b strings.Builder
	for i, a := range entries(catalog["action_types"]) {
		mode := "Sync (fire-and-forget)"
		if async, _ := a["async"].(bool); async {
			mode = "Async (waits for completion)"
		}
		fmt.Fprintf(&b, "\n### %d. %s - %s\n", i+1, str(a, "type", "UNKNOWN"), mode)
		fmt.Fprintf(&b, "Category: %s\n", str(a, "category", "N/A"))
		fmt.Fprintf(&b, "Description: %s\n", str(a, "description", "No description"))
		writeExample(&b, "Example", a["example"])
	}
	return b.String()
}

func formatVariables(catalog map[string]any) string {
	vars, ok := catalog["context_variables"].(map[string]any)
	if !ok || len(vars) == 0 {
		return ""
	}
	names := make([]string, 0, len(vars))
	for name := range vars {
		names = append(names, name)
	}
	sort.Strings(names)

	var b strings.Builder
	for i, name := range names {
		def, _ := vars[name].(map[string]any)
		access := "Writable"
		if ro, _ := def["isReadOnly"].(bool); ro {
			access = "Read-only"
		}
		fmt.Fprintf(&b, "\n### %d. $%s - %s\n", i+1, name, access)
		fmt.Fprintf(&b, "Description: %s\n", str(def, "description", "No description"))
		fmt.Fprintf(&b, "Type: %s\n", str(def, "type", "object"))
		writeExample(&b, "Example", def["example"])
	}
	return b.String()
}

func formatTriggers(catalog map[string]any) string {
	var b strings.Builder
	for i, t := range entries(catalog["trigger_types"]) {
		fmt.Fprintf(&b, "\n### %d. %s\n", i+1, str(t, "type", "UNKNOWN"))
		fmt.Fprintf(&b, "Description: %s\n", str(t, "description", "No description"))
		writeExample(&b, "Example", t["example"])
	}
	return b.String()
}

func formatPatterns(catalog map[string]any) string {
	var b strings.Builder
	for i, p := range entries(catalog["resilience_patterns"]) {
		fmt.Fprintf(&b, "\n### %d. %s\n", i+1, str(p, "type", "UNKNOWN"))
		fmt.Fprintf(&b, "Description: %s\n", str(p, "description", "No description"))
		fmt.Fprintf(&b, "Applicable to: %s\n", strings.Join(strs(p["applicableTo"]), ", "))
		writeExample(&b, "Configuration example", p["example"])
	}
	return b.String()
}

func formatExamples(catalog map[string]any) string {
	var b strings.Builder
	for i, e := range entries(catalog["examples"]) {
		fmt.Fprintf(&b, "\n#### Example %d: %s\n", i+1, str(e, "name", "Example"))
		fmt.Fprintf(&b, "Type: %s | Complexity: %s\n", str(e, "category", "workflow"), str(e, "complexity", "N/A"))
		fmt.Fprintf(&b, "Description: %s\n", str(e, "description", "No description"))
		writeExample(&b, "Implementation", e["content"])
	}
	return b.String()
}

func formatBestPractices(catalog map[string]any) string {
	var b strings.Builder
	for i, p := range strs(catalog["best_practices"]) {
		fmt.Fprintf(&b, "%d. %s\n", i+1, p)
	}
	return b.String()
}

func writeExample(b *strings.Builder, label string, v any) {
	if v == nil {
		v = map[string]any{}
	}
	fmt.Fprintf(b, "%s:\n```json\n%s\n```\n", label, indentJSON(v))
}

// entries returns the map elements of a list value.
func entries(v any) []map[string]any {
	list, ok := v.([]any)
	if !ok {
		if typed, ok := v.([]map[string]any); ok {
			return typed
		}
		return nil
	}
	out := make([]map[string]any, 0, len(list))
	for _, item := range list {
		if m, ok := item.(map[string]any); ok {
			out = append(out, m)
		}
	}
	return out
}

func strs(v any) []string {
	switch list := v.(type) {
	case []string:
		return list
	case []any:
		out := make([]string, 0, len(list))
		for _, item := range list {
			if s, ok := item.(string); ok {
				out = append(out, s)
			}
		}
		return out
	default:
		return nil
	}
}

func str(m map[string]any, key, fallback string) string {
	if s, ok := m[key].(string); ok && s != "" {
		return s
	}
	return fallback
}

func indentJSON(v any) string {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return fmt.Sprintf("%v", v)
	}
	return string(data)
}

// Package schemas provides access to embedded JSON schemas.
package schemas

import (
	_ "embed"
)

// RulesSchemaURL is the canonical identifier of the rules schema.
const RulesSchemaURL = "https://rulegen.dev/schemas/rules.schema.json"

//go:embed rules.schema.json
var rulesSchema []byte

// GetRulesSchema returns the embedded workflow-rules JSON Schema as raw bytes.
func GetRulesSchema() []byte {
	return rulesSchema
}

// GetRulesSchemaString returns the embedded workflow-rules JSON Schema as a string.
func GetRulesSchemaString() string {
	return string(rulesSchema)
}

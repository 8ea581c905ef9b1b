package schemas

import (
	"encoding/json"
	"testing"
)

func TestGetRulesSchema(t *testing.T) {
	schema := GetRulesSchema()

	if len(schema) == 0 {
		t.Fatal("embedded schema is empty")
	}

	var schemaMap map[string]interface{}
	if err := json.Unmarshal(schema, &schemaMap); err != nil {
		t.Fatalf("embedded schema is not valid JSON: %v", err)
	}

	if id, ok := schemaMap["$id"].(string); !ok || id != RulesSchemaURL {
		t.Errorf("schema $id = %v, want %s", schemaMap["$id"], RulesSchemaURL)
	}

	required, ok := schemaMap["required"].([]interface{})
	if !ok || len(required) != 1 || required[0] != "rules" {
		t.Errorf("schema required = %v, want [rules]", schemaMap["required"])
	}
}

func TestGetRulesSchemaString(t *testing.T) {
	if GetRulesSchemaString() != string(GetRulesSchema()) {
		t.Error("string and byte forms differ")
	}
}

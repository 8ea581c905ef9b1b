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
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"sync"

	"github.com/santhosh-tekuri/jsonschema/v6"

	"github.com/tombee/rulegen/schemas"
)

var (
	rulesSchemaOnce sync.Once
	rulesSchema     *jsonschema.Schema
	rulesSchemaErr  error
)

// compiledRulesSchema compiles the embedded rules schema on first use.
func compiledRulesSchema() (*jsonschema.Schema, error) {
	rulesSchemaOnce.Do(func() {
		doc, err := jsonschema.UnmarshalJSON(bytes.NewReader(schemas.GetRulesSchema()))
		if err != nil {
			rulesSchemaErr = fmt.Errorf("parse rules schema: %w", err)
			return
		}
		c := jsonschema.NewCompiler()
		if err := c.AddResource(schemas.RulesSchemaURL, doc); err != nil {
			rulesSchemaErr = fmt.Errorf("add rules schema: %w", err)
			return
		}
		rulesSchema, rulesSchemaErr = c.Compile(schemas.RulesSchemaURL)
	})
	return rulesSchema, rulesSchemaErr
}

// ValidateSchema checks a document against the workflow-rules schema and
// returns one message per problem. An empty result means the document is valid.
// Unknown fields are accepted anywhere.
func ValidateSchema(doc any) []string {
	sch, err := compiledRulesSchema()
	if err != nil {
		slog.Warn("rules schema unavailable, using minimal check", "error", err)
		return ValidateSchemaMinimal(doc)
	}

	inst, err := normalize(doc)
	if err != nil {
		return []string{fmt.Sprintf("Response is not valid JSON: %v", err)}
	}

	err = sch.Validate(inst)
	if err == nil {
		return nil
	}
	var verr *jsonschema.ValidationError
	if !errors.As(err, &verr) {
		return []string{err.Error()}
	}

	var msgs []string
	collectLeaves(verr, &msgs)
	sort.Strings(msgs)
	return msgs
}

// ValidateSchemaMinimal enforces only the top-level shape: the document is an
// object with a "rules" array. It agrees with ValidateSchema on those checks.
func ValidateSchemaMinimal(doc any) []string {
	inst, err := normalize(doc)
	if err != nil {
		return []string{fmt.Sprintf("Response is not valid JSON: %v", err)}
	}
	obj, ok := inst.(map[string]any)
	if !ok {
		return []string{"Response is not a JSON object"}
	}
	rules, ok := obj["rules"]
	if !ok {
		return []string{"Missing required field: 'rules'"}
	}
	if _, ok := rules.([]any); !ok {
		return []string{"Field 'rules' must be an array"}
	}
	return nil
}

// normalize converts typed Go values into the generic JSON model the
// validator expects (maps, slices, json.Number).
func normalize(doc any) (any, error) {
	data, err := json.Marshal(doc)
	if err != nil {
		return nil, err
	}
	return jsonschema.UnmarshalJSON(bytes.NewReader(data))
}

func collectLeaves(e *jsonschema.ValidationError, out *[]string) {
	if len(e.Causes) == 0 {
		*out = append(*out, e.Error())
		return
	}
	for _, c := range e.Causes {
		collectLeaves(c, out)
	}
}

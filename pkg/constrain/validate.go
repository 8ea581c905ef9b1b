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

import "fmt"

// Violation field paths.
const (
	FieldTriggerSource   = "trigger.source"
	FieldActionType      = "action.type"
	FieldActionConnector = "action.payload.connector"
)

// Violation identifies a reference to an identifier outside the allowlist.
type Violation struct {
	Field   string `json:"field"`
	Value   string `json:"value"`
	Message string `json:"message"`
}

// ValidateAllowlist walks the rules in doc and reports every trigger source,
// action type and connector that the allowlist does not contain.
//
// Nothing is reported when the allowlist is inactive. A category whose set is
// empty is not checked, so a catalog with connectors but no action types never
// flags action types.
func ValidateAllowlist(doc map[string]any, a *Allowlist) []Violation {
	if a == nil || !a.Active() {
		return nil
	}

	var violations []Violation
	for _, r := range asList(doc["rules"]) {
		rule, ok := r.(map[string]any)
		if !ok {
			continue
		}

		trigger, _ := rule["trigger"].(map[string]any)
		if source := stringField(trigger, "source"); source != "" && len(a.triggerSources) > 0 &&
			!a.HasTriggerSource(source) && !a.HasConnector(source) {
			violations = append(violations, Violation{
				Field:   FieldTriggerSource,
				Value:   source,
				Message: fmt.Sprintf("Trigger source '%s' not in catalog", source),
			})
		}

		for _, act := range asList(rule["actions"]) {
			action, ok := act.(map[string]any)
			if !ok {
				continue
			}

			if atype := stringField(action, "type"); atype != "" && len(a.actionTypes) > 0 && !a.HasActionType(atype) {
				violations = append(violations, Violation{
					Field:   FieldActionType,
					Value:   atype,
					Message: fmt.Sprintf("Action type '%s' not in catalog", atype),
				})
			}

			if conn := actionConnector(action); conn != "" && len(a.connectorIDs) > 0 && !a.HasConnector(conn) {
				violations = append(violations, Violation{
					Field:   FieldActionConnector,
					Value:   conn,
					Message: fmt.Sprintf("Connector '%s' not registered", conn),
				})
			}
		}
	}
	return violations
}

// actionConnector reads payload.connector, falling back to channel.
func actionConnector(action map[string]any) string {
	payload, _ := action["payload"].(map[string]any)
	if c := stringField(payload, "connector"); c != "" {
		return c
	}
	return stringField(action, "channel")
}

func stringField(m map[string]any, key string) string {
	if m == nil {
		return ""
	}
	s, _ := m[key].(string)
	return s
}

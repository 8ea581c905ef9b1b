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
	"sort"
	"strconv"
)

// Catalog keys read by BuildAllowlist.
const (
	KeyConnectors     = "connectors"
	KeyConditionTypes = "condition_types"
	KeyExpertAgents   = "expert_agents"
)

// Candidate keys, tried in order. The first present, non-empty value wins.
var (
	connectorIDKeys   = []string{"id", "connector_id", "name"}
	connectorFuncKeys = []string{"functions", "actions"}
	functionIDKeys    = []string{"id", "name", "function_id"}
	conditionTypeKeys = []string{"id", "type", "name"}
	expertAgentIDKeys = []string{"id", "name"}
)

// Allowlist holds the identifiers a generated document may reference.
// It is built once per request and never modified afterwards.
type Allowlist struct {
	connectorIDs   map[string]struct{}
	actionTypes    map[string]struct{}
	triggerSources map[string]struct{}
}

// BuildAllowlist derives an Allowlist from a catalog snapshot.
// Missing or malformed entries are skipped; it never fails.
func BuildAllowlist(catalog map[string]any) *Allowlist {
	a := &Allowlist{
		connectorIDs:   make(map[string]struct{}),
		actionTypes:    make(map[string]struct{}),
		triggerSources: make(map[string]struct{}),
	}

	for _, entry := range asList(catalog[KeyConnectors]) {
		conn, ok := entry.(map[string]any)
		if !ok {
			continue
		}
		if id, ok := firstID(conn, connectorIDKeys); ok {
			a.connectorIDs[id] = struct{}{}
		}
		for _, fn := range firstList(conn, connectorFuncKeys) {
			fm, ok := fn.(map[string]any)
			if !ok {
				continue
			}
			if id, ok := firstID(fm, functionIDKeys); ok {
				a.actionTypes[id] = struct{}{}
			}
		}
	}

	for _, entry := range asList(catalog[KeyConditionTypes]) {
		switch ct := entry.(type) {
		case string:
			if ct != "" {
				a.triggerSources[ct] = struct{}{}
			}
		case map[string]any:
			if id, ok := firstID(ct, conditionTypeKeys); ok {
				a.triggerSources[id] = struct{}{}
			}
		}
	}

	for _, entry := range asList(catalog[KeyExpertAgents]) {
		agent, ok := entry.(map[string]any)
		if !ok {
			continue
		}
		if id, ok := firstID(agent, expertAgentIDKeys); ok {
			a.actionTypes[id] = struct{}{}
		}
	}

	return a
}

// Active reports whether any category holds at least one identifier.
// An inactive allowlist disables catalog validation entirely.
func (a *Allowlist) Active() bool {
	return a != nil && len(a.connectorIDs)+len(a.actionTypes)+len(a.triggerSources) > 0
}

// HasConnector reports whether id is a registered connector.
func (a *Allowlist) HasConnector(id string) bool {
	_, ok := a.connectorIDs[id]
	return ok
}

// HasActionType reports whether t is a known action type.
func (a *Allowlist) HasActionType(t string) bool {
	_, ok := a.actionTypes[t]
	return ok
}

// HasTriggerSource reports whether s is a known trigger source.
func (a *Allowlist) HasTriggerSource(s string) bool {
	_, ok := a.triggerSources[s]
	return ok
}

// ConnectorIDs returns the connector identifiers in sorted order.
func (a *Allowlist) ConnectorIDs() []string { return sortedKeys(a.connectorIDs) }

// ActionTypes returns the action types in sorted order.
func (a *Allowlist) ActionTypes() []string { return sortedKeys(a.actionTypes) }

// TriggerSources returns the trigger sources in sorted order.
func (a *Allowlist) TriggerSources() []string { return sortedKeys(a.triggerSources) }

// firstID returns the first candidate key holding a non-empty scalar identifier.
func firstID(m map[string]any, keys []string) (string, bool) {
	for _, k := range keys {
		if s, ok := scalarString(m[k]); ok && s != "" {
			return s, true
		}
	}
	return "", false
}

// firstList returns the first candidate key holding a non-empty list.
func firstList(m map[string]any, keys []string) []any {
	for _, k := range keys {
		if l := asList(m[k]); len(l) > 0 {
			return l
		}
	}
	return nil
}

func asList(v any) []any {
	switch l := v.(type) {
	case []any:
		return l
	case []map[string]any:
		out := make([]any, len(l))
		for i, m := range l {
			out[i] = m
		}
		return out
	case []string:
		out := make([]any, len(l))
		for i, s := range l {
			out[i] = s
		}
		return out
	}
	return nil
}

// scalarString renders strings and numbers as identifiers. Other types are rejected.
func scalarString(v any) (string, bool) {
	switch s := v.(type) {
	case string:
		return s, true
	case float64:
		return strconv.FormatFloat(s, 'f', -1, 64), true
	case int:
		return strconv.Itoa(s), true
	case int64:
		return strconv.FormatInt(s, 10), true
	}
	return "", false
}

func sortedKeys(m map[string]struct{}) []string {
	out := make([]string, 0, len(m))
	for k := range m {
		out = append(out, k)
	}
	sort.Strings(out)
	return out
}

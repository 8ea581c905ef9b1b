package generator

import (
	"encoding/json"
	"fmt"
	"strings"
)

// defaultConfidence is reported when a response does not state one.
const defaultConfidence = 0.9

// alternateRuleKeys are rule-list keys some models emit instead of "rules".
var alternateRuleKeys = []string{"generatedRules", "GeneratedRules", "generated_rules"}

// stripFences removes a surrounding markdown code fence.
func stripFences(s string) string {
	s = strings.TrimSpace(s)
	if !strings.HasPrefix(s, "```") {
		return s
	}
	nl := strings.Index(s, "\n")
	if nl < 0 {
		return strings.Trim(s, "`")
	}
	s = s[nl+1:]
	if end := strings.LastIndex(s, "```"); end >= 0 {
		s = s[:end]
	}
	return strings.TrimSpace(s)
}

// extractSpan returns the text between the first open and the last close
// delimiter, inclusive.
func extractSpan(s string, open, close byte) (string, bool) {
	start := strings.IndexByte(s, open)
	end := strings.LastIndexByte(s, close)
	if start < 0 || end <= start {
		return "", false
	}
	return s[start : end+1], true
}

// ExtractObject returns the outermost JSON object in a model response.
func ExtractObject(content string) (string, bool) {
	return extractSpan(stripFences(content), '{', '}')
}

// ExtractArray returns the outermost JSON array in a model response.
func ExtractArray(content string) (string, bool) {
	return extractSpan(stripFences(content), '[', ']')
}

// ParseDocument decodes a single rules document from a model response and
// normalizes it. A response whose top level is an array is accepted as the
// rule list.
func ParseDocument(content string) (map[string]any, error) {
	body := stripFences(content)
	objStart := strings.IndexByte(body, '{')
	arrStart := strings.IndexByte(body, '[')

	if arrStart >= 0 && (objStart < 0 || arrStart < objStart) {
		if raw, ok := extractSpan(body, '[', ']'); ok {
			var list []any
			if err := json.Unmarshal([]byte(raw), &list); err == nil {
				return Normalize(list), nil
			}
		}
	}

	raw, ok := extractSpan(body, '{', '}')
	if !ok {
		return nil, fmt.Errorf("no JSON object in response")
	}
	var doc map[string]any
	if err := json.Unmarshal([]byte(raw), &doc); err != nil {
		return nil, fmt.Errorf("decode JSON object: %w", err)
	}
	return Normalize(doc), nil
}

// ParseDocuments decodes a JSON array of rules documents. Elements that are
// not objects are dropped.
// A response whose first JSON value is an object is rejected rather than
// mined for a nested array.
func ParseDocuments(content string) ([]map[string]any, error) {
	body := stripFences(content)
	objStart := strings.IndexByte(body, '{')
	arrStart := strings.IndexByte(body, '[')
	if arrStart < 0 || (objStart >= 0 && objStart < arrStart) {
		return nil, fmt.Errorf("no JSON array in response")
	}
	raw, ok := extractSpan(body, '[', ']')
	if !ok {
		return nil, fmt.Errorf("no JSON array in response")
	}
	var list []any
	if err := json.Unmarshal([]byte(raw), &list); err != nil {
		return nil, fmt.Errorf("decode JSON array: %w", err)
	}
	out := make([]map[string]any, 0, len(list))
	for _, item := range list {
		if m, ok := item.(map[string]any); ok {
			out = append(out, Normalize(m))
		}
	}
	return out, nil
}

// Normalize maps alternate rule-list keys onto "rules". Documents that
// already carry a "rules" list, or that match no known shape, are returned
// unchanged; a bare list becomes the rules of a new document.
func Normalize(v any) map[string]any {
	switch doc := v.(type) {
	case []any:
		return map[string]any{"rules": doc, "summary": "", "confidence": defaultConfidence}
	case map[string]any:
		if _, ok := doc["rules"].([]any); ok {
			return doc
		}
		for _, key := range alternateRuleKeys {
			rules, ok := doc[key]
			if !ok {
				continue
			}
			if rules == nil {
				rules = []any{}
			}
			summary, _ := doc["summary"].(string)
			confidence, ok := doc["confidence"]
			if !ok {
				confidence = defaultConfidence
			}
			return map[string]any{"rules": rules, "summary": summary, "confidence": confidence}
		}
		return doc
	default:
		return nil
	}
}

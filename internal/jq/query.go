// Package jq compiles jq expressions used to reshape upstream JSON.
package jq

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/itchyny/gojq"
)

const (
	// DefaultTimeout bounds one evaluation.
	DefaultTimeout = 1 * time.Second

	// DefaultMaxInputSize is the largest input accepted, in encoded bytes (10MB).
	DefaultMaxInputSize = 10 * 1024 * 1024
)

// Query is a compiled jq expression. It is safe for concurrent use.
type Query struct {
	source       string
	code         *gojq.Code
	timeout      time.Duration
	maxInputSize int
}

// Compile parses and compiles expression. An empty expression yields a
// Query that returns its input unchanged.
func Compile(expression string) (*Query, error) {
	q := &Query{source: expression, timeout: DefaultTimeout, maxInputSize: DefaultMaxInputSize}
	if expression == "" {
		return q, nil
	}

	parsed, err := gojq.Parse(expression)
	if err != nil {
		return nil, fmt.Errorf("invalid jq expression: %w", err)
	}
	code, err := gojq.Compile(parsed)
	if err != nil {
		return nil, fmt.Errorf("jq compilation failed: %w", err)
	}
	q.code = code
	return q, nil
}

// String returns the source expression.
func (q *Query) String() string {
	return q.source
}

// Run evaluates the query against data. A single result is returned as is;
// several results are returned as a slice; no result yields nil.
func (q *Query) Run(ctx context.Context, data any) (any, error) {
	if q.code == nil {
		return data, nil
	}

	// gojq only understands plain JSON values.
	normalized, err := normalize(data, q.maxInputSize)
	if err != nil {
		return nil, err
	}

	ctx, cancel := context.WithTimeout(ctx, q.timeout)
	defer cancel()

	iter := q.code.RunWithContext(ctx, normalized)
	var results []any
	for {
		v, ok := iter.Next()
		if !ok {
			break
		}
		if err, isErr := v.(error); isErr {
			if ctx.Err() != nil {
				return nil, fmt.Errorf("jq execution timeout after %v", q.timeout)
			}
			return nil, err
		}
		results = append(results, v)
	}

	switch len(results) {
	case 0:
		return nil, nil
	case 1:
		return results[0], nil
	default:
		return results, nil
	}
}

// Validate reports whether expression compiles.
func Validate(expression string) error {
	_, err := Compile(expression)
	return err
}

func normalize(data any, limit int) (any, error) {
	raw, err := json.Marshal(data)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal data: %w", err)
	}
	if len(raw) > limit {
		return nil, fmt.Errorf("data size (%d bytes) exceeds maximum (%d bytes)", len(raw), limit)
	}
	var out any
	if err := json.Unmarshal(raw, &out); err != nil {
		return nil, fmt.Errorf("failed to decode data: %w", err)
	}
	return out, nil
}

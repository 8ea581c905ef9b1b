package jq

import (
	"context"
	"reflect"
	"testing"
)

func TestQuery_Run(t *testing.T) {
	tests := []struct {
		name       string
		expression string
		data       any
		want       any
		wantErr    bool
	}{
		{
			name:       "empty expression returns data as-is",
			expression: "",
			data:       map[string]any{"foo": "bar"},
			want:       map[string]any{"foo": "bar"},
		},
		{
			name:       "field extraction",
			expression: ".data.catalog",
			data:       map[string]any{"data": map[string]any{"catalog": map[string]any{"connectors": []any{}}}},
			want:       map[string]any{"connectors": []any{}},
		},
		{
			name:       "typed input is normalized",
			expression: ".count",
			data: struct {
				Count int `json:"count"`
			}{Count: 3},
			want: float64(3),
		},
		{
			name:       "multiple results become a slice",
			expression: ".[]",
			data:       []any{"a", "b"},
			want:       []any{"a", "b"},
		},
		{
			name:       "no result is nil",
			expression: "empty",
			data:       map[string]any{},
			want:       nil,
		},
		{
			name:       "runtime error",
			expression: ".foo.bar",
			data:       map[string]any{"foo": "text"},
			wantErr:    true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			q, err := Compile(tt.expression)
			if err != nil {
				t.Fatalf("Compile() error = %v", err)
			}
			got, err := q.Run(context.Background(), tt.data)
			if (err != nil) != tt.wantErr {
				t.Fatalf("Run() error = %v, wantErr %v", err, tt.wantErr)
			}
			if !tt.wantErr && !reflect.DeepEqual(got, tt.want) {
				t.Errorf("Run() = %#v, want %#v", got, tt.want)
			}
		})
	}
}

func TestCompile_Invalid(t *testing.T) {
	for _, expr := range []string{".[", "foo(", "$undefined"} {
		if _, err := Compile(expr); err == nil {
			t.Errorf("Compile(%q) expected error", expr)
		}
		if err := Validate(expr); err == nil {
			t.Errorf("Validate(%q) expected error", expr)
		}
	}
	if err := Validate(""); err != nil {
		t.Errorf("Validate(\"\") = %v", err)
	}
}

func TestQuery_InputSizeLimit(t *testing.T) {
	q, err := Compile(".")
	if err != nil {
		t.Fatal(err)
	}
	q.maxInputSize = 8
	if _, err := q.Run(context.Background(), map[string]any{"long": "0123456789"}); err == nil {
		t.Fatal("expected size error")
	}
}

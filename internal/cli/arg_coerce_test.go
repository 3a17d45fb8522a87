package cli

import (
	"encoding/json"
	"errors"
	"reflect"
	"testing"

	"github.com/mark3labs/mcp-go/mcp"
)

var coerceSchema = json.RawMessage(`{
	"type": "object",
	"properties": {
		"page": {"type": "integer"},
		"ratio": {"type": "number"},
		"dry-run": {"type": "boolean"},
		"name": {"type": "string"},
		"tags": {"type": "array", "items": {"type": "integer"}},
		"filter": {"type": "object", "properties": {"limit": {"type": "integer"}}}
	}
}`)

func TestCoerceToolArgsConvertsFlagStrings(t *testing.T) {
	got, err := coerceToolArgs(map[string]any{
		"page":   "00123",
		"ratio":  " 1.5 ",
		"name":   "42",
		"tags":   []any{"1", "2"},
		"filter": `{"limit":"10"}`,
		"extra":  "kept",
	}, coerceSchema)
	if err != nil {
		t.Fatalf("coerceToolArgs() error = %v", err)
	}

	want := map[string]any{
		"page":   int64(123),
		"ratio":  1.5,
		"name":   "42",
		"tags":   []any{int64(1), int64(2)},
		"filter": map[string]any{"limit": int64(10)},
		"extra":  "kept",
	}
	if !reflect.DeepEqual(got, want) {
		t.Fatalf("coerceToolArgs() = %#v, want %#v", got, want)
	}
}

func TestCoerceToolArgsWrapsSingleValueAndJSONArrays(t *testing.T) {
	got, err := coerceToolArgs(map[string]any{"tags": "7"}, coerceSchema)
	if err != nil {
		t.Fatalf("coerceToolArgs() error = %v", err)
	}
	if !reflect.DeepEqual(got["tags"], []any{int64(7)}) {
		t.Fatalf("tags = %#v, want [7]", got["tags"])
	}

	got, err = coerceToolArgs(map[string]any{"tags": "[3, 4]"}, coerceSchema)
	if err != nil {
		t.Fatalf("coerceToolArgs() error = %v", err)
	}
	if !reflect.DeepEqual(got["tags"], []any{int64(3), int64(4)}) {
		t.Fatalf("tags = %#v, want [3 4]", got["tags"])
	}
}

func TestCoerceToolArgsNegatesNoPrefixedBooleans(t *testing.T) {
	got, err := coerceToolArgs(map[string]any{"no-dry-run": true}, coerceSchema)
	if err != nil {
		t.Fatalf("coerceToolArgs() error = %v", err)
	}
	if got["dry-run"] != false {
		t.Fatalf("dry-run = %#v, want false", got["dry-run"])
	}
	if _, ok := got["no-dry-run"]; ok {
		t.Fatalf("no-dry-run should be rewritten: %#v", got)
	}

	if _, err := coerceToolArgs(map[string]any{"no-dry-run": true, "dry-run": "true"}, coerceSchema); err == nil {
		t.Fatal("coerceToolArgs() error = nil, want conflict error")
	}
}

func TestCoerceToolArgsLeavesUndeclaredNoPrefixAlone(t *testing.T) {
	got, err := coerceToolArgs(map[string]any{"no-cache": true}, coerceSchema)
	if err != nil {
		t.Fatalf("coerceToolArgs() error = %v", err)
	}
	if got["no-cache"] != true {
		t.Fatalf("no-cache = %#v, want true", got["no-cache"])
	}
}

func TestCoerceToolArgsRejectsBadValues(t *testing.T) {
	tests := []map[string]any{
		{"page": "1.5"},
		{"page": "abc"},
		{"ratio": "fast"},
		{"dry-run": "maybe"},
		{"filter": "[1]"},
		{"tags": []any{"x"}},
	}
	for _, args := range tests {
		_, err := coerceToolArgs(args, coerceSchema)
		if err == nil {
			t.Fatalf("coerceToolArgs(%v) error = nil, want non-nil", args)
		}
		if !errors.Is(err, mcp.ErrInvalidParams) {
			t.Fatalf("coerceToolArgs(%v) error = %v, want ErrInvalidParams", args, err)
		}
	}
}

func TestCoerceToolArgsWithoutSchemaPassesThrough(t *testing.T) {
	args := map[string]any{"page": "1"}
	got, err := coerceToolArgs(args, nil)
	if err != nil {
		t.Fatalf("coerceToolArgs() error = %v", err)
	}
	if got["page"] != "1" {
		t.Fatalf("page = %#v, want %q", got["page"], "1")
	}
}

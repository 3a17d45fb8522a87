package cli

import (
	"encoding/json"
	"fmt"
	"math"
	"strings"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/spf13/cast"
)

// coerceToolArgs converts flag strings into the types the tool's input
// schema declares. Arguments the schema does not describe pass through
// unchanged; the server remains the authority on validation.
func coerceToolArgs(args map[string]any, schemaRaw json.RawMessage) (map[string]any, error) {
	if args == nil {
		args = map[string]any{}
	}
	if len(schemaRaw) == 0 {
		return args, nil
	}

	var schema map[string]any
	if err := json.Unmarshal(schemaRaw, &schema); err != nil {
		return nil, fmt.Errorf("parsing input schema: %w", err)
	}
	return coerceObject(args, schema, "")
}

func coerceObject(raw map[string]any, schema map[string]any, path string) (map[string]any, error) {
	props, _ := schema["properties"].(map[string]any)
	out := make(map[string]any, len(raw))
	for key, value := range raw {
		out[key] = value
	}

	// --no-<flag> negates a boolean property the schema declares.
	for key, value := range raw {
		base, ok := strings.CutPrefix(key, "no-")
		if !ok || base == "" {
			continue
		}
		if _, declared := props[key]; declared {
			continue
		}
		baseSchema, _ := props[base].(map[string]any)
		if schemaType(baseSchema) != "boolean" {
			continue
		}
		if _, exists := raw[base]; exists {
			return nil, invalidArg("conflicting arguments %q and %q", joinPath(path, base), joinPath(path, key))
		}
		b, err := cast.ToBoolE(value)
		if err != nil {
			return nil, invalidArg("argument %q must be boolean: %v", joinPath(path, key), err)
		}
		delete(out, key)
		out[base] = !b
	}

	for key, value := range out {
		propSchema, _ := props[key].(map[string]any)
		if propSchema == nil {
			continue
		}
		coerced, err := coerceValue(value, propSchema, joinPath(path, key))
		if err != nil {
			return nil, err
		}
		out[key] = coerced
	}
	return out, nil
}

func coerceValue(value any, schema map[string]any, path string) (any, error) {
	if value == nil {
		return nil, nil
	}

	switch schemaType(schema) {
	case "integer":
		f, err := cast.ToFloat64E(trimString(value))
		if err != nil || math.Trunc(f) != f {
			return nil, invalidArg("argument %q must be integer, got %v", path, value)
		}
		return int64(f), nil
	case "number":
		f, err := cast.ToFloat64E(trimString(value))
		if err != nil {
			return nil, invalidArg("argument %q must be number, got %v", path, value)
		}
		return f, nil
	case "boolean":
		b, err := cast.ToBoolE(trimString(value))
		if err != nil {
			return nil, invalidArg("argument %q must be boolean, got %v", path, value)
		}
		return b, nil
	case "array":
		return coerceArray(value, schema, path)
	case "object":
		obj, err := decodeIfString[map[string]any](value)
		if err != nil {
			return nil, invalidArg("argument %q must be a JSON object: %v", path, err)
		}
		return coerceObject(obj, schema, path)
	default:
		return value, nil
	}
}

// coerceArray accepts a JSON array string, repeated flags, or a single
// value that becomes a one-element array.
func coerceArray(value any, schema map[string]any, path string) ([]any, error) {
	var items []any
	switch v := value.(type) {
	case []any:
		items = v
	case string:
		if strings.HasPrefix(strings.TrimSpace(v), "[") {
			decoded, err := decodeIfString[[]any](v)
			if err != nil {
				return nil, invalidArg("argument %q must be a JSON array: %v", path, err)
			}
			items = decoded
		} else {
			items = []any{v}
		}
	default:
		items = []any{v}
	}

	itemSchema, _ := schema["items"].(map[string]any)
	if itemSchema == nil {
		return items, nil
	}
	out := make([]any, len(items))
	for i, item := range items {
		coerced, err := coerceValue(item, itemSchema, fmt.Sprintf("%s[%d]", path, i))
		if err != nil {
			return nil, err
		}
		out[i] = coerced
	}
	return out, nil
}

func decodeIfString[T any](value any) (T, error) {
	var zero T
	if typed, ok := value.(T); ok {
		return typed, nil
	}
	s, ok := value.(string)
	if !ok {
		return zero, fmt.Errorf("unexpected %T", value)
	}
	var decoded T
	if err := json.Unmarshal([]byte(strings.TrimSpace(s)), &decoded); err != nil {
		return zero, err
	}
	return decoded, nil
}

func trimString(value any) any {
	if s, ok := value.(string); ok {
		return strings.TrimSpace(s)
	}
	return value
}

func schemaType(schema map[string]any) string {
	if schema == nil {
		return ""
	}
	if t, ok := schema["type"].(string); ok {
		return strings.ToLower(strings.TrimSpace(t))
	}
	if _, ok := schema["properties"]; ok {
		return "object"
	}
	return ""
}

func invalidArg(format string, args ...any) error {
	return fmt.Errorf("%w: %s", mcp.ErrInvalidParams, fmt.Sprintf(format, args...))
}

func joinPath(prefix, key string) string {
	if prefix == "" {
		return key
	}
	return prefix + "." + key
}

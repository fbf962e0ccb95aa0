package tools

import (
	"encoding/json"
	"fmt"
	"math"
	"sort"
	"strconv"
	"strings"

	"github.com/mark3labs/mcp-go/mcp"
)

// FieldError describes one offending argument.
type FieldError struct {
	Field   string `json:"field"`
	Message string `json:"message"`
}

// ValidationError lists every argument that failed validation. It wraps
// mcp.ErrInvalidParams.
type ValidationError struct {
	Operation string
	Fields    []FieldError
}

func (e *ValidationError) Error() string {
	parts := make([]string, len(e.Fields))
	for i, f := range e.Fields {
		parts[i] = f.Field + ": " + f.Message
	}
	return fmt.Sprintf("%s: invalid arguments for %s: %s", mcp.ErrInvalidParams, e.Operation, strings.Join(parts, "; "))
}

func (e *ValidationError) Unwrap() error {
	return mcp.ErrInvalidParams
}

type collector struct {
	fields []FieldError
}

func (c *collector) add(path, format string, args ...any) {
	if path == "" {
		path = "(arguments)"
	}
	c.fields = append(c.fields, FieldError{Field: path, Message: fmt.Sprintf(format, args...)})
}

// Validate checks args against a tool input schema and returns the coerced
// arguments. Strings are coerced to numbers, booleans, arrays and objects
// where the schema asks for them. Every problem is reported at once.
func Validate(operation string, schema mcp.ToolInputSchema, args map[string]any) (map[string]any, error) {
	if args == nil {
		args = map[string]any{}
	}
	root := map[string]any{
		"type":       "object",
		"properties": schema.Properties,
		"required":   schema.Required,
	}

	var c collector
	out := coerceObject(args, root, "", &c)
	if len(c.fields) > 0 {
		sort.SliceStable(c.fields, func(i, j int) bool { return c.fields[i].Field < c.fields[j].Field })
		return nil, &ValidationError{Operation: operation, Fields: c.fields}
	}
	return out, nil
}

func coerceObject(raw map[string]any, schema map[string]any, path string, c *collector) map[string]any {
	if raw == nil {
		raw = map[string]any{}
	}

	props, _ := schema["properties"].(map[string]any)
	required := requiredSet(schema)

	if len(props) > 0 {
		for key := range raw {
			if _, ok := props[key]; !ok {
				c.add(dottedPath(path, key), "unknown argument")
			}
		}
	}

	for key := range required {
		if v, ok := raw[key]; !ok || v == nil {
			c.add(dottedPath(path, key), "missing required argument")
		}
	}

	out := make(map[string]any, len(raw))
	for key, value := range raw {
		propSchema, _ := props[key].(map[string]any)
		if propSchema == nil {
			out[key] = value
			continue
		}
		if coerced, ok := coerceValue(value, propSchema, dottedPath(path, key), c); ok {
			out[key] = coerced
		}
	}
	return out
}

func coerceValue(value any, schema map[string]any, path string, c *collector) (any, bool) {
	if schema == nil || value == nil {
		return value, true
	}

	var (
		out any
		ok  bool
	)
	switch schemaType(schema) {
	case "string":
		var s string
		if s, ok = value.(string); !ok {
			c.add(path, "must be string, got %s", jsonType(value))
			return nil, false
		}
		out = s
	case "integer":
		out, ok = coerceInteger(value, path, c)
	case "number":
		out, ok = coerceNumber(value, path, c)
	case "boolean":
		out, ok = coerceBoolean(value, path, c)
	case "array":
		out, ok = coerceArray(value, schema, path, c)
	case "object":
		out, ok = coerceObjectValue(value, schema, path, c)
	default:
		out, ok = value, true
	}
	if !ok {
		return nil, false
	}
	return out, checkConstraints(out, schema, path, c)
}

func checkConstraints(value any, schema map[string]any, path string, c *collector) bool {
	ok := true

	if allowed := enumValues(schema); len(allowed) > 0 {
		s := fmt.Sprint(value)
		found := false
		for _, a := range allowed {
			if a == s {
				found = true
				break
			}
		}
		if !found {
			c.add(path, "must be one of %s, got %q", strings.Join(allowed, ", "), s)
			ok = false
		}
	}

	var n float64
	switch v := value.(type) {
	case float64:
		n = v
	case int64:
		n = float64(v)
	default:
		return ok
	}
	if min, has := number(schema["minimum"]); has && n < min {
		c.add(path, "must be >= %s, got %s", formatNumber(min), formatNumber(n))
		ok = false
	}
	if min, has := number(schema["exclusiveMinimum"]); has && n <= min {
		c.add(path, "must be > %s, got %s", formatNumber(min), formatNumber(n))
		ok = false
	}
	if max, has := number(schema["maximum"]); has && n > max {
		c.add(path, "must be <= %s, got %s", formatNumber(max), formatNumber(n))
		ok = false
	}
	return ok
}

func coerceInteger(value any, path string, c *collector) (int64, bool) {
	switch v := value.(type) {
	case int:
		return int64(v), true
	case int32:
		return int64(v), true
	case int64:
		return v, true
	case float32:
		return coerceInteger(float64(v), path, c)
	case float64:
		if math.Trunc(v) != v || math.IsInf(v, 0) {
			c.add(path, "must be integer, got %s", formatNumber(v))
			return 0, false
		}
		return int64(v), true
	case json.Number:
		i, err := v.Int64()
		if err != nil {
			c.add(path, "must be integer: %v", err)
			return 0, false
		}
		return i, true
	case string:
		i, err := strconv.ParseInt(strings.TrimSpace(v), 10, 64)
		if err != nil {
			c.add(path, "must be integer, got %q", v)
			return 0, false
		}
		return i, true
	default:
		c.add(path, "must be integer, got %s", jsonType(value))
		return 0, false
	}
}

func coerceNumber(value any, path string, c *collector) (float64, bool) {
	var f float64
	switch v := value.(type) {
	case int:
		f = float64(v)
	case int32:
		f = float64(v)
	case int64:
		f = float64(v)
	case float32:
		f = float64(v)
	case float64:
		f = v
	case json.Number:
		parsed, err := v.Float64()
		if err != nil {
			c.add(path, "must be number: %v", err)
			return 0, false
		}
		f = parsed
	case string:
		parsed, err := strconv.ParseFloat(strings.TrimSpace(v), 64)
		if err != nil {
			c.add(path, "must be number, got %q", v)
			return 0, false
		}
		f = parsed
	default:
		c.add(path, "must be number, got %s", jsonType(value))
		return 0, false
	}
	if math.IsNaN(f) || math.IsInf(f, 0) {
		c.add(path, "must be a finite number")
		return 0, false
	}
	return f, true
}

func coerceBoolean(value any, path string, c *collector) (bool, bool) {
	switch v := value.(type) {
	case bool:
		return v, true
	case string:
		b, err := strconv.ParseBool(strings.TrimSpace(v))
		if err != nil {
			c.add(path, "must be boolean, got %q", v)
			return false, false
		}
		return b, true
	default:
		c.add(path, "must be boolean, got %s", jsonType(value))
		return false, false
	}
}

func coerceArray(value any, schema map[string]any, path string, c *collector) ([]any, bool) {
	itemsSchema, _ := schema["items"].(map[string]any)

	var items []any
	switch v := value.(type) {
	case []any:
		items = v
	case []string:
		for _, s := range v {
			items = append(items, s)
		}
	case string:
		trimmed := strings.TrimSpace(v)
		if !strings.HasPrefix(trimmed, "[") {
			items = []any{v}
			break
		}
		if err := json.Unmarshal([]byte(trimmed), &items); err != nil {
			c.add(path, "must be JSON array: %v", err)
			return nil, false
		}
	default:
		c.add(path, "must be array, got %s", jsonType(value))
		return nil, false
	}

	if min, has := number(schema["minItems"]); has && float64(len(items)) < min {
		c.add(path, "must have at least %s items, got %d", formatNumber(min), len(items))
		return nil, false
	}

	ok := true
	out := make([]any, 0, len(items))
	for i, item := range items {
		if itemsSchema == nil {
			out = append(out, item)
			continue
		}
		coerced, itemOK := coerceValue(item, itemsSchema, indexedPath(path, i), c)
		ok = ok && itemOK
		out = append(out, coerced)
	}
	return out, ok
}

func coerceObjectValue(value any, schema map[string]any, path string, c *collector) (map[string]any, bool) {
	var obj map[string]any
	switch v := value.(type) {
	case map[string]any:
		obj = v
	case string:
		var parsed any
		if err := json.Unmarshal([]byte(strings.TrimSpace(v)), &parsed); err != nil {
			c.add(path, "must be JSON object: %v", err)
			return nil, false
		}
		m, isObj := parsed.(map[string]any)
		if !isObj {
			c.add(path, "must be object")
			return nil, false
		}
		obj = m
	default:
		c.add(path, "must be object, got %s", jsonType(value))
		return nil, false
	}

	before := len(c.fields)
	out := coerceObject(obj, schema, path, c)
	return out, len(c.fields) == before
}

func requiredSet(schema map[string]any) map[string]struct{} {
	out := map[string]struct{}{}

	switch v := schema["required"].(type) {
	case []string:
		for _, name := range v {
			out[name] = struct{}{}
		}
	case []any:
		for _, item := range v {
			if s, ok := item.(string); ok {
				out[s] = struct{}{}
			}
		}
	}

	return out
}

func enumValues(schema map[string]any) []string {
	switch v := schema["enum"].(type) {
	case []string:
		return v
	case []any:
		out := make([]string, 0, len(v))
		for _, item := range v {
			out = append(out, fmt.Sprint(item))
		}
		return out
	}
	return nil
}

func schemaType(schema map[string]any) string {
	if schema == nil {
		return ""
	}
	if t, ok := schema["type"].(string); ok {
		return strings.TrimSpace(strings.ToLower(t))
	}
	if _, ok := schema["properties"]; ok {
		return "object"
	}
	return ""
}

func number(v any) (float64, bool) {
	switch n := v.(type) {
	case float64:
		return n, true
	case int:
		return float64(n), true
	case int64:
		return float64(n), true
	}
	return 0, false
}

func formatNumber(f float64) string {
	return strconv.FormatFloat(f, 'f', -1, 64)
}

func jsonType(v any) string {
	switch v.(type) {
	case string:
		return "string"
	case bool:
		return "boolean"
	case float32, float64, int, int32, int64, json.Number:
		return "number"
	case []any:
		return "array"
	case map[string]any:
		return "object"
	default:
		return fmt.Sprintf("%T", v)
	}
}

func dottedPath(prefix, key string) string {
	if prefix == "" {
		return key
	}
	return prefix + "." + key
}

func indexedPath(path string, idx int) string {
	return fmt.Sprintf("%s[%d]", path, idx)
}

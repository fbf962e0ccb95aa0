package tools

import "github.com/mark3labs/mcp-go/mcp"

var unitSchema = map[string]any{
	"type":        "string",
	"enum":        []string{"mm", "inch"},
	"description": "Unit of the coordinates (default mm)",
}

// integer narrows a WithNumber property to whole numbers.
func integer() mcp.PropertyOption {
	return func(s map[string]any) { s["type"] = "integer" }
}

func exclusiveMin(v float64) mcp.PropertyOption {
	return func(s map[string]any) { s["exclusiveMinimum"] = v }
}

// positive is the constraint for physical lengths.
func positive() mcp.PropertyOption {
	return exclusiveMin(0)
}

func withSchema(name string, schema map[string]any, required bool) mcp.ToolOption {
	return func(t *mcp.Tool) {
		if required {
			t.InputSchema.Required = append(t.InputSchema.Required, name)
		}
		t.InputSchema.Properties[name] = schema
	}
}

func positionSchema(desc string) map[string]any {
	return map[string]any{
		"type":        "object",
		"description": desc,
		"properties": map[string]any{
			"x":    map[string]any{"type": "number", "description": "X coordinate"},
			"y":    map[string]any{"type": "number", "description": "Y coordinate"},
			"unit": unitSchema,
		},
		"required": []string{"x", "y"},
	}
}

// withPosition adds an {x, y, unit} coordinate property.
func withPosition(name, desc string, required bool) mcp.ToolOption {
	return withSchema(name, positionSchema(desc), required)
}

// withPoint adds a coordinate that may instead reference a pad as
// {componentRef, pad}.
func withPoint(name, desc string, required bool) mcp.ToolOption {
	return withSchema(name, map[string]any{
		"type":        "object",
		"description": desc + ". Either {x, y, unit} or {componentRef, pad}",
		"properties": map[string]any{
			"x":            map[string]any{"type": "number"},
			"y":            map[string]any{"type": "number"},
			"unit":         unitSchema,
			"componentRef": map[string]any{"type": "string", "description": "Component reference, e.g. U1"},
			"pad":          map[string]any{"type": "string", "description": "Pad number or name"},
		},
	}, required)
}

func withStringList(name, desc string, opts ...mcp.PropertyOption) mcp.ToolOption {
	return mcp.WithArray(name, append([]mcp.PropertyOption{mcp.Description(desc), mcp.WithStringItems()}, opts...)...)
}

package tools

import (
	"errors"
	"strings"
	"testing"

	"github.com/mark3labs/mcp-go/mcp"
)

func schemaFor(t *testing.T, op string) mcp.ToolInputSchema {
	t.Helper()
	d, ok := Lookup(op)
	if !ok {
		t.Fatalf("Lookup(%q) not found", op)
	}
	return d.Tool.InputSchema
}

func TestValidateRejectsNonPositiveBoardSize(t *testing.T) {
	_, err := Validate("set_board_size", schemaFor(t, "set_board_size"), map[string]any{
		"width": -5.0, "height": 80.0, "unit": "mm",
	})
	var verr *ValidationError
	if !errors.As(err, &verr) {
		t.Fatalf("Validate() error = %v, want *ValidationError", err)
	}
	if !errors.Is(err, mcp.ErrInvalidParams) {
		t.Fatalf("Validate() error = %v, want ErrInvalidParams", err)
	}
	if len(verr.Fields) != 1 || verr.Fields[0].Field != "width" {
		t.Fatalf("Fields = %+v, want only width", verr.Fields)
	}
	if !strings.Contains(verr.Fields[0].Message, "> 0") {
		t.Fatalf("width message = %q, want exclusive minimum", verr.Fields[0].Message)
	}
}

func TestValidateReportsEveryOffendingField(t *testing.T) {
	_, err := Validate("set_board_size", schemaFor(t, "set_board_size"), map[string]any{
		"width": "wide", "unit": "furlong", "colour": "green",
	})
	var verr *ValidationError
	if !errors.As(err, &verr) {
		t.Fatalf("Validate() error = %v, want *ValidationError", err)
	}
	var fields []string
	for _, f := range verr.Fields {
		fields = append(fields, f.Field)
	}
	if got, want := strings.Join(fields, ","), "colour,height,unit,width"; got != want {
		t.Fatalf("fields = %s, want %s", got, want)
	}
}

func TestValidateCoercesStrings(t *testing.T) {
	out, err := Validate("get_board_2d_view", schemaFor(t, "get_board_2d_view"), map[string]any{
		"width": "1024", "format": "svg", "layers": `["F.Cu","B.Cu"]`,
	})
	if err != nil {
		t.Fatalf("Validate() error = %v", err)
	}
	if out["width"] != int64(1024) {
		t.Fatalf("width = %#v, want int64(1024)", out["width"])
	}
	layers, ok := out["layers"].([]any)
	if !ok || len(layers) != 2 || layers[1] != "B.Cu" {
		t.Fatalf("layers = %#v, want [F.Cu B.Cu]", out["layers"])
	}
}

func TestValidateNestedPositions(t *testing.T) {
	schema := schemaFor(t, "place_component")

	_, err := Validate("place_component", schema, map[string]any{
		"componentId": "R_0603",
		"position":    map[string]any{"x": 10.0, "unit": "cm"},
	})
	var verr *ValidationError
	if !errors.As(err, &verr) {
		t.Fatalf("Validate() error = %v, want *ValidationError", err)
	}
	if len(verr.Fields) != 2 || verr.Fields[0].Field != "position.unit" || verr.Fields[1].Field != "position.y" {
		t.Fatalf("Fields = %+v, want position.unit and position.y", verr.Fields)
	}

	out, err := Validate("place_component", schema, map[string]any{
		"componentId": "R_0603",
		"position":    `{"x": 1, "y": 2}`,
	})
	if err != nil {
		t.Fatalf("Validate(json string) error = %v", err)
	}
	if pos := out["position"].(map[string]any); pos["y"] != 2.0 {
		t.Fatalf("position = %#v, want y=2", pos)
	}
}

func TestValidateArrayItemsAndMinItems(t *testing.T) {
	schema := schemaFor(t, "align_components")
	_, err := Validate("align_components", schema, map[string]any{
		"references": []any{"R1"},
		"alignment":  "horizontal",
	})
	if err == nil || !strings.Contains(err.Error(), "at least 2 items") {
		t.Fatalf("Validate() error = %v, want minItems failure", err)
	}

	_, err = Validate("add_copper_pour", schemaFor(t, "add_copper_pour"), map[string]any{
		"layer": "F.Cu", "net": "GND",
		"points": []any{
			map[string]any{"x": 0.0, "y": 0.0},
			map[string]any{"x": 10.0},
			map[string]any{"x": 10.0, "y": 10.0},
		},
	})
	if err == nil || !strings.Contains(err.Error(), "points[1].y") {
		t.Fatalf("Validate() error = %v, want points[1].y", err)
	}
}

func TestValidateNilArgsForParameterlessTool(t *testing.T) {
	out, err := Validate("get_board_info", schemaFor(t, "get_board_info"), nil)
	if err != nil || len(out) != 0 {
		t.Fatalf("Validate(nil) = %v, %v; want empty, nil", out, err)
	}
}

package cli

import (
	"fmt"
	"io"
	"sort"
	"strings"

	"github.com/mark3labs/mcp-go/mcp"

	"github.com/lydakis/kicad-mcp/internal/tools"
)

type schemaLine struct {
	Path        string
	Type        string
	Description string
	Required    bool
	Enum        []string
	Default     any
}

// schemaLines flattens object properties into dotted flag paths.
func schemaLines(properties map[string]any, required []string) []schemaLine {
	req := make(map[string]bool, len(required))
	for _, name := range required {
		req[name] = true
	}
	return appendSchemaLines(nil, "", properties, req)
}

func appendSchemaLines(out []schemaLine, prefix string, properties map[string]any, required map[string]bool) []schemaLine {
	names := make([]string, 0, len(properties))
	for name := range properties {
		names = append(names, name)
	}
	sort.Strings(names)

	for _, name := range names {
		prop, _ := properties[name].(map[string]any)
		path := name
		if prefix != "" {
			path = prefix + "." + name
		}
		typ, _ := prop["type"].(string)
		if typ == "" {
			typ = "any"
		}
		line := schemaLine{
			Path:     path,
			Type:     typ,
			Required: required[name],
			Enum:     stringList(prop["enum"]),
			Default:  prop["default"],
		}
		line.Description, _ = prop["description"].(string)

		nested, _ := prop["properties"].(map[string]any)
		if typ == "object" && len(nested) > 0 {
			if line.Description != "" || line.Required {
				out = append(out, line)
			}
			nestedReq := map[string]bool{}
			for _, n := range stringList(prop["required"]) {
				nestedReq[n] = true
			}
			out = appendSchemaLines(out, path, nested, nestedReq)
			continue
		}
		out = append(out, line)
	}
	return out
}

func stringList(v any) []string {
	switch items := v.(type) {
	case []string:
		return items
	case []any:
		out := make([]string, 0, len(items))
		for _, item := range items {
			out = append(out, fmt.Sprint(item))
		}
		return out
	}
	return nil
}

func optionSemantics(line schemaLine) string {
	var parts []string
	if line.Required {
		parts = append(parts, "required")
	}
	if len(line.Enum) > 0 {
		parts = append(parts, "one of: "+strings.Join(line.Enum, ", "))
	}
	if line.Default != nil {
		parts = append(parts, fmt.Sprintf("default: %v", line.Default))
	}
	if len(parts) == 0 {
		return ""
	}
	return " (" + strings.Join(parts, "; ") + ")"
}

func printToolHelp(w io.Writer, def tools.Definition) {
	name := def.Operation()
	fmt.Fprintf(w, "Usage: kicad-mcp call %s [FLAGS | JSON]\n", name)
	if def.Tool.Description != "" {
		fmt.Fprintf(w, "\nDescription:\n  %s\n", def.Tool.Description)
	}
	fmt.Fprintf(w, "\nCategory: %s (%s)\n", def.Category, kindLabel(def.Kind))

	fmt.Fprintln(w, "\nOptions:")
	fmt.Fprintln(w, "  Tool flags:")
	printToolInputFlags(w, def.Tool.InputSchema)
	fmt.Fprintln(w, "\n  Global flags:")
	fmt.Fprintln(w, "    --quiet, -q          Suppress stderr output.")
	fmt.Fprintln(w, "    --help, -h           Show this help output.")
	fmt.Fprintln(w, "\n  Namespace:")
	fmt.Fprintln(w, "    Prefix colliding tool params with --tool- (for example: --tool-help).")
	fmt.Fprintln(w, "    Use -- to force all following flags to tool parameters.")
	fmt.Fprintln(w, "\n  Type to flag forms:")
	printTypeToFlagForms(w)

	fmt.Fprintln(w, "\nExamples:")
	for _, ex := range toolExamples(name, def.Tool.InputSchema) {
		fmt.Fprintf(w, "  %s\n", ex)
	}
}

func printTypeToFlagForms(w io.Writer) {
	fmt.Fprintln(w, "    string/number/integer: --key=value")
	fmt.Fprintln(w, "    boolean: --flag / --no-flag")
	fmt.Fprintln(w, "    array: --item=a --item=b OR --items='[\"a\",\"b\"]'")
	fmt.Fprintln(w, "    object: --position.x=10 --position.y=20 OR --position='{\"x\":10,\"y\":20}'")
}

func printToolInputFlags(w io.Writer, schema mcp.ToolInputSchema) {
	lines := schemaLines(schema.Properties, schema.Required)
	if len(lines) == 0 {
		fmt.Fprintln(w, "    (none)")
		return
	}

	for _, line := range lines {
		baseFlag, negFlag := toolFlagNames(line.Path, line.Type)
		fmt.Fprintf(w, "    %s <%s>%s\n", baseFlag, line.Type, optionSemantics(line))
		if line.Description != "" {
			fmt.Fprintf(w, "      %s\n", line.Description)
		}
		if negFlag != "" {
			fmt.Fprintf(w, "    %s\n", negFlag)
		}
	}
}

// toolExamples builds a flag example from the required parameters.
func toolExamples(name string, schema mcp.ToolInputSchema) []string {
	var flags []string
	for _, line := range schemaLines(schema.Properties, schema.Required) {
		if !line.Required || line.Type == "object" {
			continue
		}
		flags = append(flags, fmt.Sprintf("--%s=%s", line.Path, exampleValue(line)))
	}

	first := "kicad-mcp call " + name
	if len(flags) > 0 {
		first += " " + strings.Join(flags, " ")
	}
	return []string{
		first,
		fmt.Sprintf("echo '{...}' | kicad-mcp call %s", name),
	}
}

func exampleValue(line schemaLine) string {
	if len(line.Enum) > 0 {
		return line.Enum[0]
	}
	switch line.Type {
	case "number", "integer":
		return "1"
	case "boolean":
		return "true"
	case "array":
		return "'[...]'"
	default:
		return "<" + line.Path + ">"
	}
}

func kindLabel(k tools.Kind) string {
	switch k {
	case tools.Query:
		return "read-only"
	case tools.Export:
		return "writes files"
	case tools.Destructive:
		return "destructive"
	default:
		return "modifies the design"
	}
}

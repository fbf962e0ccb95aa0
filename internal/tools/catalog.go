package tools

import (
	"sort"
	"sync"

	"github.com/mark3labs/mcp-go/mcp"
)

// Kind classifies a worker operation for cache invalidation and tool
// annotations.
type Kind int

const (
	// Query operations only read board or project state.
	Query Kind = iota
	// Mutation operations change board, schematic or project state.
	Mutation
	// Destructive mutations remove objects.
	Destructive
	// Export operations write files but leave the design unchanged.
	Export
)

// Definition binds a worker operation to its MCP tool declaration.
type Definition struct {
	Tool     mcp.Tool
	Kind     Kind
	Category string
}

// Operation returns the worker command name, which is also the tool name.
func (d Definition) Operation() string { return d.Tool.Name }

// ReadOnly reports whether the operation leaves design state unchanged.
func (d Definition) ReadOnly() bool { return d.Kind == Query || d.Kind == Export }

var (
	catalogOnce sync.Once
	catalog     []Definition
	byName      map[string]Definition
)

// Catalog returns every worker operation exposed as an MCP tool, in
// declaration order.
func Catalog() []Definition {
	catalogOnce.Do(buildCatalog)
	return append([]Definition(nil), catalog...)
}

// Lookup returns the definition for a worker operation.
func Lookup(operation string) (Definition, bool) {
	catalogOnce.Do(buildCatalog)
	d, ok := byName[operation]
	return d, ok
}

// Categories returns the sorted category names.
func Categories() []string {
	seen := map[string]bool{}
	var out []string
	for _, d := range Catalog() {
		if !seen[d.Category] {
			seen[d.Category] = true
			out = append(out, d.Category)
		}
	}
	sort.Strings(out)
	return out
}

func def(category string, kind Kind, name, desc string, opts ...mcp.ToolOption) Definition {
	all := []mcp.ToolOption{
		mcp.WithDescription(desc),
		mcp.WithReadOnlyHintAnnotation(kind == Query),
		mcp.WithDestructiveHintAnnotation(kind == Destructive),
		mcp.WithIdempotentHintAnnotation(kind == Query),
		mcp.WithOpenWorldHintAnnotation(false),
	}
	return Definition{
		Tool:     mcp.NewTool(name, append(all, opts...)...),
		Kind:     kind,
		Category: category,
	}
}

func buildCatalog() {
	catalog = append(catalog, projectTools()...)
	catalog = append(catalog, boardTools()...)
	catalog = append(catalog, componentTools()...)
	catalog = append(catalog, routingTools()...)
	catalog = append(catalog, designRuleTools()...)
	catalog = append(catalog, exportTools()...)
	catalog = append(catalog, schematicTools()...)

	byName = make(map[string]Definition, len(catalog))
	for _, d := range catalog {
		byName[d.Operation()] = d
	}
}

func projectTools() []Definition {
	const c = "project"
	return []Definition{
		def(c, Mutation, "create_project", "Create a new KiCad project with an empty board and schematic",
			mcp.WithString("projectName", mcp.Required(), mcp.Description("Name of the project")),
			mcp.WithString("path", mcp.Description("Directory to create the project in (default current directory)")),
			mcp.WithString("template", mcp.Description("Optional template project to copy")),
		),
		def(c, Mutation, "open_project", "Open an existing KiCad project or board file",
			mcp.WithString("filename", mcp.Required(), mcp.Description("Path to the .kicad_pro or .kicad_pcb file")),
		),
		def(c, Mutation, "save_project", "Save the current project, optionally to a new file",
			mcp.WithString("filename", mcp.Description("Optional new path to save to")),
		),
		def(c, Query, "get_project_info", "Get information about the currently open project"),
	}
}

func boardTools() []Definition {
	const c = "board"
	return []Definition{
		def(c, Mutation, "set_board_size", "Set the board outline size",
			mcp.WithNumber("width", mcp.Required(), positive(), mcp.Description("Board width")),
			mcp.WithNumber("height", mcp.Required(), positive(), mcp.Description("Board height")),
			mcp.WithString("unit", mcp.Enum("mm", "inch"), mcp.DefaultString("mm"), mcp.Description("Unit of width and height")),
		),
		def(c, Mutation, "add_layer", "Add a layer to the board stackup",
			mcp.WithString("name", mcp.Required(), mcp.Description("Layer name, e.g. In1.Cu")),
			mcp.WithString("type", mcp.Required(), mcp.Enum("copper", "technical", "user", "signal"), mcp.Description("Layer type")),
			mcp.WithString("position", mcp.Enum("top", "bottom", "inner"), mcp.Description("Where to insert the layer")),
			mcp.WithNumber("number", integer(), mcp.Min(1), mcp.Description("Inner layer number")),
		),
		def(c, Mutation, "set_active_layer", "Set the active layer for subsequent operations",
			mcp.WithString("layer", mcp.Required(), mcp.Description("Layer name, e.g. F.Cu")),
		),
		def(c, Query, "get_board_info", "Get board size, layer count and title block information"),
		def(c, Query, "get_layer_list", "List the layers enabled on the board"),
		def(c, Query, "get_board_2d_view", "Render a 2D image of the board",
			mcp.WithNumber("width", integer(), positive(), mcp.DefaultNumber(800), mcp.Description("Image width in pixels")),
			mcp.WithNumber("height", integer(), positive(), mcp.DefaultNumber(600), mcp.Description("Image height in pixels")),
			mcp.WithString("format", mcp.Enum("png", "jpg", "svg"), mcp.DefaultString("png"), mcp.Description("Image format")),
			withStringList("layers", "Layers to render (default all visible layers)"),
		),
		def(c, Mutation, "add_board_outline", "Add a board outline on Edge.Cuts",
			mcp.WithString("shape", mcp.Required(), mcp.Enum("rectangle", "rounded_rectangle", "circle", "polygon"), mcp.Description("Outline shape")),
			mcp.WithNumber("width", positive(), mcp.Description("Width for rectangular shapes")),
			mcp.WithNumber("height", positive(), mcp.Description("Height for rectangular shapes")),
			mcp.WithNumber("radius", positive(), mcp.Description("Radius for circles")),
			mcp.WithNumber("cornerRadius", mcp.Min(0), mcp.Description("Corner radius for rounded rectangles")),
			mcp.WithNumber("centerX", mcp.Description("Center X coordinate")),
			mcp.WithNumber("centerY", mcp.Description("Center Y coordinate")),
			mcp.WithArray("points", mcp.Description("Polygon vertices"), mcp.Items(positionSchema("Vertex"))),
			mcp.WithString("unit", mcp.Enum("mm", "inch"), mcp.DefaultString("mm")),
		),
		def(c, Mutation, "add_mounting_hole", "Add a mounting hole to the board",
			withPosition("position", "Hole center", true),
			mcp.WithNumber("diameter", mcp.Required(), positive(), mcp.Description("Drill diameter")),
			mcp.WithNumber("padDiameter", positive(), mcp.Description("Copper pad diameter")),
			mcp.WithBoolean("plated", mcp.DefaultBool(false), mcp.Description("Whether the hole is plated")),
		),
		def(c, Mutation, "add_text", "Add text to a board layer",
			mcp.WithString("text", mcp.Required(), mcp.Description("Text content")),
			withPosition("position", "Text anchor", true),
			mcp.WithString("layer", mcp.DefaultString("F.SilkS"), mcp.Description("Layer to place the text on")),
			mcp.WithNumber("size", positive(), mcp.Description("Text height")),
			mcp.WithNumber("thickness", positive(), mcp.Description("Stroke thickness")),
			mcp.WithNumber("rotation", mcp.Description("Rotation in degrees")),
			mcp.WithBoolean("mirror", mcp.Description("Mirror the text")),
		),
	}
}

func componentTools() []Definition {
	const c = "component"
	return []Definition{
		def(c, Mutation, "place_component", "Place a footprint on the board",
			mcp.WithString("componentId", mcp.Required(), mcp.Description("Footprint identifier, e.g. Resistor_SMD:R_0603_1608Metric")),
			withPosition("position", "Placement position", true),
			mcp.WithString("reference", mcp.Description("Reference designator, e.g. R1")),
			mcp.WithString("value", mcp.Description("Component value, e.g. 10k")),
			mcp.WithString("footprint", mcp.Description("Footprint override")),
			mcp.WithNumber("rotation", mcp.DefaultNumber(0), mcp.Description("Rotation in degrees")),
			mcp.WithString("layer", mcp.Enum("F.Cu", "B.Cu"), mcp.DefaultString("F.Cu")),
		),
		def(c, Mutation, "move_component", "Move a component to a new position",
			mcp.WithString("reference", mcp.Required(), mcp.Description("Reference designator")),
			withPosition("position", "New position", true),
			mcp.WithNumber("rotation", mcp.Description("Optional new rotation in degrees")),
		),
		def(c, Mutation, "rotate_component", "Rotate a component to an absolute angle",
			mcp.WithString("reference", mcp.Required(), mcp.Description("Reference designator")),
			mcp.WithNumber("angle", mcp.Required(), mcp.Description("Rotation in degrees")),
		),
		def(c, Destructive, "delete_component", "Remove a component from the board",
			mcp.WithString("reference", mcp.Required(), mcp.Description("Reference designator")),
		),
		def(c, Mutation, "edit_component", "Change a component's reference, value or footprint",
			mcp.WithString("reference", mcp.Required(), mcp.Description("Current reference designator")),
			mcp.WithString("newReference", mcp.Description("New reference designator")),
			mcp.WithString("value", mcp.Description("New value")),
			mcp.WithString("footprint", mcp.Description("New footprint")),
		),
		def(c, Query, "get_component_properties", "Get the properties of a component",
			mcp.WithString("reference", mcp.Required(), mcp.Description("Reference designator")),
		),
		def(c, Query, "get_component_list", "List every component on the board"),
		def(c, Mutation, "place_component_array", "Place a grid or circular array of components",
			mcp.WithString("componentId", mcp.Required(), mcp.Description("Footprint identifier")),
			mcp.WithString("pattern", mcp.Enum("grid", "circular"), mcp.DefaultString("grid")),
			mcp.WithNumber("count", integer(), mcp.Min(1), mcp.Description("Number of components for circular arrays")),
			mcp.WithString("referencePrefix", mcp.DefaultString("U"), mcp.Description("Reference prefix, numbered sequentially")),
			mcp.WithString("value", mcp.Description("Component value")),
			withPosition("startPosition", "First grid position", false),
			mcp.WithNumber("rows", integer(), mcp.Min(1)),
			mcp.WithNumber("columns", integer(), mcp.Min(1)),
			mcp.WithNumber("spacingX", mcp.Description("Horizontal grid spacing")),
			mcp.WithNumber("spacingY", mcp.Description("Vertical grid spacing")),
			withPosition("center", "Circle center", false),
			mcp.WithNumber("radius", positive(), mcp.Description("Circle radius")),
			mcp.WithNumber("angleStart", mcp.DefaultNumber(0)),
			mcp.WithNumber("angleStep", mcp.Description("Angle between components (default 360/count)")),
			mcp.WithNumber("rotationOffset", mcp.DefaultNumber(0)),
			mcp.WithString("layer", mcp.Enum("F.Cu", "B.Cu"), mcp.DefaultString("F.Cu")),
		),
		def(c, Mutation, "align_components", "Align and distribute a set of components",
			withStringList("references", "Reference designators to align", mcp.Required(), mcp.MinItems(2)),
			mcp.WithString("alignment", mcp.Required(), mcp.Enum("horizontal", "vertical", "edge")),
			mcp.WithString("distribution", mcp.Enum("none", "equal", "spacing"), mcp.DefaultString("none")),
			mcp.WithNumber("spacing", positive(), mcp.Description("Spacing for distribution=spacing")),
			mcp.WithString("edge", mcp.Enum("left", "right", "top", "bottom"), mcp.Description("Edge for alignment=edge")),
		),
		def(c, Mutation, "duplicate_component", "Duplicate a component under a new reference",
			mcp.WithString("reference", mcp.Required(), mcp.Description("Component to copy")),
			mcp.WithString("newReference", mcp.Required(), mcp.Description("Reference for the copy")),
			withPosition("position", "Position of the copy", false),
			mcp.WithNumber("rotation", mcp.Description("Rotation of the copy in degrees")),
		),
	}
}

func routingTools() []Definition {
	const c = "routing"
	return []Definition{
		def(c, Mutation, "add_net", "Create a net",
			mcp.WithString("name", mcp.Required(), mcp.Description("Net name")),
			mcp.WithString("class", mcp.Description("Net class to assign")),
		),
		def(c, Mutation, "route_trace", "Route a trace between two points or pads",
			withPoint("start", "Trace start", true),
			withPoint("end", "Trace end", true),
			mcp.WithString("layer", mcp.DefaultString("F.Cu")),
			mcp.WithNumber("width", positive(), mcp.Description("Track width")),
			mcp.WithString("net", mcp.Description("Net name")),
			mcp.WithObject("via", mcp.Description("Optional via inserted at the end point")),
		),
		def(c, Mutation, "add_via", "Add a via",
			withPosition("position", "Via position", true),
			mcp.WithNumber("size", positive(), mcp.Description("Via pad diameter")),
			mcp.WithNumber("drill", positive(), mcp.Description("Drill diameter")),
			mcp.WithString("net", mcp.Description("Net name")),
			mcp.WithString("from_layer", mcp.DefaultString("F.Cu")),
			mcp.WithString("to_layer", mcp.DefaultString("B.Cu")),
		),
		def(c, Destructive, "delete_trace", "Delete a trace by UUID or by position",
			mcp.WithString("traceUuid", mcp.Description("Trace UUID")),
			withPosition("position", "Point on the trace", false),
		),
		def(c, Query, "get_nets_list", "List the nets on the board"),
		def(c, Mutation, "create_netclass", "Create a net class and assign nets to it",
			mcp.WithString("name", mcp.Required()),
			mcp.WithNumber("clearance", positive()),
			mcp.WithNumber("trackWidth", positive()),
			mcp.WithNumber("viaDiameter", positive()),
			mcp.WithNumber("viaDrill", positive()),
			mcp.WithNumber("uviaDiameter", positive()),
			mcp.WithNumber("uviaDrill", positive()),
			mcp.WithNumber("diffPairWidth", positive()),
			mcp.WithNumber("diffPairGap", positive()),
			withStringList("nets", "Nets to assign to the class"),
		),
		def(c, Mutation, "add_copper_pour", "Add a copper pour (zone)",
			mcp.WithString("layer", mcp.Required(), mcp.Description("Copper layer")),
			mcp.WithString("net", mcp.Required(), mcp.Description("Net to connect")),
			mcp.WithNumber("clearance", positive()),
			mcp.WithNumber("minWidth", positive(), mcp.DefaultNumber(0.2)),
			mcp.WithArray("points", mcp.Description("Zone outline vertices"), mcp.MinItems(3), mcp.Items(positionSchema("Vertex"))),
			mcp.WithNumber("priority", integer(), mcp.Min(0)),
			mcp.WithString("fillType", mcp.Enum("solid", "hatched"), mcp.DefaultString("solid")),
		),
		def(c, Mutation, "route_differential_pair", "Route a differential pair",
			withPoint("startPos", "Pair start", true),
			withPoint("endPos", "Pair end", true),
			mcp.WithString("netPos", mcp.Required(), mcp.Description("Positive net")),
			mcp.WithString("netNeg", mcp.Required(), mcp.Description("Negative net")),
			mcp.WithString("layer", mcp.DefaultString("F.Cu")),
			mcp.WithNumber("width", positive()),
			mcp.WithNumber("gap", positive()),
		),
	}
}

func designRuleTools() []Definition {
	const c = "design_rules"
	return []Definition{
		def(c, Mutation, "set_design_rules", "Update board design rules",
			mcp.WithNumber("clearance", positive()),
			mcp.WithNumber("trackWidth", positive()),
			mcp.WithNumber("viaDiameter", positive()),
			mcp.WithNumber("viaDrill", positive()),
			mcp.WithNumber("microViaDiameter", positive()),
			mcp.WithNumber("microViaDrill", positive()),
			mcp.WithNumber("minTrackWidth", positive()),
			mcp.WithNumber("minViaDiameter", positive()),
			mcp.WithNumber("minViaDrill", positive()),
		),
		def(c, Query, "get_design_rules", "Get the current design rules"),
		def(c, Export, "run_drc", "Run a design rule check",
			mcp.WithString("reportPath", mcp.Description("Optional path for the DRC report")),
		),
		def(c, Query, "get_drc_violations", "List violations from the last DRC run",
			mcp.WithString("severity", mcp.Enum("all", "error", "warning"), mcp.DefaultString("all")),
		),
	}
}

func exportTools() []Definition {
	const c = "export"
	return []Definition{
		def(c, Export, "export_gerber", "Export Gerber and drill files",
			mcp.WithString("outputDir", mcp.Required(), mcp.Description("Output directory")),
			withStringList("layers", "Layers to plot (default all copper, mask and silk layers)"),
			mcp.WithBoolean("useProtelExtensions", mcp.DefaultBool(false)),
			mcp.WithBoolean("generateDrillFiles", mcp.DefaultBool(true)),
			mcp.WithBoolean("generateMapFile", mcp.DefaultBool(false)),
			mcp.WithBoolean("useAuxOrigin", mcp.DefaultBool(false)),
		),
		def(c, Export, "export_pdf", "Export the board as PDF",
			mcp.WithString("outputPath", mcp.Required()),
			withStringList("layers", "Layers to plot"),
			mcp.WithBoolean("blackAndWhite", mcp.DefaultBool(false)),
			mcp.WithBoolean("frameReference", mcp.DefaultBool(true)),
			mcp.WithString("pageSize", mcp.DefaultString("A4"), mcp.Enum("A4", "A3", "A2", "A1", "A0", "Letter", "Legal", "Tabloid")),
		),
		def(c, Export, "export_svg", "Export the board as SVG",
			mcp.WithString("outputPath", mcp.Required()),
			withStringList("layers", "Layers to plot"),
			mcp.WithBoolean("blackAndWhite", mcp.DefaultBool(false)),
			mcp.WithBoolean("includeComponents", mcp.DefaultBool(true)),
		),
		def(c, Export, "export_3d", "Export a 3D model of the board",
			mcp.WithString("outputPath", mcp.Required()),
			mcp.WithString("format", mcp.Enum("STEP", "STL", "VRML", "IDF"), mcp.DefaultString("STEP")),
			mcp.WithBoolean("includeComponents", mcp.DefaultBool(true)),
			mcp.WithBoolean("includeCopper", mcp.DefaultBool(true)),
			mcp.WithBoolean("includeSolderMask", mcp.DefaultBool(true)),
			mcp.WithBoolean("includeSilkscreen", mcp.DefaultBool(true)),
		),
		def(c, Export, "export_bom", "Export a bill of materials",
			mcp.WithString("outputPath", mcp.Required()),
			mcp.WithString("format", mcp.Enum("CSV", "XML", "HTML", "JSON"), mcp.DefaultString("CSV")),
			mcp.WithBoolean("groupByValue", mcp.DefaultBool(true)),
			withStringList("includeAttributes", "Extra component attributes to include"),
		),
	}
}

func schematicTools() []Definition {
	const c = "schematic"
	point := map[string]any{
		"type":     "array",
		"minItems": 2,
		"items":    map[string]any{"type": "number"},
	}
	return []Definition{
		def(c, Mutation, "create_schematic", "Create a new schematic",
			mcp.WithString("projectName", mcp.Required()),
			mcp.WithString("path", mcp.Description("Directory for the schematic")),
			mcp.WithObject("metadata", mcp.Description("Title block fields")),
		),
		def(c, Query, "load_schematic", "Load a schematic and return its metadata",
			mcp.WithString("filename", mcp.Required(), mcp.Description("Path to the .kicad_sch file")),
		),
		def(c, Mutation, "add_schematic_component", "Add a symbol to a schematic",
			mcp.WithString("schematicPath", mcp.Required()),
			withSchema("component", map[string]any{
				"type":        "object",
				"description": "Symbol definition",
				"properties": map[string]any{
					"library":    map[string]any{"type": "string", "description": "Symbol library (default Device)"},
					"type":       map[string]any{"type": "string", "description": "Symbol name (default R)"},
					"reference":  map[string]any{"type": "string"},
					"value":      map[string]any{"type": "string"},
					"footprint":  map[string]any{"type": "string"},
					"datasheet":  map[string]any{"type": "string"},
					"x":          map[string]any{"type": "number"},
					"y":          map[string]any{"type": "number"},
					"unit":       map[string]any{"type": "integer", "minimum": float64(1)},
					"rotation":   map[string]any{"type": "number"},
					"properties": map[string]any{"type": "object"},
				},
			}, true),
		),
		def(c, Mutation, "add_schematic_wire", "Add a wire between two schematic points",
			mcp.WithString("schematicPath", mcp.Required()),
			withSchema("startPoint", point, true),
			withSchema("endPoint", point, true),
		),
		def(c, Query, "list_schematic_libraries", "List available symbol libraries",
			withStringList("searchPaths", "Extra directories to search"),
		),
		def(c, Export, "export_schematic_pdf", "Export a schematic as PDF",
			mcp.WithString("schematicPath", mcp.Required()),
			mcp.WithString("outputPath", mcp.Required()),
		),
	}
}

// Package resources exposes read-only worker queries as MCP resources
// addressed by fixed URIs and RFC 6570 URI templates.
package resources

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/url"
	"strings"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"
	"github.com/yosida95/uritemplate/v3"

	"github.com/lydakis/kicad-mcp/internal/cache"
	klog "github.com/lydakis/kicad-mcp/internal/log"
	"github.com/lydakis/kicad-mcp/internal/response"
	"github.com/lydakis/kicad-mcp/internal/tools"
)

// StatusURI is answered locally without a worker round trip.
const StatusURI = "kicad://status"

// ErrUnknownResource is returned for URIs no source matches.
var ErrUnknownResource = errors.New("unknown resource")

// Source maps a resource URI or URI template to a worker query.
type Source struct {
	URI         string
	Name        string
	Description string
	MIMEType    string
	// Operation is empty for resources answered locally.
	Operation string
	// Required lists template variables that must be present.
	Required []string

	template *uritemplate.Template
}

// Templated reports whether URI contains template expressions.
func (s *Source) Templated() bool { return s.template != nil }

// Options configures a Router.
type Options struct {
	// Cache holds query results between reads. Optional.
	Cache *cache.Cache
	// Status produces the kicad://status document.
	Status func() any
	Logger *slog.Logger
}

// Router resolves resource URIs to worker queries.
type Router struct {
	d       tools.Dispatcher
	opts    Options
	logger  *slog.Logger
	sources []*Source
}

// DefaultSources returns the resources served by kicad-mcp.
func DefaultSources() []Source {
	return []Source{
		{URI: "kicad://project/info", Name: "Project info", Description: "Metadata of the open KiCad project", Operation: "get_project_info"},
		{URI: "kicad://board/info", Name: "Board info", Description: "Board size, layer count and title block", Operation: "get_board_info"},
		{URI: "kicad://board/layers", Name: "Board layers", Description: "Layers enabled on the board", Operation: "get_layer_list"},
		{URI: "kicad://board/view{?format,width,height}", Name: "Board view", Description: "Rendered 2D image of the board (png, jpg or svg)", MIMEType: "image/png", Operation: response.BoardViewOperation},
		{URI: "kicad://components", Name: "Components", Description: "Every component on the board", Operation: "get_component_list"},
		{URI: "kicad://component/{reference}", Name: "Component", Description: "Properties of one component by reference designator", Operation: "get_component_properties", Required: []string{"reference"}},
		{URI: "kicad://nets", Name: "Nets", Description: "Nets defined on the board", Operation: "get_nets_list"},
		{URI: "kicad://design-rules", Name: "Design rules", Description: "Current board design rules", Operation: "get_design_rules"},
		{URI: "kicad://drc/violations{/severity}", Name: "DRC violations", Description: "Violations from the last DRC run, optionally filtered by severity", Operation: "get_drc_violations"},
		{URI: "kicad://schematic/libraries", Name: "Schematic libraries", Description: "Available symbol libraries", Operation: "list_schematic_libraries"},
		{URI: StatusURI, Name: "Bridge status", Description: "Worker state, queue depth and restart count"},
	}
}

// New compiles sources into a Router.
func New(d tools.Dispatcher, sources []Source, opts Options) (*Router, error) {
	logger := opts.Logger
	if logger == nil {
		logger = klog.Discard()
	}
	r := &Router{d: d, opts: opts, logger: logger}
	for i := range sources {
		src := sources[i]
		if src.MIMEType == "" {
			src.MIMEType = "application/json"
		}
		if strings.Contains(src.URI, "{") {
			tmpl, err := uritemplate.New(src.URI)
			if err != nil {
				return nil, fmt.Errorf("resource %q: %w", src.URI, err)
			}
			src.template = tmpl
		}
		if src.Operation != "" {
			if _, ok := tools.Lookup(src.Operation); !ok {
				return nil, fmt.Errorf("resource %q: unknown operation %q", src.URI, src.Operation)
			}
		}
		r.sources = append(r.sources, &src)
	}
	return r, nil
}

// Sources returns the compiled sources in registration order.
func (r *Router) Sources() []Source {
	out := make([]Source, len(r.sources))
	for i, s := range r.sources {
		out[i] = *s
	}
	return out
}

// Register adds every source to s as a resource or resource template.
func (r *Router) Register(s *server.MCPServer) {
	for _, src := range r.sources {
		src := src
		handler := func(ctx context.Context, req mcp.ReadResourceRequest) ([]mcp.ResourceContents, error) {
			return r.read(ctx, src, req.Params.URI, req.Params.Arguments)
		}
		if src.Templated() {
			s.AddResourceTemplate(mcp.NewResourceTemplate(src.URI, src.Name,
				mcp.WithTemplateDescription(src.Description),
				mcp.WithTemplateMIMEType(src.MIMEType),
			), handler)
			continue
		}
		s.AddResource(mcp.NewResource(src.URI, src.Name,
			mcp.WithResourceDescription(src.Description),
			mcp.WithMIMEType(src.MIMEType),
		), handler)
	}
}

// Read resolves uri and returns its contents.
func (r *Router) Read(ctx context.Context, uri string) ([]mcp.ResourceContents, error) {
	src, vars, err := r.Resolve(uri)
	if err != nil {
		return nil, err
	}
	return r.read(ctx, src, uri, vars)
}

// Resolve finds the source for uri and extracts its template variables.
func (r *Router) Resolve(uri string) (*Source, map[string]any, error) {
	for _, src := range r.sources {
		if !src.Templated() {
			if src.URI == uri {
				return src, nil, nil
			}
			continue
		}
		if vars, ok := matchTemplate(src.template, uri); ok {
			return src, vars, nil
		}
	}
	return nil, nil, fmt.Errorf("%w: %s", ErrUnknownResource, uri)
}

func (r *Router) read(ctx context.Context, src *Source, uri string, raw map[string]any) ([]mcp.ResourceContents, error) {
	if src.Operation == "" {
		return r.status(uri)
	}

	if len(raw) == 0 && src.Templated() {
		raw, _ = matchTemplate(src.template, uri)
	}
	args, err := r.arguments(src, raw)
	if err != nil {
		return nil, err
	}

	if resp, ok := r.opts.Cache.Get(src.Operation, args); ok {
		age, _ := r.opts.Cache.Age(src.Operation, args)
		r.logger.Debug("resource cache hit", "uri", uri, "age", age)
		return response.ResourceContents(uri, src.Operation, resp)
	}

	resp, err := r.d.Submit(ctx, src.Operation, args)
	if err != nil {
		return nil, fmt.Errorf("reading %s: %w", uri, err)
	}
	contents, err := response.ResourceContents(uri, src.Operation, resp)
	if err != nil {
		return nil, err
	}
	if err := r.opts.Cache.Put(src.Operation, args, resp); err != nil {
		r.logger.Debug("resource cache put", "uri", uri, "error", err)
	}
	return contents, nil
}

// arguments validates template variables with the same schema as the
// underlying tool. Empty values are omitted so the query is unfiltered.
func (r *Router) arguments(src *Source, raw map[string]any) (map[string]any, error) {
	def, _ := tools.Lookup(src.Operation)
	schema := mcp.ToolInputSchema{Type: "object", Properties: map[string]any{}, Required: src.Required}

	args := map[string]any{}
	for name, v := range raw {
		s, ok := argString(v)
		if !ok {
			continue
		}
		args[name] = s
		if prop, declared := def.Tool.InputSchema.Properties[name]; declared {
			schema.Properties[name] = prop
		}
	}
	for _, name := range src.Required {
		if prop, declared := def.Tool.InputSchema.Properties[name]; declared {
			schema.Properties[name] = prop
		}
	}
	return tools.Validate(src.Operation, schema, args)
}

func (r *Router) status(uri string) ([]mcp.ResourceContents, error) {
	var doc any = map[string]any{}
	if r.opts.Status != nil {
		doc = r.opts.Status()
	}
	text, err := response.JSONText(doc)
	if err != nil {
		return nil, err
	}
	return []mcp.ResourceContents{
		mcp.TextResourceContents{URI: uri, MIMEType: "application/json", Text: text},
	}, nil
}

// matchTemplate matches uri against tmpl. Query parameters given in a
// different order than the template declares are picked up from the
// parsed query string.
func matchTemplate(tmpl *uritemplate.Template, uri string) (map[string]any, bool) {
	if values := tmpl.Match(uri); values != nil {
		return valuesToArgs(values), true
	}

	base, query, found := strings.Cut(uri, "?")
	if !found {
		return nil, false
	}
	values := tmpl.Match(base)
	if values == nil {
		return nil, false
	}
	q, err := url.ParseQuery(query)
	if err != nil {
		return nil, false
	}
	args := valuesToArgs(values)
	declared := make(map[string]bool)
	for _, name := range tmpl.Varnames() {
		declared[name] = true
	}
	for key := range q {
		if !declared[key] {
			return nil, false
		}
		if v := q.Get(key); v != "" {
			args[key] = v
		}
	}
	return args, true
}

func valuesToArgs(values uritemplate.Values) map[string]any {
	args := make(map[string]any, len(values))
	for name, v := range values {
		if s := v.String(); s != "" {
			args[name] = s
		}
	}
	return args
}

func argString(v any) (string, bool) {
	switch x := v.(type) {
	case string:
		return x, x != ""
	case []string:
		if len(x) > 0 && x[0] != "" {
			return x[0], true
		}
	case []any:
		if len(x) > 0 {
			if s, ok := x[0].(string); ok && s != "" {
				return s, true
			}
		}
	}
	return "", false
}

package tools

import (
	"context"
	"log/slog"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"

	"github.com/lydakis/kicad-mcp/internal/dispatch"
	klog "github.com/lydakis/kicad-mcp/internal/log"
	"github.com/lydakis/kicad-mcp/internal/response"
)

// Dispatcher forwards a validated operation to the worker.
type Dispatcher interface {
	Submit(ctx context.Context, operation string, args map[string]any) (dispatch.Response, error)
}

// Invalidator drops cached query results after a design change.
type Invalidator interface {
	Invalidate()
}

// Options configures Register.
type Options struct {
	// Cache is invalidated after every non-query call. Optional.
	Cache  Invalidator
	Logger *slog.Logger
}

// Register adds every catalog tool to s and returns how many were added.
func Register(s *server.MCPServer, d Dispatcher, opts Options) int {
	defs := Catalog()
	tools := make([]server.ServerTool, 0, len(defs))
	for _, def := range defs {
		tools = append(tools, server.ServerTool{Tool: def.Tool, Handler: Handler(def, d, opts)})
	}
	s.AddTools(tools...)
	return len(tools)
}

// Handler returns the MCP handler for one catalog entry. Every failure is
// reported as an error result; the handler never returns a Go error.
func Handler(def Definition, d Dispatcher, opts Options) server.ToolHandlerFunc {
	logger := opts.Logger
	if logger == nil {
		logger = klog.Discard()
	}
	op := def.Operation()

	return func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		args, err := Validate(op, def.Tool.InputSchema, req.GetArguments())
		if err != nil {
			logger.Debug("rejected tool call", "tool", op, "error", err)
			return response.ToolError(err), nil
		}

		resp, err := d.Submit(ctx, op, args)
		// A failed or timed out mutation may still have touched the board.
		if def.Kind != Query && opts.Cache != nil {
			opts.Cache.Invalidate()
		}
		if err != nil {
			logger.Warn("tool call failed", "tool", op, "error", err)
			return response.ToolError(err), nil
		}
		return response.ToolResult(op, resp), nil
	}
}

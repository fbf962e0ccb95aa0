package daemon

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/mark3labs/mcp-go/mcp"

	"github.com/lydakis/kicad-mcp/internal/dispatch"
	"github.com/lydakis/kicad-mcp/internal/ipc"
	"github.com/lydakis/kicad-mcp/internal/response"
	"github.com/lydakis/kicad-mcp/internal/tools"
)

// Status is reported by `kicad-mcp status` and the kicad://status resource.
type Status struct {
	Version string         `json:"version"`
	PID     int            `json:"pid"`
	Uptime  string         `json:"uptime"`
	Worker  WorkerStatus   `json:"worker"`
	Queue   dispatch.Stats `json:"queue"`
	Cache   CacheStatus    `json:"cache"`
}

// CacheStatus describes the resource read cache.
type CacheStatus struct {
	Enabled bool `json:"enabled"`
	Entries int  `json:"entries"`
}

type restarter interface {
	Restart(ctx context.Context) error
	Status() WorkerStatus
}

type resourceReader interface {
	Read(ctx context.Context, uri string) ([]mcp.ResourceContents, error)
}

// controller answers control socket requests from the CLI.
type controller struct {
	sup      restarter
	tools    tools.Dispatcher
	toolOpts tools.Options
	reader   resourceReader
	status   func() Status
	shutdown func()
	logger   *slog.Logger
}

func (c *controller) handle(ctx context.Context, req *ipc.Request) *ipc.Response {
	switch req.Type {
	case ipc.TypeStatus:
		return jsonResponse(c.status())
	case ipc.TypeRestartWorker:
		return c.restartWorker(ctx)
	case ipc.TypeShutdown:
		go c.shutdown()
		return &ipc.Response{Content: []byte("shutting down\n")}
	case ipc.TypeCallTool:
		return c.callTool(ctx, req.Tool, req.Args)
	case ipc.TypeReadResource:
		return c.readResource(ctx, req.URI)
	default:
		return &ipc.Response{ExitCode: ipc.ExitUsageErr, Stderr: fmt.Sprintf("unknown request type: %s", req.Type)}
	}
}

func (c *controller) restartWorker(ctx context.Context) *ipc.Response {
	c.logger.Info("worker restart requested over control socket")
	if err := c.sup.Restart(ctx); err != nil {
		return &ipc.Response{ExitCode: ipc.ExitInternal, Stderr: fmt.Sprintf("restarting worker: %v", err)}
	}
	st := c.sup.Status()
	return &ipc.Response{Content: []byte(fmt.Sprintf("worker restarted (pid %d)\n", st.PID))}
}

func (c *controller) callTool(ctx context.Context, name string, rawArgs json.RawMessage) *ipc.Response {
	def, ok := tools.Lookup(name)
	if !ok {
		return &ipc.Response{ExitCode: ipc.ExitUsageErr, Stderr: fmt.Sprintf("unknown tool: %s", name)}
	}

	args := map[string]any{}
	if len(rawArgs) > 0 {
		if err := json.Unmarshal(rawArgs, &args); err != nil {
			return &ipc.Response{ExitCode: ipc.ExitUsageErr, Stderr: fmt.Sprintf("invalid JSON arguments: %v", err)}
		}
	}
	// Validation failures are usage errors for the CLI, not tool errors.
	if _, err := tools.Validate(name, def.Tool.InputSchema, args); err != nil {
		return &ipc.Response{ExitCode: classifyError(err), Stderr: err.Error()}
	}

	req := mcp.CallToolRequest{}
	req.Params.Name = name
	req.Params.Arguments = args
	result, err := tools.Handler(def, c.tools, c.toolOpts)(ctx, req)
	if err != nil {
		return &ipc.Response{ExitCode: classifyError(err), Stderr: err.Error()}
	}

	out, code := response.Unwrap(result)
	if code != ipc.ExitOK {
		return &ipc.Response{ExitCode: code, Stderr: string(out)}
	}
	return &ipc.Response{Content: out, ExitCode: code}
}

func (c *controller) readResource(ctx context.Context, uri string) *ipc.Response {
	contents, err := c.reader.Read(ctx, uri)
	if err != nil {
		return &ipc.Response{ExitCode: classifyError(err), Stderr: err.Error()}
	}
	out, code := response.UnwrapResource(contents)
	return &ipc.Response{Content: out, ExitCode: code}
}

func jsonResponse(v any) *ipc.Response {
	text, err := response.JSONText(v)
	if err != nil {
		return &ipc.Response{ExitCode: ipc.ExitInternal, Stderr: err.Error()}
	}
	return &ipc.Response{Content: []byte(text + "\n")}
}

func uptime(since, now time.Time) string {
	return now.Sub(since).Truncate(time.Second).String()
}

package daemon

import (
	"errors"

	"github.com/mark3labs/mcp-go/mcp"

	"github.com/lydakis/kicad-mcp/internal/dispatch"
	"github.com/lydakis/kicad-mcp/internal/ipc"
	"github.com/lydakis/kicad-mcp/internal/resources"
	"github.com/lydakis/kicad-mcp/internal/response"
)

// classifyError maps a control request failure to a CLI exit code.
func classifyError(err error) int {
	var we *response.WorkerError
	switch {
	case err == nil:
		return ipc.ExitOK
	case errors.Is(err, mcp.ErrInvalidParams),
		errors.Is(err, mcp.ErrMethodNotFound),
		errors.Is(err, resources.ErrUnknownResource):
		return ipc.ExitUsageErr
	case errors.As(err, &we),
		errors.Is(err, dispatch.ErrTimeout),
		errors.Is(err, dispatch.ErrWorkerTerminated),
		errors.Is(err, dispatch.ErrWorkerUnavailable):
		return ipc.ExitToolErr
	default:
		return ipc.ExitInternal
	}
}

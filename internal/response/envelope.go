package response

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/mark3labs/mcp-go/mcp"

	"github.com/lydakis/kicad-mcp/internal/dispatch"
)

// BoardViewOperation returns image data instead of a JSON document.
const BoardViewOperation = "get_board_2d_view"

// WorkerError is a failure the worker reported with success=false.
type WorkerError struct {
	Operation string
	Message   string
	Details   string
}

func (e *WorkerError) Error() string {
	msg := e.Message
	if msg == "" {
		msg = "command failed"
	}
	if e.Details != "" {
		return fmt.Sprintf("%s: %s (%s)", e.Operation, msg, e.Details)
	}
	return fmt.Sprintf("%s: %s", e.Operation, msg)
}

// Failure returns the worker-reported failure in resp, or nil on success.
func Failure(op string, resp dispatch.Response) error {
	if resp.Success() {
		return nil
	}
	return &WorkerError{Operation: op, Message: resp.Message(), Details: resp.ErrorDetails()}
}

// ToolResult converts a worker response into an MCP tool result. Worker
// failures become error results carrying message and errorDetails.
func ToolResult(op string, resp dispatch.Response) *mcp.CallToolResult {
	if err := Failure(op, resp); err != nil {
		return failureResult(err.(*WorkerError))
	}

	if op == BoardViewOperation {
		if img, ok := boardImage(resp); ok {
			summary := fmt.Sprintf("Board view (%s)", img.format)
			if img.binary {
				return mcp.NewToolResultImage(summary, img.data, img.mimeType)
			}
			return mcp.NewToolResultText(img.data)
		}
	}

	text, err := json.MarshalIndent(map[string]any(resp), "", "  ")
	if err != nil {
		return mcp.NewToolResultErrorFromErr("encoding worker response", err)
	}
	return mcp.NewToolResultStructured(map[string]any(resp), string(text))
}

// ToolError renders a dispatch or validation failure as an MCP error result.
func ToolError(err error) *mcp.CallToolResult {
	var we *WorkerError
	if errors.As(err, &we) {
		return failureResult(we)
	}

	msg := err.Error()
	switch {
	case errors.Is(err, dispatch.ErrWorkerUnavailable):
		msg += ". Restart it with `kicad-mcp restart-worker` or check the worker logs"
	case errors.Is(err, dispatch.ErrTimeout):
		msg += ". The worker may still be busy; later commands are queued behind it"
	}
	return mcp.NewToolResultError(msg)
}

func failureResult(we *WorkerError) *mcp.CallToolResult {
	var b strings.Builder
	if we.Message != "" {
		b.WriteString(we.Message)
	} else {
		b.WriteString(we.Operation + " failed")
	}
	if we.Details != "" {
		b.WriteString("\n")
		b.WriteString(we.Details)
	}
	return mcp.NewToolResultError(b.String())
}

// ResourceContents converts a worker response into resource contents for
// uri. Worker failures are returned as *WorkerError.
func ResourceContents(uri, op string, resp dispatch.Response) ([]mcp.ResourceContents, error) {
	if err := Failure(op, resp); err != nil {
		return nil, err
	}

	if op == BoardViewOperation {
		img, ok := boardImage(resp)
		if !ok {
			return nil, fmt.Errorf("%s: response has no imageData", op)
		}
		if img.binary {
			return []mcp.ResourceContents{
				mcp.BlobResourceContents{URI: uri, MIMEType: img.mimeType, Blob: img.data},
			}, nil
		}
		return []mcp.ResourceContents{
			mcp.TextResourceContents{URI: uri, MIMEType: img.mimeType, Text: img.data},
		}, nil
	}

	text, err := JSONText(resp)
	if err != nil {
		return nil, err
	}
	return []mcp.ResourceContents{
		mcp.TextResourceContents{URI: uri, MIMEType: "application/json", Text: text},
	}, nil
}

// JSONText renders v as indented JSON.
func JSONText(v any) (string, error) {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return "", fmt.Errorf("encoding response: %w", err)
	}
	return string(data), nil
}

type image struct {
	format   string
	mimeType string
	data     string
	binary   bool
}

// boardImage extracts imageData. png and jpg are base64; svg is raw text.
func boardImage(resp dispatch.Response) (image, bool) {
	data, ok := resp["imageData"].(string)
	if !ok || data == "" {
		return image{}, false
	}
	format, _ := resp["format"].(string)
	switch strings.ToLower(format) {
	case "svg":
		return image{format: "svg", mimeType: "image/svg+xml", data: data}, true
	case "jpg", "jpeg":
		return image{format: "jpg", mimeType: "image/jpeg", data: data, binary: true}, true
	default:
		return image{format: "png", mimeType: "image/png", data: data, binary: true}, true
	}
}

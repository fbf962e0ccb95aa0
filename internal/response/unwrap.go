package response

import (
	"encoding/base64"
	"encoding/json"
	"mime"
	"os"
	"strings"

	"github.com/mark3labs/mcp-go/mcp"

	"github.com/lydakis/kicad-mcp/internal/ipc"
)

const tempPrefix = "kicad-mcp"

// Unwrap renders a tool result for a terminal. Structured content is
// printed as indented JSON, text as-is, and images are written to temp
// files whose paths are printed instead. The exit code follows the ipc
// conventions.
func Unwrap(result *mcp.CallToolResult) ([]byte, int) {
	if result == nil {
		return nil, ipc.ExitInternal
	}

	exitCode := ipc.ExitOK
	if result.IsError {
		exitCode = ipc.ExitToolErr
	}

	if result.StructuredContent != nil {
		if data, err := json.MarshalIndent(result.StructuredContent, "", "  "); err == nil {
			return ensureTrailingNewline(data), exitCode
		}
	}

	var parts []string
	for _, content := range result.Content {
		if rendered, ok := renderContent(content); ok {
			parts = append(parts, rendered)
		}
	}
	if len(parts) == 0 {
		return nil, exitCode
	}
	return ensureTrailingNewline([]byte(strings.Join(parts, "\n"))), exitCode
}

// UnwrapResource renders resource contents the same way Unwrap renders
// tool content. Blobs go to temp files.
func UnwrapResource(contents []mcp.ResourceContents) ([]byte, int) {
	var parts []string
	for _, c := range contents {
		switch r := c.(type) {
		case mcp.TextResourceContents:
			parts = append(parts, r.Text)
		case *mcp.TextResourceContents:
			parts = append(parts, r.Text)
		case mcp.BlobResourceContents:
			if path, err := writeTempBase64(r.MIMEType, r.Blob); err == nil {
				parts = append(parts, path)
			}
		case *mcp.BlobResourceContents:
			if path, err := writeTempBase64(r.MIMEType, r.Blob); err == nil {
				parts = append(parts, path)
			}
		}
	}
	if len(parts) == 0 {
		return nil, ipc.ExitToolErr
	}
	return ensureTrailingNewline([]byte(strings.Join(parts, "\n"))), ipc.ExitOK
}

func renderContent(content mcp.Content) (string, bool) {
	switch c := content.(type) {
	case mcp.TextContent:
		return c.Text, true
	case *mcp.TextContent:
		return c.Text, true
	case mcp.ImageContent:
		return renderImage(c.MIMEType, c.Data)
	case *mcp.ImageContent:
		return renderImage(c.MIMEType, c.Data)
	default:
		raw, err := json.Marshal(content)
		if err != nil {
			return "", false
		}
		return string(raw), true
	}
}

func renderImage(mimeType, data string) (string, bool) {
	path, err := writeTempBase64(mimeType, data)
	if err != nil {
		return "", false
	}
	return path, true
}

func writeTempBase64(mimeType, encoded string) (string, error) {
	data, err := base64.StdEncoding.DecodeString(encoded)
	if err != nil {
		return "", err
	}

	f, err := os.CreateTemp("", tempPrefix+"-*"+extForMIMEType(mimeType))
	if err != nil {
		return "", err
	}
	name := f.Name()
	if _, err := f.Write(data); err != nil {
		f.Close()
		os.Remove(name)
		return "", err
	}
	if err := f.Close(); err != nil {
		os.Remove(name)
		return "", err
	}
	return name, nil
}

func extForMIMEType(mimeType string) string {
	mimeType = strings.TrimSpace(strings.ToLower(mimeType))
	if idx := strings.Index(mimeType, ";"); idx >= 0 {
		mimeType = strings.TrimSpace(mimeType[:idx])
	}
	switch mimeType {
	case "image/png":
		return ".png"
	case "image/jpeg":
		return ".jpg"
	case "image/svg+xml":
		return ".svg"
	}
	if exts, _ := mime.ExtensionsByType(mimeType); len(exts) > 0 {
		return exts[0]
	}
	return ".bin"
}

func ensureTrailingNewline(out []byte) []byte {
	if len(out) == 0 || out[len(out)-1] == '\n' {
		return out
	}
	return append(out, '\n')
}

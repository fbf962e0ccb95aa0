package ipc

import (
	"encoding/json"
)

// Request types understood by the control socket.
const (
	TypeStatus        = "status"
	TypeRestartWorker = "restart_worker"
	TypeShutdown      = "shutdown"
	TypeCallTool      = "call_tool"
	TypeReadResource  = "read_resource"
)

// Request is sent from the CLI to a running server over the Unix socket.
type Request struct {
	Nonce string          `json:"nonce"`          // server nonce for auth
	Type  string          `json:"type"`           // one of the Type* constants
	Tool  string          `json:"tool,omitempty"` // call_tool target
	Args  json.RawMessage `json:"args,omitempty"` // call_tool arguments
	URI   string          `json:"uri,omitempty"`  // read_resource target
}

// Response is sent from the server back to the CLI.
type Response struct {
	Content  []byte `json:"content"`          // raw output for stdout
	ExitCode int    `json:"exit_code"`        // 0=ok, 1=tool error, 2=usage error, 3=internal error
	Stderr   string `json:"stderr,omitempty"` // error message for stderr
}

// Exit codes.
const (
	ExitOK       = 0
	ExitToolErr  = 1
	ExitUsageErr = 2
	ExitInternal = 3
)

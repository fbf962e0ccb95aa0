package daemon

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/mark3labs/mcp-go/mcp"

	"github.com/lydakis/kicad-mcp/internal/dispatch"
	"github.com/lydakis/kicad-mcp/internal/ipc"
	klog "github.com/lydakis/kicad-mcp/internal/log"
	"github.com/lydakis/kicad-mcp/internal/resources"
	"github.com/lydakis/kicad-mcp/internal/worker"
)

type stubRestarter struct {
	err      error
	restarts int
}

func (s *stubRestarter) Restart(context.Context) error {
	s.restarts++
	return s.err
}

func (s *stubRestarter) Status() WorkerStatus {
	return WorkerStatus{Status: worker.Status{State: worker.StateRunning, PID: 4242}}
}

type stubDispatcher struct {
	mu   sync.Mutex
	ops  []string
	resp dispatch.Response
	err  error
}

func (d *stubDispatcher) Submit(_ context.Context, op string, _ map[string]any) (dispatch.Response, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.ops = append(d.ops, op)
	return d.resp, d.err
}

type stubReader struct {
	contents []mcp.ResourceContents
	err      error
}

func (r stubReader) Read(context.Context, string) ([]mcp.ResourceContents, error) {
	return r.contents, r.err
}

func newTestController(d *stubDispatcher, r stubReader) (*controller, *stubRestarter) {
	sup := &stubRestarter{}
	return &controller{
		sup:    sup,
		tools:  d,
		reader: r,
		status: func() Status {
			return Status{Version: "test", PID: 7, Uptime: "1s", Worker: sup.Status()}
		},
		shutdown: func() {},
		logger:   klog.Discard(),
	}, sup
}

func TestControllerStatus(t *testing.T) {
	c, _ := newTestController(&stubDispatcher{}, stubReader{})
	resp := c.handle(context.Background(), &ipc.Request{Type: ipc.TypeStatus})
	if resp.ExitCode != ipc.ExitOK {
		t.Fatalf("ExitCode = %d, want 0 (%s)", resp.ExitCode, resp.Stderr)
	}
	var got Status
	if err := json.Unmarshal(resp.Content, &got); err != nil {
		t.Fatalf("decoding status %q: %v", resp.Content, err)
	}
	if got.Version != "test" || got.Worker.PID != 4242 || got.Worker.State != worker.StateRunning {
		t.Fatalf("status = %+v, want version test and running worker 4242", got)
	}
}

func TestControllerRestartWorker(t *testing.T) {
	c, sup := newTestController(&stubDispatcher{}, stubReader{})
	resp := c.handle(context.Background(), &ipc.Request{Type: ipc.TypeRestartWorker})
	if resp.ExitCode != ipc.ExitOK || string(resp.Content) != "worker restarted (pid 4242)\n" {
		t.Fatalf("restart response = %+v", resp)
	}
	if sup.restarts != 1 {
		t.Fatalf("restarts = %d, want 1", sup.restarts)
	}

	sup.err = worker.ErrStartup
	resp = c.handle(context.Background(), &ipc.Request{Type: ipc.TypeRestartWorker})
	if resp.ExitCode != ipc.ExitInternal || !strings.Contains(resp.Stderr, "startup failed") {
		t.Fatalf("failed restart response = %+v, want internal error", resp)
	}
}

func TestControllerShutdown(t *testing.T) {
	c, _ := newTestController(&stubDispatcher{}, stubReader{})
	done := make(chan struct{})
	c.shutdown = func() { close(done) }

	resp := c.handle(context.Background(), &ipc.Request{Type: ipc.TypeShutdown})
	if resp.ExitCode != ipc.ExitOK {
		t.Fatalf("ExitCode = %d, want 0", resp.ExitCode)
	}
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("shutdown was not triggered")
	}
}

func TestControllerUnknownType(t *testing.T) {
	c, _ := newTestController(&stubDispatcher{}, stubReader{})
	resp := c.handle(context.Background(), &ipc.Request{Type: "bogus"})
	if resp.ExitCode != ipc.ExitUsageErr {
		t.Fatalf("ExitCode = %d, want %d", resp.ExitCode, ipc.ExitUsageErr)
	}
}

func TestControllerCallTool(t *testing.T) {
	d := &stubDispatcher{resp: dispatch.Response{"success": true, "board": map[string]any{"layers": 2.0}}}
	c, _ := newTestController(d, stubReader{})

	resp := c.handle(context.Background(), &ipc.Request{Type: ipc.TypeCallTool, Tool: "get_board_info"})
	if resp.ExitCode != ipc.ExitOK {
		t.Fatalf("ExitCode = %d, want 0 (%s)", resp.ExitCode, resp.Stderr)
	}
	if !strings.Contains(string(resp.Content), `"layers": 2`) {
		t.Fatalf("Content = %q, want indented board JSON", resp.Content)
	}
	if len(d.ops) != 1 || d.ops[0] != "get_board_info" {
		t.Fatalf("dispatched = %v, want [get_board_info]", d.ops)
	}
}

func TestControllerCallToolUsageErrors(t *testing.T) {
	tests := []struct {
		name string
		req  ipc.Request
		want string
	}{
		{
			name: "unknown tool",
			req:  ipc.Request{Type: ipc.TypeCallTool, Tool: "frobnicate"},
			want: "unknown tool",
		},
		{
			name: "malformed args",
			req:  ipc.Request{Type: ipc.TypeCallTool, Tool: "get_board_info", Args: json.RawMessage(`{`)},
			want: "invalid JSON",
		},
		{
			name: "schema violation",
			req:  ipc.Request{Type: ipc.TypeCallTool, Tool: "set_board_size", Args: json.RawMessage(`{"width":-5,"height":80,"unit":"mm"}`)},
			want: "width",
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			d := &stubDispatcher{resp: dispatch.Response{"success": true}}
			c, _ := newTestController(d, stubReader{})
			resp := c.handle(context.Background(), &tt.req)
			if resp.ExitCode != ipc.ExitUsageErr {
				t.Fatalf("ExitCode = %d, want %d (%s)", resp.ExitCode, ipc.ExitUsageErr, resp.Stderr)
			}
			if !strings.Contains(resp.Stderr, tt.want) {
				t.Fatalf("Stderr = %q, want %q", resp.Stderr, tt.want)
			}
			if len(d.ops) != 0 {
				t.Fatalf("dispatched = %v, want none", d.ops)
			}
		})
	}
}

func TestControllerCallToolWorkerFailure(t *testing.T) {
	d := &stubDispatcher{resp: dispatch.Response{"success": false, "message": "No board is loaded"}}
	c, _ := newTestController(d, stubReader{})

	resp := c.handle(context.Background(), &ipc.Request{Type: ipc.TypeCallTool, Tool: "get_board_info"})
	if resp.ExitCode != ipc.ExitToolErr {
		t.Fatalf("ExitCode = %d, want %d", resp.ExitCode, ipc.ExitToolErr)
	}
	if !strings.Contains(resp.Stderr, "No board is loaded") || len(resp.Content) != 0 {
		t.Fatalf("response = %+v, want failure text on stderr", resp)
	}

	d.resp, d.err = nil, dispatch.ErrWorkerUnavailable
	resp = c.handle(context.Background(), &ipc.Request{Type: ipc.TypeCallTool, Tool: "get_board_info"})
	if resp.ExitCode != ipc.ExitToolErr || !strings.Contains(resp.Stderr, "restart-worker") {
		t.Fatalf("response = %+v, want unavailable hint", resp)
	}
}

func TestControllerReadResource(t *testing.T) {
	r := stubReader{contents: []mcp.ResourceContents{
		mcp.TextResourceContents{URI: "kicad://board/info", MIMEType: "application/json", Text: `{"layers":2}`},
	}}
	c, _ := newTestController(&stubDispatcher{}, r)

	resp := c.handle(context.Background(), &ipc.Request{Type: ipc.TypeReadResource, URI: "kicad://board/info"})
	if resp.ExitCode != ipc.ExitOK || !strings.Contains(string(resp.Content), `{"layers":2}`) {
		t.Fatalf("response = %+v, want resource text", resp)
	}

	c.reader = stubReader{err: fmt.Errorf("%w: kicad://nope", resources.ErrUnknownResource)}
	resp = c.handle(context.Background(), &ipc.Request{Type: ipc.TypeReadResource, URI: "kicad://nope"})
	if resp.ExitCode != ipc.ExitUsageErr {
		t.Fatalf("ExitCode = %d, want %d", resp.ExitCode, ipc.ExitUsageErr)
	}
}

func TestUptimeTruncatesToSeconds(t *testing.T) {
	start := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	if got := uptime(start, start.Add(90*time.Second+400*time.Millisecond)); got != "1m30s" {
		t.Fatalf("uptime() = %q, want 1m30s", got)
	}
}

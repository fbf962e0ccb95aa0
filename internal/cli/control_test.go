package cli

import (
	"context"
	"encoding/json"
	"strings"
	"testing"

	"github.com/lydakis/kicad-mcp/internal/daemon"
	"github.com/lydakis/kicad-mcp/internal/dispatch"
	"github.com/lydakis/kicad-mcp/internal/ipc"
	"github.com/lydakis/kicad-mcp/internal/worker"
)

func stubControl(t *testing.T, fn func(req *ipc.Request) *ipc.Response) *[]*ipc.Request {
	t.Helper()
	old := controlSender
	t.Cleanup(func() { controlSender = old })

	var seen []*ipc.Request
	controlSender = func(_ context.Context, req *ipc.Request) (*ipc.Response, error) {
		seen = append(seen, req)
		return fn(req), nil
	}
	return &seen
}

func TestStatusPrintsSummary(t *testing.T) {
	st := daemon.Status{
		Version: "1.0.0",
		PID:     10,
		Uptime:  "5m0s",
		Worker: daemon.WorkerStatus{
			Status:        worker.Status{State: worker.StateRunning, PID: 11, Restarts: 2, StderrTail: []string{"pcbnew loaded"}},
			RestartPolicy: "never",
			LastExit:      "worker 9 exited with code 1",
		},
		Queue: dispatch.Stats{State: dispatch.StateAwaiting, QueueDepth: 3, InFlight: "get_board_info", Completed: 7},
		Cache: daemon.CacheStatus{Enabled: true, Entries: 4},
	}
	payload, err := json.Marshal(st)
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	stubControl(t, func(*ipc.Request) *ipc.Response { return &ipc.Response{Content: payload} })

	code, out, _ := runCLI(t, "", "status")
	if code != ipc.ExitOK {
		t.Fatalf("code = %d, want 0", code)
	}
	for _, want := range []string{
		"running (pid 11), restarts 2, policy never",
		"last exit: worker 9 exited with code 1",
		"depth 3, completed 7",
		"in flight: get_board_info",
		"cache:    4 entries",
		"  pcbnew loaded",
	} {
		if !strings.Contains(out, want) {
			t.Fatalf("status output missing %q:\n%s", want, out)
		}
	}

	code, out, _ = runCLI(t, "", "status", "--json")
	if code != ipc.ExitOK || string(payload) != out {
		t.Fatalf("status --json = %q (code %d), want raw payload", out, code)
	}
}

func TestStatusWithoutServer(t *testing.T) {
	t.Setenv("XDG_RUNTIME_DIR", t.TempDir())
	code, _, errOut := runCLI(t, "", "status")
	if code != ipc.ExitInternal {
		t.Fatalf("code = %d, want %d", code, ipc.ExitInternal)
	}
	if !strings.Contains(errOut, "no running kicad-mcp server") {
		t.Fatalf("stderr = %q, want not-running message", errOut)
	}
}

func TestRestartWorkerAndStop(t *testing.T) {
	seen := stubControl(t, func(req *ipc.Request) *ipc.Response {
		switch req.Type {
		case ipc.TypeRestartWorker:
			return &ipc.Response{Content: []byte("worker restarted (pid 12)\n")}
		default:
			return &ipc.Response{Content: []byte("shutting down\n")}
		}
	})

	if code, out, _ := runCLI(t, "", "restart-worker"); code != ipc.ExitOK || out != "worker restarted (pid 12)\n" {
		t.Fatalf("restart-worker = %q (code %d)", out, code)
	}
	if code, out, _ := runCLI(t, "", "stop"); code != ipc.ExitOK || out != "shutting down\n" {
		t.Fatalf("stop = %q (code %d)", out, code)
	}
	if len(*seen) != 2 || (*seen)[0].Type != ipc.TypeRestartWorker || (*seen)[1].Type != ipc.TypeShutdown {
		t.Fatalf("requests = %+v, want restart then shutdown", *seen)
	}
}

func TestCallSendsFlagArguments(t *testing.T) {
	seen := stubControl(t, func(*ipc.Request) *ipc.Response {
		return &ipc.Response{Content: []byte("{\n  \"success\": true\n}\n")}
	})

	code, out, errOut := runCLI(t, "", "call", "place_component",
		"--componentId=Resistor_SMD:R_0603", "--position.x=10", "--position.y=20", "--reference", "R1")
	if code != ipc.ExitOK {
		t.Fatalf("code = %d, want 0 (stderr %q)", code, errOut)
	}
	if !strings.Contains(out, `"success": true`) {
		t.Fatalf("stdout = %q, want worker JSON", out)
	}

	req := (*seen)[0]
	if req.Type != ipc.TypeCallTool || req.Tool != "place_component" {
		t.Fatalf("request = %+v, want call_tool place_component", req)
	}
	var args map[string]any
	if err := json.Unmarshal(req.Args, &args); err != nil {
		t.Fatalf("decoding args: %v", err)
	}
	pos, _ := args["position"].(map[string]any)
	if pos["x"] != "10" || pos["y"] != "20" || args["reference"] != "R1" {
		t.Fatalf("args = %v, want nested position and reference", args)
	}
}

func TestCallReadsJSONFromStdin(t *testing.T) {
	seen := stubControl(t, func(*ipc.Request) *ipc.Response { return &ipc.Response{Content: []byte("ok\n")} })

	if code, _, errOut := runCLI(t, `{"width": 100, "height": 80}`, "call", "set_board_size"); code != ipc.ExitOK {
		t.Fatalf("code = %d, want 0 (stderr %q)", code, errOut)
	}
	if got := string((*seen)[0].Args); got != `{"height":80,"width":100}` {
		t.Fatalf("args = %s, want stdin object", got)
	}
}

func TestCallToolFailureExitCode(t *testing.T) {
	stubControl(t, func(*ipc.Request) *ipc.Response {
		return &ipc.Response{ExitCode: ipc.ExitToolErr, Stderr: "No board is loaded\n"}
	})

	code, out, errOut := runCLI(t, "", "call", "get_board_info")
	if code != ipc.ExitToolErr {
		t.Fatalf("code = %d, want %d", code, ipc.ExitToolErr)
	}
	if out != "" || errOut != "No board is loaded\n" {
		t.Fatalf("stdout = %q, stderr = %q", out, errOut)
	}

	code, _, errOut = runCLI(t, "", "call", "get_board_info", "-q")
	if code != ipc.ExitToolErr || errOut != "" {
		t.Fatalf("quiet call = code %d, stderr %q; want silent tool error", code, errOut)
	}
}

func TestCallUnknownToolAndHelp(t *testing.T) {
	seen := stubControl(t, func(*ipc.Request) *ipc.Response { return &ipc.Response{} })

	code, _, errOut := runCLI(t, "", "call", "frobnicate")
	if code != ipc.ExitUsageErr || !strings.Contains(errOut, "unknown tool: frobnicate") {
		t.Fatalf("unknown tool = code %d, stderr %q", code, errOut)
	}

	code, out, _ := runCLI(t, "", "call", "set_board_size", "--help")
	if code != ipc.ExitOK {
		t.Fatalf("help code = %d, want 0", code)
	}
	for _, want := range []string{"Usage: kicad-mcp call set_board_size", "--width <number> (required)", "one of: mm, inch"} {
		if !strings.Contains(out, want) {
			t.Fatalf("help missing %q:\n%s", want, out)
		}
	}
	if len(*seen) != 0 {
		t.Fatalf("requests = %d, want none", len(*seen))
	}
}

func TestReadPrintsResource(t *testing.T) {
	seen := stubControl(t, func(*ipc.Request) *ipc.Response {
		return &ipc.Response{Content: []byte(`{"layers":2}` + "\n")}
	})

	code, out, _ := runCLI(t, "", "read", "kicad://board/info")
	if code != ipc.ExitOK || out != "{\"layers\":2}\n" {
		t.Fatalf("read = %q (code %d)", out, code)
	}
	if (*seen)[0].Type != ipc.TypeReadResource || (*seen)[0].URI != "kicad://board/info" {
		t.Fatalf("request = %+v, want read_resource", (*seen)[0])
	}
}

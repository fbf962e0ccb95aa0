package cli

import (
	"encoding/json"
	"strings"
	"testing"

	"github.com/lydakis/kicad-mcp/internal/ipc"
)

func TestToolsListsByCategory(t *testing.T) {
	code, out, _ := runCLI(t, "", "tools")
	if code != ipc.ExitOK {
		t.Fatalf("code = %d, want 0", code)
	}
	if !strings.HasPrefix(out, "project:\n  create_project\n") {
		t.Fatalf("output starts %q, want project section first", out[:min(len(out), 60)])
	}
	if !strings.Contains(out, "\nschematic:\n") {
		t.Fatalf("output missing schematic section:\n%s", out)
	}
}

func TestToolsJSONFilteredByCategory(t *testing.T) {
	code, out, _ := runCLI(t, "", "tools", "--json", "--category", "design_rules")
	if code != ipc.ExitOK {
		t.Fatalf("code = %d, want 0", code)
	}
	var entries []toolListEntry
	if err := json.Unmarshal([]byte(out), &entries); err != nil {
		t.Fatalf("decoding %q: %v", out, err)
	}
	if len(entries) != 4 {
		t.Fatalf("entries = %d, want 4", len(entries))
	}
	for _, e := range entries {
		if e.Category != "design_rules" || e.InputSchema["type"] != "object" {
			t.Fatalf("entry = %+v, want design_rules with object schema", e)
		}
	}
}

func TestToolsUnknownCategory(t *testing.T) {
	code, _, errOut := runCLI(t, "", "tools", "--category", "nope")
	if code != ipc.ExitUsageErr || !strings.Contains(errOut, "unknown category") {
		t.Fatalf("code = %d, stderr = %q; want unknown category usage error", code, errOut)
	}
}

func TestToolsVerboseShowsDescriptions(t *testing.T) {
	_, out, _ := runCLI(t, "", "tools", "-v", "--category", "board")
	if !strings.Contains(out, "  get_board_info\tGet board size") {
		t.Fatalf("verbose output missing description:\n%s", out)
	}
}

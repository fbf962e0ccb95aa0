package cli

import (
	"encoding/json"
	"errors"
	"io"
	"io/fs"
	"os"

	"github.com/spf13/cobra"

	"github.com/lydakis/kicad-mcp/internal/ipc"
	"github.com/lydakis/kicad-mcp/internal/tools"
)

var stdinIsTTYFn = stdinIsTTY

func newCallCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "call <tool> [--key=value ... | JSON]",
		Short: "Call a KiCad tool on the running server",
		Long: `Call a KiCad tool on the running server. Arguments come from --key=value
flags, a single JSON object argument, or a JSON object on stdin.
Run "kicad-mcp call <tool> --help" for the tool's parameters.`,
		// Tool parameters are parsed against the tool schema, not by cobra.
		DisableFlagParsing: true,
		RunE:               runCall,
	}
}

func runCall(cmd *cobra.Command, args []string) error {
	if len(args) == 0 || args[0] == "-h" || args[0] == "--help" {
		return cmd.Help()
	}

	name := args[0]
	def, ok := tools.Lookup(name)
	if !ok {
		return exitError(ipc.ExitUsageErr, "unknown tool: %s (run `kicad-mcp tools` to list them)", name)
	}

	parsed, err := parseToolCallArgs(args[1:], cmd.InOrStdin(), stdinIsTTYFn(cmd.InOrStdin()))
	if err != nil {
		return exitError(ipc.ExitUsageErr, "%v", err)
	}
	if parsed.help {
		printToolHelp(cmd.OutOrStdout(), def)
		return nil
	}

	argsJSON, err := json.Marshal(parsed.toolArgs)
	if err != nil {
		return exitError(ipc.ExitUsageErr, "invalid arguments: %v", err)
	}

	resp, err := sendControl(cmd, &ipc.Request{Type: ipc.TypeCallTool, Tool: name, Args: argsJSON}, 0)
	if err != nil {
		var exitErr *ExitError
		if parsed.quiet && errors.As(err, &exitErr) {
			return silentExit(exitErr.Code)
		}
		return err
	}
	return writeControlResponse(resp, parsed.quiet, cmd.OutOrStdout(), cmd.ErrOrStderr())
}

func stdinIsTTY(r io.Reader) bool {
	file, ok := r.(*os.File)
	if !ok {
		return false
	}
	info, err := file.Stat()
	if err != nil {
		return true
	}
	return info.Mode()&fs.ModeCharDevice != 0
}

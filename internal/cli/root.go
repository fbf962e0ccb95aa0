// Package cli implements the kicad-mcp command line: the serve entry point
// used by MCP clients and the control commands that talk to a running server.
package cli

import (
	"errors"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/lydakis/kicad-mcp/internal/ipc"
)

// Run is the main CLI entry point. Returns an exit code.
func Run(args []string) int {
	// MCP clients launch the binary without arguments.
	if len(args) == 0 {
		args = []string{"serve"}
	}

	root := newRootCmd()
	root.SetArgs(args)
	root.SetOut(rootStdout)
	root.SetErr(rootStderr)
	root.SetIn(rootStdin)

	err := root.Execute()
	if err == nil {
		return ipc.ExitOK
	}
	var exitErr *ExitError
	if errors.As(err, &exitErr) {
		if exitErr.Message != "" {
			fmt.Fprintf(rootStderr, "kicad-mcp: %s\n", exitErr.Message)
		}
		return exitErr.Code
	}
	fmt.Fprintf(rootStderr, "kicad-mcp: %v\n", err)
	return ipc.ExitUsageErr
}

func newRootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:           "kicad-mcp",
		Short:         "MCP server for KiCad PCB design",
		Long:          "kicad-mcp exposes KiCad's Python scripting API to MCP clients over stdio.\nWith no arguments it runs the server.",
		Version:       buildVersion,
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.SetVersionTemplate("kicad-mcp {{.Version}}\n")
	root.PersistentFlags().String("config", "", "Path to config.toml (default: $XDG_CONFIG_HOME/kicad-mcp/config.toml)")

	root.AddCommand(newServeCmd())
	root.AddCommand(newStatusCmd())
	root.AddCommand(newRestartWorkerCmd())
	root.AddCommand(newStopCmd())
	root.AddCommand(newCallCmd())
	root.AddCommand(newReadCmd())
	root.AddCommand(newToolsCmd())
	root.AddCommand(newConfigCmd())
	return root
}

func configPath(cmd *cobra.Command) string {
	path, _ := cmd.Flags().GetString("config")
	return path
}

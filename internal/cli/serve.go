package cli

import (
	"github.com/spf13/cobra"

	"github.com/lydakis/kicad-mcp/internal/daemon"
	"github.com/lydakis/kicad-mcp/internal/ipc"
)

var runDaemon = daemon.Run

func newServeCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Run the MCP server on stdio",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			err := runDaemon(cmd.Context(), daemon.Options{
				ConfigPath: configPath(cmd),
				Version:    buildVersion,
				Stdin:      cmd.InOrStdin(),
				Stdout:     cmd.OutOrStdout(),
				Stderr:     cmd.ErrOrStderr(),
			})
			if err != nil {
				return exitError(ipc.ExitInternal, "%v", err)
			}
			return nil
		},
	}
}

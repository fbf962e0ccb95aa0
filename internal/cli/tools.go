package cli

import (
	"github.com/spf13/cobra"

	"github.com/lydakis/kicad-mcp/internal/ipc"
	"github.com/lydakis/kicad-mcp/internal/tools"
)

func newToolsCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "tools",
		Short: "List the KiCad tools the server exposes",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			asJSON, _ := cmd.Flags().GetBool("json")
			verbose, _ := cmd.Flags().GetBool("verbose")
			category, _ := cmd.Flags().GetString("category")

			entries, err := toolListEntries(tools.Catalog(), category, asJSON)
			if err != nil {
				return exitError(ipc.ExitUsageErr, "%v", err)
			}
			if err := writeToolList(cmd.OutOrStdout(), entries, asJSON, verbose); err != nil {
				return exitError(ipc.ExitInternal, "%v", err)
			}
			return nil
		},
	}
	cmd.Flags().Bool("json", false, "Print names, categories and input schemas as JSON")
	cmd.Flags().BoolP("verbose", "v", false, "Show tool descriptions")
	cmd.Flags().String("category", "", "Only list tools in this category")
	return cmd
}

package cli

import (
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/lydakis/kicad-mcp/internal/bootstrap"
	"github.com/lydakis/kicad-mcp/internal/config"
	"github.com/lydakis/kicad-mcp/internal/ipc"
	"github.com/lydakis/kicad-mcp/internal/paths"
)

var (
	checkPrerequisitesFn = bootstrap.CheckPrerequisites
	discoverPythonPathFn = config.DiscoverKiCadPythonPath
)

func newConfigCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "config",
		Short: "Create, check or locate the config file",
	}
	cmd.AddCommand(newConfigInitCmd())
	cmd.AddCommand(newConfigValidateCmd())
	cmd.AddCommand(newConfigPathCmd())
	return cmd
}

func resolvedConfigPath(cmd *cobra.Command) string {
	if p := configPath(cmd); p != "" {
		return p
	}
	return paths.ConfigFile()
}

func newConfigInitCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "init",
		Short: "Write a starter config file",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			path := resolvedConfigPath(cmd)
			script, _ := cmd.Flags().GetString("script")
			python, _ := cmd.Flags().GetString("python")
			force, _ := cmd.Flags().GetBool("force")

			if _, err := os.Stat(path); err == nil && !force {
				return exitError(ipc.ExitUsageErr, "%s already exists (use --force to overwrite)", path)
			}
			if script != "" {
				abs, err := filepath.Abs(script)
				if err != nil {
					return exitError(ipc.ExitUsageErr, "resolving --script: %v", err)
				}
				script = abs
			}

			cfg := &config.Config{
				LogLevel: config.DefaultLogLevel,
				Worker: config.WorkerConfig{
					Python:     python,
					Script:     script,
					PythonPath: discoverPythonPathFn(),
					Restart:    config.RestartConfig{Policy: config.RestartPolicyNever},
				},
			}
			if err := config.SaveTo(path, cfg); err != nil {
				return exitError(ipc.ExitInternal, "%v", err)
			}

			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "wrote %s\n", path)
			if len(cfg.Worker.PythonPath) == 0 {
				fmt.Fprintf(out, "no KiCad scripting directory found; set worker.python_path or %s\n", config.PythonPathEnvVar)
			}
			if script == "" {
				fmt.Fprintln(out, "set worker.script to the absolute path of kicad_interface.py")
			}
			return nil
		},
	}
	cmd.Flags().String("script", "", "Path to kicad_interface.py")
	cmd.Flags().String("python", config.DefaultPython, "Python interpreter with pcbnew available")
	cmd.Flags().Bool("force", false, "Overwrite an existing config file")
	return cmd
}

func newConfigValidateCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "validate",
		Short: "Check the config file and worker prerequisites",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			path := resolvedConfigPath(cmd)
			cfg, err := config.LoadForEditFrom(path)
			if err != nil {
				return exitError(ipc.ExitUsageErr, "%v", err)
			}
			if err := config.ValidateForCurrentEnv(cfg); err != nil {
				return exitError(ipc.ExitUsageErr, "invalid config %s:\n%s", path, indentErrors(err))
			}

			// Prerequisites are checked on the expanded config the server would use.
			expanded, err := config.LoadFrom(path)
			if err != nil {
				return exitError(ipc.ExitUsageErr, "%v", err)
			}
			pythonPath := config.ResolvePythonPath(expanded.Worker)
			report, err := checkPrerequisitesFn(expanded.Worker, pythonPath)
			if err != nil {
				return exitError(ipc.ExitUsageErr, "worker prerequisites:\n%s", indentErrors(err))
			}
			writeValidateReport(cmd.OutOrStdout(), path, report, pythonPath)
			return nil
		},
	}
}

func writeValidateReport(w io.Writer, path string, report bootstrap.Report, pythonPath []string) {
	fmt.Fprintf(w, "%s: ok\n", path)
	fmt.Fprintf(w, "interpreter: %s\n", report.Interpreter)
	if len(pythonPath) == 0 {
		fmt.Fprintln(w, "python path: (none found)")
	}
	for _, dir := range pythonPath {
		fmt.Fprintf(w, "python path: %s\n", dir)
	}
	for _, dir := range report.MissingPathDirs {
		fmt.Fprintf(w, "warning: python path entry %s does not exist\n", dir)
	}
}

func indentErrors(err error) string {
	var joined interface{ Unwrap() []error }
	if !errors.As(err, &joined) {
		return "  " + err.Error()
	}
	out := ""
	for i, e := range joined.Unwrap() {
		if i > 0 {
			out += "\n"
		}
		out += "  " + e.Error()
	}
	return out
}

func newConfigPathCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "path",
		Short: "Print the config, log and control socket paths",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "config:  %s\n", resolvedConfigPath(cmd))
			fmt.Fprintf(out, "log:     %s\n", paths.LogFile())
			fmt.Fprintf(out, "socket:  %s\n", paths.SocketPath())
			return nil
		},
	}
}

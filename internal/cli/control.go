package cli

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/lydakis/kicad-mcp/internal/daemon"
	"github.com/lydakis/kicad-mcp/internal/ipc"
	"github.com/lydakis/kicad-mcp/internal/paths"
)

const controlTimeout = 10 * time.Second

// controlSender is swapped in tests.
var controlSender = func(ctx context.Context, req *ipc.Request) (*ipc.Response, error) {
	st, err := ipc.ReadState(paths.StatePath())
	if err != nil {
		if errors.Is(err, ipc.ErrNotRunning) {
			return nil, exitError(ipc.ExitInternal, "no running kicad-mcp server found (is an MCP client connected?)")
		}
		return nil, exitError(ipc.ExitInternal, "%v", err)
	}
	return ipc.NewClient(st.Socket, st.Nonce).Send(ctx, req)
}

func sendControl(cmd *cobra.Command, req *ipc.Request, timeout time.Duration) (*ipc.Response, error) {
	ctx := cmd.Context()
	if timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, timeout)
		defer cancel()
	}
	resp, err := controlSender(ctx, req)
	if err != nil {
		var exitErr *ExitError
		if errors.As(err, &exitErr) {
			return nil, exitErr
		}
		return nil, exitError(ipc.ExitInternal, "%v", err)
	}
	return resp, nil
}

// writeControlResponse prints content to stdout on success. Failures go to
// stderr and become the process exit code.
func writeControlResponse(resp *ipc.Response, quiet bool, stdout, stderr io.Writer) error {
	if resp.ExitCode == ipc.ExitOK {
		if resp.Stderr != "" && !quiet {
			fmt.Fprintln(stderr, resp.Stderr)
		}
		_, _ = stdout.Write(resp.Content)
		return nil
	}
	if !quiet {
		if resp.Stderr != "" {
			fmt.Fprintln(stderr, strings.TrimRight(resp.Stderr, "\n"))
		}
		if len(resp.Content) > 0 {
			_, _ = stderr.Write(resp.Content)
		}
	}
	return silentExit(resp.ExitCode)
}

func newStatusCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "status",
		Short: "Show worker and queue state of the running server",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			asJSON, _ := cmd.Flags().GetBool("json")
			resp, err := sendControl(cmd, &ipc.Request{Type: ipc.TypeStatus}, controlTimeout)
			if err != nil {
				return err
			}
			if resp.ExitCode != ipc.ExitOK || asJSON {
				return writeControlResponse(resp, false, cmd.OutOrStdout(), cmd.ErrOrStderr())
			}
			var st daemon.Status
			if err := json.Unmarshal(resp.Content, &st); err != nil {
				return exitError(ipc.ExitInternal, "invalid status payload: %v", err)
			}
			writeStatusText(cmd.OutOrStdout(), st)
			return nil
		},
	}
	cmd.Flags().Bool("json", false, "Print the raw status JSON")
	return cmd
}

func writeStatusText(w io.Writer, st daemon.Status) {
	fmt.Fprintf(w, "server:   pid %d, version %s, up %s\n", st.PID, st.Version, st.Uptime)

	worker := string(st.Worker.State)
	if st.Worker.PID != 0 {
		worker += fmt.Sprintf(" (pid %d)", st.Worker.PID)
	}
	fmt.Fprintf(w, "worker:   %s, restarts %d, policy %s\n", worker, st.Worker.Restarts, st.Worker.RestartPolicy)
	if st.Worker.LastExit != "" {
		fmt.Fprintf(w, "          last exit: %s\n", st.Worker.LastExit)
	}
	if st.Worker.LastError != "" {
		fmt.Fprintf(w, "          last error: %s\n", st.Worker.LastError)
	}
	if !st.Worker.NextRestart.IsZero() {
		fmt.Fprintf(w, "          next restart: %s\n", st.Worker.NextRestart.Format(time.RFC3339))
	}

	q := st.Queue
	fmt.Fprintf(w, "queue:    %s, depth %d, completed %d, failed %d, timed out %d, terminated %d\n",
		q.State, q.QueueDepth, q.Completed, q.Failed, q.TimedOut, q.Terminated)
	if q.InFlight != "" {
		fmt.Fprintf(w, "          in flight: %s\n", q.InFlight)
	}

	if st.Cache.Enabled {
		fmt.Fprintf(w, "cache:    %d entries\n", st.Cache.Entries)
	} else {
		fmt.Fprintln(w, "cache:    disabled")
	}

	if len(st.Worker.StderrTail) > 0 {
		fmt.Fprintln(w, "\nworker stderr:")
		for _, line := range st.Worker.StderrTail {
			fmt.Fprintf(w, "  %s\n", line)
		}
	}
}

func newRestartWorkerCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "restart-worker",
		Short: "Restart the KiCad worker of the running server",
		Long:  "Stops the current worker, failing any queued commands, and starts a new one.",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			resp, err := sendControl(cmd, &ipc.Request{Type: ipc.TypeRestartWorker}, time.Minute)
			if err != nil {
				return err
			}
			return writeControlResponse(resp, false, cmd.OutOrStdout(), cmd.ErrOrStderr())
		},
	}
}

func newStopCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "stop",
		Short: "Ask the running server to shut down",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			resp, err := sendControl(cmd, &ipc.Request{Type: ipc.TypeShutdown}, controlTimeout)
			if err != nil {
				return err
			}
			return writeControlResponse(resp, false, cmd.OutOrStdout(), cmd.ErrOrStderr())
		},
	}
}

func newReadCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "read <uri>",
		Short: "Read a kicad:// resource from the running server",
		Example: `  kicad-mcp read kicad://board/info
  kicad-mcp read 'kicad://board/view?format=svg'
  kicad-mcp read kicad://component/R1`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			resp, err := sendControl(cmd, &ipc.Request{Type: ipc.TypeReadResource, URI: args[0]}, 0)
			if err != nil {
				return err
			}
			return writeControlResponse(resp, false, cmd.OutOrStdout(), cmd.ErrOrStderr())
		},
	}
}

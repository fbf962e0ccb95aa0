// Package daemon runs the kicad-mcp server: the MCP stdio transport, the
// KiCad worker and its supervisor, and the control socket used by the CLI.
package daemon

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/mark3labs/mcp-go/server"

	"github.com/lydakis/kicad-mcp/internal/cache"
	"github.com/lydakis/kicad-mcp/internal/config"
	"github.com/lydakis/kicad-mcp/internal/dispatch"
	"github.com/lydakis/kicad-mcp/internal/ipc"
	klog "github.com/lydakis/kicad-mcp/internal/log"
	"github.com/lydakis/kicad-mcp/internal/paths"
	"github.com/lydakis/kicad-mcp/internal/resources"
	"github.com/lydakis/kicad-mcp/internal/telemetry"
	"github.com/lydakis/kicad-mcp/internal/tools"
	"github.com/lydakis/kicad-mcp/internal/worker"
)

const instructions = `Tools drive a live KiCad board through its Python scripting API.
Commands run one at a time in the order they arrive. Open or create a project
before using board, component or routing tools.`

// Options configures Run.
type Options struct {
	// ConfigPath overrides the default config location.
	ConfigPath string
	Version    string
	// Stdin and Stdout carry the MCP transport. They default to the process's.
	Stdin  io.Reader
	Stdout io.Writer
	// Stderr receives console logs. Defaults to os.Stderr.
	Stderr io.Writer
}

func loadConfig(path string) (*config.Config, error) {
	var (
		cfg *config.Config
		err error
	)
	if path != "" {
		cfg, err = config.LoadFrom(path)
	} else {
		cfg, err = config.Load()
	}
	if err != nil {
		return nil, fmt.Errorf("loading config: %w", err)
	}
	if err := config.Validate(cfg); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}
	return cfg, nil
}

// Run serves MCP on stdio until stdin closes, a signal arrives or a
// shutdown is requested over the control socket. A worker that cannot be
// started is fatal.
func Run(ctx context.Context, opts Options) error {
	if opts.Stdin == nil {
		opts.Stdin = os.Stdin
	}
	if opts.Stdout == nil {
		opts.Stdout = os.Stdout
	}

	cfg, err := loadConfig(opts.ConfigPath)
	if err != nil {
		return err
	}

	logFile := cfg.LogFile
	if logFile == "" {
		logFile = paths.LogFile()
	}
	if err := klog.Setup(klog.Options{Level: cfg.LogLevel, File: logFile, Console: opts.Stderr}); err != nil {
		return err
	}
	defer klog.Close() //nolint:errcheck
	logger := klog.WithComponent("daemon")

	ctx, stop := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer stop()
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	prov, err := telemetry.Setup(ctx, cfg.Telemetry, opts.Version)
	if err != nil {
		return err
	}
	defer func() {
		sctx, scancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer scancel()
		if err := prov.Shutdown(sctx); err != nil {
			logger.Warn("telemetry shutdown", "error", err)
		}
	}()

	pythonPath := config.ResolvePythonPath(cfg.Worker)
	if len(pythonPath) == 0 {
		logger.Warn("no KiCad scripting directory found; set worker.python_path or " + config.PythonPathEnvVar)
	}

	mgr := worker.NewManager(worker.Options{
		Worker:     cfg.Worker,
		PythonPath: pythonPath,
		Logger:     klog.WithComponent("worker"),
	})
	defer mgr.Close() //nolint:errcheck

	corr := dispatch.New(dispatch.Options{
		Timeout:  cfg.Worker.CommandTimeout(),
		Logger:   klog.WithComponent("dispatch"),
		Observer: prov.Observer,
	})
	defer corr.Close()

	sup := NewSupervisor(SupervisorOptions{
		Process:  mgr,
		Link:     corr,
		Restart:  cfg.Worker.Restart,
		Observer: prov.Observer,
		Logger:   klog.WithComponent("supervisor"),
	})
	if err := sup.Start(ctx); err != nil {
		return err
	}
	defer sup.Close() //nolint:errcheck
	go sup.Run(ctx)

	started := time.Now()
	results := cache.New(cfg.Resources.TTL())
	status := func() Status {
		return Status{
			Version: opts.Version,
			PID:     os.Getpid(),
			Uptime:  uptime(started, time.Now()),
			Worker:  sup.Status(),
			Queue:   corr.Stats(),
			Cache:   CacheStatus{Enabled: results.Enabled(), Entries: results.Len()},
		}
	}

	s := server.NewMCPServer("kicad-mcp", opts.Version,
		server.WithToolCapabilities(false),
		server.WithResourceCapabilities(false, false),
		server.WithInstructions(instructions),
		server.WithRecovery(),
	)
	toolOpts := tools.Options{Cache: results, Logger: klog.WithComponent("tools")}
	n := tools.Register(s, corr, toolOpts)

	router, err := resources.New(corr, resources.DefaultSources(), resources.Options{
		Cache:  results,
		Status: func() any { return status() },
		Logger: klog.WithComponent("resources"),
	})
	if err != nil {
		return err
	}
	router.Register(s)
	logger.Info("mcp server ready", "tools", n, "resources", len(router.Sources()))

	ctl := &controller{
		sup:      sup,
		tools:    corr,
		toolOpts: toolOpts,
		reader:   router,
		status:   status,
		shutdown: cancel,
		logger:   logger,
	}
	stopControl, err := startControl(ctl)
	if err != nil {
		logger.Warn("control socket disabled", "error", err)
	} else {
		defer stopControl()
	}

	stdio := server.NewStdioServer(s)
	stdio.SetErrorLogger(slog.NewLogLogger(klog.WithComponent("mcp").Handler(), slog.LevelError))
	err = stdio.Listen(ctx, opts.Stdin, opts.Stdout)
	logger.Info("shutting down")
	if err != nil && !errors.Is(err, context.Canceled) && !errors.Is(err, io.EOF) {
		return fmt.Errorf("mcp transport: %w", err)
	}
	return nil
}

// startControl opens the control socket and records its nonce. A second
// server for the same user keeps serving MCP without one.
func startControl(ctl *controller) (func(), error) {
	if err := paths.EnsureDir(paths.RuntimeDir()); err != nil {
		return nil, fmt.Errorf("creating runtime dir: %w", err)
	}
	nonce, err := ipc.NewNonce()
	if err != nil {
		return nil, err
	}

	srv := ipc.NewServer(paths.SocketPath(), nonce, ctl.handle)
	if err := srv.Start(); err != nil {
		return nil, err
	}
	pid := os.Getpid()
	if err := ipc.WriteState(paths.StatePath(), ipc.State{PID: pid, Socket: paths.SocketPath(), Nonce: nonce}); err != nil {
		srv.Stop()
		return nil, fmt.Errorf("writing control state: %w", err)
	}
	return func() {
		ipc.RemoveState(paths.StatePath(), pid)
		srv.Stop()
	}, nil
}

package worker

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/exec"
	"sync"
	"time"

	"github.com/lydakis/kicad-mcp/internal/bootstrap"
	"github.com/lydakis/kicad-mcp/internal/config"
	klog "github.com/lydakis/kicad-mcp/internal/log"
)

var (
	checkPrerequisitesFn = bootstrap.CheckPrerequisites
	execCommandFn        = exec.Command
	environFn            = os.Environ
)

// Options configures a Manager.
type Options struct {
	Worker config.WorkerConfig
	// PythonPath is prepended to the child's PYTHONPATH.
	PythonPath []string
	Logger     *slog.Logger
}

// Manager spawns and supervises a single worker process at a time. It
// reports exits and pipe failures on Events but does not interpret them.
type Manager struct {
	opts   Options
	logger *slog.Logger
	events chan Event
	closed chan struct{}

	mu        sync.Mutex
	cmd       *exec.Cmd
	done      chan struct{}
	state     State
	pid       int
	startedAt time.Time
	exitCode  *int
	starts    int
	isClosed  bool
	stderr    *tailRing
}

// NewManager returns a Manager with no running worker.
func NewManager(opts Options) *Manager {
	logger := opts.Logger
	if logger == nil {
		logger = klog.Discard()
	}
	return &Manager{
		opts:   opts,
		logger: logger,
		events: make(chan Event, 8),
		closed: make(chan struct{}),
		state:  StateAbsent,
		stderr: newTailRing(stderrTailLines),
	}
}

// Events delivers Exited and IOError notifications.
func (m *Manager) Events() <-chan Event {
	return m.events
}

// Start launches the worker. Failures before the process is running wrap
// ErrStartup.
func (m *Manager) Start(ctx context.Context) (Conn, error) {
	if err := ctx.Err(); err != nil {
		return Conn{}, fmt.Errorf("%w: %w", ErrStartup, err)
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	if m.isClosed {
		return Conn{}, ErrClosed
	}
	if m.state == StateRunning {
		return Conn{}, ErrRunning
	}

	w := m.opts.Worker
	report, err := checkPrerequisitesFn(w, m.opts.PythonPath)
	if err != nil {
		return Conn{}, fmt.Errorf("%w: %w", ErrStartup, err)
	}
	for _, dir := range report.MissingPathDirs {
		m.logger.Warn("PYTHONPATH entry does not exist", "dir", dir)
	}

	python := w.Python
	if python == "" {
		python = config.DefaultPython
	}
	args := append(append([]string(nil), w.PythonArgs...), w.Script)
	cmd := execCommandFn(python, args...)
	cmd.Env = BuildEnv(environFn(), m.opts.PythonPath, w.Env)
	setProcessGroup(cmd)

	// Own both ends of stdout/stderr so Wait does not close the read side.
	// A reply written just before exit can still lose the race against the
	// Exited event and be rejected as terminated.
	stdoutR, stdoutW, err := os.Pipe()
	if err != nil {
		return Conn{}, fmt.Errorf("%w: stdout pipe: %w", ErrStartup, err)
	}
	stderrR, stderrW, err := os.Pipe()
	if err != nil {
		closeAll(stdoutR, stdoutW)
		return Conn{}, fmt.Errorf("%w: stderr pipe: %w", ErrStartup, err)
	}
	stdin, err := cmd.StdinPipe()
	if err != nil {
		closeAll(stdoutR, stdoutW, stderrR, stderrW)
		return Conn{}, fmt.Errorf("%w: stdin pipe: %w", ErrStartup, err)
	}
	cmd.Stdout = stdoutW
	cmd.Stderr = stderrW

	if err := cmd.Start(); err != nil {
		closeAll(stdoutR, stdoutW, stderrR, stderrW)
		return Conn{}, fmt.Errorf("%w: %w", ErrStartup, err)
	}
	closeAll(stdoutW, stderrW)

	m.cmd = cmd
	m.done = make(chan struct{})
	m.state = StateRunning
	m.pid = cmd.Process.Pid
	m.startedAt = time.Now()
	m.exitCode = nil
	m.starts++

	pid := m.pid
	logger := m.logger.With("pid", pid)
	logger.Info("worker started", "python", python, "script", w.Script)

	go func() {
		pumpStderr(stderrR, m.stderr, logger)
		_ = stderrR.Close()
	}()
	go m.wait(cmd, m.done, pid)

	return Conn{
		PID:    pid,
		Stdin:  &reportingWriter{w: stdin, m: m, pid: pid},
		Stdout: &reportingReader{r: stdoutR, m: m, pid: pid},
	}, nil
}

func (m *Manager) wait(cmd *exec.Cmd, done chan struct{}, pid int) {
	err := cmd.Wait()

	ev := Exited{PID: pid, Code: -1}
	if ps := cmd.ProcessState; ps != nil {
		ev.Code = ps.ExitCode()
		ev.Signal = exitSignal(ps)
	}
	var exitErr *exec.ExitError
	if err != nil && !errors.As(err, &exitErr) {
		ev.Err = err
	}

	m.mu.Lock()
	if m.cmd == cmd {
		m.state = StateExited
		code := ev.Code
		m.exitCode = &code
	}
	m.mu.Unlock()
	close(done)

	m.logger.Info("worker exited", "pid", pid, "code", ev.Code, "signal", ev.Signal)
	m.emit(ev)
}

func (m *Manager) emit(ev Event) {
	select {
	case m.events <- ev:
	case <-m.closed:
	}
}

// emitAsync is used from pipe wrappers, which may run on the correlator's
// goroutines and must not block them.
func (m *Manager) emitAsync(ev Event) {
	select {
	case m.events <- ev:
	default:
		m.logger.Warn("dropping worker event, channel full", "event", fmt.Sprintf("%T", ev))
	}
}

// Stop sends SIGTERM to the worker's process group and SIGKILL after the
// configured grace period. Stop on a non-running worker is a no-op.
func (m *Manager) Stop() error {
	m.mu.Lock()
	if m.state != StateRunning || m.cmd == nil {
		m.mu.Unlock()
		return nil
	}
	cmd, done := m.cmd, m.done
	m.mu.Unlock()

	if err := terminate(cmd); err != nil {
		m.logger.Debug("terminate worker", "error", err)
	}

	grace := m.opts.Worker.StopGracePeriod()
	timer := time.NewTimer(grace)
	defer timer.Stop()

	select {
	case <-done:
		return nil
	case <-timer.C:
	}

	m.logger.Warn("worker ignored SIGTERM, killing", "grace", grace)
	if err := kill(cmd); err != nil {
		return fmt.Errorf("killing worker: %w", err)
	}
	<-done
	return nil
}

// Close stops the worker and releases event delivery.
func (m *Manager) Close() error {
	err := m.Stop()
	m.mu.Lock()
	if !m.isClosed {
		m.isClosed = true
		close(m.closed)
	}
	m.mu.Unlock()
	return err
}

// Status returns a snapshot of the managed process.
func (m *Manager) Status() Status {
	m.mu.Lock()
	defer m.mu.Unlock()

	restarts := m.starts - 1
	if restarts < 0 {
		restarts = 0
	}
	st := Status{
		State:      m.state,
		StartedAt:  m.startedAt,
		Restarts:   restarts,
		StderrTail: m.stderr.snapshot(),
	}
	if m.state == StateRunning {
		st.PID = m.pid
	}
	if m.exitCode != nil {
		code := *m.exitCode
		st.ExitCode = &code
	}
	return st
}

type reportingWriter struct {
	w   io.WriteCloser
	m   *Manager
	pid int
}

func (w *reportingWriter) Write(p []byte) (int, error) {
	n, err := w.w.Write(p)
	if err != nil {
		w.m.emitAsync(IOError{PID: w.pid, Err: fmt.Errorf("writing worker stdin: %w", err)})
	}
	return n, err
}

type reportingReader struct {
	r   io.ReadCloser
	m   *Manager
	pid int
}

func (r *reportingReader) Read(p []byte) (int, error) {
	n, err := r.r.Read(p)
	if err != nil {
		if err != io.EOF && !errors.Is(err, os.ErrClosed) {
			r.m.emitAsync(IOError{PID: r.pid, Err: fmt.Errorf("reading worker stdout: %w", err)})
		}
		_ = r.r.Close()
	}
	return n, err
}

func closeAll(files ...*os.File) {
	for _, f := range files {
		_ = f.Close()
	}
}

package daemon

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/cenkalti/backoff/v4"

	"github.com/lydakis/kicad-mcp/internal/config"
	klog "github.com/lydakis/kicad-mcp/internal/log"
	"github.com/lydakis/kicad-mcp/internal/worker"
)

// stableAfter is how long a worker must run before a crash starts a fresh
// backoff sequence.
const stableAfter = time.Minute

var errRestartRequested = errors.New("restart requested")

type workerProcess interface {
	Start(ctx context.Context) (worker.Conn, error)
	Stop() error
	Status() worker.Status
	Events() <-chan worker.Event
}

type workerLink interface {
	Attach(conn worker.Conn)
	WorkerExited(cause error)
}

type startObserver interface {
	ObserveWorkerStart(restart bool, err error)
}

// SupervisorOptions configures a Supervisor.
type SupervisorOptions struct {
	Process  workerProcess
	Link     workerLink
	Restart  config.RestartConfig
	Observer startObserver
	Logger   *slog.Logger
}

// WorkerStatus extends the process snapshot with restart bookkeeping.
type WorkerStatus struct {
	worker.Status
	RestartPolicy string    `json:"restart_policy"`
	AutoRestarts  int       `json:"auto_restarts"`
	LastExit      string    `json:"last_exit,omitempty"`
	LastError     string    `json:"last_error,omitempty"`
	NextRestart   time.Time `json:"next_restart,omitzero"`
}

// Supervisor connects worker process events to the correlator. It forwards
// exits of the current worker, applies the restart policy and performs
// operator-requested restarts.
type Supervisor struct {
	proc   workerProcess
	link   workerLink
	policy config.RestartConfig
	obs    startObserver
	logger *slog.Logger
	now    func() time.Time

	// startMu serializes starts and exit handling so an exit is never
	// compared against a half-recorded pid.
	startMu sync.Mutex

	mu          sync.Mutex
	pid         int
	startedAt   time.Time
	bo          backoff.BackOff
	autoCount   int
	timer       *time.Timer
	timerID     uint64
	nextRestart time.Time
	lastExit    string
	lastError   string
	closed      bool
}

// NewSupervisor returns a Supervisor; call Start and Run to use it.
func NewSupervisor(opts SupervisorOptions) *Supervisor {
	logger := opts.Logger
	if logger == nil {
		logger = klog.Discard()
	}
	s := &Supervisor{
		proc:   opts.Process,
		link:   opts.Link,
		policy: opts.Restart,
		obs:    opts.Observer,
		logger: logger,
		now:    time.Now,
	}
	s.bo = s.newBackOff()
	return s
}

func (s *Supervisor) newBackOff() backoff.BackOff {
	initial, maxDelay := s.policy.Delays()
	eb := backoff.NewExponentialBackOff()
	eb.InitialInterval = initial
	eb.MaxInterval = maxDelay
	eb.MaxElapsedTime = 0
	eb.Reset()

	attempts := s.policy.MaxAttempts
	if attempts <= 0 {
		return &backoff.StopBackOff{}
	}
	return backoff.WithMaxRetries(eb, uint64(attempts))
}

// Start launches the first worker. Its error wraps worker.ErrStartup when
// prerequisites are missing.
func (s *Supervisor) Start(ctx context.Context) error {
	s.startMu.Lock()
	defer s.startMu.Unlock()
	return s.startLocked(ctx, false)
}

func (s *Supervisor) startLocked(ctx context.Context, restart bool) error {
	conn, err := s.proc.Start(ctx)
	if s.obs != nil {
		s.obs.ObserveWorkerStart(restart, err)
	}
	if err != nil {
		s.mu.Lock()
		s.lastError = err.Error()
		s.mu.Unlock()
		return err
	}

	s.mu.Lock()
	s.pid = conn.PID
	s.startedAt = s.now()
	s.lastError = ""
	s.mu.Unlock()

	s.link.Attach(conn)
	return nil
}

// Run consumes worker events until ctx is done.
func (s *Supervisor) Run(ctx context.Context) {
	events := s.proc.Events()
	for {
		select {
		case <-ctx.Done():
			return
		case ev := <-events:
			switch e := ev.(type) {
			case worker.Exited:
				s.handleExit(e)
			case worker.IOError:
				s.logger.Warn("worker pipe error", "pid", e.PID, "error", e.Err)
			}
		}
	}
}

func (s *Supervisor) handleExit(ev worker.Exited) {
	s.startMu.Lock()
	defer s.startMu.Unlock()

	s.mu.Lock()
	if s.pid == 0 || ev.PID != s.pid {
		s.mu.Unlock()
		s.logger.Debug("ignoring exit of replaced worker", "pid", ev.PID)
		return
	}
	s.pid = 0
	s.lastExit = ev.String()
	ranFor := s.now().Sub(s.startedAt)
	s.mu.Unlock()

	s.logger.Warn("worker terminated", "pid", ev.PID, "code", ev.Code, "signal", ev.Signal, "ran_for", ranFor)
	s.link.WorkerExited(errors.New(ev.String()))
	s.scheduleRestart(ranFor)
}

// scheduleRestart arms the backoff timer. Each timer carries an id so a
// superseded timer that fires late does nothing.
func (s *Supervisor) scheduleRestart(ranFor time.Duration) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return
	}
	if !s.policy.Enabled() {
		s.logger.Warn("worker is down; run `kicad-mcp restart-worker` to start it again")
		return
	}
	if ranFor >= stableAfter {
		s.bo = s.newBackOff()
		s.autoCount = 0
	}

	delay := s.bo.NextBackOff()
	if delay == backoff.Stop {
		s.logger.Error("worker restart attempts exhausted", "attempts", s.autoCount)
		return
	}

	if s.timer != nil {
		s.timer.Stop()
	}
	s.timerID++
	id := s.timerID
	s.nextRestart = s.now().Add(delay)
	s.timer = time.AfterFunc(delay, func() { s.autoRestart(id) })
	s.logger.Info("worker restart scheduled", "delay", delay)
}

func (s *Supervisor) autoRestart(id uint64) {
	s.startMu.Lock()
	defer s.startMu.Unlock()

	s.mu.Lock()
	if s.closed || id != s.timerID || s.pid != 0 {
		s.mu.Unlock()
		return
	}
	s.timer = nil
	s.nextRestart = time.Time{}
	s.autoCount++
	s.mu.Unlock()

	if err := s.startLocked(context.Background(), true); err != nil {
		s.logger.Error("worker restart failed", "error", err)
		s.scheduleRestart(0)
	}
}

// Restart stops the current worker, rejecting its outstanding requests, and
// starts a new one. It also resets the automatic restart budget.
func (s *Supervisor) Restart(ctx context.Context) error {
	s.startMu.Lock()
	defer s.startMu.Unlock()

	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return errors.New("supervisor closed")
	}
	s.cancelTimerLocked()
	s.bo = s.newBackOff()
	s.autoCount = 0
	s.pid = 0
	s.mu.Unlock()

	s.link.WorkerExited(errRestartRequested)
	if err := s.proc.Stop(); err != nil {
		return fmt.Errorf("stopping worker: %w", err)
	}
	return s.startLocked(ctx, true)
}

// Close cancels pending restarts and stops the worker.
func (s *Supervisor) Close() error {
	s.mu.Lock()
	s.closed = true
	s.cancelTimerLocked()
	s.pid = 0
	s.mu.Unlock()
	return s.proc.Stop()
}

func (s *Supervisor) cancelTimerLocked() {
	if s.timer != nil {
		s.timer.Stop()
		s.timer = nil
	}
	s.timerID++
	s.nextRestart = time.Time{}
}

// Status returns the worker snapshot with restart bookkeeping.
func (s *Supervisor) Status() WorkerStatus {
	st := WorkerStatus{Status: s.proc.Status()}

	s.mu.Lock()
	defer s.mu.Unlock()
	st.RestartPolicy = s.policy.Policy
	if st.RestartPolicy == "" {
		st.RestartPolicy = config.RestartPolicyNever
	}
	st.AutoRestarts = s.autoCount
	st.LastExit = s.lastExit
	st.LastError = s.lastError
	st.NextRestart = s.nextRestart
	return st
}

package daemon

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/lydakis/kicad-mcp/internal/config"
	"github.com/lydakis/kicad-mcp/internal/worker"
)

type fakeProcess struct {
	mu       sync.Mutex
	nextPID  int
	pid      int
	starts   int
	stops    int
	startErr error
	events   chan worker.Event
}

func newFakeProcess() *fakeProcess {
	return &fakeProcess{nextPID: 100, events: make(chan worker.Event, 8)}
}

func (p *fakeProcess) Start(context.Context) (worker.Conn, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.startErr != nil {
		return worker.Conn{}, p.startErr
	}
	p.starts++
	p.pid = p.nextPID
	p.nextPID++
	return worker.Conn{PID: p.pid}, nil
}

func (p *fakeProcess) Stop() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.stops++
	p.pid = 0
	return nil
}

func (p *fakeProcess) Status() worker.Status {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.pid == 0 {
		return worker.Status{State: worker.StateExited}
	}
	return worker.Status{State: worker.StateRunning, PID: p.pid}
}

func (p *fakeProcess) Events() <-chan worker.Event { return p.events }

func (p *fakeProcess) startCount() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.starts
}

type fakeLink struct {
	mu       sync.Mutex
	attached []int
	exits    []error
}

func (l *fakeLink) Attach(conn worker.Conn) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.attached = append(l.attached, conn.PID)
}

func (l *fakeLink) WorkerExited(cause error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.exits = append(l.exits, cause)
}

func (l *fakeLink) snapshot() ([]int, []error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	return append([]int(nil), l.attached...), append([]error(nil), l.exits...)
}

type recordingStarts struct {
	mu       sync.Mutex
	restarts []bool
}

func (r *recordingStarts) ObserveWorkerStart(restart bool, _ error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.restarts = append(r.restarts, restart)
}

func waitFor(t *testing.T, what string, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(3 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatalf("timed out waiting for %s", what)
}

func TestSupervisorStartAttachesWorker(t *testing.T) {
	proc, link, obs := newFakeProcess(), &fakeLink{}, &recordingStarts{}
	sup := NewSupervisor(SupervisorOptions{Process: proc, Link: link, Observer: obs})

	if err := sup.Start(context.Background()); err != nil {
		t.Fatalf("Start() error = %v", err)
	}
	attached, _ := link.snapshot()
	if len(attached) != 1 || attached[0] != 100 {
		t.Fatalf("attached = %v, want [100]", attached)
	}
	if len(obs.restarts) != 1 || obs.restarts[0] {
		t.Fatalf("observed starts = %v, want [false]", obs.restarts)
	}
	st := sup.Status()
	if st.PID != 100 || st.RestartPolicy != config.RestartPolicyNever {
		t.Fatalf("Status() = %+v, want pid 100 and policy never", st)
	}
}

func TestSupervisorStartFailureRecordsError(t *testing.T) {
	proc, link := newFakeProcess(), &fakeLink{}
	proc.startErr = worker.ErrStartup
	sup := NewSupervisor(SupervisorOptions{Process: proc, Link: link})

	if err := sup.Start(context.Background()); !errors.Is(err, worker.ErrStartup) {
		t.Fatalf("Start() error = %v, want ErrStartup", err)
	}
	if got := sup.Status().LastError; got == "" {
		t.Fatal("Status().LastError is empty after failed start")
	}
	if attached, _ := link.snapshot(); len(attached) != 0 {
		t.Fatalf("attached = %v, want none", attached)
	}
}

func TestSupervisorNeverPolicyLeavesWorkerDown(t *testing.T) {
	proc, link := newFakeProcess(), &fakeLink{}
	sup := NewSupervisor(SupervisorOptions{Process: proc, Link: link})
	if err := sup.Start(context.Background()); err != nil {
		t.Fatalf("Start() error = %v", err)
	}

	sup.handleExit(worker.Exited{PID: 100, Code: 1})

	_, exits := link.snapshot()
	if len(exits) != 1 || exits[0].Error() != "worker 100 exited with code 1" {
		t.Fatalf("exits = %v, want one exit cause", exits)
	}
	time.Sleep(20 * time.Millisecond)
	if got := proc.startCount(); got != 1 {
		t.Fatalf("starts = %d, want 1", got)
	}
	st := sup.Status()
	if st.LastExit != "worker 100 exited with code 1" || !st.NextRestart.IsZero() {
		t.Fatalf("Status() = %+v, want last exit and no pending restart", st)
	}
}

func TestSupervisorIgnoresExitOfReplacedWorker(t *testing.T) {
	proc, link := newFakeProcess(), &fakeLink{}
	sup := NewSupervisor(SupervisorOptions{Process: proc, Link: link})
	if err := sup.Start(context.Background()); err != nil {
		t.Fatalf("Start() error = %v", err)
	}
	if err := sup.Restart(context.Background()); err != nil {
		t.Fatalf("Restart() error = %v", err)
	}

	// The old worker's exit arrives after the replacement is attached.
	sup.handleExit(worker.Exited{PID: 100, Signal: "SIGTERM"})

	attached, exits := link.snapshot()
	if len(attached) != 2 || attached[1] != 101 {
		t.Fatalf("attached = %v, want [100 101]", attached)
	}
	if len(exits) != 1 || !errors.Is(exits[0], errRestartRequested) {
		t.Fatalf("exits = %v, want only the restart request", exits)
	}
	if got := sup.Status().PID; got != 101 {
		t.Fatalf("Status().PID = %d, want 101", got)
	}
}

func TestSupervisorBackoffRestartsCrashedWorker(t *testing.T) {
	proc, link, obs := newFakeProcess(), &fakeLink{}, &recordingStarts{}
	sup := NewSupervisor(SupervisorOptions{
		Process:  proc,
		Link:     link,
		Observer: obs,
		Restart: config.RestartConfig{
			Policy:       config.RestartPolicyBackoff,
			MaxAttempts:  1,
			InitialDelay: "5ms",
			MaxDelay:     "10ms",
		},
	})
	defer sup.Close()
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	if err := sup.Start(ctx); err != nil {
		t.Fatalf("Start() error = %v", err)
	}
	go sup.Run(ctx)

	proc.events <- worker.Exited{PID: 100, Code: 1}
	waitFor(t, "automatic restart", func() bool { return proc.startCount() == 2 })

	st := sup.Status()
	if st.PID != 101 || st.AutoRestarts != 1 {
		t.Fatalf("Status() = %+v, want pid 101 after one auto restart", st)
	}

	// The single attempt is spent; a second quick crash stays down.
	proc.events <- worker.Exited{PID: 101, Code: 1}
	waitFor(t, "exit forwarded", func() bool {
		_, exits := link.snapshot()
		return len(exits) == 2
	})
	time.Sleep(50 * time.Millisecond)
	if got := proc.startCount(); got != 2 {
		t.Fatalf("starts = %d, want 2 after attempts exhausted", got)
	}

	obs.mu.Lock()
	defer obs.mu.Unlock()
	if len(obs.restarts) != 2 || !obs.restarts[1] {
		t.Fatalf("observed starts = %v, want [false true]", obs.restarts)
	}
}

func TestSupervisorCloseCancelsPendingRestart(t *testing.T) {
	proc, link := newFakeProcess(), &fakeLink{}
	sup := NewSupervisor(SupervisorOptions{
		Process: proc,
		Link:    link,
		Restart: config.RestartConfig{
			Policy:       config.RestartPolicyBackoff,
			MaxAttempts:  3,
			InitialDelay: "100ms",
			MaxDelay:     "100ms",
		},
	})
	if err := sup.Start(context.Background()); err != nil {
		t.Fatalf("Start() error = %v", err)
	}
	sup.handleExit(worker.Exited{PID: 100, Code: 1})
	if sup.Status().NextRestart.IsZero() {
		t.Fatal("NextRestart is zero, want a scheduled restart")
	}

	if err := sup.Close(); err != nil {
		t.Fatalf("Close() error = %v", err)
	}
	time.Sleep(200 * time.Millisecond)
	if got := proc.startCount(); got != 1 {
		t.Fatalf("starts = %d, want 1 after Close", got)
	}
	if err := sup.Restart(context.Background()); err == nil {
		t.Fatal("Restart() after Close succeeded, want error")
	}
}

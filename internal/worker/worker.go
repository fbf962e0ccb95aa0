// Package worker owns the lifecycle of the KiCad scripting process: spawn,
// environment, stderr capture, exit notification and termination.
package worker

import (
	"errors"
	"fmt"
	"io"
	"time"
)

var (
	// ErrStartup reports that the worker could not be launched.
	ErrStartup = errors.New("worker startup failed")
	// ErrRunning is returned by Start when a worker is already running.
	ErrRunning = errors.New("worker already running")
	// ErrClosed is returned by Start after Close.
	ErrClosed = errors.New("worker manager closed")
)

// State is the lifecycle state of the managed process.
type State string

const (
	StateAbsent  State = "absent"
	StateRunning State = "running"
	StateExited  State = "exited"
)

// Conn is the byte-stream view of a running worker handed to the correlator.
type Conn struct {
	PID    int
	Stdin  io.Writer
	Stdout io.Reader
}

// Event is emitted on Manager.Events. It is one of Exited or IOError.
type Event interface {
	isEvent()
}

// Exited reports that the worker process terminated.
type Exited struct {
	PID    int
	Code   int
	Signal string
	Err    error
}

// IOError reports a failed read or write on the worker's stdio pipes.
type IOError struct {
	PID int
	Err error
}

func (Exited) isEvent()  {}
func (IOError) isEvent() {}

func (e Exited) String() string {
	if e.Signal != "" {
		return fmt.Sprintf("worker %d killed by %s", e.PID, e.Signal)
	}
	return fmt.Sprintf("worker %d exited with code %d", e.PID, e.Code)
}

// Status is a point-in-time snapshot of the managed process.
type Status struct {
	State      State     `json:"state"`
	PID        int       `json:"pid,omitempty"`
	StartedAt  time.Time `json:"started_at,omitzero"`
	ExitCode   *int      `json:"exit_code,omitempty"`
	Restarts   int       `json:"restarts"`
	StderrTail []string  `json:"stderr_tail,omitempty"`
}

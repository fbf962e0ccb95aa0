package dispatch

import (
	"errors"
	"fmt"
	"time"
)

var (
	// ErrWorkerUnavailable is returned when no worker is attached. The
	// request is never enqueued.
	ErrWorkerUnavailable = errors.New("KiCad worker is not running")
	// ErrTimeout matches every *TimeoutError.
	ErrTimeout = errors.New("command timed out")
	// ErrWorkerTerminated rejects requests that were queued or in flight
	// when the worker exited.
	ErrWorkerTerminated = errors.New("KiCad worker terminated before responding")
	// ErrWorkerIO reports a failed write to, or oversized read from, the worker.
	ErrWorkerIO = errors.New("worker I/O failure")
	// ErrClosed is returned once the correlator has been closed.
	ErrClosed = errors.New("dispatcher closed")
)

// TimeoutError reports which command exceeded its deadline.
type TimeoutError struct {
	Operation string
	After     time.Duration
}

func (e *TimeoutError) Error() string {
	return fmt.Sprintf("command %s timed out after %s", e.Operation, e.After)
}

func (e *TimeoutError) Is(target error) bool {
	return target == ErrTimeout
}

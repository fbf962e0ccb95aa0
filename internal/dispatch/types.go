package dispatch

import (
	"encoding/json"
	"fmt"
	"time"
)

// Response is the JSON object the worker wrote for one command. A worker
// reported failure (success=false) is still a Response, not an error.
type Response map[string]any

// Success reports the worker's success flag.
func (r Response) Success() bool {
	ok, _ := r["success"].(bool)
	return ok
}

// Message returns the worker's human-readable message, if any.
func (r Response) Message() string {
	msg, _ := r["message"].(string)
	return msg
}

// ErrorDetails returns the worker's errorDetails field rendered as text.
func (r Response) ErrorDetails() string {
	switch v := r["errorDetails"].(type) {
	case nil:
		return ""
	case string:
		return v
	default:
		b, err := json.Marshal(v)
		if err != nil {
			return fmt.Sprint(v)
		}
		return string(b)
	}
}

// Outcome classifies how a request was resolved.
type Outcome string

const (
	OutcomeSuccess     Outcome = "success"
	OutcomeFailure     Outcome = "worker_failure"
	OutcomeTimeout     Outcome = "timeout"
	OutcomeTerminated  Outcome = "terminated"
	OutcomeUnavailable Outcome = "unavailable"
	OutcomeIOError     Outcome = "io_error"
	OutcomeClosed      Outcome = "closed"
)

// Observation describes one resolved request.
type Observation struct {
	ID        string
	Operation string
	Outcome   Outcome
	// Enqueued is when Submit handed the request to the loop.
	Enqueued time.Time
	// QueueWait is zero for requests that never reached the worker.
	QueueWait time.Duration
	Duration  time.Duration
	Err       error
}

// Observer receives one Observation per request. It is called from the
// correlator's loop and must not block.
type Observer interface {
	ObserveCommand(Observation)
}

// State is the correlator's dispatch state.
type State string

const (
	StateDetached State = "detached"
	StateIdle     State = "idle"
	StateAwaiting State = "awaiting_response"
)

// Stats is a snapshot of the correlator for status reporting.
type Stats struct {
	State      State  `json:"state"`
	Generation uint64 `json:"generation"`
	QueueDepth int    `json:"queue_depth"`
	InFlight   string `json:"in_flight,omitempty"`
	Dispatched uint64 `json:"dispatched"`
	Completed  uint64 `json:"completed"`
	Failed     uint64 `json:"failed"`
	TimedOut   uint64 `json:"timed_out"`
	Terminated uint64 `json:"terminated"`
	Stray      uint64 `json:"stray_lines"`
}

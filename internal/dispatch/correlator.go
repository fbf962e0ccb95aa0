// Package dispatch serializes commands to the KiCad worker and matches each
// response line on its stdout to the request that produced it.
//
// All queue, buffer and state mutation happens on a single loop goroutine.
// Callers, the stdout reader, the stdin writer and timers talk to it over
// channels, so no locks guard the correlation state.
package dispatch

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"
	klog "github.com/lydakis/kicad-mcp/internal/log"
	"github.com/lydakis/kicad-mcp/internal/worker"
)

const (
	// DefaultTimeout bounds each in-flight command.
	DefaultTimeout = 30 * time.Second
	// DefaultMaxResponseBytes caps a single response line.
	DefaultMaxResponseBytes = 64 << 20

	readChunkSize  = 32 << 10
	writeQueueSize = 16
)

// Options configures a Correlator.
type Options struct {
	Timeout          time.Duration
	MaxResponseBytes int
	Logger           *slog.Logger
	Observer         Observer
}

type request struct {
	id         string
	op         string
	payload    []byte
	enqueued   time.Time
	dispatched time.Time
	result     chan result
}

type result struct {
	resp Response
	err  error
}

type chunk struct {
	gen  uint64
	data []byte
	err  error
}

type writeReq struct {
	seq     uint64
	payload []byte
}

type writeResult struct {
	gen uint64
	seq uint64
	err error
}

// Correlator is the request queue. The zero value is not usable; call New.
type Correlator struct {
	timeout  time.Duration
	maxBytes int
	logger   *slog.Logger
	observer Observer

	submitCh chan *request
	attachCh chan worker.Conn
	exitCh   chan error
	chunkCh  chan chunk
	writeCh  chan writeResult
	timerCh  chan uint64
	statsCh  chan chan Stats
	closeCh  chan struct{}
	done     chan struct{}

	closeOnce sync.Once
}

// New starts a Correlator with no worker attached.
func New(opts Options) *Correlator {
	if opts.Timeout <= 0 {
		opts.Timeout = DefaultTimeout
	}
	if opts.MaxResponseBytes <= 0 {
		opts.MaxResponseBytes = DefaultMaxResponseBytes
	}
	logger := opts.Logger
	if logger == nil {
		logger = klog.Discard()
	}

	c := &Correlator{
		timeout:  opts.Timeout,
		maxBytes: opts.MaxResponseBytes,
		logger:   logger,
		observer: opts.Observer,
		submitCh: make(chan *request),
		attachCh: make(chan worker.Conn),
		exitCh:   make(chan error),
		chunkCh:  make(chan chunk),
		writeCh:  make(chan writeResult),
		timerCh:  make(chan uint64),
		statsCh:  make(chan chan Stats),
		closeCh:  make(chan struct{}),
		done:     make(chan struct{}),
	}
	go c.loop()
	return c
}

// Attach hands a freshly started worker to the correlator. Any previously
// attached worker is treated as exited.
func (c *Correlator) Attach(conn worker.Conn) {
	select {
	case c.attachCh <- conn:
	case <-c.done:
	}
}

// WorkerExited rejects the in-flight request and every queued request with
// ErrWorkerTerminated and detaches the worker.
func (c *Correlator) WorkerExited(cause error) {
	select {
	case c.exitCh <- cause:
	case <-c.done:
	}
}

// Submit enqueues op and waits for its response. Returning early because
// ctx is done does not withdraw the request; it still runs in order and its
// result is discarded.
func (c *Correlator) Submit(ctx context.Context, op string, args map[string]any) (Response, error) {
	if args == nil {
		args = map[string]any{}
	}
	payload, err := json.Marshal(struct {
		Command string         `json:"command"`
		Params  map[string]any `json:"params"`
	}{op, args})
	if err != nil {
		return nil, fmt.Errorf("encoding %s params: %w", op, err)
	}

	req := &request{
		id:       uuid.NewString(),
		op:       op,
		payload:  append(payload, '\n'),
		enqueued: time.Now(),
		result:   make(chan result, 1),
	}

	select {
	case c.submitCh <- req:
	case <-c.done:
		return nil, ErrClosed
	case <-ctx.Done():
		return nil, ctx.Err()
	}

	select {
	case res := <-req.result:
		return res.resp, res.err
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

// Stats returns a snapshot of the queue.
func (c *Correlator) Stats() Stats {
	reply := make(chan Stats, 1)
	select {
	case c.statsCh <- reply:
		return <-reply
	case <-c.done:
		return Stats{State: StateDetached}
	}
}

// Close stops the loop. Pending requests are rejected with ErrClosed.
func (c *Correlator) Close() {
	c.closeOnce.Do(func() { close(c.closeCh) })
	<-c.done
}

// loopState is owned exclusively by loop.
type loopState struct {
	gen      uint64
	attached bool
	writes   chan writeReq
	queue    []*request
	inflight *request
	seq      uint64
	timer    *time.Timer
	buf      []byte
	skipping bool
	stats    Stats
}

func (c *Correlator) loop() {
	defer close(c.done)
	st := &loopState{}

	for {
		if st.inflight == nil && len(st.queue) > 0 {
			c.dispatch(st)
			continue
		}

		select {
		case req := <-c.submitCh:
			if !st.attached {
				c.resolve(req, result{err: ErrWorkerUnavailable}, OutcomeUnavailable)
				continue
			}
			st.queue = append(st.queue, req)

		case conn := <-c.attachCh:
			if st.attached {
				c.detach(st, fmt.Errorf("%w: replaced by a new worker", ErrWorkerTerminated))
			}
			c.attach(st, conn)

		case cause := <-c.exitCh:
			if !st.attached {
				continue
			}
			err := ErrWorkerTerminated
			if cause != nil {
				err = fmt.Errorf("%w: %v", ErrWorkerTerminated, cause)
			}
			c.detach(st, err)

		case ch := <-c.chunkCh:
			if ch.gen != st.gen || !st.attached {
				continue
			}
			if ch.err != nil {
				if ch.err != io.EOF {
					c.logger.Warn("worker stdout read failed", "error", ch.err)
				}
				continue
			}
			c.consume(st, ch.data)

		case wr := <-c.writeCh:
			if wr.err == nil || wr.gen != st.gen {
				continue
			}
			if st.inflight != nil && wr.seq == st.seq {
				c.fail(st, fmt.Errorf("%w: %w", ErrWorkerIO, wr.err), OutcomeIOError)
			} else {
				c.logger.Warn("write to worker failed after request settled", "error", wr.err)
			}

		case seq := <-c.timerCh:
			if st.inflight == nil || seq != st.seq {
				continue
			}
			req := st.inflight
			c.logger.Warn("command timed out",
				"id", req.id, "operation", req.op, "timeout", c.timeout, "buffered_bytes", len(st.buf))
			st.stats.TimedOut++
			c.fail(st, &TimeoutError{Operation: req.op, After: c.timeout}, OutcomeTimeout)

		case reply := <-c.statsCh:
			reply <- c.snapshot(st)

		case <-c.closeCh:
			c.shutdown(st)
			return
		}
	}
}

func (c *Correlator) attach(st *loopState, conn worker.Conn) {
	st.gen++
	st.attached = true
	st.buf = nil
	st.skipping = false
	st.writes = make(chan writeReq, writeQueueSize)
	gen := st.gen

	go c.readLoop(gen, conn.Stdout)
	go c.writeLoop(gen, conn.Stdin, st.writes)
	c.logger.Info("worker attached", "generation", gen)
}

// detach rejects all outstanding work with err and forgets the worker.
func (c *Correlator) detach(st *loopState, err error) {
	c.stopTimer(st)
	if st.inflight != nil {
		req := st.inflight
		st.inflight = nil
		st.stats.Terminated++
		c.resolve(req, result{err: err}, OutcomeTerminated)
	}
	for _, req := range st.queue {
		st.stats.Terminated++
		c.resolve(req, result{err: err}, OutcomeTerminated)
	}
	st.queue = nil
	st.buf = nil
	st.skipping = false
	if st.writes != nil {
		close(st.writes)
		st.writes = nil
	}
	st.attached = false
	c.logger.Info("worker detached", "generation", st.gen, "reason", err)
}

func (c *Correlator) shutdown(st *loopState) {
	c.stopTimer(st)
	if st.inflight != nil {
		c.resolve(st.inflight, result{err: ErrClosed}, OutcomeClosed)
		st.inflight = nil
	}
	for _, req := range st.queue {
		c.resolve(req, result{err: ErrClosed}, OutcomeClosed)
	}
	st.queue = nil
	if st.writes != nil {
		close(st.writes)
		st.writes = nil
	}
	st.attached = false
}

func (c *Correlator) dispatch(st *loopState) {
	req := st.queue[0]
	st.queue[0] = nil
	st.queue = st.queue[1:]

	st.buf = st.buf[:0]
	st.seq++
	seq := st.seq
	st.inflight = req
	req.dispatched = time.Now()
	st.stats.Dispatched++

	c.logger.Debug("dispatching command",
		"id", req.id, "operation", req.op, "queue_wait", req.dispatched.Sub(req.enqueued))

	select {
	case st.writes <- writeReq{seq: seq, payload: req.payload}:
	default:
		c.fail(st, fmt.Errorf("%w: worker stdin is not draining", ErrWorkerIO), OutcomeIOError)
		return
	}

	st.timer = time.AfterFunc(c.timeout, func() {
		select {
		case c.timerCh <- seq:
		case <-c.done:
		}
	})
}

// consume appends worker output and completes the in-flight request on the
// first complete line that parses as a JSON object.
func (c *Correlator) consume(st *loopState, data []byte) {
	if st.skipping {
		i := bytes.IndexByte(data, '\n')
		if i < 0 {
			return
		}
		st.skipping = false
		data = data[i+1:]
	}

	if st.inflight == nil {
		if len(bytes.TrimSpace(data)) > 0 {
			st.stats.Stray++
			c.logger.Warn("discarding worker output with no request in flight",
				"bytes", len(data), "output", truncate(bytes.TrimSpace(data), 200))
			// The rest of an unterminated line belongs to the discarded output.
			if i := bytes.LastIndexByte(data, '\n'); len(bytes.TrimSpace(data[i+1:])) > 0 {
				st.skipping = true
			}
		}
		return
	}
	st.buf = append(st.buf, data...)

	for {
		i := bytes.IndexByte(st.buf, '\n')
		if i < 0 {
			break
		}
		line := bytes.TrimSpace(st.buf[:i])
		rest := st.buf[i+1:]

		if len(line) == 0 {
			st.buf = rest
			continue
		}
		resp, err := decodeResponse(line)
		if err != nil {
			st.stats.Stray++
			c.logger.Warn("skipping non-JSON worker output", "operation", st.inflight.op, "line", truncate(line, 200))
			st.buf = rest
			continue
		}

		if len(bytes.TrimSpace(rest)) > 0 {
			st.stats.Stray++
			c.logger.Warn("discarding worker output after response", "bytes", len(rest))
		}
		c.complete(st, resp)
		return
	}

	if len(st.buf) > c.maxBytes {
		st.skipping = true
		c.fail(st, fmt.Errorf("%w: response exceeds %d bytes", ErrWorkerIO, c.maxBytes), OutcomeIOError)
	}
}

func (c *Correlator) complete(st *loopState, resp Response) {
	req := st.inflight
	c.stopTimer(st)
	st.inflight = nil
	st.buf = st.buf[:0]

	outcome := OutcomeSuccess
	if resp.Success() {
		st.stats.Completed++
	} else {
		outcome = OutcomeFailure
		st.stats.Failed++
	}
	c.logger.Debug("command completed",
		"id", req.id, "operation", req.op, "success", resp.Success(), "duration", time.Since(req.dispatched))
	c.resolve(req, result{resp: resp}, outcome)
}

// fail rejects the in-flight request and returns to idle. The buffer is
// cleared, and a partially received line is skipped up to its newline, so
// the remainder of a failed response cannot complete the next request.
func (c *Correlator) fail(st *loopState, err error, outcome Outcome) {
	req := st.inflight
	if req == nil {
		return
	}
	c.stopTimer(st)
	st.inflight = nil
	if len(bytes.TrimSpace(st.buf)) > 0 {
		st.skipping = true
	}
	st.buf = st.buf[:0]
	c.resolve(req, result{err: err}, outcome)
}

// resolve notifies the observer before delivering, so an observation is
// recorded by the time Submit returns.
func (c *Correlator) resolve(req *request, res result, outcome Outcome) {
	defer func() { req.result <- res }()

	if c.observer == nil {
		return
	}
	obs := Observation{
		ID:        req.id,
		Operation: req.op,
		Outcome:   outcome,
		Enqueued:  req.enqueued,
		Duration:  time.Since(req.enqueued),
		Err:       res.err,
	}
	if !req.dispatched.IsZero() {
		obs.QueueWait = req.dispatched.Sub(req.enqueued)
	}
	c.observer.ObserveCommand(obs)
}

func (c *Correlator) stopTimer(st *loopState) {
	if st.timer != nil {
		st.timer.Stop()
		st.timer = nil
	}
}

func (c *Correlator) snapshot(st *loopState) Stats {
	s := st.stats
	s.Generation = st.gen
	s.QueueDepth = len(st.queue)
	switch {
	case !st.attached:
		s.State = StateDetached
	case st.inflight != nil:
		s.State = StateAwaiting
		s.InFlight = st.inflight.op
	default:
		s.State = StateIdle
	}
	return s
}

func (c *Correlator) readLoop(gen uint64, r io.Reader) {
	buf := make([]byte, readChunkSize)
	for {
		n, err := r.Read(buf)
		if n > 0 {
			data := append([]byte(nil), buf[:n]...)
			select {
			case c.chunkCh <- chunk{gen: gen, data: data}:
			case <-c.done:
				return
			}
		}
		if err != nil {
			select {
			case c.chunkCh <- chunk{gen: gen, err: err}:
			case <-c.done:
			}
			return
		}
	}
}

func (c *Correlator) writeLoop(gen uint64, w io.Writer, writes <-chan writeReq) {
	for wr := range writes {
		_, err := w.Write(wr.payload)
		if err == nil {
			continue
		}
		select {
		case c.writeCh <- writeResult{gen: gen, seq: wr.seq, err: err}:
		case <-c.done:
			return
		}
	}
}

func decodeResponse(line []byte) (Response, error) {
	if line[0] != '{' {
		return nil, errors.New("not a JSON object")
	}
	dec := json.NewDecoder(bytes.NewReader(line))
	dec.UseNumber()
	var resp Response
	if err := dec.Decode(&resp); err != nil {
		return nil, err
	}
	if err := dec.Decode(new(json.RawMessage)); err != io.EOF {
		return nil, errors.New("trailing data after JSON object")
	}
	return resp, nil
}

func truncate(b []byte, n int) string {
	if len(b) <= n {
		return string(b)
	}
	return string(b[:n]) + "..."
}

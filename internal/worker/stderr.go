package worker

import (
	"bufio"
	"context"
	"io"
	"log/slog"
	"strings"
	"sync"
)

const stderrTailLines = 64

// tailRing keeps the last N lines written by the worker on stderr.
type tailRing struct {
	mu    sync.Mutex
	lines []string
	next  int
	full  bool
}

func newTailRing(n int) *tailRing {
	return &tailRing{lines: make([]string, n)}
}

func (r *tailRing) add(line string) {
	r.mu.Lock()
	r.lines[r.next] = line
	r.next = (r.next + 1) % len(r.lines)
	if r.next == 0 {
		r.full = true
	}
	r.mu.Unlock()
}

func (r *tailRing) snapshot() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	if !r.full {
		return append([]string(nil), r.lines[:r.next]...)
	}
	out := make([]string, 0, len(r.lines))
	out = append(out, r.lines[r.next:]...)
	return append(out, r.lines[:r.next]...)
}

// pumpStderr logs every stderr line and records it in the ring. It never
// feeds response correlation.
func pumpStderr(r io.Reader, ring *tailRing, logger *slog.Logger) {
	sc := bufio.NewScanner(r)
	sc.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	for sc.Scan() {
		line := sc.Text()
		if strings.TrimSpace(line) == "" {
			continue
		}
		ring.add(line)
		logger.Log(context.Background(), stderrLevel(line), line, "stream", "stderr")
	}
}

// stderrLevel maps Python logging output ("... - ERROR - msg") to a slog level.
func stderrLevel(line string) slog.Level {
	switch {
	case strings.Contains(line, " - ERROR - "), strings.Contains(line, " - CRITICAL - "),
		strings.Contains(line, " - WARNING - "), strings.HasPrefix(line, "Traceback"):
		return slog.LevelWarn
	case strings.Contains(line, " - DEBUG - "):
		return slog.LevelDebug
	default:
		return slog.LevelInfo
	}
}

package ipc

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net"
	"os"
	"sync"
	"time"
)

// ErrInUse is returned by Start when another server answers on the socket.
var ErrInUse = errors.New("control socket in use")

// Handler processes an IPC request and returns a response.
type Handler func(ctx context.Context, req *Request) *Response

var peerUIDMatchesCurrentUserFn = peerUIDMatchesCurrentUser

// Server listens for control connections on a Unix socket.
type Server struct {
	socketPath string
	nonce      string
	handler    Handler
	listener   net.Listener
	wg         sync.WaitGroup
}

// NewServer creates a new IPC server.
func NewServer(socketPath, nonce string, handler Handler) *Server {
	return &Server{
		socketPath: socketPath,
		nonce:      nonce,
		handler:    handler,
	}
}

// Start begins listening. A socket file nobody answers on is treated as
// stale and replaced; a live one yields ErrInUse.
func (s *Server) Start() error {
	if isListening(s.socketPath) {
		return fmt.Errorf("%w: %s", ErrInUse, s.socketPath)
	}
	_ = os.Remove(s.socketPath)

	ln, err := net.Listen("unix", s.socketPath)
	if err != nil {
		return fmt.Errorf("listening on %s: %w", s.socketPath, err)
	}
	if err := os.Chmod(s.socketPath, 0600); err != nil {
		ln.Close()
		os.Remove(s.socketPath)
		return fmt.Errorf("setting socket permissions: %w", err)
	}
	s.listener = ln

	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		s.acceptLoop()
	}()
	return nil
}

// Stop closes the listener and waits for in-flight connections.
func (s *Server) Stop() {
	if s.listener != nil {
		s.listener.Close()
	}
	s.wg.Wait()
	os.Remove(s.socketPath)
}

func (s *Server) acceptLoop() {
	for {
		conn, err := s.listener.Accept()
		if err != nil {
			return
		}
		s.wg.Add(1)
		go func() {
			defer s.wg.Done()
			defer conn.Close()
			s.handleConn(conn)
		}()
	}
}

func (s *Server) handleConn(conn net.Conn) {
	ok, err := peerUIDMatchesCurrentUserFn(conn)
	if err != nil {
		writeResponse(conn, &Response{ExitCode: ExitInternal, Stderr: "peer uid check failed"})
		return
	}
	if !ok {
		writeResponse(conn, &Response{ExitCode: ExitInternal, Stderr: "peer uid mismatch"})
		return
	}

	var req Request
	if err := json.NewDecoder(conn).Decode(&req); err != nil {
		writeResponse(conn, &Response{ExitCode: ExitUsageErr, Stderr: "invalid request"})
		return
	}
	if req.Nonce != s.nonce {
		writeResponse(conn, &Response{ExitCode: ExitInternal, Stderr: "nonce mismatch"})
		return
	}

	// Any read result means the client went away.
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	done := make(chan struct{})
	go func() {
		defer close(done)
		var buf [1]byte
		_, _ = conn.Read(buf[:])
		cancel()
	}()

	resp := s.handler(ctx, &req)
	_ = conn.SetReadDeadline(time.Now())
	<-done
	_ = conn.SetReadDeadline(time.Time{})
	writeResponse(conn, resp)
}

func writeResponse(conn net.Conn, resp *Response) {
	_ = json.NewEncoder(conn).Encode(resp)
}

func isListening(socketPath string) bool {
	conn, err := net.DialTimeout("unix", socketPath, 200*time.Millisecond)
	if err != nil {
		return false
	}
	_ = conn.Close()
	return true
}

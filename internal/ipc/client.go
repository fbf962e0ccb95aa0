package ipc

import (
	"context"
	"encoding/json"
	"fmt"
	"net"
)

// Client sends requests to a running server over its control socket.
type Client struct {
	socketPath string
	nonce      string
}

// NewClient creates a new IPC client.
func NewClient(socketPath, nonce string) *Client {
	return &Client{socketPath: socketPath, nonce: nonce}
}

// Send sends a request and returns the response. Cancelling ctx closes the
// connection, which the server observes as a disconnect.
func (c *Client) Send(ctx context.Context, req *Request) (*Response, error) {
	req.Nonce = c.nonce

	var d net.Dialer
	conn, err := d.DialContext(ctx, "unix", c.socketPath)
	if err != nil {
		return nil, fmt.Errorf("connecting to kicad-mcp server: %w", err)
	}
	defer conn.Close()

	stop := context.AfterFunc(ctx, func() { _ = conn.Close() })
	defer stop()

	if err := json.NewEncoder(conn).Encode(req); err != nil {
		return nil, fmt.Errorf("sending request: %w", err)
	}

	var resp Response
	if err := json.NewDecoder(conn).Decode(&resp); err != nil {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		return nil, fmt.Errorf("reading response: %w", err)
	}
	return &resp, nil
}

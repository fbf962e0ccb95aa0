package ipc

import (
	"crypto/rand"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
)

// ErrNotRunning means no server state file was found.
var ErrNotRunning = errors.New("kicad-mcp server is not running")

// State is written by a serving process so CLI commands can find and
// authenticate to its control socket.
type State struct {
	PID    int    `json:"pid"`
	Socket string `json:"socket"`
	Nonce  string `json:"nonce"`
}

// NewNonce returns 16 random bytes, hex encoded.
func NewNonce() (string, error) {
	b := make([]byte, 16)
	if _, err := rand.Read(b); err != nil {
		return "", fmt.Errorf("generating nonce: %w", err)
	}
	return hex.EncodeToString(b), nil
}

// WriteState stores st at path with owner-only permissions.
func WriteState(path string, st State) error {
	if err := os.MkdirAll(filepath.Dir(path), 0700); err != nil {
		return err
	}
	data, err := json.Marshal(st)
	if err != nil {
		return err
	}
	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, data, 0600); err != nil {
		return err
	}
	if err := os.Rename(tmp, path); err != nil {
		os.Remove(tmp)
		return err
	}
	return nil
}

// ReadState loads the state file at path.
func ReadState(path string) (State, error) {
	data, err := os.ReadFile(path)
	if errors.Is(err, os.ErrNotExist) {
		return State{}, ErrNotRunning
	}
	if err != nil {
		return State{}, fmt.Errorf("reading %s: %w", path, err)
	}
	var st State
	if err := json.Unmarshal(data, &st); err != nil {
		return State{}, fmt.Errorf("parsing %s: %w", path, err)
	}
	if st.Socket == "" || st.Nonce == "" {
		return State{}, fmt.Errorf("parsing %s: missing socket or nonce", path)
	}
	return st, nil
}

// RemoveState deletes the state file if it still belongs to pid.
func RemoveState(path string, pid int) {
	st, err := ReadState(path)
	if err == nil && st.PID != pid {
		return
	}
	_ = os.Remove(path)
}

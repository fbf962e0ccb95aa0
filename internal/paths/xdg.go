package paths

import (
	"os"
	"path/filepath"
)

const appName = "kicad-mcp"

func homeDir() string {
	if h := os.Getenv("HOME"); h != "" {
		return h
	}
	h, _ := os.UserHomeDir()
	return h
}

func xdgDir(envVar, fallbackSuffix string) string {
	if v := os.Getenv(envVar); v != "" {
		return filepath.Join(v, appName)
	}
	return filepath.Join(homeDir(), fallbackSuffix, appName)
}

// ConfigDir returns the config directory ($XDG_CONFIG_HOME/kicad-mcp).
func ConfigDir() string {
	return xdgDir("XDG_CONFIG_HOME", ".config")
}

// StateDir returns the state directory ($XDG_STATE_HOME/kicad-mcp).
func StateDir() string {
	return xdgDir("XDG_STATE_HOME", filepath.Join(".local", "state"))
}

// RuntimeDir returns the runtime directory for the control socket and nonce.
// Falls back to $XDG_STATE_HOME/kicad-mcp if XDG_RUNTIME_DIR is unset.
func RuntimeDir() string {
	if v := os.Getenv("XDG_RUNTIME_DIR"); v != "" {
		return filepath.Join(v, appName)
	}
	return StateDir()
}

// ConfigFile returns the path to config.toml.
func ConfigFile() string {
	return filepath.Join(ConfigDir(), "config.toml")
}

// LogFile returns the default log file path.
func LogFile() string {
	return filepath.Join(StateDir(), appName+".log")
}

// SocketPath returns the path to the control Unix socket.
func SocketPath() string {
	return filepath.Join(RuntimeDir(), "control.sock")
}

// StatePath returns the path to the control state file (contains nonce).
func StatePath() string {
	return filepath.Join(RuntimeDir(), "control.state")
}

// EnsureDir creates a directory and parents if needed.
func EnsureDir(dir string) error {
	return os.MkdirAll(dir, 0700)
}

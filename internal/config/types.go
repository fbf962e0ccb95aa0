package config

import "time"

// Defaults applied when the corresponding config value is empty.
const (
	DefaultPython       = "python3"
	DefaultTimeout      = 30 * time.Second
	DefaultStopGrace    = 3 * time.Second
	DefaultLogLevel     = "info"
	RestartPolicyNever  = "never"
	RestartPolicyBackoff = "backoff"
)

// Config is the top-level kicad-mcp configuration.
type Config struct {
	LogLevel  string          `toml:"log_level"`
	LogFile   string          `toml:"log_file"`
	Worker    WorkerConfig    `toml:"worker"`
	Resources ResourceConfig  `toml:"resources"`
	Telemetry TelemetryConfig `toml:"telemetry"`
}

// WorkerConfig describes how to launch the KiCad scripting worker.
type WorkerConfig struct {
	Python     string            `toml:"python"`
	PythonArgs []string          `toml:"python_args"`
	Script     string            `toml:"script"`
	PythonPath []string          `toml:"python_path"`
	Env        map[string]string `toml:"env"`
	Timeout    string            `toml:"timeout"`
	StopGrace  string            `toml:"stop_grace"`
	Restart    RestartConfig     `toml:"restart"`
}

// RestartConfig controls what happens after the worker exits.
type RestartConfig struct {
	Policy       string `toml:"policy"`
	MaxAttempts  int    `toml:"max_attempts"`
	InitialDelay string `toml:"initial_delay"`
	MaxDelay     string `toml:"max_delay"`
}

// ResourceConfig holds resource read settings.
type ResourceConfig struct {
	CacheTTL string `toml:"cache_ttl"`
}

// TelemetryConfig holds OpenTelemetry export settings.
type TelemetryConfig struct {
	OTLPEndpoint string `toml:"otlp_endpoint"`
	Insecure     bool   `toml:"insecure"`
}

// CommandTimeout returns the per-command timeout, falling back to DefaultTimeout.
func (w WorkerConfig) CommandTimeout() time.Duration {
	return durationOr(w.Timeout, DefaultTimeout)
}

// StopGracePeriod returns the SIGTERM-to-SIGKILL grace period.
func (w WorkerConfig) StopGracePeriod() time.Duration {
	return durationOr(w.StopGrace, DefaultStopGrace)
}

// Enabled reports whether automatic respawn is configured.
func (r RestartConfig) Enabled() bool {
	return r.Policy == RestartPolicyBackoff
}

// Delays returns the initial and maximum restart delays.
func (r RestartConfig) Delays() (time.Duration, time.Duration) {
	return durationOr(r.InitialDelay, 500*time.Millisecond), durationOr(r.MaxDelay, 30*time.Second)
}

// TTL returns the resource cache TTL. Zero disables caching.
func (r ResourceConfig) TTL() time.Duration {
	return durationOr(r.CacheTTL, 0)
}

func durationOr(raw string, fallback time.Duration) time.Duration {
	if raw == "" {
		return fallback
	}
	d, err := time.ParseDuration(raw)
	if err != nil || d < 0 {
		return fallback
	}
	return d
}

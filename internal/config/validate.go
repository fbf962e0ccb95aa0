package config

import (
	"errors"
	"fmt"
	"log/slog"
	"path/filepath"
	"strings"
	"time"
)

// Validate checks configuration invariants and returns actionable errors.
func Validate(cfg *Config) error {
	if cfg == nil {
		return nil
	}

	var errs []error
	if cfg.LogLevel != "" {
		var lvl slog.Level
		if err := lvl.UnmarshalText([]byte(cfg.LogLevel)); err != nil {
			errs = append(errs, fmt.Errorf("log_level: invalid level %q (want debug, info, warn or error)", cfg.LogLevel))
		}
	}
	errs = append(errs, validateWorker(cfg.Worker)...)
	errs = append(errs, validateDuration("resources.cache_ttl", cfg.Resources.CacheTTL, true))

	if ep := strings.TrimSpace(cfg.Telemetry.OTLPEndpoint); ep != "" && strings.Contains(ep, "://") {
		errs = append(errs, fmt.Errorf("telemetry.otlp_endpoint: want host:port, got URL %q", ep))
	}

	return errors.Join(errs...)
}

// ValidateForCurrentEnv checks config invariants after expanding ${ENV_VAR}
// placeholders against the current process environment.
func ValidateForCurrentEnv(cfg *Config) error {
	if cfg == nil {
		return nil
	}

	expanded := cloneConfig(cfg)
	expandConfigEnvVars(expanded)
	return Validate(expanded)
}

func cloneConfig(cfg *Config) *Config {
	if cfg == nil {
		return nil
	}

	cloned := *cfg
	cloned.Worker.PythonArgs = append([]string(nil), cfg.Worker.PythonArgs...)
	cloned.Worker.PythonPath = append([]string(nil), cfg.Worker.PythonPath...)
	cloned.Worker.Env = cloneStringMap(cfg.Worker.Env)
	return &cloned
}

func cloneStringMap(in map[string]string) map[string]string {
	if in == nil {
		return nil
	}
	out := make(map[string]string, len(in))
	for k, v := range in {
		out[k] = v
	}
	return out
}

func validateWorker(w WorkerConfig) []error {
	var errs []error

	if strings.TrimSpace(w.Script) == "" {
		errs = append(errs, errors.New("worker.script: required, set the path to kicad_interface.py"))
	} else if !filepath.IsAbs(w.Script) && !strings.Contains(w.Script, "${") {
		errs = append(errs, fmt.Errorf("worker.script: must be an absolute path, got %q", w.Script))
	}

	if strings.TrimSpace(w.Python) == "" {
		errs = append(errs, errors.New("worker.python: must not be empty"))
	}

	for k := range w.Env {
		if k == "" || strings.ContainsAny(k, "=\x00") {
			errs = append(errs, fmt.Errorf("worker.env: invalid variable name %q", k))
		}
	}

	errs = append(errs,
		validateDuration("worker.timeout", w.Timeout, false),
		validateDuration("worker.stop_grace", w.StopGrace, false),
	)

	r := w.Restart
	switch r.Policy {
	case "", RestartPolicyNever, RestartPolicyBackoff:
	default:
		errs = append(errs, fmt.Errorf("worker.restart.policy: unknown policy %q (want %q or %q)", r.Policy, RestartPolicyNever, RestartPolicyBackoff))
	}
	if r.MaxAttempts < 0 {
		errs = append(errs, fmt.Errorf("worker.restart.max_attempts: must be >= 0, got %d", r.MaxAttempts))
	}
	errs = append(errs,
		validateDuration("worker.restart.initial_delay", r.InitialDelay, false),
		validateDuration("worker.restart.max_delay", r.MaxDelay, false),
	)

	return errs
}

// validateDuration returns nil for empty values. allowZero permits "0s".
func validateDuration(field, raw string, allowZero bool) error {
	if raw == "" {
		return nil
	}
	d, err := time.ParseDuration(raw)
	if err != nil {
		return fmt.Errorf("%s: invalid duration %q: %w", field, raw, err)
	}
	if d < 0 || (d == 0 && !allowZero) {
		return fmt.Errorf("%s: must be > 0, got %q", field, raw)
	}
	return nil
}

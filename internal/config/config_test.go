package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestLoadFromExpandsEnvValuesAfterParsing(t *testing.T) {
	t.Setenv("KICAD_HOME", "/opt/kicad")
	t.Setenv("KICAD_TOKEN", `abc"def`)

	path := filepath.Join(t.TempDir(), "config.toml")
	const raw = `
[worker]
script = "${KICAD_HOME}/python/kicad_interface.py"
python_path = ["${KICAD_HOME}/lib/python3/dist-packages"]
env = { KICAD_TOKEN = "${KICAD_TOKEN}", UNSET = "${KICAD_MCP_UNSET_VAR}" }
`
	if err := os.WriteFile(path, []byte(raw), 0600); err != nil {
		t.Fatalf("writing config: %v", err)
	}

	cfg, err := LoadFrom(path)
	if err != nil {
		t.Fatalf("LoadFrom() error = %v", err)
	}

	if got, want := cfg.Worker.Script, "/opt/kicad/python/kicad_interface.py"; got != want {
		t.Fatalf("worker.script = %q, want %q", got, want)
	}
	if got, want := cfg.Worker.PythonPath[0], "/opt/kicad/lib/python3/dist-packages"; got != want {
		t.Fatalf("worker.python_path[0] = %q, want %q", got, want)
	}
	if got, want := cfg.Worker.Env["KICAD_TOKEN"], `abc"def`; got != want {
		t.Fatalf("worker.env.KICAD_TOKEN = %q, want %q", got, want)
	}
	if got, want := cfg.Worker.Env["UNSET"], "${KICAD_MCP_UNSET_VAR}"; got != want {
		t.Fatalf("worker.env.UNSET = %q, want unresolved placeholder %q", got, want)
	}
}

func TestLoadFromMissingFileReturnsDefaults(t *testing.T) {
	cfg, err := LoadFrom(filepath.Join(t.TempDir(), "missing.toml"))
	if err != nil {
		t.Fatalf("LoadFrom() error = %v", err)
	}
	if cfg.Worker.Python != DefaultPython {
		t.Fatalf("worker.python = %q, want %q", cfg.Worker.Python, DefaultPython)
	}
	if cfg.Worker.Restart.Policy != RestartPolicyNever {
		t.Fatalf("worker.restart.policy = %q, want %q", cfg.Worker.Restart.Policy, RestartPolicyNever)
	}
	if cfg.LogLevel != DefaultLogLevel {
		t.Fatalf("log_level = %q, want %q", cfg.LogLevel, DefaultLogLevel)
	}
	if got := cfg.Worker.CommandTimeout(); got != DefaultTimeout {
		t.Fatalf("CommandTimeout() = %v, want %v", got, DefaultTimeout)
	}
}

func TestLoadFromRejectsMalformedTOML(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.toml")
	if err := os.WriteFile(path, []byte("[worker\nscript = "), 0600); err != nil {
		t.Fatalf("writing config: %v", err)
	}
	if _, err := LoadFrom(path); err == nil {
		t.Fatal("LoadFrom() error = nil, want parse error")
	}
}

func TestLoadForEditFromKeepsPlaceholders(t *testing.T) {
	t.Setenv("KICAD_HOME", "/opt/kicad")

	path := filepath.Join(t.TempDir(), "config.toml")
	const raw = `
[worker]
script = "${KICAD_HOME}/kicad_interface.py"
`
	if err := os.WriteFile(path, []byte(raw), 0600); err != nil {
		t.Fatalf("writing config: %v", err)
	}

	cfg, err := LoadForEditFrom(path)
	if err != nil {
		t.Fatalf("LoadForEditFrom() error = %v", err)
	}
	if got, want := cfg.Worker.Script, "${KICAD_HOME}/kicad_interface.py"; got != want {
		t.Fatalf("worker.script = %q, want %q", got, want)
	}
}

func TestDurationAccessors(t *testing.T) {
	w := WorkerConfig{Timeout: "5s", StopGrace: "bogus"}
	if got := w.CommandTimeout(); got != 5*time.Second {
		t.Fatalf("CommandTimeout() = %v, want 5s", got)
	}
	if got := w.StopGracePeriod(); got != DefaultStopGrace {
		t.Fatalf("StopGracePeriod() = %v, want default %v", got, DefaultStopGrace)
	}

	r := RestartConfig{Policy: RestartPolicyBackoff, InitialDelay: "1s"}
	if !r.Enabled() {
		t.Fatal("Enabled() = false, want true for backoff policy")
	}
	initial, max := r.Delays()
	if initial != time.Second || max != 30*time.Second {
		t.Fatalf("Delays() = (%v, %v), want (1s, 30s)", initial, max)
	}

	if got := (ResourceConfig{}).TTL(); got != 0 {
		t.Fatalf("TTL() = %v, want 0 (disabled)", got)
	}
}

func TestSaveToRoundTripsConfig(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "config.toml")
	cfg := &Config{
		LogLevel: "debug",
		Worker: WorkerConfig{
			Python:  "python3",
			Script:  "/opt/kicad-mcp/kicad_interface.py",
			Timeout: "45s",
			Restart: RestartConfig{Policy: RestartPolicyBackoff, MaxAttempts: 3},
		},
	}

	if err := SaveTo(path, cfg); err != nil {
		t.Fatalf("SaveTo() error = %v", err)
	}

	info, err := os.Stat(path)
	if err != nil {
		t.Fatalf("stat saved config: %v", err)
	}
	if perm := info.Mode().Perm(); perm != 0o600 {
		t.Fatalf("config perms = %o, want 600", perm)
	}

	loaded, err := LoadFrom(path)
	if err != nil {
		t.Fatalf("LoadFrom() error = %v", err)
	}
	if loaded.Worker.Script != cfg.Worker.Script || loaded.Worker.Restart.MaxAttempts != 3 {
		t.Fatalf("loaded worker = %+v, want %+v", loaded.Worker, cfg.Worker)
	}
}

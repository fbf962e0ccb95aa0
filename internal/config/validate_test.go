package config

import (
	"strings"
	"testing"
)

func validConfig() *Config {
	return &Config{
		LogLevel: "info",
		Worker: WorkerConfig{
			Python:    "python3",
			Script:    "/opt/kicad-mcp/python/kicad_interface.py",
			Timeout:   "30s",
			StopGrace: "3s",
			Restart: RestartConfig{
				Policy:       RestartPolicyBackoff,
				MaxAttempts:  5,
				InitialDelay: "500ms",
				MaxDelay:     "30s",
			},
		},
		Resources: ResourceConfig{CacheTTL: "0s"},
		Telemetry: TelemetryConfig{OTLPEndpoint: "localhost:4318"},
	}
}

func TestValidateAcceptsValidConfig(t *testing.T) {
	if err := Validate(validConfig()); err != nil {
		t.Fatalf("Validate() error = %v, want nil", err)
	}
}

func TestValidateRequiresScript(t *testing.T) {
	cfg := validConfig()
	cfg.Worker.Script = ""

	err := Validate(cfg)
	if err == nil {
		t.Fatal("Validate() error = nil, want non-nil")
	}
	if !strings.Contains(err.Error(), "worker.script: required") {
		t.Fatalf("Validate() error = %q, want worker.script message", err)
	}
}

func TestValidateCollectsEveryProblem(t *testing.T) {
	cfg := validConfig()
	cfg.LogLevel = "loud"
	cfg.Worker.Script = "relative/kicad_interface.py"
	cfg.Worker.Timeout = "abc"
	cfg.Worker.StopGrace = "0s"
	cfg.Worker.Restart.Policy = "always"
	cfg.Worker.Restart.MaxAttempts = -1
	cfg.Resources.CacheTTL = "-1s"
	cfg.Telemetry.OTLPEndpoint = "http://localhost:4318"

	err := Validate(cfg)
	if err == nil {
		t.Fatal("Validate() error = nil, want non-nil")
	}

	msg := err.Error()
	for _, want := range []string{
		"log_level: invalid level",
		"worker.script: must be an absolute path",
		"worker.timeout: invalid duration",
		"worker.stop_grace: must be > 0",
		"worker.restart.policy: unknown policy",
		"worker.restart.max_attempts: must be >= 0",
		"resources.cache_ttl: must be > 0",
		"telemetry.otlp_endpoint: want host:port",
	} {
		if !strings.Contains(msg, want) {
			t.Fatalf("Validate() error = %q, want substring %q", msg, want)
		}
	}
}

func TestValidateForCurrentEnvExpandsPlaceholders(t *testing.T) {
	t.Setenv("KICAD_MCP_SCRIPT", "/srv/kicad_interface.py")

	cfg := validConfig()
	cfg.Worker.Script = "${KICAD_MCP_SCRIPT}"

	if err := ValidateForCurrentEnv(cfg); err != nil {
		t.Fatalf("ValidateForCurrentEnv() error = %v, want nil", err)
	}
	if cfg.Worker.Script != "${KICAD_MCP_SCRIPT}" {
		t.Fatalf("ValidateForCurrentEnv() mutated input: script = %q", cfg.Worker.Script)
	}
}

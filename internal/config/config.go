package config

import (
	"fmt"
	"os"
	"regexp"

	"github.com/BurntSushi/toml"
	"github.com/lydakis/kicad-mcp/internal/paths"
)

var envVarRe = regexp.MustCompile(`\$\{([A-Za-z_][A-Za-z0-9_]*)\}`)

// Load reads the default config file and returns the parsed Config.
// If the config file does not exist, it returns a Config with defaults (no error).
func Load() (*Config, error) {
	return LoadFrom(paths.ConfigFile())
}

// LoadFrom reads and parses a config file at the given path.
func LoadFrom(path string) (*Config, error) {
	return loadFrom(path, true)
}

// LoadForEditFrom reads a config file without expanding ${ENV_VAR}
// placeholders so a later Save does not bake secrets into the file.
func LoadForEditFrom(path string) (*Config, error) {
	return loadFrom(path, false)
}

func loadFrom(path string, expand bool) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			cfg := &Config{}
			applyDefaults(cfg)
			return cfg, nil
		}
		return nil, fmt.Errorf("reading config: %w", err)
	}

	var cfg Config
	if err := toml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("parsing config %s: %w", path, err)
	}
	if expand {
		expandConfigEnvVars(&cfg)
	}
	applyDefaults(&cfg)
	return &cfg, nil
}

// ExampleConfigPath returns the default config file path (for help messages).
func ExampleConfigPath() string {
	return paths.ConfigFile()
}

func applyDefaults(cfg *Config) {
	if cfg.LogLevel == "" {
		cfg.LogLevel = DefaultLogLevel
	}
	if cfg.Worker.Python == "" {
		cfg.Worker.Python = DefaultPython
	}
	if cfg.Worker.Restart.Policy == "" {
		cfg.Worker.Restart.Policy = RestartPolicyNever
	}
	if cfg.Worker.Restart.MaxAttempts == 0 {
		cfg.Worker.Restart.MaxAttempts = 5
	}
}

func expandConfigEnvVars(cfg *Config) {
	if cfg == nil {
		return
	}

	cfg.LogFile = expandEnvVars(cfg.LogFile)
	cfg.Telemetry.OTLPEndpoint = expandEnvVars(cfg.Telemetry.OTLPEndpoint)

	w := &cfg.Worker
	w.Python = expandEnvVars(w.Python)
	w.Script = expandEnvVars(w.Script)
	for i := range w.PythonArgs {
		w.PythonArgs[i] = expandEnvVars(w.PythonArgs[i])
	}
	for i := range w.PythonPath {
		w.PythonPath[i] = expandEnvVars(w.PythonPath[i])
	}
	for k, v := range w.Env {
		w.Env[k] = expandEnvVars(v)
	}
}

// expandEnvVars replaces ${VAR_NAME} with the value of the environment variable.
func expandEnvVars(s string) string {
	return envVarRe.ReplaceAllStringFunc(s, func(match string) string {
		name := envVarRe.FindStringSubmatch(match)[1]
		if val, ok := os.LookupEnv(name); ok {
			return val
		}
		return match // leave unresolved vars as-is
	})
}

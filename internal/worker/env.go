package worker

import (
	"os"
	"sort"
	"strings"
)

// BuildEnv returns base with PYTHONPATH prefixed by pythonPath and every
// extra variable set, overriding base entries of the same name.
func BuildEnv(base []string, pythonPath []string, extra map[string]string) []string {
	override := make(map[string]string, len(extra)+1)
	for k, v := range extra {
		override[k] = v
	}

	if len(pythonPath) > 0 {
		parts := append([]string(nil), pythonPath...)
		existing, ok := override["PYTHONPATH"]
		if !ok {
			existing = lookup(base, "PYTHONPATH")
		}
		if existing != "" {
			parts = append(parts, existing)
		}
		override["PYTHONPATH"] = strings.Join(parts, string(os.PathListSeparator))
	}

	env := make([]string, 0, len(base)+len(override))
	for _, kv := range base {
		name, _, _ := strings.Cut(kv, "=")
		if _, replaced := override[name]; replaced {
			continue
		}
		env = append(env, kv)
	}

	keys := make([]string, 0, len(override))
	for k := range override {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		env = append(env, k+"="+override[k])
	}
	return env
}

func lookup(env []string, name string) string {
	for i := len(env) - 1; i >= 0; i-- {
		if k, v, ok := strings.Cut(env[i], "="); ok && k == name {
			return v
		}
	}
	return ""
}

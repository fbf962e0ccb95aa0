package config

import (
	"os"
	"path/filepath"
	"runtime"
	"sort"
	"strings"
)

// PythonPathEnvVar overrides KiCad scripting directory discovery.
const PythonPathEnvVar = "KICAD_PYTHON_PATH"

// discovery hooks, replaced in tests.
var (
	lookupEnv = os.LookupEnv
	globFunc  = filepath.Glob
	statFunc  = os.Stat
	goos      = runtime.GOOS
)

// ResolvePythonPath returns the directories to prepend to the worker's
// PYTHONPATH. Configured entries win, then KICAD_PYTHON_PATH, then the
// well-known install locations for the current OS that exist on disk.
func ResolvePythonPath(w WorkerConfig) []string {
	if len(w.PythonPath) > 0 {
		return append([]string(nil), w.PythonPath...)
	}
	if raw, ok := lookupEnv(PythonPathEnvVar); ok && strings.TrimSpace(raw) != "" {
		return splitList(raw)
	}
	return DiscoverKiCadPythonPath()
}

// DiscoverKiCadPythonPath probes the platform's standard KiCad install
// locations for the directory holding the pcbnew module.
func DiscoverKiCadPythonPath() []string {
	var found []string
	seen := make(map[string]bool)
	for _, pattern := range candidatePatterns(goos) {
		matches, err := globFunc(pattern)
		if err != nil {
			continue
		}
		// Newest versions sort last in lexical order; prefer them.
		sort.Sort(sort.Reverse(sort.StringSlice(matches)))
		for _, dir := range matches {
			if seen[dir] {
				continue
			}
			if info, err := statFunc(dir); err == nil && info.IsDir() {
				seen[dir] = true
				found = append(found, dir)
			}
		}
	}
	return found
}

func candidatePatterns(target string) []string {
	switch target {
	case "darwin":
		return []string{
			"/Applications/KiCad/KiCad.app/Contents/Frameworks/Python.framework/Versions/*/lib/python*/site-packages",
		}
	case "windows":
		return []string{
			`C:\Program Files\KiCad\*\lib\python3\dist-packages`,
			`C:\Program Files\KiCad\*\bin\Lib\site-packages`,
		}
	default:
		return []string{
			"/usr/lib/kicad/lib/python3/dist-packages",
			"/usr/lib/python3/dist-packages",
			"/usr/local/lib/kicad/lib/python3/dist-packages",
			"/usr/lib/python3*/site-packages",
		}
	}
}

func splitList(raw string) []string {
	var out []string
	for _, p := range filepath.SplitList(raw) {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}

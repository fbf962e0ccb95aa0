// Package bootstrap checks that the KiCad worker can be launched before a
// spawn is attempted.
package bootstrap

import (
	"errors"
	"fmt"
	"os"
	"os/exec"
	"strings"

	"github.com/lydakis/kicad-mcp/internal/config"
)

type (
	lookupPathFunc func(file string) (string, error)
	statFunc       func(name string) (os.FileInfo, error)
)

// Report lists non-fatal findings from CheckPrerequisites.
type Report struct {
	Interpreter     string
	MissingPathDirs []string
}

// CheckPrerequisites verifies the interpreter resolves and the worker
// script exists. Missing PYTHONPATH directories are reported, not fatal.
func CheckPrerequisites(w config.WorkerConfig, pythonPath []string) (Report, error) {
	return checkPrerequisitesWith(w, pythonPath, exec.LookPath, os.Stat)
}

func checkPrerequisitesWith(w config.WorkerConfig, pythonPath []string, lookup lookupPathFunc, stat statFunc) (Report, error) {
	if lookup == nil {
		lookup = exec.LookPath
	}
	if stat == nil {
		stat = os.Stat
	}

	var report Report
	var errs []error

	python := strings.TrimSpace(w.Python)
	if python == "" {
		python = config.DefaultPython
	}
	resolved, err := lookup(python)
	if err != nil {
		errs = append(errs, fmt.Errorf("required runtime %q not found in PATH", python))
	} else {
		report.Interpreter = resolved
	}

	script := strings.TrimSpace(w.Script)
	switch info, err := stat(script); {
	case script == "":
		errs = append(errs, errors.New("worker script is not configured"))
	case err != nil:
		errs = append(errs, fmt.Errorf("worker script %q: %w", script, err))
	case info.IsDir():
		errs = append(errs, fmt.Errorf("worker script %q is a directory", script))
	}

	for _, dir := range pythonPath {
		if info, err := stat(dir); err != nil || !info.IsDir() {
			report.MissingPathDirs = append(report.MissingPathDirs, dir)
		}
	}

	return report, errors.Join(errs...)
}

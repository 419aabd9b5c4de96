// Package venv creates and activates Python virtual environments.
//
// Activation is modeled as data rather than shell state: Environ produces
// the environment-variable slice a command must run with for tools to
// resolve to the virtualenv's copies. Each pipeline stage rebuilds this
// slice because stage invocations do not share a shell.
package venv

import (
	"fmt"
	"path/filepath"
	"strings"
)

// CommandRunner matches stagehand.CommandRunner. Declared locally so the
// package depends only on the behavior it needs.
type CommandRunner interface {
	Run(workDir string, name string, args ...string) (string, error)
}

// Env describes a virtual environment on disk.
type Env struct {
	Dir string // Root of the virtualenv (the directory containing bin/)
}

// New returns a descriptor for a virtualenv at dir. It does not create it.
func New(dir string) *Env {
	return &Env{Dir: dir}
}

// Create makes a fresh virtual environment at e.Dir using the given Python
// interpreter (python -m venv).
func (e *Env) Create(runner CommandRunner, python string) error {
	if _, err := runner.Run("", python, "-m", "venv", e.Dir); err != nil {
		return fmt.Errorf("create virtualenv: %w", err)
	}
	return nil
}

// Bin returns the virtualenv's executable directory.
func (e *Env) Bin() string {
	return filepath.Join(e.Dir, "bin")
}

// Python returns the path to the virtualenv's interpreter.
func (e *Env) Python() string {
	return filepath.Join(e.Bin(), "python")
}

// Pip returns the path to the virtualenv's pip.
func (e *Env) Pip() string {
	return filepath.Join(e.Bin(), "pip")
}

// Environ applies activation to a base environment: the virtualenv's bin
// directory is prepended to PATH, VIRTUAL_ENV is set, and PYTHONHOME is
// dropped. The base slice is not modified. Applying Environ to an
// already-activated environment yields the same result, so re-activation
// per stage is harmless.
func (e *Env) Environ(base []string) []string {
	bin := e.Bin()
	result := make([]string, 0, len(base)+2)

	pathSeen := false
	for _, kv := range base {
		switch {
		case strings.HasPrefix(kv, "PATH="):
			pathSeen = true
			path := strings.TrimPrefix(kv, "PATH=")
			path = stripEntry(path, bin)
			result = append(result, "PATH="+bin+string(filepath.ListSeparator)+path)
		case strings.HasPrefix(kv, "VIRTUAL_ENV="):
			// Replaced below
		case strings.HasPrefix(kv, "PYTHONHOME="):
			// A set PYTHONHOME overrides the venv's interpreter paths
		default:
			result = append(result, kv)
		}
	}
	if !pathSeen {
		result = append(result, "PATH="+bin)
	}
	result = append(result, "VIRTUAL_ENV="+e.Dir)

	return result
}

// InstallRequirements installs a dependency manifest into the virtualenv
// (pip install -r file), running from workDir so relative manifest paths
// resolve against the project.
func (e *Env) InstallRequirements(runner CommandRunner, workDir, file string) (string, error) {
	output, err := runner.Run(workDir, e.Pip(), "install", "-r", file)
	if err != nil {
		return output, fmt.Errorf("install requirements: %w", err)
	}
	return output, nil
}

// InstallPackage installs the project package into the virtualenv by
// invoking its build script (e.g., "python setup.py install --no-data").
func (e *Env) InstallPackage(runner CommandRunner, projectDir, script string, args ...string) (string, error) {
	cmdArgs := append([]string{script}, args...)
	output, err := runner.Run(projectDir, e.Python(), cmdArgs...)
	if err != nil {
		return output, fmt.Errorf("install package: %w", err)
	}
	return output, nil
}

// stripEntry removes an entry from a PATH-style list so repeated
// activation does not accumulate duplicates.
func stripEntry(path, entry string) string {
	sep := string(filepath.ListSeparator)
	parts := strings.Split(path, sep)
	kept := parts[:0]
	for _, p := range parts {
		if p != entry {
			kept = append(kept, p)
		}
	}
	return strings.Join(kept, sep)
}

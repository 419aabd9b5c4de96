// Package workspace manages the temporary directory a pipeline run works in.
//
// A workspace path is derived deterministically from the workspace root, the
// job name, and the commit identifier. The workspace exists only for the
// lifetime of one run and must be removed exactly once at the end of the run,
// whether or not earlier stages failed.
package workspace

import (
	"fmt"
	"os"
	"path/filepath"
)

// Workspace identifies the temporary directory for one pipeline run.
type Workspace struct {
	Root   string // Workspace root supplied by the CI engine (e.g., "/tmp")
	Job    string // Job name
	Commit string // Commit identifier
}

// New creates a workspace descriptor. It does not touch the filesystem.
func New(root, job, commit string) (*Workspace, error) {
	if root == "" {
		return nil, fmt.Errorf("workspace root is required")
	}
	if job == "" {
		return nil, fmt.Errorf("job name is required")
	}
	if commit == "" {
		return nil, fmt.Errorf("commit identifier is required")
	}
	return &Workspace{Root: root, Job: job, Commit: commit}, nil
}

// Dir returns the workspace directory: root/job/commit.
// The same inputs always produce the same path.
func (w *Workspace) Dir() string {
	return filepath.Join(w.Root, w.Job, w.Commit)
}

// Exists reports whether the workspace directory is present on disk.
func (w *Workspace) Exists() bool {
	info, err := os.Stat(w.Dir())
	return err == nil && info.IsDir()
}

// Create makes the workspace directory, including parents. Creating an
// already-existing workspace is not an error (mkdir -p semantics).
func (w *Workspace) Create() error {
	if err := os.MkdirAll(w.Dir(), 0o755); err != nil {
		return fmt.Errorf("create workspace: %w", err)
	}
	return nil
}

// Claim creates the workspace directory and fails with ErrWorkspaceExists
// if it is already present. Two concurrent runs of the same job and commit
// derive the same path; Claim is how a caller surfaces that collision
// instead of silently sharing the directory.
func (w *Workspace) Claim() error {
	if w.Exists() {
		return ErrWorkspaceExists
	}
	return w.Create()
}

// Remove deletes the workspace recursively and forcefully. Removing a
// workspace that does not exist is not an error, so Remove is safe to call
// from cleanup paths regardless of how far the run got.
func (w *Workspace) Remove() error {
	if err := os.RemoveAll(w.Dir()); err != nil {
		return fmt.Errorf("remove workspace: %w", err)
	}
	return nil
}

package testutil

import (
	"context"
	"os"
	"path/filepath"
	"sync"
	"testing"

	"github.com/stagehand-dev/stagehand/notify"
)

// ProjectOptions configures a generated Python project fixture.
type ProjectOptions struct {
	Requirements []string // Lines for requirements.txt
	TestFiles    map[string]string
}

// WriteProject creates a minimal Python project layout in a temp directory
// and returns its path. The layout matches what the pipeline expects:
// requirements.txt and setup.py at the root, tests under test/.
func WriteProject(t *testing.T, opts ProjectOptions) string {
	t.Helper()

	dir := t.TempDir()

	requirements := ""
	for _, line := range opts.Requirements {
		requirements += line + "\n"
	}
	writeFile(t, filepath.Join(dir, "requirements.txt"), requirements)

	setupPy := `from setuptools import setup, find_packages

setup(
    name="fixture",
    version="0.0.1",
    packages=find_packages(),
)
`
	writeFile(t, filepath.Join(dir, "setup.py"), setupPy)

	testDir := filepath.Join(dir, "test")
	if err := os.MkdirAll(testDir, 0o755); err != nil {
		t.Fatal(err)
	}

	if len(opts.TestFiles) == 0 {
		writeFile(t, filepath.Join(testDir, "test_smoke.py"), "def test_smoke():\n    assert True\n")
	}
	for name, content := range opts.TestFiles {
		writeFile(t, filepath.Join(testDir, name), content)
	}

	return dir
}

func writeFile(t *testing.T, path, content string) {
	t.Helper()
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("write %s: %v", path, err)
	}
}

// CaptureNotifier records every event it receives, for assertions.
type CaptureNotifier struct {
	mu     sync.Mutex
	events []notify.Event
}

// Notify implements notify.Notifier.
func (c *CaptureNotifier) Notify(ctx context.Context, event notify.Event) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.events = append(c.events, event)
	return nil
}

// Events returns a copy of the recorded events.
func (c *CaptureNotifier) Events() []notify.Event {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]notify.Event(nil), c.events...)
}

// EventsOfType returns recorded events matching the given type.
func (c *CaptureNotifier) EventsOfType(eventType notify.EventType) []notify.Event {
	c.mu.Lock()
	defer c.mu.Unlock()
	var matched []notify.Event
	for _, e := range c.events {
		if e.Type == eventType {
			matched = append(matched, e)
		}
	}
	return matched
}

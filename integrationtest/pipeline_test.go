// Package integrationtest exercises the full pipeline through the public
// API, with a mocked command runner so no Python toolchain is required.
package integrationtest

import (
	"bytes"
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	stagehand "github.com/stagehand-dev/stagehand"
	"github.com/stagehand-dev/stagehand/history"
	"github.com/stagehand-dev/stagehand/notify"
	"github.com/stagehand-dev/stagehand/pipeline"
	"github.com/stagehand-dev/stagehand/status"
	"github.com/stagehand-dev/stagehand/testutil"
)

const (
	testJob    = "myjob"
	testCommit = "abc123"
)

func pytestPath(root string) string {
	return filepath.Join(root, testJob, testCommit, "venv", "bin", "pytest")
}

func TestFullRun_Passing(t *testing.T) {
	root := t.TempDir()
	project := testutil.WriteProject(t, testutil.ProjectOptions{
		Requirements: []string{"requests==2.31.0"},
	})

	mock := stagehand.NewMockRunner()
	mock.OnCommand(pytestPath(root)).Return("===== 3 passed in 0.44s =====", nil)

	var out bytes.Buffer
	cfg := pipeline.DefaultConfig(project)
	cfg.Output = &out

	store, err := history.Open(":memory:")
	require.NoError(t, err)
	defer store.Close()

	notifier := &testutil.CaptureNotifier{}
	runner := pipeline.NewRunner(cfg,
		pipeline.WithCommandRunner(mock),
		pipeline.WithNotifier(notifier),
		pipeline.WithHistory(store),
	)

	ctx := testutil.TestContext(t)
	result, err := runner.Run(ctx, testJob, testCommit, root)
	require.NoError(t, err)

	assert.True(t, result.TestPassed)
	assert.True(t, result.TornDown)
	assert.Equal(t, filepath.Join(root, testJob, testCommit), result.Dir)

	// Workspace must be gone no matter the outcome.
	_, statErr := os.Stat(result.Dir)
	assert.True(t, os.IsNotExist(statErr), "workspace should be removed")

	// Stage banners appear exactly once each, in execution order.
	text := out.String()
	setupIdx := strings.Index(text, "[[ Start virtual environment ]]")
	testIdx := strings.Index(text, "[[ Run pytest ]]")
	teardownIdx := strings.Index(text, "[[ Tear down the environments ]]")
	require.GreaterOrEqual(t, setupIdx, 0)
	require.Greater(t, testIdx, setupIdx)
	require.Greater(t, teardownIdx, testIdx)
	assert.Equal(t, 1, strings.Count(text, "[[ Run pytest ]]"))

	// Commands ran against the expected layout.
	venvDir := filepath.Join(result.Dir, "venv")
	assert.True(t, mock.WasCalled("python3", "-m", "venv", venvDir))
	assert.True(t, mock.WasCalled(filepath.Join(venvDir, "bin", "pip"), "install", "-r", "requirements.txt"))
	assert.True(t, mock.WasCalled(filepath.Join(venvDir, "bin", "python"), "setup.py", "install", "--no-data"))

	// The run was recorded.
	recorded, err := store.Get(ctx, result.RunID)
	require.NoError(t, err)
	assert.Equal(t, "passed", recorded.Status)
	assert.Equal(t, testJob, recorded.Job)

	// Lifecycle events were delivered.
	assert.Len(t, notifier.EventsOfType(notify.EventRunStarted), 1)
	assert.Len(t, notifier.EventsOfType(notify.EventRunCompleted), 1)
	assert.Len(t, notifier.EventsOfType(notify.EventStageCompleted), 3)
}

func TestFullRun_TestFailure(t *testing.T) {
	root := t.TempDir()
	project := testutil.WriteProject(t, testutil.ProjectOptions{})

	mock := stagehand.NewMockRunner()
	output := "FAILED test/test_api.py::test_fetch - assert 404 == 200\n===== 1 failed, 2 passed in 0.80s ====="
	mock.OnCommand(pytestPath(root)).Return(output, errors.New("exit status 1"))

	cfg := pipeline.DefaultConfig(project)
	cfg.Output = &bytes.Buffer{}

	notifier := &testutil.CaptureNotifier{}
	store, err := history.Open(":memory:")
	require.NoError(t, err)
	defer store.Close()

	runner := pipeline.NewRunner(cfg,
		pipeline.WithCommandRunner(mock),
		pipeline.WithNotifier(notifier),
		pipeline.WithHistory(store),
	)

	ctx := testutil.TestContext(t)
	result, err := runner.Run(ctx, testJob, testCommit, root)
	require.ErrorIs(t, err, pipeline.ErrTestsFailed)

	assert.False(t, result.TestPassed)
	assert.True(t, result.TornDown, "teardown must run after test failure")
	require.NotNil(t, result.TestOutput)
	assert.Equal(t, 1, result.TestOutput.FailedTests)
	require.Len(t, result.TestOutput.Failures, 1)
	assert.Equal(t, "test/test_api.py::test_fetch", result.TestOutput.Failures[0].Name)

	_, statErr := os.Stat(result.Dir)
	assert.True(t, os.IsNotExist(statErr))

	recorded, err := store.Get(ctx, result.RunID)
	require.NoError(t, err)
	assert.Equal(t, "failed", recorded.Status)

	assert.Len(t, notifier.EventsOfType(notify.EventRunFailed), 1)
}

func TestFullRun_SetupFailure(t *testing.T) {
	root := t.TempDir()
	project := testutil.WriteProject(t, testutil.ProjectOptions{})

	mock := stagehand.NewMockRunner()
	mock.OnCommand("python3").Return("", errors.New("python3: command not found"))

	var out bytes.Buffer
	cfg := pipeline.DefaultConfig(project)
	cfg.Output = &out

	runner := pipeline.NewRunner(cfg, pipeline.WithCommandRunner(mock))

	ctx := testutil.TestContext(t)
	result, err := runner.Run(ctx, testJob, testCommit, root)
	require.ErrorIs(t, err, pipeline.ErrSetupFailed)

	assert.NotContains(t, out.String(), "[[ Run pytest ]]", "tests must not run after setup failure")
	assert.Contains(t, out.String(), "[[ Tear down the environments ]]")
	assert.True(t, result.TornDown)

	_, statErr := os.Stat(result.Dir)
	assert.True(t, os.IsNotExist(statErr))
}

func TestFullRun_WorkspaceRemovedOnCanceledContext(t *testing.T) {
	root := t.TempDir()
	project := testutil.WriteProject(t, testutil.ProjectOptions{})

	mock := stagehand.NewMockRunner()
	mock.OnCommand(pytestPath(root)).Return("===== 1 passed in 0.01s =====", nil)

	cfg := pipeline.DefaultConfig(project)
	cfg.Output = &bytes.Buffer{}

	runner := pipeline.NewRunner(cfg, pipeline.WithCommandRunner(mock))

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	result, _ := runner.Run(ctx, testJob, testCommit, root)

	// Whatever the graph did with the canceled context, the deferred
	// removal must have cleaned the workspace.
	dir := filepath.Join(root, testJob, testCommit)
	_, statErr := os.Stat(dir)
	assert.True(t, os.IsNotExist(statErr), "workspace should be removed after cancellation")
	assert.Equal(t, dir, result.Dir)
}

func TestFullRun_StatusUpdatesPosted(t *testing.T) {
	root := t.TempDir()
	project := testutil.WriteProject(t, testutil.ProjectOptions{})

	mock := stagehand.NewMockRunner()
	mock.OnCommand(pytestPath(root)).Return("===== 2 passed in 0.10s =====", nil)

	cfg := pipeline.DefaultConfig(project)
	cfg.Output = &bytes.Buffer{}

	reporter := &recordingReporter{}
	runner := pipeline.NewRunner(cfg,
		pipeline.WithCommandRunner(mock),
		pipeline.WithStatusReporter(reporter),
	)

	ctx := testutil.TestContext(t)
	_, err := runner.Run(ctx, testJob, testCommit, root)
	require.NoError(t, err)

	require.Len(t, reporter.updates, 2)
	assert.Equal(t, status.StatePending, reporter.updates[0].State)
	assert.Equal(t, status.StateSuccess, reporter.updates[1].State)
	assert.Equal(t, testCommit, reporter.updates[0].Commit)
}

type recordingReporter struct {
	updates []status.Update
}

func (r *recordingReporter) Report(ctx context.Context, update status.Update) error {
	r.updates = append(r.updates, update)
	return nil
}

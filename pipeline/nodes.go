package pipeline

import (
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/randalmurphal/flowgraph/pkg/flowgraph"

	stagehand "github.com/stagehand-dev/stagehand"
	"github.com/stagehand-dev/stagehand/notify"
	"github.com/stagehand-dev/stagehand/venv"
)

// =============================================================================
// Node Types
// =============================================================================

// NodeFunc is the signature pipeline nodes implement.
type NodeFunc = flowgraph.NodeFunc[State]

// Node names used in the pipeline graph.
const (
	NodeSetup    = "setup"
	NodeTest     = "test"
	NodeTeardown = "teardown"
)

// Stage banners written to the run output, in execution order.
const (
	BannerSetup    = "[[ Start virtual environment ]]"
	BannerTest     = "[[ Run pytest ]]"
	BannerTeardown = "[[ Tear down the environments ]]"
)

// =============================================================================
// Nodes
// =============================================================================

// SetupNode provisions the run environment: it creates a virtualenv inside
// the workspace and installs the dependency manifest into it.
//
// Prerequisites: state.Job, state.Commit, state.Dir must be set
// Updates: state.VenvDir, state.SetupDone, state.SetupAt
//
// Provisioning failures are recorded on the state rather than returned, so
// the graph can route to teardown.
func SetupNode(cfg Config) NodeFunc {
	cfg = cfg.withDefaults()
	return func(ctx flowgraph.Context, state State) (State, error) {
		if err := state.Validate(RequireJob, RequireCommit, RequireWorkspace); err != nil {
			return state, err
		}

		out := stageOutput(cfg)
		fmt.Fprintln(out, BannerSetup)

		runner := stagehand.GetCommandRunner(ctx)

		if state.VenvDir == "" {
			state.VenvDir = filepath.Join(state.Dir, cfg.VenvName)
		}
		env := venv.New(state.VenvDir)

		if err := env.Create(runner, cfg.Python); err != nil {
			state.SetError(&StageError{Stage: NodeSetup, Err: err})
			return state, nil
		}

		environ := env.Environ(os.Environ())
		if cfg.DumpEnv {
			dumpEnviron(out, environ)
		}
		activated := activatedRunner{runner: runner, environ: environ}

		if output, err := env.InstallRequirements(activated, cfg.ProjectDir, cfg.RequirementsFile); err != nil {
			fmt.Fprintln(out, commandOutput(output, err))
			state.SetError(&StageError{Stage: NodeSetup, Err: err})
			return state, nil
		}

		state.SetupDone = true
		state.SetupAt = time.Now()
		return state, nil
	}
}

// TestNode installs the project package into the virtualenv, then runs the
// test suite from the project's test directory. Activation is reapplied
// here because stages do not share an invocation environment.
//
// Prerequisites: state.Dir, state.VenvDir, state.SetupDone must be set
// Updates: state.TestOutput, state.TestPassed, state.TestRunAt
//
// A failing install aborts before the tests run. Neither an install failure
// nor failing tests produce a node error; the result is recorded on the
// state and the graph continues to teardown.
func TestNode(cfg Config) NodeFunc {
	cfg = cfg.withDefaults()
	return func(ctx flowgraph.Context, state State) (State, error) {
		if err := state.Validate(RequireWorkspace, RequireVenv, RequireSetup); err != nil {
			return state, err
		}

		out := stageOutput(cfg)
		fmt.Fprintln(out, BannerTest)

		runner := stagehand.GetCommandRunner(ctx)

		env := venv.New(state.VenvDir)
		environ := env.Environ(os.Environ())
		if cfg.DumpEnv {
			dumpEnviron(out, environ)
		}
		activated := activatedRunner{runner: runner, environ: environ}

		if output, err := env.InstallPackage(activated, cfg.ProjectDir, cfg.SetupScript, cfg.InstallArgs...); err != nil {
			fmt.Fprintln(out, commandOutput(output, err))
			state.SetError(&StageError{Stage: NodeTest, Err: err})
			return state, nil
		}

		testDir := filepath.Join(cfg.ProjectDir, cfg.TestDir)
		testCmd := filepath.Join(env.Bin(), cfg.TestCommand)

		output, err := stagehand.RunWithEnv(runner, testDir, environ, testCmd, cfg.TestArgs...)
		passed := err == nil
		output = commandOutput(output, err)

		state.TestOutput = parseTestOutput(output, passed)
		state.TestPassed = passed
		state.TestRunAt = time.Now()

		return state, nil
	}
}

// TeardownNode removes the run's workspace directory. Removal is best
// effort: a failure is logged and recorded, never fatal, and removing an
// already-absent directory succeeds.
//
// Updates: state.TornDown, state.TeardownAt
func TeardownNode(cfg Config) NodeFunc {
	cfg = cfg.withDefaults()
	return func(ctx flowgraph.Context, state State) (State, error) {
		out := stageOutput(cfg)
		fmt.Fprintln(out, BannerTeardown)

		if state.Dir != "" {
			if err := os.RemoveAll(state.Dir); err != nil {
				slog.Warn("workspace removal failed",
					"run_id", state.RunID,
					"dir", state.Dir,
					"error", err,
				)
				return state, nil
			}
		}

		state.TornDown = true
		state.TeardownAt = time.Now()
		return state, nil
	}
}

// =============================================================================
// Node Wrappers
// =============================================================================

// WithStageEvents wraps a node so stage lifecycle events reach the Notifier
// in context, if one is set.
func WithStageEvents(node NodeFunc, stage string) NodeFunc {
	return func(ctx flowgraph.Context, state State) (State, error) {
		notifier := notify.NotifierFromContext(ctx)
		if notifier == nil {
			return node(ctx, state)
		}

		notifier.Notify(ctx, stageEvent(notify.EventStageStarted, stage, state, notify.SeverityInfo, nil))

		start := time.Now()
		result, err := node(ctx, state)
		duration := time.Since(start)

		meta := map[string]any{"duration": duration.String()}
		switch {
		case err != nil:
			notifier.Notify(ctx, stageEvent(notify.EventStageFailed, stage, result, notify.SeverityError, meta))
		case result.HasError() && !state.HasError():
			notifier.Notify(ctx, stageEvent(notify.EventStageFailed, stage, result, notify.SeverityError, meta))
		default:
			notifier.Notify(ctx, stageEvent(notify.EventStageCompleted, stage, result, notify.SeverityInfo, meta))
		}

		return result, err
	}
}

func stageEvent(eventType notify.EventType, stage string, state State, severity string, meta map[string]any) notify.Event {
	message := fmt.Sprintf("%s %s", stage, strings.TrimPrefix(string(eventType), "stage_"))
	if state.HasError() && severity == notify.SeverityError {
		message = state.Error
	}
	return notify.Event{
		Type:      eventType,
		RunID:     state.RunID,
		Job:       state.Job,
		Commit:    state.Commit,
		Stage:     stage,
		Message:   message,
		Severity:  severity,
		Timestamp: time.Now(),
		Metadata:  meta,
	}
}

// =============================================================================
// Helpers
// =============================================================================

// activatedRunner threads a fixed environment through every command, so
// commands a stage runs see the virtualenv as active.
type activatedRunner struct {
	runner  stagehand.CommandRunner
	environ []string
}

func (r activatedRunner) Run(workDir, name string, args ...string) (string, error) {
	return stagehand.RunWithEnv(r.runner, workDir, r.environ, name, args...)
}

func stageOutput(cfg Config) io.Writer {
	if cfg.Output != nil {
		return cfg.Output
	}
	return os.Stdout
}

// commandOutput recovers captured output from a failed command, where the
// exec runner returns it inside the error rather than on stdout.
func commandOutput(output string, err error) string {
	if output != "" || err == nil {
		return output
	}
	var cmdErr *stagehand.CommandError
	if errors.As(err, &cmdErr) {
		return cmdErr.Output
	}
	return output
}

func dumpEnviron(out io.Writer, environ []string) {
	for _, kv := range environ {
		fmt.Fprintln(out, kv)
	}
}

// parseTestOutput extracts a result summary from pytest output.
func parseTestOutput(output string, passed bool) *TestOutput {
	result := &TestOutput{
		Passed: passed,
		Raw:    output,
	}

	for _, line := range strings.Split(output, "\n") {
		line = strings.TrimSpace(line)
		if name, ok := strings.CutPrefix(line, "FAILED "); ok {
			if idx := strings.Index(name, " - "); idx >= 0 {
				name = name[:idx]
			}
			result.Failures = append(result.Failures, TestFailure{
				Name:   name,
				Output: line,
			})
			continue
		}
		if strings.Contains(line, "passed") || strings.Contains(line, "failed") {
			parseSummaryLine(line, result)
		}
	}

	result.TotalTests = result.PassedTests + result.FailedTests
	return result
}

// parseSummaryLine reads counts from a pytest summary line such as
// "=== 2 failed, 3 passed in 0.42s ===".
func parseSummaryLine(line string, result *TestOutput) {
	fields := strings.Fields(strings.Trim(line, "= "))
	for i, field := range fields {
		if i == 0 {
			continue
		}
		n, err := strconv.Atoi(fields[i-1])
		if err != nil {
			continue
		}
		switch strings.Trim(field, ",") {
		case "passed":
			result.PassedTests = n
		case "failed":
			result.FailedTests = n
		}
	}
}

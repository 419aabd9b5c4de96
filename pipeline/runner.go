// Package pipeline runs the provision-test-teardown cycle for one commit
// of a Python project inside a disposable workspace.
package pipeline

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"path/filepath"
	"time"

	"github.com/randalmurphal/flowgraph/pkg/flowgraph"

	stagehand "github.com/stagehand-dev/stagehand"
	"github.com/stagehand-dev/stagehand/history"
	"github.com/stagehand-dev/stagehand/notify"
	"github.com/stagehand-dev/stagehand/status"
	"github.com/stagehand-dev/stagehand/workspace"
)

// RunRecorder persists finished runs. *history.Store implements it.
type RunRecorder interface {
	Record(ctx context.Context, run history.Run) error
}

// Runner executes the pipeline for a job and commit.
type Runner struct {
	cfg      Config
	runner   stagehand.CommandRunner
	notifier notify.Notifier
	reporter status.Reporter
	recorder RunRecorder
}

// Option configures a Runner.
type Option func(*Runner)

// WithCommandRunner sets the command runner used for all stage commands.
func WithCommandRunner(runner stagehand.CommandRunner) Option {
	return func(r *Runner) { r.runner = runner }
}

// WithNotifier sets the notifier that receives run and stage events.
func WithNotifier(n notify.Notifier) Option {
	return func(r *Runner) { r.notifier = n }
}

// WithStatusReporter sets the commit status reporter.
func WithStatusReporter(reporter status.Reporter) Option {
	return func(r *Runner) { r.reporter = reporter }
}

// WithHistory sets the store finished runs are recorded to.
func WithHistory(recorder RunRecorder) Option {
	return func(r *Runner) { r.recorder = recorder }
}

// NewRunner creates a pipeline runner for the given config.
func NewRunner(cfg Config, opts ...Option) *Runner {
	r := &Runner{
		cfg:      cfg.withDefaults(),
		notifier: notify.NopNotifier{},
		reporter: status.NopReporter{},
	}
	for _, opt := range opts {
		opt(r)
	}
	if r.runner == nil {
		var runnerOpts []stagehand.RunnerOption
		if r.cfg.Output != nil {
			runnerOpts = append(runnerOpts, stagehand.WithOutput(r.cfg.Output))
		}
		r.runner = stagehand.NewExecRunner(runnerOpts...)
	}
	return r
}

// Run executes the full pipeline for job at commit, using a workspace under
// root. The workspace path is a pure function of root, job and commit, so
// retrying the same inputs targets the same directory.
//
// The workspace is removed when Run returns, whatever path the run took:
// the teardown stage removes it in the normal flow, and a deferred removal
// covers panics and context cancellation. The returned State carries the
// full run record even when err is non-nil.
func (r *Runner) Run(ctx context.Context, job, commit, root string) (State, error) {
	state := NewState(job, commit)

	ws, err := workspace.New(root, job, commit)
	if err != nil {
		state.SetError(err)
		return state, err
	}

	if err := ws.Claim(); err != nil {
		if !errors.Is(err, workspace.ErrWorkspaceExists) {
			state.SetError(err)
			return state, fmt.Errorf("claim workspace: %w", err)
		}
		slog.Warn("workspace already exists, reusing",
			"run_id", state.RunID,
			"dir", ws.Dir(),
		)
	}
	state = state.WithWorkspace(ws.Dir(), filepath.Join(ws.Dir(), r.cfg.VenvName))
	state.CreatedAt = time.Now()

	// Last line of defense. Remove is idempotent, so the teardown stage
	// having already run is fine.
	defer func() {
		if err := ws.Remove(); err != nil {
			slog.Warn("deferred workspace removal failed", "dir", ws.Dir(), "error", err)
		}
	}()

	r.notifyRun(ctx, notify.EventRunStarted, state, notify.SeverityInfo, "run started")
	r.report(ctx, commit, status.StatePending, "run in progress")

	runCtx := stagehand.WithCommandRunner(ctx, r.runner)
	runCtx = notify.WithNotifier(runCtx, r.notifier)
	fctx := flowgraph.NewContext(runCtx)

	compiled, err := NewGraph(r.cfg).Compile()
	if err != nil {
		state.SetError(err)
		return state, fmt.Errorf("compile pipeline graph: %w", err)
	}

	result, runErr := compiled.Run(fctx, state)
	result.FinalizeDuration()

	outcome := r.outcome(result, runErr)
	r.finish(ctx, result, outcome)

	return result, outcome
}

// outcome maps the final state to the error returned to the caller.
func (r *Runner) outcome(result State, runErr error) error {
	switch {
	case runErr != nil:
		return fmt.Errorf("run pipeline: %w", runErr)
	case result.HasError() && !result.SetupDone:
		return fmt.Errorf("%w: %s", ErrSetupFailed, result.Error)
	case result.HasError():
		return fmt.Errorf("%w: %s", ErrInstallFailed, result.Error)
	case !result.TestPassed:
		if result.TestOutput != nil && result.TestOutput.FailedTests > 0 {
			return fmt.Errorf("%w: %d of %d tests failed",
				ErrTestsFailed, result.TestOutput.FailedTests, result.TestOutput.TotalTests)
		}
		return ErrTestsFailed
	default:
		return nil
	}
}

// finish reports terminal status, notifies, and records the run.
func (r *Runner) finish(ctx context.Context, result State, outcome error) {
	if outcome == nil {
		r.notifyRun(ctx, notify.EventRunCompleted, result, notify.SeverityInfo, "run completed")
		r.report(ctx, result.Commit, status.StateSuccess, "all tests passed")
	} else {
		r.notifyRun(ctx, notify.EventRunFailed, result, notify.SeverityError, outcome.Error())
		if errors.Is(outcome, ErrTestsFailed) {
			r.report(ctx, result.Commit, status.StateFailure, outcome.Error())
		} else {
			r.report(ctx, result.Commit, status.StateError, outcome.Error())
		}
	}

	if r.recorder == nil {
		return
	}
	record := history.Run{
		RunID:     result.RunID,
		Job:       result.Job,
		Commit:    result.Commit,
		Status:    result.Status(),
		Error:     result.Error,
		StartedAt: result.StartTime,
		Duration:  result.TotalDuration,
	}
	if err := r.recorder.Record(ctx, record); err != nil {
		slog.Warn("record run failed", "run_id", result.RunID, "error", err)
	}
}

func (r *Runner) notifyRun(ctx context.Context, eventType notify.EventType, state State, severity, message string) {
	event := notify.Event{
		Type:      eventType,
		RunID:     state.RunID,
		Job:       state.Job,
		Commit:    state.Commit,
		Message:   message,
		Severity:  severity,
		Timestamp: time.Now(),
	}
	if err := r.notifier.Notify(ctx, event); err != nil {
		slog.Warn("notify failed", "type", eventType, "error", err)
	}
}

func (r *Runner) report(ctx context.Context, commit string, state status.State, description string) {
	update := status.Update{
		Commit:      commit,
		State:       state,
		Description: description,
	}
	if err := r.reporter.Report(ctx, update); err != nil {
		slog.Warn("status report failed", "commit", commit, "state", state, "error", err)
	}
}

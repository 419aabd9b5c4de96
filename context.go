package stagehand

import "context"

// =============================================================================
// Context Injection Helpers
// =============================================================================
// These helpers allow the command runner to be injected into context.Context
// for use by pipeline stage nodes.

// serviceContextKey is a private type for context keys to avoid collisions
type serviceContextKey string

const runnerServiceKey serviceContextKey = "stagehand.runner"

// WithCommandRunner adds a CommandRunner to the context.
// This allows stage nodes to execute commands through a mockable interface.
func WithCommandRunner(ctx context.Context, runner CommandRunner) context.Context {
	return context.WithValue(ctx, runnerServiceKey, runner)
}

// CommandRunnerFromContext extracts CommandRunner from context.
// Returns nil if not set - callers should fall back to ExecRunner.
func CommandRunnerFromContext(ctx context.Context) CommandRunner {
	if runner, ok := ctx.Value(runnerServiceKey).(CommandRunner); ok {
		return runner
	}
	return nil
}

// GetCommandRunner returns the CommandRunner from context, or a default ExecRunner.
// This is the preferred way for stage nodes to get a runner - it always returns
// a usable runner.
func GetCommandRunner(ctx context.Context) CommandRunner {
	if runner := CommandRunnerFromContext(ctx); runner != nil {
		return runner
	}
	return NewExecRunner()
}

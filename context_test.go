package stagehand

import (
	"context"
	"testing"
)

func TestCommandRunnerContext(t *testing.T) {
	t.Run("round trip", func(t *testing.T) {
		mock := NewMockRunner()
		ctx := WithCommandRunner(context.Background(), mock)

		got := CommandRunnerFromContext(ctx)
		if got != CommandRunner(mock) {
			t.Error("CommandRunnerFromContext() did not return stored runner")
		}
	})

	t.Run("missing returns nil", func(t *testing.T) {
		if got := CommandRunnerFromContext(context.Background()); got != nil {
			t.Errorf("CommandRunnerFromContext() = %v, want nil", got)
		}
	})

	t.Run("GetCommandRunner falls back to exec", func(t *testing.T) {
		runner := GetCommandRunner(context.Background())
		if _, ok := runner.(*ExecRunner); !ok {
			t.Errorf("GetCommandRunner() = %T, want *ExecRunner", runner)
		}
	})

	t.Run("GetCommandRunner prefers context runner", func(t *testing.T) {
		mock := NewMockRunner()
		ctx := WithCommandRunner(context.Background(), mock)
		if got := GetCommandRunner(ctx); got != CommandRunner(mock) {
			t.Error("GetCommandRunner() ignored context runner")
		}
	})
}

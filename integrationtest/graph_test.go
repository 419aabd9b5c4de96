package integrationtest

import (
	"bytes"
	"context"
	"path/filepath"
	"testing"

	"github.com/randalmurphal/flowgraph/pkg/flowgraph"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	stagehand "github.com/stagehand-dev/stagehand"
	"github.com/stagehand-dev/stagehand/pipeline"
	"github.com/stagehand-dev/stagehand/testutil"
	"github.com/stagehand-dev/stagehand/workspace"
)

// TestCustomGraph composes pipeline nodes into a custom graph: a repeated
// test stage, as a flake detector would use.
func TestCustomGraph_RepeatedTests(t *testing.T) {
	root := t.TempDir()
	project := testutil.WriteProject(t, testutil.ProjectOptions{})

	ws, err := workspace.New(root, testJob, testCommit)
	require.NoError(t, err)
	require.NoError(t, ws.Create())
	defer ws.Remove()

	mock := stagehand.NewMockRunner()
	mock.OnCommand(pytestPath(root)).Return("===== 2 passed in 0.05s =====", nil)

	var out bytes.Buffer
	cfg := pipeline.DefaultConfig(project)
	cfg.Output = &out

	attempts := 0
	rerunRouter := func(ctx flowgraph.Context, state pipeline.State) string {
		attempts++
		if attempts < 2 && state.TestPassed {
			return "test"
		}
		return flowgraph.END
	}

	graph := flowgraph.NewGraph[pipeline.State]().
		AddNode("setup", pipeline.SetupNode(cfg)).
		AddNode("test", pipeline.TestNode(cfg)).
		AddEdge("setup", "test").
		AddConditionalEdge("test", rerunRouter).
		SetEntry("setup")

	compiled, err := graph.Compile()
	require.NoError(t, err)

	state := pipeline.NewState(testJob, testCommit)
	state = state.WithWorkspace(ws.Dir(), filepath.Join(ws.Dir(), "venv"))

	baseCtx := stagehand.WithCommandRunner(context.Background(), mock)
	result, err := compiled.Run(flowgraph.NewContext(baseCtx), state)
	require.NoError(t, err)

	assert.True(t, result.TestPassed)
	assert.Equal(t, 2, mock.CallCount(pytestPath(root)), "test stage should have run twice")
}

// TestNodesAreComposable verifies a single node can run outside the full
// pipeline graph.
func TestNodesAreComposable(t *testing.T) {
	root := t.TempDir()
	project := testutil.WriteProject(t, testutil.ProjectOptions{})

	ws, err := workspace.New(root, testJob, testCommit)
	require.NoError(t, err)
	require.NoError(t, ws.Create())
	defer ws.Remove()

	cfg := pipeline.DefaultConfig(project)
	cfg.Output = &bytes.Buffer{}

	mock := stagehand.NewMockRunner()
	baseCtx := stagehand.WithCommandRunner(context.Background(), mock)

	state := pipeline.NewState(testJob, testCommit)
	state = state.WithWorkspace(ws.Dir(), filepath.Join(ws.Dir(), "venv"))

	result, err := pipeline.SetupNode(cfg)(flowgraph.NewContext(baseCtx), state)
	require.NoError(t, err)
	assert.True(t, result.SetupDone)
	assert.False(t, result.HasError())
}

package pipeline

import (
	"github.com/randalmurphal/flowgraph/pkg/flowgraph"
)

// NewGraph builds the three-stage pipeline graph:
//
//	setup -> test -> teardown -> END
//
// A setup failure routes straight to teardown, so the workspace is removed
// no matter how far the run got.
func NewGraph(cfg Config) *flowgraph.Graph[State] {
	cfg = cfg.withDefaults()
	return flowgraph.NewGraph[State]().
		AddNode(NodeSetup, WithStageEvents(SetupNode(cfg), NodeSetup)).
		AddNode(NodeTest, WithStageEvents(TestNode(cfg), NodeTest)).
		AddNode(NodeTeardown, WithStageEvents(TeardownNode(cfg), NodeTeardown)).
		AddConditionalEdge(NodeSetup, afterSetup).
		AddEdge(NodeTest, NodeTeardown).
		AddEdge(NodeTeardown, flowgraph.END).
		SetEntry(NodeSetup)
}

// afterSetup skips the test stage when provisioning failed.
func afterSetup(ctx flowgraph.Context, state State) string {
	if state.HasError() {
		return NodeTeardown
	}
	return NodeTest
}

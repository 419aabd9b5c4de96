// Package status posts pipeline run results as commit statuses on the
// forge that hosts the project (GitHub or GitLab).
package status

import "context"

// State is a commit status state shared across forges.
type State string

// Commit status states.
const (
	StatePending State = "pending"
	StateRunning State = "running"
	StateSuccess State = "success"
	StateFailure State = "failure"
	StateError   State = "error"
)

// Update describes one commit status to post.
type Update struct {
	Commit      string // Full commit SHA
	State       State
	Description string
	TargetURL   string // Optional link to run details
	Context     string // Status check name (default: "stagehand")
}

// DefaultContext is the status check name used when Update.Context is empty.
const DefaultContext = "stagehand"

// Reporter posts commit statuses to a forge.
type Reporter interface {
	Report(ctx context.Context, update Update) error
}

// NopReporter discards all status updates.
type NopReporter struct{}

// Report implements Reporter.
func (NopReporter) Report(ctx context.Context, update Update) error {
	return nil
}

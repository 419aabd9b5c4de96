package pipeline

import (
	"fmt"
	"time"

	gonanoid "github.com/matoous/go-nanoid/v2"
)

// =============================================================================
// Embeddable State Components
// =============================================================================

// WorkspaceState tracks the temporary workspace for the run
type WorkspaceState struct {
	Dir       string    `json:"dir,omitempty"`
	VenvDir   string    `json:"venvDir,omitempty"`
	CreatedAt time.Time `json:"createdAt,omitempty"`
}

// SetupState tracks environment provisioning
type SetupState struct {
	SetupDone bool      `json:"setupDone,omitempty"`
	SetupAt   time.Time `json:"setupAt,omitempty"`
}

// TestFailure represents a single failed test
type TestFailure struct {
	Name   string `json:"name"`
	Output string `json:"output,omitempty"`
}

// TestOutput summarizes a test runner invocation
type TestOutput struct {
	Passed      bool          `json:"passed"`
	TotalTests  int           `json:"totalTests"`
	PassedTests int           `json:"passedTests"`
	FailedTests int           `json:"failedTests"`
	Failures    []TestFailure `json:"failures,omitempty"`
	Raw         string        `json:"raw,omitempty"`
}

// TestState tracks test execution
type TestState struct {
	TestOutput *TestOutput `json:"testOutput,omitempty"`
	TestPassed bool        `json:"testPassed,omitempty"`
	TestRunAt  time.Time   `json:"testRunAt,omitempty"`
}

// TeardownState tracks workspace removal
type TeardownState struct {
	TornDown   bool      `json:"tornDown,omitempty"`
	TeardownAt time.Time `json:"teardownAt,omitempty"`
}

// MetricsState tracks execution timing
type MetricsState struct {
	StartTime     time.Time     `json:"startTime"`
	TotalDuration time.Duration `json:"totalDuration"`
}

// =============================================================================
// State - Full Pipeline State
// =============================================================================

// State is the complete state for one pipeline run
type State struct {
	// Identification
	RunID  string `json:"runId"`
	Job    string `json:"job"`
	Commit string `json:"commit"`

	// Embedded state components
	WorkspaceState
	SetupState
	TestState
	TeardownState
	MetricsState

	// Error tracking
	Error string `json:"error,omitempty"`
}

// NewState creates a new pipeline run state
func NewState(job, commit string) State {
	return State{
		RunID:  generateRunID(job),
		Job:    job,
		Commit: commit,
		MetricsState: MetricsState{
			StartTime: time.Now(),
		},
	}
}

// WithRunID sets a custom run ID
func (s State) WithRunID(runID string) State {
	s.RunID = runID
	return s
}

// WithWorkspace sets the workspace directories
func (s State) WithWorkspace(dir, venvDir string) State {
	s.Dir = dir
	s.VenvDir = venvDir
	return s
}

// FinalizeDuration sets total duration from start time
func (s *State) FinalizeDuration() {
	s.TotalDuration = time.Since(s.StartTime)
}

// SetError sets the error state
func (s *State) SetError(err error) {
	if err != nil {
		s.Error = err.Error()
	}
}

// HasError returns true if state has an error
func (s State) HasError() bool {
	return s.Error != ""
}

// =============================================================================
// State Validation
// =============================================================================

// StateRequirement defines a state prerequisite
type StateRequirement string

const (
	RequireJob       StateRequirement = "job"
	RequireCommit    StateRequirement = "commit"
	RequireWorkspace StateRequirement = "workspace"
	RequireVenv      StateRequirement = "venv"
	RequireSetup     StateRequirement = "setup"
)

// Validate checks if state has required fields
func (s State) Validate(requirements ...StateRequirement) error {
	for _, req := range requirements {
		switch req {
		case RequireJob:
			if s.Job == "" {
				return fmt.Errorf("job required")
			}
		case RequireCommit:
			if s.Commit == "" {
				return fmt.Errorf("commit required")
			}
		case RequireWorkspace:
			if s.Dir == "" {
				return fmt.Errorf("workspace required")
			}
		case RequireVenv:
			if s.VenvDir == "" {
				return fmt.Errorf("venv required")
			}
		case RequireSetup:
			if !s.SetupDone {
				return fmt.Errorf("setup required")
			}
		default:
			return fmt.Errorf("unknown requirement: %s", req)
		}
	}
	return nil
}

// =============================================================================
// Helper Functions
// =============================================================================

const runIDAlphabet = "0123456789abcdefghijklmnopqrstuvwxyz"

// generateRunID creates a unique run ID
func generateRunID(job string) string {
	timestamp := time.Now().Format("2006-01-02")
	suffix := gonanoid.MustGenerate(runIDAlphabet, 8)
	return fmt.Sprintf("%s-%s-%s", timestamp, job, suffix)
}

// =============================================================================
// State Summary
// =============================================================================

// Status returns the terminal status word for the run
func (s State) Status() string {
	switch {
	case s.Error != "":
		return "failed"
	case s.TestPassed:
		return "passed"
	case s.TestOutput != nil:
		return "failed"
	case s.SetupDone:
		return "setup"
	default:
		return "pending"
	}
}

// Summary returns a human-readable summary of the state
func (s State) Summary() string {
	return fmt.Sprintf("Run %s [%s]: %s@%s (duration: %v)",
		s.RunID, s.Status(), s.Job, s.Commit, s.TotalDuration)
}

// Package stagehand provides primitives for running fixed CI pipelines.
package stagehand

// CommandError wraps a failed external command with context.
type CommandError struct {
	Command string   // Command that was run (e.g., "pip")
	Args    []string // Arguments passed to the command
	Output  string   // Combined stdout/stderr output
	Err     error    // Underlying error
}

func (e *CommandError) Error() string {
	if e.Output != "" {
		return e.Output
	}
	if e.Err != nil {
		return e.Err.Error()
	}
	return "command failed"
}

func (e *CommandError) Unwrap() error {
	return e.Err
}

package stagehand

import (
	"bytes"
	"io"
	"os/exec"
	"strings"
)

// =============================================================================
// CommandRunner
// =============================================================================

// CommandRunner executes external commands. The pipeline never shells out
// directly; everything goes through a runner so tests can substitute
// MockRunner for real process execution.
type CommandRunner interface {
	// Run executes a command in the given working directory and returns
	// its trimmed stdout. An empty workDir runs in the current directory.
	Run(workDir string, name string, args ...string) (string, error)
}

// EnvRunner is an optional interface a CommandRunner may implement to
// accept a per-invocation environment. Stage nodes use it to thread the
// virtualenv activation environment through each command.
type EnvRunner interface {
	RunEnv(workDir string, environ []string, name string, args ...string) (string, error)
}

// RunWithEnv executes a command with an explicit environment when the
// runner supports it, falling back to a plain Run otherwise.
func RunWithEnv(runner CommandRunner, workDir string, environ []string, name string, args ...string) (string, error) {
	if er, ok := runner.(EnvRunner); ok {
		return er.RunEnv(workDir, environ, name, args...)
	}
	return runner.Run(workDir, name, args...)
}

// =============================================================================
// ExecRunner
// =============================================================================

// ExecRunner runs commands via os/exec.
type ExecRunner struct {
	environ []string  // explicit process environment; nil inherits the parent's
	output  io.Writer // streams combined output as it is produced
}

// RunnerOption configures ExecRunner.
type RunnerOption func(*ExecRunner)

// WithEnviron sets an explicit environment for every command the runner
// executes. This is how virtualenv activation is carried between stages:
// as data passed to each invocation, not shell state.
func WithEnviron(environ []string) RunnerOption {
	return func(r *ExecRunner) {
		r.environ = environ
	}
}

// WithOutput streams combined stdout/stderr to w while the command runs,
// in addition to capturing it. Used for test runners whose output should
// reach the CI log unbuffered.
func WithOutput(w io.Writer) RunnerOption {
	return func(r *ExecRunner) {
		r.output = w
	}
}

// NewExecRunner creates a runner backed by os/exec.
func NewExecRunner(opts ...RunnerOption) *ExecRunner {
	r := &ExecRunner{}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Run implements CommandRunner.
func (r *ExecRunner) Run(workDir string, name string, args ...string) (string, error) {
	return r.RunEnv(workDir, r.environ, name, args...)
}

// RunEnv implements EnvRunner. A nil environ inherits the parent's.
func (r *ExecRunner) RunEnv(workDir string, environ []string, name string, args ...string) (string, error) {
	cmd := exec.Command(name, args...)
	cmd.Dir = workDir
	if environ != nil {
		cmd.Env = environ
	}

	var stdout, stderr bytes.Buffer
	if r.output != nil {
		cmd.Stdout = io.MultiWriter(&stdout, r.output)
		cmd.Stderr = io.MultiWriter(&stderr, r.output)
	} else {
		cmd.Stdout = &stdout
		cmd.Stderr = &stderr
	}

	if err := cmd.Run(); err != nil {
		output := strings.TrimSpace(stderr.String())
		if output == "" {
			output = strings.TrimSpace(stdout.String())
		}
		return "", &CommandError{
			Command: name,
			Args:    args,
			Output:  output,
			Err:     err,
		}
	}

	return strings.TrimSpace(stdout.String()), nil
}

// =============================================================================
// MockRunner
// =============================================================================

// MockCall records a single Run invocation on a MockRunner.
type MockCall struct {
	WorkDir string
	Environ []string // Explicit environment, if RunEnv was used
	Command string
	Args    []string
}

// MockResponse is a scripted response for a MockRunner.
type MockResponse struct {
	Stdout string
	Err    error
}

// MockRunner is a CommandRunner for tests. Responses are keyed by command
// name plus arguments; a bare command name matches any arguments, and "*"
// matches any command.
type MockRunner struct {
	Responses       map[string]MockResponse
	DefaultResponse MockResponse
	Calls           []MockCall
}

// NewMockRunner creates a mock runner with no scripted responses.
func NewMockRunner() *MockRunner {
	return &MockRunner{
		Responses: make(map[string]MockResponse),
	}
}

// MockExpectation allows fluent response registration.
type MockExpectation struct {
	runner *MockRunner
	key    string
}

// OnCommand registers a response for the exact command and arguments.
// With no arguments the response matches any invocation of the command.
func (m *MockRunner) OnCommand(name string, args ...string) *MockExpectation {
	key := name
	if len(args) > 0 {
		key = name + " " + strings.Join(args, " ")
	}
	return &MockExpectation{runner: m, key: key}
}

// OnAnyCommand registers a wildcard response matching every command.
func (m *MockRunner) OnAnyCommand() *MockExpectation {
	return &MockExpectation{runner: m, key: "*"}
}

// Return sets the scripted stdout and error for the expectation.
func (e *MockExpectation) Return(stdout string, err error) *MockRunner {
	e.runner.Responses[e.key] = MockResponse{Stdout: stdout, Err: err}
	return e.runner
}

// Run implements CommandRunner.
func (m *MockRunner) Run(workDir string, name string, args ...string) (string, error) {
	return m.RunEnv(workDir, nil, name, args...)
}

// RunEnv implements EnvRunner. The environment is recorded but has no
// effect on response matching.
func (m *MockRunner) RunEnv(workDir string, environ []string, name string, args ...string) (string, error) {
	m.Calls = append(m.Calls, MockCall{
		WorkDir: workDir,
		Environ: environ,
		Command: name,
		Args:    args,
	})

	// Most specific first: exact command+args, then command, then wildcard.
	if len(args) > 0 {
		key := name + " " + strings.Join(args, " ")
		if resp, ok := m.Responses[key]; ok {
			return resp.Stdout, resp.Err
		}
	}
	if resp, ok := m.Responses[name]; ok {
		return resp.Stdout, resp.Err
	}
	if resp, ok := m.Responses["*"]; ok {
		return resp.Stdout, resp.Err
	}

	return m.DefaultResponse.Stdout, m.DefaultResponse.Err
}

// WasCalled reports whether the command was invoked. With arguments it
// requires an exact argument prefix-free match.
func (m *MockRunner) WasCalled(name string, args ...string) bool {
	for _, call := range m.Calls {
		if call.Command != name {
			continue
		}
		if len(args) == 0 || argsMatch(call.Args, args) {
			return true
		}
	}
	return false
}

// CallCount returns how many times the command was invoked.
func (m *MockRunner) CallCount(name string) int {
	count := 0
	for _, call := range m.Calls {
		if call.Command == name {
			count++
		}
	}
	return count
}

// argsMatch reports whether two argument lists are identical.
func argsMatch(actual, expected []string) bool {
	if len(actual) != len(expected) {
		return false
	}
	for i := range actual {
		if actual[i] != expected[i] {
			return false
		}
	}
	return true
}

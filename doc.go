// Package stagehand runs a fixed three-stage CI pipeline for Python
// projects: provision an isolated virtualenv workspace, run the test
// suite, and always tear the workspace down afterward.
//
// The package is organized into subpackages by domain:
//
//   - workspace: temporary workspace lifecycle (create, remove)
//   - venv: virtual environment creation and explicit activation
//   - pipeline: stage nodes, run state, and the run orchestrator
//   - config: environment and YAML configuration
//   - notify: notification services (Slack, webhook, log)
//   - status: commit status reporting for GitHub and GitLab
//   - history: SQLite-backed run history
//   - testutil: test utilities and fixtures
//
// # Quick Start
//
//	import (
//	    "github.com/stagehand-dev/stagehand/pipeline"
//	)
//
//	cfg := pipeline.DefaultConfig("/path/to/project")
//	runner := pipeline.NewRunner(cfg)
//	state, err := runner.Run(ctx, "myjob", "abc123", "/tmp")
//
// Each stage receives its environment explicitly (an environment-variable
// slice threaded through every command invocation) rather than relying on
// shell state, because stage invocations do not share a shell.
//
// See individual package documentation for detailed usage.
package stagehand

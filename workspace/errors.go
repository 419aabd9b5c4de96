package workspace

import "errors"

// ErrWorkspaceExists indicates another run already claimed the same
// job+commit workspace directory.
var ErrWorkspaceExists = errors.New("workspace already exists for this job and commit")

package pipeline

import (
	"errors"
	"fmt"
)

// Sentinel errors for terminal run outcomes.
var (
	// ErrSetupFailed indicates environment provisioning did not complete.
	ErrSetupFailed = errors.New("environment setup failed")

	// ErrInstallFailed indicates the project package did not install into
	// the virtualenv.
	ErrInstallFailed = errors.New("package install failed")

	// ErrTestsFailed indicates the test runner reported failures.
	ErrTestsFailed = errors.New("tests failed")
)

// StageError wraps an error with the stage it occurred in.
type StageError struct {
	Stage string
	Err   error
}

func (e *StageError) Error() string {
	return fmt.Sprintf("%s stage: %v", e.Stage, e.Err)
}

func (e *StageError) Unwrap() error {
	return e.Err
}

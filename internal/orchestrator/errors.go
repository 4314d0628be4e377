package orchestrator

import (
	"fmt"

	"promotectl/internal/smoke"
)

// BuildError means the target service failed to build or start. It is
// rollback-eligible: the target is stopped, the active environment is never
// touched.
type BuildError struct {
	Service string
	Err     error
}

func (e *BuildError) Error() string {
	return fmt.Sprintf("building and starting %s: %v", e.Service, e.Err)
}

func (e *BuildError) Unwrap() error {
	return e.Err
}

// SmokeFailureError carries the first failing smoke check. Like every
// rollback-eligible error, the state machine treats it the same regardless
// of which check failed.
type SmokeFailureError struct {
	Check smoke.CheckResult
}

func (e *SmokeFailureError) Error() string {
	if e.Check.Detail != "" {
		return fmt.Sprintf("smoke test %s failed: %s", e.Check.Name, e.Check.Detail)
	}
	return fmt.Sprintf("smoke test %s failed", e.Check.Name)
}

// InterruptedError reports that the promotion was aborted by a signal. The
// stage it was interrupted in determines whether the target was stopped.
type InterruptedError struct {
	State State
}

func (e *InterruptedError) Error() string {
	return fmt.Sprintf("promotion interrupted during %s", e.State)
}

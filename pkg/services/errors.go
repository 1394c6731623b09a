// Package services holds the inbound application services around the engine:
// template save and versioning, workflow runs, and template-version
// reconciliation of running instances.
package services

import (
	"errors"
	"fmt"
)

var (
	// ErrKickoffIncomplete indicates a run request missing required kickoff
	// field values.
	ErrKickoffIncomplete = errors.New("required kickoff fields missing")

	// ErrStaleSnapshot indicates a reconciliation against a snapshot version
	// not newer than the one the workflow already runs.
	ErrStaleSnapshot = errors.New("snapshot version is not newer than the workflow's")
)

// Error wraps service failures with the operation and the entity identity.
type Error struct {
	Op  string
	ID  string
	Err error
}

func (e *Error) Error() string {
	return fmt.Sprintf("%s failed for %s: %v", e.Op, e.ID, e.Err)
}

func (e *Error) Unwrap() error {
	return e.Err
}

func (e *Error) Is(target error) bool {
	return errors.Is(e.Err, target)
}

func newError(op, id string, err error) *Error {
	return &Error{Op: op, ID: id, Err: err}
}

// IsKickoffIncomplete checks if an error indicates missing required kickoff
// values.
func IsKickoffIncomplete(err error) bool {
	return errors.Is(err, ErrKickoffIncomplete)
}

// IsStaleSnapshot checks if an error indicates an outdated snapshot version.
func IsStaleSnapshot(err error) bool {
	return errors.Is(err, ErrStaleSnapshot)
}

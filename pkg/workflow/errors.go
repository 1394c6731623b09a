package workflow

import (
	"errors"
	"fmt"
)

// Standard engine error types.
var (
	// ErrWorkflowEnded indicates a mutation on a workflow already in a
	// terminal status.
	ErrWorkflowEnded = errors.New("workflow already ended")

	// ErrNotDelayed indicates a resume on a workflow that is not delayed.
	ErrNotDelayed = errors.New("workflow is not delayed")

	// ErrPerformerNotAssigned indicates a completion signal from a user who
	// holds no active performer row on the task, directly or through a group.
	ErrPerformerNotAssigned = errors.New("performer not assigned to task")

	// ErrInvalidReturn indicates a return target that is not an earlier task.
	ErrInvalidReturn = errors.New("return target must be an earlier task")
)

// Error wraps engine failures with the operation and the entity identity.
type Error struct {
	Op         string
	WorkflowID string
	APIName    string
	Err        error
}

func (e *Error) Error() string {
	if e.APIName == "" {
		return fmt.Sprintf("%s failed for workflow %s: %v", e.Op, e.WorkflowID, e.Err)
	}

	return fmt.Sprintf("%s failed for workflow %s task %s: %v", e.Op, e.WorkflowID, e.APIName, e.Err)
}

func (e *Error) Unwrap() error {
	return e.Err
}

func (e *Error) Is(target error) bool {
	return errors.Is(e.Err, target)
}

func newError(op, workflowID, apiName string, err error) *Error {
	return &Error{Op: op, WorkflowID: workflowID, APIName: apiName, Err: err}
}

// IsWorkflowEnded checks if an error indicates a terminal-status workflow.
func IsWorkflowEnded(err error) bool {
	return errors.Is(err, ErrWorkflowEnded)
}

// IsNotDelayed checks if an error indicates a resume on a non-delayed
// workflow.
func IsNotDelayed(err error) bool {
	return errors.Is(err, ErrNotDelayed)
}

// IsPerformerNotAssigned checks if an error indicates an unassigned
// completion attempt.
func IsPerformerNotAssigned(err error) bool {
	return errors.Is(err, ErrPerformerNotAssigned)
}

// IsInvalidReturn checks if an error indicates a bad return target.
func IsInvalidReturn(err error) bool {
	return errors.Is(err, ErrInvalidReturn)
}

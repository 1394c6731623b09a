package persistence

import (
	"errors"
	"fmt"
)

// Standard persistence error types all implementations use.
var (
	// ErrTemplateNotFound indicates no template exists for the identifier.
	ErrTemplateNotFound = errors.New("template not found")

	// ErrWorkflowNotFound indicates no workflow exists for the identifier,
	// including workflows already terminated.
	ErrWorkflowNotFound = errors.New("workflow not found")

	// ErrTaskNotFound indicates a task lookup inside a workflow failed.
	ErrTaskNotFound = errors.New("task not found")

	// ErrWorkflowAlreadyExists indicates a create with a duplicate id.
	ErrWorkflowAlreadyExists = errors.New("workflow already exists")

	// ErrStaleWorkflow indicates a write lost a concurrent race on the same
	// workflow; the caller must retry with fresh state.
	ErrStaleWorkflow = errors.New("stale workflow version")
)

// WorkflowError wraps workflow persistence failures with the operation and
// the entity identity, so callers can report precisely.
type WorkflowError struct {
	Op         string
	WorkflowID string
	Err        error
}

func (e *WorkflowError) Error() string {
	return fmt.Sprintf("%s failed for workflow %s: %v", e.Op, e.WorkflowID, e.Err)
}

func (e *WorkflowError) Unwrap() error {
	return e.Err
}

func (e *WorkflowError) Is(target error) bool {
	return errors.Is(e.Err, target)
}

func NewWorkflowError(op, workflowID string, err error) *WorkflowError {
	return &WorkflowError{Op: op, WorkflowID: workflowID, Err: err}
}

// TemplateError wraps template persistence failures.
type TemplateError struct {
	Op         string
	TemplateID string
	Err        error
}

func (e *TemplateError) Error() string {
	return fmt.Sprintf("%s failed for template %s: %v", e.Op, e.TemplateID, e.Err)
}

func (e *TemplateError) Unwrap() error {
	return e.Err
}

func (e *TemplateError) Is(target error) bool {
	return errors.Is(e.Err, target)
}

func NewTemplateError(op, templateID string, err error) *TemplateError {
	return &TemplateError{Op: op, TemplateID: templateID, Err: err}
}

// IsWorkflowNotFound checks if an error indicates a missing workflow.
func IsWorkflowNotFound(err error) bool {
	return errors.Is(err, ErrWorkflowNotFound)
}

// IsTemplateNotFound checks if an error indicates a missing template.
func IsTemplateNotFound(err error) bool {
	return errors.Is(err, ErrTemplateNotFound)
}

// IsTaskNotFound checks if an error indicates a missing task.
func IsTaskNotFound(err error) bool {
	return errors.Is(err, ErrTaskNotFound)
}

// IsStaleWorkflow checks if an error indicates a lost optimistic write race.
func IsStaleWorkflow(err error) bool {
	return errors.Is(err, ErrStaleWorkflow)
}

// IsNotFound checks for any of the not-found kinds.
func IsNotFound(err error) bool {
	return IsWorkflowNotFound(err) || IsTemplateNotFound(err) || IsTaskNotFound(err)
}

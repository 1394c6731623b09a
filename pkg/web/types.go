package web

import "github.com/procwise/procwise/pkg/models"

// RunWorkflowRequest starts a workflow from a template's current snapshot.
type RunWorkflowRequest struct {
	TemplateID     string                      `json:"template_id" validate:"required"`
	Name           string                      `json:"name,omitempty"`
	IsUrgent       bool                        `json:"is_urgent,omitempty"`
	AncestorTaskID string                      `json:"ancestor_task_id,omitempty"`
	KickoffValues  map[string]models.FieldValue `json:"kickoff_values,omitempty"`
}

// CompleteTaskRequest records a performer's completion of a task, optionally
// carrying task field values keyed by field api_name.
type CompleteTaskRequest struct {
	UserID string                      `json:"user_id" validate:"required"`
	Values map[string]models.FieldValue `json:"values,omitempty"`
}

// ForceDelayRequest pauses a workflow for the given duration, expressed in Go
// duration syntax ("72h", "30m").
type ForceDelayRequest struct {
	Duration string `json:"duration" validate:"required"`
}

// UpdateKickoffRequest edits kickoff field values on a running workflow.
type UpdateKickoffRequest struct {
	Values map[string]models.FieldValue `json:"values" validate:"required,min=1"`
}

package models

import (
	"slices"
	"time"
)

// WorkflowStatus is the lifecycle state of a workflow instance. Terminated
// workflows are hard-deleted and have no status of their own.
type WorkflowStatus string

const (
	WorkflowStatusRunning WorkflowStatus = "running"
	WorkflowStatusDelayed WorkflowStatus = "delayed"
	WorkflowStatusDone    WorkflowStatus = "done"
)

// Workflow is a live execution of a Template, materialized from one snapshot
// version. The workflow owns its tasks; tasks own their performers, fields,
// checklists and delays. LockVersion implements the optimistic per-workflow
// serialization required for advancement and reconciliation.
type Workflow struct {
	ID              string         `json:"id"`
	TemplateID      string         `json:"template_id"`
	TemplateVersion int            `json:"template_version"`
	Name            string         `json:"name"`
	NameTemplate    string         `json:"name_template"`
	Status          WorkflowStatus `json:"status"`
	CurrentTask     int            `json:"current_task"` // 1-based task number
	TasksCount      int            `json:"tasks_count"`
	IsUrgent        bool           `json:"is_urgent"`
	AncestorTaskID  string         `json:"ancestor_task_id,omitempty"`

	KickoffDescription string       `json:"kickoff_description"`
	KickoffFields      []*TaskField `json:"kickoff_fields"`
	Tasks              []*Task      `json:"tasks"`

	// Members is the union of every user ever assigned to the workflow.
	Members []string `json:"members"`

	DateCreated   time.Time  `json:"date_created"`
	DateCompleted *time.Time `json:"date_completed,omitempty"`

	LockVersion int `json:"lock_version"`
}

// Ended reports whether the workflow reached a terminal status.
func (w *Workflow) Ended() bool {
	return w.Status == WorkflowStatusDone
}

// CurrentTaskInstance returns the task the pointer is at, or nil when the
// pointer is out of range (e.g. a finished workflow).
func (w *Workflow) CurrentTaskInstance() *Task {
	t, _ := w.TaskByNumber(w.CurrentTask)

	return t
}

// TaskByNumber returns the task at the given 1-based number.
func (w *Workflow) TaskByNumber(number int) (*Task, bool) {
	for _, t := range w.Tasks {
		if t.Number == number {
			return t, true
		}
	}

	return nil, false
}

// TaskByAPIName returns the task with the given api_name.
func (w *Workflow) TaskByAPIName(apiName string) (*Task, bool) {
	for _, t := range w.Tasks {
		if t.APIName == apiName {
			return t, true
		}
	}

	return nil, false
}

// TaskByID returns the task with the given id.
func (w *Workflow) TaskByID(id string) (*Task, bool) {
	for _, t := range w.Tasks {
		if t.ID == id {
			return t, true
		}
	}

	return nil, false
}

// KickoffFieldByAPIName returns the kickoff form field with the given
// api_name.
func (w *Workflow) KickoffFieldByAPIName(apiName string) (*TaskField, bool) {
	for _, f := range w.KickoffFields {
		if f.APIName == apiName {
			return f, true
		}
	}

	return nil, false
}

// FieldValues collects the current value of every field in the workflow:
// kickoff fields plus each task's form fields, indexed by api_name. This is
// the evaluation context for conditions, performer resolution and rendering.
func (w *Workflow) FieldValues() FieldValueMap {
	values := make(FieldValueMap, len(w.KickoffFields))

	for _, f := range w.KickoffFields {
		values[f.APIName] = f.Value
	}

	for _, t := range w.Tasks {
		for _, f := range t.Fields {
			values[f.APIName] = f.Value
		}
	}

	return values
}

// KickoffFilled reports whether the kickoff form has been submitted with all
// required fields present.
func (w *Workflow) KickoffFilled() bool {
	for _, f := range w.KickoffFields {
		if f.IsRequired && f.Value.IsEmpty() {
			return false
		}
	}

	return true
}

// SortTasks orders tasks by ascending number.
func (w *Workflow) SortTasks() {
	slices.SortStableFunc(w.Tasks, func(a, b *Task) int {
		return a.Number - b.Number
	})
}

// AddMember records a user as a workflow member. Membership only grows;
// removing a performer never removes history of participation.
func (w *Workflow) AddMember(userID string) {
	if userID == "" || slices.Contains(w.Members, userID) {
		return
	}

	w.Members = append(w.Members, userID)
}

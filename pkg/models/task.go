package models

import "time"

// TaskStatus is the lifecycle state of one materialized task.
type TaskStatus string

const (
	TaskStatusPending   TaskStatus = "pending"
	TaskStatusActive    TaskStatus = "active"
	TaskStatusDelayed   TaskStatus = "delayed"
	TaskStatusSkipped   TaskStatus = "skipped"
	TaskStatusCompleted TaskStatus = "completed"
)

// DirectlyStatus is the soft-delete flag on a performer assignment. A row
// marked deleted was explicitly removed, which is distinct from never having
// been assigned; completion history on removed rows is preserved for audit.
type DirectlyStatus string

const (
	DirectlyStatusCreated DirectlyStatus = "created"
	DirectlyStatusDeleted DirectlyStatus = "deleted"
)

// Task is the materialized copy of a TaskTemplate for one workflow instance.
// APIName is copied from the template and is the identity key reconciliation
// matches on.
type Task struct {
	ID                     string        `json:"id"`
	APIName                string        `json:"api_name"`
	Number                 int           `json:"number"`
	Name                   string        `json:"name"`
	Description            string        `json:"description"` // raw template text
	DescriptionRendered    string        `json:"description_rendered"`
	Status                 TaskStatus    `json:"status"`
	RequireCompletionByAll bool          `json:"require_completion_by_all"`
	Delay                  time.Duration `json:"delay,omitempty"`
	IsUrgent               bool          `json:"is_urgent"`

	RawPerformers []*RawPerformer  `json:"raw_performers"`
	Performers    []*TaskPerformer `json:"performers"`
	Fields        []*TaskField     `json:"fields"`
	Checklists    []*Checklist     `json:"checklists"`
	Delays        []*Delay         `json:"delays"`
	Conditions    []*Condition     `json:"conditions"`

	ChecklistsTotal  int `json:"checklists_total"`
	ChecklistsMarked int `json:"checklists_marked"`

	DateFirstStarted *time.Time `json:"date_first_started,omitempty"`
	DateStarted      *time.Time `json:"date_started,omitempty"`
	DateCompleted    *time.Time `json:"date_completed,omitempty"`
}

// ActiveDelay returns the task's open delay, if any. A task has at most one
// delay with a nil end date at a time.
func (t *Task) ActiveDelay() *Delay {
	for _, d := range t.Delays {
		if d.Active() {
			return d
		}
	}

	return nil
}

// ActivePerformers returns performer rows not soft-deleted.
func (t *Task) ActivePerformers() []*TaskPerformer {
	out := make([]*TaskPerformer, 0, len(t.Performers))

	for _, p := range t.Performers {
		if p.DirectlyStatus != DirectlyStatusDeleted {
			out = append(out, p)
		}
	}

	return out
}

// PerformerFor finds the performer row keyed by (type, source id),
// soft-deleted rows included.
func (t *Task) PerformerFor(pType PerformerType, sourceID string) (*TaskPerformer, bool) {
	for _, p := range t.Performers {
		if p.Type == pType && p.SourceID == sourceID {
			return p, true
		}
	}

	return nil, false
}

// FieldByAPIName returns the task form field with the given api_name.
func (t *Task) FieldByAPIName(apiName string) (*TaskField, bool) {
	for _, f := range t.Fields {
		if f.APIName == apiName {
			return f, true
		}
	}

	return nil, false
}

// ChecklistByAPIName returns the checklist with the given api_name.
func (t *Task) ChecklistByAPIName(apiName string) (*Checklist, bool) {
	for _, c := range t.Checklists {
		if c.APIName == apiName {
			return c, true
		}
	}

	return nil, false
}

// RecountChecklists recomputes the denormalized checklist counters.
func (t *Task) RecountChecklists() {
	var total, marked int

	for _, c := range t.Checklists {
		for _, s := range c.Selections {
			total++
			if s.IsSelected {
				marked++
			}
		}
	}

	t.ChecklistsTotal = total
	t.ChecklistsMarked = marked
}

// TaskPerformer joins a task with a user or group responsible for it. For
// field-resolved performers SourceID holds the resolved user id and Type is
// user; the originating field is not tracked on the row.
type TaskPerformer struct {
	ID             string         `json:"id"`
	Type           PerformerType  `json:"type"`
	SourceID       string         `json:"source_id"`
	IsCompleted    bool           `json:"is_completed"`
	DateCompleted  *time.Time     `json:"date_completed,omitempty"`
	DirectlyStatus DirectlyStatus `json:"directly_status"`
	DateCreated    time.Time      `json:"date_created"`
}

// Delay blocks a task from starting until it runs out. EndDate is nil while
// the delay is active and set when it is closed, either by expiry or by an
// administrative resume.
type Delay struct {
	ID               string        `json:"id"`
	StartDate        time.Time     `json:"start_date"`
	Duration         time.Duration `json:"duration"`
	EndDate          *time.Time    `json:"end_date,omitempty"`
	EstimatedEndDate time.Time     `json:"estimated_end_date"`
}

// Active reports whether the delay is still open.
func (d *Delay) Active() bool {
	return d.EndDate == nil
}

// Expired reports whether an active delay has run past its estimated end.
func (d *Delay) Expired(now time.Time) bool {
	return d.Active() && !now.Before(d.EstimatedEndDate)
}

// TaskField is the instance-level copy of a FieldTemplate, identified by
// api_name, carrying the recorded value in typed, cleared and markdown forms.
type TaskField struct {
	APIName    string            `json:"api_name"`
	Name       string            `json:"name"`
	Type       FieldType         `json:"type"`
	IsRequired bool              `json:"is_required"`
	Order      int               `json:"order"`
	Value      FieldValue        `json:"value"`
	ClearValue string            `json:"clear_value"`
	Markdown   string            `json:"markdown"`
	Selections []*FieldSelection `json:"selections,omitempty"`
}

// SetValue records a value and refreshes the derived representations,
// including per-selection flags for selection-typed fields.
func (f *TaskField) SetValue(v FieldValue) {
	f.Value = v
	f.ClearValue = v.ClearValue()
	f.Markdown = v.Markdown()

	if f.Type.SelectionType() {
		selected := make(map[string]bool, len(v.Selections))
		for _, api := range v.Selections {
			selected[api] = true
		}

		for _, s := range f.Selections {
			s.IsSelected = selected[s.APIName]
		}
	}
}

// FieldSelection is the instance copy of a FieldSelectionTemplate.
type FieldSelection struct {
	APIName    string `json:"api_name"`
	Value      string `json:"value"`
	IsSelected bool   `json:"is_selected"`
}

// Checklist is the instance copy of a ChecklistTemplate.
type Checklist struct {
	APIName    string                `json:"api_name"`
	Selections []*ChecklistSelection `json:"selections"`
}

// SelectionByAPIName returns the checklist item with the given api_name.
func (c *Checklist) SelectionByAPIName(apiName string) (*ChecklistSelection, bool) {
	for _, s := range c.Selections {
		if s.APIName == apiName {
			return s, true
		}
	}

	return nil, false
}

// ChecklistSelection is one instance checklist item. Value keeps the raw
// template text; Rendered is the text with field placeholders substituted.
// Selection state survives template text edits as long as the api_name is
// unchanged.
type ChecklistSelection struct {
	APIName        string     `json:"api_name"`
	Value          string     `json:"value"`
	Rendered       string     `json:"rendered"`
	IsSelected     bool       `json:"is_selected"`
	DateSelected   *time.Time `json:"date_selected,omitempty"`
	SelectedUserID string     `json:"selected_user_id,omitempty"`
}

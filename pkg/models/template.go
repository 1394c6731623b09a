// Package models defines the core domain model for template-driven workflow
// execution: versioned templates on one side and live workflow instances on
// the other. Every template entity carries a stable api_name used as its
// cross-version identity; the storage primary key is never used for matching.
package models

import "time"

// Template is the versioned blueprint a workflow runs from. Version is a
// monotonic integer bumped on every save; a running workflow records the
// version it was materialized from and is reconciled against later versions
// explicitly.
type Template struct {
	ID             string          `json:"id"`
	Name           string          `json:"name"             validate:"required,min=1"`
	WFNameTemplate string          `json:"wf_name_template"`
	Version        int             `json:"version"`
	Kickoff        KickoffTemplate `json:"kickoff"`
	Tasks          []*TaskTemplate `json:"tasks"            validate:"required,min=1,dive"`
	DateCreated    time.Time       `json:"date_created"`
	DateUpdated    time.Time       `json:"date_updated"`
}

// TaskByAPIName returns the task template with the given api_name.
func (t *Template) TaskByAPIName(apiName string) (*TaskTemplate, bool) {
	for _, task := range t.Tasks {
		if task.APIName == apiName {
			return task, true
		}
	}

	return nil, false
}

// FieldTemplates returns every field template in the snapshot, kickoff form
// included.
func (t *Template) FieldTemplates() []*FieldTemplate {
	fields := make([]*FieldTemplate, 0, len(t.Kickoff.Fields))
	fields = append(fields, t.Kickoff.Fields...)

	for _, task := range t.Tasks {
		fields = append(fields, task.Fields...)
	}

	return fields
}

// KickoffTemplate describes the initial data-collection form filled when a
// workflow is started.
type KickoffTemplate struct {
	Description string           `json:"description"`
	Fields      []*FieldTemplate `json:"fields" validate:"dive"`
}

// TaskTemplate is one ordered step definition inside a template.
type TaskTemplate struct {
	APIName                string               `json:"api_name"    validate:"required"`
	Number                 int                  `json:"number"      validate:"min=1"`
	Name                   string               `json:"name"        validate:"required"`
	Description            string               `json:"description"`
	RequireCompletionByAll bool                 `json:"require_completion_by_all"`
	Delay                  time.Duration        `json:"delay,omitempty"`
	RawPerformers          []*RawPerformer      `json:"raw_performers" validate:"required,min=1,dive"`
	Fields                 []*FieldTemplate     `json:"fields"         validate:"dive"`
	Checklists             []*ChecklistTemplate `json:"checklists"     validate:"dive"`
	Conditions             []*Condition         `json:"conditions"     validate:"dive"`
}

// FieldTemplate declares a form field on the kickoff form or a task form.
type FieldTemplate struct {
	APIName    string                    `json:"api_name" validate:"required"`
	Name       string                    `json:"name"     validate:"required"`
	Type       FieldType                 `json:"type"     validate:"required"`
	IsRequired bool                      `json:"is_required"`
	Order      int                       `json:"order"`
	Selections []*FieldSelectionTemplate `json:"selections,omitempty" validate:"dive"`
}

// SelectionByAPIName returns the selection with the given api_name.
func (f *FieldTemplate) SelectionByAPIName(apiName string) (*FieldSelectionTemplate, bool) {
	for _, s := range f.Selections {
		if s.APIName == apiName {
			return s, true
		}
	}

	return nil, false
}

// FieldSelectionTemplate is one choice of a dropdown/radio/checkbox field.
type FieldSelectionTemplate struct {
	APIName string `json:"api_name" validate:"required"`
	Value   string `json:"value"    validate:"required"`
}

// ChecklistTemplate groups checklist items attached to a task.
type ChecklistTemplate struct {
	APIName    string                        `json:"api_name" validate:"required"`
	Selections []*ChecklistSelectionTemplate `json:"selections" validate:"dive"`
}

// ChecklistSelectionTemplate is one checklist item. Its text may embed
// {{ field-api-name }} placeholders rendered per instance.
type ChecklistSelectionTemplate struct {
	APIName string `json:"api_name" validate:"required"`
	Value   string `json:"value"    validate:"required"`
}

// PerformerType distinguishes the three performer specification kinds.
type PerformerType string

const (
	PerformerTypeUser  PerformerType = "user"
	PerformerTypeGroup PerformerType = "group"
	PerformerTypeField PerformerType = "field"
)

// RawPerformer is a template-level performer specification: a fixed user, a
// fixed group, or "the value of user field SourceID". Raw performers are
// resolved to concrete TaskPerformer rows per instance.
type RawPerformer struct {
	Type     PerformerType `json:"type"      validate:"required,oneof=user group field"`
	SourceID string        `json:"source_id" validate:"required"`
}

// Package validation checks template snapshots before they are saved. A
// snapshot passes three gates: the structural JSON schema, struct-level tag
// validation, and referential integrity over api_name references. Snapshots
// that pass are trusted downstream; condition evaluation and reconciliation
// never re-check references.
package validation

import (
	"errors"
	"fmt"
	"slices"
	"strings"

	"github.com/go-playground/validator/v10"
	"github.com/xeipuuv/gojsonschema"

	"github.com/procwise/procwise/pkg/models"
)

var (
	// ErrInvalidSnapshot indicates the snapshot failed structural or struct
	// tag validation.
	ErrInvalidSnapshot = errors.New("invalid template snapshot")

	// ErrDanglingReference indicates an api_name reference that points at
	// nothing: a predicate naming an unknown field or task, a selection value
	// outside the field's declared selections, or a performer field spec
	// naming a non-user field.
	ErrDanglingReference = errors.New("dangling api_name reference")

	// ErrDuplicateAPIName indicates two sibling entities sharing an api_name.
	ErrDuplicateAPIName = errors.New("duplicate api_name")
)

// Error carries the entity that failed so that save endpoints can point at
// the offending part of the snapshot.
type Error struct {
	APIName string
	Detail  string
	Err     error
}

func (e *Error) Error() string {
	if e.APIName == "" {
		return fmt.Sprintf("%v: %s", e.Err, e.Detail)
	}

	return fmt.Sprintf("%v: %s: %s", e.Err, e.APIName, e.Detail)
}

func (e *Error) Unwrap() error { return e.Err }

func newError(sentinel error, apiName, format string, args ...any) *Error {
	return &Error{APIName: apiName, Detail: fmt.Sprintf(format, args...), Err: sentinel}
}

// IsDanglingReference checks if an error indicates a broken api_name
// reference.
func IsDanglingReference(err error) bool {
	return errors.Is(err, ErrDanglingReference)
}

// IsValidationError checks if an error came from any of the snapshot
// validation gates.
func IsValidationError(err error) bool {
	return errors.Is(err, ErrInvalidSnapshot) ||
		errors.Is(err, ErrDuplicateAPIName) ||
		errors.Is(err, ErrDanglingReference)
}

type Validator struct {
	schema   *gojsonschema.Schema
	validate *validator.Validate
}

func NewValidator() (*Validator, error) {
	schema, err := gojsonschema.NewSchema(gojsonschema.NewStringLoader(templateSchema))
	if err != nil {
		return nil, fmt.Errorf("failed to compile template schema: %w", err)
	}

	return &Validator{
		schema:   schema,
		validate: validator.New(),
	}, nil
}

// ValidateRaw checks raw snapshot JSON against the structural schema.
func (v *Validator) ValidateRaw(raw []byte) error {
	result, err := v.schema.Validate(gojsonschema.NewBytesLoader(raw))
	if err != nil {
		return newError(ErrInvalidSnapshot, "", "%v", err)
	}

	if !result.Valid() {
		details := make([]string, 0, len(result.Errors()))
		for _, desc := range result.Errors() {
			details = append(details, desc.String())
		}

		return newError(ErrInvalidSnapshot, "", "%s", strings.Join(details, "; "))
	}

	return nil
}

// ValidateTemplate runs struct tag validation and the referential integrity
// checks on a decoded snapshot.
func (v *Validator) ValidateTemplate(template *models.Template) error {
	if err := v.validate.Struct(template); err != nil {
		return newError(ErrInvalidSnapshot, "", "%v", err)
	}

	if err := checkTaskOrdering(template); err != nil {
		return err
	}

	if err := checkUniqueAPINames(template); err != nil {
		return err
	}

	fields := fieldIndex(template)

	for _, task := range template.Tasks {
		if err := checkPerformers(task, fields); err != nil {
			return err
		}

		for _, condition := range task.Conditions {
			if err := checkCondition(template, task, condition, fields); err != nil {
				return err
			}
		}
	}

	return nil
}

// fieldRef locates a field template together with the task number it belongs
// to. Kickoff fields carry number 0 so ordering checks treat them as always
// available.
type fieldRef struct {
	field      *models.FieldTemplate
	taskNumber int
}

func fieldIndex(template *models.Template) map[string]fieldRef {
	index := make(map[string]fieldRef)

	for _, f := range template.Kickoff.Fields {
		index[f.APIName] = fieldRef{field: f, taskNumber: 0}
	}

	for _, task := range template.Tasks {
		for _, f := range task.Fields {
			index[f.APIName] = fieldRef{field: f, taskNumber: task.Number}
		}
	}

	return index
}

// checkTaskOrdering requires task numbers to form the contiguous sequence
// 1..N. Advancement walks the sequence by number, gaps would strand the
// current pointer.
func checkTaskOrdering(template *models.Template) error {
	numbers := make([]int, 0, len(template.Tasks))
	for _, task := range template.Tasks {
		numbers = append(numbers, task.Number)
	}

	slices.Sort(numbers)

	for i, n := range numbers {
		if n != i+1 {
			return newError(ErrInvalidSnapshot, "", "task numbers must be contiguous from 1, got %v", numbers)
		}
	}

	return nil
}

func checkUniqueAPINames(template *models.Template) error {
	tasks := make(map[string]bool)

	for _, task := range template.Tasks {
		if tasks[task.APIName] {
			return newError(ErrDuplicateAPIName, task.APIName, "task api_name declared twice")
		}

		tasks[task.APIName] = true

		if err := checkUniqueChildAPINames(task); err != nil {
			return err
		}
	}

	fields := make(map[string]bool)
	for _, f := range template.FieldTemplates() {
		if fields[f.APIName] {
			return newError(ErrDuplicateAPIName, f.APIName, "field api_name declared twice")
		}

		fields[f.APIName] = true

		if err := checkUniqueSelections(f); err != nil {
			return err
		}
	}

	return nil
}

func checkUniqueChildAPINames(task *models.TaskTemplate) error {
	checklists := make(map[string]bool)

	for _, c := range task.Checklists {
		if checklists[c.APIName] {
			return newError(ErrDuplicateAPIName, c.APIName, "checklist api_name declared twice in task %s", task.APIName)
		}

		checklists[c.APIName] = true

		items := make(map[string]bool)

		for _, s := range c.Selections {
			if items[s.APIName] {
				return newError(ErrDuplicateAPIName, s.APIName, "checklist item api_name declared twice in checklist %s", c.APIName)
			}

			items[s.APIName] = true
		}
	}

	conditions := make(map[string]bool)

	for _, c := range task.Conditions {
		if conditions[c.APIName] {
			return newError(ErrDuplicateAPIName, c.APIName, "condition api_name declared twice in task %s", task.APIName)
		}

		conditions[c.APIName] = true
	}

	return nil
}

func checkUniqueSelections(field *models.FieldTemplate) error {
	seen := make(map[string]bool)

	for _, s := range field.Selections {
		if seen[s.APIName] {
			return newError(ErrDuplicateAPIName, s.APIName, "selection api_name declared twice in field %s", field.APIName)
		}

		seen[s.APIName] = true
	}

	if field.Type.SelectionType() && len(field.Selections) == 0 {
		return newError(ErrInvalidSnapshot, field.APIName, "%s field declares no selections", field.Type)
	}

	return nil
}

// checkPerformers verifies field-typed performer specs name a user field the
// performer resolution can read.
func checkPerformers(task *models.TaskTemplate, fields map[string]fieldRef) error {
	for _, p := range task.RawPerformers {
		if p.Type != models.PerformerTypeField {
			continue
		}

		ref, ok := fields[p.SourceID]
		if !ok {
			return newError(ErrDanglingReference, task.APIName, "performer references unknown field %s", p.SourceID)
		}

		if ref.field.Type != models.FieldTypeUser {
			return newError(ErrDanglingReference, task.APIName, "performer field %s is %s, want user", p.SourceID, ref.field.Type)
		}

		if ref.taskNumber >= task.Number {
			return newError(ErrDanglingReference, task.APIName, "performer field %s is not filled before task %d", p.SourceID, task.Number)
		}
	}

	return nil
}

func checkCondition(template *models.Template, task *models.TaskTemplate, condition *models.Condition, fields map[string]fieldRef) error {
	for _, rule := range condition.Rules {
		for _, p := range rule.Predicates {
			if err := checkPredicate(template, task, p, fields); err != nil {
				return err
			}
		}
	}

	return nil
}

func checkPredicate(template *models.Template, task *models.TaskTemplate, p *models.Predicate, fields map[string]fieldRef) error {
	if !slices.Contains(models.OperatorsForFieldType(p.FieldType), p.Operator) {
		return newError(ErrInvalidSnapshot, p.APIName, "operator %s does not apply to %s", p.Operator, p.FieldType)
	}

	if !p.Operator.Unary() && p.Value == "" {
		return newError(ErrInvalidSnapshot, p.APIName, "operator %s requires a value", p.Operator)
	}

	switch p.FieldType {
	case models.FieldTypeKickoff:
		return nil
	case models.FieldTypeTask:
		target, ok := template.TaskByAPIName(p.Field)
		if !ok {
			return newError(ErrDanglingReference, p.APIName, "predicate references unknown task %s", p.Field)
		}

		if target.Number >= task.Number {
			return newError(ErrDanglingReference, p.APIName, "predicate on task %s references task %s which does not run earlier", task.APIName, p.Field)
		}

		return nil
	default:
		ref, ok := fields[p.Field]
		if !ok {
			return newError(ErrDanglingReference, p.APIName, "predicate references unknown field %s", p.Field)
		}

		if ref.field.Type != p.FieldType {
			return newError(ErrInvalidSnapshot, p.APIName, "predicate declares %s but field %s is %s", p.FieldType, p.Field, ref.field.Type)
		}

		if ref.taskNumber >= task.Number {
			return newError(ErrDanglingReference, p.APIName, "predicate references field %s which is not filled before task %d", p.Field, task.Number)
		}

		// Selection-typed comparisons are pinned to declared selection
		// api_names at save time so evaluation never guesses.
		if ref.field.Type.SelectionType() && !p.Operator.Unary() {
			if _, ok := ref.field.SelectionByAPIName(p.Value); !ok {
				return newError(ErrDanglingReference, p.APIName, "predicate value %s is not a selection of field %s", p.Value, p.Field)
			}
		}

		return nil
	}
}

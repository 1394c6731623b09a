package models

import (
	"slices"
	"strconv"
	"strings"
	"time"
)

// FieldType identifies the kind of value a form field holds. The set mirrors
// the field kinds available in the template designer.
type FieldType string

const (
	FieldTypeString   FieldType = "string"
	FieldTypeText     FieldType = "text"
	FieldTypeNumber   FieldType = "number"
	FieldTypeDate     FieldType = "date"
	FieldTypeURL      FieldType = "url"
	FieldTypeDropdown FieldType = "dropdown"
	FieldTypeRadio    FieldType = "radio"
	FieldTypeCheckbox FieldType = "checkbox"
	FieldTypeUser     FieldType = "user"
	FieldTypeFile     FieldType = "file"

	// FieldTypeKickoff and FieldTypeTask are predicate-only targets: they do
	// not appear on form fields but let a condition test the kickoff form or
	// another task instead of a field value.
	FieldTypeKickoff FieldType = "kickoff"
	FieldTypeTask    FieldType = "task"
)

// SelectionType reports whether fields of this type constrain their value to
// one of the field's declared selections.
func (t FieldType) SelectionType() bool {
	return t == FieldTypeDropdown || t == FieldTypeRadio || t == FieldTypeCheckbox
}

// OrderedType reports whether more_than / less_than predicates apply to the
// type.
func (t FieldType) OrderedType() bool {
	return t == FieldTypeNumber || t == FieldTypeDate
}

// FieldValue is a tagged union over every representable field value. Exactly
// the members matching Type are meaningful; the rest stay at their zero
// values. Modelling values this way keeps condition evaluation free of
// runtime type inspection on stored strings.
type FieldValue struct {
	Type       FieldType  `json:"type"`
	Text       string     `json:"text,omitempty"`
	Number     *float64   `json:"number,omitempty"`
	Date       *time.Time `json:"date,omitempty"`
	UserID     string     `json:"user_id,omitempty"`
	FileIDs    []string   `json:"file_ids,omitempty"`
	Selections []string   `json:"selections,omitempty"` // selection api_names
}

// FieldValueMap indexes current field values by field api_name.
type FieldValueMap map[string]FieldValue

func TextValue(t FieldType, s string) FieldValue {
	return FieldValue{Type: t, Text: s}
}

func NumberValue(n float64) FieldValue {
	return FieldValue{Type: FieldTypeNumber, Number: &n}
}

func DateValue(d time.Time) FieldValue {
	return FieldValue{Type: FieldTypeDate, Date: &d}
}

func UserValue(userID string) FieldValue {
	return FieldValue{Type: FieldTypeUser, UserID: userID}
}

func FileValue(fileIDs ...string) FieldValue {
	return FieldValue{Type: FieldTypeFile, FileIDs: fileIDs}
}

func SelectionValue(t FieldType, apiNames ...string) FieldValue {
	return FieldValue{Type: t, Selections: apiNames}
}

// ParseFieldValue converts the stored textual representation back into a
// typed value. It is the inverse of ClearValue for scalar types; selection
// and file lists are comma separated.
func ParseFieldValue(t FieldType, raw string) FieldValue {
	if raw == "" {
		return FieldValue{Type: t}
	}

	switch t {
	case FieldTypeNumber:
		n, err := strconv.ParseFloat(strings.TrimSpace(raw), 64)
		if err != nil {
			return FieldValue{Type: t}
		}

		return NumberValue(n)
	case FieldTypeDate:
		d, err := time.Parse(time.RFC3339, strings.TrimSpace(raw))
		if err != nil {
			return FieldValue{Type: t}
		}

		return DateValue(d)
	case FieldTypeUser:
		return UserValue(strings.TrimSpace(raw))
	case FieldTypeFile:
		return FileValue(splitList(raw)...)
	case FieldTypeDropdown, FieldTypeRadio, FieldTypeCheckbox:
		return SelectionValue(t, splitList(raw)...)
	default:
		return TextValue(t, raw)
	}
}

func splitList(raw string) []string {
	parts := strings.Split(raw, ",")
	out := make([]string, 0, len(parts))

	for _, p := range parts {
		p = strings.TrimSpace(p)
		if p != "" {
			out = append(out, p)
		}
	}

	return out
}

// IsEmpty reports whether no value has been recorded.
func (v FieldValue) IsEmpty() bool {
	switch v.Type {
	case FieldTypeNumber:
		return v.Number == nil
	case FieldTypeDate:
		return v.Date == nil
	case FieldTypeUser:
		return v.UserID == ""
	case FieldTypeFile:
		return len(v.FileIDs) == 0
	case FieldTypeDropdown, FieldTypeRadio, FieldTypeCheckbox:
		return len(v.Selections) == 0
	default:
		return v.Text == ""
	}
}

// ClearValue renders the plain-text representation stored alongside the
// typed value and used for placeholder substitution.
func (v FieldValue) ClearValue() string {
	switch v.Type {
	case FieldTypeNumber:
		if v.Number == nil {
			return ""
		}

		return strconv.FormatFloat(*v.Number, 'f', -1, 64)
	case FieldTypeDate:
		if v.Date == nil {
			return ""
		}

		return v.Date.Format(time.RFC3339)
	case FieldTypeUser:
		return v.UserID
	case FieldTypeFile:
		return strings.Join(v.FileIDs, ", ")
	case FieldTypeDropdown, FieldTypeRadio, FieldTypeCheckbox:
		return strings.Join(v.Selections, ", ")
	default:
		return v.Text
	}
}

// Markdown renders the markdown representation. Only URL values differ from
// the clear value; everything else is inserted verbatim.
func (v FieldValue) Markdown() string {
	if v.Type == FieldTypeURL && v.Text != "" {
		return "[" + v.Text + "](" + v.Text + ")"
	}

	return v.ClearValue()
}

// Equals compares the value against a predicate's raw comparison value.
func (v FieldValue) Equals(raw string) bool {
	if v.IsEmpty() {
		return false
	}

	switch v.Type {
	case FieldTypeNumber:
		n, err := strconv.ParseFloat(strings.TrimSpace(raw), 64)
		if err != nil {
			return false
		}

		return *v.Number == n
	case FieldTypeDate:
		d, err := time.Parse(time.RFC3339, strings.TrimSpace(raw))
		if err != nil {
			return false
		}

		return v.Date.Equal(d)
	case FieldTypeUser:
		return v.UserID == raw
	case FieldTypeDropdown, FieldTypeRadio, FieldTypeCheckbox:
		return len(v.Selections) == 1 && v.Selections[0] == raw
	default:
		return v.Text == raw
	}
}

// Contains tests substring containment for textual values and membership for
// selection and file values.
func (v FieldValue) Contains(raw string) bool {
	if v.IsEmpty() {
		return false
	}

	switch v.Type {
	case FieldTypeDropdown, FieldTypeRadio, FieldTypeCheckbox:
		return slices.Contains(v.Selections, raw)
	case FieldTypeFile:
		return slices.Contains(v.FileIDs, raw)
	case FieldTypeNumber, FieldTypeDate, FieldTypeUser:
		return v.Equals(raw)
	default:
		return strings.Contains(v.Text, raw)
	}
}

// MoreThan reports v > raw for ordered types. Non-ordered types never
// satisfy it; operator applicability is enforced at template-save time.
func (v FieldValue) MoreThan(raw string) bool {
	cmp, ok := v.compare(raw)

	return ok && cmp > 0
}

// LessThan reports v < raw for ordered types.
func (v FieldValue) LessThan(raw string) bool {
	cmp, ok := v.compare(raw)

	return ok && cmp < 0
}

func (v FieldValue) compare(raw string) (int, bool) {
	if v.IsEmpty() {
		return 0, false
	}

	switch v.Type {
	case FieldTypeNumber:
		n, err := strconv.ParseFloat(strings.TrimSpace(raw), 64)
		if err != nil {
			return 0, false
		}

		switch {
		case *v.Number > n:
			return 1, true
		case *v.Number < n:
			return -1, true
		default:
			return 0, true
		}
	case FieldTypeDate:
		d, err := time.Parse(time.RFC3339, strings.TrimSpace(raw))
		if err != nil {
			return 0, false
		}

		return v.Date.Compare(d), true
	default:
		return 0, false
	}
}

// Package render substitutes {{ field-api-name }} placeholders in template
// text (task descriptions, checklist items, workflow name patterns) with
// current field values.
package render

import (
	"regexp"
	"strings"
	"time"

	"github.com/procwise/procwise/pkg/models"
)

var placeholderPattern = regexp.MustCompile(`\{\{\s*([A-Za-z0-9_-]+)\s*\}\}`)

// System placeholders available in workflow name patterns in addition to
// kickoff field api_names.
const (
	PlaceholderDate         = "date"
	PlaceholderTemplateName = "template-name"
)

// Placeholders lists the api_names referenced by the text, in order of first
// appearance.
func Placeholders(text string) []string {
	matches := placeholderPattern.FindAllStringSubmatch(text, -1)
	seen := make(map[string]bool, len(matches))
	out := make([]string, 0, len(matches))

	for _, m := range matches {
		if !seen[m[1]] {
			seen[m[1]] = true
			out = append(out, m[1])
		}
	}

	return out
}

// Markdown substitutes placeholders with the markdown rendering of each
// field value. Unknown references render as empty strings.
func Markdown(text string, fields models.FieldValueMap) string {
	return substitute(text, func(apiName string) (string, bool) {
		v, ok := fields[apiName]
		if !ok {
			return "", false
		}

		return v.Markdown(), true
	})
}

// Clear substitutes placeholders with the plain-text rendering of each field
// value.
func Clear(text string, fields models.FieldValueMap) string {
	return substitute(text, func(apiName string) (string, bool) {
		v, ok := fields[apiName]
		if !ok {
			return "", false
		}

		return v.ClearValue(), true
	})
}

// WorkflowName renders a workflow name from its name pattern. Beyond kickoff
// fields the pattern may reference {{ date }} and {{ template-name }}. An
// empty pattern falls back to "<template name> <date>". The result is fixed
// at creation time: reconciliation never re-renders workflow names.
func WorkflowName(pattern, templateName string, date time.Time, fields models.FieldValueMap) string {
	if strings.TrimSpace(pattern) == "" {
		return templateName + " " + date.Format("Jan 2, 2006")
	}

	return substitute(pattern, func(apiName string) (string, bool) {
		switch apiName {
		case PlaceholderDate:
			return date.Format("Jan 2, 2006"), true
		case PlaceholderTemplateName:
			return templateName, true
		}

		v, ok := fields[apiName]
		if !ok {
			return "", false
		}

		return v.ClearValue(), true
	})
}

func substitute(text string, lookup func(apiName string) (string, bool)) string {
	return placeholderPattern.ReplaceAllStringFunc(text, func(match string) string {
		apiName := placeholderPattern.FindStringSubmatch(match)[1]

		value, ok := lookup(apiName)
		if !ok {
			return ""
		}

		return value
	})
}

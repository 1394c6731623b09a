package validation

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/procwise/procwise/pkg/models"
)

func validTemplate() *models.Template {
	return &models.Template{
		ID:   "tpl-1",
		Name: "Purchase Approval",
		Kickoff: models.KickoffTemplate{
			Fields: []*models.FieldTemplate{
				{APIName: "amount", Name: "Amount", Type: models.FieldTypeNumber},
				{APIName: "approver", Name: "Approver", Type: models.FieldTypeUser},
				{
					APIName: "category", Name: "Category", Type: models.FieldTypeDropdown,
					Selections: []*models.FieldSelectionTemplate{
						{APIName: "cat-hw", Value: "Hardware"},
						{APIName: "cat-sw", Value: "Software"},
					},
				},
			},
		},
		Tasks: []*models.TaskTemplate{
			{
				APIName: "review", Number: 1, Name: "Review",
				RawPerformers: []*models.RawPerformer{
					{Type: models.PerformerTypeUser, SourceID: "user-1"},
				},
			},
			{
				APIName: "approve", Number: 2, Name: "Approve",
				RawPerformers: []*models.RawPerformer{
					{Type: models.PerformerTypeField, SourceID: "approver"},
				},
				Conditions: []*models.Condition{
					{
						APIName: "skip-small", Action: models.ActionSkipTask,
						Rules: []*models.ConditionRule{
							{
								APIName: "rule-1",
								Predicates: []*models.Predicate{
									{
										APIName: "pred-1", Operator: models.OperatorLessThan,
										FieldType: models.FieldTypeNumber, Field: "amount", Value: "100",
									},
								},
							},
						},
					},
				},
			},
		},
	}
}

func TestValidateTemplate(t *testing.T) {
	v, err := NewValidator()
	require.NoError(t, err)

	t.Run("valid template passes", func(t *testing.T) {
		assert.NoError(t, v.ValidateTemplate(validTemplate()))
	})

	tests := []struct {
		name    string
		mutate  func(tpl *models.Template)
		wantErr error
	}{
		{
			name: "duplicate task api_name",
			mutate: func(tpl *models.Template) {
				tpl.Tasks[1].APIName = "review"
			},
			wantErr: ErrDuplicateAPIName,
		},
		{
			name: "duplicate field api_name across tasks and kickoff",
			mutate: func(tpl *models.Template) {
				tpl.Tasks[0].Fields = []*models.FieldTemplate{
					{APIName: "amount", Name: "Amount again", Type: models.FieldTypeString},
				}
			},
			wantErr: ErrDuplicateAPIName,
		},
		{
			name: "gap in task numbers",
			mutate: func(tpl *models.Template) {
				tpl.Tasks[1].Number = 3
			},
			wantErr: ErrInvalidSnapshot,
		},
		{
			name: "predicate references unknown field",
			mutate: func(tpl *models.Template) {
				tpl.Tasks[1].Conditions[0].Rules[0].Predicates[0].Field = "missing"
			},
			wantErr: ErrDanglingReference,
		},
		{
			name: "predicate field type mismatch",
			mutate: func(tpl *models.Template) {
				tpl.Tasks[1].Conditions[0].Rules[0].Predicates[0].FieldType = models.FieldTypeString
				tpl.Tasks[1].Conditions[0].Rules[0].Predicates[0].Operator = models.OperatorEqual
			},
			wantErr: ErrInvalidSnapshot,
		},
		{
			name: "operator not applicable to field type",
			mutate: func(tpl *models.Template) {
				tpl.Tasks[1].Conditions[0].Rules[0].Predicates[0].Operator = models.OperatorContain
			},
			wantErr: ErrInvalidSnapshot,
		},
		{
			name: "binary operator without value",
			mutate: func(tpl *models.Template) {
				tpl.Tasks[1].Conditions[0].Rules[0].Predicates[0].Value = ""
			},
			wantErr: ErrInvalidSnapshot,
		},
		{
			name: "selection predicate value outside declared selections",
			mutate: func(tpl *models.Template) {
				tpl.Tasks[1].Conditions[0].Rules[0].Predicates[0] = &models.Predicate{
					APIName: "pred-1", Operator: models.OperatorEqual,
					FieldType: models.FieldTypeDropdown, Field: "category", Value: "cat-unknown",
				}
			},
			wantErr: ErrDanglingReference,
		},
		{
			name: "performer references non-user field",
			mutate: func(tpl *models.Template) {
				tpl.Tasks[1].RawPerformers[0].SourceID = "amount"
			},
			wantErr: ErrDanglingReference,
		},
		{
			name: "performer references field of a later task",
			mutate: func(tpl *models.Template) {
				tpl.Tasks[1].Fields = []*models.FieldTemplate{
					{APIName: "delegate", Name: "Delegate", Type: models.FieldTypeUser},
				}
				tpl.Tasks[1].RawPerformers[0].SourceID = "delegate"
			},
			wantErr: ErrDanglingReference,
		},
		{
			name: "task predicate referencing itself",
			mutate: func(tpl *models.Template) {
				tpl.Tasks[1].Conditions[0].Rules[0].Predicates[0] = &models.Predicate{
					APIName: "pred-1", Operator: models.OperatorCompleted,
					FieldType: models.FieldTypeTask, Field: "approve",
				}
			},
			wantErr: ErrDanglingReference,
		},
		{
			name: "dropdown without selections",
			mutate: func(tpl *models.Template) {
				tpl.Kickoff.Fields[2].Selections = nil
			},
			wantErr: ErrInvalidSnapshot,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			tpl := validTemplate()
			tt.mutate(tpl)

			err := v.ValidateTemplate(tpl)
			require.Error(t, err)
			assert.ErrorIs(t, err, tt.wantErr)
		})
	}
}

func TestValidateRaw(t *testing.T) {
	v, err := NewValidator()
	require.NoError(t, err)

	t.Run("valid snapshot JSON passes", func(t *testing.T) {
		raw, err := json.Marshal(validTemplate())
		require.NoError(t, err)

		assert.NoError(t, v.ValidateRaw(raw))
	})

	t.Run("missing tasks fails", func(t *testing.T) {
		err := v.ValidateRaw([]byte(`{"name": "No Steps"}`))
		assert.ErrorIs(t, err, ErrInvalidSnapshot)
	})

	t.Run("unknown field type fails", func(t *testing.T) {
		tpl := validTemplate()
		raw, err := json.Marshal(tpl)
		require.NoError(t, err)

		var doc map[string]any
		require.NoError(t, json.Unmarshal(raw, &doc))

		kickoff := doc["kickoff"].(map[string]any)
		fields := kickoff["fields"].([]any)
		fields[0].(map[string]any)["type"] = "hologram"

		raw, err = json.Marshal(doc)
		require.NoError(t, err)

		assert.ErrorIs(t, v.ValidateRaw(raw), ErrInvalidSnapshot)
	})
}

package services

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/procwise/procwise/pkg/models"
	"github.com/procwise/procwise/pkg/validation"
)

func TestTemplateSaveBumpsVersion(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()

	saved, err := h.templates.Save(ctx, threeStepTemplate())
	require.NoError(t, err)
	assert.NotEmpty(t, saved.ID)
	assert.Equal(t, 1, saved.Version)

	saved.Tasks[0].Name = "Prepare workspace"

	again, err := h.templates.Save(ctx, saved)
	require.NoError(t, err)
	assert.Equal(t, 2, again.Version)
	assert.Equal(t, saved.ID, again.ID)

	stored, err := h.templates.GetByID(ctx, saved.ID)
	require.NoError(t, err)
	assert.Equal(t, 2, stored.Version)
	assert.Equal(t, "Prepare workspace", stored.Tasks[0].Name)
}

func TestTemplateSaveRejectsInvalidSnapshot(t *testing.T) {
	h := newHarness(t)

	template := threeStepTemplate()
	template.Tasks[1].APIName = template.Tasks[0].APIName

	_, err := h.templates.Save(context.Background(), template)
	require.Error(t, err)
	assert.ErrorIs(t, err, validation.ErrDuplicateAPIName)
}

func TestEnsureAPINamesGeneratesMissing(t *testing.T) {
	template := threeStepTemplate()
	template.Tasks[0].APIName = ""
	template.Tasks[0].Fields = []*models.FieldTemplate{
		{Name: "Notes", Type: models.FieldTypeText},
	}
	template.Tasks[0].Conditions = []*models.Condition{
		{
			Action: models.ActionSkipTask,
			Rules: []*models.ConditionRule{
				{Predicates: []*models.Predicate{
					{Operator: models.OperatorExist, FieldType: models.FieldTypeString, Field: "employee"},
				}},
			},
		},
	}

	EnsureAPINames(template)

	assert.NotEmpty(t, template.Tasks[0].APIName)
	assert.NotEmpty(t, template.Tasks[0].Fields[0].APIName)
	assert.NotEmpty(t, template.Tasks[0].Conditions[0].APIName)
	assert.NotEmpty(t, template.Tasks[0].Conditions[0].Rules[0].APIName)
	assert.NotEmpty(t, template.Tasks[0].Conditions[0].Rules[0].Predicates[0].APIName)

	// Present identities are never regenerated.
	assert.Equal(t, "equip", template.Tasks[1].APIName)
}

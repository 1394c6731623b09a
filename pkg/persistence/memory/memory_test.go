package memory_test

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/procwise/procwise/pkg/models"
	"github.com/procwise/procwise/pkg/persistence"
	"github.com/procwise/procwise/pkg/persistence/memory"
)

func sampleWorkflow(id, templateID string) *models.Workflow {
	return &models.Workflow{
		ID:          id,
		TemplateID:  templateID,
		Name:        "Onboard " + id,
		Status:      models.WorkflowStatusRunning,
		CurrentTask: 1,
		TasksCount:  1,
		Tasks: []*models.Task{
			{
				ID:      id + "-t1",
				APIName: "prepare",
				Number:  1,
				Name:    "Prepare",
				Status:  models.TaskStatusActive,
			},
		},
	}
}

func TestWorkflowRoundTrip(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	persist := memory.NewPersistence()

	require.NoError(t, persist.Workflows().Create(ctx, sampleWorkflow("wf-1", "tpl-1")))

	err := persist.Workflows().Create(ctx, sampleWorkflow("wf-1", "tpl-1"))
	assert.ErrorIs(t, err, persistence.ErrWorkflowAlreadyExists)

	stored, err := persist.Workflows().GetByID(ctx, "wf-1")
	require.NoError(t, err)
	assert.Equal(t, "Onboard wf-1", stored.Name)

	// Mutating the returned aggregate must not leak into the store.
	stored.Name = "mutated"
	stored.Tasks[0].Status = models.TaskStatusCompleted

	again, err := persist.Workflows().GetByID(ctx, "wf-1")
	require.NoError(t, err)
	assert.Equal(t, "Onboard wf-1", again.Name)
	assert.Equal(t, models.TaskStatusActive, again.Tasks[0].Status)

	require.NoError(t, persist.Workflows().Delete(ctx, "wf-1"))

	_, err = persist.Workflows().GetByID(ctx, "wf-1")
	assert.True(t, persistence.IsWorkflowNotFound(err))
}

func TestUpdateBumpsLockVersion(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	persist := memory.NewPersistence()

	require.NoError(t, persist.Workflows().Create(ctx, sampleWorkflow("wf-1", "tpl-1")))

	err := persist.Workflows().Update(ctx, "wf-1", func(wf *models.Workflow) error {
		wf.Status = models.WorkflowStatusDone

		return nil
	})
	require.NoError(t, err)

	stored, err := persist.Workflows().GetByID(ctx, "wf-1")
	require.NoError(t, err)
	assert.Equal(t, models.WorkflowStatusDone, stored.Status)
	assert.Equal(t, 1, stored.LockVersion)
}

func TestUpdateRejectsStaleAggregate(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	persist := memory.NewPersistence()

	require.NoError(t, persist.Workflows().Create(ctx, sampleWorkflow("wf-1", "tpl-1")))

	stale, err := persist.Workflows().GetByID(ctx, "wf-1")
	require.NoError(t, err)

	err = persist.Workflows().Update(ctx, "wf-1", func(wf *models.Workflow) error {
		wf.Name = "first writer"

		return nil
	})
	require.NoError(t, err)

	// A second writer applying the aggregate it read before the first write
	// must lose the race, not overwrite it.
	err = persist.Workflows().Update(ctx, "wf-1", func(wf *models.Workflow) error {
		*wf = *stale
		wf.Name = "second writer"

		return nil
	})
	assert.True(t, persistence.IsStaleWorkflow(err))

	stored, err := persist.Workflows().GetByID(ctx, "wf-1")
	require.NoError(t, err)
	assert.Equal(t, "first writer", stored.Name)
	assert.Equal(t, 1, stored.LockVersion)
}

func TestListByTemplateFiltersByStatus(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	persist := memory.NewPersistence()

	running := sampleWorkflow("wf-running", "tpl-1")
	running.DateCreated = time.Date(2025, time.March, 10, 9, 0, 0, 0, time.UTC)

	done := sampleWorkflow("wf-done", "tpl-1")
	done.Status = models.WorkflowStatusDone
	done.DateCreated = running.DateCreated.Add(time.Minute)

	other := sampleWorkflow("wf-other", "tpl-2")

	require.NoError(t, persist.Workflows().Create(ctx, running))
	require.NoError(t, persist.Workflows().Create(ctx, done))
	require.NoError(t, persist.Workflows().Create(ctx, other))

	all, err := persist.Workflows().ListByTemplate(ctx, "tpl-1")
	require.NoError(t, err)
	require.Len(t, all, 2)
	assert.Equal(t, "wf-running", all[0].ID)

	active, err := persist.Workflows().ListByTemplate(ctx, "tpl-1",
		models.WorkflowStatusRunning, models.WorkflowStatusDelayed)
	require.NoError(t, err)
	require.Len(t, active, 1)
	assert.Equal(t, "wf-running", active[0].ID)
}

func TestTemplateRoundTrip(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	persist := memory.NewPersistence()

	template := &models.Template{
		ID:      "tpl-1",
		Name:    "Onboarding",
		Version: 1,
		Tasks: []*models.TaskTemplate{
			{APIName: "prepare", Number: 1, Name: "Prepare"},
		},
	}

	require.NoError(t, persist.Templates().Save(ctx, template))

	template.Version = 2
	require.NoError(t, persist.Templates().Save(ctx, template))

	stored, err := persist.Templates().GetByID(ctx, "tpl-1")
	require.NoError(t, err)
	assert.Equal(t, 2, stored.Version)

	_, err = persist.Templates().GetByID(ctx, "missing")
	assert.True(t, persistence.IsTemplateNotFound(err))
}

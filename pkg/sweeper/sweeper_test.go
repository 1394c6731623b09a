package sweeper_test

import (
	"context"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	clocktesting "k8s.io/utils/clock/testing"

	"github.com/procwise/procwise/pkg/models"
	"github.com/procwise/procwise/pkg/persistence/memory"
	"github.com/procwise/procwise/pkg/sweeper"
	"github.com/procwise/procwise/pkg/workflow"
)

var testEpoch = time.Date(2025, time.March, 10, 9, 0, 0, 0, time.UTC)

func delayedWorkflow(id string, estimatedEnd time.Time) *models.Workflow {
	return &models.Workflow{
		ID:          id,
		Name:        "Delayed " + id,
		Status:      models.WorkflowStatusDelayed,
		CurrentTask: 1,
		TasksCount:  1,
		Tasks: []*models.Task{
			{
				ID:      id + "-t1",
				APIName: "step",
				Number:  1,
				Name:    "Step",
				Status:  models.TaskStatusDelayed,
				Delays: []*models.Delay{
					{
						ID:               id + "-d1",
						StartDate:        estimatedEnd.Add(-time.Hour),
						Duration:         time.Hour,
						EstimatedEndDate: estimatedEnd,
					},
				},
			},
		},
	}
}

func TestSweepResumesExpiredOnly(t *testing.T) {
	ctx := context.Background()
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	persist := memory.NewPersistence()
	fakeClock := clocktesting.NewFakeClock(testEpoch)

	executor := workflow.NewExecutor(workflow.Dependencies{
		Persistence: persist,
		Clock:       fakeClock,
		Logger:      logger,
	})

	require.NoError(t, persist.Workflows().Create(ctx, delayedWorkflow("expired", testEpoch.Add(-time.Minute))))
	require.NoError(t, persist.Workflows().Create(ctx, delayedWorkflow("pending", testEpoch.Add(time.Hour))))

	s, err := sweeper.NewSweeper(executor, "", logger)
	require.NoError(t, err)

	s.Sweep(ctx)

	resumed, err := persist.Workflows().GetByID(ctx, "expired")
	require.NoError(t, err)
	assert.Equal(t, models.WorkflowStatusRunning, resumed.Status)
	assert.Equal(t, models.TaskStatusActive, resumed.Tasks[0].Status)
	assert.NotNil(t, resumed.Tasks[0].Delays[0].EndDate)

	untouched, err := persist.Workflows().GetByID(ctx, "pending")
	require.NoError(t, err)
	assert.Equal(t, models.WorkflowStatusDelayed, untouched.Status)
	assert.Nil(t, untouched.Tasks[0].Delays[0].EndDate)
}

func TestSweepIsIdempotent(t *testing.T) {
	ctx := context.Background()
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	persist := memory.NewPersistence()
	fakeClock := clocktesting.NewFakeClock(testEpoch)

	executor := workflow.NewExecutor(workflow.Dependencies{
		Persistence: persist,
		Clock:       fakeClock,
		Logger:      logger,
	})

	require.NoError(t, persist.Workflows().Create(ctx, delayedWorkflow("once", testEpoch.Add(-time.Minute))))

	s, err := sweeper.NewSweeper(executor, sweeper.DefaultSchedule, logger)
	require.NoError(t, err)

	s.Sweep(ctx)
	s.Sweep(ctx)

	stored, err := persist.Workflows().GetByID(ctx, "once")
	require.NoError(t, err)
	assert.Equal(t, models.WorkflowStatusRunning, stored.Status)
	assert.Len(t, stored.Tasks[0].Delays, 1)
}

func TestNewSweeperRejectsBadSchedule(t *testing.T) {
	_, err := sweeper.NewSweeper(nil, "every minute", nil)
	assert.Error(t, err)
}

package models

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestWorkflow_Lookups(t *testing.T) {
	wf := &Workflow{
		CurrentTask: 2,
		Tasks: []*Task{
			{ID: "t1", APIName: "task-one", Number: 1},
			{ID: "t2", APIName: "task-two", Number: 2},
		},
	}

	task, ok := wf.TaskByAPIName("task-two")
	require.True(t, ok)
	assert.Equal(t, "t2", task.ID)

	task, ok = wf.TaskByNumber(1)
	require.True(t, ok)
	assert.Equal(t, "task-one", task.APIName)

	assert.Equal(t, "t2", wf.CurrentTaskInstance().ID)

	_, ok = wf.TaskByAPIName("missing")
	assert.False(t, ok)

	wf.CurrentTask = 3
	assert.Nil(t, wf.CurrentTaskInstance())
}

func TestWorkflow_FieldValues(t *testing.T) {
	wf := &Workflow{
		KickoffFields: []*TaskField{
			{APIName: "status", Type: FieldTypeString, Value: TextValue(FieldTypeString, "closed")},
		},
		Tasks: []*Task{
			{
				Number: 1,
				Fields: []*TaskField{
					{APIName: "amount", Type: FieldTypeNumber, Value: NumberValue(3)},
				},
			},
		},
	}

	values := wf.FieldValues()
	assert.Equal(t, "closed", values["status"].ClearValue())
	assert.Equal(t, "3", values["amount"].ClearValue())
}

func TestWorkflow_AddMember(t *testing.T) {
	wf := &Workflow{}
	wf.AddMember("u1")
	wf.AddMember("u1")
	wf.AddMember("")
	wf.AddMember("u2")

	assert.Equal(t, []string{"u1", "u2"}, wf.Members)
}

func TestTask_ActiveDelay(t *testing.T) {
	now := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	closed := now.Add(-time.Hour)

	task := &Task{
		Delays: []*Delay{
			{ID: "d1", StartDate: now.Add(-2 * time.Hour), Duration: time.Hour, EndDate: &closed, EstimatedEndDate: closed},
			{ID: "d2", StartDate: now, Duration: 5 * time.Minute, EstimatedEndDate: now.Add(5 * time.Minute)},
		},
	}

	active := task.ActiveDelay()
	require.NotNil(t, active)
	assert.Equal(t, "d2", active.ID)

	assert.False(t, active.Expired(now))
	assert.True(t, active.Expired(now.Add(5*time.Minute)))
}

func TestTask_PerformersAndChecklists(t *testing.T) {
	task := &Task{
		Performers: []*TaskPerformer{
			{Type: PerformerTypeUser, SourceID: "u1", DirectlyStatus: DirectlyStatusCreated},
			{Type: PerformerTypeUser, SourceID: "u2", DirectlyStatus: DirectlyStatusDeleted},
		},
		Checklists: []*Checklist{
			{
				APIName: "cl-1",
				Selections: []*ChecklistSelection{
					{APIName: "ci-1", IsSelected: true},
					{APIName: "ci-2"},
				},
			},
		},
	}

	assert.Len(t, task.ActivePerformers(), 1)

	p, ok := task.PerformerFor(PerformerTypeUser, "u2")
	require.True(t, ok)
	assert.Equal(t, DirectlyStatusDeleted, p.DirectlyStatus)

	task.RecountChecklists()
	assert.Equal(t, 2, task.ChecklistsTotal)
	assert.Equal(t, 1, task.ChecklistsMarked)
}

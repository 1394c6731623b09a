package performers

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/procwise/procwise/pkg/models"
)

func TestResolver_Resolve(t *testing.T) {
	resolver := NewResolver(NewMemoryDirectory())

	raw := []*models.RawPerformer{
		{Type: models.PerformerTypeUser, SourceID: "u1"},
		{Type: models.PerformerTypeGroup, SourceID: "g1"},
		{Type: models.PerformerTypeField, SourceID: "approver"},
		{Type: models.PerformerTypeField, SourceID: "unset-field"},
		{Type: models.PerformerTypeUser, SourceID: "u1"}, // duplicate spec
	}

	fields := models.FieldValueMap{
		"approver": models.UserValue("u2"),
	}

	refs := resolver.Resolve(raw, fields)

	assert.Equal(t, []Ref{
		{Type: models.PerformerTypeUser, SourceID: "u1"},
		{Type: models.PerformerTypeGroup, SourceID: "g1"},
		{Type: models.PerformerTypeUser, SourceID: "u2"},
	}, refs)
}

func TestResolver_Resolve_FieldValueChanged(t *testing.T) {
	resolver := NewResolver(NewMemoryDirectory())
	raw := []*models.RawPerformer{{Type: models.PerformerTypeField, SourceID: "approver"}}

	first := resolver.Resolve(raw, models.FieldValueMap{"approver": models.UserValue("u1")})
	second := resolver.Resolve(raw, models.FieldValueMap{"approver": models.UserValue("u9")})

	assert.Equal(t, "u1", first[0].SourceID)
	assert.Equal(t, "u9", second[0].SourceID)
}

func TestSync_AddAndRemove(t *testing.T) {
	now := time.Date(2025, 5, 1, 8, 0, 0, 0, time.UTC)
	task := &models.Task{}

	result := Sync(task, []Ref{
		{Type: models.PerformerTypeUser, SourceID: "u1"},
		{Type: models.PerformerTypeUser, SourceID: "u2"},
	}, now)

	require.Len(t, result.Added, 2)
	assert.Empty(t, result.Removed)
	assert.Len(t, task.ActivePerformers(), 2)

	// u1 replaced with u3: u1 soft-removed, u3 added, u2 untouched.
	result = Sync(task, []Ref{
		{Type: models.PerformerTypeUser, SourceID: "u2"},
		{Type: models.PerformerTypeUser, SourceID: "u3"},
	}, now)

	require.Len(t, result.Added, 1)
	assert.Equal(t, "u3", result.Added[0].SourceID)
	require.Len(t, result.Removed, 1)
	assert.Equal(t, "u1", result.Removed[0].SourceID)

	removed, ok := task.PerformerFor(models.PerformerTypeUser, "u1")
	require.True(t, ok)
	assert.Equal(t, models.DirectlyStatusDeleted, removed.DirectlyStatus)
	assert.Len(t, task.Performers, 3, "soft delete keeps the row")
}

func TestSync_CompletedRowsUntouchedByRemoval(t *testing.T) {
	now := time.Now().UTC()
	done := now.Add(-time.Hour)
	task := &models.Task{
		Performers: []*models.TaskPerformer{
			{
				Type: models.PerformerTypeUser, SourceID: "u1",
				IsCompleted: true, DateCompleted: &done,
				DirectlyStatus: models.DirectlyStatusCreated,
			},
		},
	}

	result := Sync(task, []Ref{{Type: models.PerformerTypeUser, SourceID: "u2"}}, now)

	require.Len(t, result.Added, 1)
	assert.Empty(t, result.Removed, "completed rows are historical fact")

	row, _ := task.PerformerFor(models.PerformerTypeUser, "u1")
	assert.Equal(t, models.DirectlyStatusCreated, row.DirectlyStatus)
	assert.True(t, row.IsCompleted)
}

func TestSync_RestoresSoftDeletedRow(t *testing.T) {
	now := time.Now().UTC()
	task := &models.Task{
		Performers: []*models.TaskPerformer{
			{Type: models.PerformerTypeUser, SourceID: "u1", DirectlyStatus: models.DirectlyStatusDeleted},
		},
	}

	result := Sync(task, []Ref{{Type: models.PerformerTypeUser, SourceID: "u1"}}, now)

	require.Len(t, result.Added, 1)
	assert.Len(t, task.Performers, 1, "existing row restored, not duplicated")
	assert.Equal(t, models.DirectlyStatusCreated, task.Performers[0].DirectlyStatus)
}

func TestResolver_Recipients(t *testing.T) {
	directory := NewMemoryDirectory()
	directory.PutUser(User{ID: "u1", Email: "u1@acme.test", IsActive: true})
	directory.PutUser(User{ID: "u2", Email: "u2@acme.test", IsActive: true})
	directory.PutUser(User{ID: "u3", Email: "u3@acme.test", IsActive: false})
	directory.PutGroup("g1", "u1", "u2", "u3")

	resolver := NewResolver(directory)

	rows := []*models.TaskPerformer{
		{Type: models.PerformerTypeGroup, SourceID: "g1", DirectlyStatus: models.DirectlyStatusCreated},
		{Type: models.PerformerTypeUser, SourceID: "u1", DirectlyStatus: models.DirectlyStatusCreated},
		{Type: models.PerformerTypeUser, SourceID: "u2", DirectlyStatus: models.DirectlyStatusDeleted},
	}

	recipients, err := resolver.Recipients(t.Context(), rows)
	require.NoError(t, err)

	ids := make([]string, 0, len(recipients))
	for _, r := range recipients {
		ids = append(ids, r.ID)
	}

	// Group expansion is live, inactive users drop out, duplicates collapse,
	// and the soft-deleted direct row contributes nothing new.
	assert.Equal(t, []string{"u1", "u2"}, ids)
}

func TestResolver_Recipients_GroupMembershipIsLive(t *testing.T) {
	directory := NewMemoryDirectory()
	directory.PutUser(User{ID: "u1", IsActive: true})
	directory.PutGroup("g1", "u1")

	resolver := NewResolver(directory)
	rows := []*models.TaskPerformer{
		{Type: models.PerformerTypeGroup, SourceID: "g1", DirectlyStatus: models.DirectlyStatusCreated},
	}

	recipients, err := resolver.Recipients(t.Context(), rows)
	require.NoError(t, err)
	require.Len(t, recipients, 1)

	directory.PutUser(User{ID: "u9", IsActive: true})
	directory.PutGroup("g1", "u1", "u9")

	recipients, err = resolver.Recipients(t.Context(), rows)
	require.NoError(t, err)
	assert.Len(t, recipients, 2, "membership change visible without touching rows")
}

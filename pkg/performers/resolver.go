// Package performers computes the effective performer set of a task from the
// template's raw performer specs and keeps the task's performer rows in sync
// when specs or field values change.
package performers

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/procwise/procwise/pkg/models"
)

// User is a directory entry. Contact info rides along for notification
// payloads.
type User struct {
	ID       string `json:"id"`
	Email    string `json:"email"`
	IsActive bool   `json:"is_active"`
}

// Directory resolves users and group membership. Group membership is read
// live at resolution time: changes to a group are reflected the next time a
// task is resolved or recipients are expanded, without touching performer
// rows. No staleness bound beyond that is guaranteed.
type Directory interface {
	User(ctx context.Context, id string) (User, error)
	GroupMembers(ctx context.Context, groupID string) ([]User, error)
}

// Ref identifies a resolved performer. Together with the task it forms the
// identity (task, type, source_id) that row synchronization diffs on.
type Ref struct {
	Type     models.PerformerType `json:"type"`
	SourceID string               `json:"source_id"`
}

// Resolver turns raw performer specs into concrete performer refs.
type Resolver struct {
	directory Directory
}

func NewResolver(directory Directory) *Resolver {
	return &Resolver{directory: directory}
}

// Resolve computes the effective performer set from raw specs and current
// field values. A field-typed spec resolves to the current value of the
// referenced user field; empty values contribute nothing, which is why
// kickoff-field edits must re-run resolution for current and future tasks.
func (r *Resolver) Resolve(raw []*models.RawPerformer, fields models.FieldValueMap) []Ref {
	seen := make(map[Ref]bool, len(raw))
	refs := make([]Ref, 0, len(raw))

	add := func(ref Ref) {
		if ref.SourceID == "" || seen[ref] {
			return
		}

		seen[ref] = true
		refs = append(refs, ref)
	}

	for _, spec := range raw {
		switch spec.Type {
		case models.PerformerTypeUser, models.PerformerTypeGroup:
			add(Ref{Type: spec.Type, SourceID: spec.SourceID})
		case models.PerformerTypeField:
			value, ok := fields[spec.SourceID]
			if !ok || value.Type != models.FieldTypeUser {
				continue
			}

			add(Ref{Type: models.PerformerTypeUser, SourceID: value.UserID})
		}
	}

	return refs
}

// Recipients expands performer rows into notifiable users. Group rows expand
// to their current active members at read time; soft-deleted rows and
// inactive users are excluded, and duplicates collapse.
func (r *Resolver) Recipients(ctx context.Context, rows []*models.TaskPerformer) ([]User, error) {
	seen := make(map[string]bool)
	out := make([]User, 0, len(rows))

	add := func(u User) {
		if !u.IsActive || seen[u.ID] {
			return
		}

		seen[u.ID] = true
		out = append(out, u)
	}

	for _, row := range rows {
		if row.DirectlyStatus == models.DirectlyStatusDeleted {
			continue
		}

		switch row.Type {
		case models.PerformerTypeUser:
			user, err := r.directory.User(ctx, row.SourceID)
			if err != nil {
				return nil, fmt.Errorf("resolve user %s: %w", row.SourceID, err)
			}

			add(user)
		case models.PerformerTypeGroup:
			members, err := r.directory.GroupMembers(ctx, row.SourceID)
			if err != nil {
				return nil, fmt.Errorf("expand group %s: %w", row.SourceID, err)
			}

			for _, m := range members {
				add(m)
			}
		}
	}

	return out, nil
}

// SyncResult reports what row synchronization changed.
type SyncResult struct {
	Added   []*models.TaskPerformer
	Removed []*models.TaskPerformer
}

// Sync reconciles a task's performer rows against the freshly resolved set.
// New refs create rows with directly_status=created; refs that disappeared
// soft-delete their row. Rows already completed are left untouched by
// removal: completion is historical fact. A previously removed ref that
// reappears restores its existing row instead of duplicating it.
func Sync(task *models.Task, refs []Ref, now time.Time) SyncResult {
	var result SyncResult

	target := make(map[Ref]bool, len(refs))
	for _, ref := range refs {
		target[ref] = true
	}

	for _, ref := range refs {
		row, ok := task.PerformerFor(ref.Type, ref.SourceID)
		if ok {
			if row.DirectlyStatus == models.DirectlyStatusDeleted {
				row.DirectlyStatus = models.DirectlyStatusCreated
				result.Added = append(result.Added, row)
			}

			continue
		}

		row = &models.TaskPerformer{
			ID:             uuid.NewString(),
			Type:           ref.Type,
			SourceID:       ref.SourceID,
			DirectlyStatus: models.DirectlyStatusCreated,
			DateCreated:    now,
		}
		task.Performers = append(task.Performers, row)
		result.Added = append(result.Added, row)
	}

	for _, row := range task.Performers {
		if row.DirectlyStatus == models.DirectlyStatusDeleted || row.IsCompleted {
			continue
		}

		if !target[Ref{Type: row.Type, SourceID: row.SourceID}] {
			row.DirectlyStatus = models.DirectlyStatusDeleted
			result.Removed = append(result.Removed, row)
		}
	}

	return result
}

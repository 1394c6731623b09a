package workflow

import "github.com/procwise/procwise/pkg/models"

// Satisfied reports whether the task's recorded performer completions satisfy
// its completion policy.
//
// With require_completion_by_all unset, any recorded completion satisfies the
// task, soft-deleted rows included: completion is monotonic and a later
// performer removal never un-completes a task. With the flag set, every
// performer still active must have completed; soft-deleted rows drop out of
// the "all" set, so removing the last incomplete performer can satisfy the
// task on the spot. A task whose every row was soft-deleted falls back to
// "anyone completed" so that reconciliation cannot strand it unsatisfiable.
func Satisfied(task *models.Task) bool {
	anyCompleted := false

	for _, p := range task.Performers {
		if p.IsCompleted {
			anyCompleted = true

			break
		}
	}

	if !task.RequireCompletionByAll {
		return anyCompleted
	}

	active := task.ActivePerformers()
	if len(active) == 0 {
		return anyCompleted
	}

	for _, p := range active {
		if !p.IsCompleted {
			return false
		}
	}

	return true
}

// Awaiting returns the active performer rows still expected to complete the
// task. Dashboards use this for "who is this waiting on"; group rows are
// reported as the group, never expanded to members here.
func Awaiting(task *models.Task) []*models.TaskPerformer {
	out := make([]*models.TaskPerformer, 0)

	for _, p := range task.ActivePerformers() {
		if !p.IsCompleted {
			out = append(out, p)
		}
	}

	return out
}

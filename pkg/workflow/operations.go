package workflow

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/procwise/procwise/pkg/events"
	"github.com/procwise/procwise/pkg/models"
	"github.com/procwise/procwise/pkg/persistence"
)

// CompleteTaskForPerformer records a completion signal from one user on one
// task. The user must hold an active performer row, directly or through a
// group; output field values are recorded before the completion policy is
// checked. When the policy is satisfied the task completes and advancement
// runs from the next task, but only if the task is the current one: past
// tasks record the completion without re-triggering advancement, future
// tasks ignore the signal entirely.
func (e *Executor) CompleteTaskForPerformer(ctx context.Context, workflowID, taskAPIName, userID string, values map[string]models.FieldValue) error {
	var hooks []Hook

	err := e.persist.Workflows().Update(ctx, workflowID, func(wf *models.Workflow) error {
		hooks = nil

		if wf.Ended() {
			return newError("CompleteTask", workflowID, taskAPIName, ErrWorkflowEnded)
		}

		task, ok := wf.TaskByAPIName(taskAPIName)
		if !ok {
			return newError("CompleteTask", workflowID, taskAPIName, persistence.ErrTaskNotFound)
		}

		if task.Number > wf.CurrentTask {
			// Not reachable yet.
			return nil
		}

		if task.Status == models.TaskStatusCompleted || task.Status == models.TaskStatusSkipped {
			return nil
		}

		row, err := e.performerRowFor(ctx, task, userID)
		if err != nil {
			return newError("CompleteTask", workflowID, taskAPIName, err)
		}

		for apiName, value := range values {
			if field, ok := task.FieldByAPIName(apiName); ok {
				field.SetValue(value)
			}
		}

		now := e.clock.Now()

		if !row.IsCompleted {
			row.IsCompleted = true
			row.DateCompleted = &now

			completed := events.PerformerCompleted{
				BaseEvent:     e.base(events.PerformerCompletedEvent, wf),
				TaskID:        task.ID,
				PerformerType: string(row.Type),
				SourceID:      row.SourceID,
			}
			hooks = append(hooks,
				e.publishHook(wf.ID, completed),
				e.trackHook(e.analyticsEvent("task completed by performer", userID, wf, task.ID)),
			)
		}

		if !Satisfied(task) {
			return nil
		}

		hooks = append(hooks, e.completeTask(ctx, wf, task, userID)...)

		return nil
	})
	if err != nil {
		return err
	}

	RunHooks(ctx, hooks)

	return nil
}

// performerRowFor matches a user to an active performer row: a direct user
// row, or a group row whose current membership includes the user.
func (e *Executor) performerRowFor(ctx context.Context, task *models.Task, userID string) (*models.TaskPerformer, error) {
	var groups []*models.TaskPerformer

	for _, row := range task.ActivePerformers() {
		switch row.Type {
		case models.PerformerTypeUser:
			if row.SourceID == userID {
				return row, nil
			}
		case models.PerformerTypeGroup:
			groups = append(groups, row)
		}
	}

	for _, row := range groups {
		members, err := e.directory.GroupMembers(ctx, row.SourceID)
		if err != nil {
			return nil, fmt.Errorf("expand group %s: %w", row.SourceID, err)
		}

		for _, m := range members {
			if m.ID == userID {
				return row, nil
			}
		}
	}

	return nil, ErrPerformerNotAssigned
}

// completeTask finalizes a satisfied task and, if it is the current one,
// advances from the next number.
func (e *Executor) completeTask(ctx context.Context, wf *models.Workflow, task *models.Task, actorID string) []Hook {
	now := e.clock.Now()
	task.Status = models.TaskStatusCompleted
	task.DateCompleted = &now

	completed := events.TaskCompleted{
		BaseEvent:   e.base(events.TaskCompletedEvent, wf),
		TaskID:      task.ID,
		TaskAPIName: task.APIName,
	}

	hooks := []Hook{
		e.publishHook(wf.ID, completed),
		e.trackHook(e.analyticsEvent("task completed", actorID, wf, task.ID)),
		e.webhookHook(events.WebhookEnvelope{
			ID:         uuid.NewString(),
			EventName:  string(events.TaskCompletedEvent),
			WorkflowID: wf.ID,
			TaskID:     task.ID,
			Timestamp:  now,
		}),
		e.deactivateGuestHook(wf.ID, task.ID),
	}

	// First-completion-wins: the remaining performers stop being solicited
	// and are notified as removed, without a completion record of their own.
	if !task.RequireCompletionByAll {
		for _, row := range Awaiting(task) {
			hooks = append(hooks, e.performerRemovedHook(wf, task, row))
		}
	}

	if task.Number == wf.CurrentTask {
		hooks = append(hooks, e.AdvanceFrom(ctx, wf, task.Number+1)...)
	}

	return hooks
}

func (e *Executor) performerRemovedHook(wf *models.Workflow, task *models.Task, row *models.TaskPerformer) Hook {
	event := events.PerformerRemoved{
		BaseEvent:     e.base(events.PerformerRemovedEvent, wf),
		TaskID:        task.ID,
		PerformerType: string(row.Type),
		SourceID:      row.SourceID,
	}
	rows := []*models.TaskPerformer{row}
	workflowID := wf.ID

	return func(ctx context.Context) {
		if e.publisher == nil {
			return
		}

		recipients, err := e.resolver.Recipients(ctx, rows)
		if err != nil {
			e.logger.Error("failed to resolve removed performer", "task_id", event.TaskID, "error", err)
		}

		for _, r := range recipients {
			event.Recipients = append(event.Recipients, events.Recipient{UserID: r.ID, Email: r.Email})
		}

		if err := e.publisher.Publish(ctx, workflowID, event); err != nil {
			e.logger.Error("failed to publish event", "event_type", event.GetType(), "error", err)
		}
	}
}

// PerformerAddedHook builds the post-commit notification for a performer row
// added outside task activation, e.g. by reconciliation.
func (e *Executor) PerformerAddedHook(wf *models.Workflow, task *models.Task, row *models.TaskPerformer) Hook {
	event := events.PerformerAdded{
		BaseEvent:     e.base(events.PerformerAddedEvent, wf),
		TaskID:        task.ID,
		PerformerType: string(row.Type),
		SourceID:      row.SourceID,
	}
	rows := []*models.TaskPerformer{row}
	workflowID := wf.ID

	return func(ctx context.Context) {
		if e.publisher == nil {
			return
		}

		recipients, err := e.resolver.Recipients(ctx, rows)
		if err != nil {
			e.logger.Error("failed to resolve added performer", "task_id", event.TaskID, "error", err)
		}

		for _, r := range recipients {
			event.Recipients = append(event.Recipients, events.Recipient{UserID: r.ID, Email: r.Email})
		}

		if err := e.publisher.Publish(ctx, workflowID, event); err != nil {
			e.logger.Error("failed to publish event", "event_type", event.GetType(), "error", err)
		}
	}
}

// PerformerRemovedHook is the exported counterpart of the removal
// notification, for reconciliation-driven soft deletes.
func (e *Executor) PerformerRemovedHook(wf *models.Workflow, task *models.Task, row *models.TaskPerformer) Hook {
	return e.performerRemovedHook(wf, task, row)
}

// Terminate hard-deletes the workflow and everything it owns. Irreversible;
// used for abandon and cancel, never for normal completion.
func (e *Executor) Terminate(ctx context.Context, workflowID string) error {
	wf, err := e.persist.Workflows().GetByID(ctx, workflowID)
	if err != nil {
		return err
	}

	if err := e.persist.Workflows().Delete(ctx, workflowID); err != nil {
		return err
	}

	hooks := []Hook{
		e.publishHook(wf.ID, events.WorkflowTerminated{
			BaseEvent: e.base(events.WorkflowTerminatedEvent, wf),
		}),
		e.trackHook(e.analyticsEvent("workflow terminated", "", wf, "")),
		e.dropGuestsHook(wf.ID),
	}
	RunHooks(ctx, hooks)

	return nil
}

// ForceDelay administratively delays the current task. An already active
// delay is restarted in place with the new duration; otherwise a new delay
// opens.
func (e *Executor) ForceDelay(ctx context.Context, workflowID string, duration time.Duration) error {
	var hooks []Hook

	err := e.persist.Workflows().Update(ctx, workflowID, func(wf *models.Workflow) error {
		hooks = nil

		if wf.Ended() {
			return newError("ForceDelay", workflowID, "", ErrWorkflowEnded)
		}

		task := wf.CurrentTaskInstance()
		if task == nil {
			return newError("ForceDelay", workflowID, "", persistence.ErrTaskNotFound)
		}

		now := e.clock.Now()

		if delay := task.ActiveDelay(); delay != nil {
			delay.StartDate = now
			delay.Duration = duration
			delay.EstimatedEndDate = now.Add(duration)
			task.Status = models.TaskStatusDelayed
			wf.Status = models.WorkflowStatusDelayed

			hooks = append(hooks, e.publishHook(wf.ID, events.WorkflowDelayed{
				BaseEvent:        e.base(events.WorkflowDelayedEvent, wf),
				TaskID:           task.ID,
				EstimatedEndDate: delay.EstimatedEndDate,
			}))

			return nil
		}

		hooks = append(hooks, e.startDelay(wf, task, duration)...)
		hooks = append(hooks, e.deactivateGuestHook(wf.ID, task.ID))

		return nil
	})
	if err != nil {
		return err
	}

	RunHooks(ctx, hooks)

	return nil
}

// ForceResume closes the active delay and continues the current task. Only
// valid on a delayed workflow.
func (e *Executor) ForceResume(ctx context.Context, workflowID string) error {
	var hooks []Hook

	err := e.persist.Workflows().Update(ctx, workflowID, func(wf *models.Workflow) error {
		hooks = nil

		if wf.Ended() {
			return newError("ForceResume", workflowID, "", ErrWorkflowEnded)
		}

		resumed, err := e.resume(ctx, wf)
		if err != nil {
			return newError("ForceResume", workflowID, "", err)
		}

		hooks = resumed

		return nil
	})
	if err != nil {
		return err
	}

	RunHooks(ctx, hooks)

	return nil
}

// errNotExpired aborts a sweep update without saving.
var errNotExpired = errors.New("delay not expired")

// ResumeExpired resumes every delayed workflow whose delay has run out. The
// sweep re-checks expiry inside the update boundary, so a concurrent force
// resume or a delay extension loses nothing. Returns the number of workflows
// resumed.
func (e *Executor) ResumeExpired(ctx context.Context) (int, error) {
	now := e.clock.Now()

	delayed, err := e.persist.Workflows().ListDelayed(ctx, now)
	if err != nil {
		return 0, err
	}

	resumed := 0

	for _, candidate := range delayed {
		var hooks []Hook

		err := e.persist.Workflows().Update(ctx, candidate.ID, func(wf *models.Workflow) error {
			hooks = nil

			if wf.Status != models.WorkflowStatusDelayed {
				return errNotExpired
			}

			task := wf.CurrentTaskInstance()
			if task == nil {
				return errNotExpired
			}

			delay := task.ActiveDelay()
			if delay == nil || !delay.Expired(now) {
				return errNotExpired
			}

			hs, err := e.resume(ctx, wf)
			if err != nil {
				return err
			}

			hooks = hs

			return nil
		})

		switch {
		case errors.Is(err, errNotExpired), persistence.IsWorkflowNotFound(err):
			continue
		case err != nil:
			return resumed, err
		}

		RunHooks(ctx, hooks)
		resumed++

		e.logger.Info("resumed expired delay", "workflow_id", candidate.ID)
	}

	return resumed, nil
}

// ReturnToTask reverts the workflow to an earlier task. Tasks from the
// target up to the current position lose their completion state (performer
// completions included), the target reactivates as returned and notifies its
// performers again. History of the first activation dates is preserved.
func (e *Executor) ReturnToTask(ctx context.Context, workflowID, taskAPIName string) error {
	var hooks []Hook

	err := e.persist.Workflows().Update(ctx, workflowID, func(wf *models.Workflow) error {
		hooks = nil

		if wf.Ended() {
			return newError("ReturnToTask", workflowID, taskAPIName, ErrWorkflowEnded)
		}

		target, ok := wf.TaskByAPIName(taskAPIName)
		if !ok {
			return newError("ReturnToTask", workflowID, taskAPIName, persistence.ErrTaskNotFound)
		}

		if target.Number >= wf.CurrentTask {
			return newError("ReturnToTask", workflowID, taskAPIName, ErrInvalidReturn)
		}

		now := e.clock.Now()

		if current := wf.CurrentTaskInstance(); current != nil {
			if delay := current.ActiveDelay(); delay != nil {
				delay.EndDate = &now
			}
		}

		for _, task := range wf.Tasks {
			if task.Number < target.Number || task.Number > wf.CurrentTask {
				continue
			}

			if task.Status == models.TaskStatusSkipped {
				// Re-evaluated on the way forward.
				task.Status = models.TaskStatusPending

				continue
			}

			task.Status = models.TaskStatusPending
			task.DateStarted = nil
			task.DateCompleted = nil

			for _, row := range task.ActivePerformers() {
				row.IsCompleted = false
				row.DateCompleted = nil
			}
		}

		returned := events.TaskReturned{
			BaseEvent:   e.base(events.TaskReturnedEvent, wf),
			TaskID:      target.ID,
			TaskAPIName: target.APIName,
		}
		workflowReturned := events.WorkflowReturned{
			BaseEvent:   e.base(events.WorkflowReturnedEvent, wf),
			TaskID:      target.ID,
			TaskAPIName: target.APIName,
		}

		hooks = append(hooks,
			e.publishHook(wf.ID, returned),
			e.publishHook(wf.ID, workflowReturned),
			e.webhookHook(events.WebhookEnvelope{
				ID:         uuid.NewString(),
				EventName:  string(events.WorkflowReturnedEvent),
				WorkflowID: wf.ID,
				TaskID:     target.ID,
				Timestamp:  now,
			}),
		)

		hooks = append(hooks, e.ContinueTask(ctx, wf, target, true)...)

		return nil
	})
	if err != nil {
		return err
	}

	RunHooks(ctx, hooks)

	return nil
}

// Recheck settles the current position after out-of-band mutations, chiefly
// reconciliation: a deleted current task moves the pointer forward, an
// expired or vanished delay resumes, a now-satisfied completion policy
// completes the task and advances.
func (e *Executor) Recheck(ctx context.Context, wf *models.Workflow) []Hook {
	if wf.Ended() {
		return nil
	}

	task := wf.CurrentTaskInstance()
	if task == nil {
		return e.AdvanceFrom(ctx, wf, wf.CurrentTask)
	}

	if wf.Status == models.WorkflowStatusDelayed {
		delay := task.ActiveDelay()
		if delay == nil || delay.Expired(e.clock.Now()) {
			hooks, err := e.resume(ctx, wf)
			if err != nil {
				e.logger.Error("failed to resume during recheck", "workflow_id", wf.ID, "error", err)

				return nil
			}

			return hooks
		}

		return nil
	}

	switch task.Status {
	case models.TaskStatusActive:
		if Satisfied(task) {
			return e.completeTask(ctx, wf, task, "")
		}

		return nil
	case models.TaskStatusPending, models.TaskStatusSkipped:
		return e.AdvanceFrom(ctx, wf, task.Number)
	default:
		return nil
	}
}

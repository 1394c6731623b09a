// Package workflow implements the advancement engine: the state machine that
// drives a workflow instance through its ordered, conditional task sequence.
// Mutations run inside the persistence layer's per-workflow update boundary;
// side effects (notifications, analytics, webhooks, cache invalidation) are
// collected as hooks and run only after the mutation committed.
package workflow

import (
	"context"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"k8s.io/utils/clock"

	"github.com/procwise/procwise/pkg/conditions"
	"github.com/procwise/procwise/pkg/eventbus"
	"github.com/procwise/procwise/pkg/events"
	"github.com/procwise/procwise/pkg/guestcache"
	"github.com/procwise/procwise/pkg/models"
	"github.com/procwise/procwise/pkg/performers"
	"github.com/procwise/procwise/pkg/persistence"
	"github.com/procwise/procwise/pkg/render"
)

// Hook is a post-commit side effect. Hooks never mutate workflow state and
// their failures are logged, not propagated: the state change they follow is
// already durable.
type Hook func(ctx context.Context)

// RunHooks executes collected hooks in order.
func RunHooks(ctx context.Context, hooks []Hook) {
	for _, hook := range hooks {
		hook(ctx)
	}
}

// AnalyticsTracker records flat analytics events at engine trigger points.
type AnalyticsTracker interface {
	Track(ctx context.Context, event events.AnalyticsEvent) error
}

// WebhookDispatcher hands webhook envelopes to the delivery subsystem.
type WebhookDispatcher interface {
	Dispatch(ctx context.Context, envelope events.WebhookEnvelope) error
}

// Dependencies wires the executor's collaborators. Publisher, Analytics and
// Webhooks may be nil to disable that output; GuestCache, Clock and Logger
// default when nil.
type Dependencies struct {
	Persistence persistence.Persistence
	Publisher   eventbus.EventPublisher
	Analytics   AnalyticsTracker
	Webhooks    WebhookDispatcher
	GuestCache  guestcache.Cache
	Directory   performers.Directory
	Clock       clock.Clock
	Logger      *slog.Logger
}

type Executor struct {
	persist   persistence.Persistence
	publisher eventbus.EventPublisher
	analytics AnalyticsTracker
	webhooks  WebhookDispatcher
	guests    guestcache.Cache
	resolver  *performers.Resolver
	directory performers.Directory
	clock     clock.Clock
	logger    *slog.Logger
}

func NewExecutor(deps Dependencies) *Executor {
	if deps.GuestCache == nil {
		deps.GuestCache = guestcache.Nop{}
	}

	if deps.Clock == nil {
		deps.Clock = clock.RealClock{}
	}

	if deps.Logger == nil {
		deps.Logger = slog.Default()
	}

	return &Executor{
		persist:   deps.Persistence,
		publisher: deps.Publisher,
		analytics: deps.Analytics,
		webhooks:  deps.Webhooks,
		guests:    deps.GuestCache,
		resolver:  performers.NewResolver(deps.Directory),
		directory: deps.Directory,
		clock:     deps.Clock,
		logger:    deps.Logger.With("module", "workflow"),
	}
}

func (e *Executor) publishHook(key string, event eventbus.Event) Hook {
	return func(ctx context.Context) {
		if e.publisher == nil {
			return
		}

		if err := e.publisher.Publish(ctx, key, event); err != nil {
			e.logger.Error("failed to publish event", "event_type", event.GetType(), "error", err)
		}
	}
}

func (e *Executor) trackHook(event events.AnalyticsEvent) Hook {
	return func(ctx context.Context) {
		if e.analytics == nil {
			return
		}

		if err := e.analytics.Track(ctx, event); err != nil {
			e.logger.Error("failed to track analytics event", "event_name", event.Name, "error", err)
		}
	}
}

func (e *Executor) webhookHook(envelope events.WebhookEnvelope) Hook {
	return func(ctx context.Context) {
		if e.webhooks == nil {
			return
		}

		if err := e.webhooks.Dispatch(ctx, envelope); err != nil {
			e.logger.Error("failed to dispatch webhook", "event_name", envelope.EventName, "error", err)
		}
	}
}

func (e *Executor) deactivateGuestHook(workflowID, taskID string) Hook {
	return func(ctx context.Context) {
		if err := e.guests.DeactivateTask(ctx, workflowID, taskID); err != nil {
			e.logger.Error("failed to invalidate guest cache", "task_id", taskID, "error", err)
		}
	}
}

func (e *Executor) dropGuestsHook(workflowID string) Hook {
	return func(ctx context.Context) {
		if err := e.guests.DeleteWorkflow(ctx, workflowID); err != nil {
			e.logger.Error("failed to drop guest cache", "workflow_id", workflowID, "error", err)
		}
	}
}

func (e *Executor) base(eventType events.EventType, wf *models.Workflow) events.BaseEvent {
	return events.BaseEvent{
		ID:           uuid.NewString(),
		Type:         eventType,
		Timestamp:    e.clock.Now(),
		WorkflowID:   wf.ID,
		WorkflowName: wf.Name,
	}
}

func (e *Executor) analyticsEvent(name, actorID string, wf *models.Workflow, taskID string) events.AnalyticsEvent {
	return events.AnalyticsEvent{
		ID:         uuid.NewString(),
		Name:       name,
		ActorID:    actorID,
		WorkflowID: wf.ID,
		TaskID:     taskID,
		Timestamp:  e.clock.Now(),
	}
}

// evalContext assembles the condition evaluation context from current
// workflow data.
func evalContext(wf *models.Workflow) conditions.Context {
	completed := make(map[string]bool, len(wf.Tasks))
	for _, t := range wf.Tasks {
		completed[t.APIName] = t.Status == models.TaskStatusCompleted
	}

	return conditions.Context{
		Fields:         wf.FieldValues(),
		CompletedTasks: completed,
		KickoffFilled:  wf.KickoffFilled(),
	}
}

// ContinueTask activates a task: the pointer moves to it, its description and
// checklist texts are rendered, performers are resolved and synced, and a
// task-started notification fires on first activation (or on return).
// Re-entry on an already-started active task is a no-op, so reconciliation
// can safely re-invoke continuation. A template delay defers activation: the
// task and workflow turn delayed instead, until resume.
func (e *Executor) ContinueTask(_ context.Context, wf *models.Workflow, task *models.Task, isReturned bool) []Hook {
	wf.CurrentTask = task.Number

	if task.Status == models.TaskStatusActive && task.DateStarted != nil && !isReturned {
		wf.Status = models.WorkflowStatusRunning

		return nil
	}

	if !isReturned && task.DateFirstStarted == nil && task.Delay > 0 && len(task.Delays) == 0 {
		return e.startDelay(wf, task, task.Delay)
	}

	now := e.clock.Now()
	first := task.DateFirstStarted == nil

	if first {
		task.DateFirstStarted = &now
	}

	task.DateStarted = &now
	task.DateCompleted = nil
	task.Status = models.TaskStatusActive
	task.IsUrgent = wf.IsUrgent
	wf.Status = models.WorkflowStatusRunning

	fields := wf.FieldValues()
	task.DescriptionRendered = render.Markdown(task.Description, fields)

	for _, checklist := range task.Checklists {
		for _, item := range checklist.Selections {
			item.Rendered = render.Clear(item.Value, fields)
		}
	}

	task.RecountChecklists()

	refs := e.resolver.Resolve(task.RawPerformers, fields)
	sync := performers.Sync(task, refs, now)

	for _, row := range sync.Added {
		if row.Type == models.PerformerTypeUser {
			wf.AddMember(row.SourceID)
		}
	}

	var hooks []Hook

	if first || isReturned {
		hooks = append(hooks,
			e.taskStartedHook(wf, task, isReturned),
			e.trackHook(e.analyticsEvent("task started", "", wf, task.ID)),
		)
	}

	return hooks
}

// taskStartedHook resolves recipients at emit time so group membership reads
// stay live.
func (e *Executor) taskStartedHook(wf *models.Workflow, task *models.Task, isReturned bool) Hook {
	event := events.TaskStarted{
		BaseEvent:   e.base(events.TaskStartedEvent, wf),
		TaskID:      task.ID,
		TaskAPIName: task.APIName,
		TaskName:    task.Name,
		IsReturned:  isReturned,
	}
	rows := task.ActivePerformers()
	workflowID := wf.ID

	return func(ctx context.Context) {
		if e.publisher == nil {
			return
		}

		recipients, err := e.resolver.Recipients(ctx, rows)
		if err != nil {
			e.logger.Error("failed to resolve task recipients", "task_id", event.TaskID, "error", err)
		}

		for _, r := range recipients {
			event.Recipients = append(event.Recipients, events.Recipient{UserID: r.ID, Email: r.Email})
		}

		if err := e.publisher.Publish(ctx, workflowID, event); err != nil {
			e.logger.Error("failed to publish event", "event_type", event.GetType(), "error", err)
		}
	}
}

func (e *Executor) startDelay(wf *models.Workflow, task *models.Task, duration time.Duration) []Hook {
	now := e.clock.Now()
	delay := &models.Delay{
		ID:               uuid.NewString(),
		StartDate:        now,
		Duration:         duration,
		EstimatedEndDate: now.Add(duration),
	}

	task.Delays = append(task.Delays, delay)
	task.Status = models.TaskStatusDelayed
	wf.CurrentTask = task.Number
	wf.Status = models.WorkflowStatusDelayed

	delayed := events.WorkflowDelayed{
		BaseEvent:        e.base(events.WorkflowDelayedEvent, wf),
		TaskID:           task.ID,
		EstimatedEndDate: delay.EstimatedEndDate,
	}
	started := events.DelayStarted{
		BaseEvent:        e.base(events.DelayStartedEvent, wf),
		TaskID:           task.ID,
		StartDate:        delay.StartDate,
		EstimatedEndDate: delay.EstimatedEndDate,
	}

	return []Hook{
		e.publishHook(wf.ID, delayed),
		e.publishHook(wf.ID, started),
		e.webhookHook(events.WebhookEnvelope{
			ID:         uuid.NewString(),
			EventName:  string(events.WorkflowDelayedEvent),
			WorkflowID: wf.ID,
			TaskID:     task.ID,
			Timestamp:  now,
		}),
	}
}

// ResyncPerformers re-resolves a started task's performer rows against its
// current raw specs and field values, returning notification hooks for rows
// added and removed. Reconciliation and kickoff edits call this for the
// current and not-yet-started tasks; past tasks keep their recorded history.
func (e *Executor) ResyncPerformers(wf *models.Workflow, task *models.Task) []Hook {
	refs := e.resolver.Resolve(task.RawPerformers, wf.FieldValues())
	sync := performers.Sync(task, refs, e.clock.Now())

	var hooks []Hook

	for _, row := range sync.Added {
		if row.Type == models.PerformerTypeUser {
			wf.AddMember(row.SourceID)
		}

		hooks = append(hooks, e.PerformerAddedHook(wf, task, row))
	}

	for _, row := range sync.Removed {
		hooks = append(hooks, e.PerformerRemovedHook(wf, task, row))
	}

	return hooks
}

// AdvanceFrom walks the task sequence starting at the given number, applying
// skip and end conditions strictly in ascending number order until a task
// activates or the workflow ends. Running off the end of the sequence ends
// the workflow.
func (e *Executor) AdvanceFrom(ctx context.Context, wf *models.Workflow, number int) []Hook {
	var hooks []Hook

	for n := number; ; n++ {
		if n > wf.TasksCount {
			return append(hooks, e.EndProcess(wf)...)
		}

		task, ok := wf.TaskByNumber(n)
		if !ok {
			continue
		}

		switch conditions.Evaluate(task.Conditions, evalContext(wf)) {
		case conditions.OutcomeEnd:
			hooks = append(hooks, e.skipTask(wf, task)...)

			return append(hooks, e.EndProcess(wf)...)
		case conditions.OutcomeSkip:
			hooks = append(hooks, e.skipTask(wf, task)...)
		default:
			return append(hooks, e.ContinueTask(ctx, wf, task, false)...)
		}
	}
}

func (e *Executor) skipTask(wf *models.Workflow, task *models.Task) []Hook {
	task.Status = models.TaskStatusSkipped

	event := events.TaskSkipped{
		BaseEvent:   e.base(events.TaskSkippedEvent, wf),
		TaskID:      task.ID,
		TaskAPIName: task.APIName,
	}

	return []Hook{e.publishHook(wf.ID, event)}
}

// EndProcess moves the workflow to its terminal DONE status: completion date
// set, urgency cleared everywhere, guest access dropped.
func (e *Executor) EndProcess(wf *models.Workflow) []Hook {
	if wf.Ended() {
		return nil
	}

	now := e.clock.Now()
	wf.Status = models.WorkflowStatusDone
	wf.DateCompleted = &now
	wf.IsUrgent = false

	for _, task := range wf.Tasks {
		task.IsUrgent = false
	}

	event := events.WorkflowCompleted{
		BaseEvent:     e.base(events.WorkflowCompletedEvent, wf),
		DateCompleted: now,
	}

	return []Hook{
		e.publishHook(wf.ID, event),
		e.trackHook(e.analyticsEvent("workflow completed", "", wf, "")),
		e.webhookHook(events.WebhookEnvelope{
			ID:         uuid.NewString(),
			EventName:  string(events.WorkflowCompletedEvent),
			WorkflowID: wf.ID,
			Timestamp:  now,
		}),
		e.dropGuestsHook(wf.ID),
	}
}

// resume closes the current task's active delay and re-invokes continuation.
func (e *Executor) resume(ctx context.Context, wf *models.Workflow) ([]Hook, error) {
	if wf.Status != models.WorkflowStatusDelayed {
		return nil, ErrNotDelayed
	}

	task := wf.CurrentTaskInstance()
	if task == nil {
		return nil, persistence.ErrTaskNotFound
	}

	var hooks []Hook

	if delay := task.ActiveDelay(); delay != nil {
		now := e.clock.Now()
		delay.EndDate = &now

		ended := events.DelayEnded{
			BaseEvent: e.base(events.DelayEndedEvent, wf),
			TaskID:    task.ID,
		}
		resumed := events.WorkflowResumed{
			BaseEvent: e.base(events.WorkflowResumedEvent, wf),
			TaskID:    task.ID,
		}
		hooks = append(hooks, e.publishHook(wf.ID, ended), e.publishHook(wf.ID, resumed))
	}

	task.Status = models.TaskStatusPending
	wf.Status = models.WorkflowStatusRunning

	return append(hooks, e.ContinueTask(ctx, wf, task, false)...), nil
}

package services

import (
	"context"
	"log/slog"
	"slices"

	"github.com/google/uuid"
	"k8s.io/utils/clock"

	"github.com/procwise/procwise/pkg/eventbus"
	"github.com/procwise/procwise/pkg/events"
	"github.com/procwise/procwise/pkg/models"
	"github.com/procwise/procwise/pkg/persistence"
	"github.com/procwise/procwise/pkg/render"
	"github.com/procwise/procwise/pkg/workflow"
)

// VersionService reconciles running workflow instances against a newer
// template snapshot. Matching is by api_name at every level; recorded
// progress survives wherever identity is unchanged. The whole reconciliation
// of one workflow is a single atomic update.
type VersionService struct {
	persist   persistence.Persistence
	executor  *workflow.Executor
	publisher eventbus.EventPublisher
	clock     clock.Clock
	logger    *slog.Logger
}

func NewVersionService(persist persistence.Persistence, executor *workflow.Executor, publisher eventbus.EventPublisher, cl clock.Clock, logger *slog.Logger) *VersionService {
	if cl == nil {
		cl = clock.RealClock{}
	}

	if logger == nil {
		logger = slog.Default()
	}

	return &VersionService{
		persist:   persist,
		executor:  executor,
		publisher: publisher,
		clock:     cl,
		logger:    logger.With("module", "services"),
	}
}

// deletion is one entry of the reconciliation's explicit blast radius: every
// row removal is collected here instead of relying on implicit cascades, so
// the scope of a run is auditable.
type deletion struct {
	Kind string
	ID   string
}

// UpdateFromVersion reconciles one workflow against the snapshot. A workflow
// already done is left untouched: reconciliation never resurrects a DONE
// workflow. The snapshot is trusted to be structurally valid; dangling
// references are a save-time validation failure, never handled here.
func (s *VersionService) UpdateFromVersion(ctx context.Context, workflowID string, snapshot *models.Template) error {
	var (
		hooks   []workflow.Hook
		applied bool
		name    string
	)

	err := s.persist.Workflows().Update(ctx, workflowID, func(wf *models.Workflow) error {
		hooks = nil
		applied = false

		if wf.Ended() {
			return nil
		}

		if snapshot.Version <= wf.TemplateVersion {
			return newError("UpdateFromVersion", workflowID, ErrStaleSnapshot)
		}

		reconcileHooks, deletions := s.reconcile(wf, snapshot)

		wf.TemplateVersion = snapshot.Version
		hooks = append(reconcileHooks, s.executor.Recheck(ctx, wf)...)
		applied = true
		name = wf.Name

		if len(deletions) > 0 {
			s.logger.Info("reconciliation removed entities",
				"workflow_id", wf.ID, "version", snapshot.Version, "removed", len(deletions))

			for _, d := range deletions {
				s.logger.Debug("reconciliation removal", "workflow_id", wf.ID, "kind", d.Kind, "id", d.ID)
			}
		}

		return nil
	})
	if err != nil {
		return err
	}

	if !applied {
		return nil
	}

	if s.publisher != nil {
		event := events.WorkflowVersionUpdated{
			BaseEvent: events.BaseEvent{
				ID:           uuid.NewString(),
				Type:         events.WorkflowVersionUpdatedEvent,
				Timestamp:    s.clock.Now(),
				WorkflowID:   workflowID,
				WorkflowName: name,
			},
			TemplateID:      snapshot.ID,
			TemplateVersion: snapshot.Version,
		}

		if err := s.publisher.Publish(ctx, workflowID, event); err != nil {
			s.logger.Error("failed to publish event", "event_type", event.GetType(), "error", err)
		}
	}

	workflow.RunHooks(ctx, hooks)

	return nil
}

// ReconcileTemplate pushes the template's current snapshot to every one of
// its workflows still in flight. Returns how many workflows were reconciled.
func (s *VersionService) ReconcileTemplate(ctx context.Context, templateID string) (int, error) {
	snapshot, err := s.persist.Templates().GetByID(ctx, templateID)
	if err != nil {
		return 0, err
	}

	inFlight, err := s.persist.Workflows().ListByTemplate(ctx, templateID,
		models.WorkflowStatusRunning, models.WorkflowStatusDelayed)
	if err != nil {
		return 0, err
	}

	reconciled := 0

	for _, wf := range inFlight {
		err := s.UpdateFromVersion(ctx, wf.ID, snapshot)

		switch {
		case IsStaleSnapshot(err), persistence.IsWorkflowNotFound(err):
			continue
		case err != nil:
			return reconciled, err
		}

		reconciled++
	}

	return reconciled, nil
}

func (s *VersionService) reconcile(wf *models.Workflow, snapshot *models.Template) ([]workflow.Hook, []deletion) {
	var (
		hooks     []workflow.Hook
		deletions []deletion
	)

	currentAPI := ""
	if current := wf.CurrentTaskInstance(); current != nil {
		currentAPI = current.APIName
	}

	// The old ordering decides where the pointer lands if the current task
	// disappears.
	oldOrder := make([]string, 0, len(wf.Tasks))

	wf.SortTasks()

	for _, task := range wf.Tasks {
		oldOrder = append(oldOrder, task.APIName)
	}

	existing := make(map[string]*models.Task, len(wf.Tasks))
	for _, task := range wf.Tasks {
		existing[task.APIName] = task
	}

	kept := make([]*models.Task, 0, len(snapshot.Tasks))
	insertedAPI := make(map[string]bool)

	for _, tt := range snapshot.Tasks {
		task, ok := existing[tt.APIName]
		if !ok {
			task = materializeTask(tt)
			insertedAPI[tt.APIName] = true
			kept = append(kept, task)

			continue
		}

		delete(existing, tt.APIName)
		s.updateTask(wf, task, tt, &deletions)
		task.Number = tt.Number
		kept = append(kept, task)
	}

	currentDeleted := false

	for apiName, task := range existing {
		if apiName == currentAPI {
			currentDeleted = true
		}

		deletions = append(deletions, deletion{Kind: "task", ID: task.ID})

		for _, row := range task.Performers {
			deletions = append(deletions, deletion{Kind: "task_performer", ID: row.ID})
		}

		for _, d := range task.Delays {
			deletions = append(deletions, deletion{Kind: "delay", ID: d.ID})
		}
	}

	wf.Tasks = kept
	wf.SortTasks()
	wf.TasksCount = len(kept)
	wf.KickoffDescription = snapshot.Kickoff.Description

	s.reconcileFields(&wf.KickoffFields, snapshot.Kickoff.Fields, &deletions)

	// Pointer: follow the current task's api_name to its new number; if it
	// was deleted, land on the next surviving task of the old sequence.
	switch {
	case currentAPI == "":
		if wf.CurrentTask > wf.TasksCount {
			wf.CurrentTask = wf.TasksCount + 1
		}
	case currentDeleted:
		wf.CurrentTask = s.pointerAfterDeletion(wf, oldOrder, currentAPI)

		if wf.Status == models.WorkflowStatusDelayed {
			// The delayed task is gone along with its delay.
			wf.Status = models.WorkflowStatusRunning
		}
	default:
		if task, ok := wf.TaskByAPIName(currentAPI); ok {
			wf.CurrentTask = task.Number
		}
	}

	// Inserted tasks before the pointer are retroactively past: back-filled
	// as skipped, never started.
	for _, task := range wf.Tasks {
		if insertedAPI[task.APIName] && task.Number < wf.CurrentTask {
			task.Status = models.TaskStatusSkipped
		}
	}

	// Performer spec changes reach only the current and future tasks; the
	// recorded history of past tasks stays untouched. Started tasks re-sync
	// their rows immediately, pending ones resolve at activation.
	fields := wf.FieldValues()

	for _, task := range wf.Tasks {
		if task.Number < wf.CurrentTask || insertedAPI[task.APIName] {
			continue
		}

		tt, ok := snapshot.TaskByAPIName(task.APIName)
		if !ok {
			continue
		}

		task.RawPerformers = task.RawPerformers[:0]
		for _, raw := range tt.RawPerformers {
			task.RawPerformers = append(task.RawPerformers, &models.RawPerformer{
				Type:     raw.Type,
				SourceID: raw.SourceID,
			})
		}

		if task.Status == models.TaskStatusActive || task.Status == models.TaskStatusDelayed {
			task.DescriptionRendered = render.Markdown(task.Description, fields)
			hooks = append(hooks, s.executor.ResyncPerformers(wf, task)...)
		}
	}

	return hooks, deletions
}

// pointerAfterDeletion walks the old task order past the deleted current
// task and returns the new number of the first survivor, or one past the end
// when nothing remains.
func (s *VersionService) pointerAfterDeletion(wf *models.Workflow, oldOrder []string, currentAPI string) int {
	idx := slices.Index(oldOrder, currentAPI)

	for _, apiName := range oldOrder[idx+1:] {
		if task, ok := wf.TaskByAPIName(apiName); ok {
			return task.Number
		}
	}

	return wf.TasksCount + 1
}

// updateTask copies template-sourced attributes onto a surviving task and
// reconciles its owned entities. Recorded history (dates, completion state,
// performer rows) stays untouched here.
func (s *VersionService) updateTask(wf *models.Workflow, task *models.Task, tt *models.TaskTemplate, deletions *[]deletion) {
	task.Name = tt.Name
	task.Description = tt.Description
	task.RequireCompletionByAll = tt.RequireCompletionByAll

	if task.Delay != tt.Delay {
		task.Delay = tt.Delay

		// An edited delay duration on the currently delayed task recomputes
		// from the original start date; expiry is settled by the
		// post-reconciliation recheck.
		if delay := task.ActiveDelay(); delay != nil {
			delay.Duration = tt.Delay
			delay.EstimatedEndDate = delay.StartDate.Add(tt.Delay)
		}
	}

	s.reconcileFields(&task.Fields, tt.Fields, deletions)
	s.reconcileChecklists(wf, task, tt.Checklists, deletions)

	// Conditions carry no instance state: the template's tree replaces the
	// instance copy wholesale.
	task.Conditions = cloneConditions(tt.Conditions)
}

func (s *VersionService) reconcileFields(fields *[]*models.TaskField, templates []*models.FieldTemplate, deletions *[]deletion) {
	existing := make(map[string]*models.TaskField, len(*fields))
	for _, f := range *fields {
		existing[f.APIName] = f
	}

	out := make([]*models.TaskField, 0, len(templates))

	for _, ft := range templates {
		field, ok := existing[ft.APIName]
		if !ok {
			out = append(out, materializeField(ft))

			continue
		}

		delete(existing, ft.APIName)

		if field.Type != ft.Type && !field.Value.IsEmpty() {
			// A recorded value survives a type change through its textual
			// representation.
			field.Value = models.ParseFieldValue(ft.Type, field.ClearValue)
		}

		field.Name = ft.Name
		field.Type = ft.Type
		field.IsRequired = ft.IsRequired
		field.Order = ft.Order

		s.reconcileFieldSelections(field, ft, deletions)

		// Re-derive the cleared and markdown renderings of the preserved
		// value.
		field.SetValue(field.Value)

		out = append(out, field)
	}

	for _, field := range existing {
		*deletions = append(*deletions, deletion{Kind: "task_field", ID: field.APIName})
	}

	*fields = out
}

func (s *VersionService) reconcileFieldSelections(field *models.TaskField, ft *models.FieldTemplate, deletions *[]deletion) {
	existing := make(map[string]*models.FieldSelection, len(field.Selections))
	for _, sel := range field.Selections {
		existing[sel.APIName] = sel
	}

	out := make([]*models.FieldSelection, 0, len(ft.Selections))

	for _, st := range ft.Selections {
		sel, ok := existing[st.APIName]
		if !ok {
			out = append(out, &models.FieldSelection{APIName: st.APIName, Value: st.Value})

			continue
		}

		delete(existing, st.APIName)
		sel.Value = st.Value
		out = append(out, sel)
	}

	for _, sel := range existing {
		*deletions = append(*deletions, deletion{Kind: "field_selection", ID: sel.APIName})
	}

	field.Selections = out

	// A recorded selection pointing at a removed option is dropped from the
	// value.
	if field.Type.SelectionType() && len(field.Value.Selections) > 0 {
		valid := make([]string, 0, len(field.Value.Selections))

		for _, apiName := range field.Value.Selections {
			if _, ok := findSelection(out, apiName); ok {
				valid = append(valid, apiName)
			}
		}

		field.Value.Selections = valid
	}
}

func findSelection(selections []*models.FieldSelection, apiName string) (*models.FieldSelection, bool) {
	for _, sel := range selections {
		if sel.APIName == apiName {
			return sel, true
		}
	}

	return nil, false
}

func (s *VersionService) reconcileChecklists(wf *models.Workflow, task *models.Task, templates []*models.ChecklistTemplate, deletions *[]deletion) {
	fields := wf.FieldValues()

	existing := make(map[string]*models.Checklist, len(task.Checklists))
	for _, c := range task.Checklists {
		existing[c.APIName] = c
	}

	out := make([]*models.Checklist, 0, len(templates))

	for _, ct := range templates {
		checklist, ok := existing[ct.APIName]
		if !ok {
			checklist = &models.Checklist{APIName: ct.APIName}

			for _, item := range ct.Selections {
				checklist.Selections = append(checklist.Selections, &models.ChecklistSelection{
					APIName:  item.APIName,
					Value:    item.Value,
					Rendered: render.Clear(item.Value, fields),
				})
			}

			out = append(out, checklist)

			continue
		}

		delete(existing, ct.APIName)
		s.reconcileChecklistItems(checklist, ct, fields, deletions)
		out = append(out, checklist)
	}

	for _, checklist := range existing {
		*deletions = append(*deletions, deletion{Kind: "checklist", ID: checklist.APIName})
	}

	task.Checklists = out
	task.RecountChecklists()
}

// reconcileChecklistItems preserves selection state across text edits:
// is_selected, date_selected and the selecting user survive as long as the
// item's api_name is unchanged, while the text re-renders against current
// field values.
func (s *VersionService) reconcileChecklistItems(checklist *models.Checklist, ct *models.ChecklistTemplate, fields models.FieldValueMap, deletions *[]deletion) {
	existing := make(map[string]*models.ChecklistSelection, len(checklist.Selections))
	for _, item := range checklist.Selections {
		existing[item.APIName] = item
	}

	out := make([]*models.ChecklistSelection, 0, len(ct.Selections))

	for _, st := range ct.Selections {
		item, ok := existing[st.APIName]
		if !ok {
			out = append(out, &models.ChecklistSelection{
				APIName:  st.APIName,
				Value:    st.Value,
				Rendered: render.Clear(st.Value, fields),
			})

			continue
		}

		delete(existing, st.APIName)
		item.Value = st.Value
		item.Rendered = render.Clear(st.Value, fields)
		out = append(out, item)
	}

	for _, item := range existing {
		*deletions = append(*deletions, deletion{Kind: "checklist_selection", ID: item.APIName})
	}

	checklist.Selections = out
}

package services

import (
	"context"
	"log/slog"

	"github.com/google/uuid"
	"k8s.io/utils/clock"

	"github.com/procwise/procwise/pkg/eventbus"
	"github.com/procwise/procwise/pkg/events"
	"github.com/procwise/procwise/pkg/models"
	"github.com/procwise/procwise/pkg/persistence"
	"github.com/procwise/procwise/pkg/render"
	"github.com/procwise/procwise/pkg/workflow"
)

// WorkflowService materializes and runs workflow instances from template
// snapshots.
type WorkflowService struct {
	persist   persistence.Persistence
	executor  *workflow.Executor
	publisher eventbus.EventPublisher
	clock     clock.Clock
	logger    *slog.Logger
}

func NewWorkflowService(persist persistence.Persistence, executor *workflow.Executor, publisher eventbus.EventPublisher, cl clock.Clock, logger *slog.Logger) *WorkflowService {
	if cl == nil {
		cl = clock.RealClock{}
	}

	if logger == nil {
		logger = slog.Default()
	}

	return &WorkflowService{
		persist:   persist,
		executor:  executor,
		publisher: publisher,
		clock:     cl,
		logger:    logger.With("module", "services"),
	}
}

// RunOptions carries the per-run inputs beyond the template itself.
type RunOptions struct {
	// Name overrides the rendered workflow name when set.
	Name string

	IsUrgent       bool
	AncestorTaskID string

	// KickoffValues fills the kickoff form, keyed by field api_name.
	KickoffValues map[string]models.FieldValue
}

// Run materializes a workflow from the template's current snapshot and starts
// it: every task is created up front at its template number, the name pattern
// renders once (it is never recomputed later), and advancement begins at task
// one so a leading skip or end condition applies before anything starts.
func (s *WorkflowService) Run(ctx context.Context, templateID string, opts RunOptions) (*models.Workflow, error) {
	template, err := s.persist.Templates().GetByID(ctx, templateID)
	if err != nil {
		return nil, err
	}

	wf := s.materialize(template, opts)

	if !wf.KickoffFilled() {
		return nil, newError("Run", templateID, ErrKickoffIncomplete)
	}

	if err := s.persist.Workflows().Create(ctx, wf); err != nil {
		return nil, err
	}

	var hooks []workflow.Hook

	err = s.persist.Workflows().Update(ctx, wf.ID, func(stored *models.Workflow) error {
		hooks = s.executor.AdvanceFrom(ctx, stored, 1)

		return nil
	})
	if err != nil {
		return nil, err
	}

	started := events.WorkflowStarted{
		BaseEvent: events.BaseEvent{
			ID:           uuid.NewString(),
			Type:         events.WorkflowStartedEvent,
			Timestamp:    s.clock.Now(),
			WorkflowID:   wf.ID,
			WorkflowName: wf.Name,
		},
		TemplateID:      template.ID,
		TemplateVersion: template.Version,
	}

	if s.publisher != nil {
		if err := s.publisher.Publish(ctx, wf.ID, started); err != nil {
			s.logger.Error("failed to publish event", "event_type", started.GetType(), "error", err)
		}
	}

	workflow.RunHooks(ctx, hooks)

	s.logger.Info("workflow started", "workflow_id", wf.ID, "template_id", template.ID, "version", template.Version)

	return s.persist.Workflows().GetByID(ctx, wf.ID)
}

func (s *WorkflowService) GetByID(ctx context.Context, id string) (*models.Workflow, error) {
	return s.persist.Workflows().GetByID(ctx, id)
}

// UpdateKickoff edits kickoff field values on a running workflow. Started
// tasks at the current position re-render their text and re-resolve their
// performers, since field-typed performer specs read current values; pending
// tasks pick the new values up at activation.
func (s *WorkflowService) UpdateKickoff(ctx context.Context, workflowID string, values map[string]models.FieldValue) error {
	var hooks []workflow.Hook

	err := s.persist.Workflows().Update(ctx, workflowID, func(wf *models.Workflow) error {
		hooks = nil

		if wf.Ended() {
			return newError("UpdateKickoff", workflowID, workflow.ErrWorkflowEnded)
		}

		for apiName, value := range values {
			if field, ok := wf.KickoffFieldByAPIName(apiName); ok {
				field.SetValue(value)
			}
		}

		fields := wf.FieldValues()

		for _, task := range wf.Tasks {
			if task.Number < wf.CurrentTask {
				continue
			}

			if task.Status != models.TaskStatusActive && task.Status != models.TaskStatusDelayed {
				continue
			}

			task.DescriptionRendered = render.Markdown(task.Description, fields)

			for _, checklist := range task.Checklists {
				for _, item := range checklist.Selections {
					item.Rendered = render.Clear(item.Value, fields)
				}
			}

			hooks = append(hooks, s.executor.ResyncPerformers(wf, task)...)
		}

		return nil
	})
	if err != nil {
		return err
	}

	workflow.RunHooks(ctx, hooks)

	return nil
}

func (s *WorkflowService) materialize(template *models.Template, opts RunOptions) *models.Workflow {
	now := s.clock.Now()

	wf := &models.Workflow{
		ID:                 uuid.NewString(),
		TemplateID:         template.ID,
		TemplateVersion:    template.Version,
		NameTemplate:       template.WFNameTemplate,
		Status:             models.WorkflowStatusRunning,
		CurrentTask:        1,
		TasksCount:         len(template.Tasks),
		IsUrgent:           opts.IsUrgent,
		AncestorTaskID:     opts.AncestorTaskID,
		KickoffDescription: template.Kickoff.Description,
		DateCreated:        now,
	}

	for _, ft := range template.Kickoff.Fields {
		field := materializeField(ft)

		if value, ok := opts.KickoffValues[ft.APIName]; ok {
			field.SetValue(value)
		}

		wf.KickoffFields = append(wf.KickoffFields, field)
	}

	fields := wf.FieldValues()

	if opts.Name != "" {
		wf.Name = opts.Name
	} else {
		wf.Name = render.WorkflowName(template.WFNameTemplate, template.Name, now, fields)
	}

	for _, tt := range template.Tasks {
		wf.Tasks = append(wf.Tasks, materializeTask(tt))
	}

	wf.SortTasks()

	return wf
}

func materializeTask(tt *models.TaskTemplate) *models.Task {
	task := &models.Task{
		ID:                     uuid.NewString(),
		APIName:                tt.APIName,
		Number:                 tt.Number,
		Name:                   tt.Name,
		Description:            tt.Description,
		Status:                 models.TaskStatusPending,
		RequireCompletionByAll: tt.RequireCompletionByAll,
		Delay:                  tt.Delay,
	}

	for _, raw := range tt.RawPerformers {
		task.RawPerformers = append(task.RawPerformers, &models.RawPerformer{
			Type:     raw.Type,
			SourceID: raw.SourceID,
		})
	}

	for _, ft := range tt.Fields {
		task.Fields = append(task.Fields, materializeField(ft))
	}

	for _, ct := range tt.Checklists {
		checklist := &models.Checklist{APIName: ct.APIName}

		for _, item := range ct.Selections {
			checklist.Selections = append(checklist.Selections, &models.ChecklistSelection{
				APIName: item.APIName,
				Value:   item.Value,
			})
		}

		task.Checklists = append(task.Checklists, checklist)
	}

	task.RecountChecklists()
	task.Conditions = cloneConditions(tt.Conditions)

	return task
}

func materializeField(ft *models.FieldTemplate) *models.TaskField {
	field := &models.TaskField{
		APIName:    ft.APIName,
		Name:       ft.Name,
		Type:       ft.Type,
		IsRequired: ft.IsRequired,
		Order:      ft.Order,
		Value:      models.FieldValue{Type: ft.Type},
	}

	for _, sel := range ft.Selections {
		field.Selections = append(field.Selections, &models.FieldSelection{
			APIName: sel.APIName,
			Value:   sel.Value,
		})
	}

	return field
}

// cloneConditions deep-copies condition trees so instance state never aliases
// the template snapshot.
func cloneConditions(conds []*models.Condition) []*models.Condition {
	out := make([]*models.Condition, 0, len(conds))

	for _, c := range conds {
		clone := &models.Condition{
			APIName: c.APIName,
			Action:  c.Action,
			Order:   c.Order,
		}

		for _, r := range c.Rules {
			rule := &models.ConditionRule{APIName: r.APIName}

			for _, p := range r.Predicates {
				pred := *p
				rule.Predicates = append(rule.Predicates, &pred)
			}

			clone.Rules = append(clone.Rules, rule)
		}

		out = append(out, clone)
	}

	return out
}

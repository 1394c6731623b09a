package services

import (
	"context"
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	clocktesting "k8s.io/utils/clock/testing"

	"github.com/procwise/procwise/pkg/eventbus"
	"github.com/procwise/procwise/pkg/events"
	"github.com/procwise/procwise/pkg/models"
	"github.com/procwise/procwise/pkg/performers"
	"github.com/procwise/procwise/pkg/persistence/memory"
	"github.com/procwise/procwise/pkg/validation"
	"github.com/procwise/procwise/pkg/workflow"
)

type capturePublisher struct {
	mu     sync.Mutex
	events []eventbus.Event
}

func (p *capturePublisher) Publish(_ context.Context, _ string, event eventbus.Event) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	p.events = append(p.events, event)

	return nil
}

func (p *capturePublisher) ofType(t events.EventType) []eventbus.Event {
	p.mu.Lock()
	defer p.mu.Unlock()

	out := make([]eventbus.Event, 0)

	for _, e := range p.events {
		if e.GetType() == t {
			out = append(out, e)
		}
	}

	return out
}

func (p *capturePublisher) count(t events.EventType) int {
	return len(p.ofType(t))
}

func (p *capturePublisher) reset() {
	p.mu.Lock()
	defer p.mu.Unlock()

	p.events = nil
}

type harness struct {
	templates *TemplateService
	workflows *WorkflowService
	versions  *VersionService
	persist   *memory.Persistence
	publisher *capturePublisher
	clock     *clocktesting.FakeClock
	directory *performers.MemoryDirectory
}

var testEpoch = time.Date(2025, time.March, 10, 9, 0, 0, 0, time.UTC)

func newHarness(t *testing.T) *harness {
	t.Helper()

	directory := performers.NewMemoryDirectory()
	directory.PutUser(performers.User{ID: "alice", Email: "alice@example.com", IsActive: true})
	directory.PutUser(performers.User{ID: "bob", Email: "bob@example.com", IsActive: true})
	directory.PutUser(performers.User{ID: "carol", Email: "carol@example.com", IsActive: true})
	directory.PutGroup("devs", "alice", "bob")

	publisher := &capturePublisher{}
	fakeClock := clocktesting.NewFakeClock(testEpoch)
	persist := memory.NewPersistence()
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))

	validator, err := validation.NewValidator()
	require.NoError(t, err)

	executor := workflow.NewExecutor(workflow.Dependencies{
		Persistence: persist,
		Publisher:   publisher,
		Directory:   directory,
		Clock:       fakeClock,
		Logger:      logger,
	})

	return &harness{
		templates: NewTemplateService(persist, validator, fakeClock, logger),
		workflows: NewWorkflowService(persist, executor, publisher, fakeClock, logger),
		versions:  NewVersionService(persist, executor, publisher, fakeClock, logger),
		persist:   persist,
		publisher: publisher,
		clock:     fakeClock,
		directory: directory,
	}
}

func (h *harness) get(t *testing.T, id string) *models.Workflow {
	t.Helper()

	wf, err := h.persist.Workflows().GetByID(context.Background(), id)
	require.NoError(t, err)

	return wf
}

func userTaskTemplate(number int, apiName string, userIDs ...string) *models.TaskTemplate {
	raw := make([]*models.RawPerformer, 0, len(userIDs))
	for _, id := range userIDs {
		raw = append(raw, &models.RawPerformer{Type: models.PerformerTypeUser, SourceID: id})
	}

	return &models.TaskTemplate{
		APIName:       apiName,
		Number:        number,
		Name:          apiName,
		RawPerformers: raw,
	}
}

// threeStepTemplate is the baseline snapshot the reconciliation tests edit.
func threeStepTemplate() *models.Template {
	return &models.Template{
		Name: "Onboarding",
		Kickoff: models.KickoffTemplate{
			Fields: []*models.FieldTemplate{
				{APIName: "employee", Name: "Employee", Type: models.FieldTypeString, IsRequired: true},
			},
		},
		Tasks: []*models.TaskTemplate{
			userTaskTemplate(1, "prepare", "alice"),
			userTaskTemplate(2, "equip", "bob"),
			userTaskTemplate(3, "welcome", "carol"),
		},
	}
}

func (h *harness) saveAndRun(t *testing.T, template *models.Template, opts RunOptions) (*models.Template, *models.Workflow) {
	t.Helper()

	ctx := context.Background()

	saved, err := h.templates.Save(ctx, template)
	require.NoError(t, err)

	if opts.KickoffValues == nil {
		opts.KickoffValues = map[string]models.FieldValue{
			"employee": models.TextValue(models.FieldTypeString, "Dana"),
		}
	}

	wf, err := h.workflows.Run(ctx, saved.ID, opts)
	require.NoError(t, err)

	return saved, wf
}

func (h *harness) complete(t *testing.T, workflowID, taskAPIName, userID string) {
	t.Helper()

	err := h.workflows.executor.CompleteTaskForPerformer(context.Background(), workflowID, taskAPIName, userID, nil)
	require.NoError(t, err)
}

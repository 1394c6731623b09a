// Package memory provides an in-memory persistence implementation for tests
// and single-process deployments.
package memory

import (
	"context"
	"encoding/json"
	"slices"
	"sync"
	"time"

	"github.com/procwise/procwise/pkg/models"
	"github.com/procwise/procwise/pkg/persistence"
)

type Persistence struct {
	templates *TemplateRepository
	workflows *WorkflowRepository
}

func NewPersistence() *Persistence {
	return &Persistence{
		templates: &TemplateRepository{items: make(map[string]*models.Template)},
		workflows: &WorkflowRepository{
			items: make(map[string]*models.Workflow),
			locks: make(map[string]*sync.Mutex),
		},
	}
}

func (p *Persistence) Templates() persistence.TemplateRepository {
	return p.templates
}

func (p *Persistence) Workflows() persistence.WorkflowRepository {
	return p.workflows
}

func (p *Persistence) HealthCheck(_ context.Context) error {
	return nil
}

func (p *Persistence) Close(_ context.Context) error {
	return nil
}

// clone isolates stored aggregates from caller mutation. All model structs
// round-trip through JSON, which the gorm adapter relies on too.
func clone[T any](in *T) *T {
	raw, err := json.Marshal(in)
	if err != nil {
		panic(err)
	}

	out := new(T)
	if err := json.Unmarshal(raw, out); err != nil {
		panic(err)
	}

	return out
}

type TemplateRepository struct {
	mu    sync.RWMutex
	items map[string]*models.Template
}

func (r *TemplateRepository) Save(_ context.Context, template *models.Template) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.items[template.ID] = clone(template)

	return nil
}

func (r *TemplateRepository) GetByID(_ context.Context, id string) (*models.Template, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	template, ok := r.items[id]
	if !ok {
		return nil, persistence.NewTemplateError("GetByID", id, persistence.ErrTemplateNotFound)
	}

	return clone(template), nil
}

func (r *TemplateRepository) List(_ context.Context) ([]*models.Template, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make([]*models.Template, 0, len(r.items))
	for _, t := range r.items {
		out = append(out, clone(t))
	}

	slices.SortFunc(out, func(a, b *models.Template) int {
		return a.DateCreated.Compare(b.DateCreated)
	})

	return out, nil
}

func (r *TemplateRepository) Delete(_ context.Context, id string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.items[id]; !ok {
		return persistence.NewTemplateError("Delete", id, persistence.ErrTemplateNotFound)
	}

	delete(r.items, id)

	return nil
}

type WorkflowRepository struct {
	mu    sync.RWMutex
	items map[string]*models.Workflow
	locks map[string]*sync.Mutex
}

func (r *WorkflowRepository) Create(_ context.Context, workflow *models.Workflow) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.items[workflow.ID]; ok {
		return persistence.NewWorkflowError("Create", workflow.ID, persistence.ErrWorkflowAlreadyExists)
	}

	r.items[workflow.ID] = clone(workflow)
	r.locks[workflow.ID] = &sync.Mutex{}

	return nil
}

func (r *WorkflowRepository) GetByID(_ context.Context, id string) (*models.Workflow, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	workflow, ok := r.items[id]
	if !ok {
		return nil, persistence.NewWorkflowError("GetByID", id, persistence.ErrWorkflowNotFound)
	}

	return clone(workflow), nil
}

func (r *WorkflowRepository) Update(_ context.Context, id string, fn func(workflow *models.Workflow) error) error {
	r.mu.RLock()
	lock, ok := r.locks[id]
	r.mu.RUnlock()

	if !ok {
		return persistence.NewWorkflowError("Update", id, persistence.ErrWorkflowNotFound)
	}

	// Per-workflow serialization: concurrent updates on the same workflow
	// queue here; different workflows proceed in parallel.
	lock.Lock()
	defer lock.Unlock()

	r.mu.RLock()
	stored, ok := r.items[id]
	r.mu.RUnlock()

	if !ok {
		// Terminated while waiting for the lock.
		return persistence.NewWorkflowError("Update", id, persistence.ErrWorkflowNotFound)
	}

	working := clone(stored)

	if err := fn(working); err != nil {
		return err
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	current, ok := r.items[id]
	if !ok {
		return persistence.NewWorkflowError("Update", id, persistence.ErrWorkflowNotFound)
	}

	if current.LockVersion != working.LockVersion {
		return persistence.NewWorkflowError("Update", id, persistence.ErrStaleWorkflow)
	}

	working.LockVersion++
	r.items[id] = clone(working)

	return nil
}

func (r *WorkflowRepository) Delete(_ context.Context, id string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.items[id]; !ok {
		return persistence.NewWorkflowError("Delete", id, persistence.ErrWorkflowNotFound)
	}

	delete(r.items, id)
	delete(r.locks, id)

	return nil
}

func (r *WorkflowRepository) ListByTemplate(_ context.Context, templateID string, statuses ...models.WorkflowStatus) ([]*models.Workflow, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make([]*models.Workflow, 0)

	for _, wf := range r.items {
		if wf.TemplateID != templateID {
			continue
		}

		if len(statuses) > 0 && !slices.Contains(statuses, wf.Status) {
			continue
		}

		out = append(out, clone(wf))
	}

	slices.SortFunc(out, func(a, b *models.Workflow) int {
		return a.DateCreated.Compare(b.DateCreated)
	})

	return out, nil
}

func (r *WorkflowRepository) ListDelayed(_ context.Context, before time.Time) ([]*models.Workflow, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make([]*models.Workflow, 0)

	for _, wf := range r.items {
		if wf.Status != models.WorkflowStatusDelayed {
			continue
		}

		current := wf.CurrentTaskInstance()
		if current == nil {
			continue
		}

		delay := current.ActiveDelay()
		if delay != nil && !delay.EstimatedEndDate.After(before) {
			out = append(out, clone(wf))
		}
	}

	return out, nil
}

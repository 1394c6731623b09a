// Package persistence abstracts storage of templates and workflow
// aggregates. A workflow and everything it owns (tasks, performers, fields,
// checklists, delays) is loaded and saved as one unit so that advancement
// and reconciliation mutations stay atomic.
package persistence

import (
	"context"
	"time"

	"github.com/procwise/procwise/pkg/models"
)

type Persistence interface {
	Templates() TemplateRepository
	Workflows() WorkflowRepository
	HealthCheck(ctx context.Context) error
	Close(ctx context.Context) error
}

type TemplateRepository interface {
	// Save upserts a template with its current snapshot.
	Save(ctx context.Context, template *models.Template) error
	GetByID(ctx context.Context, id string) (*models.Template, error)
	List(ctx context.Context) ([]*models.Template, error)
	Delete(ctx context.Context, id string) error
}

type WorkflowRepository interface {
	Create(ctx context.Context, workflow *models.Workflow) error
	GetByID(ctx context.Context, id string) (*models.Workflow, error)

	// Update loads the workflow aggregate, applies fn and saves the result
	// atomically. Mutations on the same workflow are serialized; a write
	// that lost a concurrent race fails with ErrStaleWorkflow and the
	// caller retries with fresh state. An error returned by fn aborts the
	// update without saving.
	Update(ctx context.Context, id string, fn func(workflow *models.Workflow) error) error

	// Delete hard-deletes the workflow and everything it owns.
	Delete(ctx context.Context, id string) error

	ListByTemplate(ctx context.Context, templateID string, statuses ...models.WorkflowStatus) ([]*models.Workflow, error)

	// ListDelayed returns delayed workflows whose active delay runs out at
	// or before the given instant. The delay sweeper feeds on this.
	ListDelayed(ctx context.Context, before time.Time) ([]*models.Workflow, error)
}

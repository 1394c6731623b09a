package services

import (
	"context"
	"log/slog"
	"strings"

	"github.com/google/uuid"
	"k8s.io/utils/clock"

	"github.com/procwise/procwise/pkg/models"
	"github.com/procwise/procwise/pkg/persistence"
	"github.com/procwise/procwise/pkg/validation"
)

// TemplateService validates and stores template snapshots. Every save bumps
// the monotonic version; running workflows keep executing their recorded
// version until reconciled explicitly.
type TemplateService struct {
	persist   persistence.Persistence
	validator *validation.Validator
	clock     clock.Clock
	logger    *slog.Logger
}

func NewTemplateService(persist persistence.Persistence, validator *validation.Validator, cl clock.Clock, logger *slog.Logger) *TemplateService {
	if cl == nil {
		cl = clock.RealClock{}
	}

	if logger == nil {
		logger = slog.Default()
	}

	return &TemplateService{
		persist:   persist,
		validator: validator,
		clock:     cl,
		logger:    logger.With("module", "services"),
	}
}

// Save validates the snapshot and persists it under the next version.
// Entities arriving without an api_name get a fresh one: absence of identity
// means a brand-new entity, never a match against an existing row.
func (s *TemplateService) Save(ctx context.Context, template *models.Template) (*models.Template, error) {
	EnsureAPINames(template)

	if err := s.validator.ValidateTemplate(template); err != nil {
		return nil, newError("Save", template.ID, err)
	}

	now := s.clock.Now()

	if template.ID == "" {
		template.ID = uuid.NewString()
		template.Version = 1
		template.DateCreated = now
	} else {
		existing, err := s.persist.Templates().GetByID(ctx, template.ID)

		switch {
		case persistence.IsTemplateNotFound(err):
			template.Version = 1
			template.DateCreated = now
		case err != nil:
			return nil, err
		default:
			template.Version = existing.Version + 1
			template.DateCreated = existing.DateCreated
		}
	}

	template.DateUpdated = now

	if err := s.persist.Templates().Save(ctx, template); err != nil {
		return nil, err
	}

	s.logger.Info("template saved", "template_id", template.ID, "version", template.Version)

	return template, nil
}

func (s *TemplateService) GetByID(ctx context.Context, id string) (*models.Template, error) {
	return s.persist.Templates().GetByID(ctx, id)
}

func (s *TemplateService) List(ctx context.Context) ([]*models.Template, error) {
	return s.persist.Templates().List(ctx)
}

func (s *TemplateService) Delete(ctx context.Context, id string) error {
	return s.persist.Templates().Delete(ctx, id)
}

// EnsureAPINames assigns a generated api_name to every snapshot entity
// missing one.
func EnsureAPINames(template *models.Template) {
	for _, f := range template.Kickoff.Fields {
		ensureFieldAPINames(f)
	}

	for _, task := range template.Tasks {
		if task.APIName == "" {
			task.APIName = generateAPIName("task")
		}

		for _, f := range task.Fields {
			ensureFieldAPINames(f)
		}

		for _, c := range task.Checklists {
			if c.APIName == "" {
				c.APIName = generateAPIName("checklist")
			}

			for _, item := range c.Selections {
				if item.APIName == "" {
					item.APIName = generateAPIName("citem")
				}
			}
		}

		for _, cond := range task.Conditions {
			if cond.APIName == "" {
				cond.APIName = generateAPIName("condition")
			}

			for _, rule := range cond.Rules {
				if rule.APIName == "" {
					rule.APIName = generateAPIName("rule")
				}

				for _, pred := range rule.Predicates {
					if pred.APIName == "" {
						pred.APIName = generateAPIName("predicate")
					}
				}
			}
		}
	}
}

func ensureFieldAPINames(f *models.FieldTemplate) {
	if f.APIName == "" {
		f.APIName = generateAPIName("field")
	}

	for _, sel := range f.Selections {
		if sel.APIName == "" {
			sel.APIName = generateAPIName("selection")
		}
	}
}

func generateAPIName(prefix string) string {
	return prefix + "-" + strings.Split(uuid.NewString(), "-")[0]
}

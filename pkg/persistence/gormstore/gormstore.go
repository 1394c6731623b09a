// Package gormstore persists templates and workflow aggregates in a
// relational database through GORM. Aggregates are stored as JSON documents
// next to a handful of indexed columns used for querying; writes on one
// workflow are serialized with an optimistic lock_version check.
package gormstore

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"gorm.io/driver/mysql"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"github.com/procwise/procwise/pkg/models"
	"github.com/procwise/procwise/pkg/persistence"
)

type templateRecord struct {
	ID        string `gorm:"primaryKey;size:36"`
	Version   int    `gorm:"not null"`
	Data      []byte `gorm:"type:json"`
	CreatedAt time.Time
	UpdatedAt time.Time
}

func (templateRecord) TableName() string { return "templates" }

type workflowRecord struct {
	ID              string `gorm:"primaryKey;size:36"`
	TemplateID      string `gorm:"index;size:36"`
	Status          string `gorm:"index;size:16"`
	TemplateVersion int
	LockVersion     int        `gorm:"not null"`
	DelayEndsAt     *time.Time `gorm:"index"`
	Data            []byte     `gorm:"type:json"`
	CreatedAt       time.Time
	UpdatedAt       time.Time
}

func (workflowRecord) TableName() string { return "workflows" }

type Persistence struct {
	db        *gorm.DB
	templates *TemplateRepository
	workflows *WorkflowRepository
}

// NewPersistence opens the database named by the URL ("sqlite://file.db" or
// "mysql://dsn") and migrates the schema.
func NewPersistence(_ context.Context, log *slog.Logger, databaseURL string) (*Persistence, error) {
	var dialector gorm.Dialector

	switch {
	case strings.HasPrefix(databaseURL, "sqlite://"):
		dialector = sqlite.Open(strings.TrimPrefix(databaseURL, "sqlite://"))
	case strings.HasPrefix(databaseURL, "mysql://"):
		dialector = mysql.Open(strings.TrimPrefix(databaseURL, "mysql://"))
	default:
		return nil, fmt.Errorf("unsupported database URL: %s", databaseURL)
	}

	db, err := gorm.Open(dialector, &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}

	if err := db.AutoMigrate(&templateRecord{}, &workflowRecord{}); err != nil {
		return nil, fmt.Errorf("failed to migrate schema: %w", err)
	}

	log.Info("database connection established")

	return &Persistence{
		db:        db,
		templates: &TemplateRepository{db: db},
		workflows: &WorkflowRepository{db: db},
	}, nil
}

func (p *Persistence) Templates() persistence.TemplateRepository {
	return p.templates
}

func (p *Persistence) Workflows() persistence.WorkflowRepository {
	return p.workflows
}

func (p *Persistence) HealthCheck(ctx context.Context) error {
	db, err := p.db.DB()
	if err != nil {
		return err
	}

	return db.PingContext(ctx)
}

func (p *Persistence) Close(_ context.Context) error {
	db, err := p.db.DB()
	if err != nil {
		return err
	}

	return db.Close()
}

type TemplateRepository struct {
	db *gorm.DB
}

func (r *TemplateRepository) Save(ctx context.Context, template *models.Template) error {
	data, err := json.Marshal(template)
	if err != nil {
		return persistence.NewTemplateError("Save", template.ID, err)
	}

	record := templateRecord{
		ID:      template.ID,
		Version: template.Version,
		Data:    data,
	}

	err = r.db.WithContext(ctx).Save(&record).Error
	if err != nil {
		return persistence.NewTemplateError("Save", template.ID, err)
	}

	return nil
}

func (r *TemplateRepository) GetByID(ctx context.Context, id string) (*models.Template, error) {
	var record templateRecord

	err := r.db.WithContext(ctx).First(&record, "id = ?", id).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, persistence.NewTemplateError("GetByID", id, persistence.ErrTemplateNotFound)
	} else if err != nil {
		return nil, persistence.NewTemplateError("GetByID", id, err)
	}

	return decodeTemplate(&record)
}

func (r *TemplateRepository) List(ctx context.Context) ([]*models.Template, error) {
	var records []templateRecord

	err := r.db.WithContext(ctx).Order("created_at").Find(&records).Error
	if err != nil {
		return nil, persistence.NewTemplateError("List", "", err)
	}

	out := make([]*models.Template, 0, len(records))

	for i := range records {
		template, err := decodeTemplate(&records[i])
		if err != nil {
			return nil, err
		}

		out = append(out, template)
	}

	return out, nil
}

func (r *TemplateRepository) Delete(ctx context.Context, id string) error {
	result := r.db.WithContext(ctx).Delete(&templateRecord{}, "id = ?", id)
	if result.Error != nil {
		return persistence.NewTemplateError("Delete", id, result.Error)
	}

	if result.RowsAffected == 0 {
		return persistence.NewTemplateError("Delete", id, persistence.ErrTemplateNotFound)
	}

	return nil
}

func decodeTemplate(record *templateRecord) (*models.Template, error) {
	template := &models.Template{}
	if err := json.Unmarshal(record.Data, template); err != nil {
		return nil, persistence.NewTemplateError("decode", record.ID, err)
	}

	return template, nil
}

type WorkflowRepository struct {
	db *gorm.DB
}

func (r *WorkflowRepository) Create(ctx context.Context, workflow *models.Workflow) error {
	record, err := encodeWorkflow(workflow)
	if err != nil {
		return persistence.NewWorkflowError("Create", workflow.ID, err)
	}

	err = r.db.WithContext(ctx).Create(record).Error
	if err != nil {
		if errors.Is(err, gorm.ErrDuplicatedKey) {
			return persistence.NewWorkflowError("Create", workflow.ID, persistence.ErrWorkflowAlreadyExists)
		}

		return persistence.NewWorkflowError("Create", workflow.ID, err)
	}

	return nil
}

func (r *WorkflowRepository) GetByID(ctx context.Context, id string) (*models.Workflow, error) {
	var record workflowRecord

	err := r.db.WithContext(ctx).First(&record, "id = ?", id).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, persistence.NewWorkflowError("GetByID", id, persistence.ErrWorkflowNotFound)
	} else if err != nil {
		return nil, persistence.NewWorkflowError("GetByID", id, err)
	}

	return decodeWorkflow(&record)
}

func (r *WorkflowRepository) Update(ctx context.Context, id string, fn func(workflow *models.Workflow) error) error {
	return r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var record workflowRecord

		err := tx.First(&record, "id = ?", id).Error
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return persistence.NewWorkflowError("Update", id, persistence.ErrWorkflowNotFound)
		} else if err != nil {
			return persistence.NewWorkflowError("Update", id, err)
		}

		workflow, err := decodeWorkflow(&record)
		if err != nil {
			return err
		}

		if err := fn(workflow); err != nil {
			return err
		}

		previousLock := workflow.LockVersion
		workflow.LockVersion++

		updated, err := encodeWorkflow(workflow)
		if err != nil {
			return persistence.NewWorkflowError("Update", id, err)
		}

		result := tx.Model(&workflowRecord{}).
			Where("id = ? AND lock_version = ?", id, previousLock).
			Updates(map[string]any{
				"status":           updated.Status,
				"template_version": updated.TemplateVersion,
				"lock_version":     updated.LockVersion,
				"delay_ends_at":    updated.DelayEndsAt,
				"data":             updated.Data,
			})
		if result.Error != nil {
			return persistence.NewWorkflowError("Update", id, result.Error)
		}

		if result.RowsAffected == 0 {
			return persistence.NewWorkflowError("Update", id, persistence.ErrStaleWorkflow)
		}

		return nil
	})
}

func (r *WorkflowRepository) Delete(ctx context.Context, id string) error {
	result := r.db.WithContext(ctx).Delete(&workflowRecord{}, "id = ?", id)
	if result.Error != nil {
		return persistence.NewWorkflowError("Delete", id, result.Error)
	}

	if result.RowsAffected == 0 {
		return persistence.NewWorkflowError("Delete", id, persistence.ErrWorkflowNotFound)
	}

	return nil
}

func (r *WorkflowRepository) ListByTemplate(ctx context.Context, templateID string, statuses ...models.WorkflowStatus) ([]*models.Workflow, error) {
	query := r.db.WithContext(ctx).Where("template_id = ?", templateID)

	if len(statuses) > 0 {
		values := make([]string, 0, len(statuses))
		for _, s := range statuses {
			values = append(values, string(s))
		}

		query = query.Where("status IN ?", values)
	}

	var records []workflowRecord

	err := query.Order("created_at").Find(&records).Error
	if err != nil {
		return nil, persistence.NewWorkflowError("ListByTemplate", templateID, err)
	}

	return decodeWorkflows(records)
}

func (r *WorkflowRepository) ListDelayed(ctx context.Context, before time.Time) ([]*models.Workflow, error) {
	var records []workflowRecord

	err := r.db.WithContext(ctx).
		Where("status = ? AND delay_ends_at IS NOT NULL AND delay_ends_at <= ?", string(models.WorkflowStatusDelayed), before).
		Find(&records).Error
	if err != nil {
		return nil, persistence.NewWorkflowError("ListDelayed", "", err)
	}

	return decodeWorkflows(records)
}

func decodeWorkflows(records []workflowRecord) ([]*models.Workflow, error) {
	out := make([]*models.Workflow, 0, len(records))

	for i := range records {
		workflow, err := decodeWorkflow(&records[i])
		if err != nil {
			return nil, err
		}

		out = append(out, workflow)
	}

	return out, nil
}

func encodeWorkflow(workflow *models.Workflow) (*workflowRecord, error) {
	data, err := json.Marshal(workflow)
	if err != nil {
		return nil, err
	}

	record := &workflowRecord{
		ID:              workflow.ID,
		TemplateID:      workflow.TemplateID,
		Status:          string(workflow.Status),
		TemplateVersion: workflow.TemplateVersion,
		LockVersion:     workflow.LockVersion,
		Data:            data,
	}

	// The sweeper index: the active delay's estimated end of the current
	// task, present only while the workflow is delayed.
	if workflow.Status == models.WorkflowStatusDelayed {
		if current := workflow.CurrentTaskInstance(); current != nil {
			if delay := current.ActiveDelay(); delay != nil {
				ends := delay.EstimatedEndDate
				record.DelayEndsAt = &ends
			}
		}
	}

	return record, nil
}

func decodeWorkflow(record *workflowRecord) (*models.Workflow, error) {
	workflow := &models.Workflow{}
	if err := json.Unmarshal(record.Data, workflow); err != nil {
		return nil, persistence.NewWorkflowError("decode", record.ID, err)
	}

	return workflow, nil
}

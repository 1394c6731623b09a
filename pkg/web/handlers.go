// Package web provides the HTTP handlers of the workflow engine API: running
// and inspecting workflows, completing tasks, delay control, returns,
// template saves and version reconciliation.
package web

import (
	"net/http"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/gofiber/fiber/v3"

	"github.com/procwise/procwise/pkg/models"
	"github.com/procwise/procwise/pkg/persistence"
	"github.com/procwise/procwise/pkg/services"
	"github.com/procwise/procwise/pkg/validation"
	"github.com/procwise/procwise/pkg/workflow"
)

type APIHandlers struct {
	templates       *services.TemplateService
	workflows       *services.WorkflowService
	versions        *services.VersionService
	executor        *workflow.Executor
	persist         persistence.Persistence
	snapshotChecker *validation.Validator
	validate        *validator.Validate
}

func NewAPIHandlers(
	templates *services.TemplateService,
	workflows *services.WorkflowService,
	versions *services.VersionService,
	executor *workflow.Executor,
	persist persistence.Persistence,
	snapshotChecker *validation.Validator,
) *APIHandlers {
	return &APIHandlers{
		templates:       templates,
		workflows:       workflows,
		versions:        versions,
		executor:        executor,
		persist:         persist,
		snapshotChecker: snapshotChecker,
		validate:        validator.New(validator.WithRequiredStructEnabled()),
	}
}

// Register mounts every route on the app.
func (h *APIHandlers) Register(app *fiber.App) {
	v1 := app.Group("/v1")

	w := v1.Group("/workflows")
	w.Post("/", h.RunWorkflow)
	w.Get("/:id", h.GetWorkflow)
	w.Delete("/:id", h.TerminateWorkflow)
	w.Post("/:id/tasks/:apiName/complete", h.CompleteTask)
	w.Post("/:id/force-delay", h.ForceDelay)
	w.Post("/:id/force-resume", h.ForceResume)
	w.Post("/:id/return/:apiName", h.ReturnToTask)
	w.Patch("/:id/kickoff", h.UpdateKickoff)

	ts := v1.Group("/templates")
	ts.Post("/", h.SaveTemplate)
	ts.Put("/:id", h.SaveTemplate)
	ts.Get("/:id", h.GetTemplate)
	ts.Post("/:id/reconcile", h.ReconcileTemplate)

	app.Get("/health", h.HealthCheck)
}

func (h *APIHandlers) RunWorkflow(c fiber.Ctx) error {
	var req RunWorkflowRequest
	if err := c.Bind().JSON(&req); err != nil {
		return badRequest(c, "Invalid JSON format")
	}

	if err := h.validate.Struct(req); err != nil {
		return badRequest(c, err.Error())
	}

	wf, err := h.workflows.Run(c.Context(), req.TemplateID, services.RunOptions{
		Name:           req.Name,
		IsUrgent:       req.IsUrgent,
		AncestorTaskID: req.AncestorTaskID,
		KickoffValues:  req.KickoffValues,
	})
	if err != nil {
		return handleServiceError(c, err)
	}

	return c.Status(fiber.StatusCreated).JSON(wf)
}

func (h *APIHandlers) GetWorkflow(c fiber.Ctx) error {
	id := c.Params("id")
	if id == "" {
		return badRequest(c, "Workflow ID is required")
	}

	wf, err := h.workflows.GetByID(c.Context(), id)
	if err != nil {
		return handleServiceError(c, err)
	}

	return c.JSON(wf)
}

func (h *APIHandlers) TerminateWorkflow(c fiber.Ctx) error {
	id := c.Params("id")
	if id == "" {
		return badRequest(c, "Workflow ID is required")
	}

	if err := h.executor.Terminate(c.Context(), id); err != nil {
		return handleServiceError(c, err)
	}

	return c.SendStatus(fiber.StatusNoContent)
}

func (h *APIHandlers) CompleteTask(c fiber.Ctx) error {
	id := c.Params("id")
	apiName := c.Params("apiName")

	if id == "" || apiName == "" {
		return badRequest(c, "Workflow ID and task api_name are required")
	}

	var req CompleteTaskRequest
	if err := c.Bind().JSON(&req); err != nil {
		return badRequest(c, "Invalid JSON format")
	}

	if err := h.validate.Struct(req); err != nil {
		return badRequest(c, err.Error())
	}

	err := h.executor.CompleteTaskForPerformer(c.Context(), id, apiName, req.UserID, req.Values)
	if err != nil {
		return handleServiceError(c, err)
	}

	wf, err := h.workflows.GetByID(c.Context(), id)
	if err != nil {
		return handleServiceError(c, err)
	}

	return c.JSON(wf)
}

func (h *APIHandlers) ForceDelay(c fiber.Ctx) error {
	id := c.Params("id")
	if id == "" {
		return badRequest(c, "Workflow ID is required")
	}

	var req ForceDelayRequest
	if err := c.Bind().JSON(&req); err != nil {
		return badRequest(c, "Invalid JSON format")
	}

	if err := h.validate.Struct(req); err != nil {
		return badRequest(c, err.Error())
	}

	duration, err := time.ParseDuration(req.Duration)
	if err != nil || duration <= 0 {
		return badRequest(c, "Duration must be a positive Go duration string")
	}

	if err := h.executor.ForceDelay(c.Context(), id, duration); err != nil {
		return handleServiceError(c, err)
	}

	return c.SendStatus(fiber.StatusNoContent)
}

func (h *APIHandlers) ForceResume(c fiber.Ctx) error {
	id := c.Params("id")
	if id == "" {
		return badRequest(c, "Workflow ID is required")
	}

	if err := h.executor.ForceResume(c.Context(), id); err != nil {
		return handleServiceError(c, err)
	}

	return c.SendStatus(fiber.StatusNoContent)
}

func (h *APIHandlers) ReturnToTask(c fiber.Ctx) error {
	id := c.Params("id")
	apiName := c.Params("apiName")

	if id == "" || apiName == "" {
		return badRequest(c, "Workflow ID and task api_name are required")
	}

	if err := h.executor.ReturnToTask(c.Context(), id, apiName); err != nil {
		return handleServiceError(c, err)
	}

	wf, err := h.workflows.GetByID(c.Context(), id)
	if err != nil {
		return handleServiceError(c, err)
	}

	return c.JSON(wf)
}

func (h *APIHandlers) UpdateKickoff(c fiber.Ctx) error {
	id := c.Params("id")
	if id == "" {
		return badRequest(c, "Workflow ID is required")
	}

	var req UpdateKickoffRequest
	if err := c.Bind().JSON(&req); err != nil {
		return badRequest(c, "Invalid JSON format")
	}

	if err := h.validate.Struct(req); err != nil {
		return badRequest(c, err.Error())
	}

	if err := h.workflows.UpdateKickoff(c.Context(), id, req.Values); err != nil {
		return handleServiceError(c, err)
	}

	return c.SendStatus(fiber.StatusNoContent)
}

// SaveTemplate handles both creation and update: a PUT carries the template
// id in the path, a POST creates a fresh one. The raw body is checked against
// the snapshot schema before decoding.
func (h *APIHandlers) SaveTemplate(c fiber.Ctx) error {
	if err := h.snapshotChecker.ValidateRaw(c.Body()); err != nil {
		return handleServiceError(c, err)
	}

	var template models.Template
	if err := c.Bind().JSON(&template); err != nil {
		return badRequest(c, "Invalid JSON format")
	}

	if id := c.Params("id"); id != "" {
		template.ID = id
	}

	saved, err := h.templates.Save(c.Context(), &template)
	if err != nil {
		return handleServiceError(c, err)
	}

	return c.Status(fiber.StatusCreated).JSON(saved)
}

func (h *APIHandlers) GetTemplate(c fiber.Ctx) error {
	id := c.Params("id")
	if id == "" {
		return badRequest(c, "Template ID is required")
	}

	template, err := h.templates.GetByID(c.Context(), id)
	if err != nil {
		return handleServiceError(c, err)
	}

	return c.JSON(template)
}

// ReconcileTemplate pushes the template's current version to every workflow
// of that template still in flight.
func (h *APIHandlers) ReconcileTemplate(c fiber.Ctx) error {
	id := c.Params("id")
	if id == "" {
		return badRequest(c, "Template ID is required")
	}

	reconciled, err := h.versions.ReconcileTemplate(c.Context(), id)
	if err != nil {
		return handleServiceError(c, err)
	}

	return c.JSON(fiber.Map{"reconciled": reconciled})
}

func (h *APIHandlers) HealthCheck(c fiber.Ctx) error {
	status := "healthy"
	httpStatus := http.StatusOK

	if err := h.persist.HealthCheck(c.Context()); err != nil {
		status = "unhealthy"
		httpStatus = http.StatusInternalServerError
	}

	return c.Status(httpStatus).JSON(fiber.Map{
		"status":    status,
		"timestamp": time.Now().UTC(),
	})
}

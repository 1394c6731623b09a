package web

import (
	"github.com/gofiber/fiber/v3"
	"github.com/moogar0880/problems"

	"github.com/procwise/procwise/pkg/persistence"
	"github.com/procwise/procwise/pkg/services"
	"github.com/procwise/procwise/pkg/validation"
	"github.com/procwise/procwise/pkg/workflow"
)

func badRequest(c fiber.Ctx, detail string) error {
	problem := problems.NewStatusProblem(400).
		WithInstance(c.Path()).
		WithType("validation_error").
		WithDetail(detail)

	return c.Status(fiber.StatusBadRequest).JSON(problem)
}

func notFound(c fiber.Ctx, kind, detail string) error {
	problem := problems.NewStatusProblem(404).
		WithInstance(c.Path()).
		WithType(kind).
		WithDetail(detail)

	return c.Status(fiber.StatusNotFound).JSON(problem)
}

func conflict(c fiber.Ctx, kind, detail string) error {
	problem := problems.NewStatusProblem(409).
		WithInstance(c.Path()).
		WithType(kind).
		WithDetail(detail)

	return c.Status(fiber.StatusConflict).JSON(problem)
}

func internalError(c fiber.Ctx, err error) error {
	problem := problems.NewStatusProblem(500).
		WithInstance(c.Path()).
		WithType("internal_error").
		WithError(err)

	return c.Status(fiber.StatusInternalServerError).JSON(problem)
}

// handleServiceError provides typed error handling for engine and service
// layer errors.
func handleServiceError(c fiber.Ctx, err error) error {
	switch {
	case validation.IsValidationError(err), services.IsKickoffIncomplete(err):
		return badRequest(c, err.Error())

	case workflow.IsInvalidReturn(err):
		return badRequest(c, err.Error())

	case persistence.IsWorkflowNotFound(err):
		return notFound(c, "workflow_not_found", "workflow not found")

	case persistence.IsTemplateNotFound(err):
		return notFound(c, "template_not_found", "template not found")

	case persistence.IsTaskNotFound(err):
		return notFound(c, "task_not_found", "task not found")

	case workflow.IsWorkflowEnded(err):
		return conflict(c, "workflow_ended", "workflow already reached a terminal state")

	case workflow.IsNotDelayed(err):
		return conflict(c, "not_delayed", "workflow is not delayed")

	case services.IsStaleSnapshot(err), persistence.IsStaleWorkflow(err):
		return conflict(c, "stale_version", err.Error())

	case workflow.IsPerformerNotAssigned(err):
		problem := problems.NewStatusProblem(403).
			WithInstance(c.Path()).
			WithType("performer_not_assigned").
			WithDetail("user is not an active performer of this task")

		return c.Status(fiber.StatusForbidden).JSON(problem)

	default:
		return internalError(c, err)
	}
}

package eventbus

import (
	"context"
	"log/slog"

	"github.com/procwise/procwise/pkg/events"
)

// auditedEvents are the lifecycle transitions worth a line in the service log.
var auditedEvents = []events.EventType{
	events.WorkflowStartedEvent,
	events.WorkflowCompletedEvent,
	events.WorkflowTerminatedEvent,
	events.WorkflowDelayedEvent,
	events.WorkflowResumedEvent,
	events.WorkflowVersionUpdatedEvent,
	events.TaskStartedEvent,
	events.TaskCompletedEvent,
}

// AttachAuditLog registers a logging consumer for workflow lifecycle events
// and starts consuming. The subscription lives until ctx is cancelled.
func AttachAuditLog(ctx context.Context, bus EventBus, logger *slog.Logger) error {
	for _, eventType := range auditedEvents {
		bus.Handle(eventType, auditHandler(eventType, logger))
	}

	return bus.Subscribe(ctx)
}

func auditHandler(eventType events.EventType, logger *slog.Logger) EventHandler {
	return func(ctx context.Context, event any) error {
		workflowID := ""
		if e, ok := event.(interface{ GetWorkflowID() string }); ok {
			workflowID = e.GetWorkflowID()
		}

		logger.InfoContext(ctx, "Workflow event",
			"event_type", string(eventType),
			"workflow_id", workflowID)

		return nil
	}
}

// Package events defines the typed events the engine emits at state
// transition boundaries: notification payloads, analytics records and
// webhook envelopes. Delivery is the bus adapters' concern.
package events

import (
	"time"
)

type EventType string

// Kafka topics.
const Topic = "procwise.events"                    // notification dispatch
const AnalyticsTopic = "procwise.analytics"        // analytics event emission
const WebhookTopic = "procwise.webhooks"           // webhook fan-out
const EventMetadataKey = "key"                     // message key header
const EventTypeMetadataKey = "event_type"          // event type header

const (
	// Workflow lifecycle.
	WorkflowStartedEvent        EventType = "workflow.started"
	WorkflowCompletedEvent      EventType = "workflow.completed"
	WorkflowTerminatedEvent     EventType = "workflow.terminated"
	WorkflowDelayedEvent        EventType = "workflow.delayed"
	WorkflowResumedEvent        EventType = "workflow.resumed"
	WorkflowReturnedEvent       EventType = "workflow.returned"
	WorkflowVersionUpdatedEvent EventType = "workflow.version.updated"

	// Task lifecycle.
	TaskStartedEvent  EventType = "task.started"
	TaskCompletedEvent EventType = "task.completed"
	TaskSkippedEvent  EventType = "task.skipped"
	TaskReturnedEvent EventType = "task.returned"

	// Performer assignment.
	PerformerAddedEvent     EventType = "performer.added"
	PerformerRemovedEvent   EventType = "performer.removed"
	PerformerCompletedEvent EventType = "performer.completed"

	// Delays.
	DelayStartedEvent EventType = "delay.started"
	DelayEndedEvent   EventType = "delay.ended"
)

// Recipient is one notifiable user with contact info resolved at emit time.
type Recipient struct {
	UserID string `json:"user_id"`
	Email  string `json:"email,omitempty"`
}

type BaseEvent struct {
	ID           string         `json:"id"`
	Type         EventType      `json:"type"`
	Timestamp    time.Time      `json:"timestamp"`
	WorkflowID   string         `json:"workflow_id"`
	WorkflowName string         `json:"workflow_name,omitempty"`
	Metadata     map[string]any `json:"metadata,omitempty"`
}

func (e BaseEvent) GetWorkflowID() string { return e.WorkflowID }

type WorkflowStarted struct {
	BaseEvent

	TemplateID      string `json:"template_id"`
	TemplateVersion int    `json:"template_version"`
}

func (e WorkflowStarted) GetType() EventType { return WorkflowStartedEvent }

type WorkflowCompleted struct {
	BaseEvent

	DateCompleted time.Time `json:"date_completed"`
}

func (e WorkflowCompleted) GetType() EventType { return WorkflowCompletedEvent }

type WorkflowTerminated struct {
	BaseEvent
}

func (e WorkflowTerminated) GetType() EventType { return WorkflowTerminatedEvent }

type WorkflowDelayed struct {
	BaseEvent

	TaskID           string    `json:"task_id"`
	EstimatedEndDate time.Time `json:"estimated_end_date"`
}

func (e WorkflowDelayed) GetType() EventType { return WorkflowDelayedEvent }

type WorkflowResumed struct {
	BaseEvent

	TaskID string `json:"task_id"`
}

func (e WorkflowResumed) GetType() EventType { return WorkflowResumedEvent }

type WorkflowReturned struct {
	BaseEvent

	TaskID      string `json:"task_id"`
	TaskAPIName string `json:"task_api_name"`
}

func (e WorkflowReturned) GetType() EventType { return WorkflowReturnedEvent }

type WorkflowVersionUpdated struct {
	BaseEvent

	TemplateID      string `json:"template_id"`
	TemplateVersion int    `json:"template_version"`
}

func (e WorkflowVersionUpdated) GetType() EventType { return WorkflowVersionUpdatedEvent }

type TaskStarted struct {
	BaseEvent

	TaskID      string      `json:"task_id"`
	TaskAPIName string      `json:"task_api_name"`
	TaskName    string      `json:"task_name"`
	IsReturned  bool        `json:"is_returned"`
	Recipients  []Recipient `json:"recipients"`
}

func (e TaskStarted) GetType() EventType { return TaskStartedEvent }

type TaskCompleted struct {
	BaseEvent

	TaskID      string `json:"task_id"`
	TaskAPIName string `json:"task_api_name"`
}

func (e TaskCompleted) GetType() EventType { return TaskCompletedEvent }

type TaskSkipped struct {
	BaseEvent

	TaskID      string `json:"task_id"`
	TaskAPIName string `json:"task_api_name"`
}

func (e TaskSkipped) GetType() EventType { return TaskSkippedEvent }

type TaskReturned struct {
	BaseEvent

	TaskID      string `json:"task_id"`
	TaskAPIName string `json:"task_api_name"`
}

func (e TaskReturned) GetType() EventType { return TaskReturnedEvent }

type PerformerAdded struct {
	BaseEvent

	TaskID        string      `json:"task_id"`
	PerformerType string      `json:"performer_type"`
	SourceID      string      `json:"source_id"`
	Recipients    []Recipient `json:"recipients"`
}

func (e PerformerAdded) GetType() EventType { return PerformerAddedEvent }

type PerformerRemoved struct {
	BaseEvent

	TaskID        string      `json:"task_id"`
	PerformerType string      `json:"performer_type"`
	SourceID      string      `json:"source_id"`
	Recipients    []Recipient `json:"recipients"`
}

func (e PerformerRemoved) GetType() EventType { return PerformerRemovedEvent }

type PerformerCompleted struct {
	BaseEvent

	TaskID        string `json:"task_id"`
	PerformerType string `json:"performer_type"`
	SourceID      string `json:"source_id"`
}

func (e PerformerCompleted) GetType() EventType { return PerformerCompletedEvent }

type DelayStarted struct {
	BaseEvent

	TaskID           string    `json:"task_id"`
	StartDate        time.Time `json:"start_date"`
	EstimatedEndDate time.Time `json:"estimated_end_date"`
}

func (e DelayStarted) GetType() EventType { return DelayStartedEvent }

type DelayEnded struct {
	BaseEvent

	TaskID string `json:"task_id"`
}

func (e DelayEnded) GetType() EventType { return DelayEndedEvent }

// AnalyticsEvent is the flat record shape emitted on the analytics topic at
// the same trigger points as notifications.
type AnalyticsEvent struct {
	ID         string         `json:"id"`
	Name       string         `json:"name"`
	ActorID    string         `json:"actor_id,omitempty"`
	WorkflowID string         `json:"workflow_id"`
	TaskID     string         `json:"task_id,omitempty"`
	Timestamp  time.Time      `json:"timestamp"`
	Attrs      map[string]any `json:"attrs,omitempty"`
}

// WebhookEnvelope is what webhook consumers receive; delivery is external.
type WebhookEnvelope struct {
	ID         string    `json:"id"`
	EventName  string    `json:"event_name"`
	WorkflowID string    `json:"workflow_id"`
	TaskID     string    `json:"task_id,omitempty"`
	Timestamp  time.Time `json:"timestamp"`
}

package eventbus

import (
	"context"
	"encoding/json"

	"github.com/ThreeDotsLabs/watermill"
	"github.com/ThreeDotsLabs/watermill/message"

	"github.com/procwise/procwise/pkg/events"
)

// AnalyticsSink publishes flat analytics records on their own topic. The
// aggregation pipeline consuming the topic is outside this codebase.
type AnalyticsSink struct {
	publisher message.Publisher
}

func NewAnalyticsSink(publisher message.Publisher) *AnalyticsSink {
	return &AnalyticsSink{publisher: publisher}
}

func (s *AnalyticsSink) Track(_ context.Context, event events.AnalyticsEvent) error {
	if event.ID == "" {
		event.ID = watermill.NewULID()
	}

	payload, err := json.Marshal(event)
	if err != nil {
		return err
	}

	msg := message.NewMessage("msg-"+watermill.NewULID(), payload)
	msg.Metadata.Set(events.EventMetadataKey, event.WorkflowID)

	return s.publisher.Publish(events.AnalyticsTopic, msg)
}

// WebhookDispatcher publishes webhook envelopes for the delivery workers to
// fan out over HTTP.
type WebhookDispatcher struct {
	publisher message.Publisher
}

func NewWebhookDispatcher(publisher message.Publisher) *WebhookDispatcher {
	return &WebhookDispatcher{publisher: publisher}
}

func (d *WebhookDispatcher) Dispatch(_ context.Context, envelope events.WebhookEnvelope) error {
	if envelope.ID == "" {
		envelope.ID = watermill.NewULID()
	}

	payload, err := json.Marshal(envelope)
	if err != nil {
		return err
	}

	msg := message.NewMessage("msg-"+watermill.NewULID(), payload)
	msg.Metadata.Set(events.EventMetadataKey, envelope.WorkflowID)

	return d.publisher.Publish(events.WebhookTopic, msg)
}

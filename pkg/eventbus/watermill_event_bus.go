package eventbus

import (
	"context"
	"encoding/json"

	"github.com/ThreeDotsLabs/watermill"
	"github.com/ThreeDotsLabs/watermill/message"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/procwise/procwise/pkg/events"
	"github.com/procwise/procwise/pkg/otelhelper"
)

// WatermillEventBus bridges the engine's typed events onto any watermill
// publisher/subscriber pair (kafka in production, gochannel in tests).
type WatermillEventBus struct {
	topic         string
	publisher     message.Publisher
	subscriber    message.Subscriber
	subscriptions map[events.EventType]EventHandler
	tracer        trace.Tracer
}

func NewWatermillEventBus(pub message.Publisher, sub message.Subscriber) *WatermillEventBus {
	return NewWatermillEventBusForTopic(events.Topic, pub, sub)
}

func NewWatermillEventBusForTopic(topic string, pub message.Publisher, sub message.Subscriber) *WatermillEventBus {
	return &WatermillEventBus{
		topic:         topic,
		publisher:     pub,
		subscriber:    sub,
		subscriptions: make(map[events.EventType]EventHandler),
		tracer:        otel.Tracer("procwise.eventbus"),
	}
}

// MessagePublisher exposes the underlying watermill publisher so the
// analytics and webhook sinks can share the connection.
func (eb *WatermillEventBus) MessagePublisher() message.Publisher {
	return eb.publisher
}

func (eb *WatermillEventBus) GenerateID() string {
	return watermill.NewULID()
}

func (eb *WatermillEventBus) Publish(ctx context.Context, key string, event Event) error {
	_, span := eb.tracer.Start(ctx, "eventbus.publish", trace.WithAttributes(
		attribute.String(otelhelper.EventTypeKey, string(event.GetType())),
	))
	defer span.End()

	payload, err := json.Marshal(event)
	if err != nil {
		otelhelper.SetError(span, err)

		return err
	}

	msg := message.NewMessage("msg-"+eb.GenerateID(), payload)
	msg.Metadata.Set(events.EventMetadataKey, key)
	msg.Metadata.Set(events.EventTypeMetadataKey, string(event.GetType()))

	if err := eb.publisher.Publish(eb.topic, msg); err != nil {
		otelhelper.SetError(span, err, attribute.String(otelhelper.EventIDKey, msg.UUID))

		return err
	}

	return nil
}

func (eb *WatermillEventBus) Handle(eventType events.EventType, handler EventHandler) {
	eb.subscriptions[eventType] = handler
}

func (eb *WatermillEventBus) Subscribe(ctx context.Context) error {
	messages, err := eb.subscriber.Subscribe(ctx, eb.topic)
	if err != nil {
		return err
	}

	go func() {
		for msg := range messages {
			eventType := events.EventType(msg.Metadata.Get(events.EventTypeMetadataKey))

			handler, exists := eb.subscriptions[eventType]
			if !exists {
				msg.Ack()

				continue
			}

			event := newEventPayload(eventType)
			if event == nil {
				msg.Nack()

				continue
			}

			if err := json.Unmarshal(msg.Payload, event); err != nil {
				msg.Nack()

				continue
			}

			if err := handler(ctx, event); err != nil {
				msg.Nack()

				continue
			}

			msg.Ack()
		}
	}()

	return nil
}

func (eb *WatermillEventBus) Close() error {
	if err := eb.publisher.Close(); err != nil {
		return err
	}

	return eb.subscriber.Close()
}

// newEventPayload maps an event type header back to its payload struct for
// decoding on the consumer side.
func newEventPayload(eventType events.EventType) any {
	switch eventType {
	case events.WorkflowStartedEvent:
		return &events.WorkflowStarted{}
	case events.WorkflowCompletedEvent:
		return &events.WorkflowCompleted{}
	case events.WorkflowTerminatedEvent:
		return &events.WorkflowTerminated{}
	case events.WorkflowDelayedEvent:
		return &events.WorkflowDelayed{}
	case events.WorkflowResumedEvent:
		return &events.WorkflowResumed{}
	case events.WorkflowReturnedEvent:
		return &events.WorkflowReturned{}
	case events.WorkflowVersionUpdatedEvent:
		return &events.WorkflowVersionUpdated{}
	case events.TaskStartedEvent:
		return &events.TaskStarted{}
	case events.TaskCompletedEvent:
		return &events.TaskCompleted{}
	case events.TaskSkippedEvent:
		return &events.TaskSkipped{}
	case events.TaskReturnedEvent:
		return &events.TaskReturned{}
	case events.PerformerAddedEvent:
		return &events.PerformerAdded{}
	case events.PerformerRemovedEvent:
		return &events.PerformerRemoved{}
	case events.PerformerCompletedEvent:
		return &events.PerformerCompleted{}
	case events.DelayStartedEvent:
		return &events.DelayStarted{}
	case events.DelayEndedEvent:
		return &events.DelayEnded{}
	default:
		return nil
	}
}

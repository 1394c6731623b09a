package cmd

import (
	"fmt"
	"log/slog"

	"github.com/ThreeDotsLabs/watermill"

	"github.com/procwise/procwise/pkg/eventbus"
	"github.com/procwise/procwise/pkg/eventbus/kafka"
)

// NewEventBus creates the event bus for the given provider. Kafka is the
// production transport; gochannel keeps everything in process for local runs.
func NewEventBus(provider string, logger *slog.Logger) *eventbus.WatermillEventBus {
	wmLogger := watermill.NewSlogLogger(logger)

	switch provider {
	case "kafka":
		pub, sub, err := kafka.CreateChannel(wmLogger, "procwise")
		if err != nil {
			panic(fmt.Errorf("failed to create Kafka pub/sub: %w", err))
		}

		return eventbus.NewWatermillEventBus(pub, sub)
	case "gochannel":
		return eventbus.NewGoChannelBus(wmLogger)
	default:
		panic("Unsupported event bus provider: " + provider)
	}
}

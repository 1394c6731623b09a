package main

import (
	"context"
	"os"

	cli "github.com/urfave/cli/v3"

	"github.com/procwise/procwise/pkg/cmd"
	"github.com/procwise/procwise/pkg/eventbus"
	"github.com/procwise/procwise/pkg/log"
	"github.com/procwise/procwise/pkg/otelhelper"
	"github.com/procwise/procwise/pkg/performers"
)

const defaultPort = 9091

func main() {
	command := &cli.Command{
		Name:                  "procwise-api",
		Usage:                 "Run and manage template-driven workflows",
		EnableShellCompletion: true,
		Flags: []cli.Flag{
			&cli.IntFlag{
				Name:    "port",
				Aliases: []string{"p"},
				Usage:   "Port to run the API server on",
				Value:   defaultPort,
				Sources: cli.EnvVars("PORT"),
			},
			&cli.StringFlag{
				Name:     "database-url",
				Usage:    "Database connection URL (sqlite://, mysql:// or memory://)",
				Required: true,
				Sources:  cli.EnvVars("DATABASE_URL"),
			},
			&cli.StringFlag{
				Name:    "event-bus",
				Usage:   "Event bus provider (kafka, gochannel)",
				Value:   "gochannel",
				Sources: cli.EnvVars("EVENT_BUS_TYPE"),
			},
			&cli.StringFlag{
				Name:    "redis-url",
				Usage:   "Redis URL for the guest access cache (empty disables it)",
				Sources: cli.EnvVars("REDIS_URL"),
			},
			&cli.BoolFlag{
				Name:    "tracing",
				Usage:   "Enable OTLP trace export",
				Sources: cli.EnvVars("TRACING_ENABLED"),
			},
			&cli.StringFlag{
				Name:    "log-level",
				Usage:   "Log level (debug, info, warn, error)",
				Value:   "info",
				Sources: cli.EnvVars("LOG_LEVEL"),
			},
		},
		Action: func(ctx context.Context, command *cli.Command) error {
			log.Setup(command.String("log-level"))

			logger := log.WithModule("api")
			logger.InfoContext(ctx, "Initializing Procwise API")

			if command.Bool("tracing") {
				if _, err := otelhelper.NewTracer(ctx, "procwise-api"); err != nil {
					return err
				}
			}

			persistence := cmd.NewPersistence(ctx, logger, command.String("database-url"))

			defer func() {
				if err := persistence.Close(ctx); err != nil {
					logger.ErrorContext(ctx, "Failed to close persistence", "error", err)
				}
			}()

			eventBus := cmd.NewEventBus(command.String("event-bus"), logger)

			defer func() {
				if err := eventBus.Close(); err != nil {
					logger.ErrorContext(ctx, "Failed to close event bus", "error", err)
				}
			}()

			if err := eventbus.AttachAuditLog(ctx, eventBus, log.WithModule("events")); err != nil {
				return err
			}

			guestCache := cmd.NewGuestCache(command.String("redis-url"), logger)
			defer guestCache.Close()

			api := NewAPI(
				logger,
				persistence,
				eventBus,
				guestCache,
				performers.NewMemoryDirectory(),
			)

			if err := api.Start(command.Int("port")); err != nil {
				logger.ErrorContext(ctx, "Failed to start API server", "error", err)
			}

			return nil
		},
	}

	if err := command.Run(context.Background(), os.Args); err != nil {
		panic(err)
	}
}

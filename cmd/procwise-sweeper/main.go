// Package main provides the delay sweep daemon: it resumes delayed workflows
// whose delay ran out, on a cron schedule.
package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	cli "github.com/urfave/cli/v3"

	"github.com/procwise/procwise/pkg/cmd"
	"github.com/procwise/procwise/pkg/eventbus"
	"github.com/procwise/procwise/pkg/log"
	"github.com/procwise/procwise/pkg/otelhelper"
	"github.com/procwise/procwise/pkg/sweeper"
	"github.com/procwise/procwise/pkg/workflow"
)

func main() {
	command := &cli.Command{
		Name:                  "procwise-sweeper",
		Usage:                 "Resume delayed workflows whose delay has expired",
		EnableShellCompletion: true,
		Flags: []cli.Flag{
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
				Name:    "sweep-schedule",
				Usage:   "Cron expression for the sweep",
				Value:   sweeper.DefaultSchedule,
				Sources: cli.EnvVars("SWEEP_SCHEDULE"),
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

			logger := log.WithModule("sweeper")
			logger.InfoContext(ctx, "Initializing Procwise sweeper")

			if command.Bool("tracing") {
				if _, err := otelhelper.NewTracer(ctx, "procwise-sweeper"); err != nil {
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

			executor := workflow.NewExecutor(workflow.Dependencies{
				Persistence: persistence,
				Publisher:   eventBus,
				Analytics:   eventbus.NewAnalyticsSink(eventBus.MessagePublisher()),
				Webhooks:    eventbus.NewWebhookDispatcher(eventBus.MessagePublisher()),
				Logger:      logger,
			})

			s, err := sweeper.NewSweeper(executor, command.String("sweep-schedule"), logger)
			if err != nil {
				return err
			}

			ctx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
			defer stop()

			if err := s.Start(ctx); err != nil {
				return err
			}

			<-ctx.Done()
			s.Stop()

			return nil
		},
	}

	if err := command.Run(context.Background(), os.Args); err != nil {
		panic(err)
	}
}

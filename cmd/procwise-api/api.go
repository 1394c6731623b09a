// Package main provides the Procwise API server implementation.
package main

import (
	"log/slog"
	"strconv"

	"github.com/gofiber/fiber/v3"
	"github.com/gofiber/fiber/v3/middleware/cors"
	"github.com/gofiber/fiber/v3/middleware/healthcheck"
	"github.com/gofiber/fiber/v3/middleware/logger"

	"github.com/procwise/procwise/pkg/eventbus"
	"github.com/procwise/procwise/pkg/guestcache"
	"github.com/procwise/procwise/pkg/performers"
	"github.com/procwise/procwise/pkg/persistence"
	"github.com/procwise/procwise/pkg/services"
	"github.com/procwise/procwise/pkg/validation"
	"github.com/procwise/procwise/pkg/web"
	"github.com/procwise/procwise/pkg/workflow"
)

type API struct {
	logger      *slog.Logger
	persistence persistence.Persistence
	eventBus    *eventbus.WatermillEventBus
	guestCache  guestcache.Cache
	directory   performers.Directory
}

func NewAPI(
	logger *slog.Logger,
	persistence persistence.Persistence,
	eventBus *eventbus.WatermillEventBus,
	guestCache guestcache.Cache,
	directory performers.Directory,
) *API {
	return &API{
		logger:      logger,
		persistence: persistence,
		eventBus:    eventBus,
		guestCache:  guestCache,
		directory:   directory,
	}
}

func (a *API) App() (*fiber.App, error) {
	snapshotChecker, err := validation.NewValidator()
	if err != nil {
		return nil, err
	}

	executor := workflow.NewExecutor(workflow.Dependencies{
		Persistence: a.persistence,
		Publisher:   a.eventBus,
		Analytics:   eventbus.NewAnalyticsSink(a.eventBus.MessagePublisher()),
		Webhooks:    eventbus.NewWebhookDispatcher(a.eventBus.MessagePublisher()),
		GuestCache:  a.guestCache,
		Directory:   a.directory,
		Logger:      a.logger,
	})

	templates := services.NewTemplateService(a.persistence, snapshotChecker, nil, a.logger)
	workflows := services.NewWorkflowService(a.persistence, executor, a.eventBus, nil, a.logger)
	versions := services.NewVersionService(a.persistence, executor, a.eventBus, nil, a.logger)

	handlers := web.NewAPIHandlers(templates, workflows, versions, executor, a.persistence, snapshotChecker)

	app := fiber.New()
	app.Use(cors.New())
	app.Use(logger.New(logger.Config{
		DisableColors: true,
	}))

	app.Get(healthcheck.DefaultLivenessEndpoint, healthcheck.NewHealthChecker())
	app.Get(healthcheck.DefaultReadinessEndpoint, healthcheck.NewHealthChecker())

	app.Get("/", func(c fiber.Ctx) error {
		return c.SendString("Procwise API")
	})

	handlers.Register(app)

	return app, nil
}

func (a *API) Start(port int) error {
	app, err := a.App()
	if err != nil {
		return err
	}

	return app.Listen(":" + strconv.Itoa(port))
}

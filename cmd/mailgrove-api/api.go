package main

import (
	"log/slog"
	"strconv"

	"github.com/go-playground/validator/v10"
	"github.com/gofiber/fiber/v3"
	"github.com/gofiber/fiber/v3/middleware/cors"
	"github.com/gofiber/fiber/v3/middleware/healthcheck"
	"github.com/gofiber/fiber/v3/middleware/logger"
	"github.com/mailgrove/mailgrove/pkg/cmd"
	"github.com/mailgrove/mailgrove/pkg/web"
)

type API struct {
	runtime  *cmd.Runtime
	logger   *slog.Logger
	validate *validator.Validate
}

func NewAPI(runtime *cmd.Runtime, logger *slog.Logger) *API {
	return &API{
		runtime:  runtime,
		logger:   logger,
		validate: validator.New(validator.WithRequiredStructEnabled()),
	}
}

func (a *API) App() *fiber.App {
	handlers := web.NewAPIHandlers(
		a.runtime.Executions,
		a.runtime.Campaigns,
		a.runtime.Analytics,
		a.runtime.Queues,
		a.validate,
	)

	app := fiber.New()
	app.Use(cors.New())
	app.Use(logger.New(logger.Config{
		DisableColors: true,
	}))

	app.Get(healthcheck.DefaultLivenessEndpoint, healthcheck.NewHealthChecker())
	app.Get(healthcheck.DefaultReadinessEndpoint, healthcheck.NewHealthChecker())

	app.Get("/", func(c fiber.Ctx) error {
		return c.SendString("Mailgrove API")
	})

	app.Get("/health", handlers.HealthCheck)

	v1 := app.Group("/v1")
	v1.Use(web.RateLimitMiddleware(a.runtime.Limiter, a.runtime.Persistence.Usage(), a.logger))

	e := v1.Group("/executions")
	e.Post("/", handlers.StartExecution)
	e.Get("/:id", handlers.GetExecution)
	e.Get("/:id/timeline", handlers.GetExecutionTimeline)
	e.Post("/:id/pause", handlers.PauseExecution)
	e.Post("/:id/resume", handlers.ResumeExecution)
	e.Post("/:id/cancel", handlers.CancelExecution)

	v1.Post("/campaigns/:id/send", handlers.SendCampaign)
	v1.Post("/events", handlers.TrackEvent)

	q := v1.Group("/queues")
	q.Get("/stats", handlers.GetQueueStats)
	q.Post("/:name/pause", handlers.PauseQueue)
	q.Post("/:name/resume", handlers.ResumeQueue)

	return app
}

func (a *API) Start(port int) error {
	app := a.App()

	return app.Listen(":" + strconv.Itoa(port))
}

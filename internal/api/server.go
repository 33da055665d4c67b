// Package api assembles the HTTP application: middleware, handlers and
// routes.
package api

import (
	"context"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/cors"
	fiberlogger "github.com/gofiber/fiber/v2/middleware/logger"
	"github.com/gofiber/fiber/v2/middleware/recover"
	"github.com/gofiber/websocket/v2"
	"go.uber.org/zap"

	"github.com/termsheet-validation/backend/internal/api/handlers"
	"github.com/termsheet-validation/backend/internal/classification"
	"github.com/termsheet-validation/backend/internal/ingestion"
	"github.com/termsheet-validation/backend/internal/metrics"
	"github.com/termsheet-validation/backend/internal/middleware/ratelimit"
	"github.com/termsheet-validation/backend/internal/middleware/security"
	"github.com/termsheet-validation/backend/internal/middleware/validation"
	validator "github.com/termsheet-validation/backend/internal/validation"
	"github.com/termsheet-validation/backend/internal/versioning"
	"github.com/termsheet-validation/backend/pkg/logger"
)

type Config struct {
	ReadTimeout       time.Duration
	WriteTimeout      time.Duration
	BodyLimit         int
	RequestsPerMinute int
	AllowedOrigins    []string
	Development       bool
	// AccessLog enables the per-request log line.
	AccessLog bool
}

type Deps struct {
	Processor  *ingestion.Processor
	Store      versioning.Store
	Classifier *classification.Classifier
	Validator  *validator.Validator
	Runs       validator.RunRecorder
	// Ready reports whether storage (and the cache, when enabled) answer.
	Ready func(ctx context.Context) error
}

// New builds the application. The returned function releases background
// resources and must be called after shutdown.
func New(cfg Config, deps Deps) (*fiber.App, func()) {
	app := fiber.New(fiber.Config{
		ReadTimeout:           cfg.ReadTimeout,
		WriteTimeout:          cfg.WriteTimeout,
		BodyLimit:             cfg.BodyLimit,
		DisableStartupMessage: true,
	})

	limiter := ratelimit.New(ratelimit.Config{
		RequestsPerMinute: cfg.RequestsPerMinute,
		Logger:            logger.GetLogger(),
	})

	app.Use(recover.New())
	if cfg.AccessLog {
		app.Use(fiberlogger.New())
	}
	app.Use(cors.New(cors.Config{
		AllowOrigins: "*",
		AllowHeaders: "Origin, Content-Type, Accept, Authorization, X-Client-ID",
		AllowMethods: "GET, POST, OPTIONS",
	}))
	app.Use(security.HeadersMiddleware(security.HeadersConfig{
		AllowedOrigins: cfg.AllowedOrigins,
		IsDevelopment:  cfg.Development,
	}))

	app.Get("/metrics", metrics.MetricsHandler())

	wsHandler := handlers.NewWebSocketHandler(deps.Processor.Hub())
	app.Use("/ws", wsHandler.Upgrade)
	app.Get("/ws/ingestion", websocket.New(wsHandler.HandleConnection))

	ingestionHandler := handlers.NewIngestionHandler(deps.Processor)
	classificationHandler := handlers.NewClassificationHandler(deps.Classifier)
	validationHandler := handlers.NewValidationHandler(deps.Validator, deps.Runs)
	tradeHandler := handlers.NewTradeHandler(deps.Store, deps.Processor)

	api := app.Group("/api/v1")
	api.Use(limiter.Middleware())
	api.Use(validation.Middleware(validation.Config{
		JSONObjectPaths: []string{"/api/v1/classify", "/api/v1/validate"},
		Logger:          logger.GetLogger(),
	}))

	api.Post("/documents", ingestionHandler.UploadDocument)
	api.Post("/emails", ingestionHandler.UploadEmail)
	api.Post("/classify", classificationHandler.Classify)
	api.Post("/validate/:type", validationHandler.Validate)

	api.Get("/trades", tradeHandler.ListTrades)
	api.Get("/trades/:tradeId", tradeHandler.GetTrade)
	api.Get("/trades/:tradeId/versions", tradeHandler.ListVersions)
	api.Get("/trades/:tradeId/versions/:version", tradeHandler.GetVersion)
	api.Get("/trades/:tradeId/diff", tradeHandler.GetDiff)
	api.Get("/trades/:tradeId/classification", tradeHandler.GetClassification)

	api.Get("/validations/stats", validationHandler.Stats)

	api.Get("/health", func(c *fiber.Ctx) error {
		return c.JSON(fiber.Map{
			"status": "healthy",
			"time":   time.Now().Unix(),
		})
	})

	api.Get("/ready", func(c *fiber.Ctx) error {
		if deps.Ready != nil {
			if err := deps.Ready(c.UserContext()); err != nil {
				logger.Warn("Readiness check failed", zap.Error(err))
				return c.Status(fiber.StatusServiceUnavailable).JSON(fiber.Map{
					"status": "unavailable",
					"error":  err.Error(),
				})
			}
		}
		return c.JSON(fiber.Map{
			"status": "ready",
		})
	})

	return app, limiter.Stop
}

package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/ansrivas/fiberprometheus/v2"
	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/compress"
	"github.com/gofiber/fiber/v2/middleware/logger"
	"github.com/gofiber/fiber/v2/middleware/recover"
	swagger "github.com/gofiber/swagger"
	"github.com/localnerve/formentries/internal/app"
	"github.com/localnerve/formentries/internal/config"
	"github.com/localnerve/formentries/internal/database"
	"github.com/localnerve/formentries/internal/handlers"
	"github.com/localnerve/formentries/internal/logging"
	"github.com/localnerve/formentries/internal/metrics"
	"github.com/localnerve/formentries/internal/middleware"
	"github.com/localnerve/formentries/internal/services"
	"github.com/localnerve/formentries/internal/types"
	"github.com/localnerve/formentries/internal/utils"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/rs/zerolog/log"

	_ "github.com/localnerve/formentries/docs/api" // Swagger docs
)

// @title FormEntries API
// @version 1.0.0
// @description Entry lifecycle and bulk deletion service for hierarchical form projects
// @termsOfService http://swagger.io/terms/

// @contact.name API Support
// @contact.url https://github.com/localnerve/formentries
// @contact.email info@localnerve.com

// @license.name AGPL-3.0
// @license.url https://www.gnu.org/licenses/agpl-3.0.html

// @host localhost:3000
// @BasePath /api
// @schemes http https

// @securityDefinitions.apikey CookieAuth
// @in cookie
// @name cookie_session

func main() {
	// Load configuration
	cfg, err := config.Load()
	if err != nil {
		log.Fatal().Err(err).Msg("failed to load configuration")
	}
	if err := cfg.ValidateAuth(); err != nil {
		log.Fatal().Err(err).Msg("invalid authorizer configuration")
	}
	logging.Setup(cfg.LogLevel, cfg.LogFormat)

	db, err := database.Connect(cfg)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to connect to database")
	}
	defer database.Close(db)

	if err := database.AutoMigrate(db); err != nil {
		log.Fatal().Err(err).Msg("failed to run migrations")
	}

	ctx := context.Background()
	svc, err := app.New(ctx, cfg, db, metrics.Init(prometheus.DefaultRegisterer))
	if err != nil {
		log.Fatal().Err(err).Msg("failed to initialize services")
	}

	if err := services.InitAuthorizer(cfg, "http://localhost:"+cfg.Port); err != nil {
		// sessions are validated once the service comes up
		log.Warn().Err(err).Msg("authorizer not ready")
	}

	fiberApp := fiber.New(fiber.Config{
		ErrorHandler: customErrorHandler,
	})

	// Global middleware
	fiberApp.Use(recover.New())
	fiberApp.Use(logger.New())
	fiberApp.Use(compress.New())

	// Prometheus metrics
	prom := fiberprometheus.New("formentries")
	prom.RegisterAt(fiberApp, "/metrics")
	fiberApp.Use(prom.Middleware)

	// Swagger documentation
	fiberApp.Get("/swagger/*", swagger.HandlerDefault)

	fiberApp.Get("/health", func(c *fiber.Ctx) error {
		result := services.HealthCheck(c.UserContext(), cfg, db)
		status := fiber.StatusOK
		if result.Status != "healthy" {
			status = fiber.StatusServiceUnavailable
		}
		return c.Status(status).JSON(result)
	})

	// API routes under /api
	api := fiberApp.Group("/api")
	api.Use(middleware.VersionMiddleware())

	projects := api.Group("/projects", middleware.AuthUser())
	entries := &handlers.EntriesHandler{Repo: svc.Repo, Engine: svc.Engine, Purge: svc.Purge}
	entries.Register(projects)

	// 404 handler
	fiberApp.Use(func(c *fiber.Ctx) error {
		return c.Status(fiber.StatusNotFound).JSON(fiber.Map{
			"status":    fiber.StatusNotFound,
			"message":   "[404] Resource Not Found",
			"ok":        false,
			"timestamp": time.Now().UTC().Format(time.RFC3339),
			"url":       c.OriginalURL(),
		})
	})

	// Graceful shutdown
	sig := make(chan os.Signal, 1)
	signal.Notify(sig, os.Interrupt, syscall.SIGTERM)

	go func() {
		<-sig
		log.Info().Msg("gracefully shutting down")
		_ = fiberApp.ShutdownWithTimeout(30 * time.Second)
	}()

	log.Info().Str("port", cfg.Port).Msg("starting server")
	if err := fiberApp.Listen(":" + cfg.Port); err != nil {
		log.Fatal().Err(err).Msg("failed to start server")
	}

	log.Info().Msg("server stopped")
}

// customErrorHandler renders errors that escape the handlers as ec5 payloads
func customErrorHandler(c *fiber.Ctx, err error) error {
	if e, ok := err.(*fiber.Error); ok {
		apiErr := &types.APIError{Status: e.Code, Code: types.APIBadRequest.Code, Title: e.Message}
		if e.Code >= fiber.StatusInternalServerError {
			apiErr = types.APIInternal
		}
		return utils.ErrorResponse(c, apiErr)
	}

	log.Error().Err(err).Str("url", c.OriginalURL()).Msg("unhandled error")
	return utils.ErrorResponse(c, types.FromError(err))
}

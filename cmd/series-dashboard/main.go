package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/compress"
	"github.com/gofiber/fiber/v2/middleware/logger"
	"github.com/gofiber/fiber/v2/middleware/recover"
	"github.com/rs/zerolog"

	httpapi "github.com/i474232898/series-dashboard/internal/api/http"
	"github.com/i474232898/series-dashboard/internal/config"
	"github.com/i474232898/series-dashboard/internal/scheduler"
	"github.com/i474232898/series-dashboard/internal/series"
	"github.com/i474232898/series-dashboard/internal/series/remote"
	"github.com/i474232898/series-dashboard/internal/session"
	"github.com/i474232898/series-dashboard/internal/store"
)

func main() {
	log := zerolog.New(os.Stdout).With().Timestamp().Str("service", "series-dashboard").Logger()

	// Load configuration.
	cfg, err := config.Load()
	if err != nil {
		log.Fatal().Err(err).Msg("failed to load config")
	}
	log = log.Level(cfg.LogLevel)

	// Shared HTTP client for the remote snapshots.
	httpClient := &http.Client{
		Timeout: cfg.HTTPTimeout,
	}
	client := remote.NewClient(httpClient, remote.DefaultBackoff, &log)

	sources := []series.Source{
		remote.NewParquetSource(client, series.IdentityReadings, cfg.DataURL, false),
		remote.NewParquetSource(client, series.IdentityBatches, cfg.BatchDataURL, true),
	}

	// Process-wide dataset cache; fetches are bounded by the HTTP timeout.
	cache := store.NewMemoryCache(cfg.CacheTTL, cfg.HTTPTimeout)

	views := series.DefaultViews(cfg.LiquidSources, cfg.DefaultWindow, cfg.LookbackDays, cfg.BatchDateFloor)
	service := series.NewService(cache, remote.NewChecker(client), sources, views, series.NewSourceOrder(cfg.SourceOrder), &log)

	sessions := session.NewManager(cfg.SessionIdleTTL)

	// Background freshness check and idle session sweep.
	sched := scheduler.New(service, sessions, cfg.FreshnessInterval, cfg.HTTPTimeout, &log)
	if err := sched.Start(); err != nil {
		log.Fatal().Err(err).Msg("failed to start scheduler")
	}
	defer sched.Stop()

	// Basic app configuration
	app := fiber.New(fiber.Config{
		AppName:               "series-dashboard",
		DisableStartupMessage: true,
		ReadTimeout:           10 * time.Second,
		// A render may check a fingerprint and then download a snapshot,
		// each bounded by the HTTP timeout.
		WriteTimeout: 2*cfg.HTTPTimeout + 10*time.Second,
		ErrorHandler: func(c *fiber.Ctx, err error) error {
			// Centralized error response
			code := fiber.StatusInternalServerError
			if e, ok := err.(*fiber.Error); ok {
				code = e.Code
			}
			if code >= fiber.StatusInternalServerError {
				log.Error().Err(err).Str("path", c.Path()).Msg("request failed")
			}
			return c.Status(code).JSON(fiber.Map{
				"error":   true,
				"message": err.Error(),
			})
		},
	})

	// Global middleware
	app.Use(logger.New())
	app.Use(recover.New())
	app.Use(compress.New())

	// Basic health endpoint
	app.Get("/health", func(c *fiber.Ctx) error {
		return c.JSON(fiber.Map{
			"status":   "ok",
			"service":  "series-dashboard",
			"sessions": sessions.Count(),
		})
	})

	// API routes.
	httpapi.RegisterRoutes(app, service, sessions)

	go func() {
		log.Info().Str("port", cfg.Port).Msg("listening")
		if err := app.Listen(":" + cfg.Port); err != nil {
			log.Error().Err(err).Msg("fiber server stopped")
		}
	}()

	// Wait for termination signal
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	<-ctx.Done()

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := app.ShutdownWithContext(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("error during shutdown")
	}
}

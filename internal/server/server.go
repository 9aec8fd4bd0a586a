package server

import (
	"context"
	"fmt"
	"log"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/cors"
	"github.com/gofiber/fiber/v2/middleware/logger"
	"github.com/gofiber/fiber/v2/middleware/recover"
	"github.com/ordalo/filepress/internal/config"
	"github.com/ordalo/filepress/internal/domain"
	"github.com/ordalo/filepress/internal/handler"
	"github.com/ordalo/filepress/internal/middleware"
	"github.com/ordalo/filepress/internal/repository"
	"github.com/ordalo/filepress/internal/service"
	"github.com/ordalo/filepress/internal/telemetry"
	"github.com/redis/go-redis/v9"
)

// AppDependencies holds the dependencies required to start the application
type AppDependencies struct {
	Config      *config.Config
	RedisClient *redis.Client         // nil disables idempotency replay
	Runner      domain.ToolRunner     // the external PDF tool; faked in tests
	Mirror      domain.FileRepository // nil disables replication
}

// NewApp creates and configures the Fiber application with the given dependencies
func NewApp(deps AppDependencies) (*fiber.App, error) {
	cfg := deps.Config

	// Initialize storage
	store, err := repository.NewLocalStore(cfg.Storage.DataDir, cfg.Storage.Folders)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize file store: %w", err)
	}
	if removed, err := store.Sweep(); err != nil {
		log.Printf("Warning: temp sweep failed: %v", err)
	} else if removed > 0 {
		log.Printf("✓ Removed %d stale temp files", removed)
	}

	// Initialize compressors and pipeline
	imageCompressor := service.NewImageCompressor(store, cfg.Compression.Ladder, cfg.Compression.ImagePolicy)
	pdfCompressor := service.NewPDFCompressor(
		deps.Runner,
		store,
		cfg.Ghostscript.Binary,
		cfg.Ghostscript.Timeout,
		cfg.Ghostscript.TargetDPI,
	)
	pipeline := service.NewPipeline(imageCompressor, pdfCompressor, store, cfg.Compression.Budgets)

	// Rebuild the mirror from the local store if configured, e.g. after
	// the replica was down or freshly provisioned
	if deps.Mirror != nil && cfg.Mirror.ResyncOnStart {
		if n, err := repository.Resync(context.Background(), store, deps.Mirror); err != nil {
			log.Printf("Warning: mirror resync failed: %v", err)
		} else {
			log.Printf("✓ Mirror resync complete (%d files)", n)
		}
	}

	// Initialize handlers
	fileHandler := handler.NewFileHandler(pipeline, store, deps.Mirror, cfg)

	// Create Fiber app
	app := fiber.New(fiber.Config{
		AppName:      "Filepress API",
		BodyLimit:    int(cfg.Server.MaxUploadSizeMB * 1024 * 1024),
		ErrorHandler: customErrorHandler,
	})

	// Global middleware
	app.Use(recover.New())
	app.Use(logger.New())
	app.Use(cors.New(cors.Config{
		AllowOrigins: "*",
		AllowHeaders: "Origin, Content-Type, Accept, X-API-Key, X-Correlation-ID",
		AllowMethods: "GET, POST, OPTIONS",
	}))
	app.Use(telemetry.FiberMiddleware())

	// Health check endpoint
	app.Get("/health", func(c *fiber.Ctx) error {
		return c.JSON(fiber.Map{
			"status":  "healthy",
			"service": "filepress",
		})
	})

	// Public downloads straight off the store
	app.Static("/files", store.Root())

	// API v1 routes
	v1 := app.Group("/v1")
	files := v1.Group("/files", middleware.APIKeyAuth(cfg.Server.APIKeys))
	if deps.RedisClient != nil {
		files.Use(middleware.IdempotencyMiddleware(deps.RedisClient, cfg.Server.IdempotencyTTL))
	}

	files.Post("/:folder", fileHandler.Upload)
	files.Post("/:folder/:subfolder", fileHandler.Upload)
	files.Get("/:folder", fileHandler.List)
	files.Get("/:folder/:subfolder", fileHandler.List)

	return app, nil
}

func customErrorHandler(c *fiber.Ctx, err error) error {
	code := fiber.StatusInternalServerError
	if e, ok := err.(*fiber.Error); ok {
		code = e.Code
	}
	log.Printf("Error: %v", err)
	return c.Status(code).JSON(fiber.Map{
		"error": err.Error(),
	})
}

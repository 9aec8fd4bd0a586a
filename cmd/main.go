package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/ordalo/filepress/internal/config"
	"github.com/ordalo/filepress/internal/infrastructure/ghostscript"
	"github.com/ordalo/filepress/internal/repository"
	"github.com/ordalo/filepress/internal/server"
	"github.com/ordalo/filepress/internal/telemetry"
	"github.com/redis/go-redis/v9"
)

func main() {
	// Load configuration
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}

	log.Println("Starting Filepress...")

	ctx := context.Background()

	// Initialize OpenTelemetry
	otelProvider, err := telemetry.Initialize(ctx, telemetry.Config{
		ServiceName:    cfg.OTEL.ServiceName,
		ServiceVersion: cfg.OTEL.ServiceVersion,
		Environment:    cfg.OTEL.Environment,
		OTLPEndpoint:   cfg.OTEL.Endpoint,
		Enabled:        cfg.OTEL.Enabled,
	})
	if err != nil {
		log.Printf("Warning: Failed to initialize OpenTelemetry: %v", err)
	}
	if otelProvider != nil {
		defer func() {
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			otelProvider.Shutdown(shutdownCtx)
		}()
	}

	// Connect to Redis (idempotency replay); the service runs without it
	var redisClient *redis.Client
	if cfg.Redis.Addr != "" {
		redisClient = redis.NewClient(&redis.Options{
			Addr:     cfg.Redis.Addr,
			Password: cfg.Redis.Password,
			DB:       0,
		})
		if err := redisClient.Ping(ctx).Err(); err != nil {
			log.Printf("Warning: Redis unavailable, idempotency replay disabled: %v", err)
			redisClient = nil
		} else {
			defer redisClient.Close()
			log.Println("✓ Redis connected")
		}
	}

	// Initialize the optional S3-compatible mirror
	var mirror *repository.MirrorS3Repository
	if cfg.Mirror.Enabled {
		mirror, err = repository.NewMirrorS3Repository(ctx, repository.MirrorConfig{
			Endpoint: cfg.Mirror.Endpoint,
			Region:   cfg.Mirror.Region,
			Bucket:   cfg.Mirror.Bucket,
		})
		if err != nil {
			log.Fatalf("Failed to initialize mirror: %v", err)
		}
		log.Println("✓ Mirror connected")
	}

	// Initialize App using Server package
	deps := server.AppDependencies{
		Config:      cfg,
		RedisClient: redisClient,
		Runner:      ghostscript.NewRunner(),
	}
	if mirror != nil {
		deps.Mirror = mirror
	}
	app, err := server.NewApp(deps)
	if err != nil {
		log.Fatalf("Failed to initialize app: %v", err)
	}

	// Graceful shutdown on SIGINT/SIGTERM
	go func() {
		quit := make(chan os.Signal, 1)
		signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
		<-quit
		log.Println("Shutting down...")
		if err := app.ShutdownWithTimeout(10 * time.Second); err != nil {
			log.Printf("Error during shutdown: %v", err)
		}
	}()

	log.Printf("✓ Listening on :%s", cfg.Server.Port)
	if err := app.Listen(":" + cfg.Server.Port); err != nil {
		log.Fatalf("Server error: %v", err)
	}
}

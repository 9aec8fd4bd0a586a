package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/ordalo/filepress/internal/domain"
)

// Config holds all application configuration
type Config struct {
	Server      ServerConfig
	Storage     StorageConfig
	Compression CompressionConfig
	Ghostscript GhostscriptConfig
	Redis       RedisConfig
	Mirror      MirrorConfig
	OTEL        OTELConfig
}

// ServerConfig holds HTTP server configuration
type ServerConfig struct {
	Port            string
	MaxUploadSizeMB int64
	APIKeys         []string
	IdempotencyTTL  time.Duration
}

// StorageConfig holds the on-disk file store configuration
type StorageConfig struct {
	DataDir string
	// Folders is the allow-list of top-level upload folders
	Folders []string
}

// CompressionConfig holds budgets and the image ladder
type CompressionConfig struct {
	Budgets     domain.SizeBudgets
	Ladder      []domain.LadderRung
	ImagePolicy domain.ImagePolicy
}

// GhostscriptConfig holds the external PDF tool configuration
type GhostscriptConfig struct {
	Binary  string
	Timeout time.Duration
	// TargetDPI is the downsampling resolution applied to embedded raster images
	TargetDPI int
}

// RedisConfig holds Redis connection configuration
type RedisConfig struct {
	Addr     string
	Password string
}

// MirrorConfig holds the optional S3-compatible replica configuration
type MirrorConfig struct {
	Enabled  bool
	Endpoint string
	Region   string
	Bucket   string
	// ResyncOnStart re-uploads the whole store at boot, recovering the
	// mirror after downtime
	ResyncOnStart bool
}

// OTELConfig holds OpenTelemetry export configuration
type OTELConfig struct {
	Enabled        bool
	Endpoint       string
	ServiceName    string
	ServiceVersion string
	Environment    string
}

// Load reads configuration from environment variables.
// It attempts to load from .env file first, then falls back to system env vars.
func Load() (*Config, error) {
	// Try to load .env file (ignore error if not found)
	_ = godotenv.Load()

	ladder, err := parseLadder(getEnv("IMAGE_LADDER", "1920:80,1920:65,1920:50,1200:40,800:35"))
	if err != nil {
		return nil, fmt.Errorf("invalid IMAGE_LADDER: %w", err)
	}

	cfg := &Config{
		Server: ServerConfig{
			Port:            getEnv("PORT", "8080"),
			MaxUploadSizeMB: getEnvAsInt64("MAX_UPLOAD_SIZE_MB", 50),
			APIKeys:         splitList(getEnv("API_KEYS", "")),
			IdempotencyTTL:  time.Duration(getEnvAsInt64("IDEMPOTENCY_TTL_SECONDS", 600)) * time.Second,
		},
		Storage: StorageConfig{
			DataDir: getEnv("DATA_DIR", "./data"),
			Folders: splitList(getEnv("FOLDERS", "images,documents,misc")),
		},
		Compression: CompressionConfig{
			Budgets: domain.SizeBudgets{
				Image: getEnvAsInt64("IMAGE_BUDGET_MB", 5) * 1024 * 1024,
				PDF:   getEnvAsInt64("PDF_BUDGET_MB", 20) * 1024 * 1024,
				Other: getEnvAsInt64("OTHER_BUDGET_MB", 20) * 1024 * 1024,
			},
			Ladder:      ladder,
			ImagePolicy: domain.ImagePolicy(getEnv("IMAGE_POLICY", string(domain.ImagePolicyBestEffort))),
		},
		Ghostscript: GhostscriptConfig{
			Binary:    getEnv("GS_BIN", "gs"),
			Timeout:   time.Duration(getEnvAsInt64("GS_TIMEOUT_SECONDS", 120)) * time.Second,
			TargetDPI: int(getEnvAsInt64("GS_TARGET_DPI", 150)),
		},
		Redis: RedisConfig{
			Addr:     getEnv("REDIS_ADDR", "localhost:6379"),
			Password: getEnv("REDIS_PASSWORD", ""),
		},
		Mirror: MirrorConfig{
			Enabled:       getEnvAsBool("MIRROR_ENABLED", false),
			Endpoint:      getEnv("MIRROR_ENDPOINT", ""),
			Region:        getEnv("MIRROR_REGION", "us-east-1"),
			Bucket:        getEnv("MIRROR_BUCKET", "filepress"),
			ResyncOnStart: getEnvAsBool("MIRROR_RESYNC", false),
		},
		OTEL: OTELConfig{
			Enabled:        getEnvAsBool("OTEL_ENABLED", false),
			Endpoint:       getEnv("OTEL_ENDPOINT", ""),
			ServiceName:    getEnv("OTEL_SERVICE_NAME", "filepress"),
			ServiceVersion: getEnv("OTEL_SERVICE_VERSION", "dev"),
			Environment:    getEnv("OTEL_ENVIRONMENT", "development"),
		},
	}

	// Validate required fields
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("config validation failed: %w", err)
	}

	return cfg, nil
}

// Validate checks that the configuration is internally consistent
func (c *Config) Validate() error {
	if c.Storage.DataDir == "" {
		return fmt.Errorf("DATA_DIR is required")
	}
	if len(c.Storage.Folders) == 0 {
		return fmt.Errorf("FOLDERS must list at least one upload folder")
	}
	if len(c.Compression.Ladder) == 0 {
		return fmt.Errorf("IMAGE_LADDER must list at least one rung")
	}
	switch c.Compression.ImagePolicy {
	case domain.ImagePolicyBestEffort, domain.ImagePolicyStrict:
	default:
		return fmt.Errorf("IMAGE_POLICY must be %q or %q", domain.ImagePolicyBestEffort, domain.ImagePolicyStrict)
	}
	if c.Compression.Budgets.Image <= 0 || c.Compression.Budgets.PDF <= 0 || c.Compression.Budgets.Other <= 0 {
		return fmt.Errorf("size budgets must be positive")
	}
	if c.Mirror.Enabled && c.Mirror.Endpoint == "" {
		return fmt.Errorf("MIRROR_ENDPOINT is required when MIRROR_ENABLED is true")
	}
	return nil
}

// AllowedFolder reports whether name is on the upload folder allow-list
func (c *Config) AllowedFolder(name string) bool {
	for _, f := range c.Storage.Folders {
		if f == name {
			return true
		}
	}
	return false
}

// parseLadder parses "1920:80,1200:40" into ladder rungs, enforcing that both
// width and quality strictly decrease or stay level as the ladder progresses.
func parseLadder(s string) ([]domain.LadderRung, error) {
	var rungs []domain.LadderRung
	for _, part := range strings.Split(s, ",") {
		part = strings.TrimSpace(part)
		if part == "" {
			continue
		}
		fields := strings.SplitN(part, ":", 2)
		if len(fields) != 2 {
			return nil, fmt.Errorf("rung %q must be width:quality", part)
		}
		width, err := strconv.Atoi(fields[0])
		if err != nil || width <= 0 {
			return nil, fmt.Errorf("rung %q has invalid width", part)
		}
		quality, err := strconv.Atoi(fields[1])
		if err != nil || quality <= 0 || quality > 100 {
			return nil, fmt.Errorf("rung %q has invalid quality", part)
		}
		if n := len(rungs); n > 0 {
			prev := rungs[n-1]
			if width > prev.MaxWidth || quality > prev.Quality {
				return nil, fmt.Errorf("rung %q must not be less aggressive than the previous rung", part)
			}
		}
		rungs = append(rungs, domain.LadderRung{MaxWidth: width, Quality: quality})
	}
	return rungs, nil
}

// splitList splits a comma-separated env value, dropping empty entries
func splitList(s string) []string {
	var out []string
	for _, part := range strings.Split(s, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}

// getEnv retrieves an environment variable or returns a default value
func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

// getEnvAsInt64 retrieves an environment variable as int64 or returns a default value
func getEnvAsInt64(key string, defaultValue int64) int64 {
	valueStr := os.Getenv(key)
	if valueStr == "" {
		return defaultValue
	}
	value, err := strconv.ParseInt(valueStr, 10, 64)
	if err != nil {
		return defaultValue
	}
	return value
}

// getEnvAsBool retrieves an environment variable as bool or returns a default value
func getEnvAsBool(key string, defaultValue bool) bool {
	valueStr := os.Getenv(key)
	if valueStr == "" {
		return defaultValue
	}
	value, err := strconv.ParseBool(valueStr)
	if err != nil {
		return defaultValue
	}
	return value
}

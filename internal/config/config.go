package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

// Catalog backends.
const (
	BackendHTTP   = "http"
	BackendSQLite = "sqlite"
	BackendMemory = "memory"
)

type Config struct {
	Port string

	// Auth
	PlanmarkAPIKey string

	// Catalog
	CatalogBackend string
	CatalogURL     string
	CatalogAPIKey  string
	SQLitePath     string

	// Drawing
	PanThreshold float64
	MinZoom      float64
	MaxZoom      float64
	MinArea      float64
	HandleSize   float64

	// Error reporting
	RetryMaxAttempts int
	RetryBaseDelay   time.Duration
	RetryMaxDelay    time.Duration
	ErrorHistorySize int

	// Sessions
	SessionTTL time.Duration

	// Worker pool
	WorkerCount        int
	MaxQueueSize       int
	MaxConcurrentStore int

	// Upload limits
	MaxUploadBytes int64

	// Job state
	JobTTL time.Duration
}

func Load() Config {
	cfg := Config{
		Port: envOr("PORT", "8090"),

		PlanmarkAPIKey: os.Getenv("PLANMARK_API_KEY"),

		CatalogBackend: strings.ToLower(envOr("CATALOG_BACKEND", BackendHTTP)),
		CatalogURL:     envOr("CATALOG_URL", "http://localhost:8080"),
		CatalogAPIKey:  os.Getenv("CATALOG_API_KEY"),
		SQLitePath:     envOr("SQLITE_PATH", "planmark.db"),

		PanThreshold: envFloat("PAN_THRESHOLD", 1.2),
		MinZoom:      envFloat("MIN_ZOOM", 0.25),
		MaxZoom:      envFloat("MAX_ZOOM", 4.0),
		MinArea:      envFloat("MIN_AREA", 16),
		HandleSize:   envFloat("HANDLE_SIZE", 8),

		RetryMaxAttempts: envInt("RETRY_MAX_ATTEMPTS", 3),
		RetryBaseDelay:   envDuration("RETRY_BASE_DELAY", 250*time.Millisecond),
		RetryMaxDelay:    envDuration("RETRY_MAX_DELAY", 5*time.Second),
		ErrorHistorySize: envInt("ERROR_HISTORY_SIZE", 50),

		SessionTTL: envDuration("SESSION_TTL", 30*time.Minute),

		WorkerCount:        envInt("WORKER_COUNT", 2),
		MaxQueueSize:       envInt("MAX_QUEUE_SIZE", 100),
		MaxConcurrentStore: envInt("MAX_CONCURRENT_STORE", 4),

		MaxUploadBytes: envInt64("MAX_UPLOAD_BYTES", 104857600), // 100MB

		JobTTL: envDuration("JOB_TTL", 1*time.Hour),
	}

	if cfg.PanThreshold <= 0 {
		cfg.PanThreshold = 1.2
	}
	if cfg.MinZoom <= 0 || cfg.MaxZoom < cfg.MinZoom {
		cfg.MinZoom, cfg.MaxZoom = 0.25, 4.0
	}
	if cfg.MinArea < 0 {
		cfg.MinArea = 16
	}
	if cfg.HandleSize <= 0 {
		cfg.HandleSize = 8
	}
	if cfg.RetryMaxAttempts <= 0 {
		cfg.RetryMaxAttempts = 3
	}
	if cfg.RetryBaseDelay <= 0 {
		cfg.RetryBaseDelay = 250 * time.Millisecond
	}
	if cfg.RetryMaxDelay < cfg.RetryBaseDelay {
		cfg.RetryMaxDelay = cfg.RetryBaseDelay
	}
	if cfg.ErrorHistorySize <= 0 {
		cfg.ErrorHistorySize = 50
	}
	if cfg.SessionTTL <= 0 {
		cfg.SessionTTL = 30 * time.Minute
	}
	if cfg.WorkerCount <= 0 {
		cfg.WorkerCount = 2
	}
	if cfg.MaxQueueSize <= 0 {
		cfg.MaxQueueSize = 100
	}
	if cfg.MaxConcurrentStore <= 0 {
		cfg.MaxConcurrentStore = 4
	}
	if cfg.MaxUploadBytes <= 0 {
		cfg.MaxUploadBytes = 104857600
	}
	if cfg.JobTTL <= 0 {
		cfg.JobTTL = 1 * time.Hour
	}

	return cfg
}

func (c Config) Validate() error {
	if c.PlanmarkAPIKey == "" {
		return fmt.Errorf("PLANMARK_API_KEY is required")
	}
	switch c.CatalogBackend {
	case BackendHTTP:
		if c.CatalogURL == "" {
			return fmt.Errorf("CATALOG_URL is required for the http backend")
		}
		if c.CatalogAPIKey == "" {
			return fmt.Errorf("CATALOG_API_KEY is required for the http backend")
		}
	case BackendSQLite:
		if c.SQLitePath == "" {
			return fmt.Errorf("SQLITE_PATH is required for the sqlite backend")
		}
	case BackendMemory:
	default:
		return fmt.Errorf("CATALOG_BACKEND must be http, sqlite or memory, got %q", c.CatalogBackend)
	}
	return nil
}

func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func envInt(key string, fallback int) int {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			return n
		}
	}
	return fallback
}

func envInt64(key string, fallback int64) int64 {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.ParseInt(v, 10, 64); err == nil {
			return n
		}
	}
	return fallback
}

func envFloat(key string, fallback float64) float64 {
	if v := os.Getenv(key); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			return f
		}
	}
	return fallback
}

func envDuration(key string, fallback time.Duration) time.Duration {
	if v := os.Getenv(key); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			return d
		}
	}
	return fallback
}

// Package config handles application configuration from environment variables
package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// Config holds all application configuration
type Config struct {
	// Server settings
	Port      string
	Env       string // "development", "staging", "production"
	LogLevel  string
	LogFormat string // "text" or "json"

	// Storage
	DatabaseURL  string // PostgreSQL connection string (in-memory stores if empty)
	AutoMigrate  bool   // run goose migrations on startup
	RedisURL     string // blacklist cache (optional)
	BlacklistTTL time.Duration

	// Alert fan-out
	NATSURL          string // optional
	NATSAlertSubject string

	// Tracing
	OTLPEndpoint string

	// Gate policy
	MaxWarnings       int
	CommitMaxAttempts int
	CommitRetryDelay  time.Duration

	// Reconciliation
	ReconcileInterval time.Duration
	ReconcileWorkers  int

	// Security
	AdminSecret  string
	RateLimitRPM int
	CORSOrigins  []string // empty allows any origin without credentials
}

const (
	DefaultPort              = "8080"
	DefaultEnv               = "development"
	DefaultLogLevel          = "info"
	DefaultLogFormat         = "json"
	DefaultMaxWarnings       = 3
	DefaultCommitMaxAttempts = 5
	DefaultCommitRetryDelay  = 10 * time.Millisecond
	DefaultReconcileInterval = 5 * time.Minute
	DefaultReconcileWorkers  = 8
	DefaultBlacklistTTL      = time.Minute
	DefaultRateLimitRPM      = 120
	DefaultNATSAlertSubject  = "riskgate.alerts"
)

// Load reads configuration from the environment, loading .env first if present.
func Load() (*Config, error) {
	_ = godotenv.Load()

	cfg := &Config{
		Port:              getEnv("PORT", DefaultPort),
		Env:               getEnv("ENV", DefaultEnv),
		LogLevel:          getEnv("LOG_LEVEL", DefaultLogLevel),
		LogFormat:         getEnv("LOG_FORMAT", DefaultLogFormat),
		DatabaseURL:       os.Getenv("DATABASE_URL"),
		AutoMigrate:       getEnvBool("AUTO_MIGRATE", true),
		RedisURL:          os.Getenv("REDIS_URL"),
		BlacklistTTL:      getEnvDuration("BLACKLIST_CACHE_TTL", DefaultBlacklistTTL),
		NATSURL:           os.Getenv("NATS_URL"),
		NATSAlertSubject:  getEnv("NATS_ALERT_SUBJECT", DefaultNATSAlertSubject),
		OTLPEndpoint:      os.Getenv("OTEL_EXPORTER_OTLP_ENDPOINT"),
		MaxWarnings:       int(getEnvInt64("MAX_WARNINGS", DefaultMaxWarnings)),
		CommitMaxAttempts: int(getEnvInt64("COMMIT_MAX_ATTEMPTS", DefaultCommitMaxAttempts)),
		CommitRetryDelay:  getEnvDuration("COMMIT_RETRY_DELAY", DefaultCommitRetryDelay),
		ReconcileInterval: getEnvDuration("RECONCILE_INTERVAL", DefaultReconcileInterval),
		ReconcileWorkers:  int(getEnvInt64("RECONCILE_WORKERS", DefaultReconcileWorkers)),
		AdminSecret:       os.Getenv("ADMIN_SECRET"),
		RateLimitRPM:      int(getEnvInt64("RATE_LIMIT_RPM", DefaultRateLimitRPM)),
		CORSOrigins:       getEnvList("CORS_ALLOWED_ORIGINS"),
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

// Validate checks that the configuration is usable
func (c *Config) Validate() error {
	if c.Port == "" {
		return fmt.Errorf("PORT is required")
	}
	if c.MaxWarnings < 1 {
		return fmt.Errorf("MAX_WARNINGS must be at least 1")
	}
	if c.CommitMaxAttempts < 1 {
		return fmt.Errorf("COMMIT_MAX_ATTEMPTS must be at least 1")
	}
	if c.ReconcileWorkers < 1 {
		return fmt.Errorf("RECONCILE_WORKERS must be at least 1")
	}
	if c.IsProduction() && c.AdminSecret == "" {
		return fmt.Errorf("ADMIN_SECRET is required in production")
	}
	if c.IsProduction() && len(c.AdminSecret) < 16 {
		return fmt.Errorf("ADMIN_SECRET must be at least 16 characters in production")
	}
	return nil
}

// IsDevelopment returns true if running in development mode
func (c *Config) IsDevelopment() bool {
	return c.Env == "development"
}

// IsProduction returns true if running in production mode
func (c *Config) IsProduction() bool {
	return c.Env == "production"
}

// Helper functions

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvInt64(key string, defaultValue int64) int64 {
	if value := os.Getenv(key); value != "" {
		if i, err := strconv.ParseInt(value, 10, 64); err == nil {
			return i
		}
	}
	return defaultValue
}

func getEnvBool(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		if b, err := strconv.ParseBool(strings.TrimSpace(value)); err == nil {
			return b
		}
	}
	return defaultValue
}

func getEnvList(key string) []string {
	var out []string
	for _, part := range strings.Split(os.Getenv(key), ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}

func getEnvDuration(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if d, err := time.ParseDuration(value); err == nil {
			return d
		}
	}
	return defaultValue
}

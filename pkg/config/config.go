package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/WeblateOrg/weblate-go/pkg/observability"
)

// Config holds all application configuration
type Config struct {
	Server        ServerConfig
	Database      DatabaseConfig
	Auth          AuthConfig
	Observability ObservabilityConfig
}

// ServerConfig holds HTTP server configuration
type ServerConfig struct {
	Host            string
	Port            string
	ReadTimeout     time.Duration
	WriteTimeout    time.Duration
	IdleTimeout     time.Duration
	ShutdownTimeout time.Duration

	// Health/metrics server (separate port for k8s probes)
	HealthPort string
}

// DatabaseConfig holds database connection settings
type DatabaseConfig struct {
	// Driver is "postgres" or "sqlite3".
	Driver   string
	URL      string
	MaxConns int
	MinConns int
}

// AuthConfig holds access-control behavior settings
type AuthConfig struct {
	// UpdateBuiltins rewrites built-in role permission sets on startup
	// seeding instead of only creating missing rows.
	UpdateBuiltins bool

	// InvitationMaxAge is how long invitations stay valid.
	InvitationMaxAge time.Duration

	// SweepSchedule is the cron spec for the expired-block and stale-
	// invitation sweeper.
	SweepSchedule string

	// UserCacheSize bounds the in-memory cache of loaded users.
	UserCacheSize int
}

// ObservabilityConfig holds observability settings
type ObservabilityConfig struct {
	LogLevel       observability.LogLevel
	MetricsEnabled bool
}

// LoadConfig loads configuration from environment variables
func LoadConfig() (*Config, error) {
	cfg := &Config{
		Server: ServerConfig{
			Host:            getEnv("WEBLATE_HOST", "0.0.0.0"),
			Port:            getEnv("WEBLATE_PORT", "8080"),
			ReadTimeout:     getEnvDuration("WEBLATE_READ_TIMEOUT", 15*time.Second),
			WriteTimeout:    getEnvDuration("WEBLATE_WRITE_TIMEOUT", 15*time.Second),
			IdleTimeout:     getEnvDuration("WEBLATE_IDLE_TIMEOUT", 60*time.Second),
			ShutdownTimeout: getEnvDuration("WEBLATE_SHUTDOWN_TIMEOUT", 30*time.Second),
			HealthPort:      getEnv("WEBLATE_HEALTH_PORT", "9090"),
		},
		Database: DatabaseConfig{
			Driver:   getEnv("WEBLATE_DB_DRIVER", "postgres"),
			URL:      getEnv("WEBLATE_DB_URL", ""),
			MaxConns: getEnvInt("WEBLATE_DB_MAX_CONNS", 25),
			MinConns: getEnvInt("WEBLATE_DB_MIN_CONNS", 2),
		},
		Auth: AuthConfig{
			UpdateBuiltins:   getEnvBool("WEBLATE_UPDATE_BUILTINS", false),
			InvitationMaxAge: getEnvDuration("WEBLATE_INVITATION_MAX_AGE", 30*24*time.Hour),
			SweepSchedule:    getEnv("WEBLATE_SWEEP_SCHEDULE", "@hourly"),
			UserCacheSize:    getEnvInt("WEBLATE_USER_CACHE_SIZE", 1024),
		},
		Observability: ObservabilityConfig{
			LogLevel:       parseLogLevel(getEnv("WEBLATE_LOG_LEVEL", "info")),
			MetricsEnabled: getEnvBool("WEBLATE_METRICS_ENABLED", true),
		},
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("configuration validation failed: %w", err)
	}
	return cfg, nil
}

// Validate checks if the configuration is valid
func (c *Config) Validate() error {
	if c.Server.Port == "" {
		return fmt.Errorf("server port is required")
	}
	if c.Server.HealthPort == "" {
		return fmt.Errorf("health port is required")
	}
	if c.Server.Port == c.Server.HealthPort {
		return fmt.Errorf("server port and health port must be different")
	}

	switch c.Database.Driver {
	case "postgres", "sqlite3":
	default:
		return fmt.Errorf("invalid database driver: %s (must be postgres or sqlite3)", c.Database.Driver)
	}
	if c.Database.URL == "" {
		return fmt.Errorf("database URL is required")
	}

	if c.Auth.InvitationMaxAge <= 0 {
		return fmt.Errorf("invitation max age must be positive")
	}
	if c.Auth.UserCacheSize <= 0 {
		return fmt.Errorf("user cache size must be positive")
	}
	return nil
}

// parseLogLevel parses a log level string
func parseLogLevel(level string) observability.LogLevel {
	switch strings.ToLower(level) {
	case "debug":
		return observability.DebugLevel
	case "info":
		return observability.InfoLevel
	case "warn", "warning":
		return observability.WarnLevel
	case "error":
		return observability.ErrorLevel
	default:
		return observability.InfoLevel
	}
}

// getEnv returns an environment variable value or a default
func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

// getEnvBool returns a boolean environment variable or a default
func getEnvBool(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		return strings.ToLower(value) == "true" || value == "1"
	}
	return defaultValue
}

// getEnvInt returns an integer environment variable or a default
func getEnvInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if intVal, err := strconv.Atoi(value); err == nil {
			return intVal
		}
	}
	return defaultValue
}

// getEnvDuration returns a duration environment variable or a default
func getEnvDuration(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if duration, err := time.ParseDuration(value); err == nil {
			return duration
		}
	}
	return defaultValue
}

package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/platinummonkey/classhub/pkg/backup"
	"github.com/platinummonkey/classhub/pkg/notification"
	"github.com/platinummonkey/classhub/pkg/observability"
)

// Config holds all application configuration
type Config struct {
	// Ops server (health probes and metrics)
	Server ServerConfig

	// Database configuration
	Database DatabaseConfig

	// Redis configuration (member activity tracking)
	Redis RedisConfig

	// Email delivery
	Email notification.EmailConfig

	// S3 backup exports
	Backup BackupConfig

	// Observability configuration
	Observability ObservabilityConfig

	// Cron expression for the daily usage snapshot job
	SnapshotSchedule string

	// Sign-in URL included in welcome notifications
	LoginURL string
}

// ServerConfig holds the ops HTTP server configuration
type ServerConfig struct {
	Host            string
	Port            string
	ReadTimeout     time.Duration
	WriteTimeout    time.Duration
	IdleTimeout     time.Duration
	ShutdownTimeout time.Duration
}

// DatabaseConfig holds PostgreSQL configuration
type DatabaseConfig struct {
	URL         string
	ReplicaURLs string
	MaxConns    int
	MinConns    int
	Timeout     time.Duration
}

// RedisConfig holds Redis connection settings
type RedisConfig struct {
	Addr     string
	Password string
	DB       int
	PoolSize int
}

// BackupConfig holds S3 export settings
type BackupConfig struct {
	Enabled bool
	S3      backup.Config
}

// ObservabilityConfig holds observability settings
type ObservabilityConfig struct {
	// Logging
	LogLevel observability.LogLevel

	// Metrics
	MetricsEnabled bool

	// OpenTelemetry
	OTelEnabled        bool
	OTelEndpoint       string
	OTelServiceName    string
	OTelServiceVersion string
	OTelInsecure       bool
}

// LoadConfig loads configuration from environment variables
func LoadConfig() (*Config, error) {
	cfg := &Config{
		Server: ServerConfig{
			Host:            getEnv("CLASSHUB_HOST", "0.0.0.0"),
			Port:            getEnv("CLASSHUB_OPS_PORT", "9090"),
			ReadTimeout:     getEnvDuration("CLASSHUB_READ_TIMEOUT", 15*time.Second),
			WriteTimeout:    getEnvDuration("CLASSHUB_WRITE_TIMEOUT", 15*time.Second),
			IdleTimeout:     getEnvDuration("CLASSHUB_IDLE_TIMEOUT", 60*time.Second),
			ShutdownTimeout: getEnvDuration("CLASSHUB_SHUTDOWN_TIMEOUT", 30*time.Second),
		},
		Database: DatabaseConfig{
			URL:         getEnv("CLASSHUB_POSTGRES_URL", ""),
			ReplicaURLs: getEnv("CLASSHUB_POSTGRES_REPLICA_URLS", ""),
			MaxConns:    getEnvInt("CLASSHUB_POSTGRES_MAX_CONNS", 20),
			MinConns:    getEnvInt("CLASSHUB_POSTGRES_MIN_CONNS", 2),
			Timeout:     getEnvDuration("CLASSHUB_POSTGRES_TIMEOUT", 30*time.Second),
		},
		Redis: RedisConfig{
			Addr:     getEnv("CLASSHUB_REDIS_ADDR", "localhost:6379"),
			Password: getEnv("CLASSHUB_REDIS_PASSWORD", ""),
			DB:       getEnvInt("CLASSHUB_REDIS_DB", 0),
			PoolSize: getEnvInt("CLASSHUB_REDIS_POOL_SIZE", 10),
		},
		Email: notification.EmailConfig{
			Host:     getEnv("CLASSHUB_SMTP_HOST", ""),
			Port:     getEnvInt("CLASSHUB_SMTP_PORT", 587),
			User:     getEnv("CLASSHUB_SMTP_USER", ""),
			Password: getEnv("CLASSHUB_SMTP_PASSWORD", ""),
			From:     getEnv("CLASSHUB_SMTP_FROM", "no-reply@classhub.io"),
			FromName: getEnv("CLASSHUB_SMTP_FROM_NAME", "ClassHub"),
		},
		Backup: BackupConfig{
			Enabled: getEnvBool("CLASSHUB_BACKUP_ENABLED", false),
			S3: backup.Config{
				Region:       getEnv("CLASSHUB_S3_REGION", "us-east-1"),
				Bucket:       getEnv("CLASSHUB_S3_BUCKET", ""),
				Endpoint:     getEnv("CLASSHUB_S3_ENDPOINT", ""),
				AccessKey:    getEnv("CLASSHUB_S3_ACCESS_KEY", ""),
				SecretKey:    getEnv("CLASSHUB_S3_SECRET_KEY", ""),
				UsePathStyle: getEnvBool("CLASSHUB_S3_USE_PATH_STYLE", false),
			},
		},
		Observability: ObservabilityConfig{
			LogLevel:           parseLogLevel(getEnv("CLASSHUB_LOG_LEVEL", "info")),
			MetricsEnabled:     getEnvBool("CLASSHUB_METRICS_ENABLED", true),
			OTelEnabled:        getEnvBool("CLASSHUB_OTEL_ENABLED", false),
			OTelEndpoint:       getEnv("CLASSHUB_OTEL_ENDPOINT", "localhost:4317"),
			OTelServiceName:    getEnv("CLASSHUB_OTEL_SERVICE_NAME", "classhub-tenancy"),
			OTelServiceVersion: getEnv("CLASSHUB_OTEL_SERVICE_VERSION", "1.0.0"),
			OTelInsecure:       getEnvBool("CLASSHUB_OTEL_INSECURE", true),
		},
		SnapshotSchedule: getEnv("CLASSHUB_SNAPSHOT_SCHEDULE", "0 2 * * *"),
		LoginURL:         getEnv("CLASSHUB_LOGIN_URL", "https://app.classhub.io/login"),
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("configuration validation failed: %w", err)
	}

	return cfg, nil
}

// Validate checks if the configuration is valid
func (c *Config) Validate() error {
	if c.Server.Port == "" {
		return fmt.Errorf("ops server port is required")
	}
	if c.Database.URL == "" {
		return fmt.Errorf("postgres URL is required")
	}
	if c.Database.MaxConns < c.Database.MinConns {
		return fmt.Errorf("postgres max conns must be >= min conns")
	}
	if c.Backup.Enabled && c.Backup.S3.Bucket == "" {
		return fmt.Errorf("S3 bucket is required when backups are enabled")
	}
	if c.Observability.OTelEnabled {
		if c.Observability.OTelEndpoint == "" {
			return fmt.Errorf("OpenTelemetry endpoint is required when OTel is enabled")
		}
		if c.Observability.OTelServiceName == "" {
			return fmt.Errorf("OpenTelemetry service name is required when OTel is enabled")
		}
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

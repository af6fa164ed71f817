package config

import (
	"fmt"
	"os"
	"strconv"
	"time"
)

const (
	ServiceName    = "rainshop"
	ServiceVersion = "0.1.0"
)

const (
	OrderEventsTopic      = "OrderEvents"
	PaymentCompletedTopic = "PaymentCompleted"
	GroupID               = "rainshop-payments-group"
	BatchTimeout          = 10 * time.Millisecond
	BatchSize             = 100
)

const (
	LogsPath      = "/otlp/v1/logs"   // Grafana Cloud OTLP path
	TracesPath    = "/otlp/v1/traces" // Grafana Cloud OTLP path
	ExportTimeout = 30 * time.Second
	MaxQueueSize  = 2048
)

// Store drivers.
const (
	DriverPostgres = "postgres"
	DriverMemory   = "memory"
)

type Config struct {
	HTTPAddr        string
	StoreDriver     string
	DatabaseURL     string
	RedisURL        string
	KafkaBroker     string
	OutboxInterval  time.Duration
	OtelEndpoint    string
	OtelAuthHeader  string
	ShutdownTimeout time.Duration
	PageSize        int
	StatsCacheTTL   time.Duration
}

func LoadConfig() (*Config, error) {
	config := &Config{
		HTTPAddr:       getEnvOrDefault("HTTP_ADDR", ":8080"),
		StoreDriver:    getEnvOrDefault("STORE_DRIVER", DriverPostgres),
		DatabaseURL:    os.Getenv("DATABASE_URL"),
		RedisURL:       os.Getenv("REDIS_URL"),
		KafkaBroker:    os.Getenv("KAFKA_BROKER"),
		OtelEndpoint:   os.Getenv("OTEL_ENDPOINT"),
		OtelAuthHeader: os.Getenv("OTEL_AUTH_HEADER"),
	}

	var err error
	if config.OutboxInterval, err = getDurationOrDefault("OUTBOX_INTERVAL", time.Second); err != nil {
		return nil, err
	}
	if config.ShutdownTimeout, err = getDurationOrDefault("SHUTDOWN_TIMEOUT", 15*time.Second); err != nil {
		return nil, err
	}
	if config.StatsCacheTTL, err = getDurationOrDefault("STATS_CACHE_TTL", 60*time.Second); err != nil {
		return nil, err
	}
	if config.PageSize, err = getIntOrDefault("PAGE_SIZE", 50); err != nil {
		return nil, err
	}

	switch config.StoreDriver {
	case DriverPostgres:
		if config.DatabaseURL == "" {
			return nil, fmt.Errorf("DATABASE_URL environment variable is required")
		}
	case DriverMemory:
	default:
		return nil, fmt.Errorf("STORE_DRIVER must be %q or %q, got %q", DriverPostgres, DriverMemory, config.StoreDriver)
	}
	if config.OtelEndpoint != "" && config.OtelAuthHeader == "" {
		return nil, fmt.Errorf("OTEL_AUTH_HEADER environment variable is required when OTEL_ENDPOINT is set")
	}
	if config.PageSize <= 0 {
		return nil, fmt.Errorf("PAGE_SIZE must be positive, got %d", config.PageSize)
	}
	if config.OutboxInterval <= 0 {
		return nil, fmt.Errorf("OUTBOX_INTERVAL must be positive, got %s", config.OutboxInterval)
	}

	return config, nil
}

// getEnvOrDefault returns environment variable value or default if not set
func getEnvOrDefault(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getDurationOrDefault(key string, defaultValue time.Duration) (time.Duration, error) {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue, nil
	}
	d, err := time.ParseDuration(value)
	if err != nil {
		return 0, fmt.Errorf("%s: %w", key, err)
	}
	return d, nil
}

func getIntOrDefault(key string, defaultValue int) (int, error) {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue, nil
	}
	n, err := strconv.Atoi(value)
	if err != nil {
		return 0, fmt.Errorf("%s: %w", key, err)
	}
	return n, nil
}

package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"time"

	sharedcfg "github.com/couchcryptid/storm-data-shared/config"
)

// Supported DATABASE_DRIVER and CACHE_BACKEND values.
const (
	DriverPostgres = "postgres"
	DriverSQLite   = "sqlite"

	CacheMemory   = "memory"
	CacheDatabase = "database"
)

// Config holds all service settings, populated from environment variables.
type Config struct {
	HTTPAddr        string
	LogLevel        string
	LogFormat       string
	ShutdownTimeout time.Duration

	DatabaseDriver string
	DatabaseURL    string

	CacheBackend string
	CacheTTL     time.Duration
	CacheSize    int

	// USGS feed configuration.
	USGSBaseURL   string
	USGSTimeout   time.Duration
	USGSRateLimit float64
	MinMagnitude  float64

	// Result publishing is disabled when KafkaBrokers is empty.
	KafkaBrokers      []string
	KafkaResultsTopic string
}

// PublishEnabled reports whether fresh results should be sent to Kafka.
func (c *Config) PublishEnabled() bool {
	return len(c.KafkaBrokers) > 0
}

// Load reads configuration from environment variables, applying defaults where unset.
func Load() (*Config, error) {
	shutdownTimeout, err := sharedcfg.ParseShutdownTimeout()
	if err != nil {
		return nil, err
	}

	cacheTTL, err := parsePositiveDuration("CACHE_TTL", "1h")
	if err != nil {
		return nil, err
	}
	usgsTimeout, err := parsePositiveDuration("USGS_TIMEOUT", "10s")
	if err != nil {
		return nil, err
	}

	cacheSize, err := strconv.Atoi(sharedcfg.EnvOrDefault("CACHE_SIZE", "10000"))
	if err != nil || cacheSize <= 0 {
		return nil, errors.New("invalid CACHE_SIZE: must be a positive integer")
	}

	rateLimit, err := strconv.ParseFloat(sharedcfg.EnvOrDefault("USGS_RATE_LIMIT", "5"), 64)
	if err != nil || rateLimit < 0 {
		return nil, errors.New("invalid USGS_RATE_LIMIT: must be a non-negative number")
	}

	minMagnitude, err := strconv.ParseFloat(sharedcfg.EnvOrDefault("MIN_MAGNITUDE", "5.0"), 64)
	// Zero is reserved for "unset" by the service and feed client.
	if err != nil || minMagnitude <= 0 || minMagnitude > 10 {
		return nil, errors.New("invalid MIN_MAGNITUDE: must be greater than 0 and at most 10")
	}

	var brokers []string
	if v := os.Getenv("KAFKA_BROKERS"); v != "" {
		brokers = sharedcfg.ParseBrokers(v)
	}

	cfg := &Config{
		HTTPAddr:        sharedcfg.EnvOrDefault("HTTP_ADDR", ":8080"),
		LogLevel:        sharedcfg.EnvOrDefault("LOG_LEVEL", "info"),
		LogFormat:       sharedcfg.EnvOrDefault("LOG_FORMAT", "json"),
		ShutdownTimeout: shutdownTimeout,

		DatabaseDriver: sharedcfg.EnvOrDefault("DATABASE_DRIVER", DriverPostgres),
		DatabaseURL:    sharedcfg.EnvOrDefault("DATABASE_URL", "postgres://localhost:5432/quakes?sslmode=disable"),

		CacheBackend: sharedcfg.EnvOrDefault("CACHE_BACKEND", CacheMemory),
		CacheTTL:     cacheTTL,
		CacheSize:    cacheSize,

		USGSBaseURL:   sharedcfg.EnvOrDefault("USGS_BASE_URL", "https://earthquake.usgs.gov/fdsnws/event/1"),
		USGSTimeout:   usgsTimeout,
		USGSRateLimit: rateLimit,
		MinMagnitude:  minMagnitude,

		KafkaBrokers:      brokers,
		KafkaResultsTopic: sharedcfg.EnvOrDefault("KAFKA_RESULTS_TOPIC", "earthquake-search-results"),
	}

	switch cfg.DatabaseDriver {
	case DriverPostgres, DriverSQLite:
	default:
		return nil, fmt.Errorf("invalid DATABASE_DRIVER %q: must be %s or %s", cfg.DatabaseDriver, DriverPostgres, DriverSQLite)
	}
	switch cfg.CacheBackend {
	case CacheMemory, CacheDatabase:
	default:
		return nil, fmt.Errorf("invalid CACHE_BACKEND %q: must be %s or %s", cfg.CacheBackend, CacheMemory, CacheDatabase)
	}
	if cfg.DatabaseURL == "" {
		return nil, errors.New("DATABASE_URL is required")
	}
	if cfg.PublishEnabled() && cfg.KafkaResultsTopic == "" {
		return nil, errors.New("KAFKA_RESULTS_TOPIC is required when KAFKA_BROKERS is set")
	}

	return cfg, nil
}

func parsePositiveDuration(key, fallback string) (time.Duration, error) {
	d, err := time.ParseDuration(sharedcfg.EnvOrDefault(key, fallback))
	if err != nil || d <= 0 {
		return 0, fmt.Errorf("invalid %s: must be a positive duration", key)
	}
	return d, nil
}

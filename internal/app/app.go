// Package app wires configuration into a ready-to-use search service.
package app

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/couchcryptid/quake-search-service/internal/adapter/kafka"
	"github.com/couchcryptid/quake-search-service/internal/adapter/usgs"
	"github.com/couchcryptid/quake-search-service/internal/cache"
	"github.com/couchcryptid/quake-search-service/internal/config"
	"github.com/couchcryptid/quake-search-service/internal/domain"
	"github.com/couchcryptid/quake-search-service/internal/observability"
	"github.com/couchcryptid/quake-search-service/internal/search"
	"github.com/couchcryptid/quake-search-service/internal/store"
)

// Database is a migratable result store that can also host the result cache.
type Database interface {
	domain.ResultStore
	CreateCity(ctx context.Context, name string, c domain.Coordinate) (domain.City, error)
	Migrate(ctx context.Context) error
	Close() error
}

// Purger removes expired cache entries.
type Purger interface {
	Purge(ctx context.Context) (int64, error)
}

// App holds the wired service and the resources it owns.
type App struct {
	Service   *search.Service
	DB        Database
	Purger    Purger // nil for the memory cache
	publisher *kafka.Publisher
	logger    *slog.Logger
}

// Open connects the configured database, migrates it, and assembles the
// search service around it.
func Open(ctx context.Context, cfg *config.Config, logger *slog.Logger, metrics *observability.Metrics) (*App, error) {
	db, err := openDatabase(ctx, cfg)
	if err != nil {
		return nil, err
	}
	if err := db.Migrate(ctx); err != nil {
		db.Close() //nolint:errcheck
		return nil, err
	}

	a := &App{DB: db, logger: logger}

	var resultCache domain.ResultCache
	switch cfg.CacheBackend {
	case config.CacheDatabase:
		dbCache := databaseCache(db)
		resultCache, a.Purger = dbCache, dbCache
	default:
		resultCache = cache.NewMemory(cfg.CacheSize, nil)
	}
	logger.Info("result cache configured", "backend", cfg.CacheBackend, "ttl", cfg.CacheTTL)

	feed := usgs.NewClient(cfg.USGSBaseURL, cfg.USGSTimeout, cfg.USGSRateLimit, metrics, logger)

	opts := search.Options{CacheTTL: cfg.CacheTTL, MinMagnitude: cfg.MinMagnitude}
	if cfg.PublishEnabled() {
		a.publisher = kafka.NewPublisher(cfg, logger)
		opts.Publisher = a.publisher
		logger.Info("result publishing enabled", "brokers", cfg.KafkaBrokers, "topic", cfg.KafkaResultsTopic)
	}

	a.Service = search.New(db, feed, resultCache, logger, metrics, opts)
	return a, nil
}

// Close releases the publisher and the database.
func (a *App) Close() error {
	if a.publisher != nil {
		if err := a.publisher.Close(); err != nil {
			a.logger.Error("kafka publisher close error", "error", err)
		}
	}
	return a.DB.Close()
}

func openDatabase(ctx context.Context, cfg *config.Config) (Database, error) {
	switch cfg.DatabaseDriver {
	case config.DriverSQLite:
		return store.NewSQLite(cfg.DatabaseURL)
	case config.DriverPostgres:
		return store.NewPostgres(ctx, cfg.DatabaseURL)
	default:
		return nil, fmt.Errorf("unsupported database driver %q", cfg.DatabaseDriver)
	}
}

type purgingCache interface {
	domain.ResultCache
	Purger
}

func databaseCache(db Database) purgingCache {
	switch d := db.(type) {
	case *store.Postgres:
		return d.ResultCache()
	case *store.SQLite:
		return d.ResultCache()
	default:
		return nil
	}
}

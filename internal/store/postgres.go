package store

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/couchcryptid/quake-search-service/internal/domain"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/rotisserie/eris"
)

// uniqueViolation is the SQLSTATE Postgres reports for a UNIQUE conflict.
const uniqueViolation = "23505"

// Pool is the subset of pgxpool.Pool the store needs. pgxmock pools satisfy
// it in tests.
type Pool interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
	Ping(ctx context.Context) error
	Close()
}

// Postgres implements domain.ResultStore using pgxpool.
type Postgres struct {
	pool Pool
}

// NewPostgres connects a pool to connString and verifies it with a ping.
func NewPostgres(ctx context.Context, connString string) (*Postgres, error) {
	cfg, err := pgxpool.ParseConfig(connString)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: parse config")
	}
	cfg.MaxConns = 10
	cfg.MinConns = 1
	cfg.MaxConnLifetime = 30 * time.Minute
	cfg.MaxConnIdleTime = 5 * time.Minute

	pool, err := pgxpool.NewWithConfig(ctx, cfg)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: create pool")
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, eris.Wrap(err, "postgres: ping")
	}
	return &Postgres{pool: pool}, nil
}

const postgresMigration = `
CREATE TABLE IF NOT EXISTS cities (
	id         BIGSERIAL PRIMARY KEY,
	name       TEXT NOT NULL UNIQUE,
	latitude   NUMERIC(9,6) NOT NULL,
	longitude  NUMERIC(9,6) NOT NULL,
	created_at TIMESTAMPTZ NOT NULL DEFAULT now()
);

CREATE TABLE IF NOT EXISTS earthquake_searches (
	id          TEXT PRIMARY KEY,
	city_id     BIGINT NOT NULL REFERENCES cities(id),
	start_date  DATE NOT NULL,
	end_date    DATE NOT NULL,
	event_id    TEXT,
	place       TEXT,
	magnitude   DOUBLE PRECISION,
	occurred_at TIMESTAMPTZ,
	latitude    DOUBLE PRECISION,
	longitude   DOUBLE PRECISION,
	depth_km    DOUBLE PRECISION,
	distance_km DOUBLE PRECISION,
	created_at  TIMESTAMPTZ NOT NULL DEFAULT now(),
	CONSTRAINT uq_earthquake_searches_triple UNIQUE (city_id, start_date, end_date),
	CONSTRAINT ck_earthquake_searches_range CHECK (start_date <= end_date)
);

CREATE TABLE IF NOT EXISTS search_cache (
	key        TEXT PRIMARY KEY,
	value      BYTEA NOT NULL,
	expires_at TIMESTAMPTZ NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_search_cache_expires_at ON search_cache(expires_at);
`

// Migrate creates the schema if it does not exist.
func (s *Postgres) Migrate(ctx context.Context) error {
	_, err := s.pool.Exec(ctx, postgresMigration)
	return eris.Wrap(err, "postgres: migrate")
}

// Ping reports whether the database is reachable.
func (s *Postgres) Ping(ctx context.Context) error {
	return eris.Wrap(s.pool.Ping(ctx), "postgres: ping")
}

// Close releases the pool.
func (s *Postgres) Close() error {
	s.pool.Close()
	return nil
}

// CreateCity registers a city. A duplicate name is reported as ErrConflict.
func (s *Postgres) CreateCity(ctx context.Context, name string, c domain.Coordinate) (domain.City, error) {
	if name == "" || !c.Valid() {
		return domain.City{}, fmt.Errorf("%w: city %q at %v", domain.ErrInvalidInput, name, c)
	}
	var id int64
	err := s.pool.QueryRow(ctx,
		`INSERT INTO cities (name, latitude, longitude) VALUES ($1, $2, $3) RETURNING id`,
		name, c.Lat, c.Lon,
	).Scan(&id)
	if err != nil {
		if isUniqueViolation(err) {
			return domain.City{}, conflictErr(err, "postgres: insert city")
		}
		return domain.City{}, storageErr(err, "postgres: insert city")
	}
	return domain.City{ID: id, Name: name, Coordinate: c}, nil
}

func (s *Postgres) FindCity(ctx context.Context, id int64) (domain.City, error) {
	city := domain.City{ID: id}
	err := s.pool.QueryRow(ctx,
		`SELECT name, latitude::float8, longitude::float8 FROM cities WHERE id = $1`,
		id,
	).Scan(&city.Name, &city.Coordinate.Lat, &city.Coordinate.Lon)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return domain.City{}, fmt.Errorf("%w: city %d", domain.ErrNotFound, id)
		}
		return domain.City{}, storageErr(err, "postgres: find city")
	}
	return city, nil
}

func (s *Postgres) FindSearch(ctx context.Context, cityID int64, r domain.DateRange) (domain.SearchResult, bool, error) {
	var rec searchRecord
	err := s.pool.QueryRow(ctx,
		`SELECT s.id, s.city_id, c.name, s.start_date, s.end_date,
		        s.event_id, s.place, s.magnitude, s.occurred_at,
		        s.latitude, s.longitude, s.depth_km, s.distance_km, s.created_at
		 FROM earthquake_searches s JOIN cities c ON c.id = s.city_id
		 WHERE s.city_id = $1 AND s.start_date = $2 AND s.end_date = $3`,
		cityID, r.Start, r.End,
	).Scan(&rec.ID, &rec.CityID, &rec.CityName, &rec.Start, &rec.End,
		&rec.EventID, &rec.Place, &rec.Magnitude, &rec.OccurredAt,
		&rec.Latitude, &rec.Longitude, &rec.DepthKm, &rec.DistanceKm, &rec.CreatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return domain.SearchResult{}, false, nil
		}
		return domain.SearchResult{}, false, storageErr(err, "postgres: find search")
	}
	return rec.result(), true, nil
}

func (s *Postgres) CreateSearch(ctx context.Context, res domain.SearchResult) (domain.SearchResult, error) {
	res = stamp(res, uuid.NewString())
	rec := recordOf(res)

	_, err := s.pool.Exec(ctx,
		`INSERT INTO earthquake_searches (id, city_id, start_date, end_date,
		        event_id, place, magnitude, occurred_at,
		        latitude, longitude, depth_km, distance_km, created_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13)`,
		rec.ID, rec.CityID, rec.Start, rec.End,
		rec.EventID, rec.Place, rec.Magnitude, rec.OccurredAt,
		rec.Latitude, rec.Longitude, rec.DepthKm, rec.DistanceKm, rec.CreatedAt,
	)
	if err != nil {
		if isUniqueViolation(err) {
			return domain.SearchResult{}, conflictErr(err, "postgres: insert search")
		}
		return domain.SearchResult{}, storageErr(err, "postgres: insert search")
	}
	return res, nil
}

// ResultCache returns a domain.ResultCache backed by the search_cache table.
func (s *Postgres) ResultCache() *PostgresCache {
	return &PostgresCache{pool: s.pool}
}

// PostgresCache stores serialized views in search_cache with an expiry column.
type PostgresCache struct {
	pool Pool
}

func (c *PostgresCache) Get(ctx context.Context, key string) ([]byte, bool, error) {
	var value []byte
	err := c.pool.QueryRow(ctx,
		`SELECT value FROM search_cache WHERE key = $1 AND expires_at > $2`,
		key, domain.Now(),
	).Scan(&value)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, false, nil
		}
		return nil, false, eris.Wrap(err, "postgres: get cached search")
	}
	return value, true, nil
}

func (c *PostgresCache) Set(ctx context.Context, key string, value []byte, ttl time.Duration) error {
	_, err := c.pool.Exec(ctx,
		`INSERT INTO search_cache (key, value, expires_at) VALUES ($1, $2, $3)
		 ON CONFLICT (key) DO UPDATE SET value = EXCLUDED.value, expires_at = EXCLUDED.expires_at`,
		key, value, expiresAt(domain.Now(), ttl),
	)
	return eris.Wrap(err, "postgres: set cached search")
}

// Purge deletes expired entries and returns how many were removed.
func (c *PostgresCache) Purge(ctx context.Context) (int64, error) {
	tag, err := c.pool.Exec(ctx, `DELETE FROM search_cache WHERE expires_at <= $1`, domain.Now())
	if err != nil {
		return 0, eris.Wrap(err, "postgres: purge cache")
	}
	return tag.RowsAffected(), nil
}

func isUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == uniqueViolation
}

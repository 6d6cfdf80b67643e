package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/couchcryptid/quake-search-service/internal/domain"
	"github.com/google/uuid"
	"github.com/rotisserie/eris"
	"modernc.org/sqlite"
	sqlite3 "modernc.org/sqlite/lib"
)

// SQLite implements domain.ResultStore using modernc.org/sqlite. Dates and
// timestamps are stored as text so rows stay readable from the sqlite3 shell.
type SQLite struct {
	db *sql.DB
}

// NewSQLite opens the database at dsn. Use ":memory:" for an ephemeral store.
func NewSQLite(dsn string) (*SQLite, error) {
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: open")
	}
	// One connection keeps an in-memory database shared and serializes writers.
	db.SetMaxOpenConns(1)
	for _, pragma := range []string{
		"PRAGMA journal_mode=WAL",
		"PRAGMA busy_timeout=5000",
		"PRAGMA foreign_keys=ON",
	} {
		if _, err := db.Exec(pragma); err != nil {
			db.Close()
			return nil, eris.Wrapf(err, "sqlite: exec %s", pragma)
		}
	}
	return &SQLite{db: db}, nil
}

const sqliteMigration = `
CREATE TABLE IF NOT EXISTS cities (
	id         INTEGER PRIMARY KEY AUTOINCREMENT,
	name       TEXT NOT NULL UNIQUE,
	latitude   REAL NOT NULL,
	longitude  REAL NOT NULL,
	created_at TEXT NOT NULL DEFAULT (strftime('%Y-%m-%dT%H:%M:%fZ', 'now'))
);

CREATE TABLE IF NOT EXISTS earthquake_searches (
	id          TEXT PRIMARY KEY,
	city_id     INTEGER NOT NULL REFERENCES cities(id),
	start_date  TEXT NOT NULL,
	end_date    TEXT NOT NULL,
	event_id    TEXT,
	place       TEXT,
	magnitude   REAL,
	occurred_at TEXT,
	latitude    REAL,
	longitude   REAL,
	depth_km    REAL,
	distance_km REAL,
	created_at  TEXT NOT NULL,
	UNIQUE (city_id, start_date, end_date),
	CHECK (start_date <= end_date)
);

CREATE TABLE IF NOT EXISTS search_cache (
	key        TEXT PRIMARY KEY,
	value      BLOB NOT NULL,
	expires_at INTEGER NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_search_cache_expires_at ON search_cache(expires_at);
`

// Migrate creates the schema if it does not exist.
func (s *SQLite) Migrate(ctx context.Context) error {
	_, err := s.db.ExecContext(ctx, sqliteMigration)
	return eris.Wrap(err, "sqlite: migrate")
}

// Ping reports whether the database is reachable.
func (s *SQLite) Ping(ctx context.Context) error {
	return eris.Wrap(s.db.PingContext(ctx), "sqlite: ping")
}

func (s *SQLite) Close() error {
	return s.db.Close()
}

// CreateCity registers a city. A duplicate name is reported as ErrConflict.
func (s *SQLite) CreateCity(ctx context.Context, name string, c domain.Coordinate) (domain.City, error) {
	if name == "" || !c.Valid() {
		return domain.City{}, fmt.Errorf("%w: city %q at %v", domain.ErrInvalidInput, name, c)
	}
	res, err := s.db.ExecContext(ctx,
		`INSERT INTO cities (name, latitude, longitude) VALUES (?, ?, ?)`,
		name, c.Lat, c.Lon,
	)
	if err != nil {
		if isSQLiteUnique(err) {
			return domain.City{}, conflictErr(err, "sqlite: insert city")
		}
		return domain.City{}, storageErr(err, "sqlite: insert city")
	}
	id, err := res.LastInsertId()
	if err != nil {
		return domain.City{}, storageErr(err, "sqlite: city id")
	}
	return domain.City{ID: id, Name: name, Coordinate: c}, nil
}

func (s *SQLite) FindCity(ctx context.Context, id int64) (domain.City, error) {
	city := domain.City{ID: id}
	err := s.db.QueryRowContext(ctx,
		`SELECT name, latitude, longitude FROM cities WHERE id = ?`, id,
	).Scan(&city.Name, &city.Coordinate.Lat, &city.Coordinate.Lon)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return domain.City{}, fmt.Errorf("%w: city %d", domain.ErrNotFound, id)
		}
		return domain.City{}, storageErr(err, "sqlite: find city")
	}
	return city, nil
}

func (s *SQLite) FindSearch(ctx context.Context, cityID int64, r domain.DateRange) (domain.SearchResult, bool, error) {
	var (
		rec                 searchRecord
		start, end, created string
		occurred            *string
	)
	err := s.db.QueryRowContext(ctx,
		`SELECT s.id, s.city_id, c.name, s.start_date, s.end_date,
		        s.event_id, s.place, s.magnitude, s.occurred_at,
		        s.latitude, s.longitude, s.depth_km, s.distance_km, s.created_at
		 FROM earthquake_searches s JOIN cities c ON c.id = s.city_id
		 WHERE s.city_id = ? AND s.start_date = ? AND s.end_date = ?`,
		cityID, r.Start.Format(domain.DateLayout), r.End.Format(domain.DateLayout),
	).Scan(&rec.ID, &rec.CityID, &rec.CityName, &start, &end,
		&rec.EventID, &rec.Place, &rec.Magnitude, &occurred,
		&rec.Latitude, &rec.Longitude, &rec.DepthKm, &rec.DistanceKm, &created)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return domain.SearchResult{}, false, nil
		}
		return domain.SearchResult{}, false, storageErr(err, "sqlite: find search")
	}

	if rec.Start, err = time.Parse(domain.DateLayout, start); err != nil {
		return domain.SearchResult{}, false, storageErr(err, "sqlite: parse start_date")
	}
	if rec.End, err = time.Parse(domain.DateLayout, end); err != nil {
		return domain.SearchResult{}, false, storageErr(err, "sqlite: parse end_date")
	}
	if rec.CreatedAt, err = time.Parse(time.RFC3339Nano, created); err != nil {
		return domain.SearchResult{}, false, storageErr(err, "sqlite: parse created_at")
	}
	if occurred != nil {
		t, err := time.Parse(time.RFC3339Nano, *occurred)
		if err != nil {
			return domain.SearchResult{}, false, storageErr(err, "sqlite: parse occurred_at")
		}
		rec.OccurredAt = &t
	}
	return rec.result(), true, nil
}

func (s *SQLite) CreateSearch(ctx context.Context, res domain.SearchResult) (domain.SearchResult, error) {
	res = stamp(res, uuid.NewString())
	rec := recordOf(res)

	var occurred *string
	if rec.OccurredAt != nil {
		v := rec.OccurredAt.Format(time.RFC3339Nano)
		occurred = &v
	}

	_, err := s.db.ExecContext(ctx,
		`INSERT INTO earthquake_searches (id, city_id, start_date, end_date,
		        event_id, place, magnitude, occurred_at,
		        latitude, longitude, depth_km, distance_km, created_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		rec.ID, rec.CityID, rec.Start.Format(domain.DateLayout), rec.End.Format(domain.DateLayout),
		rec.EventID, rec.Place, rec.Magnitude, occurred,
		rec.Latitude, rec.Longitude, rec.DepthKm, rec.DistanceKm, rec.CreatedAt.Format(time.RFC3339Nano),
	)
	if err != nil {
		if isSQLiteUnique(err) {
			return domain.SearchResult{}, conflictErr(err, "sqlite: insert search")
		}
		return domain.SearchResult{}, storageErr(err, "sqlite: insert search")
	}
	return res, nil
}

// ResultCache returns a domain.ResultCache backed by the search_cache table.
func (s *SQLite) ResultCache() *SQLiteCache {
	return &SQLiteCache{db: s.db}
}

// SQLiteCache stores serialized views in search_cache. Expiry is kept as
// Unix nanoseconds so comparisons stay numeric.
type SQLiteCache struct {
	db *sql.DB
}

func (c *SQLiteCache) Get(ctx context.Context, key string) ([]byte, bool, error) {
	var value []byte
	err := c.db.QueryRowContext(ctx,
		`SELECT value FROM search_cache WHERE key = ? AND expires_at > ?`,
		key, domain.Now().UnixNano(),
	).Scan(&value)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, false, nil
		}
		return nil, false, eris.Wrap(err, "sqlite: get cached search")
	}
	return value, true, nil
}

func (c *SQLiteCache) Set(ctx context.Context, key string, value []byte, ttl time.Duration) error {
	_, err := c.db.ExecContext(ctx,
		`INSERT INTO search_cache (key, value, expires_at) VALUES (?, ?, ?)
		 ON CONFLICT (key) DO UPDATE SET value = excluded.value, expires_at = excluded.expires_at`,
		key, value, expiresAt(domain.Now(), ttl).UnixNano(),
	)
	return eris.Wrap(err, "sqlite: set cached search")
}

// Purge deletes expired entries and returns how many were removed.
func (c *SQLiteCache) Purge(ctx context.Context) (int64, error) {
	res, err := c.db.ExecContext(ctx, `DELETE FROM search_cache WHERE expires_at <= ?`, domain.Now().UnixNano())
	if err != nil {
		return 0, eris.Wrap(err, "sqlite: purge cache")
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, eris.Wrap(err, "sqlite: rows affected")
	}
	return n, nil
}

func isSQLiteUnique(err error) bool {
	var sqliteErr *sqlite.Error
	if errors.As(err, &sqliteErr) {
		switch sqliteErr.Code() {
		case sqlite3.SQLITE_CONSTRAINT_UNIQUE, sqlite3.SQLITE_CONSTRAINT_PRIMARYKEY:
			return true
		}
	}
	return strings.Contains(err.Error(), "UNIQUE constraint failed")
}

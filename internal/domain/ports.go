package domain

import (
	"context"
	"time"
)

// ResultCache is a key/value store of serialized search views with a
// per-entry time-to-live. A missing or expired key is a miss, not an error.
type ResultCache interface {
	Get(ctx context.Context, key string) ([]byte, bool, error)
	Set(ctx context.Context, key string, value []byte, ttl time.Duration) error
}

// ResultStore is the durable record of cities and resolved searches.
type ResultStore interface {
	// FindCity returns ErrNotFound when no city has the given id.
	FindCity(ctx context.Context, id int64) (City, error)
	// FindSearch looks up the result for a (city, start, end) triple.
	FindSearch(ctx context.Context, cityID int64, r DateRange) (SearchResult, bool, error)
	// CreateSearch assigns an id and creation time and persists the result.
	// It returns ErrConflict if the triple was recorded concurrently.
	CreateSearch(ctx context.Context, res SearchResult) (SearchResult, error)
	// Ping reports whether the store is reachable.
	Ping(ctx context.Context) error
}

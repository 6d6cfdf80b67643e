package domain

import "context"

// Feed query defaults matching the original search behavior.
const (
	DefaultMinMagnitude = 5.0
	DefaultOrderBy      = "time"
)

// FeedQuery bounds a single request to the seismic event feed.
type FeedQuery struct {
	Range        DateRange
	MinMagnitude float64
	OrderBy      string
}

// Feed fetches candidate seismic events from an external catalog.
type Feed interface {
	// Query issues exactly one upstream request. Failures match
	// ErrUpstreamUnavailable. An empty result is not an error.
	Query(ctx context.Context, q FeedQuery) ([]SeismicEvent, error)
}

// Package store persists cities and resolved searches, and backs the
// optional database-resident result cache.
package store

import (
	"fmt"
	"time"

	"github.com/couchcryptid/quake-search-service/internal/domain"
	"github.com/rotisserie/eris"
)

// noExpiry stands in for a cache entry written without a TTL.
const noExpiry = 100 * 365 * 24 * time.Hour

// searchRecord is the column-level shape of an earthquake_searches row.
// The nearest-event columns are all NULL for an empty search.
type searchRecord struct {
	ID         string
	CityID     int64
	CityName   string
	Start      time.Time
	End        time.Time
	EventID    *string
	Place      *string
	Magnitude  *float64
	OccurredAt *time.Time
	Latitude   *float64
	Longitude  *float64
	DepthKm    *float64
	DistanceKm *float64
	CreatedAt  time.Time
}

func recordOf(res domain.SearchResult) searchRecord {
	rec := searchRecord{
		ID:        res.ID,
		CityID:    res.CityID,
		CityName:  res.CityName,
		Start:     res.Range.Start,
		End:       res.Range.End,
		CreatedAt: res.CreatedAt,
	}
	if res.Nearest != nil && res.DistanceKm != nil {
		e := *res.Nearest
		occurred := e.OccurredAt.UTC()
		distance := *res.DistanceKm
		rec.EventID = &e.ID
		rec.Place = &e.Place
		rec.Magnitude = &e.Magnitude
		rec.OccurredAt = &occurred
		rec.Latitude = &e.Coordinate.Lat
		rec.Longitude = &e.Coordinate.Lon
		rec.DepthKm = &e.DepthKm
		rec.DistanceKm = &distance
	}
	return rec
}

func (rec searchRecord) result() domain.SearchResult {
	res := domain.SearchResult{
		ID:        rec.ID,
		CityID:    rec.CityID,
		CityName:  rec.CityName,
		Range:     domain.DateRange{Start: rec.Start.UTC(), End: rec.End.UTC()},
		CreatedAt: rec.CreatedAt.UTC(),
	}
	if rec.DistanceKm == nil || rec.Magnitude == nil || rec.Latitude == nil || rec.Longitude == nil {
		return res
	}

	e := domain.SeismicEvent{
		Coordinate: domain.Coordinate{Lat: *rec.Latitude, Lon: *rec.Longitude},
		Magnitude:  *rec.Magnitude,
	}
	if rec.EventID != nil {
		e.ID = *rec.EventID
	}
	if rec.Place != nil {
		e.Place = *rec.Place
	}
	if rec.OccurredAt != nil {
		e.OccurredAt = rec.OccurredAt.UTC()
	}
	if rec.DepthKm != nil {
		e.DepthKm = *rec.DepthKm
	}
	distance := *rec.DistanceKm
	res.Nearest = &e
	res.DistanceKm = &distance
	return res
}

// stamp assigns the identity and creation time of a new search.
func stamp(res domain.SearchResult, id string) domain.SearchResult {
	res.ID = id
	// Postgres keeps microseconds; truncate so a re-read compares equal.
	res.CreatedAt = domain.Now().Truncate(time.Microsecond)
	return res
}

func expiresAt(now time.Time, ttl time.Duration) time.Time {
	if ttl <= 0 {
		ttl = noExpiry
	}
	return now.Add(ttl)
}

func storageErr(err error, msg string) error {
	return fmt.Errorf("%w: %w", domain.ErrStorage, eris.Wrap(err, msg))
}

func conflictErr(err error, msg string) error {
	return fmt.Errorf("%w: %w", domain.ErrConflict, eris.Wrap(err, msg))
}

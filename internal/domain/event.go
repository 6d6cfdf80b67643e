package domain

import (
	"fmt"
	"strings"
	"time"
)

// DateLayout is the ISO calendar date format used for query parameters,
// storage, and cache keys.
const DateLayout = "2006-01-02"

// City is a named location that searches are anchored to.
type City struct {
	ID         int64      `json:"id"`
	Name       string     `json:"name"`
	Coordinate Coordinate `json:"coordinate"`
}

// SeismicEvent is a single candidate earthquake parsed from the feed.
type SeismicEvent struct {
	ID         string     `json:"id,omitempty"`
	Coordinate Coordinate `json:"coordinate"`
	DepthKm    float64    `json:"depth_km"`
	Magnitude  float64    `json:"magnitude"`
	Place      string     `json:"place"`
	OccurredAt time.Time  `json:"occurred_at"`
}

// DateRange is an inclusive range of calendar dates, both at UTC midnight.
type DateRange struct {
	Start time.Time
	End   time.Time
}

// NewDateRange truncates both bounds to UTC calendar dates and rejects a
// range whose start falls after its end.
func NewDateRange(start, end time.Time) (DateRange, error) {
	r := DateRange{Start: civilDate(start), End: civilDate(end)}
	if r.Start.After(r.End) {
		return DateRange{}, fmt.Errorf("%w: start date %s is after end date %s",
			ErrInvalidInput, r.Start.Format(DateLayout), r.End.Format(DateLayout))
	}
	return r, nil
}

// ParseDateRange parses two ISO dates (YYYY-MM-DD) into a DateRange.
func ParseDateRange(start, end string) (DateRange, error) {
	s, err := time.Parse(DateLayout, strings.TrimSpace(start))
	if err != nil {
		return DateRange{}, fmt.Errorf("%w: invalid start date %q", ErrInvalidInput, start)
	}
	e, err := time.Parse(DateLayout, strings.TrimSpace(end))
	if err != nil {
		return DateRange{}, fmt.Errorf("%w: invalid end date %q", ErrInvalidInput, end)
	}
	return NewDateRange(s, e)
}

func (r DateRange) String() string {
	return r.Start.Format(DateLayout) + ".." + r.End.Format(DateLayout)
}

func civilDate(t time.Time) time.Time {
	t = t.UTC()
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, time.UTC)
}

// SearchResult is the durable record of one resolved search. Nearest and
// DistanceKm are either both nil ("no earthquakes found") or both set.
type SearchResult struct {
	ID         string
	CityID     int64
	CityName   string
	Range      DateRange
	Nearest    *SeismicEvent
	DistanceKm *float64
	CreatedAt  time.Time
}

// CacheKey derives the cache key for a search triple.
func CacheKey(cityID int64, r DateRange) string {
	return fmt.Sprintf("earthquake:%d:%s:%s", cityID, r.Start.Format(DateLayout), r.End.Format(DateLayout))
}

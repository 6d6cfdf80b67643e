package domain

import (
	"fmt"
	"strconv"
	"time"
)

// SearchView is the serialized shape of a search handed to callers and
// stored in the result cache. It is deliberately flat and independent of
// SearchResult so the persisted entity can evolve without invalidating
// cached payloads.
type SearchView struct {
	ID        string `json:"id"`
	CityID    int64  `json:"city"`
	CityName  string `json:"city_name"`
	StartDate string `json:"start_date"`
	EndDate   string `json:"end_date"`

	NearestLocation  *string    `json:"nearest_earthquake_location"`
	NearestMagnitude *float64   `json:"nearest_earthquake_magnitude"`
	NearestTime      *time.Time `json:"nearest_earthquake_time"`
	NearestLatitude  *float64   `json:"nearest_earthquake_latitude,omitempty"`
	NearestLongitude *float64   `json:"nearest_earthquake_longitude,omitempty"`
	NearestDepthKm   *float64   `json:"nearest_earthquake_depth_km,omitempty"`
	DistanceKm       *float64   `json:"distance_km"`

	CreatedAt  time.Time `json:"created_at"`
	VerboseMsg string    `json:"verbose_msg"`
}

// NewSearchView projects a SearchResult into its serialized view.
func NewSearchView(r SearchResult) SearchView {
	v := SearchView{
		ID:        r.ID,
		CityID:    r.CityID,
		CityName:  r.CityName,
		StartDate: r.Range.Start.Format(DateLayout),
		EndDate:   r.Range.End.Format(DateLayout),
		CreatedAt: r.CreatedAt.UTC(),
	}

	if r.Nearest != nil && r.DistanceKm != nil {
		e := *r.Nearest
		occurred := e.OccurredAt.UTC()
		distance := *r.DistanceKm
		v.NearestLocation = &e.Place
		v.NearestMagnitude = &e.Magnitude
		v.NearestTime = &occurred
		v.NearestLatitude = &e.Coordinate.Lat
		v.NearestLongitude = &e.Coordinate.Lon
		v.NearestDepthKm = &e.DepthKm
		v.DistanceKm = &distance
	}

	v.VerboseMsg = verboseMessage(r)
	return v
}

// verboseMessage renders a one-sentence human summary of the search.
func verboseMessage(r SearchResult) string {
	if r.Nearest == nil || r.DistanceKm == nil {
		return "No results found"
	}
	const day = "January 02 2006"
	return fmt.Sprintf(
		"Result for %s between %s and %s: The closest earthquake to %s was a M %s at %.1f km away, %s, on %s UTC.",
		r.CityName,
		r.Range.Start.Format(day),
		r.Range.End.Format(day),
		r.CityName,
		strconv.FormatFloat(r.Nearest.Magnitude, 'f', -1, 64),
		*r.DistanceKm,
		r.Nearest.Place,
		r.Nearest.OccurredAt.UTC().Format("January 02 2006 at 15:04"),
	)
}

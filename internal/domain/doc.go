// Package domain models earthquake proximity searches against the USGS
// earthquake catalog.
//
// # Data Source
//
// Candidate events come from the USGS FDSN event web service
// (https://earthquake.usgs.gov/fdsnws/event/1/). A query is bounded by a date
// range and a minimum magnitude and returns a GeoJSON FeatureCollection.
//
// # USGS Data Conventions
//
// Coordinates:
//
//	geometry.coordinates = [longitude, latitude, depth]
//	Longitude comes FIRST (GeoJSON order). Depth is in kilometers.
//	Everything inside this package uses Coordinate{Lat, Lon}; the feed
//	adapter is the only place that sees the GeoJSON order.
//
// Properties:
//
//	mag   magnitude (float, may be null for unreviewed events)
//	place human readable description, e.g. "10km SSW of Idyllwild, CA"
//	time  origin time in epoch milliseconds, UTC
//
// City coordinates are stored as NUMERIC(9,6) and converted to float64 when
// scanned. The loss of precision is accepted; six decimal places is ~0.1 m.
//
// # Distance
//
// Great-circle distance uses the haversine formula on a sphere of radius
// 6371 km. See [Distance]. The largest possible value is half the
// circumference, ~20015.09 km.
//
// # Search Identity
//
// A search is identified by its triple (city ID, start date, end date). The
// store keeps at most one row per triple and the cache key is derived from the
// same triple, see [CacheKey].
package domain

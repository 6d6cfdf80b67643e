package domain

import (
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseDateRange(t *testing.T) {
	t.Run("valid range", func(t *testing.T) {
		r, err := ParseDateRange("2021-06-01", "2021-07-05")
		require.NoError(t, err)
		assert.Equal(t, time.Date(2021, 6, 1, 0, 0, 0, 0, time.UTC), r.Start)
		assert.Equal(t, time.Date(2021, 7, 5, 0, 0, 0, 0, time.UTC), r.End)
		assert.Equal(t, "2021-06-01..2021-07-05", r.String())
	})

	t.Run("single day", func(t *testing.T) {
		r, err := ParseDateRange("2021-06-01", "2021-06-01")
		require.NoError(t, err)
		assert.Equal(t, r.Start, r.End)
	})

	t.Run("end before start", func(t *testing.T) {
		_, err := ParseDateRange("2021-07-05", "2021-06-01")
		require.Error(t, err)
		assert.True(t, errors.Is(err, ErrInvalidInput))
	})

	t.Run("malformed start", func(t *testing.T) {
		_, err := ParseDateRange("06/01/2021", "2021-07-05")
		assert.ErrorIs(t, err, ErrInvalidInput)
	})

	t.Run("malformed end", func(t *testing.T) {
		_, err := ParseDateRange("2021-06-01", "2021-13-40")
		assert.ErrorIs(t, err, ErrInvalidInput)
	})
}

func TestNewDateRange_TruncatesToCivilDate(t *testing.T) {
	r, err := NewDateRange(
		time.Date(2021, 6, 1, 23, 59, 0, 0, time.UTC),
		time.Date(2021, 6, 1, 0, 1, 0, 0, time.UTC),
	)
	require.NoError(t, err)
	assert.Equal(t, r.Start, r.End)
}

func TestCacheKey(t *testing.T) {
	r, err := ParseDateRange("2021-06-01", "2021-07-05")
	require.NoError(t, err)
	assert.Equal(t, "earthquake:42:2021-06-01:2021-07-05", CacheKey(42, r))
}

func testResult(t *testing.T) SearchResult {
	t.Helper()
	r, err := ParseDateRange("2021-06-01", "2021-07-05")
	require.NoError(t, err)
	d := 28.7509
	return SearchResult{
		ID:       "res-1",
		CityID:   1,
		CityName: "Los Angeles",
		Range:    r,
		Nearest: &SeismicEvent{
			Coordinate: mockQuake,
			DepthKm:    10,
			Magnitude:  5.7,
			Place:      "Mock Quake",
			OccurredAt: time.UnixMilli(1625053800000).UTC(),
		},
		DistanceKm: &d,
		CreatedAt:  time.Date(2021, 7, 6, 8, 0, 0, 0, time.UTC),
	}
}

func TestNewSearchView_WithNearest(t *testing.T) {
	v := NewSearchView(testResult(t))

	assert.Equal(t, "res-1", v.ID)
	assert.Equal(t, "2021-06-01", v.StartDate)
	assert.Equal(t, "2021-07-05", v.EndDate)
	require.NotNil(t, v.NearestLocation)
	assert.Equal(t, "Mock Quake", *v.NearestLocation)
	require.NotNil(t, v.NearestMagnitude)
	assert.Equal(t, 5.7, *v.NearestMagnitude)
	require.NotNil(t, v.NearestTime)
	assert.Equal(t, time.Date(2021, 6, 30, 11, 50, 0, 0, time.UTC), *v.NearestTime)
	require.NotNil(t, v.NearestLatitude)
	assert.Equal(t, 34.2, *v.NearestLatitude)
	assert.Equal(t, -118.5, *v.NearestLongitude)
	assert.Equal(t,
		"Result for Los Angeles between June 01 2021 and July 05 2021: The closest earthquake to Los Angeles was a M 5.7 at 28.8 km away, Mock Quake, on June 30 2021 at 11:50 UTC.",
		v.VerboseMsg)
}

func TestNewSearchView_Empty(t *testing.T) {
	r := testResult(t)
	r.Nearest = nil
	r.DistanceKm = nil

	v := NewSearchView(r)
	assert.Nil(t, v.NearestLocation)
	assert.Nil(t, v.NearestMagnitude)
	assert.Nil(t, v.NearestTime)
	assert.Nil(t, v.DistanceKm)
	assert.Equal(t, "No results found", v.VerboseMsg)

	data, err := json.Marshal(v)
	require.NoError(t, err)
	assert.Contains(t, string(data), `"distance_km":null`)
	assert.Contains(t, string(data), `"nearest_earthquake_location":null`)
	assert.NotContains(t, string(data), "nearest_earthquake_depth_km")
}

func TestNow_UsesClock(t *testing.T) {
	fake := clockwork.NewFakeClockAt(time.Date(2024, time.April, 27, 6, 0, 0, 0, time.UTC))
	SetClock(fake)
	t.Cleanup(func() { SetClock(nil) })

	assert.Equal(t, time.Date(2024, time.April, 27, 6, 0, 0, 0, time.UTC), Now())
	fake.Advance(time.Hour)
	assert.Equal(t, time.Date(2024, time.April, 27, 7, 0, 0, 0, time.UTC), Now())
}

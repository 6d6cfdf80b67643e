package usgs

import (
	"context"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/couchcryptid/quake-search-service/internal/domain"
	"github.com/couchcryptid/quake-search-service/internal/observability"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const (
	contentTypeJSON   = "application/geo+json"
	headerContentType = "Content-Type"
)

const mockQuakeBody = `{
  "type": "FeatureCollection",
  "metadata": {"generated": 1625443200000, "count": 1, "status": 200},
  "bbox": [-118.5, 34.2, 10, -118.5, 34.2, 10],
  "features": [
    {
      "type": "Feature",
      "id": "ci39980000",
      "properties": {"mag": 5.7, "place": "Mock Quake", "time": 1625053800000, "type": "earthquake"},
      "geometry": {"type": "Point", "coordinates": [-118.5, 34.2, 10]}
    }
  ]
}`

func testClient(baseURL string) *Client {
	return &Client{
		httpClient: &http.Client{Timeout: 5 * time.Second},
		baseURL:    baseURL,
		metrics:    observability.NewMetricsForTesting(),
		logger:     slog.New(slog.NewTextHandler(io.Discard, nil)),
	}
}

func testQuery(t *testing.T) domain.FeedQuery {
	t.Helper()
	r, err := domain.ParseDateRange("2021-06-01", "2021-07-05")
	require.NoError(t, err)
	return domain.FeedQuery{Range: r}
}

func serve(t *testing.T, status int, body string) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set(headerContentType, contentTypeJSON)
		w.WriteHeader(status)
		_, _ = io.WriteString(w, body)
	}))
	t.Cleanup(srv.Close)
	return srv
}

func TestClient_Query_Success(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/query", r.URL.Path)
		q := r.URL.Query()
		assert.Equal(t, "geojson", q.Get("format"))
		assert.Equal(t, "2021-06-01", q.Get("starttime"))
		assert.Equal(t, "2021-07-05", q.Get("endtime"))
		assert.Equal(t, "5", q.Get("minmagnitude"))
		assert.Equal(t, "time", q.Get("orderby"))

		w.Header().Set(headerContentType, contentTypeJSON)
		_, _ = io.WriteString(w, mockQuakeBody)
	}))
	defer srv.Close()

	c := testClient(srv.URL)
	events, err := c.Query(context.Background(), testQuery(t))
	require.NoError(t, err)
	require.Len(t, events, 1)

	ev := events[0]
	assert.Equal(t, "ci39980000", ev.ID)
	assert.Equal(t, 5.7, ev.Magnitude)
	assert.Equal(t, "Mock Quake", ev.Place)
	assert.Equal(t, 10.0, ev.DepthKm)
	assert.Equal(t, time.Date(2021, 6, 30, 11, 50, 0, 0, time.UTC), ev.OccurredAt)
	assert.InDelta(t, 1.0, testutil.ToFloat64(c.metrics.FeedRequests.WithLabelValues("success")), 0)
}

// The feed's first coordinate is longitude. Swapping the axes would place
// this event off the coast of Antarctica and fail validation.
func TestClient_Query_CoordinateOrder(t *testing.T) {
	srv := serve(t, http.StatusOK, mockQuakeBody)

	events, err := testClient(srv.URL).Query(context.Background(), testQuery(t))
	require.NoError(t, err)
	require.Len(t, events, 1)
	assert.Equal(t, 34.2, events[0].Coordinate.Lat)
	assert.Equal(t, -118.5, events[0].Coordinate.Lon)

	la := domain.Coordinate{Lat: 34.052235, Lon: -118.243683}
	assert.InDelta(t, 28.7509, domain.Distance(la, events[0].Coordinate), 0.001)
}

func TestClient_Query_CustomParams(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "4.5", r.URL.Query().Get("minmagnitude"))
		assert.Equal(t, "magnitude", r.URL.Query().Get("orderby"))
		_, _ = io.WriteString(w, `{"type":"FeatureCollection","features":[]}`)
	}))
	defer srv.Close()

	q := testQuery(t)
	q.MinMagnitude = 4.5
	q.OrderBy = "magnitude"
	_, err := testClient(srv.URL).Query(context.Background(), q)
	require.NoError(t, err)
}

func TestClient_Query_EmptyCollection(t *testing.T) {
	srv := serve(t, http.StatusOK, `{"type":"FeatureCollection","metadata":{"count":0},"features":[]}`)

	c := testClient(srv.URL)
	events, err := c.Query(context.Background(), testQuery(t))
	require.NoError(t, err)
	assert.Empty(t, events)
	assert.InDelta(t, 1.0, testutil.ToFloat64(c.metrics.FeedRequests.WithLabelValues("empty")), 0)
}

func TestClient_Query_Non200(t *testing.T) {
	srv := serve(t, http.StatusServiceUnavailable, "service unavailable")

	c := testClient(srv.URL)
	_, err := c.Query(context.Background(), testQuery(t))
	require.Error(t, err)
	assert.ErrorIs(t, err, domain.ErrUpstreamUnavailable)
	assert.Contains(t, err.Error(), "503")
	assert.NotErrorIs(t, err, ErrFeedParse)
	assert.InDelta(t, 1.0, testutil.ToFloat64(c.metrics.FeedRequests.WithLabelValues("error")), 0)
}

func TestClient_Query_MalformedJSON(t *testing.T) {
	srv := serve(t, http.StatusOK, `{"features": [`)

	_, err := testClient(srv.URL).Query(context.Background(), testQuery(t))
	assert.ErrorIs(t, err, domain.ErrUpstreamUnavailable)
	assert.ErrorIs(t, err, ErrFeedParse)
}

func TestClient_Query_BadFeatures(t *testing.T) {
	tests := []struct {
		name    string
		feature string
	}{
		{
			name:    "non-point geometry",
			feature: `{"type":"Feature","id":"x","properties":{"mag":5,"time":1},"geometry":{"type":"LineString","coordinates":[[0,0],[1,1]]}}`,
		},
		{
			name:    "missing time",
			feature: `{"type":"Feature","id":"x","properties":{"mag":5},"geometry":{"type":"Point","coordinates":[0,0,5]}}`,
		},
		{
			name:    "latitude out of range",
			feature: `{"type":"Feature","id":"x","properties":{"mag":5,"time":1},"geometry":{"type":"Point","coordinates":[0,95,5]}}`,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			srv := serve(t, http.StatusOK, `{"type":"FeatureCollection","features":[`+tt.feature+`]}`)

			_, err := testClient(srv.URL).Query(context.Background(), testQuery(t))
			require.Error(t, err)
			assert.ErrorIs(t, err, domain.ErrUpstreamUnavailable)
			assert.ErrorIs(t, err, ErrFeedParse)
		})
	}
}

func TestClient_Query_SkipsFeaturesWithoutMagnitude(t *testing.T) {
	body := `{"type":"FeatureCollection","features":[
		{"type":"Feature","id":"unreviewed","properties":{"mag":null,"time":1},"geometry":{"type":"Point","coordinates":[0,0,5]}},
		{"type":"Feature","id":"nomag","properties":{"time":1},"geometry":{"type":"Point","coordinates":[1,1,5]}},
		{"type":"Feature","id":"ci39980000","properties":{"mag":5.7,"place":"Mock Quake","time":1625053800000},"geometry":{"type":"Point","coordinates":[-118.5,34.2,10]}}
	]}`
	srv := serve(t, http.StatusOK, body)
	c := testClient(srv.URL)

	events, err := c.Query(context.Background(), testQuery(t))
	require.NoError(t, err)
	require.Len(t, events, 1)
	assert.Equal(t, "ci39980000", events[0].ID)
	assert.InDelta(t, 2.0, testutil.ToFloat64(c.metrics.SkippedFeatures), 0)
	assert.InDelta(t, 1.0, testutil.ToFloat64(c.metrics.FeedRequests.WithLabelValues("success")), 0)
}

func TestClient_Query_OnlyFeaturesWithoutMagnitude(t *testing.T) {
	srv := serve(t, http.StatusOK, `{"type":"FeatureCollection","features":[
		{"type":"Feature","id":"x","properties":{"mag":null,"time":1},"geometry":{"type":"Point","coordinates":[0,0,5]}}
	]}`)
	c := testClient(srv.URL)

	events, err := c.Query(context.Background(), testQuery(t))
	require.NoError(t, err)
	assert.Empty(t, events)
	assert.InDelta(t, 1.0, testutil.ToFloat64(c.metrics.FeedRequests.WithLabelValues("empty")), 0)
}

func TestClient_Query_Timeout(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		time.Sleep(200 * time.Millisecond)
		_, _ = io.WriteString(w, `{"type":"FeatureCollection","features":[]}`)
	}))
	defer srv.Close()

	c := testClient(srv.URL)
	c.httpClient.Timeout = 20 * time.Millisecond

	_, err := c.Query(context.Background(), testQuery(t))
	require.Error(t, err)
	assert.ErrorIs(t, err, domain.ErrUpstreamUnavailable)
}

func TestClient_Query_ContextCanceled(t *testing.T) {
	srv := serve(t, http.StatusOK, mockQuakeBody)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := testClient(srv.URL).Query(ctx, testQuery(t))
	assert.ErrorIs(t, err, domain.ErrUpstreamUnavailable)
}

func TestClient_Query_SingleRequest(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		calls.Add(1)
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer srv.Close()

	_, err := testClient(srv.URL).Query(context.Background(), testQuery(t))
	require.Error(t, err)
	assert.Equal(t, int32(1), calls.Load())
}

func TestNewClient_Defaults(t *testing.T) {
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	m := observability.NewMetricsForTesting()

	c := NewClient("", time.Second, 0, m, logger)
	assert.Equal(t, DefaultBaseURL, c.baseURL)
	assert.Nil(t, c.limiter)

	c = NewClient("http://localhost:9999/fdsnws/event/1/", time.Second, 5, m, logger)
	assert.Equal(t, "http://localhost:9999/fdsnws/event/1", c.baseURL)
	require.NotNil(t, c.limiter)
	assert.InDelta(t, 5.0, float64(c.limiter.Limit()), 0)
}

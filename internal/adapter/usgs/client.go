package usgs

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/couchcryptid/quake-search-service/internal/domain"
	"github.com/couchcryptid/quake-search-service/internal/observability"
	"github.com/rotisserie/eris"
	"github.com/twpayne/go-geom"
	"github.com/twpayne/go-geom/encoding/geojson"
	"golang.org/x/time/rate"
)

// DefaultBaseURL is the FDSN event web service root.
const DefaultBaseURL = "https://earthquake.usgs.gov/fdsnws/event/1"

// maxErrorBody caps how much of a non-200 body is echoed into the error.
const maxErrorBody = 512

// ErrFeedParse marks a response body that could not be mapped onto
// seismic events. It is always reported alongside domain.ErrUpstreamUnavailable.
var ErrFeedParse = errors.New("malformed feed response")

// errNoMagnitude marks an unreviewed event whose magnitude is still null.
var errNoMagnitude = errors.New("missing magnitude")

// Client implements domain.Feed against the USGS FDSN event query endpoint.
type Client struct {
	httpClient *http.Client
	baseURL    string
	limiter    *rate.Limiter
	metrics    *observability.Metrics
	logger     *slog.Logger
}

// NewClient creates a USGS feed client. A ratePerSecond of zero or less
// disables client-side throttling.
func NewClient(baseURL string, timeout time.Duration, ratePerSecond float64, metrics *observability.Metrics, logger *slog.Logger) *Client {
	if baseURL == "" {
		baseURL = DefaultBaseURL
	}
	var limiter *rate.Limiter
	if ratePerSecond > 0 {
		limiter = rate.NewLimiter(rate.Limit(ratePerSecond), 1)
	}
	return &Client{
		httpClient: &http.Client{
			Timeout: timeout,
		},
		baseURL: strings.TrimRight(baseURL, "/"),
		limiter: limiter,
		metrics: metrics,
		logger:  logger,
	}
}

// Query fetches every event in the range at or above the minimum magnitude.
func (c *Client) Query(ctx context.Context, q domain.FeedQuery) ([]domain.SeismicEvent, error) {
	if q.MinMagnitude == 0 {
		q.MinMagnitude = domain.DefaultMinMagnitude
	}
	if q.OrderBy == "" {
		q.OrderBy = domain.DefaultOrderBy
	}

	if c.limiter != nil {
		if err := c.limiter.Wait(ctx); err != nil {
			c.metrics.FeedRequests.WithLabelValues("error").Inc()
			return nil, upstream(err, "usgs: rate limit wait")
		}
	}

	params := url.Values{
		"format":       {"geojson"},
		"starttime":    {q.Range.Start.Format(domain.DateLayout)},
		"endtime":      {q.Range.End.Format(domain.DateLayout)},
		"minmagnitude": {strconv.FormatFloat(q.MinMagnitude, 'f', -1, 64)},
		"orderby":      {q.OrderBy},
	}

	start := time.Now()
	events, err := c.doRequest(ctx, c.baseURL+"/query?"+params.Encode())
	c.metrics.FeedAPIDuration.Observe(time.Since(start).Seconds())

	switch {
	case err != nil:
		c.metrics.FeedRequests.WithLabelValues("error").Inc()
		c.logger.Warn("usgs query failed", "range", q.Range.String(), "error", err)
		return nil, err
	case len(events) == 0:
		c.metrics.FeedRequests.WithLabelValues("empty").Inc()
	default:
		c.metrics.FeedRequests.WithLabelValues("success").Inc()
	}

	c.logger.Debug("usgs query complete", "range", q.Range.String(), "events", len(events))
	return events, nil
}

func (c *Client) doRequest(ctx context.Context, fullURL string) ([]domain.SeismicEvent, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, fullURL, nil)
	if err != nil {
		return nil, upstream(err, "usgs: create request")
	}
	req.Header.Set("Accept", "application/geo+json, application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, upstream(err, "usgs: query request")
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
		return nil, fmt.Errorf("%w: usgs API error: status %d: %s",
			domain.ErrUpstreamUnavailable, resp.StatusCode, strings.TrimSpace(string(body)))
	}

	var coll collection
	if err := json.NewDecoder(resp.Body).Decode(&coll); err != nil {
		return nil, malformed(err, "usgs: decode response")
	}

	events := make([]domain.SeismicEvent, 0, len(coll.Features))
	for i, raw := range coll.Features {
		ev, err := parseFeature(raw)
		if errors.Is(err, errNoMagnitude) {
			c.metrics.SkippedFeatures.Inc()
			c.logger.Warn("skipping feed feature without magnitude", "index", i, "id", ev.ID)
			continue
		}
		if err != nil {
			return nil, malformed(err, fmt.Sprintf("usgs: feature %d", i))
		}
		events = append(events, ev)
	}
	return events, nil
}

// parseFeature maps one GeoJSON feature onto a SeismicEvent. USGS encodes
// point coordinates as [longitude, latitude, depth_km].
func parseFeature(raw json.RawMessage) (domain.SeismicEvent, error) {
	var f geojson.Feature
	if err := json.Unmarshal(raw, &f); err != nil {
		return domain.SeismicEvent{}, eris.Wrap(err, "decode feature")
	}

	pt, ok := f.Geometry.(*geom.Point)
	if !ok || pt == nil {
		return domain.SeismicEvent{}, eris.Errorf("geometry %T is not a point", f.Geometry)
	}

	mag, ok := f.Properties["mag"].(float64)
	if !ok {
		return domain.SeismicEvent{ID: f.ID}, errNoMagnitude
	}
	ms, ok := f.Properties["time"].(float64)
	if !ok {
		return domain.SeismicEvent{}, eris.New("missing origin time")
	}
	place, _ := f.Properties["place"].(string)

	ev := domain.SeismicEvent{
		ID:         f.ID,
		Coordinate: domain.Coordinate{Lat: pt.Y(), Lon: pt.X()},
		Magnitude:  mag,
		Place:      place,
		DepthKm:    pt.Z(),
		OccurredAt: time.UnixMilli(int64(ms)).UTC(),
	}
	if !ev.Coordinate.Valid() {
		return domain.SeismicEvent{}, eris.Errorf("coordinate out of range: lat=%v lon=%v", pt.Y(), pt.X())
	}
	return ev, nil
}

func upstream(err error, msg string) error {
	return fmt.Errorf("%w: %w", domain.ErrUpstreamUnavailable, eris.Wrap(err, msg))
}

func malformed(err error, msg string) error {
	return fmt.Errorf("%w: %w: %w", domain.ErrUpstreamUnavailable, ErrFeedParse, eris.Wrap(err, msg))
}

// collection is the subset of the FDSN GeoJSON envelope the client reads.
// Features are decoded one at a time so a 3D bbox on the collection never
// reaches the geometry decoder.
type collection struct {
	Type     string            `json:"type"`
	Features []json.RawMessage `json:"features"`
}

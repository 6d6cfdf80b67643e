// Package search resolves a (city, date range) request into the nearest
// earthquake result, consulting the cache, the store, and the feed in turn.
package search

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strconv"
	"strings"
	"time"

	"github.com/couchcryptid/quake-search-service/internal/domain"
	"github.com/couchcryptid/quake-search-service/internal/observability"
)

// DefaultCacheTTL is how long a resolved view stays in the result cache.
const DefaultCacheTTL = time.Hour

// Source records which tier answered a resolution.
type Source string

const (
	SourceCache    Source = "cache_hit"
	SourceStore    Source = "store_hit"
	SourceConflict Source = "conflict"
	SourceCreated  Source = "created"
)

// SearchRequest is the raw caller input. Fields are validated by Resolve.
type SearchRequest struct {
	CityID string
	Start  string
	End    string
}

// Outcome is a resolved search and where it came from.
type Outcome struct {
	View   domain.SearchView
	Source Source
}

// Created reports whether this call computed and persisted a new result.
func (o Outcome) Created() bool {
	return o.Source == SourceCreated
}

// Publisher announces freshly created results to downstream consumers.
type Publisher interface {
	Publish(ctx context.Context, view domain.SearchView) error
}

// Options tunes a Service. Zero values fall back to defaults.
type Options struct {
	CacheTTL     time.Duration
	MinMagnitude float64
	Publisher    Publisher
}

// Service orchestrates a single search resolution.
type Service struct {
	store        domain.ResultStore
	feed         domain.Feed
	cache        domain.ResultCache
	publisher    Publisher
	logger       *slog.Logger
	metrics      *observability.Metrics
	cacheTTL     time.Duration
	minMagnitude float64
}

// New creates a Service over the given store, feed, and cache.
func New(store domain.ResultStore, feed domain.Feed, cache domain.ResultCache, logger *slog.Logger, metrics *observability.Metrics, opts Options) *Service {
	if opts.CacheTTL <= 0 {
		opts.CacheTTL = DefaultCacheTTL
	}
	if opts.MinMagnitude <= 0 {
		opts.MinMagnitude = domain.DefaultMinMagnitude
	}
	return &Service{
		store:        store,
		feed:         feed,
		cache:        cache,
		publisher:    opts.Publisher,
		logger:       logger,
		metrics:      metrics,
		cacheTTL:     opts.CacheTTL,
		minMagnitude: opts.MinMagnitude,
	}
}

// CheckReadiness returns nil once the backing store answers a ping.
func (s *Service) CheckReadiness(ctx context.Context) error {
	if err := s.store.Ping(ctx); err != nil {
		return fmt.Errorf("store unavailable: %w", err)
	}
	return nil
}

// Resolve returns the search result for req, computing and persisting it on
// first request. Returned errors match exactly one of ErrInvalidInput,
// ErrNotFound, ErrUpstreamUnavailable, or ErrStorage.
func (s *Service) Resolve(ctx context.Context, req SearchRequest) (Outcome, error) {
	start := time.Now()
	out, err := s.resolve(ctx, req)
	s.metrics.ResolveDuration.Observe(time.Since(start).Seconds())

	if err != nil {
		s.metrics.Resolutions.WithLabelValues("error").Inc()
		s.logger.Warn("search failed",
			"city_id", req.CityID, "start", req.Start, "end", req.End, "error", err)
		return Outcome{}, err
	}

	s.metrics.Resolutions.WithLabelValues(string(out.Source)).Inc()
	s.logger.Info("search resolved",
		"id", out.View.ID, "city_id", out.View.CityID,
		"start", out.View.StartDate, "end", out.View.EndDate, "source", out.Source)
	return out, nil
}

func (s *Service) resolve(ctx context.Context, req SearchRequest) (Outcome, error) {
	cityID, err := parseRequest(req)
	if err != nil {
		return Outcome{}, err
	}

	city, err := s.store.FindCity(ctx, cityID)
	if err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			return Outcome{}, err
		}
		return Outcome{}, asStorage(err, "find city")
	}

	r, err := domain.ParseDateRange(req.Start, req.End)
	if err != nil {
		return Outcome{}, err
	}
	key := domain.CacheKey(city.ID, r)

	if view, ok := s.readCache(ctx, key); ok {
		return Outcome{View: view, Source: SourceCache}, nil
	}

	existing, ok, err := s.store.FindSearch(ctx, city.ID, r)
	if err != nil {
		return Outcome{}, asStorage(err, "find search")
	}
	if ok {
		return s.finish(ctx, key, existing, SourceStore), nil
	}

	events, err := s.feed.Query(ctx, domain.FeedQuery{
		Range:        r,
		MinMagnitude: s.minMagnitude,
		OrderBy:      domain.DefaultOrderBy,
	})
	if err != nil {
		if errors.Is(err, domain.ErrUpstreamUnavailable) {
			return Outcome{}, err
		}
		return Outcome{}, fmt.Errorf("%w: %w", domain.ErrUpstreamUnavailable, err)
	}
	s.metrics.CandidatesPerFeed.Observe(float64(len(events)))

	result := domain.SearchResult{CityID: city.ID, CityName: city.Name, Range: r}
	if nearest, distance, found := domain.SelectNearest(city.Coordinate, events); found {
		result.Nearest = &nearest
		result.DistanceKm = &distance
	}

	created, err := s.store.CreateSearch(ctx, result)
	switch {
	case errors.Is(err, domain.ErrConflict):
		// A concurrent request persisted the same triple first.
		winner, ok, ferr := s.store.FindSearch(ctx, city.ID, r)
		if ferr != nil {
			return Outcome{}, asStorage(ferr, "re-read after conflict")
		}
		if !ok {
			return Outcome{}, fmt.Errorf("%w: conflict on %s but no stored row", domain.ErrStorage, key)
		}
		return s.finish(ctx, key, winner, SourceConflict), nil
	case err != nil:
		return Outcome{}, asStorage(err, "create search")
	}

	out := s.finish(ctx, key, created, SourceCreated)
	s.publish(ctx, out.View)
	return out, nil
}

// finish projects res, writes it through to the cache, and wraps it.
func (s *Service) finish(ctx context.Context, key string, res domain.SearchResult, src Source) Outcome {
	view := domain.NewSearchView(res)
	s.writeCache(ctx, key, view)
	return Outcome{View: view, Source: src}
}

func (s *Service) readCache(ctx context.Context, key string) (domain.SearchView, bool) {
	data, ok, err := s.cache.Get(ctx, key)
	if err != nil {
		s.metrics.CacheLookups.WithLabelValues("error").Inc()
		s.logger.Warn("cache read failed, falling through", "key", key, "error", err)
		return domain.SearchView{}, false
	}
	if !ok {
		s.metrics.CacheLookups.WithLabelValues("miss").Inc()
		return domain.SearchView{}, false
	}

	var view domain.SearchView
	if err := json.Unmarshal(data, &view); err != nil {
		s.metrics.CacheLookups.WithLabelValues("error").Inc()
		s.logger.Warn("cached view unreadable, falling through", "key", key, "error", err)
		return domain.SearchView{}, false
	}
	s.metrics.CacheLookups.WithLabelValues("hit").Inc()
	return view, true
}

func (s *Service) writeCache(ctx context.Context, key string, view domain.SearchView) {
	data, err := json.Marshal(view)
	if err != nil {
		s.logger.Warn("encode view for cache failed", "key", key, "error", err)
		return
	}
	if err := s.cache.Set(ctx, key, data, s.cacheTTL); err != nil {
		s.logger.Warn("cache write failed", "key", key, "error", err)
	}
}

func (s *Service) publish(ctx context.Context, view domain.SearchView) {
	if s.publisher == nil {
		return
	}
	if err := s.publisher.Publish(ctx, view); err != nil {
		s.metrics.PublishErrors.Inc()
		s.logger.Warn("publish search result failed", "id", view.ID, "error", err)
	}
}

func parseRequest(req SearchRequest) (int64, error) {
	var missing []string
	if strings.TrimSpace(req.CityID) == "" {
		missing = append(missing, "city")
	}
	if strings.TrimSpace(req.Start) == "" {
		missing = append(missing, "start")
	}
	if strings.TrimSpace(req.End) == "" {
		missing = append(missing, "end")
	}
	if len(missing) > 0 {
		return 0, fmt.Errorf("%w: missing required fields: %s", domain.ErrInvalidInput, strings.Join(missing, ", "))
	}

	id, err := strconv.ParseInt(strings.TrimSpace(req.CityID), 10, 64)
	if err != nil || id <= 0 {
		return 0, fmt.Errorf("%w: city id %q is not a positive integer", domain.ErrInvalidInput, req.CityID)
	}
	return id, nil
}

func asStorage(err error, op string) error {
	if errors.Is(err, domain.ErrStorage) {
		return err
	}
	return fmt.Errorf("%w: %s: %w", domain.ErrStorage, op, err)
}

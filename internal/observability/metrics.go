package observability

import (
	"github.com/prometheus/client_golang/prometheus"
)

const namespace = "quake_search"

// Metrics holds the Prometheus counters and histograms for the search service.
type Metrics struct {
	// Search resolution metrics.
	Resolutions       *prometheus.CounterVec // labels: outcome={cache_hit,store_hit,created,conflict,error}
	ResolveDuration   prometheus.Histogram
	CandidatesPerFeed prometheus.Histogram

	// Result cache metrics.
	CacheLookups *prometheus.CounterVec // labels: result={hit,miss,error}

	// USGS feed metrics.
	FeedRequests    *prometheus.CounterVec // labels: outcome={success,empty,error}
	FeedAPIDuration prometheus.Histogram
	SkippedFeatures prometheus.Counter

	// Result publishing metrics.
	PublishErrors prometheus.Counter
}

func newMetrics() *Metrics {
	return &Metrics{
		Resolutions: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "resolutions_total",
			Help:      "Search resolutions by outcome.",
		}, []string{"outcome"}),
		ResolveDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "resolve_duration_seconds",
			Help:      "End-to-end duration of a search resolution.",
			Buckets:   []float64{0.001, 0.005, 0.01, 0.05, 0.1, 0.5, 1, 2.5, 5, 10},
		}),
		CandidatesPerFeed: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "feed_candidates",
			Help:      "Number of candidate events returned per feed query.",
			Buckets:   []float64{0, 1, 10, 50, 100, 250, 500, 1000, 5000},
		}),
		CacheLookups: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "cache_lookups_total",
			Help:      "Result cache lookups by result.",
		}, []string{"result"}),
		FeedRequests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "feed_requests_total",
			Help:      "USGS feed requests by outcome.",
		}, []string{"outcome"}),
		FeedAPIDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "feed_api_duration_seconds",
			Help:      "USGS feed request duration in seconds.",
			Buckets:   []float64{0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10},
		}),
		SkippedFeatures: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "feed_features_skipped_total",
			Help:      "Feed features dropped because they carry no magnitude.",
		}),
		PublishErrors: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "publish_errors_total",
			Help:      "Search results that could not be published to Kafka.",
		}),
	}
}

// NewMetrics creates and registers all service metrics with the default Prometheus registry.
func NewMetrics() *Metrics {
	m := newMetrics()
	prometheus.MustRegister(
		m.Resolutions,
		m.ResolveDuration,
		m.CandidatesPerFeed,
		m.CacheLookups,
		m.FeedRequests,
		m.FeedAPIDuration,
		m.PublishErrors,
	)
	return m
}

// NewMetricsForTesting creates Metrics without registering them to avoid
// "already registered" panics when called from multiple tests.
func NewMetricsForTesting() *Metrics {
	return newMetrics()
}

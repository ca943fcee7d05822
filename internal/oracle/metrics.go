package oracle

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// MarketsFetchedTotal tracks market records returned by the Gamma API.
	MarketsFetchedTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "whalesim_oracle_markets_fetched_total",
		Help: "Total number of market records returned by the Gamma API",
	})

	// ResolvedMarketsTotal tracks markets observed as resolved.
	ResolvedMarketsTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "whalesim_oracle_resolved_markets_total",
		Help: "Total number of markets observed as resolved",
	})

	// BatchErrorsTotal tracks failed batch requests.
	BatchErrorsTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "whalesim_oracle_batch_errors_total",
		Help: "Total number of failed Gamma API batch requests",
	})

	// RequestDurationSeconds tracks Gamma API request latency.
	RequestDurationSeconds = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "whalesim_oracle_request_duration_seconds",
		Help:    "Duration of Gamma API batch requests",
		Buckets: prometheus.DefBuckets,
	})

	// StatusCacheHitsTotal tracks market status cache hits.
	StatusCacheHitsTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "whalesim_oracle_status_cache_hits_total",
		Help: "Total number of market status cache hits",
	})

	// StatusCacheMissesTotal tracks market status cache misses.
	StatusCacheMissesTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "whalesim_oracle_status_cache_misses_total",
		Help: "Total number of market status cache misses",
	})
)

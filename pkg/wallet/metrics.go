package wallet

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

//nolint:gochecknoglobals // Prometheus metrics
var (
	// PositionsFetchedTotal tracks holdings returned by the Data API.
	PositionsFetchedTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "whalesim_wallet_positions_fetched_total",
		Help: "Total number of non-empty holdings returned by the Data API",
	})

	// RequestErrorsTotal tracks failed Data API requests.
	RequestErrorsTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "whalesim_wallet_request_errors_total",
		Help: "Total number of failed Data API requests",
	})

	// RequestDurationSeconds tracks Data API latency.
	RequestDurationSeconds = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "whalesim_wallet_request_duration_seconds",
		Help:    "Duration of Data API requests",
		Buckets: prometheus.DefBuckets,
	})
)

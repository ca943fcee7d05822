package ingestion

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Frame handling results.
const (
	resultRecorded     = "recorded"
	resultIgnored      = "ignored"
	resultNotWhale     = "not_whale"
	resultMalformed    = "malformed"
	resultInvalidPrice = "invalid_price"
	resultMarketClosed = "market_closed"
	resultStoreError   = "store_error"
)

var (
	// FramesHandledTotal tracks feed frames by handling result.
	FramesHandledTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "whalesim_ingest_frames_handled_total",
			Help: "Total number of feed frames handled, by result",
		},
		[]string{"result"},
	)

	// WhaleMatchesTotal tracks matched trades by the role the whale played.
	WhaleMatchesTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "whalesim_ingest_whale_matches_total",
			Help: "Total number of trades matched to a tracked whale",
		},
		[]string{"role"},
	)

	// StatusFailOpenTotal tracks status lookups that failed and were treated as open.
	StatusFailOpenTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "whalesim_ingest_status_fail_open_total",
		Help: "Total number of market status lookups that failed during ingestion",
	})

	// HandleDurationSeconds tracks per-frame handling latency.
	HandleDurationSeconds = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "whalesim_ingest_handle_duration_seconds",
		Help:    "Time to handle a single feed frame",
		Buckets: []float64{0.0001, 0.001, 0.01, 0.05, 0.1, 0.5, 1, 5},
	})

	// ActiveWorkers tracks running frame workers.
	ActiveWorkers = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "whalesim_ingest_active_workers",
		Help: "Number of running ingestion workers",
	})
)

package websocket

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// ActiveConnections tracks the open feed connection.
	ActiveConnections = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "whalesim_ws_active_connections",
		Help: "Number of active feed connections",
	})

	// ReconnectAttemptsTotal tracks reconnection attempts.
	ReconnectAttemptsTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "whalesim_ws_reconnect_attempts_total",
		Help: "Total number of feed reconnection attempts",
	})

	// ReconnectFailuresTotal tracks reconnection failures.
	ReconnectFailuresTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "whalesim_ws_reconnect_failures_total",
		Help: "Total number of feed reconnection failures",
	})

	// CurrentBackoffSeconds exposes the delay chosen for the latest attempt.
	CurrentBackoffSeconds = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "whalesim_ws_current_backoff_seconds",
		Help: "Backoff delay used for the most recent reconnection attempt",
	})

	// MessagesReceivedTotal tracks frames received by topic.
	MessagesReceivedTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "whalesim_ws_messages_received_total",
			Help: "Total number of feed frames received",
		},
		[]string{"topic"},
	)

	// MalformedFramesTotal tracks frames that could not be decoded.
	MalformedFramesTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "whalesim_ws_malformed_frames_total",
		Help: "Total number of feed frames that could not be decoded",
	})

	// MessagesDroppedTotal tracks frames dropped from the bounded queue.
	MessagesDroppedTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "whalesim_ws_messages_dropped_total",
			Help: "Total number of feed frames dropped",
		},
		[]string{"reason"},
	)

	// QueueDepth tracks frames waiting for a worker.
	QueueDepth = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "whalesim_ws_queue_depth",
		Help: "Number of feed frames waiting to be processed",
	})

	// ConnectionDuration tracks feed connection lifetime.
	ConnectionDuration = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "whalesim_ws_connection_duration_seconds",
		Help:    "Duration of feed connections before disconnect",
		Buckets: []float64{1, 10, 30, 60, 300, 600, 1800, 3600, 7200, 14400, 43200, 86400},
	})
)

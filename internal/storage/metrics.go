package storage

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// PositionsInsertedTotal tracks positions written to the store.
	PositionsInsertedTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "whalesim_storage_positions_inserted_total",
		Help: "Total number of simulated positions inserted",
	})

	// StorageErrorsTotal tracks failed storage operations by operation.
	StorageErrorsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "whalesim_storage_errors_total",
		Help: "Total number of failed storage operations",
	}, []string{"operation"})

	// OperationDurationSeconds tracks storage latency by operation.
	OperationDurationSeconds = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "whalesim_storage_operation_duration_seconds",
		Help:    "Duration of storage operations",
		Buckets: prometheus.DefBuckets,
	}, []string{"operation"})
)

func observe(op string, start time.Time) {
	OperationDurationSeconds.WithLabelValues(op).Observe(time.Since(start).Seconds())
}

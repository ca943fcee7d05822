package backfill

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// PositionsBackfilledTotal tracks positions seeded from current holdings.
	PositionsBackfilledTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "whalesim_backfill_positions_total",
		Help: "Total number of positions seeded from whale holdings",
	})

	// WhaleFailuresTotal tracks whales whose holdings could not be backfilled.
	WhaleFailuresTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "whalesim_backfill_whale_failures_total",
		Help: "Total number of whales that failed to backfill",
	})
)

package settlement

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// RunsTotal tracks reconciliation runs by result.
	RunsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "whalesim_settlement_runs_total",
			Help: "Total number of reconciliation runs",
		},
		[]string{"result"},
	)

	// RunDurationSeconds tracks reconciliation run latency.
	RunDurationSeconds = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "whalesim_settlement_run_duration_seconds",
		Help:    "Duration of a full reconciliation run",
		Buckets: []float64{0.1, 0.5, 1, 5, 10, 30, 60, 300},
	})

	// PositionsSettledTotal tracks positions moved to a terminal state, by status.
	PositionsSettledTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "whalesim_settlement_positions_settled_total",
			Help: "Total number of positions settled",
		},
		[]string{"status"},
	)

	// SettleErrorsTotal tracks failed per-position settlements.
	SettleErrorsTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "whalesim_settlement_settle_errors_total",
		Help: "Total number of position settlement failures",
	})

	// RejectedResolutionsTotal tracks resolved markets whose data failed validation.
	RejectedResolutionsTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "whalesim_settlement_rejected_resolutions_total",
		Help: "Total number of resolved markets rejected for inconsistent outcome data",
	})

	// OpenPositions tracks open positions seen at the start of the latest run.
	OpenPositions = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "whalesim_settlement_open_positions",
		Help: "Open positions at the start of the latest reconciliation run",
	})

	// CumulativePnL tracks the latest ledger value.
	CumulativePnL = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "whalesim_settlement_cumulative_pnl",
		Help: "Latest cumulative realized PnL",
	})
)

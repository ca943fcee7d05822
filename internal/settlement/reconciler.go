// Package settlement settles open positions whose markets have resolved and maintains the
// cumulative PnL ledger.
package settlement

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/mselser95/polymarket-whalesim/pkg/types"
)

// DefaultInterval is the reconciliation period when none is configured.
const DefaultInterval = time.Hour

// ResolutionSource looks up market resolutions in batches.
type ResolutionSource interface {
	GetResolutions(ctx context.Context, marketIDs []string) (map[string]types.Resolution, error)
}

// Store is the subset of the position store used by reconciliation.
type Store interface {
	OpenPositions(ctx context.Context) ([]types.Position, error)
	SettlePosition(ctx context.Context, s types.Settlement) (bool, error)
	RebuildLedger(ctx context.Context) ([]types.LedgerPoint, error)
}

// Config holds reconciler configuration.
type Config struct {
	Store    Store
	Oracle   ResolutionSource
	Interval time.Duration
	Logger   *zap.Logger
	// Now defaults to time.Now.
	Now func() time.Time
}

// RunReport summarizes one reconciliation pass.
type RunReport struct {
	OpenPositions   int
	Markets         int
	ResolvedMarkets int
	RejectedMarkets int
	Settled         int
	Unmatched       int
	AlreadySettled  int
	// OracleErr holds batch failures. Their markets stay open until the next run.
	OracleErr error
	// Failures holds per-position settle errors.
	Failures []error
	Ledger   []types.LedgerPoint
	Duration time.Duration
}

// Err joins the per-position failures.
func (r *RunReport) Err() error {
	return errors.Join(r.Failures...)
}

// Reconciler settles resolved positions and rebuilds the ledger.
type Reconciler struct {
	store    Store
	oracle   ResolutionSource
	interval time.Duration
	logger   *zap.Logger
	now      func() time.Time

	// mu serializes runs within the process.
	mu          sync.Mutex
	ledgerStale bool
}

// New creates a new reconciler.
func New(cfg Config) (*Reconciler, error) {
	if cfg.Store == nil {
		return nil, errors.New("store cannot be nil")
	}
	if cfg.Oracle == nil {
		return nil, errors.New("oracle cannot be nil")
	}
	if cfg.Logger == nil {
		cfg.Logger = zap.NewNop()
	}
	if cfg.Interval <= 0 {
		cfg.Interval = DefaultInterval
	}
	if cfg.Now == nil {
		cfg.Now = time.Now
	}

	return &Reconciler{
		store:    cfg.Store,
		oracle:   cfg.Oracle,
		interval: cfg.Interval,
		logger:   cfg.Logger,
		now:      cfg.Now,
	}, nil
}

// RunOnce performs one reconciliation pass. The returned error covers failures that abort the
// pass (loading open positions, rebuilding the ledger); per-position failures are in the report.
func (r *Reconciler) RunOnce(ctx context.Context) (*RunReport, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	start := time.Now()
	report := &RunReport{}
	defer func() {
		report.Duration = time.Since(start)
		RunDurationSeconds.Observe(report.Duration.Seconds())
	}()

	open, err := r.store.OpenPositions(ctx)
	if err != nil {
		RunsTotal.WithLabelValues("error").Inc()
		return report, fmt.Errorf("load open positions: %w", err)
	}
	report.OpenPositions = len(open)
	OpenPositions.Set(float64(len(open)))

	if len(open) == 0 && !r.ledgerStale {
		RunsTotal.WithLabelValues("noop").Inc()
		r.logger.Debug("reconcile-no-open-positions")
		return report, nil
	}

	resolutions := r.fetchResolutions(ctx, open, report)
	r.settle(ctx, open, resolutions, report)

	points, err := r.store.RebuildLedger(ctx)
	if err != nil {
		r.ledgerStale = true
		RunsTotal.WithLabelValues("error").Inc()
		return report, fmt.Errorf("rebuild ledger: %w", err)
	}
	r.ledgerStale = false
	report.Ledger = points

	if len(points) > 0 {
		CumulativePnL.Set(points[len(points)-1].CumulativePnL.InexactFloat64())
	}

	result := "ok"
	if len(report.Failures) > 0 || report.OracleErr != nil {
		result = "partial"
	}
	RunsTotal.WithLabelValues(result).Inc()

	return report, nil
}

// fetchResolutions returns the resolutions that passed validation, keyed by market ID.
func (r *Reconciler) fetchResolutions(ctx context.Context, open []types.Position, report *RunReport) map[string]types.Resolution {
	seen := make(map[string]struct{}, len(open))
	ids := make([]string, 0, len(open))
	for _, p := range open {
		if _, ok := seen[p.MarketID]; ok {
			continue
		}
		seen[p.MarketID] = struct{}{}
		ids = append(ids, p.MarketID)
	}
	report.Markets = len(ids)

	resolutions, err := r.oracle.GetResolutions(ctx, ids)
	if err != nil {
		report.OracleErr = err
		r.logger.Warn("oracle-batches-failed",
			zap.Int("markets", len(ids)),
			zap.Int("answered", len(resolutions)),
			zap.Error(err))
	}

	accepted := make(map[string]types.Resolution, len(resolutions))
	for id, res := range resolutions {
		if !res.Resolved {
			continue
		}
		if !res.Settleable() {
			report.RejectedMarkets++
			RejectedResolutionsTotal.Inc()
			r.logger.Warn("resolution-rejected",
				zap.String("market-id", id),
				zap.Int("outcomes", len(res.Outcomes)),
				zap.Int("prices", len(res.Prices)),
				zap.Float64("price-sum", res.PriceSum()))
			continue
		}
		accepted[id] = res
	}
	report.ResolvedMarkets = len(accepted)

	return accepted
}

// settle applies the terminal transition to every open position with an accepted resolution.
func (r *Reconciler) settle(ctx context.Context, open []types.Position, resolutions map[string]types.Resolution, report *RunReport) {
	resolvedAt := r.now().UTC()

	for _, p := range open {
		res, ok := resolutions[p.MarketID]
		if !ok {
			continue
		}
		if ctx.Err() != nil {
			r.logger.Info("reconcile-interrupted", zap.Error(ctx.Err()))
			return
		}

		settlement := types.Settlement{
			PositionID: p.ID,
			PnL:        decimal.Zero,
			Status:     types.StatusSettled,
			ResolvedAt: resolvedAt,
		}

		price, found := res.PriceFor(p.Outcome)
		if found {
			settlement.PnL = ComputePnL(p.Side, p.EntryPrice, p.Stake, price)
		} else {
			settlement.Status = types.StatusUnmatched
			r.logger.Warn("outcome-not-in-resolution",
				zap.String("position-id", p.ID),
				zap.String("market-id", p.MarketID),
				zap.String("outcome", p.Outcome),
				zap.Strings("resolved-outcomes", res.Outcomes))
		}

		applied, err := r.store.SettlePosition(ctx, settlement)
		if err != nil {
			SettleErrorsTotal.Inc()
			report.Failures = append(report.Failures, &types.SettleError{
				PositionID: p.ID,
				MarketID:   p.MarketID,
				Err:        err,
			})
			continue
		}
		if !applied {
			report.AlreadySettled++
			continue
		}

		PositionsSettledTotal.WithLabelValues(string(settlement.Status)).Inc()
		if settlement.Status == types.StatusUnmatched {
			report.Unmatched++
		} else {
			report.Settled++
		}

		r.logger.Debug("position-settled",
			zap.String("position-id", p.ID),
			zap.String("market-id", p.MarketID),
			zap.String("status", string(settlement.Status)),
			zap.String("pnl", settlement.PnL.String()))
	}
}

// Run reconciles immediately and then every interval until ctx is done (blocking).
func (r *Reconciler) Run(ctx context.Context) error {
	r.logger.Info("reconciler-starting", zap.Duration("interval", r.interval))

	ticker := time.NewTicker(r.interval)
	defer ticker.Stop()

	r.runAndLog(ctx)

	for {
		select {
		case <-ctx.Done():
			r.logger.Info("reconciler-stopping")
			return nil
		case <-ticker.C:
			r.runAndLog(ctx)
		}
	}
}

func (r *Reconciler) runAndLog(ctx context.Context) {
	report, err := r.RunOnce(ctx)
	if err != nil {
		if ctx.Err() != nil {
			return
		}
		r.logger.Error("reconcile-failed", zap.Error(err))
		return
	}

	for _, failure := range report.Failures {
		r.logger.Error("settle-position-failed", zap.Error(failure))
	}

	r.logger.Info("reconcile-complete",
		zap.Int("open-positions", report.OpenPositions),
		zap.Int("markets", report.Markets),
		zap.Int("resolved-markets", report.ResolvedMarkets),
		zap.Int("settled", report.Settled),
		zap.Int("unmatched", report.Unmatched),
		zap.Int("failures", len(report.Failures)),
		zap.Int("ledger-points", len(report.Ledger)),
		zap.Duration("duration", report.Duration))
}

// Package backfill seeds the position store with the whales' current holdings.
package backfill

import (
	"context"
	"errors"
	"fmt"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/mselser95/polymarket-whalesim/internal/oracle"
	"github.com/mselser95/polymarket-whalesim/internal/whales"
	"github.com/mselser95/polymarket-whalesim/pkg/types"
	"github.com/mselser95/polymarket-whalesim/pkg/wallet"
)

// HoldingsSource lists a wallet's current holdings.
type HoldingsSource interface {
	GetPositions(ctx context.Context, address string) ([]wallet.Position, error)
}

// StatusSource reports open/closed state for a batch of markets.
type StatusSource interface {
	MarketStatuses(ctx context.Context, marketIDs []string) (map[string]oracle.MarketStatus, error)
}

// PositionWriter persists new positions.
type PositionWriter interface {
	InsertPosition(ctx context.Context, p *types.Position) error
}

// Config holds backfiller configuration.
type Config struct {
	Whales   *whales.Set
	Holdings HoldingsSource
	Status   StatusSource
	Store    PositionWriter
	Stake    decimal.Decimal
	Logger   *zap.Logger
}

// Report summarizes a backfill.
type Report struct {
	Whales   int
	Inserted int
	Skipped  int
	Failed   int
}

// Backfiller copies open holdings into simulated BUY positions at the current price.
type Backfiller struct {
	whales   *whales.Set
	holdings HoldingsSource
	status   StatusSource
	store    PositionWriter
	stake    decimal.Decimal
	logger   *zap.Logger
}

// New creates a new backfiller.
func New(cfg Config) (*Backfiller, error) {
	if cfg.Whales.Len() == 0 {
		return nil, types.ErrEmptyWhaleSet
	}
	if cfg.Holdings == nil || cfg.Status == nil || cfg.Store == nil {
		return nil, errors.New("holdings, status and store are required")
	}
	if !cfg.Stake.IsPositive() {
		return nil, fmt.Errorf("stake must be positive, got %s", cfg.Stake)
	}
	if cfg.Logger == nil {
		cfg.Logger = zap.NewNop()
	}

	return &Backfiller{
		whales:   cfg.Whales,
		holdings: cfg.Holdings,
		status:   cfg.Status,
		store:    cfg.Store,
		stake:    cfg.Stake,
		logger:   cfg.Logger,
	}, nil
}

// Run backfills every whale in turn. Per-whale failures are counted and skipped; only
// cancellation stops the run early.
func (b *Backfiller) Run(ctx context.Context) (*Report, error) {
	report := &Report{}

	for _, whale := range b.whales.Addresses() {
		if err := ctx.Err(); err != nil {
			return report, err
		}
		report.Whales++

		inserted, skipped, err := b.backfillWhale(ctx, whale)
		report.Inserted += inserted
		report.Skipped += skipped

		if err != nil {
			if ctx.Err() != nil {
				return report, ctx.Err()
			}
			report.Failed++
			WhaleFailuresTotal.Inc()
			b.logger.Warn("backfill-whale-failed",
				zap.String("whale", whale),
				zap.Error(err))
			continue
		}

		b.logger.Info("backfill-whale-complete",
			zap.String("whale", whale),
			zap.Int("inserted", inserted),
			zap.Int("skipped", skipped))
	}

	b.logger.Info("backfill-complete",
		zap.Int("whales", report.Whales),
		zap.Int("inserted", report.Inserted),
		zap.Int("skipped", report.Skipped),
		zap.Int("failed", report.Failed))

	return report, nil
}

func (b *Backfiller) backfillWhale(ctx context.Context, whale string) (inserted, skipped int, err error) {
	holdings, err := b.holdings.GetPositions(ctx, whale)
	if err != nil {
		return 0, 0, fmt.Errorf("get positions: %w", err)
	}

	candidates := make([]wallet.Position, 0, len(holdings))
	ids := make([]string, 0, len(holdings))
	for _, h := range holdings {
		if h.ConditionID == "" || h.Size <= 0 || h.CurPrice <= 0 || h.CurPrice >= 1 {
			skipped++
			continue
		}
		candidates = append(candidates, h)
		ids = append(ids, h.ConditionID)
	}

	if len(candidates) == 0 {
		return 0, skipped, nil
	}

	statuses, statusErr := b.status.MarketStatuses(ctx, ids)
	if statusErr != nil {
		b.logger.Warn("backfill-status-lookup-failed",
			zap.String("whale", whale),
			zap.Error(statusErr))
	}

	var errs []error
	for _, h := range candidates {
		status, known := statuses[h.ConditionID]
		// Without a complete status answer only confirmed-open markets are recorded.
		if status.Closed || (!known && statusErr != nil) {
			skipped++
			continue
		}

		question := h.Title
		if question == "" {
			question = status.Question
		}

		p := types.NewPosition(
			whale,
			h.ConditionID,
			h.Outcome,
			types.SideBuy,
			decimal.NewFromFloat(h.CurPrice),
			b.stake,
			question,
		)

		if err := b.store.InsertPosition(ctx, p); err != nil {
			errs = append(errs, fmt.Errorf("insert position for %s: %w", h.ConditionID, err))
			continue
		}
		inserted++
		PositionsBackfilledTotal.Inc()
	}

	return inserted, skipped, errors.Join(errs...)
}

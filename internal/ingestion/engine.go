// Package ingestion turns live whale trades into simulated open positions.
package ingestion

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/mselser95/polymarket-whalesim/internal/oracle"
	"github.com/mselser95/polymarket-whalesim/internal/whales"
	"github.com/mselser95/polymarket-whalesim/pkg/types"
	"github.com/mselser95/polymarket-whalesim/pkg/websocket"
)

// DefaultWorkers is the number of frame workers when none is configured.
const DefaultWorkers = 4

// Feed is the live frame source.
type Feed interface {
	Start(ctx context.Context) error
	MessageChan() <-chan *types.FeedMessage
	IsConnected() bool
	Close() error
}

// StatusChecker answers whether a market is still open.
type StatusChecker interface {
	MarketStatus(ctx context.Context, marketID string) (oracle.MarketStatus, error)
}

// PositionWriter persists new positions.
type PositionWriter interface {
	InsertPosition(ctx context.Context, p *types.Position) error
}

// Config holds ingestion engine configuration.
type Config struct {
	Whales      *whales.Set
	Credentials types.ClobAuth
	Feed        websocket.Config
	Status      StatusChecker
	Store       PositionWriter
	Stake       decimal.Decimal
	Workers     int
	Logger      *zap.Logger
}

// Engine consumes the live feed and records a position for every qualifying whale trade.
type Engine struct {
	whales  *whales.Set
	creds   types.ClobAuth
	status  StatusChecker
	store   PositionWriter
	stake   decimal.Decimal
	workers int
	logger  *zap.Logger

	feedCfg  websocket.Config
	newFeed  func(websocket.Config) (Feed, error)
	feed     Feed
	wg       sync.WaitGroup
	started  atomic.Bool
	stopping atomic.Bool
	stopOnce sync.Once
}

// New creates a new ingestion engine.
func New(cfg Config) *Engine {
	if cfg.Logger == nil {
		cfg.Logger = zap.NewNop()
	}
	if cfg.Workers <= 0 {
		cfg.Workers = DefaultWorkers
	}

	return &Engine{
		whales:  cfg.Whales,
		creds:   cfg.Credentials,
		status:  cfg.Status,
		store:   cfg.Store,
		stake:   cfg.Stake,
		workers: cfg.Workers,
		logger:  cfg.Logger,
		feedCfg: cfg.Feed,
		newFeed: func(c websocket.Config) (Feed, error) {
			return websocket.New(c)
		},
	}
}

// Validate reports configuration errors that make ingestion impossible.
func (e *Engine) Validate() error {
	if e.creds.Key == "" || e.creds.Secret == "" || e.creds.Passphrase == "" {
		return types.ErrMissingCredentials
	}
	if e.whales.Len() == 0 {
		return types.ErrEmptyWhaleSet
	}
	if e.store == nil {
		return errors.New("position store is required")
	}
	if e.status == nil {
		return errors.New("market status checker is required")
	}
	if !e.stake.IsPositive() {
		return fmt.Errorf("stake must be positive, got %s", e.stake)
	}
	return nil
}

// Start validates the configuration, opens the feed and launches the workers. Only configuration
// errors are returned; transport failures are retried by the feed. onFatal is called if the feed
// stops delivering before Stop is called.
func (e *Engine) Start(ctx context.Context, onFatal func(error)) error {
	if err := e.Validate(); err != nil {
		return fmt.Errorf("invalid ingestion config: %w", err)
	}
	if !e.started.CompareAndSwap(false, true) {
		return errors.New("ingestion engine already started")
	}

	feedCfg := e.feedCfg
	feedCfg.Subscription = types.NewTradeSubscription(e.creds)
	if feedCfg.Logger == nil {
		feedCfg.Logger = e.logger
	}

	feed, err := e.newFeed(feedCfg)
	if err != nil {
		return fmt.Errorf("create feed: %w", err)
	}
	if err := feed.Start(ctx); err != nil {
		return fmt.Errorf("start feed: %w", err)
	}
	e.feed = feed

	e.logger.Info("ingestion-engine-starting",
		zap.Int("whales", e.whales.Len()),
		zap.Int("workers", e.workers),
		zap.String("stake", e.stake.String()))

	// In-flight frames finish even after ctx is cancelled.
	handleCtx := context.WithoutCancel(ctx)

	var remaining atomic.Int32
	remaining.Store(int32(e.workers))

	for i := range e.workers {
		e.wg.Add(1)
		go func(id int) {
			defer e.wg.Done()
			e.worker(handleCtx, id)

			if remaining.Add(-1) == 0 && !e.stopping.Load() && onFatal != nil {
				onFatal(errors.New("feed message channel closed unexpectedly"))
			}
		}(i)
	}

	return nil
}

// worker handles frames until the feed channel is closed.
func (e *Engine) worker(ctx context.Context, id int) {
	ActiveWorkers.Inc()
	defer ActiveWorkers.Dec()

	for msg := range e.feed.MessageChan() {
		if _, err := e.HandleMessage(ctx, msg); err != nil {
			var frameErr *types.FrameError
			if errors.As(err, &frameErr) {
				e.logger.Debug("frame-skipped", zap.Int("worker", id), zap.Error(err))
				continue
			}
			e.logger.Warn("handle-frame-error", zap.Int("worker", id), zap.Error(err))
		}
	}
}

// Connected reports whether the feed currently holds an open connection.
func (e *Engine) Connected() bool {
	return e.feed != nil && e.feed.IsConnected()
}

// Stop closes the feed and waits for the workers to drain the queue.
func (e *Engine) Stop() error {
	var err error
	e.stopOnce.Do(func() {
		e.stopping.Store(true)
		e.logger.Info("ingestion-engine-stopping")

		if e.feed != nil {
			err = e.feed.Close()
		}
		e.wg.Wait()

		e.logger.Info("ingestion-engine-stopped")
	})
	return err
}

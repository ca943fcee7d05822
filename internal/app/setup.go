package app

import (
	"context"
	"errors"
	"fmt"

	"go.uber.org/zap"

	"github.com/mselser95/polymarket-whalesim/internal/ingestion"
	"github.com/mselser95/polymarket-whalesim/internal/oracle"
	"github.com/mselser95/polymarket-whalesim/internal/settlement"
	"github.com/mselser95/polymarket-whalesim/internal/storage"
	"github.com/mselser95/polymarket-whalesim/internal/whales"
	"github.com/mselser95/polymarket-whalesim/pkg/cache"
	"github.com/mselser95/polymarket-whalesim/pkg/config"
	"github.com/mselser95/polymarket-whalesim/pkg/healthprobe"
	"github.com/mselser95/polymarket-whalesim/pkg/httpserver"
	"github.com/mselser95/polymarket-whalesim/pkg/types"
	"github.com/mselser95/polymarket-whalesim/pkg/websocket"
)

// statusCacheMaxItems bounds the market status cache.
const statusCacheMaxItems = 10000

// New creates a new application instance. Configuration problems (missing credentials, empty
// whale report, unreachable database) are returned here, before anything starts.
func New(cfg *config.Config, logger *zap.Logger, opts *Options) (*App, error) {
	if opts == nil {
		opts = &Options{}
	}
	if opts.NoIngest && opts.NoReconcile {
		return nil, errors.New("ingestion and reconciliation are both disabled")
	}

	ctx, cancel := context.WithCancel(context.Background())

	a := &App{
		cfg:           cfg,
		opts:          opts,
		logger:        logger,
		healthChecker: setupHealthChecker(),
		ctx:           ctx,
		cancel:        cancel,
	}

	err := a.setup(ctx)
	if err != nil {
		a.closeResources()
		cancel()
		return nil, err
	}

	return a, nil
}

func (a *App) setup(ctx context.Context) error {
	store, err := OpenStore(ctx, a.cfg, a.logger)
	if err != nil {
		return fmt.Errorf("setup storage: %w", err)
	}
	a.store = store

	oracleClient := NewOracleClient(a.cfg, a.logger)

	if !a.opts.NoIngest {
		err = a.setupIngestion(oracleClient)
		if err != nil {
			return fmt.Errorf("setup ingestion: %w", err)
		}
	}

	if !a.opts.NoReconcile {
		a.reconciler, err = settlement.New(settlement.Config{
			Store:    a.store,
			Oracle:   oracleClient,
			Interval: a.cfg.ReconcileInterval,
			Logger:   a.logger,
		})
		if err != nil {
			return fmt.Errorf("setup reconciler: %w", err)
		}
	}

	a.httpServer = setupHTTPServer(a.cfg, a.logger, a.healthChecker)

	return nil
}

func (a *App) setupIngestion(oracleClient *oracle.Client) error {
	err := a.cfg.ValidateFeedCredentials()
	if err != nil {
		return err
	}

	whaleSet, err := LoadWhales(a.cfg, a.logger)
	if err != nil {
		return err
	}

	statusCache, err := setupCache(a.logger)
	if err != nil {
		return fmt.Errorf("setup cache: %w", err)
	}
	a.statusCache = statusCache

	engine := ingestion.New(ingestion.Config{
		Whales: whaleSet,
		Credentials: types.ClobAuth{
			Key:        a.cfg.PolymarketAPIKey,
			Secret:     a.cfg.PolymarketSecret,
			Passphrase: a.cfg.PolymarketPassphrase,
		},
		Feed:    setupFeedConfig(a.cfg, a.logger),
		Status:  oracle.NewCachedStatusClient(oracleClient, statusCache, a.cfg.MarketStatusCacheTTL),
		Store:   a.store,
		Stake:   a.cfg.SimStake,
		Workers: a.cfg.IngestWorkers,
		Logger:  a.logger,
	})
	err = engine.Validate()
	if err != nil {
		return err
	}
	a.engine = engine

	a.healthChecker.AddCheck("feed", func() error {
		if !engine.Connected() {
			return errors.New("feed disconnected")
		}
		return nil
	})

	return nil
}

// OpenStore opens the position store selected by STORAGE_MODE.
func OpenStore(ctx context.Context, cfg *config.Config, logger *zap.Logger) (storage.Store, error) {
	return storage.New(ctx, storage.Config{
		Mode:       cfg.StorageMode,
		SQLitePath: cfg.DatabasePath,
		Postgres: &storage.PostgresConfig{
			Host:     cfg.PostgresHost,
			Port:     cfg.PostgresPort,
			User:     cfg.PostgresUser,
			Password: cfg.PostgresPass,
			Database: cfg.PostgresDB,
			SSLMode:  cfg.PostgresSSL,
			Logger:   logger,
		},
		Logger: logger,
	})
}

// NewOracleClient creates the Gamma API client shared by ingestion, settlement and backfill.
func NewOracleClient(cfg *config.Config, logger *zap.Logger) *oracle.Client {
	return oracle.NewClient(oracle.Config{
		BaseURL:    cfg.PolymarketGammaURL,
		BatchSize:  cfg.OracleBatchSize,
		BatchDelay: cfg.OracleBatchDelay,
		Timeout:    cfg.OracleTimeout,
		Logger:     logger,
	})
}

// LoadWhales loads the whale set from the configured report. An empty set is an error.
func LoadWhales(cfg *config.Config, logger *zap.Logger) (*whales.Set, error) {
	set, err := whales.LoadReport(cfg.WhaleReportPath, cfg.WhaleTopN, logger)
	if err != nil {
		return nil, fmt.Errorf("load whale report: %w", err)
	}
	if set.Len() == 0 {
		return nil, types.ErrEmptyWhaleSet
	}

	logger.Info("whale-set-loaded",
		zap.String("path", cfg.WhaleReportPath),
		zap.Int("whales", set.Len()))

	return set, nil
}

func setupHealthChecker() *healthprobe.HealthChecker {
	return healthprobe.New()
}

func setupHTTPServer(
	cfg *config.Config,
	logger *zap.Logger,
	healthChecker *healthprobe.HealthChecker,
) *httpserver.Server {
	return httpserver.New(&httpserver.Config{
		Port:          cfg.HTTPPort,
		Logger:        logger,
		HealthChecker: healthChecker,
	})
}

func setupCache(logger *zap.Logger) (*cache.RistrettoCache, error) {
	return cache.NewRistrettoCache(cache.DefaultRistrettoConfig("market_status", statusCacheMaxItems, logger))
}

func setupFeedConfig(cfg *config.Config, logger *zap.Logger) websocket.Config {
	return websocket.Config{
		URL:                   cfg.PolymarketRTDSURL,
		DialTimeout:           cfg.WSDialTimeout,
		PongTimeout:           cfg.WSPongTimeout,
		PingInterval:          cfg.WSPingInterval,
		ReconnectInitialDelay: cfg.WSReconnectInitialDelay,
		ReconnectMaxDelay:     cfg.WSReconnectMaxDelay,
		ReconnectBackoffMult:  cfg.WSReconnectBackoffMult,
		MinStableDuration:     cfg.WSMinStableDuration,
		MessageBufferSize:     cfg.IngestQueueSize,
		Logger:                logger,
	}
}

package app

import (
	"context"
	"sync"

	"go.uber.org/zap"

	"github.com/mselser95/polymarket-whalesim/internal/ingestion"
	"github.com/mselser95/polymarket-whalesim/internal/settlement"
	"github.com/mselser95/polymarket-whalesim/internal/storage"
	"github.com/mselser95/polymarket-whalesim/pkg/cache"
	"github.com/mselser95/polymarket-whalesim/pkg/config"
	"github.com/mselser95/polymarket-whalesim/pkg/healthprobe"
	"github.com/mselser95/polymarket-whalesim/pkg/httpserver"
)

// App is the main application orchestrator.
type App struct {
	cfg           *config.Config
	opts          *Options
	logger        *zap.Logger
	healthChecker *healthprobe.HealthChecker
	httpServer    *httpserver.Server
	store         storage.Store
	statusCache   *cache.RistrettoCache
	engine        *ingestion.Engine
	reconciler    *settlement.Reconciler
	ctx           context.Context
	cancel        context.CancelFunc
	wg            sync.WaitGroup

	fatalMu  sync.Mutex
	fatalErr error
}

// Options holds application options.
type Options struct {
	NoIngest    bool // skip the live feed, only reconcile
	NoReconcile bool // skip scheduled reconciliation, only ingest
}

package app

import (
	"context"
	"time"

	"go.uber.org/zap"
)

// Shutdown gracefully shuts down the application. In-flight frames are drained before the
// store is closed.
func (a *App) Shutdown() error {
	a.logger.Info("application-shutting-down")

	a.healthChecker.SetReady(false)

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()

	// Shutdown HTTP server
	err := a.shutdownHTTPServer(shutdownCtx)
	if err != nil {
		a.logger.Error("http-server-shutdown-error", zap.Error(err))
	}

	// Stop ingestion first so queued frames still reach the store
	err = a.shutdownIngestion()
	if err != nil {
		a.logger.Error("ingestion-engine-stop-error", zap.Error(err))
	}

	// Cancel context to stop the reconciler
	a.cancel()

	// Wait for all goroutines
	a.wg.Wait()

	a.closeResources()

	a.logger.Info("application-shutdown-complete")

	return nil
}

func (a *App) shutdownHTTPServer(ctx context.Context) error {
	if a.httpServer == nil {
		return nil
	}
	return a.httpServer.Shutdown(ctx)
}

func (a *App) shutdownIngestion() error {
	if a.engine == nil {
		return nil
	}
	return a.engine.Stop()
}

// closeResources closes the store and cache. Safe on a partially built App.
func (a *App) closeResources() {
	if a.store != nil {
		err := a.store.Close()
		if err != nil {
			a.logger.Error("storage-close-error", zap.Error(err))
		}
		a.store = nil
	}
	if a.statusCache != nil {
		a.statusCache.Close()
		a.statusCache = nil
	}
}

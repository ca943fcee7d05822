package app

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"go.uber.org/zap"
)

// Run starts the application and blocks until ctx is done, a shutdown signal arrives, or the
// feed fails permanently. The returned error is the fatal failure, if any.
func (a *App) Run(ctx context.Context) error {
	a.logger.Info("application-starting",
		zap.Bool("ingest", a.engine != nil),
		zap.Bool("reconcile", a.reconciler != nil),
		zap.String("storage-mode", a.cfg.StorageMode),
		zap.String("log-level", a.cfg.LogLevel))

	err := a.startComponents()
	if err != nil {
		_ = a.Shutdown()
		return err
	}

	a.healthChecker.SetReady(true)

	a.logger.Info("application-ready",
		zap.String("http-addr", ":"+a.cfg.HTTPPort),
		zap.String("rtds-url", a.cfg.PolymarketRTDSURL))

	err = a.waitForShutdown(ctx)
	if err != nil {
		a.logger.Error("shutdown-error", zap.Error(err))
	}

	return a.fatal()
}

func (a *App) startComponents() error {
	a.wg.Add(1)
	go a.runHTTPServer()

	if a.engine != nil {
		err := a.engine.Start(a.ctx, a.onFatal)
		if err != nil {
			return fmt.Errorf("start ingestion engine: %w", err)
		}
	}

	if a.reconciler != nil {
		a.wg.Add(1)
		go a.runReconciler()
	}

	return nil
}

func (a *App) runHTTPServer() {
	defer a.wg.Done()
	err := a.httpServer.Start()
	if err != nil {
		a.logger.Error("http-server-error", zap.Error(err))
	}
}

func (a *App) runReconciler() {
	defer a.wg.Done()
	err := a.reconciler.Run(a.ctx)
	if err != nil && !errors.Is(err, a.ctx.Err()) {
		a.logger.Error("reconciler-error", zap.Error(err))
	}
}

// onFatal records the first unrecoverable component failure and triggers shutdown.
func (a *App) onFatal(err error) {
	a.fatalMu.Lock()
	if a.fatalErr == nil {
		a.fatalErr = err
	}
	a.fatalMu.Unlock()

	a.logger.Error("fatal-component-error", zap.Error(err))
	a.cancel()
}

func (a *App) fatal() error {
	a.fatalMu.Lock()
	defer a.fatalMu.Unlock()
	return a.fatalErr
}

func (a *App) waitForShutdown(ctx context.Context) error {
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
	defer signal.Stop(sigChan)

	select {
	case sig := <-sigChan:
		a.logger.Info("shutdown-signal-received", zap.String("signal", sig.String()))
	case <-ctx.Done():
		a.logger.Info("context-cancelled")
	case <-a.ctx.Done():
		a.logger.Info("application-context-cancelled")
	}

	return a.Shutdown()
}

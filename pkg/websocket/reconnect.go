package websocket

import (
	"context"
	"math/rand"
	"sync"
	"time"

	"go.uber.org/zap"
)

// ReconnectConfig holds the configuration for exponential backoff reconnection.
type ReconnectConfig struct {
	InitialDelay      time.Duration
	MaxDelay          time.Duration
	BackoffMultiplier float64
	JitterPercent     float64 // 0.2 = 20%
	// MinStableDuration is how long a connection must stay up before the backoff resets.
	MinStableDuration time.Duration
}

// ReconnectManager is the backoff state machine for a single feed connection.
// The delay grows by BackoffMultiplier on every attempt, never leaves [InitialDelay, MaxDelay],
// and returns to InitialDelay only after a connection has been stable for MinStableDuration.
type ReconnectManager struct {
	config         ReconnectConfig
	logger         *zap.Logger
	currentBackoff time.Duration
	attempts       int
	rand           func() float64
	mu             sync.Mutex
}

// NewReconnectManager creates a new reconnection manager with the specified config.
func NewReconnectManager(cfg ReconnectConfig, logger *zap.Logger) *ReconnectManager {
	if cfg.InitialDelay <= 0 {
		cfg.InitialDelay = time.Second
	}
	if cfg.MaxDelay < cfg.InitialDelay {
		cfg.MaxDelay = cfg.InitialDelay
	}
	if cfg.BackoffMultiplier < 1 {
		cfg.BackoffMultiplier = 1
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	return &ReconnectManager{
		config:         cfg,
		logger:         logger,
		currentBackoff: cfg.InitialDelay,
		rand:           rand.Float64,
	}
}

// Reconnect waits out the backoff and calls connectFunc until it succeeds or ctx is done.
// Success does not reset the backoff; see ConnectionClosed.
func (rm *ReconnectManager) Reconnect(ctx context.Context, connectFunc func(context.Context) error) error {
	for {
		if err := rm.Wait(ctx); err != nil {
			return err
		}

		err := connectFunc(ctx)
		if err == nil {
			rm.logger.Info("reconnection-successful", zap.Int("attempts", rm.Attempts()))
			return nil
		}

		if ctx.Err() != nil {
			return ctx.Err()
		}

		rm.logger.Warn("reconnection-failed", zap.Error(err))
		ReconnectFailuresTotal.Inc()
	}
}

// Wait sleeps for the next backoff delay. It returns ctx.Err() if ctx is done first.
func (rm *ReconnectManager) Wait(ctx context.Context) error {
	delay := rm.NextDelay()

	rm.logger.Info("attempting-reconnection",
		zap.Duration("backoff", delay),
		zap.Int("attempt", rm.Attempts()))

	timer := time.NewTimer(delay)
	defer timer.Stop()

	select {
	case <-timer.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// NextDelay returns the delay before the next attempt and advances the state machine.
func (rm *ReconnectManager) NextDelay() time.Duration {
	rm.mu.Lock()
	defer rm.mu.Unlock()

	delay := rm.jittered(rm.currentBackoff)
	rm.attempts++
	ReconnectAttemptsTotal.Inc()
	CurrentBackoffSeconds.Set(delay.Seconds())

	rm.incrementBackoff()

	return delay
}

// ConnectionClosed records the lifetime of a connection that just ended. Long-lived
// connections reset the backoff; short ones keep growing it.
func (rm *ReconnectManager) ConnectionClosed(heldFor time.Duration) {
	if heldFor >= rm.config.MinStableDuration {
		rm.Reset()
		return
	}
	rm.logger.Debug("connection-not-stable",
		zap.Duration("held-for", heldFor),
		zap.Duration("min-stable", rm.config.MinStableDuration))
}

// Reset resets the backoff to the initial delay.
func (rm *ReconnectManager) Reset() {
	rm.mu.Lock()
	defer rm.mu.Unlock()

	rm.currentBackoff = rm.config.InitialDelay
	rm.attempts = 0
}

// Attempts returns the number of attempts since the last reset.
func (rm *ReconnectManager) Attempts() int {
	rm.mu.Lock()
	defer rm.mu.Unlock()
	return rm.attempts
}

// CurrentBackoff returns the un-jittered delay of the next attempt.
func (rm *ReconnectManager) CurrentBackoff() time.Duration {
	rm.mu.Lock()
	defer rm.mu.Unlock()
	return rm.currentBackoff
}

// jittered applies jitter and clamps into [InitialDelay, MaxDelay]. Caller holds mu.
func (rm *ReconnectManager) jittered(base time.Duration) time.Duration {
	jitter := rm.rand() * rm.config.JitterPercent
	d := time.Duration(float64(base) * (1.0 + jitter))

	if d > rm.config.MaxDelay {
		d = rm.config.MaxDelay
	}
	if d < rm.config.InitialDelay {
		d = rm.config.InitialDelay
	}
	return d
}

// incrementBackoff increases the backoff duration by the multiplier. Caller holds mu.
func (rm *ReconnectManager) incrementBackoff() {
	next := time.Duration(float64(rm.currentBackoff) * rm.config.BackoffMultiplier)
	if next > rm.config.MaxDelay {
		next = rm.config.MaxDelay
	}
	rm.currentBackoff = next
}

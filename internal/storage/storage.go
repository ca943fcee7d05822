// Package storage persists simulated positions and the daily cumulative PnL ledger.
package storage

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"github.com/mselser95/polymarket-whalesim/pkg/types"
)

// Store is the position store shared by ingestion and settlement.
type Store interface {
	// InsertPosition appends a new open position. Positions are always stored with
	// is_resolved=false and pnl=0.
	InsertPosition(ctx context.Context, p *types.Position) error

	// OpenPositions returns every position with is_resolved=false.
	OpenPositions(ctx context.Context) ([]types.Position, error)

	// SettlePosition atomically moves an open position to its terminal state. It returns false
	// when the position was already settled.
	SettlePosition(ctx context.Context, s types.Settlement) (bool, error)

	// RebuildLedger recomputes the full ledger from all resolved positions and replaces the
	// stored ledger in a single transaction.
	RebuildLedger(ctx context.Context) ([]types.LedgerPoint, error)

	// Ledger returns the stored ledger ordered by date.
	Ledger(ctx context.Context) ([]types.LedgerPoint, error)

	// Position returns a single position by ID.
	Position(ctx context.Context, id string) (*types.Position, error)

	// Close closes the storage connection.
	Close() error
}

// Storage modes.
const (
	ModeSQLite   = "sqlite"
	ModePostgres = "postgres"
	ModeMemory   = "memory"
)

// Config selects and configures a backend.
type Config struct {
	Mode       string
	SQLitePath string
	Postgres   *PostgresConfig
	Logger     *zap.Logger
}

// New opens the backend selected by cfg.Mode and applies the schema.
func New(ctx context.Context, cfg Config) (Store, error) {
	switch cfg.Mode {
	case ModeSQLite, "":
		return NewSQLiteStore(ctx, cfg.SQLitePath, cfg.Logger)
	case ModePostgres:
		if cfg.Postgres == nil {
			return nil, fmt.Errorf("postgres config is required for mode %q", cfg.Mode)
		}
		if cfg.Postgres.Logger == nil {
			cfg.Postgres.Logger = cfg.Logger
		}
		return NewPostgresStore(ctx, cfg.Postgres)
	case ModeMemory:
		return NewMemoryStore(cfg.Logger), nil
	default:
		return nil, fmt.Errorf("unknown storage mode %q", cfg.Mode)
	}
}

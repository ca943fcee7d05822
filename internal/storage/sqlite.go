package storage

import (
	"context"
	"database/sql"
	"fmt"

	"go.uber.org/zap"
	_ "modernc.org/sqlite"
)

// DefaultSQLitePath is used when no database path is configured.
const DefaultSQLitePath = "whalesim.db"

// NewSQLiteStore opens (or creates) the SQLite database at path and applies the schema.
// Use ":memory:" for a throwaway database.
func NewSQLiteStore(ctx context.Context, path string, logger *zap.Logger) (*SQLStore, error) {
	if path == "" {
		path = DefaultSQLitePath
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open sqlite %q: %w", path, err)
	}
	// single writer
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)

	if _, err := db.ExecContext(ctx, "PRAGMA busy_timeout = 5000"); err != nil {
		db.Close()
		return nil, fmt.Errorf("set busy timeout: %w", err)
	}

	store := NewSQLStore(db, DialectSQLite, logger)
	if err := store.Migrate(ctx); err != nil {
		db.Close()
		return nil, err
	}

	logger.Info("sqlite-storage-opened", zap.String("path", path))

	return store, nil
}

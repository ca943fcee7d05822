//go:build integration

package storage

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/modules/postgres"
	"github.com/testcontainers/testcontainers-go/wait"
	"go.uber.org/zap"
)

// setupPostgres starts a disposable PostgreSQL container and returns its DSN.
func setupPostgres(t *testing.T) string {
	t.Helper()

	ctx := context.Background()

	container, err := postgres.Run(ctx, "postgres:15-alpine",
		postgres.WithDatabase("whalesim"),
		postgres.WithUsername("test"),
		postgres.WithPassword("test"),
		testcontainers.WithWaitStrategy(
			wait.ForLog("database system is ready to accept connections").
				WithOccurrence(2).
				WithStartupTimeout(60*time.Second),
		),
	)
	require.NoError(t, err, "failed to start postgres container")

	t.Cleanup(func() {
		if err := container.Terminate(ctx); err != nil {
			t.Logf("failed to terminate container: %v", err)
		}
	})

	dsn, err := container.ConnectionString(ctx, "sslmode=disable")
	require.NoError(t, err, "failed to get connection string")

	return dsn
}

func TestPostgresStore_Integration(t *testing.T) {
	dsn := setupPostgres(t)
	logger, _ := zap.NewDevelopment()

	runStoreSuite(t, func(t *testing.T) Store {
		ctx := context.Background()

		store, err := OpenPostgres(ctx, dsn, logger)
		require.NoError(t, err)

		_, err = store.db.ExecContext(ctx, "TRUNCATE positions, ledger")
		require.NoError(t, err)

		t.Cleanup(func() { _ = store.Close() })
		return store
	})
}

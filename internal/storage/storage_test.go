package storage

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/mselser95/polymarket-whalesim/internal/testutil"
	"github.com/mselser95/polymarket-whalesim/pkg/types"
)

func newMockStore(t *testing.T) (*SQLStore, sqlmock.Sqlmock) {
	t.Helper()

	db, mock, err := sqlmock.New()
	require.NoError(t, err)

	logger, _ := zap.NewDevelopment()
	store := NewSQLStore(db, DialectPostgres, logger)
	t.Cleanup(func() { _ = db.Close() })

	return store, mock
}

func TestSQLStore_InsertPosition(t *testing.T) {
	store, mock := newMockStore(t)
	p := testutil.CreateTestPosition("0xmarket", "Yes", types.SideBuy, "0.42")

	mock.ExpectExec("INSERT INTO positions").
		WithArgs(
			p.ID,
			sqlmock.AnyArg(),
			p.WhaleAddress,
			"0xmarket",
			"Yes",
			"BUY",
			"0.42",
			"1",
			p.Question,
		).
		WillReturnResult(sqlmock.NewResult(1, 1))

	err := store.InsertPosition(context.Background(), p)
	require.NoError(t, err)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestSQLStore_InsertPosition_Error(t *testing.T) {
	store, mock := newMockStore(t)
	p := testutil.CreateTestPosition("0xmarket", "Yes", types.SideBuy, "0.42")

	mock.ExpectExec("INSERT INTO positions").
		WillReturnError(errors.New("database connection lost"))

	err := store.InsertPosition(context.Background(), p)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "insert position")
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestSQLStore_SettlePosition(t *testing.T) {
	tests := []struct {
		name         string
		rowsAffected int64
		want         bool
	}{
		{name: "applied", rowsAffected: 1, want: true},
		{name: "already-settled", rowsAffected: 0, want: false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			store, mock := newMockStore(t)
			resolvedAt := time.Date(2024, 1, 2, 3, 4, 5, 0, time.UTC)

			mock.ExpectExec("UPDATE positions").
				WithArgs("-1", "settled", resolvedAt, "pos-1").
				WillReturnResult(sqlmock.NewResult(0, tt.rowsAffected))

			ok, err := store.SettlePosition(context.Background(), types.Settlement{
				PositionID: "pos-1",
				PnL:        decimal.NewFromInt(-1),
				Status:     types.StatusSettled,
				ResolvedAt: resolvedAt,
			})
			require.NoError(t, err)
			assert.Equal(t, tt.want, ok)
			assert.NoError(t, mock.ExpectationsWereMet())
		})
	}
}

func TestSQLStore_SettlePosition_Error(t *testing.T) {
	store, mock := newMockStore(t)

	mock.ExpectExec("UPDATE positions").WillReturnError(errors.New("deadlock"))

	ok, err := store.SettlePosition(context.Background(), types.Settlement{
		PositionID: "pos-1",
		PnL:        decimal.Zero,
		Status:     types.StatusUnmatched,
		ResolvedAt: time.Now(),
	})
	require.Error(t, err)
	assert.False(t, ok)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestSQLStore_OpenPositions(t *testing.T) {
	store, mock := newMockStore(t)
	created := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)

	rows := sqlmock.NewRows([]string{
		"id", "created_at", "whale_address", "market_id", "outcome", "side",
		"entry_price", "stake", "question", "is_resolved", "pnl", "resolution_status", "resolved_at",
	}).
		AddRow("pos-1", created, "0xabc", "0xm1", "Yes", "BUY", "0.4", "1", "Q1", false, "0", "open", nil).
		AddRow("pos-2", created.Format(time.RFC3339), "0xdef", "0xm2", "No", "SELL", []byte("0.7"), "1", "Q2", false, "0", "open", nil)

	mock.ExpectQuery("SELECT (.+) FROM positions WHERE is_resolved = FALSE").WillReturnRows(rows)

	got, err := store.OpenPositions(context.Background())
	require.NoError(t, err)
	require.Len(t, got, 2)

	assert.Equal(t, "pos-1", got[0].ID)
	assert.True(t, got[0].CreatedAt.Equal(created))
	assert.True(t, got[0].EntryPrice.Equal(decimal.RequireFromString("0.4")))
	assert.Equal(t, types.SideSell, got[1].Side)
	assert.True(t, got[1].CreatedAt.Equal(created))
	assert.True(t, got[1].EntryPrice.Equal(decimal.RequireFromString("0.7")))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestSQLStore_RebuildLedger(t *testing.T) {
	store, mock := newMockStore(t)

	rows := sqlmock.NewRows([]string{"resolved_at", "pnl"}).
		AddRow(time.Date(2024, 5, 1, 8, 0, 0, 0, time.UTC), "1.5").
		AddRow(time.Date(2024, 5, 1, 20, 0, 0, 0, time.UTC), "-0.5").
		AddRow(time.Date(2024, 5, 3, 1, 0, 0, 0, time.UTC), "2")

	mock.ExpectBegin()
	mock.ExpectQuery("SELECT resolved_at, pnl FROM positions").WillReturnRows(rows)
	mock.ExpectExec("DELETE FROM ledger").WillReturnResult(sqlmock.NewResult(0, 5))
	mock.ExpectExec("INSERT INTO ledger").WithArgs("2024-05-01", "1").WillReturnResult(sqlmock.NewResult(1, 1))
	mock.ExpectExec("INSERT INTO ledger").WithArgs("2024-05-03", "3").WillReturnResult(sqlmock.NewResult(1, 1))
	mock.ExpectCommit()

	points, err := store.RebuildLedger(context.Background())
	require.NoError(t, err)
	require.Len(t, points, 2)
	assert.Equal(t, "3", points[1].CumulativePnL.String())
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestSQLStore_RebuildLedger_RollsBackOnError(t *testing.T) {
	store, mock := newMockStore(t)

	rows := sqlmock.NewRows([]string{"resolved_at", "pnl"}).
		AddRow(time.Date(2024, 5, 1, 8, 0, 0, 0, time.UTC), "1")

	mock.ExpectBegin()
	mock.ExpectQuery("SELECT resolved_at, pnl FROM positions").WillReturnRows(rows)
	mock.ExpectExec("DELETE FROM ledger").WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec("INSERT INTO ledger").WillReturnError(errors.New("disk full"))
	mock.ExpectRollback()

	_, err := store.RebuildLedger(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "insert ledger row")
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestSQLStore_Close(t *testing.T) {
	store, mock := newMockStore(t)
	mock.ExpectClose()

	require.NoError(t, store.Close())
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestDialect_Rebind(t *testing.T) {
	query := "UPDATE t SET a = $1, b = $2 WHERE id = $3"

	assert.Equal(t, query, DialectPostgres.rebind(query))
	assert.Equal(t, "UPDATE t SET a = ?, b = ? WHERE id = ?", DialectSQLite.rebind(query))
}

func TestTimeValue_Scan(t *testing.T) {
	want := time.Date(2024, 7, 4, 12, 30, 0, 0, time.UTC)

	inputs := []any{
		want,
		want.Format(time.RFC3339Nano),
		"2024-07-04 12:30:00+00:00",
		[]byte("2024-07-04 12:30:00"),
		want.Unix(),
	}

	for _, in := range inputs {
		var tv timeValue
		require.NoError(t, tv.Scan(in), "input %v", in)
		assert.True(t, tv.Valid)
		assert.True(t, tv.Time.Equal(want), "input %v gave %v", in, tv.Time)
	}

	var tv timeValue
	require.NoError(t, tv.Scan(nil))
	assert.False(t, tv.Valid)

	assert.Error(t, tv.Scan("yesterday"))
	assert.Error(t, tv.Scan(3.14))
}

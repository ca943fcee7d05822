package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"regexp"
	"time"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/mselser95/polymarket-whalesim/internal/ledger"
	"github.com/mselser95/polymarket-whalesim/pkg/types"
)

// Dialect identifies the SQL flavour of a database handle.
type Dialect int

const (
	DialectPostgres Dialect = iota
	DialectSQLite
)

func (d Dialect) String() string {
	if d == DialectSQLite {
		return ModeSQLite
	}
	return ModePostgres
}

var placeholderRe = regexp.MustCompile(`\$\d+`)

// rebind converts $N placeholders to ?. Queries use every placeholder once, in order.
func (d Dialect) rebind(query string) string {
	if d == DialectPostgres {
		return query
	}
	return placeholderRe.ReplaceAllString(query, "?")
}

func (d Dialect) schema() string {
	if d == DialectSQLite {
		return sqliteSchema
	}
	return postgresSchema
}

const postgresSchema = `
CREATE TABLE IF NOT EXISTS positions (
    id                TEXT PRIMARY KEY,
    created_at        TIMESTAMPTZ NOT NULL,
    whale_address     TEXT        NOT NULL,
    market_id         TEXT        NOT NULL,
    outcome           TEXT        NOT NULL,
    side              TEXT        NOT NULL,
    entry_price       NUMERIC     NOT NULL,
    stake             NUMERIC     NOT NULL,
    question          TEXT        NOT NULL DEFAULT '',
    is_resolved       BOOLEAN     NOT NULL DEFAULT FALSE,
    pnl               NUMERIC     NOT NULL DEFAULT 0,
    resolution_status TEXT        NOT NULL DEFAULT 'open',
    resolved_at       TIMESTAMPTZ
);

CREATE INDEX IF NOT EXISTS idx_positions_open ON positions(is_resolved);
CREATE INDEX IF NOT EXISTS idx_positions_market ON positions(market_id);

CREATE TABLE IF NOT EXISTS ledger (
    date           TEXT PRIMARY KEY,
    cumulative_pnl NUMERIC NOT NULL
);
`

const sqliteSchema = `
CREATE TABLE IF NOT EXISTS positions (
    id                TEXT PRIMARY KEY,
    created_at        DATETIME NOT NULL,
    whale_address     TEXT     NOT NULL,
    market_id         TEXT     NOT NULL,
    outcome           TEXT     NOT NULL,
    side              TEXT     NOT NULL,
    entry_price       TEXT     NOT NULL,
    stake             TEXT     NOT NULL,
    question          TEXT     NOT NULL DEFAULT '',
    is_resolved       INTEGER  NOT NULL DEFAULT 0,
    pnl               TEXT     NOT NULL DEFAULT '0',
    resolution_status TEXT     NOT NULL DEFAULT 'open',
    resolved_at       DATETIME
);

CREATE INDEX IF NOT EXISTS idx_positions_open ON positions(is_resolved);
CREATE INDEX IF NOT EXISTS idx_positions_market ON positions(market_id);

CREATE TABLE IF NOT EXISTS ledger (
    date           TEXT PRIMARY KEY,
    cumulative_pnl TEXT NOT NULL
);
`

const (
	insertPositionQuery = `
		INSERT INTO positions (
			id, created_at, whale_address, market_id, outcome, side,
			entry_price, stake, question, is_resolved, pnl, resolution_status
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, FALSE, '0', 'open')`

	positionColumns = `
		id, created_at, whale_address, market_id, outcome, side,
		entry_price, stake, question, is_resolved, pnl, resolution_status, resolved_at`

	settlePositionQuery = `
		UPDATE positions
		SET is_resolved = TRUE, pnl = $1, resolution_status = $2, resolved_at = $3
		WHERE id = $4 AND is_resolved = FALSE`

	realizedPnLQuery = `
		SELECT resolved_at, pnl FROM positions
		WHERE is_resolved = TRUE AND resolved_at IS NOT NULL`

	deleteLedgerQuery = `DELETE FROM ledger`

	insertLedgerQuery = `INSERT INTO ledger (date, cumulative_pnl) VALUES ($1, $2)`

	selectLedgerQuery = `SELECT date, cumulative_pnl FROM ledger ORDER BY date`
)

// SQLStore implements Store on database/sql for PostgreSQL and SQLite.
type SQLStore struct {
	db      *sql.DB
	dialect Dialect
	logger  *zap.Logger
}

// NewSQLStore wraps an open handle. It does not apply the schema; see Migrate.
func NewSQLStore(db *sql.DB, dialect Dialect, logger *zap.Logger) *SQLStore {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &SQLStore{
		db:      db,
		dialect: dialect,
		logger:  logger,
	}
}

// Migrate creates the tables if they do not exist.
func (s *SQLStore) Migrate(ctx context.Context) error {
	if _, err := s.db.ExecContext(ctx, s.dialect.schema()); err != nil {
		return fmt.Errorf("apply schema: %w", err)
	}
	return nil
}

// InsertPosition stores a new open position.
func (s *SQLStore) InsertPosition(ctx context.Context, p *types.Position) error {
	defer observe("insert_position", time.Now())

	createdAt := p.CreatedAt
	if createdAt.IsZero() {
		createdAt = time.Now()
	}

	_, err := s.db.ExecContext(ctx, s.dialect.rebind(insertPositionQuery),
		p.ID,
		createdAt.UTC(),
		p.WhaleAddress,
		p.MarketID,
		p.Outcome,
		string(p.Side),
		p.EntryPrice.String(),
		p.Stake.String(),
		p.Question,
	)
	if err != nil {
		StorageErrorsTotal.WithLabelValues("insert_position").Inc()
		return fmt.Errorf("insert position: %w", err)
	}

	PositionsInsertedTotal.Inc()
	s.logger.Debug("position-stored",
		zap.String("position-id", p.ID),
		zap.String("market-id", p.MarketID))

	return nil
}

// OpenPositions returns every unresolved position, oldest first.
func (s *SQLStore) OpenPositions(ctx context.Context) ([]types.Position, error) {
	defer observe("open_positions", time.Now())

	query := "SELECT" + positionColumns + " FROM positions WHERE is_resolved = FALSE ORDER BY created_at"

	rows, err := s.db.QueryContext(ctx, query)
	if err != nil {
		StorageErrorsTotal.WithLabelValues("open_positions").Inc()
		return nil, fmt.Errorf("query open positions: %w", err)
	}
	defer rows.Close()

	var positions []types.Position
	for rows.Next() {
		p, err := scanPosition(rows)
		if err != nil {
			return nil, fmt.Errorf("scan position: %w", err)
		}
		positions = append(positions, p)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate positions: %w", err)
	}

	return positions, nil
}

// Position returns a single position by ID.
func (s *SQLStore) Position(ctx context.Context, id string) (*types.Position, error) {
	query := s.dialect.rebind("SELECT" + positionColumns + " FROM positions WHERE id = $1")

	rows, err := s.db.QueryContext(ctx, query, id)
	if err != nil {
		return nil, fmt.Errorf("query position: %w", err)
	}
	defer rows.Close()

	if !rows.Next() {
		if err := rows.Err(); err != nil {
			return nil, fmt.Errorf("query position: %w", err)
		}
		return nil, types.ErrPositionNotFound
	}

	p, err := scanPosition(rows)
	if err != nil {
		return nil, fmt.Errorf("scan position: %w", err)
	}
	return &p, nil
}

// SettlePosition applies the terminal transition only if the row is still open.
func (s *SQLStore) SettlePosition(ctx context.Context, st types.Settlement) (bool, error) {
	defer observe("settle_position", time.Now())

	res, err := s.db.ExecContext(ctx, s.dialect.rebind(settlePositionQuery),
		st.PnL.String(),
		string(st.Status),
		st.ResolvedAt.UTC(),
		st.PositionID,
	)
	if err != nil {
		StorageErrorsTotal.WithLabelValues("settle_position").Inc()
		return false, fmt.Errorf("settle position: %w", err)
	}

	n, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("rows affected: %w", err)
	}

	return n == 1, nil
}

// RebuildLedger recomputes the ledger from scratch inside one transaction.
func (s *SQLStore) RebuildLedger(ctx context.Context) ([]types.LedgerPoint, error) {
	defer observe("rebuild_ledger", time.Now())

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("begin tx: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	entries, err := s.realizedPnL(ctx, tx)
	if err != nil {
		StorageErrorsTotal.WithLabelValues("rebuild_ledger").Inc()
		return nil, err
	}

	points := ledger.Build(entries)

	if _, err := tx.ExecContext(ctx, deleteLedgerQuery); err != nil {
		StorageErrorsTotal.WithLabelValues("rebuild_ledger").Inc()
		return nil, fmt.Errorf("clear ledger: %w", err)
	}

	insert := s.dialect.rebind(insertLedgerQuery)
	for _, pt := range points {
		if _, err := tx.ExecContext(ctx, insert, pt.Date, pt.CumulativePnL.String()); err != nil {
			StorageErrorsTotal.WithLabelValues("rebuild_ledger").Inc()
			return nil, fmt.Errorf("insert ledger row %s: %w", pt.Date, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("commit ledger: %w", err)
	}

	s.logger.Info("ledger-rebuilt",
		zap.Int("days", len(points)),
		zap.Int("settled-positions", len(entries)))

	return points, nil
}

func (s *SQLStore) realizedPnL(ctx context.Context, tx *sql.Tx) ([]types.RealizedPnL, error) {
	rows, err := tx.QueryContext(ctx, realizedPnLQuery)
	if err != nil {
		return nil, fmt.Errorf("query realized pnl: %w", err)
	}
	defer rows.Close()

	var entries []types.RealizedPnL
	for rows.Next() {
		var (
			resolvedAt timeValue
			pnl        decimal.Decimal
		)
		if err := rows.Scan(&resolvedAt, &pnl); err != nil {
			return nil, fmt.Errorf("scan realized pnl: %w", err)
		}
		entries = append(entries, types.RealizedPnL{ResolvedAt: resolvedAt.Time, PnL: pnl})
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate realized pnl: %w", err)
	}

	return entries, nil
}

// Ledger returns the stored ledger.
func (s *SQLStore) Ledger(ctx context.Context) ([]types.LedgerPoint, error) {
	rows, err := s.db.QueryContext(ctx, selectLedgerQuery)
	if err != nil {
		return nil, fmt.Errorf("query ledger: %w", err)
	}
	defer rows.Close()

	var points []types.LedgerPoint
	for rows.Next() {
		var pt types.LedgerPoint
		if err := rows.Scan(&pt.Date, &pt.CumulativePnL); err != nil {
			return nil, fmt.Errorf("scan ledger row: %w", err)
		}
		points = append(points, pt)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate ledger: %w", err)
	}

	return points, nil
}

// Close closes the database connection.
func (s *SQLStore) Close() error {
	s.logger.Info("closing-sql-storage", zap.String("dialect", s.dialect.String()))
	return s.db.Close()
}

func scanPosition(rows *sql.Rows) (types.Position, error) {
	var (
		p          types.Position
		side       string
		status     string
		createdAt  timeValue
		resolvedAt timeValue
	)

	err := rows.Scan(
		&p.ID, &createdAt, &p.WhaleAddress, &p.MarketID, &p.Outcome, &side,
		&p.EntryPrice, &p.Stake, &p.Question, &p.IsResolved, &p.PnL, &status, &resolvedAt,
	)
	if err != nil {
		return p, err
	}

	p.Side = types.Side(side)
	p.ResolutionStatus = types.ResolutionStatus(status)
	p.CreatedAt = createdAt.Time
	if resolvedAt.Valid {
		t := resolvedAt.Time
		p.ResolvedAt = &t
	}

	return p, nil
}

// timeValue scans timestamps from drivers that return either time.Time or text.
type timeValue struct {
	Time  time.Time
	Valid bool
}

var timeLayouts = []string{
	time.RFC3339Nano,
	"2006-01-02 15:04:05.999999999-07:00",
	"2006-01-02 15:04:05.999999999Z07:00",
	"2006-01-02 15:04:05.999999999",
	"2006-01-02 15:04:05",
}

// Scan implements sql.Scanner.
func (t *timeValue) Scan(src any) error {
	*t = timeValue{}

	switch v := src.(type) {
	case nil:
		return nil
	case time.Time:
		t.Time, t.Valid = v.UTC(), true
		return nil
	case int64:
		t.Time, t.Valid = time.Unix(v, 0).UTC(), true
		return nil
	case []byte:
		return t.parse(string(v))
	case string:
		return t.parse(v)
	default:
		return fmt.Errorf("unsupported time type %T", src)
	}
}

func (t *timeValue) parse(s string) error {
	for _, layout := range timeLayouts {
		if parsed, err := time.Parse(layout, s); err == nil {
			t.Time, t.Valid = parsed.UTC(), true
			return nil
		}
	}
	return errors.New("unparseable timestamp " + s)
}

package storage

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/mselser95/polymarket-whalesim/internal/ledger"
	"github.com/mselser95/polymarket-whalesim/pkg/types"
)

// MemoryStore implements Store in process memory. Data is lost on exit.
type MemoryStore struct {
	mu        sync.Mutex
	positions map[string]*types.Position
	order     []string
	ledger    []types.LedgerPoint
	logger    *zap.Logger
}

// NewMemoryStore creates an empty in-memory store.
func NewMemoryStore(logger *zap.Logger) *MemoryStore {
	if logger == nil {
		logger = zap.NewNop()
	}
	logger.Info("memory-storage-initialized")

	return &MemoryStore{
		positions: make(map[string]*types.Position),
		logger:    logger,
	}
}

// InsertPosition stores a copy of p as an open position.
func (m *MemoryStore) InsertPosition(_ context.Context, p *types.Position) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, exists := m.positions[p.ID]; exists {
		return fmt.Errorf("insert position: duplicate id %s", p.ID)
	}

	stored := *p
	stored.IsResolved = false
	stored.PnL = decimal.Zero
	stored.ResolutionStatus = types.StatusOpen
	stored.ResolvedAt = nil
	if stored.CreatedAt.IsZero() {
		stored.CreatedAt = time.Now().UTC()
	}

	m.positions[p.ID] = &stored
	m.order = append(m.order, p.ID)
	PositionsInsertedTotal.Inc()

	return nil
}

// OpenPositions returns copies of every unresolved position in insertion order.
func (m *MemoryStore) OpenPositions(_ context.Context) ([]types.Position, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	var out []types.Position
	for _, id := range m.order {
		if p := m.positions[id]; !p.IsResolved {
			out = append(out, *p)
		}
	}
	return out, nil
}

// Position returns a copy of one position.
func (m *MemoryStore) Position(_ context.Context, id string) (*types.Position, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	p, ok := m.positions[id]
	if !ok {
		return nil, types.ErrPositionNotFound
	}
	cp := *p
	return &cp, nil
}

// SettlePosition applies the terminal transition if the position is still open.
func (m *MemoryStore) SettlePosition(_ context.Context, s types.Settlement) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	p, ok := m.positions[s.PositionID]
	if !ok || p.IsResolved {
		return false, nil
	}

	resolvedAt := s.ResolvedAt.UTC()
	p.IsResolved = true
	p.PnL = s.PnL
	p.ResolutionStatus = s.Status
	p.ResolvedAt = &resolvedAt

	return true, nil
}

// RebuildLedger recomputes the ledger from every resolved position.
func (m *MemoryStore) RebuildLedger(_ context.Context) ([]types.LedgerPoint, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	var entries []types.RealizedPnL
	for _, p := range m.positions {
		if p.IsResolved && p.ResolvedAt != nil {
			entries = append(entries, types.RealizedPnL{ResolvedAt: *p.ResolvedAt, PnL: p.PnL})
		}
	}

	m.ledger = ledger.Build(entries)

	out := make([]types.LedgerPoint, len(m.ledger))
	copy(out, m.ledger)
	return out, nil
}

// Ledger returns the last rebuilt ledger.
func (m *MemoryStore) Ledger(_ context.Context) ([]types.LedgerPoint, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	out := make([]types.LedgerPoint, len(m.ledger))
	copy(out, m.ledger)
	sort.Slice(out, func(i, j int) bool { return out[i].Date < out[j].Date })
	return out, nil
}

// Close is a no-op for memory storage.
func (m *MemoryStore) Close() error {
	m.logger.Info("closing-memory-storage")
	return nil
}

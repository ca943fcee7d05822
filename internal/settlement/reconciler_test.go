package settlement

import (
	"context"
	"errors"
	"math"
	"sync"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/mselser95/polymarket-whalesim/internal/oracle"
	"github.com/mselser95/polymarket-whalesim/internal/storage"
	"github.com/mselser95/polymarket-whalesim/internal/testutil"
	"github.com/mselser95/polymarket-whalesim/pkg/types"
)

type stubOracle struct {
	mu          sync.Mutex
	resolutions map[string]types.Resolution
	err         error
	calls       [][]string
}

func (s *stubOracle) GetResolutions(_ context.Context, ids []string) (map[string]types.Resolution, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.calls = append(s.calls, ids)
	out := make(map[string]types.Resolution)
	for _, id := range ids {
		if res, ok := s.resolutions[id]; ok {
			out[id] = res
		}
	}
	return out, s.err
}

func resolved(id string, outcomes []string, prices []float64) types.Resolution {
	return types.Resolution{
		MarketID: id,
		Closed:   true,
		Resolved: true,
		Outcomes: outcomes,
		Prices:   prices,
	}
}

// flakyStore fails selected operations on top of a memory store.
type flakyStore struct {
	*storage.MemoryStore
	failSettle  map[string]bool
	failRebuild int
}

func (f *flakyStore) SettlePosition(ctx context.Context, s types.Settlement) (bool, error) {
	if f.failSettle[s.PositionID] {
		return false, errors.New("write conflict")
	}
	return f.MemoryStore.SettlePosition(ctx, s)
}

func (f *flakyStore) RebuildLedger(ctx context.Context) ([]types.LedgerPoint, error) {
	if f.failRebuild > 0 {
		f.failRebuild--
		return nil, errors.New("disk full")
	}
	return f.MemoryStore.RebuildLedger(ctx)
}

func insert(t *testing.T, store *storage.MemoryStore, marketID, outcome string, side types.Side, price, stake string) *types.Position {
	t.Helper()

	p := testutil.CreateTestPosition(marketID, outcome, side, price)
	p.Stake = decimal.RequireFromString(stake)
	require.NoError(t, store.InsertPosition(context.Background(), p))
	return p
}

func newTestReconciler(t *testing.T, store Store, src ResolutionSource, now time.Time) *Reconciler {
	t.Helper()

	r, err := New(Config{
		Store:  store,
		Oracle: src,
		Logger: zap.NewNop(),
		Now:    func() time.Time { return now },
	})
	require.NoError(t, err)
	return r
}

var day1 = time.Date(2024, 3, 1, 10, 0, 0, 0, time.UTC)

func TestNew_Validation(t *testing.T) {
	_, err := New(Config{Oracle: &stubOracle{}})
	assert.Error(t, err)

	_, err = New(Config{Store: storage.NewMemoryStore(zap.NewNop())})
	assert.Error(t, err)

	r, err := New(Config{Store: storage.NewMemoryStore(zap.NewNop()), Oracle: &stubOracle{}})
	require.NoError(t, err)
	assert.Equal(t, DefaultInterval, r.interval)
}

func TestRunOnce_NoOpenPositions(t *testing.T) {
	src := &stubOracle{}
	r := newTestReconciler(t, storage.NewMemoryStore(zap.NewNop()), src, day1)

	report, err := r.RunOnce(context.Background())
	require.NoError(t, err)
	assert.Zero(t, report.OpenPositions)
	assert.Empty(t, src.calls)
	assert.Nil(t, report.Ledger)
}

func TestRunOnce_Settles(t *testing.T) {
	store := storage.NewMemoryStore(zap.NewNop())

	buyYes := insert(t, store, "0xm1", "Yes", types.SideBuy, "0.40", "1")
	sellYes := insert(t, store, "0xm1", "yes ", types.SideSell, "0.40", "1")
	stillOpen := insert(t, store, "0xm2", "Yes", types.SideBuy, "0.50", "1")
	unmatched := insert(t, store, "0xm3", "Maybe", types.SideBuy, "0.50", "1")
	corrupt := insert(t, store, "0xm4", "Yes", types.SideBuy, "0.50", "1")

	src := &stubOracle{resolutions: map[string]types.Resolution{
		"0xm1": resolved("0xm1", []string{"Yes", "No"}, []float64{1, 0}),
		"0xm2": {MarketID: "0xm2", Closed: false, Outcomes: []string{"Yes", "No"}, Prices: []float64{0.5, 0.5}},
		"0xm3": resolved("0xm3", []string{"Yes", "No"}, []float64{0, 1}),
		"0xm4": {MarketID: "0xm4", Status: "RESOLVED", Resolved: true, Outcomes: []string{"Yes", "No"}, Prices: []float64{1}},
	}}

	r := newTestReconciler(t, store, src, day1)
	report, err := r.RunOnce(context.Background())
	require.NoError(t, err)
	require.NoError(t, report.Err())

	require.Len(t, src.calls, 1)
	assert.ElementsMatch(t, []string{"0xm1", "0xm2", "0xm3", "0xm4"}, src.calls[0])

	assert.Equal(t, 5, report.OpenPositions)
	assert.Equal(t, 4, report.Markets)
	assert.Equal(t, 2, report.ResolvedMarkets)
	assert.Equal(t, 1, report.RejectedMarkets)
	assert.Equal(t, 2, report.Settled)
	assert.Equal(t, 1, report.Unmatched)

	ctx := context.Background()

	got, err := store.Position(ctx, buyYes.ID)
	require.NoError(t, err)
	assert.True(t, got.IsResolved)
	assert.Equal(t, types.StatusSettled, got.ResolutionStatus)
	assert.Equal(t, "1.5", got.PnL.String())
	require.NotNil(t, got.ResolvedAt)
	assert.True(t, got.ResolvedAt.Equal(day1))

	got, err = store.Position(ctx, sellYes.ID)
	require.NoError(t, err)
	assert.Equal(t, "-1", got.PnL.String())

	got, err = store.Position(ctx, unmatched.ID)
	require.NoError(t, err)
	assert.True(t, got.IsResolved)
	assert.Equal(t, types.StatusUnmatched, got.ResolutionStatus)
	assert.True(t, got.PnL.IsZero())

	for _, id := range []string{stillOpen.ID, corrupt.ID} {
		got, err = store.Position(ctx, id)
		require.NoError(t, err)
		assert.False(t, got.IsResolved)
		assert.True(t, got.PnL.IsZero())
	}

	require.Len(t, report.Ledger, 1)
	assert.Equal(t, "2024-03-01", report.Ledger[0].Date)
	assert.Equal(t, "0.5", report.Ledger[0].CumulativePnL.String())
}

func TestRunOnce_Idempotent(t *testing.T) {
	store := storage.NewMemoryStore(zap.NewNop())
	settled := insert(t, store, "0xm1", "Yes", types.SideBuy, "0.40", "1")
	insert(t, store, "0xm2", "Yes", types.SideBuy, "0.50", "1")

	src := &stubOracle{resolutions: map[string]types.Resolution{
		"0xm1": resolved("0xm1", []string{"Yes", "No"}, []float64{1, 0}),
	}}

	r := newTestReconciler(t, store, src, day1)
	first, err := r.RunOnce(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, first.Settled)

	// A later run on another day must not move already-settled PnL to that day.
	r.now = func() time.Time { return day1.Add(48 * time.Hour) }
	second, err := r.RunOnce(context.Background())
	require.NoError(t, err)
	assert.Zero(t, second.Settled)
	assert.Equal(t, 1, second.OpenPositions)

	assert.Equal(t, first.Ledger, second.Ledger)

	got, err := store.Position(context.Background(), settled.ID)
	require.NoError(t, err)
	assert.Equal(t, "1.5", got.PnL.String())
	assert.True(t, got.ResolvedAt.Equal(day1))

	stored, err := store.Ledger(context.Background())
	require.NoError(t, err)
	assert.Equal(t, first.Ledger, stored)
}

func TestRunOnce_LedgerAcrossDays(t *testing.T) {
	store := storage.NewMemoryStore(zap.NewNop())
	src := &stubOracle{resolutions: map[string]types.Resolution{
		"0xa": resolved("0xa", []string{"Yes", "No"}, []float64{1, 0}),
	}}

	// +2.0 on day 1
	insert(t, store, "0xa", "Yes", types.SideBuy, "0.5", "2")
	r := newTestReconciler(t, store, src, day1)
	_, err := r.RunOnce(context.Background())
	require.NoError(t, err)

	// -0.5 and +1.0 on day 2
	src.resolutions["0xb"] = resolved("0xb", []string{"Yes", "No"}, []float64{0, 1})
	insert(t, store, "0xb", "Yes", types.SideBuy, "0.5", "0.5")
	insert(t, store, "0xa", "Yes", types.SideBuy, "0.5", "1")

	r.now = func() time.Time { return day1.Add(24 * time.Hour) }
	report, err := r.RunOnce(context.Background())
	require.NoError(t, err)

	require.Len(t, report.Ledger, 2)
	assert.Equal(t, "2024-03-01", report.Ledger[0].Date)
	assert.Equal(t, "2", report.Ledger[0].CumulativePnL.String())
	assert.Equal(t, "2024-03-02", report.Ledger[1].Date)
	assert.Equal(t, "2.5", report.Ledger[1].CumulativePnL.String())
}

func TestRunOnce_OracleFailureKeepsMarketsOpen(t *testing.T) {
	store := storage.NewMemoryStore(zap.NewNop())
	insert(t, store, "0xm1", "Yes", types.SideBuy, "0.40", "1")
	pending := insert(t, store, "0xm2", "Yes", types.SideBuy, "0.40", "1")

	src := &stubOracle{
		resolutions: map[string]types.Resolution{
			"0xm1": resolved("0xm1", []string{"Yes", "No"}, []float64{1, 0}),
		},
		err: errors.New("fetch batch: status 503"),
	}

	r := newTestReconciler(t, store, src, day1)
	report, err := r.RunOnce(context.Background())
	require.NoError(t, err)
	require.Error(t, report.OracleErr)
	assert.Equal(t, 1, report.Settled)

	got, err := store.Position(context.Background(), pending.ID)
	require.NoError(t, err)
	assert.False(t, got.IsResolved)
}

func TestRunOnce_SettleFailureContinues(t *testing.T) {
	mem := storage.NewMemoryStore(zap.NewNop())
	bad := insert(t, mem, "0xm1", "Yes", types.SideBuy, "0.40", "1")
	good := insert(t, mem, "0xm1", "No", types.SideBuy, "0.60", "1")

	store := &flakyStore{MemoryStore: mem, failSettle: map[string]bool{bad.ID: true}}
	src := &stubOracle{resolutions: map[string]types.Resolution{
		"0xm1": resolved("0xm1", []string{"Yes", "No"}, []float64{1, 0}),
	}}

	r := newTestReconciler(t, store, src, day1)
	report, err := r.RunOnce(context.Background())
	require.NoError(t, err)

	require.Len(t, report.Failures, 1)
	var settleErr *types.SettleError
	require.ErrorAs(t, report.Err(), &settleErr)
	assert.Equal(t, bad.ID, settleErr.PositionID)
	assert.Equal(t, 1, report.Settled)

	got, err := mem.Position(context.Background(), good.ID)
	require.NoError(t, err)
	assert.True(t, got.IsResolved)
	assert.Equal(t, "-1", got.PnL.String())
}

func TestRunOnce_LedgerFailureRetriedWithoutOpenPositions(t *testing.T) {
	mem := storage.NewMemoryStore(zap.NewNop())
	insert(t, mem, "0xm1", "Yes", types.SideBuy, "0.40", "1")

	store := &flakyStore{MemoryStore: mem, failRebuild: 1}
	src := &stubOracle{resolutions: map[string]types.Resolution{
		"0xm1": resolved("0xm1", []string{"Yes", "No"}, []float64{1, 0}),
	}}

	r := newTestReconciler(t, store, src, day1)
	_, err := r.RunOnce(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "rebuild ledger")

	report, err := r.RunOnce(context.Background())
	require.NoError(t, err)
	assert.Zero(t, report.OpenPositions)
	require.Len(t, report.Ledger, 1)
	assert.Equal(t, "1.5", report.Ledger[0].CumulativePnL.String())
}

func TestRunOnce_ConcurrentReconcilersSettleOnce(t *testing.T) {
	store := storage.NewMemoryStore(zap.NewNop())
	for range 20 {
		insert(t, store, "0xm1", "Yes", types.SideBuy, "0.40", "1")
	}

	src := &stubOracle{resolutions: map[string]types.Resolution{
		"0xm1": resolved("0xm1", []string{"Yes", "No"}, []float64{1, 0}),
	}}

	reports := make([]*RunReport, 2)
	var wg sync.WaitGroup
	for i := range reports {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			r := newTestReconciler(t, store, src, day1)
			report, err := r.RunOnce(context.Background())
			assert.NoError(t, err)
			reports[i] = report
		}(i)
	}
	wg.Wait()

	assert.Equal(t, 20, reports[0].Settled+reports[1].Settled)

	points, err := store.Ledger(context.Background())
	require.NoError(t, err)
	require.Len(t, points, 1)
	assert.Equal(t, "30", points[0].CumulativePnL.String())
}

func TestRunOnce_WithGammaAPI(t *testing.T) {
	mock := testutil.NewMockGammaAPI(
		testutil.ResolvedMarket("0xm1", []string{"Yes", "No"}, []string{"0.994", "0.004"}),
		testutil.OpenMarket("0xm2"),
	)
	defer mock.Close()

	store := storage.NewMemoryStore(zap.NewNop())
	win := insert(t, store, "0xm1", "Yes", types.SideBuy, "0.5", "1")
	open := insert(t, store, "0xm2", "Yes", types.SideBuy, "0.5", "1")

	client := oracle.NewClient(oracle.Config{BaseURL: mock.URL, Logger: zap.NewNop()})
	r := newTestReconciler(t, store, client, day1)

	report, err := r.RunOnce(context.Background())
	require.NoError(t, err)
	assert.NoError(t, report.OracleErr)
	assert.Equal(t, 1, report.Settled)

	got, err := store.Position(context.Background(), win.ID)
	require.NoError(t, err)
	assert.InDelta(t, 0.988, got.PnL.InexactFloat64(), 1e-9)

	got, err = store.Position(context.Background(), open.ID)
	require.NoError(t, err)
	assert.False(t, got.IsResolved)
}

func TestRunOnce_CorruptPricesStayOpen(t *testing.T) {
	store := storage.NewMemoryStore(zap.NewNop())

	ids := []string{"0xinf", "0xneginf", "0xnan", "0xneg"}
	positions := make([]*types.Position, 0, len(ids))
	for _, id := range ids {
		positions = append(positions, insert(t, store, id, "Yes", types.SideBuy, "0.5", "1"))
	}

	src := &stubOracle{resolutions: map[string]types.Resolution{
		"0xinf":    resolved("0xinf", []string{"Yes", "No"}, []float64{math.Inf(1), 0}),
		"0xneginf": resolved("0xneginf", []string{"Yes", "No"}, []float64{math.Inf(-1), 1}),
		"0xnan":    resolved("0xnan", []string{"Yes", "No"}, []float64{math.NaN(), 1}),
		"0xneg":    resolved("0xneg", []string{"Yes", "No"}, []float64{-0.5, 1.5}),
	}}

	r := newTestReconciler(t, store, src, day1)

	var report *RunReport
	require.NotPanics(t, func() {
		var err error
		report, err = r.RunOnce(context.Background())
		require.NoError(t, err)
	})
	require.NoError(t, report.Err())
	assert.Equal(t, 0, report.Settled)
	assert.Equal(t, len(ids), report.RejectedMarkets)

	for _, p := range positions {
		got, err := store.Position(context.Background(), p.ID)
		require.NoError(t, err)
		assert.False(t, got.IsResolved, p.MarketID)
		assert.True(t, got.PnL.IsZero(), p.MarketID)
	}
}

func TestRunOnce_WithGammaAPIInfinitePrice(t *testing.T) {
	mock := testutil.NewMockGammaAPI(
		testutil.ResolvedMarket("0xm1", []string{"Yes", "No"}, []string{"Infinity", "0"}),
	)
	defer mock.Close()

	store := storage.NewMemoryStore(zap.NewNop())
	pos := insert(t, store, "0xm1", "Yes", types.SideBuy, "0.5", "1")

	client := oracle.NewClient(oracle.Config{BaseURL: mock.URL, Logger: zap.NewNop()})
	r := newTestReconciler(t, store, client, day1)

	var report *RunReport
	require.NotPanics(t, func() {
		var err error
		report, err = r.RunOnce(context.Background())
		require.NoError(t, err)
	})
	assert.NoError(t, report.OracleErr)
	assert.Equal(t, 0, report.Settled)

	got, err := store.Position(context.Background(), pos.ID)
	require.NoError(t, err)
	assert.False(t, got.IsResolved)
	assert.True(t, got.PnL.IsZero())
}

func TestRun_StopsOnCancel(t *testing.T) {
	store := storage.NewMemoryStore(zap.NewNop())
	insert(t, store, "0xm1", "Yes", types.SideBuy, "0.40", "1")

	src := &stubOracle{resolutions: map[string]types.Resolution{}}
	r, err := New(Config{Store: store, Oracle: src, Interval: 10 * time.Millisecond, Logger: zap.NewNop()})
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- r.Run(ctx) }()

	require.Eventually(t, func() bool {
		src.mu.Lock()
		defer src.mu.Unlock()
		return len(src.calls) >= 2
	}, 2*time.Second, 5*time.Millisecond)

	cancel()
	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(2 * time.Second):
		t.Fatal("Run did not stop")
	}
}

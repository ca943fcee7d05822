package oracle

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/mselser95/polymarket-whalesim/internal/testutil"
)

func newTestClient(t *testing.T, baseURL string, batchSize int, delay time.Duration) *Client {
	t.Helper()

	logger, _ := zap.NewDevelopment()
	return NewClient(Config{
		BaseURL:    baseURL,
		BatchSize:  batchSize,
		BatchDelay: delay,
		Timeout:    2 * time.Second,
		Logger:     logger,
	})
}

func TestClient_GetResolutions(t *testing.T) {
	mock := testutil.NewMockGammaAPI(
		testutil.ResolvedMarket("0xresolved", []string{"Yes", "No"}, []string{"1", "0"}),
		testutil.OpenMarket("0xopen"),
		map[string]any{
			"conditionId":         "0xuma",
			"closed":              false,
			"umaResolutionStatus": "resolved",
			"outcomes":            []string{"Up", "Down"},
			"outcomePrices":       []any{nil, "1"},
		},
	)
	defer mock.Close()

	client := newTestClient(t, mock.URL, 50, 0)

	got, err := client.GetResolutions(context.Background(), []string{"0xresolved", "0xopen", "0xuma", "0xunknown"})
	require.NoError(t, err)

	require.Contains(t, got, "0xresolved")
	assert.True(t, got["0xresolved"].Resolved)
	assert.Equal(t, []string{"Yes", "No"}, got["0xresolved"].Outcomes)
	assert.Equal(t, []float64{1, 0}, got["0xresolved"].Prices)

	require.Contains(t, got, "0xopen")
	assert.False(t, got["0xopen"].Resolved)

	require.Contains(t, got, "0xuma")
	assert.True(t, got["0xuma"].Resolved)
	assert.Equal(t, []float64{0, 1}, got["0xuma"].Prices)

	assert.NotContains(t, got, "0xunknown")
}

func TestClient_Batching(t *testing.T) {
	mock := testutil.NewMockGammaAPI()
	defer mock.Close()

	ids := make([]string, 0, 120)
	for i := range 120 {
		id := fmt.Sprintf("0x%03d", i)
		ids = append(ids, id)
		mock.AddMarket(testutil.OpenMarket(id))
	}
	// duplicates are collapsed
	ids = append(ids, "0x000", "0x001")

	client := newTestClient(t, mock.URL, 50, 0)

	got, err := client.GetResolutions(context.Background(), ids)
	require.NoError(t, err)
	assert.Len(t, got, 120)

	batches := mock.Batches()
	require.Len(t, batches, 3)
	assert.Len(t, batches[0], 50)
	assert.Len(t, batches[1], 50)
	assert.Len(t, batches[2], 20)
}

func TestClient_BatchSizeCapped(t *testing.T) {
	client := newTestClient(t, "http://unused", 500, 0)
	assert.Equal(t, MaxBatchSize, client.batchSize)
}

func TestClient_BatchDelay(t *testing.T) {
	mock := testutil.NewMockGammaAPI()
	defer mock.Close()

	ids := []string{"0xa", "0xb", "0xc"}
	client := newTestClient(t, mock.URL, 1, 100*time.Millisecond)

	start := time.Now()
	_, err := client.GetResolutions(context.Background(), ids)
	require.NoError(t, err)

	// three batches: first immediate, then two spaced waits
	assert.GreaterOrEqual(t, time.Since(start), 180*time.Millisecond)
	assert.Equal(t, 3, mock.Requests())
}

func TestClient_PartialFailure(t *testing.T) {
	mock := testutil.NewMockGammaAPI(
		testutil.ResolvedMarket("0xgood", []string{"Yes", "No"}, []string{"0", "1"}),
		testutil.ResolvedMarket("0xbad", []string{"Yes", "No"}, []string{"1", "0"}),
	)
	defer mock.Close()
	mock.FailMarket("0xbad")

	client := newTestClient(t, mock.URL, 1, 0)

	got, err := client.GetResolutions(context.Background(), []string{"0xbad", "0xgood"})
	require.Error(t, err)
	assert.Contains(t, got, "0xgood")
	assert.NotContains(t, got, "0xbad")
}

func TestClient_ContextCancelled(t *testing.T) {
	mock := testutil.NewMockGammaAPI(testutil.OpenMarket("0xa"))
	defer mock.Close()

	client := newTestClient(t, mock.URL, 50, 0)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := client.GetResolutions(ctx, []string{"0xa"})
	assert.Error(t, err)
}

func TestClient_EmptyInput(t *testing.T) {
	mock := testutil.NewMockGammaAPI()
	defer mock.Close()

	client := newTestClient(t, mock.URL, 50, 0)

	got, err := client.GetResolutions(context.Background(), nil)
	require.NoError(t, err)
	assert.Empty(t, got)
	assert.Equal(t, 0, mock.Requests())
}

func TestClient_MarketStatus(t *testing.T) {
	mock := testutil.NewMockGammaAPI(
		testutil.OpenMarket("0xopen"),
		testutil.ResolvedMarket("0xclosed", []string{"Yes", "No"}, []string{"1", "0"}),
	)
	defer mock.Close()

	client := newTestClient(t, mock.URL, 50, 0)
	ctx := context.Background()

	status, err := client.MarketStatus(ctx, "0xopen")
	require.NoError(t, err)
	assert.False(t, status.Closed)
	assert.Equal(t, "Open market 0xopen", status.Question)

	status, err = client.MarketStatus(ctx, "0xclosed")
	require.NoError(t, err)
	assert.True(t, status.Closed)

	status, err = client.MarketStatus(ctx, "0xmissing")
	require.NoError(t, err)
	assert.False(t, status.Closed)
}

func TestClient_UpstreamError(t *testing.T) {
	mock := testutil.NewMockGammaAPI(testutil.OpenMarket("0xa"))
	defer mock.Close()
	mock.FailNext(1)

	client := newTestClient(t, mock.URL, 50, 0)

	_, err := client.MarketStatus(context.Background(), "0xa")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "503")

	status, err := client.MarketStatus(context.Background(), "0xa")
	require.NoError(t, err)
	assert.False(t, status.Closed)
}

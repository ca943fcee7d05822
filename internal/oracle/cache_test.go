package oracle

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/mselser95/polymarket-whalesim/pkg/cache"
)

type stubFetcher struct {
	mu       sync.Mutex
	statuses map[string]MarketStatus
	err      error
	calls    int
}

func (s *stubFetcher) MarketStatus(_ context.Context, marketID string) (MarketStatus, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.calls++
	if s.err != nil {
		return MarketStatus{MarketID: marketID}, s.err
	}
	return s.statuses[marketID], nil
}

func (s *stubFetcher) Calls() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.calls
}

func newStatusCache(t *testing.T) *cache.RistrettoCache {
	t.Helper()

	c, err := cache.NewRistrettoCache(cache.DefaultRistrettoConfig("oracle-test", 100, zap.NewNop()))
	require.NoError(t, err)
	t.Cleanup(c.Close)
	return c
}

func TestCachedStatusClient_Hit(t *testing.T) {
	stub := &stubFetcher{statuses: map[string]MarketStatus{
		"0xa": {MarketID: "0xa", Closed: true},
	}}
	c := newStatusCache(t)
	client := NewCachedStatusClient(stub, c, time.Minute)

	status, err := client.MarketStatus(context.Background(), "0xa")
	require.NoError(t, err)
	assert.True(t, status.Closed)
	c.Wait()

	status, err = client.MarketStatus(context.Background(), "0xa")
	require.NoError(t, err)
	assert.True(t, status.Closed)
	assert.Equal(t, 1, stub.Calls())
}

func TestCachedStatusClient_OpenExpires(t *testing.T) {
	stub := &stubFetcher{statuses: map[string]MarketStatus{
		"0xa": {MarketID: "0xa", Closed: false},
	}}
	c := newStatusCache(t)
	client := NewCachedStatusClient(stub, c, 50*time.Millisecond)

	_, err := client.MarketStatus(context.Background(), "0xa")
	require.NoError(t, err)
	c.Wait()

	time.Sleep(100 * time.Millisecond)

	_, err = client.MarketStatus(context.Background(), "0xa")
	require.NoError(t, err)
	assert.Equal(t, 2, stub.Calls())
}

func TestCachedStatusClient_ErrorsNotCached(t *testing.T) {
	stub := &stubFetcher{err: errors.New("down")}
	c := newStatusCache(t)
	client := NewCachedStatusClient(stub, c, time.Minute)

	_, err := client.MarketStatus(context.Background(), "0xa")
	require.Error(t, err)
	c.Wait()

	_, err = client.MarketStatus(context.Background(), "0xa")
	require.Error(t, err)
	assert.Equal(t, 2, stub.Calls())
}

func TestCachedStatusClient_NilCache(t *testing.T) {
	stub := &stubFetcher{statuses: map[string]MarketStatus{}}
	client := NewCachedStatusClient(stub, nil, 0)

	_, _ = client.MarketStatus(context.Background(), "0xa")
	_, _ = client.MarketStatus(context.Background(), "0xa")
	assert.Equal(t, 2, stub.Calls())
}

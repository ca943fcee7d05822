package testutil

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"sync/atomic"

	json "github.com/goccy/go-json"
)

// MockGammaAPI is a mock HTTP server that simulates the Gamma /markets endpoint.
// Markets are stored as raw JSON objects so tests control the exact wire encoding.
type MockGammaAPI struct {
	*httptest.Server
	markets  map[string]map[string]any
	failIDs  map[string]bool
	failNext atomic.Int32
	requests atomic.Int32
	batches  [][]string
	mu       sync.RWMutex
}

// NewMockGammaAPI creates a new mock Gamma API server.
func NewMockGammaAPI(markets ...map[string]any) *MockGammaAPI {
	mock := &MockGammaAPI{
		markets: make(map[string]map[string]any),
		failIDs: make(map[string]bool),
	}
	for _, m := range markets {
		mock.AddMarket(m)
	}

	handler := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/markets" {
			http.NotFound(w, r)
			return
		}
		mock.requests.Add(1)

		var ids []string
		if raw := r.URL.Query().Get("condition_ids"); raw != "" {
			ids = strings.Split(raw, ",")
		}

		mock.mu.Lock()
		mock.batches = append(mock.batches, ids)
		mock.mu.Unlock()

		if mock.failNext.Load() > 0 {
			mock.failNext.Add(-1)
			http.Error(w, "upstream unavailable", http.StatusServiceUnavailable)
			return
		}

		mock.mu.RLock()
		defer mock.mu.RUnlock()

		out := make([]map[string]any, 0, len(ids))
		for _, id := range ids {
			if mock.failIDs[id] {
				http.Error(w, "boom", http.StatusInternalServerError)
				return
			}
			if m, ok := mock.markets[id]; ok {
				out = append(out, m)
			}
		}

		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(out)
	})

	mock.Server = httptest.NewServer(handler)
	return mock
}

// AddMarket adds or replaces a market, keyed by its conditionId.
func (m *MockGammaAPI) AddMarket(market map[string]any) {
	id, _ := market["conditionId"].(string)

	m.mu.Lock()
	defer m.mu.Unlock()
	m.markets[id] = market
}

// FailMarket makes every batch containing id return HTTP 500.
func (m *MockGammaAPI) FailMarket(id string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.failIDs[id] = true
}

// FailNext makes the next n requests return HTTP 503.
func (m *MockGammaAPI) FailNext(n int) {
	m.failNext.Store(int32(n))
}

// Requests returns the number of /markets requests served.
func (m *MockGammaAPI) Requests() int {
	return int(m.requests.Load())
}

// Batches returns the condition IDs of every request, in order.
func (m *MockGammaAPI) Batches() [][]string {
	m.mu.RLock()
	defer m.mu.RUnlock()

	out := make([][]string, len(m.batches))
	copy(out, m.batches)
	return out
}

// MockDataAPI simulates the Data API /positions endpoint.
type MockDataAPI struct {
	*httptest.Server
	positions map[string][]map[string]any
	failUsers map[string]bool
	mu        sync.RWMutex
}

// NewMockDataAPI creates a new mock Data API server.
func NewMockDataAPI() *MockDataAPI {
	mock := &MockDataAPI{
		positions: make(map[string][]map[string]any),
		failUsers: make(map[string]bool),
	}

	handler := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/positions" {
			http.NotFound(w, r)
			return
		}

		user := strings.ToLower(r.URL.Query().Get("user"))

		mock.mu.RLock()
		defer mock.mu.RUnlock()

		if mock.failUsers[user] {
			http.Error(w, "boom", http.StatusInternalServerError)
			return
		}

		out := mock.positions[user]
		if out == nil {
			out = []map[string]any{}
		}

		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(out)
	})

	mock.Server = httptest.NewServer(handler)
	return mock
}

// AddPosition registers a holding for user.
func (m *MockDataAPI) AddPosition(user string, position map[string]any) {
	m.mu.Lock()
	defer m.mu.Unlock()
	user = strings.ToLower(user)
	m.positions[user] = append(m.positions[user], position)
}

// FailUser makes requests for user return HTTP 500.
func (m *MockDataAPI) FailUser(user string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.failUsers[strings.ToLower(user)] = true
}

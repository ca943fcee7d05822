package testutil

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"sync/atomic"

	"github.com/gorilla/websocket"
)

// MockFeed is a websocket server that records subscriptions and pushes frames to connected clients.
type MockFeed struct {
	*httptest.Server
	upgrader      websocket.Upgrader
	conns         []*websocket.Conn
	subscriptions [][]byte
	connects      atomic.Int32
	onSubscribe   func(send func(frame []byte))
	mu            sync.Mutex
}

// NewMockFeed starts a mock feed server.
func NewMockFeed() *MockFeed {
	mock := &MockFeed{}

	mock.Server = httptest.NewServer(http.HandlerFunc(mock.handle))
	return mock
}

// URL returns the ws:// URL of the feed.
func (m *MockFeed) URL() string {
	return "ws" + strings.TrimPrefix(m.Server.URL, "http")
}

// OnSubscribe registers a hook invoked after each client message is read. send writes to that
// client only.
func (m *MockFeed) OnSubscribe(fn func(send func(frame []byte))) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.onSubscribe = fn
}

func (m *MockFeed) handle(w http.ResponseWriter, r *http.Request) {
	conn, err := m.upgrader.Upgrade(w, r, nil)
	if err != nil {
		return
	}
	m.connects.Add(1)

	m.mu.Lock()
	m.conns = append(m.conns, conn)
	m.mu.Unlock()

	for {
		_, data, err := conn.ReadMessage()
		if err != nil {
			return
		}

		m.mu.Lock()
		m.subscriptions = append(m.subscriptions, data)
		hook := m.onSubscribe
		m.mu.Unlock()

		if hook != nil {
			hook(func(frame []byte) {
				m.mu.Lock()
				defer m.mu.Unlock()
				_ = conn.WriteMessage(websocket.TextMessage, frame)
			})
		}
	}
}

// Broadcast writes frame to every open connection.
func (m *MockFeed) Broadcast(frame []byte) {
	m.mu.Lock()
	defer m.mu.Unlock()

	for _, conn := range m.conns {
		_ = conn.WriteMessage(websocket.TextMessage, frame)
	}
}

// DropConnections closes every open connection from the server side.
func (m *MockFeed) DropConnections() {
	m.mu.Lock()
	defer m.mu.Unlock()

	for _, conn := range m.conns {
		_ = conn.Close()
	}
	m.conns = nil
}

// Connects returns the number of accepted connections.
func (m *MockFeed) Connects() int {
	return int(m.connects.Load())
}

// Subscriptions returns every message received from clients.
func (m *MockFeed) Subscriptions() [][]byte {
	m.mu.Lock()
	defer m.mu.Unlock()

	out := make([][]byte, len(m.subscriptions))
	copy(out, m.subscriptions)
	return out
}

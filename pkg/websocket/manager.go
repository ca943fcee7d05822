package websocket

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	json "github.com/goccy/go-json"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"github.com/mselser95/polymarket-whalesim/pkg/types"
)

// DefaultURL is the Polymarket real-time data service.
const DefaultURL = "wss://ws-live-data.polymarket.com"

var errConnectionClosed = errors.New("connection closed")

// Manager owns the single feed connection: it dials, subscribes once per connection, reads
// frames into a bounded queue and reconnects with backoff until closed.
type Manager struct {
	url          string
	conn         *websocket.Conn
	logger       *zap.Logger
	reconnectMgr *ReconnectManager
	config       Config
	subscription []byte
	messageChan  chan *types.FeedMessage
	cancel       context.CancelFunc
	wg           sync.WaitGroup
	mu           sync.RWMutex
	closeOnce    sync.Once
	started      atomic.Bool
	connected    atomic.Bool
	lastPongTime atomic.Int64
	connections  atomic.Int64
}

// Config holds feed manager configuration.
type Config struct {
	URL                   string
	DialTimeout           time.Duration
	PongTimeout           time.Duration
	PingInterval          time.Duration
	ReconnectInitialDelay time.Duration
	ReconnectMaxDelay     time.Duration
	ReconnectBackoffMult  float64
	MinStableDuration     time.Duration
	MessageBufferSize     int
	// Subscription is marshalled and written after every successful dial.
	Subscription any
	Logger       *zap.Logger
}

// New creates a new feed manager. The subscription is encoded eagerly so a bad payload fails here.
func New(cfg Config) (*Manager, error) {
	if cfg.URL == "" {
		cfg.URL = DefaultURL
	}
	if cfg.Logger == nil {
		cfg.Logger = zap.NewNop()
	}
	if cfg.MessageBufferSize <= 0 {
		cfg.MessageBufferSize = 1000
	}
	if cfg.PingInterval <= 0 {
		cfg.PingInterval = 5 * time.Second
	}
	if cfg.PongTimeout <= 0 {
		cfg.PongTimeout = 3 * time.Second
	}
	if cfg.DialTimeout <= 0 {
		cfg.DialTimeout = 10 * time.Second
	}

	var subscription []byte
	if cfg.Subscription != nil {
		data, err := json.Marshal(cfg.Subscription)
		if err != nil {
			return nil, fmt.Errorf("encode subscription: %w", err)
		}
		subscription = data
	}

	reconnectCfg := ReconnectConfig{
		InitialDelay:      cfg.ReconnectInitialDelay,
		MaxDelay:          cfg.ReconnectMaxDelay,
		BackoffMultiplier: cfg.ReconnectBackoffMult,
		JitterPercent:     0.2,
		MinStableDuration: cfg.MinStableDuration,
	}

	return &Manager{
		url:          cfg.URL,
		logger:       cfg.Logger,
		reconnectMgr: NewReconnectManager(reconnectCfg, cfg.Logger),
		config:       cfg,
		subscription: subscription,
		messageChan:  make(chan *types.FeedMessage, cfg.MessageBufferSize),
	}, nil
}

// Start launches the connection loop. Transport failures are retried in the background;
// Start itself only fails when called twice.
func (m *Manager) Start(ctx context.Context) error {
	if !m.started.CompareAndSwap(false, true) {
		return errors.New("feed manager already started")
	}

	m.logger.Info("websocket-manager-starting", zap.String("url", m.url))

	runCtx, cancel := context.WithCancel(ctx)
	m.mu.Lock()
	m.cancel = cancel
	m.mu.Unlock()

	m.wg.Add(1)
	go m.run(runCtx)

	return nil
}

// run connects, serves the connection until it drops, and reconnects until ctx is done.
func (m *Manager) run(ctx context.Context) {
	defer m.wg.Done()

	connectErr := m.connect(ctx)
	for {
		if connectErr != nil {
			if ctx.Err() != nil {
				return
			}
			m.logger.Warn("websocket-connect-failed", zap.Error(connectErr))
			ReconnectFailuresTotal.Inc()
			if err := m.reconnectMgr.Reconnect(ctx, m.connect); err != nil {
				return
			}
		}

		start := time.Now()
		err := m.serve(ctx)
		held := time.Since(start)

		ConnectionDuration.Observe(held.Seconds())
		m.reconnectMgr.ConnectionClosed(held)

		if ctx.Err() != nil {
			return
		}

		m.logger.Warn("connection-lost-initiating-reconnect",
			zap.Error(err),
			zap.Duration("held-for", held))

		if err := m.reconnectMgr.Reconnect(ctx, m.connect); err != nil {
			return
		}
		connectErr = nil
	}
}

// connect dials the feed and sends the subscription.
func (m *Manager) connect(ctx context.Context) error {
	dialer := websocket.Dialer{
		HandshakeTimeout: m.config.DialTimeout,
	}

	m.logger.Info("connecting-to-websocket", zap.String("url", m.url))

	conn, _, err := dialer.DialContext(ctx, m.url, nil)
	if err != nil {
		return fmt.Errorf("dial: %w", err)
	}

	conn.SetPongHandler(func(string) error {
		m.lastPongTime.Store(time.Now().UnixNano())
		return conn.SetReadDeadline(time.Now().Add(m.readTimeout()))
	})

	if len(m.subscription) > 0 {
		_ = conn.SetWriteDeadline(time.Now().Add(m.config.DialTimeout))
		if err := conn.WriteMessage(websocket.TextMessage, m.subscription); err != nil {
			conn.Close()
			return fmt.Errorf("write subscription: %w", err)
		}
		_ = conn.SetWriteDeadline(time.Time{})
	}

	if err := conn.SetReadDeadline(time.Now().Add(m.readTimeout())); err != nil {
		conn.Close()
		return fmt.Errorf("set read deadline: %w", err)
	}

	m.mu.Lock()
	m.conn = conn
	m.mu.Unlock()

	m.connected.Store(true)
	m.lastPongTime.Store(time.Now().UnixNano())
	m.connections.Add(1)
	ActiveConnections.Set(1)

	m.logger.Info("websocket-connected")

	return nil
}

// readTimeout is how long the connection may stay silent, pongs included.
func (m *Manager) readTimeout() time.Duration {
	return m.config.PingInterval + m.config.PongTimeout
}

// serve runs the ping and read loops on the current connection until it fails or ctx is done.
func (m *Manager) serve(ctx context.Context) error {
	m.mu.RLock()
	conn := m.conn
	m.mu.RUnlock()

	done := make(chan struct{})
	var loops sync.WaitGroup

	loops.Add(2)
	go func() {
		defer loops.Done()
		m.pingLoop(conn, done)
	}()
	go func() {
		defer loops.Done()
		select {
		case <-ctx.Done():
			_ = conn.WriteControl(websocket.CloseMessage,
				websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
				time.Now().Add(time.Second))
			conn.Close()
		case <-done:
		}
	}()

	err := m.readLoop(conn)

	close(done)
	conn.Close()
	loops.Wait()

	m.mu.Lock()
	if m.conn == conn {
		m.conn = nil
	}
	m.mu.Unlock()

	m.connected.Store(false)
	ActiveConnections.Set(0)

	return err
}

// readLoop reads frames until the connection fails.
func (m *Manager) readLoop(conn *websocket.Conn) error {
	for {
		_, message, err := conn.ReadMessage()
		if err != nil {
			if websocket.IsCloseError(err, websocket.CloseNormalClosure) {
				return errConnectionClosed
			}
			return fmt.Errorf("read: %w", err)
		}

		_ = conn.SetReadDeadline(time.Now().Add(m.readTimeout()))

		for _, msg := range m.parseFrame(message) {
			MessagesReceivedTotal.WithLabelValues(msg.Topic).Inc()
			m.enqueue(msg)
		}
	}
}

// parseFrame decodes a single frame or an array of frames. Malformed input is logged and skipped.
func (m *Manager) parseFrame(message []byte) []*types.FeedMessage {
	trimmed := bytes.TrimSpace(message)
	if len(trimmed) == 0 {
		return nil
	}

	var frames []*types.FeedMessage
	var err error
	if trimmed[0] == '[' {
		err = json.Unmarshal(trimmed, &frames)
	} else {
		var frame types.FeedMessage
		err = json.Unmarshal(trimmed, &frame)
		frames = []*types.FeedMessage{&frame}
	}

	if err != nil {
		MalformedFramesTotal.Inc()
		previewLen := min(len(trimmed), 100)
		m.logger.Debug("websocket-unparseable-message",
			zap.Error(err),
			zap.Int("bytes", len(trimmed)),
			zap.String("preview", string(trimmed[:previewLen])))
		return nil
	}

	out := frames[:0]
	for _, f := range frames {
		if f == nil || f.Topic == "" {
			m.logger.Debug("websocket-control-message", zap.Int("bytes", len(trimmed)))
			continue
		}
		out = append(out, f)
	}
	return out
}

// enqueue pushes msg, evicting the oldest queued frame when the queue is full.
func (m *Manager) enqueue(msg *types.FeedMessage) {
	for {
		select {
		case m.messageChan <- msg:
			QueueDepth.Set(float64(len(m.messageChan)))
			return
		default:
		}

		select {
		case <-m.messageChan:
			MessagesDroppedTotal.WithLabelValues("queue_full").Inc()
			m.logger.Warn("message-queue-full-dropped-oldest")
		default:
		}
	}
}

// pingLoop sends periodic PING control frames until done is closed.
func (m *Manager) pingLoop(conn *websocket.Conn, done <-chan struct{}) {
	ticker := time.NewTicker(m.config.PingInterval)
	defer ticker.Stop()

	for {
		select {
		case <-done:
			return
		case <-ticker.C:
			err := conn.WriteControl(websocket.PingMessage, []byte{}, time.Now().Add(m.config.PongTimeout))
			if err != nil {
				m.logger.Warn("ping-error", zap.Error(err))
				conn.Close()
				return
			}
		}
	}
}

// MessageChan returns the channel of decoded frames. It is closed by Close.
func (m *Manager) MessageChan() <-chan *types.FeedMessage {
	return m.messageChan
}

// IsConnected reports whether a connection is currently open.
func (m *Manager) IsConnected() bool {
	return m.connected.Load()
}

// Connections returns the number of successful dials since start.
func (m *Manager) Connections() int64 {
	return m.connections.Load()
}

// LastPong returns the time of the last pong, or of the last connect.
func (m *Manager) LastPong() time.Time {
	return time.Unix(0, m.lastPongTime.Load())
}

// Reconnector exposes the backoff state machine.
func (m *Manager) Reconnector() *ReconnectManager {
	return m.reconnectMgr
}

// Close stops reconnecting, closes the socket and waits for the loops to exit.
func (m *Manager) Close() error {
	m.closeOnce.Do(func() {
		m.logger.Info("closing-websocket-manager")

		m.mu.RLock()
		cancel := m.cancel
		m.mu.RUnlock()
		if cancel != nil {
			cancel()
		}

		m.wg.Wait()
		close(m.messageChan)
		ActiveConnections.Set(0)

		m.logger.Info("websocket-manager-closed")
	})

	return nil
}

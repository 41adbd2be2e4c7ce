// Package channel owns the single duplex connection between the page
// and the server. It dials once, hands inbound frames to a single
// consumer, and redials with exponential backoff when the connection
// drops.
package channel

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"sync"
	"time"

	"github.com/cenkalti/backoff/v5"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"
)

// ErrClosed is returned by Dial after Close has torn the channel down.
var ErrClosed = errors.New("channel closed")

// State mirrors the lifecycle of the underlying connection.
type State int

const (
	StateClosed State = iota
	StateConnecting
	StateOpen
)

func (s State) String() string {
	switch s {
	case StateConnecting:
		return "connecting"
	case StateOpen:
		return "open"
	default:
		return "closed"
	}
}

// Config bounds the dial and the reconnect schedule.
type Config struct {
	DialTimeout      time.Duration
	ReconnectInitial time.Duration
	ReconnectMax     time.Duration
	ReconnectTries   uint
	Logger           *zap.Logger
}

func (c *Config) defaults() {
	if c.DialTimeout == 0 {
		c.DialTimeout = 10 * time.Second
	}
	if c.ReconnectInitial == 0 {
		c.ReconnectInitial = 500 * time.Millisecond
	}
	if c.ReconnectMax == 0 {
		c.ReconnectMax = 30 * time.Second
	}
	if c.ReconnectTries == 0 {
		c.ReconnectTries = 10
	}
	if c.Logger == nil {
		c.Logger = zap.NewNop()
	}
}

// Manager holds the one channel a page session gets. Sends are
// best-effort: a frame written while the channel is not open is
// dropped, never queued.
type Manager struct {
	endpoint string
	dialer   *websocket.Dialer
	cfg      Config
	log      *zap.Logger

	lifeCtx    context.Context
	lifeCancel context.CancelFunc

	mu      sync.Mutex
	conn    *websocket.Conn
	state   State
	handler func(string)
	closed  bool
}

// Endpoint derives the channel URL from the page origin: http becomes
// ws, https becomes wss, host and port carry over.
func Endpoint(baseURL string) (string, error) {
	u, err := url.Parse(baseURL)
	if err != nil {
		return "", fmt.Errorf("parse base url: %w", err)
	}
	switch u.Scheme {
	case "http":
		u.Scheme = "ws"
	case "https":
		u.Scheme = "wss"
	case "ws", "wss":
	default:
		return "", fmt.Errorf("unsupported scheme %q", u.Scheme)
	}
	u.Path = "/ws"
	u.RawQuery = ""
	return u.String(), nil
}

func NewManager(endpoint string, cfg Config) *Manager {
	cfg.defaults()
	ctx, cancel := context.WithCancel(context.Background())
	return &Manager{
		endpoint:   endpoint,
		dialer:     &websocket.Dialer{HandshakeTimeout: cfg.DialTimeout},
		cfg:        cfg,
		log:        cfg.Logger,
		lifeCtx:    ctx,
		lifeCancel: cancel,
	}
}

// Dial opens the channel. It is idempotent for the manager's
// lifetime: while the channel is connecting or open a second call is
// a no-op, so two impatient callers still share one connection.
func (m *Manager) Dial(ctx context.Context) error {
	m.mu.Lock()
	if m.closed {
		m.mu.Unlock()
		return ErrClosed
	}
	if m.state != StateClosed {
		m.mu.Unlock()
		return nil
	}
	m.state = StateConnecting
	m.mu.Unlock()

	dialCtx, cancel := context.WithTimeout(ctx, m.cfg.DialTimeout)
	defer cancel()

	conn, _, err := m.dialer.DialContext(dialCtx, m.endpoint, nil)
	if err != nil {
		m.mu.Lock()
		m.state = StateClosed
		m.mu.Unlock()
		return fmt.Errorf("dial %s: %w", m.endpoint, err)
	}

	m.adopt(conn)
	return nil
}

// adopt installs a fresh connection and starts its read pump.
func (m *Manager) adopt(conn *websocket.Conn) {
	m.mu.Lock()
	if m.closed {
		m.mu.Unlock()
		conn.Close()
		return
	}
	m.conn = conn
	m.state = StateOpen
	m.mu.Unlock()

	m.log.Debug("channel open", zap.String("endpoint", m.endpoint))
	go m.readPump(conn)
}

// Send writes a text frame. Delivery is best-effort: when the channel
// is not open the payload is dropped and the drop logged, matching
// the fire-and-forget chat policy.
func (m *Manager) Send(payload string) {
	m.mu.Lock()
	conn, state := m.conn, m.state
	if state != StateOpen {
		m.mu.Unlock()
		m.log.Debug("send dropped, channel not open", zap.Stringer("state", state))
		return
	}
	err := conn.WriteMessage(websocket.TextMessage, []byte(payload))
	m.mu.Unlock()

	if err != nil {
		m.log.Debug("send failed", zap.Error(err))
	}
}

// OnMessage registers the single consumer for inbound frames. The
// last registration wins; the handler survives reconnects. It is
// invoked from the read pump, one frame at a time, in arrival order.
func (m *Manager) OnMessage(handler func(payload string)) {
	m.mu.Lock()
	m.handler = handler
	m.mu.Unlock()
}

// State reports the current channel state.
func (m *Manager) State() State {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.state
}

// Close tears the channel down for good; no reconnect follows.
func (m *Manager) Close() error {
	m.mu.Lock()
	if m.closed {
		m.mu.Unlock()
		return nil
	}
	m.closed = true
	conn := m.conn
	m.conn = nil
	m.state = StateClosed
	m.mu.Unlock()

	m.lifeCancel()
	if conn != nil {
		conn.WriteMessage(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
		return conn.Close()
	}
	return nil
}

func (m *Manager) readPump(conn *websocket.Conn) {
	for {
		_, data, err := conn.ReadMessage()
		if err != nil {
			break
		}
		m.mu.Lock()
		handler := m.handler
		m.mu.Unlock()
		if handler != nil {
			handler(string(data))
		}
	}

	m.mu.Lock()
	if m.conn != conn {
		// A newer connection already took over.
		m.mu.Unlock()
		return
	}
	m.conn = nil
	m.state = StateClosed
	closed := m.closed
	m.mu.Unlock()

	conn.Close()
	if closed {
		return
	}

	m.log.Info("channel lost, reconnecting", zap.String("endpoint", m.endpoint))
	go m.reconnect()
}

// reconnect redials on the configured backoff schedule. The consumer
// registered with OnMessage keeps receiving transparently once the
// channel is open again.
func (m *Manager) reconnect() {
	operation := func() (*websocket.Conn, error) {
		m.mu.Lock()
		if m.closed {
			m.mu.Unlock()
			return nil, backoff.Permanent(ErrClosed)
		}
		m.state = StateConnecting
		m.mu.Unlock()

		dialCtx, cancel := context.WithTimeout(m.lifeCtx, m.cfg.DialTimeout)
		defer cancel()
		conn, _, err := m.dialer.DialContext(dialCtx, m.endpoint, nil)
		return conn, err
	}

	expo := backoff.NewExponentialBackOff()
	expo.InitialInterval = m.cfg.ReconnectInitial
	expo.MaxInterval = m.cfg.ReconnectMax

	conn, err := backoff.Retry(m.lifeCtx, operation,
		backoff.WithBackOff(expo),
		backoff.WithMaxTries(m.cfg.ReconnectTries))
	if err != nil {
		m.mu.Lock()
		m.state = StateClosed
		m.mu.Unlock()
		m.log.Warn("reconnect gave up", zap.Error(err))
		return
	}

	m.adopt(conn)
}

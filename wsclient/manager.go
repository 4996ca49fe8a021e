// Package wsclient owns the push connection to the backend: at most one live
// WebSocket, its state, and a fixed-delay reconnect after abnormal closes.
package wsclient

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"go-aidr/metrics"
	"go-aidr/types"
)

const (
	DefaultReconnectDelay = 3 * time.Second
	handshakeTimeout      = 10 * time.Second
	closeWriteTimeout     = time.Second
	maxMessageSize        = 4 << 20
)

// ErrSuperseded is returned by a connect attempt overtaken by a newer
// Connect or Disconnect call.
var ErrSuperseded = errors.New("connect superseded")

// StateSink receives every connection state change.
type StateSink interface {
	SetConnection(types.ConnectionState)
}

// Handler consumes raw inbound messages. It is called from a single goroutine,
// one message at a time.
type Handler interface {
	Handle(raw []byte)
}

type Manager struct {
	sink          StateSink
	handler       Handler
	log           *zap.Logger
	dialer        *websocket.Dialer
	delay         time.Duration
	onConnected   func()
	onReconnected func()

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup

	mu       sync.Mutex
	endpoint string
	gen      uint64 // bumped by Connect and Disconnect
	sess     *session
	timer    *time.Timer
	timerSeq uint64
	connects int
	state    types.ConnectionState
}

type session struct {
	conn        *websocket.Conn
	intentional atomic.Bool
}

// close sends a close frame with code and tears the socket down. The read
// loop sees the error and, because the close is intentional, does not
// schedule a reconnect.
func (s *session) close(code int, reason string) {
	s.intentional.Store(true)
	_ = s.conn.WriteControl(websocket.CloseMessage,
		websocket.FormatCloseMessage(code, reason),
		time.Now().Add(closeWriteTimeout))
	_ = s.conn.Close()
}

type Option func(*Manager)

// WithReconnectDelay sets the fixed delay before a reconnect attempt.
func WithReconnectDelay(d time.Duration) Option {
	return func(m *Manager) { m.delay = d }
}

// WithDialer replaces the default gorilla dialer.
func WithDialer(d *websocket.Dialer) Option {
	return func(m *Manager) { m.dialer = d }
}

// OnConnected registers a hook run after every successful connect, including
// reconnects. It runs on the connecting goroutine and must not block.
func OnConnected(fn func()) Option {
	return func(m *Manager) { m.onConnected = fn }
}

// OnReconnected registers a hook run after every successful connect but the
// first. Like OnConnected it must not block.
func OnReconnected(fn func()) Option {
	return func(m *Manager) { m.onReconnected = fn }
}

func New(sink StateSink, handler Handler, logger *zap.Logger, opts ...Option) *Manager {
	m := &Manager{
		sink:    sink,
		handler: handler,
		log:     logger.Named("wsclient"),
		dialer: &websocket.Dialer{
			HandshakeTimeout: handshakeTimeout,
		},
		delay: DefaultReconnectDelay,
		state: types.ConnectionState{Status: types.Disconnected},
	}
	m.ctx, m.cancel = context.WithCancel(context.Background())
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// Connect opens the push connection, closing any connection already open.
// A failed dial leaves the manager disconnected with a reconnect scheduled;
// the error is returned for the caller's information only.
func (m *Manager) Connect(ctx context.Context, endpoint string) error {
	m.mu.Lock()
	m.gen++
	gen := m.gen
	m.endpoint = endpoint
	m.stopTimerLocked()
	m.mu.Unlock()

	return m.dial(ctx, gen)
}

// Disconnect cancels any pending reconnect and closes the connection with a
// normal-closure code so that no reconnect follows.
func (m *Manager) Disconnect() {
	m.mu.Lock()
	m.gen++
	m.stopTimerLocked()
	sess := m.sess
	m.sess = nil
	m.setStateLocked(types.Disconnected, "")
	m.mu.Unlock()

	if sess != nil {
		sess.close(websocket.CloseNormalClosure, "client disconnect")
	}
}

// Close disconnects and waits for the read loop and any reconnect attempt in
// flight to finish. The manager cannot be reused afterwards.
func (m *Manager) Close() {
	m.cancel()
	m.Disconnect()
	m.wg.Wait()
}

func (m *Manager) State() types.ConnectionState {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.state
}

// ReconnectPending reports whether a reconnect timer is outstanding.
func (m *Manager) ReconnectPending() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.timer != nil
}

func (m *Manager) dial(ctx context.Context, gen uint64) error {
	m.mu.Lock()
	if gen != m.gen {
		m.mu.Unlock()
		return ErrSuperseded
	}
	endpoint := m.endpoint
	old := m.sess
	m.sess = nil
	m.setStateLocked(types.Connecting, "")
	m.mu.Unlock()

	if old != nil {
		old.close(websocket.CloseNormalClosure, "replaced")
	}

	conn, _, err := m.dialer.DialContext(ctx, endpoint, nil)

	m.mu.Lock()
	if gen != m.gen {
		m.mu.Unlock()
		if conn != nil {
			_ = conn.Close()
		}
		return ErrSuperseded
	}
	if err != nil {
		m.setStateLocked(types.Disconnected, err.Error())
		m.scheduleLocked(gen)
		m.mu.Unlock()
		m.log.Warn("Push connection failed", zap.String("endpoint", endpoint), zap.Error(err))
		return fmt.Errorf("dial %s: %w", endpoint, err)
	}

	conn.SetReadLimit(maxMessageSize)
	sess := &session{conn: conn}
	m.sess = sess
	m.stopTimerLocked()
	m.setStateLocked(types.Connected, "")
	m.connects++
	reconnected := m.connects > 1
	m.wg.Add(1)
	m.mu.Unlock()

	m.log.Info("Push connection open", zap.String("endpoint", endpoint))
	go m.readLoop(sess, gen)

	if m.onConnected != nil {
		m.onConnected()
	}
	if reconnected && m.onReconnected != nil {
		m.onReconnected()
	}
	return nil
}

func (m *Manager) readLoop(sess *session, gen uint64) {
	defer m.wg.Done()
	for {
		_, data, err := sess.conn.ReadMessage()
		if err != nil {
			m.closed(sess, gen, err)
			return
		}
		m.handler.Handle(data)
	}
}

func (m *Manager) closed(sess *session, gen uint64, err error) {
	_ = sess.conn.Close()

	m.mu.Lock()
	defer m.mu.Unlock()
	if m.sess != sess {
		// replaced or disconnected; whoever did that owns the state now
		return
	}
	m.sess = nil

	clean := sess.intentional.Load() || websocket.IsCloseError(err, websocket.CloseNormalClosure)
	if clean {
		m.setStateLocked(types.Disconnected, "")
		m.log.Info("Push connection closed")
		return
	}
	m.setStateLocked(types.Disconnected, err.Error())
	m.log.Warn("Push connection lost", zap.Error(err))
	if gen == m.gen {
		m.scheduleLocked(gen)
	}
}

// scheduleLocked arms the single reconnect timer, replacing any pending one.
func (m *Manager) scheduleLocked(gen uint64) {
	m.stopTimerLocked()
	seq := m.timerSeq
	m.timer = time.AfterFunc(m.delay, func() { m.fire(gen, seq) })
	m.log.Info("Reconnect scheduled", zap.Duration("delay", m.delay))
}

// stopTimerLocked cancels the pending timer. Bumping timerSeq also disarms a
// timer whose callback has already started.
func (m *Manager) stopTimerLocked() {
	m.timerSeq++
	if m.timer != nil {
		m.timer.Stop()
		m.timer = nil
	}
}

func (m *Manager) fire(gen, seq uint64) {
	m.mu.Lock()
	if seq != m.timerSeq || gen != m.gen || m.ctx.Err() != nil {
		m.mu.Unlock()
		return
	}
	m.timer = nil
	m.wg.Add(1)
	m.mu.Unlock()
	defer m.wg.Done()

	metrics.Reconnects.Inc()
	m.log.Info("Reconnecting")
	_ = m.dial(m.ctx, gen)
}

func (m *Manager) setStateLocked(status types.ConnectionStatus, lastErr string) {
	m.state = types.ConnectionState{Status: status, LastError: lastErr}
	metrics.SetConnectionState(string(status))
	m.sink.SetConnection(m.state)
}

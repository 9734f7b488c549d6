package stream

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"tradegate/internal/apierr"
	"tradegate/internal/broker"
	"tradegate/internal/metrics"
	"tradegate/internal/model"
)

// State of the streaming connection.
type State int

const (
	StateDisconnected State = iota
	StateConnecting
	StateConnected
)

func (s State) String() string {
	switch s {
	case StateConnecting:
		return "connecting"
	case StateConnected:
		return "connected"
	}
	return "disconnected"
}

const (
	heartbeatInterval = 30 * time.Second
	commandQueueSize  = 64
	tickBufferSize    = 4096
	writeTimeout      = 5 * time.Second
)

type cmdKind int

const (
	cmdSubscribe cmdKind = iota
	cmdUnsubscribe
)

type command struct {
	kind cmdKind
	mode model.StreamMode
	subs []Subscription
}

type symbolRef struct {
	symbol   string
	exchange string
}

// Manager owns one streaming connection. Callers subscribe by (exchange,
// token, mode); decoded ticks arrive on Ticks(). Reconnection after a read
// failure is caller-initiated: the manager only transitions to Disconnected,
// so an expired feed token surfaces instead of being masked by silent
// retries.
type Manager struct {
	proto Protocol
	m     *metrics.Metrics // nil disables instrumentation

	mu            sync.RWMutex
	state         State
	conn          *websocket.Conn
	everConnected bool
	reconnects    int // successful connects after the first
	subs          map[string]Subscription
	registry      map[string]symbolRef // token -> (symbol, exchange)

	cmds  chan command
	ticks chan model.Tick
	done  chan struct{} // closed when the current connection's loops exit
}

// NewManager builds a disconnected manager for one broker protocol.
func NewManager(proto Protocol, m *metrics.Metrics) *Manager {
	return &Manager{
		proto:    proto,
		m:        m,
		subs:     make(map[string]Subscription),
		registry: make(map[string]symbolRef),
		ticks:    make(chan model.Tick, tickBufferSize),
	}
}

// Ticks is the canonical tick feed. Ticks are dropped (and counted) when
// the buffer is full; slow consumers never stall the read loop.
func (m *Manager) Ticks() <-chan model.Tick { return m.ticks }

// State reports the connection state.
func (m *Manager) State() State {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.state
}

// Reconnects reports how many times the connection was re-established after
// the first successful connect.
func (m *Manager) Reconnects() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.reconnects
}

func (m *Manager) setState(s State) {
	m.mu.Lock()
	m.state = s
	m.mu.Unlock()
	if m.m != nil {
		m.m.StreamState.WithLabelValues(m.proto.ID()).Set(float64(s))
	}
}

// RegisterTokens populates the token→(symbol, exchange) registry used to
// label decoded ticks. The wire carries only numeric tokens.
func (m *Manager) RegisterTokens(rows []model.SymbolData) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, r := range rows {
		m.registry[r.Token] = symbolRef{symbol: r.Symbol, exchange: r.Exchange}
	}
}

// Connect dials the broker, runs its handshake, replays the full active
// subscription set, and starts the read/write loops.
func (m *Manager) Connect(ctx context.Context, auth *broker.AuthSession) error {
	m.mu.Lock()
	if m.state != StateDisconnected {
		m.mu.Unlock()
		return apierr.Validation("stream already %s", m.state)
	}
	m.state = StateConnecting
	m.mu.Unlock()
	if m.m != nil {
		m.m.StreamState.WithLabelValues(m.proto.ID()).Set(float64(StateConnecting))
	}

	conn, err := m.proto.Dial(ctx, auth)
	if err != nil {
		m.setState(StateDisconnected)
		return apierr.Internal(err, "stream dial %s", m.proto.ID())
	}
	if err := m.proto.Handshake(conn, auth); err != nil {
		conn.Close()
		m.setState(StateDisconnected)
		return apierr.Internal(err, "stream handshake %s", m.proto.ID())
	}

	m.mu.Lock()
	m.conn = conn
	m.cmds = make(chan command, commandQueueSize)
	m.done = make(chan struct{})
	m.state = StateConnected
	reconnect := m.everConnected
	m.everConnected = true
	if reconnect {
		m.reconnects++
	}
	resub := m.groupByMode()
	cmds, done := m.cmds, m.done
	m.mu.Unlock()
	if m.m != nil {
		m.m.StreamState.WithLabelValues(m.proto.ID()).Set(float64(StateConnected))
		if reconnect {
			m.m.StreamReconnects.WithLabelValues(m.proto.ID()).Inc()
		}
	}

	// Subscriptions do not survive a broker-side disconnect; replay them.
	for mode, subs := range resub {
		if err := m.proto.Subscribe(conn, mode, subs); err != nil {
			slog.Warn("resubscribe failed", slog.String("broker", m.proto.ID()), slog.Any("err", err))
		}
	}

	go m.readLoop(conn, done)
	go m.writeLoop(conn, cmds, done)

	replayed := 0
	for _, subs := range resub {
		replayed += len(subs)
	}
	slog.Info("stream connected", slog.String("broker", m.proto.ID()), slog.Int("subscriptions", replayed))
	return nil
}

// Disconnect sends a best-effort close frame and drops the connection.
func (m *Manager) Disconnect() {
	m.mu.Lock()
	conn := m.conn
	done := m.done
	m.conn = nil
	m.state = StateDisconnected
	m.mu.Unlock()
	if m.m != nil {
		m.m.StreamState.WithLabelValues(m.proto.ID()).Set(float64(StateDisconnected))
	}

	if conn != nil {
		conn.WriteControl(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
			time.Now().Add(writeTimeout))
		conn.Close()
	}
	if done != nil {
		select {
		case <-done:
		default:
			close(done)
		}
	}
}

// Subscribe records the subscriptions and queues the control frame. The
// bounded queue rejects when the write loop has fallen behind.
func (m *Manager) Subscribe(mode model.StreamMode, subs []Subscription) error {
	m.mu.Lock()
	for i := range subs {
		subs[i].Mode = mode
		m.subs[subs[i].Key()] = subs[i]
	}
	cmds := m.cmds
	connected := m.state == StateConnected
	m.mu.Unlock()

	if !connected {
		return nil // replayed on the next Connect
	}
	select {
	case cmds <- command{kind: cmdSubscribe, mode: mode, subs: subs}:
		return nil
	default:
		return apierr.Internal(nil, "stream command queue full")
	}
}

// Unsubscribe drops the subscriptions and queues the control frame.
func (m *Manager) Unsubscribe(mode model.StreamMode, subs []Subscription) error {
	m.mu.Lock()
	for _, s := range subs {
		delete(m.subs, s.Key())
	}
	cmds := m.cmds
	connected := m.state == StateConnected
	m.mu.Unlock()

	if !connected {
		return nil
	}
	select {
	case cmds <- command{kind: cmdUnsubscribe, mode: mode, subs: subs}:
		return nil
	default:
		return apierr.Internal(nil, "stream command queue full")
	}
}

// groupByMode snapshots active subscriptions for replay. Caller holds mu.
func (m *Manager) groupByMode() map[model.StreamMode][]Subscription {
	out := make(map[model.StreamMode][]Subscription)
	for _, s := range m.subs {
		out[s.Mode] = append(out[s.Mode], s)
	}
	return out
}

// readLoop decodes frames until the connection fails, then transitions to
// Disconnected. It never reconnects on its own.
func (m *Manager) readLoop(conn *websocket.Conn, done chan struct{}) {
	defer m.teardown(conn, done)

	for {
		select {
		case <-done:
			return
		default:
		}

		mt, frame, err := conn.ReadMessage()
		if err != nil {
			m.mu.RLock()
			deliberate := m.state == StateDisconnected
			m.mu.RUnlock()
			if !deliberate {
				slog.Warn("stream read failed", slog.String("broker", m.proto.ID()), slog.Any("err", err))
			}
			return
		}
		if mt != websocket.BinaryMessage {
			continue // text frames are pong/control chatter
		}

		ticks, err := m.proto.Decode(frame)
		if err != nil {
			slog.Warn("undecodable frame", slog.String("broker", m.proto.ID()), slog.Any("err", err))
			continue
		}
		for _, t := range ticks {
			m.emit(t)
		}
	}
}

func (m *Manager) emit(t model.Tick) {
	m.mu.RLock()
	if ref, ok := m.registry[t.Token]; ok {
		t.Symbol = ref.symbol
		if t.Exchange == "" {
			t.Exchange = ref.exchange
		}
	}
	m.mu.RUnlock()

	if m.m != nil {
		m.m.TicksDecoded.WithLabelValues(m.proto.ID()).Inc()
	}
	select {
	case m.ticks <- t:
	default:
		if m.m != nil {
			m.m.TicksDropped.WithLabelValues(m.proto.ID()).Inc()
		}
	}
}

// writeLoop serializes control frames and heartbeats onto the connection.
func (m *Manager) writeLoop(conn *websocket.Conn, cmds chan command, done chan struct{}) {
	ticker := time.NewTicker(heartbeatInterval)
	defer ticker.Stop()

	for {
		select {
		case <-done:
			return
		case cmd := <-cmds:
			var err error
			if cmd.kind == cmdSubscribe {
				err = m.proto.Subscribe(conn, cmd.mode, cmd.subs)
			} else {
				err = m.proto.Unsubscribe(conn, cmd.mode, cmd.subs)
			}
			if err != nil {
				slog.Warn("stream control write failed", slog.String("broker", m.proto.ID()), slog.Any("err", err))
			}
		case <-ticker.C:
			mt, payload := m.proto.Heartbeat()
			conn.SetWriteDeadline(time.Now().Add(writeTimeout))
			if err := conn.WriteMessage(mt, payload); err != nil {
				slog.Warn("heartbeat write failed", slog.String("broker", m.proto.ID()), slog.Any("err", err))
				return
			}
		}
	}
}

// teardown moves to Disconnected exactly once per connection.
func (m *Manager) teardown(conn *websocket.Conn, done chan struct{}) {
	select {
	case <-done:
	default:
		close(done)
	}
	conn.Close()

	m.mu.Lock()
	if m.conn == conn {
		m.conn = nil
		m.state = StateDisconnected
	}
	m.mu.Unlock()
	if m.m != nil {
		m.m.StreamState.WithLabelValues(m.proto.ID()).Set(float64(StateDisconnected))
	}
}

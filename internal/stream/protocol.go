// Package stream maintains one binary market-data WebSocket per broker and
// decodes broker frames into canonical ticks. Each broker's framing lives in
// its own Protocol implementation; the Manager owns connection state,
// subscription bookkeeping, heartbeats, and fan-out.
package stream

import (
	"context"

	"github.com/gorilla/websocket"

	"tradegate/internal/broker"
	"tradegate/internal/model"
)

// Subscription is one requested instrument feed.
type Subscription struct {
	Exchange string
	Token    string
	Mode     model.StreamMode
}

// Key returns the subscription identity, "exchange:token".
func (s Subscription) Key() string { return s.Exchange + ":" + s.Token }

// Protocol is the broker-specific wire behavior of a streaming connection.
// Implementations are stateless apart from credentials; all connection
// state lives in the Manager.
type Protocol interface {
	ID() string

	// Dial opens the broker's WebSocket with its auth conventions.
	Dial(ctx context.Context, auth *broker.AuthSession) (*websocket.Conn, error)

	// Handshake sends any post-connect frame the broker requires before it
	// accepts subscriptions. Most brokers need none.
	Handshake(conn *websocket.Conn, auth *broker.AuthSession) error

	// Subscribe and Unsubscribe write the broker's control frames for a
	// batch of subscriptions sharing one mode.
	Subscribe(conn *websocket.Conn, mode model.StreamMode, subs []Subscription) error
	Unsubscribe(conn *websocket.Conn, mode model.StreamMode, subs []Subscription) error

	// Decode parses one binary frame into zero or more ticks. Symbol and
	// Exchange are left empty; the Manager resolves them from its token
	// registry.
	Decode(frame []byte) ([]model.Tick, error)

	// Heartbeat returns the periodic keepalive frame: a gorilla/websocket
	// message type and payload.
	Heartbeat() (int, []byte)
}

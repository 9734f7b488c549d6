package stream

import (
	"context"
	"encoding/binary"
	"fmt"
	"time"

	"github.com/gorilla/websocket"

	"tradegate/internal/broker"
	"tradegate/internal/model"
)

const fyersStreamURL = "wss://socket.fyers.in/data-ws"

// FyersProtocol differs from the other two in its auth: the socket accepts
// nothing until an explicit binary authentication frame is sent after
// connecting. Control frames are JSON; tick frames are big-endian binary.
type FyersProtocol struct {
	appID string
	url   string
}

// NewFyersProtocol builds the Fyers streaming protocol.
func NewFyersProtocol(appID string) *FyersProtocol {
	return &FyersProtocol{appID: appID, url: fyersStreamURL}
}

func (p *FyersProtocol) ID() string { return broker.IDFyers }

func (p *FyersProtocol) Dial(ctx context.Context, auth *broker.AuthSession) (*websocket.Conn, error) {
	conn, _, err := websocket.DefaultDialer.DialContext(ctx, p.url, nil)
	return conn, err
}

const fyersAuthFrameType = 0x01

// Handshake sends the binary authentication frame: a type byte, a
// big-endian length, and the "appID:accessToken" credential. Subscriptions
// sent before this frame are rejected by the broker.
func (p *FyersProtocol) Handshake(conn *websocket.Conn, auth *broker.AuthSession) error {
	cred := []byte(p.appID + ":" + auth.AuthToken)
	frame := make([]byte, 3+len(cred))
	frame[0] = fyersAuthFrameType
	binary.BigEndian.PutUint16(frame[1:3], uint16(len(cred)))
	copy(frame[3:], cred)

	conn.SetWriteDeadline(time.Now().Add(writeTimeout))
	return conn.WriteMessage(websocket.BinaryMessage, frame)
}

type fyersControl struct {
	T     string   `json:"T"`
	TList []string `json:"TLIST"`
	SubT  int      `json:"SUB_T"`
}

func fyersList(subs []Subscription) []string {
	out := make([]string, 0, len(subs))
	for _, s := range subs {
		out = append(out, s.Exchange+":"+s.Token)
	}
	return out
}

func (p *FyersProtocol) Subscribe(conn *websocket.Conn, mode model.StreamMode, subs []Subscription) error {
	return conn.WriteJSON(fyersControl{T: "SUB_DATA", TList: fyersList(subs), SubT: 1})
}

func (p *FyersProtocol) Unsubscribe(conn *websocket.Conn, mode model.StreamMode, subs []Subscription) error {
	return conn.WriteJSON(fyersControl{T: "SUB_DATA", TList: fyersList(subs), SubT: 0})
}

// Heartbeat is the text "ping" Fyers expects.
func (p *FyersProtocol) Heartbeat() (int, []byte) {
	return websocket.TextMessage, []byte("ping")
}

// Tick frame layout (big-endian):
//
//	[0]     mode
//	[1:5]   token
//	[5:9]   LTP, paise
//	[9:13]  volume        (quote and above)
//	[13:29] OHLC, paise   (quote and above)
const (
	fyersMinFrame   = 9
	fyersQuoteFrame = 29
)

func (p *FyersProtocol) Decode(frame []byte) ([]model.Tick, error) {
	if len(frame) < fyersMinFrame {
		return nil, fmt.Errorf("fyers frame too short: %d bytes", len(frame))
	}

	mode := model.StreamMode(frame[0])
	tick := model.Tick{
		Token: fmt.Sprintf("%d", binary.BigEndian.Uint32(frame[1:5])),
		Mode:  mode,
		LTP:   paise(uint64(binary.BigEndian.Uint32(frame[5:9]))),
		TS:    time.Now(),
	}

	if mode >= model.ModeQuote && len(frame) >= fyersQuoteFrame {
		tick.Volume = int64(binary.BigEndian.Uint32(frame[9:13]))
		tick.OHLC = model.OHLC{
			Open:  paise(uint64(binary.BigEndian.Uint32(frame[13:17]))),
			High:  paise(uint64(binary.BigEndian.Uint32(frame[17:21]))),
			Low:   paise(uint64(binary.BigEndian.Uint32(frame[21:25]))),
			Close: paise(uint64(binary.BigEndian.Uint32(frame[25:29]))),
		}
	}

	return []model.Tick{tick}, nil
}

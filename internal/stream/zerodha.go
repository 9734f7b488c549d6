package stream

import (
	"context"
	"encoding/binary"
	"fmt"
	"net/url"
	"time"

	"github.com/gorilla/websocket"

	"tradegate/internal/broker"
	"tradegate/internal/model"
)

const kiteStreamURL = "wss://ws.kite.trade"

// Kite frames are big-endian, the opposite of Angel. Prices arrive in paise.
var kiteSegments = map[uint32]string{
	1: "NSE",
	2: "NFO",
	3: "CDS",
	4: "BSE",
	5: "BFO",
	7: "MCX",
}

// ZerodhaProtocol speaks the Kite ticker dialect: query-string auth, JSON
// text control frames, big-endian multi-packet binary ticks, and a
// single-zero-byte heartbeat.
type ZerodhaProtocol struct {
	apiKey string
	url    string
}

// NewZerodhaProtocol builds the Kite streaming protocol.
func NewZerodhaProtocol(apiKey string) *ZerodhaProtocol {
	return &ZerodhaProtocol{apiKey: apiKey, url: kiteStreamURL}
}

func (p *ZerodhaProtocol) ID() string { return broker.IDZerodha }

func (p *ZerodhaProtocol) Dial(ctx context.Context, auth *broker.AuthSession) (*websocket.Conn, error) {
	q := url.Values{}
	q.Set("api_key", p.apiKey)
	q.Set("access_token", auth.AuthToken)

	conn, _, err := websocket.DefaultDialer.DialContext(ctx, p.url+"?"+q.Encode(), nil)
	return conn, err
}

// Handshake is a no-op: Kite authenticates through the query string.
func (p *ZerodhaProtocol) Handshake(conn *websocket.Conn, auth *broker.AuthSession) error {
	return nil
}

func kiteMode(mode model.StreamMode) string {
	switch mode {
	case model.ModeLTP:
		return "ltp"
	case model.ModeQuote:
		return "quote"
	default:
		return "full"
	}
}

type kiteControl struct {
	A string `json:"a"`
	V any    `json:"v"`
}

func kiteTokens(subs []Subscription) []uint32 {
	out := make([]uint32, 0, len(subs))
	for _, s := range subs {
		var tok uint32
		fmt.Sscanf(s.Token, "%d", &tok)
		out = append(out, tok)
	}
	return out
}

// Subscribe registers the tokens, then sets their mode; Kite treats these
// as two control frames.
func (p *ZerodhaProtocol) Subscribe(conn *websocket.Conn, mode model.StreamMode, subs []Subscription) error {
	tokens := kiteTokens(subs)
	if err := conn.WriteJSON(kiteControl{A: "subscribe", V: tokens}); err != nil {
		return err
	}
	return conn.WriteJSON(kiteControl{A: "mode", V: []any{kiteMode(mode), tokens}})
}

func (p *ZerodhaProtocol) Unsubscribe(conn *websocket.Conn, mode model.StreamMode, subs []Subscription) error {
	return conn.WriteJSON(kiteControl{A: "unsubscribe", V: kiteTokens(subs)})
}

// Heartbeat is a single zero byte.
func (p *ZerodhaProtocol) Heartbeat() (int, []byte) {
	return websocket.BinaryMessage, []byte{0}
}

// Packet sizes Kite emits per mode.
const (
	kiteLTPPacket   = 8
	kiteQuotePacket = 44
	kiteFullPacket  = 184
)

// Decode splits a multi-packet frame: a big-endian int16 packet count, then
// per packet an int16 length and the packet body. One-byte frames are
// server heartbeats.
func (p *ZerodhaProtocol) Decode(frame []byte) ([]model.Tick, error) {
	if len(frame) < 2 {
		return nil, nil // heartbeat
	}
	count := int(binary.BigEndian.Uint16(frame[0:2]))

	var ticks []model.Tick
	offset := 2
	for i := 0; i < count; i++ {
		if offset+2 > len(frame) {
			return nil, fmt.Errorf("kite frame truncated at packet %d", i)
		}
		size := int(binary.BigEndian.Uint16(frame[offset : offset+2]))
		offset += 2
		if offset+size > len(frame) {
			return nil, fmt.Errorf("kite packet %d overruns frame", i)
		}
		tick, err := decodeKitePacket(frame[offset : offset+size])
		if err != nil {
			return nil, err
		}
		ticks = append(ticks, tick)
		offset += size
	}
	return ticks, nil
}

func decodeKitePacket(b []byte) (model.Tick, error) {
	if len(b) < kiteLTPPacket {
		return model.Tick{}, fmt.Errorf("kite packet too short: %d bytes", len(b))
	}

	token := binary.BigEndian.Uint32(b[0:4])
	tick := model.Tick{
		Token:    fmt.Sprintf("%d", token),
		Exchange: kiteSegments[token&0xFF],
		Mode:     model.ModeLTP,
		LTP:      paise(uint64(binary.BigEndian.Uint32(b[4:8]))),
		TS:       time.Now(),
	}

	if len(b) >= kiteQuotePacket {
		tick.Mode = model.ModeQuote
		tick.LastQty = int64(binary.BigEndian.Uint32(b[8:12]))
		tick.Volume = int64(binary.BigEndian.Uint32(b[16:20]))
		tick.OHLC = model.OHLC{
			Open:  paise(uint64(binary.BigEndian.Uint32(b[28:32]))),
			High:  paise(uint64(binary.BigEndian.Uint32(b[32:36]))),
			Low:   paise(uint64(binary.BigEndian.Uint32(b[36:40]))),
			Close: paise(uint64(binary.BigEndian.Uint32(b[40:44]))),
		}
	}

	if len(b) >= kiteFullPacket {
		tick.Mode = model.ModeFull
		tick.OI = int64(binary.BigEndian.Uint32(b[48:52]))
		tick.TS = time.Unix(int64(binary.BigEndian.Uint32(b[60:64])), 0)
		tick.Bids, tick.Asks = kiteDepth(b[64:184])
	}

	return tick, nil
}

// kiteDepth parses ten 12-byte levels: five bids then five asks.
func kiteDepth(b []byte) (bids, asks []model.DepthLevel) {
	for i := 0; i < 10; i++ {
		off := i * 12
		level := model.DepthLevel{
			Qty:    int64(binary.BigEndian.Uint32(b[off : off+4])),
			Price:  paise(uint64(binary.BigEndian.Uint32(b[off+4 : off+8]))),
			Orders: int(binary.BigEndian.Uint16(b[off+8 : off+10])),
		}
		if i < 5 {
			bids = append(bids, level)
		} else {
			asks = append(asks, level)
		}
	}
	return bids, asks
}

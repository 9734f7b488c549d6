package stream

import (
	"context"
	"encoding/binary"
	"fmt"
	"net/http"
	"time"

	"github.com/gorilla/websocket"

	"tradegate/internal/broker"
	"tradegate/internal/model"
)

const angelStreamURL = "wss://smartapisocket.angelone.in/smart-stream"

// Angel SmartAPI frames are little-endian. Prices arrive in paise.
const (
	angelSubscribe   = 1
	angelUnsubscribe = 0
)

var angelExchangeCodes = map[string]int{
	"NSE": 1,
	"NFO": 2,
	"BSE": 3,
	"BFO": 4,
	"MCX": 5,
	"CDS": 13,
}

var angelExchangeNames = map[uint8]string{
	1:  "NSE",
	2:  "NFO",
	3:  "BSE",
	4:  "BFO",
	5:  "MCX",
	13: "CDS",
}

// AngelProtocol speaks the SmartAPI streaming dialect: header-authenticated
// dial, JSON control frames, little-endian binary ticks, text "ping"
// heartbeats.
type AngelProtocol struct {
	apiKey   string
	clientID string
	url      string
}

// NewAngelProtocol builds the Angel streaming protocol.
func NewAngelProtocol(apiKey, clientID string) *AngelProtocol {
	return &AngelProtocol{apiKey: apiKey, clientID: clientID, url: angelStreamURL}
}

func (p *AngelProtocol) ID() string { return broker.IDAngel }

func (p *AngelProtocol) Dial(ctx context.Context, auth *broker.AuthSession) (*websocket.Conn, error) {
	header := http.Header{}
	header.Set("Authorization", "Bearer "+auth.AuthToken)
	header.Set("x-api-key", p.apiKey)
	header.Set("x-client-code", p.clientID)
	header.Set("x-feed-token", auth.FeedToken)

	conn, _, err := websocket.DefaultDialer.DialContext(ctx, p.url, header)
	return conn, err
}

// Handshake is a no-op: Angel authenticates through dial headers.
func (p *AngelProtocol) Handshake(conn *websocket.Conn, auth *broker.AuthSession) error {
	return nil
}

type angelTokenList struct {
	ExchangeType int      `json:"exchangeType"`
	Tokens       []string `json:"tokens"`
}

type angelControl struct {
	CorrelationID string `json:"correlationID,omitempty"`
	Action        int    `json:"action"`
	Params        struct {
		Mode      int              `json:"mode"`
		TokenList []angelTokenList `json:"tokenList"`
	} `json:"params"`
}

func angelControlFrame(action int, mode model.StreamMode, subs []Subscription) (*angelControl, error) {
	byExchange := make(map[int][]string)
	for _, s := range subs {
		code, ok := angelExchangeCodes[s.Exchange]
		if !ok {
			return nil, fmt.Errorf("unsupported exchange %q", s.Exchange)
		}
		byExchange[code] = append(byExchange[code], s.Token)
	}

	req := &angelControl{Action: action}
	req.Params.Mode = int(mode)
	for code, tokens := range byExchange {
		req.Params.TokenList = append(req.Params.TokenList, angelTokenList{ExchangeType: code, Tokens: tokens})
	}
	return req, nil
}

func (p *AngelProtocol) Subscribe(conn *websocket.Conn, mode model.StreamMode, subs []Subscription) error {
	req, err := angelControlFrame(angelSubscribe, mode, subs)
	if err != nil {
		return err
	}
	return conn.WriteJSON(req)
}

func (p *AngelProtocol) Unsubscribe(conn *websocket.Conn, mode model.StreamMode, subs []Subscription) error {
	req, err := angelControlFrame(angelUnsubscribe, mode, subs)
	if err != nil {
		return err
	}
	return conn.WriteJSON(req)
}

// Heartbeat is the text "ping" SmartAPI expects.
func (p *AngelProtocol) Heartbeat() (int, []byte) {
	return websocket.TextMessage, []byte("ping")
}

// Frame layout (little-endian):
//
//	[0]      subscription mode
//	[1]      exchange type
//	[2:27]   token, NUL-padded ASCII
//	[27:35]  sequence number
//	[35:43]  exchange timestamp, ms
//	[43:51]  LTP, paise
//	[51:123] quote block (last qty, avg price, volume, buy/sell qty, OHLC)
//	[123:147] snap-quote header (last trade ts, OI, OI change)
//	[147:347] best-5 levels, 20 bytes each, flag 0=buy
const (
	angelMinFrame   = 51
	angelQuoteFrame = 123
	angelSnapFrame  = 347
)

func (p *AngelProtocol) Decode(frame []byte) ([]model.Tick, error) {
	if len(frame) < angelMinFrame {
		return nil, fmt.Errorf("angel frame too short: %d bytes", len(frame))
	}

	mode := model.StreamMode(frame[0])
	tick := model.Tick{
		Token:    cstring(frame[2:27]),
		Exchange: angelExchangeNames[frame[1]],
		Mode:     mode,
		LTP:      paise(binary.LittleEndian.Uint64(frame[43:51])),
		TS:       time.UnixMilli(int64(binary.LittleEndian.Uint64(frame[35:43]))),
	}

	if (mode == model.ModeQuote || mode == model.ModeSnapQuote) && len(frame) >= angelQuoteFrame {
		tick.LastQty = int64(binary.LittleEndian.Uint64(frame[51:59]))
		tick.Volume = int64(binary.LittleEndian.Uint64(frame[67:75]))
		tick.OHLC = model.OHLC{
			Open:  paise(binary.LittleEndian.Uint64(frame[91:99])),
			High:  paise(binary.LittleEndian.Uint64(frame[99:107])),
			Low:   paise(binary.LittleEndian.Uint64(frame[107:115])),
			Close: paise(binary.LittleEndian.Uint64(frame[115:123])),
		}
	}

	if mode == model.ModeSnapQuote && len(frame) >= angelSnapFrame {
		tick.OI = int64(binary.LittleEndian.Uint64(frame[131:139]))
		tick.Bids, tick.Asks = angelBest5(frame[147:347])
	}

	return []model.Tick{tick}, nil
}

// angelBest5 splits the ten 20-byte level packets by their buy/sell flag.
func angelBest5(b []byte) (bids, asks []model.DepthLevel) {
	for i := 0; i+20 <= len(b); i += 20 {
		p := b[i : i+20]
		level := model.DepthLevel{
			Qty:    int64(binary.LittleEndian.Uint64(p[2:10])),
			Price:  paise(binary.LittleEndian.Uint64(p[10:18])),
			Orders: int(binary.LittleEndian.Uint16(p[18:20])),
		}
		if binary.LittleEndian.Uint16(p[0:2]) == 0 {
			bids = append(bids, level)
		} else {
			asks = append(asks, level)
		}
	}
	return bids, asks
}

func cstring(b []byte) string {
	for i, c := range b {
		if c == 0 {
			return string(b[:i])
		}
	}
	return string(b)
}

func paise(v uint64) float64 { return float64(int64(v)) / 100 }

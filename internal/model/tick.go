package model

import "time"

// StreamMode selects how much data a market-data subscription carries.
type StreamMode int

const (
	ModeLTP StreamMode = iota + 1
	ModeQuote
	ModeSnapQuote
	ModeFull
)

// String returns the wire-agnostic mode name.
func (m StreamMode) String() string {
	switch m {
	case ModeLTP:
		return "LTP"
	case ModeQuote:
		return "QUOTE"
	case ModeSnapQuote:
		return "SNAP_QUOTE"
	case ModeFull:
		return "FULL"
	}
	return "UNKNOWN"
}

// Tick is the canonical market-data event decoded from a broker's binary
// stream. Symbol and Exchange are resolved from the token registry; the wire
// carries only the numeric token.
type Tick struct {
	Token    string     `json:"token"`
	Symbol   string     `json:"symbol"`
	Exchange string     `json:"exchange"`
	Mode     StreamMode `json:"mode"`
	LTP      float64    `json:"ltp"`
	LastQty  int64      `json:"last_qty,omitempty"`
	Volume   int64      `json:"volume,omitempty"`
	OI       int64      `json:"oi,omitempty"`
	OHLC     OHLC       `json:"ohlc,omitempty"`
	// Depth is populated only for SnapQuote/Full subscriptions.
	Bids []DepthLevel `json:"bids,omitempty"`
	Asks []DepthLevel `json:"asks,omitempty"`
	TS   time.Time    `json:"ts"`
}

// Key returns "exchange:token", the subscription identity of the tick.
func (t *Tick) Key() string { return t.Exchange + ":" + t.Token }

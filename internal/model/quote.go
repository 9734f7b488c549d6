package model

import "time"

// OHLC holds the day's open/high/low/close.
type OHLC struct {
	Open  float64 `json:"open"`
	High  float64 `json:"high"`
	Low   float64 `json:"low"`
	Close float64 `json:"close"`
}

// Quote is the canonical full quote for one instrument.
type Quote struct {
	Symbol        string    `json:"symbol"`
	Exchange      string    `json:"exchange"`
	LTP           float64   `json:"ltp"`
	OHLC          OHLC      `json:"ohlc"`
	Volume        int64     `json:"volume"`
	OI            int64     `json:"oi"`
	BidPrice      float64   `json:"bid_price"`
	BidQty        int64     `json:"bid_quantity"`
	AskPrice      float64   `json:"ask_price"`
	AskQty        int64     `json:"ask_quantity"`
	Change        float64   `json:"change"`
	ChangePercent float64   `json:"change_percent"`
	Timestamp     time.Time `json:"timestamp"`
}

// DepthLevel is one price level of the order book.
type DepthLevel struct {
	Price  float64 `json:"price"`
	Qty    int64   `json:"quantity"`
	Orders int     `json:"order_count"`
}

// MaxDepthLevels caps the book depth per side; broker responses beyond this
// are truncated.
const MaxDepthLevels = 5

// MarketDepth is the canonical order book snapshot, at most MaxDepthLevels
// levels per side, best first.
type MarketDepth struct {
	Symbol   string       `json:"symbol"`
	Exchange string       `json:"exchange"`
	LTP      float64      `json:"ltp"`
	Bids     []DepthLevel `json:"bids"`
	Asks     []DepthLevel `json:"asks"`
}

// Candle is one OHLCV row of historical data, keyed by
// (symbol, exchange, timeframe, timestamp) in the analytical store.
type Candle struct {
	Symbol    string    `json:"symbol"`
	Exchange  string    `json:"exchange"`
	Timeframe string    `json:"timeframe"`
	TS        time.Time `json:"ts"`
	Open      float64   `json:"open"`
	High      float64   `json:"high"`
	Low       float64   `json:"low"`
	Close     float64   `json:"close"`
	Volume    int64     `json:"volume"`
}

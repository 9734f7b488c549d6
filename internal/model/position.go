package model

// Position is the canonical position representation.
// Qty is signed: positive = long, negative = short. A position with Qty == 0
// is closed but retained so the historical average price stays inspectable.
// Invariant: PnL = RealizedPnL + UnrealizedPnL (float rounding tolerated).
type Position struct {
	Symbol        string  `json:"symbol"`
	Exchange      string  `json:"exchange"`
	Product       Product `json:"product"`
	Qty           int64   `json:"quantity"`
	OvernightQty  int64   `json:"overnight_quantity"`
	AvgPrice      float64 `json:"average_price"`
	LTP           float64 `json:"ltp"`
	PnL           float64 `json:"pnl"`
	RealizedPnL   float64 `json:"realized_pnl"`
	UnrealizedPnL float64 `json:"unrealized_pnl"`
	BuyQty        int64   `json:"buy_quantity"`
	BuyValue      float64 `json:"buy_value"`
	SellQty       int64   `json:"sell_quantity"`
	SellValue     float64 `json:"sell_value"`
}

// Open reports whether the position is still open.
func (p *Position) Open() bool { return p.Qty != 0 }

// Key returns the identity of a position: "exchange:symbol:product".
func (p *Position) Key() string {
	return p.Exchange + ":" + p.Symbol + ":" + string(p.Product)
}

// Holding is a demat holding (delivery stock carried across sessions).
type Holding struct {
	Symbol   string  `json:"symbol"`
	Exchange string  `json:"exchange"`
	Qty      int64   `json:"quantity"`
	AvgPrice float64 `json:"average_price"`
	LTP      float64 `json:"ltp"`
	PnL      float64 `json:"pnl"`
	Product  Product `json:"product"`
}

// Funds is the canonical margin/cash snapshot. Brokers compute these from
// different source fields; no cross-broker invariant holds beyond
// non-negativity of the cash-like fields.
type Funds struct {
	AvailableCash  float64 `json:"available_cash"`
	UsedMargin     float64 `json:"used_margin"`
	TotalMargin    float64 `json:"total_margin"`
	OpeningBalance float64 `json:"opening_balance"`
	PayIn          float64 `json:"payin"`
	PayOut         float64 `json:"payout"`
	Span           float64 `json:"span"`
	Exposure       float64 `json:"exposure"`
	Collateral     float64 `json:"collateral"`
}

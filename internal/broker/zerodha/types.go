package zerodha

import "tradegate/internal/model"

// Kite wire structs. Numeric fields still go through the Flex types: Kite is
// better behaved than the other dialects but has been observed returning
// stringified numbers on a few endpoints.

type sessionData struct {
	AccessToken string `json:"access_token"`
	PublicToken string `json:"public_token"`
	UserID      string `json:"user_id"`
	UserName    string `json:"user_name"`
}

type orderIDData struct {
	OrderID string `json:"order_id"`
}

type wireOrder struct {
	OrderID         string          `json:"order_id"`
	ExchangeOrderID string          `json:"exchange_order_id"`
	TradingSymbol   string          `json:"tradingsymbol"`
	Exchange        string          `json:"exchange"`
	TransactionType string          `json:"transaction_type"`
	Qty             model.FlexInt64 `json:"quantity"`
	FilledQty       model.FlexInt64 `json:"filled_quantity"`
	PendingQty      model.FlexInt64 `json:"pending_quantity"`
	Price           model.FlexFloat `json:"price"`
	TriggerPrice    model.FlexFloat `json:"trigger_price"`
	AvgPrice        model.FlexFloat `json:"average_price"`
	OrderType       string          `json:"order_type"`
	Product         string          `json:"product"`
	Status          string          `json:"status"`
	StatusMessage   string          `json:"status_message"`
	Validity        string          `json:"validity"`
	OrderTimestamp  string          `json:"order_timestamp"`
	ExchTimestamp   string          `json:"exchange_timestamp"`
}

type wireTrade struct {
	OrderID         string          `json:"order_id"`
	TradeID         string          `json:"trade_id"`
	TradingSymbol   string          `json:"tradingsymbol"`
	Exchange        string          `json:"exchange"`
	TransactionType string          `json:"transaction_type"`
	Qty             model.FlexInt64 `json:"quantity"`
	AvgPrice        model.FlexFloat `json:"average_price"`
	Product         string          `json:"product"`
	FillTimestamp   string          `json:"fill_timestamp"`
}

type wirePosition struct {
	TradingSymbol string          `json:"tradingsymbol"`
	Exchange      string          `json:"exchange"`
	Product       string          `json:"product"`
	Qty           model.FlexInt64 `json:"quantity"`
	OvernightQty  model.FlexInt64 `json:"overnight_quantity"`
	AvgPrice      model.FlexFloat `json:"average_price"`
	LastPrice     model.FlexFloat `json:"last_price"`
	PnL           model.FlexFloat `json:"pnl"`
	Realised      model.FlexFloat `json:"realised"`
	Unrealised    model.FlexFloat `json:"unrealised"`
	BuyQty        model.FlexInt64 `json:"buy_quantity"`
	BuyValue      model.FlexFloat `json:"buy_value"`
	SellQty       model.FlexInt64 `json:"sell_quantity"`
	SellValue     model.FlexFloat `json:"sell_value"`
}

type positionsData struct {
	Net []wirePosition `json:"net"`
	Day []wirePosition `json:"day"`
}

type wireHolding struct {
	TradingSymbol string          `json:"tradingsymbol"`
	Exchange      string          `json:"exchange"`
	Qty           model.FlexInt64 `json:"quantity"`
	AvgPrice      model.FlexFloat `json:"average_price"`
	LastPrice     model.FlexFloat `json:"last_price"`
	PnL           model.FlexFloat `json:"pnl"`
	Product       string          `json:"product"`
}

type marginsData struct {
	Equity struct {
		Net       model.FlexFloat `json:"net"`
		Available struct {
			Cash           model.FlexFloat `json:"cash"`
			OpeningBalance model.FlexFloat `json:"opening_balance"`
			IntradayPayin  model.FlexFloat `json:"intraday_payin"`
			Collateral     model.FlexFloat `json:"collateral"`
		} `json:"available"`
		Utilised struct {
			Debits   model.FlexFloat `json:"debits"`
			Span     model.FlexFloat `json:"span"`
			Exposure model.FlexFloat `json:"exposure"`
			Payout   model.FlexFloat `json:"payout"`
		} `json:"utilised"`
	} `json:"equity"`
}

type wireDepthLevel struct {
	Price  model.FlexFloat `json:"price"`
	Qty    model.FlexInt64 `json:"quantity"`
	Orders model.FlexInt   `json:"orders"`
}

type wireQuote struct {
	LastPrice model.FlexFloat `json:"last_price"`
	Volume    model.FlexInt64 `json:"volume"`
	OI        model.FlexInt64 `json:"oi"`
	NetChange model.FlexFloat `json:"net_change"`
	Timestamp string          `json:"timestamp"`
	OHLC      struct {
		Open  model.FlexFloat `json:"open"`
		High  model.FlexFloat `json:"high"`
		Low   model.FlexFloat `json:"low"`
		Close model.FlexFloat `json:"close"`
	} `json:"ohlc"`
	Depth struct {
		Buy  []wireDepthLevel `json:"buy"`
		Sell []wireDepthLevel `json:"sell"`
	} `json:"depth"`
}

// instrumentRow is one /instruments CSV row. Column names follow Kite's
// fixed header; unlike Angel, strike and tick size arrive in rupees.
type instrumentRow struct {
	InstrumentToken string  `csv:"instrument_token"`
	ExchangeToken   string  `csv:"exchange_token"`
	TradingSymbol   string  `csv:"tradingsymbol"`
	Name            string  `csv:"name"`
	LastPrice       float64 `csv:"last_price"`
	Expiry          string  `csv:"expiry"`
	Strike          float64 `csv:"strike"`
	TickSize        float64 `csv:"tick_size"`
	LotSize         int     `csv:"lot_size"`
	InstrumentType  string  `csv:"instrument_type"`
	Segment         string  `csv:"segment"`
	Exchange        string  `csv:"exchange"`
}

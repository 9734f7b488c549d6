package angel

import "tradegate/internal/model"

// Wire structs. Angel returns quantity/price fields as strings, integers, or
// floats depending on endpoint and day of week; every numeric field goes
// through the Flex types.

type loginData struct {
	JWTToken     string `json:"jwtToken"`
	RefreshToken string `json:"refreshToken"`
	FeedToken    string `json:"feedToken"`
}

type profileData struct {
	ClientCode string `json:"clientcode"`
	Name       string `json:"name"`
}

type orderIDData struct {
	Script  string `json:"script"`
	OrderID string `json:"orderid"`
}

type wireOrder struct {
	OrderID       string          `json:"orderid"`
	ExchOrderID   string          `json:"exchorderid"`
	TradingSymbol string          `json:"tradingsymbol"`
	Exchange      string          `json:"exchange"`
	Transaction   string          `json:"transactiontype"`
	Qty           model.FlexInt64 `json:"quantity"`
	FilledShares  model.FlexInt64 `json:"filledshares"`
	Unfilled      model.FlexInt64 `json:"unfilledshares"`
	Price         model.FlexFloat `json:"price"`
	TriggerPrice  model.FlexFloat `json:"triggerprice"`
	AvgPrice      model.FlexFloat `json:"averageprice"`
	OrderType     string          `json:"ordertype"`
	ProductType   string          `json:"producttype"`
	Status        string          `json:"status"`
	Text          string          `json:"text"`
	Duration      string          `json:"duration"`
	UpdateTime    string          `json:"updatetime"`
	ExchTime      string          `json:"exchtime"`
}

type wireTrade struct {
	OrderID       string          `json:"orderid"`
	FillID        string          `json:"fillid"`
	TradingSymbol string          `json:"tradingsymbol"`
	Exchange      string          `json:"exchange"`
	Transaction   string          `json:"transactiontype"`
	FillSize      model.FlexInt64 `json:"fillsize"`
	FillPrice     model.FlexFloat `json:"fillprice"`
	ProductType   string          `json:"producttype"`
	FillTime      string          `json:"filltime"`
}

type wirePosition struct {
	TradingSymbol string          `json:"tradingsymbol"`
	Exchange      string          `json:"exchange"`
	ProductType   string          `json:"producttype"`
	NetQty        model.FlexInt64 `json:"netqty"`
	CFBuyQty      model.FlexInt64 `json:"cfbuyqty"`
	CFSellQty     model.FlexInt64 `json:"cfsellqty"`
	AvgNetPrice   model.FlexFloat `json:"avgnetprice"`
	LTP           model.FlexFloat `json:"ltp"`
	PnL           model.FlexFloat `json:"pnl"`
	Realised      model.FlexFloat `json:"realised"`
	Unrealised    model.FlexFloat `json:"unrealised"`
	BuyQty        model.FlexInt64 `json:"buyqty"`
	BuyAmount     model.FlexFloat `json:"buyamount"`
	SellQty       model.FlexInt64 `json:"sellqty"`
	SellAmount    model.FlexFloat `json:"sellamount"`
}

type wireHolding struct {
	TradingSymbol string          `json:"tradingsymbol"`
	Exchange      string          `json:"exchange"`
	Qty           model.FlexInt64 `json:"quantity"`
	AvgPrice      model.FlexFloat `json:"averageprice"`
	LTP           model.FlexFloat `json:"ltp"`
	PnL           model.FlexFloat `json:"profitandloss"`
	Product       string          `json:"product"`
}

type holdingsData struct {
	Holdings []wireHolding `json:"holdings"`
}

type wireFunds struct {
	Net              model.FlexFloat `json:"net"`
	AvailableCash    model.FlexFloat `json:"availablecash"`
	AvailablePayin   model.FlexFloat `json:"availableintradaypayin"`
	Collateral       model.FlexFloat `json:"collateral"`
	UtilisedDebits   model.FlexFloat `json:"utiliseddebits"`
	UtilisedSpan     model.FlexFloat `json:"utilisedspan"`
	UtilisedExposure model.FlexFloat `json:"utilisedexposure"`
	UtilisedPayout   model.FlexFloat `json:"utilisedpayout"`
}

type wireDepthLevel struct {
	Price  model.FlexFloat `json:"price"`
	Qty    model.FlexInt64 `json:"quantity"`
	Orders model.FlexInt   `json:"orders"`
}

type wireQuote struct {
	Exchange      string          `json:"exchange"`
	TradingSymbol string          `json:"tradingSymbol"`
	SymbolToken   string          `json:"symbolToken"`
	LTP           model.FlexFloat `json:"ltp"`
	Open          model.FlexFloat `json:"open"`
	High          model.FlexFloat `json:"high"`
	Low           model.FlexFloat `json:"low"`
	Close         model.FlexFloat `json:"close"`
	TradeVolume   model.FlexInt64 `json:"tradeVolume"`
	OpnInterest   model.FlexInt64 `json:"opnInterest"`
	NetChange     model.FlexFloat `json:"netChange"`
	PercentChange model.FlexFloat `json:"percentChange"`
	ExchFeedTime  string          `json:"exchFeedTime"`
	Depth         struct {
		Buy  []wireDepthLevel `json:"buy"`
		Sell []wireDepthLevel `json:"sell"`
	} `json:"depth"`
}

type quoteData struct {
	Fetched []wireQuote `json:"fetched"`
}

// masterRow is one OpenAPIScripMaster entry. All fields are strings at the
// source; strike and tick size are reported in paise.
type masterRow struct {
	Token          string          `json:"token"`
	Symbol         string          `json:"symbol"`
	Name           string          `json:"name"`
	Expiry         string          `json:"expiry"`
	Strike         model.FlexFloat `json:"strike"`
	LotSize        model.FlexInt   `json:"lotsize"`
	InstrumentType string          `json:"instrumenttype"`
	ExchSeg        string          `json:"exch_seg"`
	TickSize       model.FlexFloat `json:"tick_size"`
}

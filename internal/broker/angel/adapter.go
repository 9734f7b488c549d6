package angel

import (
	"context"
	"net/http"
	"time"

	"github.com/pquerna/otp/totp"

	"tradegate/internal/apierr"
	"tradegate/internal/broker"
	"tradegate/internal/model"
)

// Adapter implements broker.Adapter for Angel One SmartAPI.
type Adapter struct {
	rest  *restClient
	creds broker.Credentials
}

// New creates the Angel adapter. The http client is shared across adapters.
func New(httpClient *http.Client, creds broker.Credentials) *Adapter {
	return &Adapter{
		rest:  newRESTClient(httpClient, creds.APIKey),
		creds: creds,
	}
}

// ID implements broker.Adapter.
func (a *Adapter) ID() string { return broker.IDAngel }

// SetSession restores a stored session token.
func (a *Adapter) SetSession(s *broker.AuthSession) { a.rest.authToken = s.AuthToken }

// Authenticate performs the client-id + password + TOTP login and returns a
// normalized session. The one-time code is generated from the configured
// TOTP secret at call time.
func (a *Adapter) Authenticate(ctx context.Context, creds broker.Credentials) (*broker.AuthSession, error) {
	if creds.ClientID == "" || creds.Password == "" || creds.TOTPSecret == "" {
		return nil, apierr.Validation("angel login requires client id, password and totp secret")
	}

	code, err := totp.GenerateCode(creds.TOTPSecret, time.Now())
	if err != nil {
		return nil, apierr.Validation("invalid totp secret: %v", err)
	}

	data, err := a.rest.post(ctx, "login", map[string]string{
		"clientcode": creds.ClientID,
		"password":   creds.Password,
		"totp":       code,
	})
	if err != nil {
		return nil, err
	}

	var ld loginData
	if err := unmarshal(data, &ld, "login"); err != nil {
		return nil, err
	}
	a.rest.authToken = ld.JWTToken

	sess := &broker.AuthSession{
		AuthToken:    ld.JWTToken,
		FeedToken:    ld.FeedToken,
		RefreshToken: ld.RefreshToken,
		UserID:       creds.ClientID,
	}

	// Profile fetch is best effort: the session is already valid.
	if data, err := a.rest.get(ctx, "profile"); err == nil {
		var pd profileData
		if unmarshal(data, &pd, "profile") == nil {
			sess.UserName = pd.Name
			if pd.ClientCode != "" {
				sess.UserID = pd.ClientCode
			}
		}
	}
	return sess, nil
}

// brokerOrderType maps canonical order types onto SmartAPI enumerations.
func brokerOrderType(t model.OrderType) string {
	switch t {
	case model.OrderTypeSL:
		return "STOPLOSS_LIMIT"
	case model.OrderTypeSLM:
		return "STOPLOSS_MARKET"
	default:
		return string(t)
	}
}

// brokerProduct maps canonical products onto SmartAPI product types.
func brokerProduct(p model.Product) string {
	switch p {
	case model.ProductCNC:
		return "DELIVERY"
	case model.ProductMIS:
		return "INTRADAY"
	case model.ProductNRML:
		return "CARRYFORWARD"
	default:
		return string(p)
	}
}

func variety(t model.OrderType) string {
	if t == model.OrderTypeSL || t == model.OrderTypeSLM {
		return "STOPLOSS"
	}
	return "NORMAL"
}

// PlaceOrder implements broker.Adapter. Angel fills orders by numeric symbol
// token, which the router resolves from the symbol cache.
func (a *Adapter) PlaceOrder(ctx context.Context, req broker.OrderRequest) (string, error) {
	if req.Token == "" {
		return "", apierr.Validation("angel orders require a symbol token for %s:%s", req.Exchange, req.Symbol)
	}
	validity := req.Validity
	if validity == "" {
		validity = "DAY"
	}
	body := map[string]any{
		"variety":         variety(req.OrderType),
		"tradingsymbol":   req.Symbol,
		"symboltoken":     req.Token,
		"transactiontype": string(req.Side),
		"exchange":        broker.RealExchange(req.Exchange),
		"ordertype":       brokerOrderType(req.OrderType),
		"producttype":     brokerProduct(req.Product),
		"duration":        validity,
		"price":           req.Price,
		"triggerprice":    req.TriggerPrice,
		"quantity":        req.Qty,
	}
	data, err := a.rest.post(ctx, "order.place", body)
	if err != nil {
		return "", err
	}
	var od orderIDData
	if err := unmarshal(data, &od, "order.place"); err != nil {
		return "", err
	}
	return od.OrderID, nil
}

// ModifyOrder implements broker.Adapter.
func (a *Adapter) ModifyOrder(ctx context.Context, req broker.ModifyRequest) error {
	validity := req.Validity
	if validity == "" {
		validity = "DAY"
	}
	body := map[string]any{
		"variety":       variety(req.OrderType),
		"orderid":       req.OrderID,
		"ordertype":     brokerOrderType(req.OrderType),
		"duration":      validity,
		"price":         req.Price,
		"triggerprice":  req.TriggerPrice,
		"quantity":      req.Qty,
		"tradingsymbol": req.Symbol,
		"symboltoken":   req.Token,
		"exchange":      broker.RealExchange(req.Exchange),
	}
	_, err := a.rest.post(ctx, "order.modify", body)
	return err
}

// CancelOrder implements broker.Adapter.
func (a *Adapter) CancelOrder(ctx context.Context, orderID string) error {
	_, err := a.rest.post(ctx, "order.cancel", map[string]any{
		"variety": "NORMAL",
		"orderid": orderID,
	})
	return err
}

// OrderBook implements broker.Adapter.
func (a *Adapter) OrderBook(ctx context.Context) ([]model.Order, error) {
	data, err := a.rest.get(ctx, "order.book")
	if err != nil {
		return nil, err
	}
	var rows []wireOrder
	if err := unmarshal(data, &rows, "order.book"); err != nil {
		return nil, err
	}
	out := make([]model.Order, 0, len(rows))
	for _, r := range rows {
		out = append(out, r.canonical())
	}
	return out, nil
}

func (r *wireOrder) canonical() model.Order {
	o := model.Order{
		OrderID:         r.OrderID,
		ExchangeOrderID: r.ExchOrderID,
		Symbol:          r.TradingSymbol,
		Exchange:        r.Exchange,
		Side:            broker.NormalizeSide(r.Transaction),
		Qty:             r.Qty.Int64(),
		FilledQty:       r.FilledShares.Int64(),
		PendingQty:      r.Unfilled.Int64(),
		Price:           r.Price.Float64(),
		TriggerPrice:    r.TriggerPrice.Float64(),
		AvgPrice:        r.AvgPrice.Float64(),
		OrderType:       broker.NormalizeOrderType(r.OrderType),
		Product:         broker.NormalizeProduct(r.Exchange, r.ProductType),
		Status:          r.Status,
		Validity:        r.Duration,
	}
	if r.Status == model.StatusRejected {
		o.RejectionReason = r.Text
	}
	o.OrderTS = parseAngelTime(r.UpdateTime)
	o.ExchangeTS = parseAngelTime(r.ExchTime)
	return o
}

// parseAngelTime decodes Angel's "02-Jan-2006 15:04:05" timestamps. A zero
// time is returned for empty or malformed values.
func parseAngelTime(s string) time.Time {
	if s == "" {
		return time.Time{}
	}
	t, err := time.ParseInLocation("02-Jan-2006 15:04:05", s, istLocation)
	if err != nil {
		return time.Time{}
	}
	return t
}

// istLocation is the exchange timezone. Angel reports naive local times.
var istLocation = time.FixedZone("IST", 5*3600+1800)

// TradeBook implements broker.Adapter.
func (a *Adapter) TradeBook(ctx context.Context) ([]model.Trade, error) {
	data, err := a.rest.get(ctx, "trade.book")
	if err != nil {
		return nil, err
	}
	var rows []wireTrade
	if err := unmarshal(data, &rows, "trade.book"); err != nil {
		return nil, err
	}
	out := make([]model.Trade, 0, len(rows))
	for _, r := range rows {
		out = append(out, model.Trade{
			OrderID:  r.OrderID,
			TradeID:  r.FillID,
			Symbol:   r.TradingSymbol,
			Exchange: r.Exchange,
			Side:     broker.NormalizeSide(r.Transaction),
			Qty:      r.FillSize.Int64(),
			Price:    r.FillPrice.Float64(),
			Product:  broker.NormalizeProduct(r.Exchange, r.ProductType),
		})
	}
	return out, nil
}

// Positions implements broker.Adapter.
func (a *Adapter) Positions(ctx context.Context) ([]model.Position, error) {
	data, err := a.rest.get(ctx, "position")
	if err != nil {
		return nil, err
	}
	var rows []wirePosition
	if err := unmarshal(data, &rows, "position"); err != nil {
		return nil, err
	}
	out := make([]model.Position, 0, len(rows))
	for _, r := range rows {
		out = append(out, model.Position{
			Symbol:        r.TradingSymbol,
			Exchange:      r.Exchange,
			Product:       broker.NormalizeProduct(r.Exchange, r.ProductType),
			Qty:           r.NetQty.Int64(),
			OvernightQty:  r.CFBuyQty.Int64() - r.CFSellQty.Int64(),
			AvgPrice:      r.AvgNetPrice.Float64(),
			LTP:           r.LTP.Float64(),
			PnL:           r.PnL.Float64(),
			RealizedPnL:   r.Realised.Float64(),
			UnrealizedPnL: r.Unrealised.Float64(),
			BuyQty:        r.BuyQty.Int64(),
			BuyValue:      r.BuyAmount.Float64(),
			SellQty:       r.SellQty.Int64(),
			SellValue:     r.SellAmount.Float64(),
		})
	}
	return out, nil
}

// Holdings implements broker.Adapter.
func (a *Adapter) Holdings(ctx context.Context) ([]model.Holding, error) {
	data, err := a.rest.get(ctx, "holding")
	if err != nil {
		return nil, err
	}
	var hd holdingsData
	if err := unmarshal(data, &hd, "holding"); err != nil {
		return nil, err
	}
	out := make([]model.Holding, 0, len(hd.Holdings))
	for _, r := range hd.Holdings {
		out = append(out, model.Holding{
			Symbol:   r.TradingSymbol,
			Exchange: r.Exchange,
			Qty:      r.Qty.Int64(),
			AvgPrice: r.AvgPrice.Float64(),
			LTP:      r.LTP.Float64(),
			PnL:      r.PnL.Float64(),
			Product:  broker.NormalizeProduct(r.Exchange, r.Product),
		})
	}
	return out, nil
}

// Funds implements broker.Adapter. Angel's RMS endpoint reports margin
// buckets under "utilised*" names.
func (a *Adapter) Funds(ctx context.Context) (*model.Funds, error) {
	data, err := a.rest.get(ctx, "rms")
	if err != nil {
		return nil, err
	}
	var f wireFunds
	if err := unmarshal(data, &f, "rms"); err != nil {
		return nil, err
	}
	return &model.Funds{
		AvailableCash:  f.AvailableCash.Float64(),
		UsedMargin:     f.UtilisedDebits.Float64(),
		TotalMargin:    f.Net.Float64(),
		OpeningBalance: f.AvailableCash.Float64(),
		PayIn:          f.AvailablePayin.Float64(),
		PayOut:         f.UtilisedPayout.Float64(),
		Span:           f.UtilisedSpan.Float64(),
		Exposure:       f.UtilisedExposure.Float64(),
		Collateral:     f.Collateral.Float64(),
	}, nil
}

// Quotes implements broker.Adapter: one batched FULL-mode call with tokens
// grouped by (real) exchange. The caller's index aliases are preserved in
// the canonical result.
func (a *Adapter) Quotes(ctx context.Context, reqs []broker.QuoteRequest) ([]model.Quote, error) {
	if len(reqs) == 0 {
		return nil, nil
	}
	exchangeTokens := map[string][]string{}
	// alias lookup by real exchange + token
	alias := map[string]string{}
	for _, r := range reqs {
		if r.Token == "" {
			return nil, apierr.Validation("angel quotes require a symbol token for %s:%s", r.Exchange, r.Symbol)
		}
		real := broker.RealExchange(r.Exchange)
		exchangeTokens[real] = append(exchangeTokens[real], r.Token)
		alias[real+":"+r.Token] = r.Exchange
	}

	data, err := a.rest.post(ctx, "quote", map[string]any{
		"mode":           "FULL",
		"exchangeTokens": exchangeTokens,
	})
	if err != nil {
		return nil, err
	}
	var qd quoteData
	if err := unmarshal(data, &qd, "quote"); err != nil {
		return nil, err
	}

	out := make([]model.Quote, 0, len(qd.Fetched))
	for _, w := range qd.Fetched {
		exchange := w.Exchange
		if orig, ok := alias[w.Exchange+":"+w.SymbolToken]; ok {
			exchange = orig
		}
		q := model.Quote{
			Symbol:   w.TradingSymbol,
			Exchange: exchange,
			LTP:      w.LTP.Float64(),
			OHLC: model.OHLC{
				Open:  w.Open.Float64(),
				High:  w.High.Float64(),
				Low:   w.Low.Float64(),
				Close: w.Close.Float64(),
			},
			Volume:        w.TradeVolume.Int64(),
			OI:            w.OpnInterest.Int64(),
			Change:        w.NetChange.Float64(),
			ChangePercent: w.PercentChange.Float64(),
			Timestamp:     parseAngelTime(w.ExchFeedTime),
		}
		if len(w.Depth.Buy) > 0 {
			q.BidPrice = w.Depth.Buy[0].Price.Float64()
			q.BidQty = w.Depth.Buy[0].Qty.Int64()
		}
		if len(w.Depth.Sell) > 0 {
			q.AskPrice = w.Depth.Sell[0].Price.Float64()
			q.AskQty = w.Depth.Sell[0].Qty.Int64()
		}
		out = append(out, q)
	}
	return out, nil
}

// Depth implements broker.Adapter, reusing the FULL quote payload.
func (a *Adapter) Depth(ctx context.Context, req broker.QuoteRequest) (*model.MarketDepth, error) {
	if req.Token == "" {
		return nil, apierr.Validation("angel depth requires a symbol token for %s:%s", req.Exchange, req.Symbol)
	}
	real := broker.RealExchange(req.Exchange)
	data, err := a.rest.post(ctx, "quote", map[string]any{
		"mode":           "FULL",
		"exchangeTokens": map[string][]string{real: {req.Token}},
	})
	if err != nil {
		return nil, err
	}
	var qd quoteData
	if err := unmarshal(data, &qd, "quote"); err != nil {
		return nil, err
	}
	if len(qd.Fetched) == 0 {
		return nil, apierr.NotFound("no depth for %s:%s", req.Exchange, req.Symbol)
	}

	w := qd.Fetched[0]
	depth := &model.MarketDepth{
		Symbol:   w.TradingSymbol,
		Exchange: req.Exchange,
		LTP:      w.LTP.Float64(),
	}
	for _, lvl := range w.Depth.Buy {
		depth.Bids = append(depth.Bids, model.DepthLevel{
			Price:  lvl.Price.Float64(),
			Qty:    lvl.Qty.Int64(),
			Orders: lvl.Orders.Int(),
		})
	}
	for _, lvl := range w.Depth.Sell {
		depth.Asks = append(depth.Asks, model.DepthLevel{
			Price:  lvl.Price.Float64(),
			Qty:    lvl.Qty.Int64(),
			Orders: lvl.Orders.Int(),
		})
	}
	depth.Bids = broker.TruncateDepth(depth.Bids)
	depth.Asks = broker.TruncateDepth(depth.Asks)
	return depth, nil
}

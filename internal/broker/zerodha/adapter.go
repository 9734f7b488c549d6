package zerodha

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"tradegate/internal/apierr"
	"tradegate/internal/broker"
	"tradegate/internal/model"
)

// Adapter implements broker.Adapter for Zerodha Kite Connect.
type Adapter struct {
	rest  *restClient
	creds broker.Credentials
}

// New creates the Zerodha adapter.
func New(httpClient *http.Client, creds broker.Credentials) *Adapter {
	return &Adapter{
		rest:  newRESTClient(httpClient, creds.APIKey),
		creds: creds,
	}
}

// ID implements broker.Adapter.
func (a *Adapter) ID() string { return broker.IDZerodha }

// SetSession restores a stored access token.
func (a *Adapter) SetSession(s *broker.AuthSession) { a.rest.accessToken = s.AuthToken }

// Authenticate exchanges the login redirect's request token for a session.
// The proof of app identity is checksum = SHA-256(api_key + request_token +
// api_secret). The canonical auth token keeps Kite's "api_key:access_token"
// prefix convention so the streaming layer can reuse it opaquely.
func (a *Adapter) Authenticate(ctx context.Context, creds broker.Credentials) (*broker.AuthSession, error) {
	if creds.APIKey == "" || creds.APISecret == "" || creds.RequestToken == "" {
		return nil, apierr.Validation("zerodha login requires api key, api secret and request token")
	}

	sum := sha256.Sum256([]byte(creds.APIKey + creds.RequestToken + creds.APISecret))
	form := url.Values{}
	form.Set("api_key", creds.APIKey)
	form.Set("request_token", creds.RequestToken)
	form.Set("checksum", hex.EncodeToString(sum[:]))

	data, err := a.rest.post(ctx, "/session/token", form)
	if err != nil {
		return nil, err
	}
	var sd sessionData
	if err := unmarshal(data, &sd, "/session/token"); err != nil {
		return nil, err
	}
	a.rest.accessToken = sd.AccessToken

	return &broker.AuthSession{
		AuthToken: sd.AccessToken,
		FeedToken: sd.PublicToken,
		UserID:    sd.UserID,
		UserName:  sd.UserName,
	}, nil
}

// brokerProduct: Kite uses the canonical product names natively.
func brokerProduct(p model.Product) string { return string(p) }

// PlaceOrder implements broker.Adapter. Kite addresses instruments by
// trading symbol, so no numeric token is needed.
func (a *Adapter) PlaceOrder(ctx context.Context, req broker.OrderRequest) (string, error) {
	if req.Symbol == "" {
		return "", apierr.Validation("zerodha orders require a trading symbol")
	}
	validity := req.Validity
	if validity == "" {
		validity = "DAY"
	}

	form := url.Values{}
	form.Set("tradingsymbol", req.Symbol)
	form.Set("exchange", broker.RealExchange(req.Exchange))
	form.Set("transaction_type", string(req.Side))
	form.Set("order_type", string(req.OrderType))
	form.Set("quantity", strconv.FormatInt(req.Qty, 10))
	form.Set("product", brokerProduct(req.Product))
	form.Set("validity", validity)
	if req.Price > 0 {
		form.Set("price", formatPrice(req.Price))
	}
	if req.TriggerPrice > 0 {
		form.Set("trigger_price", formatPrice(req.TriggerPrice))
	}

	data, err := a.rest.post(ctx, "/orders/regular", form)
	if err != nil {
		return "", err
	}
	var od orderIDData
	if err := unmarshal(data, &od, "/orders/regular"); err != nil {
		return "", err
	}
	return od.OrderID, nil
}

func formatPrice(p float64) string { return strconv.FormatFloat(p, 'f', 2, 64) }

// ModifyOrder implements broker.Adapter.
func (a *Adapter) ModifyOrder(ctx context.Context, req broker.ModifyRequest) error {
	form := url.Values{}
	form.Set("order_type", string(req.OrderType))
	form.Set("quantity", strconv.FormatInt(req.Qty, 10))
	if req.Validity != "" {
		form.Set("validity", req.Validity)
	}
	if req.Price > 0 {
		form.Set("price", formatPrice(req.Price))
	}
	if req.TriggerPrice > 0 {
		form.Set("trigger_price", formatPrice(req.TriggerPrice))
	}
	_, err := a.rest.put(ctx, "/orders/regular/"+req.OrderID, form)
	return err
}

// CancelOrder implements broker.Adapter.
func (a *Adapter) CancelOrder(ctx context.Context, orderID string) error {
	_, err := a.rest.del(ctx, "/orders/regular/"+orderID)
	return err
}

// kiteTime decodes Kite's "2006-01-02 15:04:05" timestamps.
func kiteTime(s string) time.Time {
	if s == "" {
		return time.Time{}
	}
	t, err := time.ParseInLocation("2006-01-02 15:04:05", s, istLocation)
	if err != nil {
		return time.Time{}
	}
	return t
}

var istLocation = time.FixedZone("IST", 5*3600+1800)

// OrderBook implements broker.Adapter.
func (a *Adapter) OrderBook(ctx context.Context) ([]model.Order, error) {
	data, err := a.rest.get(ctx, "/orders")
	if err != nil {
		return nil, err
	}
	var rows []wireOrder
	if err := unmarshal(data, &rows, "/orders"); err != nil {
		return nil, err
	}
	out := make([]model.Order, 0, len(rows))
	for _, r := range rows {
		o := model.Order{
			OrderID:         r.OrderID,
			ExchangeOrderID: r.ExchangeOrderID,
			Symbol:          r.TradingSymbol,
			Exchange:        r.Exchange,
			Side:            broker.NormalizeSide(r.TransactionType),
			Qty:             r.Qty.Int64(),
			FilledQty:       r.FilledQty.Int64(),
			PendingQty:      r.PendingQty.Int64(),
			Price:           r.Price.Float64(),
			TriggerPrice:    r.TriggerPrice.Float64(),
			AvgPrice:        r.AvgPrice.Float64(),
			OrderType:       broker.NormalizeOrderType(r.OrderType),
			Product:         broker.NormalizeProduct(r.Exchange, r.Product),
			Status:          r.Status,
			Validity:        r.Validity,
			OrderTS:         kiteTime(r.OrderTimestamp),
			ExchangeTS:      kiteTime(r.ExchTimestamp),
		}
		if r.StatusMessage != "" {
			o.RejectionReason = r.StatusMessage
		}
		out = append(out, o)
	}
	return out, nil
}

// TradeBook implements broker.Adapter.
func (a *Adapter) TradeBook(ctx context.Context) ([]model.Trade, error) {
	data, err := a.rest.get(ctx, "/trades")
	if err != nil {
		return nil, err
	}
	var rows []wireTrade
	if err := unmarshal(data, &rows, "/trades"); err != nil {
		return nil, err
	}
	out := make([]model.Trade, 0, len(rows))
	for _, r := range rows {
		out = append(out, model.Trade{
			OrderID:    r.OrderID,
			TradeID:    r.TradeID,
			Symbol:     r.TradingSymbol,
			Exchange:   r.Exchange,
			Side:       broker.NormalizeSide(r.TransactionType),
			Qty:        r.Qty.Int64(),
			Price:      r.AvgPrice.Float64(),
			Product:    broker.NormalizeProduct(r.Exchange, r.Product),
			ExchangeTS: kiteTime(r.FillTimestamp),
		})
	}
	return out, nil
}

// Positions implements broker.Adapter. The canonical view is Kite's "net"
// book; the "day" book is a subset the gateway does not expose.
func (a *Adapter) Positions(ctx context.Context) ([]model.Position, error) {
	data, err := a.rest.get(ctx, "/portfolio/positions")
	if err != nil {
		return nil, err
	}
	var pd positionsData
	if err := unmarshal(data, &pd, "/portfolio/positions"); err != nil {
		return nil, err
	}
	out := make([]model.Position, 0, len(pd.Net))
	for _, r := range pd.Net {
		out = append(out, model.Position{
			Symbol:        r.TradingSymbol,
			Exchange:      r.Exchange,
			Product:       broker.NormalizeProduct(r.Exchange, r.Product),
			Qty:           r.Qty.Int64(),
			OvernightQty:  r.OvernightQty.Int64(),
			AvgPrice:      r.AvgPrice.Float64(),
			LTP:           r.LastPrice.Float64(),
			PnL:           r.PnL.Float64(),
			RealizedPnL:   r.Realised.Float64(),
			UnrealizedPnL: r.Unrealised.Float64(),
			BuyQty:        r.BuyQty.Int64(),
			BuyValue:      r.BuyValue.Float64(),
			SellQty:       r.SellQty.Int64(),
			SellValue:     r.SellValue.Float64(),
		})
	}
	return out, nil
}

// Holdings implements broker.Adapter.
func (a *Adapter) Holdings(ctx context.Context) ([]model.Holding, error) {
	data, err := a.rest.get(ctx, "/portfolio/holdings")
	if err != nil {
		return nil, err
	}
	var rows []wireHolding
	if err := unmarshal(data, &rows, "/portfolio/holdings"); err != nil {
		return nil, err
	}
	out := make([]model.Holding, 0, len(rows))
	for _, r := range rows {
		out = append(out, model.Holding{
			Symbol:   r.TradingSymbol,
			Exchange: r.Exchange,
			Qty:      r.Qty.Int64(),
			AvgPrice: r.AvgPrice.Float64(),
			LTP:      r.LastPrice.Float64(),
			PnL:      r.PnL.Float64(),
			Product:  broker.NormalizeProduct(r.Exchange, r.Product),
		})
	}
	return out, nil
}

// Funds implements broker.Adapter, reading the equity segment margins.
func (a *Adapter) Funds(ctx context.Context) (*model.Funds, error) {
	data, err := a.rest.get(ctx, "/user/margins")
	if err != nil {
		return nil, err
	}
	var md marginsData
	if err := unmarshal(data, &md, "/user/margins"); err != nil {
		return nil, err
	}
	eq := md.Equity
	return &model.Funds{
		AvailableCash:  eq.Available.Cash.Float64(),
		UsedMargin:     eq.Utilised.Debits.Float64(),
		TotalMargin:    eq.Net.Float64(),
		OpeningBalance: eq.Available.OpeningBalance.Float64(),
		PayIn:          eq.Available.IntradayPayin.Float64(),
		PayOut:         eq.Utilised.Payout.Float64(),
		Span:           eq.Utilised.Span.Float64(),
		Exposure:       eq.Utilised.Exposure.Float64(),
		Collateral:     eq.Available.Collateral.Float64(),
	}, nil
}

// Quotes implements broker.Adapter: one batched GET /quote call keyed by
// "EXCHANGE:SYMBOL" instrument identifiers.
func (a *Adapter) Quotes(ctx context.Context, reqs []broker.QuoteRequest) ([]model.Quote, error) {
	if len(reqs) == 0 {
		return nil, nil
	}
	q := url.Values{}
	// key back to the caller's (possibly aliased) request
	byKey := map[string]broker.QuoteRequest{}
	for _, r := range reqs {
		key := broker.RealExchange(r.Exchange) + ":" + r.Symbol
		q.Add("i", key)
		byKey[key] = r
	}

	data, err := a.rest.get(ctx, "/quote?"+q.Encode())
	if err != nil {
		return nil, err
	}
	var quotes map[string]wireQuote
	if err := unmarshal(data, &quotes, "/quote"); err != nil {
		return nil, err
	}

	out := make([]model.Quote, 0, len(quotes))
	for key, w := range quotes {
		req, ok := byKey[key]
		if !ok {
			continue
		}
		quote := model.Quote{
			Symbol:   req.Symbol,
			Exchange: req.Exchange,
			LTP:      w.LastPrice.Float64(),
			OHLC: model.OHLC{
				Open:  w.OHLC.Open.Float64(),
				High:  w.OHLC.High.Float64(),
				Low:   w.OHLC.Low.Float64(),
				Close: w.OHLC.Close.Float64(),
			},
			Volume:    w.Volume.Int64(),
			OI:        w.OI.Int64(),
			Change:    w.NetChange.Float64(),
			Timestamp: kiteTime(w.Timestamp),
		}
		if prev := quote.OHLC.Close; prev != 0 {
			quote.ChangePercent = (quote.LTP - prev) / prev * 100
		}
		if len(w.Depth.Buy) > 0 {
			quote.BidPrice = w.Depth.Buy[0].Price.Float64()
			quote.BidQty = w.Depth.Buy[0].Qty.Int64()
		}
		if len(w.Depth.Sell) > 0 {
			quote.AskPrice = w.Depth.Sell[0].Price.Float64()
			quote.AskQty = w.Depth.Sell[0].Qty.Int64()
		}
		out = append(out, quote)
	}
	return out, nil
}

// Depth implements broker.Adapter via the same /quote payload.
func (a *Adapter) Depth(ctx context.Context, req broker.QuoteRequest) (*model.MarketDepth, error) {
	key := broker.RealExchange(req.Exchange) + ":" + req.Symbol
	data, err := a.rest.get(ctx, "/quote?i="+url.QueryEscape(key))
	if err != nil {
		return nil, err
	}
	var quotes map[string]wireQuote
	if err := unmarshal(data, &quotes, "/quote"); err != nil {
		return nil, err
	}
	w, ok := quotes[key]
	if !ok {
		return nil, apierr.NotFound("no depth for %s:%s", req.Exchange, req.Symbol)
	}

	depth := &model.MarketDepth{
		Symbol:   req.Symbol,
		Exchange: req.Exchange,
		LTP:      w.LastPrice.Float64(),
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

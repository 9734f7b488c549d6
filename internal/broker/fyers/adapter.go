// Package fyers implements the broker adapter for Fyers API v2.
//
// Authentication exchanges an OAuth authorization code using an appIdHash
// (SHA-256 of "api_key:api_secret", where the api key carries its "-100"
// client suffix) as the application identity proof. Order endpoints encode
// side and order type as integer codes.
//
// The read paths (order book, trade book, positions, holdings, funds,
// quotes, depth) and the master contract are explicitly unimplemented
// upstream; they return empty canonical values without error rather than
// guessing at wire formats.
package fyers

import (
	"bytes"
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"io"
	"net/http"

	"tradegate/internal/apierr"
	"tradegate/internal/broker"
	"tradegate/internal/model"
)

const defaultRootURL = "https://api.fyers.in/api/v2"

// Adapter implements broker.Adapter for Fyers.
type Adapter struct {
	http    *http.Client
	rootURL string

	appID       string // api key including the "-100" suffix
	accessToken string
}

// New creates the Fyers adapter.
func New(httpClient *http.Client, creds broker.Credentials) *Adapter {
	return &Adapter{
		http:    httpClient,
		rootURL: defaultRootURL,
		appID:   creds.APIKey,
	}
}

// ID implements broker.Adapter.
func (a *Adapter) ID() string { return broker.IDFyers }

// SetSession restores a stored access token.
func (a *Adapter) SetSession(s *broker.AuthSession) { a.accessToken = s.AuthToken }

type envelope struct {
	S       string `json:"s"` // "ok" or "error"
	Code    int    `json:"code"`
	Message string `json:"message"`
	// token exchange and order placement return fields at the top level
	AccessToken string          `json:"access_token"`
	ID          string          `json:"id"`
	Data        json.RawMessage `json:"data"`
}

func (a *Adapter) request(ctx context.Context, method, path string, body any) (*envelope, error) {
	var rd io.Reader
	if body != nil {
		b, err := json.Marshal(body)
		if err != nil {
			return nil, apierr.Internal(err, "encoding fyers request %s", path)
		}
		rd = bytes.NewReader(b)
	}

	req, err := http.NewRequestWithContext(ctx, method, a.rootURL+path, rd)
	if err != nil {
		return nil, apierr.Internal(err, "building fyers request %s", path)
	}
	req.Header.Set("Content-Type", "application/json")
	if a.accessToken != "" {
		req.Header.Set("Authorization", a.appID+":"+a.accessToken)
	}

	resp, err := a.http.Do(req)
	if err != nil {
		return nil, apierr.Internal(err, "fyers %s call failed", path)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, apierr.Internal(err, "reading fyers response for %s", path)
	}

	var env envelope
	if err := json.Unmarshal(raw, &env); err != nil {
		return nil, apierr.Internal(err, "malformed fyers response for %s", path)
	}
	if env.S != "ok" {
		msg := env.Message
		if msg == "" {
			msg = fmt.Sprintf("fyers request failed (code=%d, http=%d)", env.Code, resp.StatusCode)
		}
		if resp.StatusCode == http.StatusUnauthorized || resp.StatusCode == http.StatusForbidden {
			return nil, apierr.Auth("%s", msg)
		}
		return nil, apierr.Broker(msg)
	}
	return &env, nil
}

// Authenticate exchanges the OAuth authorization code for an access token.
func (a *Adapter) Authenticate(ctx context.Context, creds broker.Credentials) (*broker.AuthSession, error) {
	if creds.APIKey == "" || creds.APISecret == "" || creds.AuthCode == "" {
		return nil, apierr.Validation("fyers login requires api key, api secret and auth code")
	}

	sum := sha256.Sum256([]byte(creds.APIKey + ":" + creds.APISecret))
	env, err := a.request(ctx, http.MethodPost, "/validate-authcode", map[string]string{
		"grant_type": "authorization_code",
		"appIdHash":  hex.EncodeToString(sum[:]),
		"code":       creds.AuthCode,
	})
	if err != nil {
		return nil, err
	}
	if env.AccessToken == "" {
		return nil, apierr.Auth("fyers returned no access token")
	}
	a.accessToken = env.AccessToken
	a.appID = creds.APIKey

	return &broker.AuthSession{
		AuthToken: env.AccessToken,
		UserID:    creds.ClientID,
	}, nil
}

// sideCode encodes the canonical side as Fyers' integer code.
func sideCode(s model.Side) int {
	if s == model.SideSell {
		return -1
	}
	return 1
}

// typeCode encodes the canonical order type as Fyers' integer code.
func typeCode(t model.OrderType) int {
	switch t {
	case model.OrderTypeLimit:
		return 1
	case model.OrderTypeMarket:
		return 2
	case model.OrderTypeSLM:
		return 3
	case model.OrderTypeSL:
		return 4
	}
	return 2
}

// productCode maps canonical products onto Fyers product names.
func productCode(p model.Product) string {
	switch p {
	case model.ProductCNC:
		return "CNC"
	case model.ProductMIS:
		return "INTRADAY"
	case model.ProductNRML:
		return "MARGIN"
	}
	return string(p)
}

// PlaceOrder implements broker.Adapter. Fyers addresses instruments as
// "EXCHANGE:SYMBOL".
func (a *Adapter) PlaceOrder(ctx context.Context, req broker.OrderRequest) (string, error) {
	if req.Symbol == "" {
		return "", apierr.Validation("fyers orders require a trading symbol")
	}
	body := map[string]any{
		"symbol":       broker.RealExchange(req.Exchange) + ":" + req.Symbol,
		"qty":          req.Qty,
		"type":         typeCode(req.OrderType),
		"side":         sideCode(req.Side),
		"productType":  productCode(req.Product),
		"limitPrice":   req.Price,
		"stopPrice":    req.TriggerPrice,
		"validity":     orDefault(req.Validity, "DAY"),
		"offlineOrder": false,
	}
	env, err := a.request(ctx, http.MethodPost, "/orders", body)
	if err != nil {
		return "", err
	}
	return env.ID, nil
}

func orDefault(s, def string) string {
	if s == "" {
		return def
	}
	return s
}

// ModifyOrder implements broker.Adapter.
func (a *Adapter) ModifyOrder(ctx context.Context, req broker.ModifyRequest) error {
	body := map[string]any{
		"id":         req.OrderID,
		"qty":        req.Qty,
		"type":       typeCode(req.OrderType),
		"limitPrice": req.Price,
		"stopPrice":  req.TriggerPrice,
	}
	_, err := a.request(ctx, http.MethodPut, "/orders", body)
	return err
}

// CancelOrder implements broker.Adapter.
func (a *Adapter) CancelOrder(ctx context.Context, orderID string) error {
	_, err := a.request(ctx, http.MethodDelete, "/orders", map[string]string{"id": orderID})
	return err
}

// OrderBook is an explicit stub: the upstream integration never wired it.
func (a *Adapter) OrderBook(ctx context.Context) ([]model.Order, error) {
	return []model.Order{}, nil
}

// TradeBook is an explicit stub.
func (a *Adapter) TradeBook(ctx context.Context) ([]model.Trade, error) {
	return []model.Trade{}, nil
}

// Positions is an explicit stub.
func (a *Adapter) Positions(ctx context.Context) ([]model.Position, error) {
	return []model.Position{}, nil
}

// Holdings is an explicit stub.
func (a *Adapter) Holdings(ctx context.Context) ([]model.Holding, error) {
	return []model.Holding{}, nil
}

// Funds is an explicit stub.
func (a *Adapter) Funds(ctx context.Context) (*model.Funds, error) {
	return &model.Funds{}, nil
}

// Quotes is an explicit stub.
func (a *Adapter) Quotes(ctx context.Context, reqs []broker.QuoteRequest) ([]model.Quote, error) {
	return []model.Quote{}, nil
}

// Depth is an explicit stub.
func (a *Adapter) Depth(ctx context.Context, req broker.QuoteRequest) (*model.MarketDepth, error) {
	return &model.MarketDepth{Symbol: req.Symbol, Exchange: req.Exchange}, nil
}

// DownloadMaster is an explicit stub: no master-contract source is wired for
// Fyers. Returns an empty list without error.
func (a *Adapter) DownloadMaster(ctx context.Context) ([]model.SymbolData, error) {
	return []model.SymbolData{}, nil
}

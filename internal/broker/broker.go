// Package broker defines the capability interface every brokerage adapter
// implements and the canonical request shapes the routing layer submits.
// Each adapter owns its broker's wire formats privately and only returns
// canonical types, so everything above this layer is broker-blind.
package broker

import (
	"context"
	"net/http"
	"time"

	"tradegate/internal/model"
)

// Known broker ids.
const (
	IDAngel   = "angel"
	IDZerodha = "zerodha"
	IDFyers   = "fyers"
)

// RequestTimeout bounds every outbound broker HTTP call. Timed-out calls
// fail with a retryable-by-caller error; adapters never retry.
const RequestTimeout = 30 * time.Second

// NewHTTPClient returns the HTTP client adapters share.
func NewHTTPClient() *http.Client {
	return &http.Client{Timeout: RequestTimeout}
}

// Credentials holds everything a broker may need to authenticate. Which
// fields are required differs per broker; adapters validate before calling.
type Credentials struct {
	APIKey     string
	APISecret  string
	ClientID   string
	Password   string
	TOTPSecret string
	// RequestToken is Zerodha's login redirect token; AuthCode is Fyers'
	// OAuth authorization code.
	RequestToken string
	AuthCode     string
}

// AuthSession is the normalized result of a broker login. AuthToken is an
// opaque credential; its format is broker-specific and must not be parsed
// above the adapter layer.
type AuthSession struct {
	AuthToken    string `json:"auth_token"`
	FeedToken    string `json:"feed_token,omitempty"`
	RefreshToken string `json:"refresh_token,omitempty"`
	UserID       string `json:"user_id"`
	UserName     string `json:"user_name,omitempty"`
}

// OrderRequest is a canonical order submission. Token carries the broker
// numeric instrument token, resolved from the symbol cache by the router for
// adapters that fill orders by token rather than by trading symbol.
type OrderRequest struct {
	Symbol       string
	Exchange     string
	Token        string
	Side         model.Side
	Qty          int64
	Price        float64
	TriggerPrice float64
	OrderType    model.OrderType
	Product      model.Product
	Validity     string
}

// ModifyRequest changes price/quantity/type of an open order.
type ModifyRequest struct {
	OrderID      string
	Symbol       string
	Exchange     string
	Token        string
	Qty          int64
	Price        float64
	TriggerPrice float64
	OrderType    model.OrderType
	Validity     string
}

// QuoteRequest identifies one instrument for a quote or depth call.
type QuoteRequest struct {
	Symbol   string
	Exchange string
	Token    string
}

// Adapter is the capability set implemented independently per broker.
// All methods return canonical types; every non-success broker envelope
// surfaces as an apierr Broker error carrying the broker's message verbatim.
type Adapter interface {
	ID() string

	Authenticate(ctx context.Context, creds Credentials) (*AuthSession, error)
	// SetSession restores a previously stored session without a login call.
	SetSession(s *AuthSession)

	PlaceOrder(ctx context.Context, req OrderRequest) (orderID string, err error)
	ModifyOrder(ctx context.Context, req ModifyRequest) error
	CancelOrder(ctx context.Context, orderID string) error

	OrderBook(ctx context.Context) ([]model.Order, error)
	TradeBook(ctx context.Context) ([]model.Trade, error)
	Positions(ctx context.Context) ([]model.Position, error)
	Holdings(ctx context.Context) ([]model.Holding, error)
	Funds(ctx context.Context) (*model.Funds, error)

	Quotes(ctx context.Context, reqs []QuoteRequest) ([]model.Quote, error)
	Depth(ctx context.Context, req QuoteRequest) (*model.MarketDepth, error)

	// DownloadMaster fetches the broker's full instrument catalog. The
	// result replaces the symbol table wholesale.
	DownloadMaster(ctx context.Context) ([]model.SymbolData, error)
}

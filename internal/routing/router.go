// Package routing is the gateway's execution path: every trading operation
// enters here, passes the rate limiter, and is dispatched either to the
// active broker adapter (live) or the sandbox engine (analyze). The mode
// flag is re-read on every call, so a flip takes effect on the next
// operation.
package routing

import (
	"context"
	"time"

	"tradegate/internal/apierr"
	"tradegate/internal/broker"
	"tradegate/internal/metrics"
	"tradegate/internal/model"
	"tradegate/internal/ratelimit"
	"tradegate/internal/sandbox"
	"tradegate/internal/session"
	"tradegate/internal/store/sqlite"
	"tradegate/internal/symbols"
)

// AdapterRegistry resolves broker ids to adapters.
type AdapterRegistry interface {
	Get(id string) (broker.Adapter, bool)
}

// AuditLogger records order outcomes. Failures are logged by the store and
// never affect the order result.
type AuditLogger interface {
	LogOrder(sqlite.AuditRow) error
}

// SymbolStore persists the master contract across restarts.
type SymbolStore interface {
	StoreSymbols([]model.SymbolData) error
}

// Router owns the live/analyze dispatch for every operation.
type Router struct {
	session  *session.Session
	registry AdapterRegistry
	symbols  *symbols.Cache
	limiter  *ratelimit.Limiter
	sandbox  *sandbox.Engine
	audit    AuditLogger
	symStore SymbolStore
	metrics  *metrics.Metrics // nil disables instrumentation
}

// New wires a router. audit, symStore, and m may be nil.
func New(s *session.Session, reg AdapterRegistry, sym *symbols.Cache, lim *ratelimit.Limiter,
	sb *sandbox.Engine, audit AuditLogger, symStore SymbolStore, m *metrics.Metrics) *Router {
	return &Router{
		session:  s,
		registry: reg,
		symbols:  sym,
		limiter:  lim,
		sandbox:  sb,
		audit:    audit,
		symStore: symStore,
		metrics:  m,
	}
}

// adapter returns the active broker adapter or an auth error when no
// session is active.
func (r *Router) adapter() (broker.Adapter, error) {
	if !r.session.Authenticated() {
		return nil, apierr.Auth("no active broker session")
	}
	a, ok := r.registry.Get(r.session.Broker())
	if !ok {
		return nil, apierr.Internal(nil, "active broker %q has no registered adapter", r.session.Broker())
	}
	return a, nil
}

// acquire runs the token bucket for a category, counting rejections.
func (r *Router) acquire(cat ratelimit.Category) error {
	if err := r.limiter.TryAcquire(cat); err != nil {
		if r.metrics != nil {
			r.metrics.RateLimitRejections.WithLabelValues(string(cat)).Inc()
		}
		return err
	}
	return nil
}

func (r *Router) countOrder(brokerID string, mode session.Mode, status string) {
	if r.metrics != nil {
		r.metrics.OrdersTotal.WithLabelValues(brokerID, string(mode), status).Inc()
	}
}

func (r *Router) logOrder(brokerID string, mode session.Mode, req broker.OrderRequest, status, msg string) {
	if r.audit == nil {
		return
	}
	start := time.Now()
	r.audit.LogOrder(sqlite.AuditRow{
		Broker:   brokerID,
		Mode:     string(mode),
		Symbol:   req.Symbol,
		Exchange: req.Exchange,
		Side:     string(req.Side),
		Qty:      req.Qty,
		Price:    req.Price,
		Status:   status,
		Message:  msg,
	})
	if r.metrics != nil {
		r.metrics.AuditWriteDur.Observe(time.Since(start).Seconds())
	}
}

// resolveToken attaches the broker instrument token from the symbol cache.
// Index-exchange aliases are translated for the lookup only; the request
// keeps the caller's exchange.
func (r *Router) resolveToken(symbol, exchange string) string {
	if r.symbols == nil {
		return ""
	}
	sd, ok := r.symbols.Lookup(broker.RealExchange(exchange), symbol)
	if !ok {
		return ""
	}
	return sd.Token
}

// PlaceOrder routes one order by the current mode and returns the order id.
func (r *Router) PlaceOrder(ctx context.Context, req broker.OrderRequest) (string, error) {
	if err := r.acquire(ratelimit.Order); err != nil {
		return "", err
	}

	mode := r.session.Mode()
	if mode == session.ModeAnalyze {
		o, err := r.sandbox.PlaceOrder(req)
		if err != nil {
			r.countOrder("sandbox", mode, "error")
			r.logOrder("sandbox", mode, req, "ERROR", err.Error())
			return "", err
		}
		r.countOrder("sandbox", mode, "success")
		r.logOrder("sandbox", mode, req, "SUCCESS", o.OrderID)
		return o.OrderID, nil
	}

	a, err := r.adapter()
	if err != nil {
		return "", err
	}
	req.Token = r.resolveToken(req.Symbol, req.Exchange)

	start := time.Now()
	orderID, err := a.PlaceOrder(ctx, req)
	if r.metrics != nil {
		r.metrics.BrokerRequestDur.WithLabelValues(a.ID()).Observe(time.Since(start).Seconds())
	}
	if err != nil {
		r.countOrder(a.ID(), mode, "error")
		r.logOrder(a.ID(), mode, req, "ERROR", err.Error())
		return "", err
	}
	r.countOrder(a.ID(), mode, "success")
	r.logOrder(a.ID(), mode, req, "SUCCESS", orderID)
	return orderID, nil
}

// ModifyOrder routes an order modification.
func (r *Router) ModifyOrder(ctx context.Context, req broker.ModifyRequest) error {
	if err := r.acquire(ratelimit.Order); err != nil {
		return err
	}
	if r.session.Mode() == session.ModeAnalyze {
		return r.sandbox.ModifyOrder(req)
	}
	a, err := r.adapter()
	if err != nil {
		return err
	}
	req.Token = r.resolveToken(req.Symbol, req.Exchange)
	return a.ModifyOrder(ctx, req)
}

// CancelOrder routes an order cancel. In analyze mode a non-pending order
// reports a validation error so both paths return an error on failure.
func (r *Router) CancelOrder(ctx context.Context, orderID string) error {
	if err := r.acquire(ratelimit.Order); err != nil {
		return err
	}
	if r.session.Mode() == session.ModeAnalyze {
		if !r.sandbox.CancelOrder(orderID) {
			return apierr.Validation("order %s is not pending", orderID)
		}
		return nil
	}
	a, err := r.adapter()
	if err != nil {
		return err
	}
	return a.CancelOrder(ctx, orderID)
}

// OrdersView is the mode-stamped order book.
type OrdersView struct {
	Mode   session.Mode  `json:"mode"`
	Orders []model.Order `json:"orders"`
}

// TradesView is the mode-stamped trade book.
type TradesView struct {
	Mode   session.Mode  `json:"mode"`
	Trades []model.Trade `json:"trades"`
}

// PositionsView is the mode-stamped position book.
type PositionsView struct {
	Mode      session.Mode     `json:"mode"`
	Positions []model.Position `json:"positions"`
}

// HoldingsView is the mode-stamped holdings list.
type HoldingsView struct {
	Mode     session.Mode    `json:"mode"`
	Holdings []model.Holding `json:"holdings"`
}

// FundsView is the mode-stamped funds snapshot.
type FundsView struct {
	Mode  session.Mode `json:"mode"`
	Funds model.Funds  `json:"funds"`
}

// OrderBook returns the order book for the current mode.
func (r *Router) OrderBook(ctx context.Context) (*OrdersView, error) {
	if err := r.acquire(ratelimit.General); err != nil {
		return nil, err
	}
	mode := r.session.Mode()
	if mode == session.ModeAnalyze {
		return &OrdersView{Mode: mode, Orders: r.sandbox.Orders()}, nil
	}
	a, err := r.adapter()
	if err != nil {
		return nil, err
	}
	orders, err := a.OrderBook(ctx)
	if err != nil {
		return nil, err
	}
	return &OrdersView{Mode: mode, Orders: orders}, nil
}

// TradeBook returns the trade book for the current mode.
func (r *Router) TradeBook(ctx context.Context) (*TradesView, error) {
	if err := r.acquire(ratelimit.General); err != nil {
		return nil, err
	}
	mode := r.session.Mode()
	if mode == session.ModeAnalyze {
		return &TradesView{Mode: mode, Trades: r.sandbox.Trades()}, nil
	}
	a, err := r.adapter()
	if err != nil {
		return nil, err
	}
	trades, err := a.TradeBook(ctx)
	if err != nil {
		return nil, err
	}
	return &TradesView{Mode: mode, Trades: trades}, nil
}

// Positions returns the position book for the current mode.
func (r *Router) Positions(ctx context.Context) (*PositionsView, error) {
	if err := r.acquire(ratelimit.General); err != nil {
		return nil, err
	}
	mode := r.session.Mode()
	if mode == session.ModeAnalyze {
		return &PositionsView{Mode: mode, Positions: r.sandbox.Positions()}, nil
	}
	a, err := r.adapter()
	if err != nil {
		return nil, err
	}
	positions, err := a.Positions(ctx)
	if err != nil {
		return nil, err
	}
	return &PositionsView{Mode: mode, Positions: positions}, nil
}

// Holdings returns the holdings for the current mode.
func (r *Router) Holdings(ctx context.Context) (*HoldingsView, error) {
	if err := r.acquire(ratelimit.General); err != nil {
		return nil, err
	}
	mode := r.session.Mode()
	if mode == session.ModeAnalyze {
		return &HoldingsView{Mode: mode, Holdings: r.sandbox.Holdings()}, nil
	}
	a, err := r.adapter()
	if err != nil {
		return nil, err
	}
	holdings, err := a.Holdings(ctx)
	if err != nil {
		return nil, err
	}
	return &HoldingsView{Mode: mode, Holdings: holdings}, nil
}

// Funds returns the funds snapshot for the current mode.
func (r *Router) Funds(ctx context.Context) (*FundsView, error) {
	if err := r.acquire(ratelimit.General); err != nil {
		return nil, err
	}
	mode := r.session.Mode()
	if mode == session.ModeAnalyze {
		return &FundsView{Mode: mode, Funds: r.sandbox.Funds()}, nil
	}
	a, err := r.adapter()
	if err != nil {
		return nil, err
	}
	funds, err := a.Funds(ctx)
	if err != nil {
		return nil, err
	}
	return &FundsView{Mode: mode, Funds: *funds}, nil
}

// Quotes fetches quotes from the live broker. Quotes are market data, not
// simulated state, so analyze mode still reads them live.
func (r *Router) Quotes(ctx context.Context, reqs []broker.QuoteRequest) ([]model.Quote, error) {
	if err := r.acquire(ratelimit.General); err != nil {
		return nil, err
	}
	a, err := r.adapter()
	if err != nil {
		return nil, err
	}
	for i := range reqs {
		if reqs[i].Token == "" {
			reqs[i].Token = r.resolveToken(reqs[i].Symbol, reqs[i].Exchange)
		}
	}
	return a.Quotes(ctx, reqs)
}

// Depth fetches market depth from the live broker.
func (r *Router) Depth(ctx context.Context, req broker.QuoteRequest) (*model.MarketDepth, error) {
	if err := r.acquire(ratelimit.General); err != nil {
		return nil, err
	}
	a, err := r.adapter()
	if err != nil {
		return nil, err
	}
	if req.Token == "" {
		req.Token = r.resolveToken(req.Symbol, req.Exchange)
	}
	return a.Depth(ctx, req)
}

// SmartOrderRequest targets a position size instead of an order quantity.
// The router computes the delta from the current position and places the
// difference.
type SmartOrderRequest struct {
	Symbol    string
	Exchange  string
	Product   model.Product
	TargetQty int64 // signed target position
	Price     float64
	OrderType model.OrderType
}

// SmartOrder converges the (exchange, symbol, product) position to the
// target quantity. A zero delta is a successful no-op returning "".
func (r *Router) SmartOrder(ctx context.Context, req SmartOrderRequest) (string, error) {
	if err := r.acquire(ratelimit.SmartOrder); err != nil {
		return "", err
	}
	if err := r.limiter.CheckSmartDelay(); err != nil {
		if r.metrics != nil {
			r.metrics.RateLimitRejections.WithLabelValues(string(ratelimit.SmartOrder)).Inc()
		}
		return "", err
	}

	current, err := r.positionQty(ctx, req)
	if err != nil {
		return "", err
	}
	delta := req.TargetQty - current
	if delta == 0 {
		return "", nil
	}

	side := model.SideBuy
	if delta < 0 {
		side = model.SideSell
		delta = -delta
	}

	order := broker.OrderRequest{
		Symbol:    req.Symbol,
		Exchange:  req.Exchange,
		Side:      side,
		Qty:       delta,
		Price:     req.Price,
		OrderType: req.OrderType,
		Product:   req.Product,
	}
	if order.OrderType == "" {
		order.OrderType = model.OrderTypeMarket
	}
	return r.PlaceOrder(ctx, order)
}

// positionQty reads the current signed quantity for a smart-order target
// from whichever book the mode selects.
func (r *Router) positionQty(ctx context.Context, req SmartOrderRequest) (int64, error) {
	var positions []model.Position
	if r.session.Mode() == session.ModeAnalyze {
		positions = r.sandbox.Positions()
	} else {
		a, err := r.adapter()
		if err != nil {
			return 0, err
		}
		positions, err = a.Positions(ctx)
		if err != nil {
			return 0, err
		}
	}
	for _, p := range positions {
		if p.Symbol == req.Symbol && p.Exchange == req.Exchange && p.Product == req.Product {
			return p.Qty, nil
		}
	}
	return 0, nil
}

// RefreshMaster downloads the active broker's instrument catalog, replaces
// the persisted symbol table, and swaps the in-memory cache.
func (r *Router) RefreshMaster(ctx context.Context) (int, error) {
	if err := r.acquire(ratelimit.General); err != nil {
		return 0, err
	}
	a, err := r.adapter()
	if err != nil {
		return 0, err
	}
	rows, err := a.DownloadMaster(ctx)
	if err != nil {
		return 0, err
	}
	if r.symStore != nil {
		if err := r.symStore.StoreSymbols(rows); err != nil {
			return 0, err
		}
	}
	r.symbols.ReplaceAll(rows)
	if r.metrics != nil {
		r.metrics.SymbolsCached.Set(float64(len(rows)))
	}
	return len(rows), nil
}

// SetAnalyzeMode flips the routing mode.
func (r *Router) SetAnalyzeMode(on bool) { r.session.SetAnalyze(on) }

// Mode reports the current routing mode.
func (r *Router) Mode() session.Mode { return r.session.Mode() }

// ResetSandbox wipes the paper-trading books and restores starting funds.
func (r *Router) ResetSandbox() { r.sandbox.Reset() }

// Package sandbox is the in-process paper-trading engine used in analyze
// mode. It simulates fills and keeps order/trade/position/fund books in
// memory, persisting snapshots through an optional Persister so state
// survives a restart. It never talks to a broker.
package sandbox

import (
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"tradegate/internal/apierr"
	"tradegate/internal/broker"
	"tradegate/internal/model"
)

// DefaultStartingCash is the paper-trading balance a fresh or reset engine
// starts with.
const DefaultStartingCash = 1_000_000

// Persister receives best-effort snapshots of sandbox state. Persistence
// failures are logged and never fail the simulated operation.
type Persister interface {
	SaveSandboxOrder(model.Order) error
	SaveSandboxTrade(model.Trade) error
	SaveSandboxPosition(model.Position) error
	SaveSandboxFunds(available, used, starting float64) error
	ClearSandbox() error
}

// Engine simulates order execution and bookkeeping.
type Engine struct {
	mu sync.Mutex

	startingCash float64
	cash         float64

	orders    map[string]*model.Order
	orderIDs  []string // insertion order, for stable book views
	trades    []model.Trade
	positions map[string]*model.Position

	persist Persister
}

// New returns an engine with the given starting cash. persist may be nil.
func New(startingCash float64, persist Persister) *Engine {
	if startingCash <= 0 {
		startingCash = DefaultStartingCash
	}
	return &Engine{
		startingCash: startingCash,
		cash:         startingCash,
		orders:       make(map[string]*model.Order),
		positions:    make(map[string]*model.Position),
		persist:      persist,
	}
}

// PlaceOrder records a simulated order. MARKET orders fill immediately and
// fully at the submitted price; everything else stays pending until a tick
// crosses it or it is cancelled.
func (e *Engine) PlaceOrder(req broker.OrderRequest) (*model.Order, error) {
	if req.Qty <= 0 {
		return nil, apierr.Validation("quantity must be positive")
	}
	side := model.Side(strings.ToUpper(string(req.Side)))
	if side != model.SideBuy && side != model.SideSell {
		return nil, apierr.Validation("side must be BUY or SELL")
	}

	e.mu.Lock()
	defer e.mu.Unlock()

	now := time.Now()
	o := &model.Order{
		OrderID:      "SB-" + uuid.NewString(),
		Symbol:       req.Symbol,
		Exchange:     req.Exchange,
		Side:         side,
		Qty:          req.Qty,
		PendingQty:   req.Qty,
		Price:        req.Price,
		TriggerPrice: req.TriggerPrice,
		OrderType:    req.OrderType,
		Product:      req.Product,
		Status:       model.StatusPending,
		Validity:     req.Validity,
		OrderTS:      now,
	}
	e.orders[o.OrderID] = o
	e.orderIDs = append(e.orderIDs, o.OrderID)

	if o.OrderType == model.OrderTypeMarket {
		e.fill(o, o.Price)
	}
	e.persistOrder(o)

	out := *o
	return &out, nil
}

// ModifyOrder updates a pending order's price, trigger price, quantity, or
// type. Changing the type to MARKET fills it at the new price.
func (e *Engine) ModifyOrder(mod broker.ModifyRequest) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	o, ok := e.orders[mod.OrderID]
	if !ok {
		return apierr.NotFound("order %s not found", mod.OrderID)
	}
	if o.Status != model.StatusPending {
		return apierr.Validation("only pending orders can be modified")
	}

	if mod.Qty > 0 {
		o.Qty = mod.Qty
		o.PendingQty = mod.Qty
	}
	if mod.Price != 0 {
		o.Price = mod.Price
	}
	if mod.TriggerPrice != 0 {
		o.TriggerPrice = mod.TriggerPrice
	}
	if mod.OrderType != "" {
		o.OrderType = mod.OrderType
	}
	if o.OrderType == model.OrderTypeMarket {
		e.fill(o, o.Price)
	}
	e.persistOrder(o)
	return nil
}

// CancelOrder cancels a pending order. Returns false, without error, for
// orders in any other status or unknown ids.
func (e *Engine) CancelOrder(orderID string) bool {
	e.mu.Lock()
	defer e.mu.Unlock()

	o, ok := e.orders[orderID]
	if !ok || o.Status != model.StatusPending {
		return false
	}
	o.Status = model.StatusCancelled
	o.PendingQty = 0
	e.persistOrder(o)
	return true
}

// UpdateLTP applies a tick: pending orders whose limit or trigger is crossed
// fill at their limit (or the tick for SL-M), and all matching positions and
// delivery views get pnl recomputed against the new price.
func (e *Engine) UpdateLTP(exchange, symbol string, ltp float64) {
	e.mu.Lock()
	defer e.mu.Unlock()

	for _, id := range e.orderIDs {
		o := e.orders[id]
		if o.Status != model.StatusPending || o.Exchange != exchange || o.Symbol != symbol {
			continue
		}
		if price, ok := crossed(o, ltp); ok {
			e.fill(o, price)
			e.persistOrder(o)
		}
	}

	for _, p := range e.positions {
		if p.Exchange != exchange || p.Symbol != symbol {
			continue
		}
		p.LTP = ltp
		p.UnrealizedPnL = float64(p.Qty) * (ltp - p.AvgPrice)
		p.PnL = p.RealizedPnL + p.UnrealizedPnL
		e.persistPosition(p)
	}
}

// crossed reports whether a tick fills a pending order, and at what price.
func crossed(o *model.Order, ltp float64) (float64, bool) {
	switch o.OrderType {
	case model.OrderTypeLimit:
		if o.Side == model.SideBuy && ltp <= o.Price {
			return o.Price, true
		}
		if o.Side == model.SideSell && ltp >= o.Price {
			return o.Price, true
		}
	case model.OrderTypeSL:
		if o.Side == model.SideBuy && ltp >= o.TriggerPrice {
			return o.Price, true
		}
		if o.Side == model.SideSell && ltp <= o.TriggerPrice {
			return o.Price, true
		}
	case model.OrderTypeSLM:
		if o.Side == model.SideBuy && ltp >= o.TriggerPrice {
			return ltp, true
		}
		if o.Side == model.SideSell && ltp <= o.TriggerPrice {
			return ltp, true
		}
	}
	return 0, false
}

// fill completes an order in full at price and books the trade against the
// (exchange, symbol, product) position. Caller holds the lock.
func (e *Engine) fill(o *model.Order, price float64) {
	o.Status = model.StatusComplete
	o.FilledQty = o.Qty
	o.PendingQty = 0
	o.AvgPrice = price

	tr := model.Trade{
		OrderID:    o.OrderID,
		TradeID:    "SBT-" + uuid.NewString(),
		Symbol:     o.Symbol,
		Exchange:   o.Exchange,
		Side:       o.Side,
		Qty:        o.Qty,
		Price:      price,
		Product:    o.Product,
		ExchangeTS: time.Now(),
	}
	e.trades = append(e.trades, tr)
	e.persistTrade(tr)

	e.applyFill(o.Exchange, o.Symbol, o.Product, o.Side, o.Qty, price)
}

// applyFill folds one execution into the position book. Same-direction adds
// recompute a quantity-weighted average price; reductions and reversals
// leave the average untouched and realize pnl on the closed quantity. A
// position that reaches zero is retained, not deleted.
func (e *Engine) applyFill(exchange, symbol string, product model.Product, side model.Side, qty int64, price float64) {
	key := exchange + ":" + symbol + ":" + string(product)
	p, ok := e.positions[key]
	if !ok {
		p = &model.Position{Symbol: symbol, Exchange: exchange, Product: product}
		e.positions[key] = p
	}

	signed := qty
	if side == model.SideSell {
		signed = -qty
	}

	switch {
	case p.Qty == 0 || sameSign(p.Qty, signed):
		cur := abs64(p.Qty)
		p.AvgPrice = (float64(cur)*p.AvgPrice + float64(qty)*price) / float64(cur+qty)
	default:
		closed := min64(abs64(p.Qty), qty)
		realized := float64(closed) * (price - p.AvgPrice)
		if p.Qty < 0 {
			realized = -realized
		}
		p.RealizedPnL += realized
		e.cash += realized
	}
	p.Qty += signed

	if side == model.SideBuy {
		p.BuyQty += qty
		p.BuyValue += float64(qty) * price
	} else {
		p.SellQty += qty
		p.SellValue += float64(qty) * price
	}

	p.LTP = price
	p.UnrealizedPnL = float64(p.Qty) * (p.LTP - p.AvgPrice)
	p.PnL = p.RealizedPnL + p.UnrealizedPnL

	e.persistPosition(p)
	e.persistFunds()
}

// Orders returns the order book, oldest first.
func (e *Engine) Orders() []model.Order {
	e.mu.Lock()
	defer e.mu.Unlock()
	out := make([]model.Order, 0, len(e.orderIDs))
	for _, id := range e.orderIDs {
		out = append(out, *e.orders[id])
	}
	return out
}

// Trades returns the trade book, oldest first.
func (e *Engine) Trades() []model.Trade {
	e.mu.Lock()
	defer e.mu.Unlock()
	out := make([]model.Trade, len(e.trades))
	copy(out, e.trades)
	return out
}

// Positions returns every position row, closed ones included.
func (e *Engine) Positions() []model.Position {
	e.mu.Lock()
	defer e.mu.Unlock()
	out := make([]model.Position, 0, len(e.positions))
	for _, p := range e.positions {
		out = append(out, *p)
	}
	return out
}

// Holdings presents open delivery (CNC) positions as demat holdings.
func (e *Engine) Holdings() []model.Holding {
	e.mu.Lock()
	defer e.mu.Unlock()
	var out []model.Holding
	for _, p := range e.positions {
		if p.Product != model.ProductCNC || p.Qty <= 0 {
			continue
		}
		out = append(out, model.Holding{
			Symbol:   p.Symbol,
			Exchange: p.Exchange,
			Qty:      p.Qty,
			AvgPrice: p.AvgPrice,
			LTP:      p.LTP,
			PnL:      p.UnrealizedPnL,
			Product:  p.Product,
		})
	}
	return out
}

// Funds returns the simulated cash snapshot. Realized pnl flows into
// available cash as positions close.
func (e *Engine) Funds() model.Funds {
	e.mu.Lock()
	defer e.mu.Unlock()
	return model.Funds{
		AvailableCash:  e.cash,
		TotalMargin:    e.cash,
		OpeningBalance: e.startingCash,
	}
}

// Reset wipes every book and restores starting cash. Idempotent.
func (e *Engine) Reset() {
	e.mu.Lock()
	defer e.mu.Unlock()

	e.cash = e.startingCash
	e.orders = make(map[string]*model.Order)
	e.orderIDs = nil
	e.trades = nil
	e.positions = make(map[string]*model.Position)

	if e.persist != nil {
		if err := e.persist.ClearSandbox(); err != nil {
			slog.Warn("sandbox reset persistence failed", slog.Any("err", err))
		}
	}
	e.persistFunds()
}

func (e *Engine) persistOrder(o *model.Order) {
	if e.persist == nil {
		return
	}
	if err := e.persist.SaveSandboxOrder(*o); err != nil {
		slog.Warn("sandbox order persistence failed", slog.String("order_id", o.OrderID), slog.Any("err", err))
	}
}

func (e *Engine) persistTrade(t model.Trade) {
	if e.persist == nil {
		return
	}
	if err := e.persist.SaveSandboxTrade(t); err != nil {
		slog.Warn("sandbox trade persistence failed", slog.String("trade_id", t.TradeID), slog.Any("err", err))
	}
}

func (e *Engine) persistPosition(p *model.Position) {
	if e.persist == nil {
		return
	}
	if err := e.persist.SaveSandboxPosition(*p); err != nil {
		slog.Warn("sandbox position persistence failed", slog.String("key", p.Key()), slog.Any("err", err))
	}
}

func (e *Engine) persistFunds() {
	if e.persist == nil {
		return
	}
	if err := e.persist.SaveSandboxFunds(e.cash, 0, e.startingCash); err != nil {
		slog.Warn("sandbox funds persistence failed", slog.Any("err", err))
	}
}

func sameSign(a, b int64) bool { return (a > 0) == (b > 0) }

func abs64(v int64) int64 {
	if v < 0 {
		return -v
	}
	return v
}

func min64(a, b int64) int64 {
	if a < b {
		return a
	}
	return b
}

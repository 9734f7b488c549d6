package sandbox

import (
	"math"
	"testing"

	"tradegate/internal/broker"
	"tradegate/internal/model"
)

func market(symbol string, side model.Side, qty int64, price float64) broker.OrderRequest {
	return broker.OrderRequest{
		Symbol:    symbol,
		Exchange:  "NSE",
		Side:      side,
		Qty:       qty,
		Price:     price,
		OrderType: model.OrderTypeMarket,
		Product:   model.ProductMIS,
	}
}

func onlyPosition(t *testing.T, e *Engine) model.Position {
	t.Helper()
	ps := e.Positions()
	if len(ps) != 1 {
		t.Fatalf("expected exactly 1 position, got %d", len(ps))
	}
	return ps[0]
}

func TestMarketOrder_FillsImmediately(t *testing.T) {
	e := New(0, nil)

	o, err := e.PlaceOrder(market("RELIANCE-EQ", model.SideBuy, 50, 2500))
	if err != nil {
		t.Fatalf("place: %v", err)
	}
	if o.Status != model.StatusComplete {
		t.Fatalf("market order must complete, got %q", o.Status)
	}
	if o.FilledQty != 50 || o.PendingQty != 0 || o.AvgPrice != 2500 {
		t.Fatalf("bad fill: %+v", o)
	}

	p := onlyPosition(t, e)
	if p.Qty != 50 || p.AvgPrice != 2500 {
		t.Fatalf("expected qty 50 @ 2500, got %d @ %v", p.Qty, p.AvgPrice)
	}
}

func TestSellFromFlat_OpensShort(t *testing.T) {
	e := New(0, nil)

	if _, err := e.PlaceOrder(market("SBIN-EQ", model.SideSell, 100, 820)); err != nil {
		t.Fatalf("place: %v", err)
	}

	p := onlyPosition(t, e)
	if p.Qty != -100 {
		t.Fatalf("expected quantity -100, got %d", p.Qty)
	}
	if p.AvgPrice != 820 {
		t.Fatalf("expected average price 820, got %v", p.AvgPrice)
	}
}

func TestWeightedAverage_OrderIndependent(t *testing.T) {
	fills := []struct {
		qty   int64
		price float64
	}{
		{10, 100}, {30, 110}, {60, 95},
	}
	perms := [][]int{{0, 1, 2}, {2, 1, 0}, {1, 2, 0}}

	var totalQty int64
	var totalValue float64
	for _, f := range fills {
		totalQty += f.qty
		totalValue += float64(f.qty) * f.price
	}
	want := totalValue / float64(totalQty)

	for _, perm := range perms {
		e := New(0, nil)
		for _, i := range perm {
			if _, err := e.PlaceOrder(market("INFY-EQ", model.SideBuy, fills[i].qty, fills[i].price)); err != nil {
				t.Fatalf("place: %v", err)
			}
		}
		p := onlyPosition(t, e)
		if math.Abs(p.AvgPrice-want) > 1e-9 {
			t.Fatalf("perm %v: expected avg %v, got %v", perm, want, p.AvgPrice)
		}
		if p.Qty != totalQty {
			t.Fatalf("perm %v: expected qty %d, got %d", perm, totalQty, p.Qty)
		}
	}
}

func TestReduceToZero_RealizesPnl(t *testing.T) {
	e := New(0, nil)
	start := e.Funds().AvailableCash

	if _, err := e.PlaceOrder(market("RELIANCE-EQ", model.SideBuy, 50, 2500)); err != nil {
		t.Fatalf("buy: %v", err)
	}
	if _, err := e.PlaceOrder(market("RELIANCE-EQ", model.SideSell, 50, 2600)); err != nil {
		t.Fatalf("sell: %v", err)
	}

	p := onlyPosition(t, e)
	if p.Qty != 0 {
		t.Fatalf("expected flat position, got %d", p.Qty)
	}
	if p.AvgPrice != 2500 {
		t.Fatalf("average price must not change on reduce, got %v", p.AvgPrice)
	}
	if p.RealizedPnL != 5000 {
		t.Fatalf("expected realized pnl 5000, got %v", p.RealizedPnL)
	}
	if got := e.Funds().AvailableCash - start; got != 5000 {
		t.Fatalf("realized gain must reach funds: expected +5000, got %+v", got)
	}
}

func TestShortCover_RealizesPnl(t *testing.T) {
	e := New(0, nil)

	e.PlaceOrder(market("SBIN-EQ", model.SideSell, 100, 820))
	e.PlaceOrder(market("SBIN-EQ", model.SideBuy, 100, 800))

	p := onlyPosition(t, e)
	if p.Qty != 0 || p.RealizedPnL != 2000 {
		t.Fatalf("short cover: expected flat with realized 2000, got qty=%d realized=%v", p.Qty, p.RealizedPnL)
	}
}

func TestLimitOrder_PendingUntilTick(t *testing.T) {
	e := New(0, nil)

	o, err := e.PlaceOrder(broker.OrderRequest{
		Symbol: "TCS-EQ", Exchange: "NSE", Side: model.SideBuy,
		Qty: 10, Price: 3500, OrderType: model.OrderTypeLimit, Product: model.ProductCNC,
	})
	if err != nil {
		t.Fatalf("place: %v", err)
	}
	if o.Status != model.StatusPending || o.FilledQty != 0 {
		t.Fatalf("limit order must start pending: %+v", o)
	}

	// Tick above the limit: no fill.
	e.UpdateLTP("NSE", "TCS-EQ", 3600)
	if e.Orders()[0].Status != model.StatusPending {
		t.Fatal("tick above buy limit must not fill")
	}

	// Tick at/below the limit fills at the limit price.
	e.UpdateLTP("NSE", "TCS-EQ", 3490)
	got := e.Orders()[0]
	if got.Status != model.StatusComplete || got.AvgPrice != 3500 {
		t.Fatalf("expected fill at limit 3500, got %+v", got)
	}
}

func TestCancel_PendingOnly(t *testing.T) {
	e := New(0, nil)

	pending, _ := e.PlaceOrder(broker.OrderRequest{
		Symbol: "TCS-EQ", Exchange: "NSE", Side: model.SideSell,
		Qty: 5, Price: 4000, OrderType: model.OrderTypeLimit, Product: model.ProductMIS,
	})
	filled, _ := e.PlaceOrder(market("TCS-EQ", model.SideBuy, 5, 3900))

	if !e.CancelOrder(pending.OrderID) {
		t.Fatal("pending order must cancel")
	}
	if e.CancelOrder(pending.OrderID) {
		t.Fatal("second cancel must report false")
	}
	if e.CancelOrder(filled.OrderID) {
		t.Fatal("completed order must not cancel")
	}
	if e.CancelOrder("no-such-order") {
		t.Fatal("unknown order must not cancel")
	}
}

func TestUpdateLTP_RecomputesPnl(t *testing.T) {
	e := New(0, nil)
	e.PlaceOrder(market("RELIANCE-EQ", model.SideBuy, 10, 2500))

	e.UpdateLTP("NSE", "RELIANCE-EQ", 2550)
	p := onlyPosition(t, e)
	if p.LTP != 2550 {
		t.Fatalf("ltp not applied: %v", p.LTP)
	}
	if p.UnrealizedPnL != 500 || p.PnL != 500 {
		t.Fatalf("expected pnl 500, got unrealized=%v pnl=%v", p.UnrealizedPnL, p.PnL)
	}
}

func TestHoldings_DeliveryPositionsOnly(t *testing.T) {
	e := New(0, nil)
	e.PlaceOrder(broker.OrderRequest{
		Symbol: "ITC-EQ", Exchange: "NSE", Side: model.SideBuy,
		Qty: 20, Price: 450, OrderType: model.OrderTypeMarket, Product: model.ProductCNC,
	})
	e.PlaceOrder(market("SBIN-EQ", model.SideBuy, 10, 820))

	h := e.Holdings()
	if len(h) != 1 || h[0].Symbol != "ITC-EQ" || h[0].Qty != 20 {
		t.Fatalf("expected single CNC holding, got %+v", h)
	}
}

func TestReset_Idempotent(t *testing.T) {
	e := New(500000, nil)
	e.PlaceOrder(market("SBIN-EQ", model.SideBuy, 10, 820))
	e.PlaceOrder(market("SBIN-EQ", model.SideSell, 10, 830))

	for i := 0; i < 2; i++ {
		e.Reset()
		if f := e.Funds(); f.AvailableCash != 500000 {
			t.Fatalf("reset %d: expected starting cash 500000, got %v", i, f.AvailableCash)
		}
		if len(e.Positions()) != 0 || len(e.Orders()) != 0 || len(e.Trades()) != 0 {
			t.Fatalf("reset %d: books must be empty", i)
		}
	}
}

func TestPlaceOrder_Validation(t *testing.T) {
	e := New(0, nil)

	if _, err := e.PlaceOrder(market("X", model.SideBuy, 0, 100)); err == nil {
		t.Fatal("zero quantity must be rejected")
	}
	if _, err := e.PlaceOrder(broker.OrderRequest{Symbol: "X", Exchange: "NSE", Side: "HOLD", Qty: 1, OrderType: model.OrderTypeMarket}); err == nil {
		t.Fatal("bad side must be rejected")
	}
}

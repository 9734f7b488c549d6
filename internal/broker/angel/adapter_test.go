package angel

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"tradegate/internal/apierr"
	"tradegate/internal/broker"
	"tradegate/internal/model"
)

func testAdapter(t *testing.T, handler http.HandlerFunc) *Adapter {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)

	a := New(srv.Client(), broker.Credentials{APIKey: "key"})
	a.rest.rootURL = srv.URL
	a.rest.masterURL = srv.URL + "/master"
	a.SetSession(&broker.AuthSession{AuthToken: "jwt"})
	return a
}

func ok(data string) string {
	return `{"status":true,"message":"SUCCESS","data":` + data + `}`
}

func TestPlaceOrder_WireShape(t *testing.T) {
	var got map[string]any
	a := testAdapter(t, func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != routes["order.place"] {
			t.Fatalf("unexpected path %s", r.URL.Path)
		}
		if r.Header.Get("X-PrivateKey") != "key" || r.Header.Get("Authorization") != "Bearer jwt" {
			t.Fatalf("missing identity headers: %v", r.Header)
		}
		json.NewDecoder(r.Body).Decode(&got)
		w.Write([]byte(ok(`{"orderid":"230828000000001"}`)))
	})

	id, err := a.PlaceOrder(context.Background(), broker.OrderRequest{
		Symbol: "SBIN-EQ", Exchange: "NSE", Token: "3045",
		Side: model.SideBuy, Qty: 10, Price: 820,
		OrderType: model.OrderTypeSL, TriggerPrice: 815, Product: model.ProductNRML,
	})
	if err != nil {
		t.Fatalf("place: %v", err)
	}
	if id != "230828000000001" {
		t.Fatalf("bad order id %q", id)
	}
	if got["variety"] != "STOPLOSS" || got["ordertype"] != "STOPLOSS_LIMIT" {
		t.Fatalf("SL must map to STOPLOSS variety/type: %+v", got)
	}
	if got["producttype"] != "CARRYFORWARD" {
		t.Fatalf("NRML must map to CARRYFORWARD: %+v", got)
	}
}

func TestPlaceOrder_RequiresToken(t *testing.T) {
	a := testAdapter(t, func(w http.ResponseWriter, r *http.Request) {
		t.Fatal("no request must be made without a token")
	})
	_, err := a.PlaceOrder(context.Background(), broker.OrderRequest{
		Symbol: "SBIN-EQ", Exchange: "NSE", Side: model.SideBuy, Qty: 1,
		OrderType: model.OrderTypeMarket,
	})
	if apierr.KindOf(err) != apierr.KindValidation {
		t.Fatalf("expected validation error, got %v", err)
	}
}

func TestEnvelope_BrokerMessageVerbatim(t *testing.T) {
	a := testAdapter(t, func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"status":false,"message":"Order price is out of circuit limits","errorcode":"AB1004"}`))
	})

	_, err := a.OrderBook(context.Background())
	var ae *apierr.Error
	if !errors.As(err, &ae) || ae.Kind != apierr.KindBroker {
		t.Fatalf("expected broker error, got %v", err)
	}
	if ae.Message != "Order price is out of circuit limits" {
		t.Fatalf("message must pass through verbatim: %q", ae.Message)
	}
}

func TestEnvelope_TokenExpiredIsAuth(t *testing.T) {
	a := testAdapter(t, func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"status":false,"message":"Token Expired","errorcode":"AG8002"}`))
	})

	_, err := a.Positions(context.Background())
	if apierr.KindOf(err) != apierr.KindAuth {
		t.Fatalf("AG8002 must classify as auth, got %v", err)
	}
}

func TestOrderBook_Normalization(t *testing.T) {
	a := testAdapter(t, func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(ok(`[{
			"orderid":"1","tradingsymbol":"NIFTY24DECFUT","exchange":"NFO",
			"transactiontype":"SELL","quantity":"50","filledshares":"0",
			"unfilledshares":"50","price":"24100.5","ordertype":"LIMIT",
			"producttype":"CARRYFORWARD","status":"rejected",
			"text":"Insufficient margin","duration":"DAY",
			"updatetime":"28-Aug-2026 10:15:00"
		}]`)))
	})

	orders, err := a.OrderBook(context.Background())
	if err != nil {
		t.Fatalf("order book: %v", err)
	}
	if len(orders) != 1 {
		t.Fatalf("expected 1 order, got %d", len(orders))
	}
	o := orders[0]
	if o.Side != model.SideSell || o.Qty != 50 || o.Price != 24100.5 {
		t.Fatalf("bad normalization: %+v", o)
	}
	if o.Product != model.ProductNRML {
		t.Fatalf("CARRYFORWARD on NFO must normalize to NRML, got %s", o.Product)
	}
	if o.RejectionReason != "Insufficient margin" {
		t.Fatalf("rejection reason must carry through: %q", o.RejectionReason)
	}
	if o.OrderTS.IsZero() {
		t.Fatal("updatetime must parse")
	}
}

func TestQuotes_AliasPreserved(t *testing.T) {
	a := testAdapter(t, func(w http.ResponseWriter, r *http.Request) {
		var body struct {
			ExchangeTokens map[string][]string `json:"exchangeTokens"`
		}
		json.NewDecoder(r.Body).Decode(&body)
		if len(body.ExchangeTokens["NSE"]) != 1 {
			t.Fatalf("alias must resolve to the real exchange on the wire: %+v", body.ExchangeTokens)
		}
		w.Write([]byte(ok(`{"fetched":[{
			"tradingSymbol":"NIFTY","exchange":"NSE","symbolToken":"99926000",
			"ltp":"24500.25","open":"24400","high":"24550","low":"24380","close":"24420"
		}]}`)))
	})

	quotes, err := a.Quotes(context.Background(), []broker.QuoteRequest{
		{Symbol: "NIFTY", Exchange: "NSE_INDEX", Token: "99926000"},
	})
	if err != nil {
		t.Fatalf("quotes: %v", err)
	}
	if len(quotes) != 1 || quotes[0].Exchange != "NSE_INDEX" {
		t.Fatalf("caller's index alias must be preserved: %+v", quotes)
	}
	if quotes[0].LTP != 24500.25 {
		t.Fatalf("string LTP must decode: %v", quotes[0].LTP)
	}
}

func TestDownloadMaster_StrikeAndOptionType(t *testing.T) {
	a := testAdapter(t, func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`[
			{"token":"2885","symbol":"RELIANCE-EQ","name":"RELIANCE","exch_seg":"NSE",
			 "instrumenttype":"","lotsize":"1","tick_size":"5","strike":"0"},
			{"token":"53001","symbol":"NIFTY28AUG2624500CE","name":"NIFTY","exch_seg":"NFO",
			 "instrumenttype":"OPTIDX","lotsize":"25","tick_size":"5","strike":"2450000","expiry":"28AUG2026"}
		]`))
	})

	rows, err := a.DownloadMaster(context.Background())
	if err != nil {
		t.Fatalf("master: %v", err)
	}
	if len(rows) != 2 {
		t.Fatalf("expected 2 rows, got %d", len(rows))
	}
	eq, opt := rows[0], rows[1]
	if eq.OptionType != "" {
		t.Fatalf("equity ending in CE must not be tagged an option: %+v", eq)
	}
	if eq.TickSize != 0.05 {
		t.Fatalf("tick size must convert from paise: %v", eq.TickSize)
	}
	if opt.OptionType != "CE" || opt.Strike != 24500 {
		t.Fatalf("option row must carry CE and rupee strike: %+v", opt)
	}
}

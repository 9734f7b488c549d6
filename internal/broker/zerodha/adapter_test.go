package zerodha

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
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
	a.rest.instrumentsURL = srv.URL + "/instruments"
	a.SetSession(&broker.AuthSession{AuthToken: "access"})
	return a
}

func ok(data string) string {
	return `{"status":"success","data":` + data + `}`
}

func TestAuthenticate_ChecksumAndToken(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/session/token" {
			t.Fatalf("unexpected path %s", r.URL.Path)
		}
		if ct := r.Header.Get("Content-Type"); ct != "application/x-www-form-urlencoded" {
			t.Fatalf("session exchange must be form-encoded, got %q", ct)
		}
		r.ParseForm()
		sum := sha256.Sum256([]byte("key" + "reqtok" + "secret"))
		if r.PostForm.Get("checksum") != hex.EncodeToString(sum[:]) {
			t.Fatalf("bad checksum %q", r.PostForm.Get("checksum"))
		}
		w.Write([]byte(ok(`{"access_token":"acc","public_token":"pub","user_id":"AB1234","user_name":"Trader"}`)))
	}))
	defer srv.Close()

	a := New(srv.Client(), broker.Credentials{APIKey: "key"})
	a.rest.rootURL = srv.URL

	auth, err := a.Authenticate(context.Background(), broker.Credentials{
		APIKey: "key", APISecret: "secret", RequestToken: "reqtok",
	})
	if err != nil {
		t.Fatalf("authenticate: %v", err)
	}
	if auth.AuthToken != "acc" || auth.FeedToken != "pub" || auth.UserID != "AB1234" {
		t.Fatalf("bad session: %+v", auth)
	}
}

func TestAuthenticate_RequiresRequestToken(t *testing.T) {
	a := New(http.DefaultClient, broker.Credentials{APIKey: "key"})
	_, err := a.Authenticate(context.Background(), broker.Credentials{APIKey: "key", APISecret: "secret"})
	if apierr.KindOf(err) != apierr.KindValidation {
		t.Fatalf("expected validation error, got %v", err)
	}
}

func TestPlaceOrder_WireShape(t *testing.T) {
	a := testAdapter(t, func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/orders/regular" || r.Method != http.MethodPost {
			t.Fatalf("unexpected call %s %s", r.Method, r.URL.Path)
		}
		if got := r.Header.Get("Authorization"); got != "token key:access" {
			t.Fatalf("bad auth header %q", got)
		}
		if got := r.Header.Get("X-Kite-Version"); got != "3" {
			t.Fatalf("missing kite version header, got %q", got)
		}
		r.ParseForm()
		f := r.PostForm
		if f.Get("tradingsymbol") != "SBIN" || f.Get("exchange") != "NSE" {
			t.Fatalf("bad instrument fields: %v", f)
		}
		if f.Get("order_type") != "SL" || f.Get("trigger_price") != "815.00" {
			t.Fatalf("SL fields must pass through natively: %v", f)
		}
		if f.Get("product") != "NRML" || f.Get("validity") != "DAY" {
			t.Fatalf("bad product/validity: %v", f)
		}
		w.Write([]byte(ok(`{"order_id":"151220000000000"}`)))
	})

	id, err := a.PlaceOrder(context.Background(), broker.OrderRequest{
		Symbol: "SBIN", Exchange: "NSE_INDEX",
		Side: model.SideBuy, Qty: 10, Price: 820, TriggerPrice: 815,
		OrderType: model.OrderTypeSL, Product: model.ProductNRML,
	})
	if err != nil {
		t.Fatalf("place: %v", err)
	}
	if id != "151220000000000" {
		t.Fatalf("bad order id %q", id)
	}
}

func TestEnvelope_BrokerMessageVerbatim(t *testing.T) {
	a := testAdapter(t, func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"status":"error","message":"Insufficient funds. Required margin is 5000","error_type":"InputException"}`))
	})

	_, err := a.OrderBook(context.Background())
	var ae *apierr.Error
	if !errors.As(err, &ae) || ae.Kind != apierr.KindBroker {
		t.Fatalf("expected broker error, got %v", err)
	}
	if ae.Message != "Insufficient funds. Required margin is 5000" {
		t.Fatalf("message must pass through verbatim: %q", ae.Message)
	}
}

func TestEnvelope_TokenExceptionIsAuth(t *testing.T) {
	a := testAdapter(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusForbidden)
		w.Write([]byte(`{"status":"error","message":"Incorrect api_key or access_token.","error_type":"TokenException"}`))
	})

	_, err := a.Positions(context.Background())
	if apierr.KindOf(err) != apierr.KindAuth {
		t.Fatalf("TokenException must classify as auth, got %v", err)
	}
}

func TestOrderBook_Normalization(t *testing.T) {
	a := testAdapter(t, func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(ok(`[{
			"order_id":"1","tradingsymbol":"NIFTY24DECFUT","exchange":"NFO",
			"transaction_type":"SELL","quantity":50,"filled_quantity":0,
			"pending_quantity":50,"price":24100.5,"order_type":"SL-M",
			"trigger_price":24090,"product":"NRML","status":"REJECTED",
			"status_message":"Insufficient margin","validity":"DAY",
			"order_timestamp":"2026-08-28 10:15:00"
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
	if o.Side != model.SideSell || o.Qty != 50 || o.OrderType != model.OrderTypeSLM {
		t.Fatalf("bad normalization: %+v", o)
	}
	if o.RejectionReason != "Insufficient margin" {
		t.Fatalf("status_message must carry through: %q", o.RejectionReason)
	}
	if o.OrderTS.IsZero() {
		t.Fatal("order_timestamp must parse")
	}
}

func TestModifyAndCancel_Routes(t *testing.T) {
	var gotMethod, gotPath string
	a := testAdapter(t, func(w http.ResponseWriter, r *http.Request) {
		gotMethod, gotPath = r.Method, r.URL.Path
		w.Write([]byte(ok(`{"order_id":"1"}`)))
	})

	if err := a.ModifyOrder(context.Background(), broker.ModifyRequest{
		OrderID: "1", OrderType: model.OrderTypeLimit, Qty: 25, Price: 101.5,
	}); err != nil {
		t.Fatalf("modify: %v", err)
	}
	if gotMethod != http.MethodPut || gotPath != "/orders/regular/1" {
		t.Fatalf("modify must PUT the order resource, got %s %s", gotMethod, gotPath)
	}

	if err := a.CancelOrder(context.Background(), "1"); err != nil {
		t.Fatalf("cancel: %v", err)
	}
	if gotMethod != http.MethodDelete || gotPath != "/orders/regular/1" {
		t.Fatalf("cancel must DELETE the order resource, got %s %s", gotMethod, gotPath)
	}
}

func TestQuotes_AliasPreserved(t *testing.T) {
	a := testAdapter(t, func(w http.ResponseWriter, r *http.Request) {
		if got := r.URL.Query()["i"]; len(got) != 1 || got[0] != "NSE:NIFTY 50" {
			t.Fatalf("alias must resolve to the real exchange on the wire: %v", got)
		}
		w.Write([]byte(ok(`{"NSE:NIFTY 50":{
			"last_price":24500.25,"volume":0,"net_change":80.25,
			"ohlc":{"open":24400,"high":24550,"low":24380,"close":24420}
		}}`)))
	})

	quotes, err := a.Quotes(context.Background(), []broker.QuoteRequest{
		{Symbol: "NIFTY 50", Exchange: "NSE_INDEX"},
	})
	if err != nil {
		t.Fatalf("quotes: %v", err)
	}
	if len(quotes) != 1 || quotes[0].Exchange != "NSE_INDEX" {
		t.Fatalf("caller's index alias must be preserved: %+v", quotes)
	}
	if quotes[0].LTP != 24500.25 || quotes[0].OHLC.Close != 24420 {
		t.Fatalf("bad quote decode: %+v", quotes[0])
	}
}

func TestDownloadMaster_CompositeToken(t *testing.T) {
	a := testAdapter(t, func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/instruments" {
			t.Fatalf("unexpected path %s", r.URL.Path)
		}
		w.Write([]byte("instrument_token,exchange_token,tradingsymbol,name,last_price,expiry,strike,lot_size,tick_size,instrument_type,segment,exchange\n" +
			"738561,2885,RELIANCE,RELIANCE,0,,0,1,0.05,EQ,NSE,NSE\n" +
			"13568258,53001,NIFTY26AUG24500CE,NIFTY,0,2026-08-28,24500,25,0.05,CE,NFO-OPT,NFO\n"))
	})

	rows, err := a.DownloadMaster(context.Background())
	if err != nil {
		t.Fatalf("master: %v", err)
	}
	if len(rows) != 2 {
		t.Fatalf("expected 2 rows, got %d", len(rows))
	}
	eq, opt := rows[0], rows[1]
	if eq.Token != "738561::::2885" {
		t.Fatalf("token must combine instrument and exchange tokens: %q", eq.Token)
	}
	if eq.TickSize != 0.05 || eq.OptionType != "" {
		t.Fatalf("bad equity row: %+v", eq)
	}
	if opt.OptionType != "CE" || opt.Strike != 24500 {
		t.Fatalf("bad option row: %+v", opt)
	}
	if StreamToken(opt.Token) != "13568258" {
		t.Fatalf("stream token must strip the exchange half: %q", StreamToken(opt.Token))
	}
}

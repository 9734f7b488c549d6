package fyers

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
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

	a := New(srv.Client(), broker.Credentials{APIKey: "APP-100"})
	a.rootURL = srv.URL
	a.SetSession(&broker.AuthSession{AuthToken: "tok"})
	return a
}

func TestAuthenticate_AppIDHash(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/validate-authcode" {
			t.Fatalf("unexpected path %s", r.URL.Path)
		}
		var body map[string]string
		json.NewDecoder(r.Body).Decode(&body)
		sum := sha256.Sum256([]byte("APP-100:secret"))
		if body["appIdHash"] != hex.EncodeToString(sum[:]) {
			t.Fatalf("bad appIdHash %q", body["appIdHash"])
		}
		if body["grant_type"] != "authorization_code" || body["code"] != "authcode" {
			t.Fatalf("bad exchange body: %v", body)
		}
		w.Write([]byte(`{"s":"ok","access_token":"acc"}`))
	}))
	defer srv.Close()

	a := New(srv.Client(), broker.Credentials{APIKey: "APP-100"})
	a.rootURL = srv.URL

	auth, err := a.Authenticate(context.Background(), broker.Credentials{
		APIKey: "APP-100", APISecret: "secret", AuthCode: "authcode", ClientID: "FY123",
	})
	if err != nil {
		t.Fatalf("authenticate: %v", err)
	}
	if auth.AuthToken != "acc" || auth.UserID != "FY123" {
		t.Fatalf("bad session: %+v", auth)
	}
}

func TestAuthenticate_RequiresAuthCode(t *testing.T) {
	a := New(http.DefaultClient, broker.Credentials{APIKey: "APP-100"})
	_, err := a.Authenticate(context.Background(), broker.Credentials{APIKey: "APP-100", APISecret: "secret"})
	if apierr.KindOf(err) != apierr.KindValidation {
		t.Fatalf("expected validation error, got %v", err)
	}
}

func TestPlaceOrder_IntegerCodes(t *testing.T) {
	var got map[string]any
	a := testAdapter(t, func(w http.ResponseWriter, r *http.Request) {
		if auth := r.Header.Get("Authorization"); auth != "APP-100:tok" {
			t.Fatalf("bad auth header %q", auth)
		}
		json.NewDecoder(r.Body).Decode(&got)
		w.Write([]byte(`{"s":"ok","id":"23082800001"}`))
	})

	id, err := a.PlaceOrder(context.Background(), broker.OrderRequest{
		Symbol: "SBIN-EQ", Exchange: "NSE_INDEX",
		Side: model.SideSell, Qty: 10, Price: 820, TriggerPrice: 825,
		OrderType: model.OrderTypeSL, Product: model.ProductNRML,
	})
	if err != nil {
		t.Fatalf("place: %v", err)
	}
	if id != "23082800001" {
		t.Fatalf("bad order id %q", id)
	}
	if got["symbol"] != "NSE:SBIN-EQ" {
		t.Fatalf("instrument must encode as EXCHANGE:SYMBOL with the real exchange: %v", got["symbol"])
	}
	if got["side"] != float64(-1) || got["type"] != float64(4) {
		t.Fatalf("SELL SL must encode as side -1, type 4: %v", got)
	}
	if got["productType"] != "MARGIN" {
		t.Fatalf("NRML must map to MARGIN: %v", got["productType"])
	}
}

func TestEnvelope_BrokerMessageVerbatim(t *testing.T) {
	a := testAdapter(t, func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"s":"error","code":-392,"message":"Price should be in multiples of tick size"}`))
	})

	_, err := a.PlaceOrder(context.Background(), broker.OrderRequest{
		Symbol: "SBIN-EQ", Exchange: "NSE", Side: model.SideBuy, Qty: 1,
		OrderType: model.OrderTypeLimit, Price: 820.03,
	})
	if apierr.KindOf(err) != apierr.KindBroker {
		t.Fatalf("expected broker error, got %v", err)
	}
	var ae *apierr.Error
	if !errors.As(err, &ae) || ae.Message != "Price should be in multiples of tick size" {
		t.Fatalf("message must pass through verbatim: %v", err)
	}
}

func TestEnvelope_UnauthorizedIsAuth(t *testing.T) {
	a := testAdapter(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusUnauthorized)
		w.Write([]byte(`{"s":"error","code":-16,"message":"Could not authenticate the user"}`))
	})

	err := a.CancelOrder(context.Background(), "1")
	if apierr.KindOf(err) != apierr.KindAuth {
		t.Fatalf("401 must classify as auth, got %v", err)
	}
}

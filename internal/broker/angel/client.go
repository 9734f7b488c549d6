// Package angel implements the broker adapter for Angel One SmartAPI.
//
// REST dialect: JSON bodies, a fixed route table, identity headers
// (X-PrivateKey and client IP/MAC fields) on every call, and a Bearer JWT
// once authenticated. Every response arrives in a {status, message, data}
// envelope; status=false surfaces as a Broker error with the message intact.
package angel

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"

	"tradegate/internal/apierr"
)

const defaultRootURL = "https://apiconnect.angelone.in"

var routes = map[string]string{
	"login":        "/rest/auth/angelbroking/user/v1/loginByPassword",
	"logout":       "/rest/secure/angelbroking/user/v1/logout",
	"profile":      "/rest/secure/angelbroking/user/v1/getProfile",
	"order.place":  "/rest/secure/angelbroking/order/v1/placeOrder",
	"order.modify": "/rest/secure/angelbroking/order/v1/modifyOrder",
	"order.cancel": "/rest/secure/angelbroking/order/v1/cancelOrder",
	"order.book":   "/rest/secure/angelbroking/order/v1/getOrderBook",
	"trade.book":   "/rest/secure/angelbroking/order/v1/getTradeBook",
	"position":     "/rest/secure/angelbroking/order/v1/getPosition",
	"holding":      "/rest/secure/angelbroking/portfolio/v1/getAllHolding",
	"rms":          "/rest/secure/angelbroking/user/v1/getRMS",
	"quote":        "/rest/secure/angelbroking/market/v1/quote/",
}

// masterContractURL serves the full instrument catalog as one JSON document.
const masterContractURL = "https://margincalculator.angelbroking.com/OpenAPI_File/files/OpenAPIScripMaster.json"

// envelope is Angel's common response wrapper.
type envelope struct {
	Status    bool            `json:"status"`
	Message   string          `json:"message"`
	ErrorCode string          `json:"errorcode"`
	Data      json.RawMessage `json:"data"`
}

// restClient issues SmartAPI requests with the header set the broker
// requires on every call.
type restClient struct {
	http      *http.Client
	rootURL   string
	masterURL string

	apiKey    string
	authToken string // JWT, set after login

	localIP  string
	publicIP string
	mac      string
}

func newRESTClient(httpClient *http.Client, apiKey string) *restClient {
	return &restClient{
		http:      httpClient,
		rootURL:   defaultRootURL,
		masterURL: masterContractURL,
		apiKey:    apiKey,
		// Angel requires these headers to be present but does not verify
		// them against the connection.
		localIP:  "127.0.0.1",
		publicIP: "106.193.147.98",
		mac:      "00:11:22:33:44:55",
	}
}

func (c *restClient) headers() http.Header {
	h := http.Header{}
	h.Set("Content-Type", "application/json")
	h.Set("Accept", "application/json")
	h.Set("X-UserType", "USER")
	h.Set("X-SourceID", "WEB")
	h.Set("X-ClientLocalIP", c.localIP)
	h.Set("X-ClientPublicIP", c.publicIP)
	h.Set("X-MACAddress", c.mac)
	h.Set("X-PrivateKey", c.apiKey)
	if c.authToken != "" {
		h.Set("Authorization", "Bearer "+c.authToken)
	}
	return h
}

// request posts (or gets) one route and decodes the envelope. A non-success
// envelope is returned as a Broker error carrying Angel's message verbatim.
func (c *restClient) request(ctx context.Context, method, route string, body any) (json.RawMessage, error) {
	path, ok := routes[route]
	if !ok {
		return nil, apierr.Internal(nil, "unknown angel route %q", route)
	}

	var rd io.Reader
	if body != nil {
		b, err := json.Marshal(body)
		if err != nil {
			return nil, apierr.Internal(err, "encoding %s request", route)
		}
		rd = bytes.NewReader(b)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.rootURL+path, rd)
	if err != nil {
		return nil, apierr.Internal(err, "building %s request", route)
	}
	req.Header = c.headers()

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, apierr.Internal(err, "angel %s call failed", route)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, apierr.Internal(err, "reading %s response", route)
	}

	var env envelope
	if err := json.Unmarshal(raw, &env); err != nil {
		return nil, apierr.Internal(err, "malformed angel response for %s", route)
	}
	if !env.Status {
		msg := env.Message
		if msg == "" {
			msg = fmt.Sprintf("angel request failed (errorcode=%s, http=%d)", env.ErrorCode, resp.StatusCode)
		}
		if isAuthFailure(env.ErrorCode, resp.StatusCode) {
			return nil, apierr.Auth("%s", msg)
		}
		return nil, apierr.Broker(msg)
	}
	return env.Data, nil
}

// isAuthFailure classifies Angel error codes that mean the session or
// credentials are bad rather than the request.
func isAuthFailure(errorCode string, httpStatus int) bool {
	if httpStatus == http.StatusUnauthorized || httpStatus == http.StatusForbidden {
		return true
	}
	// AG8001 invalid token, AG8002 token expired, AB1007 invalid totp,
	// AB1010 login blocked
	code := strings.ToUpper(errorCode)
	return code == "AG8001" || code == "AG8002" || code == "AB1007" || code == "AB1010"
}

func (c *restClient) post(ctx context.Context, route string, body any) (json.RawMessage, error) {
	return c.request(ctx, http.MethodPost, route, body)
}

func (c *restClient) get(ctx context.Context, route string) (json.RawMessage, error) {
	return c.request(ctx, http.MethodGet, route, nil)
}

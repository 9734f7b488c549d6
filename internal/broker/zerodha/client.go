// Package zerodha implements the broker adapter for Zerodha Kite Connect v3.
//
// REST dialect: form-encoded request bodies, an X-Kite-Version header, and
// an "Authorization: token api_key:access_token" credential. Responses use a
// {status, data, message, error_type} envelope; status != "success" surfaces
// as a Broker error with Kite's message intact.
package zerodha

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/url"
	"strings"

	"tradegate/internal/apierr"
)

const defaultRootURL = "https://api.kite.trade"

// instrumentsURL serves the full instrument catalog as CSV, unauthenticated.
const instrumentsURL = "https://api.kite.trade/instruments"

type envelope struct {
	Status    string          `json:"status"`
	Message   string          `json:"message"`
	ErrorType string          `json:"error_type"`
	Data      json.RawMessage `json:"data"`
}

type restClient struct {
	http           *http.Client
	rootURL        string
	instrumentsURL string

	apiKey      string
	accessToken string // set after session exchange
}

func newRESTClient(httpClient *http.Client, apiKey string) *restClient {
	return &restClient{
		http:           httpClient,
		rootURL:        defaultRootURL,
		instrumentsURL: instrumentsURL,
		apiKey:         apiKey,
	}
}

func (c *restClient) setHeaders(req *http.Request, form bool) {
	req.Header.Set("X-Kite-Version", "3")
	if form {
		req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	}
	if c.accessToken != "" {
		req.Header.Set("Authorization", "token "+c.apiKey+":"+c.accessToken)
	}
}

// request performs one Kite call. Write methods send form-encoded bodies;
// reads pass query parameters in the path.
func (c *restClient) request(ctx context.Context, method, path string, form url.Values) (json.RawMessage, error) {
	var body io.Reader
	if form != nil {
		body = strings.NewReader(form.Encode())
	}

	req, err := http.NewRequestWithContext(ctx, method, c.rootURL+path, body)
	if err != nil {
		return nil, apierr.Internal(err, "building kite request %s", path)
	}
	c.setHeaders(req, form != nil)

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, apierr.Internal(err, "kite %s call failed", path)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, apierr.Internal(err, "reading kite response for %s", path)
	}

	var env envelope
	if err := json.Unmarshal(raw, &env); err != nil {
		return nil, apierr.Internal(err, "malformed kite response for %s", path)
	}
	if env.Status != "success" {
		msg := env.Message
		if msg == "" {
			msg = "kite request failed: " + resp.Status
		}
		if env.ErrorType == "TokenException" || env.ErrorType == "UserException" ||
			resp.StatusCode == http.StatusForbidden || resp.StatusCode == http.StatusUnauthorized {
			return nil, apierr.Auth("%s", msg)
		}
		return nil, apierr.Broker(msg)
	}
	return env.Data, nil
}

func (c *restClient) get(ctx context.Context, path string) (json.RawMessage, error) {
	return c.request(ctx, http.MethodGet, path, nil)
}

func (c *restClient) post(ctx context.Context, path string, form url.Values) (json.RawMessage, error) {
	return c.request(ctx, http.MethodPost, path, form)
}

func (c *restClient) put(ctx context.Context, path string, form url.Values) (json.RawMessage, error) {
	return c.request(ctx, http.MethodPut, path, form)
}

func (c *restClient) del(ctx context.Context, path string) (json.RawMessage, error) {
	return c.request(ctx, http.MethodDelete, path, nil)
}

// unmarshal decodes an envelope data payload.
func unmarshal(data json.RawMessage, v any, path string) error {
	if len(data) == 0 || string(data) == "null" {
		return nil
	}
	if err := json.Unmarshal(data, v); err != nil {
		return apierr.Internal(err, "decoding kite %s payload", path)
	}
	return nil
}

// Package registry holds one eagerly constructed adapter per known broker
// id and resolves the active adapter for a session.
package registry

import (
	"net/http"
	"sort"

	"tradegate/internal/broker"
	"tradegate/internal/broker/angel"
	"tradegate/internal/broker/fyers"
	"tradegate/internal/broker/zerodha"
)

// Credentials maps broker id to its configured credentials.
type Credentials map[string]broker.Credentials

// Registry is an immutable map of broker id to adapter. Lookups are O(1);
// the only failure mode is an unknown id, which callers surface as a
// not-found error.
type Registry struct {
	adapters map[string]broker.Adapter
}

// New constructs all known adapters sharing one HTTP client.
func New(creds Credentials) *Registry {
	httpClient := broker.NewHTTPClient()
	return &Registry{adapters: map[string]broker.Adapter{
		broker.IDAngel:   angel.New(httpClient, creds[broker.IDAngel]),
		broker.IDZerodha: zerodha.New(httpClient, creds[broker.IDZerodha]),
		broker.IDFyers:   fyers.New(httpClient, creds[broker.IDFyers]),
	}}
}

// Get returns the adapter for id, or false if the id is unknown.
func (r *Registry) Get(id string) (broker.Adapter, bool) {
	a, ok := r.adapters[id]
	return a, ok
}

// List returns all adapters in stable id order.
func (r *Registry) List() []broker.Adapter {
	ids := make([]string, 0, len(r.adapters))
	for id := range r.adapters {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	out := make([]broker.Adapter, 0, len(ids))
	for _, id := range ids {
		out = append(out, r.adapters[id])
	}
	return out
}

// NewWithClient is like New but with an injected HTTP client, used by tests.
func NewWithClient(httpClient *http.Client, creds Credentials) *Registry {
	return &Registry{adapters: map[string]broker.Adapter{
		broker.IDAngel:   angel.New(httpClient, creds[broker.IDAngel]),
		broker.IDZerodha: zerodha.New(httpClient, creds[broker.IDZerodha]),
		broker.IDFyers:   fyers.New(httpClient, creds[broker.IDFyers]),
	}}
}

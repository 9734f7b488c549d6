// Package symbols caches the master-contract symbol table in memory for
// order routing and search. A refresh replaces the table wholesale
// (clear-then-repopulate); searches during a refresh may transiently see a
// partial table, which is acceptable because refresh is a rare explicit
// operation.
package symbols

import (
	"strings"
	"sync"

	"tradegate/internal/model"
)

// Cache is a concurrent symbol lookup table keyed by exchange+symbol with a
// secondary token index.
type Cache struct {
	mu      sync.RWMutex
	bySym   map[string]model.SymbolData // "EXCHANGE:SYMBOL"
	byToken map[string]model.SymbolData // "EXCHANGE:TOKEN"
}

// New returns an empty cache.
func New() *Cache {
	return &Cache{
		bySym:   make(map[string]model.SymbolData),
		byToken: make(map[string]model.SymbolData),
	}
}

func symKey(exchange, symbol string) string {
	return strings.ToUpper(exchange) + ":" + strings.ToUpper(symbol)
}

// ReplaceAll swaps in a fresh symbol table.
func (c *Cache) ReplaceAll(rows []model.SymbolData) {
	bySym := make(map[string]model.SymbolData, len(rows))
	byToken := make(map[string]model.SymbolData, len(rows))
	for _, r := range rows {
		bySym[symKey(r.Exchange, r.Symbol)] = r
		byToken[strings.ToUpper(r.Exchange)+":"+r.Token] = r
	}

	c.mu.Lock()
	c.bySym = bySym
	c.byToken = byToken
	c.mu.Unlock()
}

// Lookup resolves a canonical (exchange, symbol) pair. Index-exchange
// aliases are not translated here; rows are stored under the exchange the
// broker's master contract reports.
func (c *Cache) Lookup(exchange, symbol string) (model.SymbolData, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	sd, ok := c.bySym[symKey(exchange, symbol)]
	return sd, ok
}

// LookupToken resolves a (exchange, token) pair, used by the streaming
// layer to map wire tokens back to symbols.
func (c *Cache) LookupToken(exchange, token string) (model.SymbolData, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	sd, ok := c.byToken[strings.ToUpper(exchange)+":"+token]
	return sd, ok
}

// Search returns up to limit rows whose symbol or name contains the query,
// case-insensitive. Order is unspecified.
func (c *Cache) Search(query string, limit int) []model.SymbolData {
	q := strings.ToUpper(strings.TrimSpace(query))
	if q == "" || limit <= 0 {
		return nil
	}

	c.mu.RLock()
	defer c.mu.RUnlock()

	out := make([]model.SymbolData, 0, limit)
	for _, sd := range c.bySym {
		if strings.Contains(strings.ToUpper(sd.Symbol), q) ||
			strings.Contains(strings.ToUpper(sd.Name), q) {
			out = append(out, sd)
			if len(out) == limit {
				break
			}
		}
	}
	return out
}

// Len returns the number of cached symbols.
func (c *Cache) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.bySym)
}

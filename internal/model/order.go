// Package model defines the broker-agnostic canonical types every adapter
// normalizes into and out of. Nothing above the adapter layer ever sees a
// broker-specific wire shape.
package model

import "time"

// Side of a transaction.
type Side string

const (
	SideBuy  Side = "BUY"
	SideSell Side = "SELL"
)

// OrderType in canonical form.
type OrderType string

const (
	OrderTypeMarket OrderType = "MARKET"
	OrderTypeLimit  OrderType = "LIMIT"
	OrderTypeSL     OrderType = "SL"
	OrderTypeSLM    OrderType = "SL-M"
)

// Product in canonical form.
type Product string

const (
	ProductCNC  Product = "CNC"  // delivery
	ProductMIS  Product = "MIS"  // intraday
	ProductNRML Product = "NRML" // carryforward
)

// Common canonical order statuses. Brokers report additional statuses;
// those pass through verbatim.
const (
	StatusOpen      = "open"
	StatusPending   = "pending"
	StatusComplete  = "complete"
	StatusCancelled = "cancelled"
	StatusRejected  = "rejected"
)

// Order is the canonical order representation.
// Invariant for live orders: FilledQty + PendingQty <= Qty. Brokers may
// violate this transiently, so consumers must not assume strict equality.
type Order struct {
	OrderID         string    `json:"order_id"`
	ExchangeOrderID string    `json:"exchange_order_id,omitempty"`
	Symbol          string    `json:"symbol"`
	Exchange        string    `json:"exchange"`
	Side            Side      `json:"side"`
	Qty             int64     `json:"quantity"`
	FilledQty       int64     `json:"filled_quantity"`
	PendingQty      int64     `json:"pending_quantity"`
	Price           float64   `json:"price"`
	TriggerPrice    float64   `json:"trigger_price"`
	AvgPrice        float64   `json:"average_price"`
	OrderType       OrderType `json:"order_type"`
	Product         Product   `json:"product"`
	Status          string    `json:"status"`
	Validity        string    `json:"validity"`
	OrderTS         time.Time `json:"order_timestamp"`
	ExchangeTS      time.Time `json:"exchange_timestamp,omitempty"`
	RejectionReason string    `json:"rejection_reason,omitempty"`
}

// Trade is a single execution from the trade book.
type Trade struct {
	OrderID    string    `json:"order_id"`
	TradeID    string    `json:"trade_id"`
	Symbol     string    `json:"symbol"`
	Exchange   string    `json:"exchange"`
	Side       Side      `json:"side"`
	Qty        int64     `json:"quantity"`
	Price      float64   `json:"price"`
	Product    Product   `json:"product"`
	ExchangeTS time.Time `json:"exchange_timestamp,omitempty"`
}

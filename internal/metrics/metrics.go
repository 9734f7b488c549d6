// Package metrics holds the gateway's Prometheus metrics and the HTTP
// server exposing /metrics and /healthz.
package metrics

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics holds all Prometheus metrics for the gateway.
type Metrics struct {
	OrdersTotal         *prometheus.CounterVec // labels: broker, mode, status
	RateLimitRejections *prometheus.CounterVec // labels: category
	BrokerRequestDur    *prometheus.HistogramVec
	TicksDecoded        *prometheus.CounterVec // labels: broker
	TicksDropped        *prometheus.CounterVec // labels: broker
	StreamReconnects    *prometheus.CounterVec // labels: broker
	StreamState         *prometheus.GaugeVec   // labels: broker; 0=disconnected..3=reconnecting
	SymbolsCached       prometheus.Gauge
	AuditWriteDur       prometheus.Histogram
}

// New registers and returns all gateway metrics.
func New() *Metrics {
	m := &Metrics{
		OrdersTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "gateway_orders_total",
			Help: "Order operations by broker, routing mode, and outcome",
		}, []string{"broker", "mode", "status"}),
		RateLimitRejections: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "gateway_rate_limit_rejections_total",
			Help: "Operations rejected by the token-bucket limiter",
		}, []string{"category"}),
		BrokerRequestDur: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "gateway_broker_request_duration_seconds",
			Help:    "Outbound broker REST call latency",
			Buckets: prometheus.DefBuckets,
		}, []string{"broker"}),
		TicksDecoded: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "gateway_ticks_decoded_total",
			Help: "Binary ticks decoded per broker stream",
		}, []string{"broker"}),
		TicksDropped: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "gateway_ticks_dropped_total",
			Help: "Ticks dropped because the subscriber channel was full",
		}, []string{"broker"}),
		StreamReconnects: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "gateway_stream_reconnects_total",
			Help: "WebSocket reconnect attempts per broker",
		}, []string{"broker"}),
		StreamState: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Name: "gateway_stream_state",
			Help: "Stream connection state (0=disconnected 1=connecting 2=connected 3=reconnecting)",
		}, []string{"broker"}),
		SymbolsCached: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "gateway_symbols_cached",
			Help: "Symbol rows in the in-memory master cache",
		}),
		AuditWriteDur: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "gateway_audit_write_duration_seconds",
			Help:    "Order audit row write latency",
			Buckets: prometheus.DefBuckets,
		}),
	}

	prometheus.MustRegister(
		m.OrdersTotal,
		m.RateLimitRejections,
		m.BrokerRequestDur,
		m.TicksDecoded,
		m.TicksDropped,
		m.StreamReconnects,
		m.StreamState,
		m.SymbolsCached,
		m.AuditWriteDur,
	)
	return m
}

// HealthStatus is the mutable health snapshot served at /healthz.
type HealthStatus struct {
	mu sync.RWMutex

	StartedAt      time.Time
	SQLiteOK       bool
	RedisConnected bool
	StreamState    string
	ActiveBroker   string
}

// NewHealth returns a health snapshot started now.
func NewHealth() *HealthStatus {
	return &HealthStatus{StartedAt: time.Now(), StreamState: "disconnected"}
}

// Update applies a mutation under the lock.
func (h *HealthStatus) Update(fn func(*HealthStatus)) {
	h.mu.Lock()
	defer h.mu.Unlock()
	fn(h)
}

// ServeHTTP handles the /healthz endpoint.
func (h *HealthStatus) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	h.mu.RLock()
	defer h.mu.RUnlock()

	overall := "healthy"
	code := http.StatusOK
	if !h.SQLiteOK {
		overall = "unhealthy"
		code = http.StatusServiceUnavailable
	} else if !h.RedisConnected {
		overall = "degraded"
	}

	status := struct {
		Status         string `json:"status"`
		Uptime         string `json:"uptime"`
		SQLiteOK       bool   `json:"sqlite_ok"`
		RedisConnected bool   `json:"redis_connected"`
		StreamState    string `json:"stream_state"`
		ActiveBroker   string `json:"active_broker,omitempty"`
	}{
		Status:         overall,
		Uptime:         time.Since(h.StartedAt).Round(time.Second).String(),
		SQLiteOK:       h.SQLiteOK,
		RedisConnected: h.RedisConnected,
		StreamState:    h.StreamState,
		ActiveBroker:   h.ActiveBroker,
	}

	w.Header().Set("Content-Type", "application/json")
	if code != http.StatusOK {
		w.WriteHeader(code)
	}
	json.NewEncoder(w).Encode(status)
}

// Server exposes /metrics and /healthz.
type Server struct {
	addr string
	srv  *http.Server
}

// NewServer builds the metrics HTTP server.
func NewServer(addr string, health *HealthStatus) *Server {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())
	mux.Handle("/healthz", health)

	return &Server{
		addr: addr,
		srv:  &http.Server{Addr: addr, Handler: mux},
	}
}

// Start launches the server in a goroutine.
func (s *Server) Start() {
	go func() {
		slog.Info("metrics server listening", slog.String("addr", s.addr))
		if err := s.srv.ListenAndServe(); err != http.ErrServerClosed {
			slog.Error("metrics server error", slog.Any("err", err))
		}
	}()
}

// Stop gracefully shuts the server down.
func (s *Server) Stop(ctx context.Context) {
	s.srv.Shutdown(ctx)
}

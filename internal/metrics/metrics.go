// Package metrics provides Prometheus instrumentation for the simulation
// engine and API.
package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	// TicksTotal counts price ticks generated, partitioned by volatility class.
	TicksTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "pw_ticks_total",
		Help: "Total number of price ticks generated",
	}, []string{"vol_class"})

	// MicroEventsTotal counts micro-event shocks applied by the generator.
	MicroEventsTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "pw_micro_events_total",
		Help: "Total number of micro-event price shocks",
	})

	// TradesTotal counts executed orders, partitioned by side.
	TradesTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "pw_trades_total",
		Help: "Total number of orders executed",
	}, []string{"side"})

	// TradeRejections counts orders rejected by a precondition check.
	TradeRejections = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "pw_trade_rejections_total",
		Help: "Orders rejected before any mutation",
	}, []string{"reason"})

	// LedgerEntriesTotal counts ledger appends by entry type.
	LedgerEntriesTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "pw_ledger_entries_total",
		Help: "Total ledger entries appended",
	}, []string{"type"})

	// IdempotentReplays counts operations absorbed by an idempotency key.
	IdempotentReplays = promauto.NewCounter(prometheus.CounterOpts{
		Name: "pw_idempotent_replays_total",
		Help: "Operations treated as success-no-op due to a duplicate key",
	})

	// WebSocketClients tracks connected WebSocket clients.
	WebSocketClients = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "pw_websocket_clients",
		Help: "Number of connected WebSocket clients",
	})

	// HTTPRequestsTotal counts HTTP requests by method, path, and status.
	HTTPRequestsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "pw_http_requests_total",
		Help: "Total HTTP requests",
	}, []string{"method", "path", "status"})

	// HTTPRequestDuration tracks request duration by method and path.
	HTTPRequestDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "pw_http_request_duration_seconds",
		Help:    "HTTP request duration in seconds",
		Buckets: []float64{0.001, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1.0},
	}, []string{"method", "path"})
)

// Handler returns the Prometheus metrics HTTP handler.
func Handler() http.Handler {
	return promhttp.Handler()
}

// Middleware returns an HTTP middleware that records request metrics.
func Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		wrapped := &statusWriter{ResponseWriter: w, status: 200}
		next.ServeHTTP(wrapped, r)
		duration := time.Since(start).Seconds()

		path := r.URL.Path
		HTTPRequestsTotal.WithLabelValues(r.Method, path, strconv.Itoa(wrapped.status)).Inc()
		HTTPRequestDuration.WithLabelValues(r.Method, path).Observe(duration)
	})
}

// statusWriter wraps http.ResponseWriter to capture the status code.
type statusWriter struct {
	http.ResponseWriter
	status int
}

func (w *statusWriter) WriteHeader(code int) {
	w.status = code
	w.ResponseWriter.WriteHeader(code)
}

// Package metrics provides Prometheus instrumentation for the stake ledger.
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
	// OperationsTotal counts state-changing ledger operations by action.
	OperationsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "stake_operations_total",
		Help: "Total number of ledger operations applied",
	}, []string{"action"})

	// SeizuresTotal counts enforcement seizures by outcome.
	SeizuresTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "stake_seizures_total",
		Help: "Total enforcement seizures by outcome (full, partial, noop)",
	}, []string{"outcome"})

	// TotalStaked tracks the global total-staked counter in base units.
	TotalStaked = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "stake_total_staked",
		Help: "Total principal currently staked, in base units",
	})

	// TotalCooldown tracks the value currently queued for exit.
	TotalCooldown = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "stake_total_cooldown",
		Help: "Total amount currently in exit cooldown, in base units",
	})

	// ActivePositions tracks the number of open positions.
	ActivePositions = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "stake_active_positions",
		Help: "Number of accounts with an active position",
	})

	// SinkBalance tracks accumulated penalties routed to the sink.
	SinkBalance = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "stake_sink_balance",
		Help: "Accumulated penalty sink balance, in base units",
	})

	// WebSocketClients tracks connected WebSocket clients.
	WebSocketClients = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "stake_websocket_clients",
		Help: "Number of connected WebSocket clients",
	})

	// HTTPRequestsTotal counts HTTP requests by method, path, and status.
	HTTPRequestsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "stake_http_requests_total",
		Help: "Total HTTP requests",
	}, []string{"method", "path", "status"})

	// HTTPRequestDuration tracks request duration by method and path.
	HTTPRequestDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "stake_http_request_duration_seconds",
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

		// Use the route pattern for path label to avoid high cardinality.
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

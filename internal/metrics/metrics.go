// Package metrics provides Prometheus instrumentation for the tactician engine.
package metrics

import (
	"bufio"
	"errors"
	"net"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	// QuoteRefreshes counts quote refresh attempts by result
	// (ok, cached, rate_limited, error).
	QuoteRefreshes = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "tactician_quote_refreshes_total",
		Help: "Quote refresh attempts by result",
	}, []string{"result"})

	// QuoteSnapshotAge is the age of the served quote snapshot.
	QuoteSnapshotAge = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "tactician_quote_snapshot_age_seconds",
		Help: "Seconds since the served quote snapshot was fetched",
	})

	// QuotesServed is the number of instruments in the current snapshot.
	QuotesServed = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "tactician_quotes_served",
		Help: "Instruments in the current quote snapshot",
	})

	// SavedPositions tracks the size of the position ledger.
	SavedPositions = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "tactician_saved_positions",
		Help: "Number of saved paper positions",
	})

	// GamesStarted counts prediction games started, by direction.
	GamesStarted = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "tactician_games_started_total",
		Help: "Prediction games started",
	}, []string{"direction"})

	// GamesSettled counts settled prediction games, by outcome.
	GamesSettled = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "tactician_games_settled_total",
		Help: "Prediction games settled by outcome",
	}, []string{"status"})

	// SettlementsDeferred counts expired games left active for lack of a quote.
	SettlementsDeferred = promauto.NewCounter(prometheus.CounterOpts{
		Name: "tactician_settlements_deferred_total",
		Help: "Expired games whose settlement was deferred for lack of a quote",
	})

	// WebSocketClients tracks connected WebSocket clients.
	WebSocketClients = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "tactician_websocket_clients",
		Help: "Number of connected WebSocket clients",
	})

	// HTTPRequestsTotal counts HTTP requests by method, route, and status.
	HTTPRequestsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "tactician_http_requests_total",
		Help: "Total HTTP requests",
	}, []string{"method", "path", "status"})

	// HTTPRequestDuration tracks request duration by method and route.
	HTTPRequestDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "tactician_http_request_duration_seconds",
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

		path := routePattern(r)
		HTTPRequestsTotal.WithLabelValues(r.Method, path, strconv.Itoa(wrapped.status)).Inc()
		HTTPRequestDuration.WithLabelValues(r.Method, path).Observe(duration)
	})
}

// routePattern returns the matched chi route (e.g. /api/v1/positions/{id})
// so ids do not become label values.
func routePattern(r *http.Request) string {
	if rc := chi.RouteContext(r.Context()); rc != nil {
		if p := rc.RoutePattern(); p != "" {
			return p
		}
	}
	return "unmatched"
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

// Hijack lets WebSocket upgrades pass through the middleware.
func (w *statusWriter) Hijack() (net.Conn, *bufio.ReadWriter, error) {
	h, ok := w.ResponseWriter.(http.Hijacker)
	if !ok {
		return nil, nil, errors.New("metrics: response writer does not support hijacking")
	}
	return h.Hijack()
}

func (w *statusWriter) Unwrap() http.ResponseWriter {
	return w.ResponseWriter
}

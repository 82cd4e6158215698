// Package telemetry holds the service's Prometheus collectors, the HTTP
// metrics middleware and OpenTelemetry tracer setup.
package telemetry

import (
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	discoveryRunsTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "feedscout_discovery_runs_total",
			Help: "Total number of discovery crawls started.",
		},
	)

	discoveryRecordsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "feedscout_discovery_records_total",
			Help: "Discovered feed records, labeled by outcome (new, existing, error).",
		},
		[]string{"outcome"},
	)

	discoveryDurationSeconds = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "feedscout_discovery_duration_seconds",
			Help:    "Histogram of discovery crawl durations.",
			Buckets: []float64{0.5, 1, 2, 5, 10, 30, 60, 120},
		},
	)

	feedsAddedTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "feedscout_feeds_added_total",
			Help: "Feeds added to the registry, labeled by source.",
		},
		[]string{"source"},
	)

	resolveTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "feedscout_resolve_total",
			Help: "Identifier resolutions, labeled by kind and matching strategy.",
		},
		[]string{"kind", "strategy"},
	)

	parseTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "feedscout_parse_total",
			Help: "Feed parse attempts, labeled by status.",
		},
		[]string{"status"},
	)

	parseDurationSeconds = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "feedscout_parse_duration_seconds",
			Help:    "Histogram of fetch plus parse latency per feed.",
			Buckets: []float64{0.05, 0.1, 0.25, 0.5, 1, 2, 5, 10},
		},
	)

	registryWritesTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "feedscout_registry_writes_total",
			Help: "Registry mutations, labeled by operation and status.",
		},
		[]string{"op", "status"},
	)

	rateLimitDelaySeconds = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "feedscout_fetch_rate_limit_delay_seconds",
			Help:    "Histogram of per-host rate limit wait durations.",
			Buckets: []float64{0.1, 0.5, 1, 2, 5, 10, 30},
		},
		[]string{"host"},
	)

	robotsFallbackTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "feedscout_fetch_robots_fallback_total",
			Help: "robots.txt probes that timed out and fell back to allow-all.",
		},
	)

	httpRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "http_requests_total",
			Help: "Total number of HTTP requests, labeled by method and code.",
		},
		[]string{"method", "code"},
	)

	httpRequestDurationSeconds = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "http_request_duration_seconds",
			Help:    "Histogram of HTTP request latencies, labeled by method and route.",
			Buckets: []float64{0.05, 0.1, 0.25, 0.5, 1, 2, 5},
		},
		[]string{"method", "route"},
	)
)

// Handler returns the standard Prometheus HTTP handler.
func Handler() http.Handler {
	return promhttp.Handler()
}

// Middleware is a chi middleware that records HTTP request metrics.
func Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		ww := &statusRecorder{ResponseWriter: w, statusCode: http.StatusOK}
		next.ServeHTTP(ww, r)

		routePattern := "unknown"
		if rctx := chi.RouteContext(r.Context()); rctx != nil && rctx.RoutePattern() != "" {
			routePattern = rctx.RoutePattern()
		}
		ObserveHTTPRequest(r.Method, routePattern, ww.statusCode, time.Since(start))
	})
}

// statusRecorder wraps http.ResponseWriter to capture the status code.
type statusRecorder struct {
	http.ResponseWriter
	statusCode int
}

func (rec *statusRecorder) WriteHeader(code int) {
	rec.statusCode = code
	rec.ResponseWriter.WriteHeader(code)
}

// SanitizeHost extracts the lower-cased hostname from a URL for use as a label.
func SanitizeHost(rawURL string) string {
	if !strings.HasPrefix(rawURL, "http") {
		rawURL = "http://" + rawURL
	}
	u, err := url.Parse(rawURL)
	if err != nil || u.Hostname() == "" {
		return "unknown"
	}
	return strings.ToLower(u.Hostname())
}

// ObserveDiscoveryRun records a finished crawl.
func ObserveDiscoveryRun(duration time.Duration) {
	discoveryRunsTotal.Inc()
	discoveryDurationSeconds.Observe(duration.Seconds())
}

// ObserveDiscoveryRecord records one crawl record by outcome.
func ObserveDiscoveryRecord(outcome string) {
	discoveryRecordsTotal.WithLabelValues(outcome).Inc()
}

// ObserveFeedAdded records a feed committed to the registry.
func ObserveFeedAdded(source string) {
	feedsAddedTotal.WithLabelValues(source).Inc()
}

// ObserveResolve records the outcome of an identifier resolution.
func ObserveResolve(kind, strategy string) {
	resolveTotal.WithLabelValues(kind, strategy).Inc()
}

// ObserveParse records one fetch plus parse attempt.
func ObserveParse(status string, duration time.Duration) {
	parseTotal.WithLabelValues(status).Inc()
	parseDurationSeconds.Observe(duration.Seconds())
}

// ObserveRegistryWrite records one registry mutation.
func ObserveRegistryWrite(op, status string) {
	registryWritesTotal.WithLabelValues(op, status).Inc()
}

// ObserveRateLimitDelay records the duration of a rate limit wait.
func ObserveRateLimitDelay(host string, duration time.Duration) {
	rateLimitDelaySeconds.WithLabelValues(host).Observe(duration.Seconds())
}

// ObserveRobotsFallback records a robots.txt probe that fell back to allow-all.
func ObserveRobotsFallback() {
	robotsFallbackTotal.Inc()
}

// ObserveHTTPRequest records metrics for an HTTP request.
func ObserveHTTPRequest(method, route string, code int, duration time.Duration) {
	httpRequestsTotal.WithLabelValues(method, strconv.Itoa(code)).Inc()
	httpRequestDurationSeconds.WithLabelValues(method, route).Observe(duration.Seconds())
}

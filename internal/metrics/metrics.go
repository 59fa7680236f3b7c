// Package metrics registers the service's Prometheus collectors and exposes
// small helpers so callers never touch collector vectors directly.
package metrics

import (
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	httpRequestsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "orrery_http_requests_total",
			Help: "Total number of HTTP requests.",
		},
		[]string{"path", "method", "code"},
	)

	httpDurationSeconds = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "orrery_http_duration_seconds",
			Help:    "HTTP request duration in seconds.",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"path", "method"},
	)

	cacheEventsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "orrery_cache_events_total",
			Help: "Cache lookups and removals by cache and event (hit, miss, eviction, expire).",
		},
		[]string{"cache", "event"},
	)

	computeDurationSeconds = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "orrery_compute_duration_seconds",
			Help:    "Duration of uncached position computations.",
			Buckets: []float64{.0001, .0005, .001, .005, .01, .05, .1, .5, 1},
		},
		[]string{"kind", "provider"},
	)

	computeErrorsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "orrery_compute_errors_total",
			Help: "Failed position computations by kind.",
		},
		[]string{"kind"},
	)

	providerFallbacksTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "orrery_provider_fallbacks_total",
			Help: "Computations served by the Kepler fallback after the primary provider was unavailable.",
		},
		[]string{"kind"},
	)

	keplerNonConvergedTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "orrery_kepler_nonconverged_total",
			Help: "Kepler solves that hit the iteration cap.",
		},
	)

	engineState = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "orrery_engine_state",
			Help: "Engine initialization state (0 uninitialized, 1 initializing, 2 ready).",
		},
	)

	streamConnectionsTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "orrery_stream_connections_total",
			Help: "Total SSE stream connections accepted.",
		},
	)

	streamsActive = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "orrery_streams_active",
			Help: "Currently open SSE streams.",
		},
	)

	streamMessagesTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "orrery_stream_messages_total",
			Help: "SSE state frames sent.",
		},
	)

	streamBytesTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "orrery_stream_bytes_total",
			Help: "Bytes written to SSE streams.",
		},
	)

	streamErrorsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "orrery_stream_errors_total",
			Help: "SSE stream errors by reason.",
		},
		[]string{"reason"},
	)
)

func init() {
	prometheus.MustRegister(
		httpRequestsTotal,
		httpDurationSeconds,
		cacheEventsTotal,
		computeDurationSeconds,
		computeErrorsTotal,
		providerFallbacksTotal,
		keplerNonConvergedTotal,
		engineState,
		streamConnectionsTotal,
		streamsActive,
		streamMessagesTotal,
		streamBytesTotal,
		streamErrorsTotal,
	)
}

// Handler returns the Prometheus metrics HTTP handler.
func Handler() http.Handler {
	return promhttp.Handler()
}

// CacheMetrics reports events of one named cache. It satisfies cache.Metrics.
type CacheMetrics struct {
	hit, miss, eviction, expire prometheus.Counter
}

// NewCacheMetrics binds the cache event counters to name.
func NewCacheMetrics(name string) *CacheMetrics {
	return &CacheMetrics{
		hit:      cacheEventsTotal.WithLabelValues(name, "hit"),
		miss:     cacheEventsTotal.WithLabelValues(name, "miss"),
		eviction: cacheEventsTotal.WithLabelValues(name, "eviction"),
		expire:   cacheEventsTotal.WithLabelValues(name, "expire"),
	}
}

func (m *CacheMetrics) Hit()      { m.hit.Inc() }
func (m *CacheMetrics) Miss()     { m.miss.Inc() }
func (m *CacheMetrics) Eviction() { m.eviction.Inc() }
func (m *CacheMetrics) Expire()   { m.expire.Inc() }

// ObserveCompute records the duration of an uncached computation.
func ObserveCompute(kind, provider string, d time.Duration) {
	computeDurationSeconds.WithLabelValues(kind, provider).Observe(d.Seconds())
}

// IncComputeErrors counts a failed computation.
func IncComputeErrors(kind string) {
	computeErrorsTotal.WithLabelValues(kind).Inc()
}

// IncProviderFallback counts a computation served by the fallback provider.
func IncProviderFallback(kind string) {
	providerFallbacksTotal.WithLabelValues(kind).Inc()
}

// IncKeplerNonConverged counts a solve that hit the iteration cap.
func IncKeplerNonConverged() {
	keplerNonConvergedTotal.Inc()
}

// SetEngineState publishes the engine's init state.
func SetEngineState(state int) {
	engineState.Set(float64(state))
}

func IncStreamConnections()         { streamConnectionsTotal.Inc() }
func IncStreamsActive()             { streamsActive.Inc() }
func DecStreamsActive()             { streamsActive.Dec() }
func IncStreamMessages()            { streamMessagesTotal.Inc() }
func AddStreamBytes(n int)          { streamBytesTotal.Add(float64(n)) }
func IncStreamErrors(reason string) { streamErrorsTotal.WithLabelValues(reason).Inc() }

// knownRoutes are exact paths recorded under their own label.
var knownRoutes = map[string]bool{
	"/":                      true,
	"/healthz":               true,
	"/readyz":                true,
	"/metrics":               true,
	"/api/v1/planets":        true,
	"/api/v1/sun":            true,
	"/api/v1/moon":           true,
	"/api/v1/state":          true,
	"/api/v1/time":           true,
	"/api/v1/visibility":     true,
	"/api/v1/cache/stats":    true,
	"/api/v1/cache/clear":    true,
	"/api/v1/catalog":        true,
	"/api/v1/catalog/reload": true,
	"/api/v1/stream/state":   true,
}

// parameterized maps a path prefix to the label used for all its children.
var parameterized = []struct{ prefix, label string }{
	{"/api/v1/planets/", "/api/v1/planets/{body}"},
	{"/api/v1/orbit/", "/api/v1/orbit/{body}"},
}

// normalizeRoute bounds the path label's cardinality: parameterized routes
// collapse to their pattern and unknown paths to "other".
func normalizeRoute(path string) string {
	if knownRoutes[path] {
		return path
	}
	for _, p := range parameterized {
		if rest, ok := strings.CutPrefix(path, p.prefix); ok && rest != "" && !strings.Contains(rest, "/") {
			return p.label
		}
	}
	return "other"
}

// responseWriter wraps http.ResponseWriter to capture the status code.
type responseWriter struct {
	http.ResponseWriter
	statusCode int
}

func (rw *responseWriter) WriteHeader(code int) {
	rw.statusCode = code
	rw.ResponseWriter.WriteHeader(code)
}

// Flush passes through so SSE handlers can stream through the middleware.
func (rw *responseWriter) Flush() {
	if f, ok := rw.ResponseWriter.(http.Flusher); ok {
		f.Flush()
	}
}

// Unwrap lets http.ResponseController reach the underlying writer.
func (rw *responseWriter) Unwrap() http.ResponseWriter {
	return rw.ResponseWriter
}

// Middleware records request count and duration for each request.
func Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		rw := &responseWriter{ResponseWriter: w, statusCode: http.StatusOK}

		next.ServeHTTP(rw, r)

		duration := time.Since(start).Seconds()
		code := strconv.Itoa(rw.statusCode)
		route := normalizeRoute(r.URL.Path)

		httpRequestsTotal.WithLabelValues(route, r.Method, code).Inc()
		httpDurationSeconds.WithLabelValues(route, r.Method).Observe(duration)
	})
}

// Package api wires the HTTP routes of the position service.
package api

import (
	"context"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/google/uuid"

	"github.com/star/orrery/internal/auth"
	"github.com/star/orrery/internal/catalog"
	"github.com/star/orrery/internal/engine"
	"github.com/star/orrery/internal/health"
	"github.com/star/orrery/internal/httputil"
	"github.com/star/orrery/internal/metrics"
	"github.com/star/orrery/internal/stream"
)

// Options configures the HTTP server.
type Options struct {
	Addr       string
	Auth       auth.Config
	RateLimit  float64 // requests per second per client IP
	RateBurst  int
	TrustProxy bool

	// ReloadCatalog loads a replacement element catalog for
	// POST /api/v1/catalog/reload. Nil disables the route.
	ReloadCatalog func(ctx context.Context) (*catalog.Catalog, error)
}

// Server holds the HTTP server and its dependencies.
type Server struct {
	httpServer *http.Server
	limiter    *ipRateLimiter
	logger     *slog.Logger
}

// NewServer creates a configured HTTP server.
func NewServer(opts Options, eng *engine.Engine, streams *stream.Handler, logger *slog.Logger) *Server {
	h := &handlers{
		engine: eng,
		reload: opts.ReloadCatalog,
		logger: logger.With("component", "api"),
	}

	mux := http.NewServeMux()

	mux.HandleFunc("GET /healthz", health.Healthz)
	mux.HandleFunc("GET /readyz", health.Readyz(eng.CheckReady))
	mux.Handle("GET /metrics", metrics.Handler())

	mux.HandleFunc("GET /api/v1/planets", h.planets)
	mux.HandleFunc("GET /api/v1/planets/{body}", h.planet)
	mux.HandleFunc("GET /api/v1/sun", h.sun)
	mux.HandleFunc("GET /api/v1/moon", h.moon)
	mux.HandleFunc("GET /api/v1/state", h.state)
	mux.HandleFunc("GET /api/v1/orbit/{body}", h.orbit)
	mux.HandleFunc("GET /api/v1/time", h.time)
	mux.HandleFunc("GET /api/v1/visibility", h.visibility)
	mux.HandleFunc("GET /api/v1/cache/stats", h.cacheStats)
	mux.HandleFunc("POST /api/v1/cache/clear", h.cacheClear)
	mux.HandleFunc("GET /api/v1/catalog", h.catalog)
	mux.HandleFunc("POST /api/v1/catalog/reload", h.catalogReload)
	if streams != nil {
		mux.HandleFunc("GET /api/v1/stream/state", streams.HandleState)
	}

	limiter := newIPRateLimiter(opts.RateLimit, opts.RateBurst)

	// Build middleware chain: request id -> metrics -> logging -> auth -> rate limit -> mux.
	var handler http.Handler = mux
	handler = rateLimitMiddleware(limiter, opts.TrustProxy, logger)(handler)
	handler = auth.Middleware(opts.Auth)(handler)
	handler = loggingMiddleware(logger, opts.TrustProxy)(handler)
	handler = metrics.Middleware(handler)
	handler = requestIDMiddleware(handler)

	return &Server{
		httpServer: &http.Server{
			Addr:              opts.Addr,
			Handler:           handler,
			ReadTimeout:       10 * time.Second,
			ReadHeaderTimeout: 5 * time.Second,
			WriteTimeout:      30 * time.Second,
			IdleTimeout:       120 * time.Second,
		},
		limiter: limiter,
		logger:  logger,
	}
}

// HTTPServer returns the underlying *http.Server for external control (e.g. shutdown).
func (s *Server) HTTPServer() *http.Server {
	return s.httpServer
}

// Handler returns the fully wrapped root handler.
func (s *Server) Handler() http.Handler {
	return s.httpServer.Handler
}

// ListenAndServe starts the HTTP server.
func (s *Server) ListenAndServe() error {
	return s.httpServer.ListenAndServe()
}

// StartLimiterCleanup drops idle per-client limiters every interval until ctx
// ends.
func (s *Server) StartLimiterCleanup(ctx context.Context, interval time.Duration) {
	go func() {
		ticker := time.NewTicker(interval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				if n := s.limiter.cleanup(interval); n > 0 {
					s.logger.Debug("rate limiters pruned", "count", n)
				}
			}
		}
	}()
}

// probePath returns true for health/readiness probe paths that should not log at INFO.
func probePath(path string) bool {
	return path == "/healthz" || path == "/readyz"
}

type requestIDKey struct{}

// RequestID returns the request id stored by the request id middleware.
func RequestID(ctx context.Context) string {
	id, _ := ctx.Value(requestIDKey{}).(string)
	return id
}

// requestIDMiddleware propagates X-Request-ID, generating one when the client
// sent none.
func requestIDMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		id := r.Header.Get("X-Request-ID")
		if id == "" || len(id) > 128 {
			id = uuid.NewString()
		}
		w.Header().Set("X-Request-ID", id)
		next.ServeHTTP(w, r.WithContext(context.WithValue(r.Context(), requestIDKey{}, id)))
	})
}

type statusRecorder struct {
	http.ResponseWriter
	statusCode int
}

func (sr *statusRecorder) WriteHeader(code int) {
	sr.statusCode = code
	sr.ResponseWriter.WriteHeader(code)
}

// Flush keeps SSE working through the recorder.
func (sr *statusRecorder) Flush() {
	if f, ok := sr.ResponseWriter.(http.Flusher); ok {
		f.Flush()
	}
}

// Unwrap lets http.ResponseController reach the underlying writer.
func (sr *statusRecorder) Unwrap() http.ResponseWriter {
	return sr.ResponseWriter
}

func loggingMiddleware(logger *slog.Logger, trustProxy bool) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()
			sr := &statusRecorder{ResponseWriter: w, statusCode: http.StatusOK}

			next.ServeHTTP(sr, r)

			duration := time.Since(start)
			level := slog.LevelInfo
			if probePath(r.URL.Path) {
				level = slog.LevelDebug
			}

			logger.Log(r.Context(), level, "request",
				"component", "api",
				"method", r.Method,
				"path", r.URL.Path,
				"status", strconv.Itoa(sr.statusCode),
				"duration_ms", duration.Milliseconds(),
				"remote_ip", httputil.ClientIP(r, trustProxy),
				"request_id", RequestID(r.Context()),
			)
		})
	}
}

// Package stream implements Server-Sent Events (SSE) streaming of solar-system
// state. Clients connect via GET /api/v1/stream/state and receive a frame
// every step seconds until they disconnect.
//
// SSE message format:
//
//	id: 2
//	data: {"type":"state","t":"2026-02-06T04:00:00Z","jd":2461077.6,"state":{...}}\n\n
//
// First message is always metadata:
//
//	id: 1
//	data: {"type":"metadata","provider":"vsop87","catalog_source":"builtin","catalog_age_seconds":1800}\n\n
//
// Keep-alive comments (:\n\n) are sent every KeepaliveInterval to prevent timeout.
// Reconnecting clients receive a fresh metadata message on each connection.
package stream

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"math/rand"
	"net/http"
	"strconv"
	"time"

	"github.com/star/orrery/internal/catalog"
	"github.com/star/orrery/internal/httputil"
	"github.com/star/orrery/internal/metrics"
	"github.com/star/orrery/internal/position"
	"github.com/star/orrery/internal/transform"
)

// Source produces the frames. The engine implements it.
type Source interface {
	SolarSystemState(ctx context.Context, t time.Time, obs *transform.Observer) (*position.State, error)
	ProviderName() string
	Catalog() *catalog.Catalog
	CatalogAge() float64
}

// Config holds streaming configuration loaded from environment variables.
type Config struct {
	MaxConcurrentPerIP int           // Max concurrent streams per IP (default: 10).
	MaxConcurrent      int           // Max concurrent streams overall (default: 1000).
	KeepaliveInterval  time.Duration // Keep-alive ping interval (default: 30s).
	TrustProxy         bool
}

// Handler manages SSE streaming connections.
type Handler struct {
	src     Source
	config  Config
	limiter *streamLimiter
	logger  *slog.Logger
	now     func() time.Time
}

// NewHandler creates a new streaming handler.
func NewHandler(src Source, config Config, logger *slog.Logger) *Handler {
	if config.MaxConcurrentPerIP < 1 {
		config.MaxConcurrentPerIP = 10
	}
	if config.KeepaliveInterval <= 0 {
		config.KeepaliveInterval = 30 * time.Second
	}
	return &Handler{
		src:     src,
		config:  config,
		limiter: newStreamLimiter(config.MaxConcurrentPerIP, config.MaxConcurrent),
		logger:  logger,
		now:     time.Now,
	}
}

// streamParams are the parsed query parameters of one stream.
type streamParams struct {
	step  int
	speed float64
	start time.Time
	obs   *transform.Observer
}

func badRequest(w http.ResponseWriter, msg string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusBadRequest)
	json.NewEncoder(w).Encode(map[string]string{"error": msg})
}

func (h *Handler) parseParams(r *http.Request) (streamParams, string) {
	q := r.URL.Query()
	p := streamParams{step: 5, speed: 1, start: h.now().UTC()}

	if v := q.Get("step"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 1 || n > 60 {
			return p, "invalid step parameter, must be 1-60"
		}
		p.step = n
	}
	if v := q.Get("speed"); v != "" {
		f, err := strconv.ParseFloat(v, 64)
		if err != nil || f < -86400 || f > 86400 || f == 0 {
			return p, "invalid speed parameter, must be non-zero within ±86400"
		}
		p.speed = f
	}
	if v := q.Get("t"); v != "" {
		t, err := time.Parse(time.RFC3339, v)
		if err != nil {
			return p, "invalid t parameter, must be RFC3339"
		}
		p.start = t.UTC()
	}

	lat, lon := q.Get("lat"), q.Get("lon")
	if lat != "" || lon != "" {
		la, err1 := strconv.ParseFloat(lat, 64)
		lo, err2 := strconv.ParseFloat(lon, 64)
		if err1 != nil || err2 != nil || la < -90 || la > 90 || lo < -180 || lo > 180 {
			return p, "invalid observer, lat and lon must both be given in range"
		}
		p.obs = &transform.Observer{Latitude: la, Longitude: lo}
	}
	return p, ""
}

// HandleState serves the SSE state stream.
// GET /api/v1/stream/state?step=5&speed=3600&t=...&lat=..&lon=..
func (h *Handler) HandleState(w http.ResponseWriter, r *http.Request) {
	params, msg := h.parseParams(r)
	if msg != "" {
		badRequest(w, msg)
		return
	}

	// Rate limiting: enforce concurrent stream limit per IP.
	ip := httputil.ClientIP(r, h.config.TrustProxy)
	if !h.limiter.acquire(ip) {
		metrics.IncStreamErrors("rate_limit")
		h.logger.Warn("stream rate limit exceeded",
			"remote_ip", ip,
			"current_count", h.limiter.count(ip),
			"active_streams", h.limiter.active(),
		)
		w.Header().Set("Content-Type", "application/json")
		w.Header().Set("Retry-After", "30")
		w.WriteHeader(http.StatusTooManyRequests)
		json.NewEncoder(w).Encode(map[string]string{"error": "too many concurrent streams"})
		return
	}

	metrics.IncStreamConnections()
	metrics.IncStreamsActive()

	startTime := time.Now()
	h.logger.Info("stream connected",
		"remote_ip", ip,
		"user_agent", r.Header.Get("User-Agent"),
		"step", params.step,
		"speed", params.speed,
		"active_streams", h.limiter.active(),
	)

	var c *client
	defer func() {
		h.limiter.release(ip)
		metrics.DecStreamsActive()
		var events int64
		var sent int
		if c != nil {
			events, sent = c.eventID, c.sent
		}
		h.logger.Info("stream disconnected",
			"remote_ip", ip,
			"duration_seconds", int(time.Since(startTime).Seconds()),
			"events", events,
			"bytes", sent,
		)
	}()

	flusher, ok := w.(http.Flusher)
	if !ok {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusInternalServerError)
		json.NewEncoder(w).Encode(map[string]string{"error": "streaming not supported"})
		return
	}

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.Header().Set("X-Accel-Buffering", "no") // Disable nginx buffering.
	w.WriteHeader(http.StatusOK)
	flusher.Flush()

	// Clear the server's default WriteTimeout for this connection.
	rc := http.NewResponseController(w)
	if err := rc.SetWriteDeadline(time.Time{}); err != nil {
		h.logger.Debug("could not clear write deadline", "error", err)
	}

	c = &client{
		w:       w,
		flusher: flusher,
		rc:      rc,
		ip:      ip,
		logger:  h.logger,
	}

	// Jittered retry interval (3-7s) spreads reconnects after a restart.
	retryMs := 3000 + rand.Intn(4000)
	fmt.Fprintf(w, "retry: %d\n\n", retryMs)
	flusher.Flush()

	cat := h.src.Catalog()
	meta := metadataMessage{
		Type:          "metadata",
		Provider:      h.src.ProviderName(),
		CatalogSource: cat.Source,
		CatalogAge:    int(h.src.CatalogAge()),
		Step:          params.step,
		Speed:         params.speed,
	}
	if err := c.sendJSON(meta); err != nil {
		metrics.IncStreamErrors("send_error")
		h.logger.Warn("stream send error (metadata)", "remote_ip", ip, "error", err)
		return
	}

	ctx := r.Context()
	stepDuration := time.Duration(params.step) * time.Second

	// The first frame goes out immediately; later ones follow the ticker.
	if !h.sendFrame(ctx, c, params, 0) {
		return
	}

	ticker := time.NewTicker(stepDuration)
	defer ticker.Stop()

	keepaliveTicker := time.NewTicker(h.config.KeepaliveInterval)
	defer keepaliveTicker.Stop()

	for {
		select {
		case <-ctx.Done():
			return

		case t := <-ticker.C:
			if !h.sendFrame(ctx, c, params, t.Sub(startTime)) {
				return
			}
			keepaliveTicker.Reset(h.config.KeepaliveInterval)

		case <-keepaliveTicker.C:
			if err := c.sendKeepalive(); err != nil {
				metrics.IncStreamErrors("send_error")
				h.logger.Warn("stream keepalive error", "remote_ip", ip, "error", err)
				return
			}
		}
	}
}

// sendFrame computes and sends the state at the simulated time reached after
// elapsed wall time. It reports whether the stream should continue.
func (h *Handler) sendFrame(ctx context.Context, c *client, p streamParams, elapsed time.Duration) bool {
	simTime := p.start.Add(time.Duration(float64(elapsed) * p.speed))
	state, err := h.src.SolarSystemState(ctx, simTime, p.obs)
	if err != nil {
		if ctx.Err() != nil {
			return false
		}
		metrics.IncStreamErrors("compute_error")
		h.logger.Warn("stream frame failed", "remote_ip", c.ip, "error", err)
		return true
	}

	if err := c.sendJSON(buildStateMessage(state)); err != nil {
		metrics.IncStreamErrors("send_error")
		h.logger.Warn("stream send error", "remote_ip", c.ip, "error", err)
		return false
	}
	return true
}

// buildStateMessage formats a state into the SSE frame payload.
func buildStateMessage(s *position.State) stateMessage {
	return stateMessage{
		Type:  "state",
		T:     s.Time.UTC().Format(time.RFC3339),
		JD:    s.JD,
		State: s,
	}
}

// SSE message payload types.

type metadataMessage struct {
	Type          string  `json:"type"`
	Provider      string  `json:"provider"`
	CatalogSource string  `json:"catalog_source"`
	CatalogAge    int     `json:"catalog_age_seconds"`
	Step          int     `json:"step"`
	Speed         float64 `json:"speed"`
}

type stateMessage struct {
	Type  string          `json:"type"`
	T     string          `json:"t"`
	JD    float64         `json:"jd"`
	State *position.State `json:"state"`
}

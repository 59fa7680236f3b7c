package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/star/orrery/internal/catalog"
	"github.com/star/orrery/internal/engine"
	"github.com/star/orrery/internal/ephemeris"
	"github.com/star/orrery/internal/orbit"
	"github.com/star/orrery/internal/position"
	"github.com/star/orrery/internal/transform"
	"github.com/star/orrery/internal/visibility"
)

// Visibility request bounds.
const (
	defaultVisibilityHours = 24.0
	maxVisibilityHours     = 168.0
)

// errBadRequest marks client input errors.
var errBadRequest = errors.New("bad request")

func badRequestf(format string, args ...any) error {
	return fmt.Errorf("%w: %s", errBadRequest, fmt.Sprintf(format, args...))
}

type handlers struct {
	engine *engine.Engine
	reload func(ctx context.Context) (*catalog.Catalog, error)
	logger *slog.Logger
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

// statusFor maps an error to its HTTP status.
func statusFor(err error) int {
	switch {
	case errors.Is(err, errBadRequest):
		return http.StatusBadRequest
	case errors.Is(err, catalog.ErrUnknownBody):
		return http.StatusNotFound
	case errors.Is(err, ephemeris.ErrProviderUnavailable), errors.Is(err, engine.ErrNotReady):
		return http.StatusServiceUnavailable
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}

func (h *handlers) writeError(w http.ResponseWriter, r *http.Request, err error) {
	status := statusFor(err)
	if status == http.StatusInternalServerError {
		h.logger.Error("request failed",
			"path", r.URL.Path,
			"request_id", RequestID(r.Context()),
			"error", err,
		)
	}
	writeJSON(w, status, map[string]string{"error": err.Error()})
}

// parseTime reads t (RFC3339), defaulting to now.
func parseTime(q url.Values) (time.Time, error) {
	v := q.Get("t")
	if v == "" {
		return time.Now().UTC(), nil
	}
	t, err := time.Parse(time.RFC3339, v)
	if err != nil {
		return time.Time{}, badRequestf("invalid t parameter, must be RFC3339")
	}
	return t.UTC(), nil
}

// parseObserver reads lat, lon and elev. It returns nil when neither lat nor
// lon is given.
func parseObserver(q url.Values) (*transform.Observer, error) {
	lat, lon := q.Get("lat"), q.Get("lon")
	if lat == "" && lon == "" {
		return nil, nil
	}
	if lat == "" || lon == "" {
		return nil, badRequestf("lat and lon must be given together")
	}
	la, err := strconv.ParseFloat(lat, 64)
	if err != nil || la < -90 || la > 90 {
		return nil, badRequestf("invalid lat parameter, must be within [-90, 90]")
	}
	lo, err := strconv.ParseFloat(lon, 64)
	if err != nil || lo < -180 || lo > 180 {
		return nil, badRequestf("invalid lon parameter, must be within [-180, 180]")
	}
	obs := &transform.Observer{Latitude: la, Longitude: lo}
	if v := q.Get("elev"); v != "" {
		el, err := strconv.ParseFloat(v, 64)
		if err != nil || el < -500 || el > 10000 {
			return nil, badRequestf("invalid elev parameter, must be within [-500, 10000] metres")
		}
		obs.Elevation = el
	}
	return obs, nil
}

func parseTimeAndObserver(r *http.Request) (time.Time, *transform.Observer, error) {
	q := r.URL.Query()
	t, err := parseTime(q)
	if err != nil {
		return time.Time{}, nil, err
	}
	obs, err := parseObserver(q)
	if err != nil {
		return time.Time{}, nil, err
	}
	return t, obs, nil
}

func parseFloatParam(q url.Values, name string, def, min, max float64) (float64, error) {
	v := q.Get(name)
	if v == "" {
		return def, nil
	}
	f, err := strconv.ParseFloat(v, 64)
	if err != nil || f < min || f > max {
		return 0, badRequestf("invalid %s parameter, must be within [%g, %g]", name, min, max)
	}
	return f, nil
}

type batchResponse struct {
	Time      time.Time                                 `json:"time"`
	Positions map[catalog.Body]*position.PlanetPosition `json:"positions"`
	Errors    map[catalog.Body]string                   `json:"errors,omitempty"`
}

// GET /api/v1/planets
func (h *handlers) planets(w http.ResponseWriter, r *http.Request) {
	t, obs, err := parseTimeAndObserver(r)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	batch, err := h.engine.AllPlanetPositions(r.Context(), t, obs)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, batchResponse{
		Time:      t,
		Positions: batch.Positions,
		Errors:    batch.ErrorStrings(),
	})
}

// GET /api/v1/planets/{body}
func (h *handlers) planet(w http.ResponseWriter, r *http.Request) {
	body, err := catalog.ParseBody(r.PathValue("body"))
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	t, obs, err := parseTimeAndObserver(r)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	rec, err := h.engine.PlanetPosition(r.Context(), body, t, obs)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, rec)
}

// GET /api/v1/sun
func (h *handlers) sun(w http.ResponseWriter, r *http.Request) {
	t, obs, err := parseTimeAndObserver(r)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	rec, err := h.engine.SunPosition(r.Context(), t, obs)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, rec)
}

// GET /api/v1/moon
func (h *handlers) moon(w http.ResponseWriter, r *http.Request) {
	t, obs, err := parseTimeAndObserver(r)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	rec, err := h.engine.MoonPosition(r.Context(), t, obs)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, rec)
}

// GET /api/v1/state
func (h *handlers) state(w http.ResponseWriter, r *http.Request) {
	t, obs, err := parseTimeAndObserver(r)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	st, err := h.engine.SolarSystemState(r.Context(), t, obs)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, st)
}

// GET /api/v1/orbit/{body}?n=
func (h *handlers) orbit(w http.ResponseWriter, r *http.Request) {
	body, err := catalog.ParseBody(r.PathValue("body"))
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	q := r.URL.Query()
	t, err := parseTime(q)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	n := position.DefaultOrbitSamples
	if v := q.Get("n"); v != "" {
		n, err = strconv.Atoi(v)
		if err != nil || n < 2 || n > position.MaxOrbitSamples {
			h.writeError(w, r, badRequestf("invalid n parameter, must be 2-%d", position.MaxOrbitSamples))
			return
		}
	}
	points, err := h.engine.OrbitPath(r.Context(), body, t, n)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"body":   body,
		"points": points,
	})
}

// GET /api/v1/time?t= or ?jd=
func (h *handlers) time(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	var t time.Time
	if v := q.Get("jd"); v != "" {
		jd, err := strconv.ParseFloat(v, 64)
		if err != nil || jd < 0 || jd > 5373484 {
			h.writeError(w, r, badRequestf("invalid jd parameter"))
			return
		}
		t = h.engine.JDToDate(jd)
	} else {
		var err error
		if t, err = parseTime(q); err != nil {
			h.writeError(w, r, err)
			return
		}
	}
	writeJSON(w, http.StatusOK, h.engine.Times(t))
}

type visibilityResponse struct {
	Observer     transform.Observer          `json:"observer"`
	Start        time.Time                   `json:"start"`
	HorizonHours float64                     `json:"horizon_hours"`
	MinAltitude  float64                     `json:"min_altitude"`
	Bodies       []visibility.BodyVisibility `json:"bodies"`
}

// GET /api/v1/visibility?lat=&lon=&hours=&min_alt=&bodies=
func (h *handlers) visibility(w http.ResponseWriter, r *http.Request) {
	t, obs, err := parseTimeAndObserver(r)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	if obs == nil {
		obs = h.engine.DefaultObserver()
	}
	if obs == nil {
		h.writeError(w, r, badRequestf("lat and lon are required when no default observer is configured"))
		return
	}

	q := r.URL.Query()
	hours, err := parseFloatParam(q, "hours", defaultVisibilityHours, 0.5, maxVisibilityHours)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	minAlt, err := parseFloatParam(q, "min_alt", 0, -90, 90)
	if err != nil {
		h.writeError(w, r, err)
		return
	}

	var bodies []catalog.Body
	if v := q.Get("bodies"); v != "" {
		for _, name := range strings.Split(v, ",") {
			b, err := catalog.ParseBody(name)
			if err != nil {
				h.writeError(w, r, badRequestf("%v", err))
				return
			}
			if b == catalog.Earth {
				h.writeError(w, r, badRequestf("earth has no visibility from its own surface"))
				return
			}
			bodies = append(bodies, b)
		}
	}

	// Fail fast rather than report the same init error for every body.
	if err := h.engine.Initialize(r.Context()); err != nil {
		h.writeError(w, r, err)
		return
	}

	results := visibility.Predict(r.Context(), h.engine, visibility.Request{
		Observer:     *obs,
		Bodies:       bodies,
		Start:        t,
		HorizonHours: hours,
		MinAltitude:  minAlt,
	})
	writeJSON(w, http.StatusOK, visibilityResponse{
		Observer:     *obs,
		Start:        t,
		HorizonHours: hours,
		MinAltitude:  minAlt,
		Bodies:       results,
	})
}

// GET /api/v1/cache/stats
func (h *handlers) cacheStats(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, h.engine.CacheStats())
}

// POST /api/v1/cache/clear
func (h *handlers) cacheClear(w http.ResponseWriter, r *http.Request) {
	before := h.engine.CacheStats().Total.Size
	h.engine.ClearCache()
	h.logger.Info("cache cleared", "entries", before, "request_id", RequestID(r.Context()))
	writeJSON(w, http.StatusOK, map[string]int{"cleared": before})
}

type catalogResponse struct {
	Source     string                          `json:"source"`
	LoadedAt   time.Time                       `json:"loaded_at"`
	AgeSeconds float64                         `json:"age_seconds"`
	Provider   string                          `json:"provider"`
	Elements   map[catalog.Body]orbit.Elements `json:"elements"`
}

func (h *handlers) catalogView() catalogResponse {
	c := h.engine.Catalog()
	elements := make(map[catalog.Body]orbit.Elements)
	for _, b := range c.Bodies() {
		if el, err := c.Elements(b); err == nil {
			elements[b] = el
		}
	}
	return catalogResponse{
		Source:     c.Source,
		LoadedAt:   c.LoadedAt,
		AgeSeconds: h.engine.CatalogAge(),
		Provider:   h.engine.ProviderName(),
		Elements:   elements,
	}
}

// GET /api/v1/catalog
func (h *handlers) catalog(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, h.catalogView())
}

// POST /api/v1/catalog/reload
func (h *handlers) catalogReload(w http.ResponseWriter, r *http.Request) {
	if h.reload == nil {
		writeJSON(w, http.StatusNotImplemented, map[string]string{"error": "no catalog source configured"})
		return
	}
	c, err := h.reload(r.Context())
	if err != nil {
		h.logger.Warn("catalog reload failed", "error", err, "request_id", RequestID(r.Context()))
		writeJSON(w, http.StatusBadGateway, map[string]string{"error": err.Error()})
		return
	}
	h.engine.ReloadCatalog(c)
	writeJSON(w, http.StatusOK, h.catalogView())
}

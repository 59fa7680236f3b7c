// Package position composes full position records for the Sun, Moon and
// planets from an ephemeris provider, and caches them.
//
// Cached records never carry observer-dependent fields. Horizontal
// coordinates and topocentric look angles are added to a copy on the way out,
// so a record cached for one observer is never served to another and a
// cache entry keeps the timestamp of its original computation.
package position

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math"
	"runtime"
	"sync"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"golang.org/x/sync/errgroup"
	"golang.org/x/sync/singleflight"
	"gonum.org/v1/gonum/spatial/r3"

	"github.com/star/orrery/internal/cache"
	"github.com/star/orrery/internal/catalog"
	"github.com/star/orrery/internal/ephemeris"
	"github.com/star/orrery/internal/lunar"
	"github.com/star/orrery/internal/metrics"
	"github.com/star/orrery/internal/orbit"
	"github.com/star/orrery/internal/timescale"
	"github.com/star/orrery/internal/transform"
)

// Orbit path sample bounds.
const (
	DefaultOrbitSamples = 120
	MaxOrbitSamples     = 720
)

var tracer = otel.Tracer("github.com/star/orrery/internal/position")

// Config controls what the service computes and how it caches.
type Config struct {
	Cache               cache.Config
	IncludeOuterPlanets bool
	CalculateGeocentric bool
	AllowKeplerFallback bool
	KeyPrecision        int     // decimal places of JDE in cache keys
	DisplayScale        float64 // log-radius multiplier for Display vectors
	Concurrency         int     // parallel bodies in a batch; 0 means NumCPU
}

// DefaultConfig returns the standard service configuration.
func DefaultConfig() Config {
	return Config{
		Cache:               cache.DefaultConfig(),
		IncludeOuterPlanets: true,
		CalculateGeocentric: true,
		KeyPrecision:        cache.DefaultKeyPrecision,
		DisplayScale:        orbit.DefaultDisplayScale,
	}
}

// Option configures a Service.
type Option func(*Service)

// WithFallback sets the provider used when the primary reports
// ephemeris.ErrProviderUnavailable. It is only consulted when
// Config.AllowKeplerFallback is set.
func WithFallback(p ephemeris.Provider) Option {
	return func(s *Service) { s.fallback = p }
}

// WithCatalog sets the element catalog used for orbit periods.
func WithCatalog(store *catalog.Store) Option {
	return func(s *Service) { s.catalog = store }
}

// WithConverter sets the UTC to JDE converter.
func WithConverter(c timescale.Converter) Option {
	return func(s *Service) { s.conv = c }
}

// WithLogger sets the service logger.
func WithLogger(l *slog.Logger) Option {
	return func(s *Service) { s.logger = l }
}

// WithClock overrides the clock used for record timestamps and cache TTLs.
func WithClock(now func() time.Time) Option {
	return func(s *Service) { s.now = now }
}

// Service computes and caches positions. It is safe for concurrent use.
type Service struct {
	cfg      Config
	primary  ephemeris.Provider
	fallback ephemeris.Provider
	catalog  *catalog.Store
	conv     timescale.Converter
	logger   *slog.Logger
	now      func() time.Time

	planets *cache.LRU[string, *PlanetPosition]
	sun     *cache.LRU[string, *SunPosition]
	moon    *cache.LRU[string, *MoonPosition]

	flight singleflight.Group
}

// New creates a Service over the primary provider.
func New(cfg Config, primary ephemeris.Provider, opts ...Option) *Service {
	s := &Service{
		cfg:     cfg,
		primary: primary,
		conv:    timescale.NewConverter(nil),
		logger:  slog.Default(),
		now:     time.Now,
	}
	for _, o := range opts {
		o(s)
	}
	if s.catalog == nil {
		s.catalog = catalog.NewStore(nil)
	}
	if s.cfg.KeyPrecision <= 0 {
		s.cfg.KeyPrecision = cache.DefaultKeyPrecision
	}
	if s.cfg.DisplayScale <= 0 {
		s.cfg.DisplayScale = orbit.DefaultDisplayScale
	}
	if s.cfg.Concurrency <= 0 {
		s.cfg.Concurrency = runtime.NumCPU()
	}

	clock := cache.WithClock(s.now)
	s.planets = cache.NewLRU[string, *PlanetPosition](cfg.Cache, clock, cache.WithMetrics(metrics.NewCacheMetrics("planet")))
	s.sun = cache.NewLRU[string, *SunPosition](cfg.Cache, clock, cache.WithMetrics(metrics.NewCacheMetrics("sun")))
	s.moon = cache.NewLRU[string, *MoonPosition](cfg.Cache, clock, cache.WithMetrics(metrics.NewCacheMetrics("moon")))

	s.logger.Info("position service initialized",
		"provider", primary.Name(),
		"fallback_enabled", s.cfg.AllowKeplerFallback && s.fallback != nil,
		"cache_enabled", cfg.Cache.Enabled,
		"cache_max_entries", cfg.Cache.MaxEntries,
		"cache_ttl_seconds", cfg.Cache.TTL.Seconds(),
	)
	return s
}

// Config returns the effective configuration.
func (s *Service) Config() Config { return s.cfg }

// Times returns the JD and JDE of a UTC instant.
func (s *Service) Times(t time.Time) (jd, jde float64) {
	jd = timescale.TimeToJD(t)
	return jd, s.conv.JDE(jd)
}

// withProvider runs fn against the primary provider and, when the primary is
// unavailable and fallback is allowed, once more against the fallback.
func (s *Service) withProvider(kind string, fn func(ephemeris.Provider) error) error {
	err := fn(s.primary)
	if err == nil || !errors.Is(err, ephemeris.ErrProviderUnavailable) {
		return err
	}
	if !s.cfg.AllowKeplerFallback || s.fallback == nil {
		return err
	}
	s.logger.Warn("precision downgrade",
		"kind", kind,
		"primary", s.primary.Name(),
		"fallback", s.fallback.Name(),
		"error", err,
	)
	metrics.IncProviderFallback(kind)
	return fn(s.fallback)
}

// cached serves key from c, computing and storing it on a miss. Concurrent
// misses on one key share a single computation. The computation keeps the
// first caller's values but not its cancellation; each caller stops waiting
// when its own ctx ends.
func cached[V any](ctx context.Context, s *Service, c *cache.LRU[string, V], kind, key string,
	compute func(ctx context.Context) (V, string, error)) (V, error) {
	var zero V
	if v, ok := c.Get(key); ok {
		return v, nil
	}

	detached := context.WithoutCancel(ctx)
	ch := s.flight.DoChan(key, func() (any, error) {
		ctx, span := tracer.Start(detached, "position."+kind, trace.WithAttributes(attribute.String("cache.key", key)))
		defer span.End()

		start := time.Now()
		v, source, err := compute(ctx)
		if err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, err.Error())
			metrics.IncComputeErrors(kind)
			return nil, err
		}
		span.SetAttributes(attribute.String("provider", source))
		metrics.ObserveCompute(kind, source, time.Since(start))
		c.Set(key, v)
		return v, nil
	})

	select {
	case res := <-ch:
		if res.Err != nil {
			return zero, res.Err
		}
		return res.Val.(V), nil
	case <-ctx.Done():
		return zero, ctx.Err()
	}
}

// Planet returns the position of a planet at t. obs may be nil.
func (s *Service) Planet(ctx context.Context, body catalog.Body, t time.Time, obs *transform.Observer) (*PlanetPosition, error) {
	if !body.IsPlanet() {
		return nil, fmt.Errorf("%w: %q is not a planet", catalog.ErrUnknownBody, body)
	}
	jd, jde := s.Times(t)
	key := cache.PlanetKey(string(body), jde, s.cfg.KeyPrecision)

	rec, err := cached(ctx, s, s.planets, "planet", key, func(ctx context.Context) (*PlanetPosition, string, error) {
		r, err := s.computePlanet(ctx, body, jd, jde, s.cfg.CalculateGeocentric)
		if err != nil {
			return nil, "", err
		}
		return r, r.Source, nil
	})
	if err != nil {
		return nil, err
	}
	return s.observePlanet(ctx, rec, obs)
}

func (s *Service) computePlanet(ctx context.Context, body catalog.Body, jd, jde float64, geocentric bool) (*PlanetPosition, error) {
	var rec *PlanetPosition
	err := s.withProvider("planet", func(p ephemeris.Provider) error {
		helio, err := p.HeliocentricPosition(ctx, body, jde)
		if err != nil {
			return fmt.Errorf("heliocentric %s: %w", body, err)
		}
		cart := transform.EclipticToCartesian(helio.Position)
		r := &PlanetPosition{
			ID:           body,
			Heliocentric: helio.Position,
			Cartesian:    vectorOf(cart),
			Display:      vectorOf(orbit.DisplayScale(cart, s.cfg.DisplayScale)),
			JD:           jd,
			JDE:          jde,
			Source:       p.Name(),
			Converged:    helio.Converged,
			Timestamp:    s.now(),
		}

		if geocentric && body != catalog.Earth {
			earth, err := p.HeliocentricPosition(ctx, catalog.Earth, jde)
			if err != nil {
				return fmt.Errorf("heliocentric earth: %w", err)
			}
			eps, err := p.TrueObliquity(ctx, jde)
			if err != nil {
				return fmt.Errorf("obliquity: %w", err)
			}
			geo := transform.CartesianToEcliptic(r3.Sub(cart, transform.EclipticToCartesian(earth.Position)))
			eq := transform.EclipticToEquatorial(geo, eps)
			r.Geocentric = &geo
			r.Equatorial = &eq
			r.Converged = r.Converged && earth.Converged
		}
		rec = r
		return nil
	})
	return rec, err
}

// observePlanet returns rec with horizontal coordinates for obs added to a
// copy. rec itself is never modified.
func (s *Service) observePlanet(ctx context.Context, rec *PlanetPosition, obs *transform.Observer) (*PlanetPosition, error) {
	if obs == nil || rec.Equatorial == nil {
		return rec, nil
	}
	gst, err := s.siderealTime(ctx, rec.JD)
	if err != nil {
		return nil, err
	}
	h := horizontal(*rec.Equatorial, gst, *obs)
	out := *rec
	out.Horizontal = &h
	return &out, nil
}

// AllPlanets returns every configured planet at t. Bodies are computed
// concurrently and a failure for one body does not affect the others.
func (s *Service) AllPlanets(ctx context.Context, t time.Time, obs *transform.Observer) Batch {
	return s.Planets(ctx, catalog.Planets(s.cfg.IncludeOuterPlanets), t, obs)
}

// Planets returns the listed bodies at t, isolating per-body failures.
func (s *Service) Planets(ctx context.Context, bodies []catalog.Body, t time.Time, obs *transform.Observer) Batch {
	out := Batch{
		Positions: make(map[catalog.Body]*PlanetPosition, len(bodies)),
		Errors:    make(map[catalog.Body]error),
	}
	var (
		mu sync.Mutex
		g  errgroup.Group
	)
	g.SetLimit(s.cfg.Concurrency)

	for _, body := range bodies {
		g.Go(func() error {
			rec, err := s.Planet(ctx, body, t, obs)
			mu.Lock()
			defer mu.Unlock()
			if err != nil {
				s.logger.Warn("planet position failed", "body", string(body), "error", err)
				out.Errors[body] = err
				return nil
			}
			out.Positions[body] = rec
			return nil
		})
	}
	_ = g.Wait()
	return out
}

// Sun returns the Sun's geocentric position at t. obs may be nil.
func (s *Service) Sun(ctx context.Context, t time.Time, obs *transform.Observer) (*SunPosition, error) {
	jd, jde := s.Times(t)
	key := cache.SunKey(jde, s.cfg.KeyPrecision)

	rec, err := cached(ctx, s, s.sun, "sun", key, func(ctx context.Context) (*SunPosition, string, error) {
		r, err := s.computeSun(ctx, jd, jde)
		if err != nil {
			return nil, "", err
		}
		return r, r.Source, nil
	})
	if err != nil {
		return nil, err
	}
	if obs == nil {
		return rec, nil
	}

	gst, err := s.siderealTime(ctx, jd)
	if err != nil {
		return nil, err
	}
	h := horizontal(rec.Equatorial, gst, *obs)
	out := *rec
	out.Horizontal = &h
	return &out, nil
}

func (s *Service) computeSun(ctx context.Context, jd, jde float64) (*SunPosition, error) {
	var rec *SunPosition
	err := s.withProvider("sun", func(p ephemeris.Provider) error {
		earth, err := p.HeliocentricPosition(ctx, catalog.Earth, jde)
		if err != nil {
			return fmt.Errorf("heliocentric earth: %w", err)
		}
		eps, err := p.TrueObliquity(ctx, jde)
		if err != nil {
			return fmt.Errorf("obliquity: %w", err)
		}
		cart := r3.Scale(-1, transform.EclipticToCartesian(earth.Position))
		geo := transform.CartesianToEcliptic(cart)
		rec = &SunPosition{
			Geocentric: geo,
			Equatorial: transform.EclipticToEquatorial(geo, eps),
			Cartesian:  vectorOf(cart),
			JD:         jd,
			JDE:        jde,
			Source:     p.Name(),
			Converged:  earth.Converged,
			Timestamp:  s.now(),
		}
		return nil
	})
	return rec, err
}

// Moon returns the Moon's geocentric position and phase at t. With an
// observer it also carries horizontal coordinates and topocentric look
// angles, which include the Moon's parallax.
func (s *Service) Moon(ctx context.Context, t time.Time, obs *transform.Observer) (*MoonPosition, error) {
	jd, jde := s.Times(t)
	key := cache.MoonKey(jde, s.cfg.KeyPrecision)

	rec, err := cached(ctx, s, s.moon, "moon", key, func(ctx context.Context) (*MoonPosition, string, error) {
		r, err := s.computeMoon(ctx, jd, jde)
		if err != nil {
			return nil, "", err
		}
		return r, r.Source, nil
	})
	if err != nil {
		return nil, err
	}
	if obs == nil {
		return rec, nil
	}

	gst, err := s.siderealTime(ctx, jd)
	if err != nil {
		return nil, err
	}
	h := horizontal(rec.Equatorial, gst, *obs)
	la := transform.TopocentricLookAngles(rec.Equatorial, gst, transform.ObserverPositionOf(*obs))
	out := *rec
	out.Horizontal = &h
	out.Topocentric = &la
	return &out, nil
}

func (s *Service) computeMoon(ctx context.Context, jd, jde float64) (*MoonPosition, error) {
	var rec *MoonPosition
	err := s.withProvider("moon", func(p ephemeris.Provider) error {
		m, err := p.GeocentricMoonPosition(ctx, jde)
		if err != nil {
			return fmt.Errorf("geocentric moon: %w", err)
		}
		if m.Position.Range <= 0 {
			return fmt.Errorf("geocentric moon: %w", orbit.ErrDegenerateOrbit)
		}
		earth, err := p.HeliocentricPosition(ctx, catalog.Earth, jde)
		if err != nil {
			return fmt.Errorf("heliocentric earth: %w", err)
		}
		eps, err := p.TrueObliquity(ctx, jde)
		if err != nil {
			return fmt.Errorf("obliquity: %w", err)
		}

		sunGeo := transform.CartesianToEcliptic(r3.Scale(-1, transform.EclipticToCartesian(earth.Position)))
		rec = &MoonPosition{
			Geocentric: m.Position,
			Equatorial: transform.EclipticToEquatorial(m.Position, eps),
			DistanceKm: m.Position.Range,
			Parallax:   math.Asin(math.Min(1, EarthEquatorRadius/m.Position.Range)),
			Phase:      lunar.Compute(sunGeo, m.Position, jde),
			Cartesian:  vectorOf(r3.Scale(1/EarthRadiusKm, transform.EclipticToCartesian(m.Position))),
			JD:         jd,
			JDE:        jde,
			Source:     p.Name(),
			Converged:  m.Converged && earth.Converged,
			Timestamp:  s.now(),
		}
		return nil
	})
	return rec, err
}

// State returns the Sun, Moon and configured planets at t. Sun and Moon
// failures fail the call; planet failures are reported in State.Errors.
func (s *Service) State(ctx context.Context, t time.Time, obs *transform.Observer) (*State, error) {
	jd, jde := s.Times(t)
	st := &State{Time: t.UTC(), JD: jd, JDE: jde}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		sun, err := s.Sun(gctx, t, obs)
		if err != nil {
			return fmt.Errorf("sun: %w", err)
		}
		st.Sun = sun
		return nil
	})
	g.Go(func() error {
		moon, err := s.Moon(gctx, t, obs)
		if err != nil {
			return fmt.Errorf("moon: %w", err)
		}
		st.Moon = moon
		return nil
	})
	var batch Batch
	g.Go(func() error {
		batch = s.AllPlanets(gctx, t, obs)
		return nil
	})
	if err := g.Wait(); err != nil {
		return nil, err
	}

	st.Planets = batch.Positions
	st.Errors = batch.ErrorStrings()
	return st, nil
}

// OrbitPath samples n heliocentric positions of a planet over one orbital
// period starting at t. n is clamped to [1, MaxOrbitSamples]; zero selects
// DefaultOrbitSamples.
func (s *Service) OrbitPath(ctx context.Context, body catalog.Body, t time.Time, n int) ([]OrbitPoint, error) {
	if !body.IsPlanet() {
		return nil, fmt.Errorf("%w: %q is not a planet", catalog.ErrUnknownBody, body)
	}
	el, err := s.catalog.Get().Elements(body)
	if err != nil {
		return nil, err
	}
	switch {
	case n <= 0:
		n = DefaultOrbitSamples
	case n > MaxOrbitSamples:
		n = MaxOrbitSamples
	}

	ctx, span := tracer.Start(ctx, "position.orbit", trace.WithAttributes(
		attribute.String("body", string(body)),
		attribute.Int("samples", n),
	))
	defer span.End()

	_, jde0 := s.Times(t)
	var points []OrbitPoint
	err = s.withProvider("orbit", func(p ephemeris.Provider) error {
		points = make([]OrbitPoint, 0, n)
		for i := 0; i < n; i++ {
			if err := ctx.Err(); err != nil {
				return err
			}
			jde := jde0 + el.Period*float64(i)/float64(n)
			smp, err := p.HeliocentricPosition(ctx, body, jde)
			if err != nil {
				return fmt.Errorf("heliocentric %s: %w", body, err)
			}
			cart := transform.EclipticToCartesian(smp.Position)
			points = append(points, OrbitPoint{
				JDE:       jde,
				Cartesian: vectorOf(cart),
				Display:   vectorOf(orbit.DisplayScale(cart, s.cfg.DisplayScale)),
			})
		}
		return nil
	})
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return nil, err
	}
	return points, nil
}

// Warm computes and caches system states from start to start+horizon at
// step intervals. It returns the number of frames computed.
func (s *Service) Warm(ctx context.Context, start time.Time, horizon, step time.Duration) (int, error) {
	if step <= 0 {
		return 0, fmt.Errorf("warm: step must be positive, got %s", step)
	}
	began := time.Now()
	end := start.Add(horizon)
	frames := 0
	for t := start; !t.After(end); t = t.Add(step) {
		if err := ctx.Err(); err != nil {
			return frames, err
		}
		if _, err := s.State(ctx, t, nil); err != nil {
			s.logger.Warn("cache warmup frame failed", "time", t.UTC().Format(time.RFC3339), "error", err)
			continue
		}
		frames++
	}
	s.logger.Info("cache warmed",
		"frames", frames,
		"horizon_seconds", horizon.Seconds(),
		"step_seconds", step.Seconds(),
		"duration_ms", time.Since(began).Milliseconds(),
	)
	return frames, nil
}

// Horizontal returns body's horizontal coordinates for obs at t without
// reading or filling the caches, so long scans do not evict animation
// frames. The Moon's coordinates are topocentric.
func (s *Service) Horizontal(ctx context.Context, body catalog.Body, t time.Time, obs transform.Observer) (transform.Horizontal, error) {
	jd, jde := s.Times(t)
	gst, err := s.siderealTime(ctx, jd)
	if err != nil {
		return transform.Horizontal{}, err
	}

	switch {
	case body == catalog.Sun:
		r, err := s.computeSun(ctx, jd, jde)
		if err != nil {
			return transform.Horizontal{}, err
		}
		return horizontal(r.Equatorial, gst, obs), nil
	case body == catalog.Moon:
		r, err := s.computeMoon(ctx, jd, jde)
		if err != nil {
			return transform.Horizontal{}, err
		}
		la := transform.TopocentricLookAngles(r.Equatorial, gst, transform.ObserverPositionOf(obs))
		return transform.Horizontal{Altitude: la.Elevation, Azimuth: la.Azimuth}, nil
	case body.IsPlanet() && body != catalog.Earth:
		r, err := s.computePlanet(ctx, body, jd, jde, true)
		if err != nil {
			return transform.Horizontal{}, err
		}
		return horizontal(*r.Equatorial, gst, obs), nil
	}
	return transform.Horizontal{}, fmt.Errorf("%w: no horizontal position for %q", catalog.ErrUnknownBody, body)
}

// EclipticToEquatorial converts ecl using the provider's obliquity at jde.
func (s *Service) EclipticToEquatorial(ctx context.Context, ecl transform.Ecliptic, jde float64) (transform.Equatorial, error) {
	var eps float64
	err := s.withProvider("obliquity", func(p ephemeris.Provider) error {
		var err error
		eps, err = p.TrueObliquity(ctx, jde)
		return err
	})
	if err != nil {
		return transform.Equatorial{}, fmt.Errorf("obliquity: %w", err)
	}
	return transform.EclipticToEquatorial(ecl, eps), nil
}

// EquatorialToHorizontal converts eq for obs at UT Julian Date jd.
func (s *Service) EquatorialToHorizontal(ctx context.Context, eq transform.Equatorial, jd float64, obs transform.Observer) (transform.Horizontal, error) {
	gst, err := s.siderealTime(ctx, jd)
	if err != nil {
		return transform.Horizontal{}, err
	}
	return horizontal(eq, gst, obs), nil
}

// siderealTime returns Greenwich sidereal time in radians.
func (s *Service) siderealTime(ctx context.Context, jd float64) (float64, error) {
	var gst float64
	err := s.withProvider("sidereal", func(p ephemeris.Provider) error {
		var err error
		gst, err = p.ApparentSiderealTime(ctx, jd)
		return err
	})
	if err != nil {
		return 0, fmt.Errorf("sidereal time: %w", err)
	}
	return gst, nil
}

func horizontal(eq transform.Equatorial, gstRad float64, obs transform.Observer) transform.Horizontal {
	lst := transform.LocalSiderealTime(transform.RadiansToHours(gstRad), obs.Longitude)
	return transform.EquatorialToHorizontal(eq, lst, obs)
}

// ClearCache empties every cache and resets their counters.
func (s *Service) ClearCache() {
	s.planets.Clear()
	s.sun.Clear()
	s.moon.Clear()
	s.logger.Info("position caches cleared")
}

// CacheStats returns per-cache and aggregated statistics.
func (s *Service) CacheStats() CacheStats {
	st := CacheStats{
		Planets: s.planets.Stats(),
		Sun:     s.sun.Stats(),
		Moon:    s.moon.Stats(),
	}
	st.Total = st.Planets.Add(st.Sun).Add(st.Moon)
	return st
}

// PruneCache removes expired entries from every cache and returns the count.
func (s *Service) PruneCache() int {
	return s.planets.Prune() + s.sun.Prune() + s.moon.Prune()
}

// Pruners exposes the caches to a cache.Janitor.
func (s *Service) Pruners() map[string]cache.Pruner {
	return map[string]cache.Pruner{
		"planet": s.planets,
		"sun":    s.sun,
		"moon":   s.moon,
	}
}

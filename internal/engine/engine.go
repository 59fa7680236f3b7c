// Package engine is the public handle over the position service. It owns
// provider initialization and makes every position call wait for it.
package engine

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/star/orrery/internal/catalog"
	"github.com/star/orrery/internal/ephemeris"
	"github.com/star/orrery/internal/metrics"
	"github.com/star/orrery/internal/position"
	"github.com/star/orrery/internal/timescale"
	"github.com/star/orrery/internal/transform"
)

// ErrNotReady is returned by calls that refuse to wait for initialization.
var ErrNotReady = errors.New("engine not ready")

// State is the initialization state of an Engine.
type State int

const (
	Uninitialized State = iota
	Initializing
	Ready
)

func (s State) String() string {
	switch s {
	case Uninitialized:
		return "uninitialized"
	case Initializing:
		return "initializing"
	case Ready:
		return "ready"
	}
	return fmt.Sprintf("State(%d)", int(s))
}

// Config configures an Engine. Observer, when set, is used by calls that do
// not pass their own.
type Config struct {
	Position position.Config
	Observer *transform.Observer
}

// DefaultConfig returns the default engine configuration.
func DefaultConfig() Config {
	return Config{Position: position.DefaultConfig()}
}

// Option configures an Engine.
type Option func(*options)

type options struct {
	fallback ephemeris.Provider
	store    *catalog.Store
	conv     timescale.Converter
	convSet  bool
	logger   *slog.Logger
	clock    func() time.Time
}

// WithFallback sets the Kepler fallback provider.
func WithFallback(p ephemeris.Provider) Option {
	return func(o *options) { o.fallback = p }
}

// WithCatalog sets the element catalog store.
func WithCatalog(s *catalog.Store) Option {
	return func(o *options) { o.store = s }
}

// WithConverter sets the time scale converter.
func WithConverter(c timescale.Converter) Option {
	return func(o *options) { o.conv, o.convSet = c, true }
}

// WithLogger sets the logger.
func WithLogger(l *slog.Logger) Option {
	return func(o *options) { o.logger = l }
}

// WithClock overrides the clock used for timestamps and cache TTLs.
func WithClock(now func() time.Time) Option {
	return func(o *options) { o.clock = now }
}

// attempt is one initialization run. done is closed when err is final.
type attempt struct {
	done chan struct{}
	err  error
}

// Engine is an explicit, caller-owned handle. It is safe for concurrent use.
type Engine struct {
	cfg      Config
	provider ephemeris.Provider
	fallback ephemeris.Provider
	store    *catalog.Store
	conv     timescale.Converter
	logger   *slog.Logger
	svc      *position.Service

	mu      sync.Mutex
	state   State
	current *attempt
}

// New creates an Engine over provider. No provider work happens until
// Initialize or the first position call.
func New(cfg Config, provider ephemeris.Provider, opts ...Option) *Engine {
	o := options{logger: slog.Default()}
	for _, opt := range opts {
		opt(&o)
	}
	if o.store == nil {
		o.store = catalog.NewStore(nil)
	}
	if !o.convSet {
		o.conv = timescale.NewConverter(nil)
	}

	svcOpts := []position.Option{
		position.WithCatalog(o.store),
		position.WithConverter(o.conv),
		position.WithLogger(o.logger),
	}
	if o.fallback != nil {
		svcOpts = append(svcOpts, position.WithFallback(o.fallback))
	}
	if o.clock != nil {
		svcOpts = append(svcOpts, position.WithClock(o.clock))
	}

	metrics.SetEngineState(int(Uninitialized))
	return &Engine{
		cfg:      cfg,
		provider: provider,
		fallback: o.fallback,
		store:    o.store,
		conv:     o.conv,
		logger:   o.logger,
		svc:      position.New(cfg.Position, provider, svcOpts...),
	}
}

// State returns the current initialization state.
func (e *Engine) State() State {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.state
}

// Ready reports whether initialization has completed.
func (e *Engine) Ready() bool { return e.State() == Ready }

// CheckReady returns ErrNotReady unless initialization has completed. It
// never starts or waits for initialization.
func (e *Engine) CheckReady() error {
	if st := e.State(); st != Ready {
		return fmt.Errorf("%w: %s", ErrNotReady, st)
	}
	return nil
}

func (e *Engine) setState(s State) {
	e.state = s
	metrics.SetEngineState(int(s))
}

// Initialize loads the providers. Concurrent and repeated calls share one
// in-flight run; once Ready it returns immediately. A failed run returns the
// engine to Uninitialized so a later call retries. The run is detached from
// every caller's cancellation, including the caller that started it; each
// caller stops waiting when its own ctx ends.
func (e *Engine) Initialize(ctx context.Context) error {
	e.mu.Lock()
	switch e.state {
	case Ready:
		e.mu.Unlock()
		return nil
	case Initializing:
		a := e.current
		e.mu.Unlock()
		return wait(ctx, a)
	}
	a := &attempt{done: make(chan struct{})}
	e.current = a
	e.setState(Initializing)
	e.mu.Unlock()

	go e.run(context.WithoutCancel(ctx), a)
	return wait(ctx, a)
}

// run performs one initialization attempt and broadcasts its result.
func (e *Engine) run(ctx context.Context, a *attempt) {
	start := time.Now()
	e.logger.Info("engine initializing", "provider", e.provider.Name())
	err := e.load(ctx)

	e.mu.Lock()
	a.err = err
	if err != nil {
		e.setState(Uninitialized)
	} else {
		e.setState(Ready)
	}
	e.current = nil
	close(a.done)
	e.mu.Unlock()

	if err != nil {
		e.logger.Error("engine initialization failed", "error", err)
		return
	}
	e.logger.Info("engine ready", "duration_ms", time.Since(start).Milliseconds())
}

func wait(ctx context.Context, a *attempt) error {
	select {
	case <-a.done:
		return a.err
	case <-ctx.Done():
		return ctx.Err()
	}
}

// load prepares the primary provider, and the fallback when one is set. A
// primary that is unavailable is tolerated only when fallback is allowed and
// the fallback loads.
func (e *Engine) load(ctx context.Context) error {
	var fallbackErr error
	if e.fallback != nil {
		fallbackErr = e.fallback.Load(ctx)
		if fallbackErr != nil {
			e.logger.Warn("fallback provider failed to load", "provider", e.fallback.Name(), "error", fallbackErr)
		}
	}

	err := e.provider.Load(ctx)
	if err == nil {
		return nil
	}
	if errors.Is(err, ephemeris.ErrProviderUnavailable) &&
		e.cfg.Position.AllowKeplerFallback && e.fallback != nil && fallbackErr == nil {
		e.logger.Warn("primary provider unavailable, serving from fallback",
			"provider", e.provider.Name(),
			"fallback", e.fallback.Name(),
			"error", err,
		)
		return nil
	}
	return fmt.Errorf("loading %s provider: %w", e.provider.Name(), err)
}

func (e *Engine) observer(obs *transform.Observer) *transform.Observer {
	if obs != nil {
		return obs
	}
	return e.cfg.Observer
}

// DefaultObserver returns the configured default observer, or nil.
func (e *Engine) DefaultObserver() *transform.Observer { return e.cfg.Observer }

// Config returns the engine configuration.
func (e *Engine) Config() Config { return e.cfg }

// ProviderName returns the primary provider's name.
func (e *Engine) ProviderName() string { return e.provider.Name() }

// PlanetPosition returns one planet at t. A nil obs selects the default
// observer.
func (e *Engine) PlanetPosition(ctx context.Context, body catalog.Body, t time.Time, obs *transform.Observer) (*position.PlanetPosition, error) {
	if err := e.Initialize(ctx); err != nil {
		return nil, err
	}
	return e.svc.Planet(ctx, body, t, e.observer(obs))
}

// AllPlanetPositions returns every configured planet at t.
func (e *Engine) AllPlanetPositions(ctx context.Context, t time.Time, obs *transform.Observer) (position.Batch, error) {
	if err := e.Initialize(ctx); err != nil {
		return position.Batch{}, err
	}
	return e.svc.AllPlanets(ctx, t, e.observer(obs)), nil
}

// SunPosition returns the Sun at t.
func (e *Engine) SunPosition(ctx context.Context, t time.Time, obs *transform.Observer) (*position.SunPosition, error) {
	if err := e.Initialize(ctx); err != nil {
		return nil, err
	}
	return e.svc.Sun(ctx, t, e.observer(obs))
}

// MoonPosition returns the Moon at t.
func (e *Engine) MoonPosition(ctx context.Context, t time.Time, obs *transform.Observer) (*position.MoonPosition, error) {
	if err := e.Initialize(ctx); err != nil {
		return nil, err
	}
	return e.svc.Moon(ctx, t, e.observer(obs))
}

// SolarSystemState returns the Sun, Moon and planets at t.
func (e *Engine) SolarSystemState(ctx context.Context, t time.Time, obs *transform.Observer) (*position.State, error) {
	if err := e.Initialize(ctx); err != nil {
		return nil, err
	}
	return e.svc.State(ctx, t, e.observer(obs))
}

// OrbitPath samples a planet's orbit over one period from t.
func (e *Engine) OrbitPath(ctx context.Context, body catalog.Body, t time.Time, n int) ([]position.OrbitPoint, error) {
	if err := e.Initialize(ctx); err != nil {
		return nil, err
	}
	return e.svc.OrbitPath(ctx, body, t, n)
}

// Horizontal returns body's uncached horizontal coordinates for obs at t.
func (e *Engine) Horizontal(ctx context.Context, body catalog.Body, t time.Time, obs transform.Observer) (transform.Horizontal, error) {
	if err := e.Initialize(ctx); err != nil {
		return transform.Horizontal{}, err
	}
	return e.svc.Horizontal(ctx, body, t, obs)
}

// Warm precomputes states over [start, start+horizon] at step intervals.
func (e *Engine) Warm(ctx context.Context, start time.Time, horizon, step time.Duration) (int, error) {
	if err := e.Initialize(ctx); err != nil {
		return 0, err
	}
	return e.svc.Warm(ctx, start, horizon, step)
}

// EclipticToEquatorial converts ecl at jde with the provider's obliquity.
func (e *Engine) EclipticToEquatorial(ctx context.Context, ecl transform.Ecliptic, jde float64) (transform.Equatorial, error) {
	if err := e.Initialize(ctx); err != nil {
		return transform.Equatorial{}, err
	}
	return e.svc.EclipticToEquatorial(ctx, ecl, jde)
}

// EquatorialToHorizontal converts eq for obs at UT Julian Date jd.
func (e *Engine) EquatorialToHorizontal(ctx context.Context, eq transform.Equatorial, jd float64, obs transform.Observer) (transform.Horizontal, error) {
	if err := e.Initialize(ctx); err != nil {
		return transform.Horizontal{}, err
	}
	return e.svc.EquatorialToHorizontal(ctx, eq, jd, obs)
}

// TimeInfo describes one instant on the engine's time scales.
type TimeInfo struct {
	Time          time.Time `json:"time"`
	JD            float64   `json:"jd"`
	JDE           float64   `json:"jde"`
	DeltaTSeconds float64   `json:"delta_t_seconds"`
	GMSTHours     float64   `json:"gmst_hours"`
	Civil         string    `json:"civil"` // JD decomposed back to a calendar date
}

// DateToJD converts a UTC instant to a Julian Date.
func (e *Engine) DateToJD(t time.Time) float64 { return timescale.TimeToJD(t) }

// JDToDate converts a Julian Date to a UTC instant.
func (e *Engine) JDToDate(jd float64) time.Time { return timescale.JDToTime(jd) }

// Times describes t as JD, JDE, ΔT and mean sidereal time.
func (e *Engine) Times(t time.Time) TimeInfo {
	jd, jde := e.svc.Times(t)
	return TimeInfo{
		Time:          t.UTC(),
		JD:            jd,
		JDE:           jde,
		DeltaTSeconds: (jde - jd) * 86400,
		GMSTHours:     transform.GreenwichSiderealTime(jd),
		Civil:         timescale.JDToCivilDate(jd).Time().Format("2006-01-02T15:04:05.000Z"),
	}
}

// ClearCache empties the position caches.
func (e *Engine) ClearCache() { e.svc.ClearCache() }

// CacheStats returns the position cache statistics.
func (e *Engine) CacheStats() position.CacheStats { return e.svc.CacheStats() }

// PruneCache removes expired cache entries and returns the count.
func (e *Engine) PruneCache() int { return e.svc.PruneCache() }

// Service returns the underlying position service.
func (e *Engine) Service() *position.Service { return e.svc }

// Catalog returns the current element catalog.
func (e *Engine) Catalog() *catalog.Catalog { return e.store.Get() }

// CatalogAge returns the seconds since the catalog was loaded.
func (e *Engine) CatalogAge() float64 { return e.store.AgeSeconds() }

// ReloadCatalog swaps in c and clears the caches so no position computed from
// the previous elements is served. The caller's catalog is merged over the
// embedded default so bodies it omits keep their built-in elements.
func (e *Engine) ReloadCatalog(c *catalog.Catalog) {
	merged := catalog.Default().Merge(c)
	e.store.Set(merged)
	e.svc.ClearCache()
	e.logger.Info("catalog reloaded", "source", c.Source, "bodies", len(merged.Bodies()))
}

// Package propagation implements an ephemeris provider from two-body Kepler
// propagation of catalog element sets. It needs no data files and serves as
// the fallback when the precise provider is unavailable.
package propagation

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/star/orrery/internal/catalog"
	"github.com/star/orrery/internal/ephemeris"
	"github.com/star/orrery/internal/kepler"
	"github.com/star/orrery/internal/metrics"
	"github.com/star/orrery/internal/orbit"
	"github.com/star/orrery/internal/transform"
)

// Propagator is a Kepler-based ephemeris.Provider. The current catalog is read
// from the store on every call so a reload takes effect immediately.
type Propagator struct {
	store  *catalog.Store
	logger *slog.Logger
}

var _ ephemeris.Provider = (*Propagator)(nil)

// NewPropagator creates a Propagator over store.
func NewPropagator(store *catalog.Store, logger *slog.Logger) *Propagator {
	return &Propagator{store: store, logger: logger}
}

// Name implements ephemeris.Provider.
func (p *Propagator) Name() string { return "kepler" }

// Load checks that the current catalog covers every planet and the Moon.
func (p *Propagator) Load(ctx context.Context) error {
	c := p.store.Get()
	for _, b := range append(append([]catalog.Body{}, catalog.AllPlanets...), catalog.Moon) {
		if _, err := c.Elements(b); err != nil {
			return fmt.Errorf("%w: %v", ephemeris.ErrProviderUnavailable, err)
		}
	}
	p.logger.Debug("kepler propagator ready", "catalog", c.Source, "bodies", len(c.Bodies()))
	return nil
}

// PropagateBody propagates one catalog body to jde and returns the solver
// result alongside the position.
func (p *Propagator) PropagateBody(ctx context.Context, body catalog.Body, jde float64) (orbit.Position, kepler.Solution, error) {
	if err := ctx.Err(); err != nil {
		return orbit.Position{}, kepler.Solution{}, err
	}
	el, err := p.store.Get().Elements(body)
	if err != nil {
		return orbit.Position{}, kepler.Solution{}, err
	}

	pos, sol, err := orbit.Propagate(el, jde)
	if err != nil {
		return orbit.Position{}, sol, fmt.Errorf("propagating %s: %w", body, err)
	}
	if w := sol.Warning(); w != nil {
		metrics.IncKeplerNonConverged()
		p.logger.Warn("kepler solve did not converge", "body", string(body), "jde", jde, "warning", w)
	}
	return pos, sol, nil
}

func (p *Propagator) sample(ctx context.Context, body catalog.Body, jde float64) (ephemeris.Sample, error) {
	pos, sol, err := p.PropagateBody(ctx, body, jde)
	if err != nil {
		return ephemeris.Sample{}, err
	}
	return ephemeris.Sample{
		Position:  transform.CartesianToEcliptic(pos.Cartesian),
		Converged: sol.Converged,
	}, nil
}

// HeliocentricPosition implements ephemeris.Provider.
func (p *Propagator) HeliocentricPosition(ctx context.Context, body catalog.Body, jde float64) (ephemeris.Sample, error) {
	if !body.IsPlanet() {
		return ephemeris.Sample{}, fmt.Errorf("%w: %q is not a planet", catalog.ErrUnknownBody, body)
	}
	return p.sample(ctx, body, jde)
}

// GeocentricMoonPosition implements ephemeris.Provider from the Moon's mean
// geocentric elements. Accuracy is a few degrees.
func (p *Propagator) GeocentricMoonPosition(ctx context.Context, jde float64) (ephemeris.Sample, error) {
	return p.sample(ctx, catalog.Moon, jde)
}

// TrueObliquity implements ephemeris.Provider with the mean obliquity; this
// provider ignores nutation.
func (p *Propagator) TrueObliquity(ctx context.Context, jde float64) (float64, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}
	return transform.MeanObliquity(jde), nil
}

// ApparentSiderealTime implements ephemeris.Provider with mean sidereal time.
func (p *Propagator) ApparentSiderealTime(ctx context.Context, jd float64) (float64, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}
	return transform.HoursToRadians(transform.GreenwichSiderealTime(jd)), nil
}

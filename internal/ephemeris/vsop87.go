package ephemeris

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/soniakeys/meeus/v3/moonposition"
	"github.com/soniakeys/meeus/v3/nutation"
	pp "github.com/soniakeys/meeus/v3/planetposition"
	"github.com/soniakeys/meeus/v3/sidereal"
	"github.com/soniakeys/unit"

	"github.com/star/orrery/internal/catalog"
	"github.com/star/orrery/internal/transform"
)

var vsop87Index = map[catalog.Body]int{
	catalog.Mercury: pp.Mercury,
	catalog.Venus:   pp.Venus,
	catalog.Earth:   pp.Earth,
	catalog.Mars:    pp.Mars,
	catalog.Jupiter: pp.Jupiter,
	catalog.Saturn:  pp.Saturn,
	catalog.Uranus:  pp.Uranus,
	catalog.Neptune: pp.Neptune,
}

// VSOP87Provider computes planet positions from the VSOP87 series, the Moon
// from the ELP-2000/82 truncation, nutation from IAU 1980 and apparent
// sidereal time, all via the meeus library.
//
// Planet series files are read from dir on first use of each planet. When dir
// is empty the VSOP87 environment variable is used instead.
type VSOP87Provider struct {
	dir     string
	planets *Registry[catalog.Body, *pp.V87Planet]
	logger  *slog.Logger
}

// NewVSOP87Provider creates a provider reading series files from dir.
func NewVSOP87Provider(dir string, logger *slog.Logger) *VSOP87Provider {
	p := &VSOP87Provider{dir: dir, logger: logger}
	p.planets = NewRegistry("vsop87", p.loadPlanet, logger)
	return p
}

// Name implements Provider.
func (p *VSOP87Provider) Name() string { return "vsop87" }

func (p *VSOP87Provider) loadPlanet(_ context.Context, body catalog.Body) (*pp.V87Planet, error) {
	idx, ok := vsop87Index[body]
	if !ok {
		return nil, fmt.Errorf("%w: %s has no VSOP87 series", catalog.ErrUnknownBody, body)
	}

	var (
		planet *pp.V87Planet
		err    error
	)
	if p.dir == "" {
		planet, err = pp.LoadPlanet(idx)
	} else {
		planet, err = pp.LoadPlanetPath(idx, p.dir)
	}
	if err != nil {
		return nil, fmt.Errorf("%w: loading VSOP87 series for %s: %v", ErrProviderUnavailable, body, err)
	}
	return planet, nil
}

// Load reads the series of all eight planets.
func (p *VSOP87Provider) Load(ctx context.Context) error {
	for _, body := range catalog.AllPlanets {
		if _, err := p.planets.Get(ctx, body); err != nil {
			return err
		}
	}
	return nil
}

// HeliocentricPosition implements Provider. Coordinates are referred to the
// mean ecliptic and equinox of date.
func (p *VSOP87Provider) HeliocentricPosition(ctx context.Context, body catalog.Body, jde float64) (Sample, error) {
	planet, err := p.planets.Get(ctx, body)
	if err != nil {
		return Sample{}, err
	}
	l, b, r := planet.Position(jde)
	return Sample{
		Position:  transformEcliptic(l, b, r),
		Converged: true,
	}, nil
}

// GeocentricMoonPosition implements Provider. The range is in km.
func (p *VSOP87Provider) GeocentricMoonPosition(ctx context.Context, jde float64) (Sample, error) {
	if err := ctx.Err(); err != nil {
		return Sample{}, err
	}
	lon, lat, dist := moonposition.Position(jde)
	return Sample{
		Position:  transformEcliptic(lon, lat, dist),
		Converged: true,
	}, nil
}

// TrueObliquity implements Provider: mean obliquity plus nutation in obliquity.
func (p *VSOP87Provider) TrueObliquity(ctx context.Context, jde float64) (float64, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}
	_, dEps := nutation.Nutation(jde)
	eps := nutation.MeanObliquity(jde) + dEps
	return eps.Rad(), nil
}

// ApparentSiderealTime implements Provider.
func (p *VSOP87Provider) ApparentSiderealTime(ctx context.Context, jd float64) (float64, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}
	return sidereal.Apparent(jd).Rad(), nil
}

func transformEcliptic(lon, lat unit.Angle, r float64) transform.Ecliptic {
	return transform.Ecliptic{Lon: lon.Mod1().Rad(), Lat: lat.Rad(), Range: r}
}

// Package lunar derives the Moon's phase from geocentric Sun and Moon
// positions and finds phase events with the meeus lunar phase series.
package lunar

import (
	"math"

	"github.com/soniakeys/meeus/v3/moonphase"
	"gonum.org/v1/gonum/spatial/r3"

	"github.com/star/orrery/internal/timescale"
	"github.com/star/orrery/internal/transform"
)

// SynodicMonth is the mean interval between new moons, in days.
const SynodicMonth = 29.530588853

// MeanDistanceKm is the Moon's mean geocentric distance.
const MeanDistanceKm = 384400.0

// Phase names.
const (
	NewMoon        = "New Moon"
	WaxingCrescent = "Waxing Crescent"
	FirstQuarter   = "First Quarter"
	WaxingGibbous  = "Waxing Gibbous"
	FullMoon       = "Full Moon"
	WaningGibbous  = "Waning Gibbous"
	LastQuarter    = "Last Quarter"
	WaningCrescent = "Waning Crescent"
)

// Phase describes the Moon's illumination at an instant.
type Phase struct {
	Angle        float64 `json:"angle"`    // Moon − Sun ecliptic longitude, [0, 2π); 0 new, π full
	Fraction     float64 `json:"fraction"` // Angle / 2π
	Name         string  `json:"name"`
	Illumination float64 `json:"illumination"` // illuminated fraction of the disk, [0, 1]
	AgeDays      float64 `json:"age_days"`     // days since the previous new moon
	Supermoon    bool    `json:"supermoon,omitempty"`

	// Upcoming phase events, JDE.
	NextNewMoon      float64 `json:"next_new_moon"`
	NextFirstQuarter float64 `json:"next_first_quarter"`
	NextFullMoon     float64 `json:"next_full_moon"`
	NextLastQuarter  float64 `json:"next_last_quarter"`
}

// PhaseName buckets a phase fraction into one of the eight named phases.
func PhaseName(fraction float64) string {
	switch {
	case fraction < 0.025 || fraction >= 0.975:
		return NewMoon
	case fraction < 0.225:
		return WaxingCrescent
	case fraction < 0.275:
		return FirstQuarter
	case fraction < 0.475:
		return WaxingGibbous
	case fraction < 0.525:
		return FullMoon
	case fraction < 0.725:
		return WaningGibbous
	case fraction < 0.775:
		return LastQuarter
	default:
		return WaningCrescent
	}
}

// Illumination returns the illuminated fraction from geocentric Sun and Moon
// positions: (1 − cos ψ)/2 where ψ is their elongation.
func Illumination(sun, moon transform.Ecliptic) float64 {
	s := transform.EclipticToCartesian(transform.Ecliptic{Lon: sun.Lon, Lat: sun.Lat, Range: 1})
	m := transform.EclipticToCartesian(transform.Ecliptic{Lon: moon.Lon, Lat: moon.Lat, Range: 1})
	cosPsi := math.Max(-1, math.Min(1, r3.Dot(s, m)))
	return (1 - cosPsi) / 2
}

// Compute derives the full phase description. sun and moon are geocentric;
// the Moon's range is km.
func Compute(sun, moon transform.Ecliptic, jde float64) Phase {
	angle := transform.NormalizeAngle(moon.Lon - sun.Lon)
	fraction := angle / (2 * math.Pi)
	name := PhaseName(fraction)

	age := jde - PreviousNewMoon(jde)
	if age < 0 {
		age += SynodicMonth
	}

	return Phase{
		Angle:        angle,
		Fraction:     fraction,
		Name:         name,
		Illumination: Illumination(sun, moon),
		AgeDays:      age,
		Supermoon:    name == FullMoon && moon.Range/MeanDistanceKm < 0.95,

		NextNewMoon:      NextNewMoon(jde),
		NextFirstQuarter: NextFirstQuarter(jde),
		NextFullMoon:     NextFullMoon(jde),
		NextLastQuarter:  NextLastQuarter(jde),
	}
}

// lunationYears is one synodic month expressed in years.
const lunationYears = SynodicMonth / 365.25

// maxSteps bounds the event searches; each step advances one lunation.
const maxSteps = 40

// next returns the first event from series strictly after jde.
func next(series func(year float64) float64, jde float64) float64 {
	y := timescale.DecimalYear(jde) - 2*lunationYears
	for i := 0; i < maxSteps; i++ {
		if t := series(y); t > jde {
			return t
		}
		y += lunationYears
	}
	return math.NaN()
}

// NextNewMoon returns the JDE of the first new moon after jde.
func NextNewMoon(jde float64) float64 { return next(moonphase.New, jde) }

// NextFullMoon returns the JDE of the first full moon after jde.
func NextFullMoon(jde float64) float64 { return next(moonphase.Full, jde) }

// NextFirstQuarter returns the JDE of the first first-quarter moon after jde.
func NextFirstQuarter(jde float64) float64 { return next(moonphase.First, jde) }

// NextLastQuarter returns the JDE of the first last-quarter moon after jde.
func NextLastQuarter(jde float64) float64 { return next(moonphase.Last, jde) }

// PreviousNewMoon returns the JDE of the last new moon at or before jde.
func PreviousNewMoon(jde float64) float64 {
	y := timescale.DecimalYear(jde) + 2*lunationYears
	for i := 0; i < maxSteps; i++ {
		if t := moonphase.New(y); t <= jde {
			return t
		}
		y -= lunationYears
	}
	return math.NaN()
}

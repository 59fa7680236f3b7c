// Package orbit turns Keplerian elements into heliocentric ecliptic positions.
package orbit

import (
	"errors"
	"fmt"
	"math"

	"gonum.org/v1/gonum/spatial/r3"

	"github.com/star/orrery/internal/kepler"
)

// J2000 is the default element epoch.
const J2000 = 2451545.0

// ErrDegenerateOrbit is returned when the computed radius is not positive.
var ErrDegenerateOrbit = errors.New("orbit: degenerate orbit")

// Elements are classical Keplerian elements. Angles are radians, A is in the
// caller's distance unit and Period is in days.
type Elements struct {
	A      float64 `json:"a"`
	E      float64 `json:"e"`
	I      float64 `json:"i"`
	Node   float64 `json:"node"`   // longitude of ascending node Ω
	Peri   float64 `json:"peri"`   // argument of perihelion ω
	M0     float64 `json:"m0"`     // mean anomaly at Epoch
	Period float64 `json:"period"` // sidereal period, days
	Epoch  float64 `json:"epoch"`  // JDE of M0; zero means J2000

	// Secular drift of Ω and ω in radians per day. Zero for the planets.
	NodeRate float64 `json:"node_rate,omitempty"`
	PeriRate float64 `json:"peri_rate,omitempty"`
}

func (el Elements) epoch() float64 {
	if el.Epoch == 0 {
		return J2000
	}
	return el.Epoch
}

// At returns the elements with Ω and ω advanced to jde.
func (el Elements) At(jde float64) Elements {
	if el.NodeRate == 0 && el.PeriRate == 0 {
		return el
	}
	d := jde - el.epoch()
	el.Node += el.NodeRate * d
	el.Peri += el.PeriRate * d
	return el
}

// Position is a heliocentric ecliptic position.
type Position struct {
	Cartesian   r3.Vec
	Distance    float64
	TrueAnomaly float64
}

var (
	xAxis = r3.Vec{X: 1}
	zAxis = r3.Vec{Z: 1}
)

// TrueAnomaly returns ν for eccentric anomaly E and eccentricity e.
func TrueAnomaly(ecc, e float64) float64 {
	return 2 * math.Atan2(math.Sqrt(1+e)*math.Sin(ecc/2), math.Sqrt(1-e)*math.Cos(ecc/2))
}

// Radius returns r = a(1 − e·cos E).
func Radius(a, e, ecc float64) float64 {
	return a * (1 - e*math.Cos(ecc))
}

// MeanAnomaly returns the mean anomaly at jde, normalized to [0, 2π).
func MeanAnomaly(el Elements, jde float64) float64 {
	m := el.M0
	if el.Period > 0 {
		m += 2 * math.Pi / el.Period * (jde - el.epoch())
	}
	m = math.Mod(m, 2*math.Pi)
	if m < 0 {
		m += 2 * math.Pi
	}
	return m
}

// ToEcliptic rotates the orbital-plane position for eccentric anomaly E into
// the ecliptic frame: Rz(Ω)·Rx(i)·Rz(ω).
func ToEcliptic(el Elements, ecc float64) (Position, error) {
	r := Radius(el.A, el.E, ecc)
	if !(r > 0) || math.IsInf(r, 0) {
		return Position{}, fmt.Errorf("%w: r=%v (a=%v e=%v)", ErrDegenerateOrbit, r, el.A, el.E)
	}
	nu := TrueAnomaly(ecc, el.E)

	p := r3.Vec{X: r * math.Cos(nu), Y: r * math.Sin(nu)}
	p = r3.Rotate(p, el.Peri, zAxis)
	p = r3.Rotate(p, el.I, xAxis)
	p = r3.Rotate(p, el.Node, zAxis)

	return Position{Cartesian: p, Distance: r, TrueAnomaly: nu}, nil
}

// Propagate computes the position at jde. A non-converged solve still yields a
// position; callers inspect the returned Solution.
func Propagate(el Elements, jde float64) (Position, kepler.Solution, error) {
	sol, err := kepler.Solve(MeanAnomaly(el, jde), el.E)
	if err != nil {
		return Position{}, sol, err
	}
	pos, err := ToEcliptic(el.At(jde), sol.E)
	return pos, sol, err
}

// DefaultDisplayScale is the multiplier used by DisplayScale callers that do
// not configure their own.
const DefaultDisplayScale = 25.0

// DisplayScale compresses a vector's length to log10(|v|+1)·scale while
// keeping its direction. The result is for rendering only.
func DisplayScale(v r3.Vec, scale float64) r3.Vec {
	n := r3.Norm(v)
	if n == 0 {
		return r3.Vec{}
	}
	return r3.Scale(math.Log10(n+1)*scale/n, v)
}

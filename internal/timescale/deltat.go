package timescale

import (
	"fmt"
	"time"

	"github.com/soniakeys/meeus/v3/deltat"
)

// DeltaTFunc returns ΔT = TT − UT in seconds for a UTC Julian Date.
type DeltaTFunc func(jd float64) float64

// ZeroDeltaT treats UT and TT as identical.
func ZeroDeltaT(float64) float64 { return 0 }

// MeeusDeltaT estimates ΔT from the historical table between 1620 and 2000
// and from the post-2000 polynomial afterwards. Earlier dates use the
// Morrison–Stephenson parabola.
func MeeusDeltaT(jd float64) float64 {
	y := DecimalYear(jd)
	switch {
	case y >= 2000:
		return float64(deltat.PolyAfter2000(y))
	case y >= 1620:
		return float64(deltat.Interp10A(jd))
	default:
		u := (y - 1820) / 100
		return -20 + 32*u*u
	}
}

// DeltaTByName resolves a configured ΔT model name.
func DeltaTByName(name string) (DeltaTFunc, error) {
	switch name {
	case "", "meeus":
		return MeeusDeltaT, nil
	case "zero":
		return ZeroDeltaT, nil
	default:
		return nil, fmt.Errorf("unknown delta-t model %q", name)
	}
}

// Converter turns UTC instants into Julian Ephemeris Dates.
type Converter struct {
	DeltaT DeltaTFunc
}

// NewConverter returns a Converter using fn, or MeeusDeltaT when fn is nil.
func NewConverter(fn DeltaTFunc) Converter {
	if fn == nil {
		fn = MeeusDeltaT
	}
	return Converter{DeltaT: fn}
}

// JDE returns jd + ΔT/86400.
func (c Converter) JDE(jd float64) float64 {
	if c.DeltaT == nil {
		return jd
	}
	return jd + c.DeltaT(jd)/86400
}

// TimeToJDE converts a UTC instant to a Julian Ephemeris Date.
func (c Converter) TimeToJDE(t time.Time) float64 {
	return c.JDE(TimeToJD(t))
}

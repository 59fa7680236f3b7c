// Package kepler solves Kepler's equation M = E − e·sin E for elliptical orbits.
package kepler

import (
	"errors"
	"fmt"
	"math"
)

// Default solver limits.
const (
	DefaultTolerance     = 1e-8
	DefaultMaxIterations = 100
)

// ErrInvalidEccentricity is returned when e is outside [0, 1) or an input is not finite.
var ErrInvalidEccentricity = errors.New("kepler: eccentricity must be in [0, 1)")

// Options bounds the Newton–Raphson iteration.
type Options struct {
	Tolerance     float64
	MaxIterations int
}

// DefaultOptions returns the standard tolerance and iteration cap.
func DefaultOptions() Options {
	return Options{Tolerance: DefaultTolerance, MaxIterations: DefaultMaxIterations}
}

// Solution is the result of a solve. When Converged is false, E is the last
// iterate and is still usable.
type Solution struct {
	E          float64 // eccentric anomaly, radians
	Iterations int
	Converged  bool

	m, e, lastDelta float64
}

// Warning returns a *ConvergenceWarning when the solve did not converge, nil otherwise.
func (s Solution) Warning() error {
	if s.Converged {
		return nil
	}
	return &ConvergenceWarning{M: s.m, Eccentricity: s.e, Iterations: s.Iterations, LastDelta: math.Abs(s.lastDelta)}
}

// ConvergenceWarning reports that the iteration cap was reached before the
// correction fell below tolerance. It is informational, never fatal.
type ConvergenceWarning struct {
	M, Eccentricity float64
	Iterations      int
	LastDelta       float64
}

func (w *ConvergenceWarning) Error() string {
	return fmt.Sprintf("kepler: no convergence after %d iterations (M=%.6f e=%.6f |ΔE|=%.3g)",
		w.Iterations, w.M, w.Eccentricity, w.LastDelta)
}

// Solve runs Newton–Raphson with the default options.
func Solve(m, e float64) (Solution, error) {
	return SolveWithOptions(m, e, DefaultOptions())
}

// SolveWithOptions runs Newton–Raphson from E0 = M until the residual
// |E − e·sin E − M| falls below tolerance or the iteration cap is reached.
//
// The root always lies in [M − e, M + e] and f(E) = E − e·sin E − M is
// increasing, so every iterate narrows that bracket. A Newton step that
// leaves the bracket or fails to halve the previous step is replaced by
// bisection.
func SolveWithOptions(m, e float64, opts Options) (Solution, error) {
	if math.IsNaN(e) || e < 0 || e >= 1 {
		return Solution{}, fmt.Errorf("%w: got %v", ErrInvalidEccentricity, e)
	}
	if math.IsNaN(m) || math.IsInf(m, 0) {
		return Solution{}, fmt.Errorf("%w: mean anomaly %v is not finite", ErrInvalidEccentricity, m)
	}
	if opts.Tolerance <= 0 {
		opts.Tolerance = DefaultTolerance
	}
	if opts.MaxIterations <= 0 {
		opts.MaxIterations = DefaultMaxIterations
	}

	lo, hi := m-e, m+e
	ecc := m
	f := -e * math.Sin(m)
	if math.Abs(f) < opts.Tolerance {
		return Solution{E: ecc, Converged: true}, nil
	}

	delta := hi - lo
	for i := 1; i <= opts.MaxIterations; i++ {
		if f < 0 {
			lo = ecc
		} else {
			hi = ecc
		}

		next := hi
		if fp := 1 - e*math.Cos(ecc); fp > 1e-12 {
			next = ecc - f/fp
		}
		if next <= lo || next >= hi || math.Abs(next-ecc) > math.Abs(delta)/2 {
			next = lo + (hi-lo)/2
		}
		delta = next - ecc
		ecc = next

		f = ecc - e*math.Sin(ecc) - m
		if math.Abs(f) < opts.Tolerance {
			return Solution{E: ecc, Iterations: i, Converged: true}, nil
		}
	}

	return Solution{E: ecc, Iterations: opts.MaxIterations, Converged: false, lastDelta: delta, m: m, e: e}, nil
}

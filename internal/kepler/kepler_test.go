package kepler

import (
	"errors"
	"math"
	"testing"
)

func TestSolve_KnownValues(t *testing.T) {
	tests := []struct {
		name string
		m, e float64
		want float64
	}{
		{"circular", 1.0, 0, 1.0},
		{"earth-like", 1.0, 0.0167, 1.01418},
		{"mercury-like", 0.5, 0.2056, 0.6193},
		{"zero anomaly", 0, 0.5, 0},
		{"pi", math.Pi, 0.9, math.Pi},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			sol, err := Solve(tt.m, tt.e)
			if err != nil {
				t.Fatalf("Solve: %v", err)
			}
			if !sol.Converged {
				t.Fatalf("expected convergence, got %+v", sol)
			}
			if math.Abs(sol.E-tt.want) > 1e-4 {
				t.Errorf("E = %.6f, want %.4f", sol.E, tt.want)
			}
			if sol.Warning() != nil {
				t.Errorf("unexpected warning: %v", sol.Warning())
			}
		})
	}
}

func TestSolve_SatisfiesEquation(t *testing.T) {
	for _, e := range []float64{0, 0.01, 0.1, 0.3, 0.6} {
		for m := 0.0; m < 2*math.Pi; m += 0.37 {
			sol, err := Solve(m, e)
			if err != nil {
				t.Fatalf("Solve(%v, %v): %v", m, e, err)
			}
			if !sol.Converged {
				t.Fatalf("Solve(%v, %v) did not converge", m, e)
			}
			if r := sol.E - e*math.Sin(sol.E) - m; math.Abs(r) > 1e-8 {
				t.Errorf("M=%.2f e=%.2f residual %.3g", m, e, r)
			}
		}
	}
}

// TestSolve_HighEccentricitySweep covers the range where undamped Newton
// overshoots near perihelion, e.g. e=0.974 with M close to 0 or 2π.
func TestSolve_HighEccentricitySweep(t *testing.T) {
	failures := 0
	worst := 0
	for ei := 0; ei <= 990; ei += 2 {
		e := float64(ei) / 1000
		for m := 0.0; m < 2*math.Pi; m += 0.0025 {
			sol, err := Solve(m, e)
			if err != nil {
				t.Fatalf("Solve(%v, %v): %v", m, e, err)
			}
			r := sol.E - e*math.Sin(sol.E) - m
			if !sol.Converged || math.Abs(r) >= DefaultTolerance {
				if failures < 5 {
					t.Errorf("e=%.3f M=%.4f converged=%v iterations=%d residual=%.3g", e, m, sol.Converged, sol.Iterations, r)
				}
				failures++
			}
			if sol.Iterations > worst {
				worst = sol.Iterations
			}
		}
	}
	if failures > 0 {
		t.Errorf("%d solves failed, worst iterations %d", failures, worst)
	}
}

func TestSolve_KnownHardCases(t *testing.T) {
	tests := []struct{ m, e float64 }{
		{6.0165, 0.974},
		{0.2175, 0.974},
		{1e-6, 0.99},
		{2*math.Pi - 1e-6, 0.99},
		{-0.3, 0.95},
		{13.1, 0.9},
	}
	for _, tt := range tests {
		sol, err := Solve(tt.m, tt.e)
		if err != nil {
			t.Fatalf("Solve(%v, %v): %v", tt.m, tt.e, err)
		}
		if !sol.Converged {
			t.Errorf("Solve(%v, %v) = %+v", tt.m, tt.e, sol)
		}
		if r := sol.E - tt.e*math.Sin(sol.E) - tt.m; math.Abs(r) >= 1e-8 {
			t.Errorf("Solve(%v, %v) residual %.3g", tt.m, tt.e, r)
		}
		if d := sol.E - tt.m; math.Abs(d) > tt.e+1e-12 {
			t.Errorf("Solve(%v, %v) E outside [M-e, M+e]: E-M=%v", tt.m, tt.e, d)
		}
	}
}

func TestSolve_InvalidEccentricity(t *testing.T) {
	for _, e := range []float64{-0.1, 1, 1.5, math.NaN()} {
		_, err := Solve(1, e)
		if !errors.Is(err, ErrInvalidEccentricity) {
			t.Errorf("e=%v: err = %v, want ErrInvalidEccentricity", e, err)
		}
	}
	if _, err := Solve(math.Inf(1), 0.1); !errors.Is(err, ErrInvalidEccentricity) {
		t.Errorf("infinite M: err = %v", err)
	}
}

func TestSolve_ConvergenceWarning(t *testing.T) {
	sol, err := SolveWithOptions(2.5, 0.95, Options{Tolerance: 1e-30, MaxIterations: 2})
	if err != nil {
		t.Fatalf("non-convergence must not be an error: %v", err)
	}
	if sol.Converged {
		t.Fatal("expected Converged=false")
	}
	if sol.Iterations != 2 {
		t.Errorf("Iterations = %d, want 2", sol.Iterations)
	}
	if math.IsNaN(sol.E) {
		t.Error("last iterate must be finite")
	}

	var w *ConvergenceWarning
	if !errors.As(sol.Warning(), &w) {
		t.Fatalf("Warning() = %v, want *ConvergenceWarning", sol.Warning())
	}
	if w.Iterations != 2 || w.Eccentricity != 0.95 {
		t.Errorf("warning fields = %+v", w)
	}
}

package timescale

import (
	"math"
	"testing"
	"time"
)

func TestMeeusDeltaT_Ranges(t *testing.T) {
	tests := []struct {
		name     string
		year     int
		min, max float64
	}{
		{"1800", 1800, 5, 25},
		{"1900", 1900, -5, 5},
		{"1990", 1990, 55, 60},
		{"2000", 2000, 60, 70},
		{"2020", 2020, 60, 100},
		{"1500", 1500, 100, 400},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			jd := CivilDateToJD(tt.year, 1, 1, 0, 0, 0)
			got := MeeusDeltaT(jd)
			if got < tt.min || got > tt.max {
				t.Errorf("ΔT(%d) = %.2fs, want in [%v, %v]", tt.year, got, tt.min, tt.max)
			}
		})
	}
}

func TestConverter_JDE(t *testing.T) {
	c := NewConverter(func(float64) float64 { return 86.4 })
	if got := c.JDE(J2000); math.Abs(got-(J2000+0.001)) > 1e-12 {
		t.Errorf("JDE = %.9f, want %.9f", got, J2000+0.001)
	}

	zero := NewConverter(ZeroDeltaT)
	ts := time.Date(2000, 1, 1, 12, 0, 0, 0, time.UTC)
	if got := zero.TimeToJDE(ts); got != J2000 {
		t.Errorf("TimeToJDE with zero ΔT = %.9f, want %.9f", got, J2000)
	}
}

func TestDeltaTByName(t *testing.T) {
	for _, name := range []string{"", "meeus", "zero"} {
		if _, err := DeltaTByName(name); err != nil {
			t.Errorf("DeltaTByName(%q): %v", name, err)
		}
	}
	if _, err := DeltaTByName("tai"); err == nil {
		t.Error("expected error for unknown model")
	}
}

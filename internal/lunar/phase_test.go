package lunar

import (
	"math"
	"testing"

	"github.com/star/orrery/internal/transform"
)

const deg = math.Pi / 180

func TestPhaseName(t *testing.T) {
	tests := []struct {
		fraction float64
		want     string
	}{
		{0, NewMoon},
		{0.0249, NewMoon},
		{0.975, NewMoon},
		{0.1, WaxingCrescent},
		{0.25, FirstQuarter},
		{0.4, WaxingGibbous},
		{0.5, FullMoon},
		{0.6, WaningGibbous},
		{0.75, LastQuarter},
		{0.9, WaningCrescent},
	}
	for _, tt := range tests {
		if got := PhaseName(tt.fraction); got != tt.want {
			t.Errorf("PhaseName(%v) = %q, want %q", tt.fraction, got, tt.want)
		}
	}
}

func TestIllumination(t *testing.T) {
	sun := transform.Ecliptic{Lon: 0, Range: 1}
	tests := []struct {
		name    string
		moonLon float64
		want    float64
	}{
		{"new", 0, 0},
		{"quarter", 90 * deg, 0.5},
		{"full", 180 * deg, 1},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := Illumination(sun, transform.Ecliptic{Lon: tt.moonLon, Range: 384400})
			if math.Abs(got-tt.want) > 1e-12 {
				t.Errorf("Illumination = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestPhaseEvents(t *testing.T) {
	// Meeus example 49.a: new moon 1977 February 18, 3h37m42s TD = JDE 2443192.65118.
	const newMoon = 2443192.65118

	got := NextNewMoon(newMoon - 3)
	if math.Abs(got-newMoon) > 1e-4 {
		t.Errorf("NextNewMoon = %.5f, want %.5f", got, newMoon)
	}

	prev := PreviousNewMoon(newMoon + 3)
	if math.Abs(prev-newMoon) > 1e-4 {
		t.Errorf("PreviousNewMoon = %.5f, want %.5f", prev, newMoon)
	}

	// The next new moon after this one is one lunation later.
	after := NextNewMoon(newMoon + 0.01)
	if d := after - newMoon; d < 29.2 || d > 29.9 {
		t.Errorf("lunation length = %.3f days", d)
	}

	full := NextFullMoon(newMoon)
	if d := full - newMoon; d < 13.5 || d > 16 {
		t.Errorf("full moon %.3f days after new moon", d)
	}

	first := NextFirstQuarter(newMoon)
	if d := first - newMoon; d < 6 || d > 9 {
		t.Errorf("first quarter %.3f days after new moon", d)
	}
	last := NextLastQuarter(newMoon)
	if d := last - newMoon; d < 20.5 || d > 23.5 {
		t.Errorf("last quarter %.3f days after new moon", d)
	}
	if !(newMoon < first && first < full && full < last && last < after) {
		t.Errorf("events out of order: new %.3f first %.3f full %.3f last %.3f next new %.3f", newMoon, first, full, last, after)
	}
}

func TestCompute(t *testing.T) {
	jde := 2443192.65118 + 14.5
	sun := transform.Ecliptic{Lon: 10 * deg, Range: 0.99}
	moon := transform.Ecliptic{Lon: 190 * deg, Lat: 1 * deg, Range: 360000}

	p := Compute(sun, moon, jde)
	if p.Name != FullMoon {
		t.Errorf("Name = %q, want %q", p.Name, FullMoon)
	}
	if math.Abs(p.Fraction-0.5) > 1e-12 {
		t.Errorf("Fraction = %v", p.Fraction)
	}
	if p.Illumination < 0.99 {
		t.Errorf("Illumination = %v", p.Illumination)
	}
	if math.Abs(p.AgeDays-14.5) > 1e-3 {
		t.Errorf("AgeDays = %v, want 14.5", p.AgeDays)
	}
	if !(p.NextNewMoon > jde && p.NextFullMoon > jde && p.NextFirstQuarter > jde && p.NextLastQuarter > jde) {
		t.Errorf("events must be in the future: %+v", p)
	}
	if !p.Supermoon {
		t.Error("a full moon at 360000 km is a supermoon")
	}
}

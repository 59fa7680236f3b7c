package ephemeris

import (
	"context"
	"errors"
	"math"
	"os"
	"path/filepath"
	"testing"

	"github.com/star/orrery/internal/catalog"
	"github.com/star/orrery/internal/transform"
)

const deg = math.Pi / 180

func TestVSOP87Provider_MissingData(t *testing.T) {
	p := NewVSOP87Provider(filepath.Join(t.TempDir(), "nope"), testLogger())

	_, err := p.HeliocentricPosition(context.Background(), catalog.Mars, 2451545)
	if !errors.Is(err, ErrProviderUnavailable) {
		t.Fatalf("err = %v, want ErrProviderUnavailable", err)
	}
	if err := p.Load(context.Background()); !errors.Is(err, ErrProviderUnavailable) {
		t.Errorf("Load err = %v, want ErrProviderUnavailable", err)
	}
}

func TestVSOP87Provider_UnknownBody(t *testing.T) {
	p := NewVSOP87Provider(t.TempDir(), testLogger())
	_, err := p.HeliocentricPosition(context.Background(), catalog.Moon, 2451545)
	if !errors.Is(err, catalog.ErrUnknownBody) {
		t.Errorf("err = %v, want ErrUnknownBody", err)
	}
}

// TestVSOP87Provider_Venus uses Meeus example 32.a and needs the VSOP87B
// series files, located through the VSOP87 environment variable.
func TestVSOP87Provider_Venus(t *testing.T) {
	dir := os.Getenv("VSOP87")
	if dir == "" {
		t.Skip("VSOP87 not set; skipping series-backed test")
	}
	p := NewVSOP87Provider(dir, testLogger())

	// 1992 December 20, 0h TD.
	s, err := p.HeliocentricPosition(context.Background(), catalog.Venus, 2448976.5)
	if err != nil {
		t.Fatalf("HeliocentricPosition: %v", err)
	}
	if math.Abs(s.Position.Lon/deg-26.11428) > 1e-4 ||
		math.Abs(s.Position.Lat/deg+2.62070) > 1e-4 ||
		math.Abs(s.Position.Range-0.724603) > 1e-6 {
		t.Errorf("venus = %+v", s.Position)
	}
}

func TestVSOP87Provider_Moon(t *testing.T) {
	p := NewVSOP87Provider("", testLogger())

	// Meeus example 47.a: 1992 April 12, 0h TD.
	s, err := p.GeocentricMoonPosition(context.Background(), 2448724.5)
	if err != nil {
		t.Fatalf("GeocentricMoonPosition: %v", err)
	}
	if !s.Converged {
		t.Error("series positions are always converged")
	}
	if math.Abs(s.Position.Lon/deg-133.162655) > 1e-5 {
		t.Errorf("λ = %.6f°, want 133.162655°", s.Position.Lon/deg)
	}
	if math.Abs(s.Position.Lat/deg+3.229126) > 1e-5 {
		t.Errorf("β = %.6f°, want -3.229126°", s.Position.Lat/deg)
	}
	if math.Abs(s.Position.Range-368409.7) > 0.1 {
		t.Errorf("Δ = %.1f km, want 368409.7 km", s.Position.Range)
	}
}

func TestVSOP87Provider_Obliquity(t *testing.T) {
	p := NewVSOP87Provider("", testLogger())

	// Meeus example 22.a: 1987 April 10, 0h TD → ε = 23°26′36.850″.
	eps, err := p.TrueObliquity(context.Background(), 2446895.5)
	if err != nil {
		t.Fatal(err)
	}
	want := (23 + 26.0/60 + 36.850/3600) * deg
	if math.Abs(eps-want) > 0.02/3600*deg {
		t.Errorf("ε = %.7f°, want %.7f°", eps/deg, want/deg)
	}

	// Nutation keeps the true obliquity within ~10″ of the mean.
	if diff := math.Abs(eps - transform.MeanObliquity(2446895.5)); diff > 10.0/3600*deg {
		t.Errorf("true − mean obliquity = %.2f″", diff/deg*3600)
	}
}

func TestVSOP87Provider_SiderealTime(t *testing.T) {
	p := NewVSOP87Provider("", testLogger())

	// Meeus example 12.a: apparent sidereal time 13h10m46.1351s.
	got, err := p.ApparentSiderealTime(context.Background(), 2446895.5)
	if err != nil {
		t.Fatal(err)
	}
	want := transform.HoursToRadians(13 + 10.0/60 + 46.1351/3600)
	if math.Abs(got-want) > transform.HoursToRadians(0.001/3600) {
		t.Errorf("GAST = %.6f h, want %.6f h", transform.RadiansToHours(got), transform.RadiansToHours(want))
	}

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if _, err := p.ApparentSiderealTime(ctx, 2446895.5); !errors.Is(err, context.Canceled) {
		t.Errorf("err = %v, want context.Canceled", err)
	}
}

package transform

import (
	"math"
	"testing"
	"time"

	satellite "github.com/joshuaferrara/go-satellite"
	"gonum.org/v1/gonum/spatial/r3"
)

const deg = math.Pi / 180

func TestGreenwichSiderealTime(t *testing.T) {
	// Meeus example 12.a: 1987 April 10, 0h UT → 13h10m46.3668s.
	got := GreenwichSiderealTime(2446895.5)
	want := 13 + 10.0/60 + 46.3668/3600
	if math.Abs(got-want) > 1e-6 {
		t.Errorf("GST = %.8f h, want %.8f h", got, want)
	}
}

// TestGreenwichSiderealTime_GoSatellite cross-checks against go-satellite's
// GSTimeFromDate, which implements the same IAU-82 model in radians.
func TestGreenwichSiderealTime_GoSatellite(t *testing.T) {
	times := []time.Time{
		time.Date(2000, 1, 1, 12, 0, 0, 0, time.UTC),
		time.Date(2004, 4, 6, 7, 51, 28, 0, time.UTC),
		time.Date(2026, 2, 6, 4, 1, 0, 0, time.UTC),
	}
	for _, ts := range times {
		jd := satellite.JDay(ts.Year(), int(ts.Month()), ts.Day(), ts.Hour(), ts.Minute(), ts.Second())
		our := HoursToRadians(GreenwichSiderealTime(jd))
		ref := satellite.GSTimeFromDate(ts.Year(), int(ts.Month()), ts.Day(), ts.Hour(), ts.Minute(), ts.Second())

		diff := math.Abs(math.Remainder(our-ref, 2*math.Pi))
		if diff > 1e-8 {
			t.Errorf("%v: GST %.12f rad, go-satellite %.12f rad (diff=%.2e)", ts, our, ref, diff)
		}
	}
}

func TestLocalSiderealTime_Wraps(t *testing.T) {
	tests := []struct {
		gst, lon, want float64
	}{
		{23, 30, 1},
		{1, -30, 23},
		{12, 0, 12},
	}
	for _, tt := range tests {
		if got := LocalSiderealTime(tt.gst, tt.lon); math.Abs(got-tt.want) > 1e-12 {
			t.Errorf("LocalSiderealTime(%v, %v) = %v, want %v", tt.gst, tt.lon, got, tt.want)
		}
	}
}

func TestMeanObliquity_J2000(t *testing.T) {
	if got := MeanObliquity(j2000) / deg; math.Abs(got-23.4392911) > 1e-7 {
		t.Errorf("obliquity = %.8f°, want 23.4392911°", got)
	}
}

func TestEclipticToEquatorial(t *testing.T) {
	eps := 23.4392911 * deg

	t.Run("vernal equinox is fixed", func(t *testing.T) {
		eq := EclipticToEquatorial(Ecliptic{Lon: 0, Lat: 0, Range: 1}, eps)
		if math.Abs(eq.RA) > 1e-12 && math.Abs(eq.RA-2*math.Pi) > 1e-12 {
			t.Errorf("RA = %v, want 0", eq.RA)
		}
		if math.Abs(eq.Dec) > 1e-12 {
			t.Errorf("Dec = %v, want 0", eq.Dec)
		}
	})

	t.Run("summer solstice reaches +obliquity", func(t *testing.T) {
		eq := EclipticToEquatorial(Ecliptic{Lon: math.Pi / 2, Lat: 0, Range: 1.0167}, eps)
		if math.Abs(eq.Dec-eps) > 1e-12 {
			t.Errorf("Dec = %v, want %v", eq.Dec, eps)
		}
		if math.Abs(eq.RA-math.Pi/2) > 1e-12 {
			t.Errorf("RA = %v, want π/2", eq.RA)
		}
		if eq.Range != 1.0167 {
			t.Errorf("range must pass through, got %v", eq.Range)
		}
	})

	t.Run("meeus example 13.a", func(t *testing.T) {
		// Pollux: λ=113.215630°, β=6.684170°, ε=23.4392911° → α=116.328942°, δ=28.026183°.
		eq := EclipticToEquatorial(Ecliptic{Lon: 113.215630 * deg, Lat: 6.684170 * deg, Range: 1}, eps)
		if math.Abs(eq.RA/deg-116.328942) > 1e-5 || math.Abs(eq.Dec/deg-28.026183) > 1e-5 {
			t.Errorf("got α=%.6f° δ=%.6f°", eq.RA/deg, eq.Dec/deg)
		}
	})

	t.Run("round trip", func(t *testing.T) {
		in := Ecliptic{Lon: 4.1, Lat: -0.3, Range: 5.2}
		out := EquatorialToEcliptic(EclipticToEquatorial(in, eps), eps)
		if math.Abs(out.Lon-in.Lon) > 1e-12 || math.Abs(out.Lat-in.Lat) > 1e-12 || out.Range != in.Range {
			t.Errorf("round trip %+v -> %+v", in, out)
		}
	})
}

func TestEquatorialToHorizontal(t *testing.T) {
	t.Run("transit due south", func(t *testing.T) {
		// Object on the meridian (H=0) with δ < φ culminates due south.
		obs := Observer{Latitude: 50}
		h := EquatorialToHorizontal(Equatorial{RA: HoursToRadians(6), Dec: 10 * deg}, 6, obs)
		if math.Abs(h.Altitude/deg-50) > 1e-9 {
			t.Errorf("altitude = %.9f°, want 50°", h.Altitude/deg)
		}
		if math.Abs(h.Azimuth/deg-180) > 1e-9 {
			t.Errorf("azimuth = %.9f°, want 180°", h.Azimuth/deg)
		}
	})

	t.Run("rising in the east", func(t *testing.T) {
		obs := Observer{Latitude: 0}
		h := EquatorialToHorizontal(Equatorial{RA: 0, Dec: 0}, 18, obs)
		if math.Abs(h.Altitude) > 1e-9 {
			t.Errorf("altitude = %v, want 0", h.Altitude)
		}
		if math.Abs(h.Azimuth/deg-90) > 1e-9 {
			t.Errorf("azimuth = %.9f°, want 90°", h.Azimuth/deg)
		}
	})

	t.Run("zenith is singular", func(t *testing.T) {
		obs := Observer{Latitude: 90}
		h := EquatorialToHorizontal(Equatorial{RA: 1, Dec: math.Pi / 2}, 3, obs)
		if !h.SingularAzimuth || h.Azimuth != 0 {
			t.Errorf("expected singular azimuth 0, got %+v", h)
		}
	})

	t.Run("azimuth range", func(t *testing.T) {
		obs := Observer{Latitude: -33.9, Longitude: 18.4}
		for lst := 0.0; lst < 24; lst += 0.7 {
			h := EquatorialToHorizontal(Equatorial{RA: 2.2, Dec: -0.4}, lst, obs)
			if h.Azimuth < 0 || h.Azimuth >= 2*math.Pi {
				t.Fatalf("azimuth %v out of [0, 2π)", h.Azimuth)
			}
		}
	})
}

func TestCartesianToEcliptic(t *testing.T) {
	got := CartesianToEcliptic(r3.Vec{X: 0, Y: -2, Z: 0})
	if math.Abs(got.Lon-3*math.Pi/2) > 1e-12 || got.Lat != 0 || got.Range != 2 {
		t.Errorf("got %+v", got)
	}
	if zero := CartesianToEcliptic(r3.Vec{}); zero != (Ecliptic{}) {
		t.Errorf("zero vector -> %+v", zero)
	}
}

func TestEquatorialToECEF(t *testing.T) {
	// At θ = 90° the equatorial x axis maps to Earth-fixed −y.
	v := EquatorialToECEF(Equatorial{RA: 0, Dec: 0, Range: 1}, math.Pi/2)
	if math.Abs(v.X) > 1e-12 || math.Abs(v.Y+1) > 1e-12 || math.Abs(v.Z) > 1e-12 {
		t.Errorf("got %+v, want (0, -1, 0)", v)
	}
}

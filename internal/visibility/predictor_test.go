package visibility

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"math"
	"testing"
	"time"

	"github.com/star/orrery/internal/catalog"
	"github.com/star/orrery/internal/engine"
	"github.com/star/orrery/internal/propagation"
	"github.com/star/orrery/internal/timescale"
	"github.com/star/orrery/internal/transform"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewJSONHandler(io.Discard, &slog.HandlerOptions{Level: slog.LevelWarn}))
}

var start = time.Date(2024, 6, 21, 0, 0, 0, 0, time.UTC)

// sineSource moves every body on a 24 h sine: down at start, rising through
// the horizon at +6 h, culminating at 30° at +12 h and setting at +18 h.
type sineSource struct{}

func (sineSource) Horizontal(ctx context.Context, body catalog.Body, t time.Time, obs transform.Observer) (transform.Horizontal, error) {
	if body == "pluto" {
		return transform.Horizontal{}, errors.New("no ephemeris")
	}
	h := t.Sub(start).Hours()
	alt := 30 * math.Sin(2*math.Pi*(h-6)/24)
	return transform.Horizontal{
		Altitude: alt * math.Pi / 180,
		Azimuth:  math.Mod(h*15, 360) * math.Pi / 180,
	}, nil
}

func within(t *testing.T, label string, got, want time.Time, tol time.Duration) {
	t.Helper()
	if d := got.Sub(want); d < -tol || d > tol {
		t.Errorf("%s = %s, want %s ± %s", label, got.Format(time.RFC3339), want.Format(time.RFC3339), tol)
	}
}

func TestPredictSyntheticWindow(t *testing.T) {
	req := Request{
		Bodies:       []catalog.Body{catalog.Mars},
		Start:        start,
		HorizonHours: 24,
		MinAltitude:  10,
	}
	results := Predict(context.Background(), sineSource{}, req)
	if len(results) != 1 {
		t.Fatalf("results = %d, want 1", len(results))
	}
	r := results[0]
	if r.Error != "" {
		t.Fatalf("unexpected error: %s", r.Error)
	}
	if len(r.Windows) != 1 {
		t.Fatalf("windows = %d, want 1", len(r.Windows))
	}

	// 30·sin(x) = 10 at x = asin(1/3), i.e. 1.298 h from the horizon crossing.
	offset := time.Duration(math.Asin(1.0/3) * 24 / (2 * math.Pi) * float64(time.Hour))
	w := r.Windows[0]
	if w.Rise == nil || w.Set == nil {
		t.Fatalf("window missing rise or set: %+v", w)
	}
	within(t, "rise", w.Rise.Time, start.Add(6*time.Hour+offset), 2*time.Minute)
	within(t, "set", w.Set.Time, start.Add(18*time.Hour-offset), 2*time.Minute)
	within(t, "culmination", w.Culmination.Time, start.Add(12*time.Hour), 2*time.Minute)
	if math.Abs(w.Culmination.Altitude-30) > 0.01 {
		t.Errorf("culmination altitude = %v, want 30", w.Culmination.Altitude)
	}
	if w.Rise.Altitude < 10 || w.Set.Altitude >= 10 {
		t.Errorf("rise altitude %v, set altitude %v", w.Rise.Altitude, w.Set.Altitude)
	}
	if want := w.Set.Time.Sub(w.Rise.Time).Seconds(); w.DurationSeconds != want {
		t.Errorf("duration = %v, want %v", w.DurationSeconds, want)
	}
}

func TestPredictBodyAlreadyUp(t *testing.T) {
	req := Request{
		Bodies:       []catalog.Body{catalog.Venus},
		Start:        start.Add(10 * time.Hour),
		HorizonHours: 4,
		MinAltitude:  0,
	}
	r := Predict(context.Background(), sineSource{}, req)[0]
	if len(r.Windows) != 1 {
		t.Fatalf("windows = %d, want 1", len(r.Windows))
	}
	w := r.Windows[0]
	if w.Rise != nil || w.Set != nil {
		t.Errorf("expected open window, got rise=%v set=%v", w.Rise, w.Set)
	}
	if w.DurationSeconds < 3.9*3600 {
		t.Errorf("duration = %v", w.DurationSeconds)
	}
}

func TestPredictPerBodyErrors(t *testing.T) {
	req := Request{
		Bodies:       []catalog.Body{catalog.Jupiter, "pluto", catalog.Saturn},
		Start:        start,
		HorizonHours: 24,
	}
	results := Predict(context.Background(), sineSource{}, req)
	if len(results) != 3 {
		t.Fatalf("results = %d", len(results))
	}
	for i, want := range req.Bodies {
		if results[i].Body != want {
			t.Errorf("results[%d].Body = %s, want %s", i, results[i].Body, want)
		}
	}
	if results[1].Error == "" {
		t.Error("expected error for pluto")
	}
	if results[0].Error != "" || results[2].Error != "" {
		t.Errorf("unexpected errors: %q %q", results[0].Error, results[2].Error)
	}
}

func TestPredictDefaultBodies(t *testing.T) {
	req := Request{Start: start, HorizonHours: 1}
	results := Predict(context.Background(), sineSource{}, req)
	if len(results) != len(DefaultBodies) {
		t.Errorf("results = %d, want %d", len(results), len(DefaultBodies))
	}
}

func TestPredictSunriseLondon(t *testing.T) {
	e := engine.New(engine.DefaultConfig(), propagation.NewPropagator(catalog.NewStore(nil), testLogger()),
		engine.WithLogger(testLogger()),
		engine.WithConverter(timescale.NewConverter(timescale.MeeusDeltaT)),
	)
	req := Request{
		Observer:     transform.Observer{Latitude: 51.5074, Longitude: -0.1278},
		Bodies:       []catalog.Body{catalog.Sun},
		Start:        start,
		HorizonHours: 24,
	}
	r := Predict(context.Background(), e, req)[0]
	if r.Error != "" {
		t.Fatalf("error: %s", r.Error)
	}
	if len(r.Windows) != 1 || r.Windows[0].Rise == nil || r.Windows[0].Set == nil {
		t.Fatalf("windows = %+v", r.Windows)
	}

	// Geometric sunrise and sunset of the solstice, ignoring refraction.
	w := r.Windows[0]
	within(t, "sunrise", w.Rise.Time, time.Date(2024, 6, 21, 3, 50, 0, 0, time.UTC), 20*time.Minute)
	within(t, "sunset", w.Set.Time, time.Date(2024, 6, 21, 20, 15, 0, 0, time.UTC), 20*time.Minute)
	if w.Culmination.Altitude < 60 || w.Culmination.Altitude > 63 {
		t.Errorf("noon altitude = %v, want ~62", w.Culmination.Altitude)
	}
	if w.Rise.Azimuth < 30 || w.Rise.Azimuth > 60 {
		t.Errorf("sunrise azimuth = %v, want north-east", w.Rise.Azimuth)
	}
}

package position

import (
	"time"

	"gonum.org/v1/gonum/spatial/r3"

	"github.com/star/orrery/internal/cache"
	"github.com/star/orrery/internal/catalog"
	"github.com/star/orrery/internal/lunar"
	"github.com/star/orrery/internal/transform"
)

// Physical constants used when composing records.
const (
	AUKm               = 149597870.7
	EarthRadiusKm      = 6371.0
	EarthEquatorRadius = 6378.14 // km, used for lunar parallax
)

// Vector is a JSON-friendly cartesian triple.
type Vector struct {
	X float64 `json:"x"`
	Y float64 `json:"y"`
	Z float64 `json:"z"`
}

func vectorOf(v r3.Vec) Vector { return Vector{X: v.X, Y: v.Y, Z: v.Z} }

// Vec returns v as an r3.Vec.
func (v Vector) Vec() r3.Vec { return r3.Vec{X: v.X, Y: v.Y, Z: v.Z} }

// PlanetPosition is a planet's position at one instant.
//
// Heliocentric and Cartesian are always present; Cartesian is heliocentric
// ecliptic AU. Display is Cartesian compressed for rendering. Geocentric and
// Equatorial are set for bodies other than Earth when geocentric calculation
// is enabled. Horizontal is only set when the caller supplied an observer.
type PlanetPosition struct {
	ID           catalog.Body          `json:"id"`
	Heliocentric transform.Ecliptic    `json:"heliocentric"`
	Geocentric   *transform.Ecliptic   `json:"geocentric,omitempty"`
	Equatorial   *transform.Equatorial `json:"equatorial,omitempty"`
	Horizontal   *transform.Horizontal `json:"horizontal,omitempty"`
	Cartesian    Vector                `json:"cartesian"`
	Display      Vector                `json:"display"`
	JD           float64               `json:"jd"`
	JDE          float64               `json:"jde"`
	Source       string                `json:"source"`
	Converged    bool                  `json:"converged"`
	Timestamp    time.Time             `json:"timestamp"`
}

// SunPosition is the Sun's geocentric position. Cartesian is geocentric AU.
type SunPosition struct {
	Geocentric transform.Ecliptic    `json:"geocentric"`
	Equatorial transform.Equatorial  `json:"equatorial"`
	Horizontal *transform.Horizontal `json:"horizontal,omitempty"`
	Cartesian  Vector                `json:"cartesian"`
	JD         float64               `json:"jd"`
	JDE        float64               `json:"jde"`
	Source     string                `json:"source"`
	Converged  bool                  `json:"converged"`
	Timestamp  time.Time             `json:"timestamp"`
}

// MoonPosition is the Moon's geocentric position. Ranges are km and
// Cartesian is in Earth radii.
type MoonPosition struct {
	Geocentric  transform.Ecliptic    `json:"geocentric"`
	Equatorial  transform.Equatorial  `json:"equatorial"`
	Horizontal  *transform.Horizontal `json:"horizontal,omitempty"`
	Topocentric *transform.LookAngles `json:"topocentric,omitempty"`
	DistanceKm  float64               `json:"distance_km"`
	Parallax    float64               `json:"parallax"`
	Phase       lunar.Phase           `json:"phase"`
	Cartesian   Vector                `json:"cartesian"`
	JD          float64               `json:"jd"`
	JDE         float64               `json:"jde"`
	Source      string                `json:"source"`
	Converged   bool                  `json:"converged"`
	Timestamp   time.Time             `json:"timestamp"`
}

// Batch is the result of a multi-planet query. A body appears in exactly one
// of the two maps.
type Batch struct {
	Positions map[catalog.Body]*PlanetPosition
	Errors    map[catalog.Body]error
}

// ErrorStrings returns Errors with messages in place of error values.
func (b Batch) ErrorStrings() map[catalog.Body]string {
	if len(b.Errors) == 0 {
		return nil
	}
	out := make(map[catalog.Body]string, len(b.Errors))
	for k, err := range b.Errors {
		out[k] = err.Error()
	}
	return out
}

// State is a snapshot of the whole system at one instant.
type State struct {
	Time    time.Time                        `json:"time"`
	JD      float64                          `json:"jd"`
	JDE     float64                          `json:"jde"`
	Sun     *SunPosition                     `json:"sun"`
	Moon    *MoonPosition                    `json:"moon"`
	Planets map[catalog.Body]*PlanetPosition `json:"planets"`
	Errors  map[catalog.Body]string          `json:"errors,omitempty"`
}

// OrbitPoint is one sample of an orbit path.
type OrbitPoint struct {
	JDE       float64 `json:"jde"`
	Cartesian Vector  `json:"cartesian"`
	Display   Vector  `json:"display"`
}

// CacheStats aggregates the service caches.
type CacheStats struct {
	Total   cache.Stats `json:"total"`
	Planets cache.Stats `json:"planets"`
	Sun     cache.Stats `json:"sun"`
	Moon    cache.Stats `json:"moon"`
}

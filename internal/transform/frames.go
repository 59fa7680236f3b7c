// Package transform converts positions between the heliocentric ecliptic,
// geocentric equatorial and observer horizontal frames.
//
// Angles are radians except sidereal times, which are hours. Ranges carry
// whatever unit the caller supplies (AU for planets, km for the Moon).
package transform

import (
	"math"

	"gonum.org/v1/gonum/spatial/r3"
)

// singularCosAlt is the cos(altitude) below which azimuth is undefined.
const singularCosAlt = 1e-12

var (
	xAxis = r3.Vec{X: 1}
	zAxis = r3.Vec{Z: 1}
)

// Ecliptic holds ecliptic longitude/latitude (radians) and range.
type Ecliptic struct {
	Lon   float64 `json:"lon"`
	Lat   float64 `json:"lat"`
	Range float64 `json:"range"`
}

// Equatorial holds right ascension/declination (radians) and range.
type Equatorial struct {
	RA    float64 `json:"ra"`
	Dec   float64 `json:"dec"`
	Range float64 `json:"range"`
}

// Horizontal holds altitude above the horizon and azimuth measured from north
// through east, both radians. SingularAzimuth is set at the zenith and nadir,
// where azimuth is reported as 0.
type Horizontal struct {
	Altitude        float64 `json:"altitude"`
	Azimuth         float64 `json:"azimuth"`
	SingularAzimuth bool    `json:"singular_azimuth,omitempty"`
}

// Observer is a ground location. Latitude and longitude are degrees (east
// positive), elevation is meters above the ellipsoid.
type Observer struct {
	Latitude  float64 `json:"latitude"`
	Longitude float64 `json:"longitude"`
	Elevation float64 `json:"elevation"`
}

// sphericalToCartesian maps (lon, lat, r) to a vector.
func sphericalToCartesian(lon, lat, r float64) r3.Vec {
	cosLat := math.Cos(lat)
	return r3.Vec{
		X: r * cosLat * math.Cos(lon),
		Y: r * cosLat * math.Sin(lon),
		Z: r * math.Sin(lat),
	}
}

// cartesianToSpherical inverts sphericalToCartesian, normalizing lon to [0, 2π).
func cartesianToSpherical(v r3.Vec) (lon, lat, r float64) {
	r = r3.Norm(v)
	if r == 0 {
		return 0, 0, 0
	}
	lon = NormalizeAngle(math.Atan2(v.Y, v.X))
	lat = math.Asin(clamp(v.Z/r, -1, 1))
	return lon, lat, r
}

// EclipticToCartesian returns the rectangular ecliptic vector.
func EclipticToCartesian(e Ecliptic) r3.Vec {
	return sphericalToCartesian(e.Lon, e.Lat, e.Range)
}

// CartesianToEcliptic returns spherical ecliptic coordinates of v.
func CartesianToEcliptic(v r3.Vec) Ecliptic {
	lon, lat, r := cartesianToSpherical(v)
	return Ecliptic{Lon: lon, Lat: lat, Range: r}
}

// EquatorialToCartesian returns the rectangular equatorial vector.
func EquatorialToCartesian(e Equatorial) r3.Vec {
	return sphericalToCartesian(e.RA, e.Dec, e.Range)
}

// CartesianToEquatorial returns spherical equatorial coordinates of v.
func CartesianToEquatorial(v r3.Vec) Equatorial {
	ra, dec, r := cartesianToSpherical(v)
	return Equatorial{RA: ra, Dec: dec, Range: r}
}

// EclipticToEquatorial rotates about the x axis by the obliquity. Range is
// passed through unchanged.
func EclipticToEquatorial(e Ecliptic, obliquity float64) Equatorial {
	unit := sphericalToCartesian(e.Lon, e.Lat, 1)
	eq := CartesianToEquatorial(r3.Rotate(unit, obliquity, xAxis))
	eq.Range = e.Range
	return eq
}

// EquatorialToEcliptic is the inverse of EclipticToEquatorial.
func EquatorialToEcliptic(e Equatorial, obliquity float64) Ecliptic {
	unit := sphericalToCartesian(e.RA, e.Dec, 1)
	ecl := CartesianToEcliptic(r3.Rotate(unit, -obliquity, xAxis))
	ecl.Range = e.Range
	return ecl
}

// EquatorialToHorizontal computes altitude and azimuth for an observer given
// the local sidereal time in hours.
func EquatorialToHorizontal(e Equatorial, lstHours float64, obs Observer) Horizontal {
	lat := obs.Latitude * math.Pi / 180.0
	ha := HoursToRadians(lstHours) - e.RA

	sinLat, cosLat := math.Sincos(lat)
	sinDec, cosDec := math.Sincos(e.Dec)
	sinHA, cosHA := math.Sincos(ha)

	sinAlt := clamp(sinLat*sinDec+cosLat*cosDec*cosHA, -1, 1)
	alt := math.Asin(sinAlt)

	if math.Cos(alt) < singularCosAlt {
		return Horizontal{Altitude: alt, SingularAzimuth: true}
	}

	az := math.Atan2(-cosDec*sinHA, sinDec*cosLat-cosDec*sinLat*cosHA)
	return Horizontal{Altitude: alt, Azimuth: NormalizeAngle(az)}
}

// EquatorialToECEF rotates a geocentric equatorial position into the
// Earth-fixed frame by the Greenwich sidereal angle: r_ECEF = R3(θ)·r_eq.
// The returned vector keeps the unit of e.Range.
func EquatorialToECEF(e Equatorial, gstRad float64) r3.Vec {
	return r3.Rotate(EquatorialToCartesian(e), -gstRad, zAxis)
}

func clamp(v, lo, hi float64) float64 {
	return math.Max(lo, math.Min(hi, v))
}

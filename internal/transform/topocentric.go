package transform

import (
	"math"

	"gonum.org/v1/gonum/spatial/r3"
)

// WGS-84 ellipsoid parameters.
const (
	wgs84A  = 6378137.0             // semi-major axis (meters)
	wgs84F  = 1.0 / 298.257223563   // flattening
	wgs84E2 = wgs84F * (2 - wgs84F) // first eccentricity squared
)

// ObserverPosition holds a ground observer's location in both geodetic and ECEF frames.
// ECEF coordinates are precomputed once so they can be reused across many bodies.
type ObserverPosition struct {
	LatRad, LonRad, AltM float64 // geodetic (radians, meters above ellipsoid)
	ECEF                 r3.Vec  // meters
}

// LookAngles holds topocentric azimuth, elevation and range from an observer.
type LookAngles struct {
	Azimuth   float64 `json:"azimuth"`   // radians, 0 = North, clockwise
	Elevation float64 `json:"elevation"` // radians, 0 = horizon
	RangeKm   float64 `json:"range_km"`
}

// NewObserverPosition creates an ObserverPosition from geodetic coordinates.
// Latitude and longitude are in degrees, altitude in meters above the WGS-84 ellipsoid.
func NewObserverPosition(latDeg, lonDeg, altM float64) ObserverPosition {
	lat := latDeg * math.Pi / 180.0
	lon := lonDeg * math.Pi / 180.0

	sinLat, cosLat := math.Sincos(lat)
	sinLon, cosLon := math.Sincos(lon)

	// Radius of curvature in the prime vertical.
	n := wgs84A / math.Sqrt(1-wgs84E2*sinLat*sinLat)

	return ObserverPosition{
		LatRad: lat,
		LonRad: lon,
		AltM:   altM,
		ECEF: r3.Vec{
			X: (n + altM) * cosLat * cosLon,
			Y: (n + altM) * cosLat * sinLon,
			Z: (n*(1-wgs84E2) + altM) * sinLat,
		},
	}
}

// ObserverPositionOf converts an Observer to its ECEF form.
func ObserverPositionOf(o Observer) ObserverPosition {
	return NewObserverPosition(o.Latitude, o.Longitude, o.Elevation)
}

// ECEFToLookAngles computes azimuth, elevation and range from an observer to
// a target given in ECEF meters.
//
// Uses the SEZ (South-East-Zenith) topocentric rotation per Vallado Section 4.4.
func ECEFToLookAngles(obs ObserverPosition, target r3.Vec) LookAngles {
	rv := r3.Sub(target, obs.ECEF)

	sinLat, cosLat := math.Sincos(obs.LatRad)
	sinLon, cosLon := math.Sincos(obs.LonRad)

	south := sinLat*cosLon*rv.X + sinLat*sinLon*rv.Y - cosLat*rv.Z
	east := -sinLon*rv.X + cosLon*rv.Y
	zenith := cosLat*cosLon*rv.X + cosLat*sinLon*rv.Y + sinLat*rv.Z

	rangeMag := r3.Norm(rv)
	if rangeMag == 0 {
		return LookAngles{}
	}

	// In SEZ, North = -South, so az = atan2(east, -south).
	return LookAngles{
		Azimuth:   NormalizeAngle(math.Atan2(east, -south)),
		Elevation: math.Asin(clamp(zenith/rangeMag, -1, 1)),
		RangeKm:   rangeMag / 1000.0,
	}
}

// TopocentricLookAngles places a geocentric equatorial position given in km
// into the Earth-fixed frame and returns its look angles from obs. Unlike
// EquatorialToHorizontal it accounts for the observer's offset from Earth's
// center, which matters for the Moon.
func TopocentricLookAngles(eqKm Equatorial, gstRad float64, obs ObserverPosition) LookAngles {
	ecef := r3.Scale(1000, EquatorialToECEF(eqKm, gstRad))
	return ECEFToLookAngles(obs, ecef)
}

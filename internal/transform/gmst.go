package transform

import "math"

// j2000 is the Julian Date of the J2000.0 epoch (January 1, 2000, 12:00:00 TT).
const j2000 = 2451545.0

// GreenwichSiderealTime returns Greenwich Mean Sidereal Time in hours, [0, 24),
// for a UT Julian Date.
//
// IAU-82 model in its degree form (Meeus eq. 12.4):
//
//	θ = 280.46061837 + 360.98564736629·(JD − 2451545) + 0.000387933·T² − T³/38710000
//
// where T is Julian centuries of UT1 from J2000.0.
func GreenwichSiderealTime(jd float64) float64 {
	d := jd - j2000
	t := d / 36525.0

	deg := 280.46061837 +
		360.98564736629*d +
		0.000387933*t*t -
		t*t*t/38710000.0

	hours := math.Mod(deg/15.0, 24.0)
	if hours < 0 {
		hours += 24.0
	}
	return hours
}

// LocalSiderealTime offsets a Greenwich sidereal time (hours) by an east-positive
// longitude in degrees. The result is in [0, 24).
func LocalSiderealTime(gstHours, lonDeg float64) float64 {
	h := math.Mod(gstHours+lonDeg/15.0, 24.0)
	if h < 0 {
		h += 24.0
	}
	return h
}

// HoursToRadians converts sidereal hours to an angle.
func HoursToRadians(h float64) float64 { return h * math.Pi / 12.0 }

// RadiansToHours converts an angle to sidereal hours in [0, 24).
func RadiansToHours(rad float64) float64 {
	return math.Mod(NormalizeAngle(rad)*12.0/math.Pi, 24.0)
}

// MeanObliquity returns the mean obliquity of the ecliptic in radians (IAU 1980)
// for a Julian Ephemeris Date.
func MeanObliquity(jde float64) float64 {
	t := (jde - j2000) / 36525.0
	arcsec := 84381.448 - 46.8150*t - 0.00059*t*t + 0.001813*t*t*t
	return arcsec / 3600.0 * math.Pi / 180.0
}

// NormalizeAngle wraps an angle into [0, 2π).
func NormalizeAngle(rad float64) float64 {
	a := math.Mod(rad, 2*math.Pi)
	if a < 0 {
		a += 2 * math.Pi
	}
	if a >= 2*math.Pi {
		return 0
	}
	return a
}

package cache

import (
	"math"
	"strconv"
)

// DefaultKeyPrecision is the number of decimal places kept when quantizing a
// Julian Date for a cache key. Six places is roughly 0.09 s.
const DefaultKeyPrecision = 6

// QuantizeJDE rounds jde to precision decimal places.
func QuantizeJDE(jde float64, precision int) float64 {
	scale := math.Pow(10, float64(precision))
	return math.Round(jde*scale) / scale
}

func formatJDE(jde float64, precision []int) string {
	p := DefaultKeyPrecision
	if len(precision) > 0 {
		p = precision[0]
	}
	return strconv.FormatFloat(QuantizeJDE(jde, p), 'f', -1, 64)
}

// PlanetKey returns "planet:<id>:<jde>". An optional precision overrides
// DefaultKeyPrecision.
func PlanetKey(id string, jde float64, precision ...int) string {
	return "planet:" + id + ":" + formatJDE(jde, precision)
}

// SunKey returns "sun:<jde>".
func SunKey(jde float64, precision ...int) string {
	return "sun:" + formatJDE(jde, precision)
}

// MoonKey returns "moon:<jde>".
func MoonKey(jde float64, precision ...int) string {
	return "moon:" + formatJDE(jde, precision)
}

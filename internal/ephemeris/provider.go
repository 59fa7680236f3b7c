// Package ephemeris defines the source of raw body positions used by the
// position service, and the precise VSOP87/ELP implementation of it.
//
// Providers are injected. A process may hold several (a precise primary and a
// Kepler fallback) and nothing here is global.
package ephemeris

import (
	"context"
	"errors"

	"github.com/star/orrery/internal/catalog"
	"github.com/star/orrery/internal/transform"
)

// ErrProviderUnavailable is returned when a provider cannot serve a request
// because its data is missing or failed to load. Callers may fall back to a
// less precise provider.
var ErrProviderUnavailable = errors.New("ephemeris provider unavailable")

// Sample is a provider position. Converged is false when an iterative solve
// hit its cap; Position then holds the last iterate and is still usable.
type Sample struct {
	Position  transform.Ecliptic
	Converged bool
}

// Provider supplies positions and Earth orientation quantities.
//
// Angles are radians. Planet ranges are AU, the Moon's range is km.
type Provider interface {
	// Name identifies the provider in logs, metrics and records.
	Name() string
	// Load prepares any data the provider needs. It is safe to call repeatedly.
	Load(ctx context.Context) error
	// HeliocentricPosition returns a planet's heliocentric ecliptic position.
	HeliocentricPosition(ctx context.Context, body catalog.Body, jde float64) (Sample, error)
	// GeocentricMoonPosition returns the Moon's geocentric ecliptic position.
	GeocentricMoonPosition(ctx context.Context, jde float64) (Sample, error)
	// TrueObliquity returns the obliquity of the ecliptic at jde.
	TrueObliquity(ctx context.Context, jde float64) (float64, error)
	// ApparentSiderealTime returns Greenwich sidereal time at UT jd.
	ApparentSiderealTime(ctx context.Context, jd float64) (float64, error)
}

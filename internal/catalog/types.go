// Package catalog holds the orbital element sets used by the Kepler propagator
// and the list of bodies the service knows about.
package catalog

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/star/orrery/internal/orbit"
)

// Body identifies a solar-system body.
type Body string

const (
	Sun     Body = "sun"
	Moon    Body = "moon"
	Mercury Body = "mercury"
	Venus   Body = "venus"
	Earth   Body = "earth"
	Mars    Body = "mars"
	Jupiter Body = "jupiter"
	Saturn  Body = "saturn"
	Uranus  Body = "uranus"
	Neptune Body = "neptune"
)

var (
	// InnerPlanets are the terrestrial planets, Earth included.
	InnerPlanets = []Body{Mercury, Venus, Earth, Mars}
	// OuterPlanets are the giant planets.
	OuterPlanets = []Body{Jupiter, Saturn, Uranus, Neptune}
	// AllPlanets lists the eight planets in order from the Sun.
	AllPlanets = append(append([]Body{}, InnerPlanets...), OuterPlanets...)
)

// ErrUnknownBody is returned for names that do not identify a supported body.
var ErrUnknownBody = errors.New("unknown body")

// ParseBody resolves a case-insensitive body name.
func ParseBody(s string) (Body, error) {
	b := Body(strings.ToLower(strings.TrimSpace(s)))
	switch b {
	case Sun, Moon, Mercury, Venus, Earth, Mars, Jupiter, Saturn, Uranus, Neptune:
		return b, nil
	}
	return "", fmt.Errorf("%w: %q", ErrUnknownBody, s)
}

// IsPlanet reports whether b is one of the eight planets.
func (b Body) IsPlanet() bool {
	for _, p := range AllPlanets {
		if p == b {
			return true
		}
	}
	return false
}

// Planets returns all eight planets, or only the inner four when includeOuter is false.
func Planets(includeOuter bool) []Body {
	if includeOuter {
		return append([]Body{}, AllPlanets...)
	}
	return append([]Body{}, InnerPlanets...)
}

// Catalog is an immutable set of element sets keyed by body. Planet elements
// are heliocentric with A in AU; the Moon's are geocentric with A in km.
type Catalog struct {
	Source   string
	LoadedAt time.Time
	elements map[Body]orbit.Elements
}

// New builds a Catalog from a map, copying it.
func New(source string, elements map[Body]orbit.Elements) *Catalog {
	m := make(map[Body]orbit.Elements, len(elements))
	for b, el := range elements {
		m[b] = el
	}
	return &Catalog{Source: source, LoadedAt: time.Now(), elements: m}
}

// Elements returns the element set for b.
func (c *Catalog) Elements(b Body) (orbit.Elements, error) {
	el, ok := c.elements[b]
	if !ok {
		return orbit.Elements{}, fmt.Errorf("%w: no elements for %q in catalog %s", ErrUnknownBody, b, c.Source)
	}
	return el, nil
}

// Bodies returns the bodies present, in AllPlanets order followed by the Moon.
func (c *Catalog) Bodies() []Body {
	var out []Body
	for _, b := range append(append([]Body{}, AllPlanets...), Moon) {
		if _, ok := c.elements[b]; ok {
			out = append(out, b)
		}
	}
	return out
}

// Merge returns a new catalog with override's entries replacing c's.
func (c *Catalog) Merge(override *Catalog) *Catalog {
	m := make(map[Body]orbit.Elements, len(c.elements))
	for b, el := range c.elements {
		m[b] = el
	}
	for b, el := range override.elements {
		m[b] = el
	}
	return New(override.Source, m)
}

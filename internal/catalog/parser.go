package catalog

import (
	_ "embed"
	"fmt"
	"io"
	"log/slog"
	"math"
	"os"
	"sync"

	"gopkg.in/yaml.v3"

	"github.com/star/orrery/internal/orbit"
)

//go:embed elements.yaml
var defaultElements []byte

const deg = math.Pi / 180

// entry is the on-disk form of an element set (degrees, days).
type entry struct {
	A        float64 `yaml:"a"`
	E        float64 `yaml:"e"`
	I        float64 `yaml:"i"`
	Node     float64 `yaml:"node"`
	Peri     float64 `yaml:"peri"`
	M0       float64 `yaml:"m0"`
	Period   float64 `yaml:"period"`
	Epoch    float64 `yaml:"epoch"`
	NodeRate float64 `yaml:"node_rate"`
	PeriRate float64 `yaml:"peri_rate"`
}

type document struct {
	Bodies map[string]entry `yaml:"bodies"`
}

func (e entry) validate() error {
	switch {
	case math.IsNaN(e.E) || e.E < 0 || e.E >= 1:
		return fmt.Errorf("eccentricity %v outside [0, 1)", e.E)
	case !(e.A > 0):
		return fmt.Errorf("semi-major axis %v must be positive", e.A)
	case !(e.Period > 0):
		return fmt.Errorf("period %v must be positive", e.Period)
	}
	return nil
}

func (e entry) elements() orbit.Elements {
	return orbit.Elements{
		A:        e.A,
		E:        e.E,
		I:        e.I * deg,
		Node:     e.Node * deg,
		Peri:     e.Peri * deg,
		M0:       e.M0 * deg,
		Period:   e.Period,
		Epoch:    e.Epoch,
		NodeRate: e.NodeRate * deg,
		PeriRate: e.PeriRate * deg,
	}
}

// Parse reads a YAML element catalog from r. Unknown bodies and invalid
// element sets are skipped with a warning log.
func Parse(r io.Reader, source string, logger *slog.Logger) (*Catalog, error) {
	var doc document
	if err := yaml.NewDecoder(r).Decode(&doc); err != nil {
		return nil, fmt.Errorf("decoding catalog %s: %w", source, err)
	}

	elements := make(map[Body]orbit.Elements, len(doc.Bodies))
	for name, e := range doc.Bodies {
		body, err := ParseBody(name)
		if err != nil || body == Sun {
			logger.Warn("skipping catalog entry for unsupported body", "body", name, "source", source)
			continue
		}
		if err := e.validate(); err != nil {
			logger.Warn("skipping invalid catalog entry", "body", name, "source", source, "error", err)
			continue
		}
		elements[body] = e.elements()
	}

	if len(elements) == 0 {
		return nil, fmt.Errorf("catalog %s contains no usable element sets", source)
	}
	return New(source, elements), nil
}

var builtin = sync.OnceValue(func() *Catalog {
	c, err := parseBytes(defaultElements, "builtin", slog.New(slog.NewJSONHandler(io.Discard, nil)))
	if err != nil {
		panic("catalog: invalid builtin elements: " + err.Error())
	}
	return c
})

// Default returns the built-in J2000 catalog. The value is shared and must not
// be modified.
func Default() *Catalog {
	return builtin()
}

// LoadFile reads an override catalog and merges it over the built-in one.
func LoadFile(path string, logger *slog.Logger) (*Catalog, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("opening catalog: %w", err)
	}
	defer f.Close()

	override, err := Parse(f, path, logger)
	if err != nil {
		return nil, err
	}
	return Default().Merge(override), nil
}

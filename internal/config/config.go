// Package config loads service configuration from ORRERY_* environment
// variables.
package config

import (
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/caarlos0/env/v11"

	"github.com/star/orrery/internal/cache"
	"github.com/star/orrery/internal/transform"
)

// Provider names accepted by ORRERY_PROVIDER.
const (
	ProviderVSOP87 = "vsop87"
	ProviderKepler = "kepler"
)

// Config is the full service configuration.
type Config struct {
	HTTPAddr string `env:"ORRERY_HTTP_ADDR" envDefault:":8080"`
	LogLevel string `env:"ORRERY_LOG_LEVEL" envDefault:"info"`

	CacheEnabled       bool          `env:"ORRERY_CACHE_ENABLED" envDefault:"true"`
	CacheMaxEntries    int           `env:"ORRERY_CACHE_MAX_ENTRIES" envDefault:"1000"`
	CacheTTL           time.Duration `env:"ORRERY_CACHE_TTL" envDefault:"60s"`
	CachePruneInterval time.Duration `env:"ORRERY_CACHE_PRUNE_INTERVAL" envDefault:"30s"`
	KeyPrecision       int           `env:"ORRERY_CACHE_KEY_PRECISION" envDefault:"6"`

	IncludeOuterPlanets bool `env:"ORRERY_INCLUDE_OUTER_PLANETS" envDefault:"true"`
	CalculateGeocentric bool `env:"ORRERY_CALCULATE_GEOCENTRIC" envDefault:"true"`

	ObserverLat       *float64 `env:"ORRERY_OBSERVER_LAT"`
	ObserverLon       *float64 `env:"ORRERY_OBSERVER_LON"`
	ObserverElevation float64  `env:"ORRERY_OBSERVER_ELEVATION"`

	Provider       string `env:"ORRERY_PROVIDER" envDefault:"vsop87"`
	VSOP87Dir      string `env:"ORRERY_VSOP87_DIR"`
	KeplerFallback bool   `env:"ORRERY_KEPLER_FALLBACK" envDefault:"false"`
	CatalogFile    string `env:"ORRERY_CATALOG_FILE"`
	CatalogURL     string `env:"ORRERY_CATALOG_URL"`
	DeltaT         string `env:"ORRERY_DELTA_T" envDefault:"meeus"`

	AuthEnabled bool    `env:"ORRERY_AUTH_ENABLED" envDefault:"false"`
	AuthToken   string  `env:"ORRERY_AUTH_TOKEN"`
	RateLimit   float64 `env:"ORRERY_RATE_LIMIT" envDefault:"20"`
	RateBurst   int     `env:"ORRERY_RATE_BURST" envDefault:"40"`
	TrustProxy  bool    `env:"ORRERY_TRUST_PROXY" envDefault:"false"`

	StreamMaxConcurrent int           `env:"ORRERY_STREAM_MAX_CONCURRENT" envDefault:"10"`
	StreamMaxTotal      int           `env:"ORRERY_STREAM_MAX_TOTAL" envDefault:"1000"`
	StreamKeepalive     time.Duration `env:"ORRERY_STREAM_KEEPALIVE" envDefault:"30s"`

	WarmHorizon time.Duration `env:"ORRERY_WARM_HORIZON" envDefault:"0s"`
	WarmStep    time.Duration `env:"ORRERY_WARM_STEP" envDefault:"1m"`

	OTelEndpoint string `env:"ORRERY_OTEL_ENDPOINT"`
}

// Parse loads configuration from the environment.
func Parse() (Config, error) {
	var cfg Config
	if err := env.Parse(&cfg); err != nil {
		return Config{}, fmt.Errorf("parse env: %w", err)
	}
	return cfg, nil
}

// Validate rejects settings the service cannot run with and replaces
// out-of-range tunables with their defaults, logging a warning for each.
func (c *Config) Validate(logger *slog.Logger) error {
	var errs []error

	if c.AuthEnabled && c.AuthToken == "" {
		errs = append(errs, errors.New("ORRERY_AUTH_TOKEN is required when auth is enabled"))
	}

	c.Provider = strings.ToLower(strings.TrimSpace(c.Provider))
	switch c.Provider {
	case ProviderVSOP87, ProviderKepler:
	default:
		errs = append(errs, fmt.Errorf("ORRERY_PROVIDER must be %q or %q, got %q", ProviderVSOP87, ProviderKepler, c.Provider))
	}

	switch {
	case (c.ObserverLat == nil) != (c.ObserverLon == nil):
		errs = append(errs, errors.New("ORRERY_OBSERVER_LAT and ORRERY_OBSERVER_LON must be set together"))
	case c.ObserverLat != nil:
		if *c.ObserverLat < -90 || *c.ObserverLat > 90 {
			errs = append(errs, fmt.Errorf("ORRERY_OBSERVER_LAT must be within [-90, 90], got %v", *c.ObserverLat))
		}
		if *c.ObserverLon < -180 || *c.ObserverLon > 180 {
			errs = append(errs, fmt.Errorf("ORRERY_OBSERVER_LON must be within [-180, 180], got %v", *c.ObserverLon))
		}
	}

	if c.CacheMaxEntries < 1 {
		logger.Warn("invalid ORRERY_CACHE_MAX_ENTRIES value, using default", "value", c.CacheMaxEntries, "default", 1000)
		c.CacheMaxEntries = 1000
	}
	if c.CacheTTL <= 0 {
		logger.Warn("invalid ORRERY_CACHE_TTL value, using default", "value", c.CacheTTL.String(), "default", "60s")
		c.CacheTTL = time.Minute
	}
	if c.CachePruneInterval <= 0 {
		logger.Warn("invalid ORRERY_CACHE_PRUNE_INTERVAL value, using default", "value", c.CachePruneInterval.String(), "default", "30s")
		c.CachePruneInterval = 30 * time.Second
	}
	if c.KeyPrecision < 1 || c.KeyPrecision > 12 {
		logger.Warn("invalid ORRERY_CACHE_KEY_PRECISION value, using default", "value", c.KeyPrecision, "default", cache.DefaultKeyPrecision)
		c.KeyPrecision = cache.DefaultKeyPrecision
	}
	if c.RateLimit <= 0 {
		logger.Warn("invalid ORRERY_RATE_LIMIT value, using default", "value", c.RateLimit, "default", 20)
		c.RateLimit = 20
	}
	if c.RateBurst < 1 {
		logger.Warn("invalid ORRERY_RATE_BURST value, using default", "value", c.RateBurst, "default", 40)
		c.RateBurst = 40
	}
	if c.StreamMaxConcurrent < 1 {
		logger.Warn("invalid ORRERY_STREAM_MAX_CONCURRENT value, using default", "value", c.StreamMaxConcurrent, "default", 10)
		c.StreamMaxConcurrent = 10
	}
	if c.StreamKeepalive <= 0 {
		logger.Warn("invalid ORRERY_STREAM_KEEPALIVE value, using default", "value", c.StreamKeepalive.String(), "default", "30s")
		c.StreamKeepalive = 30 * time.Second
	}
	if c.WarmStep <= 0 {
		logger.Warn("invalid ORRERY_WARM_STEP value, using default", "value", c.WarmStep.String(), "default", "1m")
		c.WarmStep = time.Minute
	}

	return errors.Join(errs...)
}

// Cache returns the cache configuration.
func (c Config) Cache() cache.Config {
	return cache.Config{
		Enabled:    c.CacheEnabled,
		MaxEntries: c.CacheMaxEntries,
		TTL:        c.CacheTTL,
	}
}

// Observer returns the default observer, or nil when none is configured.
func (c Config) Observer() *transform.Observer {
	if c.ObserverLat == nil || c.ObserverLon == nil {
		return nil
	}
	return &transform.Observer{
		Latitude:  *c.ObserverLat,
		Longitude: *c.ObserverLon,
		Elevation: c.ObserverElevation,
	}
}

// Level returns the slog level named by LogLevel, defaulting to Info.
func (c Config) Level() slog.Level {
	var l slog.Level
	if err := l.UnmarshalText([]byte(c.LogLevel)); err != nil {
		return slog.LevelInfo
	}
	return l
}

package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"runtime"

	"github.com/star/orrery/internal/catalog"
	"github.com/star/orrery/internal/config"
	"github.com/star/orrery/internal/engine"
	"github.com/star/orrery/internal/ephemeris"
	"github.com/star/orrery/internal/orbit"
	"github.com/star/orrery/internal/position"
	"github.com/star/orrery/internal/propagation"
	"github.com/star/orrery/internal/timescale"
)

func newLogger(level slog.Level) *slog.Logger {
	return slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: level}))
}

// stderrLogger keeps query command output on stdout clean.
func stderrLogger(level slog.Level) *slog.Logger {
	return slog.New(slog.NewJSONHandler(os.Stderr, &slog.HandlerOptions{Level: level}))
}

// loadConfig parses and validates the environment.
func loadConfig(logger *slog.Logger) (config.Config, error) {
	cfg, err := config.Parse()
	if err != nil {
		return cfg, err
	}
	if err := cfg.Validate(logger); err != nil {
		return cfg, fmt.Errorf("invalid configuration: %w", err)
	}
	return cfg, nil
}

// loadCatalog returns the configured override catalog merged over the
// built-in one, or the built-in catalog when none is configured.
func loadCatalog(cfg config.Config, logger *slog.Logger) (*catalog.Catalog, error) {
	if cfg.CatalogFile == "" {
		return catalog.Default(), nil
	}
	c, err := catalog.LoadFile(cfg.CatalogFile, logger)
	if err != nil {
		return nil, err
	}
	logger.Info("loaded element catalog", "path", cfg.CatalogFile, "bodies", len(c.Bodies()))
	return catalog.Default().Merge(c), nil
}

// catalogReloader returns the reload source for POST /api/v1/catalog/reload:
// the remote URL when configured, otherwise the catalog file. It returns nil
// when neither is set.
func catalogReloader(cfg config.Config, logger *slog.Logger) func(ctx context.Context) (*catalog.Catalog, error) {
	switch {
	case cfg.CatalogURL != "":
		f := catalog.NewFetcher(cfg.CatalogURL, logger)
		return f.Fetch
	case cfg.CatalogFile != "":
		return func(ctx context.Context) (*catalog.Catalog, error) {
			return catalog.LoadFile(cfg.CatalogFile, logger)
		}
	}
	return nil
}

// buildEngine assembles the providers and the engine described by cfg.
func buildEngine(cfg config.Config, logger *slog.Logger) (*engine.Engine, error) {
	cat, err := loadCatalog(cfg, logger)
	if err != nil {
		return nil, err
	}
	store := catalog.NewStore(cat)

	deltaT, err := timescale.DeltaTByName(cfg.DeltaT)
	if err != nil {
		return nil, err
	}

	kepler := propagation.NewPropagator(store, logger)
	var (
		primary  ephemeris.Provider = kepler
		fallback ephemeris.Provider
	)
	if cfg.Provider == config.ProviderVSOP87 {
		primary = ephemeris.NewVSOP87Provider(cfg.VSOP87Dir, logger)
		if cfg.KeplerFallback {
			fallback = kepler
		}
	}

	ecfg := engine.Config{
		Position: position.Config{
			Cache:               cfg.Cache(),
			IncludeOuterPlanets: cfg.IncludeOuterPlanets,
			CalculateGeocentric: cfg.CalculateGeocentric,
			AllowKeplerFallback: cfg.KeplerFallback,
			KeyPrecision:        cfg.KeyPrecision,
			DisplayScale:        orbit.DefaultDisplayScale,
			Concurrency:         runtime.NumCPU(),
		},
		Observer: cfg.Observer(),
	}

	opts := []engine.Option{
		engine.WithCatalog(store),
		engine.WithConverter(timescale.NewConverter(deltaT)),
		engine.WithLogger(logger),
	}
	if fallback != nil {
		opts = append(opts, engine.WithFallback(fallback))
	}

	logger.Info("engine configured",
		"provider", primary.Name(),
		"kepler_fallback", fallback != nil,
		"delta_t", cfg.DeltaT,
		"cache_enabled", cfg.CacheEnabled,
		"default_observer", cfg.Observer() != nil,
	)
	return engine.New(ecfg, primary, opts...), nil
}

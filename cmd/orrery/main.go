// Command orrery serves and queries solar-system positions.
package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/star/orrery/internal/api"
	"github.com/star/orrery/internal/auth"
	"github.com/star/orrery/internal/cache"
	"github.com/star/orrery/internal/stream"
	"github.com/star/orrery/internal/telemetry"
)

func main() {
	rootCmd := &cobra.Command{
		Use:           "orrery",
		Short:         "Solar-system position engine",
		Long:          "orrery computes positions of the Sun, Moon and planets and serves them over HTTP.",
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	rootCmd.AddCommand(serveCmd())
	rootCmd.AddCommand(positionCmd())
	rootCmd.AddCommand(stateCmd())
	rootCmd.AddCommand(jdCmd())
	rootCmd.AddCommand(visibilityCmd())

	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "error:", err)
		os.Exit(1)
	}
}

func serveCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the HTTP API",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServe(cmd)
		},
	}
	cmd.Flags().String("addr", "", "listen address (overrides ORRERY_HTTP_ADDR)")
	cmd.Flags().String("provider", "", "ephemeris provider: vsop87 or kepler (overrides ORRERY_PROVIDER)")
	cmd.Flags().String("log-level", "", "log level (overrides ORRERY_LOG_LEVEL)")
	return cmd
}

func runServe(cmd *cobra.Command) error {
	bootLogger := newLogger(slog.LevelInfo)

	cfg, err := loadConfig(bootLogger)
	if err != nil {
		return err
	}
	if v, _ := cmd.Flags().GetString("addr"); v != "" {
		cfg.HTTPAddr = v
	}
	if v, _ := cmd.Flags().GetString("provider"); v != "" {
		cfg.Provider = v
		if err := cfg.Validate(bootLogger); err != nil {
			return err
		}
	}
	if v, _ := cmd.Flags().GetString("log-level"); v != "" {
		cfg.LogLevel = v
	}
	logger := newLogger(cfg.Level())

	// Graceful shutdown on SIGINT/SIGTERM.
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	shutdownTracing, err := telemetry.Setup(ctx, "orrery", cfg.OTelEndpoint)
	if err != nil {
		return fmt.Errorf("telemetry setup: %w", err)
	}
	defer func() {
		sctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := shutdownTracing(sctx); err != nil {
			logger.Warn("tracer shutdown error", "error", err)
		}
	}()

	eng, err := buildEngine(cfg, logger)
	if err != nil {
		return err
	}

	// Initialize in the background; /readyz reports 503 until it succeeds and
	// the first position request retries a failed run.
	go func() {
		if err := eng.Initialize(ctx); err != nil {
			logger.Warn("initial engine load failed, will retry on demand", "error", err)
			return
		}
		if cfg.WarmHorizon > 0 {
			n, err := eng.Warm(ctx, time.Now().UTC(), cfg.WarmHorizon, cfg.WarmStep)
			if err != nil {
				logger.Warn("cache warmup incomplete", "frames", n, "error", err)
			}
		}
	}()

	janitor := cache.NewJanitor(cfg.CachePruneInterval, eng.Service().Pruners(), logger)
	go janitor.Start(ctx)

	streamHandler := stream.NewHandler(eng, stream.Config{
		MaxConcurrentPerIP: cfg.StreamMaxConcurrent,
		MaxConcurrent:      cfg.StreamMaxTotal,
		KeepaliveInterval:  cfg.StreamKeepalive,
		TrustProxy:         cfg.TrustProxy,
	}, logger)

	srv := api.NewServer(api.Options{
		Addr:          cfg.HTTPAddr,
		Auth:          auth.Config{Enabled: cfg.AuthEnabled, Token: cfg.AuthToken},
		RateLimit:     cfg.RateLimit,
		RateBurst:     cfg.RateBurst,
		TrustProxy:    cfg.TrustProxy,
		ReloadCatalog: catalogReloader(cfg, logger),
	}, eng, streamHandler, logger)
	srv.StartLimiterCleanup(ctx, 5*time.Minute)

	errCh := make(chan error, 1)
	go func() {
		logger.Info("starting server",
			"addr", cfg.HTTPAddr,
			"auth_enabled", cfg.AuthEnabled,
			"provider", cfg.Provider,
			"tracing_enabled", cfg.OTelEndpoint != "",
		)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	select {
	case <-ctx.Done():
	case err := <-errCh:
		return fmt.Errorf("server listen: %w", err)
	}
	logger.Info("shutting down server...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := srv.HTTPServer().Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("server shutdown: %w", err)
	}

	logger.Info("server stopped")
	return nil
}

package cache

import (
	"context"
	"log/slog"
	"time"
)

// Pruner is implemented by caches the Janitor can sweep.
type Pruner interface {
	Prune() int
}

// Janitor periodically removes expired entries from a set of named caches.
type Janitor struct {
	interval time.Duration
	caches   map[string]Pruner
	logger   *slog.Logger
}

// NewJanitor creates a Janitor. A non-positive interval defaults to 30s.
func NewJanitor(interval time.Duration, caches map[string]Pruner, logger *slog.Logger) *Janitor {
	if interval <= 0 {
		interval = 30 * time.Second
	}
	return &Janitor{interval: interval, caches: caches, logger: logger}
}

// Start runs the sweep loop until ctx is cancelled.
func (j *Janitor) Start(ctx context.Context) {
	j.logger.Info("cache janitor started", "interval_seconds", j.interval.Seconds(), "caches", len(j.caches))

	ticker := time.NewTicker(j.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			j.logger.Info("cache janitor stopped")
			return
		case <-ticker.C:
			j.Sweep()
		}
	}
}

// Sweep prunes every cache once and returns the total removed.
func (j *Janitor) Sweep() int {
	total := 0
	for name, c := range j.caches {
		if n := c.Prune(); n > 0 {
			j.logger.Debug("cache pruned", "cache", name, "entries_removed", n)
			total += n
		}
	}
	return total
}

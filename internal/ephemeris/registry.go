package ephemeris

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"
)

// LoadFunc loads the dataset for one key.
type LoadFunc[K comparable, V any] func(ctx context.Context, key K) (V, error)

// Registry memoizes per-key datasets. Each key is loaded at most once on
// success; failures are not remembered so a later call retries. Reads after
// the first load take no lock.
type Registry[K comparable, V any] struct {
	name   string
	load   LoadFunc[K, V]
	logger *slog.Logger

	loaded atomic.Pointer[map[K]V] // immutable snapshot, replaced copy-on-write
	mu     sync.Mutex              // serializes loads
}

// NewRegistry creates a Registry that loads missing keys with load.
func NewRegistry[K comparable, V any](name string, load LoadFunc[K, V], logger *slog.Logger) *Registry[K, V] {
	r := &Registry[K, V]{name: name, load: load, logger: logger}
	empty := make(map[K]V)
	r.loaded.Store(&empty)
	return r
}

// Get returns the dataset for key, loading it on first use (double-checked locking).
func (r *Registry[K, V]) Get(ctx context.Context, key K) (V, error) {
	if v, ok := (*r.loaded.Load())[key]; ok {
		return v, nil
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	current := *r.loaded.Load()
	if v, ok := current[key]; ok {
		return v, nil
	}

	var zero V
	if err := ctx.Err(); err != nil {
		return zero, err
	}

	start := time.Now()
	v, err := r.load(ctx, key)
	if err != nil {
		r.logger.Warn("ephemeris dataset load failed", "registry", r.name, "key", fmt.Sprint(key), "error", err)
		return zero, err
	}

	next := make(map[K]V, len(current)+1)
	for k, existing := range current {
		next[k] = existing
	}
	next[key] = v
	r.loaded.Store(&next)

	r.logger.Info("ephemeris dataset loaded",
		"registry", r.name,
		"key", fmt.Sprint(key),
		"duration_ms", time.Since(start).Milliseconds(),
	)
	return v, nil
}

// Len returns the number of loaded datasets.
func (r *Registry[K, V]) Len() int {
	return len(*r.loaded.Load())
}

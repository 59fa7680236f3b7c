package catalog

import (
	"sync/atomic"
	"time"
)

// Store provides thread-safe access to the current catalog so it can be
// replaced at runtime without blocking readers.
type Store struct {
	current atomic.Pointer[Catalog]
}

// NewStore creates a Store holding c, or the built-in catalog when c is nil.
func NewStore(c *Catalog) *Store {
	if c == nil {
		c = Default()
	}
	s := &Store{}
	s.current.Store(c)
	return s
}

// Get returns the current catalog.
func (s *Store) Get() *Catalog {
	return s.current.Load()
}

// Set atomically replaces the current catalog.
func (s *Store) Set(c *Catalog) {
	s.current.Store(c)
}

// AgeSeconds returns how long ago the current catalog was loaded.
func (s *Store) AgeSeconds() float64 {
	return time.Since(s.current.Load().LoadedAt).Seconds()
}

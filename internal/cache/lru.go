// Package cache provides the bounded in-memory position caches.
//
// LRU combines least-recently-used eviction with a per-entry time-to-live. The
// recency order is an intrusive doubly linked list indexed by a map, so every
// operation is O(1) apart from Prune. A Janitor periodically prunes expired
// entries from a set of caches.
package cache

import (
	"sync"
	"time"
)

// Config holds cache configuration.
type Config struct {
	Enabled    bool
	MaxEntries int
	TTL        time.Duration
}

// DefaultConfig returns the standard cache configuration: enabled, 1000
// entries, one minute TTL.
func DefaultConfig() Config {
	return Config{Enabled: true, MaxEntries: 1000, TTL: time.Minute}
}

// Metrics receives cache lifecycle events.
type Metrics interface {
	Hit()
	Miss()
	Eviction()
	Expire()
}

// NoopMetrics discards all events.
type NoopMetrics struct{}

func (NoopMetrics) Hit()      {}
func (NoopMetrics) Miss()     {}
func (NoopMetrics) Eviction() {}
func (NoopMetrics) Expire()   {}

// Stats is a snapshot of cache counters.
type Stats struct {
	Hits        int64   `json:"hits"`
	Misses      int64   `json:"misses"`
	Evictions   int64   `json:"evictions"`
	Expirations int64   `json:"expirations"`
	Size        int     `json:"size"`
	HitRate     float64 `json:"hit_rate"`
}

// Add merges two snapshots, recomputing the hit rate.
func (s Stats) Add(o Stats) Stats {
	out := Stats{
		Hits:        s.Hits + o.Hits,
		Misses:      s.Misses + o.Misses,
		Evictions:   s.Evictions + o.Evictions,
		Expirations: s.Expirations + o.Expirations,
		Size:        s.Size + o.Size,
	}
	if total := out.Hits + out.Misses; total > 0 {
		out.HitRate = float64(out.Hits) / float64(total)
	}
	return out
}

// Option configures an LRU.
type Option func(*options)

type options struct {
	now     func() time.Time
	metrics Metrics
}

// WithClock replaces time.Now, for tests.
func WithClock(now func() time.Time) Option {
	return func(o *options) { o.now = now }
}

// WithMetrics attaches a metrics sink.
func WithMetrics(m Metrics) Option {
	return func(o *options) { o.metrics = m }
}

type node[K comparable, V any] struct {
	key        K
	value      V
	storedAt   time.Time
	prev, next *node[K, V]
}

// LRU is a size- and age-bounded cache. Head is the most recently used entry.
// Safe for concurrent use by multiple goroutines.
type LRU[K comparable, V any] struct {
	mu    sync.Mutex
	index map[K]*node[K, V]
	head  *node[K, V]
	tail  *node[K, V]

	config  Config
	now     func() time.Time
	metrics Metrics

	hits, misses, evictions, expirations int64
}

// NewLRU creates a cache. A disabled config or one with MaxEntries <= 0
// produces a cache that stores nothing and reports every lookup as a miss.
func NewLRU[K comparable, V any](config Config, opts ...Option) *LRU[K, V] {
	o := options{now: time.Now, metrics: NoopMetrics{}}
	for _, opt := range opts {
		opt(&o)
	}
	return &LRU[K, V]{
		index:   make(map[K]*node[K, V]),
		config:  config,
		now:     o.now,
		metrics: o.metrics,
	}
}

func (c *LRU[K, V]) active() bool {
	return c.config.Enabled && c.config.MaxEntries > 0
}

// expired reports whether n is older than the TTL. A non-positive TTL never expires.
func (c *LRU[K, V]) expired(n *node[K, V], now time.Time) bool {
	return c.config.TTL > 0 && now.Sub(n.storedAt) > c.config.TTL
}

// Get returns the value for key and marks it most recently used. An expired
// entry is removed and counted as a miss.
func (c *LRU[K, V]) Get(key K) (V, bool) {
	var zero V

	c.mu.Lock()
	defer c.mu.Unlock()

	if !c.active() {
		c.miss()
		return zero, false
	}

	n, ok := c.index[key]
	if !ok {
		c.miss()
		return zero, false
	}

	if c.expired(n, c.now()) {
		c.remove(n)
		c.expirations++
		c.metrics.Expire()
		c.miss()
		return zero, false
	}

	c.moveToFront(n)
	c.hits++
	c.metrics.Hit()
	return n.value, true
}

// Set stores value under key with a fresh timestamp. Inserting a new key into
// a full cache first evicts the least recently used entry.
func (c *LRU[K, V]) Set(key K, value V) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if !c.active() {
		return
	}

	now := c.now()
	if n, ok := c.index[key]; ok {
		n.value = value
		n.storedAt = now
		c.moveToFront(n)
		return
	}

	if len(c.index) >= c.config.MaxEntries && c.tail != nil {
		c.remove(c.tail)
		c.evictions++
		c.metrics.Eviction()
	}

	n := &node[K, V]{key: key, value: value, storedAt: now}
	c.index[key] = n
	c.pushFront(n)
}

// Has reports whether a live entry exists for key without changing its recency.
// An expired entry is removed.
func (c *LRU[K, V]) Has(key K) bool {
	c.mu.Lock()
	defer c.mu.Unlock()

	if !c.active() {
		return false
	}
	n, ok := c.index[key]
	if !ok {
		return false
	}
	if c.expired(n, c.now()) {
		c.remove(n)
		c.expirations++
		c.metrics.Expire()
		return false
	}
	return true
}

// Delete removes key and reports whether it was present.
func (c *LRU[K, V]) Delete(key K) bool {
	c.mu.Lock()
	defer c.mu.Unlock()

	n, ok := c.index[key]
	if !ok {
		return false
	}
	c.remove(n)
	return true
}

// Clear removes all entries and resets the counters.
func (c *LRU[K, V]) Clear() {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.index = make(map[K]*node[K, V])
	c.head, c.tail = nil, nil
	c.hits, c.misses, c.evictions, c.expirations = 0, 0, 0, 0
}

// Prune removes every expired entry and returns how many were removed.
func (c *LRU[K, V]) Prune() int {
	c.mu.Lock()
	defer c.mu.Unlock()

	now := c.now()
	removed := 0
	// Walk from the tail: older entries cluster there, but a re-set entry can
	// be younger than its neighbours, so the whole list is checked.
	for n := c.tail; n != nil; {
		prev := n.prev
		if c.expired(n, now) {
			c.remove(n)
			removed++
		}
		n = prev
	}
	c.expirations += int64(removed)
	for i := 0; i < removed; i++ {
		c.metrics.Expire()
	}
	return removed
}

// Len returns the number of stored entries, expired or not.
func (c *LRU[K, V]) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.index)
}

// Stats returns a snapshot of the counters.
func (c *LRU[K, V]) Stats() Stats {
	c.mu.Lock()
	defer c.mu.Unlock()

	s := Stats{
		Hits:        c.hits,
		Misses:      c.misses,
		Evictions:   c.evictions,
		Expirations: c.expirations,
		Size:        len(c.index),
	}
	if total := c.hits + c.misses; total > 0 {
		s.HitRate = float64(c.hits) / float64(total)
	}
	return s
}

// Keys returns keys from most to least recently used.
func (c *LRU[K, V]) Keys() []K {
	c.mu.Lock()
	defer c.mu.Unlock()

	keys := make([]K, 0, len(c.index))
	for n := c.head; n != nil; n = n.next {
		keys = append(keys, n.key)
	}
	return keys
}

func (c *LRU[K, V]) miss() {
	c.misses++
	c.metrics.Miss()
}

// List primitives. Caller must hold mu.

func (c *LRU[K, V]) pushFront(n *node[K, V]) {
	n.prev = nil
	n.next = c.head
	if c.head != nil {
		c.head.prev = n
	}
	c.head = n
	if c.tail == nil {
		c.tail = n
	}
}

func (c *LRU[K, V]) unlink(n *node[K, V]) {
	if n.prev != nil {
		n.prev.next = n.next
	} else {
		c.head = n.next
	}
	if n.next != nil {
		n.next.prev = n.prev
	} else {
		c.tail = n.prev
	}
	n.prev, n.next = nil, nil
}

func (c *LRU[K, V]) moveToFront(n *node[K, V]) {
	if c.head == n {
		return
	}
	c.unlink(n)
	c.pushFront(n)
}

func (c *LRU[K, V]) remove(n *node[K, V]) {
	c.unlink(n)
	delete(c.index, n.key)
}

package cache

import (
	"fmt"
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewJSONHandler(io.Discard, &slog.HandlerOptions{Level: slog.LevelWarn}))
}

// fakeClock is a manually advanced clock.
type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func newFakeClock() *fakeClock {
	return &fakeClock{now: time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)}
}

func (f *fakeClock) Now() time.Time {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.now
}

func (f *fakeClock) Advance(d time.Duration) {
	f.mu.Lock()
	f.now = f.now.Add(d)
	f.mu.Unlock()
}

type countingMetrics struct {
	hits, misses, evictions, expires int
}

func (m *countingMetrics) Hit()      { m.hits++ }
func (m *countingMetrics) Miss()     { m.misses++ }
func (m *countingMetrics) Eviction() { m.evictions++ }
func (m *countingMetrics) Expire()   { m.expires++ }

func TestLRU_GetSet(t *testing.T) {
	c := NewLRU[string, int](DefaultConfig())

	if _, ok := c.Get("a"); ok {
		t.Fatal("expected miss on empty cache")
	}
	c.Set("a", 1)
	v, ok := c.Get("a")
	if !ok || v != 1 {
		t.Fatalf("Get(a) = %v, %v; want 1, true", v, ok)
	}

	c.Set("a", 2)
	if v, _ := c.Get("a"); v != 2 {
		t.Errorf("overwrite: got %v, want 2", v)
	}
	if c.Len() != 1 {
		t.Errorf("Len = %d, want 1", c.Len())
	}

	stats := c.Stats()
	if stats.Hits != 2 || stats.Misses != 1 || stats.Size != 1 {
		t.Errorf("stats = %+v", stats)
	}
	if want := 2.0 / 3.0; stats.HitRate != want {
		t.Errorf("hit rate = %v, want %v", stats.HitRate, want)
	}
}

func TestLRU_EvictsLeastRecentlyUsed(t *testing.T) {
	m := &countingMetrics{}
	c := NewLRU[string, int](Config{Enabled: true, MaxEntries: 3, TTL: time.Minute}, WithMetrics(m))

	c.Set("a", 1)
	c.Set("b", 2)
	c.Set("c", 3)
	c.Get("a") // a becomes most recent; b is now the tail

	c.Set("d", 4)

	if c.Has("b") {
		t.Error("b should have been evicted")
	}
	for _, k := range []string{"a", "c", "d"} {
		if !c.Has(k) {
			t.Errorf("%s should be present", k)
		}
	}
	if c.Len() != 3 {
		t.Errorf("Len = %d, want 3", c.Len())
	}
	if got := c.Stats().Evictions; got != 1 {
		t.Errorf("evictions = %d, want 1", got)
	}
	if m.evictions != 1 {
		t.Errorf("metrics evictions = %d, want 1", m.evictions)
	}

	want := []string{"d", "a", "c"}
	got := c.Keys()
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("recency order = %v, want %v", got, want)
		}
	}
}

func TestLRU_OverwriteAtCapacityDoesNotEvict(t *testing.T) {
	c := NewLRU[int, int](Config{Enabled: true, MaxEntries: 2, TTL: time.Minute})
	c.Set(1, 1)
	c.Set(2, 2)
	c.Set(1, 10)

	if !c.Has(1) || !c.Has(2) {
		t.Error("overwriting an existing key must not evict")
	}
	if c.Stats().Evictions != 0 {
		t.Errorf("evictions = %d, want 0", c.Stats().Evictions)
	}
}

func TestLRU_TTL(t *testing.T) {
	clock := newFakeClock()
	m := &countingMetrics{}
	c := NewLRU[string, string](Config{Enabled: true, MaxEntries: 10, TTL: time.Minute},
		WithClock(clock.Now), WithMetrics(m))

	c.Set("k", "v")
	clock.Advance(time.Minute)
	if _, ok := c.Get("k"); !ok {
		t.Fatal("entry at exactly TTL age must still be live")
	}

	clock.Advance(time.Millisecond)
	if _, ok := c.Get("k"); ok {
		t.Fatal("expected expired entry to miss")
	}
	if c.Len() != 0 {
		t.Errorf("expired entry not removed, Len = %d", c.Len())
	}

	stats := c.Stats()
	if stats.Hits != 1 || stats.Misses != 1 || stats.Expirations != 1 {
		t.Errorf("stats = %+v", stats)
	}
	if m.expires != 1 || m.misses != 1 {
		t.Errorf("metrics = %+v", m)
	}
}

func TestLRU_SetRefreshesTimestamp(t *testing.T) {
	clock := newFakeClock()
	c := NewLRU[string, int](Config{Enabled: true, MaxEntries: 10, TTL: time.Minute}, WithClock(clock.Now))

	c.Set("k", 1)
	clock.Advance(50 * time.Second)
	c.Set("k", 2)
	clock.Advance(50 * time.Second)

	if v, ok := c.Get("k"); !ok || v != 2 {
		t.Errorf("Get = %v, %v; re-set should refresh the TTL", v, ok)
	}
}

func TestLRU_Prune(t *testing.T) {
	clock := newFakeClock()
	c := NewLRU[int, int](Config{Enabled: true, MaxEntries: 10, TTL: time.Minute}, WithClock(clock.Now))

	for i := 0; i < 5; i++ {
		c.Set(i, i)
	}
	clock.Advance(30 * time.Second)
	c.Set(5, 5)
	c.Set(0, 0) // refreshed, now younger than its former neighbours
	clock.Advance(31 * time.Second)

	if n := c.Prune(); n != 4 {
		t.Errorf("Prune removed %d, want 4", n)
	}
	if c.Len() != 2 || !c.Has(0) || !c.Has(5) {
		t.Errorf("remaining keys = %v, want [0 5]", c.Keys())
	}
	if n := c.Prune(); n != 0 {
		t.Errorf("second Prune removed %d, want 0", n)
	}
}

func TestLRU_Disabled(t *testing.T) {
	configs := map[string]Config{
		"disabled":     {Enabled: false, MaxEntries: 10, TTL: time.Minute},
		"zero entries": {Enabled: true, MaxEntries: 0, TTL: time.Minute},
		"negative":     {Enabled: true, MaxEntries: -5, TTL: time.Minute},
	}
	for name, cfg := range configs {
		t.Run(name, func(t *testing.T) {
			c := NewLRU[string, int](cfg)
			c.Set("a", 1)
			if _, ok := c.Get("a"); ok {
				t.Error("disabled cache returned a value")
			}
			if c.Has("a") || c.Len() != 0 {
				t.Error("disabled cache stored a value")
			}
			if s := c.Stats(); s.Misses != 1 || s.Hits != 0 {
				t.Errorf("stats = %+v", s)
			}
		})
	}
}

func TestLRU_DeleteAndClear(t *testing.T) {
	c := NewLRU[string, int](DefaultConfig())
	c.Set("a", 1)
	c.Set("b", 2)
	c.Get("a")
	c.Get("zzz")

	if !c.Delete("a") || c.Delete("a") {
		t.Error("Delete should report presence exactly once")
	}
	if c.Len() != 1 {
		t.Errorf("Len = %d, want 1", c.Len())
	}

	c.Clear()
	if c.Len() != 0 {
		t.Errorf("Len after Clear = %d", c.Len())
	}
	if s := c.Stats(); s != (Stats{}) {
		t.Errorf("Clear should reset counters, got %+v", s)
	}

	// The list must be usable after Clear.
	c.Set("c", 3)
	if v, ok := c.Get("c"); !ok || v != 3 {
		t.Errorf("Get after Clear = %v, %v", v, ok)
	}
}

func TestLRU_Concurrent(t *testing.T) {
	c := NewLRU[string, int](Config{Enabled: true, MaxEntries: 50, TTL: time.Minute})

	var wg sync.WaitGroup
	for g := 0; g < 8; g++ {
		wg.Add(1)
		go func(g int) {
			defer wg.Done()
			for i := 0; i < 500; i++ {
				k := fmt.Sprintf("k%d", (g*31+i)%120)
				c.Set(k, i)
				c.Get(k)
				if i%50 == 0 {
					c.Prune()
				}
			}
		}(g)
	}
	wg.Wait()

	if c.Len() > 50 {
		t.Errorf("Len = %d exceeds MaxEntries", c.Len())
	}
	if got := len(c.Keys()); got != c.Len() {
		t.Errorf("list has %d nodes but index has %d", got, c.Len())
	}
}

func TestStatsAdd(t *testing.T) {
	a := Stats{Hits: 3, Misses: 1, Size: 2}
	b := Stats{Hits: 1, Misses: 3, Size: 5, Evictions: 2}
	got := a.Add(b)
	if got.Hits != 4 || got.Misses != 4 || got.Size != 7 || got.Evictions != 2 || got.HitRate != 0.5 {
		t.Errorf("Add = %+v", got)
	}
}

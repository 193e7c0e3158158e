package cache

import (
	"fmt"
	"sync"
	"testing"
	"time"
)

// fakeClock lets TTL tests move time without sleeping
type fakeClock struct {
	mu  sync.Mutex
	now time.Time
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

func newWithClock[K comparable, V any](capacity int, ttl time.Duration) (*LRU[K, V], *fakeClock) {
	clock := &fakeClock{now: time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)}
	c := New[K, V](capacity, ttl)
	c.now = clock.Now
	return c, clock
}

func TestLRU_BasicOperations(t *testing.T) {
	c := New[string, int](3, 0)

	c.Put("a", 1)
	c.Put("b", 2)

	if v, ok := c.Get("a"); !ok || v != 1 {
		t.Errorf("Expected a=1, got %d (found=%v)", v, ok)
	}
	if _, ok := c.Get("missing"); ok {
		t.Error("Expected not to find missing key")
	}

	c.Put("a", 10)
	if v, _ := c.Get("a"); v != 10 {
		t.Errorf("Expected updated value 10, got %d", v)
	}
	if c.Len() != 2 {
		t.Errorf("Expected 2 entries, got %d", c.Len())
	}
}

func TestLRU_EvictionOrder(t *testing.T) {
	c := New[string, string](3, 0)
	c.Put("k1", "v1")
	c.Put("k2", "v2")
	c.Put("k3", "v3")

	// k1 becomes most recently used, so k2 is evicted next
	c.Get("k1")
	c.Put("k4", "v4")

	if _, ok := c.Get("k2"); ok {
		t.Error("Expected k2 to be evicted")
	}
	for _, k := range []string{"k1", "k3", "k4"} {
		if _, ok := c.Get(k); !ok {
			t.Errorf("Expected %s to still exist", k)
		}
	}
	if got := c.Stats().Evictions; got != 1 {
		t.Errorf("Expected 1 eviction, got %d", got)
	}
}

func TestLRU_Delete(t *testing.T) {
	c := New[int, string](2, 0)
	c.Put(1, "one")

	if !c.Delete(1) {
		t.Error("Expected delete of present key to succeed")
	}
	if c.Delete(1) {
		t.Error("Expected delete of absent key to report false")
	}
	if _, ok := c.Get(1); ok {
		t.Error("Expected deleted key to be gone")
	}
}

func TestLRU_TTL(t *testing.T) {
	c, clock := newWithClock[string, int](10, time.Minute)
	c.Put("a", 1)

	clock.Advance(30 * time.Second)
	if _, ok := c.Get("a"); !ok {
		t.Error("Expected entry to live before its TTL")
	}

	clock.Advance(31 * time.Second)
	if _, ok := c.Get("a"); ok {
		t.Error("Expected entry to expire after its TTL")
	}
	if c.Len() != 0 {
		t.Errorf("Expected expired entry to be removed, got %d entries", c.Len())
	}
}

func TestLRU_CleanupExpired(t *testing.T) {
	c, clock := newWithClock[string, int](10, time.Minute)
	c.Put("old1", 1)
	c.Put("old2", 2)
	clock.Advance(2 * time.Minute)
	c.Put("fresh", 3)

	if removed := c.CleanupExpired(); removed != 2 {
		t.Errorf("Expected 2 expired entries removed, got %d", removed)
	}
	if _, ok := c.Get("fresh"); !ok {
		t.Error("Expected fresh entry to survive cleanup")
	}
}

func TestLRU_Stats(t *testing.T) {
	c := New[string, int](5, 0)
	c.Put("a", 1)
	c.Get("a")
	c.Get("a")
	c.Get("b")

	stats := c.Stats()
	if stats.Hits != 2 || stats.Misses != 1 {
		t.Errorf("Expected 2 hits and 1 miss, got %d and %d", stats.Hits, stats.Misses)
	}
	if stats.HitRatio < 0.66 || stats.HitRatio > 0.67 {
		t.Errorf("Expected hit ratio 2/3, got %v", stats.HitRatio)
	}
	if stats.Size != 1 || stats.Capacity != 5 {
		t.Errorf("Expected size 1 of 5, got %d of %d", stats.Size, stats.Capacity)
	}

	c.Clear()
	stats = c.Stats()
	if stats.Hits != 0 || stats.Size != 0 {
		t.Errorf("Expected cleared stats, got %+v", stats)
	}
}

func TestLRU_DefaultCapacity(t *testing.T) {
	c := New[string, int](0, 0)
	if c.Stats().Capacity != 1000 {
		t.Errorf("Expected default capacity 1000, got %d", c.Stats().Capacity)
	}
}

func TestLRU_ConcurrentAccess(t *testing.T) {
	c := New[string, int](100, 0)

	var wg sync.WaitGroup
	for g := 0; g < 10; g++ {
		wg.Add(1)
		go func(g int) {
			defer wg.Done()
			for i := 0; i < 100; i++ {
				key := fmt.Sprintf("key-%d-%d", g, i%20)
				c.Put(key, i)
				c.Get(key)
				if i%7 == 0 {
					c.Delete(key)
				}
			}
		}(g)
	}
	wg.Wait()

	if c.Len() > 100 {
		t.Errorf("Expected at most 100 entries, got %d", c.Len())
	}
}

package ledger

import (
	"context"
	"errors"
	"testing"
)

// countingStore counts Gets reaching the backend.
type countingStore struct {
	Store
	gets int
}

func (c *countingStore) Get(ctx context.Context, fp string) (*Record, error) {
	c.gets++
	return c.Store.Get(ctx, fp)
}

func TestCachedStore(t *testing.T) {
	runStoreTests(t, func(t *testing.T) Store {
		return NewCachedStore(newBadgerStore(t), 8, 0)
	})
}

func TestCachedStoreServesRepeatedReads(t *testing.T) {
	ctx := context.Background()
	backend := &countingStore{Store: newBadgerStore(t)}
	store := NewCachedStore(backend, 8, 0)

	rec := sampleRecord(t, 1)
	backend.Store.Put(ctx, rec)

	for i := 0; i < 3; i++ {
		if _, err := store.Get(ctx, rec.Fingerprint); err != nil {
			t.Fatalf("Get failed: %v", err)
		}
	}
	if backend.gets != 1 {
		t.Errorf("Expected 1 backend read, got %d", backend.gets)
	}
	stats := store.CacheStats()
	if stats.Hits != 2 || stats.Misses != 1 {
		t.Errorf("Expected 2 hits and 1 miss, got %+v", stats)
	}
}

func TestCachedStoreMissesAreNotCached(t *testing.T) {
	ctx := context.Background()
	backend := &countingStore{Store: newBadgerStore(t)}
	store := NewCachedStore(backend, 8, 0)

	for i := 0; i < 2; i++ {
		if _, err := store.Get(ctx, "missing"); !errors.Is(err, ErrRecordNotFound) {
			t.Fatalf("Expected ErrRecordNotFound, got %v", err)
		}
	}
	if backend.gets != 2 {
		t.Errorf("Expected misses to reach the backend, got %d reads", backend.gets)
	}
}

func TestCachedStoreReturnsCopies(t *testing.T) {
	ctx := context.Background()
	store := NewCachedStore(newBadgerStore(t), 8, 0)
	rec := sampleRecord(t, 2)
	store.Put(ctx, rec)

	first, _ := store.Get(ctx, rec.Fingerprint)
	first.RunID = "mutated"
	second, _ := store.Get(ctx, rec.Fingerprint)
	if second.RunID != rec.RunID {
		t.Errorf("Expected cached record to be unaffected by callers, got %s", second.RunID)
	}
}

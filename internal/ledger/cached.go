package ledger

import (
	"context"
	"time"

	"conversation-chaos/internal/cache"
)

// CachedStore serves repeated Gets from an in-process LRU. Records are
// immutable once written, so only Put and Delete touch the cache.
type CachedStore struct {
	store Store
	cache *cache.LRU[string, Record]
}

var _ Store = (*CachedStore)(nil)

// NewCachedStore caches up to size records for at most ttl (0 = until
// evicted). ttl should match the backend's record TTL so the cache never
// outlives the record.
func NewCachedStore(store Store, size int, ttl time.Duration) *CachedStore {
	return &CachedStore{store: store, cache: cache.New[string, Record](size, ttl)}
}

func (c *CachedStore) Put(ctx context.Context, rec *Record) error {
	if err := c.store.Put(ctx, rec); err != nil {
		return err
	}
	c.cache.Put(rec.Fingerprint, *rec)
	return nil
}

func (c *CachedStore) Get(ctx context.Context, fingerprint string) (*Record, error) {
	if rec, ok := c.cache.Get(fingerprint); ok {
		return &rec, nil
	}

	rec, err := c.store.Get(ctx, fingerprint)
	if err != nil {
		return nil, err
	}
	c.cache.Put(fingerprint, *rec)
	return rec, nil
}

// List always reads through to the backend.
func (c *CachedStore) List(ctx context.Context) ([]*Record, error) {
	return c.store.List(ctx)
}

func (c *CachedStore) Delete(ctx context.Context, fingerprint string) error {
	c.cache.Delete(fingerprint)
	return c.store.Delete(ctx, fingerprint)
}

func (c *CachedStore) Ping(ctx context.Context) error {
	return c.store.Ping(ctx)
}

func (c *CachedStore) Close() error {
	c.cache.Clear()
	return c.store.Close()
}

// CacheStats reports hit and miss counts of the read cache.
func (c *CachedStore) CacheStats() cache.Stats {
	return c.cache.Stats()
}

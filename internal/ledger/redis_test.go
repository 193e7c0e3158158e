package ledger

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/go-redis/redis/v8"
)

func newRedisStore(t *testing.T, ttl time.Duration) (*RedisStore, *miniredis.Miniredis) {
	t.Helper()
	mr := miniredis.RunT(t)
	store, err := NewRedisStore(RedisOptions{Addr: mr.Addr(), KeyPrefix: "test", TTL: ttl})
	if err != nil {
		t.Fatalf("NewRedisStore failed: %v", err)
	}
	t.Cleanup(func() { store.Close() })
	return store, mr
}

func TestRedisStore(t *testing.T) {
	runStoreTests(t, func(t *testing.T) Store {
		store, _ := newRedisStore(t, 0)
		return store
	})
}

func TestRedisStoreKeys(t *testing.T) {
	store, mr := newRedisStore(t, 0)
	rec := sampleRecord(t, 4)
	if err := store.Put(context.Background(), rec); err != nil {
		t.Fatalf("Put failed: %v", err)
	}

	if !mr.Exists("test:run:" + rec.Fingerprint) {
		t.Error("Expected record key under the configured prefix")
	}
	members, err := mr.Members("test:runs")
	if err != nil {
		t.Fatalf("Members failed: %v", err)
	}
	if len(members) != 1 || members[0] != rec.Fingerprint {
		t.Errorf("Expected index to hold %s, got %v", rec.Fingerprint, members)
	}
}

func TestRedisStoreTTL(t *testing.T) {
	store, mr := newRedisStore(t, time.Hour)
	ctx := context.Background()
	rec := sampleRecord(t, 6)
	store.Put(ctx, rec)

	if ttl := mr.TTL("test:run:" + rec.Fingerprint); ttl != time.Hour {
		t.Errorf("Expected TTL of 1h, got %v", ttl)
	}

	mr.FastForward(2 * time.Hour)

	if _, err := store.Get(ctx, rec.Fingerprint); !errors.Is(err, ErrRecordNotFound) {
		t.Errorf("Expected expired record to be gone, got %v", err)
	}
	recs, err := store.List(ctx)
	if err != nil {
		t.Fatalf("List failed: %v", err)
	}
	if len(recs) != 0 {
		t.Errorf("Expected no records after expiry, got %d", len(recs))
	}
	if members, _ := mr.Members("test:runs"); len(members) != 0 {
		t.Errorf("Expected List to prune the index, got %v", members)
	}
}

func TestRedisStoreDefaultPrefix(t *testing.T) {
	mr := miniredis.RunT(t)
	store := NewRedisStoreWithClient(redis.NewClient(&redis.Options{Addr: mr.Addr()}), "", 0)
	defer store.Close()

	store.Put(context.Background(), &Record{Fingerprint: "abc"})
	if !mr.Exists("chaos:run:abc") {
		t.Error("Expected default prefix chaos")
	}
}

func TestRedisStoreUnreachable(t *testing.T) {
	mr := miniredis.RunT(t)
	addr := mr.Addr()
	mr.Close()

	if _, err := NewRedisStore(RedisOptions{Addr: addr}); err == nil {
		t.Error("Expected an error connecting to a closed server")
	}
}

func TestRedisStoreServerError(t *testing.T) {
	store, mr := newRedisStore(t, 0)
	mr.SetError("server failure")
	defer mr.SetError("")

	if _, err := store.Get(context.Background(), "fp"); err == nil || errors.Is(err, ErrRecordNotFound) {
		t.Errorf("Expected a server error, got %v", err)
	}
}

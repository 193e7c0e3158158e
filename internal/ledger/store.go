package ledger

import (
	"context"
	"errors"
	"fmt"
	"sort"

	"conversation-chaos/internal/config"
)

// ErrRecordNotFound is returned when no record has the requested fingerprint.
var ErrRecordNotFound = errors.New("ledger: record not found")

// ErrFingerprintConflict is returned when a Put would replace a record that
// was made from a different input conversation.
var ErrFingerprintConflict = errors.New("ledger: fingerprint already recorded for another input")

// Store persists run records keyed by fingerprint. Putting a record whose
// fingerprint already exists replaces it when both share an InputDigest and
// fails with ErrFingerprintConflict otherwise.
type Store interface {
	Put(ctx context.Context, rec *Record) error
	Get(ctx context.Context, fingerprint string) (*Record, error)
	// List returns every record ordered by creation time, then fingerprint.
	List(ctx context.Context) ([]*Record, error)
	Delete(ctx context.Context, fingerprint string) error
	Ping(ctx context.Context) error
	Close() error
}

// NewStore opens the backend named by cfg, wrapped in a read cache when
// cfg.CacheSize is positive.
func NewStore(cfg *config.LedgerConfig) (Store, error) {
	var (
		store Store
		err   error
	)
	switch cfg.Backend {
	case "", "badger":
		store, err = NewBadgerStore(cfg.DataPath, cfg.InMemory, cfg.RecordTTL)
	case "redis":
		store, err = NewRedisStore(RedisOptions{
			Addr:      cfg.RedisAddr,
			Password:  cfg.RedisPassword,
			DB:        cfg.RedisDB,
			KeyPrefix: cfg.KeyPrefix,
			TTL:       cfg.RecordTTL,
		})
	default:
		return nil, fmt.Errorf("ledger: unknown backend %q", cfg.Backend)
	}
	if err != nil {
		return nil, err
	}

	if cfg.CacheSize > 0 {
		store = NewCachedStore(store, cfg.CacheSize, cfg.RecordTTL)
	}
	return store, nil
}

// Backend names the storage behind s, looking through decorators.
func Backend(s Store) string {
	switch st := s.(type) {
	case *BadgerStore:
		return "badger"
	case *RedisStore:
		return "redis"
	case *CachedStore:
		return Backend(st.store)
	case *InstrumentedStore:
		return Backend(st.store)
	}
	return "unknown"
}

// checkOverwrite reports whether rec may replace existing
func checkOverwrite(existing, rec *Record) error {
	if existing.InputDigest != rec.InputDigest {
		return fmt.Errorf("%w: %s", ErrFingerprintConflict, rec.Fingerprint)
	}
	return nil
}

func sortRecords(recs []*Record) {
	sort.Slice(recs, func(i, j int) bool {
		if !recs[i].CreatedAt.Equal(recs[j].CreatedAt) {
			return recs[i].CreatedAt.Before(recs[j].CreatedAt)
		}
		return recs[i].Fingerprint < recs[j].Fingerprint
	})
}

package ledger

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/go-redis/redis/v8"
)

// RedisOptions configures a RedisStore.
type RedisOptions struct {
	Addr      string
	Password  string
	DB        int
	KeyPrefix string
	TTL       time.Duration
}

// RedisStore keeps each record as a JSON string under <prefix>:run:<fp> and
// tracks fingerprints in the set <prefix>:runs.
type RedisStore struct {
	client *redis.Client
	prefix string
	ttl    time.Duration
}

var _ Store = (*RedisStore)(nil)

// NewRedisStore connects to the server at opts.Addr and checks that it answers.
func NewRedisStore(opts RedisOptions) (*RedisStore, error) {
	if opts.Addr == "" {
		return nil, errors.New("ledger: redis address is required")
	}
	client := redis.NewClient(&redis.Options{
		Addr:     opts.Addr,
		Password: opts.Password,
		DB:       opts.DB,
	})

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := client.Ping(ctx).Err(); err != nil {
		client.Close()
		return nil, fmt.Errorf("failed to connect to redis at %s: %w", opts.Addr, err)
	}
	return NewRedisStoreWithClient(client, opts.KeyPrefix, opts.TTL), nil
}

// NewRedisStoreWithClient wraps an existing client. The store owns it from
// then on and closes it on Close.
func NewRedisStoreWithClient(client *redis.Client, prefix string, ttl time.Duration) *RedisStore {
	if prefix == "" {
		prefix = "chaos"
	}
	return &RedisStore{client: client, prefix: prefix, ttl: ttl}
}

func (s *RedisStore) recordKey(fingerprint string) string {
	return fmt.Sprintf("%s:run:%s", s.prefix, fingerprint)
}

func (s *RedisStore) indexKey() string {
	return s.prefix + ":runs"
}

func (s *RedisStore) Put(ctx context.Context, rec *Record) error {
	if err := rec.validate(); err != nil {
		return err
	}
	data, err := json.Marshal(rec)
	if err != nil {
		return fmt.Errorf("failed to encode record: %w", err)
	}

	// WATCH makes the digest check and the write one transaction.
	key := s.recordKey(rec.Fingerprint)
	return s.client.Watch(ctx, func(tx *redis.Tx) error {
		stored, err := tx.Get(ctx, key).Bytes()
		switch {
		case err == nil:
			existing, err := decodeRecord(stored)
			if err != nil {
				return err
			}
			if err := checkOverwrite(existing, rec); err != nil {
				return err
			}
		case err != redis.Nil:
			return err
		}

		_, err = tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
			pipe.Set(ctx, key, data, s.ttl)
			pipe.SAdd(ctx, s.indexKey(), rec.Fingerprint)
			return nil
		})
		return err
	}, key)
}

func (s *RedisStore) Get(ctx context.Context, fingerprint string) (*Record, error) {
	data, err := s.client.Get(ctx, s.recordKey(fingerprint)).Bytes()
	if err == redis.Nil {
		return nil, ErrRecordNotFound
	}
	if err != nil {
		return nil, err
	}
	return decodeRecord(data)
}

// List reads every indexed record. Fingerprints whose record has expired are
// pruned from the index on the way.
func (s *RedisStore) List(ctx context.Context) ([]*Record, error) {
	fps, err := s.client.SMembers(ctx, s.indexKey()).Result()
	if err != nil {
		return nil, err
	}
	recs := make([]*Record, 0, len(fps))
	if len(fps) == 0 {
		return recs, nil
	}

	keys := make([]string, len(fps))
	for i, fp := range fps {
		keys[i] = s.recordKey(fp)
	}
	values, err := s.client.MGet(ctx, keys...).Result()
	if err != nil {
		return nil, err
	}

	var stale []interface{}
	for i, v := range values {
		str, ok := v.(string)
		if !ok {
			stale = append(stale, fps[i])
			continue
		}
		rec, err := decodeRecord([]byte(str))
		if err != nil {
			return nil, err
		}
		recs = append(recs, rec)
	}
	if len(stale) > 0 {
		if err := s.client.SRem(ctx, s.indexKey(), stale...).Err(); err != nil {
			return nil, err
		}
	}

	sortRecords(recs)
	return recs, nil
}

func (s *RedisStore) Delete(ctx context.Context, fingerprint string) error {
	var del *redis.IntCmd
	_, err := s.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		del = pipe.Del(ctx, s.recordKey(fingerprint))
		pipe.SRem(ctx, s.indexKey(), fingerprint)
		return nil
	})
	if err != nil {
		return err
	}
	if del.Val() == 0 {
		return ErrRecordNotFound
	}
	return nil
}

func (s *RedisStore) Ping(ctx context.Context) error {
	return s.client.Ping(ctx).Err()
}

func (s *RedisStore) Close() error {
	return s.client.Close()
}

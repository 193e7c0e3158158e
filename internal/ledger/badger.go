package ledger

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/dgraph-io/badger/v4"
)

var recordPrefix = []byte("run/")

const gcInterval = 10 * time.Minute

// BadgerStore keeps records in an embedded badger database, either on disk or
// entirely in memory.
type BadgerStore struct {
	db  *badger.DB
	ttl time.Duration

	stopGC    chan struct{}
	wg        sync.WaitGroup
	closeOnce sync.Once
	closeErr  error
}

var _ Store = (*BadgerStore)(nil)

// NewBadgerStore opens a store at path, or in memory when inMemory is set. A
// positive ttl expires records that long after they were written.
func NewBadgerStore(path string, inMemory bool, ttl time.Duration) (*BadgerStore, error) {
	opts := badger.DefaultOptions(path)
	if inMemory {
		opts = badger.DefaultOptions("").WithInMemory(true)
	} else if path == "" {
		return nil, errors.New("ledger: badger data path is required unless in memory")
	}
	opts = opts.WithLogger(nil) // Disable badger's default logger

	db, err := badger.Open(opts)
	if err != nil {
		return nil, fmt.Errorf("failed to open badger database: %w", err)
	}

	s := &BadgerStore{db: db, ttl: ttl, stopGC: make(chan struct{})}
	if !inMemory {
		s.wg.Add(1)
		go s.runGC(gcInterval)
	}
	return s, nil
}

func recordKey(fingerprint string) []byte {
	return append(append([]byte{}, recordPrefix...), fingerprint...)
}

func (s *BadgerStore) Put(ctx context.Context, rec *Record) error {
	if err := rec.validate(); err != nil {
		return err
	}
	if err := ctx.Err(); err != nil {
		return err
	}
	data, err := json.Marshal(rec)
	if err != nil {
		return fmt.Errorf("failed to encode record: %w", err)
	}

	return s.db.Update(func(txn *badger.Txn) error {
		key := recordKey(rec.Fingerprint)
		item, err := txn.Get(key)
		switch {
		case err == nil:
			err = item.Value(func(val []byte) error {
				existing, err := decodeRecord(val)
				if err != nil {
					return err
				}
				return checkOverwrite(existing, rec)
			})
			if err != nil {
				return err
			}
		case !errors.Is(err, badger.ErrKeyNotFound):
			return err
		}

		e := badger.NewEntry(key, data)
		if s.ttl > 0 {
			e = e.WithTTL(s.ttl)
		}
		return txn.SetEntry(e)
	})
}

func (s *BadgerStore) Get(ctx context.Context, fingerprint string) (*Record, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	var data []byte
	err := s.db.View(func(txn *badger.Txn) error {
		item, err := txn.Get(recordKey(fingerprint))
		if err != nil {
			return err
		}
		data, err = item.ValueCopy(nil)
		return err
	})
	if errors.Is(err, badger.ErrKeyNotFound) {
		return nil, ErrRecordNotFound
	}
	if err != nil {
		return nil, err
	}
	return decodeRecord(data)
}

func (s *BadgerStore) List(ctx context.Context) ([]*Record, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	recs := make([]*Record, 0)
	err := s.db.View(func(txn *badger.Txn) error {
		opts := badger.DefaultIteratorOptions
		opts.Prefix = recordPrefix
		it := txn.NewIterator(opts)
		defer it.Close()

		for it.Seek(recordPrefix); it.ValidForPrefix(recordPrefix); it.Next() {
			data, err := it.Item().ValueCopy(nil)
			if err != nil {
				return err
			}
			rec, err := decodeRecord(data)
			if err != nil {
				return err
			}
			recs = append(recs, rec)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	sortRecords(recs)
	return recs, nil
}

func (s *BadgerStore) Delete(ctx context.Context, fingerprint string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	return s.db.Update(func(txn *badger.Txn) error {
		key := recordKey(fingerprint)
		if _, err := txn.Get(key); err != nil {
			if errors.Is(err, badger.ErrKeyNotFound) {
				return ErrRecordNotFound
			}
			return err
		}
		return txn.Delete(key)
	})
}

func (s *BadgerStore) Ping(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if s.db.IsClosed() {
		return errors.New("ledger: badger database is closed")
	}
	return nil
}

// Close stops background GC and closes the database. Later calls are no-ops.
func (s *BadgerStore) Close() error {
	s.closeOnce.Do(func() {
		close(s.stopGC)
		s.wg.Wait()
		s.closeErr = s.db.Close()
	})
	return s.closeErr
}

func (s *BadgerStore) runGC(interval time.Duration) {
	defer s.wg.Done()
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-s.stopGC:
			return
		case <-ticker.C:
			for s.db.RunValueLogGC(0.7) == nil {
			}
		}
	}
}

func decodeRecord(data []byte) (*Record, error) {
	var rec Record
	if err := json.Unmarshal(data, &rec); err != nil {
		return nil, fmt.Errorf("failed to decode record: %w", err)
	}
	return &rec, nil
}

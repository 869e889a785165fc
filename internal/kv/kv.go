// Package kv is an embedded key-value store with per-key expiry, backed by BadgerDB.
//
// It holds short-lived server state: revoked token ids, cached read results and
// login limiter counters. Nothing in here is authoritative; losing it only
// forgets revocations early or drops cache entries.
package kv

import (
	"context"
	"encoding/binary"
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/dgraph-io/badger/v4"
	"go.uber.org/zap"
)

// Config controls where and how the store is opened.
type Config struct {
	// Path is the data directory; empty means in-memory.
	Path string
	// SyncWrites fsyncs every write.
	SyncWrites bool
	// GCDiscardRatio is the minimum garbage ratio before a value log file is rewritten.
	GCDiscardRatio float64
}

// Store wraps a badger database.
type Store struct {
	db    *badger.DB
	log   *zap.Logger
	ratio float64
}

// Open opens (or creates) the store.
func Open(cfg Config, log *zap.Logger) (*Store, error) {
	var opts badger.Options
	if cfg.Path == "" {
		opts = badger.DefaultOptions("").WithInMemory(true)
	} else {
		if err := os.MkdirAll(cfg.Path, 0o750); err != nil {
			return nil, fmt.Errorf("create kv directory %s: %w", cfg.Path, err)
		}
		opts = badger.DefaultOptions(cfg.Path)
	}
	opts = opts.WithSyncWrites(cfg.SyncWrites).
		WithNumVersionsToKeep(1).
		WithLogger(&badgerLogger{log: log.Sugar()})

	db, err := badger.Open(opts)
	if err != nil {
		return nil, fmt.Errorf("open badger: %w", err)
	}
	ratio := cfg.GCDiscardRatio
	if ratio <= 0 || ratio >= 1 {
		ratio = 0.5
	}
	return &Store{db: db, log: log, ratio: ratio}, nil
}

// Close flushes and closes the database.
func (s *Store) Close() error { return s.db.Close() }

// Set stores value under key; ttl <= 0 keeps it until deleted.
func (s *Store) Set(_ context.Context, key string, value []byte, ttl time.Duration) error {
	return s.db.Update(func(txn *badger.Txn) error {
		e := badger.NewEntry([]byte(key), value)
		if ttl > 0 {
			e = e.WithTTL(ttl)
		}
		return txn.SetEntry(e)
	})
}

// Get returns the value and whether the key exists and has not expired.
func (s *Store) Get(_ context.Context, key string) ([]byte, bool, error) {
	var out []byte
	err := s.db.View(func(txn *badger.Txn) error {
		item, err := txn.Get([]byte(key))
		if err != nil {
			return err
		}
		out, err = item.ValueCopy(nil)
		return err
	})
	if errors.Is(err, badger.ErrKeyNotFound) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, err
	}
	return out, true, nil
}

// Has reports whether key is present.
func (s *Store) Has(ctx context.Context, key string) (bool, error) {
	_, ok, err := s.Get(ctx, key)
	return ok, err
}

// TTL returns the remaining lifetime of key; zero if absent or without expiry.
func (s *Store) TTL(_ context.Context, key string) (time.Duration, error) {
	var left time.Duration
	err := s.db.View(func(txn *badger.Txn) error {
		item, err := txn.Get([]byte(key))
		if err != nil {
			return err
		}
		if exp := item.ExpiresAt(); exp > 0 {
			left = time.Until(time.Unix(int64(exp), 0))
		}
		return nil
	})
	if errors.Is(err, badger.ErrKeyNotFound) {
		return 0, nil
	}
	return left, err
}

// Delete removes key; deleting a missing key is not an error.
func (s *Store) Delete(_ context.Context, key string) error {
	return s.db.Update(func(txn *badger.Txn) error {
		return txn.Delete([]byte(key))
	})
}

// Incr atomically increments a counter. A new counter expires after ttl;
// an existing one keeps its original expiry.
func (s *Store) Incr(_ context.Context, key string, ttl time.Duration) (int64, error) {
	var n int64
	err := s.db.Update(func(txn *badger.Txn) error {
		k := []byte(key)
		expiresAt := uint64(0)
		item, err := txn.Get(k)
		switch {
		case err == nil:
			val, err := item.ValueCopy(nil)
			if err != nil {
				return err
			}
			if len(val) == 8 {
				n = int64(binary.BigEndian.Uint64(val))
			}
			expiresAt = item.ExpiresAt()
		case errors.Is(err, badger.ErrKeyNotFound):
		default:
			return err
		}
		n++

		buf := make([]byte, 8)
		binary.BigEndian.PutUint64(buf, uint64(n))
		e := badger.NewEntry(k, buf)
		switch {
		case expiresAt > 0:
			e.ExpiresAt = expiresAt
		case ttl > 0:
			e = e.WithTTL(ttl)
		}
		return txn.SetEntry(e)
	})
	return n, err
}

// RunGC rewrites value log files until there is nothing left to collect.
func (s *Store) RunGC() {
	for {
		if err := s.db.RunValueLogGC(s.ratio); err != nil {
			if !errors.Is(err, badger.ErrNoRewrite) && !errors.Is(err, badger.ErrGCInMemoryMode) {
				s.log.Warn("kv gc", zap.Error(err))
			}
			return
		}
	}
}

// badgerLogger routes badger's internal logging into zap.
type badgerLogger struct{ log *zap.SugaredLogger }

func (l *badgerLogger) Errorf(format string, args ...any)   { l.log.Errorf(format, args...) }
func (l *badgerLogger) Warningf(format string, args ...any) { l.log.Warnf(format, args...) }
func (l *badgerLogger) Infof(format string, args ...any)    { l.log.Debugf(format, args...) }
func (l *badgerLogger) Debugf(format string, args ...any)   { l.log.Debugf(format, args...) }

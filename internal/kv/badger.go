// Sentinel - Adaptive Security Automation for Game Server Hosting
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/sentinel

package kv

import (
	"context"
	"errors"
	"strconv"
	"sync"
	"time"

	"github.com/dgraph-io/badger/v4"

	"github.com/tomtom215/sentinel/internal/metrics"
)

// maxConflictRetries bounds optimistic-transaction retries for SetNX/Incr.
const maxConflictRetries = 8

// BadgerStore is a BadgerDB-backed Store. Expiry is delegated to Badger's
// native entry TTL.
type BadgerStore struct {
	db     *badger.DB
	prefix string
	mu     sync.RWMutex
	closed bool
}

// NewBadgerStore wraps an open BadgerDB. Keys are namespaced with prefix so
// the database can be shared with other components.
func NewBadgerStore(db *badger.DB, prefix string) *BadgerStore {
	if prefix == "" {
		prefix = "kv:"
	}
	return &BadgerStore{db: db, prefix: prefix}
}

// OpenBadger opens a BadgerDB at path, or an in-memory instance when path is "".
func OpenBadger(path string) (*badger.DB, error) {
	opts := badger.DefaultOptions(path).WithLogger(nil)
	if path == "" {
		opts = badger.DefaultOptions("").WithInMemory(true).WithLogger(nil)
	}
	return badger.Open(opts)
}

func (s *BadgerStore) key(k string) []byte {
	return []byte(s.prefix + k)
}

func (s *BadgerStore) check() error {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.closed {
		return ErrClosed
	}
	return nil
}

func newEntry(key []byte, value string, ttl time.Duration) *badger.Entry {
	e := badger.NewEntry(key, []byte(value))
	if ttl > 0 {
		e = e.WithTTL(ttl)
	}
	return e
}

// update runs fn in a read-write transaction, retrying on conflicts.
func (s *BadgerStore) update(ctx context.Context, fn func(txn *badger.Txn) error) error {
	var err error
	for attempt := 0; attempt < maxConflictRetries; attempt++ {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return ctxErr
		}
		err = s.db.Update(fn)
		if !errors.Is(err, badger.ErrConflict) {
			return err
		}
	}
	return err
}

// Get implements Store.
func (s *BadgerStore) Get(_ context.Context, key string) (string, bool, error) {
	if err := s.check(); err != nil {
		return "", false, err
	}

	var (
		value string
		found bool
	)
	err := s.db.View(func(txn *badger.Txn) error {
		item, err := txn.Get(s.key(key))
		if errors.Is(err, badger.ErrKeyNotFound) {
			return nil
		}
		if err != nil {
			return err
		}
		return item.Value(func(val []byte) error {
			value = string(val)
			found = true
			return nil
		})
	})
	metrics.RecordKV("badger", "get", err)
	return value, found, err
}

// Set implements Store.
func (s *BadgerStore) Set(ctx context.Context, key, value string, ttl time.Duration) error {
	if err := s.check(); err != nil {
		return err
	}
	err := s.update(ctx, func(txn *badger.Txn) error {
		return txn.SetEntry(newEntry(s.key(key), value, ttl))
	})
	metrics.RecordKV("badger", "set", err)
	return err
}

// SetNX implements Store.
func (s *BadgerStore) SetNX(ctx context.Context, key, value string, ttl time.Duration) (bool, error) {
	if err := s.check(); err != nil {
		return false, err
	}

	var acquired bool
	err := s.update(ctx, func(txn *badger.Txn) error {
		acquired = false
		_, err := txn.Get(s.key(key))
		if err == nil {
			return nil
		}
		if !errors.Is(err, badger.ErrKeyNotFound) {
			return err
		}
		if err := txn.SetEntry(newEntry(s.key(key), value, ttl)); err != nil {
			return err
		}
		acquired = true
		return nil
	})
	metrics.RecordKV("badger", "setnx", err)
	return acquired, err
}

// Incr implements Store. The entry's original expiry is carried forward.
func (s *BadgerStore) Incr(ctx context.Context, key string, ttl time.Duration) (int64, error) {
	if err := s.check(); err != nil {
		return 0, err
	}

	var n int64
	err := s.update(ctx, func(txn *badger.Txn) error {
		k := s.key(key)
		remaining := ttl
		n = 0

		item, err := txn.Get(k)
		switch {
		case err == nil:
			if err := item.Value(func(val []byte) error {
				parsed, perr := strconv.ParseInt(string(val), 10, 64)
				if perr != nil {
					return ErrNotInteger
				}
				n = parsed
				return nil
			}); err != nil {
				return err
			}
			if exp := item.ExpiresAt(); exp > 0 {
				remaining = time.Until(time.Unix(int64(exp), 0))
				if remaining < time.Second {
					remaining = time.Second
				}
			} else {
				remaining = 0
			}
		case errors.Is(err, badger.ErrKeyNotFound):
		default:
			return err
		}

		n++
		return txn.SetEntry(newEntry(k, strconv.FormatInt(n, 10), remaining))
	})
	metrics.RecordKV("badger", "incr", err)
	return n, err
}

// Delete implements Store.
func (s *BadgerStore) Delete(ctx context.Context, key string) error {
	if err := s.check(); err != nil {
		return err
	}
	err := s.update(ctx, func(txn *badger.Txn) error {
		return txn.Delete(s.key(key))
	})
	metrics.RecordKV("badger", "delete", err)
	return err
}

// Close marks the store closed. The underlying DB is owned by the caller.
func (s *BadgerStore) Close() error {
	s.mu.Lock()
	s.closed = true
	s.mu.Unlock()
	return nil
}

// Copyright (C) 2025, Lux Industries Inc. All rights reserved.
// See the file LICENSE for licensing terms.

// Package store is the single-writer durable Persistence layer (spec
// §2, §5, §6.6). Every mutable row in the system — members, peer state,
// intents, vouches, contribution entries, pending actions, planner log,
// bans — lives here, keyed so that bounded, oldest-first eviction is a
// prefix scan rather than a full-table sort. All multi-row mutations go
// through a Batch (NewBatch, then Commit), which wraps a pebble.Batch so a mid-sequence failure
// rolls back cleanly instead of leaving a half-applied write, mirroring
// the explicit-transaction guidance in the teacher's own
// chains/atomic.SharedMemory.Apply (batch-in, all-or-nothing).
package store

import (
	"sync"

	"github.com/cockroachdb/errors"
	"github.com/cockroachdb/pebble"
	"github.com/luxfi/log"
)

// ErrNotFound is returned when a row is absent.
var ErrNotFound = errors.New("store: not found")

// Store owns the single pebble handle backing every table. Reads may run
// concurrently; writers funnel through Commit's batch so Persistence
// really is the sole writer spec §5 requires.
type Store struct {
	mu  sync.Mutex // serializes writers; readers use pebble's own MVCC snapshot
	db  *pebble.DB
	log log.Logger
}

// Open opens (creating if absent) a pebble store at dir.
func Open(dir string, logger log.Logger) (*Store, error) {
	db, err := pebble.Open(dir, &pebble.Options{})
	if err != nil {
		return nil, errors.Wrap(err, "store: open pebble")
	}
	return &Store{db: db, log: logger}, nil
}

// Close flushes and closes the underlying database.
func (s *Store) Close() error {
	return s.db.Close()
}

// Batch is a transactional write set. Callers build one up across
// several tables (e.g. intent commit + side-effect queueing, or
// promotion tier change + vouch archival — spec §9) and call Commit
// exactly once; a returned error means nothing in the batch was applied.
type Batch struct {
	b *pebble.Batch
}

// NewBatch starts a new transactional write set.
func (s *Store) NewBatch() *Batch {
	return &Batch{b: s.db.NewBatch()}
}

// Commit applies the batch atomically and durably.
func (s *Store) Commit(batch *Batch) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := batch.b.Commit(pebble.Sync); err != nil {
		return errors.Wrap(err, "store: commit batch")
	}
	return nil
}

func (b *Batch) set(key, value []byte) error {
	return b.b.Set(key, value, nil)
}

func (b *Batch) delete(key []byte) error {
	return b.b.Delete(key, nil)
}

func (s *Store) get(key []byte) (value []byte, release func(), err error) {
	v, closer, err := s.db.Get(key)
	if errors.Is(err, pebble.ErrNotFound) {
		return nil, nil, ErrNotFound
	}
	if err != nil {
		return nil, nil, errors.Wrap(err, "store: get")
	}
	// caller must call release() when done with v
	return v, func() { _ = closer.Close() }, nil
}

// scanPrefix invokes fn for every key with the given prefix, in key
// order, stopping early if fn returns false.
func (s *Store) scanPrefix(prefix []byte, fn func(key, value []byte) bool) error {
	iter, err := s.db.NewIter(&pebble.IterOptions{
		LowerBound: prefix,
		UpperBound: prefixUpperBound(prefix),
	})
	if err != nil {
		return errors.Wrap(err, "store: new iterator")
	}
	defer iter.Close()
	for iter.First(); iter.Valid(); iter.Next() {
		if !fn(iter.Key(), iter.Value()) {
			break
		}
	}
	return iter.Error()
}

// prefixUpperBound returns the smallest key greater than every key with
// the given prefix, for a half-open range scan.
func prefixUpperBound(prefix []byte) []byte {
	up := make([]byte, len(prefix))
	copy(up, prefix)
	for i := len(up) - 1; i >= 0; i-- {
		up[i]++
		if up[i] != 0 {
			return up[:i+1]
		}
	}
	return nil // prefix was all 0xff: unbounded
}

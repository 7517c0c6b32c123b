// Copyright (C) 2025, Lux Industries Inc. All rights reserved.
// See the file LICENSE for licensing terms.

package store

import (
	"encoding/json"
	"sync/atomic"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/luxfi/hive/types"
)

// contribSeq breaks ties between entries sharing a timestamp so the key
// space stays strictly ordered even under a burst of same-nanosecond
// forward events.
var contribSeq uint32

// AppendContribution inserts one ledger row within batch. Rate/cap
// enforcement happens in package contribution, before the batch is
// built; this method only persists.
func (b *Batch) AppendContribution(e types.ContributionEntry) error {
	buf, err := json.Marshal(e)
	if err != nil {
		return errors.Wrap(err, "store: marshal contribution entry")
	}
	seq := atomic.AddUint32(&contribSeq, 1)
	return b.set(contribKey(e.Timestamp.UnixNano(), seq), buf)
}

// DeleteContributionKey removes a single contribution row by its raw
// store key, used by the global-table-cap and 45-day pruning sweeps.
func (b *Batch) DeleteContributionKey(key []byte) error {
	return b.delete(key)
}

// ScanContributions walks every ledger row oldest-first, invoking fn with
// the row's raw store key (for targeted deletion) and decoded value.
// Returning false from fn stops the scan early.
func (s *Store) ScanContributions(fn func(key []byte, e types.ContributionEntry) bool) error {
	return s.scanPrefix([]byte(prefixContrib), func(key, value []byte) bool {
		var e types.ContributionEntry
		if jerr := json.Unmarshal(value, &e); jerr != nil {
			return true
		}
		keyCopy := append([]byte(nil), key...)
		return fn(keyCopy, e)
	})
}

// CountContributionsSince returns the total row count with a timestamp
// at or after since, used for the global-daily-cap check.
func (s *Store) CountContributionsSince(since time.Time) (int, error) {
	n := 0
	err := s.ScanContributions(func(_ []byte, e types.ContributionEntry) bool {
		if !e.Timestamp.Before(since) {
			n++
		}
		return true
	})
	return n, err
}

// TotalContributionRows returns the total ledger row count, for the
// global-table-cap check.
func (s *Store) TotalContributionRows() (int, error) {
	n := 0
	err := s.ScanContributions(func(_ []byte, _ types.ContributionEntry) bool {
		n++
		return true
	})
	return n, err
}

// Copyright (C) 2025, Lux Industries Inc. All rights reserved.
// See the file LICENSE for licensing terms.

// Package contribution implements the per-forward contribution ledger:
// rate-limited, cap-bounded append, and derived {forwarded, received,
// ratio} queries with a short-TTL cache (spec §4.6). Caps are enforced
// before insertion, never after, so the ledger never transiently exceeds
// its bounds.
package contribution

import (
	"sync"
	"time"

	"github.com/luxfi/hive/host"
	"github.com/luxfi/hive/store"
	"github.com/luxfi/hive/types"
)

// Config bounds the ledger.
type Config struct {
	PerPeerPerHour int           // <= 120 events/hour
	GlobalPerDay   int           // e.g. 10,000 events/day
	GlobalRows     int           // e.g. 500,000 rows; oldest pruned at cap
	RowTTL         time.Duration // 45 days
	QueryCacheTTL  time.Duration // short TTL on derived {forwarded,received,ratio}
}

// Ledger appends ContributionEntry rows on host forward-events that
// involve a Member, enforcing the per-peer rate limit and the two
// global caps before each insert.
type Ledger struct {
	db  *store.Store
	cfg Config

	mu       sync.Mutex
	perPeer  map[types.Pubkey][]time.Time // process-local rate-limit window, pruned on use
}

// New builds a Ledger over db.
func New(db *store.Store, cfg Config) *Ledger {
	if cfg.QueryCacheTTL > 0 {
		SetCacheTTL(cfg.QueryCacheTTL)
	}
	return &Ledger{db: db, cfg: cfg, perPeer: make(map[types.Pubkey][]time.Time)}
}

// Members is the subset of the membership registry this package needs to
// decide whether a forward event's in/out peer qualifies for a ledger
// row.
type Members interface {
	IsCurrentMember(pubkey types.Pubkey) (bool, error)
}

// RecordForward appends a ContributionEntry for each side of ev that is a
// current Member (spec §4.6). Caps are checked before any row is
// inserted; a peer or global cap being exceeded silently drops that
// row — it is not an error, since forward events are not replayable by
// the host.
func RecordForward(db *store.Store, ledger *Ledger, members Members, ev host.ForwardEvent) error {
	if ok, err := members.IsCurrentMember(ev.InPeer); err != nil {
		return err
	} else if ok {
		if err := ledger.append(types.ContributionEntry{
			Peer: ev.InPeer, Direction: types.ContributionForwarded,
			AmountSat: ev.AmountSat, Timestamp: ev.Timestamp,
		}); err != nil {
			return err
		}
	}
	if ok, err := members.IsCurrentMember(ev.OutPeer); err != nil {
		return err
	} else if ok {
		return ledger.append(types.ContributionEntry{
			Peer: ev.OutPeer, Direction: types.ContributionReceived,
			AmountSat: ev.AmountSat, Timestamp: ev.Timestamp,
		})
	}
	return nil
}

func (l *Ledger) append(e types.ContributionEntry) error {
	l.mu.Lock()
	if !l.allowLocked(e.Peer, e.Timestamp) {
		l.mu.Unlock()
		return nil
	}
	l.mu.Unlock()

	global, err := l.db.CountContributionsSince(e.Timestamp.Add(-24 * time.Hour))
	if err != nil {
		return err
	}
	if global >= l.cfg.GlobalPerDay {
		return nil
	}

	batch := l.db.NewBatch()
	if err := batch.AppendContribution(e); err != nil {
		return err
	}
	if err := l.db.Commit(batch); err != nil {
		return err
	}

	return l.enforceGlobalRowCap()
}

// allowLocked checks and updates the per-peer-per-hour rate window.
func (l *Ledger) allowLocked(peer types.Pubkey, at time.Time) bool {
	cutoff := at.Add(-time.Hour)
	recent := l.perPeer[peer]
	kept := recent[:0]
	for _, t := range recent {
		if t.After(cutoff) {
			kept = append(kept, t)
		}
	}
	if len(kept) >= l.cfg.PerPeerPerHour {
		l.perPeer[peer] = kept
		return false
	}
	kept = append(kept, at)
	l.perPeer[peer] = kept
	return true
}

// enforceGlobalRowCap prunes the oldest rows once the table exceeds its
// global cap.
func (l *Ledger) enforceGlobalRowCap() error {
	total, err := l.db.TotalContributionRows()
	if err != nil {
		return err
	}
	overBy := total - l.cfg.GlobalRows
	if overBy <= 0 {
		return nil
	}
	return l.pruneOldest(overBy)
}

func (l *Ledger) pruneOldest(n int) error {
	batch := l.db.NewBatch()
	removed := 0
	err := l.db.ScanContributions(func(key []byte, _ types.ContributionEntry) bool {
		if removed >= n {
			return false
		}
		if berr := batch.DeleteContributionKey(key); berr != nil {
			return false
		}
		removed++
		return removed < n
	})
	if err != nil {
		return err
	}
	if removed == 0 {
		return nil
	}
	return l.db.Commit(batch)
}

// PruneExpired removes every row older than RowTTL, the maintenance-loop
// sweep (spec §4.6: "Rows older than 45 days are pruned").
func (l *Ledger) PruneExpired(now time.Time) error {
	cutoff := now.Add(-l.cfg.RowTTL)
	batch := l.db.NewBatch()
	n := 0
	err := l.db.ScanContributions(func(key []byte, e types.ContributionEntry) bool {
		if e.Timestamp.Before(cutoff) {
			if berr := batch.DeleteContributionKey(key); berr == nil {
				n++
			}
			return true
		}
		return true
	})
	if err != nil {
		return err
	}
	if n == 0 {
		return nil
	}
	return l.db.Commit(batch)
}

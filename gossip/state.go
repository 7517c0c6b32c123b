// Copyright (C) 2025, Lux Industries Inc. All rights reserved.
// See the file LICENSE for licensing terms.

// Package gossip implements the replicated Hive state manager: per-peer
// PeerState records applied under a strictly monotonic version rule,
// deterministic FleetHash computation, broadcast-threshold detection, and
// anti-entropy on reconnect (spec §4.3). The shape mirrors the teacher's
// uptime.Manager — a small interface in front of a mutex-guarded process
// cache, backed by Persistence for the durable copy.
package gossip

import (
	"context"
	"sync"
	"time"

	"github.com/luxfi/hive/metrics"
	"github.com/luxfi/hive/store"
	"github.com/luxfi/hive/types"
	"github.com/luxfi/log"
)

// BroadcastConfig bounds the triggers in spec §4.3.
type BroadcastConfig struct {
	CapacityDriftPct float64       // >10% since last broadcast triggers
	Heartbeat        time.Duration // cadence if nothing else triggered
	MaxGossipTimeEntries int       // bound on the process-local last-broadcast-time map
}

// Manager owns the per-member PeerState set and decides when a local
// change must be re-broadcast. Apply is idempotent and monotonic: a
// gossip with a version no greater than the stored one never mutates
// state and, if strictly lower, produces an anti-entropy hint for the
// caller to act on.
type Manager struct {
	mu          sync.RWMutex
	db          *store.Store
	cfg         BroadcastConfig
	lastBcast   map[types.Pubkey]time.Time // process-local, bounded by cfg.MaxGossipTimeEntries
	log         log.Logger
	m           *metrics.Metrics
}

// New builds a gossip Manager over db. m may be nil.
func New(db *store.Store, cfg BroadcastConfig, m *metrics.Metrics, logger log.Logger) *Manager {
	return &Manager{
		db:        db,
		cfg:       cfg,
		lastBcast: make(map[types.Pubkey]time.Time),
		log:       logger,
		m:         m,
	}
}

// ApplyResult reports what Apply did, so the caller (dispatcher or
// anti-entropy loop) can decide whether to re-gossip or request a hint.
type ApplyResult int

const (
	Applied ApplyResult = iota
	Ignored
	StaleHint // incoming version was lower than stored: the dispatcher answers the sender with its own FULL_SYNC
)

// Apply applies an incoming GOSSIP under the monotonic version rule
// (spec §4.3, §8): strictly greater version applies, equal is ignored,
// lower produces a StaleHint.
func (m *Manager) Apply(ctx context.Context, incoming types.PeerState) (ApplyResult, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	current, err := m.db.GetPeerState(incoming.Pubkey)
	if err != nil && err != store.ErrNotFound {
		return Ignored, err
	}
	if err == nil {
		if incoming.Version < current.Version {
			if m.m != nil {
				m.m.GossipStale.Inc()
			}
			return StaleHint, nil
		}
		if incoming.Version == current.Version {
			return Ignored, nil
		}
	}

	batch := m.db.NewBatch()
	if err := batch.PutPeerState(incoming); err != nil {
		return Ignored, err
	}
	if err := m.db.Commit(batch); err != nil {
		return Ignored, err
	}
	if m.m != nil {
		m.m.GossipApplied.Inc()
	}
	return Applied, nil
}

// ShouldBroadcast reports whether the local node's own updated state
// crosses a broadcast threshold relative to the last time it broadcast:
// capacity drift strictly greater than CapacityDriftPct, any fee-policy
// change, any ban/unban (caller passes forceReason for those), or the
// heartbeat cadence elapsing with nothing else pending.
func (m *Manager) ShouldBroadcast(self types.Pubkey, prev, next types.PeerState, forceReason bool) bool {
	m.mu.RLock()
	last, ok := m.lastBcast[self]
	m.mu.RUnlock()

	if forceReason {
		return true
	}
	if prev.FeePolicyHash != next.FeePolicyHash {
		return true
	}
	if prev.CapacitySat > 0 {
		drift := driftPct(prev.CapacitySat, next.CapacitySat)
		if drift > m.cfg.CapacityDriftPct {
			return true
		}
	}
	if !ok {
		return true
	}
	return time.Since(last) >= m.cfg.Heartbeat
}

// MarkBroadcast records that self's state was just (re-)broadcast,
// evicting the oldest entry first if the map is at its bound — this is
// the process-local "peer-gossip-time map" capped by §3.
func (m *Manager) MarkBroadcast(self types.Pubkey, at time.Time) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, exists := m.lastBcast[self]; !exists && m.cfg.MaxGossipTimeEntries > 0 && len(m.lastBcast) >= m.cfg.MaxGossipTimeEntries {
		var oldestKey types.Pubkey
		var oldestAt time.Time
		first := true
		for pk, t := range m.lastBcast {
			if first || t.Before(oldestAt) {
				oldestKey, oldestAt = pk, t
				first = false
			}
		}
		if !first {
			delete(m.lastBcast, oldestKey)
		}
	}
	m.lastBcast[self] = at
}

// driftPct returns the absolute percentage change from a to b. A
// capacity change of exactly 10% must not trigger (spec §8 boundary
// behaviour); the caller compares with strict >, so 10.0 itself never
// qualifies while 10.0001 does.
func driftPct(a, b int64) float64 {
	if a == 0 {
		if b == 0 {
			return 0
		}
		return 100
	}
	diff := b - a
	if diff < 0 {
		diff = -diff
	}
	return float64(diff) / float64(a) * 100
}

// Copyright (C) 2025, Lux Industries Inc. All rights reserved.
// See the file LICENSE for licensing terms.

package dispatch

import (
	"context"
	"sync"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/luxfi/hive/contribution"
	"github.com/luxfi/hive/governance"
	"github.com/luxfi/hive/gossip"
	"github.com/luxfi/hive/host"
	"github.com/luxfi/hive/intent"
	"github.com/luxfi/hive/member"
	"github.com/luxfi/hive/metrics"
	"github.com/luxfi/hive/planner"
	"github.com/luxfi/hive/store"
	"github.com/luxfi/hive/types"
	"github.com/luxfi/log"
	"golang.org/x/sync/errgroup"
)

// LoopConfig bounds every background loop's cadence (spec §7: "every
// loop waits on the signal with a timeout equal to its cadence; no loop
// may block indefinitely on IO").
type LoopConfig struct {
	AntiEntropy             time.Duration // gossip rebroadcast check
	IntentCommit            time.Duration // <= 5s
	ContributionMaintenance time.Duration
	Planner                 time.Duration // >= 300s, typical 3600s
	MembershipMaintenance   time.Duration

	LeechRatioThreshold float64       // below this, a sustained leech
	LeechSustainWindow  time.Duration // e.g. 7 days
	IntentHold          time.Duration // hold window for a ban_peer Intent
	IntentHorizon       time.Duration

	VouchTTL time.Duration // vouches older than this are pruned
}

// Supervisor drives the process's background loops under one
// cancellation context, grounded on the teacher's named-supervised-
// workers shape but built on golang.org/x/sync/errgroup instead of a
// hand-rolled WaitGroup/select fan-in.
type Supervisor struct {
	cfg     LoopConfig
	db      *store.Store
	node    host.Node
	gossipM *gossip.Manager
	intentM *intent.Manager
	members *member.Registry
	ledger  *contribution.Ledger
	gov     *governance.Engine
	planner *planner.Manager
	fanout  *Fanout
	log     log.Logger
	m       *metrics.Metrics

	mu        sync.Mutex
	leechSince map[types.Pubkey]time.Time
}

// NewSupervisor builds a Supervisor wiring every background loop's
// collaborators. m may be nil.
func NewSupervisor(cfg LoopConfig, db *store.Store, node host.Node, gossipM *gossip.Manager, intentM *intent.Manager, members *member.Registry, ledger *contribution.Ledger, gov *governance.Engine, plannerM *planner.Manager, fanout *Fanout, m *metrics.Metrics, logger log.Logger) *Supervisor {
	return &Supervisor{
		cfg:        cfg,
		db:         db,
		node:       node,
		gossipM:    gossipM,
		intentM:    intentM,
		members:    members,
		ledger:     ledger,
		gov:        gov,
		planner:    plannerM,
		fanout:     fanout,
		m:          m,
		log:        logger,
		leechSince: make(map[types.Pubkey]time.Time),
	}
}

// Run drives every background loop until ctx is cancelled, returning the
// first loop error (if any loop returns a non-nil error, every other
// loop is cancelled too via the shared errgroup context).
func (s *Supervisor) Run(ctx context.Context) error {
	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error { return s.runLoop(gctx, "anti-entropy", s.cfg.AntiEntropy, s.antiEntropyTick) })
	g.Go(func() error { return s.runLoop(gctx, "intent-commit", s.cfg.IntentCommit, s.intentCommitTick) })
	g.Go(func() error {
		return s.runLoop(gctx, "contribution-maintenance", s.cfg.ContributionMaintenance, s.contributionMaintenanceTick)
	})
	g.Go(func() error { return s.runLoop(gctx, "planner", s.cfg.Planner, s.plannerTick) })
	g.Go(func() error {
		return s.runLoop(gctx, "membership-maintenance", s.cfg.MembershipMaintenance, s.membershipMaintenanceTick)
	})

	return g.Wait()
}

// runLoop ticks fn every cadence until ctx is cancelled. A single tick's
// failure is logged and the loop continues — a transient failure in one
// cycle must not bring the whole supervisor down (spec §7's "no loop may
// block indefinitely on IO" extends to "no loop dies from one bad tick").
func (s *Supervisor) runLoop(ctx context.Context, name string, cadence time.Duration, fn func(ctx context.Context) error) error {
	ticker := time.NewTicker(cadence)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			tickCtx, cancel := context.WithTimeout(ctx, cadence)
			err := fn(tickCtx)
			cancel()
			if err != nil {
				s.log.Warn("dispatch: background loop tick failed", "loop", name, "err", err)
				if s.m != nil {
					s.m.LoopTickFailures.WithLabelValues(name).Inc()
				}
			} else {
				s.log.Debug("dispatch: background loop tick ok", "loop", name)
			}
		}
	}
}

func (s *Supervisor) intentCommitTick(ctx context.Context) error {
	return s.intentM.RunCommitCycle(ctx)
}

func (s *Supervisor) plannerTick(ctx context.Context) error {
	return s.planner.RunCycle(ctx)
}

func (s *Supervisor) contributionMaintenanceTick(ctx context.Context) error {
	return s.ledger.PruneExpired(time.Now())
}

// antiEntropyTick re-derives this node's own PeerState from the host
// node, checks the broadcast thresholds of spec §4.3, and if crossed,
// bumps the version, applies it locally, and broadcasts it.
func (s *Supervisor) antiEntropyTick(ctx context.Context) error {
	self := s.node.Pubkey()
	prev, err := s.db.GetPeerState(self)
	if err != nil && !errors.Is(err, store.ErrNotFound) {
		return err
	}

	channels, err := s.node.Channels(ctx)
	if err != nil {
		return err
	}
	var capacity int64
	for _, c := range channels {
		capacity += c.CapacitySat
	}
	feeHash, err := s.node.FeePolicyHash(ctx)
	if err != nil {
		return err
	}

	next := types.PeerState{
		Pubkey:        self,
		Version:       prev.Version,
		Timestamp:     time.Now(),
		CapacitySat:   capacity,
		ChannelSet:    channels,
		FeePolicyHash: feeHash,
		Health:        "ok",
	}

	if !s.gossipM.ShouldBroadcast(self, prev, next, false) {
		return nil
	}

	next.Version = prev.Version + 1
	if _, err := s.gossipM.Apply(ctx, next); err != nil {
		return err
	}
	if err := s.fanout.BroadcastGossip(ctx, next); err != nil {
		return err
	}
	s.gossipM.MarkBroadcast(self, next.Timestamp)
	if s.m != nil {
		s.m.GossipBroadcasts.Inc()
	}
	return nil
}

// membershipMaintenanceTick prunes vouches past their TTL, expires
// overdue pending governance actions, and flags sustained leeches for a
// ban_peer Intent (spec §4.5, §4.7).
func (s *Supervisor) membershipMaintenanceTick(ctx context.Context) error {
	now := time.Now()

	if err := s.pruneStaleVouches(now); err != nil {
		return err
	}
	if err := s.gov.ExpirePending(now); err != nil {
		return err
	}
	return s.checkLeeches(ctx, now)
}

func (s *Supervisor) pruneStaleVouches(now time.Time) error {
	cutoff := now.Add(-s.cfg.VouchTTL)
	stale, err := s.db.ListStaleVouches(cutoff)
	if err != nil {
		return err
	}
	if len(stale) == 0 {
		return nil
	}
	batch := s.db.NewBatch()
	for _, v := range stale {
		if err := batch.DeleteVouch(v.Subject, v.Voucher, v.RequestID); err != nil {
			return err
		}
	}
	return s.db.Commit(batch)
}

func (s *Supervisor) checkLeeches(ctx context.Context, now time.Time) error {
	active, err := s.members.ActiveMembers()
	if err != nil {
		return err
	}
	self := s.node.Pubkey()

	for _, m := range active {
		if m.Pubkey == self {
			continue
		}
		isLeech, _, err := member.IsLeech(s.db, m.Pubkey, s.cfg.LeechRatioThreshold, s.cfg.LeechSustainWindow, now)
		if err != nil {
			return err
		}

		s.mu.Lock()
		since, wasLeech := s.leechSince[m.Pubkey]
		if !isLeech {
			delete(s.leechSince, m.Pubkey)
			s.mu.Unlock()
			continue
		}
		if !wasLeech {
			s.leechSince[m.Pubkey] = now
			s.mu.Unlock()
			continue
		}
		s.mu.Unlock()

		if now.Sub(since) < s.cfg.LeechSustainWindow {
			continue
		}
		if _, err := s.intentM.Announce(ctx, types.IntentBanPeer, string(m.Pubkey), s.cfg.IntentHold, s.cfg.IntentHorizon); err != nil {
			s.log.Warn("dispatch: ban_peer intent announce failed", "peer", m.Pubkey, "err", err)
		}
	}
	return nil
}

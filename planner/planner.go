// Copyright (C) 2025, Lux Industries Inc. All rights reserved.
// See the file LICENSE for licensing terms.

// Package planner implements the background saturation/expansion
// analysis of spec §4.8: on a fixed cadence it computes each external
// target's hive_share, inhibits new opens to over-saturated targets,
// releases inhibitors once a target cools off, and proposes at most one
// expansion Intent per cycle toward an underserved target. It is
// grounded on the teacher's networking/timeout.Manager shape — a single
// mutex-guarded struct driven by one background loop on a fixed cadence,
// with a bounded, explicit decision log instead of an unbounded trace.
package planner

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/luxfi/hive/governance"
	"github.com/luxfi/hive/host"
	"github.com/luxfi/hive/member"
	"github.com/luxfi/hive/metrics"
	"github.com/luxfi/hive/store"
	"github.com/luxfi/hive/types"
	"github.com/luxfi/log"
)

// Config bounds the planner's cadence, thresholds and per-cycle rate
// limits (spec §4.8).
type Config struct {
	Cadence time.Duration // >= 300s; typical 3600s

	SaturationThreshold float64 // hive_share above this: inhibit
	ReleaseThreshold    float64 // hive_share below this: release
	ExpansionThreshold  float64 // hive_share below this: expansion candidate

	MaxIgnorePerCycle int // at most this many new inhibitors per cycle

	MinTargetPublicCapacitySat int64         // expansion candidates must clear this
	MinTargetAge               time.Duration // and have been observed for at least this long

	OpenerUptimeWindow   time.Duration
	MinOpenerUptimePct   float64 // e.g. 99
	MinOpenerIdleFundsSat int64
	ExpansionHold        time.Duration // Intent hold window for the proposed channel_open
	ExpansionHorizon     time.Duration // Intent expiry horizon

	MaxLogRows int // planner_log is capped like every other table (spec §6.6)
}

// Node is the subset of host.Node the planner needs: its own idle funds
// and the publicly observed capacity of a candidate target.
type Node interface {
	Pubkey() types.Pubkey
	OnChainBalanceSat(ctx context.Context) (int64, error)
	PublicCapacitySat(ctx context.Context, target types.Pubkey) (int64, error)
}

// IntentAnnouncer is the one Intent-protocol call the planner makes:
// announcing a candidate channel_open (spec §4.8's "propose a
// channel_open Intent").
type IntentAnnouncer interface {
	Announce(ctx context.Context, t types.IntentType, target string, hold, expiresIn time.Duration) (types.Intent, error)
}

// Manager runs the saturation/expansion cycle.
type Manager struct {
	cfg     Config
	db      *store.Store
	node    Node
	members *member.Registry
	gov     *governance.Engine
	intents IntentAnnouncer
	log     log.Logger
	now     func() time.Time
	m       *metrics.Metrics

	mu         sync.Mutex
	inhibited  map[string]bool
	firstSeen  map[string]time.Time
	seq        uint32
}

// New builds a planner Manager. m may be nil.
func New(cfg Config, db *store.Store, node Node, members *member.Registry, gov *governance.Engine, intents IntentAnnouncer, m *metrics.Metrics, logger log.Logger) *Manager {
	return &Manager{
		cfg:       cfg,
		db:        db,
		node:      node,
		members:   members,
		gov:       gov,
		intents:   intents,
		log:       logger,
		now:       time.Now,
		m:         m,
		inhibited: make(map[string]bool),
		firstSeen: make(map[string]time.Time),
	}
}

// target is one candidate external peer aggregated from every Member's
// replicated channel set.
type target struct {
	pubkey      types.Pubkey
	rawHiveCap  int64
}

// candidates walks every stored PeerState's channel set and sums
// reported capacity per external target, excluding the Hive's own
// members (spec §4.8 only concerns targets outside the fleet).
func (m *Manager) candidates() (map[string]*target, error) {
	states, err := m.db.ListPeerStates()
	if err != nil {
		return nil, err
	}
	members, err := m.members.ActiveMembers()
	if err != nil {
		return nil, err
	}
	memberSet := make(map[types.Pubkey]bool, len(members))
	for _, mm := range members {
		memberSet[mm.Pubkey] = true
	}

	out := make(map[string]*target)
	for _, ps := range states {
		for _, ch := range ps.ChannelSet {
			if memberSet[ch.PeerPubkey] {
				continue
			}
			key := string(ch.PeerPubkey)
			t, ok := out[key]
			if !ok {
				t = &target{pubkey: ch.PeerPubkey}
				out[key] = t
			}
			t.rawHiveCap += ch.CapacitySat
		}
	}
	return out, nil
}

// hiveShare computes target's hive_share, capping the reported Hive
// capacity at the publicly observed total so gossiped figures can never
// inflate the numerator past what the network itself reports (spec
// §4.8).
func (m *Manager) hiveShare(ctx context.Context, t *target) (share float64, totalCap int64, err error) {
	totalCap, err = m.node.PublicCapacitySat(ctx, t.pubkey)
	if err != nil {
		return 0, 0, err
	}
	if totalCap <= 0 {
		return 0, 0, nil
	}
	capped := t.rawHiveCap
	if capped > totalCap {
		capped = totalCap
	}
	return float64(capped) / float64(totalCap), totalCap, nil
}

// TargetView is one external target's current planner-observed state,
// the management surface's "show topology" query (spec §6.5).
type TargetView struct {
	Pubkey           types.Pubkey
	HiveReportedCap  int64
	PublicCap        int64
	HiveShare        float64
	Inhibited        bool
}

// Candidates reports every external target the planner currently tracks,
// for the topology query. It performs the same public-capacity lookups
// RunCycle does, so the view is never stale relative to stored PeerState.
func (m *Manager) Candidates(ctx context.Context) ([]TargetView, error) {
	cands, err := m.candidates()
	if err != nil {
		return nil, err
	}
	keys := make([]string, 0, len(cands))
	for k := range cands {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	out := make([]TargetView, 0, len(keys))
	for _, k := range keys {
		t := cands[k]
		share, totalCap, err := m.hiveShare(ctx, t)
		if err != nil {
			m.log.Warn("planner: public capacity query failed for topology view", "target", t.pubkey, "err", err)
			continue
		}
		m.mu.Lock()
		inhibited := m.inhibited[k]
		m.mu.Unlock()
		out = append(out, TargetView{
			Pubkey:          t.pubkey,
			HiveReportedCap: t.rawHiveCap,
			PublicCap:       totalCap,
			HiveShare:       share,
			Inhibited:       inhibited,
		})
	}
	return out, nil
}

// RunCycle executes one saturation/expansion pass (spec §4.8). It never
// blocks longer than the caller's context allows; each sub-step is
// itself context-bounded by the collaborators it calls.
func (m *Manager) RunCycle(ctx context.Context) error {
	now := m.now()
	cands, err := m.candidates()
	if err != nil {
		return err
	}

	keys := make([]string, 0, len(cands))
	for k := range cands {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	ignoresThisCycle := 0
	var expansionPick *target
	var expansionShare float64
	var expansionDeficit float64

	for _, k := range keys {
		t := cands[k]
		share, totalCap, err := m.hiveShare(ctx, t)
		if err != nil {
			m.log.Warn("planner: public capacity query failed, skipping target", "target", t.pubkey, "err", err)
			continue
		}

		m.mu.Lock()
		if _, seen := m.firstSeen[k]; !seen {
			m.firstSeen[k] = now
		}
		age := now.Sub(m.firstSeen[k])
		alreadyInhibited := m.inhibited[k]
		m.mu.Unlock()

		switch {
		case share > m.cfg.SaturationThreshold:
			if alreadyInhibited {
				continue
			}
			if ignoresThisCycle >= m.cfg.MaxIgnorePerCycle {
				m.abortMassSaturation(ctx, now)
				return nil
			}
			ignoresThisCycle++
			m.saturate(ctx, t, share, now)

		case alreadyInhibited && share < m.cfg.ReleaseThreshold:
			m.release(ctx, t, share, now)

		case share < m.cfg.ExpansionThreshold && totalCap >= m.cfg.MinTargetPublicCapacitySat && age >= m.cfg.MinTargetAge:
			// Track the best expansion candidate: largest absolute
			// capacity deficit, so the one cycle-limited expansion goes
			// to the target the fleet is most underserving.
			deficit := float64(totalCap) * (m.cfg.ExpansionThreshold - share)
			if expansionPick == nil || deficit > expansionDeficit {
				expansionPick = t
				expansionShare = share
				expansionDeficit = deficit
			}
		}
	}

	if expansionPick != nil {
		if err := m.expand(ctx, expansionPick, expansionShare, now); err != nil {
			m.log.Warn("planner: expansion attempt failed", "target", expansionPick.pubkey, "err", err)
		}
	}

	return nil
}

func (m *Manager) saturate(ctx context.Context, t *target, share float64, now time.Time) {
	_, err := m.gov.Propose(ctx, types.ActionInhibitOpens, string(t.pubkey), nil, m.node.Pubkey())
	outcome := "proposed"
	if err != nil {
		outcome = "propose failed: " + err.Error()
	} else {
		m.mu.Lock()
		m.inhibited[string(t.pubkey)] = true
		m.mu.Unlock()
	}
	m.appendLog(types.PlannerLogEntry{
		Timestamp: now,
		Decision:  types.PlannerSaturate,
		Target:    string(t.pubkey),
		Outcome:   outcome,
	})
	m.log.Info("planner: saturation inhibitor proposed", "target", t.pubkey, "hive_share", share)
	if m.m != nil {
		m.m.PlannerSaturations.Inc()
	}
}

func (m *Manager) release(ctx context.Context, t *target, share float64, now time.Time) {
	_, err := m.gov.Propose(ctx, types.ActionReleaseInhibit, string(t.pubkey), nil, m.node.Pubkey())
	outcome := "proposed"
	if err != nil {
		outcome = "propose failed: " + err.Error()
	} else {
		m.mu.Lock()
		m.inhibited[string(t.pubkey)] = false
		m.mu.Unlock()
	}
	m.appendLog(types.PlannerLogEntry{
		Timestamp: now,
		Decision:  types.PlannerRelease,
		Target:    string(t.pubkey),
		Outcome:   outcome,
	})
	m.log.Info("planner: saturation inhibitor release proposed", "target", t.pubkey, "hive_share", share)
	if m.m != nil {
		m.m.PlannerReleases.Inc()
	}
}

// abortMassSaturation is spec §4.8's escape hatch: if honoring every
// would-be inhibitor this cycle would exceed MaxIgnorePerCycle, the
// cycle stops at that target: inhibitors already proposed earlier in the
// cycle (and their log rows) stand, the remaining targets are skipped,
// and one "mass saturation" warning and log row are written.
func (m *Manager) abortMassSaturation(ctx context.Context, now time.Time) {
	m.log.Warn("planner: mass saturation detected, aborting cycle", "max_ignore_per_cycle", m.cfg.MaxIgnorePerCycle)
	m.appendLog(types.PlannerLogEntry{
		Timestamp: now,
		Decision:  types.PlannerSkip,
		Target:    "",
		Outcome:   "mass saturation: cycle aborted",
	})
	if m.m != nil {
		m.m.PlannerMassAborts.Inc()
	}
}

// expand evaluates whether this node itself is a suitable opener for
// target and, if so, announces a channel_open Intent (spec §4.8). Each
// fleet participant runs its own planner and self-assesses eligibility
// against the data it actually has authority over; the Intent Lock
// protocol's deterministic tie-break resolves the case where more than
// one node reaches the same conclusion in the same cycle.
func (m *Manager) expand(ctx context.Context, t *target, share float64, now time.Time) error {
	eligible, reason, err := m.selfEligibleOpener(ctx, now)
	if err != nil {
		return err
	}
	if !eligible {
		m.appendLog(types.PlannerLogEntry{
			Timestamp: now,
			Decision:  types.PlannerSkip,
			Target:    string(t.pubkey),
			Outcome:   "expansion candidate found, self not eligible opener: " + reason,
		})
		return nil
	}

	_, err = m.intents.Announce(ctx, types.IntentChannelOpen, string(t.pubkey), m.cfg.ExpansionHold, m.cfg.ExpansionHorizon)
	outcome := "channel_open intent announced"
	if err != nil {
		outcome = "announce failed: " + err.Error()
	}
	m.appendLog(types.PlannerLogEntry{
		Timestamp: now,
		Decision:  types.PlannerExpand,
		Target:    string(t.pubkey),
		Outcome:   outcome,
	})
	m.log.Info("planner: expansion intent announced", "target", t.pubkey, "hive_share", share)
	if err == nil && m.m != nil {
		m.m.PlannerExpansions.Inc()
	}
	return err
}

// selfEligibleOpener checks the three expansion-opener criteria of spec
// §4.8 against this node: uptime, idle funds, and zero pending intents.
func (m *Manager) selfEligibleOpener(ctx context.Context, now time.Time) (bool, string, error) {
	self := m.node.Pubkey()

	pct, err := member.UptimePct(m.db, self, m.cfg.OpenerUptimeWindow, now)
	if err != nil {
		return false, "", err
	}
	if pct < m.cfg.MinOpenerUptimePct {
		return false, "uptime below threshold", nil
	}

	intents, err := m.db.ListIntents()
	if err != nil {
		return false, "", err
	}
	for _, i := range intents {
		if i.Initiator == self && i.Status == types.IntentPending {
			return false, "has a pending intent", nil
		}
	}

	balance, err := m.node.OnChainBalanceSat(ctx)
	if err != nil {
		return false, "", err
	}
	if balance < m.cfg.MinOpenerIdleFundsSat {
		return false, "insufficient idle funds", nil
	}

	return true, "", nil
}

func (m *Manager) appendLog(e types.PlannerLogEntry) {
	m.mu.Lock()
	seq := m.seq
	m.seq++
	m.mu.Unlock()

	batch := m.db.NewBatch()
	if err := batch.AppendPlannerLog(e, seq); err != nil {
		m.log.Warn("planner: failed to append planner log entry", "err", err)
		return
	}
	if err := m.db.Commit(batch); err != nil {
		m.log.Warn("planner: failed to commit planner log entry", "err", err)
		return
	}
	if err := m.enforceLogCap(); err != nil {
		m.log.Warn("planner: failed to enforce planner log cap", "err", err)
	}
}

// enforceLogCap prunes the oldest planner_log rows once the table
// exceeds MaxLogRows, the same oldest-first bounded-eviction shape every
// other append-only table in Persistence uses.
func (m *Manager) enforceLogCap() error {
	if m.cfg.MaxLogRows <= 0 {
		return nil
	}
	var total int
	if err := m.db.ScanPlannerLog(func(_ []byte, _ types.PlannerLogEntry) bool {
		total++
		return true
	}); err != nil {
		return err
	}
	overBy := total - m.cfg.MaxLogRows
	if overBy <= 0 {
		return nil
	}

	batch := m.db.NewBatch()
	removed := 0
	err := m.db.ScanPlannerLog(func(key []byte, _ types.PlannerLogEntry) bool {
		if removed >= overBy {
			return false
		}
		if berr := batch.DeletePlannerLogKey(key); berr != nil {
			return false
		}
		removed++
		return removed < overBy
	})
	if err != nil {
		return err
	}
	if removed == 0 {
		return nil
	}
	return m.db.Commit(batch)
}

// compile-time interface satisfaction checks.
var _ Node = host.Node(nil)

// Copyright (C) 2025, Lux Industries Inc. All rights reserved.
// See the file LICENSE for licensing terms.

package member

import (
	"context"
	"math"
	"time"

	"github.com/luxfi/hive/contribution"
	"github.com/luxfi/hive/store"
	"github.com/luxfi/hive/types"
)

// PromotionConfig bounds the §4.5 criteria and vouch protocol.
type PromotionConfig struct {
	ProbationWindow   time.Duration // uptime evaluation window
	MinUptimePct      float64       // >= 99.5
	ContributionWindow time.Duration // 30 days
	MinContribRatio   float64       // >= 1.0
	VouchTTL          time.Duration // <= 24h recommended
	QuorumFloor       int           // "max(3, ...)" floor
	QuorumFraction    float64       // 0.51
}

// Criteria is the outcome of independently re-evaluating a candidate
// against the three promotion criteria (spec §4.5).
type Criteria struct {
	UptimeOK      bool
	UptimePct     float64
	ContributionOK bool
	ContribRatio  float64
	TopologyOK    bool
}

// Satisfied reports whether every criterion passed.
func (c Criteria) Satisfied() bool {
	return c.UptimeOK && c.ContributionOK && c.TopologyOK
}

// EvaluateCriteria independently re-evaluates candidate against the
// three promotion criteria, using only data the local node owns.
func EvaluateCriteria(db *store.Store, cfg PromotionConfig, candidate types.Pubkey, now time.Time) (Criteria, error) {
	uptimePct, err := UptimePct(db, candidate, cfg.ProbationWindow, now)
	if err != nil {
		return Criteria{}, err
	}

	ratio, err := contribution.Ratio(db, candidate, cfg.ContributionWindow, now)
	if err != nil {
		return Criteria{}, err
	}

	topologyOK, err := bringsNewPeer(db, candidate)
	if err != nil {
		return Criteria{}, err
	}

	return Criteria{
		UptimeOK:       uptimePct >= cfg.MinUptimePct,
		UptimePct:      uptimePct,
		ContributionOK: ratio >= cfg.MinContribRatio,
		ContribRatio:   ratio,
		TopologyOK:     topologyOK,
	}, nil
}

// bringsNewPeer reports whether candidate's replicated channel set
// contains at least one peer not currently connected to by any existing
// Member (spec §4.5's topological-uniqueness criterion).
func bringsNewPeer(db *store.Store, candidate types.Pubkey) (bool, error) {
	candidateState, err := db.GetPeerState(candidate)
	if err != nil {
		if err == store.ErrNotFound {
			return false, nil
		}
		return false, err
	}

	connected := make(map[types.Pubkey]bool)
	members, err := db.ListMembers()
	if err != nil {
		return false, err
	}
	for _, m := range members {
		if m.Pubkey == candidate || m.Banned {
			continue
		}
		ps, err := db.GetPeerState(m.Pubkey)
		if err == store.ErrNotFound {
			continue
		}
		if err != nil {
			return false, err
		}
		for _, ch := range ps.ChannelSet {
			connected[ch.PeerPubkey] = true
		}
	}

	for _, ch := range candidateState.ChannelSet {
		if !connected[ch.PeerPubkey] {
			return true, nil
		}
	}
	return false, nil
}

// QuorumSize returns max(3, ceil(0.51 * activeMembers)) (spec §4.5).
func QuorumSize(cfg PromotionConfig, activeMembers int) int {
	frac := int(math.Ceil(cfg.QuorumFraction * float64(activeMembers)))
	if frac > cfg.QuorumFloor {
		return frac
	}
	return cfg.QuorumFloor
}

// Verifier is the subset of host.Node this package needs to check vouch
// and quorum-proof signatures.
type Verifier interface {
	Verify(ctx context.Context, pubkey types.Pubkey, msg, sig []byte) (bool, error)
}

// VerifyVouch checks a single vouch's signature, freshness, and that its
// (subject, voucher, request_id) key is unique — i.e. not already
// recorded — before it is persisted and counted toward quorum.
func VerifyVouch(ctx context.Context, node Verifier, db *store.Store, hiveID string, vouchTTL time.Duration, now time.Time, v types.PromotionVouch) (bool, error) {
	if now.Sub(v.Timestamp) > vouchTTL {
		return false, nil
	}
	ok, err := node.Verify(ctx, v.Voucher, v.SigningPayload(hiveID), v.Signature)
	if err != nil || !ok {
		return false, err
	}
	existing, err := db.ListVouchesForSubject(v.Subject)
	if err != nil {
		return false, err
	}
	for _, e := range existing {
		if e.Voucher == v.Voucher && e.RequestID == v.RequestID {
			return false, nil // replay of an already-recorded vouch
		}
	}
	return true, nil
}

// TryCommitPromotion counts distinct valid vouches for subject/requestID
// and, if they meet quorum, promotes subject to Member. Every node
// performs this same independent check before committing the tier
// change, so no single broadcaster can force a promotion.
func (r *Registry) TryCommitPromotion(cfg PromotionConfig, subject types.Pubkey, requestID string) (bool, error) {
	vouches, err := r.db.ListVouchesForSubject(subject)
	if err != nil {
		return false, err
	}
	distinct := make(map[types.Pubkey]bool)
	for _, v := range vouches {
		if v.RequestID == requestID {
			distinct[v.Voucher] = true
		}
	}

	active, err := r.ActiveMembers()
	if err != nil {
		return false, err
	}
	if len(distinct) < QuorumSize(cfg, len(active)) {
		return false, nil
	}
	return true, r.promote(subject)
}

// IsLeech reports whether member's contribution ratio over window falls
// below threshold. Its one caller is the membership-maintenance loop,
// which proposes a ban_peer Intent once the condition has held for
// LeechSustainWindow; nothing lowers a leech's rebalance priority.
func IsLeech(db *store.Store, peer types.Pubkey, threshold float64, window time.Duration, now time.Time) (bool, float64, error) {
	ratio, err := contribution.Ratio(db, peer, window, now)
	if err != nil {
		return false, 0, err
	}
	return ratio < threshold, ratio, nil
}

// Copyright (C) 2025, Lux Industries Inc. All rights reserved.
// See the file LICENSE for licensing terms.

package dispatch

import (
	"context"
	"time"

	"github.com/luxfi/hive/governance"
	"github.com/luxfi/hive/host"
	"github.com/luxfi/hive/intent"
	"github.com/luxfi/hive/member"
	"github.com/luxfi/hive/types"
	"github.com/luxfi/hive/wire"
	"github.com/luxfi/log"
)

// Fanout sends Hive control messages to every current Member other than
// self. It implements intent.Broadcaster and governance.SideEffects,
// the two places something other than a direct reply must reach the
// whole fleet rather than one peer.
type Fanout struct {
	node    host.Node
	members *member.Registry
	log     log.Logger
}

// NewFanout builds a Fanout over the given node and membership registry.
func NewFanout(node host.Node, members *member.Registry, logger log.Logger) *Fanout {
	return &Fanout{node: node, members: members, log: logger}
}

func (f *Fanout) sendAll(ctx context.Context, t wire.Type, payload any) error {
	body, err := wire.JSON.Marshal(payload)
	if err != nil {
		return err
	}
	encoded, err := wire.Encode(t, body)
	if err != nil {
		return err
	}
	active, err := f.members.ActiveMembers()
	if err != nil {
		return err
	}
	self := f.node.Pubkey()
	for _, m := range active {
		if m.Pubkey == self {
			continue
		}
		if err := f.node.SendMessage(ctx, m.Pubkey, encoded); err != nil {
			f.log.Debug("dispatch: broadcast send failed", "peer", m.Pubkey, "type", t, "err", err)
		}
	}
	return nil
}

// BroadcastIntent satisfies intent.Broadcaster.
func (f *Fanout) BroadcastIntent(ctx context.Context, i types.Intent) error {
	return f.sendAll(ctx, wire.TypeIntent, wire.IntentMsg{Intent: i})
}

// BroadcastAbort satisfies intent.Broadcaster.
func (f *Fanout) BroadcastAbort(ctx context.Context, k types.IntentKey) error {
	return f.sendAll(ctx, wire.TypeIntentAbort, wire.IntentAbortMsg{Key: k})
}

// BroadcastGossip sends the local node's latest PeerState to every
// current Member, the anti-entropy loop's broadcast step (spec §4.3).
func (f *Fanout) BroadcastGossip(ctx context.Context, state types.PeerState) error {
	return f.sendAll(ctx, wire.TypeGossip, wire.GossipMsg{State: state})
}

// BroadcastVouch sends a signed PromotionVouch to every current Member,
// the management surface's "vouch" command (spec §4.5 step 2, §6.5).
func (f *Fanout) BroadcastVouch(ctx context.Context, v types.PromotionVouch) error {
	return f.sendAll(ctx, wire.TypeVouch, wire.VouchMsg{Vouch: v})
}

// BroadcastPromotionRequest sends a PROMOTION_REQUEST to every current
// Member, the management surface's "request promotion" command (spec
// §4.5 step 1, §6.5).
func (f *Fanout) BroadcastPromotionRequest(ctx context.Context, r types.PromotionRequest) error {
	return f.sendAll(ctx, wire.TypePromotionRequest, wire.PromotionRequestMsg{Request: r})
}

// BanPeer satisfies governance.SideEffects: it demotes peer locally and
// broadcasts the ban so every Member converges on the same membership
// view (spec §4.5, §4.7).
func (f *Fanout) BanPeer(ctx context.Context, peer types.Pubkey, reason string) error {
	now := time.Now()
	if err := f.members.Ban(peer, reason, now); err != nil {
		return err
	}
	return f.sendAll(ctx, wire.TypeBan, wire.BanMsg{Ban: types.Ban{Pubkey: peer, Reason: reason, Since: now}})
}

var (
	_ intent.Broadcaster    = (*Fanout)(nil)
	_ governance.SideEffects = (*Fanout)(nil)
)

// ActionRunner adapts the Intent Lock protocol's commit step onto
// Governance's single funnel (spec §4.4 step 3 / §4.7): a committed
// Intent never executes directly, it is translated into a PendingAction
// and proposed.
type ActionRunner struct {
	gov  *governance.Engine
	self types.Pubkey
}

// NewActionRunner builds an ActionRunner over gov, proposing actions as
// self.
func NewActionRunner(gov *governance.Engine, self types.Pubkey) *ActionRunner {
	return &ActionRunner{gov: gov, self: self}
}

// ProposeFromIntent satisfies intent.ActionRunner.
func (r *ActionRunner) ProposeFromIntent(ctx context.Context, i types.Intent) error {
	actionType, ok := intentActionType(i.Type)
	if !ok {
		return nil
	}
	_, err := r.gov.Propose(ctx, actionType, i.Target, nil, r.self)
	return err
}

func intentActionType(t types.IntentType) (types.ActionType, bool) {
	switch t {
	case types.IntentChannelOpen:
		return types.ActionChannelOpen, true
	case types.IntentRebalance:
		return types.ActionRebalance, true
	case types.IntentBanPeer:
		return types.ActionBanPeer, true
	default:
		return "", false
	}
}

var _ intent.ActionRunner = (*ActionRunner)(nil)

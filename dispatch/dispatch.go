// Copyright (C) 2025, Lux Industries Inc. All rights reserved.
// See the file LICENSE for licensing terms.

// Package dispatch implements the top-level receive loop (spec §7): a
// frame arrives from the host node's custom-message channel, is decoded,
// gated on membership, and routed to the component that owns its
// message type. It is grounded on the teacher's
// networking/router.ChainRouter — a single entry point that classifies
// an inbound message and hands it to the right downstream handler,
// logging and dropping on any classification failure rather than ever
// propagating a peer-induced error up to the caller.
package dispatch

import (
	"context"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/luxfi/hive/errkinds"
	"github.com/luxfi/hive/gossip"
	"github.com/luxfi/hive/governance"
	"github.com/luxfi/hive/handshake"
	"github.com/luxfi/hive/host"
	"github.com/luxfi/hive/intent"
	"github.com/luxfi/hive/member"
	"github.com/luxfi/hive/store"
	"github.com/luxfi/hive/types"
	"github.com/luxfi/hive/wire"
	"github.com/luxfi/log"
)

// Config bounds the dispatcher's own behaviour: the full-sync record cap
// and the promotion/vouch settings it needs to route VOUCH/PROMOTION
// frames.
type Config struct {
	MaxFullSyncStates int
	HiveID            string
	Promotion         member.PromotionConfig
}

// Dispatcher routes inbound frames to the Hive component that owns them.
// One Dispatcher is built per running node; it sends its single-peer
// replies with SendMessage directly, while broadcasts go through Fanout.
type Dispatcher struct {
	cfg     Config
	node    host.Node
	db      *store.Store
	members *member.Registry
	hs      *handshake.Handshake
	gossipM *gossip.Manager
	intentM *intent.Manager
	gov     *governance.Engine
	log     log.Logger
}

// New builds a Dispatcher wiring every component it routes to.
func New(cfg Config, node host.Node, db *store.Store, members *member.Registry, hs *handshake.Handshake, gossipM *gossip.Manager, intentM *intent.Manager, gov *governance.Engine, logger log.Logger) *Dispatcher {
	return &Dispatcher{
		cfg:     cfg,
		node:    node,
		db:      db,
		members: members,
		hs:      hs,
		gossipM: gossipM,
		intentM: intentM,
		gov:     gov,
		log:     logger,
	}
}

// admissionTypes are routed before the membership gate, since their
// whole purpose is admitting a sender who is not yet a Member.
func isAdmissionType(t wire.Type) bool {
	switch t {
	case wire.TypeHello, wire.TypeChallenge, wire.TypeAttest, wire.TypeWelcome:
		return true
	default:
		return false
	}
}

// HandleFrame is the dispatcher's single entry point: every raw message
// the host node delivers on its custom-message channel is offered here
// first. A frame lacking the Hive magic tag is not ours and is returned
// untouched (the caller should let the host process it normally);
// everything else is this function's responsibility, and it never
// returns an error for a peer-induced condition — those are classified,
// logged, and dropped (spec §7).
func (d *Dispatcher) HandleFrame(ctx context.Context, sender types.Pubkey, raw []byte) (consumed bool, err error) {
	if !wire.HasMagic(raw) {
		return false, nil
	}

	frame, derr := wire.Decode(raw)
	if derr != nil {
		d.log.Debug("dispatch: dropping malformed frame", "sender", sender, "err", derr)
		return true, nil
	}

	if !isAdmissionType(frame.Type) {
		ok, merr := d.members.IsCurrentMember(sender)
		if merr != nil {
			return true, merr
		}
		if !ok {
			d.log.Debug("dispatch: dropping frame from non-member", "sender", sender, "type", frame.Type)
			return true, nil
		}
		if err := d.members.Touch(sender, time.Now()); err != nil {
			d.log.Debug("dispatch: touch failed", "sender", sender, "err", err)
		}
	}

	if err := d.route(ctx, sender, frame); err != nil {
		d.log.Debug("dispatch: handler error", "sender", sender, "type", frame.Type, "err", err)
	}
	return true, nil
}

func (d *Dispatcher) route(ctx context.Context, sender types.Pubkey, frame wire.Frame) error {
	switch frame.Type {
	case wire.TypeHello:
		return d.onHello(ctx, sender, frame.Body)
	case wire.TypeAttest:
		return d.onAttest(ctx, sender, frame.Body)
	case wire.TypeGossip:
		return d.onGossip(ctx, sender, frame.Body)
	case wire.TypeStateHash:
		return d.onStateHash(ctx, sender, frame.Body)
	case wire.TypeFullSync:
		return d.onFullSync(ctx, frame.Body)
	case wire.TypeIntent:
		return d.onIntent(ctx, frame.Body)
	case wire.TypeIntentAbort:
		return d.onIntentAbort(frame.Body)
	case wire.TypeVouch:
		return d.onVouch(ctx, frame.Body)
	case wire.TypePromotionRequest:
		return d.onPromotionRequest(frame.Body)
	case wire.TypePromotion:
		return d.onPromotion(ctx, frame.Body)
	case wire.TypeBan:
		return d.onBan(frame.Body)
	case wire.TypeChallenge, wire.TypeWelcome:
		// These are responses this node sends, not ones it expects to
		// receive from a candidate; a well-behaved peer never sends
		// them inbound in this direction.
		return errors.Wrap(errkinds.Malformed, "dispatch: unexpected response-only message type")
	default:
		return errors.Wrapf(errkinds.Malformed, "dispatch: unknown message type %#x", frame.Type)
	}
}

func (d *Dispatcher) send(ctx context.Context, peer types.Pubkey, t wire.Type, payload any) error {
	body, err := wire.JSON.Marshal(payload)
	if err != nil {
		return err
	}
	encoded, err := wire.Encode(t, body)
	if err != nil {
		return err
	}
	return d.node.SendMessage(ctx, peer, encoded)
}

func (d *Dispatcher) onHello(ctx context.Context, sender types.Pubkey, body []byte) error {
	var hello wire.HelloMsg
	if err := wire.JSON.Unmarshal(body, &hello); err != nil {
		return errors.Wrap(errkinds.Malformed, err.Error())
	}
	resp, err := d.hs.OnHello(ctx, hello)
	if err != nil {
		return err
	}
	return d.send(ctx, sender, wire.TypeChallenge, resp)
}

func (d *Dispatcher) onAttest(ctx context.Context, sender types.Pubkey, body []byte) error {
	var att wire.AttestMsg
	if err := wire.JSON.Unmarshal(body, &att); err != nil {
		return errors.Wrap(errkinds.Malformed, err.Error())
	}
	res, err := d.hs.OnAttest(ctx, sender, sender, att)
	if err != nil {
		return err
	}
	if !res.Admitted {
		d.log.Debug("dispatch: admission rejected", "candidate", sender, "reason", res.Rejected)
		return nil
	}
	if err := d.send(ctx, sender, wire.TypeWelcome, wire.WelcomeMsg{Tier: res.Tier}); err != nil {
		return err
	}
	// A node learns its own tier only from the WELCOME it receives back
	// on its own admission; record that here too so this node's local
	// membership gate (IsCurrentMember) is consistent for itself.
	if sender == d.node.Pubkey() {
		return d.members.Admit(ctx, sender, res.Tier)
	}
	return nil
}

func (d *Dispatcher) onGossip(ctx context.Context, sender types.Pubkey, body []byte) error {
	var msg wire.GossipMsg
	if err := wire.JSON.Unmarshal(body, &msg); err != nil {
		return errors.Wrap(errkinds.Malformed, err.Error())
	}
	res, err := d.gossipM.Apply(ctx, msg.State)
	if err != nil {
		return err
	}
	if res == gossip.StaleHint {
		d.log.Debug("dispatch: stale gossip version, sending full sync", "peer", sender)
		states, err := d.gossipM.BuildFullSync(d.cfg.MaxFullSyncStates)
		if err != nil {
			return err
		}
		return d.send(ctx, sender, wire.TypeFullSync, wire.FullSyncMsg{States: states})
	}
	return nil
}

func (d *Dispatcher) onStateHash(ctx context.Context, sender types.Pubkey, body []byte) error {
	var msg wire.StateHashMsg
	if err := wire.JSON.Unmarshal(body, &msg); err != nil {
		return errors.Wrap(errkinds.Malformed, err.Error())
	}
	local, err := d.gossipM.LocalHash()
	if err != nil {
		return err
	}
	if local == msg.Hash {
		return nil
	}
	states, err := d.gossipM.BuildFullSync(d.cfg.MaxFullSyncStates)
	if err != nil {
		return err
	}
	return d.send(ctx, sender, wire.TypeFullSync, wire.FullSyncMsg{States: states})
}

func (d *Dispatcher) onFullSync(ctx context.Context, body []byte) error {
	var msg wire.FullSyncMsg
	if err := wire.JSON.Unmarshal(body, &msg); err != nil {
		return errors.Wrap(errkinds.Malformed, err.Error())
	}
	applied, err := d.gossipM.ApplyFullSync(ctx, d.cfg.MaxFullSyncStates, msg.States)
	if err != nil && !errors.Is(err, gossip.ErrFullSyncOverflow) {
		return err
	}
	if errors.Is(err, gossip.ErrFullSyncOverflow) {
		d.log.Warn("dispatch: full sync overflow, extra records dropped", "applied", applied, "received", len(msg.States))
	}
	return nil
}

func (d *Dispatcher) onIntent(ctx context.Context, body []byte) error {
	var msg wire.IntentMsg
	if err := wire.JSON.Unmarshal(body, &msg); err != nil {
		return errors.Wrap(errkinds.Malformed, err.Error())
	}
	return d.intentM.OnRemoteIntent(ctx, msg.Intent)
}

func (d *Dispatcher) onIntentAbort(body []byte) error {
	var msg wire.IntentAbortMsg
	if err := wire.JSON.Unmarshal(body, &msg); err != nil {
		return errors.Wrap(errkinds.Malformed, err.Error())
	}
	d.intentM.OnRemoteAbort(msg.Key)
	return nil
}

func (d *Dispatcher) onVouch(ctx context.Context, body []byte) error {
	var msg wire.VouchMsg
	if err := wire.JSON.Unmarshal(body, &msg); err != nil {
		return errors.Wrap(errkinds.Malformed, err.Error())
	}
	ok, err := member.VerifyVouch(ctx, d.node, d.db, d.cfg.HiveID, d.cfg.Promotion.VouchTTL, time.Now(), msg.Vouch)
	if err != nil {
		return err
	}
	if !ok {
		d.log.Debug("dispatch: dropping invalid or replayed vouch", "subject", msg.Vouch.Subject, "voucher", msg.Vouch.Voucher)
		return nil
	}

	batch := d.db.NewBatch()
	if err := batch.PutVouch(msg.Vouch); err != nil {
		return err
	}
	if err := d.db.Commit(batch); err != nil {
		return err
	}

	promoted, err := d.members.TryCommitPromotion(d.cfg.Promotion, msg.Vouch.Subject, msg.Vouch.RequestID)
	if err != nil {
		return err
	}
	if promoted {
		d.log.Info("dispatch: promotion quorum reached", "subject", msg.Vouch.Subject, "request_id", msg.Vouch.RequestID)
	}
	return nil
}

func (d *Dispatcher) onPromotionRequest(body []byte) error {
	var msg wire.PromotionRequestMsg
	if err := wire.JSON.Unmarshal(body, &msg); err != nil {
		return errors.Wrap(errkinds.Malformed, err.Error())
	}
	batch := d.db.NewBatch()
	if err := batch.PutPromotionRequest(msg.Request); err != nil {
		return err
	}
	return d.db.Commit(batch)
}

func (d *Dispatcher) onPromotion(ctx context.Context, body []byte) error {
	var msg wire.PromotionMsg
	if err := wire.JSON.Unmarshal(body, &msg); err != nil {
		return errors.Wrap(errkinds.Malformed, err.Error())
	}
	batch := d.db.NewBatch()
	for _, v := range msg.Vouches {
		ok, err := member.VerifyVouch(ctx, d.node, d.db, d.cfg.HiveID, d.cfg.Promotion.VouchTTL, time.Now(), v)
		if err != nil {
			return err
		}
		if !ok {
			continue
		}
		if err := batch.PutVouch(v); err != nil {
			return err
		}
	}
	if err := d.db.Commit(batch); err != nil {
		return err
	}
	_, err := d.members.TryCommitPromotion(d.cfg.Promotion, msg.Subject, msg.RequestID)
	return err
}

func (d *Dispatcher) onBan(body []byte) error {
	var msg wire.BanMsg
	if err := wire.JSON.Unmarshal(body, &msg); err != nil {
		return errors.Wrap(errkinds.Malformed, err.Error())
	}
	return d.members.Ban(msg.Ban.Pubkey, msg.Ban.Reason, msg.Ban.Since)
}

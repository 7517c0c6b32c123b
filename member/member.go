// Copyright (C) 2025, Lux Industries Inc. All rights reserved.
// See the file LICENSE for licensing terms.

// Package member implements the membership tier machine: admission,
// promotion (neophyte -> member) on a vouch quorum, and demotion to
// banned from any tier (spec §4.5). It is the one package allowed to
// mutate a Member row's tier.
package member

import (
	"context"
	"time"

	"github.com/luxfi/hive/store"
	"github.com/luxfi/hive/types"
	"github.com/luxfi/log"
)

// Registry wraps Persistence with the membership operations the rest of
// the system needs: the handshake's admission gate, the dispatcher's
// routing gate, and promotion/demotion.
type Registry struct {
	db  *store.Store
	log log.Logger
}

// New builds a membership Registry over db.
func New(db *store.Store, logger log.Logger) *Registry {
	return &Registry{db: db, log: logger}
}

// IsBanned satisfies handshake.Members.
func (r *Registry) IsBanned(pubkey types.Pubkey) (bool, error) {
	m, err := r.db.GetMember(pubkey)
	if err == store.ErrNotFound {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return m.Banned, nil
}

// Admit satisfies handshake.Members: it creates the Member row on
// successful handshake.
func (r *Registry) Admit(_ context.Context, pubkey types.Pubkey, tier types.Tier) error {
	now := time.Now()
	m := types.Member{Pubkey: pubkey, Tier: tier, JoinedAt: now, LastSeen: now}
	batch := r.db.NewBatch()
	if err := batch.PutMember(m); err != nil {
		return err
	}
	return r.db.Commit(batch)
}

// IsCurrentMember reports whether pubkey may originate non-admission
// control messages (spec §4.1's membership gate): present and not
// banned. Neophytes count as current members for routing purposes; only
// Tier itself distinguishes voting rights.
func (r *Registry) IsCurrentMember(pubkey types.Pubkey) (bool, error) {
	return r.db.IsCurrentMember(pubkey)
}

// Touch records that pubkey was just seen, for uptime accounting and
// stale-member bookkeeping.
func (r *Registry) Touch(pubkey types.Pubkey, at time.Time) error {
	m, err := r.db.GetMember(pubkey)
	if err != nil {
		return err
	}
	m.LastSeen = at
	batch := r.db.NewBatch()
	if err := batch.PutMember(m); err != nil {
		return err
	}
	return r.db.Commit(batch)
}

// Ban demotes pubkey to banned from any tier (spec §4.5: "direct
// demotion to banned is possible from any tier"). The member row is kept
// for replay defence; it is simply marked Banned.
func (r *Registry) Ban(pubkey types.Pubkey, reason string, at time.Time) error {
	m, err := r.db.GetMember(pubkey)
	if err != nil {
		return err
	}
	m.Tier = types.TierBanned
	m.Banned = true

	batch := r.db.NewBatch()
	if err := batch.PutMember(m); err != nil {
		return err
	}
	if err := batch.PutBan(types.Ban{Pubkey: pubkey, Reason: reason, Since: at}); err != nil {
		return err
	}
	return r.db.Commit(batch)
}

// ActiveMembers returns every non-banned member, for quorum-size
// calculations.
func (r *Registry) ActiveMembers() ([]types.Member, error) {
	all, err := r.db.ListMembers()
	if err != nil {
		return nil, err
	}
	out := all[:0]
	for _, m := range all {
		if !m.Banned {
			out = append(out, m)
		}
	}
	return out, nil
}

// promote mutates pubkey's tier to Member. Called only after a quorum of
// valid vouches has been independently verified (promotion.go).
func (r *Registry) promote(pubkey types.Pubkey) error {
	m, err := r.db.GetMember(pubkey)
	if err != nil {
		return err
	}
	m.Tier = types.TierMember
	batch := r.db.NewBatch()
	if err := batch.PutMember(m); err != nil {
		return err
	}
	return r.db.Commit(batch)
}

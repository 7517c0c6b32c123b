// Copyright (C) 2025, Lux Industries Inc. All rights reserved.
// See the file LICENSE for licensing terms.

package handshake

import (
	"context"
	"time"

	"github.com/luxfi/hive/host"
	"github.com/luxfi/hive/types"
	"github.com/luxfi/hive/wire"
	"github.com/luxfi/log"
)

// Reason enumerates why admission was rejected.
type Reason string

const (
	ReasonBadSignature   Reason = "bad_signature"
	ReasonExpiredTicket  Reason = "expired_ticket"
	ReasonBanned         Reason = "banned"
	ReasonRateLimited    Reason = "rate_limited"
	ReasonReplay         Reason = "replay"
)

// Result is the outcome of an admission attempt: either Admitted at a
// tier, or Rejected with a reason. Never both.
type Result struct {
	Admitted bool
	Tier     types.Tier
	Rejected Reason
}

// Members is the subset of the membership store the handshake needs:
// a banned check and the ability to admit a new member row.
type Members interface {
	IsBanned(pubkey types.Pubkey) (bool, error)
	Admit(ctx context.Context, pubkey types.Pubkey, tier types.Tier) error
}

// Config bounds the handshake's admission model.
type Config struct {
	Challenge ChallengeStoreConfig
	// TicketedAdmission requires every WELCOME to be backed by an
	// admin-signed invite; when false, any valid ATTEST is admitted as
	// a Neophyte (the permissionless model).
	TicketedAdmission bool
	// AdminPubkey signs invite tickets, when TicketedAdmission is set.
	AdminPubkey types.Pubkey
}

// Handshake runs the HELLO -> CHALLENGE -> ATTEST -> WELCOME state
// machine for one candidate session.
type Handshake struct {
	cfg       Config
	challenges *ChallengeStore
	node      host.Node
	members   Members
	log       log.Logger
}

// New builds a Handshake bound to the given host node and member store.
func New(cfg Config, node host.Node, members Members, logger log.Logger) *Handshake {
	return &Handshake{
		cfg:        cfg,
		challenges: NewChallengeStore(cfg.Challenge),
		node:       node,
		members:    members,
		log:        logger,
	}
}

// OnHello handles an inbound HELLO, returning the CHALLENGE to send back.
// No admission ticket is required to receive a challenge.
func (h *Handshake) OnHello(_ context.Context, hello wire.HelloMsg) (wire.ChallengeMsg, error) {
	nonce, err := h.challenges.Issue(hello.Pubkey)
	if err != nil {
		return wire.ChallengeMsg{}, err
	}
	return wire.ChallengeMsg{Nonce: nonce, IssuedAt: time.Now()}, nil
}

// OnAttest verifies an ATTEST against the outstanding challenge and the
// transport-level sender id, then admits or rejects the candidate.
//
// Binding: the signature must cover both the nonce and the manifest, and
// the candidate pubkey must equal transportSender — otherwise a captured
// ATTEST could be replayed by a different connection.
func (h *Handshake) OnAttest(ctx context.Context, candidate types.Pubkey, transportSender types.Pubkey, att wire.AttestMsg) (Result, error) {
	if candidate != transportSender {
		return Result{Rejected: ReasonBadSignature}, nil
	}

	banned, err := h.members.IsBanned(candidate)
	if err != nil {
		return Result{}, err
	}
	if banned {
		return Result{Rejected: ReasonBanned}, nil
	}

	nonce, ok := h.challenges.Take(candidate)
	if !ok {
		return Result{Rejected: ReasonReplay}, nil
	}

	signed := append(append([]byte{}, nonce...), att.Manifest...)
	ok, err = h.node.Verify(ctx, candidate, signed, att.Signature)
	if err != nil {
		return Result{}, err
	}
	if !ok {
		return Result{Rejected: ReasonBadSignature}, nil
	}

	tier := types.TierNeophyte
	if h.cfg.TicketedAdmission {
		if att.Ticket == nil {
			return Result{Rejected: ReasonBadSignature}, nil
		}
		res, err := h.verifyTicket(ctx, candidate, *att.Ticket)
		if err != nil {
			return Result{}, err
		}
		if !res.Admitted {
			return res, nil
		}
		tier = res.Tier
	}

	if err := h.members.Admit(ctx, candidate, tier); err != nil {
		return Result{}, err
	}
	return Result{Admitted: true, Tier: tier}, nil
}

func (h *Handshake) verifyTicket(ctx context.Context, candidate types.Pubkey, ticket wire.InviteTicket) (Result, error) {
	if ticket.Pubkey != candidate {
		return Result{Rejected: ReasonBadSignature}, nil
	}
	if !time.Now().Before(ticket.ExpiresAt) {
		return Result{Rejected: ReasonExpiredTicket}, nil
	}
	ok, err := h.node.Verify(ctx, h.cfg.AdminPubkey, ticket.SigningPayload(), ticket.Signature)
	if err != nil {
		return Result{}, err
	}
	if !ok {
		return Result{Rejected: ReasonBadSignature}, nil
	}
	return Result{Admitted: true, Tier: types.TierMember}, nil
}

// Copyright (C) 2025, Lux Industries Inc. All rights reserved.
// See the file LICENSE for licensing terms.

package wire

import (
	"time"

	"github.com/luxfi/hive/types"
)

// HelloMsg is sent by a candidate with no admission ticket required.
type HelloMsg struct {
	Pubkey       types.Pubkey `json:"pubkey"`
	Capabilities []string     `json:"capabilities"`
}

// ChallengeMsg carries a fixed-length random nonce the candidate must
// sign over together with its manifest.
type ChallengeMsg struct {
	Nonce    []byte    `json:"nonce"`
	IssuedAt time.Time `json:"issued_at"`
}

// AttestMsg is the candidate's signed response to a CHALLENGE.
type AttestMsg struct {
	Manifest  []byte `json:"manifest"`
	Signature []byte `json:"signature"`
	// Ticket is present only for the ticketed admission model: an
	// admin-signed invite covering Pubkey+expiry.
	Ticket *InviteTicket `json:"ticket,omitempty"`
}

// InviteTicket is an admin-signed, time-bounded admission ticket.
type InviteTicket struct {
	Pubkey    types.Pubkey `json:"pubkey"`
	ExpiresAt time.Time    `json:"expires_at"`
	Signature []byte       `json:"signature"`
}

// SigningPayload returns the bytes the ticket signature covers.
func (t InviteTicket) SigningPayload() []byte {
	return []byte(string(t.Pubkey) + "|" + t.ExpiresAt.UTC().Format(time.RFC3339))
}

// WelcomeMsg admits a candidate at a given tier.
type WelcomeMsg struct {
	Tier types.Tier `json:"tier"`
}

// GossipMsg carries one member's latest PeerState.
type GossipMsg struct {
	State types.PeerState `json:"state"`
}

// StateHashMsg carries the sender's FleetHash for anti-entropy
// comparison on newly established sessions.
type StateHashMsg struct {
	Hash [32]byte `json:"hash"`
}

// FullSyncMsg carries up to MAX_FULL_SYNC_STATES PeerState records,
// applied record-by-record under the monotonic version rule.
type FullSyncMsg struct {
	States []types.PeerState `json:"states"`
}

// IntentMsg announces or relays an Intent.
type IntentMsg struct {
	Intent types.Intent `json:"intent"`
}

// IntentAbortMsg announces that the sender lost a tie-break and aborted.
type IntentAbortMsg struct {
	Key types.IntentKey `json:"key"`
}

// VouchMsg carries a signed PromotionVouch.
type VouchMsg struct {
	Vouch types.PromotionVouch `json:"vouch"`
}

// PromotionRequestMsg is broadcast by a candidate requesting promotion.
type PromotionRequestMsg struct {
	Request types.PromotionRequest `json:"request"`
}

// PromotionMsg carries the quorum proof for a completed promotion.
type PromotionMsg struct {
	Subject   types.Pubkey           `json:"subject"`
	RequestID string                 `json:"request_id"`
	Vouches   []types.PromotionVouch `json:"vouches"`
}

// BanMsg propagates a ban decision.
type BanMsg struct {
	Ban types.Ban `json:"ban"`
}

// Copyright (C) 2025, Lux Industries Inc. All rights reserved.
// See the file LICENSE for licensing terms.

// Package types holds the data model shared across the Hive overlay:
// members, replicated peer state, intents, vouches, contribution rows,
// pending governance actions, planner log entries and bans. Nothing in
// this package touches Persistence or the wire directly; it is the
// vocabulary every other package imports.
package types

import "time"

// Pubkey is a Lightning node identity: a 33-byte compressed secp256k1
// point, hex-encoded at the boundaries (wire, logs, management surface)
// and compared byte-for-byte everywhere else. It is deliberately its own
// type rather than a borrowed consensus node-id, because those are a
// different byte width.
type Pubkey string

// Less implements the tie-break order used by the Intent Lock protocol:
// lexicographically smallest initiator wins (spec §4.4).
func (p Pubkey) Less(other Pubkey) bool {
	return p < other
}

// Tier is a Member's standing within the Hive.
type Tier int

const (
	TierNeophyte Tier = iota
	TierMember
	TierBanned
)

func (t Tier) String() string {
	switch t {
	case TierNeophyte:
		return "neophyte"
	case TierMember:
		return "member"
	case TierBanned:
		return "banned"
	default:
		return "unknown"
	}
}

// Member is a node admitted into the Hive. Tier is mutated only by
// promotion or demotion; Banned members are retained for replay defence
// but treated as absent for all routing decisions.
type Member struct {
	Pubkey   Pubkey    `json:"pubkey"`
	Tier     Tier      `json:"tier"`
	JoinedAt time.Time `json:"joined_at"`
	LastSeen time.Time `json:"last_seen"`
	Banned   bool      `json:"banned"`
}

// ChannelRef identifies one side of a channel, as reported by the host
// node's channel enumeration.
type ChannelRef struct {
	PeerPubkey Pubkey `json:"peer_pubkey"`
	CapacitySat int64 `json:"capacity_sat"`
}

// PeerState is the latest replicated snapshot one Member has published
// about itself. Version is strictly increasing per-originator; the state
// manager applies an update iff it strictly raises the stored version.
type PeerState struct {
	Pubkey        Pubkey       `json:"pubkey"`
	Version       uint64       `json:"version"`
	Timestamp     time.Time    `json:"timestamp"`
	CapacitySat   int64        `json:"capacity_sat"`
	ChannelSet    []ChannelRef `json:"channel_set"`
	FeePolicyHash string       `json:"fee_policy_hash"`
	Health        string       `json:"health"`
}

// IntentType enumerates the actions the Intent Lock protocol arbitrates.
type IntentType string

const (
	IntentChannelOpen IntentType = "channel_open"
	IntentRebalance    IntentType = "rebalance"
	IntentBanPeer      IntentType = "ban_peer"
)

// IntentStatus is the lifecycle state of an Intent.
type IntentStatus string

const (
	IntentPending   IntentStatus = "pending"
	IntentCommitted IntentStatus = "committed"
	IntentAborted   IntentStatus = "aborted"
	IntentExpired   IntentStatus = "expired"
)

// IntentKey is the primary key of an Intent: (type, target, initiator).
// Replays with the same key never create a new row.
type IntentKey struct {
	Type      IntentType `json:"type"`
	Target    string     `json:"target"`
	Initiator Pubkey     `json:"initiator"`
}

// Intent is an announced, tentative claim on a target. It becomes an
// action only after the hold window elapses uncontested and Governance
// approves it.
type Intent struct {
	IntentKey
	Timestamp time.Time    `json:"timestamp"`
	ExpiresAt time.Time    `json:"expires_at"`
	Status    IntentStatus `json:"status"`
}

// EligibleForCommit reports whether i may transition to committed right
// now, given the hold window and the absence of a conflicting remote
// pending intent with a lexicographically smaller initiator (that check
// is done by the caller, which holds the remote-intent cache).
func (i Intent) EligibleForCommit(now time.Time, hold time.Duration) bool {
	return i.Status == IntentPending && !now.Before(i.Timestamp.Add(hold))
}

// PromotionVouch is a signed attestation that the voucher independently
// re-evaluated subject against the three promotion criteria and found
// them satisfied. Signature covers (Subject, Voucher, RequestID, HiveID).
type PromotionVouch struct {
	Subject   Pubkey    `json:"subject"`
	Voucher   Pubkey    `json:"voucher"`
	RequestID string    `json:"request_id"`
	Signature []byte    `json:"signature"`
	Timestamp time.Time `json:"timestamp"`
}

// SigningPayload returns the canonical byte string the vouch signature is
// computed and verified over.
func (v PromotionVouch) SigningPayload(hiveID string) []byte {
	return []byte(string(v.Subject) + "|" + string(v.Voucher) + "|" + v.RequestID + "|" + hiveID)
}

// PromotionRequest records a candidate's broadcast intent to be promoted,
// so nodes can correlate VOUCHes arriving out of order.
type PromotionRequest struct {
	RequestID string    `json:"request_id"`
	Subject   Pubkey    `json:"subject"`
	CreatedAt time.Time `json:"created_at"`
}

// ContributionDirection is which way a forwarded payment moved relative
// to the Hive.
type ContributionDirection string

const (
	ContributionForwarded ContributionDirection = "forwarded"
	ContributionReceived  ContributionDirection = "received"
)

// ContributionEntry is one append-only row in the contribution ledger,
// recorded when a host forward-event involves a Member on either side.
type ContributionEntry struct {
	Peer      Pubkey                 `json:"peer"`
	Direction ContributionDirection  `json:"direction"`
	AmountSat int64                  `json:"amount_sat"`
	Timestamp time.Time              `json:"timestamp"`
}

// ActionType enumerates the executable actions Governance can route to
// the Bridge.
type ActionType string

const (
	ActionSetPolicy      ActionType = "set_policy"
	ActionRebalance      ActionType = "rebalance"
	ActionInhibitOpens   ActionType = "inhibit_opens"
	ActionReleaseInhibit ActionType = "release_inhibit"
	ActionChannelOpen    ActionType = "channel_open"
	ActionBanPeer        ActionType = "ban_peer"
)

// ActionStatus is the lifecycle state of a PendingAction.
type ActionStatus string

const (
	ActionPending  ActionStatus = "pending"
	ActionApproved ActionStatus = "approved"
	ActionRejected ActionStatus = "rejected"
	ActionExecuted ActionStatus = "executed"
	ActionExpired  ActionStatus = "expired"
)

// PendingAction is a proposed executable action awaiting a Governance
// decision. It is the only thing the Bridge ever acts on.
type PendingAction struct {
	ID         string       `json:"id"`
	Type       ActionType   `json:"type"`
	Target     string       `json:"target"`
	Params     map[string]string `json:"params,omitempty"`
	ProposedBy Pubkey       `json:"proposed_by"`
	ProposedAt time.Time    `json:"proposed_at"`
	Status     ActionStatus `json:"status"`
	ExpiresAt  time.Time    `json:"expires_at"`
}

// PlannerDecision enumerates the planner's decision kinds for the log.
type PlannerDecision string

const (
	PlannerSaturate PlannerDecision = "saturate"
	PlannerRelease  PlannerDecision = "release"
	PlannerExpand   PlannerDecision = "expand"
	PlannerSkip     PlannerDecision = "skip"
)

// PlannerLogEntry is one append-only row of planner activity, surfaced on
// the management surface's "show planner log" command.
type PlannerLogEntry struct {
	Timestamp time.Time       `json:"timestamp"`
	Decision  PlannerDecision `json:"decision"`
	Target    string          `json:"target"`
	Outcome   string          `json:"outcome"`
}

// Ban records why and when a pubkey was excluded from the Hive.
type Ban struct {
	Pubkey Pubkey    `json:"pubkey"`
	Reason string    `json:"reason"`
	Since  time.Time `json:"since"`
}

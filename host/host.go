// Copyright (C) 2025, Lux Industries Inc. All rights reserved.
// See the file LICENSE for licensing terms.

// Package host declares the narrow interfaces the Hive core consumes
// from its OUT-OF-SCOPE collaborators: the Lightning node it rides
// alongside, and the co-resident fee/rebalance subsystem and external
// channel manager reached through the Bridge. Nothing in this package
// has an implementation here — production wiring supplies one adapter
// per collaborator, and tests supply a mock generated with
// go.uber.org/mock, mirroring the teacher's own narrow core.VM /
// core.AppSender boundary interfaces.
package host

import (
	"context"
	"time"

	"github.com/luxfi/hive/types"
)

// Node is everything the Hive core needs from the host Lightning node
// (spec §6.2). Signing keys never enter this process; Sign/Verify are
// RPCs to the host's HSM.
type Node interface {
	// Pubkey returns this node's own identity.
	Pubkey() types.Pubkey

	// SendMessage delivers a framed control message to peer over the
	// host's custom-message channel. It must not block longer than the
	// caller's context allows.
	SendMessage(ctx context.Context, peer types.Pubkey, frame []byte) error

	// Sign asks the host HSM to sign msg with this node's key.
	Sign(ctx context.Context, msg []byte) ([]byte, error)

	// Verify asks the host HSM to verify sig over msg against pubkey.
	Verify(ctx context.Context, pubkey types.Pubkey, msg, sig []byte) (bool, error)

	// Channels enumerates this node's open channels.
	Channels(ctx context.Context) ([]types.ChannelRef, error)

	// OnChainBalanceSat returns the node's spendable on-chain balance.
	OnChainBalanceSat(ctx context.Context) (int64, error)

	// PublicCapacitySat returns the publicly observed total channel
	// capacity between this node's view of the network and target,
	// independent of anything the Hive itself gossips.
	PublicCapacitySat(ctx context.Context, target types.Pubkey) (int64, error)

	// FeePolicyHash returns a digest of this node's current fee policy,
	// so the replicated state manager can detect a fee-policy change as
	// a broadcast trigger (spec §4.3) without gossiping the policy
	// itself.
	FeePolicyHash(ctx context.Context) (string, error)
}

// ForwardEvent is a single HTLC-forward notification from the host node.
type ForwardEvent struct {
	InPeer    types.Pubkey
	OutPeer   types.Pubkey
	AmountSat int64
	Timestamp time.Time
}

// PresenceEvent is a peer-connected/disconnected notification, the raw
// input to uptime accounting.
type PresenceEvent struct {
	Peer      types.Pubkey
	Connected bool
	Timestamp time.Time
}

// EventSource is the push side of the host node: forward and presence
// notifications delivered as they happen. A production adapter bridges
// the host node's own callback/subscription API onto these channels.
type EventSource interface {
	Forwards() <-chan ForwardEvent
	Presence() <-chan PresenceEvent
}

// PolicyKind is the fixed enum the fee/rebalance subsystem accepts.
type PolicyKind string

const (
	PolicyHive    PolicyKind = "hive"
	PolicyDefault PolicyKind = "default"
)

// VersionInfo is returned by the execution subsystem's status/version
// query, used by the Bridge's startup feature detection.
type VersionInfo struct {
	Loaded bool
	Major  int
	Minor  int
	Patch  int
}

// AtLeast reports whether v meets a minimum required version.
func (v VersionInfo) AtLeast(major, minor, patch int) bool {
	if !v.Loaded {
		return false
	}
	if v.Major != major {
		return v.Major > major
	}
	if v.Minor != minor {
		return v.Minor > minor
	}
	return v.Patch >= patch
}

// ExecutionSubsystem is the co-resident fee/rebalance subsystem reached
// through the Bridge (spec §6.3).
type ExecutionSubsystem interface {
	Status(ctx context.Context) (VersionInfo, error)
	SetPolicy(ctx context.Context, peer types.Pubkey, kind PolicyKind) error
	TriggerRebalance(ctx context.Context, target types.Pubkey, amountSat int64) error
}

// ChannelManager is the external channel manager reached through the
// Bridge (spec §6.4). Its inhibitor is peer-scoped and orthogonal to the
// ExecutionSubsystem's fee policy knob.
type ChannelManager interface {
	InhibitOpens(ctx context.Context, peer types.Pubkey) error
	ReleaseInhibit(ctx context.Context, peer types.Pubkey) error
}

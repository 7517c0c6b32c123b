// Copyright (C) 2025, Lux Industries Inc. All rights reserved.
// See the file LICENSE for licensing terms.

package gossip

import (
	"context"

	"github.com/cockroachdb/errors"
	"github.com/luxfi/hive/types"
)

// ErrFullSyncOverflow is returned (not fatal) when a FULL_SYNC carries
// more than MaxFullSyncStates records; the caller applies the first
// MaxFullSyncStates and drops the rest, logging the overflow.
var ErrFullSyncOverflow = errors.New("gossip: full sync exceeds maximum record count")

// LocalHash returns the FleetHash over every currently stored PeerState,
// for comparison against an incoming STATE_HASH on a newly established
// session.
func (m *Manager) LocalHash() ([32]byte, error) {
	states, err := m.db.ListPeerStates()
	if err != nil {
		return [32]byte{}, err
	}
	return FleetHash(states), nil
}

// BuildFullSync returns up to maxRecords PeerStates for a FULL_SYNC
// response. The cap is enforced strictly: if the local state exceeds it,
// the overflow is dropped from the response, never from storage.
func (m *Manager) BuildFullSync(maxRecords int) ([]types.PeerState, error) {
	states, err := m.db.ListPeerStates()
	if err != nil {
		return nil, err
	}
	if len(states) > maxRecords {
		states = states[:maxRecords]
	}
	return states, nil
}

// ApplyFullSync applies each record of an inbound FULL_SYNC under the
// monotonic rule. Per spec §8, a sync with exactly MaxFullSyncStates
// records is applied in full; one more than that applies only the first
// MaxFullSyncStates and returns ErrFullSyncOverflow so the caller can log
// it — the call itself still succeeds for the records it did apply.
func (m *Manager) ApplyFullSync(ctx context.Context, maxRecords int, states []types.PeerState) (applied int, err error) {
	overflow := len(states) > maxRecords
	if overflow {
		states = states[:maxRecords]
	}
	for _, s := range states {
		res, aerr := m.Apply(ctx, s)
		if aerr != nil {
			return applied, aerr
		}
		if res == Applied {
			applied++
		}
	}
	if overflow {
		return applied, ErrFullSyncOverflow
	}
	return applied, nil
}

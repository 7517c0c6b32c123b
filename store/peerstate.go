// Copyright (C) 2025, Lux Industries Inc. All rights reserved.
// See the file LICENSE for licensing terms.

package store

import (
	"encoding/json"

	"github.com/cockroachdb/errors"
	"github.com/luxfi/hive/types"
)

// PutPeerState upserts a peer state row within batch. Callers are
// responsible for the monotonic-version check (gossip.Manager.Apply);
// this method performs no arbitration of its own.
func (b *Batch) PutPeerState(ps types.PeerState) error {
	buf, err := json.Marshal(ps)
	if err != nil {
		return errors.Wrap(err, "store: marshal peer state")
	}
	return b.set(peerStateKey(ps.Pubkey), buf)
}

// GetPeerState loads the stored peer state for pk.
func (s *Store) GetPeerState(pk types.Pubkey) (types.PeerState, error) {
	v, release, err := s.get(peerStateKey(pk))
	if err != nil {
		return types.PeerState{}, err
	}
	defer release()
	var ps types.PeerState
	if err := json.Unmarshal(v, &ps); err != nil {
		return types.PeerState{}, errors.Wrap(err, "store: unmarshal peer state")
	}
	return ps, nil
}

// ListPeerStates returns every stored peer state, in pubkey order — the
// input to FleetHash computation.
func (s *Store) ListPeerStates() ([]types.PeerState, error) {
	var out []types.PeerState
	err := s.scanPrefix([]byte(prefixPeerState), func(_, value []byte) bool {
		var ps types.PeerState
		if jerr := json.Unmarshal(value, &ps); jerr == nil {
			out = append(out, ps)
		}
		return true
	})
	return out, err
}

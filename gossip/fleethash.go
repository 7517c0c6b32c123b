// Copyright (C) 2025, Lux Industries Inc. All rights reserved.
// See the file LICENSE for licensing terms.

package gossip

import (
	"crypto/sha256"
	"encoding/binary"
	"sort"

	"github.com/luxfi/hive/types"
)

// FleetHash computes the canonical SHA-256 digest over
// {(pubkey, version, timestamp)} sorted by pubkey (spec §3, §4.3, §8).
// It depends on those three fields only, never on the full PeerState
// body, and the encoding below is fixed so two independent
// implementations produce bit-identical hashes for the same multiset
// regardless of input ordering.
func FleetHash(states []types.PeerState) [32]byte {
	sorted := make([]types.PeerState, len(states))
	copy(sorted, states)
	sort.Slice(sorted, func(i, j int) bool { return sorted[i].Pubkey < sorted[j].Pubkey })

	h := sha256.New()
	for _, s := range sorted {
		h.Write([]byte(s.Pubkey))
		h.Write([]byte{0}) // field separator: pubkeys are variable-length hex strings
		var versionBuf [8]byte
		binary.BigEndian.PutUint64(versionBuf[:], s.Version)
		h.Write(versionBuf[:])
		var tsBuf [8]byte
		binary.BigEndian.PutUint64(tsBuf[:], uint64(s.Timestamp.UnixNano()))
		h.Write(tsBuf[:])
	}
	var out [32]byte
	copy(out[:], h.Sum(nil))
	return out
}

// Copyright (C) 2025, Lux Industries Inc. All rights reserved.
// See the file LICENSE for licensing terms.

package store

import (
	"encoding/json"

	"github.com/cockroachdb/errors"
	"github.com/luxfi/hive/host"
	"github.com/luxfi/hive/types"
)

// AppendPresence records one connected/disconnected event, the durable
// input to uptime accounting (table peer_presence, spec §6.6).
func (b *Batch) AppendPresence(peer types.Pubkey, ev host.PresenceEvent) error {
	buf, err := json.Marshal(ev)
	if err != nil {
		return errors.Wrap(err, "store: marshal presence event")
	}
	return b.set(presenceKey(peer, ev.Timestamp.UnixNano()), buf)
}

// ListPresenceSince returns peer's presence events at or after since, in
// chronological order, the raw input to an uptime_pct computation.
func (s *Store) ListPresenceSince(peer types.Pubkey, since int64) ([]host.PresenceEvent, error) {
	prefix := []byte(prefixPresence + string(peer) + "/")
	var out []host.PresenceEvent
	err := s.scanPrefix(prefix, func(_, value []byte) bool {
		var ev host.PresenceEvent
		if jerr := json.Unmarshal(value, &ev); jerr == nil && ev.Timestamp.UnixNano() >= since {
			out = append(out, ev)
		}
		return true
	})
	return out, err
}

// Copyright (C) 2025, Lux Industries Inc. All rights reserved.
// See the file LICENSE for licensing terms.

package member

import (
	"time"

	"github.com/luxfi/hive/host"
	"github.com/luxfi/hive/store"
	"github.com/luxfi/hive/types"
)

// UptimePct computes the percentage of window (ending at now, starting
// at now-window) during which peer was connected, from its recorded
// peer-connected/disconnected events. The result is clamped to [0, 100];
// in particular if the stored events are inconsistent with now (clock
// skew makes a "connected" timestamp appear after now), the window is
// treated as 0% uptime rather than negative (spec §4.5).
func UptimePct(db *store.Store, peer types.Pubkey, window time.Duration, now time.Time) (float64, error) {
	start := now.Add(-window)
	events, err := db.ListPresenceSince(peer, start.UnixNano())
	if err != nil {
		return 0, err
	}

	if len(events) == 0 {
		return 0, nil
	}

	connectedSince := time.Time{}
	connected := false
	var connectedDur time.Duration

	clamp := func(t time.Time) time.Time {
		if t.After(now) {
			return now
		}
		if t.Before(start) {
			return start
		}
		return t
	}

	cursor := start
	for _, ev := range events {
		if ev.Timestamp.After(now) {
			return 0, nil
		}
		t := clamp(ev.Timestamp)
		if connected && t.After(cursor) {
			connectedDur += t.Sub(cursor)
		}
		cursor = t
		connected = ev.Connected
		if connected {
			connectedSince = t
		}
	}
	if connected {
		end := clamp(now)
		if end.After(connectedSince) {
			connectedDur += end.Sub(cursor)
		}
	}

	total := now.Sub(start)
	if total <= 0 {
		return 0, nil
	}
	pct := float64(connectedDur) / float64(total) * 100
	if pct < 0 {
		return 0, nil
	}
	if pct > 100 {
		return 100, nil
	}
	return pct, nil
}

// RecordPresence appends one presence event. It does not update the
// member's last-seen timestamp; Registry.Touch does that.
func RecordPresence(db *store.Store, ev host.PresenceEvent) error {
	batch := db.NewBatch()
	if err := batch.AppendPresence(ev.Peer, ev); err != nil {
		return err
	}
	return db.Commit(batch)
}

// Copyright (C) 2025, Lux Industries Inc. All rights reserved.
// See the file LICENSE for licensing terms.

package intent

import (
	"context"
	"time"

	"github.com/luxfi/hive/types"
)

// RunCommitCycle is invoked at the commit loop's cadence (≤5s, spec
// §4.4 step 3). It commits every local pending Intent that has cleared
// its hold window with no conflicting remote pending intent recorded,
// expires anything past ExpiresAt, and prunes intents (local and cached
// remote) older than the configured horizon.
func (m *Manager) RunCommitCycle(ctx context.Context) error {
	now := m.now()
	m.remote.pruneOlderThan(now.Add(-m.cfg.Horizon))

	locals, err := m.db.ListIntents()
	if err != nil {
		return err
	}

	for _, i := range locals {
		if i.Initiator != m.self {
			continue // we only drive commit/expiry for intents we ourselves announced
		}
		if i.Status == types.IntentPending && now.After(i.ExpiresAt) {
			if err := m.expire(ctx, i); err != nil {
				return err
			}
			continue
		}
		if i.Status == types.IntentPending && now.Before(i.Timestamp.Add(m.cfg.Hold)) {
			continue // still within the hold window
		}
		if i.Status != types.IntentPending {
			continue
		}
		if m.remote.conflictsPending(i.Type, i.Target, i.Initiator) {
			continue // a still-pending remote claim with a lexicographically smaller initiator wins the tie-break; wait
		}
		if err := m.commit(ctx, i); err != nil {
			return err
		}
	}

	return m.pruneLocal(now)
}

func (m *Manager) commit(ctx context.Context, i types.Intent) error {
	i.Status = types.IntentCommitted
	batch := m.db.NewBatch()
	if err := batch.PutIntent(i); err != nil {
		return err
	}
	if err := m.db.Commit(batch); err != nil {
		return err
	}
	m.log.Info("intent committed", "type", i.Type, "target", i.Target)
	if m.m != nil {
		m.m.IntentCommits.WithLabelValues(string(i.Type)).Inc()
	}
	return m.actions.ProposeFromIntent(ctx, i)
}

func (m *Manager) expire(_ context.Context, i types.Intent) error {
	i.Status = types.IntentExpired
	batch := m.db.NewBatch()
	if err := batch.PutIntent(i); err != nil {
		return err
	}
	return m.db.Commit(batch)
}

// pruneLocal removes any locally stored intent older than the horizon,
// regardless of status (spec §4.4: "Intents older than a configured
// horizon ... are pruned regardless of status").
func (m *Manager) pruneLocal(now time.Time) error {
	cutoff := now.Add(-m.cfg.Horizon)
	all, err := m.db.ListIntents()
	if err != nil {
		return err
	}
	var stale []types.IntentKey
	for _, i := range all {
		if i.Timestamp.Before(cutoff) {
			stale = append(stale, i.IntentKey)
		}
	}
	if len(stale) == 0 {
		return nil
	}
	batch := m.db.NewBatch()
	for _, k := range stale {
		if err := batch.DeleteIntent(k); err != nil {
			return err
		}
	}
	return m.db.Commit(batch)
}

// Copyright (C) 2025, Lux Industries Inc. All rights reserved.
// See the file LICENSE for licensing terms.

// Package intent implements the Intent Lock protocol (spec §4.4):
// announce, deterministic tie-break on conflict, commit after a hold
// window, expiry, and a bounded, time-pruned remote-intent cache. The
// cache is the process-local analogue of the teacher's
// networking/benchlist.Manager — a mutex-guarded bounded map evicted
// oldest-first.
package intent

import (
	"context"
	"time"

	"github.com/luxfi/hive/metrics"
	"github.com/luxfi/hive/store"
	"github.com/luxfi/hive/types"
	"github.com/luxfi/log"
)

// Config bounds the Intent Lock protocol.
type Config struct {
	Hold             time.Duration // hold window before a pending intent is commit-eligible
	Horizon          time.Duration // intents older than this are pruned regardless of status
	MaxRemoteIntents int           // global cap on the remote-intent cache
}

// Broadcaster sends an INTENT or INTENT_ABORT to every current Member.
type Broadcaster interface {
	BroadcastIntent(ctx context.Context, i types.Intent) error
	BroadcastAbort(ctx context.Context, k types.IntentKey) error
}

// ActionRunner invokes the action mapped to a committed intent, via
// Governance (spec §4.4 step 3 always routes through Governance — intent
// commit never executes directly).
type ActionRunner interface {
	ProposeFromIntent(ctx context.Context, i types.Intent) error
}

// Manager implements the Intent Lock protocol for the local node.
type Manager struct {
	cfg      Config
	db       *store.Store
	self     types.Pubkey
	bcast    Broadcaster
	actions  ActionRunner
	remote   *remoteCache
	log      log.Logger
	now      func() time.Time
	m        *metrics.Metrics
}

// New builds an intent Manager. m may be nil.
func New(cfg Config, db *store.Store, self types.Pubkey, bcast Broadcaster, actions ActionRunner, m *metrics.Metrics, logger log.Logger) *Manager {
	return &Manager{
		cfg:     cfg,
		db:      db,
		self:    self,
		bcast:   bcast,
		actions: actions,
		remote:  newRemoteCache(cfg.MaxRemoteIntents),
		log:     logger,
		now:     time.Now,
		m:       m,
	}
}

// Announce persists a new pending Intent and broadcasts it to every
// current Member (spec §4.4 step 1).
func (m *Manager) Announce(ctx context.Context, t types.IntentType, target string, hold time.Duration, expiresIn time.Duration) (types.Intent, error) {
	now := m.now()
	i := types.Intent{
		IntentKey: types.IntentKey{Type: t, Target: target, Initiator: m.self},
		Timestamp: now,
		ExpiresAt: now.Add(expiresIn),
		Status:    types.IntentPending,
	}
	batch := m.db.NewBatch()
	if err := batch.PutIntent(i); err != nil {
		return types.Intent{}, err
	}
	if err := m.db.Commit(batch); err != nil {
		return types.Intent{}, err
	}
	if err := m.bcast.BroadcastIntent(ctx, i); err != nil {
		m.log.Debug("intent: broadcast failed", "target", target, "err", err)
	}
	return i, nil
}

// OnRemoteIntent handles an inbound INTENT from another Member (spec
// §4.4 step 2). If a local pending intent shares the same (type, target)
// and the tie-break rule says the remote wins, the local intent aborts
// and an INTENT_ABORT is broadcast. Otherwise the remote intent is only
// recorded in the bounded cache, for the commit loop's conflict check;
// the local node stays silent (a silent hold) while it believes it wins.
func (m *Manager) OnRemoteIntent(ctx context.Context, remote types.Intent) error {
	if remote.Status == types.IntentPending {
		m.remote.put(remote)
	} else {
		m.remote.remove(remote.IntentKey)
	}

	if remote.Status != types.IntentPending {
		return nil
	}
	local, err := m.db.GetIntent(types.IntentKey{Type: remote.Type, Target: remote.Target, Initiator: m.self})
	if err != nil {
		if err == store.ErrNotFound {
			return nil
		}
		return err
	}
	if local.Status != types.IntentPending {
		return nil
	}
	if !localLoses(local.Initiator, remote.Initiator) {
		return nil // local wins or it's the same initiator; silent hold
	}

	local.Status = types.IntentAborted
	batch := m.db.NewBatch()
	if err := batch.PutIntent(local); err != nil {
		return err
	}
	if err := m.db.Commit(batch); err != nil {
		return err
	}
	if m.m != nil {
		m.m.IntentAborts.WithLabelValues(string(local.Type)).Inc()
	}
	return m.bcast.BroadcastAbort(ctx, local.IntentKey)
}

// localLoses applies the tie-break rule: lexicographically smaller
// initiator wins. local loses iff remote's initiator sorts before it.
func localLoses(local, remote types.Pubkey) bool {
	return remote.Less(local)
}

// OnRemoteAbort removes an aborted remote intent from the cache so it no
// longer blocks the local commit loop's conflict check.
func (m *Manager) OnRemoteAbort(k types.IntentKey) {
	m.remote.remove(k)
}

// RemoteCacheLen reports the cache's current size, for the
// |remote_intents| <= MAX_REMOTE_INTENTS invariant (spec §8).
func (m *Manager) RemoteCacheLen() int {
	return m.remote.len()
}

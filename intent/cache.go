// Copyright (C) 2025, Lux Industries Inc. All rights reserved.
// See the file LICENSE for licensing terms.

package intent

import (
	"sync"
	"time"

	"github.com/luxfi/hive/types"
)

// remoteCache is a bounded, LRU-by-timestamp map of the latest remote
// pending intents this node has observed per (type, target, initiator).
// On overflow the oldest entry is evicted, mirroring the teacher's
// benchlist-style bounded map pattern.
type remoteCache struct {
	mu      sync.Mutex
	max     int
	entries map[types.IntentKey]types.Intent
}

func newRemoteCache(max int) *remoteCache {
	return &remoteCache{max: max, entries: make(map[types.IntentKey]types.Intent)}
}

func (c *remoteCache) put(i types.Intent) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if _, exists := c.entries[i.IntentKey]; !exists && c.max > 0 && len(c.entries) >= c.max {
		c.evictOldestLocked()
	}
	c.entries[i.IntentKey] = i
}

func (c *remoteCache) remove(k types.IntentKey) {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.entries, k)
}

func (c *remoteCache) len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.entries)
}

// conflictsPending reports whether any cached remote intent for key is
// still pending with an initiator that wins the tie-break over the
// given initiator (spec §4.4/§8: lower initiator wins). A remote
// initiator that loses the tie-break has already been aborted on this
// node's side the moment it was observed (see OnRemoteIntent) and must
// not block this node's own commit merely because its pending row
// hasn't aged out of the cache yet — otherwise a dropped or delayed
// INTENT_ABORT from the losing peer stalls the winner indefinitely.
func (c *remoteCache) conflictsPending(t types.IntentType, target string, initiator types.Pubkey) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	for k, i := range c.entries {
		if k.Type == t && k.Target == target && k.Initiator != initiator && k.Initiator.Less(initiator) && i.Status == types.IntentPending {
			return true
		}
	}
	return false
}

// pruneOlderThan drops every cached entry older than cutoff, the
// intent-horizon sweep (spec §4.4).
func (c *remoteCache) pruneOlderThan(cutoff time.Time) {
	c.mu.Lock()
	defer c.mu.Unlock()
	for k, i := range c.entries {
		if i.Timestamp.Before(cutoff) {
			delete(c.entries, k)
		}
	}
}

func (c *remoteCache) evictOldestLocked() {
	var oldestKey types.IntentKey
	var oldestAt time.Time
	first := true
	for k, i := range c.entries {
		if first || i.Timestamp.Before(oldestAt) {
			oldestKey, oldestAt = k, i.Timestamp
			first = false
		}
	}
	if !first {
		delete(c.entries, oldestKey)
	}
}

// Copyright (C) 2025, Lux Industries Inc. All rights reserved.
// See the file LICENSE for licensing terms.

package contribution

import (
	"sync"
	"time"

	"github.com/luxfi/hive/store"
	"github.com/luxfi/hive/types"
)

// Totals is the derived {forwarded, received, ratio} query result.
type Totals struct {
	ForwardedSat int64
	ReceivedSat  int64
	Ratio        float64
}

type cacheEntry struct {
	at     time.Time
	totals Totals
}

type cacheKey struct {
	peer   types.Pubkey
	window time.Duration
}

var (
	cacheMu sync.Mutex
	cache   = make(map[cacheKey]cacheEntry)
	cacheTTL = 30 * time.Second
)

// SetCacheTTL overrides the derived-query cache TTL; tests use a zero TTL
// to disable caching.
func SetCacheTTL(ttl time.Duration) { cacheMu.Lock(); cacheTTL = ttl; cacheMu.Unlock() }

// Query returns {forwarded, received, ratio} for peer over window ending
// at now, from a short-TTL cache backed by Persistence.
func Query(db *store.Store, peer types.Pubkey, window time.Duration, now time.Time) (Totals, error) {
	cacheMu.Lock()
	if e, ok := cache[cacheKey{peer, window}]; ok && now.Sub(e.at) < cacheTTL {
		t := e.totals
		cacheMu.Unlock()
		return t, nil
	}
	cacheMu.Unlock()

	since := now.Add(-window)
	var forwarded, received int64
	err := db.ScanContributions(func(_ []byte, e types.ContributionEntry) bool {
		if e.Peer != peer || e.Timestamp.Before(since) {
			return true
		}
		switch e.Direction {
		case types.ContributionForwarded:
			forwarded += e.AmountSat
		case types.ContributionReceived:
			received += e.AmountSat
		}
		return true
	})
	if err != nil {
		return Totals{}, err
	}

	t := Totals{ForwardedSat: forwarded, ReceivedSat: received, Ratio: ratioOf(forwarded, received)}
	cacheMu.Lock()
	cache[cacheKey{peer, window}] = cacheEntry{at: now, totals: t}
	cacheMu.Unlock()
	return t, nil
}

// Ratio is a convenience wrapper around Query returning just the ratio,
// used by the promotion-criteria and leech-detection checks.
func Ratio(db *store.Store, peer types.Pubkey, window time.Duration, now time.Time) (float64, error) {
	t, err := Query(db, peer, window, now)
	if err != nil {
		return 0, err
	}
	return t.Ratio, nil
}

// ratioOf computes forwarded/received. A peer with zero received and any
// forwarded contribution has an effectively infinite ratio (reported as
// a large sentinel rather than +Inf, to keep JSON encoding well-formed);
// zero-zero is treated as exactly the qualifying threshold so a brand
// new candidate's absence of activity does not read as a leech.
func ratioOf(forwarded, received int64) float64 {
	if received == 0 {
		if forwarded == 0 {
			return 1.0
		}
		return 1e9
	}
	return float64(forwarded) / float64(received)
}

// Copyright (C) 2025, Lux Industries Inc. All rights reserved.
// See the file LICENSE for licensing terms.

// Package handshake implements the HELLO -> CHALLENGE -> ATTEST -> WELCOME
// admission state machine (spec §4.2), anchored to signatures produced by
// the host node's HSM. The challenge store is process-local, bounded, and
// LRU-by-issued-at, plus a per-candidate issuance rate limit. The rate
// limit applies to each candidate separately, so a flood of distinct new
// candidates can still fill the store and evict an older outstanding
// challenge — the same "bounded map behind a mutex" shape the teacher
// uses for its networking/benchlist.Manager.
package handshake

import (
	"crypto/rand"
	"sync"
	"time"

	"github.com/luxfi/hive/types"
)

// ChallengeLen is the fixed nonce length.
const ChallengeLen = 32

type challengeRecord struct {
	nonce    []byte
	issuedAt time.Time
}

// ChallengeStoreConfig bounds the challenge store.
type ChallengeStoreConfig struct {
	MaxPending        int
	PerCandidatePerMin int
	TTL               time.Duration
}

// ChallengeStore holds outstanding CHALLENGEs keyed by candidate pubkey.
type ChallengeStore struct {
	mu      sync.Mutex
	cfg     ChallengeStoreConfig
	records map[types.Pubkey]challengeRecord
	issued  map[types.Pubkey][]time.Time // recent issuance timestamps, for the per-candidate rate limit
	now     func() time.Time
}

// NewChallengeStore builds an empty challenge store.
func NewChallengeStore(cfg ChallengeStoreConfig) *ChallengeStore {
	return &ChallengeStore{
		cfg:     cfg,
		records: make(map[types.Pubkey]challengeRecord),
		issued:  make(map[types.Pubkey][]time.Time),
		now:     time.Now,
	}
}

// errRateLimited is returned by Issue when a candidate has exceeded its
// per-minute challenge rate.
var errRateLimited = rateLimitedError{}

type rateLimitedError struct{}

func (rateLimitedError) Error() string { return "handshake: candidate rate limited" }

// Issue mints a fresh challenge for candidate, purging expired entries
// first, then enforcing the per-candidate rate limit, then the global
// cap. At the cap the record with the oldest issued-at is evicted,
// whichever candidate owns it; nothing shields one candidate's pending
// challenge from eviction by issuances to other candidates.
func (s *ChallengeStore) Issue(candidate types.Pubkey) ([]byte, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := s.now()
	s.purgeExpiredLocked(now)

	recent := s.issued[candidate]
	cutoff := now.Add(-time.Minute)
	kept := recent[:0]
	for _, t := range recent {
		if t.After(cutoff) {
			kept = append(kept, t)
		}
	}
	if len(kept) >= s.cfg.PerCandidatePerMin {
		s.issued[candidate] = kept
		return nil, errRateLimited
	}

	if len(s.records) >= s.cfg.MaxPending {
		s.evictOldestLocked()
	}

	nonce := make([]byte, ChallengeLen)
	if _, err := rand.Read(nonce); err != nil {
		return nil, err
	}
	s.records[candidate] = challengeRecord{nonce: nonce, issuedAt: now}
	kept = append(kept, now)
	s.issued[candidate] = kept
	return nonce, nil
}

// Take returns and removes the outstanding challenge for candidate, if
// any and unexpired. A second ATTEST replaying the same nonce finds
// nothing and is treated as Stale by the caller.
func (s *ChallengeStore) Take(candidate types.Pubkey) ([]byte, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	rec, ok := s.records[candidate]
	if !ok {
		return nil, false
	}
	delete(s.records, candidate)
	if s.now().Sub(rec.issuedAt) > s.cfg.TTL {
		return nil, false
	}
	return rec.nonce, true
}

func (s *ChallengeStore) purgeExpiredLocked(now time.Time) {
	for pk, rec := range s.records {
		if now.Sub(rec.issuedAt) > s.cfg.TTL {
			delete(s.records, pk)
		}
	}
}

func (s *ChallengeStore) evictOldestLocked() {
	var oldestKey types.Pubkey
	var oldestAt time.Time
	first := true
	for pk, rec := range s.records {
		if first || rec.issuedAt.Before(oldestAt) {
			oldestKey, oldestAt = pk, rec.issuedAt
			first = false
		}
	}
	if !first {
		delete(s.records, oldestKey)
	}
}

// Len reports the current pending-challenge count, for §8's
// |pending_challenges| <= MAX_PENDING_CHALLENGES invariant tests.
func (s *ChallengeStore) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.records)
}

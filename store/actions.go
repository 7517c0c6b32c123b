// Copyright (C) 2025, Lux Industries Inc. All rights reserved.
// See the file LICENSE for licensing terms.

package store

import (
	"encoding/json"

	"github.com/cockroachdb/errors"
	"github.com/luxfi/hive/types"
)

// PutAction upserts a pending-action row within batch.
func (b *Batch) PutAction(a types.PendingAction) error {
	buf, err := json.Marshal(a)
	if err != nil {
		return errors.Wrap(err, "store: marshal action")
	}
	return b.set(actionKey(a.ID), buf)
}

// GetAction loads a pending action by ID.
func (s *Store) GetAction(id string) (types.PendingAction, error) {
	v, release, err := s.get(actionKey(id))
	if err != nil {
		return types.PendingAction{}, err
	}
	defer release()
	var a types.PendingAction
	if err := json.Unmarshal(v, &a); err != nil {
		return types.PendingAction{}, errors.Wrap(err, "store: unmarshal action")
	}
	return a, nil
}

// ListActions returns every pending-action row.
func (s *Store) ListActions() ([]types.PendingAction, error) {
	var out []types.PendingAction
	err := s.scanPrefix([]byte(prefixAction), func(_, value []byte) bool {
		var a types.PendingAction
		if jerr := json.Unmarshal(value, &a); jerr == nil {
			out = append(out, a)
		}
		return true
	})
	return out, err
}

// PutBan upserts a ban row within batch.
func (b *Batch) PutBan(ban types.Ban) error {
	buf, err := json.Marshal(ban)
	if err != nil {
		return errors.Wrap(err, "store: marshal ban")
	}
	return b.set(banKey(ban.Pubkey), buf)
}

// GetBan loads a ban row by pubkey.
func (s *Store) GetBan(pk types.Pubkey) (types.Ban, error) {
	v, release, err := s.get(banKey(pk))
	if err != nil {
		return types.Ban{}, err
	}
	defer release()
	var ban types.Ban
	if err := json.Unmarshal(v, &ban); err != nil {
		return types.Ban{}, errors.Wrap(err, "store: unmarshal ban")
	}
	return ban, nil
}

// ListBans returns every ban row.
func (s *Store) ListBans() ([]types.Ban, error) {
	var out []types.Ban
	err := s.scanPrefix([]byte(prefixBan), func(_, value []byte) bool {
		var ban types.Ban
		if jerr := json.Unmarshal(value, &ban); jerr == nil {
			out = append(out, ban)
		}
		return true
	})
	return out, err
}

// AppendPlannerLog inserts one planner-log row within batch.
func (b *Batch) AppendPlannerLog(e types.PlannerLogEntry, seq uint32) error {
	buf, err := json.Marshal(e)
	if err != nil {
		return errors.Wrap(err, "store: marshal planner log entry")
	}
	return b.set(plannerLogKey(e.Timestamp.UnixNano(), seq), buf)
}

// DeletePlannerLogKey removes a single planner-log row by its raw store
// key, used by the bounded-log eviction sweep.
func (b *Batch) DeletePlannerLogKey(key []byte) error {
	return b.delete(key)
}

// ScanPlannerLog walks every planner-log row oldest-first.
func (s *Store) ScanPlannerLog(fn func(key []byte, e types.PlannerLogEntry) bool) error {
	return s.scanPrefix([]byte(prefixPlanner), func(key, value []byte) bool {
		var e types.PlannerLogEntry
		if jerr := json.Unmarshal(value, &e); jerr != nil {
			return true
		}
		keyCopy := append([]byte(nil), key...)
		return fn(keyCopy, e)
	})
}

// ListPlannerLog returns every planner-log row, oldest-first.
func (s *Store) ListPlannerLog() ([]types.PlannerLogEntry, error) {
	var out []types.PlannerLogEntry
	err := s.ScanPlannerLog(func(_ []byte, e types.PlannerLogEntry) bool {
		out = append(out, e)
		return true
	})
	return out, err
}

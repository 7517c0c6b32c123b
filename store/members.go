// Copyright (C) 2025, Lux Industries Inc. All rights reserved.
// See the file LICENSE for licensing terms.

package store

import (
	"encoding/json"

	"github.com/cockroachdb/errors"
	"github.com/luxfi/hive/types"
)

// PutMember upserts a member row within batch.
func (b *Batch) PutMember(m types.Member) error {
	buf, err := json.Marshal(m)
	if err != nil {
		return errors.Wrap(err, "store: marshal member")
	}
	return b.set(memberKey(m.Pubkey), buf)
}

// GetMember loads a member by pubkey.
func (s *Store) GetMember(pk types.Pubkey) (types.Member, error) {
	v, release, err := s.get(memberKey(pk))
	if err != nil {
		return types.Member{}, err
	}
	defer release()
	var m types.Member
	if err := json.Unmarshal(v, &m); err != nil {
		return types.Member{}, errors.Wrap(err, "store: unmarshal member")
	}
	return m, nil
}

// ListMembers returns every member row, in pubkey order.
func (s *Store) ListMembers() ([]types.Member, error) {
	var out []types.Member
	err := s.scanPrefix([]byte(prefixMember), func(_, value []byte) bool {
		var m types.Member
		if jerr := json.Unmarshal(value, &m); jerr == nil {
			out = append(out, m)
		}
		return true
	})
	return out, err
}

// IsCurrentMember reports whether pk is a non-banned Member or Neophyte
// currently in the Member set — the admission gate every handler but the
// handshake handlers applies (spec §4.1).
func (s *Store) IsCurrentMember(pk types.Pubkey) (bool, error) {
	m, err := s.GetMember(pk)
	if errors.Is(err, ErrNotFound) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return !m.Banned, nil
}

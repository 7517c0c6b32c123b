// Copyright (C) 2025, Lux Industries Inc. All rights reserved.
// See the file LICENSE for licensing terms.

package store

import (
	"encoding/json"

	"github.com/cockroachdb/errors"
	"github.com/luxfi/hive/types"
)

// PutIntent upserts an intent row within batch, keyed by its primary key
// (type, target, initiator) so replays never create a second row.
func (b *Batch) PutIntent(i types.Intent) error {
	buf, err := json.Marshal(i)
	if err != nil {
		return errors.Wrap(err, "store: marshal intent")
	}
	return b.set(intentKey(i.IntentKey), buf)
}

// DeleteIntent removes an intent row (used when pruning past its
// horizon, spec §4.4).
func (b *Batch) DeleteIntent(k types.IntentKey) error {
	return b.delete(intentKey(k))
}

// GetIntent loads a single intent by its primary key.
func (s *Store) GetIntent(k types.IntentKey) (types.Intent, error) {
	v, release, err := s.get(intentKey(k))
	if err != nil {
		return types.Intent{}, err
	}
	defer release()
	var i types.Intent
	if err := json.Unmarshal(v, &i); err != nil {
		return types.Intent{}, errors.Wrap(err, "store: unmarshal intent")
	}
	return i, nil
}

// ListIntents returns every locally recorded intent.
func (s *Store) ListIntents() ([]types.Intent, error) {
	var out []types.Intent
	err := s.scanPrefix([]byte(prefixIntent), func(_, value []byte) bool {
		var i types.Intent
		if jerr := json.Unmarshal(value, &i); jerr == nil {
			out = append(out, i)
		}
		return true
	})
	return out, err
}

// ListIntentsByTarget returns every locally recorded intent for a given
// (type, target) pair, across all initiators — the tie-break protocol's
// primary query.
func (s *Store) ListIntentsByTarget(t types.IntentType, target string) ([]types.Intent, error) {
	prefix := []byte(string(prefixIntent) + string(t) + "/" + target + "/")
	var out []types.Intent
	err := s.scanPrefix(prefix, func(_, value []byte) bool {
		var i types.Intent
		if jerr := json.Unmarshal(value, &i); jerr == nil {
			out = append(out, i)
		}
		return true
	})
	return out, err
}

// Copyright (C) 2025, Lux Industries Inc. All rights reserved.
// See the file LICENSE for licensing terms.

package store

import (
	"encoding/json"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/luxfi/hive/types"
)

// PutVouch upserts a vouch row within batch. The key is
// (subject, voucher, request_id), so a replayed vouch overwrites itself
// rather than counting twice toward quorum.
func (b *Batch) PutVouch(v types.PromotionVouch) error {
	buf, err := json.Marshal(v)
	if err != nil {
		return errors.Wrap(err, "store: marshal vouch")
	}
	return b.set(vouchKey(v.Subject, v.Voucher, v.RequestID), buf)
}

// DeleteVouch removes a vouch row, used when pruning entries older than
// VouchTTL.
func (b *Batch) DeleteVouch(subject, voucher types.Pubkey, requestID string) error {
	return b.delete(vouchKey(subject, voucher, requestID))
}

// ListVouchesForSubject returns every vouch recorded for subject,
// regardless of request ID, for quorum counting and TTL pruning.
func (s *Store) ListVouchesForSubject(subject types.Pubkey) ([]types.PromotionVouch, error) {
	prefix := []byte(prefixVouch + string(subject) + "/")
	var out []types.PromotionVouch
	err := s.scanPrefix(prefix, func(_, value []byte) bool {
		var v types.PromotionVouch
		if jerr := json.Unmarshal(value, &v); jerr == nil {
			out = append(out, v)
		}
		return true
	})
	return out, err
}

// ListStaleVouches returns every vouch older than cutoff, across all
// subjects, for the TTL pruning sweep.
func (s *Store) ListStaleVouches(cutoff time.Time) ([]types.PromotionVouch, error) {
	var out []types.PromotionVouch
	err := s.scanPrefix([]byte(prefixVouch), func(_, value []byte) bool {
		var v types.PromotionVouch
		if jerr := json.Unmarshal(value, &v); jerr == nil && v.Timestamp.Before(cutoff) {
			out = append(out, v)
		}
		return true
	})
	return out, err
}

// PutPromotionRequest records a candidate's broadcast PROMOTION_REQUEST
// so arriving VOUCHes can be correlated by request ID.
func (b *Batch) PutPromotionRequest(r types.PromotionRequest) error {
	buf, err := json.Marshal(r)
	if err != nil {
		return errors.Wrap(err, "store: marshal promotion request")
	}
	return b.set(promoReqKey(r.RequestID), buf)
}

// GetPromotionRequest loads a promotion request by ID.
func (s *Store) GetPromotionRequest(requestID string) (types.PromotionRequest, error) {
	v, release, err := s.get(promoReqKey(requestID))
	if err != nil {
		return types.PromotionRequest{}, err
	}
	defer release()
	var r types.PromotionRequest
	if err := json.Unmarshal(v, &r); err != nil {
		return types.PromotionRequest{}, errors.Wrap(err, "store: unmarshal promotion request")
	}
	return r, nil
}

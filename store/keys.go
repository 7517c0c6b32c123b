// Copyright (C) 2025, Lux Industries Inc. All rights reserved.
// See the file LICENSE for licensing terms.

package store

import (
	"fmt"

	"github.com/luxfi/hive/types"
)

// Key prefixes. Each table's keys sort in an order useful for its own
// bounded eviction: members/peerstate/ban/action/promoreq by identity
// (point lookups dominate), intent/vouch by their natural primary key
// (replay-defence lookups dominate), contrib/plannerlog/presence by
// time (oldest-first pruning dominates).
const (
	prefixMember    = "members/"
	prefixPeerState = "peerstate/"
	prefixIntent    = "intent/"
	prefixVouch     = "vouch/"
	prefixPromoReq  = "promoreq/"
	prefixContrib   = "contrib/"
	prefixAction    = "action/"
	prefixPlanner   = "plannerlog/"
	prefixBan       = "ban/"
	prefixPresence  = "presence/"
)

func memberKey(pk types.Pubkey) []byte {
	return []byte(prefixMember + string(pk))
}

func peerStateKey(pk types.Pubkey) []byte {
	return []byte(prefixPeerState + string(pk))
}

func intentKey(k types.IntentKey) []byte {
	return []byte(fmt.Sprintf("%s%s/%s/%s", prefixIntent, k.Type, k.Target, k.Initiator))
}

func vouchKey(subject, voucher types.Pubkey, requestID string) []byte {
	return []byte(fmt.Sprintf("%s%s/%s/%s", prefixVouch, subject, voucher, requestID))
}

func promoReqKey(requestID string) []byte {
	return []byte(prefixPromoReq + requestID)
}

// contribKey orders by nanosecond timestamp so oldest-first eviction and
// the 45-day pruning sweep are both simple prefix scans. seq breaks ties
// between entries sharing a timestamp.
func contribKey(unixNano int64, seq uint32) []byte {
	return []byte(fmt.Sprintf("%s%020d/%010d", prefixContrib, unixNano, seq))
}

func actionKey(id string) []byte {
	return []byte(prefixAction + id)
}

func plannerLogKey(unixNano int64, seq uint32) []byte {
	return []byte(fmt.Sprintf("%s%020d/%010d", prefixPlanner, unixNano, seq))
}

func banKey(pk types.Pubkey) []byte {
	return []byte(prefixBan + string(pk))
}

func presenceKey(peer types.Pubkey, unixNano int64) []byte {
	return []byte(fmt.Sprintf("%s%s/%020d", prefixPresence, peer, unixNano))
}

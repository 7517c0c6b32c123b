// Copyright (C) 2025, Lux Industries Inc. All rights reserved.
// See the file LICENSE for licensing terms.

package governance

import (
	"context"
	"strconv"

	"github.com/cockroachdb/errors"
	"github.com/luxfi/hive/bridge"
	"github.com/luxfi/hive/host"
	"github.com/luxfi/hive/types"
)

// bridgeDispatch is Governance's single call site into the Bridge (spec
// §4.7: "Governance is a single funnel; no component may call the
// Bridge directly"). It translates a committed PendingAction into the
// one Bridge method it maps to.
func bridgeDispatch(ctx context.Context, br *bridge.Bridge, a types.PendingAction) error {
	target := types.Pubkey(a.Target)
	switch a.Type {
	case types.ActionSetPolicy:
		kind := host.PolicyDefault
		if a.Params["kind"] == string(host.PolicyHive) {
			kind = host.PolicyHive
		}
		return br.SetPolicy(ctx, target, kind)
	case types.ActionRebalance:
		amount, _ := strconv.ParseInt(a.Params["amount_sat"], 10, 64)
		return br.TriggerRebalance(ctx, target, amount)
	case types.ActionInhibitOpens:
		return br.InhibitOpens(ctx, target)
	case types.ActionReleaseInhibit:
		return br.ReleaseInhibit(ctx, target)
	case types.ActionChannelOpen, types.ActionBanPeer:
		// These map to Intent-protocol side effects handled upstream of
		// the Bridge (opening a channel is the host node's own job once
		// the Intent commits; banning mutates local membership state).
		// Governance still gates them so they are logged and auditable,
		// but there is no Bridge RPC to make.
		return nil
	default:
		return errors.Newf("governance: unknown action type %q", a.Type)
	}
}

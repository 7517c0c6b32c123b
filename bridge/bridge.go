// Copyright (C) 2025, Lux Industries Inc. All rights reserved.
// See the file LICENSE for licensing terms.

package bridge

import (
	"context"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/luxfi/hive/host"
	"github.com/luxfi/hive/metrics"
	"github.com/luxfi/hive/types"
	"github.com/luxfi/log"
)

// ErrUnavailable is returned by every safe_call when the breaker is open
// or the execution subsystem failed feature detection. It never performs
// network IO in this case (spec §4.9).
var ErrUnavailable = errors.New("bridge: unavailable")

// MinExecutionVersion is the minimum fee/rebalance subsystem version
// this build requires, checked once at startup.
var MinExecutionVersion = [3]int{1, 0, 0}

// Config bounds both breakers the Bridge runs: one for the execution
// subsystem, one for the external channel manager, since the two
// collaborators fail independently.
type Config struct {
	Execution BreakerConfig
	Channel   BreakerConfig
}

// Bridge wraps every outbound RPC to the execution subsystem and the
// external channel manager in its own circuit breaker and call timeout
// (spec §4.9).
type Bridge struct {
	cfg     Config
	exec    host.ExecutionSubsystem
	chanMgr host.ChannelManager
	execBreaker *breaker
	chanBreaker *breaker
	log     log.Logger

	execAvailable bool
}

// New builds a Bridge. Callers must call DetectFeatures once at startup
// before the Bridge is considered ready; until then every
// execution-subsystem call returns ErrUnavailable. Channel-manager calls
// are not gated by feature detection.
func New(cfg Config, exec host.ExecutionSubsystem, chanMgr host.ChannelManager, m *metrics.Metrics, logger log.Logger) *Bridge {
	return &Bridge{
		cfg:         cfg,
		exec:        exec,
		chanMgr:     chanMgr,
		execBreaker: newBreaker(cfg.Execution, "execution", m),
		chanBreaker: newBreaker(cfg.Channel, "channel", m),
		log:         logger,
	}
}

// DetectFeatures queries the execution subsystem's status/version and
// disables it (every safe_call thereafter returns ErrUnavailable without
// network IO) unless it is loaded and at least MinExecutionVersion.
func (b *Bridge) DetectFeatures(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, b.cfg.Execution.CallTimeout)
	defer cancel()
	info, err := b.exec.Status(ctx)
	if err != nil {
		b.log.Info("bridge: execution subsystem status query failed, disabling", "err", err)
		b.execAvailable = false
		return nil
	}
	ok := info.AtLeast(MinExecutionVersion[0], MinExecutionVersion[1], MinExecutionVersion[2])
	b.execAvailable = ok
	if !ok {
		b.log.Info("bridge: execution subsystem below minimum version, disabling")
	}
	return nil
}

// ExecutionState reports the execution-subsystem breaker's state, for
// health reporting.
func (b *Bridge) ExecutionState() State { return b.execBreaker.State() }

// ChannelState reports the channel-manager breaker's state.
func (b *Bridge) ChannelState() State { return b.chanBreaker.State() }

func (b *Bridge) safeCallExec(ctx context.Context, fn func(ctx context.Context) error) error {
	if !b.execAvailable {
		return ErrUnavailable
	}
	return safeCall(ctx, b.execBreaker, b.cfg.Execution.CallTimeout, fn)
}

func (b *Bridge) safeCallChan(ctx context.Context, fn func(ctx context.Context) error) error {
	return safeCall(ctx, b.chanBreaker, b.cfg.Channel.CallTimeout, fn)
}

// safeCall is the shared circuit-breaker-wrapped, timeout-bounded call
// path every Bridge method funnels through.
func safeCall(ctx context.Context, br *breaker, timeout time.Duration, fn func(ctx context.Context) error) error {
	proceed, probe := br.allow()
	if !proceed {
		return ErrUnavailable
	}

	callCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	err := fn(callCtx)
	success := err == nil
	br.report(probe, success)
	if err != nil {
		if errors.Is(err, context.DeadlineExceeded) {
			return errors.Wrap(ErrUnavailable, "bridge: call timed out")
		}
		return err
	}
	return nil
}

// SetPolicy sets peer's fee policy to kind via the execution subsystem.
func (b *Bridge) SetPolicy(ctx context.Context, peer types.Pubkey, kind host.PolicyKind) error {
	return b.safeCallExec(ctx, func(ctx context.Context) error {
		return b.exec.SetPolicy(ctx, peer, kind)
	})
}

// TriggerRebalance triggers a rebalance to target via the execution
// subsystem.
func (b *Bridge) TriggerRebalance(ctx context.Context, target types.Pubkey, amountSat int64) error {
	return b.safeCallExec(ctx, func(ctx context.Context) error {
		return b.exec.TriggerRebalance(ctx, target, amountSat)
	})
}

// InhibitOpens inhibits new channel opens to peer via the external
// channel manager. This is peer-scoped and orthogonal to fee management
// (spec §6.4).
func (b *Bridge) InhibitOpens(ctx context.Context, peer types.Pubkey) error {
	return b.safeCallChan(ctx, func(ctx context.Context) error {
		return b.chanMgr.InhibitOpens(ctx, peer)
	})
}

// ReleaseInhibit releases a prior inhibitor on peer.
func (b *Bridge) ReleaseInhibit(ctx context.Context, peer types.Pubkey) error {
	return b.safeCallChan(ctx, func(ctx context.Context) error {
		return b.chanMgr.ReleaseInhibit(ctx, peer)
	})
}

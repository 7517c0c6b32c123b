// Copyright (C) 2025, Lux Industries Inc. All rights reserved.
// See the file LICENSE for licensing terms.

// Package governance is the single funnel every executable action
// proposed by Planner, Intent commit, or Membership must pass through
// before it reaches the Bridge (spec §4.7). No other component may call
// the Bridge directly for an executable action.
package governance

import (
	"context"
	"sync"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/google/uuid"
	"github.com/luxfi/hive/bridge"
	"github.com/luxfi/hive/metrics"
	"github.com/luxfi/hive/store"
	"github.com/luxfi/hive/types"
	"github.com/luxfi/log"
)

// Mode selects how a proposed action is decided.
type Mode string

const (
	ModeAdvisor    Mode = "advisor"
	ModeAutonomous Mode = "autonomous"
	ModeOracle     Mode = "oracle"
)

// Config bounds Governance's autonomous-mode safety constraints and
// advisor-mode expiry.
type Config struct {
	Mode               Mode
	AdvisorExpiry      time.Duration // 24h
	DailySpendBudgetSat int64
	HourlyActionLimit  int
	ConfidenceThreshold float64
	Oracle             OracleConfig
}

// SideEffects performs the non-Bridge consequences of an action type
// that commits through Governance for audit but has no Bridge RPC of its
// own — currently only ban_peer (spec §4.7: Governance is still the one
// funnel every executable action passes through, even when the effect
// lies outside the Bridge).
type SideEffects interface {
	BanPeer(ctx context.Context, peer types.Pubkey, reason string) error
}

// Engine routes PendingActions to execution via the Bridge, according to
// the configured Mode.
type Engine struct {
	cfg     Config
	db      *store.Store
	bridge  *bridge.Bridge
	effects SideEffects
	oracle  *oracleClient
	log     log.Logger
	now     func() time.Time
	m       *metrics.Metrics

	mu            sync.Mutex
	spentToday    int64
	spentDay      string
	actionsThisHour []time.Time
}

// New builds a governance Engine. effects may be nil, in which case
// ban_peer actions are marked executed without any side effect — tests
// and deployments that do not route bans through Governance can omit it.
// m may also be nil.
func New(cfg Config, db *store.Store, br *bridge.Bridge, effects SideEffects, m *metrics.Metrics, logger log.Logger) *Engine {
	return &Engine{
		cfg:     cfg,
		db:      db,
		bridge:  br,
		effects: effects,
		oracle:  newOracleClient(cfg.Oracle),
		log:     logger,
		now:     time.Now,
		m:       m,
	}
}

// Propose enters a new action into Governance. This is the only legal
// entry point for Planner, Intent commit, and Membership to request an
// executable action (spec §4.7: "Commit of an Intent does not itself
// execute; it always routes through Governance").
func (e *Engine) Propose(ctx context.Context, actionType types.ActionType, target string, params map[string]string, proposedBy types.Pubkey) (types.PendingAction, error) {
	now := e.now()
	a := types.PendingAction{
		ID:         uuid.NewString(),
		Type:       actionType,
		Target:     target,
		Params:     params,
		ProposedBy: proposedBy,
		ProposedAt: now,
		Status:     types.ActionPending,
		ExpiresAt:  now.Add(e.cfg.AdvisorExpiry),
	}
	batch := e.db.NewBatch()
	if err := batch.PutAction(a); err != nil {
		return types.PendingAction{}, err
	}
	if err := e.db.Commit(batch); err != nil {
		return types.PendingAction{}, err
	}

	switch e.ModeNow() {
	case ModeAutonomous:
		return a, e.decideAutonomous(ctx, a)
	case ModeOracle:
		return a, e.decideOracle(ctx, a)
	default:
		e.log.Info("governance: action pending advisor approval", "id", a.ID, "type", a.Type)
		return a, nil
	}
}

// SetMode changes the governance decision mode at runtime (spec §6.5's
// "change governance mode" admin command). It takes effect for every
// action proposed after the call; actions already pending keep whatever
// disposition their original mode already gave them.
func (e *Engine) SetMode(mode Mode) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.cfg.Mode = mode
}

// ModeNow reports the current governance decision mode.
func (e *Engine) ModeNow() Mode {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.cfg.Mode
}

// Approve transitions a pending action to executed via the Bridge
// (advisor-mode out-of-band approval, spec §4.7).
func (e *Engine) Approve(ctx context.Context, id string) error {
	a, err := e.db.GetAction(id)
	if err != nil {
		return err
	}
	if a.Status != types.ActionPending {
		return errors.Newf("governance: action %s is not pending", id)
	}
	return e.execute(ctx, a)
}

// Reject transitions a pending action to rejected.
func (e *Engine) Reject(id string) error {
	a, err := e.db.GetAction(id)
	if err != nil {
		return err
	}
	a.Status = types.ActionRejected
	batch := e.db.NewBatch()
	if err := batch.PutAction(a); err != nil {
		return err
	}
	return e.db.Commit(batch)
}

// ExpirePending walks every pending action and expires anything past its
// ExpiresAt (advisor-mode 24h expiry, spec §4.7).
func (e *Engine) ExpirePending(now time.Time) error {
	all, err := e.db.ListActions()
	if err != nil {
		return err
	}
	batch := e.db.NewBatch()
	dirty := false
	for _, a := range all {
		if a.Status == types.ActionPending && now.After(a.ExpiresAt) {
			a.Status = types.ActionExpired
			if err := batch.PutAction(a); err != nil {
				return err
			}
			dirty = true
		}
	}
	if !dirty {
		return nil
	}
	return e.db.Commit(batch)
}

func (e *Engine) execute(ctx context.Context, a types.PendingAction) error {
	err := bridgeDispatch(ctx, e.bridge, a)
	if err == nil && a.Type == types.ActionBanPeer && e.effects != nil {
		err = e.effects.BanPeer(ctx, types.Pubkey(a.Target), "governance: ban_peer action executed")
	}
	if err != nil {
		a.Status = types.ActionRejected
		if e.m != nil {
			e.m.ActionsRejected.WithLabelValues(string(a.Type)).Inc()
		}
	} else {
		a.Status = types.ActionExecuted
		if e.m != nil {
			e.m.ActionsExecuted.WithLabelValues(string(a.Type)).Inc()
		}
	}
	batch := e.db.NewBatch()
	if err := batch.PutAction(a); err != nil {
		return err
	}
	return e.db.Commit(batch)
}

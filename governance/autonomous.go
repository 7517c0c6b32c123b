// Copyright (C) 2025, Lux Industries Inc. All rights reserved.
// See the file LICENSE for licensing terms.

package governance

import (
	"context"
	"strconv"
	"time"

	"github.com/luxfi/hive/types"
)

// decideAutonomous evaluates the safety constraints spec §4.7 requires
// before an autonomous-mode action may execute: a daily spend budget, a
// per-hour action-rate limit, and a confidence threshold on the
// supporting evaluation (carried in a's Params, since different action
// types derive "confidence" differently upstream). If any check fails
// the action is rejected outright, never queued for later retry — §4.7
// says "If all pass, execute via Bridge; else rejected."
func (e *Engine) decideAutonomous(ctx context.Context, a types.PendingAction) error {
	now := e.now()

	e.mu.Lock()
	day := now.Format("2006-01-02")
	if e.spentDay != day {
		e.spentDay = day
		e.spentToday = 0
	}
	cutoff := now.Add(-time.Hour)
	kept := e.actionsThisHour[:0]
	for _, t := range e.actionsThisHour {
		if t.After(cutoff) {
			kept = append(kept, t)
		}
	}
	e.actionsThisHour = kept

	amount := parseAmountSat(a.Params)
	overBudget := e.spentToday+amount > e.cfg.DailySpendBudgetSat
	overRate := len(e.actionsThisHour) >= e.cfg.HourlyActionLimit
	confidence := parseConfidence(a.Params)
	underConfident := confidence < e.cfg.ConfidenceThreshold

	if overBudget || overRate || underConfident {
		e.mu.Unlock()
		return e.reject(a)
	}

	e.spentToday += amount
	e.actionsThisHour = append(e.actionsThisHour, now)
	e.mu.Unlock()

	return e.execute(ctx, a)
}

func (e *Engine) reject(a types.PendingAction) error {
	a.Status = types.ActionRejected
	batch := e.db.NewBatch()
	if err := batch.PutAction(a); err != nil {
		return err
	}
	return e.db.Commit(batch)
}

func parseAmountSat(params map[string]string) int64 {
	v, err := strconv.ParseInt(params["amount_sat"], 10, 64)
	if err != nil {
		return 0
	}
	return v
}

func parseConfidence(params map[string]string) float64 {
	v, err := strconv.ParseFloat(params["confidence"], 64)
	if err != nil {
		return 0
	}
	return v
}

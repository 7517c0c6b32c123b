// Copyright (C) 2025, Lux Industries Inc. All rights reserved.
// See the file LICENSE for licensing terms.

// Package bridge is the hardened outbound boundary to the co-resident
// fee/rebalance subsystem and the external channel manager (spec §4.9).
// Every call is wrapped by a circuit breaker with closed/open/half_open
// states and a strict per-call timeout, grounded on the same
// lock-guarded-struct-with-explicit-state-transitions shape the teacher
// uses for networking/timeout.Manager and networking/benchlist.Manager.
package bridge

import (
	"sync"
	"time"

	"github.com/luxfi/hive/metrics"
)

// State is a circuit breaker state.
type State int

const (
	Closed State = iota
	Open
	HalfOpen
)

func (s State) String() string {
	switch s {
	case Closed:
		return "closed"
	case Open:
		return "open"
	case HalfOpen:
		return "half_open"
	default:
		return "unknown"
	}
}

// BreakerConfig bounds the circuit breaker (spec §4.9).
type BreakerConfig struct {
	MaxFailures       int           // consecutive failures before tripping to open
	ResetTimeout      time.Duration // time in open before a half_open probe is allowed
	RequiredSuccesses int           // consecutive half_open successes required to close
	CallTimeout       time.Duration // per-call timeout, <= 5s
}

// breaker is a single circuit breaker instance, one per outbound
// collaborator (execution subsystem, channel manager).
type breaker struct {
	mu                sync.Mutex
	cfg               BreakerConfig
	state             State
	consecutiveFail   int
	consecutiveSucc   int
	openedAt          time.Time
	halfOpenInFlight  bool
	now               func() time.Time

	name string
	m    *metrics.Metrics
}

func newBreaker(cfg BreakerConfig, name string, m *metrics.Metrics) *breaker {
	b := &breaker{cfg: cfg, now: time.Now, name: name, m: m}
	b.reportGauge()
	return b
}

// reportGauge mirrors the breaker's current state onto the metrics
// gauge, when a Metrics instance was supplied. Callers must hold b.mu.
func (b *breaker) reportGauge() {
	if b.m == nil {
		return
	}
	b.m.BreakerState.WithLabelValues(b.name).Set(float64(b.state))
}

// allow reports whether a call may proceed right now, and if so whether
// it is a half_open probe (at most one in flight at a time, so a burst
// of concurrent calls cannot each count as an independent probe and let
// a single coincidental success flip the breaker closed — spec §4.9's
// "prevents an attacker from forcing reset with a single success").
func (b *breaker) allow() (proceed bool, probe bool) {
	b.mu.Lock()
	defer b.mu.Unlock()

	switch b.state {
	case Closed:
		return true, false
	case Open:
		if b.now().Sub(b.openedAt) >= b.cfg.ResetTimeout {
			b.state = HalfOpen
			b.consecutiveSucc = 0
			b.reportGauge()
		} else {
			return false, false
		}
		fallthrough
	case HalfOpen:
		if b.halfOpenInFlight {
			return false, false
		}
		b.halfOpenInFlight = true
		return true, true
	}
	return false, false
}

// report records the outcome of a call that allow() admitted.
func (b *breaker) report(probe bool, success bool) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if probe {
		b.halfOpenInFlight = false
	}

	if success {
		b.consecutiveFail = 0
		switch b.state {
		case HalfOpen:
			b.consecutiveSucc++
			if b.consecutiveSucc >= b.cfg.RequiredSuccesses {
				b.state = Closed
				b.consecutiveSucc = 0
				b.reportGauge()
			}
		case Open:
			// a call shouldn't succeed while open (allow() would have
			// refused it), but treat defensively as a no-op.
		}
		return
	}

	// failure
	switch b.state {
	case HalfOpen:
		// a single failure in half_open returns to open (spec §4.9).
		b.trip()
	case Closed:
		b.consecutiveFail++
		if b.consecutiveFail >= b.cfg.MaxFailures {
			b.trip()
		}
	}
}

func (b *breaker) trip() {
	b.state = Open
	b.openedAt = b.now()
	b.consecutiveFail = 0
	b.consecutiveSucc = 0
	b.reportGauge()
	if b.m != nil {
		b.m.BreakerTrips.WithLabelValues(b.name).Inc()
	}
}

// State returns the breaker's current state, for health reporting.
func (b *breaker) State() State {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.state
}

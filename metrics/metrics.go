// Copyright (C) 2025, Lux Industries Inc. All rights reserved.
// See the file LICENSE for licensing terms.

// Package metrics instruments the Hive overlay with
// github.com/prometheus/client_golang, the same library the teacher
// codebase exposes consensus metrics with (api/metrics), replacing the
// teacher's generic Counter/Gauge/Averager indirection with direct
// labeled collectors — the domain has a small fixed set of label
// dimensions (breaker name, loop name, intent type) that CounterVec and
// GaugeVec already express without a hand-rolled registry on top.
package metrics

import "github.com/prometheus/client_golang/prometheus"

// Metrics holds every collector the Hive components report to.
type Metrics struct {
	BreakerState      *prometheus.GaugeVec
	BreakerTrips      *prometheus.CounterVec
	GossipBroadcasts  prometheus.Counter
	GossipApplied     prometheus.Counter
	GossipStale       prometheus.Counter
	IntentCommits     *prometheus.CounterVec
	IntentAborts      *prometheus.CounterVec
	PlannerSaturations prometheus.Counter
	PlannerReleases    prometheus.Counter
	PlannerExpansions  prometheus.Counter
	PlannerMassAborts  prometheus.Counter
	LoopTickFailures  *prometheus.CounterVec
	ActionsExecuted   *prometheus.CounterVec
	ActionsRejected   *prometheus.CounterVec
}

// New registers every Hive collector against reg and returns the handle
// components hold onto. reg is typically prometheus.NewRegistry() so
// tests never collide with the process-global DefaultRegisterer.
func New(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		BreakerState: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: "hive",
			Subsystem: "bridge",
			Name:      "breaker_state",
			Help:      "0=closed 1=open 2=half_open, per breaker name",
		}, []string{"breaker"}),
		BreakerTrips: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "hive",
			Subsystem: "bridge",
			Name:      "breaker_trips_total",
			Help:      "count of breaker open transitions, per breaker name",
		}, []string{"breaker"}),
		GossipBroadcasts: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "hive",
			Subsystem: "gossip",
			Name:      "broadcasts_total",
			Help:      "count of local PeerState broadcasts sent",
		}),
		GossipApplied: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "hive",
			Subsystem: "gossip",
			Name:      "applied_total",
			Help:      "count of remote PeerState updates accepted",
		}),
		GossipStale: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "hive",
			Subsystem: "gossip",
			Name:      "stale_total",
			Help:      "count of remote PeerState updates rejected as stale",
		}),
		IntentCommits: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "hive",
			Subsystem: "intent",
			Name:      "commits_total",
			Help:      "count of committed intents, per intent type",
		}, []string{"type"}),
		IntentAborts: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "hive",
			Subsystem: "intent",
			Name:      "aborts_total",
			Help:      "count of aborted intents, per intent type",
		}, []string{"type"}),
		PlannerSaturations: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "hive",
			Subsystem: "planner",
			Name:      "saturations_total",
			Help:      "count of targets narrowed for publicly-observed saturation",
		}),
		PlannerReleases: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "hive",
			Subsystem: "planner",
			Name:      "releases_total",
			Help:      "count of prior saturation narrowings released",
		}),
		PlannerExpansions: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "hive",
			Subsystem: "planner",
			Name:      "expansions_total",
			Help:      "count of expansion channel-open intents announced",
		}),
		PlannerMassAborts: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "hive",
			Subsystem: "planner",
			Name:      "mass_saturation_aborts_total",
			Help:      "count of planner cycles aborted on mass saturation",
		}),
		LoopTickFailures: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "hive",
			Subsystem: "dispatch",
			Name:      "loop_tick_failures_total",
			Help:      "count of background loop tick failures, per loop name",
		}, []string{"loop"}),
		ActionsExecuted: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "hive",
			Subsystem: "governance",
			Name:      "actions_executed_total",
			Help:      "count of executed governance actions, per action type",
		}, []string{"type"}),
		ActionsRejected: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "hive",
			Subsystem: "governance",
			Name:      "actions_rejected_total",
			Help:      "count of rejected governance actions, per action type",
		}, []string{"type"}),
	}

	for _, c := range []prometheus.Collector{
		m.BreakerState, m.BreakerTrips, m.GossipBroadcasts, m.GossipApplied,
		m.GossipStale, m.IntentCommits, m.IntentAborts, m.PlannerSaturations,
		m.PlannerReleases, m.PlannerExpansions, m.PlannerMassAborts,
		m.LoopTickFailures, m.ActionsExecuted, m.ActionsRejected,
	} {
		reg.MustRegister(c)
	}
	return m
}

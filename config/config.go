// Copyright (C) 2025, Lux Industries Inc. All rights reserved.
// See the file LICENSE for licensing terms.

// Package config holds the single Config struct covering every numeric
// bound the rest of the Hive overlay leaves as "implementation picks
// conservative defaults". It is loaded with github.com/spf13/viper
// (a cobra flag overrides the environment, which overrides the YAML
// file), the same CLI/config pairing the pl1189-go-spacemesh reference
// repo uses for its node binary; Default returns sane bounds so the
// process starts even with an empty config file, mirroring the teacher's
// own named-presets pattern in its (now-removed) config/presets.go.
package config

import (
	"time"

	"github.com/luxfi/hive/bridge"
	"github.com/luxfi/hive/contribution"
	"github.com/luxfi/hive/dispatch"
	"github.com/luxfi/hive/governance"
	"github.com/luxfi/hive/gossip"
	"github.com/luxfi/hive/handshake"
	"github.com/luxfi/hive/intent"
	"github.com/luxfi/hive/member"
	"github.com/luxfi/hive/planner"
	"github.com/luxfi/hive/types"
)

// Config is the fully assembled set of bounds for every component. Every
// field maps directly to the numeric knob it configures, so a YAML file
// overriding one value never has to know the others.
type Config struct {
	HiveID string
	Admin  types.Pubkey

	TicketedAdmission bool

	Challenge   handshake.ChallengeStoreConfig
	Gossip      gossip.BroadcastConfig
	Intent      intent.Config
	Promotion   member.PromotionConfig
	Contribution contribution.Config
	Governance  governance.Config
	Bridge      bridge.Config
	Planner     planner.Config
	Loops       dispatch.LoopConfig

	MaxFullSyncStates int
}

// Default returns the conservative defaults named throughout spec.md §8
// and §9 (10% capacity drift, 99.5% uptime, ratio 1.0, etc.), adjusted
// only by an explicit YAML/env/flag override.
func Default() Config {
	c := Config{
		TicketedAdmission: false,

		Challenge: handshake.ChallengeStoreConfig{
			MaxPending:         10_000,
			PerCandidatePerMin: 5,
			TTL:                5 * time.Minute,
		},

		Gossip: gossip.BroadcastConfig{
			CapacityDriftPct:     10,
			Heartbeat:            10 * time.Minute,
			MaxGossipTimeEntries: 10_000,
		},

		Intent: intent.Config{
			Hold:             30 * time.Second,
			Horizon:          24 * time.Hour,
			MaxRemoteIntents: 10_000,
		},

		Promotion: member.PromotionConfig{
			ProbationWindow:     30 * 24 * time.Hour,
			MinUptimePct:        99.5,
			ContributionWindow:  30 * 24 * time.Hour,
			MinContribRatio:     1.0,
			VouchTTL:            24 * time.Hour,
			QuorumFloor:         3,
			QuorumFraction:      0.51,
		},

		Contribution: contribution.Config{
			PerPeerPerHour: 120,
			GlobalPerDay:   10_000,
			GlobalRows:     500_000,
			RowTTL:         45 * 24 * time.Hour,
			QueryCacheTTL:  30 * time.Second,
		},

		Governance: governance.Config{
			Mode:                governance.ModeAdvisor,
			AdvisorExpiry:       24 * time.Hour,
			DailySpendBudgetSat: 1_000_000,
			HourlyActionLimit:   10,
			ConfidenceThreshold: 0.8,
			Oracle: governance.OracleConfig{
				Timeout: 5 * time.Second,
			},
		},

		Bridge: bridge.Config{
			Execution: bridge.BreakerConfig{
				MaxFailures:       3,
				ResetTimeout:      time.Minute,
				RequiredSuccesses: 3,
				CallTimeout:       5 * time.Second,
			},
			Channel: bridge.BreakerConfig{
				MaxFailures:       3,
				ResetTimeout:      time.Minute,
				RequiredSuccesses: 3,
				CallTimeout:       5 * time.Second,
			},
		},

		Planner: planner.Config{
			Cadence:                    time.Hour,
			SaturationThreshold:        0.20,
			ReleaseThreshold:           0.15,
			ExpansionThreshold:         0.05,
			MaxIgnorePerCycle:          5,
			MinTargetPublicCapacitySat: 5_000_000,
			MinTargetAge:               24 * time.Hour,
			OpenerUptimeWindow:         30 * 24 * time.Hour,
			MinOpenerUptimePct:         99,
			MinOpenerIdleFundsSat:      1_000_000,
			ExpansionHold:              30 * time.Second,
			ExpansionHorizon:           24 * time.Hour,
			MaxLogRows:                 100_000,
		},

		Loops: dispatch.LoopConfig{
			AntiEntropy:             time.Minute,
			IntentCommit:            5 * time.Second,
			ContributionMaintenance: time.Hour,
			Planner:                 time.Hour,
			MembershipMaintenance:   10 * time.Minute,
			LeechRatioThreshold:     0.5,
			LeechSustainWindow:      7 * 24 * time.Hour,
			IntentHold:              30 * time.Second,
			IntentHorizon:           24 * time.Hour,
			VouchTTL:                24 * time.Hour,
		},

		MaxFullSyncStates: 5_000,
	}
	return c
}

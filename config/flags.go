// Copyright (C) 2025, Lux Industries Inc. All rights reserved.
// See the file LICENSE for licensing terms.

package config

import (
	"strings"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/luxfi/hive/governance"
	"github.com/luxfi/hive/types"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

// governanceMode maps a flag/env/YAML string onto a governance.Mode,
// defaulting to advisor for an unrecognized value rather than rejecting
// startup over a typo.
func governanceMode(s string) governance.Mode {
	switch governance.Mode(s) {
	case governance.ModeAutonomous:
		return governance.ModeAutonomous
	case governance.ModeOracle:
		return governance.ModeOracle
	default:
		return governance.ModeAdvisor
	}
}

// BindFlags registers every overridable knob as a persistent flag on cmd
// and binds it through v, so precedence resolves flag > env > YAML file >
// Default() in that order (the pl1189-go-spacemesh node binary's own
// cobra+viper pairing).
func BindFlags(cmd *cobra.Command, v *viper.Viper) {
	flags := cmd.PersistentFlags()

	flags.String("hive-id", "", "identifier of the Hive this node belongs to")
	flags.String("admin", "", "pubkey of this Hive's admin/initiator")
	flags.Bool("ticketed-admission", false, "require an out-of-band invite ticket for ADMIT")

	flags.Duration("planner-cadence", time.Hour, "planner decision loop cadence")
	flags.Float64("planner-saturation-threshold", 0.20, "hive_share of a target's public capacity above which new opens to it are inhibited")
	flags.Float64("planner-release-threshold", 0.15, "hive_share below which a prior inhibitor is released")
	flags.Float64("planner-expansion-threshold", 0.05, "hive_share below which a target is an expansion candidate")
	flags.Int("planner-max-ignore-per-cycle", 5, "max saturation downgrades accepted before aborting a planner cycle")

	flags.Duration("governance-advisor-expiry", 24*time.Hour, "advisor-mode pending action expiry")
	flags.Int64("governance-daily-spend-budget-sat", 1_000_000, "autonomous-mode daily spend budget in satoshis")
	flags.Int("governance-hourly-action-limit", 10, "autonomous-mode hourly action count limit")
	flags.String("governance-mode", "advisor", "governance decision mode: advisor, autonomous, or oracle")
	flags.String("governance-oracle-url", "", "oracle governance mode decision endpoint")

	flags.Duration("bridge-call-timeout", 5*time.Second, "per-call timeout before a Bridge RPC is treated as a breaker failure")
	flags.Int("bridge-max-failures", 3, "consecutive failures before a Bridge breaker trips open")
	flags.Duration("bridge-reset-timeout", time.Minute, "time a tripped Bridge breaker stays open before a half-open probe")

	flags.Duration("gossip-heartbeat", 10*time.Minute, "anti-entropy rebroadcast cadence absent any other trigger")
	flags.Float64("gossip-capacity-drift-pct", 10, "percent capacity drift since last broadcast that triggers rebroadcast")

	flags.Float64("promotion-min-uptime-pct", 99.5, "minimum probation-window uptime percentage for promotion")
	flags.Float64("promotion-min-contrib-ratio", 1.0, "minimum forwarded/received ratio for promotion")
	flags.Duration("promotion-vouch-ttl", 24*time.Hour, "max age of a vouch counted toward promotion quorum")

	flags.String("data-dir", "./hive-data", "pebble store data directory")
	flags.String("log-level", "info", "log level: debug, info, warn, error")

	cobra.CheckErr(v.BindPFlags(flags))
	v.SetEnvPrefix("hive")
	v.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	v.AutomaticEnv()
}

// Load builds a Config by layering Default() under whatever v resolved
// from flags, env, and an optional YAML config file (set via
// v.SetConfigFile before calling Load).
func Load(v *viper.Viper) (Config, error) {
	cfg := Default()

	if v.ConfigFileUsed() != "" {
		if err := v.ReadInConfig(); err != nil {
			return Config{}, errors.Wrap(err, "config: reading config file")
		}
	}

	if s := v.GetString("hive-id"); s != "" {
		cfg.HiveID = s
	}
	if s := v.GetString("admin"); s != "" {
		cfg.Admin = types.Pubkey(s)
	}
	cfg.TicketedAdmission = v.GetBool("ticketed-admission")

	cfg.Planner.Cadence = v.GetDuration("planner-cadence")
	cfg.Loops.Planner = cfg.Planner.Cadence
	cfg.Planner.SaturationThreshold = v.GetFloat64("planner-saturation-threshold")
	cfg.Planner.ReleaseThreshold = v.GetFloat64("planner-release-threshold")
	cfg.Planner.ExpansionThreshold = v.GetFloat64("planner-expansion-threshold")
	cfg.Planner.MaxIgnorePerCycle = v.GetInt("planner-max-ignore-per-cycle")

	cfg.Governance.AdvisorExpiry = v.GetDuration("governance-advisor-expiry")
	cfg.Governance.DailySpendBudgetSat = v.GetInt64("governance-daily-spend-budget-sat")
	cfg.Governance.HourlyActionLimit = v.GetInt("governance-hourly-action-limit")
	if m := v.GetString("governance-mode"); m != "" {
		cfg.Governance.Mode = governanceMode(m)
	}
	cfg.Governance.Oracle.URL = v.GetString("governance-oracle-url")

	cfg.Bridge.Execution.CallTimeout = v.GetDuration("bridge-call-timeout")
	cfg.Bridge.Channel.CallTimeout = v.GetDuration("bridge-call-timeout")
	cfg.Bridge.Execution.MaxFailures = v.GetInt("bridge-max-failures")
	cfg.Bridge.Channel.MaxFailures = v.GetInt("bridge-max-failures")
	cfg.Bridge.Execution.ResetTimeout = v.GetDuration("bridge-reset-timeout")
	cfg.Bridge.Channel.ResetTimeout = v.GetDuration("bridge-reset-timeout")

	cfg.Gossip.Heartbeat = v.GetDuration("gossip-heartbeat")
	cfg.Gossip.CapacityDriftPct = v.GetFloat64("gossip-capacity-drift-pct")

	cfg.Promotion.MinUptimePct = v.GetFloat64("promotion-min-uptime-pct")
	cfg.Promotion.MinContribRatio = v.GetFloat64("promotion-min-contrib-ratio")
	cfg.Promotion.VouchTTL = v.GetDuration("promotion-vouch-ttl")
	cfg.Loops.VouchTTL = cfg.Promotion.VouchTTL

	return cfg, nil
}

func (c Config) DataDir(v *viper.Viper) string {
	if d := v.GetString("data-dir"); d != "" {
		return d
	}
	return "./hive-data"
}

// Copyright (C) 2025, Lux Industries Inc. All rights reserved.
// See the file LICENSE for licensing terms.

package main

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/luxfi/hive/api"
	apimetrics "github.com/luxfi/hive/api/metrics"
	"github.com/luxfi/hive/bridge"
	"github.com/luxfi/hive/config"
	"github.com/luxfi/hive/contribution"
	"github.com/luxfi/hive/dispatch"
	"github.com/luxfi/hive/governance"
	"github.com/luxfi/hive/gossip"
	"github.com/luxfi/hive/handshake"
	"github.com/luxfi/hive/host"
	"github.com/luxfi/hive/intent"
	"github.com/luxfi/hive/management"
	"github.com/luxfi/hive/member"
	"github.com/luxfi/hive/metrics"
	"github.com/luxfi/hive/planner"
	"github.com/luxfi/hive/store"
	"github.com/luxfi/log"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"golang.org/x/sync/errgroup"
)

// agent bundles every wired component the serve command needs to run and
// to shut down in reverse dependency order.
type agent struct {
	db *store.Store
	// dispatcher.HandleFrame is the inbound entry point a host-node
	// adapter calls per received custom message. It has no caller here
	// since this tree ships no such adapter (see newHostNode).
	dispatcher *dispatch.Dispatcher
	supervisor *dispatch.Supervisor
	mgmtSrv    *http.Server
	metricsSrv *http.Server
}

func serveCmd() *cobra.Command {
	v := viper.New()
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "run the Hive overlay agent",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load(v)
			if err != nil {
				return err
			}
			a, err := buildAgent(cfg, v)
			if err != nil {
				return err
			}
			return a.run(cmd.Context())
		},
	}
	config.BindFlags(cmd, v)
	cmd.Flags().String("lightning-node-endpoint", "", "the co-resident Lightning node's RPC endpoint")
	cmd.Flags().String("management-listen", "127.0.0.1:8745", "management JSON-RPC + health listen address")
	cmd.Flags().String("metrics-listen", "127.0.0.1:8746", "Prometheus /metrics listen address")
	v.BindPFlag("lightning_node_endpoint", cmd.Flags().Lookup("lightning-node-endpoint"))
	v.BindPFlag("management_listen", cmd.Flags().Lookup("management-listen"))
	v.BindPFlag("metrics_listen", cmd.Flags().Lookup("metrics-listen"))
	return cmd
}

func buildAgent(cfg config.Config, v *viper.Viper) (*agent, error) {
	logger := log.New("component", "hive-agent")

	db, err := store.Open(cfg.DataDir(v), logger)
	if err != nil {
		return nil, fmt.Errorf("hive-agent: opening store: %w", err)
	}

	node, exec, chanMgr, err := newHostNode(hostNodeConfig{Endpoint: v.GetString("lightning_node_endpoint")})
	if err != nil {
		db.Close()
		return nil, err
	}

	reg := apimetrics.NewRegistry()
	m := metrics.New(reg)

	members := member.New(db, logger)
	br := bridge.New(cfg.Bridge, exec, chanMgr, m, logger)
	if err := br.DetectFeatures(context.Background()); err != nil {
		db.Close()
		return nil, err
	}
	hs := handshake.New(handshake.Config{Challenge: cfg.Challenge, TicketedAdmission: cfg.TicketedAdmission, AdminPubkey: cfg.Admin}, node, members, logger)
	gossipM := gossip.New(db, cfg.Gossip, m, logger)
	ledger := contribution.New(db, cfg.Contribution)

	fanout := dispatch.NewFanout(node, members, logger)
	gov := governance.New(cfg.Governance, db, br, fanout, m, logger)
	actions := dispatch.NewActionRunner(gov, node.Pubkey())
	intentM := intent.New(cfg.Intent, db, node.Pubkey(), fanout, actions, m, logger)

	plannerM := planner.New(cfg.Planner, db, node, members, gov, intentM, m, logger)

	dispCfg := dispatch.Config{MaxFullSyncStates: cfg.MaxFullSyncStates, HiveID: cfg.HiveID, Promotion: cfg.Promotion}
	disp := dispatch.New(dispCfg, node, db, members, hs, gossipM, intentM, gov, logger)

	supervisor := dispatch.NewSupervisor(cfg.Loops, db, node, gossipM, intentM, members, ledger, gov, plannerM, fanout, m, logger)

	if src, ok := node.(host.EventSource); ok {
		go consumeHostEvents(db, ledger, members, src, logger)
	}

	svc := management.New(cfg.HiveID, cfg.Admin, node.Pubkey(), node, db, members, gov, gossipM, plannerM, fanout, br, intentM, cfg.Promotion, cfg.Loops.IntentHold, cfg.Loops.IntentHorizon, node.Sign, logger)
	rpcHandler, err := management.NewHandler(svc)
	if err != nil {
		db.Close()
		return nil, err
	}

	mgmtMux := http.NewServeMux()
	mgmtMux.Handle("/rpc", rpcHandler)
	mgmtMux.HandleFunc("/healthz", func(w http.ResponseWriter, r *http.Request) {
		report, err := svc.HealthCheck(r.Context())
		if err != nil {
			api.WriteError(w, http.StatusInternalServerError, err)
			return
		}
		api.WriteSuccess(w, report)
	})

	metricsMux := http.NewServeMux()
	metricsMux.Handle("/metrics", promhttp.HandlerFor(reg, promhttp.HandlerOpts{}))

	return &agent{
		db:         db,
		dispatcher: disp,
		supervisor: supervisor,
		mgmtSrv:    &http.Server{Addr: v.GetString("management_listen"), Handler: mgmtMux},
		metricsSrv: &http.Server{Addr: v.GetString("metrics_listen"), Handler: metricsMux},
	}, nil
}

func (a *agent) run(ctx context.Context) error {
	defer a.db.Close()

	g, ctx := errgroup.WithContext(ctx)
	g.Go(func() error { return a.supervisor.Run(ctx) })
	g.Go(func() error {
		if err := a.mgmtSrv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			return err
		}
		return nil
	})
	g.Go(func() error {
		if err := a.metricsSrv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			return err
		}
		return nil
	})
	g.Go(func() error {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		a.mgmtSrv.Shutdown(shutdownCtx)
		a.metricsSrv.Shutdown(shutdownCtx)
		return nil
	})
	return g.Wait()
}

// consumeHostEvents feeds the host node's forward/presence notifications
// into contribution accounting and membership last-seen tracking, for a
// node implementation that also exposes host.EventSource. It runs until
// both channels close, logging and continuing on any single event's
// error rather than tearing down the agent over one bad record.
func consumeHostEvents(db *store.Store, ledger *contribution.Ledger, members *member.Registry, src host.EventSource, logger log.Logger) {
	forwards := src.Forwards()
	presence := src.Presence()
	for forwards != nil || presence != nil {
		select {
		case ev, ok := <-forwards:
			if !ok {
				forwards = nil
				continue
			}
			if err := contribution.RecordForward(db, ledger, members, ev); err != nil {
				logger.Warn("hive-agent: recording forward event", "err", err)
			}
		case ev, ok := <-presence:
			if !ok {
				presence = nil
				continue
			}
			if ev.Connected {
				if err := members.Touch(ev.Peer, ev.Timestamp); err != nil {
					logger.Warn("hive-agent: recording presence event", "err", err)
				}
			}
		}
	}
}

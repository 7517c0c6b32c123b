// Copyright (C) 2025, Lux Industries Inc. All rights reserved.
// See the file LICENSE for licensing terms.

package management

import (
	"context"
	"net/http"
	"time"

	"github.com/luxfi/hive/api/health"
)

// HealthArgs requests a full health report.
type HealthArgs struct {
	Auth
}

// HealthReply carries the health.Report the checker produced.
type HealthReply struct {
	Report health.Report `json:"report"`
}

// Health implements health.Checkable over this node's two Bridge breaker
// states (gossip staleness is not checked), the supplemented health-reporting
// feature spec §6.5's "introspection open to any tier" already implies.
func (s *Service) Health(ctx context.Context) (interface{}, error) {
	start := time.Now()
	checks := []health.Check{
		s.checkBreaker("execution_breaker", s.bridge.ExecutionState()),
		s.checkBreaker("channel_breaker", s.bridge.ChannelState()),
	}

	healthy := true
	for _, c := range checks {
		if !c.Healthy {
			healthy = false
			break
		}
	}

	return health.Report{
		Healthy:  healthy,
		Checks:   checks,
		Duration: time.Since(start),
	}, nil
}

func (s *Service) checkBreaker(name string, state interface{ String() string }) health.Check {
	start := time.Now()
	str := state.String()
	return health.Check{
		Name:     name,
		Healthy:  str != "open",
		Details:  map[string]interface{}{"state": str},
		Duration: time.Since(start),
	}
}

// HealthCheck implements health.Checker over the same report, for a
// caller that only wants the report without going through JSON-RPC's
// Auth envelope (e.g. a liveness-probe HTTP handler).
func (s *Service) HealthCheck(ctx context.Context) (interface{}, error) {
	return s.Health(ctx)
}

// HealthRPC is the JSON-RPC-registered method name (gorilla/rpc requires
// the exact four-argument shape; Health/HealthCheck above satisfy
// health.Checkable/health.Checker for a non-RPC caller instead).
func (s *Service) HealthRPC(r *http.Request, args *HealthArgs, reply *HealthReply) error {
	if err := s.authorize(r.Context(), args.Auth, nil, LevelAny); err != nil {
		return err
	}
	rep, err := s.Health(r.Context())
	if err != nil {
		return err
	}
	reply.Report = rep.(health.Report)
	return nil
}

var (
	_ health.Checkable = (*Service)(nil)
	_ health.Checker   = (*Service)(nil)
)

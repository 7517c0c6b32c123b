// Copyright (C) 2025, Lux Industries Inc. All rights reserved.
// See the file LICENSE for licensing terms.

package governance

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"time"

	"github.com/hashicorp/go-retryablehttp"
	"github.com/luxfi/hive/types"
)

// OracleConfig bounds the oracle governance mode's HTTP call (spec
// §4.7): a strict timeout and exactly one retry.
type OracleConfig struct {
	URL     string
	Timeout time.Duration // <= 5s
}

// DecisionPacket is POSTed to the configured oracle URL.
type DecisionPacket struct {
	ActionType types.ActionType  `json:"action_type"`
	Target     string            `json:"target"`
	Context    map[string]string `json:"context"`
	Timestamp  time.Time         `json:"timestamp"`
}

// Decision is the oracle's parsed response.
type Decision struct {
	Decision string `json:"decision"` // APPROVE | DENY
	Reason   string `json:"reason"`
}

type oracleClient struct {
	cfg OracleConfig
	hc  *retryablehttp.Client
}

func newOracleClient(cfg OracleConfig) *oracleClient {
	hc := retryablehttp.NewClient()
	hc.RetryMax = 1 // spec §4.7: "one retry"
	hc.Logger = nil
	hc.CheckRetry = func(ctx context.Context, resp *http.Response, err error) (bool, error) {
		if ctx.Err() != nil {
			return false, ctx.Err()
		}
		if err != nil {
			return true, nil // network error: retry once
		}
		return false, nil // got a response at all, even a bad one: don't retry further
	}
	return &oracleClient{cfg: cfg, hc: hc}
}

// decideOracle builds a DecisionPacket, POSTs it with a strict timeout
// and one retry, and parses {decision, reason}. On any network or parse
// failure it falls back to advisor mode — the action is simply left
// pending for out-of-band approval, per §4.7's "never auto-execute" rule.
func (e *Engine) decideOracle(ctx context.Context, a types.PendingAction) error {
	packet := DecisionPacket{
		ActionType: a.Type,
		Target:     a.Target,
		Context:    a.Params,
		Timestamp:  a.ProposedAt,
	}
	decision, err := e.oracle.ask(ctx, packet)
	if err != nil {
		e.log.Info("governance: oracle unavailable, falling back to advisor", "id", a.ID, "err", err)
		return nil // stays ActionPending, exactly as advisor mode leaves it
	}
	if decision.Decision != "APPROVE" {
		return e.reject(a)
	}
	return e.execute(ctx, a)
}

func (c *oracleClient) ask(ctx context.Context, packet DecisionPacket) (Decision, error) {
	body, err := json.Marshal(packet)
	if err != nil {
		return Decision{}, err
	}

	ctx, cancel := context.WithTimeout(ctx, c.cfg.Timeout)
	defer cancel()

	req, err := retryablehttp.NewRequestWithContext(ctx, http.MethodPost, c.cfg.URL, bytes.NewReader(body))
	if err != nil {
		return Decision{}, err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.hc.Do(req)
	if err != nil {
		return Decision{}, err
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(io.LimitReader(resp.Body, 1<<16))
	if err != nil {
		return Decision{}, err
	}
	var d Decision
	if err := json.Unmarshal(raw, &d); err != nil {
		return Decision{}, err
	}
	return d, nil
}

// Copyright (C) 2025, Lux Industries Inc. All rights reserved.
// See the file LICENSE for licensing terms.

package main

import (
	"github.com/cockroachdb/errors"
	"github.com/luxfi/hive/host"
)

// newHostNode constructs the host.Node/host.ExecutionSubsystem/
// host.ChannelManager adapter the running Lightning node supplies in
// production. host.Node documents these as OUT-OF-SCOPE collaborators
// ("production wiring supplies one adapter per collaborator") — no such
// adapter ships in this tree, so serve refuses to start without one
// instead of silently running against a fake node.
//
// TODO: wire this to the chosen Lightning implementation's client (e.g.
// an lnd lnrpc.LightningClient adapter) once that implementation is
// selected for deployment.
func newHostNode(cfg hostNodeConfig) (host.Node, host.ExecutionSubsystem, host.ChannelManager, error) {
	if cfg.Endpoint == "" {
		return nil, nil, nil, errors.New("hive-agent: no --lightning-node-endpoint configured; see cmd/hive-agent/hostnode.go")
	}
	return nil, nil, nil, errors.Newf("hive-agent: no Lightning node adapter implements %q; see cmd/hive-agent/hostnode.go", cfg.Endpoint)
}

// hostNodeConfig is the connection info an adapter would need to reach
// the host Lightning node and its co-resident execution/channel
// subsystems.
type hostNodeConfig struct {
	Endpoint string
	TLSCert  string
	Macaroon string
}

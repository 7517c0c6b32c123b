// Copyright (C) 2020-2025, Lux Industries, Inc. All rights reserved.
// See the file LICENSE for licensing terms.

package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
)

// This package keeps the teacher's Registry plumbing for the agent's
// /metrics endpoint. The teacher's MultiGatherer exists to combine
// several chains'/VMs' independently-registered gatherers into one
// /metrics response; a single hive-agent process has exactly one
// metrics source (metrics.Metrics, registered directly into the
// Registry below), so that indirection has nothing to combine here
// and is dropped along with the unused Registerer alias and the
// prism-counting Metrics/NewMetrics type (see metrics.Metrics for the
// real one).

// Registry is an interface for prometheus registry
type Registry interface {
	prometheus.Registerer
	prometheus.Gatherer
}

// NewRegistry creates a new prometheus registry
func NewRegistry() Registry {
	return prometheus.NewRegistry()
}


// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Driftline Contributors

package gateway

import (
	"github.com/prometheus/client_golang/prometheus"
)

// ActiveConnections is the gauge of currently open websockets, labeled
// by socket kind ("chat" or "notification"). Use RegisterMetrics to
// register this with a Prometheus registry.
var ActiveConnections = prometheus.NewGaugeVec(
	prometheus.GaugeOpts{
		Name: "driftline_gateway_connections",
		Help: "Number of currently open websocket connections by kind",
	},
	[]string{"kind"},
)

// Rejections is the counter for connection attempts rejected before the
// websocket upgrade, labeled by reason.
var Rejections = prometheus.NewCounterVec(
	prometheus.CounterOpts{
		Name: "driftline_gateway_rejections_total",
		Help: "Total number of connection attempts rejected before upgrade",
	},
	[]string{"reason"},
)

// InboundActions is the counter for client actions received on a
// socket, labeled by action type.
var InboundActions = prometheus.NewCounterVec(
	prometheus.CounterOpts{
		Name: "driftline_gateway_inbound_actions_total",
		Help: "Total number of inbound client actions by type",
	},
	[]string{"type"},
)

// RegisterMetrics registers gateway metrics with the given Prometheus
// registry. Panics if registration fails (prometheus convention).
func RegisterMetrics(reg prometheus.Registerer) {
	reg.MustRegister(ActiveConnections)
	reg.MustRegister(Rejections)
	reg.MustRegister(InboundActions)
}

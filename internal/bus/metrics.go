// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Driftline Contributors

package bus

import (
	"strings"

	"github.com/prometheus/client_golang/prometheus"
)

// Publishes is the counter for bus publishes, labeled by channel kind
// ("room" or "user") rather than full channel name to keep cardinality
// bounded. Use RegisterMetrics to register this with a Prometheus
// registry.
var Publishes = prometheus.NewCounterVec(
	prometheus.CounterOpts{
		Name: "driftline_bus_publishes_total",
		Help: "Total number of bus publishes by channel kind",
	},
	[]string{"kind"},
)

// Deliveries is the counter for payloads delivered to a subscriber
// queue.
var Deliveries = prometheus.NewCounter(
	prometheus.CounterOpts{
		Name: "driftline_bus_deliveries_total",
		Help: "Total number of payloads delivered to subscriber queues",
	},
)

// Drops is the counter for payloads dropped because a subscriber queue
// was full or the connection was closed.
var Drops = prometheus.NewCounter(
	prometheus.CounterOpts{
		Name: "driftline_bus_drops_total",
		Help: "Total number of payloads dropped before delivery",
	},
)

// RegisterMetrics registers bus metrics with the given Prometheus
// registry. Panics if registration fails (prometheus convention).
func RegisterMetrics(reg prometheus.Registerer) {
	reg.MustRegister(Publishes)
	reg.MustRegister(Deliveries)
	reg.MustRegister(Drops)
}

// RecordPublish increments the publish counter for a channel.
func RecordPublish(channel string) {
	kind, _, found := strings.Cut(channel, ":")
	if !found {
		kind = "unknown"
	}
	Publishes.WithLabelValues(kind).Inc()
}

// RecordDelivery increments the delivery counter.
func RecordDelivery() {
	Deliveries.Inc()
}

// RecordDrop increments the drop counter.
func RecordDrop() {
	Drops.Inc()
}

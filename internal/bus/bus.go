// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Driftline Contributors

// Package bus distributes fan-out payloads to subscribed connections.
package bus

import (
	"context"
	"log/slog"

	"github.com/driftline/driftline/internal/registry"
)

// Publisher delivers a payload to every connection currently subscribed
// to a channel. Delivery is best-effort: nothing is persisted or
// replayed, and a connection that subscribes after the publish never
// sees the payload.
type Publisher interface {
	Publish(ctx context.Context, channel string, payload []byte) error
}

// Local delivers to connections held by this process.
type Local struct {
	registry *registry.Registry
}

// NewLocal creates a bus over the given registry.
func NewLocal(reg *registry.Registry) *Local {
	return &Local{registry: reg}
}

// Publish sends the payload to every current subscriber of the channel.
// A subscriber with a full buffer misses the payload; it is counted and
// logged, never blocked on.
func (b *Local) Publish(_ context.Context, channel string, payload []byte) error {
	members := b.registry.ChannelMembers(channel)
	RecordPublish(channel)

	for _, conn := range members {
		if conn.Send(payload) {
			RecordDelivery()
			continue
		}
		RecordDrop()
		slog.Warn("fanout payload dropped",
			"channel", channel,
			"conn_id", conn.ID.String(),
		)
	}
	return nil
}

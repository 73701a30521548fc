// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Driftline Contributors

package bus

import (
	"context"
	"log/slog"
	"strings"

	"github.com/nats-io/nats.go"
	"github.com/samber/oops"

	"github.com/driftline/driftline/internal/registry"
)

// Message headers used on the relay subjects.
const (
	headerChannel = "Driftline-Channel"
	headerOrigin  = "Driftline-Origin"
)

// Relay extends the local bus across gateway instances through NATS.
// A publish is delivered to this process's subscribers directly and
// mirrored to a NATS subject; deliveries arriving from other instances
// re-enter the local bus. Messages carry the origin instance id so a
// process never re-delivers its own publishes.
type Relay struct {
	local    *Local
	nc       *nats.Conn
	sub      *nats.Subscription
	prefix   string
	originID string
}

// NewRelay connects to NATS and starts relaying. The subject prefix
// namespaces all traffic (e.g. "driftline.bus").
func NewRelay(url, prefix string, local *Local) (*Relay, error) {
	nc, err := nats.Connect(url,
		nats.Name("driftline-gateway"),
		nats.MaxReconnects(-1),
	)
	if err != nil {
		return nil, oops.Code("BUS_NATS_CONNECT_FAILED").
			With("url", url).
			Wrap(err)
	}

	r := &Relay{
		local:    local,
		nc:       nc,
		prefix:   prefix,
		originID: registry.NewULID().String(),
	}

	sub, err := nc.Subscribe(prefix+".>", r.handle)
	if err != nil {
		nc.Close()
		return nil, oops.Code("BUS_NATS_SUBSCRIBE_FAILED").
			With("subject", prefix+".>").
			Wrap(err)
	}
	r.sub = sub

	slog.Info("bus relay connected", "url", url, "prefix", prefix)
	return r, nil
}

// Publish delivers locally and mirrors to NATS. A NATS publish failure
// is returned so the dispatcher can retry; local subscribers have
// already been served at that point (best-effort, at-most-once per
// successful publish call).
func (r *Relay) Publish(ctx context.Context, channel string, payload []byte) error {
	if err := r.local.Publish(ctx, channel, payload); err != nil {
		return err
	}

	msg := &nats.Msg{
		Subject: SubjectFor(r.prefix, channel),
		Data:    payload,
		Header:  nats.Header{},
	}
	msg.Header.Set(headerChannel, channel)
	msg.Header.Set(headerOrigin, r.originID)

	if err := r.nc.PublishMsg(msg); err != nil {
		return oops.Code("BUS_NATS_PUBLISH_FAILED").
			With("channel", channel).
			Wrap(err)
	}
	return nil
}

func (r *Relay) handle(m *nats.Msg) {
	if m.Header.Get(headerOrigin) == r.originID {
		return
	}
	channel := m.Header.Get(headerChannel)
	if channel == "" {
		channel = ChannelFromSubject(r.prefix, m.Subject)
	}
	if channel == "" {
		slog.Warn("relay message without channel", "subject", m.Subject)
		return
	}
	if err := r.local.Publish(context.Background(), channel, m.Data); err != nil {
		slog.Error("relay local publish failed", "channel", channel, "error", err)
	}
}

// Close drains the subscription and closes the NATS connection.
func (r *Relay) Close() {
	if err := r.sub.Drain(); err != nil {
		slog.Debug("error draining relay subscription", "error", err)
	}
	r.nc.Close()
}

// SubjectFor maps a channel name to a NATS subject under the prefix.
// Channel kind and name become subject tokens: "room:alice-bob" →
// "<prefix>.room.alice-bob".
func SubjectFor(prefix, channel string) string {
	return prefix + "." + strings.ReplaceAll(channel, ":", ".")
}

// ChannelFromSubject reverses SubjectFor. Returns "" if the subject is
// not under the prefix. Channel names never contain a dot, so only the
// first token separator maps back to ":".
func ChannelFromSubject(prefix, subject string) string {
	rest, found := strings.CutPrefix(subject, prefix+".")
	if !found {
		return ""
	}
	kind, name, found := strings.Cut(rest, ".")
	if !found {
		return ""
	}
	return kind + ":" + name
}

// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Driftline Contributors

// Package registry tracks live client connections and their channel
// subscriptions.
package registry

import (
	"hash/fnv"
	"log/slog"
	"sync"

	"github.com/oklog/ulid/v2"
)

// shardCount is the number of channel shards. Membership for unrelated
// channels lives behind different locks so publish traffic on one room
// never serializes against another.
const shardCount = 32

// Connection is one live socket. The gateway is the only component that
// creates or closes connections; everything else holds them through the
// registry.
type Connection struct {
	ID       ulid.ULID
	Username string // empty for anonymous connections

	outbound  chan []byte
	done      chan struct{}
	closeOnce sync.Once
}

// NewConnection creates a connection with a buffered outbound queue.
func NewConnection(username string, buffer int) *Connection {
	return &Connection{
		ID:       NewULID(),
		Username: username,
		outbound: make(chan []byte, buffer),
		done:     make(chan struct{}),
	}
}

// Send queues a payload for delivery. It never blocks: if the connection
// is closed or its buffer is full the payload is dropped and Send
// returns false.
func (c *Connection) Send(payload []byte) bool {
	select {
	case <-c.done:
		return false
	default:
	}
	select {
	case c.outbound <- payload:
		return true
	default:
		slog.Warn("payload dropped: connection buffer full",
			"conn_id", c.ID.String(),
			"username", c.Username,
		)
		return false
	}
}

// Outbound returns the queue the write pump drains.
func (c *Connection) Outbound() <-chan []byte {
	return c.outbound
}

// Close marks the connection dead. Idempotent.
func (c *Connection) Close() {
	c.closeOnce.Do(func() {
		close(c.done)
	})
}

// Done is closed when the connection has been closed.
func (c *Connection) Done() <-chan struct{} {
	return c.done
}

type shard struct {
	mu       sync.RWMutex
	channels map[string]map[ulid.ULID]*Connection
}

// Registry maps channel names to the live connections subscribed to
// them. Channel membership is sharded by channel name; the connection
// index is a separate map so Unregister can find every subscription
// without scanning shards.
type Registry struct {
	shards [shardCount]shard

	mu    sync.RWMutex
	conns map[ulid.ULID]*Connection
	subs  map[ulid.ULID]map[string]struct{}
}

// New creates an empty registry.
func New() *Registry {
	r := &Registry{
		conns: make(map[ulid.ULID]*Connection),
		subs:  make(map[ulid.ULID]map[string]struct{}),
	}
	for i := range r.shards {
		r.shards[i].channels = make(map[string]map[ulid.ULID]*Connection)
	}
	return r
}

func (r *Registry) shardFor(channel string) *shard {
	h := fnv.New32a()
	h.Write([]byte(channel))
	return &r.shards[h.Sum32()%shardCount]
}

// Register adds a connection to the registry with no subscriptions.
func (r *Registry) Register(conn *Connection) {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.conns[conn.ID] = conn
	if _, ok := r.subs[conn.ID]; !ok {
		r.subs[conn.ID] = make(map[string]struct{})
	}
}

// Subscribe adds a connection to a channel. Idempotent; registering is
// implied if the connection is unknown.
func (r *Registry) Subscribe(conn *Connection, channel string) {
	r.mu.Lock()
	if _, ok := r.conns[conn.ID]; !ok {
		r.conns[conn.ID] = conn
		r.subs[conn.ID] = make(map[string]struct{})
	}
	r.subs[conn.ID][channel] = struct{}{}
	r.mu.Unlock()

	s := r.shardFor(channel)
	s.mu.Lock()
	defer s.mu.Unlock()
	set, ok := s.channels[channel]
	if !ok {
		set = make(map[ulid.ULID]*Connection)
		s.channels[channel] = set
	}
	set[conn.ID] = conn
}

// Unsubscribe removes a connection from a channel. Unknown pairs are a
// no-op.
func (r *Registry) Unsubscribe(connID ulid.ULID, channel string) {
	r.mu.Lock()
	if set, ok := r.subs[connID]; ok {
		delete(set, channel)
	}
	r.mu.Unlock()

	r.removeFromChannel(connID, channel)
}

// Unregister removes a connection from every channel it was subscribed
// to and closes it. Calling it twice, or with an id that was never
// registered, is a no-op: disconnects race with error teardown and both
// paths funnel here.
func (r *Registry) Unregister(connID ulid.ULID) {
	r.mu.Lock()
	conn, known := r.conns[connID]
	channels := r.subs[connID]
	delete(r.conns, connID)
	delete(r.subs, connID)
	r.mu.Unlock()

	if !known {
		return
	}

	// Close first so concurrent publishers stop delivering before the
	// membership entries disappear.
	conn.Close()
	for channel := range channels {
		r.removeFromChannel(connID, channel)
	}

	slog.Debug("connection unregistered",
		"conn_id", connID.String(),
		"channels", len(channels),
	)
}

func (r *Registry) removeFromChannel(connID ulid.ULID, channel string) {
	s := r.shardFor(channel)
	s.mu.Lock()
	defer s.mu.Unlock()
	set, ok := s.channels[channel]
	if !ok {
		return
	}
	delete(set, connID)
	if len(set) == 0 {
		delete(s.channels, channel)
	}
}

// ChannelMembers returns the connections currently subscribed to a
// channel. The slice is a copy; the membership set may change as soon as
// the shard lock is released.
func (r *Registry) ChannelMembers(channel string) []*Connection {
	s := r.shardFor(channel)
	s.mu.RLock()
	defer s.mu.RUnlock()

	set := s.channels[channel]
	if len(set) == 0 {
		return nil
	}
	members := make([]*Connection, 0, len(set))
	for _, conn := range set {
		members = append(members, conn)
	}
	return members
}

// Len returns the number of registered connections.
func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.conns)
}

// Channels returns the channels a connection is subscribed to.
func (r *Registry) Channels(connID ulid.ULID) []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	set, ok := r.subs[connID]
	if !ok {
		return nil
	}
	channels := make([]string, 0, len(set))
	for channel := range set {
		channels = append(channels, channel)
	}
	return channels
}

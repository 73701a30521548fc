// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Driftline Contributors

package gateway

import (
	"context"
	"log/slog"
	"time"

	"github.com/gorilla/websocket"

	"github.com/driftline/driftline/internal/registry"
)

const (
	// writeWait bounds a single websocket write.
	writeWait = 10 * time.Second
	// pongWait is how long a socket may stay silent before the read
	// pump gives up on it.
	pongWait = 60 * time.Second
	// pingPeriod must be shorter than pongWait.
	pingPeriod = (pongWait * 9) / 10
	// maxMessageSize bounds an inbound frame. Larger than the message
	// body limit to leave headroom for the JSON envelope.
	maxMessageSize = 8192
)

// session ties one websocket to its registry connection and runs the
// read and write pumps. When either pump stops the session unregisters
// the connection exactly once and the other pump follows.
type session struct {
	kind     string // "chat" or "notification", metrics label
	ws       *websocket.Conn
	conn     *registry.Connection
	registry *registry.Registry
	handle   func(ctx context.Context, raw []byte) error
}

// run blocks until the socket closes. The write pump runs in a
// separate goroutine; the read pump runs on the caller.
func (s *session) run(ctx context.Context) {
	ActiveConnections.WithLabelValues(s.kind).Inc()
	defer ActiveConnections.WithLabelValues(s.kind).Dec()
	defer s.registry.Unregister(s.conn.ID)

	go s.writePump()
	s.readPump(ctx)
}

func (s *session) readPump(ctx context.Context) {
	defer s.conn.Close()

	s.ws.SetReadLimit(maxMessageSize)
	_ = s.ws.SetReadDeadline(time.Now().Add(pongWait))
	s.ws.SetPongHandler(func(string) error {
		return s.ws.SetReadDeadline(time.Now().Add(pongWait))
	})

	for {
		_, raw, err := s.ws.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				slog.Debug("socket read failed",
					"conn_id", s.conn.ID.String(),
					"username", s.conn.Username,
					"error", err)
			}
			return
		}
		if err := s.handle(ctx, raw); err != nil {
			// A bad action closes nothing; the client may retry.
			slog.Warn("client action rejected",
				"conn_id", s.conn.ID.String(),
				"username", s.conn.Username,
				"error", err)
		}
	}
}

func (s *session) writePump() {
	ticker := time.NewTicker(pingPeriod)
	defer ticker.Stop()
	defer func() {
		_ = s.ws.Close()
	}()

	for {
		select {
		case payload := <-s.conn.Outbound():
			_ = s.ws.SetWriteDeadline(time.Now().Add(writeWait))
			if err := s.ws.WriteMessage(websocket.TextMessage, payload); err != nil {
				s.conn.Close()
				return
			}
		case <-ticker.C:
			_ = s.ws.SetWriteDeadline(time.Now().Add(writeWait))
			if err := s.ws.WriteMessage(websocket.PingMessage, nil); err != nil {
				s.conn.Close()
				return
			}
		case <-s.conn.Done():
			_ = s.ws.SetWriteDeadline(time.Now().Add(writeWait))
			_ = s.ws.WriteMessage(websocket.CloseMessage,
				websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
			return
		}
	}
}

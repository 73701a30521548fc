// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Driftline Contributors

// Package gateway exposes the websocket endpoints clients connect to
// for realtime chat and notifications.
package gateway

import (
	"context"
	"errors"
	"log/slog"
	"net"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/gorilla/websocket"
	"github.com/oklog/ulid/v2"

	"github.com/driftline/driftline/internal/auth"
	"github.com/driftline/driftline/internal/chat"
	"github.com/driftline/driftline/internal/notify"
	"github.com/driftline/driftline/internal/registry"
	"github.com/driftline/driftline/internal/social"
)

const (
	// sendBuffer is the per-connection outbound queue size.
	sendBuffer = 64
	// backlogLimit caps how many recent messages a connecting chat
	// socket receives.
	backlogLimit = 50
	// shutdownTimeout bounds graceful HTTP shutdown.
	shutdownTimeout = 5 * time.Second
)

// Server is the websocket gateway.
type Server struct {
	addr       string
	tokens     auth.TokenVerifier
	users      auth.UserRepository
	authorizer *chat.Authorizer
	chats      *chat.Service
	notifs     *notify.Service
	socials    *social.Service
	registry   *registry.Registry

	upgrader websocket.Upgrader
	validate *validator.Validate

	mu       sync.RWMutex
	listener net.Listener
}

// NewServer creates a gateway server.
func NewServer(addr string, tokens auth.TokenVerifier, users auth.UserRepository, authorizer *chat.Authorizer, chats *chat.Service, notifs *notify.Service, socials *social.Service, reg *registry.Registry) *Server {
	return &Server{
		addr:       addr,
		tokens:     tokens,
		users:      users,
		authorizer: authorizer,
		chats:      chats,
		notifs:     notifs,
		socials:    socials,
		registry:   reg,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  4096,
			WriteBufferSize: 4096,
		},
		validate: validator.New(),
	}
}

// Addr returns the server's listen address.
func (s *Server) Addr() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.listener == nil {
		return ""
	}
	return s.listener.Addr().String()
}

// Handler returns the gateway's HTTP handler. Exposed for tests that
// drive the gateway through httptest.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("GET /ws/chat/{room}", s.handleChat)
	mux.HandleFunc("GET /ws/notifications", s.handleNotifications)
	mux.HandleFunc("POST /api/follows/{username}", s.handleFollow)
	mux.HandleFunc("DELETE /api/follows/{username}", s.handleUnfollow)
	mux.HandleFunc("POST /api/blocks/{username}", s.handleBlock)
	mux.HandleFunc("DELETE /api/blocks/{username}", s.handleUnblock)
	return mux
}

// Run starts the server and blocks until the context is cancelled.
func (s *Server) Run(ctx context.Context) error {
	listener, err := net.Listen("tcp", s.addr)
	if err != nil {
		return err
	}

	s.mu.Lock()
	s.listener = listener
	s.mu.Unlock()

	srv := &http.Server{
		Handler:     s.Handler(),
		BaseContext: func(net.Listener) context.Context { return ctx },
	}

	slog.Info("Gateway started", "addr", listener.Addr())

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			slog.Debug("gateway shutdown", "error", err)
		}
	}()

	if err := srv.Serve(listener); !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

// authenticate resolves the request token to a user. Websocket clients
// pass it as the token query parameter, REST clients as a bearer
// header. Failures are reported over plain HTTP, before any websocket
// upgrade.
func (s *Server) authenticate(w http.ResponseWriter, r *http.Request) (*auth.User, bool) {
	token := r.URL.Query().Get("token")
	if token == "" {
		token = strings.TrimPrefix(r.Header.Get("Authorization"), "Bearer ")
	}
	if token == "" {
		Rejections.WithLabelValues("missing_token").Inc()
		http.Error(w, "missing token", http.StatusUnauthorized)
		return nil, false
	}

	userID, err := s.tokens.Verify(token)
	if err != nil {
		Rejections.WithLabelValues("bad_token").Inc()
		http.Error(w, "invalid token", http.StatusUnauthorized)
		return nil, false
	}

	user, err := s.users.GetByID(r.Context(), userID)
	if errors.Is(err, auth.ErrNotFound) {
		Rejections.WithLabelValues("unknown_user").Inc()
		http.Error(w, "unknown user", http.StatusUnauthorized)
		return nil, false
	}
	if err != nil {
		slog.Error("user lookup failed", "user_id", userID.String(), "error", err)
		http.Error(w, "internal error", http.StatusInternalServerError)
		return nil, false
	}
	return user, true
}

func (s *Server) handleChat(w http.ResponseWriter, r *http.Request) {
	user, ok := s.authenticate(w, r)
	if !ok {
		return
	}

	room, err := s.authorizer.Authorize(r.Context(), r.PathValue("room"), user.Username)
	switch {
	case errors.Is(err, chat.ErrInvalidRoomName), errors.Is(err, chat.ErrInvalidParticipants):
		Rejections.WithLabelValues("bad_room").Inc()
		http.Error(w, "invalid room", http.StatusNotFound)
		return
	case errors.Is(err, chat.ErrForbidden):
		Rejections.WithLabelValues("forbidden").Inc()
		http.Error(w, "forbidden", http.StatusForbidden)
		return
	case err != nil:
		slog.Error("room authorization failed", "username", user.Username, "error", err)
		http.Error(w, "internal error", http.StatusInternalServerError)
		return
	}

	backlog, err := s.chats.Backlog(r.Context(), room, backlogLimit)
	if err != nil {
		slog.Error("backlog load failed", "room_name", room.Name, "error", err)
		http.Error(w, "internal error", http.StatusInternalServerError)
		return
	}

	ws, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		// Upgrade already wrote the HTTP error.
		slog.Debug("upgrade failed", "error", err)
		return
	}

	conn := registry.NewConnection(user.Username, sendBuffer)
	s.registry.Register(conn)
	s.registry.Subscribe(conn, chat.Channel(room.Name))

	// Backlog goes to this socket only; live fanout covers the rest of
	// the room.
	for _, payload := range backlog {
		conn.Send(payload)
	}

	sess := &session{
		kind:     "chat",
		ws:       ws,
		conn:     conn,
		registry: s.registry,
		handle: func(ctx context.Context, raw []byte) error {
			return s.handleChatAction(ctx, room, user, raw)
		},
	}
	sess.run(r.Context())
}

func (s *Server) handleNotifications(w http.ResponseWriter, r *http.Request) {
	user, ok := s.authenticate(w, r)
	if !ok {
		return
	}

	backlog, err := s.notifs.Backlog(r.Context(), user.ID)
	if err != nil {
		slog.Error("notification backlog load failed", "username", user.Username, "error", err)
		http.Error(w, "internal error", http.StatusInternalServerError)
		return
	}

	ws, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		slog.Debug("upgrade failed", "error", err)
		return
	}

	conn := registry.NewConnection(user.Username, sendBuffer)
	s.registry.Register(conn)
	s.registry.Subscribe(conn, notify.Channel(user.Username))

	for _, payload := range backlog {
		conn.Send(payload)
	}

	sess := &session{
		kind:     "notification",
		ws:       ws,
		conn:     conn,
		registry: s.registry,
		handle:   s.handleNotificationAction,
	}
	sess.run(r.Context())
}

func (s *Server) handleChatAction(ctx context.Context, room *chat.Room, user *auth.User, raw []byte) error {
	var action ClientAction
	if err := decode(s.validate, raw, &action); err != nil {
		return err
	}
	InboundActions.WithLabelValues(action.Type).Inc()

	switch action.Type {
	case "create":
		_, err := s.chats.CreateMessage(ctx, room, user.ID, action.Message)
		return err
	case "delete":
		id, err := ulid.Parse(action.MessageID)
		if err != nil {
			return err
		}
		return s.chats.DeleteMessage(ctx, room, id)
	}
	return nil
}

func (s *Server) handleNotificationAction(ctx context.Context, raw []byte) error {
	var action NotificationAction
	if err := decode(s.validate, raw, &action); err != nil {
		return err
	}
	InboundActions.WithLabelValues(action.Type).Inc()

	id, err := ulid.Parse(action.NotificationID)
	if err != nil {
		return err
	}
	return s.notifs.MarkSeen(ctx, id)
}

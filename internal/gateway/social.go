// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Driftline Contributors

package gateway

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"

	"github.com/driftline/driftline/internal/auth"
	"github.com/driftline/driftline/internal/social"
)

// followResponse is the body returned when a follow is created.
type followResponse struct {
	FollowID string `json:"follow_id"`
	Followee string `json:"followee"`
}

// blockResponse is the body returned when a block is created.
type blockResponse struct {
	BlockID string `json:"block_id"`
	Blocked string `json:"blocked"`
}

// target resolves the {username} path value to a user, rejecting
// unknown names with 404.
func (s *Server) target(w http.ResponseWriter, r *http.Request) (*auth.User, bool) {
	username := r.PathValue("username")
	user, err := s.users.GetByUsername(r.Context(), username)
	if errors.Is(err, auth.ErrNotFound) {
		http.Error(w, "unknown user", http.StatusNotFound)
		return nil, false
	}
	if err != nil {
		slog.Error("user lookup failed", "username", username, "error", err)
		http.Error(w, "internal error", http.StatusInternalServerError)
		return nil, false
	}
	return user, true
}

func (s *Server) handleFollow(w http.ResponseWriter, r *http.Request) {
	user, ok := s.authenticate(w, r)
	if !ok {
		return
	}
	followee, ok := s.target(w, r)
	if !ok {
		return
	}

	follow, err := s.socials.Follow(r.Context(), user.ID, followee.ID)
	switch {
	case errors.Is(err, social.ErrSelfRelation):
		http.Error(w, "cannot follow yourself", http.StatusBadRequest)
		return
	case errors.Is(err, social.ErrBlocked):
		http.Error(w, "forbidden", http.StatusForbidden)
		return
	case errors.Is(err, social.ErrAlreadyExists):
		http.Error(w, "already following", http.StatusConflict)
		return
	case err != nil:
		slog.Error("follow failed", "follower", user.Username, "followee", followee.Username, "error", err)
		http.Error(w, "internal error", http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusCreated)
	_ = json.NewEncoder(w).Encode(followResponse{
		FollowID: follow.ID.String(),
		Followee: followee.Username,
	})
}

func (s *Server) handleUnfollow(w http.ResponseWriter, r *http.Request) {
	user, ok := s.authenticate(w, r)
	if !ok {
		return
	}
	followee, ok := s.target(w, r)
	if !ok {
		return
	}

	err := s.socials.Unfollow(r.Context(), user.ID, followee.ID)
	switch {
	case errors.Is(err, social.ErrNotFound):
		http.Error(w, "not following", http.StatusNotFound)
		return
	case err != nil:
		slog.Error("unfollow failed", "follower", user.Username, "followee", followee.Username, "error", err)
		http.Error(w, "internal error", http.StatusInternalServerError)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleBlock(w http.ResponseWriter, r *http.Request) {
	user, ok := s.authenticate(w, r)
	if !ok {
		return
	}
	blocked, ok := s.target(w, r)
	if !ok {
		return
	}

	block, err := s.socials.Block(r.Context(), user.ID, blocked.ID)
	switch {
	case errors.Is(err, social.ErrSelfRelation):
		http.Error(w, "cannot block yourself", http.StatusBadRequest)
		return
	case errors.Is(err, social.ErrAlreadyExists):
		http.Error(w, "already blocked", http.StatusConflict)
		return
	case err != nil:
		slog.Error("block failed", "blocker", user.Username, "blocked", blocked.Username, "error", err)
		http.Error(w, "internal error", http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusCreated)
	_ = json.NewEncoder(w).Encode(blockResponse{
		BlockID: block.ID.String(),
		Blocked: blocked.Username,
	})
}

func (s *Server) handleUnblock(w http.ResponseWriter, r *http.Request) {
	user, ok := s.authenticate(w, r)
	if !ok {
		return
	}
	blocked, ok := s.target(w, r)
	if !ok {
		return
	}

	err := s.socials.Unblock(r.Context(), user.ID, blocked.ID)
	switch {
	case errors.Is(err, social.ErrNotFound):
		http.Error(w, "not blocked", http.StatusNotFound)
		return
	case err != nil:
		slog.Error("unblock failed", "blocker", user.Username, "blocked", blocked.Username, "error", err)
		http.Error(w, "internal error", http.StatusInternalServerError)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Driftline Contributors

package gateway

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/oklog/ulid/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/driftline/driftline/internal/auth"
	"github.com/driftline/driftline/internal/bus"
	"github.com/driftline/driftline/internal/chat"
	"github.com/driftline/driftline/internal/dispatch"
	"github.com/driftline/driftline/internal/notify"
	"github.com/driftline/driftline/internal/registry"
	"github.com/driftline/driftline/internal/social"
)

type memUsers struct {
	byID       map[ulid.ULID]*auth.User
	byUsername map[string]*auth.User
}

func newMemUsers(usernames ...string) *memUsers {
	m := &memUsers{byID: map[ulid.ULID]*auth.User{}, byUsername: map[string]*auth.User{}}
	for _, name := range usernames {
		u := &auth.User{ID: ulid.Make(), Username: name, Email: name + "@example.com", Active: true}
		m.byID[u.ID] = u
		m.byUsername[name] = u
	}
	return m
}

func (m *memUsers) Create(context.Context, *auth.User) error { return nil }

func (m *memUsers) GetByID(_ context.Context, id ulid.ULID) (*auth.User, error) {
	u, ok := m.byID[id]
	if !ok {
		return nil, auth.ErrNotFound
	}
	return u, nil
}

func (m *memUsers) GetByUsername(_ context.Context, username string) (*auth.User, error) {
	u, ok := m.byUsername[username]
	if !ok {
		return nil, auth.ErrNotFound
	}
	return u, nil
}

func (m *memUsers) GetByUsernames(_ context.Context, usernames []string) (map[string]*auth.User, error) {
	out := make(map[string]*auth.User)
	for _, name := range usernames {
		if u, ok := m.byUsername[name]; ok {
			out[name] = u
		}
	}
	return out, nil
}

func (m *memUsers) DeleteInactiveBefore(context.Context, time.Time) (int64, error) { return 0, nil }

type memRooms struct {
	byName map[string]*chat.Room
}

func (m *memRooms) GetOrCreate(_ context.Context, room *chat.Room) (*chat.Room, error) {
	if existing, ok := m.byName[room.Name]; ok {
		return existing, nil
	}
	if m.byName == nil {
		m.byName = make(map[string]*chat.Room)
	}
	m.byName[room.Name] = room
	return room, nil
}

func (m *memRooms) GetByName(_ context.Context, name string) (*chat.Room, error) {
	room, ok := m.byName[name]
	if !ok {
		return nil, chat.ErrNotFound
	}
	return room, nil
}

type memMessages struct {
	byID map[ulid.ULID]*chat.Message
}

func (m *memMessages) Create(_ context.Context, msg *chat.Message, onCommit func()) error {
	if m.byID == nil {
		m.byID = make(map[ulid.ULID]*chat.Message)
	}
	m.byID[msg.ID] = msg
	onCommit()
	return nil
}

func (m *memMessages) Delete(_ context.Context, roomID, id ulid.ULID, onCommit func(*chat.Message)) error {
	msg, ok := m.byID[id]
	if !ok || msg.RoomID != roomID {
		return chat.ErrNotFound
	}
	delete(m.byID, id)
	onCommit(msg)
	return nil
}

func (m *memMessages) GetByID(_ context.Context, id ulid.ULID) (*chat.Message, error) {
	msg, ok := m.byID[id]
	if !ok {
		return nil, chat.ErrNotFound
	}
	return msg, nil
}

func (m *memMessages) ListByRoom(_ context.Context, roomID ulid.ULID, limit int) ([]*chat.Message, error) {
	var out []*chat.Message
	for _, msg := range m.byID {
		if msg.RoomID == roomID {
			out = append(out, msg)
		}
	}
	if len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

type memNotifications struct {
	byID  map[ulid.ULID]*notify.Notification
	users *memUsers
}

func (m *memNotifications) Create(_ context.Context, n *notify.Notification, onCommit func()) error {
	if m.byID == nil {
		m.byID = make(map[ulid.ULID]*notify.Notification)
	}
	if n.ReceiverUsername == "" && m.users != nil {
		if u, ok := m.users.byID[n.ReceiverID]; ok {
			n.ReceiverUsername = u.Username
		}
	}
	m.byID[n.ID] = n
	onCommit()
	return nil
}

func (m *memNotifications) GetByID(_ context.Context, id ulid.ULID) (*notify.Notification, error) {
	n, ok := m.byID[id]
	if !ok {
		return nil, notify.ErrNotFound
	}
	return n, nil
}

func (m *memNotifications) Delete(_ context.Context, id ulid.ULID, onCommit func(*notify.Notification)) error {
	n, ok := m.byID[id]
	if !ok {
		return notify.ErrNotFound
	}
	delete(m.byID, id)
	onCommit(n)
	return nil
}

func (m *memNotifications) DeleteWhereData(_ context.Context, key, value string, onCommit func([]*notify.Notification)) error {
	var deleted []*notify.Notification
	for id, n := range m.byID {
		if v, ok := n.Data[key].(string); ok && v == value {
			deleted = append(deleted, n)
			delete(m.byID, id)
		}
	}
	onCommit(deleted)
	return nil
}

func (m *memNotifications) MarkSeen(_ context.Context, id ulid.ULID) error {
	n, ok := m.byID[id]
	if !ok {
		return notify.ErrNotFound
	}
	n.Seen = true
	return nil
}

func (m *memNotifications) UnseenForReceiver(_ context.Context, receiverID ulid.ULID, limit int) ([]*notify.Notification, error) {
	var out []*notify.Notification
	for _, n := range m.byID {
		if n.ReceiverID == receiverID && !n.Seen {
			out = append(out, n)
		}
	}
	if len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (m *memNotifications) PurgeSeenBefore(context.Context, time.Time) (int64, error) { return 0, nil }

type followKey struct{ follower, followee ulid.ULID }

type memFollows struct {
	byPair map[followKey]*social.Follow
}

func (m *memFollows) Create(_ context.Context, f *social.Follow, onCommit func()) error {
	if m.byPair == nil {
		m.byPair = make(map[followKey]*social.Follow)
	}
	key := followKey{f.FollowerID, f.FolloweeID}
	if _, ok := m.byPair[key]; ok {
		return social.ErrAlreadyExists
	}
	m.byPair[key] = f
	onCommit()
	return nil
}

func (m *memFollows) Delete(_ context.Context, followerID, followeeID ulid.ULID, onCommit func(*social.Follow)) error {
	key := followKey{followerID, followeeID}
	f, ok := m.byPair[key]
	if !ok {
		return social.ErrNotFound
	}
	delete(m.byPair, key)
	onCommit(f)
	return nil
}

func (m *memFollows) DeleteBetween(_ context.Context, a, b ulid.ULID, onCommit func([]*social.Follow)) error {
	var deleted []*social.Follow
	for _, key := range []followKey{{a, b}, {b, a}} {
		if f, ok := m.byPair[key]; ok {
			deleted = append(deleted, f)
			delete(m.byPair, key)
		}
	}
	onCommit(deleted)
	return nil
}

func (m *memFollows) Followers(_ context.Context, followeeID ulid.ULID) ([]ulid.ULID, error) {
	var out []ulid.ULID
	for key := range m.byPair {
		if key.followee == followeeID {
			out = append(out, key.follower)
		}
	}
	return out, nil
}

type blockKey struct{ blocker, blocked ulid.ULID }

type memBlocks struct {
	byPair map[blockKey]*social.Block
}

func (m *memBlocks) Create(_ context.Context, b *social.Block, onCommit func()) error {
	if m.byPair == nil {
		m.byPair = make(map[blockKey]*social.Block)
	}
	key := blockKey{b.BlockerID, b.BlockedID}
	if _, ok := m.byPair[key]; ok {
		return social.ErrAlreadyExists
	}
	m.byPair[key] = b
	onCommit()
	return nil
}

func (m *memBlocks) Delete(_ context.Context, blockerID, blockedID ulid.ULID) error {
	key := blockKey{blockerID, blockedID}
	if _, ok := m.byPair[key]; !ok {
		return social.ErrNotFound
	}
	delete(m.byPair, key)
	return nil
}

func (m *memBlocks) Exists(_ context.Context, a, b ulid.ULID) (bool, error) {
	_, forward := m.byPair[blockKey{a, b}]
	_, reverse := m.byPair[blockKey{b, a}]
	return forward || reverse, nil
}

// inlineEnqueuer runs jobs synchronously so fanout completes before the
// write path returns.
type inlineEnqueuer struct{}

func (inlineEnqueuer) Enqueue(job dispatch.Job) { _ = job.Run(context.Background()) }

type fixture struct {
	server        *httptest.Server
	tokens        *auth.Tokens
	users         *memUsers
	messages      *memMessages
	notifications *memNotifications
	follows       *memFollows
	blocks        *memBlocks
}

func newFixture(t *testing.T, usernames ...string) *fixture {
	t.Helper()

	users := newMemUsers(usernames...)
	rooms := &memRooms{}
	messages := &memMessages{}
	notifications := &memNotifications{users: users}
	follows := &memFollows{}
	blocks := &memBlocks{}

	reg := registry.New()
	publisher := bus.NewLocal(reg)
	enq := inlineEnqueuer{}

	tokens, err := auth.NewTokens("test-secret", time.Hour)
	require.NoError(t, err)

	notifSvc := notify.NewService(notifications, enq, publisher)

	srv := NewServer("127.0.0.1:0",
		tokens,
		users,
		chat.NewAuthorizer(users, rooms),
		chat.NewService(messages, enq, publisher),
		notifSvc,
		social.NewService(follows, blocks, notifSvc, enq),
		reg,
	)

	ts := httptest.NewServer(srv.Handler())
	t.Cleanup(ts.Close)

	return &fixture{
		server:        ts,
		tokens:        tokens,
		users:         users,
		messages:      messages,
		notifications: notifications,
		follows:       follows,
		blocks:        blocks,
	}
}

// api performs an authenticated REST call as the given user.
func (f *fixture) api(t *testing.T, method, path, username string) *http.Response {
	t.Helper()
	token, err := f.tokens.Issue(f.users.byUsername[username].ID)
	require.NoError(t, err)

	req, err := http.NewRequest(method, f.server.URL+path, nil)
	require.NoError(t, err)
	req.Header.Set("Authorization", "Bearer "+token)

	resp, err := f.server.Client().Do(req)
	require.NoError(t, err)
	t.Cleanup(func() { _ = resp.Body.Close() })
	return resp
}

func (f *fixture) wsURL(t *testing.T, path, username string) string {
	t.Helper()
	token, err := f.tokens.Issue(f.users.byUsername[username].ID)
	require.NoError(t, err)
	return "ws" + strings.TrimPrefix(f.server.URL, "http") + path + "?token=" + token
}

func dial(t *testing.T, url string) *websocket.Conn {
	t.Helper()
	ws, resp, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	if resp != nil {
		_ = resp.Body.Close()
	}
	t.Cleanup(func() { _ = ws.Close() })
	return ws
}

func readPayload(t *testing.T, ws *websocket.Conn) chat.BroadcastPayload {
	t.Helper()
	require.NoError(t, ws.SetReadDeadline(time.Now().Add(2*time.Second)))
	_, raw, err := ws.ReadMessage()
	require.NoError(t, err)
	var payload chat.BroadcastPayload
	require.NoError(t, json.Unmarshal(raw, &payload))
	return payload
}

func TestChatRoundTrip(t *testing.T) {
	f := newFixture(t, "alice", "bob")

	aliceWS := dial(t, f.wsURL(t, "/ws/chat/alice-bob", "alice"))
	bobWS := dial(t, f.wsURL(t, "/ws/chat/bob-alice", "bob"))

	require.NoError(t, aliceWS.WriteJSON(map[string]string{
		"type":    "create",
		"message": "hello bob",
	}))

	for _, ws := range []*websocket.Conn{aliceWS, bobWS} {
		payload := readPayload(t, ws)
		assert.Equal(t, "send", payload.Action)
		assert.Equal(t, "alice-bob", payload.RoomName)
		require.NotNil(t, payload.Options)
		assert.Equal(t, "hello bob", payload.Options.Message)
	}
}

func TestChatDeleteBroadcast(t *testing.T) {
	f := newFixture(t, "alice", "bob")

	aliceWS := dial(t, f.wsURL(t, "/ws/chat/alice-bob", "alice"))

	require.NoError(t, aliceWS.WriteJSON(map[string]string{"type": "create", "message": "oops"}))
	created := readPayload(t, aliceWS)
	require.Equal(t, "send", created.Action)

	// Find the stored message id and retract it.
	var msgID string
	for id := range f.messages.byID {
		msgID = id.String()
	}
	require.NoError(t, aliceWS.WriteJSON(map[string]string{"type": "delete", "message_id": msgID}))

	deleted := readPayload(t, aliceWS)
	assert.Equal(t, "delete", deleted.Action)
	assert.Equal(t, msgID, deleted.MessageID)
	assert.Empty(t, f.messages.byID)
}

func TestChatBacklogOnConnect(t *testing.T) {
	f := newFixture(t, "alice", "bob")

	aliceWS := dial(t, f.wsURL(t, "/ws/chat/alice-bob", "alice"))
	require.NoError(t, aliceWS.WriteJSON(map[string]string{"type": "create", "message": "early"}))
	_ = readPayload(t, aliceWS)

	// Bob connects after the message was sent and still receives it.
	bobWS := dial(t, f.wsURL(t, "/ws/chat/bob-alice", "bob"))
	payload := readPayload(t, bobWS)
	assert.Equal(t, "send", payload.Action)
	assert.Equal(t, "early", payload.Options.Message)
}

func TestChatRejections(t *testing.T) {
	f := newFixture(t, "alice", "bob", "carol")

	tests := []struct {
		name   string
		url    string
		status int
	}{
		{"missing token", "ws" + strings.TrimPrefix(f.server.URL, "http") + "/ws/chat/alice-bob", http.StatusUnauthorized},
		{"garbage token", "ws" + strings.TrimPrefix(f.server.URL, "http") + "/ws/chat/alice-bob?token=garbage", http.StatusUnauthorized},
		{"malformed room", f.wsURL(t, "/ws/chat/alicebob", "alice"), http.StatusNotFound},
		{"unknown participant", f.wsURL(t, "/ws/chat/alice-ghost", "alice"), http.StatusNotFound},
		{"requester not a member", f.wsURL(t, "/ws/chat/alice-bob", "carol"), http.StatusForbidden},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, resp, err := websocket.DefaultDialer.Dial(tt.url, nil)
			require.Error(t, err, "dial must fail before upgrade")
			require.NotNil(t, resp)
			defer resp.Body.Close()
			assert.Equal(t, tt.status, resp.StatusCode)
		})
	}
}

func TestNotificationBacklogAndMarkSeen(t *testing.T) {
	f := newFixture(t, "alice", "bob")
	bob := f.users.byUsername["bob"]

	n := &notify.Notification{
		ID:               ulid.Make(),
		SenderID:         f.users.byUsername["alice"].ID,
		ReceiverID:       bob.ID,
		ReceiverUsername: "bob",
		Data:             map[string]any{"kind": "follow"},
		CreatedAt:        time.Now().UTC(),
	}
	require.NoError(t, f.notifications.Create(context.Background(), n, func() {}))

	ws := dial(t, f.wsURL(t, "/ws/notifications", "bob"))

	require.NoError(t, ws.SetReadDeadline(time.Now().Add(2*time.Second)))
	_, raw, err := ws.ReadMessage()
	require.NoError(t, err)

	var payload notify.BroadcastPayload
	require.NoError(t, json.Unmarshal(raw, &payload))
	assert.Equal(t, "send", payload.Action)
	assert.Equal(t, n.ID.String(), payload.NotificationID)
	assert.False(t, payload.IsRead)

	require.NoError(t, ws.WriteJSON(map[string]string{
		"type":            "mark_seen",
		"notification_id": n.ID.String(),
	}))

	assert.Eventually(t, func() bool {
		return f.notifications.byID[n.ID].Seen
	}, 2*time.Second, 10*time.Millisecond)
}

func readNotification(t *testing.T, ws *websocket.Conn) notify.BroadcastPayload {
	t.Helper()
	require.NoError(t, ws.SetReadDeadline(time.Now().Add(2*time.Second)))
	_, raw, err := ws.ReadMessage()
	require.NoError(t, err)
	var payload notify.BroadcastPayload
	require.NoError(t, json.Unmarshal(raw, &payload))
	return payload
}

func TestFollowNotifiesFollowee(t *testing.T) {
	f := newFixture(t, "alice", "bob")

	bobWS := dial(t, f.wsURL(t, "/ws/notifications", "bob"))

	resp := f.api(t, http.MethodPost, "/api/follows/bob", "alice")
	require.Equal(t, http.StatusCreated, resp.StatusCode)

	payload := readNotification(t, bobWS)
	assert.Equal(t, "send", payload.Action)
	assert.Equal(t, "follow", payload.Data["kind"])

	// Unfollowing withdraws the notification from bob's socket.
	resp = f.api(t, http.MethodDelete, "/api/follows/bob", "alice")
	require.Equal(t, http.StatusNoContent, resp.StatusCode)

	retracted := readNotification(t, bobWS)
	assert.Equal(t, "delete", retracted.Action)
	assert.Equal(t, payload.NotificationID, retracted.NotificationID)
	assert.Empty(t, f.notifications.byID)
}

func TestFollowRejections(t *testing.T) {
	f := newFixture(t, "alice", "bob", "carol")

	resp := f.api(t, http.MethodPost, "/api/follows/alice", "alice")
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode, "self follow")

	resp = f.api(t, http.MethodPost, "/api/follows/ghost", "alice")
	assert.Equal(t, http.StatusNotFound, resp.StatusCode, "unknown followee")

	resp = f.api(t, http.MethodPost, "/api/follows/bob", "alice")
	require.Equal(t, http.StatusCreated, resp.StatusCode)
	resp = f.api(t, http.MethodPost, "/api/follows/bob", "alice")
	assert.Equal(t, http.StatusConflict, resp.StatusCode, "duplicate follow")

	resp = f.api(t, http.MethodPost, "/api/blocks/carol", "alice")
	require.Equal(t, http.StatusCreated, resp.StatusCode)
	resp = f.api(t, http.MethodPost, "/api/follows/alice", "carol")
	assert.Equal(t, http.StatusForbidden, resp.StatusCode, "blocked follower")
}

func TestBlockSeversFollowsBothWays(t *testing.T) {
	f := newFixture(t, "alice", "bob")

	resp := f.api(t, http.MethodPost, "/api/follows/bob", "alice")
	require.Equal(t, http.StatusCreated, resp.StatusCode)
	resp = f.api(t, http.MethodPost, "/api/follows/alice", "bob")
	require.Equal(t, http.StatusCreated, resp.StatusCode)
	require.Len(t, f.follows.byPair, 2)

	resp = f.api(t, http.MethodPost, "/api/blocks/bob", "alice")
	require.Equal(t, http.StatusCreated, resp.StatusCode)

	assert.Empty(t, f.follows.byPair, "both follow directions severed")
	assert.Empty(t, f.notifications.byID, "follow notifications withdrawn")

	// Unblock does not resurrect anything.
	resp = f.api(t, http.MethodDelete, "/api/blocks/bob", "alice")
	require.Equal(t, http.StatusNoContent, resp.StatusCode)
	assert.Empty(t, f.follows.byPair)
}

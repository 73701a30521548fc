// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Driftline Contributors

package chat

import (
	"encoding/json"

	"github.com/oklog/ulid/v2"
	"github.com/samber/oops"
)

// BroadcastPayload is the outbound wire shape for chat events.
// action "send" carries room_name/sender_id/options; action "delete"
// carries only message_id. Clients must treat a delete for a message
// they never saw as a no-op.
type BroadcastPayload struct {
	Action    string          `json:"action"`
	RoomName  string          `json:"room_name,omitempty"`
	SenderID  string          `json:"sender_id,omitempty"`
	Options   *MessageOptions `json:"options,omitempty"`
	MessageID string          `json:"message_id,omitempty"`
}

// MessageOptions carries the message body.
type MessageOptions struct {
	Message string `json:"message"`
}

// SendPayload marshals the broadcast for a created message.
func SendPayload(msg *Message) ([]byte, error) {
	data, err := json.Marshal(BroadcastPayload{
		Action:   "send",
		RoomName: msg.RoomName,
		SenderID: msg.SenderID.String(),
		Options:  &MessageOptions{Message: msg.Body},
	})
	if err != nil {
		return nil, oops.Code("CHAT_MARSHAL_FAILED").Wrap(err)
	}
	return data, nil
}

// DeletePayload marshals the broadcast for a deleted message.
func DeletePayload(messageID ulid.ULID) ([]byte, error) {
	data, err := json.Marshal(BroadcastPayload{
		Action:    "delete",
		MessageID: messageID.String(),
	})
	if err != nil {
		return nil, oops.Code("CHAT_MARSHAL_FAILED").Wrap(err)
	}
	return data, nil
}

// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Driftline Contributors

package gateway

import (
	"encoding/json"

	"github.com/go-playground/validator/v10"
	"github.com/samber/oops"
)

// ClientAction is the inbound wire shape on a chat socket.
type ClientAction struct {
	Type      string `json:"type" validate:"required,oneof=create delete"`
	Message   string `json:"message" validate:"required_if=Type create,omitempty,max=4096"`
	MessageID string `json:"message_id" validate:"required_if=Type delete,omitempty,len=26"`
}

// NotificationAction is the inbound wire shape on a notification
// socket.
type NotificationAction struct {
	Type           string `json:"type" validate:"required,oneof=mark_seen"`
	NotificationID string `json:"notification_id" validate:"required,len=26"`
}

func decode(validate *validator.Validate, raw []byte, v any) error {
	if err := json.Unmarshal(raw, v); err != nil {
		return oops.Code("GATEWAY_BAD_PAYLOAD").Wrap(err)
	}
	if err := validate.Struct(v); err != nil {
		return oops.Code("GATEWAY_BAD_PAYLOAD").Wrap(err)
	}
	return nil
}

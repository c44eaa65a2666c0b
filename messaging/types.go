// Copyright 2026 The sw1tch Authors
// SPDX-License-Identifier: Apache-2.0

package messaging

// LoginRequest is the request body for password login.
type LoginRequest struct {
	Type                     string `json:"type"`
	User                     string `json:"user"`
	Password                 string `json:"password"`
	InitialDeviceDisplayName string `json:"initial_device_display_name,omitempty"`
}

// AuthResponse is returned by Login.
type AuthResponse struct {
	UserID      string `json:"user_id"`
	AccessToken string `json:"access_token"`
	DeviceID    string `json:"device_id"`
}

// WhoAmIResponse is returned by WhoAmI.
type WhoAmIResponse struct {
	UserID   string `json:"user_id"`
	DeviceID string `json:"device_id,omitempty"`
}

// MessageContent is the content body of an m.room.message event.
type MessageContent struct {
	MsgType       string `json:"msgtype"`
	Body          string `json:"body"`
	Format        string `json:"format,omitempty"`
	FormattedBody string `json:"formatted_body,omitempty"`
}

// NewTextMessage creates a plain text message.
func NewTextMessage(body string) MessageContent {
	return MessageContent{
		MsgType: "m.text",
		Body:    body,
	}
}

// NewHTMLMessage creates a message with an HTML-formatted alternative
// body, used when posting the signed warrant canary.
func NewHTMLMessage(body, formattedBody string) MessageContent {
	return MessageContent{
		MsgType:       "m.text",
		Body:          body,
		Format:        "org.matrix.custom.html",
		FormattedBody: formattedBody,
	}
}

// SendEventResponse is returned by SendMessage.
type SendEventResponse struct {
	EventID string `json:"event_id"`
}

// SyncOptions controls the behavior of the /sync endpoint.
type SyncOptions struct {
	// Since is the next_batch token from the previous sync; empty for
	// an initial sync.
	Since string
	// Timeout is the server-side long-poll hold in milliseconds.
	Timeout int
	// SetTimeout sends the timeout parameter even when zero (needed
	// to distinguish "immediate return" from "not set").
	SetTimeout bool
	// Filter is a filter ID or inline JSON filter.
	Filter string
}

// SyncResponse is the top-level response from /sync.
type SyncResponse struct {
	NextBatch string       `json:"next_batch"`
	Rooms     RoomsSection `json:"rooms"`
}

// RoomsSection contains per-room sync data grouped by membership
// state. Only joined rooms matter to the gateway.
type RoomsSection struct {
	Join map[string]JoinedRoom `json:"join,omitempty"`
}

// JoinedRoom contains sync data for a room the user has joined.
type JoinedRoom struct {
	Timeline TimelineSection `json:"timeline"`
}

// TimelineSection contains timeline events from a sync response.
type TimelineSection struct {
	Events    []Event `json:"events"`
	PrevBatch string  `json:"prev_batch"`
	Limited   bool    `json:"limited"`
}

// Event represents a Matrix timeline event from the server.
type Event struct {
	EventID        string       `json:"event_id"`
	Type           string       `json:"type"`
	Sender         string       `json:"sender"`
	OriginServerTS int64        `json:"origin_server_ts"`
	Content        EventContent `json:"content"`
}

// EventContent carries the fields of message events the gateway reads.
// Non-message events leave them empty.
type EventContent struct {
	MsgType string `json:"msgtype,omitempty"`
	Body    string `json:"body,omitempty"`
}

// IsMessage reports whether the event is a text or notice chat
// message. The admin bot replies with both types.
func (e Event) IsMessage() bool {
	if e.Type != "m.room.message" {
		return false
	}
	return e.Content.MsgType == "m.text" || e.Content.MsgType == "m.notice"
}

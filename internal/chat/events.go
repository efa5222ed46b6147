package chat

import "encoding/json"

// Inbound event types accepted over a connection.
const (
	EventJoinRoom    = "join_room"
	EventLeaveRoom   = "leave_room"
	EventSendMessage = "send_message"
	EventMarkAsRead  = "mark_as_read"
	EventTypingStart = "typing_start"
	EventTypingStop  = "typing_stop"
)

// Outbound event types emitted to connections.
const (
	EventMessageReceived    = "message_received"
	EventMessageSent        = "message_sent"
	EventMessagesMarkedRead = "messages_marked_read"
	EventUserTyping         = "user_typing"
	EventUserStoppedTyping  = "user_stopped_typing"
	EventError              = "error"
)

// RoomEvent is the payload of join_room, leave_room, typing_start and
// typing_stop.
type RoomEvent struct {
	RoomID string `json:"room_id" validate:"required"`
}

// SendMessageEvent is the payload of send_message.
type SendMessageEvent struct {
	RoomID   string          `json:"room_id" validate:"required"`
	Type     MessageType     `json:"message_type" validate:"required"`
	Content  string          `json:"content"`
	Metadata json.RawMessage `json:"metadata,omitempty"`
}

// MarkAsReadEvent is the payload of mark_as_read. An empty MessageIDs marks
// everything in the room not sent by the caller.
type MarkAsReadEvent struct {
	RoomID     string   `json:"room_id" validate:"required"`
	MessageIDs []string `json:"message_ids,omitempty"`
}

// MessagesMarkedReadEvent is broadcast to the other room subscribers after a
// successful mark_as_read.
type MessagesMarkedReadEvent struct {
	RoomID     string   `json:"room_id"`
	MessageIDs []string `json:"message_ids,omitempty"`
	ReaderID   string   `json:"user_id"`
}

// UserTypingEvent is broadcast to the other room subscribers on typing_start.
type UserTypingEvent struct {
	RoomID   string `json:"room_id"`
	UserID   string `json:"user_id"`
	UserName string `json:"user_name"`
}

// UserStoppedTypingEvent is broadcast to the other room subscribers on
// typing_stop, leave and disconnect.
type UserStoppedTypingEvent struct {
	RoomID string `json:"room_id"`
	UserID string `json:"user_id"`
}

// ErrorEvent is sent to the originating connection only; operation failures
// never propagate to other subscribers and never drop the connection.
type ErrorEvent struct {
	Message string `json:"message"`
	Code    string `json:"code,omitempty"`
}

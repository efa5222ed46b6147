// Package chat implements the real-time chat core of the marketplace: room and
// message persistence, presence, typing indicators and the session coordinator
// that fans events out to connected clients.
package chat

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/go-playground/validator/v10"
)

// RoomStatus is the lifecycle state of a chat room.
type RoomStatus string

const (
	RoomActive RoomStatus = "active"
	RoomClosed RoomStatus = "closed"
)

// MessageType determines how a message's content and metadata are interpreted.
type MessageType string

const (
	// TextMessage is a plain text message.
	TextMessage MessageType = "text"
	// PriceOfferMessage carries a structured price offer in its metadata.
	PriceOfferMessage MessageType = "price_offer"
	// BookingUpdateMessage announces a booking status change.
	BookingUpdateMessage MessageType = "booking_update"
	// SystemMessage is generated by the service rather than a participant.
	SystemMessage MessageType = "system"
)

func (t MessageType) Valid() bool {
	switch t {
	case TextMessage, PriceOfferMessage, BookingUpdateMessage, SystemMessage:
		return true
	default:
		return false
	}
}

// Room is a two-party chat channel between a farmer and a driver, optionally
// linked to a booking. Membership is fixed for the room's lifetime but its
// status can change out-of-band, so membership checks always go back to the
// store instead of caching a previous answer.
type Room struct {
	ID        string     `json:"id"`
	FarmerID  string     `json:"farmer_id"`
	DriverID  string     `json:"driver_id"`
	BookingID string     `json:"booking_id,omitempty"`
	Status    RoomStatus `json:"status"`
	CreatedAt time.Time  `json:"created_at"`
	UpdatedAt time.Time  `json:"updated_at"`
}

// HasMember reports whether identityID is one of the room's two members.
func (r *Room) HasMember(identityID string) bool {
	return r.FarmerID == identityID || r.DriverID == identityID
}

// Counterpart returns the other member of the room, or "" if identityID is not
// a member.
func (r *Room) Counterpart(identityID string) string {
	switch identityID {
	case r.FarmerID:
		return r.DriverID
	case r.DriverID:
		return r.FarmerID
	default:
		return ""
	}
}

// Message is a chat message sent to a room. Messages are immutable once
// persisted except for the read flag, which only ever moves false to true and
// is never set by the message's own sender.
type Message struct {
	ID        string          `json:"id"`
	RoomID    string          `json:"room_id"`
	SenderID  string          `json:"sender_id"`
	Type      MessageType     `json:"message_type"`
	Content   string          `json:"content"`
	Metadata  json.RawMessage `json:"metadata,omitempty"`
	Read      bool            `json:"is_read"`
	CreatedAt time.Time       `json:"created_at"`
}

// RoomSummary is a room seen from one member's perspective, as listed in the
// chat overview.
type RoomSummary struct {
	Room
	LastMessage *Message `json:"last_message,omitempty"`
	UnreadCount int      `json:"unread_count"`
}

// PriceOffer is the metadata payload of a price_offer message.
type PriceOffer struct {
	Amount    float64    `json:"amount" validate:"required,gt=0"`
	Currency  string     `json:"currency" validate:"required"`
	Note      string     `json:"note,omitempty"`
	ExpiresAt *time.Time `json:"expires_at,omitempty"`
}

// BookingUpdate is the metadata payload of a booking_update message.
type BookingUpdate struct {
	BookingID string `json:"booking_id" validate:"required"`
	NewStatus string `json:"new_status" validate:"required"`
}

var (
	// ErrRoomNotFound is returned when a room does not exist or the acting
	// identity is not a member of it.
	ErrRoomNotFound = errors.New("room not found")
	// ErrAccessDenied is returned when the acting identity is not a current
	// member of the room.
	ErrAccessDenied = errors.New("access denied")
	// ErrNotJoined is returned when an operation requires an active room
	// subscription the connection does not hold.
	ErrNotJoined = errors.New("room not joined")
	// ErrInvalidMessage is returned when a message fails validation.
	ErrInvalidMessage = errors.New("invalid message")
	// ErrInvalidMessageType is returned when the message type is not supported.
	ErrInvalidMessageType = errors.New("invalid message type")
	// ErrMalformedEvent is returned when an inbound event payload fails shape
	// validation.
	ErrMalformedEvent = errors.New("malformed event")
)

var validate = validator.New()

// MessageInput is the input for appending a message to a room.
type MessageInput struct {
	RoomID   string          `json:"room_id" validate:"required"`
	SenderID string          `json:"sender_id" validate:"required"`
	Type     MessageType     `json:"message_type" validate:"required"`
	Content  string          `json:"content"`
	Metadata json.RawMessage `json:"metadata,omitempty"`
}

func (m *MessageInput) Validate() error {
	if err := validate.Struct(m); err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidMessage, err)
	}
	if !m.Type.Valid() {
		return ErrInvalidMessageType
	}
	if err := ValidateMetadata(m.Type, m.Metadata); err != nil {
		return err
	}
	return nil
}

// ValidateMetadata checks that raw matches the payload shape required by the
// message type. Text and system messages carry no structured payload.
func ValidateMetadata(t MessageType, raw json.RawMessage) error {
	switch t {
	case PriceOfferMessage:
		var offer PriceOffer
		if err := decodeMetadata(raw, &offer); err != nil {
			return err
		}
		return nil
	case BookingUpdateMessage:
		var update BookingUpdate
		if err := decodeMetadata(raw, &update); err != nil {
			return err
		}
		return nil
	case TextMessage, SystemMessage:
		if !emptyMetadata(raw) {
			return fmt.Errorf("%w: %s messages carry no metadata", ErrInvalidMessage, t)
		}
		return nil
	default:
		return ErrInvalidMessageType
	}
}

// DecodePriceOffer decodes and validates the metadata of a price_offer message.
func DecodePriceOffer(raw json.RawMessage) (*PriceOffer, error) {
	var offer PriceOffer
	if err := decodeMetadata(raw, &offer); err != nil {
		return nil, err
	}
	return &offer, nil
}

// DecodeBookingUpdate decodes and validates the metadata of a booking_update
// message.
func DecodeBookingUpdate(raw json.RawMessage) (*BookingUpdate, error) {
	var update BookingUpdate
	if err := decodeMetadata(raw, &update); err != nil {
		return nil, err
	}
	return &update, nil
}

func decodeMetadata(raw json.RawMessage, v any) error {
	if emptyMetadata(raw) {
		return fmt.Errorf("%w: missing metadata", ErrInvalidMessage)
	}
	if err := json.Unmarshal(raw, v); err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidMessage, err)
	}
	if err := validate.Struct(v); err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidMessage, err)
	}
	return nil
}

func emptyMetadata(raw json.RawMessage) bool {
	switch string(raw) {
	case "", "null", "{}":
		return true
	default:
		return false
	}
}

// Store is the durable side of the chat core: rooms and messages keyed by room
// id. The coordinator treats it as an external collaborator and re-derives
// room membership from it on every privileged operation.
type Store interface {
	// CreateOrGetRoom returns the room between farmerID and driverID, creating
	// it if it does not exist. When bookingID is non-empty the lookup is scoped
	// to that booking. The operation is idempotent.
	CreateOrGetRoom(ctx context.Context, farmerID, driverID, bookingID string) (*Room, error)

	// GetRoom returns the room with the given id if identityID is one of its
	// members, and nil otherwise.
	GetRoom(ctx context.Context, roomID, identityID string) (*Room, error)

	// ListRoomsFor returns summaries of all rooms identityID is a member of,
	// most recently active first.
	ListRoomsFor(ctx context.Context, identityID string) ([]RoomSummary, error)

	// AppendMessage persists a message with a server-assigned id and timestamp.
	// It returns ErrRoomNotFound if the room does not exist.
	AppendMessage(ctx context.Context, in MessageInput) (*Message, error)

	// ListMessages returns one page of the room's messages in chronological
	// order. Page 1 holds the most recent messages.
	ListMessages(ctx context.Context, roomID string, page, limit int) ([]Message, error)

	// SetRead marks messages in the room that were not sent by readerID as
	// read. An empty messageIDs marks all of them.
	SetRead(ctx context.Context, roomID, readerID string, messageIDs []string) error

	// CloseRoom sets the room status to closed. It returns ErrRoomNotFound if
	// the room does not exist or identityID is not a member.
	CloseRoom(ctx context.Context, roomID, identityID string) error

	// DeleteRoom removes the room and all its messages. It returns
	// ErrRoomNotFound if the room does not exist or identityID is not a member.
	DeleteRoom(ctx context.Context, roomID, identityID string) error
}

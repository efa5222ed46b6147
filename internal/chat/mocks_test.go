package chat

import (
	"context"
	"sync"
	"time"

	"github.com/alliance74/african-farm-route/pkg/auth"
	"github.com/alliance74/african-farm-route/pkg/ws"
	"github.com/google/uuid"
)

type mockConn struct {
	id       string
	identity auth.Identity

	mu      sync.Mutex
	packets []*ws.Packet
}

func newMockConn(identity auth.Identity) *mockConn {
	return &mockConn{id: uuid.NewString(), identity: identity}
}

func (c *mockConn) ID() string              { return c.id }
func (c *mockConn) Identity() auth.Identity { return c.identity }

func (c *mockConn) Send(p *ws.Packet) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.packets = append(c.packets, p)
}

// received returns the packets of the given type sent to the connection.
func (c *mockConn) received(eventType string) []*ws.Packet {
	c.mu.Lock()
	defer c.mu.Unlock()
	var out []*ws.Packet
	for _, p := range c.packets {
		if p.Type == eventType {
			out = append(out, p)
		}
	}
	return out
}

// mockStore is an in-memory Store. Function fields override individual
// operations when set.
type mockStore struct {
	mu       sync.Mutex
	rooms    map[string]*Room
	messages map[string][]Message

	getRoomFn       func(ctx context.Context, roomID, identityID string) (*Room, error)
	appendMessageFn func(ctx context.Context, in MessageInput) (*Message, error)
	setReadFn       func(ctx context.Context, roomID, readerID string, messageIDs []string) error
}

func newMockStore() *mockStore {
	return &mockStore{
		rooms:    make(map[string]*Room),
		messages: make(map[string][]Message),
	}
}

func (s *mockStore) addRoom(farmerID, driverID string) *Room {
	s.mu.Lock()
	defer s.mu.Unlock()
	now := time.Now().UTC()
	room := &Room{
		ID:        uuid.NewString(),
		FarmerID:  farmerID,
		DriverID:  driverID,
		Status:    RoomActive,
		CreatedAt: now,
		UpdatedAt: now,
	}
	s.rooms[room.ID] = room
	return room
}

func (s *mockStore) CreateOrGetRoom(ctx context.Context, farmerID, driverID, bookingID string) (*Room, error) {
	s.mu.Lock()
	for _, room := range s.rooms {
		if room.FarmerID == farmerID && room.DriverID == driverID &&
			(bookingID == "" || room.BookingID == bookingID) {
			s.mu.Unlock()
			return room, nil
		}
	}
	s.mu.Unlock()
	room := s.addRoom(farmerID, driverID)
	room.BookingID = bookingID
	return room, nil
}

func (s *mockStore) GetRoom(ctx context.Context, roomID, identityID string) (*Room, error) {
	if s.getRoomFn != nil {
		return s.getRoomFn(ctx, roomID, identityID)
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	room, ok := s.rooms[roomID]
	if !ok || !room.HasMember(identityID) {
		return nil, nil
	}
	return room, nil
}

func (s *mockStore) ListRoomsFor(ctx context.Context, identityID string) ([]RoomSummary, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []RoomSummary
	for _, room := range s.rooms {
		if room.HasMember(identityID) {
			out = append(out, RoomSummary{Room: *room})
		}
	}
	return out, nil
}

func (s *mockStore) AppendMessage(ctx context.Context, in MessageInput) (*Message, error) {
	if s.appendMessageFn != nil {
		return s.appendMessageFn(ctx, in)
	}
	if err := in.Validate(); err != nil {
		return nil, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.rooms[in.RoomID]; !ok {
		return nil, ErrRoomNotFound
	}
	msg := Message{
		ID:        uuid.NewString(),
		RoomID:    in.RoomID,
		SenderID:  in.SenderID,
		Type:      in.Type,
		Content:   in.Content,
		Metadata:  in.Metadata,
		CreatedAt: time.Now().UTC(),
	}
	s.messages[in.RoomID] = append(s.messages[in.RoomID], msg)
	return &msg, nil
}

func (s *mockStore) ListMessages(ctx context.Context, roomID string, page, limit int) ([]Message, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]Message(nil), s.messages[roomID]...), nil
}

func (s *mockStore) SetRead(ctx context.Context, roomID, readerID string, messageIDs []string) error {
	if s.setReadFn != nil {
		return s.setReadFn(ctx, roomID, readerID, messageIDs)
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	msgs := s.messages[roomID]
	for i := range msgs {
		if msgs[i].SenderID == readerID {
			continue
		}
		if len(messageIDs) > 0 {
			found := false
			for _, id := range messageIDs {
				if msgs[i].ID == id {
					found = true
					break
				}
			}
			if !found {
				continue
			}
		}
		msgs[i].Read = true
	}
	return nil
}

func (s *mockStore) CloseRoom(ctx context.Context, roomID, identityID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	room, ok := s.rooms[roomID]
	if !ok || !room.HasMember(identityID) {
		return ErrRoomNotFound
	}
	room.Status = RoomClosed
	return nil
}

func (s *mockStore) DeleteRoom(ctx context.Context, roomID, identityID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	room, ok := s.rooms[roomID]
	if !ok || !room.HasMember(identityID) {
		return ErrRoomNotFound
	}
	delete(s.rooms, roomID)
	delete(s.messages, roomID)
	return nil
}

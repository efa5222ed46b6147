package chat

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"sync"

	"github.com/alliance74/african-farm-route/pkg/ws"
)

// Coordinator mediates every inbound chat event. It owns the presence
// registry, the typing tracker and the room subscription index, enforces the
// access guard before any room operation, and fans resulting state changes out
// to the connections subscribed to the room.
//
// A connection holds at most one active room subscription; joining a new room
// implicitly leaves the previous one. Store calls are made without holding the
// in-memory locks, and messages are persisted before they are broadcast so the
// order observed by any subscriber matches persistence order.
type Coordinator struct {
	ctx      context.Context
	store    Store
	guard    *AccessGuard
	presence *Presence
	typing   *TypingTracker
	logger   *slog.Logger

	mu sync.Mutex
	// rooms indexes the connections currently subscribed to each room.
	rooms map[string]map[ws.Conn]struct{}
	// subs holds each connection's active room subscription, "" for none.
	subs map[ws.Conn]string
}

func NewCoordinator(ctx context.Context, store Store, logger *slog.Logger) *Coordinator {
	return &Coordinator{
		ctx:      ctx,
		store:    store,
		guard:    NewAccessGuard(store),
		presence: NewPresence(),
		typing:   NewTypingTracker(),
		logger:   logger,
		rooms:    make(map[string]map[ws.Conn]struct{}),
		subs:     make(map[ws.Conn]string),
	}
}

// Presence exposes the registry for collaborators that need a liveness check.
func (co *Coordinator) Presence() *Presence { return co.presence }

// OnConnect registers the connection's identity as present. The connection
// arrives already authenticated; an unauthenticated connection never reaches
// the coordinator.
func (co *Coordinator) OnConnect(c ws.Conn) {
	co.presence.Register(c.Identity().ID, c)
	co.mu.Lock()
	co.subs[c] = ""
	co.mu.Unlock()
}

// OnPacket dispatches one inbound event. All operation failures are converted
// to an error event sent to the originating connection only.
func (co *Coordinator) OnPacket(c ws.Conn, p *ws.Packet) {
	var err error
	switch p.Type {
	case EventJoinRoom:
		err = co.handleJoin(c, p.Body)
	case EventLeaveRoom:
		err = co.handleLeave(c, p.Body)
	case EventSendMessage:
		err = co.handleSend(c, p.Body)
	case EventMarkAsRead:
		err = co.handleMarkAsRead(c, p.Body)
	case EventTypingStart:
		err = co.handleTypingStart(c, p.Body)
	case EventTypingStop:
		err = co.handleTypingStop(c, p.Body)
	default:
		err = fmt.Errorf("%w: unknown event %q", ErrMalformedEvent, p.Type)
	}

	if err != nil {
		co.logger.Info("event failed",
			slog.String("event", p.Type),
			slog.String("identity", c.Identity().ID),
			slog.String("reason", err.Error()))
		co.sendError(c, p.Type, err)
	}
}

// OnDisconnect removes every registry and tracker entry the connection
// created. The presence entry is removed only if it still points at this
// connection, so a newer connection for the same identity is left alone.
func (co *Coordinator) OnDisconnect(c ws.Conn) {
	identity := c.Identity()

	co.mu.Lock()
	roomID := co.subs[c]
	if roomID != "" {
		co.dropSubscriptionLocked(c, roomID)
	}
	delete(co.subs, c)
	co.mu.Unlock()

	co.presence.Remove(identity.ID, c)

	for _, changed := range co.typing.ClearIdentity(identity.ID) {
		co.broadcast(changed, c, EventUserStoppedTyping,
			UserStoppedTypingEvent{RoomID: changed, UserID: identity.ID})
	}
}

// NotifyIdentity delivers an event directly to the identity's live connection.
// If the identity has no live connection this is a silent no-op; delivery is
// best effort only.
func (co *Coordinator) NotifyIdentity(identityID, event string, payload any) {
	c, ok := co.presence.Lookup(identityID)
	if !ok {
		return
	}
	p, err := ws.NewPacket(event, payload)
	if err != nil {
		co.logger.Error("NotifyIdentity: " + err.Error())
		return
	}
	c.Send(p)
}

// NotifyRoom delivers an event to every connection currently subscribed to the
// room, best effort.
func (co *Coordinator) NotifyRoom(roomID, event string, payload any) {
	co.broadcast(roomID, nil, event, payload)
}

func (co *Coordinator) handleJoin(c ws.Conn, body json.RawMessage) error {
	var event RoomEvent
	if err := decodeEvent(body, &event); err != nil {
		return err
	}

	identity := c.Identity()
	if !co.guard.CanAccess(co.ctx, identity.ID, event.RoomID) {
		return ErrAccessDenied
	}

	co.mu.Lock()
	prev := co.subs[c]
	if prev == event.RoomID {
		co.mu.Unlock()
		return nil
	}
	if prev != "" {
		co.dropSubscriptionLocked(c, prev)
	}
	conns, ok := co.rooms[event.RoomID]
	if !ok {
		conns = make(map[ws.Conn]struct{})
		co.rooms[event.RoomID] = conns
	}
	conns[c] = struct{}{}
	co.subs[c] = event.RoomID
	co.mu.Unlock()

	// Joining is silent to peers, but leaving the previous room runs the same
	// typing cleanup as an explicit leave.
	if prev != "" {
		co.stopTypingAndNotify(prev, identity.ID, c)
	}
	return nil
}

func (co *Coordinator) handleLeave(c ws.Conn, body json.RawMessage) error {
	var event RoomEvent
	if err := decodeEvent(body, &event); err != nil {
		return err
	}

	co.mu.Lock()
	if co.subs[c] == event.RoomID {
		co.dropSubscriptionLocked(c, event.RoomID)
		co.subs[c] = ""
	}
	co.mu.Unlock()

	co.stopTypingAndNotify(event.RoomID, c.Identity().ID, c)
	return nil
}

func (co *Coordinator) handleSend(c ws.Conn, body json.RawMessage) error {
	var event SendMessageEvent
	if err := decodeEvent(body, &event); err != nil {
		return err
	}

	identity := c.Identity()
	if !co.subscribed(c, event.RoomID) {
		return ErrNotJoined
	}
	// Membership can change out-of-band, so the guard is re-checked even
	// though join already passed it.
	if !co.guard.CanAccess(co.ctx, identity.ID, event.RoomID) {
		return ErrAccessDenied
	}

	msg, err := co.store.AppendMessage(co.ctx, MessageInput{
		RoomID:   event.RoomID,
		SenderID: identity.ID,
		Type:     event.Type,
		Content:  event.Content,
		Metadata: event.Metadata,
	})
	if err != nil {
		return fmt.Errorf("AppendMessage: %w", err)
	}

	// Persisted before broadcast: a subscriber never observes a message the
	// store has not accepted, and per-room order follows persistence order.
	co.broadcast(event.RoomID, nil, EventMessageReceived, msg)
	co.send(c, EventMessageSent, msg)
	return nil
}

func (co *Coordinator) handleMarkAsRead(c ws.Conn, body json.RawMessage) error {
	var event MarkAsReadEvent
	if err := decodeEvent(body, &event); err != nil {
		return err
	}

	identity := c.Identity()
	if !co.subscribed(c, event.RoomID) {
		return ErrNotJoined
	}
	if !co.guard.CanAccess(co.ctx, identity.ID, event.RoomID) {
		return ErrAccessDenied
	}

	if err := co.store.SetRead(co.ctx, event.RoomID, identity.ID, event.MessageIDs); err != nil {
		return fmt.Errorf("SetRead: %w", err)
	}

	co.broadcast(event.RoomID, c, EventMessagesMarkedRead, MessagesMarkedReadEvent{
		RoomID:     event.RoomID,
		MessageIDs: event.MessageIDs,
		ReaderID:   identity.ID,
	})
	return nil
}

func (co *Coordinator) handleTypingStart(c ws.Conn, body json.RawMessage) error {
	var event RoomEvent
	if err := decodeEvent(body, &event); err != nil {
		return err
	}

	identity := c.Identity()
	if !co.subscribed(c, event.RoomID) {
		return ErrNotJoined
	}

	if co.typing.Start(event.RoomID, identity.ID) {
		name := identity.Name
		if name == "" {
			name = "User"
		}
		co.broadcast(event.RoomID, c, EventUserTyping, UserTypingEvent{
			RoomID:   event.RoomID,
			UserID:   identity.ID,
			UserName: name,
		})
	}
	return nil
}

func (co *Coordinator) handleTypingStop(c ws.Conn, body json.RawMessage) error {
	var event RoomEvent
	if err := decodeEvent(body, &event); err != nil {
		return err
	}

	if !co.subscribed(c, event.RoomID) {
		return ErrNotJoined
	}

	co.stopTypingAndNotify(event.RoomID, c.Identity().ID, c)
	return nil
}

// stopTypingAndNotify removes the identity from the room's typing set and, if
// the set changed, broadcasts a single stop notification to the room's other
// subscribers.
func (co *Coordinator) stopTypingAndNotify(roomID, identityID string, except ws.Conn) {
	if !co.typing.Stop(roomID, identityID) {
		return
	}
	co.broadcast(roomID, except, EventUserStoppedTyping,
		UserStoppedTypingEvent{RoomID: roomID, UserID: identityID})
}

func (co *Coordinator) subscribed(c ws.Conn, roomID string) bool {
	co.mu.Lock()
	defer co.mu.Unlock()
	return co.subs[c] == roomID
}

// dropSubscriptionLocked removes c from the room index. Callers hold co.mu.
func (co *Coordinator) dropSubscriptionLocked(c ws.Conn, roomID string) {
	conns, ok := co.rooms[roomID]
	if !ok {
		return
	}
	delete(conns, c)
	if len(conns) == 0 {
		delete(co.rooms, roomID)
	}
}

// broadcast sends an event to every connection subscribed to the room except
// the one given. Targets are snapshotted under the lock; sends happen outside
// it and are best effort.
func (co *Coordinator) broadcast(roomID string, except ws.Conn, event string, payload any) {
	p, err := ws.NewPacket(event, payload)
	if err != nil {
		co.logger.Error("broadcast: " + err.Error())
		return
	}

	co.mu.Lock()
	targets := make([]ws.Conn, 0, len(co.rooms[roomID]))
	for c := range co.rooms[roomID] {
		if c == except {
			continue
		}
		targets = append(targets, c)
	}
	co.mu.Unlock()

	for _, c := range targets {
		c.Send(p)
	}
}

func (co *Coordinator) send(c ws.Conn, event string, payload any) {
	p, err := ws.NewPacket(event, payload)
	if err != nil {
		co.logger.Error("send: " + err.Error())
		return
	}
	c.Send(p)
}

func (co *Coordinator) sendError(c ws.Conn, event string, err error) {
	co.send(c, EventError, ErrorEvent{
		Message: fmt.Sprintf("%s failed: %v", event, userFacing(err)),
		Code:    errorCode(err),
	})
}

// userFacing strips wrapped store detail off persistence failures so internal
// errors are not leaked to clients.
func userFacing(err error) error {
	switch {
	case errors.Is(err, ErrAccessDenied),
		errors.Is(err, ErrNotJoined),
		errors.Is(err, ErrRoomNotFound),
		errors.Is(err, ErrMalformedEvent),
		errors.Is(err, ErrInvalidMessage),
		errors.Is(err, ErrInvalidMessageType):
		return err
	default:
		return errors.New("internal error")
	}
}

func errorCode(err error) string {
	switch {
	case errors.Is(err, ErrAccessDenied):
		return "ACCESS_DENIED"
	case errors.Is(err, ErrNotJoined):
		return "NOT_JOINED"
	case errors.Is(err, ErrRoomNotFound):
		return "NOT_FOUND"
	case errors.Is(err, ErrMalformedEvent),
		errors.Is(err, ErrInvalidMessage),
		errors.Is(err, ErrInvalidMessageType):
		return "MALFORMED_EVENT"
	default:
		return "PERSISTENCE_FAILED"
	}
}

func decodeEvent(body json.RawMessage, v any) error {
	if err := json.Unmarshal(body, v); err != nil {
		return fmt.Errorf("%w: %v", ErrMalformedEvent, err)
	}
	if err := validate.Struct(v); err != nil {
		return fmt.Errorf("%w: %v", ErrMalformedEvent, err)
	}
	return nil
}

package chat

import "sync"

// TypingTracker keeps the per-room set of identities currently composing a
// message. A room's entry is removed entirely once its set becomes empty.
// All operations are idempotent under repetition.
type TypingTracker struct {
	mu    sync.Mutex
	rooms map[string]map[string]struct{}
}

func NewTypingTracker() *TypingTracker {
	return &TypingTracker{rooms: make(map[string]map[string]struct{})}
}

// Start adds identityID to the room's typing set, creating the set if absent.
// It reports whether the set changed.
func (t *TypingTracker) Start(roomID, identityID string) bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	typists, ok := t.rooms[roomID]
	if !ok {
		typists = make(map[string]struct{})
		t.rooms[roomID] = typists
	}
	if _, ok := typists[identityID]; ok {
		return false
	}
	typists[identityID] = struct{}{}
	return true
}

// Stop removes identityID from the room's typing set, deleting the room entry
// when the set becomes empty. It reports whether the set changed.
func (t *TypingTracker) Stop(roomID, identityID string) bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.stopLocked(roomID, identityID)
}

// ClearIdentity removes identityID from every room's typing set and returns
// the ids of the rooms whose set changed. Used on disconnect.
func (t *TypingTracker) ClearIdentity(identityID string) []string {
	t.mu.Lock()
	defer t.mu.Unlock()
	var changed []string
	for roomID := range t.rooms {
		if t.stopLocked(roomID, identityID) {
			changed = append(changed, roomID)
		}
	}
	return changed
}

// Typing returns the identities currently typing in the room.
func (t *TypingTracker) Typing(roomID string) []string {
	t.mu.Lock()
	defer t.mu.Unlock()
	typists := make([]string, 0, len(t.rooms[roomID]))
	for id := range t.rooms[roomID] {
		typists = append(typists, id)
	}
	return typists
}

func (t *TypingTracker) stopLocked(roomID, identityID string) bool {
	typists, ok := t.rooms[roomID]
	if !ok {
		return false
	}
	if _, ok := typists[identityID]; !ok {
		return false
	}
	delete(typists, identityID)
	if len(typists) == 0 {
		delete(t.rooms, roomID)
	}
	return true
}

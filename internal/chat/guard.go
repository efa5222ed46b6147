package chat

import "context"

// AccessGuard answers "is this identity currently a member of this room". The
// answer is re-derived from the store on every call because membership and
// room status can change out-of-band; a previous positive result is never
// trusted. Store errors deny access.
type AccessGuard struct {
	store Store
}

func NewAccessGuard(store Store) *AccessGuard {
	return &AccessGuard{store: store}
}

func (g *AccessGuard) CanAccess(ctx context.Context, identityID, roomID string) bool {
	room, err := g.store.GetRoom(ctx, roomID, identityID)
	if err != nil {
		return false
	}
	return room != nil
}

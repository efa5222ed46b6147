package chat

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
)

func Test_AccessGuard(t *testing.T) {
	ctx := context.Background()
	store := newMockStore()
	room := store.addRoom("farmer1", "driver1")
	guard := NewAccessGuard(store)

	assert.True(t, guard.CanAccess(ctx, "farmer1", room.ID))
	assert.True(t, guard.CanAccess(ctx, "driver1", room.ID))
	assert.False(t, guard.CanAccess(ctx, "driver2", room.ID))
	assert.False(t, guard.CanAccess(ctx, "farmer1", "no-such-room"))
}

func Test_AccessGuard_DeniesOnStoreError(t *testing.T) {
	store := newMockStore()
	room := store.addRoom("farmer1", "driver1")
	store.getRoomFn = func(ctx context.Context, roomID, identityID string) (*Room, error) {
		return nil, errors.New("db gone")
	}
	guard := NewAccessGuard(store)

	assert.False(t, guard.CanAccess(context.Background(), "farmer1", room.ID))
}

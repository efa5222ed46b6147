package chat

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"os"
	"testing"

	"github.com/google/uuid"
	_ "github.com/mattn/go-sqlite3"
	"github.com/pressly/goose/v3"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func setUp(t *testing.T) (context.Context, *SQLiteStore, func()) {
	t.Helper()

	db, err := sql.Open("sqlite3", "file::memory:?cache=shared")
	if err != nil {
		t.Fatal(err)
	}

	migrationFS := os.DirFS("../../migrations")
	goose.SetBaseFS(migrationFS)

	if err := goose.SetDialect("sqlite3"); err != nil {
		t.Fatal(err)
	}

	if err := goose.Up(db, "."); err != nil {
		t.Fatal(err)
	}

	ctx, cancel := context.WithCancel(context.Background())

	return ctx, NewSQLiteStore(db), func() {
		cancel()
		db.Close()
	}
}

// ids returns fresh identity ids so tests sharing the cache do not collide.
func ids() (string, string) {
	return "farmer-" + uuid.NewString(), "driver-" + uuid.NewString()
}

func Test_SQLiteStore_CreateOrGetRoom(t *testing.T) {
	ctx, store, tearDown := setUp(t)
	defer tearDown()

	farmerID, driverID := ids()

	room, err := store.CreateOrGetRoom(ctx, farmerID, driverID, "")
	require.NoError(t, err)
	require.NotEmpty(t, room.ID)
	assert.Equal(t, RoomActive, room.Status)

	// Same pair resolves to the same room.
	again, err := store.CreateOrGetRoom(ctx, farmerID, driverID, "")
	require.NoError(t, err)
	assert.Equal(t, room.ID, again.ID)

	// Scoping to a booking creates a distinct room.
	booked, err := store.CreateOrGetRoom(ctx, farmerID, driverID, "booking-1")
	require.NoError(t, err)
	assert.NotEqual(t, room.ID, booked.ID)
	assert.Equal(t, "booking-1", booked.BookingID)

	bookedAgain, err := store.CreateOrGetRoom(ctx, farmerID, driverID, "booking-1")
	require.NoError(t, err)
	assert.Equal(t, booked.ID, bookedAgain.ID)

	_, err = store.CreateOrGetRoom(ctx, "", driverID, "")
	assert.ErrorIs(t, err, ErrInvalidMessage)
}

func Test_SQLiteStore_GetRoom(t *testing.T) {
	ctx, store, tearDown := setUp(t)
	defer tearDown()

	farmerID, driverID := ids()
	room, err := store.CreateOrGetRoom(ctx, farmerID, driverID, "")
	require.NoError(t, err)

	got, err := store.GetRoom(ctx, room.ID, farmerID)
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, room.ID, got.ID)

	got, err = store.GetRoom(ctx, room.ID, driverID)
	require.NoError(t, err)
	assert.NotNil(t, got)

	// Non-members see nothing, not an error.
	got, err = store.GetRoom(ctx, room.ID, "stranger")
	require.NoError(t, err)
	assert.Nil(t, got)

	got, err = store.GetRoom(ctx, "no-such-room", farmerID)
	require.NoError(t, err)
	assert.Nil(t, got)
}

func Test_SQLiteStore_AppendMessage(t *testing.T) {
	ctx, store, tearDown := setUp(t)
	defer tearDown()

	farmerID, driverID := ids()
	room, err := store.CreateOrGetRoom(ctx, farmerID, driverID, "")
	require.NoError(t, err)

	msg, err := store.AppendMessage(ctx, MessageInput{
		RoomID:   room.ID,
		SenderID: farmerID,
		Type:     TextMessage,
		Content:  "hello",
	})
	require.NoError(t, err)
	assert.NotEmpty(t, msg.ID)
	assert.False(t, msg.Read)

	_, err = store.AppendMessage(ctx, MessageInput{
		RoomID:   "no-such-room",
		SenderID: farmerID,
		Type:     TextMessage,
		Content:  "hello",
	})
	assert.ErrorIs(t, err, ErrRoomNotFound)

	_, err = store.AppendMessage(ctx, MessageInput{
		RoomID:   room.ID,
		SenderID: farmerID,
		Type:     MessageType("carrier_pigeon"),
		Content:  "hello",
	})
	assert.ErrorIs(t, err, ErrInvalidMessageType)

	// Appending bumps the room's activity timestamp.
	updated, err := store.GetRoom(ctx, room.ID, farmerID)
	require.NoError(t, err)
	assert.False(t, updated.UpdatedAt.Before(room.UpdatedAt))
}

func Test_SQLiteStore_MetadataRoundTrip(t *testing.T) {
	ctx, store, tearDown := setUp(t)
	defer tearDown()

	farmerID, driverID := ids()
	room, err := store.CreateOrGetRoom(ctx, farmerID, driverID, "")
	require.NoError(t, err)

	metadata, err := json.Marshal(PriceOffer{Amount: 4500, Currency: "KES", Note: "per trip"})
	require.NoError(t, err)

	_, err = store.AppendMessage(ctx, MessageInput{
		RoomID:   room.ID,
		SenderID: driverID,
		Type:     PriceOfferMessage,
		Content:  "Price offer: KES 4500.00",
		Metadata: metadata,
	})
	require.NoError(t, err)

	msgs, err := store.ListMessages(ctx, room.ID, 1, 10)
	require.NoError(t, err)
	require.Len(t, msgs, 1)

	offer, err := DecodePriceOffer(msgs[0].Metadata)
	require.NoError(t, err)
	assert.Equal(t, float64(4500), offer.Amount)
	assert.Equal(t, "KES", offer.Currency)
	assert.Equal(t, "per trip", offer.Note)
}

func Test_SQLiteStore_ListMessages(t *testing.T) {
	ctx, store, tearDown := setUp(t)
	defer tearDown()

	farmerID, driverID := ids()
	room, err := store.CreateOrGetRoom(ctx, farmerID, driverID, "")
	require.NoError(t, err)

	for i := 0; i < 5; i++ {
		_, err := store.AppendMessage(ctx, MessageInput{
			RoomID:   room.ID,
			SenderID: farmerID,
			Type:     TextMessage,
			Content:  fmt.Sprintf("message %d", i),
		})
		require.NoError(t, err)
	}

	// Page 1 holds the newest messages, in chronological order.
	page1, err := store.ListMessages(ctx, room.ID, 1, 2)
	require.NoError(t, err)
	require.Len(t, page1, 2)
	assert.Equal(t, "message 3", page1[0].Content)
	assert.Equal(t, "message 4", page1[1].Content)

	page2, err := store.ListMessages(ctx, room.ID, 2, 2)
	require.NoError(t, err)
	require.Len(t, page2, 2)
	assert.Equal(t, "message 1", page2[0].Content)
	assert.Equal(t, "message 2", page2[1].Content)

	page3, err := store.ListMessages(ctx, room.ID, 3, 2)
	require.NoError(t, err)
	require.Len(t, page3, 1)
	assert.Equal(t, "message 0", page3[0].Content)

	empty, err := store.ListMessages(ctx, room.ID, 4, 2)
	require.NoError(t, err)
	assert.Empty(t, empty)
}

func Test_SQLiteStore_SetRead(t *testing.T) {
	ctx, store, tearDown := setUp(t)
	defer tearDown()

	farmerID, driverID := ids()
	room, err := store.CreateOrGetRoom(ctx, farmerID, driverID, "")
	require.NoError(t, err)

	var fromDriver []string
	for i := 0; i < 2; i++ {
		msg, err := store.AppendMessage(ctx, MessageInput{
			RoomID:   room.ID,
			SenderID: driverID,
			Type:     TextMessage,
			Content:  "from driver",
		})
		require.NoError(t, err)
		fromDriver = append(fromDriver, msg.ID)
	}
	_, err = store.AppendMessage(ctx, MessageInput{
		RoomID:   room.ID,
		SenderID: farmerID,
		Type:     TextMessage,
		Content:  "from farmer",
	})
	require.NoError(t, err)

	// Marking one specific message leaves the rest unread.
	require.NoError(t, store.SetRead(ctx, room.ID, farmerID, []string{fromDriver[0]}))

	msgs, err := store.ListMessages(ctx, room.ID, 1, 10)
	require.NoError(t, err)
	read := map[string]bool{}
	for _, m := range msgs {
		read[m.ID] = m.Read
	}
	assert.True(t, read[fromDriver[0]])
	assert.False(t, read[fromDriver[1]])

	// Marking everything never touches the reader's own messages.
	require.NoError(t, store.SetRead(ctx, room.ID, farmerID, nil))
	msgs, err = store.ListMessages(ctx, room.ID, 1, 10)
	require.NoError(t, err)
	for _, m := range msgs {
		if m.SenderID == farmerID {
			assert.False(t, m.Read)
		} else {
			assert.True(t, m.Read)
		}
	}
}

func Test_SQLiteStore_ListRoomsFor(t *testing.T) {
	ctx, store, tearDown := setUp(t)
	defer tearDown()

	farmerID, driver1 := ids()
	_, driver2 := ids()

	room1, err := store.CreateOrGetRoom(ctx, farmerID, driver1, "")
	require.NoError(t, err)
	room2, err := store.CreateOrGetRoom(ctx, farmerID, driver2, "")
	require.NoError(t, err)

	_, err = store.AppendMessage(ctx, MessageInput{
		RoomID:   room1.ID,
		SenderID: driver1,
		Type:     TextMessage,
		Content:  "latest activity",
	})
	require.NoError(t, err)

	summaries, err := store.ListRoomsFor(ctx, farmerID)
	require.NoError(t, err)
	require.Len(t, summaries, 2)

	// Most recently active room first.
	assert.Equal(t, room1.ID, summaries[0].ID)
	assert.Equal(t, room2.ID, summaries[1].ID)

	require.NotNil(t, summaries[0].LastMessage)
	assert.Equal(t, "latest activity", summaries[0].LastMessage.Content)
	assert.Equal(t, 1, summaries[0].UnreadCount)

	assert.Nil(t, summaries[1].LastMessage)
	assert.Equal(t, 0, summaries[1].UnreadCount)

	// The sender does not count their own message as unread.
	driverView, err := store.ListRoomsFor(ctx, driver1)
	require.NoError(t, err)
	require.Len(t, driverView, 1)
	assert.Equal(t, 0, driverView[0].UnreadCount)
}

func Test_SQLiteStore_CloseRoom(t *testing.T) {
	ctx, store, tearDown := setUp(t)
	defer tearDown()

	farmerID, driverID := ids()
	room, err := store.CreateOrGetRoom(ctx, farmerID, driverID, "")
	require.NoError(t, err)

	require.NoError(t, store.CloseRoom(ctx, room.ID, farmerID))

	got, err := store.GetRoom(ctx, room.ID, farmerID)
	require.NoError(t, err)
	assert.Equal(t, RoomClosed, got.Status)

	assert.ErrorIs(t, store.CloseRoom(ctx, room.ID, "stranger"), ErrRoomNotFound)
	assert.ErrorIs(t, store.CloseRoom(ctx, "no-such-room", farmerID), ErrRoomNotFound)
}

func Test_SQLiteStore_DeleteRoom(t *testing.T) {
	ctx, store, tearDown := setUp(t)
	defer tearDown()

	farmerID, driverID := ids()
	room, err := store.CreateOrGetRoom(ctx, farmerID, driverID, "")
	require.NoError(t, err)

	_, err = store.AppendMessage(ctx, MessageInput{
		RoomID:   room.ID,
		SenderID: farmerID,
		Type:     TextMessage,
		Content:  "to be removed",
	})
	require.NoError(t, err)

	assert.ErrorIs(t, store.DeleteRoom(ctx, room.ID, "stranger"), ErrRoomNotFound)

	require.NoError(t, store.DeleteRoom(ctx, room.ID, driverID))

	got, err := store.GetRoom(ctx, room.ID, farmerID)
	require.NoError(t, err)
	assert.Nil(t, got)

	msgs, err := store.ListMessages(ctx, room.ID, 1, 10)
	require.NoError(t, err)
	assert.Empty(t, msgs)
}

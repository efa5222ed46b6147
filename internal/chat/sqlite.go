package chat

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
)

const defaultMessagePageSize = 50

// SQLiteStore is the SQLite-backed room/message store.
type SQLiteStore struct {
	db *sql.DB
}

func NewSQLiteStore(db *sql.DB) *SQLiteStore {
	return &SQLiteStore{db: db}
}

func (s *SQLiteStore) CreateOrGetRoom(ctx context.Context, farmerID, driverID, bookingID string) (*Room, error) {
	if farmerID == "" || driverID == "" {
		return nil, fmt.Errorf("%w: missing member", ErrInvalidMessage)
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("BeginTx: %w", err)
	}
	defer tx.Rollback()

	query := `
		SELECT id, farmer_id, driver_id, booking_id, status, created_at, updated_at
		FROM chat_rooms
		WHERE farmer_id = @farmer_id AND driver_id = @driver_id`
	args := []any{sql.Named("farmer_id", farmerID), sql.Named("driver_id", driverID)}
	if bookingID != "" {
		query += ` AND booking_id = @booking_id`
		args = append(args, sql.Named("booking_id", bookingID))
	}
	query += ` ORDER BY created_at LIMIT 1`

	room, err := scanRoom(tx.QueryRowContext(ctx, query, args...))
	if err != nil && !errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("QueryRowContext(select room): %w", err)
	}
	if room != nil {
		if err := tx.Commit(); err != nil {
			return nil, fmt.Errorf("Commit: %w", err)
		}
		return room, nil
	}

	now := time.Now().UTC()
	room = &Room{
		ID:        uuid.New().String(),
		FarmerID:  farmerID,
		DriverID:  driverID,
		BookingID: bookingID,
		Status:    RoomActive,
		CreatedAt: now,
		UpdatedAt: now,
	}

	query = `
		INSERT INTO chat_rooms (id, farmer_id, driver_id, booking_id, status, created_at, updated_at)
		VALUES (@id, @farmer_id, @driver_id, @booking_id, @status, @created_at, @updated_at)`
	_, err = tx.ExecContext(ctx, query,
		sql.Named("id", room.ID),
		sql.Named("farmer_id", room.FarmerID),
		sql.Named("driver_id", room.DriverID),
		sql.Named("booking_id", nullString(room.BookingID)),
		sql.Named("status", string(room.Status)),
		sql.Named("created_at", room.CreatedAt),
		sql.Named("updated_at", room.UpdatedAt),
	)
	if err != nil {
		return nil, fmt.Errorf("ExecContext(insert room): %w", err)
	}

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("Commit: %w", err)
	}

	return room, nil
}

func (s *SQLiteStore) GetRoom(ctx context.Context, roomID, identityID string) (*Room, error) {
	query := `
		SELECT id, farmer_id, driver_id, booking_id, status, created_at, updated_at
		FROM chat_rooms
		WHERE id = @id AND (farmer_id = @identity OR driver_id = @identity)`

	room, err := scanRoom(s.db.QueryRowContext(ctx, query,
		sql.Named("id", roomID), sql.Named("identity", identityID)))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("QueryRowContext: %w", err)
	}
	return room, nil
}

func (s *SQLiteStore) ListRoomsFor(ctx context.Context, identityID string) ([]RoomSummary, error) {
	query := `
		SELECT id, farmer_id, driver_id, booking_id, status, created_at, updated_at
		FROM chat_rooms
		WHERE farmer_id = @identity OR driver_id = @identity
		ORDER BY updated_at DESC`

	rows, err := s.db.QueryContext(ctx, query, sql.Named("identity", identityID))
	if err != nil {
		return nil, fmt.Errorf("QueryContext: %w", err)
	}
	defer rows.Close()

	var summaries []RoomSummary
	for rows.Next() {
		room, err := scanRoom(rows)
		if err != nil {
			return nil, fmt.Errorf("scanRoom: %w", err)
		}
		summaries = append(summaries, RoomSummary{Room: *room})
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("rows.Err: %w", err)
	}

	for i := range summaries {
		last, err := s.lastMessage(ctx, summaries[i].ID)
		if err != nil {
			return nil, err
		}
		unread, err := s.unreadCount(ctx, summaries[i].ID, identityID)
		if err != nil {
			return nil, err
		}
		summaries[i].LastMessage = last
		summaries[i].UnreadCount = unread
	}

	return summaries, nil
}

func (s *SQLiteStore) AppendMessage(ctx context.Context, in MessageInput) (*Message, error) {
	if err := in.Validate(); err != nil {
		return nil, err
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("BeginTx: %w", err)
	}
	defer tx.Rollback()

	var exists int
	err = tx.QueryRowContext(ctx,
		`SELECT count(*) FROM chat_rooms WHERE id = @id`,
		sql.Named("id", in.RoomID)).Scan(&exists)
	if err != nil {
		return nil, fmt.Errorf("QueryRowContext(room exists): %w", err)
	}
	if exists == 0 {
		return nil, ErrRoomNotFound
	}

	now := time.Now().UTC()
	msg := &Message{
		ID:        uuid.New().String(),
		RoomID:    in.RoomID,
		SenderID:  in.SenderID,
		Type:      in.Type,
		Content:   in.Content,
		Metadata:  in.Metadata,
		Read:      false,
		CreatedAt: now,
	}

	metadata := string(in.Metadata)
	if metadata == "" {
		metadata = "{}"
	}

	query := `
		INSERT INTO chat_messages (id, room_id, sender_id, message_type, content, metadata, is_read, created_at)
		VALUES (@id, @room_id, @sender_id, @message_type, @content, @metadata, 0, @created_at)`
	_, err = tx.ExecContext(ctx, query,
		sql.Named("id", msg.ID),
		sql.Named("room_id", msg.RoomID),
		sql.Named("sender_id", msg.SenderID),
		sql.Named("message_type", string(msg.Type)),
		sql.Named("content", msg.Content),
		sql.Named("metadata", metadata),
		sql.Named("created_at", msg.CreatedAt),
	)
	if err != nil {
		return nil, fmt.Errorf("ExecContext(insert message): %w", err)
	}

	_, err = tx.ExecContext(ctx,
		`UPDATE chat_rooms SET updated_at = @updated_at WHERE id = @id`,
		sql.Named("updated_at", now), sql.Named("id", msg.RoomID))
	if err != nil {
		return nil, fmt.Errorf("ExecContext(touch room): %w", err)
	}

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("Commit: %w", err)
	}

	return msg, nil
}

func (s *SQLiteStore) ListMessages(ctx context.Context, roomID string, page, limit int) ([]Message, error) {
	if limit <= 0 {
		limit = defaultMessagePageSize
	}
	if page <= 0 {
		page = 1
	}
	offset := (page - 1) * limit

	// Page 1 holds the latest messages; rows come back newest first and are
	// reversed so each page reads chronologically.
	query := `
		SELECT id, room_id, sender_id, message_type, content, metadata, is_read, created_at
		FROM chat_messages
		WHERE room_id = @room_id
		ORDER BY created_at DESC, rowid DESC
		LIMIT @limit OFFSET @offset`

	rows, err := s.db.QueryContext(ctx, query,
		sql.Named("room_id", roomID),
		sql.Named("limit", limit),
		sql.Named("offset", offset))
	if err != nil {
		return nil, fmt.Errorf("QueryContext: %w", err)
	}
	defer rows.Close()

	var messages []Message
	for rows.Next() {
		msg, err := scanMessage(rows)
		if err != nil {
			return nil, fmt.Errorf("scanMessage: %w", err)
		}
		messages = append(messages, *msg)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("rows.Err: %w", err)
	}

	for i, j := 0, len(messages)-1; i < j; i, j = i+1, j-1 {
		messages[i], messages[j] = messages[j], messages[i]
	}

	return messages, nil
}

func (s *SQLiteStore) SetRead(ctx context.Context, roomID, readerID string, messageIDs []string) error {
	// The sender's own messages are excluded so a read flag is never set by
	// the identity that authored the message.
	query := `UPDATE chat_messages SET is_read = 1 WHERE room_id = @room_id AND sender_id <> @reader`
	args := []any{sql.Named("room_id", roomID), sql.Named("reader", readerID)}

	if len(messageIDs) > 0 {
		placeholders := make([]string, len(messageIDs))
		for i, id := range messageIDs {
			name := fmt.Sprintf("id%d", i)
			placeholders[i] = "@" + name
			args = append(args, sql.Named(name, id))
		}
		query += ` AND id IN (` + strings.Join(placeholders, ", ") + `)`
	}

	if _, err := s.db.ExecContext(ctx, query, args...); err != nil {
		return fmt.Errorf("ExecContext: %w", err)
	}
	return nil
}

func (s *SQLiteStore) CloseRoom(ctx context.Context, roomID, identityID string) error {
	query := `
		UPDATE chat_rooms SET status = @status, updated_at = @updated_at
		WHERE id = @id AND (farmer_id = @identity OR driver_id = @identity)`
	res, err := s.db.ExecContext(ctx, query,
		sql.Named("status", string(RoomClosed)),
		sql.Named("updated_at", time.Now().UTC()),
		sql.Named("id", roomID),
		sql.Named("identity", identityID))
	if err != nil {
		return fmt.Errorf("ExecContext: %w", err)
	}

	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("RowsAffected: %w", err)
	}
	if affected == 0 {
		return ErrRoomNotFound
	}
	return nil
}

func (s *SQLiteStore) DeleteRoom(ctx context.Context, roomID, identityID string) error {
	room, err := s.GetRoom(ctx, roomID, identityID)
	if err != nil {
		return err
	}
	if room == nil {
		return ErrRoomNotFound
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("BeginTx: %w", err)
	}
	defer tx.Rollback()

	_, err = tx.ExecContext(ctx,
		`DELETE FROM chat_messages WHERE room_id = @room_id`,
		sql.Named("room_id", roomID))
	if err != nil {
		return fmt.Errorf("ExecContext(delete messages): %w", err)
	}

	_, err = tx.ExecContext(ctx,
		`DELETE FROM chat_rooms WHERE id = @id`, sql.Named("id", roomID))
	if err != nil {
		return fmt.Errorf("ExecContext(delete room): %w", err)
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("Commit: %w", err)
	}
	return nil
}

func (s *SQLiteStore) lastMessage(ctx context.Context, roomID string) (*Message, error) {
	query := `
		SELECT id, room_id, sender_id, message_type, content, metadata, is_read, created_at
		FROM chat_messages
		WHERE room_id = @room_id
		ORDER BY created_at DESC, rowid DESC
		LIMIT 1`

	msg, err := scanMessage(s.db.QueryRowContext(ctx, query, sql.Named("room_id", roomID)))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("QueryRowContext(last message): %w", err)
	}
	return msg, nil
}

func (s *SQLiteStore) unreadCount(ctx context.Context, roomID, identityID string) (int, error) {
	query := `
		SELECT count(*) FROM chat_messages
		WHERE room_id = @room_id AND is_read = 0 AND sender_id <> @identity`

	var count int
	err := s.db.QueryRowContext(ctx, query,
		sql.Named("room_id", roomID), sql.Named("identity", identityID)).Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("QueryRowContext(unread count): %w", err)
	}
	return count, nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanRoom(row rowScanner) (*Room, error) {
	var room Room
	var bookingID sql.NullString
	var status string
	if err := row.Scan(&room.ID, &room.FarmerID, &room.DriverID,
		&bookingID, &status, &room.CreatedAt, &room.UpdatedAt); err != nil {
		return nil, err
	}
	room.BookingID = bookingID.String
	room.Status = RoomStatus(status)
	return &room, nil
}

func scanMessage(row rowScanner) (*Message, error) {
	var msg Message
	var msgType, metadata string
	if err := row.Scan(&msg.ID, &msg.RoomID, &msg.SenderID, &msgType,
		&msg.Content, &metadata, &msg.Read, &msg.CreatedAt); err != nil {
		return nil, err
	}
	msg.Type = MessageType(msgType)
	if metadata != "" && metadata != "{}" {
		msg.Metadata = []byte(metadata)
	}
	return &msg, nil
}

func nullString(s string) sql.NullString {
	return sql.NullString{String: s, Valid: s != ""}
}

package api

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/alliance74/african-farm-route/internal/chat"
	"github.com/alliance74/african-farm-route/internal/notify"
	"github.com/alliance74/african-farm-route/pkg/auth"
	"github.com/go-chi/chi/v5"
)

type ChatHandler struct {
	store       chat.Store
	coordinator *chat.Coordinator
	notifier    notify.Notifier
}

func NewChatHandler(store chat.Store, coordinator *chat.Coordinator, notifier notify.Notifier) *ChatHandler {
	return &ChatHandler{store: store, coordinator: coordinator, notifier: notifier}
}

type CreateRoomRequest struct {
	OtherUserID string `json:"other_user_id"`
	BookingID   string `json:"booking_id,omitempty"`
}

type PriceOfferRequest struct {
	Amount    float64    `json:"amount"`
	Currency  string     `json:"currency"`
	Note      string     `json:"note,omitempty"`
	ExpiresAt *time.Time `json:"expires_at,omitempty"`
}

type BookingUpdateRequest struct {
	BookingID string `json:"booking_id"`
	NewStatus string `json:"new_status"`
}

type MarkAsReadRequest struct {
	MessageIDs []string `json:"message_ids,omitempty"`
}

func identityFromRequest(r *http.Request) (auth.Identity, *ApiError[interface{}]) {
	identity, ok := auth.IdentityFromContext(r.Context())
	if !ok {
		return auth.Identity{}, NewApiError("unauthenticated", http.StatusUnauthorized)
	}
	return identity, nil
}

// CreateRoomHandler creates or returns the room between the caller and the
// other party. The caller's role decides which side of the room they take.
func (h *ChatHandler) CreateRoomHandler(w http.ResponseWriter, r *http.Request) error {
	identity, apiErr := identityFromRequest(r)
	if apiErr != nil {
		return apiErr
	}

	defer r.Body.Close()
	var payload CreateRoomRequest
	if err := DecodeJson(r.Body, &payload); err != nil {
		return NewApiError("invalid json", http.StatusBadRequest)
	}
	if payload.OtherUserID == "" {
		return NewApiError("other_user_id is required", http.StatusBadRequest)
	}

	var farmerID, driverID string
	switch identity.Role {
	case auth.RoleFarmer:
		farmerID, driverID = identity.ID, payload.OtherUserID
	case auth.RoleDriver:
		farmerID, driverID = payload.OtherUserID, identity.ID
	default:
		return NewApiError("only farmers and drivers can open chats", http.StatusForbidden)
	}

	room, err := h.store.CreateOrGetRoom(r.Context(), farmerID, driverID, payload.BookingID)
	if err != nil {
		if errors.Is(err, chat.ErrInvalidMessage) {
			return NewApiError(err.Error(), http.StatusBadRequest)
		}
		return err
	}

	return WriteJsonResponseWithStatusCode(w, room, http.StatusCreated)
}

func (h *ChatHandler) ListRoomsHandler(w http.ResponseWriter, r *http.Request) error {
	identity, apiErr := identityFromRequest(r)
	if apiErr != nil {
		return apiErr
	}

	summaries, err := h.store.ListRoomsFor(r.Context(), identity.ID)
	if err != nil {
		return err
	}
	if summaries == nil {
		summaries = []chat.RoomSummary{}
	}

	return WriteJsonResponse(w, summaries)
}

func (h *ChatHandler) GetRoomHandler(w http.ResponseWriter, r *http.Request) error {
	identity, apiErr := identityFromRequest(r)
	if apiErr != nil {
		return apiErr
	}

	room, err := h.store.GetRoom(r.Context(), chi.URLParam(r, "roomID"), identity.ID)
	if err != nil {
		return err
	}
	if room == nil {
		return NewApiError("room not found", http.StatusNotFound)
	}

	return WriteJsonResponse(w, room)
}

func (h *ChatHandler) ListMessagesHandler(w http.ResponseWriter, r *http.Request) error {
	identity, apiErr := identityFromRequest(r)
	if apiErr != nil {
		return apiErr
	}
	roomID := chi.URLParam(r, "roomID")

	room, err := h.store.GetRoom(r.Context(), roomID, identity.ID)
	if err != nil {
		return err
	}
	if room == nil {
		return NewApiError("room not found", http.StatusNotFound)
	}

	page, _ := strconv.Atoi(r.URL.Query().Get("page"))
	limit, _ := strconv.Atoi(r.URL.Query().Get("limit"))

	messages, err := h.store.ListMessages(r.Context(), roomID, page, limit)
	if err != nil {
		return err
	}
	if messages == nil {
		messages = []chat.Message{}
	}

	return WriteJsonResponse(w, messages)
}

// MarkAsReadHandler flips read flags over REST. Unlike the websocket path it
// emits no receipt events; clients refetch unread counts instead.
func (h *ChatHandler) MarkAsReadHandler(w http.ResponseWriter, r *http.Request) error {
	identity, apiErr := identityFromRequest(r)
	if apiErr != nil {
		return apiErr
	}
	roomID := chi.URLParam(r, "roomID")

	defer r.Body.Close()
	var payload MarkAsReadRequest
	if err := DecodeJson(r.Body, &payload); err != nil {
		return NewApiError("invalid json", http.StatusBadRequest)
	}

	room, err := h.store.GetRoom(r.Context(), roomID, identity.ID)
	if err != nil {
		return err
	}
	if room == nil {
		return NewApiError("room not found", http.StatusNotFound)
	}

	if err := h.store.SetRead(r.Context(), roomID, identity.ID, payload.MessageIDs); err != nil {
		return err
	}

	w.WriteHeader(http.StatusNoContent)
	return nil
}

func (h *ChatHandler) SendPriceOfferHandler(w http.ResponseWriter, r *http.Request) error {
	identity, apiErr := identityFromRequest(r)
	if apiErr != nil {
		return apiErr
	}
	roomID := chi.URLParam(r, "roomID")

	defer r.Body.Close()
	var payload PriceOfferRequest
	if err := DecodeJson(r.Body, &payload); err != nil {
		return NewApiError("invalid json", http.StatusBadRequest)
	}

	room, err := h.store.GetRoom(r.Context(), roomID, identity.ID)
	if err != nil {
		return err
	}
	if room == nil {
		return NewApiError("room not found", http.StatusNotFound)
	}

	metadata, err := json.Marshal(chat.PriceOffer{
		Amount:    payload.Amount,
		Currency:  payload.Currency,
		Note:      payload.Note,
		ExpiresAt: payload.ExpiresAt,
	})
	if err != nil {
		return err
	}

	content := fmt.Sprintf("Price offer: %s %.2f", payload.Currency, payload.Amount)
	if payload.Note != "" {
		content += " - " + payload.Note
	}

	msg, err := h.store.AppendMessage(r.Context(), chat.MessageInput{
		RoomID:   roomID,
		SenderID: identity.ID,
		Type:     chat.PriceOfferMessage,
		Content:  content,
		Metadata: metadata,
	})
	if err != nil {
		switch {
		case errors.Is(err, chat.ErrRoomNotFound):
			return NewApiError(err.Error(), http.StatusNotFound)
		case errors.Is(err, chat.ErrInvalidMessage), errors.Is(err, chat.ErrInvalidMessageType):
			return NewApiError(err.Error(), http.StatusBadRequest)
		default:
			return err
		}
	}

	h.coordinator.NotifyRoom(roomID, chat.EventMessageReceived, msg)

	return WriteJsonResponseWithStatusCode(w, msg, http.StatusCreated)
}

// SendBookingUpdateHandler posts a booking status change into the room and
// pushes it to the counterpart both in-band and through the notifier, so the
// other party hears about it even with no socket open.
func (h *ChatHandler) SendBookingUpdateHandler(w http.ResponseWriter, r *http.Request) error {
	identity, apiErr := identityFromRequest(r)
	if apiErr != nil {
		return apiErr
	}
	roomID := chi.URLParam(r, "roomID")

	defer r.Body.Close()
	var payload BookingUpdateRequest
	if err := DecodeJson(r.Body, &payload); err != nil {
		return NewApiError("invalid json", http.StatusBadRequest)
	}

	room, err := h.store.GetRoom(r.Context(), roomID, identity.ID)
	if err != nil {
		return err
	}
	if room == nil {
		return NewApiError("room not found", http.StatusNotFound)
	}

	metadata, err := json.Marshal(chat.BookingUpdate{
		BookingID: payload.BookingID,
		NewStatus: payload.NewStatus,
	})
	if err != nil {
		return err
	}

	msg, err := h.store.AppendMessage(r.Context(), chat.MessageInput{
		RoomID:   roomID,
		SenderID: identity.ID,
		Type:     chat.BookingUpdateMessage,
		Content:  fmt.Sprintf("Booking update: %s", payload.NewStatus),
		Metadata: metadata,
	})
	if err != nil {
		switch {
		case errors.Is(err, chat.ErrRoomNotFound):
			return NewApiError(err.Error(), http.StatusNotFound)
		case errors.Is(err, chat.ErrInvalidMessage), errors.Is(err, chat.ErrInvalidMessageType):
			return NewApiError(err.Error(), http.StatusBadRequest)
		default:
			return err
		}
	}

	counterpart := room.Counterpart(identity.ID)

	h.coordinator.NotifyRoom(roomID, chat.EventMessageReceived, msg)
	h.coordinator.NotifyIdentity(counterpart, chat.EventMessageReceived, msg)

	if err := h.notifier.Notify(r.Context(), counterpart, chat.EventMessageReceived, msg); err != nil {
		return err
	}

	return WriteJsonResponseWithStatusCode(w, msg, http.StatusCreated)
}

func (h *ChatHandler) CloseRoomHandler(w http.ResponseWriter, r *http.Request) error {
	identity, apiErr := identityFromRequest(r)
	if apiErr != nil {
		return apiErr
	}

	err := h.store.CloseRoom(r.Context(), chi.URLParam(r, "roomID"), identity.ID)
	if err != nil {
		if errors.Is(err, chat.ErrRoomNotFound) {
			return NewApiError(err.Error(), http.StatusNotFound)
		}
		return err
	}

	w.WriteHeader(http.StatusNoContent)
	return nil
}

func (h *ChatHandler) DeleteRoomHandler(w http.ResponseWriter, r *http.Request) error {
	identity, apiErr := identityFromRequest(r)
	if apiErr != nil {
		return apiErr
	}

	err := h.store.DeleteRoom(r.Context(), chi.URLParam(r, "roomID"), identity.ID)
	if err != nil {
		if errors.Is(err, chat.ErrRoomNotFound) {
			return NewApiError(err.Error(), http.StatusNotFound)
		}
		return err
	}

	w.WriteHeader(http.StatusNoContent)
	return nil
}

package api

import (
	"net/http"

	"github.com/alliance74/african-farm-route/internal/chat"
	"github.com/alliance74/african-farm-route/internal/notify"
	"github.com/alliance74/african-farm-route/pkg/auth"
	"github.com/go-chi/cors"
)

type ApiConfig struct {
	AllowedOrigins []string
}

type Api struct {
	mux    *ApiMux
	config ApiConfig
}

// NewApi mounts the chat REST surface and the websocket endpoint. The
// websocket handler is passed in rather than built here so the caller keeps
// ownership of its shutdown.
func NewApi(store chat.Store, coordinator *chat.Coordinator, notifier notify.Notifier,
	authenticator *auth.TokenAuthenticator, wsHandler http.Handler, config ApiConfig) *Api {

	api := &Api{
		mux:    NewApiRouter(),
		config: config,
	}

	chatHandler := NewChatHandler(store, coordinator, notifier)

	api.mux.Router.Use(cors.Handler(cors.Options{
		AllowedOrigins:   config.AllowedOrigins,
		AllowCredentials: true,
		AllowedMethods:   []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Authorization", "Content-Type"},
	}))

	api.mux.Route("/chats", func(r *ApiMux) {
		r.Router.Use(auth.Middleware(authenticator))
		r.Post("/", chatHandler.CreateRoomHandler)
		r.Get("/", chatHandler.ListRoomsHandler)
		r.Get("/{roomID}", chatHandler.GetRoomHandler)
		r.Get("/{roomID}/messages", chatHandler.ListMessagesHandler)
		r.Post("/{roomID}/read", chatHandler.MarkAsReadHandler)
		r.Post("/{roomID}/offers", chatHandler.SendPriceOfferHandler)
		r.Post("/{roomID}/booking-update", chatHandler.SendBookingUpdateHandler)
		r.Post("/{roomID}/close", chatHandler.CloseRoomHandler)
		r.Delete("/{roomID}", chatHandler.DeleteRoomHandler)
	})

	api.mux.Router.Get("/ws/chat", wsHandler.ServeHTTP)

	return api
}

func (a *Api) Mux() http.Handler {
	return a.mux
}

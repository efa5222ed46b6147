package main

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/alliance74/african-farm-route/internal/api"
	"github.com/alliance74/african-farm-route/internal/chat"
	"github.com/alliance74/african-farm-route/internal/config"
	"github.com/alliance74/african-farm-route/internal/notify"
	"github.com/alliance74/african-farm-route/pkg/auth"
	"github.com/alliance74/african-farm-route/pkg/server"
	"github.com/alliance74/african-farm-route/pkg/ws"
	"github.com/go-chi/chi/v5"
)

func main() {
	logger := slog.New(slog.NewJSONHandler(os.Stdout, nil))
	slog.SetDefault(logger)

	serverCtx, cancel := signal.NotifyContext(context.Background(),
		syscall.SIGINT, syscall.SIGTERM, syscall.SIGQUIT, syscall.SIGHUP)
	defer cancel()

	cfg, err := config.Load()
	if err != nil {
		logger.Error("load config", slog.Any("error", err))
		os.Exit(1)
	}
	if err := cfg.Validate(); err != nil {
		logger.Error("invalid config", slog.String("detail", config.FormatValidationErrors(err)))
		os.Exit(1)
	}

	db, err := chat.NewSQLiteDB(cfg.SQLite.File, cfg.SQLite.Migrations, &chat.SQLiteDBOption{
		Mode:        "rwc",
		JournalMode: "WAL",
	})
	if err != nil {
		logger.Error("open db", slog.Any("error", err))
		os.Exit(1)
	}
	defer db.Close()

	if err := db.Migrate(); err != nil {
		logger.Error("migrate", slog.Any("error", err))
		os.Exit(1)
	}

	store := chat.NewSQLiteStore(db.DB)
	coordinator := chat.NewCoordinator(serverCtx, store, logger)
	authenticator := auth.NewTokenAuthenticator(cfg.Auth.Secret)
	notifier := notify.NewLogNotifier(logger)

	wsServer := ws.NewServer(coordinator, authenticator,
		ws.WithLogger(logger),
		ws.WithAllowedOrigins(cfg.AllowedOrigins))

	_api := api.NewApi(store, coordinator, notifier, authenticator, wsServer, api.ApiConfig{
		AllowedOrigins: cfg.AllowedOrigins,
	})

	r := chi.NewRouter()
	r.Mount("/api", _api.Mux())

	srv := server.Server{
		Server: &http.Server{
			Handler: r,
			Addr:    fmt.Sprintf("%s:%d", cfg.Hostname, cfg.Port),
		},
		CleanUpFuncs: []func(ctx context.Context){
			func(ctx context.Context) { wsServer.Close() },
		},
		Logger: logger,
	}

	srv.Start(serverCtx)
}

// Package server wraps http.Server with signal-driven graceful shutdown and
// post-shutdown cleanup hooks.
package server

import (
	"context"
	"errors"
	"log/slog"
	"net"
	"net/http"
	"os"
	"time"
)

const shutdownTimeout = 20 * time.Second

type Server struct {
	*http.Server
	// CleanUpFuncs run after the http server has shut down, in order.
	CleanUpFuncs []func(ctx context.Context)
	Logger       *slog.Logger
}

// Start serves until ctx is cancelled, then drains in-flight requests and runs
// the cleanup funcs. It blocks until shutdown completes and exits the process
// if the shutdown deadline is exceeded.
func (s *Server) Start(ctx context.Context) {
	logger := s.Logger
	if logger == nil {
		logger = slog.Default()
	}

	s.Server.BaseContext = func(_ net.Listener) context.Context {
		return ctx
	}

	done := make(chan struct{})

	go func() {
		<-ctx.Done()

		logger.Info("server shutting down")

		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()

		go func() {
			<-shutdownCtx.Done()
			if shutdownCtx.Err() == context.DeadlineExceeded {
				logger.Error("graceful shutdown timed out, forcing exit")
				os.Exit(1)
			}
		}()

		if err := s.Server.Shutdown(shutdownCtx); err != nil {
			logger.Error("server shutdown", slog.Any("error", err))
			os.Exit(1)
		}

		for _, cf := range s.CleanUpFuncs {
			cf(shutdownCtx)
		}

		close(done)
	}()

	logger.Info("server started", slog.String("addr", s.Server.Addr))

	err := s.ListenAndServe()
	if err != nil && !errors.Is(err, http.ErrServerClosed) {
		logger.Error("server exit", slog.Any("error", err))
		os.Exit(1)
	}

	<-done
}

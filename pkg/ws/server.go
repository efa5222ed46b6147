package ws

import (
	"log/slog"
	"net/http"
	"os"
	"slices"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
)

// Server upgrades HTTP requests to websocket connections, authenticates them
// and runs their read/write pumps. Connections that fail authentication are
// rejected before the handler ever sees them.
type Server struct {
	handler       Handler
	authenticator Authenticator
	upgrader      websocket.Upgrader
	logger        *slog.Logger

	mu     sync.Mutex
	conns  map[*wsConn]struct{}
	closed bool

	wg           sync.WaitGroup
	closeTimeout time.Duration
	sendBuffer   int
}

type ServerOption func(*Server)

func WithLogger(logger *slog.Logger) ServerOption {
	return func(s *Server) {
		s.logger = logger
	}
}

func WithCheckOrigin(f func(r *http.Request) bool) ServerOption {
	return func(s *Server) {
		s.upgrader.CheckOrigin = f
	}
}

// WithAllowedOrigins restricts handshakes to the given origins. A "*" entry
// allows any origin. Requests without an Origin header, such as non-browser
// clients, are always allowed.
func WithAllowedOrigins(origins []string) ServerOption {
	return func(s *Server) {
		if slices.Contains(origins, "*") {
			s.upgrader.CheckOrigin = func(*http.Request) bool { return true }
			return
		}
		s.upgrader.CheckOrigin = func(r *http.Request) bool {
			origin := r.Header.Get("Origin")
			if origin == "" {
				return true
			}
			return slices.Contains(origins, origin)
		}
	}
}

func WithCloseTimeout(d time.Duration) ServerOption {
	return func(s *Server) {
		s.closeTimeout = d
	}
}

func NewServer(h Handler, a Authenticator, opts ...ServerOption) *Server {
	// The zero upgrader enforces gorilla's same-origin default; cross-origin
	// browser clients need WithAllowedOrigins or WithCheckOrigin.
	s := &Server{
		handler:       h,
		authenticator: a,
		upgrader:      websocket.Upgrader{},
		logger:        slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelInfo})),
		conns:        make(map[*wsConn]struct{}),
		closeTimeout: 10 * time.Second,
		sendBuffer:   64,
	}

	for _, opt := range opts {
		opt(s)
	}

	return s
}

func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	identity, err := s.authenticator.Authenticate(r)
	if err != nil {
		s.logger.Info("rejected connection", slog.String("reason", err.Error()))
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusUnauthorized)
		w.Write([]byte(`{"code":401,"message":"unauthenticated"}`))
		return
	}

	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.logger.Error("upgrade: " + err.Error())
		return
	}

	c := &wsConn{
		conn:     conn,
		id:       uuid.NewString(),
		identity: identity,
		out:      make(chan *Packet, s.sendBuffer),
		server:   s,
		ticker:   time.NewTicker(pingPeriod),
	}
	c.logger = s.logger.With(slog.String("conn", c.id), slog.String("identity", identity.ID))

	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		conn.Close()
		return
	}
	s.conns[c] = struct{}{}
	s.mu.Unlock()

	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		c.readLoop()
	}()
	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		c.writeLoop()
	}()

	s.logger.Info("new connection",
		slog.String("conn", c.id), slog.String("identity", identity.ID))
	s.handler.OnConnect(c)
}

// disconnect removes the connection from the server and notifies the handler
// exactly once. Safe to call from any goroutine.
func (s *Server) disconnect(c *wsConn) {
	s.mu.Lock()
	if _, ok := s.conns[c]; !ok {
		s.mu.Unlock()
		return
	}
	delete(s.conns, c)
	s.mu.Unlock()

	c.shutdown()
	s.handler.OnDisconnect(c)
}

// Close tears down all live connections and waits for their pumps to exit,
// up to the configured timeout.
func (s *Server) Close() {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return
	}
	s.closed = true
	conns := make([]*wsConn, 0, len(s.conns))
	for c := range s.conns {
		conns = append(conns, c)
	}
	s.mu.Unlock()

	for _, c := range conns {
		s.disconnect(c)
		c.conn.Close()
	}

	done := make(chan struct{})
	go func() {
		s.wg.Wait()
		close(done)
	}()

	timer := time.NewTimer(s.closeTimeout)
	defer timer.Stop()
	select {
	case <-timer.C:
		s.logger.Info("ws server closed with timeout")
	case <-done:
		s.logger.Info("ws server closed gracefully")
	}
}

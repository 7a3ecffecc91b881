// Package server runs the relay on a single HTTP port: WebSocket upgrades go
// to the echo acceptor, everything else to the page handler.
package server

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/mux"
	"github.com/omochice/event-relay/internal/relay"
	"github.com/omochice/event-relay/internal/transport/ws"
)

const (
	// DefaultPath is where WebSocket upgrades are accepted.
	DefaultPath = "/ws"

	shutdownTimeout = 5 * time.Second
)

// Option configures a Server.
type Option func(*Server)

// WithPages mounts the page-serving handler for non-upgrade requests.
func WithPages(h http.Handler) Option {
	return func(s *Server) { s.pages = h }
}

// WithPath changes the WebSocket upgrade path.
func WithPath(path string) Option {
	return func(s *Server) { s.path = path }
}

// WithLogger sets the logger for the server and its sessions.
func WithLogger(logger *slog.Logger) Option {
	return func(s *Server) { s.logger = logger }
}

// Server represents the relay HTTP server
type Server struct {
	address  string
	path     string
	pages    http.Handler
	logger   *slog.Logger
	mu       sync.RWMutex
	listener net.Listener
	server   *http.Server
	hub      *relay.Hub
	acceptor *relay.Acceptor
	stopOnce sync.Once
}

// New creates a new Server instance
func New(address string, opts ...Option) *Server {
	s := &Server{
		address: address,
		path:    DefaultPath,
		pages:   http.NotFoundHandler(),
		logger:  slog.Default(),
		hub:     relay.NewHub(),
	}
	for _, opt := range opts {
		opt(s)
	}

	s.acceptor = relay.NewAcceptor(s.hub, s.logger)
	s.server = &http.Server{
		Handler:           s.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}
	return s
}

// Handler returns the router serving both upgrades and pages.
func (s *Server) Handler() http.Handler {
	r := mux.NewRouter()

	r.Path(s.path).
		MatcherFunc(func(r *http.Request, _ *mux.RouteMatch) bool { return ws.IsUpgrade(r) }).
		Handler(ws.NewHandler(s.acceptor, s.logger))
	r.Path("/healthz").Methods(http.MethodGet).HandlerFunc(s.health)
	r.PathPrefix("/").Handler(recoverPages(s.pages, s.logger))

	return r
}

// Listen binds the listening socket.
func (s *Server) Listen() error {
	listener, err := net.Listen("tcp", s.address)
	if err != nil {
		return fmt.Errorf("failed to start server: %w", err)
	}
	s.mu.Lock()
	s.listener = listener
	s.mu.Unlock()

	s.logger.Info("server started", "addr", listener.Addr().String(), "path", s.path)
	return nil
}

// Serve accepts connections until Stop is called. It returns nil after Stop.
func (s *Server) Serve() error {
	s.mu.RLock()
	listener := s.listener
	s.mu.RUnlock()

	if listener == nil {
		return errors.New("server: Serve called before Listen")
	}
	if err := s.server.Serve(listener); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return fmt.Errorf("failed to serve: %w", err)
	}
	return nil
}

// Start listens and serves.
func (s *Server) Start() error {
	if err := s.Listen(); err != nil {
		return err
	}
	return s.Serve()
}

// Stop stops accepting requests, closes every open session and waits for
// them to finish.
func (s *Server) Stop() {
	s.stopOnce.Do(func() {
		ctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()

		if err := s.server.Shutdown(ctx); err != nil {
			s.logger.Error("failed to shut down http server", "err", err)
		}
		s.acceptor.Shutdown()
	})
}

// Addr returns the server's listening address
func (s *Server) Addr() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.listener != nil {
		return s.listener.Addr().String()
	}
	return ""
}

// ClientCount returns the number of open sessions
func (s *Server) ClientCount() int {
	return s.hub.ClientCount()
}

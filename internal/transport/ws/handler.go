package ws

import (
	"log/slog"
	"net/http"

	"github.com/gorilla/websocket"
	"github.com/omochice/event-relay/internal/relay"
)

// Handler upgrades HTTP requests and hands each session to the Acceptor.
type Handler struct {
	acceptor *relay.Acceptor
	upgrader websocket.Upgrader
	logger   *slog.Logger
}

// NewHandler creates a Handler that accepts any origin.
func NewHandler(acceptor *relay.Acceptor, logger *slog.Logger) *Handler {
	if logger == nil {
		logger = slog.Default()
	}
	return &Handler{
		acceptor: acceptor,
		upgrader: websocket.Upgrader{
			CheckOrigin: func(r *http.Request) bool { return true },
		},
		logger: logger,
	}
}

// IsUpgrade reports whether r asks for a WebSocket upgrade.
func IsUpgrade(r *http.Request) bool {
	return websocket.IsWebSocketUpgrade(r)
}

// ServeHTTP blocks for the lifetime of the session.
func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.logger.Warn("failed to upgrade connection", "remote", r.RemoteAddr, "err", err)
		return
	}

	err = h.acceptor.Serve(r.Context(), NewConnWithAddr(conn, r.RemoteAddr))
	if websocket.IsUnexpectedCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway, websocket.CloseNoStatusReceived) {
		h.logger.Debug("session ended", "remote", r.RemoteAddr, "err", err)
	}
}

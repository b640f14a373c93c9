package relay

import (
	"net/http"

	"github.com/rs/zerolog/log"
)

// WebSocketHandler handles WebSocket upgrade requests for board connections
type WebSocketHandler struct {
	connectionManager *ConnectionManager
	router            *Router
}

// NewWebSocketHandler creates a new WebSocket handler
func NewWebSocketHandler(cm *ConnectionManager, router *Router) *WebSocketHandler {
	return &WebSocketHandler{
		connectionManager: cm,
		router:            router,
	}
}

// HandleBoardConnection upgrades the request and hands the connection to the
// manager. The client receives init-timers before anything else.
func (h *WebSocketHandler) HandleBoardConnection(w http.ResponseWriter, r *http.Request) {
	if err := h.connectionManager.UpgradeConnection(w, r, h.router); err != nil {
		// the upgrader has already written an HTTP error response
		log.Error().
			Err(err).
			Str("remote_addr", r.RemoteAddr).
			Msg("failed to upgrade WebSocket connection")
	}
}

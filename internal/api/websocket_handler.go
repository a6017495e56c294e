package api

import (
	"log/slog"
	"net/http"

	"github.com/prudhvinik1/trackerlive/internal/realtime"
	"github.com/prudhvinik1/trackerlive/internal/services"
	"nhooyr.io/websocket"
)

// WebSocketHandler upgrades /ws requests and hands the connection to the hub.
type WebSocketHandler struct {
	hub            *realtime.Hub
	tokens         *services.TokenService
	clientOptions  realtime.ClientOptions
	allowedOrigins []string
	logger         *slog.Logger
}

func NewWebSocketHandler(hub *realtime.Hub, tokens *services.TokenService, opts realtime.ClientOptions, allowedOrigins []string, logger *slog.Logger) *WebSocketHandler {
	return &WebSocketHandler{
		hub:            hub,
		tokens:         tokens,
		clientOptions:  opts,
		allowedOrigins: allowedOrigins,
		logger:         logger,
	}
}

func (h *WebSocketHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	// An empty verified identity lets the client name itself in authenticate.
	verified, err := identify(r, h.tokens)
	if err != nil {
		writeError(w, http.StatusUnauthorized, "authentication required")
		return
	}

	ws, err := websocket.Accept(w, r, &websocket.AcceptOptions{
		OriginPatterns: h.allowedOrigins,
	})
	if err != nil {
		h.logger.Warn("websocket_accept_failed", "remote_addr", r.RemoteAddr, "error", err)
		return
	}

	client := realtime.NewClient(ws, h.hub, h.clientOptions)
	h.logger.Debug("connection_opened", "conn_id", string(client.ID()), "verified_user_id", verified)
	client.Serve(r.Context(), verified)
	h.logger.Debug("connection_closed", "conn_id", string(client.ID()))
}

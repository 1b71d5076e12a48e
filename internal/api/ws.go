package api

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"

	"waterhub/internal/protocol"
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	// Devices and dashboards alike connect cross-origin (the dashboard is
	// served from a separate static host); origin checking is handled by
	// whatever sits in front of this process, not here.
	CheckOrigin: func(r *http.Request) bool { return true },
}

// ServeWS upgrades the HTTP request to a WebSocket and hands the
// connection to a fresh Protocol Handler for its entire lifetime.
func (h *Handler) ServeWS(c *gin.Context) {
	conn, err := upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		h.logger.Printf("websocket upgrade failed: %v", err)
		return
	}

	handler := protocol.New(conn, h.hub, h.router, h.store, h.notifier, h.logger, h.serverTag)
	handler.Serve(c.Request.Context(), c.Request.RemoteAddr)
}

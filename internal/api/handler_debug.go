package api

import (
	"net/http"

	"github.com/gin-gonic/gin"
)

// DebugConnections exposes the Hub's live snapshot directly, bypassing
// the Store — this is the one endpoint meant to answer "what does the
// process actually think is connected right now", not "what was last
// mirrored".
func (h *Handler) DebugConnections(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"stats":   h.hub.Stats(),
		"devices": h.hub.Snapshot(),
	})
}

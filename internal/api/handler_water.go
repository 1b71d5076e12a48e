package api

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"waterhub/internal/apierr"
)

type waterRequest struct {
	Action   string `json:"action"`
	Duration int    `json:"duration"`
}

// IssueWaterCommand is the REST counterpart of the dashboard's
// manual_command message: it goes through the same Command Router
// precondition chain, so a device that is unregistered, offline, or
// registered-but-not-connected gets the same distinguishable error here
// as it would over the WebSocket.
func (h *Handler) IssueWaterCommand(c *gin.Context) {
	deviceID := c.Param("id")

	var req waterRequest
	_ = c.ShouldBindJSON(&req) // all fields optional; zero-value action defaults below
	if req.Action == "" {
		req.Action = "water"
	}
	if req.Action != "water" && req.Action != "stop" {
		c.JSON(http.StatusBadRequest, gin.H{"success": false, "error": "action must be \"water\" or \"stop\""})
		return
	}
	if req.Duration <= 0 {
		req.Duration = 5000
	}

	cmd, err := h.router.IssueWaterCommand(c.Request.Context(), deviceID, req.Action, req.Duration)
	if err != nil {
		c.JSON(apierr.HTTPStatus(err), gin.H{"success": false, "error": err.Error()})
		return
	}
	c.JSON(http.StatusAccepted, gin.H{"success": true, "command": cmd})
}

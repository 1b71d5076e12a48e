package api

import (
	"net/http"

	"github.com/gin-gonic/gin"
)

type registerDeviceRequest struct {
	DeviceID string `json:"deviceId" binding:"required"`
}

// RegisterDevice lets a device claim its row out-of-band from the
// WebSocket join handshake — useful for provisioning a device before it
// ever dials in. It is idempotent: RegisterOrTouchDevice upserts.
func (h *Handler) RegisterDevice(c *gin.Context) {
	var req registerDeviceRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"success": false, "error": "deviceId is required"})
		return
	}

	device, err := h.store.RegisterOrTouchDevice(c.Request.Context(), req.DeviceID, c.ClientIP())
	if err != nil {
		h.logger.Printf("register device %s failed: %v", req.DeviceID, err)
		c.JSON(http.StatusInternalServerError, gin.H{"success": false, "error": "registration failed"})
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"success": true,
		"device":  device,
		"serverInfo": gin.H{
			"wsUrl":  wsURL(c),
			"server": h.serverTag,
		},
	})
}

// wsURL derives the WebSocket endpoint a freshly registered device should
// dial, mirroring the scheme and host the registration request itself
// arrived on.
func wsURL(c *gin.Context) string {
	scheme := "ws"
	if c.Request.TLS != nil || c.GetHeader("X-Forwarded-Proto") == "https" {
		scheme = "wss"
	}
	return scheme + "://" + c.Request.Host + "/ws"
}

// ListDevices returns every known device row, not just currently
// connected ones — Online/PumpStatus reflect the Store's last mirrored
// view, which can lag the Hub by up to one broadcast.
func (h *Handler) ListDevices(c *gin.Context) {
	devices, err := h.store.ListDevices(c.Request.Context())
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"success": false, "error": "failed to list devices"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"success": true, "devices": devices})
}

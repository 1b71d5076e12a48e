package api

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
)

// Health probes the Store with a cheap ListDevices call and reports process
// liveness alongside it. A database outage surfaces as database: "down" and
// a 500, not a silently healthy response — a load balancer routing around a
// backend that cannot reach Postgres is exactly the outcome this endpoint
// exists to drive.
func (h *Handler) Health(c *gin.Context) {
	status := http.StatusOK
	databaseStatus := "up"

	devices, err := h.store.ListDevices(c.Request.Context())
	if err != nil {
		status = http.StatusInternalServerError
		databaseStatus = "down"
	}

	online := 0
	for _, d := range devices {
		if d.Online {
			online++
		}
	}

	stats := h.hub.Stats()
	websocketStatus := "up"
	if stats.DeviceActive == 0 && stats.DashboardActive == 0 {
		websocketStatus = "idle"
	}

	c.JSON(status, gin.H{
		"status":    statusLabel(status),
		"database":  databaseStatus,
		"websocket": websocketStatus,
		"devices": gin.H{
			"total":  len(devices),
			"online": online,
		},
		"uptime": time.Since(h.startedAt).String(),
	})
}

func statusLabel(httpStatus int) string {
	if httpStatus == http.StatusOK {
		return "ok"
	}
	return "degraded"
}

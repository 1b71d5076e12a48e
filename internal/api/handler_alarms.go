package api

import (
	"errors"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"gorm.io/gorm"

	"waterhub/internal/apierr"
	"waterhub/internal/store"
)

type createAlarmRequest struct {
	DeviceID   string   `json:"deviceId" binding:"required"`
	Name       string   `json:"name" binding:"required"`
	TimeOfDay  string   `json:"time" binding:"required"`
	Days       []string `json:"days" binding:"required"`
	DurationMS int      `json:"duration" binding:"required"`
}

// ListAlarms serves both GET /api/alarms?deviceId=... and
// GET /api/devices/:id/alarms; an empty deviceId lists every alarm.
func (h *Handler) ListAlarms(c *gin.Context) {
	deviceID := c.Param("id")
	if deviceID == "" {
		deviceID = c.Query("deviceId")
	}

	alarms, err := h.store.ListAlarms(c.Request.Context(), deviceID)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"success": false, "error": "failed to list alarms"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"success": true, "alarms": alarms})
}

// CreateAlarm validates the request shape, confirms the target device
// exists, and delegates next_execution computation to the Store, which
// uses the timezone-naive day-of-week arithmetic in internal/timeofday.
func (h *Handler) CreateAlarm(c *gin.Context) {
	var req createAlarmRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"success": false, "error": err.Error()})
		return
	}

	if _, err := h.store.FindDevice(c.Request.Context(), req.DeviceID); err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			c.JSON(http.StatusNotFound, gin.H{"success": false, "error": "device not found"})
			return
		}
		c.JSON(http.StatusInternalServerError, gin.H{"success": false, "error": "failed to look up device"})
		return
	}

	alarm, err := h.store.CreateAlarm(c.Request.Context(), store.CreateAlarmParams{
		DeviceID:   req.DeviceID,
		Name:       req.Name,
		TimeOfDay:  req.TimeOfDay,
		Days:       req.Days,
		DurationMS: req.DurationMS,
	})
	if err != nil {
		status := http.StatusBadRequest
		if errors.Is(err, apierr.ErrInternal) {
			status = http.StatusInternalServerError
		}
		c.JSON(status, gin.H{"success": false, "error": err.Error()})
		return
	}
	c.JSON(http.StatusCreated, gin.H{"success": true, "alarm": alarm})
}

// ToggleAlarm flips IsActive. Re-enabling recomputes NextExecution from
// now rather than resuming whatever stale value it held while disabled.
func (h *Handler) ToggleAlarm(c *gin.Context) {
	id, err := strconv.ParseInt(c.Param("id"), 10, 64)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"success": false, "error": "invalid alarm id"})
		return
	}
	alarm, err := h.store.ToggleAlarm(c.Request.Context(), id)
	if err != nil {
		c.JSON(http.StatusNotFound, gin.H{"success": false, "error": "alarm not found"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"success": true, "alarm": alarm})
}

func (h *Handler) DeleteAlarm(c *gin.Context) {
	id, err := strconv.ParseInt(c.Param("id"), 10, 64)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"success": false, "error": "invalid alarm id"})
		return
	}
	if err := h.store.DeleteAlarm(c.Request.Context(), id); err != nil {
		c.JSON(http.StatusNotFound, gin.H{"success": false, "error": "alarm not found"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"success": true})
}

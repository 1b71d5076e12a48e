package api

import (
	"errors"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"gorm.io/gorm"

	"waterhub/internal/apierr"
	"waterhub/internal/store"
)

type createScheduleRequest struct {
	DeviceID   string    `json:"deviceId" binding:"required"`
	FireAt     time.Time `json:"time" binding:"required"`
	DurationMS int       `json:"duration" binding:"required"`
}

// CreateSchedule registers a one-shot future firing. Unlike an Alarm it
// never recurs: once the Alarm Engine marks it executed, failed, or
// expired it is done for good.
func (h *Handler) CreateSchedule(c *gin.Context) {
	var req createScheduleRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"success": false, "error": err.Error()})
		return
	}
	if !req.FireAt.After(time.Now()) {
		c.JSON(http.StatusBadRequest, gin.H{"success": false, "error": "time must be in the future"})
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

	schedule, err := h.store.CreateSchedule(c.Request.Context(), store.CreateScheduleParams{
		DeviceID:   req.DeviceID,
		FireAt:     req.FireAt,
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
	c.JSON(http.StatusCreated, gin.H{"success": true, "schedule": schedule})
}

// ListSchedules returns the pending schedules for one device, ordered by
// fire time — a dashboard uses this to render the "coming up" list.
func (h *Handler) ListSchedules(c *gin.Context) {
	deviceID := c.Param("id")
	schedules, err := h.store.ListPendingSchedules(c.Request.Context(), deviceID)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"success": false, "error": "failed to list schedules"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"success": true, "schedules": schedules, "deviceId": deviceID})
}

package api

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"waterhub/internal/model"
)

type pushSubscriptionRequest struct {
	Endpoint string `json:"endpoint" binding:"required"`
	Keys     struct {
		P256DH string `json:"p256dh" binding:"required"`
		Auth   string `json:"auth" binding:"required"`
	} `json:"keys" binding:"required"`
	DeviceID string `json:"deviceId"`
}

// VAPIDPublicKey hands the browser the public half of the configured
// VAPID key pair so it can create a PushSubscription client-side.
func (h *Handler) VAPIDPublicKey(c *gin.Context) {
	if h.webpush == nil || h.webpush.VAPIDPublicKey == "" {
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "push is not configured"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"publicKey": h.webpush.VAPIDPublicKey})
}

// PutPushSubscription upserts a browser's subscription. An empty
// DeviceID subscribes to every device's fallback notifications.
func (h *Handler) PutPushSubscription(c *gin.Context) {
	var req pushSubscriptionRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	sub := model.PushSubscription{
		Endpoint:  req.Endpoint,
		P256DH:    req.Keys.P256DH,
		Auth:      req.Keys.Auth,
		DeviceID:  req.DeviceID,
		CreatedAt: time.Now().UTC(),
	}
	if err := h.store.PutPushSubscription(c.Request.Context(), sub); err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to save subscription"})
		return
	}
	c.Status(http.StatusNoContent)
}

// DeletePushSubscription removes a browser's subscription, e.g. on
// unsubscribe.
func (h *Handler) DeletePushSubscription(c *gin.Context) {
	endpoint := c.Query("endpoint")
	if endpoint == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "endpoint is required"})
		return
	}
	if err := h.store.DeletePushSubscription(c.Request.Context(), endpoint); err != nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "subscription not found"})
		return
	}
	c.Status(http.StatusNoContent)
}

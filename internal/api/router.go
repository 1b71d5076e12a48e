package api

import (
	"time"

	"github.com/gin-gonic/gin"
	"github.com/patrickmn/go-cache"
	"golang.org/x/time/rate"

	"waterhub/config"
	"waterhub/internal/mw"
)

// maxRequestBodyBytes caps every inbound request body, per the transport
// contract's 1 MiB limit.
const maxRequestBodyBytes = 1 << 20

// NewRouter builds the gin engine exposing the REST and WebSocket surface.
// The IP rate limiter guards the whole /api group exactly as the upstream
// HTTP facade wires it; the response cache is narrower, applied only to
// the two read-only, slow-changing GETs (a device's alarms and its
// pending schedules) rather than every GET, since most of this surface
// (water commands, debug connections, push state) must never serve a
// stale cached response. The WebSocket upgrade endpoint sits outside
// both — a long-lived connection has no "response" to cache and a
// limiter tuned for REST bursts would reject reconnect storms it should
// not govern.
func NewRouter(cfg *config.Config, h *Handler) *gin.Engine {
	r := gin.New()
	r.Use(gin.Logger(), gin.Recovery(), mw.MaxBodyBytes(maxRequestBodyBytes))

	r.GET("/", h.Root)
	r.GET("/health", h.Health)
	r.GET("/ws", h.ServeWS)

	cacheTTL := time.Duration(cfg.Server.CacheTTLSeconds) * time.Second
	cacheStore := cache.New(cacheTTL, 10*time.Minute)
	cached := mw.Cache(cacheStore, cacheTTL)

	apiGroup := r.Group("/api")
	apiGroup.Use(mw.RateLimiter(rate.Limit(cfg.Server.RateLimitPerSec), int(cfg.Server.RateLimitPerSec)*2))

	apiGroup.POST("/devices/register", h.RegisterDevice)
	apiGroup.GET("/devices", h.ListDevices)
	apiGroup.POST("/devices/:id/water", h.IssueWaterCommand)

	apiGroup.GET("/alarms", h.ListAlarms)
	apiGroup.POST("/alarms", h.CreateAlarm)
	apiGroup.PUT("/alarms/:id/toggle", h.ToggleAlarm)
	apiGroup.DELETE("/alarms/:id", h.DeleteAlarm)
	apiGroup.GET("/devices/:id/alarms", cached, h.ListAlarms)

	apiGroup.POST("/schedules", h.CreateSchedule)
	apiGroup.GET("/devices/:id/schedules", cached, h.ListSchedules)

	apiGroup.GET("/debug/connections", h.DebugConnections)

	apiGroup.GET("/push/vapid_public_key", h.VAPIDPublicKey)
	apiGroup.PUT("/push/subscriptions", h.PutPushSubscription)
	apiGroup.DELETE("/push/subscriptions", h.DeletePushSubscription)

	return r
}

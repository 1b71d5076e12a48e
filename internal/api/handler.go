package api

import (
	"log"
	"time"

	"github.com/SherClockHolmes/webpush-go"

	"waterhub/internal/hub"
	"waterhub/internal/notification"
	"waterhub/internal/router"
	"waterhub/internal/store"
)

// Handler holds the dependencies every REST and WebSocket endpoint needs:
// the Store, the Session Hub, the Command Router, and the push worker pool.
type Handler struct {
	store     store.Store
	hub       *hub.Hub
	router    *router.Router
	notifier  *notification.WorkerPool
	webpush   *webpush.Options
	logger    *log.Logger
	serverTag string
	startedAt time.Time
}

// NewHandler creates a new API handler.
func NewHandler(s store.Store, h *hub.Hub, r *router.Router, notifier *notification.WorkerPool, webpushOptions *webpush.Options, logger *log.Logger, serverTag string) *Handler {
	return &Handler{
		store:     s,
		hub:       h,
		router:    r,
		notifier:  notifier,
		webpush:   webpushOptions,
		logger:    logger,
		serverTag: serverTag,
		startedAt: time.Now(),
	}
}

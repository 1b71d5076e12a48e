// Package sweeper runs the single periodic task that evicts stale device
// sessions from the Session Hub, in the shape of the teacher's scraper
// Run/ScrapeOnce loop.
package sweeper

import (
	"context"
	"log"
	"time"

	"waterhub/internal/hub"
	"waterhub/internal/notification"
	"waterhub/internal/router"
	"waterhub/internal/store"
)

// Service periodically sweeps the Hub for device sessions whose last_seen
// has exceeded the staleness threshold.
type Service struct {
	hub      *hub.Hub
	router   *router.Router
	store    store.Store
	notifier *notification.WorkerPool
	logger   *log.Logger

	interval  time.Duration
	threshold time.Duration
}

// New creates a sweeper. interval is the sweep cadence (default 2 minutes
// per the session hub's staleness contract); threshold is how long a
// session may go unseen before it is considered stale (default 10 minutes).
func New(h *hub.Hub, r *router.Router, st store.Store, notifier *notification.WorkerPool, logger *log.Logger, interval, threshold time.Duration) *Service {
	return &Service{hub: h, router: r, store: st, notifier: notifier, logger: logger, interval: interval, threshold: threshold}
}

// Run blocks, sweeping on every tick until ctx is cancelled.
func (s *Service) Run(ctx context.Context) {
	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.SweepOnce(ctx)
		}
	}
}

// SweepOnce runs a single sweep pass. It is exported so tests can drive it
// without waiting on the ticker.
func (s *Service) SweepOnce(ctx context.Context) {
	stale := s.hub.Sweep(time.Now(), s.threshold)
	for _, sess := range stale {
		s.logger.Printf("sweeping stale session for device %s (last seen %s)", sess.DeviceID, sess.LastSeen)

		_ = sess.Transport.CloseWithReason(4001, "stale")

		idle := "idle"
		offline := false
		if err := s.store.SetDeviceStatus(ctx, sess.DeviceID, &offline, &idle, time.Now()); err != nil {
			s.logger.Printf("mark device %s offline after sweep failed: %v", sess.DeviceID, err)
		}

		count := s.router.BroadcastToDashboards("device_disconnected", map[string]any{
			"deviceId": sess.DeviceID,
			"reason":   "timeout",
		})
		if count == 0 && s.notifier != nil {
			s.notifier.Dispatch(notification.Job{
				DeviceID: sess.DeviceID,
				Kind:     "device_disconnected",
				Message:  "Device " + sess.DeviceID + " went offline unexpectedly.",
			})
		}
	}
}

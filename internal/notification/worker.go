// Package notification implements the push notification fan-out worker
// pool: a best-effort side channel that buzzes a subscribed browser when a
// broadcast to dashboards finds nobody watching.
package notification

import (
	"context"
	"log"
	"net/http"

	"github.com/SherClockHolmes/webpush-go"
	"gorm.io/gorm"

	"waterhub/internal/model"
)

// NotificationSender defines the interface for sending a web push notification.
type NotificationSender interface {
	Send(payload []byte, sub *webpush.Subscription, options *webpush.Options) (*http.Response, error)
}

// WebPushSender is a real implementation of NotificationSender using the webpush library.
type WebPushSender struct{}

// Send sends a notification using the webpush library.
func (s *WebPushSender) Send(payload []byte, sub *webpush.Subscription, options *webpush.Options) (*http.Response, error) {
	return webpush.SendNotification(payload, sub, options)
}

// Job is a unit of push work: alert whoever is subscribed to DeviceID (or
// globally, if a subscription has no device filter) with Message.
type Job struct {
	DeviceID string
	Kind     string // "device_disconnected" | "alarm_missed"
	Message  string
}

// WorkerPool manages a pool of workers for sending push notifications.
type WorkerPool struct {
	size    int
	jobs    chan Job
	db      *gorm.DB
	webpush *webpush.Options
	sender  NotificationSender
	logger  *log.Logger
}

// NewWorkerPool creates a new worker pool. size <= 0 is coerced to 1.
func NewWorkerPool(size int, db *gorm.DB, webpushOptions *webpush.Options, logger *log.Logger) *WorkerPool {
	if size <= 0 {
		size = 1
	}
	return &WorkerPool{
		size:    size,
		jobs:    make(chan Job, size*4),
		db:      db,
		webpush: webpushOptions,
		sender:  &WebPushSender{},
		logger:  logger,
	}
}

// Start launches the worker goroutines.
func (wp *WorkerPool) Start(ctx context.Context) {
	for i := 0; i < wp.size; i++ {
		go wp.worker(ctx, i)
	}
}

func (wp *WorkerPool) worker(ctx context.Context, id int) {
	wp.logger.Printf("push worker %d started", id)
	for {
		select {
		case job := <-wp.jobs:
			wp.send(ctx, job)
		case <-ctx.Done():
			wp.logger.Printf("push worker %d shutting down", id)
			return
		}
	}
}

// Dispatch enqueues job. If the queue is full the job is dropped rather
// than blocking the caller — a missed push notification is not worth
// stalling the Session Hub or the Alarm Engine.
func (wp *WorkerPool) Dispatch(job Job) {
	select {
	case wp.jobs <- job:
	default:
		wp.logger.Printf("push queue full, dropping %s notification for %s", job.Kind, job.DeviceID)
	}
}

// Jobs returns the jobs channel for testing.
func (wp *WorkerPool) Jobs() chan Job {
	return wp.jobs
}

func (wp *WorkerPool) send(ctx context.Context, job Job) {
	if wp.webpush == nil || wp.webpush.VAPIDPublicKey == "" {
		return
	}

	var subs []model.PushSubscription
	q := wp.db.WithContext(ctx)
	if job.DeviceID != "" {
		q = q.Where("device_id = ? OR device_id = ''", job.DeviceID)
	}
	if err := q.Find(&subs).Error; err != nil {
		wp.logger.Printf("push: fetching subscriptions for %s failed: %v", job.DeviceID, err)
		return
	}
	if len(subs) == 0 {
		return
	}

	for _, sub := range subs {
		wp.sendOne(ctx, sub, []byte(job.Message))
	}
}

func (wp *WorkerPool) sendOne(ctx context.Context, sub model.PushSubscription, payload []byte) {
	wpSub := &webpush.Subscription{
		Endpoint: sub.Endpoint,
		Keys: webpush.Keys{
			P256dh: sub.P256DH,
			Auth:   sub.Auth,
		},
	}

	resp, err := wp.sender.Send(payload, wpSub, wp.webpush)
	if err != nil {
		wp.logger.Printf("push: send to %s failed: %v", sub.Endpoint, err)
		return
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusGone {
		wp.logger.Printf("push: subscription %s expired, deleting", sub.Endpoint)
		if err := wp.db.WithContext(ctx).Delete(&sub).Error; err != nil {
			wp.logger.Printf("push: failed to delete expired subscription %s: %v", sub.Endpoint, err)
		}
	}
}

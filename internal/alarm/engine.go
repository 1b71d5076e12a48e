// Package alarm implements the Alarm Engine: a single periodic worker that
// fires due recurring alarms and due one-shot schedules, built in the shape
// of the teacher's scraper Run/ScrapeOnce loop.
package alarm

import (
	"context"
	"log"
	"strings"
	"time"

	"waterhub/internal/model"
	"waterhub/internal/notification"
	"waterhub/internal/router"
	"waterhub/internal/store"
	"waterhub/internal/timeofday"
)

// commandRouter is the subset of *router.Router the Engine depends on,
// narrowed to an interface so tests can substitute a fake without standing
// up a real Hub.
type commandRouter interface {
	IssueAlarmCommand(alarm model.Alarm, action string) (router.WaterCommand, bool)
	IssueScheduleCommand(schedule model.Schedule, action string) (router.WaterCommand, bool)
	BroadcastToDashboards(msgType string, data any) int
}

// Engine owns the single process-wide tick. Tick is exported and
// independently testable without waiting on the ticker.
type Engine struct {
	store    store.Store
	router   commandRouter
	notifier *notification.WorkerPool
	logger   *log.Logger
	interval time.Duration
}

// New creates an Engine. interval is the tick cadence (60s per the
// recurring-alarm scheduler's contract — a single process-wide tick, never
// one timer per alarm).
func New(st store.Store, r commandRouter, notifier *notification.WorkerPool, logger *log.Logger, interval time.Duration) *Engine {
	return &Engine{store: st, router: r, notifier: notifier, logger: logger, interval: interval}
}

// Run blocks, ticking until ctx is cancelled.
func (e *Engine) Run(ctx context.Context) {
	ticker := time.NewTicker(e.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			e.Tick(ctx)
		}
	}
}

// Tick reads due alarms and due one-shot schedules and fires each in turn.
// A failure on one alarm or schedule is logged and does not abort the
// rest of the tick.
func (e *Engine) Tick(ctx context.Context) {
	now := time.Now()

	due, err := e.store.FindDueAlarms(ctx, now)
	if err != nil {
		e.logger.Printf("alarm tick: find_due_alarms failed: %v", err)
	} else {
		for _, a := range due {
			e.fire(ctx, a, now)
		}
	}

	dueSchedules, err := e.store.ListDueSchedules(ctx, now)
	if err != nil {
		e.logger.Printf("alarm tick: list_due_schedules failed: %v", err)
		return
	}
	for _, s := range dueSchedules {
		e.fireSchedule(ctx, s, now)
	}
}

// fire implements §4.E's fire(alarm). A missing or offline device still
// advances next_execution so no backlog accumulates while it is down.
func (e *Engine) fire(ctx context.Context, a model.Alarm, now time.Time) {
	device, err := e.store.FindDevice(ctx, a.DeviceID)
	offline := err != nil || !device.Online

	if offline {
		next, cerr := timeofday.ComputeNext(a.TimeOfDay, strings.Split(a.Days, ","), now)
		if cerr != nil {
			e.logger.Printf("alarm %d: compute_next failed: %v", a.ID, cerr)
			return
		}
		if uerr := e.store.UpdateAlarmAfterFire(ctx, a.ID, nil, next, false); uerr != nil {
			e.logger.Printf("alarm %d: advance after miss failed: %v", a.ID, uerr)
		}
		count := e.router.BroadcastToDashboards("alarm_missed", map[string]any{
			"alarmId":  a.ID,
			"deviceId": a.DeviceID,
			"reason":   "Device offline",
		})
		e.pushFallbackIfUnwatched(count, a.DeviceID, "alarm_missed", "Alarm "+a.Name+" was missed: device is offline.")
		return
	}

	cmd, ok := e.router.IssueAlarmCommand(a, "water")
	next, cerr := timeofday.ComputeNext(a.TimeOfDay, strings.Split(a.Days, ","), now)
	if cerr != nil {
		e.logger.Printf("alarm %d: compute_next failed: %v", a.ID, cerr)
		return
	}

	if !ok {
		if uerr := e.store.UpdateAlarmAfterFire(ctx, a.ID, nil, next, false); uerr != nil {
			e.logger.Printf("alarm %d: advance after failed dispatch failed: %v", a.ID, uerr)
		}
		count := e.router.BroadcastToDashboards("alarm_failed", map[string]any{
			"alarmId":   a.ID,
			"deviceId":  a.DeviceID,
			"commandId": cmd.CommandID,
		})
		e.pushFallbackIfUnwatched(count, a.DeviceID, "alarm_missed", "Alarm "+a.Name+" failed to dispatch.")
		return
	}

	if uerr := e.store.UpdateAlarmAfterFire(ctx, a.ID, &now, next, true); uerr != nil {
		e.logger.Printf("alarm %d: advance after success failed: %v", a.ID, uerr)
	}
	e.router.BroadcastToDashboards("alarm_executed", map[string]any{
		"alarmId":       a.ID,
		"deviceId":      a.DeviceID,
		"nextExecution": next,
	})
}

// fireSchedule implements the simpler one-shot rule: a due schedule that
// cannot be dispatched right now is marked expired rather than retried; one
// that can be dispatched transitions to executed or failed and never
// re-fires.
func (e *Engine) fireSchedule(ctx context.Context, s model.Schedule, now time.Time) {
	device, err := e.store.FindDevice(ctx, s.DeviceID)
	if err != nil || !device.Online {
		if merr := e.store.MarkSchedule(ctx, s.ID, model.ScheduleExpired, "device not found or offline"); merr != nil {
			e.logger.Printf("schedule %d: mark expired failed: %v", s.ID, merr)
		}
		return
	}

	_, ok := e.router.IssueScheduleCommand(s, "water")
	if !ok {
		if merr := e.store.MarkSchedule(ctx, s.ID, model.ScheduleFailed, "not connected"); merr != nil {
			e.logger.Printf("schedule %d: mark failed failed: %v", s.ID, merr)
		}
		return
	}
	if merr := e.store.MarkSchedule(ctx, s.ID, model.ScheduleExecuted, ""); merr != nil {
		e.logger.Printf("schedule %d: mark executed failed: %v", s.ID, merr)
	}
}

func (e *Engine) pushFallbackIfUnwatched(dashboardCount int, deviceID, kind, message string) {
	if dashboardCount > 0 || e.notifier == nil {
		return
	}
	e.notifier.Dispatch(notification.Job{DeviceID: deviceID, Kind: kind, Message: message})
}

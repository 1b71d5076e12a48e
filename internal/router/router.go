// Package router implements the Command Router: the stateless translation
// of REST calls and dashboard messages into addressed commands to exactly
// one connected device, and the fan-out of device telemetry to dashboards.
package router

import (
	"context"
	"errors"
	"fmt"
	"log"
	"sync/atomic"
	"time"

	"gorm.io/gorm"

	"waterhub/internal/apierr"
	"waterhub/internal/hub"
	"waterhub/internal/model"
	"waterhub/internal/store"
)

// Router holds a reference to the Hub and the Store; its only state of its
// own is the command-id sequence counter.
type Router struct {
	hub    *hub.Hub
	store  store.Store
	logger *log.Logger
	cmdSeq int64
}

// New creates a Router bound to hub and store.
func New(h *hub.Hub, st store.Store, logger *log.Logger) *Router {
	return &Router{hub: h, store: st, logger: logger}
}

// SendToDevice writes {type, data} to device_id's live session. It returns
// true only if a live session exists and the write did not immediately
// fail. There is no queueing on miss.
func (r *Router) SendToDevice(deviceID, msgType string, data any) bool {
	sess, ok := r.hub.Lookup(deviceID)
	if !ok {
		return false
	}
	if err := sess.Transport.Send(msgType, data); err != nil {
		r.logger.Printf("send %s to device %s failed: %v", msgType, deviceID, err)
		return false
	}
	return true
}

// BroadcastToDashboards fans {type, data} out to every live dashboard
// session. Best-effort; per-session failures are logged but never abort
// the fan-out. Returns the number of sessions the send succeeded on.
func (r *Router) BroadcastToDashboards(msgType string, data any) int {
	return r.hub.BroadcastToDashboards(msgType, data)
}

// nextCommandID returns a value unique per process for the lifetime of the
// process, in the "cmd_<monotonic>" scheme.
func (r *Router) nextCommandID() string {
	return fmt.Sprintf("cmd_%d", atomic.AddInt64(&r.cmdSeq, 1))
}

// WaterCommand is the envelope dispatched to a device for a manual or
// alarm-triggered watering command.
type WaterCommand struct {
	Action     string    `json:"action"`
	Duration   int       `json:"duration"`
	CommandID  string    `json:"commandId"`
	Timestamp  time.Time `json:"timestamp"`
	AlarmID    *int64    `json:"alarmId,omitempty"`
	AlarmName  string    `json:"alarmName,omitempty"`
	ScheduleID *int64    `json:"scheduleId,omitempty"`
}

// IssueWaterCommand requires a Device row and Device.Online == true in the
// Store; otherwise it returns the matching precondition error from
// internal/apierr. On success it sends a water_command frame and returns
// the envelope that was sent.
func (r *Router) IssueWaterCommand(ctx context.Context, deviceID, action string, durationMS int) (WaterCommand, error) {
	device, err := r.store.FindDevice(ctx, deviceID)
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return WaterCommand{}, apierr.ErrDeviceNotFound
	}
	if err != nil {
		return WaterCommand{}, fmt.Errorf("%w: %v", apierr.ErrInternal, err)
	}
	if !device.Online {
		return WaterCommand{}, apierr.ErrDeviceOffline
	}

	cmd := WaterCommand{
		Action:    action,
		Duration:  durationMS,
		CommandID: r.nextCommandID(),
		Timestamp: time.Now(),
	}

	if !r.SendToDevice(device.ID, "water_command", cmd) {
		return WaterCommand{}, apierr.ErrNotConnected
	}
	return cmd, nil
}

// IssueAlarmCommand is the Alarm Engine's variant of IssueWaterCommand: it
// tags the envelope with the firing alarm's id and name and does not
// re-check the precondition against the Store (the Alarm Engine has already
// checked the Device row with FindDevice before calling).
func (r *Router) IssueAlarmCommand(alarm model.Alarm, action string) (WaterCommand, bool) {
	cmd := WaterCommand{
		Action:    action,
		Duration:  alarm.DurationMS,
		CommandID: r.nextCommandID(),
		Timestamp: time.Now(),
		AlarmID:   &alarm.ID,
		AlarmName: alarm.Name,
	}
	ok := r.SendToDevice(alarm.DeviceID, "water_command", cmd)
	return cmd, ok
}

// IssueScheduleCommand is the Alarm Engine's variant for one-shot
// Schedules: same shape as IssueAlarmCommand but tags the envelope with the
// schedule's id instead of an alarm id/name.
func (r *Router) IssueScheduleCommand(schedule model.Schedule, action string) (WaterCommand, bool) {
	cmd := WaterCommand{
		Action:     action,
		Duration:   schedule.DurationMS,
		CommandID:  r.nextCommandID(),
		Timestamp:  time.Now(),
		ScheduleID: &schedule.ID,
	}
	ok := r.SendToDevice(schedule.DeviceID, "water_command", cmd)
	return cmd, ok
}

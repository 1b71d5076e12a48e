package protocol

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"waterhub/internal/hub"
)

// dispatchEntry pairs a message type with its typed handler. The table is
// built once at package init and never mutated, so dispatch under a live
// connection never races on it.
type dispatchEntry struct {
	handle func(ctx context.Context, h *Handler, raw json.RawMessage, remoteAddr string) error
}

var dispatchTable = map[string]dispatchEntry{
	"device_join":       {handle: handleDeviceJoin},
	"frontend_join":     {handle: handleFrontendJoin},
	"heartbeat":         {handle: handleHeartbeat},
	"pump_status":       {handle: handlePumpStatus},
	"command_ack":       {handle: handleCommandAck},
	"schedule_executed": {handle: handleScheduleExecuted},
	"manual_command":    {handle: handleManualCommand},
}

func supportedTypes() []string {
	out := make([]string, 0, len(dispatchTable))
	for t := range dispatchTable {
		out = append(out, t)
	}
	return out
}

type deviceJoinPayload struct {
	DeviceID string `json:"deviceId"`
}

// handleDeviceJoin binds (or rebinds) the current session to deviceId,
// evicting any other session already bound to that id, then emits a
// join confirmation to the caller and device_connected to dashboards.
func handleDeviceJoin(ctx context.Context, h *Handler, raw json.RawMessage, remoteAddr string) error {
	var p deviceJoinPayload
	if err := json.Unmarshal(raw, &p); err != nil || strings.TrimSpace(p.DeviceID) == "" {
		return fmt.Errorf("device_join requires deviceId")
	}
	deviceID := strings.ToUpper(strings.TrimSpace(p.DeviceID))

	if h.deviceSess != nil && h.deviceSess.DeviceID != deviceID {
		h.hub.Drop(h.deviceSess)
	}
	if h.deviceSess == nil {
		h.deviceSess = hub.NewDeviceSession(h.handle, h.conn, remoteAddr, time.Now())
	}

	res := h.hub.AdmitDevice(h.deviceSess, deviceID, time.Now())
	h.state = stateDevice

	if res.Superseded != nil && res.Superseded != h.deviceSess {
		_ = res.Superseded.Transport.CloseWithReason(CloseCodeSuperseded, "superseded")
	}

	if _, err := h.store.RegisterOrTouchDevice(ctx, deviceID, remoteAddr); err != nil {
		h.logger.Printf("register device %s failed: %v", deviceID, err)
	}
	online := true
	if err := h.store.SetDeviceStatus(ctx, deviceID, &online, nil, time.Now()); err != nil {
		h.logger.Printf("mark device %s online failed: %v", deviceID, err)
	}

	if err := h.conn.Send("device_joined", map[string]any{
		"status":         "success",
		"deviceId":       deviceID,
		"reconnectCount": res.ReconnectCount,
	}); err != nil {
		return err
	}

	h.router.BroadcastToDashboards("device_connected", map[string]any{
		"deviceId": deviceID,
		"status":   "online",
	})
	return nil
}

// handleFrontendJoin binds the session as a dashboard. A second
// frontend_join on an already-bound dashboard session is ignored per the
// state diagram (dashboards cannot rebind).
func handleFrontendJoin(ctx context.Context, h *Handler, raw json.RawMessage, remoteAddr string) error {
	if h.state == stateDashboard {
		return nil
	}
	h.dashSess = hub.NewDashboardSession(h.handle, h.conn, remoteAddr, time.Now())
	h.hub.AdmitDashboard(h.dashSess)
	h.state = stateDashboard

	devices, err := h.store.ListDevices(ctx)
	if err != nil {
		return fmt.Errorf("snapshot unavailable: %v", err)
	}
	return h.conn.Send("snapshot", map[string]any{"devices": devices})
}

type heartbeatPayload struct {
	DeviceID string `json:"deviceId"`
	Uptime   *int64 `json:"uptime,omitempty"`
	FreeHeap *int64 `json:"freeHeap,omitempty"`
	RSSI     *int   `json:"rssi,omitempty"`
}

func handleHeartbeat(ctx context.Context, h *Handler, raw json.RawMessage, remoteAddr string) error {
	var p heartbeatPayload
	if err := json.Unmarshal(raw, &p); err != nil || strings.TrimSpace(p.DeviceID) == "" {
		return fmt.Errorf("heartbeat requires deviceId")
	}
	if h.state != stateDevice {
		return fmt.Errorf("heartbeat received before device_join")
	}
	return h.conn.Send("heartbeat_ack", map[string]any{
		"serverTime": time.Now(),
		"uptime":     p.Uptime,
		"freeHeap":   p.FreeHeap,
		"rssi":       p.RSSI,
	})
}

type pumpStatusPayload struct {
	DeviceID string `json:"deviceId"`
	Status   string `json:"status"`
}

// handlePumpStatus normalizes stopped->idle, persists, fans out
// pump_status_update, and acknowledges the sender.
func handlePumpStatus(ctx context.Context, h *Handler, raw json.RawMessage, remoteAddr string) error {
	var p pumpStatusPayload
	if err := json.Unmarshal(raw, &p); err != nil || strings.TrimSpace(p.DeviceID) == "" || p.Status == "" {
		return fmt.Errorf("pump_status requires deviceId and status")
	}
	if h.state != stateDevice {
		return fmt.Errorf("pump_status received before device_join")
	}

	normalized := p.Status
	if normalized == "stopped" {
		normalized = "idle"
	}
	if normalized != "running" && normalized != "idle" {
		return fmt.Errorf("pump_status: unrecognized status %q", p.Status)
	}

	deviceID := strings.ToUpper(strings.TrimSpace(p.DeviceID))
	if err := h.store.SetDeviceStatus(ctx, deviceID, nil, &normalized, time.Now()); err != nil {
		h.logger.Printf("persist pump status for %s failed: %v", deviceID, err)
	}

	h.router.BroadcastToDashboards("pump_status_update", map[string]any{
		"deviceId": deviceID,
		"status":   normalized,
	})
	return h.conn.Send("status_received", map[string]any{"deviceId": deviceID, "status": normalized})
}

type commandAckPayload struct {
	DeviceID  string `json:"deviceId"`
	CommandID string `json:"commandId"`
	Status    string `json:"status"`
}

func handleCommandAck(ctx context.Context, h *Handler, raw json.RawMessage, remoteAddr string) error {
	var p commandAckPayload
	if err := json.Unmarshal(raw, &p); err != nil || p.CommandID == "" || strings.TrimSpace(p.DeviceID) == "" {
		return fmt.Errorf("command_ack requires deviceId and commandId")
	}
	h.router.BroadcastToDashboards("command_acknowledged", map[string]any{
		"deviceId":  strings.ToUpper(strings.TrimSpace(p.DeviceID)),
		"commandId": p.CommandID,
		"status":    p.Status,
	})
	return nil
}

type scheduleExecutedPayload struct {
	DeviceID   string `json:"deviceId"`
	ScheduleID *int64 `json:"scheduleId,omitempty"`
	AlarmID    *int64 `json:"alarmId,omitempty"`
}

// handleScheduleExecuted accepts either scheduleId or alarmId per the
// wire protocol's deliberate overlap and echoes the given ids in the
// confirmation broadcast. It does not look the entity up in the Store and
// never mutates status from here (the Alarm Engine and the store's
// execution path own status transitions).
func handleScheduleExecuted(ctx context.Context, h *Handler, raw json.RawMessage, remoteAddr string) error {
	var p scheduleExecutedPayload
	if err := json.Unmarshal(raw, &p); err != nil || strings.TrimSpace(p.DeviceID) == "" {
		return fmt.Errorf("schedule_executed requires deviceId")
	}
	if p.ScheduleID == nil && p.AlarmID == nil {
		return fmt.Errorf("schedule_executed requires scheduleId or alarmId")
	}

	payload := map[string]any{"deviceId": strings.ToUpper(strings.TrimSpace(p.DeviceID))}
	if p.ScheduleID != nil {
		payload["scheduleId"] = *p.ScheduleID
	}
	if p.AlarmID != nil {
		payload["alarmId"] = *p.AlarmID
	}
	h.router.BroadcastToDashboards("schedule_confirmed", payload)
	return nil
}

type manualCommandPayload struct {
	DeviceID string `json:"deviceId"`
	Action   string `json:"action"`
	Duration *int   `json:"duration,omitempty"`
}

// handleManualCommand delegates to the Command Router and replies
// command_sent or an error frame, per the dashboard-originated command
// path in §4.C.
func handleManualCommand(ctx context.Context, h *Handler, raw json.RawMessage, remoteAddr string) error {
	var p manualCommandPayload
	if err := json.Unmarshal(raw, &p); err != nil || strings.TrimSpace(p.DeviceID) == "" || p.Action == "" {
		return fmt.Errorf("manual_command requires deviceId and action")
	}
	duration := 5000
	if p.Duration != nil {
		duration = *p.Duration
	}

	cmd, err := h.router.IssueWaterCommand(ctx, strings.ToUpper(strings.TrimSpace(p.DeviceID)), p.Action, duration)
	if err != nil {
		return err
	}
	return h.conn.Send("command_sent", map[string]any{"command": cmd})
}

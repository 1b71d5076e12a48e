// Package hub implements the Session Hub: the authoritative, in-memory
// registry of currently connected devices and dashboards. It is the only
// place in the service holding mutable shared state; every other component
// reaches sessions through the Hub's methods, never through a package-level
// map.
package hub

import (
	"log"
	"sync"
	"time"
)

// Stats is the process-wide counter struct the Hub maintains alongside its
// two session maps.
type Stats struct {
	TotalEver       int64
	Active          int
	DeviceActive    int
	DashboardActive int
	StartedAt       time.Time
}

// AdmitResult reports what admit_device did so the caller can mirror the
// transition into the Store and broadcast to dashboards outside the Hub's
// critical section.
type AdmitResult struct {
	Session        *DeviceSession
	Superseded     *DeviceSession // non-nil if an existing session was evicted
	ReconnectCount int
}

// DropResult reports what the dropped session was, so the caller can decide
// whether a Store mirror and a broadcast are owed.
type DropResult struct {
	WasDevice    bool
	DeviceID     string
	WasDashboard bool
}

// Hub is the Session Hub. All exported methods are safe for concurrent use.
type Hub struct {
	mu         sync.Mutex
	devices    map[string]*DeviceSession
	dashboards map[*DashboardSession]struct{}
	stats      Stats
	logger     *log.Logger
}

// New creates an empty Hub.
func New(logger *log.Logger) *Hub {
	return &Hub{
		devices:    make(map[string]*DeviceSession),
		dashboards: make(map[*DashboardSession]struct{}),
		stats:      Stats{StartedAt: time.Now()},
		logger:     logger,
	}
}

// AdmitDevice binds sess to deviceID. If a different session already holds
// deviceID, it is superseded: the caller is told which session to close.
// The device's reconnect counter is (old.ReconnectCount + 1) when
// superseding, 0 on a fresh join.
func (h *Hub) AdmitDevice(sess *DeviceSession, deviceID string, now time.Time) AdmitResult {
	h.mu.Lock()
	defer h.mu.Unlock()

	var result AdmitResult
	if old, ok := h.devices[deviceID]; ok && old != sess {
		result.Superseded = old
		result.ReconnectCount = old.ReconnectCount + 1
		h.stats.Active--
		h.stats.DeviceActive--
	}

	sess.DeviceID = deviceID
	sess.ReconnectCount = result.ReconnectCount
	sess.LastSeen = now
	h.devices[deviceID] = sess

	h.stats.TotalEver++
	h.stats.Active++
	h.stats.DeviceActive++

	result.Session = sess
	return result
}

// AdmitDashboard inserts sess into the dashboard set.
func (h *Hub) AdmitDashboard(sess *DashboardSession) {
	h.mu.Lock()
	defer h.mu.Unlock()

	h.dashboards[sess] = struct{}{}
	h.stats.TotalEver++
	h.stats.Active++
	h.stats.DashboardActive++
}

// Drop removes sess from whichever map it belongs to. sess must be a
// *DeviceSession or *DashboardSession; any other value is logged and
// otherwise ignored. Dropping a session that was never admitted (never
// completed a join) is a no-op.
func (h *Hub) Drop(sess any) DropResult {
	h.mu.Lock()
	defer h.mu.Unlock()

	switch s := sess.(type) {
	case *DeviceSession:
		if s.DeviceID == "" {
			return DropResult{}
		}
		current, ok := h.devices[s.DeviceID]
		if !ok || current != s {
			// Already superseded or dropped; nothing to do.
			return DropResult{}
		}
		delete(h.devices, s.DeviceID)
		h.stats.Active--
		h.stats.DeviceActive--
		return DropResult{WasDevice: true, DeviceID: s.DeviceID}
	case *DashboardSession:
		if _, ok := h.dashboards[s]; !ok {
			return DropResult{}
		}
		delete(h.dashboards, s)
		h.stats.Active--
		h.stats.DashboardActive--
		return DropResult{WasDashboard: true}
	default:
		h.logger.Printf("drop called with unrecognized session type %T", sess)
		return DropResult{}
	}
}

// Touch updates last_seen on sess. Called on every inbound frame and on
// heartbeat.
func (h *Hub) Touch(sess any, at time.Time) {
	h.mu.Lock()
	defer h.mu.Unlock()

	switch s := sess.(type) {
	case *DeviceSession:
		s.LastSeen = at
	case *DashboardSession:
		s.LastSeen = at
	}
}

// Sweep evicts every device session whose LastSeen is older than threshold
// and returns them so the caller can mirror the offline transition into the
// Store, close the transport, and broadcast device_disconnected. Sweep does
// not inspect dashboard sessions: a dashboard going stale is the browser's
// problem, not the server's.
func (h *Hub) Sweep(now time.Time, threshold time.Duration) []*DeviceSession {
	h.mu.Lock()
	defer h.mu.Unlock()

	var stale []*DeviceSession
	cutoff := now.Add(-threshold)
	for id, sess := range h.devices {
		if sess.LastSeen.Before(cutoff) {
			stale = append(stale, sess)
			delete(h.devices, id)
			h.stats.Active--
			h.stats.DeviceActive--
		}
	}
	return stale
}

// Lookup returns the live session for deviceID, if any.
func (h *Hub) Lookup(deviceID string) (*DeviceSession, bool) {
	h.mu.Lock()
	defer h.mu.Unlock()

	sess, ok := h.devices[deviceID]
	return sess, ok
}

// IterDashboards calls fn once per currently-admitted dashboard session. fn
// must not call back into the Hub — it is invoked while a read snapshot of
// the set has already been copied out, but calling Hub methods from within
// fn risks a self-deadlock on future implementations that hold the lock
// longer.
func (h *Hub) IterDashboards(fn func(*DashboardSession)) {
	h.mu.Lock()
	snapshot := make([]*DashboardSession, 0, len(h.dashboards))
	for d := range h.dashboards {
		snapshot = append(snapshot, d)
	}
	h.mu.Unlock()

	for _, d := range snapshot {
		fn(d)
	}
}

// BroadcastToDashboards sends {type, data} to every live dashboard session.
// Best-effort: a per-session send failure is logged and counted against the
// total, but does not abort the fan-out. It returns the number of sessions
// the send succeeded on.
func (h *Hub) BroadcastToDashboards(msgType string, data any) int {
	count := 0
	h.IterDashboards(func(d *DashboardSession) {
		if err := d.Transport.Send(msgType, data); err != nil {
			h.logger.Printf("broadcast %s to dashboard %s failed: %v", msgType, d.Handle, err)
			return
		}
		count++
	})
	return count
}

// DeviceSnapshot is one row of a Snapshot.
type DeviceSnapshot struct {
	DeviceID string
	Addr     string
	JoinedAt time.Time
	LastSeen time.Time
}

// Snapshot returns the currently-bound device sessions, used to answer a
// joining dashboard's initial device list and /api/debug/connections.
func (h *Hub) Snapshot() []DeviceSnapshot {
	h.mu.Lock()
	defer h.mu.Unlock()

	out := make([]DeviceSnapshot, 0, len(h.devices))
	for id, sess := range h.devices {
		out = append(out, DeviceSnapshot{DeviceID: id, Addr: sess.Addr, JoinedAt: sess.JoinedAt, LastSeen: sess.LastSeen})
	}
	return out
}

// Stats returns a copy of the process-wide counters.
func (h *Hub) Stats() Stats {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.stats
}
